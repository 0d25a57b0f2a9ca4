// Package network holds the immutable reaction table the kinetics engine
// integrates. Tables are validated once in New; after that every slot index
// is known to resolve to a tracked species, the background pool, or nothing.
package network

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/ejecta/internal/ratelaw"
)

var (
	ErrIndexOutOfRange  = errors.New("network: species index out of range")
	ErrEmptyReactant    = errors.New("network: first reactant must be a species")
	ErrDuplicateSpecies = errors.New("network: duplicate species")
	ErrUnknownSpecies   = errors.New("network: unknown species")
	ErrEmptyPool        = errors.New("network: background reaction without pool members")
)

// DefaultBackgroundIndex is the table value conventionally used for the
// background pool.
const DefaultBackgroundIndex = 99

// SlotKind discriminates the Slot variants.
type SlotKind uint8

const (
	SlotEmpty SlotKind = iota
	SlotSpecies
	SlotBackground
)

// Slot is one reactant or product position of a reaction.
type Slot struct {
	Kind  SlotKind
	Index int
}

var (
	// Empty marks an unused slot; it contributes nothing.
	Empty = Slot{Kind: SlotEmpty}
	// Background stands in for the ambient pool; it is never depleted.
	Background = Slot{Kind: SlotBackground}
)

// SpeciesSlot returns a slot naming a tracked species.
func SpeciesSlot(i int) Slot { return Slot{Kind: SlotSpecies, Index: i} }

func (s Slot) IsEmpty() bool      { return s.Kind == SlotEmpty }
func (s Slot) IsBackground() bool { return s.Kind == SlotBackground }
func (s Slot) IsSpecies() bool    { return s.Kind == SlotSpecies }

func (s Slot) String() string {
	switch s.Kind {
	case SlotSpecies:
		return fmt.Sprintf("#%d", s.Index)
	case SlotBackground:
		return "M"
	}
	return "-"
}

// Species is one tracked chemical species.
type Species struct {
	Name      string
	Index     int
	AtomCount int
}

// Arity classifies a reaction by its second reactant.
type Arity int

const (
	Unary Arity = iota
	Binary
	BackgroundCatalyzed
)

func (a Arity) String() string {
	switch a {
	case Unary:
		return "unary"
	case Binary:
		return "binary"
	case BackgroundCatalyzed:
		return "background"
	}
	return "unknown"
}

// Reaction is an immutable record of the network.
type Reaction struct {
	ID      int
	In1     Slot
	In2     Slot
	Out     [3]Slot
	Alpha   float64
	Beta    float64
	Gamma   float64
	Formula ratelaw.Formula
}

func (r Reaction) Arity() Arity {
	switch r.In2.Kind {
	case SlotBackground:
		return BackgroundCatalyzed
	case SlotSpecies:
		return Binary
	}
	return Unary
}

// Row is the raw integer form of a reaction as produced by a table reader.
// Zero means an unused slot.
type Row struct {
	ID      int
	In1     int
	In2     int
	Out1    int
	Out2    int
	Out3    int
	Alpha   float64
	Beta    float64
	Gamma   float64
	Formula int
}

// Table is the validated-input contract between readers and the engine.
type Table struct {
	Species         []Species
	Reactions       []Row
	BackgroundIndex int
	// Pool lists the species indices summed for background-catalyzed reactions.
	Pool []int
}

// Network is the read-only reaction network.
type Network struct {
	species   []Species
	byName    map[string]int
	reactions []Reaction
	pool      []int
	atoms     []float64
	n         int
}

// New validates t and builds a Network. The abundance vector length is one
// more than the highest species index; index 0 is the catchall slot.
func New(t Table) (*Network, error) {
	bg := t.BackgroundIndex
	if bg == 0 {
		bg = DefaultBackgroundIndex
	}

	species := make([]Species, len(t.Species))
	copy(species, t.Species)
	sort.Slice(species, func(i, j int) bool { return species[i].Index < species[j].Index })

	byName := make(map[string]int, len(species))
	seen := make(map[int]bool, len(species))
	maxIdx := 0
	for _, s := range species {
		if s.Index <= 0 || s.Index == bg {
			return nil, fmt.Errorf("%w: species %s has reserved index %d", ErrIndexOutOfRange, s.Name, s.Index)
		}
		if _, ok := byName[s.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSpecies, s.Name)
		}
		if seen[s.Index] {
			return nil, fmt.Errorf("%w: index %d", ErrDuplicateSpecies, s.Index)
		}
		byName[s.Name] = s.Index
		seen[s.Index] = true
		if s.Index > maxIdx {
			maxIdx = s.Index
		}
	}

	net := &Network{
		species: species,
		byName:  byName,
		n:       maxIdx + 1,
	}

	net.atoms = make([]float64, net.n)
	for _, s := range species {
		net.atoms[s.Index] = float64(s.AtomCount)
	}

	resolve := func(row, v int) (Slot, error) {
		switch {
		case v == 0:
			return Empty, nil
		case v == bg:
			return Background, nil
		case seen[v]:
			return SpeciesSlot(v), nil
		}
		return Empty, fmt.Errorf("%w: reaction %d references index %d", ErrIndexOutOfRange, row, v)
	}

	inPool := make(map[int]bool, len(t.Pool))
	for _, p := range t.Pool {
		if !seen[p] {
			return nil, fmt.Errorf("%w: pool member %d", ErrIndexOutOfRange, p)
		}
		if inPool[p] {
			return nil, fmt.Errorf("%w: pool member %d listed twice", ErrDuplicateSpecies, p)
		}
		inPool[p] = true
	}
	net.pool = append([]int(nil), t.Pool...)

	net.reactions = make([]Reaction, 0, len(t.Reactions))
	for i, row := range t.Reactions {
		id := row.ID
		if id == 0 {
			id = i + 1
		}
		r := Reaction{ID: id, Alpha: row.Alpha, Beta: row.Beta, Gamma: row.Gamma}

		f, err := ratelaw.ParseFormula(row.Formula)
		if err != nil {
			return nil, fmt.Errorf("reaction %d: %w", id, err)
		}
		r.Formula = f

		slots := []*Slot{&r.In1, &r.In2, &r.Out[0], &r.Out[1], &r.Out[2]}
		for j, v := range []int{row.In1, row.In2, row.Out1, row.Out2, row.Out3} {
			s, err := resolve(id, v)
			if err != nil {
				return nil, err
			}
			*slots[j] = s
		}

		if !r.In1.IsSpecies() {
			return nil, fmt.Errorf("%w: reaction %d", ErrEmptyReactant, id)
		}
		for _, o := range r.Out {
			if o.IsBackground() {
				return nil, fmt.Errorf("%w: reaction %d produces the background pool", ErrIndexOutOfRange, id)
			}
		}
		if r.In2.IsBackground() && len(net.pool) == 0 {
			return nil, fmt.Errorf("%w: reaction %d", ErrEmptyPool, id)
		}

		net.reactions = append(net.reactions, r)
	}

	return net, nil
}

// Len is the abundance vector length, including the catchall slot 0.
func (n *Network) Len() int { return n.n }

func (n *Network) Reactions() []Reaction { return n.reactions }

func (n *Network) Species() []Species { return n.species }

// Pool returns the indices of the background pool members.
func (n *Network) Pool() []int { return n.pool }

// Index returns the vector index of a named species.
func (n *Network) Index(name string) (int, error) {
	i, ok := n.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSpecies, name)
	}
	return i, nil
}

// Names returns species names by vector index; unused indices are empty.
func (n *Network) Names() []string {
	names := make([]string, n.n)
	for _, s := range n.species {
		names[s.Index] = s.Name
	}
	return names
}

// AtomCounts returns atom counts by vector index.
func (n *Network) AtomCounts() []float64 { return n.atoms }

// TotalAtoms is sum(atom_count[i] * y[i]) over tracked species.
func (n *Network) TotalAtoms(y []float64) float64 {
	sum := 0.0
	for _, s := range n.species {
		if s.Index < len(y) {
			sum += n.atoms[s.Index] * y[s.Index]
		}
	}
	return sum
}

// Balance returns the net atom change of a reaction: products minus
// reactants, with the background pool counted as conserved.
func (n *Network) Balance(r Reaction) int {
	atoms := func(s Slot) int {
		if !s.IsSpecies() {
			return 0
		}
		return int(n.atoms[s.Index])
	}
	delta := -atoms(r.In1) - atoms(r.In2)
	for _, o := range r.Out {
		delta += atoms(o)
	}
	return delta
}

// Unbalanced returns the reactions whose Balance is non-zero.
func (n *Network) Unbalanced() []Reaction {
	var out []Reaction
	for _, r := range n.reactions {
		if n.Balance(r) != 0 {
			out = append(out, r)
		}
	}
	return out
}

// Label renders a reaction as "A + B -> C + D" using species names.
func (n *Network) Label(r Reaction) string {
	names := n.Names()
	name := func(s Slot) string {
		switch s.Kind {
		case SlotSpecies:
			return names[s.Index]
		case SlotBackground:
			return "M"
		}
		return ""
	}

	lhs := name(r.In1)
	if !r.In2.IsEmpty() {
		lhs += " + " + name(r.In2)
	}
	rhs := ""
	for _, o := range r.Out {
		if o.IsEmpty() {
			continue
		}
		if rhs != "" {
			rhs += " + "
		}
		rhs += name(o)
	}
	if r.In2.IsBackground() {
		rhs += " + M"
	}
	return lhs + " -> " + rhs
}
