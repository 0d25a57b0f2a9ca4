// Package kida reads species and reaction tables in the fixed-column
// format of the KInetic Database for Astrochemistry.
package kida

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/ejecta/internal/network"
)

var (
	ErrFormat      = errors.New("kida: malformed line")
	ErrUnsupported = errors.New("kida: unsupported reaction shape")
)

// BackgroundName is the reactant name of the background pool.
const BackgroundName = "M"

// Name column widths: three reactants then five products.
var nameWidths = [8]int{11, 11, 12, 11, 11, 11, 11, 12}

const namesWidth = 90

// elementColumns is the number of per-element count columns in a species row.
const elementColumns = 22

var pseudoSpecies = map[string]bool{
	"Photon": true,
	"CR":     true,
	"CRP":    true,
	"CRPHOT": true,
}

// ReadSpecies parses rows of "name charge e1 .. e22 index". The atom count
// of a species is the sum of its element columns.
func ReadSpecies(r io.Reader) ([]network.Species, error) {
	var out []network.Species
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f := strings.Fields(text)
		if len(f) < elementColumns+3 {
			return nil, fmt.Errorf("%w: species line %d has %d columns", ErrFormat, line, len(f))
		}

		atoms := 0
		for _, col := range f[2 : 2+elementColumns] {
			n, err := strconv.Atoi(col)
			if err != nil {
				return nil, fmt.Errorf("%w: species line %d: %v", ErrFormat, line, err)
			}
			atoms += n
		}
		idx, err := strconv.Atoi(f[2+elementColumns])
		if err != nil {
			return nil, fmt.Errorf("%w: species line %d index: %v", ErrFormat, line, err)
		}
		out = append(out, network.Species{Name: f[0], Index: idx, AtomCount: atoms})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadReactions parses reaction rows against species. Names resolve to
// species indices; pseudo-species become empty slots and BackgroundName or
// the species holding bgIndex becomes the background slot.
func ReadReactions(r io.Reader, species []network.Species, bgIndex int) ([]network.Row, error) {
	index := make(map[string]int, len(species))
	for _, s := range species {
		index[s.Name] = s.Index
	}
	resolve := func(line int, name string) (int, error) {
		switch {
		case name == "" || pseudoSpecies[name]:
			return 0, nil
		case name == BackgroundName:
			return bgIndex, nil
		}
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("line %d: %w: %s", line, network.ErrUnknownSpecies, name)
		}
		return i, nil
	}

	var rows []network.Row
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if len(text) < namesWidth {
			return nil, fmt.Errorf("%w: reaction line %d is %d characters", ErrFormat, line, len(text))
		}

		var idx [8]int
		pos := 0
		for i, w := range nameWidths {
			name := strings.TrimSpace(text[pos : pos+w])
			pos += w
			v, err := resolve(line, name)
			if err != nil {
				return nil, err
			}
			idx[i] = v
		}
		if idx[2] != 0 || idx[6] != 0 || idx[7] != 0 {
			return nil, fmt.Errorf("%w: line %d has a third reactant or more than three products", ErrUnsupported, line)
		}

		row := network.Row{In1: idx[0], In2: idx[1]}
		if row.In1 == 0 {
			row.In1, row.In2 = row.In2, 0
		}
		var outs []int
		for _, v := range idx[3:6] {
			if v != 0 {
				outs = append(outs, v)
			}
		}
		for len(outs) < 3 {
			outs = append(outs, 0)
		}
		row.Out1, row.Out2, row.Out3 = outs[0], outs[1], outs[2]

		if err := parseNumbers(&row, strings.Fields(text[namesWidth:])); err != nil {
			return nil, fmt.Errorf("%w: reaction line %d: %v", ErrFormat, line, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// parseNumbers reads alpha beta gamma F g unc itype Tlo Thi formula number.
func parseNumbers(row *network.Row, f []string) error {
	if len(f) < 11 {
		return fmt.Errorf("expected at least 11 numeric columns, got %d", len(f))
	}
	var err error
	for i, dst := range []*float64{&row.Alpha, &row.Beta, &row.Gamma} {
		if *dst, err = strconv.ParseFloat(f[i], 64); err != nil {
			return err
		}
	}
	if row.Formula, err = strconv.Atoi(f[9]); err != nil {
		return err
	}
	if row.ID, err = strconv.Atoi(f[10]); err != nil {
		return err
	}
	return nil
}

// Load reads both files and builds a network with the named pool members.
func Load(speciesPath, reactionsPath string, bgIndex int, pool []string) (*network.Network, error) {
	sf, err := os.Open(speciesPath)
	if err != nil {
		return nil, err
	}
	defer sf.Close()
	species, err := ReadSpecies(sf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", speciesPath, err)
	}

	rf, err := os.Open(reactionsPath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()
	rows, err := ReadReactions(rf, species, bgIndex)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", reactionsPath, err)
	}

	// A species row holding the background index only names the pool.
	tracked := species[:0:0]
	for _, s := range species {
		if s.Index != bgIndex {
			tracked = append(tracked, s)
		}
	}

	poolIdx, err := PoolIndices(tracked, pool)
	if err != nil {
		return nil, err
	}
	return network.New(network.Table{
		Species:         tracked,
		Reactions:       rows,
		BackgroundIndex: bgIndex,
		Pool:            poolIdx,
	})
}

// PoolIndices maps pool member names to species indices.
func PoolIndices(species []network.Species, names []string) ([]int, error) {
	out := make([]int, 0, len(names))
	for _, name := range names {
		found := false
		for _, s := range species {
			if s.Name == name {
				out = append(out, s.Index)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("background pool: %w: %s", network.ErrUnknownSpecies, name)
		}
	}
	return out, nil
}
