package kida

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/ejecta/internal/network"
)

func speciesLine(name string, charge int, atoms map[int]int, index int) string {
	cols := make([]string, elementColumns)
	for i := range cols {
		cols[i] = fmt.Sprint(atoms[i])
	}
	return fmt.Sprintf("%-10s %d %s %d", name, charge, strings.Join(cols, " "), index)
}

func reactionLine(names [8]string, nums string) string {
	var b strings.Builder
	for i, w := range nameWidths {
		fmt.Fprintf(&b, "%-*s", w, names[i])
	}
	b.WriteString(nums)
	return b.String()
}

const speciesData = `# name charge elements... index
C          0 0 0 0 1 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 2
O          0 0 0 0 0 0 1 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 1
CO         0 0 0 0 1 0 1 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 3
M          0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 99
`

func TestReadSpecies(t *testing.T) {
	species, err := ReadSpecies(strings.NewReader(speciesData))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(species) != 4 {
		t.Fatalf("expected 4 species, got %d", len(species))
	}
	want := network.Species{Name: "CO", Index: 3, AtomCount: 2}
	if species[2] != want {
		t.Errorf("expected %+v, got %+v", want, species[2])
	}
}

func TestReadSpecies_Generated(t *testing.T) {
	line := speciesLine("Si2O2", 0, map[int]int{6: 2, 14: 2}, 7)
	species, err := ReadSpecies(strings.NewReader(line))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if species[0].AtomCount != 4 || species[0].Index != 7 {
		t.Errorf("unexpected %+v", species[0])
	}
}

func TestReadSpecies_Malformed(t *testing.T) {
	tests := []string{
		"C 0 1 2 3",
		strings.Replace(speciesLine("C", 0, map[int]int{3: 7}, 2), " 7 ", " x ", 1),
		speciesLine("C", 0, nil, 2) + "x",
	}
	for _, in := range tests {
		if _, err := ReadSpecies(strings.NewReader(in)); !errors.Is(err, ErrFormat) {
			t.Errorf("%q: expected ErrFormat, got %v", in, err)
		}
	}
}

const nums = " 1.000e-10  0.000e+00  0.000e+00 2.00e+00 0.00e+00 logn  1   10  41000  3   17  1  2"

func TestReadReactions(t *testing.T) {
	species, err := ReadSpecies(strings.NewReader(speciesData))
	if err != nil {
		t.Fatal(err)
	}

	data := strings.Join([]string{
		"# comment",
		reactionLine([8]string{"C", "O"}, nums),
		reactionLine([8]string{"CO", "M", "", "C", "O"}, nums),
		reactionLine([8]string{"CO", "CRP", "", "C", "", "O"}, nums),
		reactionLine([8]string{"C", "O", "", "CO", "Photon"}, nums),
		"",
	}, "\n")

	rows, err := ReadReactions(strings.NewReader(data), species, 99)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}

	want := []network.Row{
		{ID: 17, In1: 2, In2: 1, Out1: 0, Alpha: 1e-10, Formula: 3},
		{ID: 17, In1: 3, In2: 99, Out1: 2, Out2: 1, Alpha: 1e-10, Formula: 3},
		{ID: 17, In1: 3, In2: 0, Out1: 2, Out2: 1, Alpha: 1e-10, Formula: 3},
		{ID: 17, In1: 2, In2: 1, Out1: 3, Alpha: 1e-10, Formula: 3},
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], rows[i])
		}
	}
}

func TestReadReactions_Errors(t *testing.T) {
	species, _ := ReadSpecies(strings.NewReader(speciesData))

	tests := []struct {
		name string
		line string
		want error
	}{
		{"unknown species", reactionLine([8]string{"Fe", "O"}, nums), network.ErrUnknownSpecies},
		{"third reactant", reactionLine([8]string{"C", "O", "O", "CO"}, nums), ErrUnsupported},
		{"fourth product", reactionLine([8]string{"CO", "M", "", "C", "O", "", "C"}, nums), ErrUnsupported},
		{"short line", "C          O", ErrFormat},
		{"missing numbers", reactionLine([8]string{"C", "O"}, " 1e-10 0 0"), ErrFormat},
		{"bad alpha", reactionLine([8]string{"C", "O"}, strings.Replace(nums, "1.000e-10", "abc", 1)), ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadReactions(strings.NewReader(tt.line), species, 99)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	sp := filepath.Join(dir, "species.dat")
	rp := filepath.Join(dir, "reactions.dat")
	if err := os.WriteFile(sp, []byte(speciesData), 0644); err != nil {
		t.Fatal(err)
	}
	reactions := reactionLine([8]string{"C", "O", "", "CO"}, nums) + "\n" +
		reactionLine([8]string{"CO", "M", "", "C", "O"}, nums) + "\n"
	if err := os.WriteFile(rp, []byte(reactions), 0644); err != nil {
		t.Fatal(err)
	}

	net, err := Load(sp, rp, 99, []string{"C", "O"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if net.Len() != 4 {
		t.Errorf("expected vector length 4, got %d", net.Len())
	}
	if got := net.Reactions()[1].Arity(); got != network.BackgroundCatalyzed {
		t.Errorf("expected background reaction, got %v", got)
	}
	if len(net.Unbalanced()) != 0 {
		t.Error("expected a balanced network")
	}

	if _, err := Load(sp, rp, 99, []string{"Si"}); !errors.Is(err, network.ErrUnknownSpecies) {
		t.Errorf("expected unknown pool member error, got %v", err)
	}
	if _, err := Load(filepath.Join(dir, "none"), rp, 99, nil); err == nil {
		t.Error("expected error for missing species file")
	}
}
