package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/ejecta/internal/config"
	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/sim"
)

func testResult() *sim.Result {
	states := []dynamo.State{
		{0, 1.0, 0.0},
		{0, 0.5, 0.25},
		{0, 1.0 / 3, 1.0 / 3},
	}
	return &sim.Result{
		Times:   []float64{0.1, 2.55, 5},
		States:  states,
		Final:   states[2],
		Stats:   dynamo.Stats{Steps: 42, Rejected: 1, Order: 3},
		Metrics: map[string]float64{"atom_drift": 1e-15},
		Elapsed: 3 * time.Millisecond,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg := config.GetPreset("constant-density", "dimer")
	runID, err := st.Save(cfg, []string{"", "A", "B"}, testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(runID, "constant-density-dimer_") || len(runID) != len("constant-density-dimer_")+8 {
		t.Errorf("unexpected run id %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Model != "constant-density" {
		t.Errorf("expected model constant-density, got %s", meta.Model)
	}
	if !reflect.DeepEqual(meta.Species, []string{"A", "B"}) {
		t.Errorf("unexpected species %v", meta.Species)
	}
	if meta.Final["B"] != 1.0/3 {
		t.Errorf("expected final B 1/3, got %v", meta.Final["B"])
	}
	if meta.Stats.Steps != 42 || meta.Metrics["atom_drift"] != 1e-15 {
		t.Errorf("stats or metrics lost: %+v %v", meta.Stats, meta.Metrics)
	}
	if meta.Config == nil || meta.Config.ReferenceDensity != 1e10 {
		t.Error("config echo missing")
	}

	tr, err := st.LoadTrajectory(runID)
	if err != nil {
		t.Fatalf("load trajectory failed: %v", err)
	}
	want := &Trajectory{
		Species: []string{"A", "B"},
		Times:   []float64{0.1, 2.55, 5},
		States:  [][]float64{{1, 0}, {0.5, 0.25}, {1.0 / 3, 1.0 / 3}},
	}
	if !reflect.DeepEqual(tr, want) {
		t.Errorf("trajectory mismatch:\nwant %+v\ngot  %+v", want, tr)
	}

	b, err := tr.Series("B")
	if err != nil || b[1] != 0.25 {
		t.Errorf("series B: %v %v", b, err)
	}
	if _, err := tr.Series("C"); err == nil {
		t.Error("expected error for unknown species")
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if runs, err := st.List(); err != nil || len(runs) != 0 {
		t.Fatalf("expected empty list, got %v %v", runs, err)
	}

	cfg := config.GetPreset("constant-density", "dimer")
	for i := 0; i < 2; i++ {
		if _, err := st.Save(cfg, []string{"", "A", "B"}, testResult()); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID == runs[1].ID {
		t.Error("run ids must be unique")
	}
	if runs[0].Timestamp.Before(runs[1].Timestamp) {
		t.Error("runs should be newest first")
	}
}

func TestStoreSaveFailureLeavesNoRun(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	res := testResult()
	res.Metrics["atom_drift"] = math.NaN()
	if _, err := st.Save(config.GetPreset("constant-density", "dimer"), []string{"", "A", "B"}, res); err == nil {
		t.Fatal("expected NaN metric to fail the metadata write")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no run directory after a failed save, found %d entries", len(entries))
	}
	if runs, err := st.List(); err != nil || len(runs) != 0 {
		t.Errorf("expected empty list, got %v %v", runs, err)
	}
}

func TestStoreNotFound(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := st.LoadTrajectory("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestUnnamedColumns(t *testing.T) {
	got := columns([]string{"", "A", "", "C"})
	if !reflect.DeepEqual(got, []string{"A", "y2", "C"}) {
		t.Errorf("unexpected columns %v", got)
	}
}

func TestExportCSV(t *testing.T) {
	tr := &Trajectory{
		Species: []string{"A", "B"},
		Times:   []float64{0, 1},
		States:  [][]float64{{1, 0}, {0.5, 1e-13}},
	}

	var buf bytes.Buffer
	if err := ExportCSV(&buf, tr); err != nil {
		t.Fatal(err)
	}
	want := "time,A,B\n0,1,0\n1,0.5,1e-13\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}

	back, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, tr) {
		t.Errorf("csv round trip mismatch: %+v", back)
	}
}

func TestReadCSVErrors(t *testing.T) {
	for _, in := range []string{"", "t,A\n0,1\n", "time,A\n0,x\n"} {
		if _, err := ReadCSV(strings.NewReader(in)); err == nil {
			t.Errorf("%q: expected error", in)
		}
	}
}

func TestExportJSON(t *testing.T) {
	meta := &RunMetadata{ID: "r1", Name: "dimer", Species: []string{"A"}}
	tr := &Trajectory{Species: []string{"A"}, Times: []float64{0}, States: [][]float64{{1}}}

	var buf bytes.Buffer
	if err := ExportJSON(&buf, meta, tr); err != nil {
		t.Fatal(err)
	}

	var got ExportData
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Run.ID != "r1" || got.Trajectory.States[0][0] != 1 {
		t.Errorf("unexpected export %+v", got)
	}
}
