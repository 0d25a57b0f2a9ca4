package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/san-kum/ejecta/internal/config"
	"github.com/san-kum/ejecta/internal/dynamo"
	"github.com/san-kum/ejecta/internal/sim"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv.zst"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Model     string             `json:"model"`
	TimeUnit  string             `json:"time_unit"`
	Timestamp time.Time          `json:"timestamp"`
	Species   []string           `json:"species"`
	Final     map[string]float64 `json:"final_abundances"`
	Metrics   map[string]float64 `json:"metrics"`
	Stats     dynamo.Stats       `json:"stats"`
	Elapsed   float64            `json:"elapsed_seconds"`
	Config    *config.Config     `json:"config"`
}

// Save writes the run directory and returns the run id. names maps vector
// index to species name; index 0 is not stored.
func (s *Store) Save(cfg *config.Config, names []string, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("%s_%s", cfg.Name, uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	cols := columns(names)
	meta := RunMetadata{
		ID:        runID,
		Name:      cfg.Name,
		Model:     cfg.Model,
		TimeUnit:  cfg.TimeUnit,
		Timestamp: time.Now(),
		Species:   cols,
		Final:     make(map[string]float64, len(cols)),
		Metrics:   result.Metrics,
		Stats:     result.Stats,
		Elapsed:   result.Elapsed.Seconds(),
		Config:    cfg,
	}
	for i, name := range cols {
		meta.Final[name] = result.Final[i+1]
	}

	tr := &Trajectory{Species: cols, Times: result.Times, States: make([][]float64, len(result.States))}
	for i, y := range result.States {
		tr.States[i] = y[1:]
	}
	// metadata.json goes last: List only reports directories that have it.
	if err := writeTrajectory(filepath.Join(runDir, trajectoryFile), tr); err != nil {
		os.RemoveAll(runDir)
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		os.RemoveAll(runDir)
		return "", fmt.Errorf("write metadata: %w", err)
	}
	return runID, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadTrajectory(runID string) (*Trajectory, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return ReadCSV(zr)
}

func columns(names []string) []string {
	cols := make([]string, 0, len(names))
	for i := 1; i < len(names); i++ {
		name := names[i]
		if name == "" {
			name = "y" + strconv.Itoa(i)
		}
		cols = append(cols, name)
	}
	return cols
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeTrajectory(path string, tr *Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		f.Close()
		return err
	}
	if err := tr.WriteCSV(zw); err != nil {
		zw.Close()
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Trajectory is a stored run: one row per report time, one column per
// species in Species order.
type Trajectory struct {
	Species []string    `json:"species"`
	Times   []float64   `json:"times"`
	States  [][]float64 `json:"states"`
}

// Series returns the column of a named species.
func (t *Trajectory) Series(name string) ([]float64, error) {
	for j, s := range t.Species {
		if s != name {
			continue
		}
		out := make([]float64, len(t.States))
		for i, row := range t.States {
			out[i] = row[j]
		}
		return out, nil
	}
	return nil, fmt.Errorf("storage: no species %q in trajectory", name)
}

// WriteCSV writes a "time,<species...>" header and one row per report.
func (t *Trajectory) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"time"}, t.Species...)); err != nil {
		return err
	}
	row := make([]string, len(t.Species)+1)
	for i, y := range t.States {
		row[0] = strconv.FormatFloat(t.Times[i], 'g', -1, 64)
		for j, v := range y {
			row[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the format written by WriteCSV.
func ReadCSV(r io.Reader) (*Trajectory, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("trajectory header: %w", err)
	}
	if len(header) == 0 || header[0] != "time" {
		return nil, fmt.Errorf("trajectory header: first column must be time")
	}

	tr := &Trajectory{Species: header[1:]}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(rec))
		for i, field := range rec {
			if vals[i], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("trajectory line %d: %w", line, err)
			}
		}
		tr.Times = append(tr.Times, vals[0])
		tr.States = append(tr.States, vals[1:])
	}
	return tr, nil
}
