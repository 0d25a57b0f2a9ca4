package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	Run        *RunMetadata `json:"run"`
	Trajectory *Trajectory  `json:"trajectory"`
}

func ExportJSON(w io.Writer, meta *RunMetadata, tr *Trajectory) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Run: meta, Trajectory: tr})
}

func ExportCSV(w io.Writer, tr *Trajectory) error {
	return tr.WriteCSV(w)
}
