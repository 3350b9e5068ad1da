package audit

import (
	"SentinelQoS/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Summary describes one exported batch file.
type Summary struct {
	File           string `json:"file"`
	Investigations int    `json:"investigations"`
	Simulated      int    `json:"simulated"`
	Timestamp      string `json:"timestamp"`
}

// FileWriter writes each batch to a timestamped JSON Lines file and
// refreshes summary.json with the details of the last batch.
type FileWriter struct {
	root string
	now  func() time.Time
}

// NewFileWriter creates a file writer rooted at dir.
func NewFileWriter(dir string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &FileWriter{root: dir, now: time.Now}, nil
}

// WriteInvestigations implements model.InvestigationWriter.
func (w *FileWriter) WriteInvestigations(_ context.Context, investigations []model.Investigation) error {
	if len(investigations) == 0 {
		return nil
	}

	ts := w.now().UTC()
	name := fmt.Sprintf("investigations_%s.jsonl", ts.Format("2006-01-02_15-04-05.000"))
	path := filepath.Join(w.root, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit file '%s': %w", path, err)
	}
	defer file.Close()

	simulated := 0
	encoder := json.NewEncoder(file)
	for _, inv := range investigations {
		if inv.Vanguard.Simulated {
			simulated++
		}
		if err := encoder.Encode(inv); err != nil {
			return fmt.Errorf("failed to encode investigation %s: %w", inv.FlowID, err)
		}
	}

	summary := Summary{
		File:           name,
		Investigations: len(investigations),
		Simulated:      simulated,
		Timestamp:      ts.Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.root, "summary.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}
