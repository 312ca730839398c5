package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"degenmint/internal/registry"
)

// DeadLetter stores requests whose finalization gave up, one JSON file per
// entry, so an operator can inspect and replay them.
type DeadLetter struct {
	dir string
	now func() time.Time
}

type DeadLetterEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	Request   registry.Request `json:"request"`
	Error     string           `json:"error"`
}

func NewDeadLetter(dir string) *DeadLetter {
	return &DeadLetter{dir: dir, now: time.Now}
}

func (d *DeadLetter) Write(req registry.Request, cause error) error {
	if d == nil || d.dir == "" {
		return nil
	}

	entry := DeadLetterEntry{
		Timestamp: d.now().UTC(),
		Request:   req,
		Error:     cause.Error(),
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("dlq marshal: %w", err)
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("dlq mkdir: %w", err)
	}

	filename := fmt.Sprintf("%d-%s.json", entry.Timestamp.UnixNano(), req.ID)
	if err := os.WriteFile(filepath.Join(d.dir, filename), data, 0o600); err != nil {
		return fmt.Errorf("dlq write: %w", err)
	}
	return nil
}

// Depth counts entries; a missing directory is empty.
func (d *DeadLetter) Depth() int {
	if d == nil || d.dir == "" {
		return 0
	}
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			n++
		}
	}
	return n
}

// List returns the stored entries oldest first.
func (d *DeadLetter) List() ([]DeadLetterEntry, error) {
	if d == nil || d.dir == "" {
		return nil, nil
	}
	files, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dlq read: %w", err)
	}
	var entries []DeadLetterEntry
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("dlq read %s: %w", f.Name(), err)
		}
		var entry DeadLetterEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("dlq decode %s: %w", f.Name(), err)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}
