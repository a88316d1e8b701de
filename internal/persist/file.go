package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stupiduntilnot/chousei/internal/history"
)

type wireRecord struct {
	Timestamp string `json:"timestamp"`
	Author    string `json:"author"`
	Text      string `json:"text"`
}

// FileBackend keeps the whole state in one JSON file, replaced atomically on
// every save.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the state file. A missing file is a normal first boot and
// returns an empty state with no error. Anything else that prevents decoding
// also returns an empty state, plus the error that forced the reset.
func (b *FileBackend) Load() (map[string][]history.MessageRecord, error) {
	empty := map[string][]history.MessageRecord{}

	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("read state file %s: %w", b.path, err)
	}

	var wire map[string][]wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return empty, fmt.Errorf("decode state file %s: %w", b.path, err)
	}

	state := make(map[string][]history.MessageRecord, len(wire))
	for id, log := range wire {
		recs := make([]history.MessageRecord, 0, len(log))
		for _, w := range log {
			recs = append(recs, history.MessageRecord{
				Timestamp: parseTime(w.Timestamp),
				Author:    w.Author,
				Text:      w.Text,
			})
		}
		state[id] = recs
	}
	return state, nil
}

// Save writes the full state to a temporary file in the same directory and
// renames it over the canonical path, so a crash mid-write leaves the
// previous valid file intact.
func (b *FileBackend) Save(state map[string][]history.MessageRecord) error {
	wire := make(map[string][]wireRecord, len(state))
	for id, log := range state {
		recs := make([]wireRecord, 0, len(log))
		for _, r := range log {
			recs = append(recs, wireRecord{
				Timestamp: formatTime(r.Timestamp),
				Author:    r.Author,
				Text:      r.Text,
			})
		}
		wire[id] = recs
	}

	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file %s: %w", b.path, err)
	}
	return nil
}
