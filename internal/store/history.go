package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const historyFilename = "history.json"

type JobStatus string

const (
	StatusSuccess JobStatus = "Success"
	StatusFailed  JobStatus = "Failed"
)

// A HistoryEntry records one terminal job outcome. Entries are append-only and
// never mutated after being written.
type HistoryEntry struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	OutputPath string    `json:"outfile"`
	Format     string    `json:"format"`
	Quality    string    `json:"quality"`
	Timestamp  time.Time `json:"timestamp"`
	Status     JobStatus `json:"status"`
}

// HistoryStore keeps the completed-job history as a JSON array. Appends are
// serialized by a single writer lock, since multiple pipelines may finish
// concurrently.
type HistoryStore struct {
	path string
	mu   sync.Mutex
	log  *zap.SugaredLogger
}

func NewHistoryStore(dir string) *HistoryStore {
	return &HistoryStore{
		path: filepath.Join(dir, historyFilename),
		log:  zap.S().Named("history"),
	}
}

// Load returns all recorded entries. A corrupted file is backed up alongside
// the original and replaced with an empty history rather than failing.
func (h *HistoryStore) Load() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadLocked()
}

func (h *HistoryStore) loadLocked() []HistoryEntry {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if !os.IsNotExist(err) {
			h.log.Warnw("cannot read history", "path", h.path, "error", err)
		}
		return nil
	}
	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%s", h.path, time.Now().UTC().Format("20060102T150405Z"))
		if renameErr := os.Rename(h.path, backup); renameErr != nil {
			h.log.Warnw("cannot back up corrupted history", "path", h.path, "error", renameErr)
		} else {
			h.log.Warnw("history file corrupted, backed up and reset", "backup", backup, "error", err)
		}
		return nil
	}
	return entries
}

// Append records one terminal job outcome. The rewrite is atomic with respect
// to concurrent shutdown: a crash mid-append cannot corrupt previously
// recorded entries.
func (h *HistoryStore) Append(entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := append(h.loadLocked(), entry)
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(h.path, data)
}
