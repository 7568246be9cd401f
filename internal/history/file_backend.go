package history

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/errors"
)

const (
	HistoryFileName = "alert_history.json"
	StatsFileName   = "alert_stats.json"
)

// FileBackend stores the log and the counters as two JSON documents under a
// directory. Each write replaces the file atomically.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("history").
			Category(errors.CategoryStorage).
			Context("operation", "create_storage_dir").
			Context("dir", dir).
			Build()
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) historyPath() string { return filepath.Join(b.dir, HistoryFileName) }
func (b *FileBackend) statsPath() string   { return filepath.Join(b.dir, StatsFileName) }

// Load reads both files independently. Missing files yield empty state and
// an unreadable file does not discard the other one; the returned error
// describes whatever could not be read. Numbers inside alert data are
// decoded as json.Number so they round-trip unchanged.
func (b *FileBackend) Load() ([]*alerting.Alert, alerting.Statistics, error) {
	var entries []*alerting.Alert
	histErr := readJSON(b.historyPath(), &entries)
	if histErr != nil {
		entries = nil
	}

	stats := alerting.NewStatistics()
	statsErr := readJSON(b.statsPath(), &stats)
	if statsErr != nil {
		stats = alerting.NewStatistics()
	}
	return entries, stats.Clone(), errors.Join(histErr, statsErr)
}

// Persist rewrites both files from the commit.
func (b *FileBackend) Persist(c Commit) error {
	entries := c.Entries
	if entries == nil {
		entries = []*alerting.Alert{}
	}
	if err := writeJSONAtomic(b.historyPath(), entries); err != nil {
		return err
	}
	return writeJSONAtomic(b.statsPath(), c.Stats)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return storageError(err, "read", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return storageError(err, "decode", path)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return storageError(err, "encode", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return storageError(err, "create_temp", path)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return storageError(err, "write", path)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return storageError(err, "sync", path)
	}
	if err := tmp.Close(); err != nil {
		return storageError(err, "close", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return storageError(err, "rename", path)
	}
	return nil
}

func storageError(err error, op, path string) error {
	return errors.New(err).
		Component("history").
		Category(errors.CategoryStorage).
		Context("operation", op).
		Context("path", path).
		Build()
}
