// Package history keeps a bounded log of fired alerts together with lifetime
// statistics and persists both through a pluggable Backend.
package history

import (
	"slices"
	"sync"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/observability/metrics"
)

// DefaultMaxEntries bounds the retained log.
const DefaultMaxEntries = 10000

// Commit describes one state change handed to a Backend. Entries is the full
// retained log after the change, oldest first.
type Commit struct {
	Entries []*alerting.Alert
	// Added is the alert appended by this change, nil for a reset.
	Added *alerting.Alert
	// Evicted is the number of oldest entries dropped by this change.
	Evicted int
	Stats   alerting.Statistics
	// Reset is set when the log and counters were cleared.
	Reset bool
}

// Backend is durable storage for the history log and statistics. Load
// returns whatever it could read alongside an error for the rest.
type Backend interface {
	Load() ([]*alerting.Alert, alerting.Statistics, error)
	Persist(c Commit) error
}

// Store is the bounded alert log. It satisfies alerting.HistoryRecorder.
type Store struct {
	mu         sync.RWMutex
	entries    []*alerting.Alert
	stats      alerting.Statistics
	maxEntries int
	backend    Backend
	log        logger.Logger
	metrics    *metrics.Metrics
}

// Option customizes a Store.
type Option func(*Store)

// WithMetrics records persistence outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a store and loads prior state from backend. Load failures
// are logged and the store starts empty. A nil backend keeps state in memory.
func NewStore(backend Backend, maxEntries int, log logger.Logger, opts ...Option) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &Store{
		stats:      alerting.NewStatistics(),
		maxEntries: maxEntries,
		backend:    backend,
		log:        log.Module("history"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s
}

func (s *Store) load() {
	if s.backend == nil {
		return
	}
	entries, stats, err := s.backend.Load()
	if err != nil {
		s.log.Error("alert history not fully loaded, continuing with what was read", logger.Error(err))
	}

	// Lifetime counters never fall below what the loaded log itself records.
	repaired := stats.RaiseTo(alerting.StatisticsFrom(entries))

	if over := len(entries) - s.maxEntries; over > 0 {
		entries = entries[over:]
	}
	s.entries = entries
	s.stats = stats.Clone()
	if repaired {
		s.log.Warn("alert statistics behind the history log, rebuilt from retained entries",
			logger.Int("entries", len(entries)),
			logger.Int("total_alerts", s.stats.TotalAlerts))
		s.persistLocked(Commit{})
	}
	s.log.Info("alert history loaded",
		logger.Int("entries", len(entries)),
		logger.Int("total_alerts", s.stats.TotalAlerts))
}

// AddAlert appends a copy of alert, evicts the oldest entries beyond the
// bound, bumps the lifetime counters and persists the result.
func (s *Store) AddAlert(alert *alerting.Alert) {
	if alert == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := alert.Clone()
	s.entries = append(s.entries, entry)
	evicted := 0
	if over := len(s.entries) - s.maxEntries; over > 0 {
		evicted = over
		s.entries = slices.Delete(s.entries, 0, over)
	}
	s.stats.Record(entry)

	s.persistLocked(Commit{Added: entry, Evicted: evicted})
}

// Clear drops the log and resets the counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.stats = alerting.NewStatistics()
	s.persistLocked(Commit{Reset: true})
	s.log.Info("alert history cleared")
}

// RebuildStatistics recomputes the counters from the retained log, dropping
// lifetime totals for evicted entries.
func (s *Store) RebuildStatistics() alerting.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = alerting.StatisticsFrom(s.entries)
	s.persistLocked(Commit{})
	return s.stats.Clone()
}

func (s *Store) persistLocked(c Commit) {
	if s.backend == nil {
		return
	}
	c.Entries = s.entries
	c.Stats = s.stats.Clone()
	if err := s.backend.Persist(c); err != nil {
		s.metrics.HistoryWrite(false, len(s.entries))
		s.log.Error("failed to persist alert history", logger.Error(err))
		return
	}
	s.metrics.HistoryWrite(true, len(s.entries))
}

// GetRecentAlerts returns up to limit entries, newest first. A non-positive
// limit returns every retained entry.
func (s *Store) GetRecentAlerts(limit int) []alerting.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]alerting.Alert, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, *s.entries[i].Clone())
	}
	return out
}

// GetAlertsByRule returns up to limit entries for ruleID, newest first.
func (s *Store) GetAlertsByRule(ruleID string, limit int) []alerting.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []alerting.Alert
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].RuleID != ruleID {
			continue
		}
		out = append(out, *s.entries[i].Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// GetStatistics returns a copy of the lifetime counters.
func (s *Store) GetStatistics() alerting.Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.Clone()
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
