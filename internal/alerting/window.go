package alerting

import (
	"sync"
	"time"
)

const (
	// DefaultWindowSize is the number of snapshots a window keeps.
	DefaultWindowSize = 120
	// DefaultWindowAge is the maximum age of a retained snapshot.
	DefaultWindowAge = 30 * time.Minute
)

type timedSnapshot struct {
	data      Snapshot
	timestamp time.Time
}

// SnapshotWindow keeps recent snapshots for lookback operators. History is
// returned oldest first; the last element is the most recent.
type SnapshotWindow struct {
	mu      sync.RWMutex
	samples []timedSnapshot
	maxSize int
	maxAge  time.Duration
}

// NewSnapshotWindow creates a window. Non-positive arguments use the defaults.
func NewSnapshotWindow(maxSize int, maxAge time.Duration) *SnapshotWindow {
	if maxSize <= 0 {
		maxSize = DefaultWindowSize
	}
	if maxAge <= 0 {
		maxAge = DefaultWindowAge
	}
	return &SnapshotWindow{maxSize: maxSize, maxAge: maxAge}
}

// Record appends a snapshot and evicts stale or excess entries.
func (w *SnapshotWindow) Record(s Snapshot, timestamp time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, timedSnapshot{data: s, timestamp: timestamp})

	cutoff := timestamp.Add(-w.maxAge)
	start := 0
	for start < len(w.samples) && w.samples[start].timestamp.Before(cutoff) {
		start++
	}
	if over := len(w.samples) - start - w.maxSize; over > 0 {
		start += over
	}
	if start > 0 {
		w.samples = append([]timedSnapshot(nil), w.samples[start:]...)
	}
}

// History returns the retained snapshots, oldest first.
func (w *SnapshotWindow) History() []Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Snapshot, len(w.samples))
	for i, s := range w.samples {
		out[i] = s.data
	}
	return out
}

func (w *SnapshotWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.samples)
}
