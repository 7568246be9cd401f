package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/datastore/entities"
	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/history"
)

// saveHistoryTimeout bounds every database round trip made by the backend.
const saveHistoryTimeout = 5 * time.Second

// HistoryBackend adapts a HistoryRepository to history.Backend.
type HistoryBackend struct {
	repo       HistoryRepository
	maxEntries int
}

var _ history.Backend = (*HistoryBackend)(nil)

// NewHistoryBackend creates a backend trimming the log to maxEntries rows.
func NewHistoryBackend(repo HistoryRepository, maxEntries int) *HistoryBackend {
	if maxEntries <= 0 {
		maxEntries = history.DefaultMaxEntries
	}
	return &HistoryBackend{repo: repo, maxEntries: maxEntries}
}

// Load reads every retained row and the counters. Rows that fail to decode
// are skipped; a failed table read does not discard the other table.
func (b *HistoryBackend) Load() ([]*alerting.Alert, alerting.Statistics, error) {
	ctx, cancel := context.WithTimeout(context.Background(), saveHistoryTimeout)
	defer cancel()

	var errs []error
	var alerts []*alerting.Alert
	rows, err := b.repo.ListHistory(ctx)
	if err != nil {
		errs = append(errs, storageError(err, "load_history"))
	}
	for i := range rows {
		a, err := decodeAlert(rows[i].Payload)
		if err != nil {
			errs = append(errs, storageError(err, "decode_history"))
			continue
		}
		alerts = append(alerts, a)
	}

	stats := alerting.NewStatistics()
	statRows, err := b.repo.ListStatistics(ctx)
	if err != nil {
		errs = append(errs, storageError(err, "load_statistics"))
	} else {
		stats = statisticsFromRows(statRows)
	}
	return alerts, stats, errors.Join(errs...)
}

// Persist applies a commit: a reset clears both tables, an added alert is
// inserted with its changed counters, anything else rewrites the counters.
func (b *HistoryBackend) Persist(c history.Commit) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveHistoryTimeout)
	defer cancel()

	if c.Reset {
		if _, err := b.repo.DeleteHistory(ctx); err != nil {
			return storageError(err, "reset_history")
		}
		if _, err := b.repo.DeleteStatistics(ctx); err != nil {
			return storageError(err, "reset_statistics")
		}
		return nil
	}

	if c.Added == nil {
		if err := b.repo.ReplaceStatistics(ctx, statisticsToRows(c.Stats)); err != nil {
			return storageError(err, "save_statistics")
		}
		return nil
	}

	row, err := alertToRow(c.Added)
	if err != nil {
		return storageError(err, "encode_history")
	}
	if err := b.repo.AppendHistory(ctx, row, b.maxEntries); err != nil {
		return storageError(err, "append_history")
	}
	if err := b.repo.UpsertStatistics(ctx, changedCounters(c.Stats, c.Added)); err != nil {
		return storageError(err, "save_statistics")
	}
	return nil
}

func alertToRow(a *alerting.Alert) (*entities.AlertHistory, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return &entities.AlertHistory{
		AlertID:     a.ID,
		RuleID:      a.RuleID,
		RuleName:    a.RuleName,
		Type:        string(a.Type),
		Severity:    string(a.Severity),
		TriggeredAt: a.TriggeredAt.UTC(),
		Payload:     string(payload),
	}, nil
}

func decodeAlert(payload string) (*alerting.Alert, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var a alerting.Alert
	if err := dec.Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

// changedCounters returns the counter rows an added alert touched.
func changedCounters(s alerting.Statistics, a *alerting.Alert) []entities.AlertStatistic {
	day := a.TriggeredAt.Format(alerting.DayKeyLayout)
	return []entities.AlertStatistic{
		{Dimension: entities.DimensionTotal, Key: "", Count: int64(s.TotalAlerts)},
		{Dimension: entities.DimensionSeverity, Key: string(a.Severity), Count: int64(s.BySeverity[string(a.Severity)])},
		{Dimension: entities.DimensionType, Key: string(a.Type), Count: int64(s.ByType[string(a.Type)])},
		{Dimension: entities.DimensionDay, Key: day, Count: int64(s.ByDay[day])},
		{Dimension: entities.DimensionRule, Key: a.RuleName, Count: int64(s.ByRule[a.RuleName])},
	}
}

func statisticsToRows(s alerting.Statistics) []entities.AlertStatistic {
	rows := []entities.AlertStatistic{{Dimension: entities.DimensionTotal, Count: int64(s.TotalAlerts)}}
	add := func(dim string, m map[string]int) {
		for k, v := range m {
			rows = append(rows, entities.AlertStatistic{Dimension: dim, Key: k, Count: int64(v)})
		}
	}
	add(entities.DimensionSeverity, s.BySeverity)
	add(entities.DimensionType, s.ByType)
	add(entities.DimensionDay, s.ByDay)
	add(entities.DimensionRule, s.ByRule)
	return rows
}

func statisticsFromRows(rows []entities.AlertStatistic) alerting.Statistics {
	s := alerting.NewStatistics()
	for i := range rows {
		r := &rows[i]
		n := int(r.Count)
		switch r.Dimension {
		case entities.DimensionTotal:
			s.TotalAlerts = n
		case entities.DimensionSeverity:
			s.BySeverity[r.Key] = n
		case entities.DimensionType:
			s.ByType[r.Key] = n
		case entities.DimensionDay:
			s.ByDay[r.Key] = n
		case entities.DimensionRule:
			s.ByRule[r.Key] = n
		}
		if r.UpdatedAt.After(s.LastUpdated) {
			s.LastUpdated = r.UpdatedAt
		}
	}
	return s
}

func storageError(err error, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryStorage).
		Context("operation", op).
		Build()
}
