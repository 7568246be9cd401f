// Package repository provides gorm-backed access to the alert history tables.
package repository

import (
	"context"

	"github.com/tphakala/vigil/internal/datastore/entities"
)

// HistoryRepository stores alert log rows and lifetime counters.
type HistoryRepository interface {
	// ListHistory returns retained rows oldest first.
	ListHistory(ctx context.Context) ([]entities.AlertHistory, error)
	// AppendHistory inserts row and deletes the oldest rows beyond maxEntries.
	AppendHistory(ctx context.Context, row *entities.AlertHistory, maxEntries int) error
	CountHistory(ctx context.Context) (int64, error)
	DeleteHistory(ctx context.Context) (int64, error)

	ListStatistics(ctx context.Context) ([]entities.AlertStatistic, error)
	// UpsertStatistics writes the given counters and leaves the rest alone.
	UpsertStatistics(ctx context.Context, stats []entities.AlertStatistic) error
	// ReplaceStatistics makes the stored counters equal to stats.
	ReplaceStatistics(ctx context.Context, stats []entities.AlertStatistic) error
	DeleteStatistics(ctx context.Context) (int64, error)
}
