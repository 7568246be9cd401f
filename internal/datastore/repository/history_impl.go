package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/vigil/internal/datastore/entities"
)

// historyRepository implements HistoryRepository.
type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// ListHistory returns every retained row ordered by insertion.
func (r *historyRepository) ListHistory(ctx context.Context) ([]entities.AlertHistory, error) {
	var rows []entities.AlertHistory
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	return rows, nil
}

// AppendHistory inserts a row and trims the table to maxEntries rows in one
// transaction. A non-positive maxEntries disables trimming.
func (r *historyRepository) AppendHistory(ctx context.Context, row *entities.AlertHistory, maxEntries int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to save alert history: %w", err)
		}
		if maxEntries <= 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&entities.AlertHistory{}).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count alert history: %w", err)
		}
		excess := int(count) - maxEntries
		if excess <= 0 {
			return nil
		}

		var ids []uint
		if err := tx.Model(&entities.AlertHistory{}).Order("id ASC").Limit(excess).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("failed to select evicted alert history: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&entities.AlertHistory{}).Error; err != nil {
			return fmt.Errorf("failed to evict alert history: %w", err)
		}
		return nil
	})
}

// CountHistory returns the number of retained rows.
func (r *historyRepository) CountHistory(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.AlertHistory{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count alert history: %w", err)
	}
	return count, nil
}

// DeleteHistory removes every row.
func (r *historyRepository) DeleteHistory(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&entities.AlertHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete alert history: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListStatistics returns every stored counter.
func (r *historyRepository) ListStatistics(ctx context.Context) ([]entities.AlertStatistic, error) {
	var stats []entities.AlertStatistic
	if err := r.db.WithContext(ctx).Order("dimension ASC, bucket ASC").Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert statistics: %w", err)
	}
	return stats, nil
}

// UpsertStatistics writes the given counters, leaving others untouched.
func (r *historyRepository) UpsertStatistics(ctx context.Context, stats []entities.AlertStatistic) error {
	if len(stats) == 0 {
		return nil
	}
	if err := upsertStatistics(r.db.WithContext(ctx), stats); err != nil {
		return fmt.Errorf("failed to save alert statistics: %w", err)
	}
	return nil
}

func upsertStatistics(tx *gorm.DB, stats []entities.AlertStatistic) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dimension"}, {Name: "bucket"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "updated_at"}),
	}).CreateInBatches(&stats, 200).Error
}

// ReplaceStatistics upserts the counters and deletes stale ones, so the
// table mirrors stats exactly.
func (r *historyRepository) ReplaceStatistics(ctx context.Context, stats []entities.AlertStatistic) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(stats) == 0 {
			if err := tx.Where("1 = 1").Delete(&entities.AlertStatistic{}).Error; err != nil {
				return fmt.Errorf("failed to clear alert statistics: %w", err)
			}
			return nil
		}

		if err := upsertStatistics(tx, stats); err != nil {
			return fmt.Errorf("failed to save alert statistics: %w", err)
		}

		var existing []entities.AlertStatistic
		if err := tx.Select("id", "dimension", "bucket").Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to list alert statistics: %w", err)
		}
		keep := make(map[[2]string]bool, len(stats))
		for i := range stats {
			keep[[2]string{stats[i].Dimension, stats[i].Key}] = true
		}
		var stale []uint
		for i := range existing {
			if !keep[[2]string{existing[i].Dimension, existing[i].Key}] {
				stale = append(stale, existing[i].ID)
			}
		}
		if len(stale) > 0 {
			if err := tx.Where("id IN ?", stale).Delete(&entities.AlertStatistic{}).Error; err != nil {
				return fmt.Errorf("failed to prune alert statistics: %w", err)
			}
		}
		return nil
	})
}

// DeleteStatistics removes every counter.
func (r *historyRepository) DeleteStatistics(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&entities.AlertStatistic{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete alert statistics: %w", result.Error)
	}
	return result.RowsAffected, nil
}
