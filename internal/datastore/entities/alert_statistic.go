package entities

import "time"

// Statistic dimensions stored in alert_statistics.
const (
	DimensionTotal    = "total"
	DimensionSeverity = "severity"
	DimensionType     = "type"
	DimensionDay      = "day"
	DimensionRule     = "rule"
)

// AlertStatistic is one lifetime counter, keyed by dimension and bucket.
// The total counter uses DimensionTotal with an empty key.
type AlertStatistic struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Dimension string    `gorm:"size:16;not null;uniqueIndex:idx_alert_statistics_dim_key,priority:1" json:"dimension"`
	Key       string    `gorm:"column:bucket;size:255;not null;default:'';uniqueIndex:idx_alert_statistics_dim_key,priority:2" json:"key"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (AlertStatistic) TableName() string {
	return "alert_statistics"
}
