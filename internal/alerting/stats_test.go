package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatistics_RaiseTo(t *testing.T) {
	t.Parallel()

	s := NewStatistics()
	s.TotalAlerts = 5
	s.BySeverity["high"] = 5

	floor := NewStatistics()
	floor.TotalAlerts = 3
	floor.BySeverity["high"] = 2
	floor.BySeverity["low"] = 1
	floor.ByRule["cpu"] = 3

	assert.True(t, s.RaiseTo(floor))
	assert.Equal(t, 5, s.TotalAlerts)
	assert.Equal(t, 5, s.BySeverity["high"])
	assert.Equal(t, 1, s.BySeverity["low"])
	assert.Equal(t, 3, s.ByRule["cpu"])

	assert.False(t, s.RaiseTo(floor), "already at or above the floor")
}
