package alerting

import (
	"maps"
	"time"
)

// DayKeyLayout formats the per-day statistics bucket.
const DayKeyLayout = "2006-01-02"

// Statistics are lifetime counters over every alert ever recorded. They are
// not decremented when old entries are evicted from the history log.
type Statistics struct {
	TotalAlerts int            `json:"total_alerts"`
	BySeverity  map[string]int `json:"by_severity"`
	ByType      map[string]int `json:"by_type"`
	ByDay       map[string]int `json:"by_day"`
	ByRule      map[string]int `json:"by_rule"`
	LastUpdated time.Time      `json:"last_updated"`
}

// NewStatistics returns zeroed counters with initialized maps.
func NewStatistics() Statistics {
	return Statistics{
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
		ByDay:      make(map[string]int),
		ByRule:     make(map[string]int),
	}
}

// Record counts a into the statistics.
func (s *Statistics) Record(a *Alert) {
	s.ensureMaps()
	s.TotalAlerts++
	s.BySeverity[string(a.Severity)]++
	s.ByType[string(a.Type)]++
	s.ByDay[a.TriggeredAt.Format(DayKeyLayout)]++
	s.ByRule[a.RuleName]++
	s.LastUpdated = time.Now()
}

func (s *Statistics) ensureMaps() {
	if s.BySeverity == nil {
		s.BySeverity = make(map[string]int)
	}
	if s.ByType == nil {
		s.ByType = make(map[string]int)
	}
	if s.ByDay == nil {
		s.ByDay = make(map[string]int)
	}
	if s.ByRule == nil {
		s.ByRule = make(map[string]int)
	}
}

// Clone returns an independent copy.
func (s Statistics) Clone() Statistics {
	c := s
	c.BySeverity = maps.Clone(s.BySeverity)
	c.ByType = maps.Clone(s.ByType)
	c.ByDay = maps.Clone(s.ByDay)
	c.ByRule = maps.Clone(s.ByRule)
	c.ensureMaps()
	return c
}

// RaiseTo lifts every counter in s that is below the matching counter in
// floor and reports whether any counter changed.
func (s *Statistics) RaiseTo(floor Statistics) bool {
	s.ensureMaps()
	changed := false
	if s.TotalAlerts < floor.TotalAlerts {
		s.TotalAlerts = floor.TotalAlerts
		changed = true
	}
	for _, pair := range [][2]map[string]int{
		{s.BySeverity, floor.BySeverity},
		{s.ByType, floor.ByType},
		{s.ByDay, floor.ByDay},
		{s.ByRule, floor.ByRule},
	} {
		for k, v := range pair[1] {
			if pair[0][k] < v {
				pair[0][k] = v
				changed = true
			}
		}
	}
	return changed
}

// StatisticsFrom derives counters from a list of alerts.
func StatisticsFrom(alerts []*Alert) Statistics {
	s := NewStatistics()
	for _, a := range alerts {
		s.Record(a)
	}
	return s
}

// ManagerStatistics combines lifetime history counters with a live tally of
// the manager's currently active alerts.
type ManagerStatistics struct {
	Statistics
	ActiveAlerts     int              `json:"active_alerts"`
	ActiveBySeverity map[Severity]int `json:"active_by_severity"`
	TotalRules       int              `json:"total_rules"`
	EnabledRules     int              `json:"enabled_rules"`
}
