package alerting

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/observability/metrics"
)

// Notifier delivers an alert on the given channels. Implementations must not
// block the caller; every attempt is reported through record.
type Notifier interface {
	Notify(alert *Alert, channels []Channel, record func(NotificationAttempt))
}

// HistoryRecorder persists fired alerts and exposes lifetime counters.
type HistoryRecorder interface {
	AddAlert(alert *Alert)
	GetStatistics() Statistics
}

// Options configures a Manager.
type Options struct {
	History  HistoryRecorder
	Notifier Notifier
	Logger   logger.Logger
	Metrics  *metrics.Metrics
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns the rule set and the active alert table and applies
// cooldown and daily-cap throttling. Rule and alert state is guarded by mu.
// History appends run after mu is released, serialized by historyMu so the
// log keeps trigger order.
type Manager struct {
	mu           sync.Mutex
	historyMu    sync.Mutex
	rules        map[string]*Rule
	order        []string
	active       map[string]*Alert
	triggerTimes map[string][]time.Time

	history  HistoryRecorder
	notifier Notifier
	metrics  *metrics.Metrics
	log      logger.Logger
	now      func() time.Time
}

// NewManager creates a Manager with an empty rule set.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		rules:        make(map[string]*Rule),
		active:       make(map[string]*Alert),
		triggerTimes: make(map[string][]time.Time),
		history:      opts.History,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		log:          log.Module("alerting"),
		now:          now,
	}
}

// AddRule registers rule. It returns false for a nil rule, an empty ID or
// name, or an ID that is already registered.
func (m *Manager) AddRule(rule *Rule) bool {
	if rule == nil || rule.ID == "" || rule.Name == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[rule.ID]; exists {
		return false
	}
	m.rules[rule.ID] = rule.Clone()
	m.order = append(m.order, rule.ID)
	m.log.Info("rule added",
		logger.String("rule_id", rule.ID),
		logger.String("rule_name", rule.Name))
	return true
}

// UpdateRule replaces an existing rule in place. Its evaluation position,
// creation time and trigger history are kept.
func (m *Manager) UpdateRule(rule *Rule) bool {
	if rule == nil || rule.Name == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[rule.ID]
	if !ok {
		return false
	}
	updated := rule.Clone()
	updated.CreatedAt = existing.CreatedAt
	updated.touch(m.now())
	m.rules[rule.ID] = updated
	return true
}

// RemoveRule deletes a rule and its trigger history. Alerts it already
// produced stay in the active table.
func (m *Manager) RemoveRule(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return false
	}
	delete(m.rules, id)
	delete(m.triggerTimes, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	m.log.Info("rule removed", logger.String("rule_id", id))
	return true
}

func (m *Manager) EnableRule(id string) bool  { return m.setEnabled(id, true) }
func (m *Manager) DisableRule(id string) bool { return m.setEnabled(id, false) }

func (m *Manager) setEnabled(id string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok {
		return false
	}
	rule.Enabled = enabled
	rule.touch(m.now())
	return true
}

// GetRule returns a copy of the rule with the given ID.
func (m *Manager) GetRule(id string) (Rule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok {
		return Rule{}, false
	}
	return *rule.Clone(), true
}

// GetRules returns copies of all rules in evaluation order.
func (m *Manager) GetRules() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Rule, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.rules[id].Clone())
	}
	return out
}

// LoadRules parses and adds each configuration. A rule that fails to parse
// or collides with an existing ID is skipped and reported; the rest load.
func (m *Manager) LoadRules(configs []RuleConfig) (int, []error) {
	loaded := 0
	var errs []error
	for i := range configs {
		rule, err := ParseRule(configs[i])
		if err != nil {
			m.log.Error("rejected rule configuration",
				logger.String("rule_name", configs[i].Name),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		if !m.AddRule(rule) {
			err := errors.Newf("duplicate rule id %q", rule.ID).
				Component("alerting").
				Category(errors.CategoryConfiguration).
				Context("rule", rule.Name).
				Build()
			m.log.Error("rejected rule configuration",
				logger.String("rule_name", rule.Name),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	return loaded, errs
}

// ReplaceRules swaps the whole rule set for the parsed configurations.
// Trigger history is kept for rule IDs present in both sets. Invalid
// configurations are skipped as in LoadRules.
func (m *Manager) ReplaceRules(configs []RuleConfig) (int, []error) {
	var errs []error
	parsed := make([]*Rule, 0, len(configs))
	seen := make(map[string]bool, len(configs))
	for i := range configs {
		rule, err := ParseRule(configs[i])
		if err != nil {
			m.log.Error("rejected rule configuration",
				logger.String("rule_name", configs[i].Name),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		if seen[rule.ID] {
			errs = append(errs, errors.Newf("duplicate rule id %q", rule.ID).
				Component("alerting").
				Category(errors.CategoryConfiguration).
				Build())
			continue
		}
		seen[rule.ID] = true
		parsed = append(parsed, rule)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rules := make(map[string]*Rule, len(parsed))
	order := make([]string, 0, len(parsed))
	for _, rule := range parsed {
		if old, ok := m.rules[rule.ID]; ok {
			rule.CreatedAt = old.CreatedAt
			rule.touch(now)
		}
		rules[rule.ID] = rule
		order = append(order, rule.ID)
	}
	for id := range m.triggerTimes {
		if _, keep := rules[id]; !keep {
			delete(m.triggerTimes, id)
		}
	}
	m.rules = rules
	m.order = order
	m.log.Info("rule set replaced",
		logger.Int("rules", len(order)),
		logger.Int("rejected", len(errs)))
	return len(order), errs
}

// CheckAlerts evaluates every enabled rule against snapshot in insertion
// order and returns copies of the alerts created by this call.
func (m *Manager) CheckAlerts(snapshot Snapshot, history []Snapshot) []*Alert {
	m.mu.Lock()

	now := m.now()
	var fired, records []*Alert
	var pending []*dispatchJob
	for _, id := range m.order {
		rule := m.rules[id]
		if !rule.Enabled {
			continue
		}
		if m.inCooldownLocked(rule, now) {
			m.metrics.RuleSkipped("cooldown")
			continue
		}
		if m.atDailyCapLocked(rule, now) {
			m.metrics.RuleSkipped("daily_cap")
			continue
		}

		ok, err := rule.check(snapshot, history)
		if err != nil {
			m.log.Debug("rule condition not evaluable",
				logger.String("rule_id", rule.ID),
				logger.String("rule_name", rule.Name),
				logger.Error(err))
		}
		m.metrics.RuleEvaluated(ok)
		if !ok {
			continue
		}

		alert, record, job := m.triggerLocked(rule, snapshot, now)
		fired = append(fired, alert)
		records = append(records, record)
		if job != nil {
			pending = append(pending, job)
		}
	}
	m.metrics.SetActiveAlerts(m.countActiveLocked(now))
	m.unlockAndRecord(records)

	m.dispatch(pending)
	return fired
}

// unlockAndRecord releases mu and appends records to the history. Taking
// historyMu before releasing mu keeps appends in trigger order without
// holding mu during persistence.
func (m *Manager) unlockAndRecord(records []*Alert) {
	if m.history == nil || len(records) == 0 {
		m.mu.Unlock()
		return
	}
	m.historyMu.Lock()
	m.mu.Unlock()
	defer m.historyMu.Unlock()

	for _, r := range records {
		m.history.AddAlert(r)
	}
}

// TestFireRule fires rule id immediately, bypassing conditions and
// throttling. The firing still counts toward cooldown and the daily cap.
func (m *Manager) TestFireRule(id string) (*Alert, bool) {
	m.mu.Lock()
	rule, ok := m.rules[id]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	alert, record, job := m.triggerLocked(rule, Snapshot{"test": true}, m.now())
	m.unlockAndRecord([]*Alert{record})

	if job != nil {
		m.dispatch([]*dispatchJob{job})
	}
	return alert, true
}

type dispatchJob struct {
	alert    *Alert
	channels []Channel
}

// triggerLocked creates the alert, records the trigger time, stores it in
// the active table and prepares the history record and notification job.
func (m *Manager) triggerLocked(rule *Rule, snapshot Snapshot, now time.Time) (*Alert, *Alert, *dispatchJob) {
	alert := newAlert(rule, buildMessage(rule, snapshot), snapshot, now)

	m.triggerTimes[rule.ID] = append(m.triggerTimes[rule.ID], now)
	m.active[alert.ID] = alert
	m.metrics.AlertTriggered(string(alert.Severity), string(alert.Type))

	m.log.Info("alert triggered",
		logger.String("alert_id", alert.ID),
		logger.String("rule_id", rule.ID),
		logger.String("rule_name", rule.Name),
		logger.String("severity", string(alert.Severity)))

	var job *dispatchJob
	if m.notifier != nil && len(rule.Channels) > 0 {
		job = &dispatchJob{alert: alert.Clone(), channels: slices.Clone(rule.Channels)}
	}
	return alert.Clone(), alert.Clone(), job
}

func (m *Manager) dispatch(jobs []*dispatchJob) {
	for _, job := range jobs {
		alertID := job.alert.ID
		m.notifier.Notify(job.alert, job.channels, func(att NotificationAttempt) {
			m.recordAttempt(alertID, att)
		})
	}
}

func (m *Manager) recordAttempt(alertID string, att NotificationAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alert, ok := m.active[alertID]; ok {
		alert.Notifications = append(alert.Notifications, att)
	}
	if !att.Success {
		m.log.Warn("notification delivery failed",
			logger.String("alert_id", alertID),
			logger.String("channel", string(att.Channel)),
			logger.String("error", att.Error))
	}
}

func (m *Manager) inCooldownLocked(rule *Rule, now time.Time) bool {
	times := m.triggerTimes[rule.ID]
	if len(times) == 0 {
		return false
	}
	return now.Sub(times[len(times)-1]) < rule.Cooldown()
}

func (m *Manager) atDailyCapLocked(rule *Rule, now time.Time) bool {
	if rule.MaxTriggersPerDay <= 0 {
		return false
	}
	count := 0
	for _, t := range m.triggerTimes[rule.ID] {
		if sameDay(t, now) {
			count++
		}
	}
	return count >= rule.MaxTriggersPerDay
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// AcknowledgeAlert moves a TRIGGERED alert to ACKNOWLEDGED.
func (m *Manager) AcknowledgeAlert(id, actor, notes string) bool {
	return m.transition(id, "acknowledge", func(a *Alert, now time.Time) bool {
		return a.Acknowledge(actor, notes, now)
	})
}

// ResolveAlert closes a TRIGGERED or ACKNOWLEDGED alert.
func (m *Manager) ResolveAlert(id, actor, notes string) bool {
	return m.transition(id, "resolve", func(a *Alert, now time.Time) bool {
		return a.Resolve(actor, notes, now)
	})
}

// SnoozeAlert hides an alert for the given number of minutes.
func (m *Manager) SnoozeAlert(id string, minutes int) bool {
	return m.transition(id, "snooze", func(a *Alert, now time.Time) bool {
		return a.Snooze(time.Duration(minutes)*time.Minute, now)
	})
}

func (m *Manager) transition(id, action string, apply func(*Alert, time.Time) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.active[id]
	if !ok {
		return false
	}
	if !apply(alert, m.now()) {
		m.log.Debug("alert transition rejected",
			logger.String("alert_id", id),
			logger.String("action", action),
			logger.String("status", string(alert.Status)))
		return false
	}
	m.log.Info("alert updated",
		logger.String("alert_id", id),
		logger.String("action", action),
		logger.String("status", string(alert.Status)))
	return true
}

// GetAlert returns a copy of an alert from the active table in any status.
func (m *Manager) GetAlert(id string) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.active[id]
	if !ok {
		return Alert{}, false
	}
	alert.expireSnooze(m.now())
	return *alert.Clone(), true
}

// GetActiveAlerts returns TRIGGERED and ACKNOWLEDGED alerts, newest first.
// Snoozes that have expired are lifted as part of the read.
func (m *Manager) GetActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Alert, 0, len(m.active))
	for _, alert := range m.active {
		alert.expireSnooze(now)
		if alert.Status == StatusTriggered || alert.Status == StatusAcknowledged {
			out = append(out, *alert.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Alert) int {
		return cmp.Or(b.TriggeredAt.Compare(a.TriggeredAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (m *Manager) countActiveLocked(now time.Time) int {
	n := 0
	for _, alert := range m.active {
		if alert.IsActive(now) {
			n++
		}
	}
	return n
}

// GetAlertStatistics merges lifetime history counters with the live active tally.
func (m *Manager) GetAlertStatistics() ManagerStatistics {
	var stats ManagerStatistics
	if m.history != nil {
		stats.Statistics = m.history.GetStatistics()
	} else {
		stats.Statistics = NewStatistics()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	stats.ActiveBySeverity = make(map[Severity]int)
	for _, alert := range m.active {
		alert.expireSnooze(now)
		if alert.Status == StatusTriggered || alert.Status == StatusAcknowledged {
			stats.ActiveAlerts++
			stats.ActiveBySeverity[alert.Severity]++
		}
	}
	stats.TotalRules = len(m.rules)
	for _, rule := range m.rules {
		if rule.Enabled {
			stats.EnabledRules++
		}
	}
	return stats
}

// CleanupOldAlerts drops resolved alerts and trigger timestamps older than
// days. It returns the number of alerts removed. Non-positive days is a no-op.
func (m *Manager) CleanupOldAlerts(days int) int {
	if days <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for id, alert := range m.active {
		if alert.Status != StatusResolved {
			continue
		}
		ref := alert.TriggeredAt
		if alert.ResolvedAt != nil {
			ref = *alert.ResolvedAt
		}
		if ref.Before(cutoff) {
			delete(m.active, id)
			removed++
		}
	}
	for id, times := range m.triggerTimes {
		kept := slices.DeleteFunc(times, func(t time.Time) bool { return t.Before(cutoff) })
		if len(kept) == 0 {
			delete(m.triggerTimes, id)
			continue
		}
		m.triggerTimes[id] = kept
	}
	if removed > 0 {
		m.log.Info("cleaned up resolved alerts",
			logger.Int("removed", removed),
			logger.Int("days", days))
	}
	return removed
}

// Close stops the notifier if it supports stopping.
func (m *Manager) Close() {
	if s, ok := m.notifier.(interface{ Stop() }); ok {
		s.Stop()
	}
}
