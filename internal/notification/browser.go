package notification

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/conf"
)

const defaultBrowserTTL = time.Hour

// BrowserNotification is a queued push for browser clients.
type BrowserNotification struct {
	Payload
	QueuedAt time.Time `json:"queued_at"`
}

// BrowserChannel queues alerts until a browser client drains them. Entries
// expire after the configured TTL.
type BrowserChannel struct {
	enabled bool
	mu      sync.Mutex
	queue   *cache.Cache
}

func NewBrowserChannel(settings conf.BrowserSettings) *BrowserChannel {
	ttl := settings.TTL.Std()
	if ttl <= 0 {
		ttl = defaultBrowserTTL
	}
	return &BrowserChannel{
		enabled: settings.Enabled,
		queue:   cache.New(ttl, 2*ttl),
	}
}

func (c *BrowserChannel) Kind() alerting.Channel { return alerting.ChannelBrowser }

func (c *BrowserChannel) Enabled() bool { return c.enabled }

func (c *BrowserChannel) Send(_ context.Context, alert *alerting.Alert) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Set(alert.ID, BrowserNotification{Payload: NewPayload(alert), QueuedAt: time.Now()}, cache.DefaultExpiration)
	return nil
}

// Pending returns unexpired notifications, oldest first.
func (c *BrowserChannel) Pending() []BrowserNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// Drain returns and removes all unexpired notifications, oldest first.
func (c *BrowserChannel) Drain() []BrowserNotification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.pendingLocked()
	for _, n := range out {
		c.queue.Delete(n.ID)
	}
	return out
}

func (c *BrowserChannel) pendingLocked() []BrowserNotification {
	items := c.queue.Items()
	out := make([]BrowserNotification, 0, len(items))
	for _, item := range items {
		if n, ok := item.Object.(BrowserNotification); ok {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b BrowserNotification) int {
		if byTime := a.QueuedAt.Compare(b.QueuedAt); byTime != 0 {
			return byTime
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
