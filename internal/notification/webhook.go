package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/conf"
)

const maxWebhookResponse = 64 << 10

// WebhookChannel POSTs the alert payload as JSON.
type WebhookChannel struct {
	settings conf.WebhookSettings
	client   *http.Client
}

// NewWebhookChannel uses client for requests, or a default client when nil.
// Deadlines come from the context passed to Send.
func NewWebhookChannel(settings conf.WebhookSettings, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &WebhookChannel{settings: settings, client: client}
}

func (c *WebhookChannel) Kind() alerting.Channel { return alerting.ChannelWebhook }

func (c *WebhookChannel) Enabled() bool {
	return c.settings.Enabled && c.settings.URL != ""
}

func (c *WebhookChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	if !c.Enabled() {
		return ErrChannelDisabled
	}

	body, err := json.Marshal(NewPayload(alert))
	if err != nil {
		return deliveryError(err, alerting.ChannelWebhook, alert.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.URL, bytes.NewReader(body))
	if err != nil {
		return deliveryError(err, alerting.ChannelWebhook, alert.ID)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "vigil")
	for k, v := range c.settings.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return deliveryError(err, alerting.ChannelWebhook, alert.ID)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxWebhookResponse))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return deliveryError(fmt.Errorf("webhook returned status %d", resp.StatusCode), alerting.ChannelWebhook, alert.ID)
	}
	return nil
}
