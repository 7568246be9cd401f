package notification

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/conf"
	"github.com/tphakala/vigil/internal/errors"
)

const defaultSMTPPort = 587

// sender is the part of a shoutrrr router the email channel uses.
type sender interface {
	Send(message string, params *types.Params) []error
}

// EmailChannel delivers alerts over SMTP through shoutrrr.
type EmailChannel struct {
	enabled bool
	sender  sender
}

// NewEmailChannel builds the channel from settings. Incomplete settings give
// a disabled channel rather than an error.
func NewEmailChannel(settings conf.EmailSettings) (*EmailChannel, error) {
	if !settings.Enabled || settings.Host == "" || len(settings.To) == 0 {
		return &EmailChannel{}, nil
	}
	router, err := shoutrrr.CreateSender(SMTPURL(settings))
	if err != nil {
		return nil, errors.New(err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("channel", string(alerting.ChannelEmail)).
			Context("host", settings.Host).
			Build()
	}
	return &EmailChannel{enabled: true, sender: router}, nil
}

// SMTPURL renders settings as a shoutrrr smtp:// service URL.
func SMTPURL(settings conf.EmailSettings) string {
	port := settings.Port
	if port <= 0 {
		port = defaultSMTPPort
	}
	u := url.URL{
		Scheme: "smtp",
		Host:   net.JoinHostPort(settings.Host, strconv.Itoa(port)),
		Path:   "/",
	}

	q := url.Values{}
	if settings.Username != "" {
		u.User = url.UserPassword(settings.Username, settings.Password)
	} else {
		q.Set("auth", "None")
	}
	from := settings.From
	if from == "" {
		from = "vigil@" + settings.Host
	}
	q.Set("fromaddress", from)
	q.Set("fromname", "vigil")
	q.Set("toaddresses", strings.Join(settings.To, ","))
	if settings.Encryption != "" {
		q.Set("encryption", settings.Encryption)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *EmailChannel) Kind() alerting.Channel { return alerting.ChannelEmail }

func (c *EmailChannel) Enabled() bool { return c.enabled }

func (c *EmailChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	if !c.enabled {
		return ErrChannelDisabled
	}

	params := types.Params{"subject": subject(alert)}
	body := emailBody(alert)

	// shoutrrr has no context support; give up waiting when ctx ends.
	done := make(chan error, 1)
	go func() {
		done <- errors.Join(c.sender.Send(body, &params)...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return deliveryError(err, alerting.ChannelEmail, alert.ID)
		}
		return nil
	case <-ctx.Done():
		return deliveryError(ctx.Err(), alerting.ChannelEmail, alert.ID)
	}
}

func emailBody(alert *alerting.Alert) string {
	var b strings.Builder
	b.WriteString(alert.Message)
	b.WriteString("\n\nRule: ")
	b.WriteString(alert.RuleName)
	b.WriteString("\nSeverity: ")
	b.WriteString(string(alert.Severity))
	b.WriteString("\nType: ")
	b.WriteString(string(alert.Type))
	b.WriteString("\nTriggered: ")
	b.WriteString(alert.TriggeredAt.Format("2006-01-02 15:04:05 MST"))
	b.WriteString("\nAlert ID: ")
	b.WriteString(alert.ID)
	b.WriteString("\n")
	if len(alert.Data) > 0 {
		if data, err := json.MarshalIndent(alert.Data, "", "  "); err == nil {
			b.WriteString("\nData:\n")
			b.Write(data)
			b.WriteString("\n")
		}
	}
	return b.String()
}
