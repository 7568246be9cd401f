// Package conf loads vigil settings from a YAML file, VIGIL_* environment
// variables and built-in defaults.
package conf

import (
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/logger"
)

// Storage drivers.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
)

// EnvPrefix prefixes environment overrides, e.g. VIGIL_SERVER_LISTEN.
const EnvPrefix = "VIGIL"

// Settings is the complete runtime configuration.
type Settings struct {
	Server        ServerSettings       `mapstructure:"server" yaml:"server" json:"server"`
	Storage       StorageSettings      `mapstructure:"storage" yaml:"storage" json:"storage"`
	Notifications NotificationSettings `mapstructure:"notifications" yaml:"notifications" json:"notifications"`
	Monitor       MonitorSettings      `mapstructure:"monitor" yaml:"monitor" json:"monitor"`
	Alerting      AlertingSettings     `mapstructure:"alerting" yaml:"alerting" json:"alerting"`
	Telemetry     TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`
	Log           LogSettings          `mapstructure:"log" yaml:"log" json:"log"`
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" json:"listen"`
}

// StorageSettings selects the history backend.
type StorageSettings struct {
	Driver     string `mapstructure:"driver" yaml:"driver" json:"driver"`
	Path       string `mapstructure:"path" yaml:"path" json:"path"`
	DSN        string `mapstructure:"dsn" yaml:"dsn" json:"-"`
	MaxEntries int    `mapstructure:"max_entries" yaml:"max_entries" json:"max_entries"`
	Debug      bool   `mapstructure:"debug" yaml:"debug" json:"debug"`
}

// NotificationSettings configures the dispatcher and its channels.
type NotificationSettings struct {
	SendTimeout Duration `mapstructure:"send_timeout" yaml:"send_timeout" json:"send_timeout"`
	Workers     int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	QueueSize   int      `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
	// RateLimit is sends per second per channel. Zero disables limiting.
	RateLimit float64         `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	RateBurst int             `mapstructure:"rate_burst" yaml:"rate_burst" json:"rate_burst"`
	Email     EmailSettings   `mapstructure:"email" yaml:"email" json:"email"`
	Webhook   WebhookSettings `mapstructure:"webhook" yaml:"webhook" json:"webhook"`
	Browser   BrowserSettings `mapstructure:"browser" yaml:"browser" json:"browser"`
}

// EmailSettings configures SMTP delivery.
type EmailSettings struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Host     string   `mapstructure:"host" yaml:"host" json:"host"`
	Port     int      `mapstructure:"port" yaml:"port" json:"port"`
	Username string   `mapstructure:"username" yaml:"username" json:"username"`
	Password string   `mapstructure:"password" yaml:"password" json:"-"`
	From     string   `mapstructure:"from" yaml:"from" json:"from"`
	To       []string `mapstructure:"to" yaml:"to" json:"to"`
	// Encryption is one of auto, none, explicittls or implicittls.
	Encryption string `mapstructure:"encryption" yaml:"encryption" json:"encryption"`
}

// WebhookSettings configures HTTP POST delivery.
type WebhookSettings struct {
	Enabled bool              `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	URL     string            `mapstructure:"url" yaml:"url" json:"url"`
	Headers map[string]string `mapstructure:"headers" yaml:"headers" json:"-"`
}

// BrowserSettings configures the browser push queue.
type BrowserSettings struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	TTL     Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

// MonitorSettings configures the snapshot sources.
type MonitorSettings struct {
	Enabled    bool         `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Interval   Duration     `mapstructure:"interval" yaml:"interval" json:"interval"`
	WindowSize int          `mapstructure:"window_size" yaml:"window_size" json:"window_size"`
	WindowAge  Duration     `mapstructure:"window_age" yaml:"window_age" json:"window_age"`
	DiskPath   string       `mapstructure:"disk_path" yaml:"disk_path" json:"disk_path"`
	MQTT       MQTTSettings `mapstructure:"mqtt" yaml:"mqtt" json:"mqtt"`
}

// MQTTSettings configures the MQTT snapshot source.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker" json:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic" json:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id" json:"client_id"`
	Username string `mapstructure:"username" yaml:"username" json:"username"`
	Password string `mapstructure:"password" yaml:"password" json:"-"`
	QoS      int    `mapstructure:"qos" yaml:"qos" json:"qos"`
}

// AlertingSettings configures rule sources and maintenance.
type AlertingSettings struct {
	RulesFile       string                `mapstructure:"rules_file" yaml:"rules_file" json:"rules_file"`
	WatchRules      bool                  `mapstructure:"watch_rules" yaml:"watch_rules" json:"watch_rules"`
	SeedDefaults    bool                  `mapstructure:"seed_defaults" yaml:"seed_defaults" json:"seed_defaults"`
	CleanupDays     int                   `mapstructure:"cleanup_days" yaml:"cleanup_days" json:"cleanup_days"`
	CleanupInterval Duration              `mapstructure:"cleanup_interval" yaml:"cleanup_interval" json:"cleanup_interval"`
	Rules           []alerting.RuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`
}

// TelemetrySettings configures error reporting.
type TelemetrySettings struct {
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn" json:"-"`
	Environment string `mapstructure:"environment" yaml:"environment" json:"environment"`
}

// LogSettings configures the logger.
type LogSettings struct {
	Level    string `mapstructure:"level" yaml:"level" json:"level"`
	Timezone string `mapstructure:"timezone" yaml:"timezone" json:"timezone"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8090")

	v.SetDefault("storage.driver", StorageFile)
	v.SetDefault("storage.path", "data")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_entries", 10000)
	v.SetDefault("storage.debug", false)

	v.SetDefault("notifications.send_timeout", "30s")
	v.SetDefault("notifications.workers", 4)
	v.SetDefault("notifications.queue_size", 256)
	v.SetDefault("notifications.rate_limit", 5.0)
	v.SetDefault("notifications.rate_burst", 10)
	v.SetDefault("notifications.email.enabled", false)
	v.SetDefault("notifications.email.host", "")
	v.SetDefault("notifications.email.port", 587)
	v.SetDefault("notifications.email.username", "")
	v.SetDefault("notifications.email.password", "")
	v.SetDefault("notifications.email.from", "")
	v.SetDefault("notifications.email.to", []string{})
	v.SetDefault("notifications.email.encryption", "auto")
	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.url", "")
	v.SetDefault("notifications.browser.enabled", true)
	v.SetDefault("notifications.browser.ttl", "1h")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.window_size", 20)
	v.SetDefault("monitor.window_age", "1h")
	v.SetDefault("monitor.disk_path", "/")
	v.SetDefault("monitor.mqtt.enabled", false)
	v.SetDefault("monitor.mqtt.broker", "")
	v.SetDefault("monitor.mqtt.topic", "vigil/snapshots")
	v.SetDefault("monitor.mqtt.client_id", "vigil")
	v.SetDefault("monitor.mqtt.username", "")
	v.SetDefault("monitor.mqtt.password", "")
	v.SetDefault("monitor.mqtt.qos", 1)

	v.SetDefault("alerting.rules_file", "")
	v.SetDefault("alerting.watch_rules", true)
	v.SetDefault("alerting.seed_defaults", true)
	v.SetDefault("alerting.cleanup_days", 7)
	v.SetDefault("alerting.cleanup_interval", "1h")

	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.timezone", "")
}

// Load reads settings. An empty path searches for vigil.yaml in the working
// directory and /etc/vigil; a missing file there is not an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vigil")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vigil/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, configError(err, "read_config").Context("path", path).Build()
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, configError(err, "decode_config").Build()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func configError(err error, op string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("operation", op)
}

func invalid(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("conf").
		Category(errors.CategoryValidation).
		Context("operation", "validate_config").
		Build()
}

// Validate checks cross-field constraints. Rule definitions are validated
// later, per rule, when they are loaded into the manager.
func (s *Settings) Validate() error {
	var errs []error

	if !slices.Contains([]string{StorageFile, StorageSQLite, StorageMySQL}, s.Storage.Driver) {
		errs = append(errs, invalid("storage.driver %q must be file, sqlite or mysql", s.Storage.Driver))
	}
	if s.Storage.Driver == StorageMySQL && s.Storage.DSN == "" {
		errs = append(errs, invalid("storage.dsn is required for the mysql driver"))
	}
	if s.Storage.Driver != StorageMySQL && s.Storage.Path == "" {
		errs = append(errs, invalid("storage.path is required"))
	}
	if s.Notifications.Workers < 1 {
		errs = append(errs, invalid("notifications.workers must be at least 1"))
	}
	if s.Notifications.QueueSize < 1 {
		errs = append(errs, invalid("notifications.queue_size must be at least 1"))
	}
	if s.Notifications.SendTimeout.Std() <= 0 {
		errs = append(errs, invalid("notifications.send_timeout must be positive"))
	}
	if e := s.Notifications.Email; e.Enabled && (e.Host == "" || len(e.To) == 0) {
		errs = append(errs, invalid("notifications.email requires host and at least one recipient"))
	}
	if w := s.Notifications.Webhook; w.Enabled && w.URL == "" {
		errs = append(errs, invalid("notifications.webhook.url is required when the webhook is enabled"))
	}
	if s.Monitor.Enabled && s.Monitor.Interval.Std() < time.Second {
		errs = append(errs, invalid("monitor.interval must be at least 1s"))
	}
	if m := s.Monitor.MQTT; m.Enabled {
		if m.Broker == "" || m.Topic == "" {
			errs = append(errs, invalid("monitor.mqtt requires broker and topic"))
		}
		if m.QoS < 0 || m.QoS > 2 {
			errs = append(errs, invalid("monitor.mqtt.qos must be 0, 1 or 2"))
		}
	}
	if s.Alerting.CleanupDays < 0 {
		errs = append(errs, invalid("alerting.cleanup_days must not be negative"))
	}
	if _, err := s.Location(); err != nil {
		errs = append(errs, invalid("log.timezone %q: %v", s.Log.Timezone, err))
	}
	return errors.Join(errs...)
}

// LogLevel returns the configured level.
func (s *Settings) LogLevel() logger.LogLevel {
	return logger.ParseLevel(s.Log.Level)
}

// Location returns the log timezone. Empty means local time.
func (s *Settings) Location() (*time.Location, error) {
	if s.Log.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Log.Timezone)
}
