package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds the bot token and run mode.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"TELEGRAM_TOKEN"`
	// AdminID receives order notifications; 0 disables them.
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// Zero selects the poller default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig is required in webhook run mode only.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig selects level, output format and log file for core/logger.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// KeysOrder is a comma separated key list, or "default".
	KeysOrder string `yaml:"keys_order"`
	// DebugSample is "n/d", "d" or "all".
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	Profile     string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// CMSConfig points at the remote catalog/cart/client service.
type CMSConfig struct {
	BaseURL   string `yaml:"base_url" envconfig:"STRAPI_URL"`
	Token     string `yaml:"token" envconfig:"STRAPI_TOKEN"`
	TimeoutMS int    `yaml:"timeout_ms" envconfig:"STRAPI_TIMEOUT_MS"`
	// Retries is nil until Normalize fills the default; 0 disables replays.
	Retries *int `yaml:"retries" envconfig:"STRAPI_RETRIES"`
}

// RedisConfig holds connection settings for the redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// SessionConfig selects where conversation sessions live.
type SessionConfig struct {
	Backend        string      `yaml:"backend" envconfig:"SESSION_BACKEND"`
	TTLSeconds     int         `yaml:"ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
	LockTTLSeconds int         `yaml:"lock_ttl_seconds" envconfig:"SESSION_LOCK_TTL_SECONDS"`
	Redis          RedisConfig `yaml:"redis"`
}

// DispatchConfig sizes the inbound event worker pool.
type DispatchConfig struct {
	Workers       int `yaml:"workers" envconfig:"DISPATCH_WORKERS"`
	QueueSize     int `yaml:"queue_size" envconfig:"DISPATCH_QUEUE_SIZE"`
	MaxDurationMS int `yaml:"max_duration_ms" envconfig:"DISPATCH_MAX_DURATION_MS"`
}

// ShopConfig controls how prices and quantities are printed.
type ShopConfig struct {
	Currency string `yaml:"currency" envconfig:"SHOP_CURRENCY"`
	Unit     string `yaml:"unit" envconfig:"SHOP_UNIT"`
}

// MetricsConfig enables the prometheus listener when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// NotifyConfig configures operator hand-off by e-mail.
type NotifyConfig struct {
	ResendAPIKey  string `yaml:"resend_api_key" envconfig:"RESEND_API_KEY"`
	EmailFrom     string `yaml:"email_from" envconfig:"NOTIFY_EMAIL_FROM"`
	OperatorEmail string `yaml:"operator_email" envconfig:"NOTIFY_OPERATOR_EMAIL"`
}

// Run modes.
const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// defaultCMSRetries applies when cms.retries is unset.
const defaultCMSRetries = 2

// Update kinds that rate_limit.exclude_updates may name.
const (
	UpdateCallback = "callback"
	UpdateMessage  = "message"
)

// RateLimitConfig throttles each user to one update per IntervalMS.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CMS       CMSConfig       `yaml:"cms"`
	Session   SessionConfig   `yaml:"session"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Shop      ShopConfig      `yaml:"shop"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// ErrMissingSecret is returned by Normalize when a required secret is absent.
var ErrMissingSecret = errors.New("required secret is missing")

// Load reads the YAML file at path, when given, then lets environment
// variables override it and normalizes the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err = yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize checks required secrets, validates enums and fills defaults in place.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	if err := requireSecrets(cfg); err != nil {
		return err
	}
	steps := []func(*Config) error{
		normalizeTelegram,
		func(c *Config) error { return normalizeCMS(&c.CMS) },
		func(c *Config) error { return normalizeSession(&c.Session) },
		func(c *Config) error { normalizeDispatch(&c.Dispatch); return nil },
		normalizeShop,
		normalizeRateLimit,
	}
	for _, step := range steps {
		if err := step(cfg); err != nil {
			return err
		}
	}
	return nil
}

func requireSecrets(cfg *Config) error {
	secrets := []struct{ name, value string }{
		{"TELEGRAM_TOKEN", cfg.Telegram.Token},
		{"STRAPI_URL", cfg.CMS.BaseURL},
		{"STRAPI_TOKEN", cfg.CMS.Token},
	}
	var missing []string
	for _, s := range secrets {
		if strings.TrimSpace(s.value) == "" {
			missing = append(missing, s.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(missing, ", "))
}

func normalizeTelegram(cfg *Config) error {
	mode := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch mode {
	case "", "polling", RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("config: telegram.longpoll_timeout_seconds must not be negative")
		}
		mode = RunModeLongpoll
	case RunModeWebhook:
		wh := cfg.Webhook
		switch {
		case strings.TrimSpace(wh.URL) == "":
			return errors.New("config: webhook.url is required in webhook mode")
		case strings.TrimSpace(wh.Listen) == "":
			return errors.New("config: webhook.listen is required in webhook mode")
		case wh.Port <= 0:
			return errors.New("config: webhook.port must be positive in webhook mode")
		}
	default:
		return fmt.Errorf("config: telegram.run_mode %q is not one of webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = mode
	return nil
}

func normalizeShop(cfg *Config) error {
	cfg.Shop.Currency = orDefault(cfg.Shop.Currency, "₽")
	cfg.Shop.Unit = orDefault(cfg.Shop.Unit, "kg")
	return nil
}

func normalizeRateLimit(cfg *Config) error {
	for i, kind := range cfg.RateLimit.ExcludeUpdates {
		kind = strings.ToLower(strings.TrimSpace(kind))
		switch kind {
		case "", UpdateCallback, UpdateMessage:
			cfg.RateLimit.ExcludeUpdates[i] = kind
		default:
			return fmt.Errorf("config: rate_limit.exclude_updates: %q is not one of callback, message", kind)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func normalizeCMS(cms *CMSConfig) error {
	base := strings.TrimRight(strings.TrimSpace(cms.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: cms.base_url %q is not an absolute URL", cms.BaseURL)
	}
	cms.BaseURL = base
	if cms.TimeoutMS <= 0 {
		cms.TimeoutMS = 5000
	}
	if cms.Retries == nil {
		n := defaultCMSRetries
		cms.Retries = &n
	}
	if *cms.Retries < 0 {
		return errors.New("config: cms.retries must not be negative")
	}
	return nil
}

func normalizeSession(s *SessionConfig) error {
	backend := strings.ToLower(strings.TrimSpace(s.Backend))
	if backend == "" {
		backend = SessionMemory
	}
	switch backend {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return errors.New("config: session.redis.addr is required for the redis backend")
		}
		if s.Redis.Prefix == "" {
			s.Redis.Prefix = "shopbot:session:"
		}
	default:
		return fmt.Errorf("config: session.backend %q is not one of memory, redis", s.Backend)
	}
	s.Backend = backend
	if s.TTLSeconds < 0 {
		return errors.New("config: session.ttl_seconds must not be negative")
	}
	if s.LockTTLSeconds <= 0 {
		s.LockTTLSeconds = 30
	}
	return nil
}

func normalizeDispatch(d *DispatchConfig) {
	if d.Workers <= 0 {
		d.Workers = 8
	}
	if d.QueueSize <= 0 {
		d.QueueSize = 256
	}
	if d.MaxDurationMS <= 0 {
		d.MaxDurationMS = 30000
	}
}
