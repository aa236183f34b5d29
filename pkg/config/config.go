package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	GCP    GCPConfig
	PubSub PubSubConfig
	Line   LineConfig
	Gemini GeminiConfig
	Stream StreamConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KIOSK_APP_ENV" default:"dev"`
	Port         string `envconfig:"KIOSK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"KIOSK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KIOSK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, "prod")
}

type DBConfig struct {
	DSN    string `envconfig:"KIOSK_DB_DSN"`
	Driver string `envconfig:"KIOSK_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"KIOSK_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"KIOSK_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"KIOSK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KIOSK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KIOSK_REDIS_URL"`
	Address      string        `envconfig:"KIOSK_REDIS_ADDR"`
	Password     string        `envconfig:"KIOSK_REDIS_PASSWORD"`
	DB           int           `envconfig:"KIOSK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KIOSK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KIOSK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KIOSK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KIOSK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KIOSK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"KIOSK_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	// EventsTopic receives normalized envelopes published by the webhook
	// service; a push subscription on it drives the dispatcher.
	EventsTopic      string `envconfig:"KIOSK_PUBSUB_EVENTS_TOPIC" default:"kiosk-events"`
	PushSubscription string `envconfig:"KIOSK_PUBSUB_PUSH_SUBSCRIPTION"`
}

type LineConfig struct {
	ChannelAccessToken string `envconfig:"LINE_CHANNEL_ACCESS_TOKEN"`
	ChannelSecret      string `envconfig:"LINE_CHANNEL_SECRET"`
	APIBaseURL         string `envconfig:"LINE_API_BASE_URL" default:"https://api.line.me"`

	// SkipSignatureValidation exists for local testing behind a gateway that
	// strips the signature header. Never enable in prod.
	SkipSignatureValidation bool `envconfig:"KIOSK_LINE_SKIP_SIGNATURE_VALIDATION" default:"false"`

	// PublishAllMessages relays every text message; when false, group/room
	// messages relay only when the bot is mentioned.
	PublishAllMessages bool `envconfig:"KIOSK_LINE_PUBLISH_ALL_MESSAGES" default:"false"`

	DefaultDeviceID string `envconfig:"KIOSK_DEVICE_ID" default:"home-parents-1"`
}

type GeminiConfig struct {
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	Model   string `envconfig:"KIOSK_GEMINI_MODEL" default:"gemini-2.5-flash"`
	BaseURL string `envconfig:"KIOSK_GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
}

// Enabled reports whether choice generation should run at all.
func (g GeminiConfig) Enabled() bool {
	return strings.TrimSpace(g.APIKey) != ""
}

type StreamConfig struct {
	PollInterval      time.Duration `envconfig:"KIOSK_STREAM_POLL_INTERVAL" default:"2s"`
	HeartbeatInterval time.Duration `envconfig:"KIOSK_STREAM_HEARTBEAT_INTERVAL" default:"20s"`
	RecentLimit       int           `envconfig:"KIOSK_STREAM_RECENT_LIMIT" default:"20"`
}
