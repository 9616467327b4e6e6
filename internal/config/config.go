package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "PDFANNOUNCER_CONFIG"

	SourceS3  = "s3"
	SourceWeb = "web"
)

// Config holds high-level settings required across the application.
type Config struct {
	LogLevel   string           `yaml:"logLevel"`
	Source     SourceConfig     `yaml:"source"`
	State      StateConfig      `yaml:"state"`
	Run        RunConfig        `yaml:"run"`
	Extract    ExtractConfig    `yaml:"extract"`
	Compose    ComposeConfig    `yaml:"compose"`
	Mastodon   MastodonConfig   `yaml:"mastodon"`
	Twitter    TwitterConfig    `yaml:"twitter"`
	Bluesky    BlueskyConfig    `yaml:"bluesky"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Lock       LockConfig       `yaml:"lock"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
}

// SourceConfig selects where documents are discovered.
type SourceConfig struct {
	Kind          string `yaml:"kind"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"publicBaseUrl"`
	IndexURL      string `yaml:"indexUrl"`
	IndexSelector string `yaml:"indexSelector"`
	MaxObjectSize int64  `yaml:"maxObjectSize"`
}

// StateConfig selects where the ledger lives. LocalPath wins over DatabaseDSN, which
// wins over the bucket object named Key.
type StateConfig struct {
	Key         string `yaml:"key"`
	LocalPath   string `yaml:"localPath"`
	DatabaseDSN string `yaml:"databaseDsn"`
}

// RunConfig bounds a single announcement cycle.
type RunConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	MaxNew          int           `yaml:"maxNew"`
	Platforms       []string      `yaml:"platforms"`
	ListTimeout     time.Duration `yaml:"listTimeout"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout"`
	ExtractTimeout  time.Duration `yaml:"extractTimeout"`
	PublishTimeout  time.Duration `yaml:"publishTimeout"`
	CommitTimeout   time.Duration `yaml:"commitTimeout"`
	PublishInterval time.Duration `yaml:"publishInterval"`
}

// ExtractConfig points at the poppler binaries and preview geometry.
type ExtractConfig struct {
	PdftotextPath    string `yaml:"pdftotextPath"`
	PdftoppmPath     string `yaml:"pdftoppmPath"`
	Thumbnail        bool   `yaml:"thumbnail"`
	ThumbnailDPI     int    `yaml:"thumbnailDpi"`
	ThumbnailMaxSide int    `yaml:"thumbnailMaxSide"`
}

// ComposeConfig overrides per-platform text limits.
type ComposeConfig struct {
	Limits map[string]int `yaml:"limits"`
}

// MastodonConfig holds the instance and user token.
type MastodonConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	AccessToken string `yaml:"accessToken"`
}

// TwitterConfig holds the OAuth1 user-context credentials.
type TwitterConfig struct {
	ConsumerKey       string `yaml:"consumerKey"`
	ConsumerSecret    string `yaml:"consumerSecret"`
	AccessToken       string `yaml:"accessToken"`
	AccessTokenSecret string `yaml:"accessTokenSecret"`
}

// BlueskyConfig holds the handle and app password.
type BlueskyConfig struct {
	PDS         string `yaml:"pds"`
	Username    string `yaml:"username"`
	AppPassword string `yaml:"appPassword"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SummarizerConfig defines how to contact an OpenAI-compatible chat API.
type SummarizerConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"apiKey"`
	SystemPrompt  string        `yaml:"systemPrompt"`
	MaxInputChars int           `yaml:"maxInputChars"`
	Timeout       time.Duration `yaml:"timeout"`
}

// TelemetryConfig names the error and metrics sinks.
type TelemetryConfig struct {
	SentryDSN      string `yaml:"sentryDsn"`
	Environment    string `yaml:"environment"`
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	JobName        string `yaml:"jobName"`
}

// LockConfig enables the Redis run lock when RedisURL is set.
type LockConfig struct {
	RedisURL string        `yaml:"redisUrl"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// ScheduleConfig drives the long-running schedule mode.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Enabled reports whether all Mastodon credentials are present.
func (m MastodonConfig) Enabled() bool { return m.BaseURL != "" && m.AccessToken != "" }

// Enabled reports whether all four Twitter credentials are present.
func (t TwitterConfig) Enabled() bool {
	return t.ConsumerKey != "" && t.ConsumerSecret != "" && t.AccessToken != "" && t.AccessTokenSecret != ""
}

// Enabled reports whether Bluesky credentials are present.
func (b BlueskyConfig) Enabled() bool { return b.Username != "" && b.AppPassword != "" }

// Enabled reports whether Telegram credentials are present.
func (t TelegramConfig) Enabled() bool { return t.BotToken != "" && t.ChatID != "" }

// Load reads YAML configuration from path (or $PDFANNOUNCER_CONFIG when path is empty),
// applies environment overrides, then the given overrides, and validates the result.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	for _, override := range overrides {
		override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	for env, dst := range map[string]*string{
		"LOG_LEVEL":                   &c.LogLevel,
		"BUCKET_NAME":                 &c.Source.Bucket,
		"DOCUMENT_PREFIX":             &c.Source.Prefix,
		"AWS_REGION":                  &c.Source.Region,
		"DOCUMENT_INDEX_URL":          &c.Source.IndexURL,
		"STATE_KEY":                   &c.State.Key,
		"LEDGER_DATABASE_DSN":         &c.State.DatabaseDSN,
		"MASTODON_API_BASE_URL":       &c.Mastodon.BaseURL,
		"MASTODON_ACCESS_TOKEN":       &c.Mastodon.AccessToken,
		"TWITTER_CONSUMER_KEY":        &c.Twitter.ConsumerKey,
		"TWITTER_CONSUMER_SECRET":     &c.Twitter.ConsumerSecret,
		"TWITTER_ACCESS_TOKEN":        &c.Twitter.AccessToken,
		"TWITTER_ACCESS_TOKEN_SECRET": &c.Twitter.AccessTokenSecret,
		"BLUESKY_USERNAME":            &c.Bluesky.Username,
		"BLUESKY_APP_PASSWORD":        &c.Bluesky.AppPassword,
		"TELEGRAM_BOT_TOKEN":          &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":            &c.Telegram.ChatID,
		"OPENAI_API_KEY":              &c.Summarizer.APIKey,
		"SENTRY_DSN":                  &c.Telemetry.SentryDSN,
		"PUSHGATEWAY_URL":             &c.Telemetry.PushgatewayURL,
		"REDIS_URL":                   &c.Lock.RedisURL,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}

	if c.Source.Kind == "" {
		c.Source.Kind = SourceS3
		if c.Source.Bucket == "" && c.Source.IndexURL != "" {
			c.Source.Kind = SourceWeb
		}
	}
}

// Validate reports settings that would make a run meaningless.
func (c Config) Validate() error {
	var errs []error
	switch c.Source.Kind {
	case SourceS3:
		if c.Source.Bucket == "" {
			errs = append(errs, errors.New("BUCKET_NAME is required"))
		}
	case SourceWeb:
		if c.Source.IndexURL == "" {
			errs = append(errs, errors.New("source.indexUrl is required for the web source"))
		}
		if c.State.LocalPath == "" && c.State.DatabaseDSN == "" && c.Source.Bucket == "" {
			errs = append(errs, errors.New("the web source needs state.localPath, a ledger database or a bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source kind %q", c.Source.Kind))
	}
	if c.Run.Concurrency < 1 {
		errs = append(errs, errors.New("run.concurrency must be at least 1"))
	}
	if c.Run.MaxAttempts < 1 {
		errs = append(errs, errors.New("run.maxAttempts must be at least 1"))
	}
	if c.Run.MaxNew < 0 {
		errs = append(errs, errors.New("run.maxNew must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Source: SourceConfig{
			IndexSelector: ".view-content a",
			MaxObjectSize: 100 << 20,
		},
		State: StateConfig{Key: "cache.json"},
		Run: RunConfig{
			Concurrency:    1,
			MaxAttempts:    3,
			MaxNew:         1500,
			ListTimeout:    2 * time.Minute,
			FetchTimeout:   2 * time.Minute,
			ExtractTimeout: time.Minute,
			PublishTimeout: time.Minute,
			CommitTimeout:  time.Minute,
		},
		Extract: ExtractConfig{
			PdftotextPath:    "pdftotext",
			PdftoppmPath:     "pdftoppm",
			Thumbnail:        true,
			ThumbnailDPI:     100,
			ThumbnailMaxSide: 2048,
		},
		Summarizer: SummarizerConfig{
			Endpoint:      "https://api.openai.com/v1/chat/completions",
			Model:         "gpt-4o-mini",
			MaxInputChars: 6000,
			Timeout:       30 * time.Second,
		},
		Telemetry: TelemetryConfig{JobName: "pdfannouncer"},
		Lock:      LockConfig{Key: "pdfannouncer:run", TTL: 30 * time.Minute},
		Schedule:  ScheduleConfig{Interval: time.Hour},
	}
}
