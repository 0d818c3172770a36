// Package config loads server settings from defaults, an optional YAML file
// and GRADILISCE_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/media"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "GRADILISCE_"

// Config holds everything the server needs to start.
type Config struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	DBPath    string `yaml:"db" env:"DB"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile   string `yaml:"log_file" env:"LOG_FILE"`
	AdminUser string `yaml:"admin_user" env:"ADMIN_USER"`
	// JWTSecret overrides the secret stored in the database.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`

	MediaDir  string         `yaml:"media_dir" env:"MEDIA_DIR"`
	S3        media.S3Config `yaml:"s3" envPrefix:"S3_"`
	MaxUpload int64          `yaml:"max_upload" env:"MAX_UPLOAD"`

	RedisURL     string   `yaml:"redis_url" env:"REDIS_URL"`
	KafkaBrokers []string `yaml:"kafka_brokers" env:"KAFKA_BROKERS"`
	KafkaTopic   string   `yaml:"kafka_topic" env:"KAFKA_TOPIC"`
	OTelEndpoint string   `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`

	// OriginPatterns are extra hosts allowed to open the websocket feed.
	OriginPatterns []string `yaml:"origin_patterns" env:"ORIGIN_PATTERNS"`

	PastWork PastWork `yaml:"past_work" envPrefix:"PAST_WORK_"`

	ReferralReward decimal.Decimal `yaml:"referral_reward" env:"REFERRAL_REWARD"`
}

// PastWork tunes the sweeper that removes abandoned upload drafts.
type PastWork struct {
	DraftTTL      time.Duration `yaml:"draft_ttl" env:"DRAFT_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:           ":8080",
		DBPath:         "gradilisce.sqlite3",
		LogLevel:       "info",
		AdminUser:      "admin",
		MediaDir:       "media",
		MaxUpload:      25 << 20,
		KafkaTopic:     events.DefaultTopic,
		PastWork:       PastWork{DraftTTL: 24 * time.Hour, SweepInterval: time.Hour},
		ReferralReward: decimal.NewFromInt(100),
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.KafkaBrokers = trimNonEmpty(cfg.KafkaBrokers)
	cfg.OriginPatterns = trimNonEmpty(cfg.OriginPatterns)
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.DBPath == "" {
		return errors.New("db path must not be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.AdminUser == "" {
		return errors.New("admin user must not be empty")
	}
	if c.MaxUpload <= 0 {
		return fmt.Errorf("max upload must be positive, got %d", c.MaxUpload)
	}
	if !c.S3.Enabled() && c.MediaDir == "" {
		return errors.New("either media dir or s3 bucket credentials must be set")
	}
	if c.S3.Bucket != "" && !c.S3.Enabled() {
		return errors.New("s3 bucket is set but access key or secret key is missing")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("kafka topic must not be empty when brokers are set")
	}
	if c.PastWork.DraftTTL <= 0 {
		return fmt.Errorf("past work draft ttl must be positive, got %s", c.PastWork.DraftTTL)
	}
	if c.PastWork.SweepInterval <= 0 {
		return fmt.Errorf("past work sweep interval must be positive, got %s", c.PastWork.SweepInterval)
	}
	if c.ReferralReward.IsNegative() {
		return fmt.Errorf("referral reward must not be negative, got %s", c.ReferralReward)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

func trimNonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
