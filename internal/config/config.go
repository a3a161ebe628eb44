// Package config reads the indexer's environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultPackageID is the deployed SuiVerify package (short form, no leading zero).
const DefaultPackageID = "0xd9f5cd6845d838653bac950697ab33009db0a7f886b201dbda9ba132c3dd495"

// Config holds env-derived settings. DATABASE_URL is required; REDIS_URL
// is optional and leaving it unset disables broadcasting.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL"`

	Log LogConfig

	// PackageID defaults to DefaultPackageID when unset or empty.
	PackageID string `env:"SUIVERIFY_PACKAGE_ID"`
	Port      string `env:"PORT" envDefault:"8080"`

	// CheckpointDir switches the source from synthetic to <seq>.json files.
	CheckpointDir     string        `env:"CHECKPOINT_DIR"`
	FollowInterval    time.Duration `env:"CHECKPOINT_FOLLOW_INTERVAL" envDefault:"0s"`
	SyntheticInterval time.Duration `env:"SYNTHETIC_INTERVAL" envDefault:"1s"`

	// SyntheticGenesisMs overrides the synthetic source's checkpoint 0 timestamp; 0 keeps its default.
	SyntheticGenesisMs uint64 `env:"SYNTHETIC_GENESIS_MS" envDefault:"0"`
	FirstCheckpoint    uint64 `env:"FIRST_CHECKPOINT" envDefault:"0"`

	MaxBatchCheckpoints int           `env:"MAX_BATCH_CHECKPOINTS" envDefault:"50"`
	BatchTimeout        time.Duration `env:"BATCH_TIMEOUT" envDefault:"500ms"`
	CommitRetries       int           `env:"COMMIT_RETRIES" envDefault:"3"`

	NotifyChannel string        `env:"NOTIFY_CHANNEL" envDefault:"did_claimed"`
	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"2s"`
}

// LogConfig gates the verbose log lines.
type LogConfig struct {
	EnableDetailedLogs bool   `env:"ENABLE_DETAILED_LOGS" envDefault:"false"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	LogEvents          bool   `env:"LOG_EVENTS" envDefault:"false"`
}

// ShouldLogEvents reports whether per-event lines are wanted. LOG_EVENTS
// only takes effect together with ENABLE_DETAILED_LOGS.
func (c LogConfig) ShouldLogEvents() bool { return c.LogEvents && c.EnableDetailedLogs }

func (c LogConfig) ShouldLogDetailed() bool { return c.EnableDetailedLogs }

// Level is the handler threshold: LOG_LEVEL, lowered to debug when
// detailed logs are on. Unknown names fall back to info.
func (c LogConfig) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		lvl = slog.LevelInfo
	}
	if c.EnableDetailedLogs && lvl > slog.LevelDebug {
		lvl = slog.LevelDebug
	}
	return lvl
}

// FromEnv parses the process environment.
func FromEnv() (Config, error) {
	return parse(env.Options{})
}

// FromMap parses an explicit environment, for tests and tooling.
func FromMap(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PackageID == "" {
		cfg.PackageID = DefaultPackageID
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxBatchCheckpoints < 1 {
		return fmt.Errorf("MAX_BATCH_CHECKPOINTS must be >= 1, got %d", c.MaxBatchCheckpoints)
	}
	if c.CommitRetries < 1 {
		return fmt.Errorf("COMMIT_RETRIES must be >= 1, got %d", c.CommitRetries)
	}
	if c.NotifyChannel == "" {
		return fmt.Errorf("NOTIFY_CHANNEL must not be empty")
	}
	return nil
}

// Addr is the admin listen address; PORT may be given as 8080 or :8080.
func (c Config) Addr() string {
	p := strings.TrimPrefix(c.Port, ":")
	if p == "" {
		return ":8080"
	}
	return ":" + p
}

// NewLogger builds the JSON stdout logger.
func NewLogger(c LogConfig) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.Level()}))
}
