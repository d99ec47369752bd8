package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: PRESTIGE_MATCHING__MAX_PASSES -> matching.max_passes.
const EnvPrefix = "PRESTIGE_"

// ConfigPathEnvVar points at an optional YAML file.
const ConfigPathEnvVar = "CONFIG_PATH"

// Store backends.
const (
	BackendDynamo   = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Store     StoreConfig     `koanf:"store"`
	AWS       AWSConfig       `koanf:"aws"`
	Matching  MatchingConfig  `koanf:"matching"`
	NATS      NATSConfig      `koanf:"nats"`
	Redis     RedisConfig     `koanf:"redis"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           string        `koanf:"port" validate:"required,numeric"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type StoreConfig struct {
	Backend          string `koanf:"backend" validate:"oneof=dynamodb sqlite postgres"`
	DSN              string `koanf:"dsn" validate:"required_unless=Backend dynamodb"`
	PreferencesTable string `koanf:"preferences_table" validate:"required"`
	MatchesTable     string `koanf:"matches_table" validate:"required"`
	MatchRunsTable   string `koanf:"match_runs_table" validate:"required"`
	MaxAppendRetries int    `koanf:"max_append_retries" validate:"gte=0"`
}

type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`
}

type MatchingConfig struct {
	// MaxPasses overrides the computed pass bound when > 0.
	MaxPasses  int           `koanf:"max_passes" validate:"gte=0"`
	Interval   time.Duration `koanf:"interval" validate:"gte=0"`
	RunTimeout time.Duration `koanf:"run_timeout" validate:"gt=0"`
	LockTTL    time.Duration `koanf:"lock_ttl" validate:"gt=0"`
}

type NATSConfig struct {
	Enabled      bool   `koanf:"enabled"`
	URL          string `koanf:"url" validate:"required_if=Enabled true"`
	SwipeStream  string `koanf:"swipe_stream"`
	SwipeSubject string `koanf:"swipe_subject"`
	DurableName  string `koanf:"durable_name"`
	RunSubject   string `koanf:"run_subject"`
}

type RedisConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
	LockKey string `koanf:"lock_key"`
}

type ArchiveConfig struct {
	Bucket string `koanf:"bucket"`
	Prefix string `koanf:"prefix"`
}

type TelemetryConfig struct {
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			RequestTimeout: 5 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{
			Backend:          BackendDynamo,
			PreferencesTable: "Preferences",
			MatchesTable:     "Matches",
			MatchRunsTable:   "MatchRuns",
			MaxAppendRetries: 5,
		},
		Matching: MatchingConfig{
			Interval:   0,
			RunTimeout: 2 * time.Minute,
			LockTTL:    5 * time.Minute,
		},
		NATS: NATSConfig{
			URL:          "nats://localhost:4222",
			SwipeStream:  "SWIPES",
			SwipeSubject: "swipes.recorded",
			DurableName:  "prestige-matcher",
			RunSubject:   "matching.run.completed",
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			LockKey: "prestige:matching:lock",
		},
		Archive:   ArchiveConfig{Prefix: "non-converged/"},
		Telemetry: TelemetryConfig{ServiceName: "prestige-matcher"},
	}
}

// Load layers defaults, the optional YAML file at path (or $CONFIG_PATH) and
// PRESTIGE_* environment variables, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = os.Getenv("AWS_REGION")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
