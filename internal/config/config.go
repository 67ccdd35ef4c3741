// Package config loads recsync configuration from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Client modes.
const (
	ModeReal  = "real"
	ModeLocal = "local"
)

// DefaultAlgorithm is the algorithm name sent when neither the course nor the
// configuration names one.
const DefaultAlgorithm = "biglearn_sparfa"

// Config is the full daemon configuration.
type Config struct {
	Client     ClientConfig     `yaml:"client"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Algorithms AlgorithmConfig  `yaml:"algorithms"`
	Database   string           `yaml:"database"`
	Listen     string           `yaml:"listen"`
	Log        LogConfig        `yaml:"log"`
}

// ClientConfig selects and configures the recommendation service client.
type ClientConfig struct {
	// Mode is "real" or "local".
	Mode    string `yaml:"mode"`
	BaseURL string `yaml:"base_url"`
	// Token is a static bearer token. It is ignored when client credentials
	// are configured.
	Token        string        `yaml:"token"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	TokenURL     string        `yaml:"token_url"`
	Timeout      time.Duration `yaml:"timeout"`
	// MaxBatch overrides the bulk chunk size per operation.
	MaxBatch map[string]int `yaml:"max_batch"`
}

// FetchConfig tunes the inline retries of recommendation fetches.
type FetchConfig struct {
	InlineMaxAttempts   int           `yaml:"inline_max_attempts"`
	InlineSleepInterval time.Duration `yaml:"inline_sleep_interval"`
}

// DispatcherConfig tunes the write job dispatcher.
type DispatcherConfig struct {
	GlobalMax      int            `yaml:"global_max"`
	ByOperation    map[string]int `yaml:"by_operation"`
	PollInterval   time.Duration  `yaml:"poll_interval"`
	MaxAttempts    int            `yaml:"max_attempts"`
	InitialBackoff time.Duration  `yaml:"initial_backoff"`
	MaxBackoff     time.Duration  `yaml:"max_backoff"`
}

// AlgorithmConfig holds the default algorithm name per fetch operation.
type AlgorithmConfig struct {
	AssignmentPEs      string `yaml:"assignment_pes"`
	AssignmentSPEs     string `yaml:"assignment_spes"`
	PracticeWorstAreas string `yaml:"practice_worst_areas"`
	StudentClues       string `yaml:"student_clues"`
	TeacherClues       string `yaml:"teacher_clues"`
}

// LogConfig configures logging.
type LogConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dbPath := "recsync.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".recsync", "recsync.db")
	}
	return &Config{
		Client: ClientConfig{
			Mode:    ModeLocal,
			Timeout: 30 * time.Second,
			MaxBatch: map[string]int{
				"update_rosters": 100,
			},
		},
		Fetch: FetchConfig{
			InlineMaxAttempts:   3,
			InlineSleepInterval: time.Second,
		},
		Dispatcher: DispatcherConfig{
			GlobalMax:      10,
			ByOperation:    map[string]int{},
			PollInterval:   500 * time.Millisecond,
			MaxAttempts:    8,
			InitialBackoff: time.Second,
			MaxBackoff:     5 * time.Minute,
		},
		Algorithms: AlgorithmConfig{
			AssignmentPEs:      DefaultAlgorithm,
			AssignmentSPEs:     DefaultAlgorithm,
			PracticeWorstAreas: DefaultAlgorithm,
			StudentClues:       DefaultAlgorithm,
			TeacherClues:       DefaultAlgorithm,
		},
		Database: dbPath,
		Listen:   "127.0.0.1:7467",
		Log: LogConfig{
			Mode:  "development",
			Level: "info",
		},
	}
}

// Load reads the YAML file at path (if non-empty), then a .env file in the
// working directory (if present), then RECSYNC_* environment variables, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Client.Mode = getEnv("RECSYNC_CLIENT_MODE", c.Client.Mode)
	c.Client.BaseURL = getEnv("RECSYNC_BASE_URL", c.Client.BaseURL)
	c.Client.Token = getEnv("RECSYNC_TOKEN", c.Client.Token)
	c.Client.ClientID = getEnv("RECSYNC_CLIENT_ID", c.Client.ClientID)
	c.Client.ClientSecret = getEnv("RECSYNC_CLIENT_SECRET", c.Client.ClientSecret)
	c.Client.TokenURL = getEnv("RECSYNC_TOKEN_URL", c.Client.TokenURL)
	c.Database = getEnv("RECSYNC_DB", c.Database)
	c.Listen = getEnv("RECSYNC_LISTEN", c.Listen)
	c.Log.Mode = getEnv("RECSYNC_LOG_MODE", c.Log.Mode)
	c.Log.Level = getEnv("RECSYNC_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("RECSYNC_LOG_FILE", c.Log.File)

	var err error
	if c.Client.Timeout, err = getEnvDuration("RECSYNC_TIMEOUT", c.Client.Timeout); err != nil {
		return err
	}
	if c.Fetch.InlineMaxAttempts, err = getEnvInt("RECSYNC_INLINE_MAX_ATTEMPTS", c.Fetch.InlineMaxAttempts); err != nil {
		return err
	}
	if c.Fetch.InlineSleepInterval, err = getEnvDuration("RECSYNC_INLINE_SLEEP_INTERVAL", c.Fetch.InlineSleepInterval); err != nil {
		return err
	}
	if c.Dispatcher.GlobalMax, err = getEnvInt("RECSYNC_DISPATCH_GLOBAL_MAX", c.Dispatcher.GlobalMax); err != nil {
		return err
	}
	if c.Dispatcher.MaxAttempts, err = getEnvInt("RECSYNC_DISPATCH_MAX_ATTEMPTS", c.Dispatcher.MaxAttempts); err != nil {
		return err
	}
	if c.Dispatcher.PollInterval, err = getEnvDuration("RECSYNC_DISPATCH_POLL_INTERVAL", c.Dispatcher.PollInterval); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	var errs []error
	switch c.Client.Mode {
	case ModeLocal:
	case ModeReal:
		if c.Client.BaseURL == "" {
			errs = append(errs, errors.New("client.base_url is required in real mode"))
		}
		if c.Client.ClientID != "" && c.Client.TokenURL == "" {
			errs = append(errs, errors.New("client.token_url is required with client credentials"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown client.mode %q", c.Client.Mode))
	}
	if c.Fetch.InlineMaxAttempts < 1 {
		errs = append(errs, errors.New("fetch.inline_max_attempts must be at least 1"))
	}
	if c.Fetch.InlineSleepInterval < 0 {
		errs = append(errs, errors.New("fetch.inline_sleep_interval must not be negative"))
	}
	if c.Dispatcher.GlobalMax < 1 {
		errs = append(errs, errors.New("dispatcher.global_max must be at least 1"))
	}
	if c.Dispatcher.MaxAttempts < 1 {
		errs = append(errs, errors.New("dispatcher.max_attempts must be at least 1"))
	}
	if c.Dispatcher.PollInterval <= 0 {
		errs = append(errs, errors.New("dispatcher.poll_interval must be positive"))
	}
	for op, n := range c.Client.MaxBatch {
		if n < 1 {
			errs = append(errs, fmt.Errorf("client.max_batch.%s must be at least 1", op))
		}
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	return errors.Join(errs...)
}

// Algorithm returns the configured algorithm for a fetch operation.
func (a AlgorithmConfig) Algorithm(operation string) string {
	var name string
	switch operation {
	case "fetch_assignment_pes":
		name = a.AssignmentPEs
	case "fetch_assignment_spes":
		name = a.AssignmentSPEs
	case "fetch_practice_worst_areas_exercises":
		name = a.PracticeWorstAreas
	case "fetch_student_clues":
		name = a.StudentClues
	case "fetch_teacher_clues":
		name = a.TeacherClues
	}
	if name == "" {
		return DefaultAlgorithm
	}
	return name
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
