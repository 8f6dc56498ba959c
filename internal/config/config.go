package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"scribe-pipeline-go/internal/policy"
)

// Config is resolved once at startup. Nothing reads the environment after Load.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// FastPath selects the shortened generation/validation tuning.
	FastPath    bool
	Jitter      float64
	GracePeriod time.Duration
	TaskMapPath string

	DatasetPath     string
	DemoLimit       int
	DemoFailureRate float64
}

// Preset maps the FastPath toggle to a policy preset.
func (c Config) Preset() policy.Preset {
	if c.FastPath {
		return policy.PresetFastPath
	}
	return policy.PresetStandard
}

// Load reads configuration from the environment. Call godotenv.Load first to
// pick up a .env file.
func Load() (Config, error) {
	cfg := Config{
		Port:        envOr("PORT", "8080"),
		Environment: envOr("ENVIRONMENT", "local"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		TaskMapPath: os.Getenv("TASK_MAP_PATH"),
		DatasetPath: envOr("DATASET_PATH", "jobs.xlsx"),
	}

	var err error
	if cfg.FastPath, err = parseBool("FAST_PATH", false); err != nil {
		return Config{}, err
	}
	if cfg.Jitter, err = parseFloat("RETRY_JITTER", 0.2); err != nil {
		return Config{}, err
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		return Config{}, fmt.Errorf("RETRY_JITTER must be in [0, 1), got %v", cfg.Jitter)
	}
	if cfg.GracePeriod, err = parseDuration("ATTEMPT_GRACE_PERIOD", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.GracePeriod <= 0 {
		return Config{}, fmt.Errorf("ATTEMPT_GRACE_PERIOD must be positive, got %s", cfg.GracePeriod)
	}
	if cfg.DemoLimit, err = parseInt("DEMO_LIMIT", 5); err != nil {
		return Config{}, err
	}
	if cfg.DemoLimit < 0 {
		return Config{}, fmt.Errorf("DEMO_LIMIT must not be negative, got %d", cfg.DemoLimit)
	}
	if cfg.DemoFailureRate, err = parseFloat("DEMO_FAILURE_RATE", 0.3); err != nil {
		return Config{}, err
	}
	if cfg.DemoFailureRate < 0 || cfg.DemoFailureRate > 1 {
		return Config{}, fmt.Errorf("DEMO_FAILURE_RATE must be in [0, 1], got %v", cfg.DemoFailureRate)
	}
	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}

func parseFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

func parseInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func parseDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
