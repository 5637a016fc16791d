// Package config loads the enricher's settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/contact-enricher/internal/cache"
	"github.com/shpitdev/contact-enricher/internal/enrich/linkedin"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
)

type Config struct {
	Log      LogConfig                   `yaml:"log"`
	HTTP     HTTPConfig                  `yaml:"http"`
	Breakers map[string]circuit.Settings `yaml:"breakers"`
	Search   linkedin.Config             `yaml:"search"`
	Email    EmailConfig                 `yaml:"email"`
	AI       AIConfig                    `yaml:"ai"`
	Cache    CacheConfig                 `yaml:"cache"`
	Batch    BatchConfig                 `yaml:"batch"`
	Server   ServerConfig                `yaml:"server"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	UserAgents []string      `yaml:"user_agents"`
	CAPath     string        `yaml:"ca_path"`
}

type EmailConfig struct {
	HunterURL        string `yaml:"hunter_url"`
	HunterAPIKey     string `yaml:"hunter_api_key"`
	ZeroBounceURL    string `yaml:"zerobounce_url"`
	ZeroBounceAPIKey string `yaml:"zerobounce_api_key"`
}

type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Enabled reports whether the Gemini extractor should be built.
func (c AIConfig) Enabled() bool { return c.APIKey != "" && c.Model != "" }

type CacheConfig struct {
	Redis cache.RedisConfig `yaml:"redis"`
	TTL   time.Duration     `yaml:"ttl"`
}

type BatchConfig struct {
	Workers int `yaml:"workers"`
	// RequestTimeout bounds one Enrich call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	FailFast       bool          `yaml:"fail_fast"`
	// MinSuccessRate in [0,1]; 0 disables the hard-fail threshold.
	MinSuccessRate float64 `yaml:"min_success_rate"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Timeout: 15 * time.Second},
		Cache: CacheConfig{
			TTL: cache.DefaultTTL,
		},
		Batch: BatchConfig{
			Workers:        10,
			RequestTimeout: 60 * time.Second,
		},
		Server: ServerConfig{ListenAddr: ":8080"},
	}
}

// Load reads path (if non-empty), expands ${VAR} references, then applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Batch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("batch.workers must be > 0, got %d", c.Batch.Workers))
	}
	if c.Batch.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("batch.rate_limit_rps must be >= 0, got %g", c.Batch.RateLimitRPS))
	}
	if c.Batch.MinSuccessRate < 0 || c.Batch.MinSuccessRate > 1 {
		errs = append(errs, fmt.Errorf("batch.min_success_rate must be within [0,1], got %g", c.Batch.MinSuccessRate))
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, fmt.Errorf("http.timeout must be >= 0, got %s", c.HTTP.Timeout))
	}
	for name, s := range c.Breakers {
		if s.Threshold < 0 || s.RecoveryTime < 0 {
			errs = append(errs, fmt.Errorf("breakers.%s: threshold and recovery_time must be >= 0", name))
		}
	}
	if (c.AI.APIKey == "") != (c.AI.Model == "") {
		errs = append(errs, errors.New("ai.api_key and ai.model must be set together"))
	}
	return errors.Join(errs...)
}
