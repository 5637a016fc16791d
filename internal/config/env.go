package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func applyEnv(cfg *Config) error {
	var err error
	if cfg.Batch.Workers, err = envInt("WORKERS", cfg.Batch.Workers); err != nil {
		return err
	}
	if cfg.Batch.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", cfg.Batch.RequestTimeout); err != nil {
		return err
	}
	if cfg.Batch.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", cfg.Batch.RateLimitRPS); err != nil {
		return err
	}
	if cfg.Batch.FailFast, err = envBool("FAIL_FAST", cfg.Batch.FailFast); err != nil {
		return err
	}
	if cfg.Batch.MinSuccessRate, err = envFloat("MIN_SUCCESS_RATE", cfg.Batch.MinSuccessRate); err != nil {
		return err
	}

	envString("GEMINI_API_KEY", &cfg.AI.APIKey)
	envString("GEMINI_MODEL", &cfg.AI.Model)
	envString("GEMINI_BASE_URL", &cfg.AI.BaseURL)
	envString("HUNTER_API_KEY", &cfg.Email.HunterAPIKey)
	envString("ZEROBOUNCE_API_KEY", &cfg.Email.ZeroBounceAPIKey)
	envString("REDIS_URL", &cfg.Cache.Redis.URL)
	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LISTEN_ADDR", &cfg.Server.ListenAddr)
	return nil
}

func envString(varName string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(varName string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
