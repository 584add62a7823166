// Package config resolves runtime settings from the environment, an
// optional .env file and AWS Secrets Manager.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/apresai/personagen/internal/gateway"
)

// Settings holds everything the binaries read from the environment.
type Settings struct {
	Model    string
	Contract string
	// ContractDir is a directory or s3:// prefix holding the named
	// contracts MCP callers may select.
	ContractDir  string
	Deadline     time.Duration
	Keys         gateway.Keys
	AWSRegion    string
	SecretPrefix string
	Port         int
	MaxTasks     int
	LogLevel     string
	LogFormat    string
	CacheSize    int
	CacheTTL     time.Duration
	// Environment and TraceSampleRatio label and sample exported spans.
	Environment      string
	TraceSampleRatio float64
}

// Load reads .env (when present) and then the process environment.
// Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (Settings, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Settings{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds Settings from environment variables only.
func FromEnv() (Settings, error) {
	s := Settings{
		Model:        envOr("PERSONAGEN_MODEL", gateway.DefaultModel),
		Contract:     envOr("PERSONAGEN_CONTRACT", "default"),
		ContractDir:  os.Getenv("PERSONAGEN_CONTRACT_DIR"),
		AWSRegion:    envOr("AWS_REGION", "us-east-1"),
		SecretPrefix: os.Getenv("SECRET_PREFIX"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		LogFormat:    envOr("LOG_FORMAT", "json"),
		Environment:  envOr("DEPLOY_ENV", "dev"),
		Keys: gateway.Keys{
			Anthropic: os.Getenv("ANTHROPIC_API_KEY"),
			Gemini:    os.Getenv("GEMINI_API_KEY"),
			OpenAI:    os.Getenv("OPENAI_API_KEY"),
		},
	}

	var err error
	if s.Deadline, err = envDuration("PERSONAGEN_DEADLINE", 0); err != nil {
		return Settings{}, err
	}
	if s.CacheTTL, err = envDuration("CONTRACT_CACHE_TTL", 5*time.Minute); err != nil {
		return Settings{}, err
	}
	if s.Port, err = envInt("PORT", 8000); err != nil {
		return Settings{}, err
	}
	if s.MaxTasks, err = envInt("MAX_TASKS", 5); err != nil {
		return Settings{}, err
	}
	if s.CacheSize, err = envInt("CONTRACT_CACHE_SIZE", 16); err != nil {
		return Settings{}, err
	}
	if s.TraceSampleRatio, err = envFloat("TRACE_SAMPLE_RATIO", 1); err != nil {
		return Settings{}, err
	}
	if s.TraceSampleRatio < 0 || s.TraceSampleRatio > 1 {
		return Settings{}, fmt.Errorf("TRACE_SAMPLE_RATIO: %v is outside 0..1", s.TraceSampleRatio)
	}
	if !gateway.IsValidModel(s.Model) {
		return Settings{}, fmt.Errorf("PERSONAGEN_MODEL: unknown model %q (valid: %s)", s.Model, strings.Join(gateway.ModelNames(), ", "))
	}
	return s, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, v)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}
