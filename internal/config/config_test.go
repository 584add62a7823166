package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PERSONAGEN_MODEL", "PERSONAGEN_CONTRACT", "PERSONAGEN_CONTRACT_DIR", "PERSONAGEN_DEADLINE", "ANTHROPIC_API_KEY",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "AWS_REGION", "SECRET_PREFIX", "PORT", "MAX_TASKS",
		"LOG_LEVEL", "LOG_FORMAT", "CONTRACT_CACHE_SIZE", "CONTRACT_CACHE_TTL", "TRACE_SAMPLE_RATIO", "DEPLOY_ENV",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	s, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sonnet", s.Model)
	assert.Equal(t, "default", s.Contract)
	assert.Empty(t, s.ContractDir)
	assert.Zero(t, s.Deadline)
	assert.Equal(t, 8000, s.Port)
	assert.Equal(t, 5, s.MaxTasks)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, 5*time.Minute, s.CacheTTL)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PERSONAGEN_MODEL", "gemini-flash")
	t.Setenv("PERSONAGEN_DEADLINE", "90s")
	t.Setenv("MAX_TASKS", "2")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("PERSONAGEN_CONTRACT_DIR", "s3://ops/contracts")

	s, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "gemini-flash", s.Model)
	assert.Equal(t, "s3://ops/contracts", s.ContractDir)
	assert.Equal(t, 90*time.Second, s.Deadline)
	assert.Equal(t, 2, s.MaxTasks)
	assert.Equal(t, "g-key", s.Keys.Gemini)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"PERSONAGEN_MODEL":    "gpt-9",
		"PERSONAGEN_DEADLINE": "soon",
		"PORT":                "eighty",
		"TRACE_SAMPLE_RATIO":  "1.5",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := FromEnv()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("PERSONAGEN_CONTRACT")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PERSONAGEN_CONTRACT=s3://bucket/persona.yaml\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PERSONAGEN_CONTRACT") })

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/persona.yaml", s.Contract)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f[*in.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: &v}, nil
}

func TestLoadSecretsFillsMissingKeys(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := Settings{SecretPrefix: "/personagen/"}
	s.Keys.Anthropic = "from-env"

	n := s.LoadSecrets(context.Background(), fakeSecrets{
		"/personagen/ANTHROPIC_API_KEY": "from-secret",
		"/personagen/OPENAI_API_KEY":    "sk-openai",
	}, logger)

	assert.Equal(t, 1, n)
	assert.Equal(t, "from-env", s.Keys.Anthropic)
	assert.Equal(t, "sk-openai", s.Keys.OpenAI)
	assert.Empty(t, s.Keys.Gemini)

	none := Settings{}
	assert.Zero(t, none.LoadSecrets(context.Background(), fakeSecrets{}, logger))
}
