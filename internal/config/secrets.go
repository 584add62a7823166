package config

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretGetter is the part of the Secrets Manager client used here.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadSecrets fills API keys that are still empty from Secrets Manager,
// reading <prefix><ENV_NAME>. Missing secrets are logged and skipped.
// It returns the number of keys loaded.
func (s *Settings) LoadSecrets(ctx context.Context, client SecretGetter, logger *slog.Logger) int {
	if s.SecretPrefix == "" {
		return 0
	}
	targets := []struct {
		env string
		dst *string
	}{
		{"ANTHROPIC_API_KEY", &s.Keys.Anthropic},
		{"GEMINI_API_KEY", &s.Keys.Gemini},
		{"OPENAI_API_KEY", &s.Keys.OpenAI},
	}

	loaded := 0
	for _, t := range targets {
		// Skip if already set in environment
		if *t.dst != "" {
			continue
		}
		secretID := s.SecretPrefix + t.env
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: &secretID,
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil && *result.SecretString != "" {
			*t.dst = *result.SecretString
			loaded++
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}
	return loaded
}
