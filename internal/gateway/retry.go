package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryPolicy bounds the retries of transient failures.
type RetryPolicy struct {
	Attempts   int           // total attempts, including the first
	Delay      time.Duration // wait before the second attempt
	Multiplier float64       // delay growth per attempt; <= 1 keeps it fixed
}

type retrying struct {
	next   Gateway
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry retries transient errors from g. Fatal errors return at once.
// When the budget runs out, the last error is returned as fatal with its
// kind preserved. Waiting blocks only the calling goroutine.
func WithRetry(g Gateway, policy RetryPolicy, logger *slog.Logger) Gateway {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{next: g, policy: policy, logger: logger, sleep: sleepCtx}
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	ctx, span := otel.Tracer("personagen/gateway").Start(ctx, "gateway.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.backend", r.next.Name()),
		attribute.Int("gateway.prompt_length", len(prompt)),
		attribute.Int64("gateway.max_tokens", params.MaxTokens),
	)

	delay := r.policy.Delay
	var last error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", r.fail(span, Classify(r.next.Name(), 0, err))
		}

		start := time.Now()
		text, err := r.next.Generate(ctx, prompt, params)
		if err == nil {
			span.SetAttributes(attribute.Int("gateway.attempts", attempt), attribute.Int("gateway.response_length", len(text)))
			r.logger.DebugContext(ctx, "model call succeeded",
				"backend", r.next.Name(),
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_chars", len(text),
			)
			return text, nil
		}
		if !IsTransient(err) {
			return "", r.fail(span, AsFatal(err))
		}

		last = err
		r.logger.WarnContext(ctx, "model call failed, retrying",
			"backend", r.next.Name(),
			"attempt", attempt,
			"max_attempts", r.policy.Attempts,
			"error", err,
		)
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))

		if attempt < r.policy.Attempts {
			if err := r.sleep(ctx, delay); err != nil {
				return "", r.fail(span, Classify(r.next.Name(), 0, err))
			}
			if r.policy.Multiplier > 1 {
				delay = time.Duration(float64(delay) * r.policy.Multiplier)
			}
		}
	}

	return "", r.fail(span, exhausted(last, r.policy.Attempts))
}

// exhausted turns the last transient error into a fatal one of the same kind.
func exhausted(last error, attempts int) error {
	var ge *Error
	if !errors.As(last, &ge) {
		return AsFatal(last)
	}
	return Fatal(ge.Provider, ge.Kind, ge.StatusCode, fmt.Errorf("gave up after %d attempts: %w", attempts, ge.Err))
}

func (r *retrying) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
