package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/personagen/internal/contract"
	"github.com/apresai/personagen/internal/gateway"
	"github.com/apresai/personagen/internal/persona"
	"github.com/apresai/personagen/internal/progress"
)

// State is a step of the regeneration loop.
type State string

const (
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateRetrying   State = "retrying"
	StateAccepted   State = "accepted"
	StateExhausted  State = "exhausted"
)

// Status is the terminal outcome reported to callers.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusExhausted Status = "exhausted"
)

// Attempt records one pass through generate, extract, normalize and validate.
type Attempt struct {
	Index      int                 `json:"index"`
	Persona    *persona.Persona    `json:"persona"`
	Validation *persona.Validation `json:"validation"`
	Fixes      []persona.Fix       `json:"fixes,omitempty"`
	RawLength  int                 `json:"raw_length"`
	Duration   time.Duration       `json:"duration_ns"`
}

// Outcome is what the controller hands back once it reaches a terminal state.
type Outcome struct {
	Status   Status
	Best     *Attempt
	Attempts []*Attempt
	// DeadlineExceeded is set when the loop stopped early on the request deadline.
	DeadlineExceeded bool
}

// Controller drives the bounded regeneration loop for one request.
type Controller struct {
	Gateway   gateway.Gateway
	Contract  *contract.Contract
	Extractor *persona.Extractor
	Normalize *persona.Normalizer
	Validator *persona.Validator
	// MaxAttempts overrides the contract's 1+max_retries when positive.
	MaxAttempts int
	// Deadline bounds the loop; zero means none.
	Deadline   time.Duration
	Logger     *slog.Logger
	OnProgress progress.Callback

	now func() time.Time
}

// NewController wires a controller for the contract c around gw.
func NewController(gw gateway.Gateway, c *contract.Contract, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		Gateway:    gw,
		Contract:   c,
		Extractor:  persona.NewExtractor(c),
		Normalize:  persona.NewNormalizer(),
		Validator:  persona.NewValidator(c),
		Logger:     logger,
		OnProgress: progress.NopCallback,
		now:        time.Now,
	}
}

func (ctl *Controller) attempts() int {
	if ctl.MaxAttempts > 0 {
		return ctl.MaxAttempts
	}
	return ctl.Contract.Attempts()
}

// Run loops until an attempt is accepted or the attempt budget (or deadline)
// runs out. It only returns an error for fatal gateway failures.
func (ctl *Controller) Run(ctx context.Context, req persona.Request) (*Outcome, error) {
	ctx, span := otel.Tracer("personagen/pipeline").Start(ctx, "controller.run")
	defer span.End()

	maxAttempts := ctl.attempts()
	params := gateway.Params{
		MaxTokens:   ctl.Contract.Generation.MaxTokens,
		Temperature: ctl.Contract.Generation.Temperature,
	}
	span.SetAttributes(
		attribute.Int("controller.max_attempts", maxAttempts),
		attribute.String("contract.version", ctl.Contract.Version),
	)

	start := ctl.now()
	out := &Outcome{}
	state := StateGenerating
	feedback := ""

	for {
		switch state {
		case StateGenerating:
			n := len(out.Attempts) + 1
			if len(out.Attempts) > 0 && ctl.Deadline > 0 && ctl.now().Sub(start) >= ctl.Deadline {
				ctl.Logger.WarnContext(ctx, "deadline reached, returning best attempt",
					"attempts", len(out.Attempts),
					"deadline", ctl.Deadline.String(),
				)
				out.DeadlineExceeded = true
				state = StateExhausted
				continue
			}

			ctl.emit(progress.Event{
				Stage: progress.StageGenerate, Message: fmt.Sprintf("Generating persona (attempt %d/%d)", n, maxAttempts),
				Percent: float64(n-1) / float64(maxAttempts), Attempt: n, MaxAttempts: maxAttempts,
			})
			a, err := ctl.generate(ctx, req, n, feedback, params)
			if err != nil {
				if len(out.Attempts) > 0 && errors.Is(err, context.DeadlineExceeded) {
					out.DeadlineExceeded = true
					state = StateExhausted
					continue
				}
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, &Error{Stage: "generate", Message: fmt.Sprintf("attempt %d failed", n), Err: gateway.AsFatal(err)}
			}
			out.Attempts = append(out.Attempts, a)
			state = StateValidating

		case StateValidating:
			a := out.Attempts[len(out.Attempts)-1]
			a.Validation = ctl.Validator.Validate(a.Persona)
			if out.Best == nil || a.Validation.Score > out.Best.Validation.Score {
				out.Best = a
			}

			ctl.Logger.InfoContext(ctx, "attempt validated",
				"attempt", a.Index,
				"score", a.Validation.Score,
				"accepted", a.Validation.Accepted,
				"issues", len(a.Validation.Issues),
				"fixes", len(a.Fixes),
			)
			ctl.emit(progress.Event{
				Stage: progress.StageValidate, Message: fmt.Sprintf("Scored %d/100", a.Validation.Score),
				Percent: float64(a.Index) / float64(maxAttempts), Attempt: a.Index, MaxAttempts: maxAttempts,
				Score: a.Validation.Score,
			})

			switch {
			case a.Validation.Accepted:
				out.Best = a
				state = StateAccepted
			case len(out.Attempts) < maxAttempts:
				state = StateRetrying
			default:
				state = StateExhausted
			}

		case StateRetrying:
			last := out.Attempts[len(out.Attempts)-1]
			feedback = last.Validation.Feedback()
			ctl.emit(progress.Event{
				Stage: progress.StageRetry, Message: fmt.Sprintf("Score %d below %d, retrying", last.Validation.Score, last.Validation.Threshold),
				Percent: float64(last.Index) / float64(maxAttempts), Attempt: last.Index, MaxAttempts: maxAttempts,
				Score: last.Validation.Score,
			})
			state = StateGenerating

		case StateAccepted:
			out.Status = StatusAccepted
			span.SetAttributes(attribute.String("controller.status", string(out.Status)), attribute.Int("controller.attempts", len(out.Attempts)))
			return out, nil

		case StateExhausted:
			out.Status = StatusExhausted
			span.SetAttributes(
				attribute.String("controller.status", string(out.Status)),
				attribute.Int("controller.attempts", len(out.Attempts)),
				attribute.Int("controller.best_score", out.Best.Validation.Score),
			)
			ctl.Logger.WarnContext(ctx, "attempts exhausted below threshold",
				"attempts", len(out.Attempts),
				"best_attempt", out.Best.Index,
				"best_score", out.Best.Validation.Score,
			)
			return out, nil
		}
	}
}

// generate runs one prompt, model call, extraction and normalization pass.
func (ctl *Controller) generate(ctx context.Context, req persona.Request, n int, feedback string, params gateway.Params) (*Attempt, error) {
	ctx, span := otel.Tracer("personagen/pipeline").Start(ctx, "controller.attempt")
	defer span.End()
	span.SetAttributes(attribute.Int("attempt", n), attribute.Bool("attempt.has_feedback", feedback != ""))

	started := ctl.now()
	prompt := persona.BuildPrompt(req, ctl.Contract, feedback)
	ctl.Logger.DebugContext(ctx, "prompt built",
		"attempt", n,
		"prompt_chars", len(prompt),
		"estimated_tokens", persona.EstimateTokens(prompt),
	)

	raw, err := ctl.Gateway.Generate(ctx, prompt, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	normalized, fixes := ctl.Normalize.Normalize(ctl.Extractor.Extract(raw))
	for _, f := range fixes {
		ctl.Logger.DebugContext(ctx, "normalizer fix applied", "attempt", n, "rule", f.Rule, "section", f.Section)
	}
	return &Attempt{
		Index:     n,
		Persona:   normalized,
		Fixes:     fixes,
		RawLength: len(raw),
		Duration:  ctl.now().Sub(started),
	}, nil
}

func (ctl *Controller) emit(e progress.Event) {
	if ctl.OnProgress != nil {
		ctl.OnProgress(e)
	}
}
