package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/apresai/personagen/internal/contract"
	"github.com/apresai/personagen/internal/gateway"
	"github.com/apresai/personagen/internal/persona"
	"github.com/apresai/personagen/internal/progress"
)

type Options struct {
	Model    string
	Keys     gateway.Keys
	AWS      *aws.Config
	Contract *contract.Contract
	// MaxRetries overrides the contract's max_retries when non-nil. The
	// zero value keeps the contract's setting.
	MaxRetries *int
	Deadline   time.Duration
	// Summary also generates the therapist-facing summary.
	Summary    bool
	Logger     *slog.Logger
	OnProgress progress.Callback
	// Gateway replaces the model backend built from Model and Keys.
	Gateway gateway.Gateway
	// Retry overrides the contract's gateway retry settings.
	Retry *gateway.RetryPolicy
	// RequestID is assigned when empty.
	RequestID string
}

// Error wraps a fatal failure with the stage it happened in.
type Error struct {
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is the outcome of one generation request.
type Result struct {
	RequestID       string              `json:"request_id"`
	Status          Status              `json:"status"`
	Framing         string              `json:"framing"`
	Request         persona.Request     `json:"request"`
	Persona         *persona.Persona    `json:"persona"`
	Card            persona.Card        `json:"card"`
	Summary         string              `json:"summary,omitempty"`
	SummaryIssues   []persona.Issue     `json:"summary_issues,omitempty"`
	SummaryError    string              `json:"summary_error,omitempty"`
	Validation      *persona.Validation `json:"validation"`
	BestAttempt     int                 `json:"best_attempt"`
	Attempts        []*Attempt          `json:"attempts"`
	Fallbacks       []string            `json:"fallbacks,omitempty"`
	DeadlineHit     bool                `json:"deadline_exceeded,omitempty"`
	ContractName    string              `json:"contract_name"`
	ContractVersion string              `json:"contract_version"`
	Model           string              `json:"model"`
	GeneratedAt     time.Time           `json:"generated_at"`
	Elapsed         time.Duration       `json:"elapsed_ns"`
}

// Accepted reports whether the best attempt met the acceptance threshold.
func (r *Result) Accepted() bool {
	return r.Status == StatusAccepted
}

// NewRequestID returns a fresh ULID string.
func NewRequestID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

// Generate runs one request end to end: it builds the gateway, runs the
// regeneration loop and, when enabled, the summary alongside it. Only fatal
// errors are returned; a below-threshold persona comes back as exhausted.
func Generate(ctx context.Context, req persona.Request, opts Options) (*Result, error) {
	started := time.Now()
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return nil, &Error{Stage: "request", Message: "invalid generation request",
			Err: gateway.Fatal("personagen", gateway.KindInvalidRequest, 0, err)}
	}

	c := opts.Contract
	if c == nil {
		c = contract.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onProgress := opts.OnProgress
	if onProgress == nil {
		onProgress = progress.NopCallback
	}

	requestID := opts.RequestID
	if requestID == "" {
		id, err := NewRequestID()
		if err != nil {
			return nil, &Error{Stage: "request", Message: "failed to assign request id", Err: err}
		}
		requestID = id
	}
	logger = logger.With("request_id", requestID)

	ctx, span := otel.Tracer("personagen/pipeline").Start(ctx, "pipeline.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.String("contract.name", c.Name),
		attribute.String("contract.version", c.Version),
	)

	gw := opts.Gateway
	if gw == nil {
		backend, err := gateway.New(ctx, gateway.Options{Model: opts.Model, Keys: opts.Keys, AWS: opts.AWS})
		if err != nil {
			return nil, &Error{Stage: "gateway", Message: "failed to create model backend", Err: err}
		}
		gw = backend
	}
	policy := gateway.RetryPolicy{
		Attempts:   c.Generation.GatewayAttempts,
		Delay:      c.Generation.RetryDelay,
		Multiplier: 1,
	}
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	gw = gateway.WithRetry(gw, policy, logger)

	framing := persona.ResolveFraming(req, c)
	req.Framing = framing
	logger.InfoContext(ctx, "generation started",
		"therapist", req.Name,
		"focus", req.Focus,
		"framing", framing,
		"backend", gw.Name(),
		"contract", c.Name+"@"+c.Version,
	)

	ctl := NewController(gw, c, logger)
	ctl.OnProgress = onProgress
	ctl.Deadline = opts.Deadline
	if opts.MaxRetries != nil {
		ctl.MaxAttempts = 1 + max(*opts.MaxRetries, 0)
	}

	var (
		outcome    *Outcome
		summary    string
		summaryErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.Summary && c.Summary != nil {
		g.Go(func() error {
			onProgress(progress.NewEvent(progress.StageSummary, "Writing therapist summary", 0, started))
			summary, summaryErr = generateSummary(gctx, gw, req, c)
			if summaryErr != nil {
				logger.WarnContext(gctx, "summary generation failed", "error", summaryErr)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		outcome, err = ctl.Run(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "generation failed", "error", err, "kind", string(gateway.KindOf(err)))
		onProgress(progress.Event{Stage: progress.StageComplete, Message: "Generation failed", Error: err})
		return nil, err
	}

	best := outcome.Best
	p := best.Persona.Clone()
	fallbacks := persona.ApplyFallbacks(p, c, req)
	if len(fallbacks) > 0 {
		logger.WarnContext(ctx, "filled missing sections with fallback text", "sections", strings.Join(fallbacks, ","))
	}

	res := &Result{
		RequestID:       requestID,
		Status:          outcome.Status,
		Framing:         framing,
		Request:         req,
		Persona:         p,
		Card:            p.Card(),
		Validation:      best.Validation,
		BestAttempt:     best.Index,
		Attempts:        outcome.Attempts,
		Fallbacks:       fallbacks,
		DeadlineHit:     outcome.DeadlineExceeded,
		ContractName:    c.Name,
		ContractVersion: c.Version,
		Model:           gw.Name(),
		GeneratedAt:     started.UTC(),
	}
	if opts.Summary && c.Summary != nil {
		if summaryErr != nil {
			res.SummaryError = summaryErr.Error()
		} else {
			res.Summary = summary
			res.SummaryIssues = persona.ValidateSummary(summary, c)
		}
	}
	res.Elapsed = time.Since(started)

	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("score", res.Validation.Score),
		attribute.Int("attempts", len(res.Attempts)),
	)
	logger.InfoContext(ctx, "generation finished",
		"status", string(res.Status),
		"score", res.Validation.Score,
		"attempts", len(res.Attempts),
		"best_attempt", res.BestAttempt,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	onProgress(progress.Event{
		Stage:   progress.StageComplete,
		Message: fmt.Sprintf("Persona %s with score %d/100", res.Status, res.Validation.Score),
		Percent: 1, Status: string(res.Status), Score: res.Validation.Score,
		Attempt: len(res.Attempts), MaxAttempts: ctl.attempts(),
	})
	return res, nil
}

func generateSummary(ctx context.Context, gw gateway.Gateway, req persona.Request, c *contract.Contract) (string, error) {
	ctx, span := otel.Tracer("personagen/pipeline").Start(ctx, "pipeline.summary")
	defer span.End()

	prompt := persona.BuildSummaryPrompt(req, c)
	raw, err := gw.Generate(ctx, prompt, gateway.Params{
		MaxTokens:   c.Generation.MaxTokens,
		Temperature: c.Generation.Temperature,
	})
	if err != nil {
		return "", err
	}
	return persona.NewNormalizer().NormalizeText(cleanSummary(raw)), nil
}

// cleanSummary drops a leading label line and markdown emphasis.
func cleanSummary(raw string) string {
	text := strings.TrimSpace(raw)
	if first, rest, ok := strings.Cut(text, "\n"); ok && len(strings.Fields(first)) <= 4 && !strings.HasSuffix(strings.TrimSpace(first), ".") {
		text = strings.TrimSpace(rest)
	}
	text = strings.ReplaceAll(text, "**", "")
	return strings.Join(strings.Fields(text), " ")
}
