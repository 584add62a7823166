package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/personagen/internal/contract"
	"github.com/apresai/personagen/internal/gateway"
	"github.com/apresai/personagen/internal/observability"
	"github.com/apresai/personagen/internal/persona"
	"github.com/apresai/personagen/internal/pipeline"
	"github.com/apresai/personagen/internal/progress"
)

// ErrBusy is returned when every generation slot is taken.
var ErrBusy = errors.New("max concurrent tasks reached")

// kindCanceled marks tasks stopped through CancelTask.
const kindCanceled = "canceled"

// GenerateRequest holds parameters for one persona generation.
type GenerateRequest struct {
	Persona persona.Request
	Model   string
	// Contract is a catalog name; empty selects the server default.
	Contract string
	// MaxRetries overrides the contract when set.
	MaxRetries *int
	Summary    bool

	// Per-request API key overrides (BYOK). Empty = use server defaults.
	AnthropicAPIKey string
	GeminiAPIKey    string
	OpenAIAPIKey    string
}

// TaskStatus is the lifecycle of a background generation.
type TaskStatus string

const (
	TaskRunning  TaskStatus = "running"
	TaskComplete TaskStatus = "complete"
	TaskFailed   TaskStatus = "failed"
)

// Task is a snapshot of a background generation.
type Task struct {
	ID        string           `json:"task_id"`
	Status    TaskStatus       `json:"status"`
	Stage     progress.Stage   `json:"stage,omitempty"`
	Percent   float64          `json:"progress_percent"`
	Message   string           `json:"stage_message,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Result    *pipeline.Result `json:"result,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// TaskManager bounds concurrent generations and keeps recent background
// results in memory.
type TaskManager struct {
	contracts *contract.Catalog
	base      pipeline.Options
	log       *slog.Logger
	baseCtx   context.Context // cancelled on SIGTERM for graceful shutdown

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	tasks    *lru.Cache[string, *Task]
	maxTasks int
	running  int
}

// NewTaskManager creates a task manager. base carries the server defaults
// (model, keys, AWS config, deadline) applied to every request.
func NewTaskManager(baseCtx context.Context, contracts *contract.Catalog, base pipeline.Options, maxTasks, keep int, logger *slog.Logger) (*TaskManager, error) {
	if maxTasks <= 0 {
		maxTasks = 5
	}
	if keep <= 0 {
		keep = 256
	}
	tasks, err := lru.New[string, *Task](keep)
	if err != nil {
		return nil, fmt.Errorf("create task cache: %w", err)
	}
	return &TaskManager{
		contracts: contracts,
		base:      base,
		log:       logger,
		baseCtx:   baseCtx,
		cancels:   make(map[string]context.CancelFunc),
		tasks:     tasks,
		maxTasks:  maxTasks,
	}, nil
}

func (tm *TaskManager) acquire() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.running >= tm.maxTasks {
		return fmt.Errorf("%w (%d)", ErrBusy, tm.maxTasks)
	}
	tm.running++
	return nil
}

func (tm *TaskManager) release() {
	tm.mu.Lock()
	tm.running--
	tm.mu.Unlock()
}

// Running reports the number of generations in flight.
func (tm *TaskManager) Running() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.running
}

// Generate runs one request on the caller's goroutine.
func (tm *TaskManager) Generate(ctx context.Context, req GenerateRequest) (*pipeline.Result, error) {
	if err := tm.acquire(); err != nil {
		return nil, err
	}
	defer tm.release()
	return tm.run(ctx, "", req, nil)
}

// StartTask reserves a slot and runs the request in the background.
// Returns the task ID immediately.
func (tm *TaskManager) StartTask(ctx context.Context, req GenerateRequest) (string, error) {
	id, err := pipeline.NewRequestID()
	if err != nil {
		return "", err
	}
	if err := tm.acquire(); err != nil {
		return "", err
	}

	// Derive the goroutine context from baseCtx (cancelled on SIGTERM) rather
	// than the tool call context, carrying the call's trace span.
	taskCtx := observability.DetachTraceContextFrom(ctx, tm.baseCtx)
	taskCtx, cancel := context.WithCancel(taskCtx)

	tm.mu.Lock()
	tm.cancels[id] = cancel
	tm.tasks.Add(id, &Task{ID: id, Status: TaskRunning, CreatedAt: time.Now().UTC()})
	tm.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			tm.mu.Lock()
			delete(tm.cancels, id)
			tm.mu.Unlock()
			tm.release()
		}()

		res, err := tm.run(taskCtx, id, req, func(e progress.Event) {
			tm.update(id, func(t *Task) {
				t.Stage = e.Stage
				t.Percent = e.Percent
				t.Message = e.Message
			})
		})
		tm.update(id, func(t *Task) {
			if err != nil {
				t.Status = TaskFailed
				t.Error = err.Error()
				t.ErrorKind = string(gateway.KindOf(err))
				if errors.Is(taskCtx.Err(), context.Canceled) && tm.baseCtx.Err() == nil {
					t.ErrorKind = kindCanceled
				}
				return
			}
			t.Status = TaskComplete
			t.Percent = 1
			t.Result = res
		})
	}()
	return id, nil
}

// GetTask returns a copy of the task with the given ID.
func (tm *TaskManager) GetTask(id string) (Task, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t, ok := tm.tasks.Get(id)
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// CancelTask cancels a running task. It reports false when the task is
// unknown or already finished.
func (tm *TaskManager) CancelTask(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	cancel, ok := tm.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

func (tm *TaskManager) update(id string, fn func(*Task)) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if t, ok := tm.tasks.Peek(id); ok {
		fn(t)
	}
}

func (tm *TaskManager) run(ctx context.Context, id string, req GenerateRequest, onProgress progress.Callback) (*pipeline.Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("task_id", id), attribute.String("model", req.Model)),
	)
	defer span.End()

	c, err := tm.contracts.Get(ctx, req.Contract)
	if err != nil {
		logContractError(ctx, tm.log, req.Contract, err)
		span.SetStatus(codes.Error, "unknown contract")
		return nil, &pipeline.Error{Stage: "contract", Message: "contract lookup failed",
			Err: gateway.Fatal("personagen", gateway.KindInvalidRequest, 0, err)}
	}

	opts := tm.base
	opts.Contract = c
	opts.RequestID = id
	opts.Logger = tm.log
	opts.OnProgress = onProgress
	opts.Summary = req.Summary
	if req.MaxRetries != nil {
		opts.MaxRetries = req.MaxRetries
	}
	if req.Model != "" {
		opts.Model = req.Model
	}
	if req.AnthropicAPIKey != "" {
		opts.Keys.Anthropic = req.AnthropicAPIKey
	}
	if req.GeminiAPIKey != "" {
		opts.Keys.Gemini = req.GeminiAPIKey
	}
	if req.OpenAIAPIKey != "" {
		opts.Keys.OpenAI = req.OpenAIAPIKey
	}

	res, err := pipeline.Generate(ctx, req.Persona, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		tm.log.ErrorContext(ctx, "Generation failed", "task_id", id, "error", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("request_id", res.RequestID),
		attribute.String("status", string(res.Status)),
		attribute.Int("score", res.Validation.Score),
	)
	span.SetStatus(codes.Ok, "complete")
	return res, nil
}
