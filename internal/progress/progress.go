package progress

import "time"

// Stage identifies which pipeline stage is active.
type Stage string

const (
	StageSummary  Stage = "summary"
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
	StageRetry    Stage = "retry"
	StageComplete Stage = "complete"
)

// Event carries progress information from the pipeline to the renderer.
type Event struct {
	Stage   Stage
	Message string
	Percent float64 // 0.0–1.0
	// Attempt and MaxAttempts describe the regeneration loop.
	Attempt     int
	MaxAttempts int
	// Score is set on StageValidate.
	Score   int
	Elapsed time.Duration
	Error   error
	// Status is "accepted" or "exhausted", set on StageComplete.
	Status string
	// OutputFile is set on StageComplete when the result was saved.
	OutputFile string
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}

// NewEvent creates an Event with common fields populated.
func NewEvent(stage Stage, msg string, pct float64, start time.Time) Event {
	return Event{
		Stage:   stage,
		Message: msg,
		Percent: pct,
		Elapsed: time.Since(start),
	}
}
