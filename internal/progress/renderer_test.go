package progress

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func plainRenderer(buf *bytes.Buffer) *BarRenderer {
	return &BarRenderer{out: buf, start: time.Now(), cols: 80}
}

func TestPlainRendererPrintsAttempts(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)

	r.Handle(Event{Stage: StageGenerate, Message: "Generating persona", Attempt: 2, MaxAttempts: 3})
	r.Handle(Event{Stage: StageSummary, Message: "Writing therapist summary"})

	out := buf.String()
	assert.Contains(t, out, "(2/3) Generating persona")
	assert.Contains(t, out, "] Writing therapist summary")
}

func TestCompleteEventDropsAttemptCounter(t *testing.T) {
	e := Event{Stage: StageComplete, Message: "Persona accepted", Attempt: 3, MaxAttempts: 3}
	assert.Equal(t, "Persona accepted", statusLine(e))
}

func TestFinishReportsCompletion(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)

	r.Handle(Event{Stage: StageComplete, Message: "Persona accepted with score 100/100", Percent: 0.4, OutputFile: "out.json"})
	assert.Equal(t, 1.0, r.last.Percent)
	r.Finish()

	assert.Contains(t, buf.String(), "Persona accepted with score 100/100 (0:00)")
	assert.Contains(t, buf.String(), "Saved to out.json")
}

func TestFinishReportsError(t *testing.T) {
	var buf bytes.Buffer
	r := plainRenderer(&buf)

	r.Handle(Event{Stage: StageComplete, Message: "Generation failed", Error: errors.New("no key")})
	r.Finish()
	assert.Contains(t, buf.String(), "Error: no key")
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "[##........]", renderBar(0.25, 10))
	assert.Equal(t, "[..........]", renderBar(-1, 10))
	assert.Equal(t, "[##########]", renderBar(2, 10))
	assert.Equal(t, "1:05", formatElapsed(65*time.Second))
}
