package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

// BarRenderer shows generation progress. On a terminal it redraws a status
// line and a bar in place; otherwise it appends one timestamped line per event.
type BarRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	start time.Time
	tty   bool
	cols  int
	last  Event
	drawn int // lines on screen from the previous redraw
}

// NewBarRenderer writes to f, detecting whether it is a terminal and how wide.
func NewBarRenderer(f *os.File) *BarRenderer {
	r := &BarRenderer{out: f, start: time.Now(), cols: 80}
	r.tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	if r.tty {
		if w, _, err := term.GetSize(f.Fd()); err == nil && w > 0 {
			r.cols = w
		}
	}
	return r
}

// Handle records e and redraws. It satisfies Callback and is safe to call
// from the summary and persona goroutines at once.
func (r *BarRenderer) Handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.Elapsed = time.Since(r.start)
	if e.Stage == StageComplete {
		e.Percent = 1
	}
	r.last = e

	if !r.tty {
		fmt.Fprintf(r.out, "[%s] %s\n", formatElapsed(e.Elapsed), statusLine(e))
		return
	}
	r.erase()
	bar := fmt.Sprintf("  %s %3d%%  %s", renderBar(e.Percent, r.barWidth()), int(e.Percent*100), formatElapsed(e.Elapsed))
	fmt.Fprintf(r.out, "  %s\n%s", statusLine(e), bar)
	r.drawn = 2
}

// Finish removes the live display and prints the outcome of the last event.
func (r *BarRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tty {
		r.erase()
	}
	e := r.last
	switch {
	case e.Error != nil:
		fmt.Fprintf(r.out, "\n  Error: %v\n", e.Error)
	case e.Stage == StageComplete:
		fmt.Fprintf(r.out, "\n  %s (%s)\n", e.Message, formatElapsed(e.Elapsed))
		if e.OutputFile != "" {
			fmt.Fprintf(r.out, "  Saved to %s\n", e.OutputFile)
		}
	}
}

// statusLine prefixes loop events with the attempt counter.
func statusLine(e Event) string {
	if e.Attempt > 0 && e.Stage != StageComplete {
		return fmt.Sprintf("(%d/%d) %s", e.Attempt, e.MaxAttempts, e.Message)
	}
	return e.Message
}

func (r *BarRenderer) erase() {
	if r.drawn == 0 {
		return
	}
	fmt.Fprint(r.out, "\r\033[2K")
	for i := 1; i < r.drawn; i++ {
		fmt.Fprint(r.out, "\033[A\033[2K")
	}
	fmt.Fprint(r.out, "\r")
	r.drawn = 0
}

// barWidth leaves room for the indent, brackets, percent and clock.
func (r *BarRenderer) barWidth() int {
	return min(max(r.cols-16, 20), 60)
}

func renderBar(pct float64, width int) string {
	pct = min(max(pct, 0), 1)
	filled := min(int(pct*float64(width)), width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// formatElapsed renders d as M:SS.
func formatElapsed(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
