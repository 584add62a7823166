package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Response is one queued reply of a Scripted gateway.
type Response struct {
	Text string
	Err  error
}

// Scripted replays queued responses in order and records every prompt.
// It is used for offline runs and tests. Once the queue is drained it
// repeats the last response.
type Scripted struct {
	mu        sync.Mutex
	name      string
	responses []Response
	// Route, when set, picks a response by prompt instead of queue order.
	Route   func(prompt string) (Response, bool)
	prompts []string
	calls   int
}

// NewScripted returns a fake gateway serving responses in order.
func NewScripted(responses ...Response) *Scripted {
	return &Scripted{name: "scripted", responses: responses}
}

// Texts builds a Scripted gateway from plain text replies.
func Texts(texts ...string) *Scripted {
	rs := make([]Response, len(texts))
	for i, t := range texts {
		rs[i] = Response{Text: t}
	}
	return NewScripted(rs...)
}

func (s *Scripted) Name() string { return s.name }

func (s *Scripted) Generate(ctx context.Context, prompt string, _ Params) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", Classify(s.name, 0, err)
	}

	if s.Route != nil {
		if r, ok := s.Route(prompt); ok {
			return r.Text, r.Err
		}
	}
	if len(s.responses) == 0 {
		return "", Fatal(s.name, KindInvalidRequest, 0, errors.New("no scripted responses"))
	}

	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	r := s.responses[i]
	if r.Err == nil && strings.TrimSpace(r.Text) == "" {
		return "", emptyOutput(s.name)
	}
	return r.Text, r.Err
}

// Prompts returns a copy of the prompts received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Calls reports how many prompts were received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
