package scheduler

import (
	"sync"
	"time"
)

// SpanResult records one task's timing and outcome.
type SpanResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Timer accumulates per-task timing spans for one runWithConcurrency
// call, so failures are recorded and surfaced rather than silently lost
// (spec §4.8: "one failure must not cancel siblings; it is recorded and
// surfaced in the timer summary").
type Timer struct {
	mu      sync.Mutex
	results []SpanResult
}

// NewTimer creates an empty Timer.
func NewTimer() *Timer {
	return &Timer{}
}

// Span starts timing a named span and returns a function to call with
// the task's outcome when it finishes.
func (t *Timer) Span(name string) func(err error) {
	start := time.Now()
	return func(err error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.results = append(t.results, SpanResult{
			Name:     name,
			Duration: time.Since(start),
			Err:      err,
		})
	}
}

// Summary returns a copy of all recorded spans.
func (t *Timer) Summary() []SpanResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanResult, len(t.results))
	copy(out, t.results)
	return out
}

// Failures returns only the spans that recorded an error.
func (t *Timer) Failures() []SpanResult {
	var out []SpanResult
	for _, r := range t.Summary() {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// TotalDuration sums every recorded span's duration (not wall clock,
// since spans run concurrently).
func (t *Timer) TotalDuration() time.Duration {
	var total time.Duration
	for _, r := range t.Summary() {
		total += r.Duration
	}
	return total
}
