// Package agent implements the bounded control loop that drives a
// vision-capable model through browser actions until it signals completion
// or exhausts its budgets.
package agent

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// OutcomeTag classifies how a run terminated. Every run ends with exactly one
// tag; there is no other exit path.
type OutcomeTag string

const (
	OutcomeCompleted      OutcomeTag = "completed"
	OutcomeExhaustedSteps OutcomeTag = "exhausted_steps"
	OutcomeExhaustedTime  OutcomeTag = "exhausted_time"
	OutcomeFatalError     OutcomeTag = "fatal_error"
)

// Task is one bounded automation goal. It is created once per run and owned
// exclusively by the Runner for the run's lifetime; budgets are consumed
// monotonically and never reset.
type Task struct {
	Name         string
	Instructions string
	MaxSteps     int
	MaxDuration  time.Duration
	// Sensitive maps placeholder names to secret values. The model only ever
	// sees {placeholder} tokens; substitution happens at browser dispatch.
	Sensitive map[string]string
	// RunID correlates external side effects (mailbox aliases, report rows).
	RunID string
}

// StepRecord captures one loop iteration: the model's chosen action, its
// arguments, and the execution outcome. Records are immutable once appended.
type StepRecord struct {
	Step    int
	Action  string
	Args    map[string]any
	Thought string
	OK      bool
	Outcome string
	At      time.Time
}

// Transcript is the append-only, strictly time-ordered record of a run. It is
// the sole object the result extractor reads.
type Transcript struct {
	mu    sync.RWMutex
	steps []StepRecord
}

// Append adds a record. The caller must not mutate the record afterwards.
func (t *Transcript) Append(r StepRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	t.steps = append(t.steps, r)
}

// Len reports the number of recorded steps.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.steps)
}

// Steps returns a copy of all records in execution order.
func (t *Transcript) Steps() []StepRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]StepRecord, len(t.steps))
	copy(out, t.steps)
	return out
}

// Window returns up to n most recent records, oldest first. A bounded window
// keeps the prompt size under control on long runs.
func (t *Transcript) Window(n int) []StepRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > len(t.steps) {
		n = len(t.steps)
	}
	out := make([]StepRecord, n)
	copy(out, t.steps[len(t.steps)-n:])
	return out
}

// Text renders the transcript as plain lines for the result extractor.
func (t *Transcript) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var b strings.Builder
	for _, s := range t.steps {
		status := "ok"
		if !s.OK {
			status = "error"
		}
		fmt.Fprintf(&b, "step %d: %s [%s] %s\n", s.Step, s.Action, status, s.Outcome)
	}
	return b.String()
}

// RunOutcome is the terminal classification of one run, plus everything the
// external harness needs to assert on it without re-parsing raw agent text.
type RunOutcome struct {
	Tag         OutcomeTag
	Reason      string
	Steps       int
	Elapsed     time.Duration
	Transcript  *Transcript
	DonePayload map[string]any
	DoneText    string
}
