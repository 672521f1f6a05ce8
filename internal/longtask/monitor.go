// Package longtask watches installer sub-tasks that run for minutes to hours.
//
// A Monitor is fed every poll that ends without a terminal pattern. It
// enforces the task's time budget, cancels a task that exceeds it, and
// recognises the installer sitting silently at an interactive prompt (a
// pager or question that swallowed its output) so the prompt can be
// dismissed.
package longtask

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/imamik/autoinstall/internal/metrics"
)

// HeartbeatPrefix starts the timestamp lines the installer's time cryer
// prints periodically. They do not count as progress.
const HeartbeatPrefix = "****"

// Defaults for the polling step adjustments.
const (
	DefaultSuccessStep = 10 * time.Second
	DefaultCancelStep  = 5 * time.Second
	DefaultCancelGrace = 60 * time.Second
)

// ErrBudgetExceeded is matched by errors returned once a cancelled task
// still has not returned to the prompt.
var ErrBudgetExceeded = errors.New("long task exceeded its time budget")

// BudgetExceededError reports a task that stayed unresponsive after cancellation.
type BudgetExceededError struct {
	Task    string
	Elapsed time.Duration
	MaxTime time.Duration
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("long task %s unresponsive after cancel: %v elapsed, budget %v", e.Task, e.Elapsed, e.MaxTime)
}

// Is reports whether target is ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// Keyer is the part of the session the monitor types into.
type Keyer interface {
	Send(line string) error
	SendControl(c rune) error
}

// Monitor tracks one long-running sub-task.
type Monitor struct {
	name     string
	keys     Keyer
	log      logr.Logger
	clock    clock.PassiveClock
	recorder *metrics.Recorder

	maxTime     time.Duration
	stepTime    time.Duration
	successStep time.Duration
	cancelStep  time.Duration
	cancelGrace time.Duration

	started        time.Time
	elapsed        time.Duration
	complete       bool
	success        bool
	cancelled      bool
	cancelledAt    time.Duration
	lastLine       string
	polls          int
	hangRecoveries int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithName labels log lines and metrics.
func WithName(name string) Option {
	return func(m *Monitor) {
		m.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(m *Monitor) {
		m.log = log
	}
}

// WithClock sets the clock used to measure wall-clock duration.
func WithClock(c clock.PassiveClock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(m *Monitor) {
		m.recorder = r
	}
}

// WithSuccessStep sets the polling step used once success has been seen.
func WithSuccessStep(d time.Duration) Option {
	return func(m *Monitor) {
		m.successStep = d
	}
}

// WithCancelStep sets the polling step used after cancellation.
func WithCancelStep(d time.Duration) Option {
	return func(m *Monitor) {
		m.cancelStep = d
	}
}

// WithCancelGrace sets how long a cancelled task may take to return to the
// prompt.
func WithCancelGrace(d time.Duration) Option {
	return func(m *Monitor) {
		m.cancelGrace = d
	}
}

// New creates a monitor for a task allowed to run for maxTime and polled
// every stepTime.
func New(keys Keyer, maxTime, stepTime time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		name:        "task",
		keys:        keys,
		log:         logr.Discard(),
		clock:       clock.RealClock{},
		maxTime:     maxTime,
		stepTime:    stepTime,
		successStep: DefaultSuccessStep,
		cancelStep:  DefaultCancelStep,
		cancelGrace: DefaultCancelGrace,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.clock.Now()
	m.log = m.log.WithValues("task", m.name)
	return m
}

// StepTime is the timeout to use for the next poll.
func (m *Monitor) StepTime() time.Duration { return m.stepTime }

// Elapsed is the budget time consumed so far.
func (m *Monitor) Elapsed() time.Duration { return m.elapsed }

// Duration is the wall-clock time since the monitor was created.
func (m *Monitor) Duration() time.Duration { return m.clock.Since(m.started) }

// Running reports whether the task has not yet returned to the prompt.
func (m *Monitor) Running() bool { return !m.complete }

// Succeeded reports whether the task completed after printing its success marker.
func (m *Monitor) Succeeded() bool { return m.complete && m.success }

// Cancelled reports whether the task was cancelled for exceeding its budget.
func (m *Monitor) Cancelled() bool { return m.cancelled }

// LastLine is the most recent progress line seen.
func (m *Monitor) LastLine() string { return m.lastLine }

// MarkSuccess records the success marker and tightens polling so the
// returning prompt is seen quickly.
func (m *Monitor) MarkSuccess() {
	if m.complete {
		return
	}
	m.success = true
	m.stepTime = m.successStep
	m.log.Info("success marker found")
}

// MarkComplete records that the installer prompt returned.
func (m *Monitor) MarkComplete() {
	m.complete = true
	m.log.Info("prompt returned", "success", m.success, "elapsed", m.Duration().Round(time.Second))
}

// Cancel interrupts the task. Polling switches to the cancel step.
func (m *Monitor) Cancel() error {
	m.cancelled = true
	m.cancelledAt = m.elapsed
	m.stepTime = m.cancelStep
	m.recorder.LongTaskCancelled(m.name)

	if err := m.keys.SendControl('c'); err != nil {
		return err
	}
	return m.keys.Send("")
}

// Update handles a poll that timed out. before is the output buffered since
// the last match.
func (m *Monitor) Update(before string) error {
	if m.complete {
		return nil
	}
	m.polls++
	m.elapsed += m.stepTime
	m.log.V(1).Info("long running task update", "elapsed", m.elapsed, "max", m.maxTime)

	if !m.success && m.elapsed > m.maxTime {
		if !m.cancelled {
			m.log.Info("long running task exceeded max timeout, attempting cancel", "elapsed", m.elapsed, "max", m.maxTime)
			return m.Cancel()
		}
		if m.elapsed > m.cancelledAt+m.cancelGrace {
			return &BudgetExceededError{Task: m.name, Elapsed: m.elapsed, MaxTime: m.maxTime}
		}
		return nil
	}

	line, found := LastMeaningfulLine(before)
	if !found || line == m.lastLine {
		m.hangRecoveries++
		m.recorder.LongTaskHangRecovery(m.name)
		m.log.Info("detected probable interactive prompt hang, attempting recovery")
		if err := m.keys.Send(""); err != nil {
			return err
		}
		return m.keys.Send("q")
	}

	m.lastLine = line
	m.log.Info("long task progress", "lines", strings.Count(before, "\n")+1, "line", line)
	return nil
}

// LastMeaningfulLine returns the last non-blank line of output that is not a
// heartbeat. Two non-blank heartbeat lines in a row end the search with no
// result: the heartbeat period is at least the poll step, so two heartbeats
// mean nothing else was printed since the previous poll.
func LastMeaningfulLine(output string) (string, bool) {
	lines := splitLines(output)
	lastWasHeartbeat := false
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, HeartbeatPrefix) {
			return line, true
		}
		if lastWasHeartbeat {
			return "", false
		}
		lastWasHeartbeat = true
	}
	return "", false
}

// splitLines splits on \n, \r\n and bare \r.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
