package longtask

import (
	"fmt"
	"time"

	"github.com/imamik/autoinstall/internal/session"
)

// Confirmation is a question the installer may ask while a task runs.
type Confirmation struct {
	Pattern session.Pattern
	Reply   string
}

// ShuttleDisconnect is asked by every provisioning command when a previous
// shuttle process is still running.
var ShuttleDisconnect = Confirmation{
	Pattern: session.Regexp(session.SignalConfirm, `to terminate the running shuttle process and continue the provision\.`),
	Reply:   "yes",
}

// Task describes the output a long task is watched for.
type Task struct {
	Name          string
	Success       session.Pattern
	Prompt        session.Pattern
	Confirmations []Confirmation
}

// Result summarises a finished task.
type Result struct {
	Complete       bool
	Success        bool
	Elapsed        time.Duration
	Duration       time.Duration
	Polls          int
	HangRecoveries int
	Cancelled      bool
}

func (t Task) patterns() []session.Pattern {
	patterns := []session.Pattern{t.Success, t.Prompt}
	for _, c := range t.Confirmations {
		patterns = append(patterns, c.Pattern)
	}
	return patterns
}

// Run polls t until the task returns to its prompt. The error is non-nil only
// when the session fails or the task stays unresponsive after cancellation;
// a task that finished without its success marker is reported through
// Result.Success.
func Run(t session.Transport, m *Monitor, task Task) (Result, error) {
	patterns := task.patterns()

	for m.Running() {
		match, err := t.Expect(m.StepTime(), patterns...)
		if err != nil {
			return m.result(), fmt.Errorf("long task %s: %w", task.Name, err)
		}

		switch match.Signal {
		case session.SignalTimeout:
			if err := m.Update(match.Before); err != nil {
				return m.result(), err
			}
		case session.SignalSuccess:
			m.MarkSuccess()
		case session.SignalPrompt:
			m.MarkComplete()
		case session.SignalConfirm:
			// Index 0 and 1 are the success and prompt patterns.
			c := task.Confirmations[match.Index-2]
			m.log.Info("answering confirmation", "reply", c.Reply)
			if err := t.Send(c.Reply); err != nil {
				return m.result(), fmt.Errorf("long task %s: %w", task.Name, err)
			}
		default:
			return m.result(), fmt.Errorf("long task %s: unexpected signal %s", task.Name, match.Signal)
		}
	}
	return m.result(), nil
}

func (m *Monitor) result() Result {
	return Result{
		Complete:       m.complete,
		Success:        m.Succeeded(),
		Elapsed:        m.elapsed,
		Duration:       m.Duration(),
		Polls:          m.polls,
		HangRecoveries: m.hangRecoveries,
		Cancelled:      m.cancelled,
	}
}
