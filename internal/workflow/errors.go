package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imamik/autoinstall/internal/longtask"
	"github.com/imamik/autoinstall/internal/session"
)

// FailureKind names the way a long-running phase failed.
type FailureKind int

const (
	AccountInitFailed FailureKind = iota + 1
	ProvisionFailed
	ProvisionUpgradeFailed
	DeprovisionFailed
	AccountResetFailed
)

func (k FailureKind) String() string {
	switch k {
	case AccountInitFailed:
		return "account init failed"
	case ProvisionFailed:
		return "provision failed"
	case ProvisionUpgradeFailed:
		return "provision upgrade failed"
	case DeprovisionFailed:
		return "deprovision failed"
	case AccountResetFailed:
		return "account reset failed"
	}
	return "unknown failure"
}

// PhaseError is returned when a long task returned to the prompt without
// reporting success.
type PhaseError struct {
	Kind     FailureKind
	Phase    PhaseName
	Attempts int
}

func (e *PhaseError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: %s did not report success after %d attempts", e.Kind, e.Phase, e.Attempts)
	}
	return fmt.Sprintf("%s: %s did not report success", e.Kind, e.Phase)
}

// TimeoutError is returned when the installer did not print an expected
// prompt in time.
type TimeoutError struct {
	Phase   PhaseName
	Waiting []session.Pattern
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	names := make([]string, 0, len(e.Waiting))
	for _, p := range e.Waiting {
		names = append(names, p.String())
	}
	return fmt.Sprintf("timed out after %v in %s waiting for %s", e.After, e.Phase, strings.Join(names, " | "))
}

// Outcome classifies how a run ended. Its value is the process exit code.
type Outcome int

const (
	OutcomeUninitialized Outcome = -1
	OutcomeSuccess       Outcome = 0
	OutcomeUnknownError  Outcome = 1
	OutcomeTimeout       Outcome = 2
	OutcomeStreamClosed  Outcome = 3
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUninitialized:
		return "uninitialized"
	case OutcomeSuccess:
		return "success"
	case OutcomeUnknownError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeStreamClosed:
		return "stream closed"
	}
	return "unknown"
}

// ExitCode maps the outcome to a process exit status. Exit statuses are
// non-negative, so a run that never started exits like any other failure.
func (o Outcome) ExitCode() int {
	if o == OutcomeUninitialized {
		return int(OutcomeUnknownError)
	}
	return int(o)
}

// Classify maps a phase error to an outcome. Session closure and timeouts
// take precedence over anything they are wrapped in.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, session.ErrStreamClosed) {
		return OutcomeStreamClosed
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, longtask.ErrBudgetExceeded) {
		return OutcomeTimeout
	}
	return OutcomeUnknownError
}

// Result is the outcome of a run.
type Result struct {
	Outcome Outcome
	Mode    Mode
	// Phase is the phase that was running when the run failed.
	Phase   PhaseName
	Message string
	Err     error

	RunID     string
	Recovered bool
	Timings   []PhaseTiming
	Duration  time.Duration
}

// message renders the one-line summary printed at the end of a run.
func message(mode Mode, outcome Outcome, phase PhaseName, err error) string {
	switch outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("auto_install: %s operation completed successfully.", mode)
	case OutcomeTimeout:
		return fmt.Sprintf("auto_install: %s failed with a TIMEOUT during %s: %v", mode, phase, err)
	case OutcomeStreamClosed:
		return fmt.Sprintf("auto_install: %s failed with an EOF during %s: %v", mode, phase, err)
	case OutcomeUnknownError, OutcomeUninitialized:
	}
	return fmt.Sprintf("auto_install: %s failed with an exception: %v", mode, err)
}
