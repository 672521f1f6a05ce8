package workflow

import (
	"context"
	"fmt"

	"github.com/imamik/autoinstall/internal/session"
)

// interactiveDebug hands the session to the operator when enabled and
// stdin is a terminal. It returns once the operator detaches.
func (in *Installer) interactiveDebug(ctx context.Context) {
	if in.session == nil || !in.cfg.Features.InteractiveDebug || !in.isTerminal(in.stdin) {
		return
	}
	in.events.Printf("handing the installer session to the operator, press Ctrl-] to detach")
	if err := in.session.Interact(ctx, in.stdin, in.stdout); err != nil {
		in.log.Error(err, "interactive session ended with an error")
	}
}

// recoverFromTimeout interrupts whatever is running until the container
// shell answers again.
func (in *Installer) recoverFromTimeout() bool {
	if in.session == nil {
		return false
	}
	in.currentStep = PhaseTimeoutRecovery
	in.events.Event(Event{Type: EventRecoveryStarted, Phase: PhaseTimeoutRecovery, Message: "interrupting to regain the shell prompt"})

	err := in.timed(PhaseTimeoutRecovery, func() error {
		for attempt := 1; attempt <= in.timeouts.RecoveryAttempts; attempt++ {
			if err := in.session.SendControl('c'); err != nil {
				return err
			}
			if err := in.session.Send(""); err != nil {
				return err
			}
			m, err := in.session.Expect(in.timeouts.Recovery, anyPrompt)
			if err != nil {
				return err
			}
			switch m.Signal {
			case session.SignalPrompt:
				return nil
			case session.SignalTimeout:
				in.log.V(1).Info("no prompt after interrupt", "attempt", attempt)
			default:
				return unexpected(PhaseTimeoutRecovery, m)
			}
		}
		return &TimeoutError{Phase: PhaseTimeoutRecovery, Waiting: []session.Pattern{anyPrompt}, After: in.timeouts.Recovery}
	})
	return in.recoveryDone(PhaseTimeoutRecovery, err)
}

// recoverFromStreamClosed restarts the installer with the run's option,
// appending to the same transcript.
func (in *Installer) recoverFromStreamClosed(ctx context.Context) bool {
	in.currentStep = PhaseEOFRecovery
	in.events.Event(Event{Type: EventRecoveryStarted, Phase: PhaseEOFRecovery, Message: "restarting the installer"})

	err := in.timed(PhaseEOFRecovery, func() error {
		if err := in.open(true, fmt.Sprintf("EOF during %s. Cleanup log follows:", in.mode)); err != nil {
			return err
		}
		return in.startInstaller(ctx)
	})
	return in.recoveryDone(PhaseEOFRecovery, err)
}

func (in *Installer) recoveryDone(phase PhaseName, err error) bool {
	if err != nil {
		in.events.Event(Event{Type: EventRecoveryFailed, Phase: phase, Message: fmt.Sprintf("failed: %v", err)})
		return false
	}
	in.events.Event(Event{Type: EventRecoverySucceeded, Phase: phase, Message: "installer shell is responsive"})
	return true
}

// cleanup runs the compensating actions requested by the cleanup flags.
// Each action is attempted independently; failures are only reported.
func (in *Installer) cleanup(ctx context.Context) {
	if in.session == nil {
		in.log.Info("no installer session, skipping cleanup", "flags", in.flags)
		return
	}
	flags := in.flags
	if flags.DeprovisionOnCleanup {
		in.cleanupStep(ctx, PhaseDeprovision, in.deprovision)
	}
	if flags.ResetAccountOnCleanup {
		in.cleanupStep(ctx, PhaseResetAccount, in.resetAccount)
	}
}

func (in *Installer) cleanupStep(ctx context.Context, phase PhaseName, fn func(context.Context) error) {
	in.currentStep = phase
	in.events.Event(Event{Type: EventCleanupStarted, Phase: phase, Message: "starting"})

	err := in.timed(phase, func() error { return fn(ctx) })
	in.recorder.RecordCleanup(phase.Slug(), err)
	if err != nil {
		in.events.Event(Event{Type: EventCleanupFailed, Phase: phase, Message: fmt.Sprintf("failed: %v", err)})
		return
	}
	in.events.Event(Event{Type: EventCleanupCompleted, Phase: phase, Message: "completed"})
}
