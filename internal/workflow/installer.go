package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"k8s.io/utils/clock"

	"github.com/imamik/autoinstall/internal/config"
	"github.com/imamik/autoinstall/internal/longtask"
	"github.com/imamik/autoinstall/internal/metrics"
	"github.com/imamik/autoinstall/internal/session"
)

// SpawnFunc starts the installer. Everything the session reads and writes
// must be copied to transcript.
type SpawnFunc func(command string, transcript io.Writer) (session.Transport, error)

// SpawnPTY starts the installer under a pseudo-terminal.
func SpawnPTY(command string, transcript io.Writer) (session.Transport, error) {
	return session.Spawn(command, session.WithTranscript(transcript))
}

// Installer runs workflows against one installer session at a time.
type Installer struct {
	cfg      *config.Config
	timeouts *config.Timeouts
	staged   config.Staged
	cmds     commands

	spawn      SpawnFunc
	sleep      func(ctx context.Context, d time.Duration) error
	clock      clock.Clock
	observer   Observer
	log        logr.Logger
	recorder   *metrics.Recorder
	stdin      io.Reader
	stdout     io.Writer
	isTerminal func(io.Reader) bool
	runID      string

	// State of the current run.
	mode        Mode
	events      Observer
	session     session.Transport
	transcript  io.WriteCloser
	currentStep PhaseName
	flags       CleanupFlags
	timings     []PhaseTiming
}

// Option configures an Installer.
type Option func(*Installer)

// WithSpawnFunc replaces the function that starts the installer session.
func WithSpawnFunc(fn SpawnFunc) Option {
	return func(in *Installer) {
		in.spawn = fn
	}
}

// WithStaged passes the override files staged before the run.
func WithStaged(staged config.Staged) Option {
	return func(in *Installer) {
		in.staged = staged
	}
}

// WithSleep replaces the function used for fixed settle waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(in *Installer) {
		in.sleep = fn
	}
}

// WithClock sets the clock used for timings and long task durations.
func WithClock(c clock.Clock) Option {
	return func(in *Installer) {
		in.clock = c
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(in *Installer) {
		in.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(in *Installer) {
		in.log = log
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(in *Installer) {
		in.recorder = r
	}
}

// WithOperator sets the streams used when the session is handed to an
// operator for interactive debugging.
func WithOperator(stdin io.Reader, stdout io.Writer) Option {
	return func(in *Installer) {
		in.stdin = stdin
		in.stdout = stdout
	}
}

// WithTerminalCheck replaces the check deciding whether stdin is an
// interactive terminal.
func WithTerminalCheck(fn func(io.Reader) bool) Option {
	return func(in *Installer) {
		in.isTerminal = fn
	}
}

// WithRunID sets the identifier attached to logs and artifacts.
func WithRunID(id string) Option {
	return func(in *Installer) {
		in.runID = id
	}
}

// New creates an Installer for cfg.
func New(cfg *config.Config, opts ...Option) *Installer {
	in := &Installer{
		cfg:        cfg,
		timeouts:   cfg.Timeouts,
		cmds:       newCommands(cfg),
		spawn:      SpawnPTY,
		clock:      clock.RealClock{},
		log:        logr.Discard(),
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		isTerminal: isTerminal,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.timeouts == nil {
		in.timeouts = config.LoadTimeouts(func(string) (string, bool) { return "", false })
	}
	if in.runID == "" {
		in.runID = uuid.NewString()
	}
	if in.sleep == nil {
		in.sleep = in.clockSleep
	}
	if in.observer == nil {
		in.observer = NewLogObserver(in.log, in.clock)
	}
	return in
}

// RunID identifies the runs of this Installer.
func (in *Installer) RunID() string { return in.runID }

// Run executes the workflow of mode. It never returns an error: failures are
// classified into the Result, after recovery and cleanup have been attempted.
func (in *Installer) Run(ctx context.Context, mode Mode) Result {
	started := in.clock.Now()
	in.mode = mode
	in.events = in.observer.WithFields(map[string]string{"mode": string(mode), "run": in.runID})
	in.currentStep = ""
	in.flags = CleanupFlags{}
	in.timings = nil

	res := Result{Outcome: OutcomeUninitialized, Mode: mode, RunID: in.runID}

	if err := in.open(false, ""); err != nil {
		// Nothing ran, so there is nothing to clean up.
		res.Outcome = OutcomeUninitialized
		res.Err = err
		res.Message = message(mode, res.Outcome, "", err)
		return in.finish(res, started)
	}
	defer in.closeSession()

	err := in.runSequence(ctx, Sequence(mode))
	res.Outcome = Classify(err)
	res.Err = err
	res.Phase = in.currentStep
	res.Message = message(mode, res.Outcome, res.Phase, err)

	if err != nil && ctx.Err() != nil {
		in.events.Printf("run cancelled during %s, skipping recovery and cleanup", res.Phase)
		return in.finish(res, started)
	}
	if err != nil && res.Phase == PhaseExitContainer {
		// Every phase that created resources has already succeeded.
		in.events.Printf("%s", res.Message)
		return in.finish(res, started)
	}

	switch res.Outcome {
	case OutcomeSuccess:
	case OutcomeTimeout:
		in.events.Printf("%s", res.Message)
		in.interactiveDebug(ctx)
		res.Recovered = in.recoverFromTimeout()
		if res.Recovered {
			in.cleanup(ctx)
		}
	case OutcomeStreamClosed:
		in.events.Printf("%s", res.Message)
		in.closeSession()
		if in.flags == (CleanupFlags{}) {
			in.events.Printf("nothing to clean up, not restarting the installer")
			break
		}
		res.Recovered = in.recoverFromStreamClosed(ctx)
		if res.Recovered {
			in.cleanup(ctx)
		}
	default:
		in.events.Printf("%s", res.Message)
		in.cleanup(ctx)
	}

	return in.finish(res, started)
}

func (in *Installer) finish(res Result, started time.Time) Result {
	res.Timings = in.timings
	res.Duration = in.clock.Since(started)
	in.recorder.RecordRun(string(res.Mode), int(res.Outcome), res.Duration)
	return res
}

// open creates the transcript and starts a session writing to it. A
// non-empty banner is written first.
func (in *Installer) open(appendMode bool, banner string) error {
	transcript, err := session.OpenTranscript(in.cfg.Session.LogPath, appendMode)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	if banner != "" {
		if err := session.WriteBanner(transcript, banner); err != nil {
			_ = transcript.Close()
			return fmt.Errorf("failed to write transcript banner: %w", err)
		}
	}

	s, err := in.spawn(in.cfg.Session.InstallerCommand, transcript)
	if err != nil {
		_ = transcript.Close()
		return err
	}
	in.transcript = transcript
	in.session = s
	return nil
}

// closeSession closes the session and the transcript. It is safe to call
// when neither is open.
func (in *Installer) closeSession() {
	if in.session != nil {
		if err := in.session.Close(); err != nil {
			in.log.Error(err, "failed to close installer session")
		}
		in.session = nil
	}
	if in.transcript != nil {
		if err := in.transcript.Close(); err != nil {
			in.log.Error(err, "failed to close transcript")
		}
		in.transcript = nil
	}
}

func (in *Installer) runSequence(ctx context.Context, phases []PhaseName) error {
	for i, name := range phases {
		if err := ctx.Err(); err != nil {
			return err
		}
		if name == PhaseProvision {
			// A failed provision is not torn down automatically.
			in.flags.DeprovisionOnCleanup = false
		}

		in.currentStep = name
		logPhaseStart(in.events, name, i+1, len(phases))
		err := in.timed(name, func() error { return in.phase(name)(ctx) })
		if err != nil {
			logPhaseFailed(in.events, name, err)
			return err
		}
		logPhaseComplete(in.events, name, in.timings[len(in.timings)-1].Duration)
	}
	return nil
}

// timed runs fn and records its timing under name.
func (in *Installer) timed(name PhaseName, fn func() error) error {
	start := in.clock.Now()
	err := fn()
	d := in.clock.Since(start)
	in.timings = append(in.timings, PhaseTiming{Phase: name, Started: start, Duration: d, Err: err})
	in.recorder.RecordPhase(string(in.mode), name.Slug(), d, err)
	return err
}

func (in *Installer) phase(name PhaseName) func(context.Context) error {
	switch name {
	case PhaseStartInstaller:
		return in.startInstaller
	case PhaseStartTimeCryer:
		return in.startTimeCryer
	case PhaseInitAccount:
		return in.initAccount
	case PhaseConfigureProvision:
		return in.configureProvision
	case PhaseProvision:
		return in.provision
	case PhaseProvisionUpgrade:
		return in.provisionUpgrade
	case PhaseConfigureCluster:
		return in.configureCluster
	case PhasePrepareUpgrade:
		return in.prepareUpgrade
	case PhaseUpdateCluster:
		return in.updateCluster
	case PhaseMakefileInstall:
		return in.makefileInstall
	case PhaseMakefileUpdate:
		return in.makefileUpdate
	case PhaseMakefileUpgrade:
		return in.makefileUpgrade
	case PhaseDeprovision:
		return in.deprovision
	case PhaseResetAccount:
		return in.resetAccount
	case PhaseExitContainer:
		return in.exitContainer
	case PhaseTimeoutRecovery, PhaseEOFRecovery:
	}
	return func(context.Context) error {
		return fmt.Errorf("phase %q cannot be run in a sequence", name)
	}
}

// expect waits for one of patterns and turns a timeout into a *TimeoutError.
func (in *Installer) expect(timeout time.Duration, patterns ...session.Pattern) (session.Match, error) {
	m, err := in.session.Expect(timeout, patterns...)
	if err != nil {
		return m, err
	}
	if m.TimedOut() {
		return m, &TimeoutError{Phase: in.currentStep, Waiting: patterns, After: timeout}
	}
	return m, nil
}

// run sends line and waits for prompt.
func (in *Installer) run(line string, timeout time.Duration, prompt session.Pattern) error {
	if err := in.session.Send(line); err != nil {
		return err
	}
	_, err := in.expect(timeout, prompt)
	return err
}

func (in *Installer) longTask(task longtask.Task, budget time.Duration) (longtask.Result, error) {
	m := longtask.New(in.session, budget, in.timeouts.PollStep,
		longtask.WithName(task.Name),
		longtask.WithLogger(in.log),
		longtask.WithClock(in.clock),
		longtask.WithRecorder(in.recorder),
	)
	res, err := longtask.Run(in.session, m, task)
	in.log.Info("long task finished",
		"task", task.Name,
		"success", res.Success,
		"duration", res.Duration,
		"polls", res.Polls,
		"hangRecoveries", res.HangRecoveries,
		"cancelled", res.Cancelled,
	)
	return res, err
}

func (in *Installer) clockSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-in.clock.After(d):
		return nil
	}
}

func unexpected(phase PhaseName, m session.Match) error {
	return fmt.Errorf("unexpected %s output in %s: %q", m.Signal, phase, m.Text)
}

func ignoreClosed(err error) error {
	if errors.Is(err, session.ErrStreamClosed) {
		return nil
	}
	return err
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
