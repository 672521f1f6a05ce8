// Package handlers implements the CLI commands.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/autoinstall/internal/config"
	"github.com/imamik/autoinstall/internal/logging"
	"github.com/imamik/autoinstall/internal/metrics"
	"github.com/imamik/autoinstall/internal/platform/s3"
	"github.com/imamik/autoinstall/internal/report"
	"github.com/imamik/autoinstall/internal/util/naming"
	"github.com/imamik/autoinstall/internal/util/prerequisites"
	"github.com/imamik/autoinstall/internal/util/retry"
	"github.com/imamik/autoinstall/internal/workflow"
)

// ProductFull is the only product the installer wrapper offers.
const ProductFull = "full"

// Runner runs one workflow mode. *workflow.Installer satisfies it.
type Runner interface {
	Run(ctx context.Context, mode workflow.Mode) workflow.Result
}

// Uploader publishes the transcript of a run. *s3.Client satisfies it.
type Uploader interface {
	UploadTranscript(ctx context.Context, bucket, key, path string, opts ...retry.Option) error
}

// Factory function variables for run - can be replaced in tests.
var (
	loadConfig                       = config.Load
	stageOverrides                   = config.Stage
	lookupEnv      config.LookupFunc = os.LookupEnv

	checkInstaller = func(command string) error {
		return prerequisites.CheckInstaller(command).Error()
	}

	newRunner = func(cfg *config.Config, opts ...workflow.Option) Runner {
		return workflow.New(cfg, opts...)
	}

	newUploader = func(ctx context.Context, region, endpoint string) (Uploader, error) {
		return s3.NewClient(ctx, region, endpoint)
	}

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// RunOptions are the flags of the run command.
type RunOptions struct {
	Mode       string
	Product    string
	ConfigPath string
	Command    string
	Verbose    bool
}

// ExitError reports a run that did not succeed. Its message has already been
// printed; main only needs the exit code.
type ExitError struct {
	Result workflow.Result
}

func (e *ExitError) Error() string { return e.Result.Message }

// ExitCode is the process exit status for the run.
func (e *ExitError) ExitCode() int { return e.Result.Outcome.ExitCode() }

// Run handles the run command.
//
// Configuration problems are returned before any installer session is
// spawned. Once the workflow has run, the report is printed, metrics are
// exported and the transcript is uploaded regardless of the outcome.
func Run(ctx context.Context, opts RunOptions) error {
	mode, err := workflow.ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	if opts.Product != ProductFull {
		return fmt.Errorf("invalid product %q: must be %s", opts.Product, ProductFull)
	}

	cfg, err := loadConfig(opts.ConfigPath, lookupEnv)
	if err != nil {
		return err
	}
	if opts.Command != "" {
		cfg.Session.InstallerCommand = opts.Command
	}
	if err := checkInstaller(cfg.Session.InstallerCommand); err != nil {
		return fmt.Errorf("installer not runnable: %w", err)
	}
	staged, err := stageOverrides(cfg)
	if err != nil {
		return fmt.Errorf("failed to stage override files: %w", err)
	}

	verbosity := 0
	if opts.Verbose {
		verbosity = 1
	}
	log := logging.New(stderr, verbosity)
	recorder := metrics.NewRecorder()

	log.Info("starting run", "mode", mode, "cluster", cfg.ClusterName, "transcript", cfg.Session.LogPath)

	runner := newRunner(cfg,
		workflow.WithStaged(staged),
		workflow.WithLogger(log),
		workflow.WithRecorder(recorder),
	)
	res := runner.Run(ctx, mode)

	if err := report.Write(stdout, res, cfg.Session.LogPath); err != nil {
		log.Error(err, "failed to print report")
	}
	if path := cfg.Artifacts.MetricsTextfile; path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			log.Error(err, "failed to write metrics", "path", path)
		}
	}
	publishTranscript(ctx, log, cfg, mode, res.RunID)

	if res.Outcome != workflow.OutcomeSuccess {
		return &ExitError{Result: res}
	}
	return nil
}

// publishTranscript uploads the transcript when an artifact bucket is
// configured. Failures are logged and never change the outcome.
func publishTranscript(ctx context.Context, log logr.Logger, cfg *config.Config, mode workflow.Mode, runID string) {
	bucket := cfg.Artifacts.Bucket
	if bucket == "" {
		return
	}
	// The workflow may have been cancelled; the upload still gets a chance.
	ctx = context.WithoutCancel(ctx)

	uploader, err := newUploader(ctx, cfg.AWSRegion, cfg.Artifacts.Endpoint)
	if err != nil {
		log.Error(err, "failed to create artifact client")
		return
	}
	key := naming.ArtifactKey(cfg.StateBucketPrefix, cfg.ClusterName, string(mode), runID)
	if err := uploader.UploadTranscript(ctx, bucket, key, cfg.Session.LogPath,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Info("retrying transcript upload", "attempt", attempt, "delay", delay, "error", err.Error())
		}),
	); err != nil {
		log.Error(err, "failed to upload transcript", "bucket", bucket, "key", key)
		return
	}
	log.Info("transcript uploaded", "bucket", bucket, "key", key)
}
