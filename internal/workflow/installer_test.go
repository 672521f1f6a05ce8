package workflow

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/autoinstall/internal/config"
	"github.com/imamik/autoinstall/internal/metrics"
	"github.com/imamik/autoinstall/internal/session"
	"github.com/imamik/autoinstall/internal/session/sessiontest"
)

const (
	homeText       = "\r\norchestrator-admin:~$ "
	podConfigsText = "\r\norchestrator-admin:pod-configs$ "
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		ClusterName:           "demo",
		ClusterDomain:         "example.com",
		AWSRegion:             "us-west-2",
		AWSAccount:            "123456789012",
		StateBucketPrefix:     "ci",
		StatePath:             filepath.Join(dir, "state"),
		ClusterProfile:        config.DefaultClusterProfile,
		DisableAWSProdProfile: config.DefaultAWSProdProfile,
		AWSRoles:              "Admin",
		AdminEmail:            config.DefaultAdminEmail,
		RSDomain:              config.DefaultRSDomain,
		Features:              config.Features{CacheRegistry: true},
		Session: config.SessionConfig{
			InstallerCommand: config.DefaultInstallerCommand,
			LogPath:          filepath.Join(dir, "install.log"),
		},
	}
	cfg.Timeouts = config.LoadTimeouts(func(string) (string, bool) { return "", false })
	return cfg
}

// newTerminals returns n scripted sessions sharing one virtual clock.
func newTerminals(n int) []*sessiontest.Terminal {
	terms := make([]*sessiontest.Terminal, n)
	for i := range terms {
		terms[i] = sessiontest.NewTerminal()
		terms[i].Clock = terms[0].Clock
	}
	return terms
}

// newInstaller returns an Installer that hands out terms in order, one per
// spawn, and sleeps in virtual time.
func newInstaller(t *testing.T, cfg *config.Config, terms []*sessiontest.Terminal, opts ...Option) *Installer {
	t.Helper()
	clk := terms[0].Clock
	next := 0
	spawn := func(command string, _ io.Writer) (session.Transport, error) {
		if next >= len(terms) {
			return nil, &session.SpawnError{Command: command, Err: errors.New("no scripted session left")}
		}
		term := terms[next]
		next++
		return term, nil
	}
	base := []Option{
		WithSpawnFunc(spawn),
		WithClock(clk),
		WithSleep(func(_ context.Context, d time.Duration) error {
			clk.Step(d)
			return nil
		}),
		WithRunID("run-1"),
		WithOperator(strings.NewReader(""), io.Discard),
	}
	return New(cfg, append(base, opts...)...)
}

// scriptShell answers directory changes and the argocd password caching.
func scriptShell(term *sessiontest.Terminal) {
	term.Always("cd ~", sessiontest.Now(homeText))
	term.Always("cd ~/pod-configs", sessiontest.Now(podConfigsText))
	term.Always("echo", sessiontest.Now(homeText))
}

// scriptWrapperPrompts asks the wrapper script's questions.
func scriptWrapperPrompts(term *sessiontest.Terminal, cfg *config.Config, option string) {
	term.Emit(sessiontest.At(time.Second, "Your selection (default [1]): "))
	term.Once(option, sessiontest.Now("Enter the name of the cluster [demo]: "))
	term.Once(cfg.ClusterName, sessiontest.Now("Specify the AWS region for the cluster (default [us-west-2]): "))
	term.Once(cfg.AWSRegion, sessiontest.Now("Specify the state data identifier for the cluster (default [ci]): "))
	term.Once(cfg.StateBucketPrefix, sessiontest.Now("Enter the local state path (default [/tmp/state]): "))
}

// scriptStartInstaller walks the wrapper prompts up to the container shell.
func scriptStartInstaller(term *sessiontest.Terminal, cfg *config.Config, option string) {
	scriptWrapperPrompts(term, cfg, option)
	term.Once(cfg.StatePath, sessiontest.At(45*time.Second, homeText))
}

func scriptConfigureProvision(term *sessiontest.Terminal) {
	term.Once(":wq",
		sessiontest.Now("Info: Values are saved. Execute the config command to update them if it is needed.\r\n"),
		sessiontest.At(2*time.Second, podConfigsText),
	)
}

func scriptProvision(term *sessiontest.Terminal) {
	term.Once("utils/provision.sh install",
		sessiontest.At(20*time.Second, "module.eks.aws_eks_cluster.main: Creating...\r\n"),
		sessiontest.At(30*time.Second, "Info: Installation completed successfully. Please back up the files in SAVEME directory.\r\n"),
		sessiontest.At(35*time.Second, podConfigsText),
	)
}

func scriptConfigureCluster(term *sessiontest.Terminal) {
	term.Once("DISABLE_AWS_PROD_PROFILE=false ./configure-cluster.sh", sessiontest.Now("Enter the full domain name for the cluster: "))
	term.Once("demo.example.com", sessiontest.Now("Please provide the administrator email address associated with the cluster's provisioning: "))
	term.Once(config.DefaultAdminEmail, sessiontest.Now("Press any key to open your editor"))
	term.Once(":wq", sessiontest.Now(homeText))
}

func scriptInstall(term *sessiontest.Terminal, cfg *config.Config) {
	scriptStartInstaller(term, cfg, "1")
	scriptShell(term)
	scriptConfigureProvision(term)
	scriptProvision(term)
	scriptConfigureCluster(term)
	term.Once("make install", sessiontest.At(5*time.Minute, homeText))
	term.Once("exit", sessiontest.Hangup(time.Second))
}

func phaseNames(timings []PhaseTiming) []PhaseName {
	names := make([]PhaseName, 0, len(timings))
	for _, pt := range timings {
		names = append(names, pt.Phase)
	}
	return names
}

func timingOf(t *testing.T, timings []PhaseTiming, phase PhaseName) PhaseTiming {
	t.Helper()
	for _, pt := range timings {
		if pt.Phase == phase {
			return pt
		}
	}
	require.Failf(t, "phase not timed", "%s", phase)
	return PhaseTiming{}
}

func TestRun_InstallSuccess(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptInstall(term, cfg)

	recorder := metrics.NewRecorder()
	res := newInstaller(t, cfg, terms, WithRecorder(recorder)).Run(context.Background(), ModeInstall)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 0, res.Outcome.ExitCode())
	assert.Equal(t, "auto_install: install operation completed successfully.", res.Message)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, Sequence(ModeInstall), phaseNames(res.Timings))

	assert.Equal(t, []string{"1", "demo", "us-west-2", "ci", cfg.StatePath}, term.Sent()[:5])
	install := term.SentWithPrefix("utils/provision.sh install")
	require.Len(t, install, 1)
	assert.True(t, strings.HasSuffix(install[0], "--auto --reduce-ns-ttl --enable-cache-registry"))
	assert.Len(t, term.SentWithPrefix("echo"), 2)
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh account"), "account init is disabled")

	assert.Equal(t, 35*time.Second, timingOf(t, res.Timings, PhaseProvision).Duration)
	assert.Equal(t, 1, term.CloseCalls())
	assert.Empty(t, term.LateSends())

	path := filepath.Join(t.TempDir(), "autoinstall.prom")
	require.NoError(t, recorder.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `autoinstall_run_outcome{mode="install"} 0`)
	assert.Contains(t, string(data), `autoinstall_phase_total{mode="install",phase="provision",result="success"} 1`)
}

func TestRun_InitAccountDuration(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Features.AccountInit = true
	terms := newTerminals(1)
	term := terms[0]
	scriptInstall(term, cfg)
	term.Once("utils/provision.sh account --new-aws-account",
		sessiontest.At(120*time.Second, "Info: The AWS account is initialized.\r\n"),
		sessiontest.At(125*time.Second, podConfigsText),
	)

	in := newInstaller(t, cfg, terms)
	res := in.Run(context.Background(), ModeInstall)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 125*time.Second, timingOf(t, res.Timings, PhaseInitAccount).Duration)
	assert.True(t, in.flags.ResetAccountOnCleanup)
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh account --reset-aws-account"), "no cleanup after success")
}

func TestRun_InitAccountFailureResetsAccount(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Features.AccountInit = true
	terms := newTerminals(1)
	term := terms[0]
	scriptStartInstaller(term, cfg, "1")
	scriptShell(term)
	term.Once("utils/provision.sh account --new-aws-account",
		sessiontest.At(30*time.Second, "Error: failed to create the state bucket\r\n"),
		sessiontest.At(31*time.Second, podConfigsText),
	)
	term.Once("utils/provision.sh account --reset-aws-account",
		sessiontest.At(40*time.Second, "Info: The AWS account is reset.\r\n"),
		sessiontest.At(41*time.Second, podConfigsText),
	)

	in := newInstaller(t, cfg, terms)
	res := in.Run(context.Background(), ModeInstall)

	assert.Equal(t, OutcomeUnknownError, res.Outcome)
	assert.Equal(t, PhaseInitAccount, res.Phase)
	var phaseErr *PhaseError
	require.True(t, errors.As(res.Err, &phaseErr))
	assert.Equal(t, AccountInitFailed, phaseErr.Kind)
	assert.Equal(t, "auto_install: install failed with an exception: account init failed: Init Account did not report success", res.Message)

	assert.True(t, in.flags.ResetAccountOnCleanup)
	assert.False(t, in.flags.DeprovisionOnCleanup)
	assert.Len(t, term.SentWithPrefix("utils/provision.sh account --reset-aws-account"), 1)
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh uninstall"))
	assert.Len(t, term.Drained(), 1, "input is flushed before the reset")

	last := res.Timings[len(res.Timings)-1]
	assert.Equal(t, PhaseResetAccount, last.Phase)
	assert.NoError(t, last.Err)
	assert.Empty(t, term.SentWithPrefix("exit"))
}

func TestRun_ProvisionFailureKeepsResources(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptStartInstaller(term, cfg, "1")
	scriptShell(term)
	scriptConfigureProvision(term)
	term.Once("utils/provision.sh install",
		sessiontest.At(40*time.Second, "Error: creating EKS cluster: quota exceeded\r\n"),
		sessiontest.At(41*time.Second, podConfigsText),
	)

	in := newInstaller(t, cfg, terms)
	res := in.Run(context.Background(), ModeInstall)

	assert.Equal(t, OutcomeUnknownError, res.Outcome)
	assert.Equal(t, PhaseProvision, res.Phase)
	var phaseErr *PhaseError
	require.True(t, errors.As(res.Err, &phaseErr))
	assert.Equal(t, ProvisionFailed, phaseErr.Kind)

	assert.False(t, in.flags.DeprovisionOnCleanup)
	assert.False(t, in.flags.ResetAccountOnCleanup)
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh uninstall"))
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh account"))
}

func TestRun_UninstallRetriesWithSkipFlag(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptStartInstaller(term, cfg, "3")
	scriptShell(term)

	uninstall := newCommands(cfg).provisionUninstall()
	retry := uninstall + " --skip-destroy-loadbalancer"
	term.Once(uninstall,
		sessiontest.At(40*time.Second, "Error: deleting load balancer: DependencyViolation\r\n"),
		sessiontest.At(45*time.Second, podConfigsText),
	)
	term.Once(retry,
		sessiontest.At(50*time.Second, "Info: Uninstallation completed successfully.\r\n"),
		sessiontest.At(55*time.Second, podConfigsText),
	)
	term.Once("exit", sessiontest.Hangup(time.Second))

	res := newInstaller(t, cfg, terms).Run(context.Background(), ModeUninstall)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{uninstall, retry}, term.SentWithPrefix("utils/provision.sh uninstall"))
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh account"), "account reset is disabled")
}

func TestRun_UninstallExhaustsSkipFlags(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptStartInstaller(term, cfg, "3")
	scriptShell(term)
	term.Always("utils/provision.sh uninstall",
		sessiontest.At(40*time.Second, "Error: deleting load balancer: DependencyViolation\r\n"),
		sessiontest.At(45*time.Second, podConfigsText),
	)

	res := newInstaller(t, cfg, terms).Run(context.Background(), ModeUninstall)

	assert.Equal(t, OutcomeUnknownError, res.Outcome)
	var phaseErr *PhaseError
	require.True(t, errors.As(res.Err, &phaseErr))
	assert.Equal(t, DeprovisionFailed, phaseErr.Kind)
	assert.Equal(t, 2, phaseErr.Attempts)

	sent := term.SentWithPrefix("utils/provision.sh uninstall")
	require.Len(t, sent, 2)
	assert.True(t, strings.HasSuffix(sent[1], " --skip-destroy-loadbalancer"))
	assert.NotContains(t, phaseNames(res.Timings), PhaseResetAccount)
	assert.Empty(t, term.SentWithPrefix("exit"))
}

func TestRun_StreamClosedRecoversOnNewSession(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Features.AccountInit = true
	terms := newTerminals(2)
	dead, fresh := terms[0], terms[1]

	scriptStartInstaller(dead, cfg, "1")
	scriptShell(dead)
	dead.Once("utils/provision.sh account --new-aws-account",
		sessiontest.At(30*time.Second, "Info: The AWS account is initialized.\r\n"),
		sessiontest.At(31*time.Second, podConfigsText),
	)
	scriptConfigureProvision(dead)
	dead.Once("utils/provision.sh install",
		sessiontest.At(20*time.Second, "module.vpc.aws_vpc.main: Creating...\r\n"),
		sessiontest.Hangup(25*time.Second),
	)

	scriptStartInstaller(fresh, cfg, "1")
	scriptShell(fresh)
	fresh.Once("utils/provision.sh account --reset-aws-account",
		sessiontest.At(30*time.Second, "Info: The AWS account is reset.\r\n"),
		sessiontest.At(31*time.Second, podConfigsText),
	)

	res := newInstaller(t, cfg, terms).Run(context.Background(), ModeInstall)

	assert.Equal(t, OutcomeStreamClosed, res.Outcome)
	assert.Equal(t, 3, res.Outcome.ExitCode())
	assert.Equal(t, PhaseProvision, res.Phase)
	assert.True(t, errors.Is(res.Err, session.ErrStreamClosed))
	assert.True(t, strings.HasPrefix(res.Message, "auto_install: install failed with an EOF during Provision: "))
	assert.True(t, res.Recovered)

	assert.Empty(t, dead.LateSends(), "the closed session is never written to")
	assert.Equal(t, 1, dead.CloseCalls())
	assert.Equal(t, "1", fresh.Sent()[0], "the installer restarts with the same option")
	assert.Len(t, fresh.SentWithPrefix("utils/provision.sh account --reset-aws-account"), 1)
	assert.Empty(t, fresh.SentWithPrefix("utils/provision.sh uninstall"))
	assert.Equal(t, 1, fresh.CloseCalls())

	names := phaseNames(res.Timings)
	assert.Contains(t, names, PhaseEOFRecovery)
	assert.Equal(t, PhaseResetAccount, names[len(names)-1])

	transcript, err := os.ReadFile(cfg.Session.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "EOF during install. Cleanup log follows:")
}

func TestRun_TimeoutRecoversPrompt(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Features.InteractiveDebug = true
	terms := newTerminals(1)
	term := terms[0]
	// The container shell never appears.
	scriptWrapperPrompts(term, cfg, "2")
	term.Once("^C", sessiontest.Now(homeText))

	res := newInstaller(t, cfg, terms,
		WithTerminalCheck(func(io.Reader) bool { return true }),
	).Run(context.Background(), ModeUpgrade)

	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.Equal(t, PhaseStartInstaller, res.Phase)
	var timeoutErr *TimeoutError
	require.True(t, errors.As(res.Err, &timeoutErr))
	assert.Equal(t, 10*time.Minute, timeoutErr.After)
	assert.Contains(t, res.Message, "auto_install: upgrade failed with a TIMEOUT during Start Installer: ")

	assert.Equal(t, 1, term.InteractCalls())
	assert.True(t, res.Recovered)
	assert.Equal(t, []string{"^C", ""}, term.Sent()[5:])
}

func TestRun_TimeoutRecoveryGivesUp(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptWrapperPrompts(term, cfg, "1")

	res := newInstaller(t, cfg, terms).Run(context.Background(), ModeInstall)

	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.False(t, res.Recovered)
	assert.Equal(t, 0, term.InteractCalls(), "interactive debug is disabled")
	assert.Len(t, term.SentWithPrefix("^C"), cfg.Timeouts.RecoveryAttempts)

	recovery := timingOf(t, res.Timings, PhaseTimeoutRecovery)
	assert.Equal(t, time.Duration(cfg.Timeouts.RecoveryAttempts)*cfg.Timeouts.Recovery, recovery.Duration)
	assert.Error(t, recovery.Err)
}

func TestRun_SpawnFailure(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	in := New(cfg, WithSpawnFunc(func(command string, _ io.Writer) (session.Transport, error) {
		return nil, &session.SpawnError{Command: command, Err: os.ErrNotExist}
	}))
	res := in.Run(context.Background(), ModeInstall)

	assert.Equal(t, OutcomeUninitialized, res.Outcome)
	assert.Equal(t, 1, res.Outcome.ExitCode())
	assert.Empty(t, res.Phase)
	var spawnErr *session.SpawnError
	assert.True(t, errors.As(res.Err, &spawnErr))
	assert.Empty(t, res.Timings)
	assert.True(t, strings.HasPrefix(res.Message, "auto_install: install failed with an exception: "))
	assert.NotEmpty(t, res.RunID)
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newInstaller(t, cfg, terms).Run(ctx, ModeInstall)

	assert.Equal(t, OutcomeUnknownError, res.Outcome)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Empty(t, term.Sent())
	assert.Equal(t, 1, term.CloseCalls())
}

func TestCleanup_RunsBothActionsInOrder(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptShell(term)

	cmds := newCommands(cfg)
	term.Once(cmds.provisionUninstall(),
		sessiontest.At(30*time.Second, "Info: Uninstallation completed successfully.\r\n"),
		sessiontest.At(31*time.Second, podConfigsText),
	)
	term.Once(cmds.accountReset(),
		sessiontest.At(30*time.Second, "Info: The AWS account is reset.\r\n"),
		sessiontest.At(31*time.Second, podConfigsText),
	)

	recorder := metrics.NewRecorder()
	in := newInstaller(t, cfg, terms, WithRecorder(recorder))
	in.mode = ModeInstall
	in.events = in.observer
	in.session = term
	in.flags = CleanupFlags{DeprovisionOnCleanup: true, ResetAccountOnCleanup: true}

	in.cleanup(context.Background())

	assert.Equal(t, []PhaseName{PhaseDeprovision, PhaseResetAccount}, phaseNames(in.timings))
	provisionCalls := term.SentWithPrefix("utils/provision.sh")
	require.Len(t, provisionCalls, 2)
	assert.Equal(t, cmds.provisionUninstall(), provisionCalls[0])
	assert.Equal(t, cmds.accountReset(), provisionCalls[1])

	path := filepath.Join(t.TempDir(), "autoinstall.prom")
	require.NoError(t, recorder.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `autoinstall_cleanup_total{action="deprovision",result="success"} 1`)
	assert.Contains(t, string(data), `autoinstall_cleanup_total{action="reset-account",result="success"} 1`)
}

func TestCleanup_ActionsAreIndependent(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Timeouts.AccountResetRetries = 0
	terms := newTerminals(1)
	term := terms[0]
	scriptShell(term)

	cmds := newCommands(cfg)
	// Deprovision never succeeds; the account reset must still run.
	term.Always(cmds.provisionUninstall(), sessiontest.At(10*time.Second, podConfigsText))
	term.Once(cmds.accountReset(),
		sessiontest.At(30*time.Second, "Info: The AWS account is reset.\r\n"),
		sessiontest.At(31*time.Second, podConfigsText),
	)

	in := newInstaller(t, cfg, terms)
	in.mode = ModeInstall
	in.events = in.observer
	in.session = term
	in.flags = CleanupFlags{DeprovisionOnCleanup: true, ResetAccountOnCleanup: true}

	in.cleanup(context.Background())

	require.Len(t, in.timings, 2)
	var phaseErr *PhaseError
	require.True(t, errors.As(in.timings[0].Err, &phaseErr))
	assert.Equal(t, DeprovisionFailed, phaseErr.Kind)
	assert.NoError(t, in.timings[1].Err)
}

func TestResetAccount_RetriesWithoutEscalation(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Features.AccountReset = true
	terms := newTerminals(1)
	term := terms[0]
	scriptShell(term)
	term.Always("utils/provision.sh account --reset-aws-account", sessiontest.At(10*time.Second, podConfigsText))

	in := newInstaller(t, cfg, terms)
	in.mode = ModeUninstall
	in.session = term

	err := in.resetAccount(context.Background())

	var phaseErr *PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, AccountResetFailed, phaseErr.Kind)
	assert.Equal(t, 3, phaseErr.Attempts)

	sent := term.SentWithPrefix("utils/provision.sh account --reset-aws-account")
	require.Len(t, sent, 3)
	assert.Equal(t, sent[0], sent[2], "retries reuse the same command")
}

func TestConfigureProvision_ConfirmsSave(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptShell(term)
	term.Once(":wq", sessiontest.Now("Enter 'yes' to save it and proceed, others to quit: "))
	term.Once("yes", sessiontest.At(3*time.Second, podConfigsText))

	in := newInstaller(t, cfg, terms)
	in.session = term
	start := term.Clock.Now()

	require.NoError(t, in.configureProvision(context.Background()))
	assert.Equal(t, []string{"cd ~/pod-configs", newCommands(cfg).provisionConfig(), ":wq", "yes"}, term.Sent())
	assert.Equal(t, cfg.Timeouts.EditorOpen+3*time.Second, term.Clock.Since(start))
}

func TestConfigureCluster_CopiesStagedProfiles(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Network.Internal = true
	terms := newTerminals(1)
	term := terms[0]
	scriptShell(term)
	term.Always("cp", sessiontest.Now(homeText))
	scriptConfigureCluster(term)

	in := newInstaller(t, cfg, terms, WithStaged(config.Staged{
		RegistryProfile:      "/state/artifact-rs-profile.yaml",
		InternalProxyProfile: "/state/proxy-internal.yaml",
	}))
	in.session = term

	require.NoError(t, in.configureCluster(context.Background()))
	assert.Equal(t, []string{copyRegistryProfile(), copyInternalProxyProfile()}, term.SentWithPrefix("cp "))
	assert.Equal(t, []string{
		"cd ~",
		copyRegistryProfile(),
		copyInternalProxyProfile(),
		"DISABLE_AWS_PROD_PROFILE=false ./configure-cluster.sh",
		"demo.example.com",
		config.DefaultAdminEmail,
		"",
		":wq",
	}, term.Sent())
}

func TestUpdateCluster_WaitsForApplications(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptShell(term)
	term.Once("./update-cluster.sh",
		sessiontest.At(10*time.Second, "Enter the full domain name for the cluster: "),
	)
	term.Once("demo.example.com", sessiontest.At(20*time.Second, homeText))

	in := newInstaller(t, cfg, terms)
	in.session = term
	start := term.Clock.Now()

	require.NoError(t, in.updateCluster(context.Background()))
	assert.Equal(t, 30*time.Second+cfg.Timeouts.UpgradeSettle, term.Clock.Since(start))
}

func TestMakefileInstall_InternalRegistryCerts(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Network = config.NetworkConfig{Internal: true, VPCID: "vpc-0abc", JumphostIP: "10.1.0.4", CIDRBlock: "10.1.0.0/16"}
	terms := newTerminals(1)
	term := terms[0]
	scriptShell(term)
	term.Always("kubectl", sessiontest.Now(homeText))
	term.Once("USE_REPO_PROXY=true", sessiontest.At(8*time.Minute, homeText))

	in := newInstaller(t, cfg, terms, WithStaged(config.Staged{InternalHarborCert: "/state/internal-harbor-ca.crt"}))
	in.session = term

	require.NoError(t, in.makefileInstall(context.Background()))
	sent := term.Sent()
	require.Len(t, sent, 5)
	assert.Equal(t, createRegistryCertsConfigMap(), sent[1])
	assert.Equal(t, "USE_REPO_PROXY=true USE_INTERNAL_PROXY=true USE_TEST_ADMIN=true USE_INTERNAL_REGISTRY_CERTS=true make install", sent[2])
}

func TestMakefileUpdate_Timeout(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptShell(term)
	term.Once("make update", sessiontest.At(2*time.Minute, homeText))

	in := newInstaller(t, cfg, terms)
	in.session = term
	in.currentStep = PhaseMakefileUpdate

	err := in.makefileUpdate(context.Background())

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, PhaseMakefileUpdate, timeoutErr.Phase)
	assert.Equal(t, cfg.Timeouts.MakeUpdate, timeoutErr.After)
	assert.Equal(t, OutcomeTimeout, Classify(err))
}

func TestExitContainer_SecondExitOnTimeout(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	term.Once("exit")
	term.Once("exit", sessiontest.Hangup(time.Second))

	in := newInstaller(t, cfg, terms)
	in.session = term

	require.NoError(t, in.exitContainer(context.Background()))
	assert.Equal(t, []string{"exit", "exit"}, term.Sent())
	assert.Equal(t, 1, term.CloseCalls())
	assert.Nil(t, in.session)
}

// exitFailure is a session whose tty stops accepting input just as the
// container is left.
type exitFailure struct {
	*sessiontest.Terminal
}

func (s exitFailure) Send(line string) error {
	if line == "exit" {
		return errors.New("failed to write to session: input/output error")
	}
	return s.Terminal.Send(line)
}

func TestRun_ExitFailureSkipsCleanup(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Features.AccountInit = true
	terms := newTerminals(1)
	term := terms[0]
	scriptInstall(term, cfg)
	term.Once("utils/provision.sh account --new-aws-account",
		sessiontest.At(30*time.Second, "Info: The AWS account is initialized.\r\n"),
		sessiontest.At(31*time.Second, podConfigsText),
	)

	in := newInstaller(t, cfg, terms, WithSpawnFunc(func(string, io.Writer) (session.Transport, error) {
		return exitFailure{term}, nil
	}))
	res := in.Run(context.Background(), ModeInstall)

	assert.Equal(t, OutcomeUnknownError, res.Outcome)
	assert.Equal(t, PhaseExitContainer, res.Phase)
	assert.Contains(t, res.Message, "failed to write to session: input/output error")
	assert.False(t, res.Recovered)

	assert.True(t, in.flags.ResetAccountOnCleanup)
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh account --reset-aws-account"), "a finished install is not reset")
	assert.NotContains(t, phaseNames(res.Timings), PhaseResetAccount)
	assert.Equal(t, PhaseExitContainer, res.Timings[len(res.Timings)-1].Phase)
	assert.Equal(t, 1, term.CloseCalls())
	assert.Nil(t, in.session)
}

func TestExitContainer_WriteFailureKeepsSession(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]

	in := newInstaller(t, cfg, terms)
	in.session = exitFailure{term}

	require.Error(t, in.exitContainer(context.Background()))
	assert.NotNil(t, in.session)
	assert.Equal(t, 0, term.CloseCalls())
}

func TestRecovery_NoSession(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Features.InteractiveDebug = true
	in := newInstaller(t, cfg, newTerminals(1), WithTerminalCheck(func(io.Reader) bool { return true }))
	in.mode = ModeInstall
	in.events = in.observer
	in.flags = CleanupFlags{DeprovisionOnCleanup: true, ResetAccountOnCleanup: true}

	assert.NotPanics(t, func() {
		in.interactiveDebug(context.Background())
		assert.False(t, in.recoverFromTimeout())
		in.cleanup(context.Background())
	})
	assert.Empty(t, in.timings)
}

func TestRun_StreamClosedWithoutFlagsSkipsRestart(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptStartInstaller(term, cfg, "1")
	scriptShell(term)
	scriptConfigureProvision(term)
	term.Once("utils/provision.sh install",
		sessiontest.At(20*time.Second, "module.vpc.aws_vpc.main: Creating...\r\n"),
		sessiontest.Hangup(25*time.Second),
	)

	spawns := 0
	in := newInstaller(t, cfg, terms, WithSpawnFunc(func(command string, _ io.Writer) (session.Transport, error) {
		spawns++
		if spawns > 1 {
			return nil, &session.SpawnError{Command: command, Err: errors.New("unexpected restart")}
		}
		return term, nil
	}))
	res := in.Run(context.Background(), ModeInstall)

	assert.Equal(t, OutcomeStreamClosed, res.Outcome)
	assert.Equal(t, PhaseProvision, res.Phase)
	assert.False(t, res.Recovered)
	assert.Equal(t, 1, spawns)
	assert.NotContains(t, phaseNames(res.Timings), PhaseEOFRecovery)
	assert.Equal(t, 1, term.CloseCalls())
	assert.Empty(t, term.LateSends())

	transcript, err := os.ReadFile(cfg.Session.LogPath)
	require.NoError(t, err)
	assert.NotContains(t, string(transcript), "Cleanup log follows:")
}

func TestRun_UpgradeSuccess(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptStartInstaller(term, cfg, "2")
	scriptShell(term)
	term.Once("./prepare-upgrade.sh", sessiontest.At(30*time.Second, "Enter the full domain name for the cluster: "))
	term.Once("demo.example.com", sessiontest.At(10*time.Second, homeText))
	scriptConfigureProvision(term)
	term.Once("utils/provision.sh upgrade",
		sessiontest.At(5*time.Second, "Enter 'yes' to start the upgrades. Enter others to exit: "),
	)
	term.Once("yes",
		sessiontest.At(20*time.Minute, "Info: The upgrade completed successfully.\r\n"),
		sessiontest.At(21*time.Minute, podConfigsText),
	)
	scriptConfigureCluster(term)
	term.Once("make upgrade", sessiontest.At(6*time.Minute, homeText))
	term.Once("exit", sessiontest.Hangup(time.Second))

	in := newInstaller(t, cfg, terms)
	res := in.Run(context.Background(), ModeUpgrade)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "auto_install: upgrade operation completed successfully.", res.Message)
	assert.Equal(t, Sequence(ModeUpgrade), phaseNames(res.Timings))
	assert.Equal(t, "2", term.Sent()[0])

	upgrade := term.SentWithPrefix("utils/provision.sh upgrade")
	require.Len(t, upgrade, 1)
	assert.Equal(t, newCommands(cfg).provisionUpgrade(), upgrade[0])
	assert.Len(t, term.SentWithPrefix("yes"), 1)
	assert.Equal(t, 21*time.Minute+5*time.Second, timingOf(t, res.Timings, PhaseProvisionUpgrade).Duration)
	assert.Equal(t, 40*time.Second+cfg.Timeouts.UpgradeSettle, timingOf(t, res.Timings, PhasePrepareUpgrade).Duration)
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh install"))
	assert.Equal(t, CleanupFlags{}, in.flags)
	assert.Equal(t, 1, term.CloseCalls())
}

func TestRun_ProvisionUpgradeFailureSkipsCleanup(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Features.AccountReset = true
	terms := newTerminals(1)
	term := terms[0]
	scriptStartInstaller(term, cfg, "2")
	scriptShell(term)
	term.Once("./prepare-upgrade.sh", sessiontest.At(30*time.Second, homeText))
	scriptConfigureProvision(term)
	term.Once("utils/provision.sh upgrade",
		sessiontest.At(5*time.Second, "Enter 'yes' to start the upgrades. Enter others to exit: "),
	)
	term.Once("yes",
		sessiontest.At(4*time.Minute, "Error: upgrading EKS node group: version skew\r\n"),
		sessiontest.At(5*time.Minute, podConfigsText),
	)

	in := newInstaller(t, cfg, terms)
	res := in.Run(context.Background(), ModeUpgrade)

	assert.Equal(t, OutcomeUnknownError, res.Outcome)
	assert.Equal(t, PhaseProvisionUpgrade, res.Phase)
	var phaseErr *PhaseError
	require.True(t, errors.As(res.Err, &phaseErr))
	assert.Equal(t, ProvisionUpgradeFailed, phaseErr.Kind)
	assert.Equal(t, "auto_install: upgrade failed with an exception: "+phaseErr.Error(), res.Message)

	assert.Equal(t, CleanupFlags{}, in.flags)
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh uninstall"))
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh account"))
	assert.Empty(t, term.SentWithPrefix("make"))
	assert.Equal(t, PhaseProvisionUpgrade, res.Timings[len(res.Timings)-1].Phase)
}

func TestRun_UpdateSuccess(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptStartInstaller(term, cfg, "2")
	scriptShell(term)
	term.Once("./update-cluster.sh", sessiontest.At(15*time.Second, homeText))
	scriptConfigureCluster(term)
	term.Once("make update", sessiontest.At(40*time.Second, homeText))
	term.Once("exit", sessiontest.Hangup(time.Second))

	res := newInstaller(t, cfg, terms).Run(context.Background(), ModeUpdate)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "auto_install: update operation completed successfully.", res.Message)
	assert.Equal(t, Sequence(ModeUpdate), phaseNames(res.Timings))
	assert.Equal(t, "2", term.Sent()[0])
	assert.Len(t, term.SentWithPrefix("./update-cluster.sh"), 1)
	assert.Equal(t, 40*time.Second, timingOf(t, res.Timings, PhaseMakefileUpdate).Duration)
	assert.Empty(t, term.SentWithPrefix("utils/provision.sh"), "update never provisions")
}

func TestRun_UpdateClusterSettingSuccess(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	terms := newTerminals(1)
	term := terms[0]
	scriptStartInstaller(term, cfg, "2")
	scriptShell(term)
	term.Once("./update-cluster.sh", sessiontest.At(10*time.Second, "Please provide the administrator email address associated with the cluster's provisioning: "))
	term.Once(config.DefaultAdminEmail, sessiontest.At(5*time.Second, homeText))
	scriptConfigureProvision(term)
	scriptProvision(term)
	scriptConfigureCluster(term)
	term.Once("make update", sessiontest.At(50*time.Second, homeText))
	term.Once("exit", sessiontest.Hangup(time.Second))

	in := newInstaller(t, cfg, terms)
	res := in.Run(context.Background(), ModeUpdateClusterSetting)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "auto_install: update-cluster-setting operation completed successfully.", res.Message)
	assert.Equal(t, Sequence(ModeUpdateClusterSetting), phaseNames(res.Timings))
	assert.Equal(t, "2", term.Sent()[0])

	install := term.SentWithPrefix("utils/provision.sh install")
	require.Len(t, install, 1)
	assert.Equal(t, newCommands(cfg).provisionInstall(), install[0])
	assert.Equal(t, []string{config.DefaultAdminEmail, config.DefaultAdminEmail}, term.SentWithPrefix(config.DefaultAdminEmail))
	assert.Equal(t, 35*time.Second, timingOf(t, res.Timings, PhaseProvision).Duration)
	assert.False(t, in.flags.DeprovisionOnCleanup)
	assert.Equal(t, 1, term.CloseCalls())
}
