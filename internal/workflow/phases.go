package workflow

import (
	"context"
	"strconv"
	"time"

	"github.com/imamik/autoinstall/internal/session"
)

// inputFlushQuiet is how long the session must stay quiet before account
// reset starts typing.
const inputFlushQuiet = 100 * time.Millisecond

// startInstaller answers the wrapper script's questions and waits for the
// container shell.
func (in *Installer) startInstaller(context.Context) error {
	answers := []struct {
		prompt session.Pattern
		reply  string
	}{
		{selectionPrompt, strconv.Itoa(in.mode.InstallerOption())},
		{clusterNamePrompt, in.cfg.ClusterName},
		{regionPrompt, in.cfg.AWSRegion},
		{statePrefixPrompt, in.cfg.StateBucketPrefix},
		{statePathPrompt, in.cfg.StatePath},
	}
	for _, a := range answers {
		if _, err := in.expect(in.timeouts.Expect, a.prompt); err != nil {
			return err
		}
		if err := in.session.Send(a.reply); err != nil {
			return err
		}
	}

	_, err := in.expect(in.timeouts.ContainerStart, homePrompt)
	return err
}

func (in *Installer) startTimeCryer(context.Context) error {
	if !in.cfg.Features.TimingData {
		return nil
	}
	return in.run(timeCryer(), in.timeouts.Expect, anyPrompt)
}

func (in *Installer) initAccount(context.Context) error {
	if !in.cfg.Features.AccountInit {
		return nil
	}
	if err := in.run("cd ~/pod-configs", in.timeouts.Expect, podConfigsPrompt); err != nil {
		return err
	}

	// Partially initialized accounts need a reset as much as complete ones.
	in.flags.ResetAccountOnCleanup = true
	if err := in.session.Send(in.cmds.accountInit()); err != nil {
		return err
	}

	res, err := in.longTask(accountInitTask, in.timeouts.AccountInitBudget)
	if err != nil {
		return err
	}
	if !res.Success {
		return &PhaseError{Kind: AccountInitFailed, Phase: PhaseInitAccount, Attempts: 1}
	}
	return nil
}

func (in *Installer) configureProvision(ctx context.Context) error {
	if err := in.run("cd ~/pod-configs", in.timeouts.Expect, podConfigsPrompt); err != nil {
		return err
	}
	if err := in.session.Send(in.cmds.provisionConfig()); err != nil {
		return err
	}

	// The editor opens once the provisioning context has been downloaded,
	// and prints nothing that can be matched reliably.
	if err := in.sleep(ctx, in.timeouts.EditorOpen); err != nil {
		return err
	}
	if err := in.session.Send(":wq"); err != nil {
		return err
	}

	m, err := in.expect(in.timeouts.Expect, saveConfirm, valuesSaved)
	if err != nil {
		return err
	}
	switch m.Signal {
	case session.SignalSaveConfirm:
		in.log.Info("confirming provision config save")
		if err := in.session.Send("yes"); err != nil {
			return err
		}
	case session.SignalValuesSaved:
	default:
		return unexpected(in.currentStep, m)
	}

	_, err = in.expect(in.timeouts.ConfigSave, podConfigsPrompt)
	return err
}

func (in *Installer) provision(context.Context) error {
	if err := in.run("cd ~/pod-configs", in.timeouts.Expect, podConfigsPrompt); err != nil {
		return err
	}
	if err := in.session.Send(in.cmds.provisionInstall()); err != nil {
		return err
	}

	res, err := in.longTask(provisionTask, in.timeouts.ProvisionBudget)
	if err != nil {
		return err
	}
	if !res.Success {
		return &PhaseError{Kind: ProvisionFailed, Phase: PhaseProvision, Attempts: 1}
	}
	return nil
}

func (in *Installer) provisionUpgrade(context.Context) error {
	if err := in.run("cd ~/pod-configs", in.timeouts.Expect, podConfigsPrompt); err != nil {
		return err
	}
	if err := in.session.Send(in.cmds.provisionUpgrade()); err != nil {
		return err
	}

	res, err := in.longTask(provisionUpgradeTask, in.timeouts.ProvisionUpgradeBudget)
	if err != nil {
		return err
	}
	if !res.Success {
		return &PhaseError{Kind: ProvisionUpgradeFailed, Phase: PhaseProvisionUpgrade, Attempts: 1}
	}
	return nil
}

// copyProfiles installs staged profile overrides into the deployment
// repository inside the container.
func (in *Installer) copyProfiles() error {
	if in.staged.RegistryProfile != "" {
		if err := in.run(copyRegistryProfile(), in.timeouts.Expect, homePrompt); err != nil {
			return err
		}
	}
	if in.cfg.Network.Internal && in.staged.InternalProxyProfile != "" {
		if err := in.run(copyInternalProxyProfile(), in.timeouts.Expect, homePrompt); err != nil {
			return err
		}
	}
	return nil
}

func (in *Installer) configureCluster(ctx context.Context) error {
	if err := in.run("cd ~", in.timeouts.Expect, homePrompt); err != nil {
		return err
	}
	if err := in.copyProfiles(); err != nil {
		return err
	}
	if err := in.session.Send(in.cmds.configureCluster()); err != nil {
		return err
	}

	for editor := false; !editor; {
		m, err := in.expect(in.timeouts.ConfigurePrompt, domainPrompt, emailPrompt, editorPrompt)
		if err != nil {
			return err
		}
		switch m.Signal {
		case session.SignalDomainName:
			err = in.session.Send(in.cmds.fqdn())
		case session.SignalAdminEmail:
			err = in.session.Send(in.cfg.AdminEmail)
		case session.SignalEditor:
			err = in.session.Send("")
			editor = true
		default:
			return unexpected(in.currentStep, m)
		}
		if err != nil {
			return err
		}
	}

	if err := in.sleep(ctx, in.timeouts.EditorSettle); err != nil {
		return err
	}
	return in.run(":wq", in.timeouts.Expect, homePrompt)
}

func (in *Installer) prepareUpgrade(ctx context.Context) error {
	return in.initContainer(ctx, in.cmds.prepareUpgrade())
}

func (in *Installer) updateCluster(ctx context.Context) error {
	return in.initContainer(ctx, in.cmds.updateCluster())
}

// initContainer runs a container initialization script that may ask for the
// cluster domain and admin email before returning to the shell.
func (in *Installer) initContainer(ctx context.Context, command string) error {
	if err := in.run("cd ~", in.timeouts.Expect, homePrompt); err != nil {
		return err
	}
	if err := in.copyProfiles(); err != nil {
		return err
	}
	if err := in.session.Send(command); err != nil {
		return err
	}

	for done := false; !done; {
		m, err := in.expect(in.timeouts.ConfigurePrompt, domainPrompt, emailPrompt, homePrompt)
		if err != nil {
			return err
		}
		switch m.Signal {
		case session.SignalDomainName:
			err = in.session.Send(in.cmds.fqdn())
		case session.SignalAdminEmail:
			err = in.session.Send(in.cfg.AdminEmail)
		case session.SignalPrompt:
			done = true
		default:
			return unexpected(in.currentStep, m)
		}
		if err != nil {
			return err
		}
	}

	// Applications keep upgrading in the background after the script returns.
	return in.sleep(ctx, in.timeouts.UpgradeSettle)
}

func (in *Installer) makefileInstall(context.Context) error {
	if err := in.run("cd ~", in.timeouts.Expect, homePrompt); err != nil {
		return err
	}
	if in.cfg.Network.Internal && in.cfg.InternalRegistry() && in.staged.InternalHarborCert != "" {
		if err := in.run(createRegistryCertsConfigMap(), in.timeouts.Expect, homePrompt); err != nil {
			return err
		}
	}
	if err := in.run(in.cmds.make("install"), in.timeouts.MakeInstall, homePrompt); err != nil {
		return err
	}

	// Cache the argocd admin password for later test stages.
	if err := in.run(argoAuthEnvCommand, in.timeouts.Expect, homePrompt); err != nil {
		return err
	}
	return in.run(argoAuthJSONCommand, in.timeouts.Expect, homePrompt)
}

func (in *Installer) makefileUpdate(context.Context) error {
	if err := in.run("cd ~", in.timeouts.Expect, homePrompt); err != nil {
		return err
	}
	return in.run(in.cmds.make("update"), in.timeouts.MakeUpdate, homePrompt)
}

func (in *Installer) makefileUpgrade(context.Context) error {
	if err := in.run("cd ~", in.timeouts.Expect, homePrompt); err != nil {
		return err
	}
	return in.run(in.cmds.make("upgrade"), in.timeouts.MakeUpgrade, homePrompt)
}

// deprovision tears down cloud resources, retrying with one more skip flag
// per attempt to work around known partial-install teardown failures.
func (in *Installer) deprovision(context.Context) error {
	if err := in.run("cd ~/pod-configs", in.timeouts.Expect, podConfigsPrompt); err != nil {
		return err
	}

	command := in.cmds.provisionUninstall()
	for attempt := 1; ; attempt++ {
		if err := in.session.Send(command); err != nil {
			return err
		}
		res, err := in.longTask(deprovisionTask, in.timeouts.DeprovisionBudget)
		if err != nil {
			return err
		}
		if res.Success {
			return nil
		}
		if attempt > len(deprovisionSkipFlags) {
			return &PhaseError{Kind: DeprovisionFailed, Phase: PhaseDeprovision, Attempts: attempt}
		}
		command = command + " " + deprovisionSkipFlags[attempt-1]
		in.log.Info("retrying deprovision", "attempt", attempt+1, "command", command)
	}
}

func (in *Installer) resetAccount(context.Context) error {
	if !in.cfg.Features.AccountReset && !in.flags.ResetAccountOnCleanup {
		return nil
	}

	if flushed := in.session.Drain(inputFlushQuiet); flushed != "" {
		in.log.V(1).Info("flushed pending output before account reset", "bytes", len(flushed))
	}
	if err := in.run("cd ~/pod-configs", in.timeouts.Expect, podConfigsPrompt); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		if err := in.session.Send(in.cmds.accountReset()); err != nil {
			return err
		}
		res, err := in.longTask(accountResetTask, in.timeouts.AccountResetBudget)
		if err != nil {
			return err
		}
		if res.Success {
			return nil
		}
		if attempt > in.timeouts.AccountResetRetries {
			return &PhaseError{Kind: AccountResetFailed, Phase: PhaseResetAccount, Attempts: attempt}
		}
		in.log.Info("retrying account reset", "attempt", attempt+1)
	}
}

// exitContainer leaves the installer container and closes the session. A
// session that fails to take the exit stays open for the caller to inspect.
func (in *Installer) exitContainer(context.Context) error {
	if err := in.session.Send("exit"); err != nil {
		if err = ignoreClosed(err); err != nil {
			return err
		}
		in.closeSession()
		return nil
	}

	// No pattern: wait for the stream to close.
	m, err := in.session.Expect(in.timeouts.Exit)
	if err != nil {
		if err = ignoreClosed(err); err != nil {
			return err
		}
		in.closeSession()
		return nil
	}
	if m.TimedOut() {
		in.log.Info("installer did not exit, sending exit again")
		if err := ignoreClosed(in.session.Send("exit")); err != nil {
			return err
		}
	}
	in.closeSession()
	return nil
}
