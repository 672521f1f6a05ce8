package workflow

import (
	"strings"
	"time"
)

// PhaseName identifies a workflow phase.
type PhaseName string

const (
	PhaseStartInstaller     PhaseName = "Start Installer"
	PhaseStartTimeCryer     PhaseName = "Start Time Cryer"
	PhaseInitAccount        PhaseName = "Init Account"
	PhaseConfigureProvision PhaseName = "Configure Provision"
	PhaseProvision          PhaseName = "Provision"
	PhaseProvisionUpgrade   PhaseName = "Provision Upgrade"
	PhaseConfigureCluster   PhaseName = "Configure Cluster"
	PhasePrepareUpgrade     PhaseName = "Prepare Upgrade"
	PhaseUpdateCluster      PhaseName = "Update Cluster"
	PhaseMakefileInstall    PhaseName = "Make Install"
	PhaseMakefileUpdate     PhaseName = "Make Update"
	PhaseMakefileUpgrade    PhaseName = "Make Upgrade"
	PhaseDeprovision        PhaseName = "Deprovision"
	PhaseResetAccount       PhaseName = "Reset Account"
	PhaseExitContainer      PhaseName = "Exit Install Container"

	// Phases entered only after a failure.
	PhaseTimeoutRecovery PhaseName = "Timeout Recovery"
	PhaseEOFRecovery     PhaseName = "EOF Recovery"
)

// Slug returns the phase name in lower-kebab form for labels and keys.
func (p PhaseName) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(p)), " ", "-")
}

// Sequence returns the ordered phases of mode.
func Sequence(mode Mode) []PhaseName {
	switch mode {
	case ModeInstall:
		return []PhaseName{
			PhaseStartInstaller, PhaseStartTimeCryer, PhaseInitAccount, PhaseConfigureProvision,
			PhaseProvision, PhaseConfigureCluster, PhaseMakefileInstall, PhaseExitContainer,
		}
	case ModeUpgrade:
		return []PhaseName{
			PhaseStartInstaller, PhaseStartTimeCryer, PhasePrepareUpgrade, PhaseConfigureProvision,
			PhaseProvisionUpgrade, PhaseConfigureCluster, PhaseMakefileUpgrade, PhaseExitContainer,
		}
	case ModeUpdate:
		return []PhaseName{
			PhaseStartInstaller, PhaseStartTimeCryer, PhaseUpdateCluster, PhaseConfigureCluster,
			PhaseMakefileUpdate, PhaseExitContainer,
		}
	case ModeUpdateClusterSetting:
		return []PhaseName{
			PhaseStartInstaller, PhaseStartTimeCryer, PhaseUpdateCluster, PhaseConfigureProvision,
			PhaseProvision, PhaseConfigureCluster, PhaseMakefileUpdate, PhaseExitContainer,
		}
	case ModeUninstall:
		return []PhaseName{
			PhaseStartInstaller, PhaseStartTimeCryer, PhaseDeprovision, PhaseResetAccount,
			PhaseExitContainer,
		}
	}
	return nil
}

// CleanupFlags record which compensating actions a failed run needs. They
// are set as phases are reached and read once, when cleanup runs.
type CleanupFlags struct {
	DeprovisionOnCleanup  bool
	ResetAccountOnCleanup bool
}

// PhaseTiming records one executed phase.
type PhaseTiming struct {
	Phase    PhaseName
	Started  time.Time
	Duration time.Duration
	Err      error
}
