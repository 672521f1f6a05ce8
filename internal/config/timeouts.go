package config

import (
	"fmt"
	"strconv"
	"time"
)

// Timeouts holds the waits and long task budgets of a run.
// These values can be customized via environment variables.
type Timeouts struct {
	Expect          time.Duration // Default wait for a prompt after a short command
	ContainerStart  time.Duration // Wait for the installer container shell
	ConfigurePrompt time.Duration // Wait for each configure-cluster prompt
	EditorOpen      time.Duration // Wait before closing the provision config editor
	ConfigSave      time.Duration // Wait for the prompt after saving provision values
	EditorSettle    time.Duration // Wait before closing the cluster config editor
	UpgradeSettle   time.Duration // Wait after prepare-upgrade and update-cluster
	MakeInstall     time.Duration
	MakeUpdate      time.Duration
	MakeUpgrade     time.Duration
	Exit            time.Duration // Wait for the installer to exit

	Recovery         time.Duration // Wait for the prompt per recovery attempt
	RecoveryAttempts int

	// Long task budgets
	AccountInitBudget      time.Duration
	ProvisionBudget        time.Duration
	ProvisionUpgradeBudget time.Duration
	DeprovisionBudget      time.Duration
	AccountResetBudget     time.Duration
	PollStep               time.Duration

	AccountResetRetries int
}

// LoadTimeouts loads timeout configuration from environment variables.
// If a variable is not set or invalid, the default value is used.
//
// Environment Variables:
//   - AUTOINSTALL_TIMEOUT_EXPECT (default: 30s)
//   - AUTOINSTALL_TIMEOUT_CONTAINER_START (default: 10m)
//   - AUTOINSTALL_TIMEOUT_CONFIGURE_PROMPT (default: 6m)
//   - AUTOINSTALL_TIMEOUT_EDITOR_OPEN (default: 2m)
//   - AUTOINSTALL_TIMEOUT_CONFIG_SAVE (default: 60s)
//   - AUTOINSTALL_TIMEOUT_EDITOR_SETTLE (default: 5s)
//   - AUTOINSTALL_TIMEOUT_UPGRADE_SETTLE (default: 2m)
//   - AUTOINSTALL_TIMEOUT_MAKE_INSTALL (default: 10m)
//   - AUTOINSTALL_TIMEOUT_MAKE_UPDATE (default: 60s)
//   - AUTOINSTALL_TIMEOUT_MAKE_UPGRADE (default: 10m)
//   - AUTOINSTALL_TIMEOUT_EXIT (default: 30s)
//   - AUTOINSTALL_TIMEOUT_RECOVERY (default: 5s)
//   - AUTOINSTALL_RECOVERY_ATTEMPTS (default: 5)
//   - AUTOINSTALL_BUDGET_ACCOUNT_INIT (default: 2000s)
//   - AUTOINSTALL_BUDGET_PROVISION (default: 5000s)
//   - AUTOINSTALL_BUDGET_PROVISION_UPGRADE (default: 14500s)
//   - AUTOINSTALL_BUDGET_DEPROVISION (default: 4000s)
//   - AUTOINSTALL_BUDGET_ACCOUNT_RESET (default: 1000s)
//   - AUTOINSTALL_POLL_STEP (default: 60s)
//   - AUTOINSTALL_ACCOUNT_RESET_RETRIES (default: 2)
func LoadTimeouts(lookup LookupFunc) *Timeouts {
	return &Timeouts{
		Expect:          parseDuration(lookup, "AUTOINSTALL_TIMEOUT_EXPECT", 30*time.Second),
		ContainerStart:  parseDuration(lookup, "AUTOINSTALL_TIMEOUT_CONTAINER_START", 10*time.Minute),
		ConfigurePrompt: parseDuration(lookup, "AUTOINSTALL_TIMEOUT_CONFIGURE_PROMPT", 6*time.Minute),
		EditorOpen:      parseDuration(lookup, "AUTOINSTALL_TIMEOUT_EDITOR_OPEN", 2*time.Minute),
		ConfigSave:      parseDuration(lookup, "AUTOINSTALL_TIMEOUT_CONFIG_SAVE", 60*time.Second),
		EditorSettle:    parseDuration(lookup, "AUTOINSTALL_TIMEOUT_EDITOR_SETTLE", 5*time.Second),
		UpgradeSettle:   parseDuration(lookup, "AUTOINSTALL_TIMEOUT_UPGRADE_SETTLE", 2*time.Minute),
		MakeInstall:     parseDuration(lookup, "AUTOINSTALL_TIMEOUT_MAKE_INSTALL", 10*time.Minute),
		MakeUpdate:      parseDuration(lookup, "AUTOINSTALL_TIMEOUT_MAKE_UPDATE", 60*time.Second),
		MakeUpgrade:     parseDuration(lookup, "AUTOINSTALL_TIMEOUT_MAKE_UPGRADE", 10*time.Minute),
		Exit:            parseDuration(lookup, "AUTOINSTALL_TIMEOUT_EXIT", 30*time.Second),

		Recovery:         parseDuration(lookup, "AUTOINSTALL_TIMEOUT_RECOVERY", 5*time.Second),
		RecoveryAttempts: parseInt(lookup, "AUTOINSTALL_RECOVERY_ATTEMPTS", 5),

		AccountInitBudget:      parseDuration(lookup, "AUTOINSTALL_BUDGET_ACCOUNT_INIT", 2000*time.Second),
		ProvisionBudget:        parseDuration(lookup, "AUTOINSTALL_BUDGET_PROVISION", 5000*time.Second),
		ProvisionUpgradeBudget: parseDuration(lookup, "AUTOINSTALL_BUDGET_PROVISION_UPGRADE", 14500*time.Second),
		DeprovisionBudget:      parseDuration(lookup, "AUTOINSTALL_BUDGET_DEPROVISION", 4000*time.Second),
		AccountResetBudget:     parseDuration(lookup, "AUTOINSTALL_BUDGET_ACCOUNT_RESET", 1000*time.Second),
		PollStep:               parseDuration(lookup, "AUTOINSTALL_POLL_STEP", 60*time.Second),

		AccountResetRetries: parseInt(lookup, "AUTOINSTALL_ACCOUNT_RESET_RETRIES", 2),
	}
}

// Validate rejects values the workflow cannot run with.
func (t *Timeouts) Validate() error {
	if t.PollStep <= 0 {
		return fmt.Errorf("poll step must be positive, got %v", t.PollStep)
	}
	if t.RecoveryAttempts < 1 {
		return fmt.Errorf("recovery attempts must be at least 1, got %d", t.RecoveryAttempts)
	}
	if t.AccountResetRetries < 0 {
		return fmt.Errorf("account reset retries must not be negative, got %d", t.AccountResetRetries)
	}
	return nil
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(lookup LookupFunc, envVar string, defaultVal time.Duration) time.Duration {
	val, ok := lookup(envVar)
	if !ok || val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(lookup LookupFunc, envVar string, defaultVal int) int {
	val, ok := lookup(envVar)
	if !ok || val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
