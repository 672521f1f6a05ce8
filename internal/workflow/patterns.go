package workflow

import (
	"github.com/imamik/autoinstall/internal/longtask"
	"github.com/imamik/autoinstall/internal/session"
)

// Installer wrapper prompts.
var (
	selectionPrompt   = session.Regexp(session.SignalSelection, `Your selection \(default \[.*\]\):`)
	clusterNamePrompt = session.Regexp(session.SignalClusterName, `Enter the name of the cluster \[.*\]:`)
	regionPrompt      = session.Regexp(session.SignalRegion, `Specify the AWS region for the cluster \(default \[.*\]\):`)
	statePrefixPrompt = session.Regexp(session.SignalStatePrefix, `Specify the state data identifier for the cluster \(default \[.*\]\):`)
	statePathPrompt   = session.Regexp(session.SignalStatePath, `local state path \(default \[.*\]\):`)
)

// Container shell prompts.
var (
	homePrompt       = session.Literal(session.SignalPrompt, "orchestrator-admin:~")
	podConfigsPrompt = session.Literal(session.SignalPrompt, "orchestrator-admin:pod-configs")
	anyPrompt        = session.Regexp(session.SignalPrompt, `orchestrator-admin:.*`)
)

// Configuration script prompts.
var (
	domainPrompt = session.Literal(session.SignalDomainName, "Enter the full domain name for the cluster:")
	emailPrompt  = session.Literal(session.SignalAdminEmail, "Please provide the administrator email address associated with the cluster's provisioning:")
	editorPrompt = session.Literal(session.SignalEditor, "Press any key to open your editor")
	saveConfirm  = session.Literal(session.SignalSaveConfirm, "to save it and proceed, others to quit:")
	valuesSaved  = session.Literal(session.SignalValuesSaved, "Info: Values are saved. Execute the config command to update them if it is needed.")
)

// upgradeConfirmation is asked once by provision.sh upgrade before it starts.
var upgradeConfirmation = longtask.Confirmation{
	Pattern: session.Regexp(session.SignalConfirm, `Enter 'yes' to start the upgrades\. Enter others to exit:`),
	Reply:   "yes",
}

// Long tasks run from ~/pod-configs.
var (
	accountInitTask = longtask.Task{
		Name:          "account-init",
		Success:       session.Literal(session.SignalSuccess, "Info: The AWS account is initialized."),
		Prompt:        podConfigsPrompt,
		Confirmations: []longtask.Confirmation{longtask.ShuttleDisconnect},
	}
	provisionTask = longtask.Task{
		Name:          "provision",
		Success:       session.Regexp(session.SignalSuccess, `Info: Installation completed successfully\. Please back up the files in .* directory\.`),
		Prompt:        podConfigsPrompt,
		Confirmations: []longtask.Confirmation{longtask.ShuttleDisconnect},
	}
	provisionUpgradeTask = longtask.Task{
		Name:          "provision-upgrade",
		Success:       session.Literal(session.SignalSuccess, "Info: The upgrade completed successfully."),
		Prompt:        podConfigsPrompt,
		Confirmations: []longtask.Confirmation{upgradeConfirmation, longtask.ShuttleDisconnect},
	}
	deprovisionTask = longtask.Task{
		Name:          "deprovision",
		Success:       session.Literal(session.SignalSuccess, "Info: Uninstallation completed successfully."),
		Prompt:        podConfigsPrompt,
		Confirmations: []longtask.Confirmation{longtask.ShuttleDisconnect},
	}
	accountResetTask = longtask.Task{
		Name:          "account-reset",
		Success:       session.Literal(session.SignalSuccess, "Info: The AWS account is reset."),
		Prompt:        podConfigsPrompt,
		Confirmations: []longtask.Confirmation{longtask.ShuttleDisconnect},
	}
)

// deprovisionSkipFlags are appended one per retry to work around known
// partial-install teardown failures.
var deprovisionSkipFlags = []string{
	"--skip-destroy-loadbalancer",
}
