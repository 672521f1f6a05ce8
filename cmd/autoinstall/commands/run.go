package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/autoinstall/cmd/autoinstall/handlers"
	"github.com/imamik/autoinstall/internal/workflow"
)

// Run returns the run command.
//
// The run command spawns the installer wrapper, answers its prompts for the
// selected mode and resets an initialized AWS account when the run fails.
func Run() *cobra.Command {
	opts := handlers.RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an installer workflow",
		Long: `Run spawns the installer wrapper in a pseudo-terminal and drives it
through the phases of the selected mode.

Modes:
  install                 provision AWS resources and install the orchestrator
  upgrade                 upgrade the provisioned resources and the orchestrator
  update                  apply cluster changes and re-run make update
  update-cluster-setting  update cluster settings only
  uninstall               deprovision all AWS resources

Settings are read from the environment (CLUSTER_NAME, AWS_REGION, STATE_PATH,
...). A YAML file given with --config supplies defaults that the environment
overrides.

When a run fails after account init has started, the AWS account is reset.
Provisioned cloud resources are left in place for inspection; remove them
with --mode uninstall.

Exit status:
  0  success
  1  error
  2  timeout
  3  installer session ended unexpectedly

Example:
  autoinstall run --mode install -c autoinstall.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", string(workflow.ModeInstall), "Workflow mode")
	cmd.Flags().StringVarP(&opts.Product, "product", "p", handlers.ProductFull, "Product to install")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a YAML file with default settings")
	cmd.Flags().StringVar(&opts.Command, "command", "", "Installer command (overrides AUTOINSTALL_COMMAND)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log long task polling details")

	return cmd
}
