package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/autoinstall/cmd/autoinstall/handlers"
	"github.com/imamik/autoinstall/internal/workflow"
)

// Phases returns the phases command.
func Phases() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "phases",
		Short: "Print the phase sequence of a mode",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Phases(cmd.OutOrStdout(), mode)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(workflow.ModeInstall), "Workflow mode")

	return cmd
}
