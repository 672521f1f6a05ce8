// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the autoinstall CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autoinstall",
		Short: "Drive the orchestrator installer without an operator",
	}

	cmd.AddCommand(Run())
	cmd.AddCommand(Phases())
	cmd.AddCommand(Version())

	return cmd
}
