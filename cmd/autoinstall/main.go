// Package main is the entry point for the autoinstall CLI.
//
// autoinstall drives the orchestrator installer through a pseudo-terminal to
// install, upgrade, update or uninstall an edge orchestrator cluster without
// an operator at the keyboard. The process exit status is the run outcome:
// 0 success, 1 error, 2 timeout, 3 unexpected end of the installer session.
//
// For detailed usage information, run:
//
//	autoinstall --help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/autoinstall/cmd/autoinstall/commands"
	"github.com/imamik/autoinstall/cmd/autoinstall/handlers"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var exitErr *handlers.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
