// Package workflow drives the installer through complete install, upgrade,
// update and uninstall runs.
//
// A run executes the phase sequence of its [Mode] against one interactive
// session. Phases answer the installer's prompts and hand long-running
// provisioning commands to the longtask monitor. When a phase fails the run
// is classified into an [Outcome], recovery is attempted where the session
// allows it, and compensating cleanup (deprovision, account reset) runs
// according to the [CleanupFlags] collected so far.
package workflow
