// Package naming provides consistent names for the files autoinstall stages
// into the installer's state directory and for the artifacts it publishes.
//
// Staged files land in STATE_PATH, which the installer mounts into its
// container as pod-configs/SAVEME. Names follow the layout the installer
// scripts expect, so they must not change independently of the installer.
package naming
