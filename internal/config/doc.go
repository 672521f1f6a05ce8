// Package config defines the settings of an autoinstall run.
//
// Settings come from an optional YAML file and are overridden by environment
// variables, which is how CI pipelines drive the installer. [Load] applies
// both layers and validates the result. [Config.Params] derives the argument
// fragments passed to the installer scripts, and [Stage] copies override
// files into the state directory the installer container mounts.
package config
