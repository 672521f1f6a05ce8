package workflow

import (
	"fmt"
	"strings"
)

// Mode selects the workflow a run executes.
type Mode string

const (
	ModeInstall              Mode = "install"
	ModeUpgrade              Mode = "upgrade"
	ModeUpdate               Mode = "update"
	ModeUpdateClusterSetting Mode = "update-cluster-setting"
	ModeUninstall            Mode = "uninstall"
)

// Modes lists all modes in documentation order.
func Modes() []Mode {
	return []Mode{ModeInstall, ModeUpgrade, ModeUpdate, ModeUpdateClusterSetting, ModeUninstall}
}

// ParseMode returns the Mode named s.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	names := make([]string, 0, len(Modes()))
	for _, m := range Modes() {
		names = append(names, string(m))
	}
	return "", fmt.Errorf("invalid mode %q: must be one of %s", s, strings.Join(names, ", "))
}

// InstallerOption is the answer to the installer wrapper's selection menu.
func (m Mode) InstallerOption() int {
	switch m {
	case ModeInstall:
		return 1
	case ModeUpgrade, ModeUpdate, ModeUpdateClusterSetting:
		return 2
	case ModeUninstall:
		return 3
	}
	return 1
}
