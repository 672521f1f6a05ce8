// Package prerequisites checks that the tools a run depends on are present
// before the installer session is spawned.
package prerequisites

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool represents an executable that may be required.
type Tool struct {
	// Name is the binary name or path to look for.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string
}

// InstallerTools returns the tools needed to drive the given installer
// command. Only the executable is checked; arguments are ignored.
func InstallerTools(command string) []Tool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return []Tool{{Name: "", Required: true, Description: "Installer wrapper script"}}
	}
	return []Tool{
		{
			Name:        fields[0],
			Required:    true,
			Description: "Installer wrapper script",
		},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool  Tool
	Found bool
	Path  string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%q (%s)", tool.Name, tool.Description))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check verifies that the specified tools are available. Names containing a
// slash are checked as paths, others are looked up in PATH.
func Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		if tool.Name != "" {
			if path, err := exec.LookPath(tool.Name); err == nil {
				result.Found = true
				result.Path = path
			}
		}
		if !result.Found {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// CheckInstaller checks the tools needed by the installer command.
func CheckInstaller(command string) *CheckResults {
	return Check(InstallerTools(command))
}
