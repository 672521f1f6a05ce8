package session

import (
	"regexp"
)

// Signal identifies the category of output a Pattern recognises.
// Call sites dispatch on the Signal of a Match rather than on its index.
type Signal int

const (
	// SignalTimeout is reported when no pattern matched before the deadline.
	SignalTimeout Signal = iota
	// SignalSuccess marks text confirming a long task's operation succeeded.
	SignalSuccess
	// SignalPrompt marks the installer shell becoming interactive again.
	SignalPrompt
	// SignalConfirm marks a question that must be answered for a task to continue.
	SignalConfirm

	// Wrapper script prompts answered while starting the installer.
	SignalSelection
	SignalClusterName
	SignalRegion
	SignalStatePrefix
	SignalStatePath

	// Configuration script prompts.
	SignalDomainName
	SignalAdminEmail
	SignalEditor
	SignalSaveConfirm
	SignalValuesSaved
)

var signalNames = map[Signal]string{
	SignalTimeout:     "timeout",
	SignalSuccess:     "success",
	SignalPrompt:      "prompt",
	SignalConfirm:     "confirm",
	SignalSelection:   "selection",
	SignalClusterName: "cluster-name",
	SignalRegion:      "region",
	SignalStatePrefix: "state-prefix",
	SignalStatePath:   "state-path",
	SignalDomainName:  "domain-name",
	SignalAdminEmail:  "admin-email",
	SignalEditor:      "editor",
	SignalSaveConfirm: "save-confirm",
	SignalValuesSaved: "values-saved",
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return "unknown"
}

// TimeoutIndex is the Match index reported when Expect times out.
const TimeoutIndex = -1

// Pattern pairs a regular expression with the Signal it stands for.
type Pattern struct {
	Signal Signal
	expr   *regexp.Regexp
}

// Regexp returns a Pattern matching the regular expression expr.
// It panics if expr does not compile; patterns are package-level constants.
func Regexp(sig Signal, expr string) Pattern {
	return Pattern{Signal: sig, expr: regexp.MustCompile(expr)}
}

// Literal returns a Pattern matching text exactly.
func Literal(sig Signal, text string) Pattern {
	return Pattern{Signal: sig, expr: regexp.MustCompile(regexp.QuoteMeta(text))}
}

// String returns the source expression.
func (p Pattern) String() string {
	if p.expr == nil {
		return ""
	}
	return p.expr.String()
}

// Match describes the result of an Expect call.
type Match struct {
	// Signal of the matched pattern, or SignalTimeout.
	Signal Signal
	// Index of the matched pattern in the Expect argument list, or TimeoutIndex.
	Index int
	// Before holds the output preceding the match. On timeout it holds all
	// unconsumed output.
	Before string
	// Text is the matched output.
	Text string
}

// TimedOut reports whether the match is the timeout branch.
func (m Match) TimedOut() bool {
	return m.Signal == SignalTimeout
}

// findFirst locates the earliest match of any pattern in buf. When two
// patterns match at the same offset the one declared first wins.
func findFirst(buf []byte, patterns []Pattern) (index, start, end int) {
	index, start, end = -1, -1, -1
	for i, p := range patterns {
		if p.expr == nil {
			continue
		}
		loc := p.expr.FindIndex(buf)
		if loc == nil {
			continue
		}
		if index == -1 || loc[0] < start {
			index, start, end = i, loc[0], loc[1]
		}
	}
	return index, start, end
}
