// Package session drives a long-lived interactive installer process.
//
// A Transport accepts line-oriented input and waits, with a bounded timeout,
// for the first of several expected output patterns. Timeouts are reported as
// a regular Match with SignalTimeout so callers can branch on them; a closed
// output stream is reported as ErrStreamClosed.
//
// The production implementation, PTY, runs the child under a pseudo-terminal
// and tees everything read and written to a transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Transport is the contract the workflow and long task monitor use to talk
// to the installer.
type Transport interface {
	// Send writes line followed by a newline.
	Send(line string) error

	// SendControl writes the control character for c (e.g. 'c' for Ctrl-C).
	SendControl(c rune) error

	// Expect waits until buffered output matches one of patterns or timeout
	// elapses. A timeout is not an error.
	Expect(timeout time.Duration, patterns ...Pattern) (Match, error)

	// Drain discards buffered output until the stream stays quiet for the
	// given duration and returns what was discarded.
	Drain(quiet time.Duration) string

	// Interact hands the live session to an operator until they detach.
	Interact(ctx context.Context, in io.Reader, out io.Writer) error

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// ErrStreamClosed is returned once the child's output stream has ended.
var ErrStreamClosed = errors.New("session stream closed")

// SpawnError is returned when the installer process cannot be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Scan matches patterns against buf the way Expect does. It returns the match,
// the number of bytes the match consumes, and whether anything matched.
func Scan(buf string, patterns []Pattern) (Match, int, bool) {
	idx, start, end := findFirst([]byte(buf), patterns)
	if idx < 0 {
		return Match{Signal: SignalTimeout, Index: TimeoutIndex, Before: buf}, 0, false
	}
	return Match{
		Signal: patterns[idx].Signal,
		Index:  idx,
		Before: buf[:start],
		Text:   buf[start:end],
	}, end, true
}

// ControlChar returns the byte sent for Ctrl+c.
func ControlChar(c rune) (byte, error) {
	switch {
	case c >= 'a' && c <= 'z':
		return byte(c-'a') + 1, nil
	case c >= 'A' && c <= 'Z':
		return byte(c-'A') + 1, nil
	}
	switch c {
	case '@':
		return 0, nil
	case '[':
		return 0x1b, nil
	case '\\':
		return 0x1c, nil
	case ']':
		return 0x1d, nil
	case '^':
		return 0x1e, nil
	case '_':
		return 0x1f, nil
	case '?':
		return 0x7f, nil
	}
	return 0, fmt.Errorf("no control character for %q", c)
}
