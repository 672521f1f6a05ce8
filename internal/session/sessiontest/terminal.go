// Package sessiontest provides a scripted, virtual-time Transport for tests.
//
// A Terminal reacts to lines sent to it with scheduled output. Expect
// advances a fake clock to the next scheduled output instead of sleeping, so
// hour-long installer conversations run instantly while durations remain
// observable through Clock.
package sessiontest

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/imamik/autoinstall/internal/session"
)

// Output is text the simulated installer writes After a delay.
type Output struct {
	After time.Duration
	Text  string
	Close bool
}

// Now returns output written immediately.
func Now(text string) Output {
	return Output{Text: text}
}

// At returns output written after d.
func At(d time.Duration, text string) Output {
	return Output{After: d, Text: text}
}

// Hangup returns an output that closes the stream after d.
func Hangup(d time.Duration) Output {
	return Output{After: d, Close: true}
}

type scheduled struct {
	at  time.Time
	seq int
	out Output
}

type rule struct {
	key     string
	outputs []Output
}

// Terminal is a scripted session.Transport.
type Terminal struct {
	Clock *testingclock.FakeClock

	mu        sync.Mutex
	buf       string
	pending   []scheduled
	seq       int
	once      []rule
	always    []rule
	sent      []string
	lateSends []string
	eof       bool
	closed    int
	interacts int
	drained   []string
}

// NewTerminal returns an idle terminal whose clock starts at a fixed instant.
func NewTerminal() *Terminal {
	return &Terminal{
		Clock: testingclock.NewFakeClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)),
	}
}

// Emit schedules outputs relative to the current virtual time.
func (t *Terminal) Emit(outs ...Output) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schedule(outs)
}

// Once registers outputs produced the next time a line matching key is sent.
// Rules registered with Once are consumed in registration order.
func (t *Terminal) Once(key string, outs ...Output) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.once = append(t.once, rule{key: key, outputs: outs})
}

// Always registers outputs produced every time a line matching key is sent
// and no Once rule claims it.
func (t *Terminal) Always(key string, outs ...Output) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.always = append(t.always, rule{key: key, outputs: outs})
}

// Sent returns every line written while the stream was open. Control
// characters are recorded as "^C" and similar.
func (t *Terminal) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

// SentWithPrefix returns sent lines beginning with prefix.
func (t *Terminal) SentWithPrefix(prefix string) []string {
	var out []string
	for _, line := range t.Sent() {
		if strings.HasPrefix(line, prefix) {
			out = append(out, line)
		}
	}
	return out
}

// LateSends returns lines written after the stream closed.
func (t *Terminal) LateSends() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lateSends...)
}

// CloseCalls returns how many times Close was called.
func (t *Terminal) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// InteractCalls returns how many times Interact was called.
func (t *Terminal) InteractCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interacts
}

// Drained returns the output discarded by each Drain call.
func (t *Terminal) Drained() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.drained...)
}

func (t *Terminal) schedule(outs []Output) {
	now := t.Clock.Now()
	for _, out := range outs {
		t.seq++
		t.pending = append(t.pending, scheduled{at: now.Add(out.After), seq: t.seq, out: out})
	}
	sort.SliceStable(t.pending, func(i, j int) bool {
		if t.pending[i].at.Equal(t.pending[j].at) {
			return t.pending[i].seq < t.pending[j].seq
		}
		return t.pending[i].at.Before(t.pending[j].at)
	})
}

func keyMatches(key, line string) bool {
	return line == key || strings.HasPrefix(line, key+" ")
}

func (t *Terminal) react(line string) {
	for i, r := range t.once {
		if keyMatches(r.key, line) {
			t.once = append(t.once[:i], t.once[i+1:]...)
			t.schedule(r.outputs)
			return
		}
	}
	for _, r := range t.always {
		if keyMatches(r.key, line) {
			t.schedule(r.outputs)
			return
		}
	}
}

func (t *Terminal) advanceTo(at time.Time) {
	if at.After(t.Clock.Now()) {
		t.Clock.SetTime(at)
	}
}

// applyNext applies the earliest scheduled output due at or before deadline.
// It reports whether anything was applied.
func (t *Terminal) applyNext(deadline time.Time) bool {
	if len(t.pending) == 0 || t.pending[0].at.After(deadline) {
		return false
	}
	next := t.pending[0]
	t.pending = t.pending[1:]
	t.advanceTo(next.at)
	if next.out.Close {
		t.eof = true
	} else {
		t.buf += next.out.Text
	}
	return true
}

// Send implements session.Transport.
func (t *Terminal) Send(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.eof || t.closed > 0 {
		t.lateSends = append(t.lateSends, line)
		return session.ErrStreamClosed
	}
	t.sent = append(t.sent, line)
	t.react(line)
	return nil
}

// SendControl implements session.Transport.
func (t *Terminal) SendControl(c rune) error {
	line := "^" + strings.ToUpper(string(c))
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.eof || t.closed > 0 {
		t.lateSends = append(t.lateSends, line)
		return session.ErrStreamClosed
	}
	t.sent = append(t.sent, line)
	t.react(line)
	return nil
}

// Expect implements session.Transport using virtual time.
func (t *Terminal) Expect(timeout time.Duration, patterns ...session.Pattern) (session.Match, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := t.Clock.Now().Add(timeout)
	for {
		if m, n, ok := session.Scan(t.buf, patterns); ok {
			t.buf = t.buf[n:]
			return m, nil
		}
		if t.eof {
			before := t.buf
			t.buf = ""
			return session.Match{Signal: session.SignalTimeout, Index: session.TimeoutIndex, Before: before}, session.ErrStreamClosed
		}
		if t.applyNext(deadline) {
			continue
		}
		t.advanceTo(deadline)
		return session.Match{Signal: session.SignalTimeout, Index: session.TimeoutIndex, Before: t.buf}, nil
	}
}

// Drain implements session.Transport.
func (t *Terminal) Drain(quiet time.Duration) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := t.Clock.Now().Add(quiet)
	for t.applyNext(deadline) {
	}
	discarded := t.buf
	t.buf = ""
	t.drained = append(t.drained, discarded)
	return discarded
}

// Interact implements session.Transport. It records the call and returns.
func (t *Terminal) Interact(_ context.Context, _ io.Reader, _ io.Writer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interacts++
	return nil
}

// Close implements session.Transport.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

var _ session.Transport = (*Terminal)(nil)
