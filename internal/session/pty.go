package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// escapeChar detaches an operator from Interact (Ctrl-]).
const escapeChar = 0x1d

// PTY is a Transport backed by a child process running under a
// pseudo-terminal.
type PTY struct {
	command string
	cmd     *exec.Cmd
	tty     io.ReadWriteCloser

	opts options

	mu      sync.Mutex
	buf     []byte
	eof     bool
	readErr error
	mirror  io.Writer
	notify  chan struct{}
	done    chan struct{}

	logMu     sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	transcript io.Writer
	closeGrace time.Duration
	rows, cols uint16
	env        []string
	dir        string
}

// Option configures Spawn.
type Option func(*options)

// WithTranscript tees all session traffic to w.
func WithTranscript(w io.Writer) Option {
	return func(o *options) {
		o.transcript = w
	}
}

// WithCloseGrace sets how long Close waits for the child before killing it.
func WithCloseGrace(d time.Duration) Option {
	return func(o *options) {
		o.closeGrace = d
	}
}

// WithWindowSize sets the terminal dimensions reported to the child.
func WithWindowSize(rows, cols uint16) Option {
	return func(o *options) {
		o.rows = rows
		o.cols = cols
	}
}

// WithEnv sets the child's environment. The parent environment is used when unset.
func WithEnv(env []string) Option {
	return func(o *options) {
		o.env = env
	}
}

// WithDir sets the child's working directory.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

func defaultOptions() options {
	return options{
		closeGrace: 10 * time.Second,
		rows:       24,
		cols:       80,
	}
}

// Spawn starts command under a pseudo-terminal.
// The command is split on whitespace; no shell is involved.
func Spawn(command string, opts ...Option) (*PTY, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, &SpawnError{Command: command, Err: errors.New("empty command")}
	}

	// #nosec G204 - the installer command comes from operator configuration
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = o.env
	cmd.Dir = o.dir

	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: o.rows, Cols: o.cols})
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}

	p := newPTY(command, tty, o)
	p.cmd = cmd
	return p, nil
}

func newPTY(command string, tty io.ReadWriteCloser, o options) *PTY {
	p := &PTY{
		command: command,
		tty:     tty,
		opts:    o,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *PTY) readLoop() {
	defer close(p.done)

	chunk := make([]byte, 4096)
	for {
		n, err := p.tty.Read(chunk)
		if n > 0 {
			data := append([]byte(nil), chunk[:n]...)
			p.record(data)

			p.mu.Lock()
			p.buf = append(p.buf, data...)
			mirror := p.mirror
			p.mu.Unlock()

			if mirror != nil {
				_, _ = mirror.Write(data)
			}
			p.wake()
		}
		if err != nil {
			p.mu.Lock()
			p.eof = true
			p.readErr = err
			p.mu.Unlock()
			p.wake()
			return
		}
	}
}

func (p *PTY) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *PTY) record(data []byte) {
	if p.opts.transcript == nil {
		return
	}
	p.logMu.Lock()
	defer p.logMu.Unlock()
	_, _ = p.opts.transcript.Write(data)
}

func (p *PTY) write(data []byte) error {
	p.mu.Lock()
	closed := p.eof
	p.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}

	p.record(data)
	if _, err := p.tty.Write(data); err != nil {
		return fmt.Errorf("failed to write to session: %w", err)
	}
	return nil
}

// Send implements Transport.
func (p *PTY) Send(line string) error {
	return p.write([]byte(line + "\n"))
}

// SendControl implements Transport.
func (p *PTY) SendControl(c rune) error {
	b, err := ControlChar(c)
	if err != nil {
		return err
	}
	return p.write([]byte{b})
}

// Expect implements Transport.
func (p *PTY) Expect(timeout time.Duration, patterns ...Pattern) (Match, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	expired := timeout <= 0
	for {
		p.mu.Lock()
		if m, n, ok := Scan(string(p.buf), patterns); ok {
			p.buf = append([]byte(nil), p.buf[n:]...)
			p.mu.Unlock()
			return m, nil
		}
		if p.eof {
			before := string(p.buf)
			p.buf = nil
			readErr := p.readErr
			p.mu.Unlock()
			return Match{Signal: SignalTimeout, Index: TimeoutIndex, Before: before}, streamClosed(readErr)
		}
		if expired {
			before := string(p.buf)
			p.mu.Unlock()
			return Match{Signal: SignalTimeout, Index: TimeoutIndex, Before: before}, nil
		}
		p.mu.Unlock()

		select {
		case <-p.notify:
		case <-timer.C:
			expired = true
		}
	}
}

func streamClosed(readErr error) error {
	if readErr == nil || errors.Is(readErr, io.EOF) {
		return ErrStreamClosed
	}
	return fmt.Errorf("%w: %v", ErrStreamClosed, readErr)
}

// Drain implements Transport.
func (p *PTY) Drain(quiet time.Duration) string {
	var discarded strings.Builder
	for {
		p.mu.Lock()
		discarded.Write(p.buf)
		p.buf = nil
		eof := p.eof
		p.mu.Unlock()
		if eof {
			return discarded.String()
		}

		select {
		case <-p.notify:
		case <-time.After(quiet):
			return discarded.String()
		}
	}
}

// Interact implements Transport. Output already buffered is written to out
// first; afterwards the child's output is mirrored to out while in is
// forwarded to the child. Typing Ctrl-] detaches.
func (p *PTY) Interact(ctx context.Context, in io.Reader, out io.Writer) error {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer func() { _ = term.Restore(int(f.Fd()), state) }()
	}

	p.mu.Lock()
	pending := p.buf
	p.buf = nil
	p.mirror = out
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.mirror = nil
		p.mu.Unlock()
	}()

	if len(pending) > 0 {
		if _, err := out.Write(pending); err != nil {
			return fmt.Errorf("failed to write pending output: %w", err)
		}
	}

	errc := make(chan error, 1)
	go func() {
		chunk := make([]byte, 1024)
		for {
			n, err := in.Read(chunk)
			if n > 0 {
				data := chunk[:n]
				if i := bytes.IndexByte(data, escapeChar); i >= 0 {
					if i > 0 {
						if werr := p.write(data[:i]); werr != nil {
							errc <- werr
							return
						}
					}
					errc <- nil
					return
				}
				if werr := p.write(data); werr != nil {
					errc <- werr
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				errc <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	case <-p.done:
		return ErrStreamClosed
	}
}

// Close implements Transport. It closes the terminal, waits up to the close
// grace for the child to exit and kills it otherwise.
func (p *PTY) Close() error {
	p.closeOnce.Do(func() {
		if err := p.tty.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.closeErr = fmt.Errorf("failed to close terminal: %w", err)
		}

		if p.cmd == nil || p.cmd.Process == nil {
			return
		}
		waitc := make(chan error, 1)
		go func() { waitc <- p.cmd.Wait() }()
		select {
		case <-waitc:
		case <-time.After(p.opts.closeGrace):
			_ = p.cmd.Process.Kill()
			<-waitc
		}
	})
	return p.closeErr
}

// Pid returns the child's process id, or 0 when there is no child.
func (p *PTY) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

var _ Transport = (*PTY)(nil)
