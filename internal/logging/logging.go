// Package logging builds the logr.Logger used across autoinstall.
package logging

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// New returns a logger writing key/value lines to w. Messages logged with
// V(n) are emitted when n <= verbosity.
func New(w io.Writer, verbosity int) logr.Logger {
	var mu sync.Mutex
	return funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		if prefix != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		_, _ = fmt.Fprintln(w, args)
	}, funcr.Options{
		LogTimestamp:    true,
		TimestampFormat: "2006-01-02 15:04:05",
		Verbosity:       verbosity,
	})
}
