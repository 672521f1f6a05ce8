package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// OpenTranscript opens the session transcript at path. A fresh run truncates
// the file; recovery reopens it with appendMode so earlier output survives.
func OpenTranscript(path string, appendMode bool) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	// #nosec G304 - path comes from operator configuration
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript %s: %w", path, err)
	}
	return f, nil
}

// WriteBanner writes a separator block into a transcript.
func WriteBanner(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, "\n\n---\n%s\n---\n\n", text)
	return err
}
