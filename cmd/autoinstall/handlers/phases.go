package handlers

import (
	"fmt"
	"io"

	"github.com/imamik/autoinstall/internal/workflow"
)

// Phases prints the phase sequence of a mode.
func Phases(w io.Writer, modeName string) error {
	mode, err := workflow.ParseMode(modeName)
	if err != nil {
		return err
	}
	for i, phase := range workflow.Sequence(mode) {
		if _, err := fmt.Fprintf(w, "%d. %s\n", i+1, phase); err != nil {
			return err
		}
	}
	return nil
}
