package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/dotcommander/capmux/internal/present"
)

const maxStdinBytes = 1 << 20

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}

// readStdin returns piped input, or "" when stdin is a terminal.
func readStdin() (string, error) {
	if present.IsInputTTY() {
		return "", nil
	}
	bts, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdinBytes))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(bts), nil
}
