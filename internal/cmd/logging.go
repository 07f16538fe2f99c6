package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dotcommander/capmux/internal/errs"
)

// newLogger builds the process logger writing to w. level is one of
// debug, info, warn or error, warn when empty; format is text or json.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl := slog.LevelWarn
	if level == "" {
		level = lvl.String()
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errs.Error{Err: err, Reason: fmt.Sprintf("Invalid log level %q.", level)}
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, errs.Error{
			Err:    errs.UserErrorf("supported formats are text and json"),
			Reason: fmt.Sprintf("Invalid log format %q.", format),
		}
	}
}
