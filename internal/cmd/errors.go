package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/present"
)

// handleError renders err for the terminal. Flag errors point at the
// flag, errs.Error shows its reason above the details, anything else is
// printed as is.
func handleError(w io.Writer, err error) {
	s := present.StderrStyles()
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) {
		fmt.Fprintf(w, format+"%s\n\n",
			fmt.Sprintf("Check out %s %s", s.InlineCode.Render("capmux -h"), s.Comment.Render("for help.")),
			fmt.Sprintf(ferr.ReasonFormat(), s.InlineCode.Render(ferr.Flag())),
		)
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) {
		args := []any{s.ErrPadding.Render(s.ErrorHeader.String(), merr.Reason)}
		if merr.Err != nil && !errors.Is(merr.Err, huh.ErrUserAborted) {
			format += "%s\n\n"
			args = append(args, s.ErrPadding.Render(s.ErrorDetails.Render(merr.Err.Error())))
		}
		fmt.Fprintf(w, format, args...)
		return
	}

	fmt.Fprintf(w, format, s.ErrPadding.Render(s.ErrorDetails.Render(err.Error())))
}
