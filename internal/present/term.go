package present

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// IsTerminal reports whether f is attached to a terminal, including
// Cygwin/MSYS pseudo terminals.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var (
	isInputTTY  = sync.OnceValue(func() bool { return IsTerminal(os.Stdin) })
	isOutputTTY = sync.OnceValue(func() bool { return IsTerminal(os.Stdout) })
	isErrorTTY  = sync.OnceValue(func() bool { return IsTerminal(os.Stderr) })
)

// IsInputTTY reports whether stdin is a TTY.
func IsInputTTY() bool { return isInputTTY() }

// IsOutputTTY reports whether stdout is a TTY.
func IsOutputTTY() bool { return isOutputTTY() }

// IsErrorTTY reports whether stderr is a TTY. The spinner draws there.
func IsErrorTTY() bool { return isErrorTTY() }

var (
	stdoutRenderer = sync.OnceValue(lipgloss.DefaultRenderer)
	stderrRenderer = sync.OnceValue(func() *lipgloss.Renderer {
		return lipgloss.NewRenderer(os.Stderr, termenv.WithColorCache(true))
	})
	stdoutStyles = sync.OnceValue(func() Styles { return MakeStyles(stdoutRenderer()) })
	stderrStyles = sync.OnceValue(func() Styles { return MakeStyles(stderrRenderer()) })
)

// StdoutRenderer returns a lipgloss renderer bound to stdout.
func StdoutRenderer() *lipgloss.Renderer { return stdoutRenderer() }

// StdoutStyles returns styles rendered for stdout.
func StdoutStyles() Styles { return stdoutStyles() }

// StderrStyles returns styles rendered for stderr.
func StderrStyles() Styles { return stderrStyles() }
