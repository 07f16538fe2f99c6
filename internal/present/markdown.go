package present

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
)

const markdownTabWidth = 4

// RenderMarkdown renders a reply for the terminal, wrapping at wordWrap.
func RenderMarkdown(input string, wordWrap int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("new markdown renderer: %w", err)
	}
	out, err := r.Render(input)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	return strings.ReplaceAll(out, "\t", strings.Repeat(" ", markdownTabWidth)) + "\n", nil
}

// Reply formats a reply for output: markdown when tty, the plain text
// with a trailing newline otherwise.
func Reply(reply string, tty bool, wordWrap int) string {
	if tty {
		if out, err := RenderMarkdown(reply, wordWrap); err == nil {
			return out
		}
	}
	if strings.HasSuffix(reply, "\n") {
		return reply
	}
	return reply + "\n"
}
