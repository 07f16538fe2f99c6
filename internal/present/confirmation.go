package present

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var actionHeader = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F1F1F1")).
	Background(lipgloss.Color("#6C50FF")).
	Bold(true).
	Padding(0, 1).
	MarginRight(1)

// PrintAction writes an upper-cased action badge followed by content.
func PrintAction(w io.Writer, action, content string) {
	badge := actionHeader.Render(strings.ToUpper(action))
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Center, badge, content))
}
