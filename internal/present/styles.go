package present

import "github.com/charmbracelet/lipgloss"

// Styles are the terminal styles shared by commands.
type Styles struct {
	AppName      lipgloss.Style
	CliArgs      lipgloss.Style
	Comment      lipgloss.Style
	ErrorHeader  lipgloss.Style
	ErrorDetails lipgloss.Style
	ErrPadding   lipgloss.Style
	Flag         lipgloss.Style
	FlagComma    lipgloss.Style
	FlagDesc     lipgloss.Style
	InlineCode   lipgloss.Style
	Link         lipgloss.Style
	Pipe         lipgloss.Style
	Quote        lipgloss.Style
	Provider     lipgloss.Style
	Kind         lipgloss.Style
	Role         lipgloss.Style
	Warning      lipgloss.Style
	Timeago      lipgloss.Style
}

// MakeStyles builds Styles for r.
func MakeStyles(r *lipgloss.Renderer) Styles {
	const horizontalEdgePadding = 2
	comment := r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#757575"})
	flag := r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00B594", Dark: "#3EEFCF"}).Bold(true)
	return Styles{
		AppName:      r.NewStyle().Bold(true),
		CliArgs:      r.NewStyle().Foreground(lipgloss.Color("#585858")),
		Comment:      comment,
		ErrorHeader:  r.NewStyle().Foreground(lipgloss.Color("#F1F1F1")).Background(lipgloss.Color("#FF5F87")).Bold(true).Padding(0, 1).SetString("ERROR"),
		ErrorDetails: comment,
		ErrPadding:   r.NewStyle().Padding(0, horizontalEdgePadding),
		Flag:         flag,
		FlagComma:    r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5DD6C0", Dark: "#427C72"}).SetString(","),
		FlagDesc:     comment,
		InlineCode:   r.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Background(lipgloss.Color("#3A3A3A")).Padding(0, 1),
		Link:         r.NewStyle().Foreground(lipgloss.Color("#00AF87")).Underline(true),
		Pipe:         r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8470FF", Dark: "#745CFF"}),
		Quote:        r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF71D0", Dark: "#FF78D2"}),
		Provider:     flag,
		Kind:         r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#999", Dark: "#555"}).Italic(true),
		Role:         r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8470FF", Dark: "#745CFF"}).Bold(true),
		Warning:      r.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
		Timeago:      r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#999", Dark: "#555"}),
	}
}
