package present

import (
	"context"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type doneMsg struct{}

type spinModel struct {
	spinner spinner.Model
	label   string
	style   lipgloss.Style
	done    bool
}

func (m spinModel) Init() tea.Cmd { return m.spinner.Tick }

func (m spinModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m spinModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.style.Render(m.label)
}

// Spin shows a spinner labelled label on out while fn runs. The spinner
// is skipped when out is not a terminal.
func Spin[T any](ctx context.Context, out io.Writer, tty bool, label string, fn func(context.Context) T) T {
	if !tty {
		return fn(ctx)
	}
	styles := StderrStyles()
	p := tea.NewProgram(spinModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Quote)),
		label:   label,
		style:   styles.Comment,
	}, tea.WithOutput(out), tea.WithInput(nil), tea.WithContext(ctx))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _ = p.Run()
	}()

	result := fn(ctx)
	p.Send(doneMsg{})
	<-finished
	return result
}
