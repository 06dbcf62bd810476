package pages

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wrap"

	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/ui"
)

// logView is a scrolling, wrapped list of rendered event lines.
type logView struct {
	lines       []string
	viewport    viewport.Model
	placeholder string
}

func newLogView(placeholder string) logView {
	return logView{viewport: viewport.New(0, 0), placeholder: placeholder}
}

func (l *logView) append(line string) {
	atBottom := l.viewport.AtBottom()
	l.lines = append(l.lines, line)
	l.refresh()
	if atBottom {
		l.viewport.GotoBottom()
	}
}

func (l *logView) clear() {
	l.lines = nil
	l.refresh()
}

func (l *logView) len() int { return len(l.lines) }

func (l *logView) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	l.viewport, cmd = l.viewport.Update(msg)
	return cmd
}

func (l *logView) refresh() {
	content := strings.Join(l.lines, "\n")
	if l.viewport.Width <= 0 {
		l.viewport.SetContent(content)
		return
	}
	// Hard wrap, then truncate anything still too wide (ANSI-aware).
	wrapped := wrap.String(content, l.viewport.Width)
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		if ansi.PrintableRuneWidth(line) > l.viewport.Width {
			lines[i] = truncate.String(line, uint(l.viewport.Width))
		}
	}
	l.viewport.SetContent(strings.Join(lines, "\n"))
}

func (l *logView) view(width, height int) string {
	contentWidth := width - 3
	contentHeight := height - 2
	if contentWidth < 10 {
		contentWidth = 10
	}
	if contentHeight < 3 {
		contentHeight = 3
	}

	oldWidth := l.viewport.Width
	l.viewport.Width = contentWidth
	l.viewport.Height = contentHeight
	if oldWidth != contentWidth && len(l.lines) > 0 {
		l.refresh()
	}

	style := lipgloss.NewStyle().
		Width(width).
		Height(height).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderTop(true).
		BorderForeground(ui.Surface).
		PaddingLeft(1)

	if len(l.lines) == 0 {
		return style.Render(ui.DimStyle.Render(l.placeholder))
	}
	return style.Render(l.viewport.View())
}

// renderEvent colours an event line by the severity its producer chose.
func renderEvent(e provision.Event) string {
	return ui.Severity(e.Severity, e.String())
}
