package app

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/serial"
	"github.com/buckleypaul/dinoflash/internal/ui"
)

// ChoiceKind says what a Chooser selects.
type ChoiceKind int

const (
	ChooseMode ChoiceKind = iota
	ChoosePort
)

// Choice is one line of a Chooser.
type Choice struct {
	Label  string
	Value  string
	Detail string
}

// ChoiceMsg is sent when the operator picks a choice.
type ChoiceMsg struct {
	Kind  ChoiceKind
	Value string
}

// ChoiceClosedMsg is sent when the chooser is dismissed.
type ChoiceClosedMsg struct{}

// Chooser is a short numbered list shown over the content area. Digits pick
// a line directly.
type Chooser struct {
	kind    ChoiceKind
	title   string
	choices []Choice
	cursor  int
	width   int
}

func newModeChooser(current provision.Mode) *Chooser {
	c := &Chooser{
		kind:  ChooseMode,
		title: "Mode",
		choices: []Choice{
			{Label: provision.Production.Title(), Value: string(provision.Production), Detail: "read identity, release builds"},
			{Label: provision.Testing.Title(), Value: string(provision.Testing), Detail: "burn identity, test builds"},
		},
	}
	c.selectValue(string(current))
	return c
}

// newPortChooser lists the matching ports of r. It returns nil when there
// is nothing to choose from.
func newPortChooser(r serial.Resolution, current string) *Chooser {
	if len(r.Candidates) == 0 {
		return nil
	}
	c := &Chooser{kind: ChoosePort, title: "Device port"}
	for _, p := range r.Candidates {
		c.choices = append(c.choices, Choice{Label: p, Value: p})
	}
	c.choices = append(c.choices, Choice{Label: "Automatic", Value: "", Detail: "use the only attached device"})
	c.selectValue(current)
	return c
}

func (c *Chooser) selectValue(v string) {
	for i, ch := range c.choices {
		if ch.Value == v {
			c.cursor = i
			return
		}
	}
}

func (c *Chooser) SetWidth(w int) { c.width = w }

func (c *Chooser) Update(msg tea.Msg) (*Chooser, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return c, nil
	}
	switch s := km.String(); s {
	case "esc":
		return c, func() tea.Msg { return ChoiceClosedMsg{} }
	case "up", "k":
		if c.cursor > 0 {
			c.cursor--
		}
	case "down", "j":
		if c.cursor < len(c.choices)-1 {
			c.cursor++
		}
	case "enter":
		return c, c.pick(c.cursor)
	default:
		if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			if i := int(s[0] - '1'); i < len(c.choices) {
				return c, c.pick(i)
			}
		}
	}
	return c, nil
}

func (c *Chooser) pick(i int) tea.Cmd {
	kind, value := c.kind, c.choices[i].Value
	return func() tea.Msg { return ChoiceMsg{Kind: kind, Value: value} }
}

func (c *Chooser) View() string {
	width := c.width - 4
	if width > 56 {
		width = 56
	}
	if width < 30 {
		width = 30
	}

	selected := lipgloss.NewStyle().Foreground(ui.Primary).Bold(true)
	var b strings.Builder
	for i, ch := range c.choices {
		line := fmt.Sprintf("%d  %s", i+1, ch.Label)
		if i == c.cursor {
			line = selected.Render("> " + line)
		} else {
			line = "  " + line
		}
		if ch.Detail != "" {
			line += "  " + ui.DimStyle.Render(ch.Detail)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + ui.DimStyle.Render("1-9/enter: choose  esc: close"))
	return ui.Panel(c.title, b.String(), width, 0, true)
}
