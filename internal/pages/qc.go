package pages

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/app"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/qc"
	"github.com/buckleypaul/dinoflash/internal/station"
	"github.com/buckleypaul/dinoflash/internal/ui"
)

// qcStartedMsg tells the QC page that a run was chained after provisioning.
type qcStartedMsg struct{}

type QCPage struct {
	ctl Controller

	running bool
	target  string
	report  *qc.Report
	err     error
	log     logView
	spin    spinner.Model
	message string
	width   int
	height  int
}

func NewQCPage(ctl Controller) *QCPage {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ui.Primary)
	return &QCPage{
		ctl:  ctl,
		log:  newLogView("Wireless activity will appear here..."),
		spin: sp,
	}
}

func (p *QCPage) Init() tea.Cmd { return nil }

func (p *QCPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case station.EventMsg:
		e := msg.Event
		switch e.Kind {
		case provision.KindDeviceReady:
			p.target = fmt.Sprintf("%s (%s)", e.Name, e.Address)
		case provision.KindOutcome:
			// A new provisioning run invalidates the previous report.
			p.report = nil
			p.err = nil
		}
		if e.Category == provision.QC || e.Category == provision.Wireless {
			p.log.append(renderEvent(e))
		}
		return p, nil

	case qcStartedMsg:
		p.markRunning()
		p.log.clear()
		return p, p.spin.Tick

	case station.SessionDoneMsg:
		if !msg.Outcome.Success() {
			p.target = ""
		}
		return p, nil

	case station.QCDoneMsg:
		p.running = false
		p.err = msg.Err
		p.message = ""
		if msg.Err == nil || errors.Is(msg.Err, provision.QCFailed) {
			r := msg.Report
			p.report = &r
		}
		return p, nil

	case spinner.TickMsg:
		if !p.running {
			return p, nil
		}
		var cmd tea.Cmd
		p.spin, cmd = p.spin.Update(msg)
		return p, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "r", "enter":
			if p.running || p.ctl.Busy() {
				return p, nil
			}
			return p, p.start()
		case "x":
			if p.running {
				p.ctl.Stop()
				p.message = "Stopping..."
			}
			return p, nil
		case "c":
			if !p.running {
				p.log.clear()
				p.message = ""
			}
			return p, nil
		}
	}

	return p, p.log.update(msg)
}

func (p *QCPage) markRunning() {
	p.running = true
	p.report = nil
	p.err = nil
	p.message = ""
}

func (p *QCPage) start() tea.Cmd {
	cmd := p.ctl.RunQC()
	if cmd == nil {
		p.message = "A session step is already running"
		return nil
	}
	p.markRunning()
	p.log.clear()
	return tea.Batch(cmd, p.spin.Tick)
}

func (p *QCPage) View() string {
	var b strings.Builder
	b.WriteString(ui.Title("Wireless QC"))
	b.WriteString("\n")

	target := p.target
	if target == "" {
		target = ui.DimStyle.Render("(waiting for a provisioned device)")
	}
	b.WriteString(fmt.Sprintf("%-10s %s\n\n", "Device", target))

	switch {
	case p.running:
		b.WriteString(p.spin.View() + " Running QC...\n")
	case p.report != nil:
		b.WriteString(p.viewReport())
	case p.err != nil:
		b.WriteString(ui.Verdict(false, "ERROR") + " " + p.err.Error() + "\n")
	}
	if p.message != "" {
		b.WriteString(p.message + "\n")
	}

	header := b.String()
	outputHeight := p.height - lipgloss.Height(header) - 1
	if outputHeight < 5 {
		outputHeight = 5
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, p.log.view(p.width, outputHeight))
}

func (p *QCPage) viewReport() string {
	var b strings.Builder
	r := p.report
	verdict := "FAIL"
	if r.Passed {
		verdict = "PASS"
	}
	b.WriteString(ui.Verdict(r.Passed, verdict))
	b.WriteString(" " + r.Summary() + "\n")
	for _, l := range r.Lines {
		b.WriteString(ui.Status(l.Passed, "  "+l.Describe()) + "\n")
	}
	if p.err != nil && !errors.Is(p.err, provision.QCFailed) {
		b.WriteString(ui.ErrorStyle.Render(p.err.Error()) + "\n")
	}
	return b.String()
}

func (p *QCPage) Name() string { return "QC" }

func (p *QCPage) ShortHelp() []key.Binding {
	if p.running {
		return []key.Binding{
			key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "run qc")),
		key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
	}
}

func (p *QCPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
