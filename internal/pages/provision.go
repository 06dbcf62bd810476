package pages

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/dinoflash/internal/app"
	"github.com/buckleypaul/dinoflash/internal/config"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/serial"
	"github.com/buckleypaul/dinoflash/internal/session"
	"github.com/buckleypaul/dinoflash/internal/station"
	"github.com/buckleypaul/dinoflash/internal/ui"
)

type provisionState int

const (
	provisionIdle provisionState = iota
	provisionConfirm
	provisionRunning
	provisionDone
)

type ProvisionPage struct {
	ctl  Controller
	cfg  *config.Config
	mode provision.Mode

	state   provisionState
	log     logView
	bar     progress.Model
	spin    spinner.Model
	showBar bool
	percent int
	outcome *session.Outcome
	device  string
	port    *serial.Resolution
	message string
	autoQC  bool
	width   int
	height  int
}

func NewProvisionPage(ctl Controller, cfg *config.Config) *ProvisionPage {
	mode, err := provision.ParseMode(cfg.Mode)
	if err != nil {
		mode = provision.Production
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ui.Primary)
	return &ProvisionPage{
		ctl:    ctl,
		cfg:    cfg,
		mode:   mode,
		log:    newLogView("Connect a device and press s to start provisioning..."),
		bar:    progress.New(progress.WithDefaultGradient()),
		spin:   sp,
		autoQC: cfg.AutoQC,
	}
}

func (p *ProvisionPage) Init() tea.Cmd { return nil }

func (p *ProvisionPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.ModeSelectedMsg:
		p.mode = msg.Mode
		return p, nil

	case station.PortStatusMsg:
		r := msg.Resolution
		p.port = &r
		return p, nil

	case station.EventMsg:
		p.handleEvent(msg.Event)
		return p, nil

	case station.SessionDoneMsg:
		if p.state != provisionRunning {
			return p, nil
		}
		out := msg.Outcome
		p.outcome = &out
		p.state = provisionDone
		p.showBar = false
		if out.Success() && p.autoQC {
			qcCmd := p.ctl.RunQC()
			if qcCmd == nil {
				return p, nil
			}
			return p, tea.Batch(
				qcCmd,
				func() tea.Msg { return qcStartedMsg{} },
				func() tea.Msg { return app.ShowPageMsg{Page: app.QCPage} },
			)
		}
		return p, nil

	case spinner.TickMsg:
		if p.state != provisionRunning {
			return p, nil
		}
		var cmd tea.Cmd
		p.spin, cmd = p.spin.Update(msg)
		return p, cmd

	case tea.KeyMsg:
		return p.handleKey(msg)
	}

	return p, p.log.update(msg)
}

func (p *ProvisionPage) handleEvent(e provision.Event) {
	switch e.Kind {
	case provision.KindProgressShown:
		p.showBar = true
		p.percent = 0
		return
	case provision.KindProgressHidden:
		p.showBar = false
		return
	case provision.KindProgress:
		p.percent = e.Percent
		return
	case provision.KindDeviceReady:
		p.device = fmt.Sprintf("%s (%s)", e.Name, e.Address)
	case provision.KindDisconnected:
		p.device = ""
	}
	if e.Message == "" && e.Kind != provision.KindDeviceReady {
		return
	}
	p.log.append(renderEvent(e))
}

func (p *ProvisionPage) handleKey(msg tea.KeyMsg) (app.Page, tea.Cmd) {
	if p.state == provisionConfirm {
		switch msg.String() {
		case "y", "Y":
			return p, p.start()
		case "n", "N", "esc":
			p.state = provisionIdle
			p.message = "Burn cancelled"
		}
		return p, nil
	}

	switch msg.String() {
	case "s", "enter":
		if p.state == provisionRunning || p.ctl.Busy() {
			return p, nil
		}
		if p.mode == provision.Testing {
			if strings.TrimSpace(p.cfg.HardwareVersion) == "" {
				p.message = "Set a hardware version in Settings first"
				return p, nil
			}
			p.state = provisionConfirm
			p.message = ""
			return p, nil
		}
		return p, p.start()
	case "x":
		if p.state == provisionRunning {
			p.ctl.Stop()
			p.message = "Stopping..."
		}
		return p, nil
	case "f":
		if p.state == provisionDone {
			if err := p.ctl.Finish(); err != nil {
				p.message = "Wait for the running step before finishing"
				return p, nil
			}
			p.state = provisionIdle
			p.outcome = nil
			p.device = ""
			p.message = "Session closed, log saved"
		}
		return p, nil
	case "c":
		if p.state != provisionRunning {
			p.log.clear()
			p.message = ""
		}
		return p, nil
	case "a":
		p.autoQC = !p.autoQC
		return p, nil
	}

	return p, p.log.update(msg)
}

func (p *ProvisionPage) start() tea.Cmd {
	cmd := p.ctl.Provision(p.mode)
	if cmd == nil {
		p.state = provisionIdle
		p.message = "A session step is already running"
		return nil
	}
	p.state = provisionRunning
	p.outcome = nil
	p.device = ""
	p.percent = 0
	p.message = ""
	p.log.clear()
	return tea.Batch(cmd, p.spin.Tick)
}

func (p *ProvisionPage) View() string {
	header := p.viewHeader()
	headerHeight := lipgloss.Height(header)
	outputHeight := p.height - headerHeight - 1
	if outputHeight < 5 {
		outputHeight = 5
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, p.log.view(p.width, outputHeight))
}

func (p *ProvisionPage) viewHeader() string {
	var b strings.Builder
	b.WriteString(ui.Title("Provision"))
	b.WriteString("\n")

	version := p.cfg.HardwareVersion
	if version == "" {
		version = ui.DimStyle.Render("(not set)")
	}
	b.WriteString(fmt.Sprintf("%-10s %s\n", "Mode", p.mode.Title()))
	b.WriteString(fmt.Sprintf("%-10s %s\n", "Version", version))
	auto := "off"
	if p.autoQC {
		auto = "on"
	}
	b.WriteString(fmt.Sprintf("%-10s %s\n", "Auto QC", auto))
	if p.port != nil && p.port.Status == serial.One {
		b.WriteString(fmt.Sprintf("%-10s %s\n", "Port", p.port.Port))
	}
	if p.device != "" {
		b.WriteString(fmt.Sprintf("%-10s %s\n", "Device", ui.SuccessStyle.Render(p.device)))
	}
	b.WriteString("\n")

	switch p.state {
	case provisionConfirm:
		b.WriteString(ui.WarningStyle.Render(fmt.Sprintf(
			"Burn hardware version %s to eFuse? This cannot be undone. [y/n]", p.cfg.HardwareVersion)))
		b.WriteString("\n")
	case provisionRunning:
		b.WriteString(p.spin.View() + " Provisioning...\n")
	case provisionDone:
		if p.outcome != nil {
			b.WriteString(outcomeBadge(*p.outcome))
			b.WriteString("\n")
		}
	}

	if p.showBar {
		p.bar.Width = p.width - 4
		if p.bar.Width > 60 {
			p.bar.Width = 60
		}
		b.WriteString(p.bar.ViewAs(float64(p.percent) / 100))
		b.WriteString("\n")
	}

	if p.message != "" {
		b.WriteString(p.message + "\n")
	}
	return b.String()
}

func outcomeBadge(o session.Outcome) string {
	if o.Success() {
		return ui.Verdict(true, "SUCCESS") + " " + ui.DimStyle.Render(o.Duration.Round(100*time.Millisecond).String())
	}
	return ui.Verdict(false, "FAILED") + " " + o.Err.Error()
}

func (p *ProvisionPage) Name() string { return "Provision" }

func (p *ProvisionPage) ShortHelp() []key.Binding {
	switch p.state {
	case provisionConfirm:
		return []key.Binding{
			key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "burn")),
			key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "cancel")),
		}
	case provisionRunning:
		return []key.Binding{
			key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		}
	}
	bindings := []key.Binding{
		key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto qc")),
	}
	if p.state == provisionDone && !p.ctl.Busy() {
		bindings = append(bindings, key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "finish")))
	}
	if p.log.len() > 0 {
		bindings = append(bindings, key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")))
	}
	return bindings
}

func (p *ProvisionPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
