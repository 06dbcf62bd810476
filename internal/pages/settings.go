package pages

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/dinoflash/internal/app"
	"github.com/buckleypaul/dinoflash/internal/config"
	"github.com/buckleypaul/dinoflash/internal/hwversion"
	"github.com/buckleypaul/dinoflash/internal/ui"
)

type settingField struct {
	label string
	key   string
	// live fields take effect on the next session; the rest on restart.
	live bool
}

var settingFields = []settingField{
	{"Hardware Version", "hardware_version", true},
	{"Registry URL", "registry_url", false},
	{"Chip", "chip", false},
	{"Flash Baud Rate", "flash_baud", false},
	{"Monitor Baud Rate", "monitor_baud", false},
	{"USB Vendor ID", "usb_vid", false},
	{"USB Product ID", "usb_pid", false},
	{"QC Test Index", "qc_test_index", false},
	{"Auto QC", "auto_qc", false},
	{"Results Sink URL", "sink_url", false},
	{"Log Level", "log_level", false},
}

type SettingsPage struct {
	cfg           *config.Config
	stationRoot   string
	cursor        int
	editing       bool
	input         textinput.Model
	width, height int
	message       string
}

func NewSettingsPage(cfg *config.Config, stationRoot string) *SettingsPage {
	ti := textinput.New()
	ti.CharLimit = 128
	return &SettingsPage{
		cfg:         cfg,
		stationRoot: stationRoot,
		input:       ti,
	}
}

func (p *SettingsPage) Init() tea.Cmd { return nil }

func (p *SettingsPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if p.editing {
			switch msg.String() {
			case "enter":
				p.applyValue(p.input.Value())
				p.editing = false
				p.input.Blur()
				return p, nil
			case "esc":
				p.editing = false
				p.input.Blur()
				return p, nil
			}
			var cmd tea.Cmd
			p.input, cmd = p.input.Update(msg)
			return p, cmd
		}

		switch msg.String() {
		case "down":
			if p.cursor < len(settingFields)-1 {
				p.cursor++
			}
		case "up":
			if p.cursor > 0 {
				p.cursor--
			}
		case "enter", "e":
			p.editing = true
			p.input.SetValue(p.getValue(p.cursor))
			return p, p.input.Focus()
		case "s":
			if err := config.Save(*p.cfg, p.stationRoot, false); err != nil {
				p.message = fmt.Sprintf("Error saving: %v", err)
			} else {
				p.message = "Settings saved to station"
			}
		case "g":
			if err := config.Save(*p.cfg, p.stationRoot, true); err != nil {
				p.message = fmt.Sprintf("Error saving: %v", err)
			} else {
				p.message = "Settings saved globally"
			}
		}
	}
	return p, nil
}

func (p *SettingsPage) View() string {
	var inner strings.Builder

	for i, f := range settingFields {
		cursor := "  "
		if i == p.cursor {
			cursor = ui.BoldStyle.Render("> ")
		}

		val := p.getValue(i)
		if val == "" {
			val = ui.DimStyle.Render("(not set)")
		}

		line := fmt.Sprintf("%s%-20s %s", cursor, f.label, val)
		inner.WriteString(line)
		inner.WriteString("\n")
	}

	if p.editing {
		inner.WriteString("\n")
		inner.WriteString(fmt.Sprintf("  Edit %s:\n", settingFields[p.cursor].label))
		inner.WriteString("  " + p.input.View())
		inner.WriteString("\n")
	}

	if p.message != "" {
		inner.WriteString("\n  " + p.message)
	}

	return ui.Panel("Settings", inner.String(), p.width, 0, false)
}

func (p *SettingsPage) Name() string { return "Settings" }

func (p *SettingsPage) ShortHelp() []key.Binding {
	if p.editing {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
		key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save to station")),
		key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "save globally")),
	}
}

func (p *SettingsPage) InputCaptured() bool {
	return p.editing
}

func (p *SettingsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}

func (p *SettingsPage) getValue(idx int) string {
	switch settingFields[idx].key {
	case "hardware_version":
		return p.cfg.HardwareVersion
	case "registry_url":
		return p.cfg.RegistryURL
	case "chip":
		return p.cfg.Chip
	case "flash_baud":
		return strconv.Itoa(p.cfg.FlashBaud)
	case "monitor_baud":
		return strconv.Itoa(p.cfg.MonitorBaud)
	case "usb_vid":
		return p.cfg.USBVID
	case "usb_pid":
		return p.cfg.USBPID
	case "qc_test_index":
		return strconv.Itoa(p.cfg.QCTestIndex)
	case "auto_qc":
		return strconv.FormatBool(p.cfg.AutoQC)
	case "sink_url":
		return p.cfg.SinkURL
	case "log_level":
		return p.cfg.LogLevel
	}
	return ""
}

func (p *SettingsPage) applyValue(val string) {
	val = strings.TrimSpace(val)
	f := settingFields[p.cursor]
	switch f.key {
	case "hardware_version":
		if _, err := hwversion.Parse(val); err != nil {
			p.message = fmt.Sprintf("Invalid version %q (want MAJOR.MINOR.PATCH)", val)
			return
		}
		p.cfg.HardwareVersion = val
	case "registry_url":
		p.cfg.RegistryURL = val
	case "chip":
		p.cfg.Chip = val
	case "flash_baud":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			p.message = fmt.Sprintf("Invalid baud rate %q", val)
			return
		}
		p.cfg.FlashBaud = n
	case "monitor_baud":
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			p.message = fmt.Sprintf("Invalid baud rate %q", val)
			return
		}
		p.cfg.MonitorBaud = n
	case "usb_vid":
		p.cfg.USBVID = strings.ToUpper(val)
	case "usb_pid":
		p.cfg.USBPID = strings.ToUpper(val)
	case "qc_test_index":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			p.message = fmt.Sprintf("Invalid test index %q", val)
			return
		}
		p.cfg.QCTestIndex = n
	case "auto_qc":
		b, err := strconv.ParseBool(val)
		if err != nil {
			p.message = fmt.Sprintf("Invalid value %q (want true or false)", val)
			return
		}
		p.cfg.AutoQC = b
	case "sink_url":
		p.cfg.SinkURL = val
	case "log_level":
		p.cfg.LogLevel = val
	}
	p.message = fmt.Sprintf("%s updated", f.label)
	if !f.live {
		p.message += " (applies after restart)"
	}
}
