package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/juju/loggo"

	"github.com/buckleypaul/dinoflash/internal/config"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/station"
	"github.com/buckleypaul/dinoflash/internal/ui"
)

var logger = loggo.GetLogger("dinoflash.app")

type FocusArea int

const (
	FocusSidebar FocusArea = iota
	FocusContent
)

type Model struct {
	pages       map[PageID]Page
	activePage  PageID
	focus       FocusArea
	width       int
	height      int
	showHelp    bool
	status      stationStatus
	chooser     *Chooser
	cfg         *config.Config
	stationRoot string
	station     *station.Station
}

// New builds the root model. st may be nil in tests.
func New(pages map[PageID]Page, cfg *config.Config, stationRoot string, st *station.Station) Model {
	mode, err := provision.ParseMode(cfg.Mode)
	if err != nil {
		mode = provision.Production
	}
	return Model{
		pages:       pages,
		cfg:         cfg,
		stationRoot: stationRoot,
		station:     st,
		status: stationStatus{
			mode:    mode,
			version: cfg.HardwareVersion,
		},
	}
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	for _, p := range m.pages {
		if cmd := p.Init(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	if m.station != nil {
		cmds = append(cmds, m.station.CheckRegistry())
	}
	return tea.Batch(cmds...)
}

func (m Model) contentSize() (int, int) {
	return m.width - sidebarWidth, m.height - 2 - 1 // status bar + station bar
}

func (m Model) broadcast(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	for id, page := range m.pages {
		newPage, cmd := page.Update(msg)
		m.pages[id] = newPage
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.contentSize()
		for _, p := range m.pages {
			p.SetSize(w, h)
		}
		return m, nil

	case station.PortStatusMsg:
		r := msg.Resolution
		m.status.port = &r
		if m.status.pinned != "" && !r.Has(m.status.pinned) {
			m.status.pinned = ""
		}
		return m.broadcast(msg)

	case station.RegistryStatusMsg:
		online := msg.Online
		m.status.registry = &online
		return m, nil

	case ShowPageMsg:
		m.activePage = msg.Page
		m.focus = FocusContent
		return m, nil

	case ChoiceMsg:
		m.chooser = nil
		if msg.Kind == ChoosePort {
			m.status.pinned = msg.Value
			if m.station != nil {
				m.station.SetPort(msg.Value)
			}
			return m, nil
		}
		mode, err := provision.ParseMode(msg.Value)
		if err != nil {
			return m, nil
		}
		m.status.mode = mode
		m.cfg.Mode = string(mode)
		if err := config.Save(*m.cfg, m.stationRoot, false); err != nil {
			logger.Warningf("saving mode: %v", err)
		}
		return m, func() tea.Msg { return ModeSelectedMsg{Mode: mode} }

	case ChoiceClosedMsg:
		m.chooser = nil
		return m, nil

	case ModeSelectedMsg:
		m.status.mode = msg.Mode
		return m.broadcast(msg)

	case tea.KeyMsg:
		if m.chooser != nil {
			var cmd tea.Cmd
			m.chooser, cmd = m.chooser.Update(msg)
			return m, cmd
		}

		// When a page has an active text input, forward all keys
		// directly to the page; only ctrl+c still quits.
		if m.focus == FocusContent {
			if ic, ok := m.pages[m.activePage].(InputCapturer); ok && ic.InputCaptured() {
				if msg.String() == "ctrl+c" {
					return m, m.quit()
				}
				page := m.pages[m.activePage]
				newPage, cmd := page.Update(msg)
				m.pages[m.activePage] = newPage
				return m, cmd
			}
		}

		// Global key handling
		switch {
		case key.Matches(msg, GlobalKeys.Quit):
			return m, m.quit()
		case key.Matches(msg, GlobalKeys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, GlobalKeys.ToggleFocus):
			if m.focus == FocusSidebar {
				m.focus = FocusContent
				return m, nil
			}
			// When content focused, fall through to page handler
		}

		// Sidebar-only shortcuts
		// Mode and port are fixed while a step runs.
		if m.focus == FocusSidebar && !(m.station != nil && m.station.Busy()) {
			switch {
			case key.Matches(msg, GlobalKeys.ModeChooser):
				m.chooser = newModeChooser(m.status.mode)
				return m, nil
			case key.Matches(msg, GlobalKeys.PortChooser):
				if m.status.port != nil {
					m.chooser = newPortChooser(*m.status.port, m.status.pinned)
				}
				return m, nil
			}
		}

		// Handle arrow keys based on focus
		if m.focus == FocusSidebar {
			switch msg.String() {
			case "up":
				m.prevPage()
				return m, nil
			case "down":
				m.nextPage()
				return m, nil
			case "enter", "right":
				m.focus = FocusContent
				return m, nil
			}
		} else if m.focus == FocusContent {
			if msg.String() == "left" {
				m.focus = FocusSidebar
				return m, nil
			}
		}
	}

	// Key messages: only forward to active page when content is focused
	if _, isKey := msg.(tea.KeyMsg); isKey {
		if m.focus != FocusContent {
			return m, nil
		}
		page := m.pages[m.activePage]
		newPage, cmd := page.Update(msg)
		m.pages[m.activePage] = newPage
		return m, cmd
	}

	// Non-key messages (command results, session events): forward to all
	// pages so responses reach the page that initiated the command
	return m.broadcast(msg)
}

// quit closes any open session so its log is published before exit.
func (m Model) quit() tea.Cmd {
	if m.station == nil {
		return tea.Quit
	}
	st := m.station
	return tea.Sequence(func() tea.Msg {
		st.Shutdown()
		return nil
	}, tea.Quit)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	contentWidth, contentHeight := m.contentSize()

	page := m.pages[m.activePage]

	m.status.version = m.cfg.HardwareVersion
	stationBar := renderStationBar(m.status, m.width, m.focus == FocusSidebar)
	sidebar := renderSidebar(PageOrder, m.activePage, m.pages, contentHeight, m.focus == FocusSidebar)
	content := ui.ContentStyle.
		Width(contentWidth).
		Height(contentHeight).
		Render(page.View())

	if m.chooser != nil {
		m.chooser.SetWidth(contentWidth)
		content = lipgloss.Place(
			contentWidth, contentHeight,
			lipgloss.Center, lipgloss.Center,
			m.chooser.View(),
		)
	}

	statusBar := renderStatusBar(page.ShortHelp(), m.width, m.focus)

	return renderLayout(stationBar, sidebar, content, statusBar)
}

func (m *Model) nextPage() {
	for i, id := range PageOrder {
		if id == m.activePage {
			m.activePage = PageOrder[(i+1)%len(PageOrder)]
			return
		}
	}
}

func (m *Model) prevPage() {
	for i, id := range PageOrder {
		if id == m.activePage {
			m.activePage = PageOrder[(i-1+len(PageOrder))%len(PageOrder)]
			return
		}
	}
}
