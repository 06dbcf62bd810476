package pages

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/dinoflash/internal/app"
	"github.com/buckleypaul/dinoflash/internal/station"
	"github.com/buckleypaul/dinoflash/internal/store"
	"github.com/buckleypaul/dinoflash/internal/ui"
)

// HistorySource reads past records. *store.Store implements it.
type HistorySource interface {
	Sessions() ([]store.SessionRecord, error)
	QCResults() ([]store.QCRecord, error)
	SessionLogs() ([]store.SessionLog, error)
}

type historyView int

const (
	historySessions historyView = iota
	historyQC
	historyLogs
	historyViewCount
)

func (v historyView) String() string {
	switch v {
	case historyQC:
		return "QC"
	case historyLogs:
		return "Logs"
	}
	return "Sessions"
}

type historyLoadedMsg struct {
	sessions []store.SessionRecord
	qc       []store.QCRecord
	logs     []store.SessionLog
	err      error
}

type HistoryPage struct {
	source   HistorySource
	view     historyView
	sessions []store.SessionRecord
	qc       []store.QCRecord
	logs     []store.SessionLog
	list     logView
	message  string
	width    int
	height   int
}

func NewHistoryPage(source HistorySource) *HistoryPage {
	return &HistoryPage{
		source: source,
		list:   newLogView("No records yet."),
	}
}

func (p *HistoryPage) Init() tea.Cmd { return p.load() }

func (p *HistoryPage) load() tea.Cmd {
	src := p.source
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		var msg historyLoadedMsg
		var err error
		if msg.sessions, err = src.Sessions(); err != nil {
			msg.err = err
		}
		if msg.qc, err = src.QCResults(); err != nil && msg.err == nil {
			msg.err = err
		}
		if msg.logs, err = src.SessionLogs(); err != nil && msg.err == nil {
			msg.err = err
		}
		return msg
	}
}

func (p *HistoryPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		p.sessions = msg.sessions
		p.qc = msg.qc
		p.logs = msg.logs
		p.message = ""
		if msg.err != nil {
			p.message = fmt.Sprintf("Error loading history: %v", msg.err)
		}
		p.render()
		return p, nil

	case station.SessionDoneMsg, station.QCDoneMsg:
		return p, p.load()

	case tea.KeyMsg:
		switch msg.String() {
		case "tab":
			p.view = (p.view + 1) % historyViewCount
			p.render()
			return p, nil
		case "shift+tab":
			p.view = (p.view + historyViewCount - 1) % historyViewCount
			p.render()
			return p, nil
		case "r":
			return p, p.load()
		}
	}

	return p, p.list.update(msg)
}

func (p *HistoryPage) render() {
	p.list.clear()
	switch p.view {
	case historySessions:
		recs := append([]store.SessionRecord(nil), p.sessions...)
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.After(recs[j].Timestamp) })
		for _, r := range recs {
			p.list.append(sessionLine(r))
		}
	case historyQC:
		recs := append([]store.QCRecord(nil), p.qc...)
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.After(recs[j].Timestamp) })
		for _, r := range recs {
			p.list.append(qcLine(r))
		}
	case historyLogs:
		recs := append([]store.SessionLog(nil), p.logs...)
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.After(recs[j].Timestamp) })
		for _, r := range recs {
			p.list.append(fmt.Sprintf("%s  %-14s %4d lines  %s",
				r.Timestamp.Format("2006-01-02 15:04:05"), r.Port, r.Lines, ui.DimStyle.Render(r.LogFile)))
		}
	}
	p.list.viewport.GotoTop()
}

func sessionLine(r store.SessionRecord) string {
	word := "OK  "
	detail := r.Build
	if !r.Success {
		word = "FAIL"
		detail = r.Failure
		if r.Reason != "" {
			detail += ": " + r.Reason
		}
	}
	return fmt.Sprintf("%s %s  %-10s v%-8s %-14s %s",
		r.Timestamp.Format("2006-01-02 15:04:05"), ui.Status(r.Success, word), r.Mode, r.TargetVersion, r.Port, detail)
}

func qcLine(r store.QCRecord) string {
	word := "PASS"
	if !r.Success {
		word = "FAIL"
	}
	detail := r.Summary
	if r.Failure != "" {
		detail = r.Failure
	}
	return fmt.Sprintf("%s %s  %-24s %s",
		r.Timestamp.Format("2006-01-02 15:04:05"), ui.Status(r.Success, word), r.WirelessName, detail)
}

func (p *HistoryPage) View() string {
	var b strings.Builder
	b.WriteString(ui.Title("History"))
	b.WriteString("\n")

	var tabs []string
	for v := historyView(0); v < historyViewCount; v++ {
		label := fmt.Sprintf(" %s ", v)
		if v == p.view {
			tabs = append(tabs, ui.Badge(label, ui.Primary))
		} else {
			tabs = append(tabs, ui.DimStyle.Render(label))
		}
	}
	b.WriteString(strings.Join(tabs, " "))
	b.WriteString("\n")
	b.WriteString(ui.DimStyle.Render(fmt.Sprintf("%d sessions, %d QC runs, %d logs",
		len(p.sessions), len(p.qc), len(p.logs))))
	b.WriteString("\n")
	if p.message != "" {
		b.WriteString(p.message + "\n")
	}

	header := b.String()
	listHeight := p.height - lipgloss.Height(header) - 1
	if listHeight < 5 {
		listHeight = 5
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, p.list.view(p.width, listHeight))
}

func (p *HistoryPage) Name() string { return "History" }

func (p *HistoryPage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	}
}

func (p *HistoryPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
