package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/serial"
	"github.com/buckleypaul/dinoflash/internal/ui"
)

const sidebarWidth = 22 // 20 content + 2 border/padding

// stationStatus is what the top bar shows.
type stationStatus struct {
	mode     provision.Mode
	version  string
	port     *serial.Resolution
	pinned   string
	registry *bool
}

func portLabel(r *serial.Resolution, pinned string) string {
	if pinned != "" {
		return ui.SuccessStyle.Render(pinned) + ui.DimStyle.Render(" (chosen)")
	}
	if r == nil {
		return ui.DimStyle.Render("scanning...")
	}
	switch r.Status {
	case serial.One:
		return ui.SuccessStyle.Render(r.Port)
	case serial.Many:
		return ui.WarningStyle.Render(fmt.Sprintf("%d devices (press p)", len(r.Candidates)))
	}
	return ui.ErrorStyle.Render("no device")
}

func registryLabel(online *bool) string {
	switch {
	case online == nil:
		return ui.DimStyle.Render("checking")
	case *online:
		return ui.SuccessStyle.Render("online")
	}
	return ui.ErrorStyle.Render("offline")
}

func renderStationBar(st stationStatus, width int, sidebarFocused bool) string {
	version := st.version
	if version == "" {
		version = "(not set)"
	}
	content := fmt.Sprintf("Mode: %s  HW: %s  Port: %s  Registry: %s",
		st.mode.Title(), version, portLabel(st.port, st.pinned), registryLabel(st.registry))
	hint := ""
	if sidebarFocused {
		hint = ui.DimStyle.Render("  [m] mode  [p] port")
	}
	return ui.StatusBarStyle.Width(width).Render(content + hint)
}

func renderSidebar(pages []PageID, active PageID, pageMap map[PageID]Page, height int, focused bool) string {
	var b strings.Builder
	var title string
	if focused {
		title = ui.BoldStyle.Render("dinoflash [FOCUSED]")
	} else {
		title = ui.TitleStyle.Render("dinoflash")
	}
	b.WriteString(title)
	b.WriteString("\n\n")

	for _, id := range pages {
		p := pageMap[id]
		if id == active {
			b.WriteString(ui.SidebarActiveStyle.Render("▸ " + p.Name()))
		} else {
			b.WriteString(ui.SidebarItemStyle.Render("  " + p.Name()))
		}
		b.WriteString("\n")
	}

	style := ui.SidebarStyle.Height(height)
	if focused {
		style = style.BorderForeground(ui.Primary)
	}
	return style.Render(b.String())
}

func renderStatusBar(pageHelp []key.Binding, width int, focus FocusArea) string {
	var parts []string

	if focus == FocusSidebar {
		parts = append(parts,
			ui.StatusKey("↑/↓", "navigate"),
			ui.StatusKey("enter", "select"),
			ui.StatusKey("m", "mode"),
			ui.StatusKey("p", "port"),
		)
	} else {
		for _, kb := range pageHelp {
			if kb.Enabled() {
				parts = append(parts, ui.StatusKey(kb.Help().Key, kb.Help().Desc))
			}
		}
	}

	parts = append(parts,
		ui.StatusKey("tab", "focus"),
		ui.StatusKey("?", "help"),
		ui.StatusKey("q", "quit"),
	)

	line := strings.Join(parts, "  ")
	return ui.StatusBarStyle.Width(width).Render(line)
}

func renderLayout(stationBar, sidebar, content, statusBar string) string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	return lipgloss.JoinVertical(lipgloss.Left, stationBar, main, statusBar)
}
