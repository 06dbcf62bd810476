package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/dinoflash/internal/provision"
)

// PageID identifies each page in the application.
type PageID int

const (
	ProvisionPage PageID = iota
	QCPage
	HistoryPage
	SettingsPage
)

var PageOrder = []PageID{
	ProvisionPage,
	QCPage,
	HistoryPage,
	SettingsPage,
}

// Page is the interface every page in the application implements.
type Page interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Page, tea.Cmd)
	View() string
	Name() string
	ShortHelp() []key.Binding
	SetSize(width, height int)
}

// InputCapturer is an optional interface for pages with text inputs.
// When InputCaptured returns true, the app forwards all keys directly
// to the page instead of processing shortcuts like q, ?, left, etc.
type InputCapturer interface {
	InputCaptured() bool
}

// ModeSelectedMsg is broadcast to all pages when the operator picks a mode.
type ModeSelectedMsg struct {
	Mode provision.Mode
}

// ShowPageMsg switches the active page.
type ShowPageMsg struct {
	Page PageID
}
