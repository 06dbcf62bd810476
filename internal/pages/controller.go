package pages

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/dinoflash/internal/provision"
)

// Controller starts and stops session steps. *station.Station implements it.
type Controller interface {
	Provision(mode provision.Mode) tea.Cmd
	RunQC() tea.Cmd
	Stop()
	Finish() error
	Busy() bool
}
