package pages

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/provision"
)

type fakeController struct {
	nextMsg tea.Msg
	busy    bool

	provisionCalls []provision.Mode
	qcCalls        int
	stopCalls      int
	finishCalls    int
}

func (f *fakeController) cmd() tea.Cmd {
	if f.busy {
		return nil
	}
	return func() tea.Msg {
		return f.nextMsg
	}
}

func (f *fakeController) Provision(mode provision.Mode) tea.Cmd {
	f.provisionCalls = append(f.provisionCalls, mode)
	return f.cmd()
}

func (f *fakeController) RunQC() tea.Cmd {
	f.qcCalls++
	return f.cmd()
}

func (f *fakeController) Stop() { f.stopCalls++ }

func (f *fakeController) Finish() error {
	if f.busy {
		return errors.New("busy")
	}
	f.finishCalls++
	return nil
}

func (f *fakeController) Busy() bool { return f.busy }

func keyRune(r string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(r)}
}
