package pages

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/dinoflash/internal/station"
	"github.com/buckleypaul/dinoflash/internal/store"
)

func loadHistory(t *testing.T, p *HistoryPage) {
	t.Helper()
	cmd := p.load()
	if cmd == nil {
		t.Fatal("expected load command")
	}
	p.Update(cmd())
}

func TestHistoryShowsSessionsNewestFirst(t *testing.T) {
	st := store.New(t.TempDir())
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st.AddSession(store.SessionRecord{ID: "a", Port: "/dev/ttyACM0", Mode: "production", TargetVersion: "1.0.0", Timestamp: base, Success: true, Build: "older-build"})
	st.AddSession(store.SessionRecord{ID: "b", Port: "/dev/ttyACM0", Mode: "testing", TargetVersion: "1.1.0", Timestamp: base.Add(time.Hour), Failure: "burn verify mismatch"})

	p := NewHistoryPage(st)
	p.SetSize(120, 30)
	loadHistory(t, p)

	if len(p.list.lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(p.list.lines))
	}
	if !strings.Contains(p.list.lines[0], "burn verify mismatch") {
		t.Fatalf("expected newest session first, got %q", p.list.lines[0])
	}
	if !strings.Contains(p.View(), "2 sessions") {
		t.Fatal("expected counts in view")
	}
}

func TestHistoryTabCyclesViews(t *testing.T) {
	st := store.New(t.TempDir())
	st.AddQC(store.QCRecord{SessionID: "a", WirelessName: "Dino-01", Timestamp: time.Now(), Success: true, Summary: "3/3 tests passed"})

	p := NewHistoryPage(st)
	p.SetSize(120, 30)
	loadHistory(t, p)

	if p.list.len() != 0 {
		t.Fatalf("expected empty sessions view, got %d", p.list.len())
	}
	p.Update(tea.KeyMsg{Type: tea.KeyTab})
	if p.view != historyQC {
		t.Fatalf("expected QC view, got %v", p.view)
	}
	if p.list.len() != 1 || !strings.Contains(p.list.lines[0], "3/3 tests passed") {
		t.Fatalf("unexpected QC lines: %v", p.list.lines)
	}

	p.Update(tea.KeyMsg{Type: tea.KeyTab})
	p.Update(tea.KeyMsg{Type: tea.KeyTab})
	if p.view != historySessions {
		t.Fatalf("expected wrap to sessions, got %v", p.view)
	}
	p.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if p.view != historyLogs {
		t.Fatalf("expected logs view, got %v", p.view)
	}
}

func TestHistoryReloadsAfterSession(t *testing.T) {
	p := NewHistoryPage(store.New(t.TempDir()))
	_, cmd := p.Update(station.SessionDoneMsg{})
	if cmd == nil {
		t.Fatal("expected reload after a session")
	}
	if _, ok := cmd().(historyLoadedMsg); !ok {
		t.Fatal("expected historyLoadedMsg")
	}
}
