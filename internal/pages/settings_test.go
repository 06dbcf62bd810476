package pages

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/dinoflash/internal/config"
)

func cursorTo(t *testing.T, p *SettingsPage, key string) {
	t.Helper()
	for i, f := range settingFields {
		if f.key == key {
			p.cursor = i
			return
		}
	}
	t.Fatalf("no setting %q", key)
}

func editValue(p *SettingsPage, val string) {
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	p.input.SetValue(val)
	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestSettingsArrowKeyNavigation(t *testing.T) {
	cfg := config.Defaults()
	p := NewSettingsPage(&cfg, t.TempDir())

	p.Update(tea.KeyMsg{Type: tea.KeyDown})
	if p.cursor != 1 {
		t.Fatalf("expected cursor=1 after down, got %d", p.cursor)
	}

	for i := 0; i < len(settingFields)+2; i++ {
		p.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	if p.cursor != len(settingFields)-1 {
		t.Fatalf("expected cursor to clamp at %d, got %d", len(settingFields)-1, p.cursor)
	}

	p.cursor = 0
	p.Update(tea.KeyMsg{Type: tea.KeyUp})
	if p.cursor != 0 {
		t.Fatalf("expected cursor to clamp at 0, got %d", p.cursor)
	}
}

func TestSettingsEnterEditMode(t *testing.T) {
	cfg := config.Defaults()
	p := NewSettingsPage(&cfg, t.TempDir())

	p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !p.editing || !p.InputCaptured() {
		t.Fatal("expected editing after Enter")
	}
	p.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if p.editing {
		t.Fatal("expected editing=false after Esc")
	}
}

func TestSettingsHardwareVersionValidated(t *testing.T) {
	cfg := config.Defaults()
	p := NewSettingsPage(&cfg, t.TempDir())
	cursorTo(t, p, "hardware_version")

	editValue(p, "1.2")
	if cfg.HardwareVersion != "" {
		t.Fatalf("expected invalid version rejected, got %q", cfg.HardwareVersion)
	}

	editValue(p, " 2.0.1 ")
	if cfg.HardwareVersion != "2.0.1" {
		t.Fatalf("expected 2.0.1, got %q", cfg.HardwareVersion)
	}
}

func TestSettingsBaudRate(t *testing.T) {
	cfg := config.Defaults()
	original := cfg.FlashBaud
	p := NewSettingsPage(&cfg, t.TempDir())
	cursorTo(t, p, "flash_baud")

	editValue(p, "not-a-number")
	if cfg.FlashBaud != original {
		t.Fatalf("expected FlashBaud to remain %d, got %d", original, cfg.FlashBaud)
	}
	if p.editing {
		t.Fatal("expected editing=false after enter")
	}

	editValue(p, "921600")
	if cfg.FlashBaud != 921600 {
		t.Fatalf("expected 921600, got %d", cfg.FlashBaud)
	}
}

func TestSettingsAutoQC(t *testing.T) {
	cfg := config.Defaults()
	p := NewSettingsPage(&cfg, t.TempDir())
	cursorTo(t, p, "auto_qc")

	editValue(p, "true")
	if !cfg.AutoQC {
		t.Fatal("expected AutoQC enabled")
	}
	editValue(p, "maybe")
	if !cfg.AutoQC {
		t.Fatal("expected invalid value ignored")
	}
}

func TestSettingsSaveUpdatesConfig(t *testing.T) {
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.HardwareVersion = "1.4.0"
	p := NewSettingsPage(&cfg, root)

	p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if p.message == "" {
		t.Fatal("expected message after save")
	}

	configPath := filepath.Join(root, config.DirName, "config.json")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("expected config file at %s, not found", configPath)
	}

	loaded := config.LoadFrom("", root)
	if loaded.HardwareVersion != "1.4.0" {
		t.Fatalf("expected HardwareVersion=1.4.0, got %q", loaded.HardwareVersion)
	}
}
