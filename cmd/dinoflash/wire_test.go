package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/buckleypaul/dinoflash/internal/alert"
	"github.com/buckleypaul/dinoflash/internal/config"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/sink"
	"github.com/buckleypaul/dinoflash/internal/store"
)

func TestBuildStationWiresSinks(t *testing.T) {
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.SinkURL = "http://127.0.0.1:1/api"

	parts, err := buildStation(&cfg, root, store.New(root), alert.Silent{}, nil)
	if err != nil {
		t.Fatalf("buildStation: %v", err)
	}
	multi, ok := parts.deps.Sink.(sink.Multi)
	if !ok || len(multi) != 2 {
		t.Fatalf("expected local and HTTP sinks, got %#v", parts.deps.Sink)
	}
	if parts.registry == nil || parts.deps.Listen == nil || parts.deps.QC == nil {
		t.Fatal("expected registry, listener factory and QC wired")
	}
}

func TestBuildStationRejectsBadToolCommand(t *testing.T) {
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.Esptool = `python "unterminated`
	if _, err := buildStation(&cfg, root, store.New(filepath.Join(root, "s")), alert.Silent{}, nil); err == nil {
		t.Fatal("expected error for an unparsable command")
	}
}

func TestSessionOptionsReadConfigLive(t *testing.T) {
	cfg := config.Defaults()
	cfg.HardwareVersion = "1.0.0"
	opts := sessionOptions(&cfg, "/dev/ttyACM3")

	cfg.HardwareVersion = "1.2.3"
	got := opts(provision.Testing)
	if got.Target != "1.2.3" || got.Port != "/dev/ttyACM3" || got.Mode != provision.Testing {
		t.Fatalf("unexpected options %+v", got)
	}
	if got.BurnSettle != 2*time.Second {
		t.Errorf("expected default burn settle, got %s", got.BurnSettle)
	}
}
