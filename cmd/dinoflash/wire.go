package main

import (
	"path/filepath"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/alert"
	"github.com/buckleypaul/dinoflash/internal/ble"
	"github.com/buckleypaul/dinoflash/internal/config"
	"github.com/buckleypaul/dinoflash/internal/efuse"
	"github.com/buckleypaul/dinoflash/internal/firmware"
	"github.com/buckleypaul/dinoflash/internal/flash"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/qc"
	"github.com/buckleypaul/dinoflash/internal/serial"
	"github.com/buckleypaul/dinoflash/internal/session"
	"github.com/buckleypaul/dinoflash/internal/sink"
	"github.com/buckleypaul/dinoflash/internal/store"
	"github.com/buckleypaul/dinoflash/internal/telemetry"
	"github.com/buckleypaul/dinoflash/internal/tool"
)

// stationParts bundles everything built from the configuration.
type stationParts struct {
	deps     session.Deps
	registry *firmware.Client
}

func buildStation(cfg *config.Config, root string, st *store.Store, bell alert.Alerter, watcher session.PortWatcher) (*stationParts, error) {
	esptool, err := tool.ParseCommand(cfg.Esptool)
	if err != nil {
		return nil, errors.Annotate(err, "esptool")
	}
	espefuse, err := tool.ParseCommand(cfg.Espefuse)
	if err != nil {
		return nil, errors.Annotate(err, "espefuse")
	}
	runner := tool.NewExecRunner(cfg.VenvPath, root)

	identity := efuse.New(runner, esptool, espefuse, cfg.Chip)

	registry := firmware.NewClient(cfg.RegistryURL)
	firmwareDir := cfg.FirmwareDir
	if !filepath.IsAbs(firmwareDir) {
		firmwareDir = filepath.Join(root, config.DirName, firmwareDir)
	}
	acquirer := firmware.NewAcquirer(registry, firmwareDir)
	acquirer.ProductionPath = cfg.ProductionPath
	acquirer.TestingPath = cfg.TestingPath

	flasher := flash.New(runner, esptool, cfg.Chip)
	flasher.Baud = cfg.FlashBaud

	orch := qc.New(ble.New(ble.UUIDs{
		Service: cfg.BLE.ServiceUUID,
		Command: cfg.BLE.CommandUUID,
		Result:  cfg.BLE.ResultUUID,
	}), clock.WallClock)
	t := cfg.Timings
	orch.Timings = qc.Timings{
		ReadyTimeout:     t.ReadyTimeout.Std(),
		ScanWindow:       t.ScanWindow.Std(),
		ScanAttempts:     t.ScanAttempts,
		ScanRetryDelay:   t.ScanRetryDelay.Std(),
		Settle:           t.Settle.Std(),
		InvokeAttempts:   qc.DefaultTimings.InvokeAttempts,
		InvokeRetryDelay: t.InvokeRetryDelay.Std(),
		ResultsWindow:    t.ResultsWindow.Std(),
	}
	orch.TestIndex = cfg.QCTestIndex

	sinks := sink.Multi{sink.Local{Store: st}}
	if cfg.SinkURL != "" {
		sinks = append(sinks, sink.NewHTTP(cfg.SinkURL))
	}

	resolver := serial.NewResolver(cfg.USBVID, cfg.USBPID)
	monitorBaud := cfg.MonitorBaud

	return &stationParts{
		deps: session.Deps{
			Resolver: resolver,
			Identity: identity,
			Firmware: acquirer,
			Flasher:  flasher,
			Listen: func(port string) session.Listener {
				return telemetry.New(port, monitorBaud)
			},
			QC:      orch,
			Sink:    sinks,
			Alert:   bell,
			Watcher: watcher,
			Clock:   clock.WallClock,
		},
		registry: registry,
	}, nil
}

// sessionOptions reads cfg at call time so Settings edits apply to the
// next session.
func sessionOptions(cfg *config.Config, port string) func(provision.Mode) session.Options {
	return func(mode provision.Mode) session.Options {
		return session.Options{
			Mode:          mode,
			Target:        cfg.HardwareVersion,
			Port:          port,
			BurnSettle:    cfg.Timings.BurnSettle.Std(),
			ListenTimeout: cfg.Timings.ListenTimeout.Std(),
		}
	}
}
