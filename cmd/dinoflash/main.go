// dinoflash provisions devices on a factory station: it settles the
// device's hardware identity, flashes the matching firmware, waits for the
// device to come up and runs the wireless QC test.
//
// By default it runs an interactive terminal UI. With --headless it runs a
// single session and exits with a code naming the failure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/spf13/pflag"

	"github.com/buckleypaul/dinoflash/internal/alert"
	"github.com/buckleypaul/dinoflash/internal/app"
	"github.com/buckleypaul/dinoflash/internal/config"
	"github.com/buckleypaul/dinoflash/internal/pages"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/serial"
	"github.com/buckleypaul/dinoflash/internal/station"
	"github.com/buckleypaul/dinoflash/internal/store"
)

var logger = loggo.GetLogger("dinoflash")

type flags struct {
	mode      string
	version   string
	port      string
	headless  bool
	qc        bool
	yes       bool
	configDir string
	logLevel  string
}

// exitError carries a process exit code out of run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	var f flags
	flagSet := pflag.NewFlagSet("dinoflash", pflag.ContinueOnError)
	flagSet.StringVarP(&f.mode, "mode", "m", "", "provisioning mode: production or testing (default from config)")
	flagSet.StringVarP(&f.version, "version", "v", "", "hardware version to burn in testing mode, e.g. 1.9.1")
	flagSet.StringVarP(&f.port, "port", "p", "", "serial port to use instead of auto-detection")
	flagSet.BoolVar(&f.headless, "headless", false, "run one session without the terminal UI")
	flagSet.BoolVar(&f.qc, "qc", false, "run wireless QC after a successful session")
	flagSet.BoolVarP(&f.yes, "yes", "y", false, "confirm the irreversible identity burn in headless testing mode")
	flagSet.StringVar(&f.configDir, "config-dir", "", "station directory holding .dinoflash (default: current directory)")
	flagSet.StringVar(&f.logLevel, "log-level", "", "diagnostic log level: TRACE, DEBUG, INFO, WARNING, ERROR")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return errors.Errorf("unexpected argument: %s", args[0])
	}

	root := f.configDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return errors.Trace(err)
		}
		root = cwd
	}

	cfg := config.Load(root)
	if f.mode != "" {
		cfg.Mode = f.mode
	}
	mode, err := provision.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	cfg.Mode = string(mode)
	if f.version != "" {
		cfg.HardwareVersion = f.version
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.qc {
		cfg.AutoQC = true
	}

	st := store.New(filepath.Join(root, config.DirName))
	if err := setupLogging(cfg.LogLevel, st, f.headless); err != nil {
		return err
	}
	logger.Infof("station %s, mode %s, registry %s", root, mode, cfg.RegistryURL)

	if f.headless {
		return runHeadless(&cfg, root, st, mode, f)
	}
	return runTUI(&cfg, root, st, f.port)
}

// setupLogging sends diagnostics to stderr in headless mode and to the
// station log file otherwise, since the UI owns the terminal.
func setupLogging(level string, st *store.Store, headless bool) error {
	if level == "" {
		level = config.DefaultLogLevel
	}
	if err := loggo.ConfigureLoggers("<root>=" + strings.ToUpper(level)); err != nil {
		return errors.Annotate(err, "log level")
	}
	if headless {
		return nil
	}
	dir, err := st.LogsDir()
	if err != nil {
		return errors.Annotate(err, "log directory")
	}
	file, err := os.OpenFile(filepath.Join(dir, "dinoflash.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Annotate(err, "log file")
	}
	_, err = loggo.ReplaceDefaultWriter(loggo.NewSimpleWriter(file, loggo.DefaultFormatter))
	return errors.Trace(err)
}

func runTUI(cfg *config.Config, root string, st *store.Store, port string) error {
	watcher := serial.NewWatcher(serial.NewResolver(cfg.USBVID, cfg.USBPID), clock.WallClock)
	watcher.Interval = cfg.Timings.PollInterval.Std()

	built, err := buildStation(cfg, root, st, alert.NewBell(os.Stdout), watcher)
	if err != nil {
		return err
	}

	stn := &station.Station{
		Deps:    built.deps,
		Options: sessionOptions(cfg, port),
		Watcher: watcher,
		Pinger:  built.registry,
	}

	pageMap := map[app.PageID]app.Page{
		app.ProvisionPage: pages.NewProvisionPage(stn, cfg),
		app.QCPage:        pages.NewQCPage(stn),
		app.HistoryPage:   pages.NewHistoryPage(st),
		app.SettingsPage:  pages.NewSettingsPage(cfg, root),
	}

	model := app.New(pageMap, cfg, root, stn)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	stn.SetSender(program.Send)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stn.WatchPorts(ctx)

	_, err = program.Run()
	stn.Shutdown()
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `dinoflash: device provisioning station.

Resolves the attached device, settles its hardware identity (burned in
testing mode, read in production mode), downloads the matching firmware,
flashes it, waits for the device to report ready and optionally runs the
wireless QC test.

Usage:
  dinoflash [flags]

Examples:
  # Interactive station UI
  dinoflash

  # One production session, then QC
  dinoflash --headless --qc

  # Burn version 1.9.1 on a test unit and flash the testing build
  dinoflash --headless --mode testing --version 1.9.1 --yes

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
