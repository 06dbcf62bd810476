// Package flash writes a downloaded firmware build to the device with
// esptool and reports progress for the application partition.
package flash

import (
	"fmt"
	"strconv"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/buckleypaul/dinoflash/internal/firmware"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/tool"
)

var logger = loggo.GetLogger("dinoflash.flash")

// DefaultBaud is the write_flash baud rate.
const DefaultBaud = 460800

// Partition addresses.
const (
	BootloaderAddress     = 0x0
	PartitionTableAddress = 0x10000
	OTAInitialAddress     = 0x15000
)

// ToolError is a non-zero esptool exit.
type ToolError struct {
	Code int
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("esptool exited with code %d", e.Code)
}

// Flasher drives esptool write_flash.
type Flasher struct {
	Runner    tool.Runner
	Esptool   tool.Command
	Chip      string
	Baud      int
	FlashMode string
	FlashFreq string
	FlashSize string
	Clock     clock.Clock
}

// New returns a Flasher with the station's fixed flash parameters.
func New(runner tool.Runner, esptool tool.Command, chip string) *Flasher {
	return &Flasher{
		Runner:    runner,
		Esptool:   esptool,
		Chip:      chip,
		Baud:      DefaultBaud,
		FlashMode: "dio",
		FlashFreq: "80m",
		FlashSize: "16MB",
		Clock:     clock.WallClock,
	}
}

func hexAddr(a int) string {
	return "0x" + strconv.FormatInt(int64(a), 16)
}

func (f *Flasher) args(port string, set firmware.ArtifactSet) []string {
	return []string{
		"--chip", f.Chip,
		"-p", port,
		"-b", strconv.Itoa(f.Baud),
		"--before=default_reset",
		"--after=hard_reset",
		"write_flash",
		"--flash_mode", f.FlashMode,
		"--flash_freq", f.FlashFreq,
		"--flash_size", f.FlashSize,
		hexAddr(BootloaderAddress), set.Bootloader,
		hexAddr(AppAddress), set.App,
		hexAddr(PartitionTableAddress), set.PartitionTable,
		hexAddr(OTAInitialAddress), set.OTAInitial,
	}
}

// Flash writes set to the device on port. It runs to completion and cannot
// be cancelled. A progress window is shown for the duration and hidden
// exactly once on every exit path.
func (f *Flasher) Flash(port string, set firmware.ArtifactSet, emit provision.Emitter) (err error) {
	emit.Emit(provision.Event{Time: f.Clock.Now(), Kind: provision.KindProgressShown, Category: provision.Flash})
	defer func() {
		emit.Emit(provision.Event{Time: f.Clock.Now(), Kind: provision.KindProgressHidden, Category: provision.Flash})
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("flash panicked: %v", r)
			err = provision.Wrapf(provision.FlashUnexpected, "%v", r)
		}
	}()

	emit.Emit(provision.Logf(provision.Flash, provision.Info, "Flashing %s on %s", set.Build.Name, port))
	progress := newProgressTracker(AppAddress)
	var rel relay
	res, err := f.Runner.Stream(func(line string) {
		logger.Tracef("esptool: %s", line)
		if msg, ok := rel.clean(line); ok {
			emit.Emit(provision.Logf(provision.Flash, provision.Info, "%s", msg))
		}
		if pct, ok := progress.observe(line); ok {
			emit.Emit(provision.Event{Time: f.Clock.Now(), Kind: provision.KindProgress, Category: provision.Flash, Percent: pct})
		}
	}, f.Esptool, f.args(port, set)...)
	if err != nil {
		emit.Emit(provision.Logf(provision.Flash, provision.Error, "Flash failed: %v", err))
		return provision.Wrap(provision.FlashUnexpected, errors.Trace(err))
	}
	if res.ExitCode != 0 {
		emit.Emit(provision.Logf(provision.Flash, provision.Error, "Flash failed: esptool exited with code %d", res.ExitCode))
		return provision.Wrap(provision.FlashToolError, &ToolError{Code: res.ExitCode})
	}
	emit.Emit(provision.Logf(provision.Flash, provision.Success, "Flash complete in %s", res.Duration.Round(100*time.Millisecond)))
	return nil
}
