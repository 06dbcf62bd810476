// Package efuse burns and reads the hardware-version record kept in the
// chip's one-time-programmable user block (BLOCK3).
package efuse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juju/loggo"

	"github.com/buckleypaul/dinoflash/internal/hwversion"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/tool"
)

var logger = loggo.GetLogger("dinoflash.efuse")

const (
	// Block is the user data block holding the version record.
	Block = "BLOCK3"

	DefaultResetTimeout = 10 * time.Second
	DefaultReadTimeout  = 15 * time.Second
)

// summaryPattern finds the first three bytes of the user block in the
// espefuse summary dump.
var summaryPattern = regexp.MustCompile(`(?is)BLOCK_USR_DATA \(BLOCK3\).*?=\s*([0-9a-f]{2})\s*([0-9a-f]{2})\s*([0-9a-f]{2})`)

// Controller drives espefuse (and esptool for the pre-burn reset).
type Controller struct {
	Runner   tool.Runner
	Esptool  tool.Command
	Espefuse tool.Command
	Chip     string
	// TempDir holds the per-port record file during a burn.
	TempDir      string
	ResetTimeout time.Duration
	ReadTimeout  time.Duration
}

// New returns a Controller with the default timeouts.
func New(runner tool.Runner, esptool, espefuse tool.Command, chip string) *Controller {
	return &Controller{
		Runner:       runner,
		Esptool:      esptool,
		Espefuse:     espefuse,
		Chip:         chip,
		TempDir:      os.TempDir(),
		ResetTimeout: DefaultResetTimeout,
		ReadTimeout:  DefaultReadTimeout,
	}
}

// Burn writes v into the user block. The pre-burn reset is best effort.
// It returns false when the write fails; a block that is already written
// is the usual cause. A true result is irreversible and must be verified
// with Read before the version is trusted.
func (c *Controller) Burn(ctx context.Context, port string, v hwversion.Version, emit provision.Emitter) bool {
	emit.Emit(provision.Logf(provision.Identity, provision.Info, "Burning hardware version %s on %s", v, port))
	c.reset(ctx, port, emit)

	rec := v.Encode()
	path := filepath.Join(c.TempDir, fmt.Sprintf("efuse_%s.bin", sanitizePort(port)))
	if err := os.WriteFile(path, rec[:], 0o600); err != nil {
		logger.Errorf("writing record file: %v", err)
		emit.Emit(provision.Logf(provision.Identity, provision.Error, "Could not prepare version record: %v", err))
		return false
	}
	defer os.Remove(path)

	res, err := c.Runner.Run(ctx, c.Espefuse,
		"--chip", c.Chip, "-p", port, "--do-not-confirm",
		"burn_block_data", Block, path)
	if err != nil {
		logger.Errorf("espefuse burn: %v", err)
		emit.Emit(provision.Logf(provision.Identity, provision.Error, "eFuse tool failed to run: %v", err))
		return false
	}
	if res.ExitCode != 0 {
		logger.Warningf("espefuse burn exited %d: %s", res.ExitCode, lastLines(res.Output, 3))
		emit.Emit(provision.Logf(provision.Identity, provision.Warning, "Could not burn eFuse (exit %d). It may already be written.", res.ExitCode))
		return false
	}
	emit.Emit(provision.Logf(provision.Identity, provision.Success, "eFuse burned"))
	return true
}

func (c *Controller) reset(ctx context.Context, port string, emit provision.Emitter) {
	emit.Emit(provision.Logf(provision.Identity, provision.Info, "Resetting device into download mode"))
	rctx, cancel := context.WithTimeout(ctx, c.ResetTimeout)
	defer cancel()
	res, err := c.Runner.Run(rctx, c.Esptool,
		"--chip", c.Chip, "-p", port,
		"--before=default_reset", "--after=hard_reset", "chip_id")
	switch {
	case err != nil:
		logger.Warningf("reset: %v", err)
		emit.Emit(provision.Logf(provision.Identity, provision.Warning, "Device reset error (%v), continuing", err))
	case res.ExitCode != 0:
		emit.Emit(provision.Logf(provision.Identity, provision.Warning, "Device reset failed, continuing"))
	default:
		emit.Emit(provision.Logf(provision.Identity, provision.Info, "Device reset"))
	}
}

// Read returns the burned version. ok is false when the tool fails, the
// block is unreadable, or the record is the reserved all-zero triple.
func (c *Controller) Read(ctx context.Context, port string, emit provision.Emitter) (hwversion.Version, bool) {
	emit.Emit(provision.Logf(provision.Identity, provision.Info, "Reading eFuse on %s", port))
	rctx, cancel := context.WithTimeout(ctx, c.ReadTimeout)
	defer cancel()

	res, err := c.Runner.Run(rctx, c.Espefuse, "--chip", c.Chip, "-p", port, "summary")
	if err != nil || res.ExitCode != 0 {
		logger.Warningf("espefuse summary failed: err=%v exit=%d", err, res.ExitCode)
		emit.Emit(provision.Logf(provision.Identity, provision.Error, "Failed to read eFuse. Maybe locked?"))
		return hwversion.Version{}, false
	}

	v, found, ok := ParseSummary(res.Output)
	switch {
	case !found:
		emit.Emit(provision.Logf(provision.Identity, provision.Warning, "No version found on eFuse"))
	case !ok:
		emit.Emit(provision.Logf(provision.Identity, provision.Warning, "eFuse block is empty (0.0.0)"))
	default:
		emit.Emit(provision.Logf(provision.Identity, provision.Success, "Found eFuse version %s", v))
	}
	return v, ok
}

// ParseSummary extracts the version from an espefuse summary dump. found
// reports whether the user block line was present at all; ok is false
// when it was absent or held 0.0.0.
func ParseSummary(output string) (v hwversion.Version, found, ok bool) {
	m := summaryPattern.FindStringSubmatch(output)
	if m == nil {
		return hwversion.Version{}, false, false
	}
	var rec [3]byte
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseUint(m[i+1], 16, 8)
		if err != nil {
			return hwversion.Version{}, true, false
		}
		rec[i] = byte(n)
	}
	v, ok = hwversion.Decode(rec[:])
	return v, true, ok
}

func sanitizePort(port string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", ".", "_")
	return strings.Trim(r.Replace(port), "_")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
