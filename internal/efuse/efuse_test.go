package efuse

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/buckleypaul/dinoflash/internal/hwversion"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/tool"
)

const summaryTemplate = `espefuse.py v4.7.0
Connecting....
=== Run "summary" command ===
EFUSE_NAME (Block) Description  = [Meaningful Value] [Readable/Writeable] (Hex Value)
----------------------------------------------------------------------------------------
User data fuses:
BLOCK_USR_DATA (BLOCK3)                            User data
   = %s 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 R/W
BLOCK_KEY0 (BLOCK4)
   = 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 R/W
`

func summaryWith(triple string) string {
	return strings.Replace(summaryTemplate, "%s", triple, 1)
}

type runCall struct {
	cmd  tool.Command
	args []string
}

type fakeRunner struct {
	results  map[string]tool.Result
	errs     map[string]error
	calls    []runCall
	recorded []byte
}

func (f *fakeRunner) key(args []string) string {
	for _, a := range args {
		switch a {
		case "chip_id", "summary", "burn_block_data":
			return a
		}
	}
	return ""
}

func (f *fakeRunner) Run(ctx context.Context, cmd tool.Command, args ...string) (tool.Result, error) {
	f.calls = append(f.calls, runCall{cmd: cmd, args: append([]string(nil), args...)})
	k := f.key(args)
	if k == "burn_block_data" {
		data, err := os.ReadFile(args[len(args)-1])
		if err == nil {
			f.recorded = data
		}
	}
	return f.results[k], f.errs[k]
}

func (f *fakeRunner) Stream(onLine func(string), cmd tool.Command, args ...string) (tool.Result, error) {
	return tool.Result{}, nil
}

func newController(f *fakeRunner, t *testing.T) *Controller {
	c := New(f, tool.Command{"esptool"}, tool.Command{"espefuse"}, "esp32s3")
	c.TempDir = t.TempDir()
	return c
}

func TestParseSummary(t *testing.T) {
	v, found, ok := ParseSummary(summaryWith("01 09 01"))
	if !found || !ok || v != (hwversion.Version{Major: 1, Minor: 9, Patch: 1}) {
		t.Fatalf("expected 1.9.1, got %v found=%v ok=%v", v, found, ok)
	}

	_, found, ok = ParseSummary(summaryWith("00 00 00"))
	if !found || ok {
		t.Fatalf("zero block: expected found=true ok=false, got found=%v ok=%v", found, ok)
	}

	_, found, _ = ParseSummary("no user block here")
	if found {
		t.Fatal("expected not found")
	}

	v, _, ok = ParseSummary(strings.ToLower(summaryWith("0A FF 10")))
	if !ok || v != (hwversion.Version{Major: 10, Minor: 255, Patch: 16}) {
		t.Fatalf("expected case-insensitive parse, got %v", v)
	}
}

func TestBurnWritesRecordAndReportsSuccess(t *testing.T) {
	f := &fakeRunner{results: map[string]tool.Result{
		"chip_id":         {ExitCode: 0},
		"burn_block_data": {ExitCode: 0},
	}}
	c := newController(f, t)

	if !c.Burn(context.Background(), "/dev/ttyACM0", hwversion.Version{Major: 1, Minor: 9, Patch: 1}, provision.Discard) {
		t.Fatal("expected burn success")
	}
	if len(f.calls) != 2 || f.key(f.calls[0].args) != "chip_id" {
		t.Fatalf("expected reset then burn, got %+v", f.calls)
	}
	burn := strings.Join(f.calls[1].args, " ")
	if !strings.Contains(burn, "--do-not-confirm burn_block_data BLOCK3") {
		t.Fatalf("unexpected burn args %q", burn)
	}
	if len(f.recorded) != hwversion.RecordSize || f.recorded[0] != 1 || f.recorded[1] != 9 || f.recorded[2] != 1 {
		t.Fatalf("unexpected record %v", f.recorded)
	}
	entries, _ := os.ReadDir(c.TempDir)
	if len(entries) != 0 {
		t.Fatalf("expected temp record removed, found %d files", len(entries))
	}
}

func TestBurnContinuesWhenResetFails(t *testing.T) {
	f := &fakeRunner{results: map[string]tool.Result{
		"chip_id":         {ExitCode: 2},
		"burn_block_data": {ExitCode: 0},
	}}
	c := newController(f, t)
	if !c.Burn(context.Background(), "COM3", hwversion.Version{Major: 1, Minor: 0, Patch: 0}, provision.Discard) {
		t.Fatal("expected burn success despite failed reset")
	}
}

func TestBurnFailsOnNonZeroExit(t *testing.T) {
	f := &fakeRunner{results: map[string]tool.Result{
		"burn_block_data": {ExitCode: 2, Output: "A fatal error occurred: already burned"},
	}}
	c := newController(f, t)

	var warned bool
	emit := provision.EmitFunc(func(e provision.Event) {
		if e.Severity == provision.Warning && strings.Contains(e.Message, "already be written") {
			warned = true
		}
	})
	if c.Burn(context.Background(), "/dev/ttyACM0", hwversion.Version{Major: 1, Minor: 9, Patch: 1}, emit) {
		t.Fatal("expected burn failure")
	}
	if !warned {
		t.Fatal("expected already-written warning event")
	}
}

func TestReadTreatsZeroAndFailureAsAbsent(t *testing.T) {
	f := &fakeRunner{results: map[string]tool.Result{
		"summary": {ExitCode: 0, Output: summaryWith("00 00 00")},
	}}
	c := newController(f, t)
	if _, ok := c.Read(context.Background(), "/dev/ttyACM0", provision.Discard); ok {
		t.Fatal("zero record must read as absent")
	}

	f.results["summary"] = tool.Result{ExitCode: 1}
	if _, ok := c.Read(context.Background(), "/dev/ttyACM0", provision.Discard); ok {
		t.Fatal("failed read must be absent")
	}

	f.results["summary"] = tool.Result{ExitCode: 0, Output: summaryWith("01 08 00")}
	v, ok := c.Read(context.Background(), "/dev/ttyACM0", provision.Discard)
	if !ok || v.String() != "1.8.0" {
		t.Fatalf("expected 1.8.0, got %v ok=%v", v, ok)
	}
}

func TestSanitizePort(t *testing.T) {
	if got := sanitizePort("/dev/cu.usbmodem1101"); got != "dev_cu_usbmodem1101" {
		t.Fatalf("unexpected %q", got)
	}
}
