package tool

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestScanLinesOrCR(t *testing.T) {
	input := "first\r\nWriting (10 %)\rWriting (20 %)\rdone\nlast"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanLinesOrCR)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	want := []string{"first", "Writing (10 %)", "Writing (20 %)", "done", "last"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand(`"/opt/my python/bin/python" -m esptool`)
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if len(c) != 3 || c[0] != "/opt/my python/bin/python" || c[2] != "esptool" {
		t.Fatalf("unexpected split %q", []string(c))
	}
	if _, err := ParseCommand("   "); err == nil {
		t.Fatal("expected error for empty template")
	}
}

func TestDetectVenv(t *testing.T) {
	root := t.TempDir()
	if got := DetectVenv("", root); got != "" {
		t.Fatalf("expected no venv, got %q", got)
	}

	binDir := venvBinDir(filepath.Join(root, ".venv"))
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	exe := pythonExeNames()[0]
	if err := os.WriteFile(filepath.Join(binDir, exe), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := DetectVenv("", root); got != binDir {
		t.Fatalf("expected %q, got %q", binDir, got)
	}

	override := filepath.Join(root, "custom")
	overrideBin := venvBinDir(override)
	os.MkdirAll(overrideBin, 0o755)
	os.WriteFile(filepath.Join(overrideBin, exe), []byte("#!/bin/sh\n"), 0o755)
	if got := DetectVenv(override, root); got != overrideBin {
		t.Fatalf("expected override %q, got %q", overrideBin, got)
	}
}

func TestBuildEnvWithPathPrepends(t *testing.T) {
	env := buildEnvWithPath("/venv/bin")
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			if !strings.HasPrefix(e[5:], "/venv/bin") {
				t.Fatalf("PATH does not start with venv bin dir: %s", e)
			}
			return
		}
	}
	t.Fatal("PATH not found")
}

func TestExecRunnerExitCodes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	r := NewExecRunner("", "")
	sh := Command{"sh", "-c"}

	res, err := r.Run(context.Background(), sh, "echo hello; exit 3")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 3 || !strings.Contains(res.Output, "hello") {
		t.Fatalf("unexpected result %+v", res)
	}

	var lines []string
	res, err = r.Stream(func(l string) { lines = append(lines, l) }, sh, "echo one; echo two 1>&2")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if res.ExitCode != 0 || len(lines) != 2 {
		t.Fatalf("expected 2 lines and exit 0, got %q exit %d", lines, res.ExitCode)
	}

	if _, err := r.Run(context.Background(), Command{"/nonexistent/tool-binary"}); err == nil {
		t.Fatal("expected launch error")
	}
}

func TestStreamDrainsAfterOverlongLine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	r := NewExecRunner("", "")
	sh := Command{"sh", "-c"}
	script := `head -c 2000000 /dev/zero | tr '\000' a; head -c 300000 /dev/zero | tr '\000' b; echo; exit 0`

	type result struct {
		res Result
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := r.Stream(func(string) {}, sh, script)
		done <- result{res, err}
	}()

	select {
	case got := <-done:
		if got.err == nil {
			t.Fatal("expected an error for the overlong line")
		}
		if got.res.ExitCode != 0 {
			t.Errorf("expected exit 0, got %d", got.res.ExitCode)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Stream did not return after an overlong line")
	}
}
