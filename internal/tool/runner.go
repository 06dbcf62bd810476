// Package tool runs the external Espressif tools (esptool, espefuse) as
// subprocesses, either capturing their output or streaming it line by line.
package tool

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("dinoflash.tool")

// Result describes a finished tool invocation.
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// Runner executes tool commands. An error is returned only when the process
// could not be run at all; a non-zero exit is reported through ExitCode.
type Runner interface {
	// Run executes the command and captures combined stdout/stderr. The
	// context bounds the run; a cancelled run is killed.
	Run(ctx context.Context, cmd Command, args ...string) (Result, error)

	// Stream executes the command and calls onLine for every output line
	// as it arrives. It is not cancellable: flash writes run to completion.
	Stream(onLine func(string), cmd Command, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	env []string
	dir string
}

// NewExecRunner returns a runner that prefers the python of a virtual
// environment when one is found (see DetectVenv).
func NewExecRunner(venvOverride, root string) *ExecRunner {
	r := &ExecRunner{dir: root}
	if binDir := DetectVenv(venvOverride, root); binDir != "" {
		logger.Debugf("using virtual environment at %s", binDir)
		r.env = buildEnvWithPath(binDir)
	}
	return r
}

func (r *ExecRunner) command(ctx context.Context, cmd Command, args []string) (*exec.Cmd, error) {
	name, argv, err := cmd.argv(args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var c *exec.Cmd
	if ctx != nil {
		c = exec.CommandContext(ctx, name, argv...)
	} else {
		c = exec.Command(name, argv...)
	}
	if r.env != nil {
		c.Env = r.env
	}
	if r.dir != "" {
		c.Dir = r.dir
	}
	return c, nil
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, cmd Command, args ...string) (Result, error) {
	start := time.Now()
	c, err := r.command(ctx, cmd, args)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	logger.Debugf("run: %s", c.String())

	output, err := c.CombinedOutput()
	res := Result{Output: string(output), Duration: time.Since(start)}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, errors.Annotatef(err, "running %s", cmd)
	}
	return res, nil
}

// Stream implements Runner.
func (r *ExecRunner) Stream(onLine func(string), cmd Command, args ...string) (Result, error) {
	start := time.Now()
	c, err := r.command(nil, cmd, args)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	logger.Debugf("stream: %s", c.String())

	stdout, err := c.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, errors.Annotate(err, "opening output pipe")
	}
	c.Stderr = c.Stdout // merge stderr into stdout

	if err := c.Start(); err != nil {
		return Result{ExitCode: -1}, errors.Annotatef(err, "starting %s", cmd)
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		line := scanner.Text()
		out.WriteString(line)
		out.WriteByte('\n')
		onLine(line)
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep the child from blocking on a full pipe.
		io.Copy(io.Discard, stdout)
	}

	res := Result{Output: out.String()}
	err = c.Wait()
	res.Duration = time.Since(start)
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, errors.Annotatef(err, "waiting for %s", cmd)
	}
	if scanErr != nil {
		return res, errors.Annotate(scanErr, "reading tool output")
	}
	return res, nil
}

// scanLinesOrCR splits on '\n' or a lone '\r', so carriage-return progress
// redraws arrive as separate lines.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		switch b {
		case '\n':
			return i + 1, data[:i], nil
		case '\r':
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			// Need one more byte to tell "\r" from "\r\n".
			return 0, nil, nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
