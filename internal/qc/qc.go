// Package qc runs the wireless functional test against a freshly flashed
// device: discover it by address, connect, trigger the test and collect
// the results it pushes back.
package qc

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/buckleypaul/dinoflash/internal/provision"
)

var logger = loggo.GetLogger("dinoflash.qc")

// Timings bounds every wait in a QC run.
type Timings struct {
	ReadyTimeout     time.Duration
	ScanWindow       time.Duration
	ScanAttempts     int
	ScanRetryDelay   time.Duration
	Settle           time.Duration
	InvokeAttempts   int
	InvokeRetryDelay time.Duration
	ResultsWindow    time.Duration
}

// DefaultTimings are the station defaults.
var DefaultTimings = Timings{
	ReadyTimeout:     15 * time.Second,
	ScanWindow:       7 * time.Second,
	ScanAttempts:     3,
	ScanRetryDelay:   2 * time.Second,
	Settle:           time.Second,
	InvokeAttempts:   2,
	InvokeRetryDelay: time.Second,
	ResultsWindow:    15 * time.Second,
}

const errNotSeen = errors.ConstError("device not in scan results")

// Orchestrator runs one QC session at a time.
type Orchestrator struct {
	Wireless  Wireless
	Clock     clock.Clock
	Timings   Timings
	TestIndex int
}

// New returns an Orchestrator with DefaultTimings.
func New(w Wireless, clk clock.Clock) *Orchestrator {
	return &Orchestrator{Wireless: w, Clock: clk, Timings: DefaultTimings}
}

// Run waits for the ready target and runs the full test against it. The
// returned report is populated as far as the run got; the error names the
// failing step. Cancelling ctx stops the run between steps.
func (o *Orchestrator) Run(ctx context.Context, ready <-chan Target, emit provision.Emitter) (Report, error) {
	start := o.Clock.Now()
	target, err := o.AwaitReady(ctx, ready)
	if err != nil {
		emit.Emit(provision.Logf(provision.QC, provision.Error, "Device did not report ready within %s", o.Timings.ReadyTimeout))
		return Report{}, err
	}
	report, err := o.Test(ctx, target, emit)
	report.Duration = o.Clock.Now().Sub(start)
	return report, err
}

// AwaitReady blocks until a target arrives or ReadyTimeout elapses.
func (o *Orchestrator) AwaitReady(ctx context.Context, ready <-chan Target) (Target, error) {
	select {
	case t, ok := <-ready:
		if !ok {
			return Target{}, provision.Wrapf(provision.ReadyTimeout, "telemetry closed before the device was ready")
		}
		return t, nil
	case <-o.Clock.After(o.Timings.ReadyTimeout):
		return Target{}, provision.ReadyTimeout
	case <-ctx.Done():
		return Target{}, provision.Wrap(provision.Cancelled, ctx.Err())
	}
}

// Test runs discover, connect, invoke, collect and evaluate against a
// known target. The link is always disconnected once connected.
func (o *Orchestrator) Test(ctx context.Context, target Target, emit provision.Emitter) (Report, error) {
	report := Report{Address: target.Address, Name: target.Name}

	emit.Emit(provision.Logf(provision.Wireless, provision.Info, "Scanning for %s (%s)", target.Name, target.Address))
	if err := o.Discover(ctx, target.Address, emit); err != nil {
		return report, err
	}

	emit.Emit(provision.Logf(provision.Wireless, provision.Info, "Connecting to %s", target.Address))
	link, err := o.Wireless.Connect(ctx, target.Address)
	if err != nil {
		emit.Emit(provision.Logf(provision.Wireless, provision.Error, "Connection failed: %v", err))
		return report, provision.Wrap(provision.ConnectFailed, err)
	}
	defer func() {
		if err := link.Disconnect(); err != nil {
			logger.Warningf("disconnecting %s: %v", target.Address, err)
		}
		emit.Emit(provision.Logf(provision.Wireless, provision.Info, "Disconnected from %s", target.Address))
	}()
	emit.Emit(provision.Logf(provision.Wireless, provision.Success, "Connected to %s", target.Address))

	select {
	case <-o.Clock.After(o.Timings.Settle):
	case <-ctx.Done():
		return report, provision.Wrap(provision.Cancelled, ctx.Err())
	}

	if err := o.invoke(ctx, link, emit); err != nil {
		return report, err
	}

	results, err := o.collect(ctx, link, emit)
	if err != nil {
		return report, err
	}
	evaluated := Evaluate(results)
	evaluated.Address, evaluated.Name = report.Address, report.Name
	report = evaluated

	for _, line := range report.Lines {
		sev := provision.Success
		if !line.Passed {
			sev = provision.Error
		}
		emit.Emit(provision.Logf(provision.QC, sev, "%s", line.Describe()))
	}
	if !report.Passed {
		emit.Emit(provision.Logf(provision.QC, provision.Error, "QC failed: %s", report.Summary()))
		return report, provision.Wrapf(provision.QCFailed, "%s", report.Summary())
	}
	emit.Emit(provision.Logf(provision.QC, provision.Success, "QC passed: %s", report.Summary()))
	return report, nil
}

// Discover scans up to ScanAttempts times for address, sleeping
// ScanRetryDelay between misses.
func (o *Orchestrator) Discover(ctx context.Context, address string, emit provision.Emitter) error {
	attempt := 0
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempt++
			scanCtx, cancel := context.WithTimeout(ctx, o.Timings.ScanWindow)
			defer cancel()
			ads, err := o.Wireless.Scan(scanCtx, o.Timings.ScanWindow)
			if err != nil {
				return errors.Annotatef(err, "scan %d", attempt)
			}
			for _, ad := range ads {
				if sameAddress(ad.Address, address) {
					emit.Emit(provision.Logf(provision.Wireless, provision.Success, "Found %s (%s) on scan %d", ad.Name, ad.Address, attempt))
					return nil
				}
			}
			return errNotSeen
		},
		NotifyFunc: func(err error, n int) {
			logger.Debugf("scan attempt %d: %v", n, err)
			emit.Emit(provision.Logf(provision.Wireless, provision.Warning, "Scan %d/%d did not find %s", n, o.Timings.ScanAttempts, address))
		},
		Attempts: o.Timings.ScanAttempts,
		Delay:    o.Timings.ScanRetryDelay,
		Clock:    o.Clock,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if retry.IsRetryStopped(err) {
		return provision.Wrap(provision.Cancelled, ctx.Err())
	}
	emit.Emit(provision.Logf(provision.Wireless, provision.Error, "Device %s not found after %d scans", address, attempt))
	return provision.Wrapf(provision.DeviceNotFound, "%s not seen in %d scans", address, attempt)
}

func (o *Orchestrator) invoke(ctx context.Context, link Link, emit provision.Emitter) error {
	emit.Emit(provision.Logf(provision.QC, provision.Info, "Starting test %d", o.TestIndex))
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return link.SendCommand(ctx, o.TestIndex)
		},
		NotifyFunc: func(err error, n int) {
			emit.Emit(provision.Logf(provision.QC, provision.Warning, "Test command failed (attempt %d): %v", n, err))
		},
		Attempts: o.Timings.InvokeAttempts,
		Delay:    o.Timings.InvokeRetryDelay,
		Clock:    o.Clock,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if retry.IsRetryStopped(err) {
		return provision.Wrap(provision.Cancelled, ctx.Err())
	}
	return provision.Wrap(provision.TestInvokeFailed, retry.LastError(err))
}

// collect gathers notifications for the whole ResultsWindow.
func (o *Orchestrator) collect(ctx context.Context, link Link, emit provision.Emitter) ([]SubTest, error) {
	emit.Emit(provision.Logf(provision.QC, provision.Info, "Waiting %s for results", o.Timings.ResultsWindow))
	var (
		results  []SubTest
		deadline = o.Clock.After(o.Timings.ResultsWindow)
		notes    = link.Notifications()
	)
	for {
		select {
		case payload, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			decoded, err := DecodeResults(payload)
			if err != nil {
				logger.Warningf("dropping notification %q: %v", payload, err)
				continue
			}
			results = append(results, decoded...)
		case <-deadline:
			if len(results) == 0 {
				emit.Emit(provision.Logf(provision.QC, provision.Error, "No test results received within %s", o.Timings.ResultsWindow))
				return nil, provision.TestTimeout
			}
			return results, nil
		case <-ctx.Done():
			return nil, provision.Wrap(provision.Cancelled, ctx.Err())
		}
	}
}
