package session

import (
	"context"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"github.com/buckleypaul/dinoflash/internal/alert"
	"github.com/buckleypaul/dinoflash/internal/hwversion"
	"github.com/buckleypaul/dinoflash/internal/provision"
)

// Provision runs every stage up to the device reporting ready. Stages run
// strictly in order and the first failure skips the rest. The outcome is
// always published; on failure the session is closed as well.
func (s *Session) Provision(ctx context.Context) Outcome {
	if !s.enter() {
		return Outcome{ID: s.ID, Mode: s.opts.Mode, Target: s.opts.Target, Err: provision.Wrap(provision.Cancelled, ErrClosed)}
	}
	out := s.provision(ctx)
	s.steps.Done()
	if out.Err != nil {
		s.Close()
	}
	return out
}

func (s *Session) provision(ctx context.Context) Outcome {
	s.started = s.deps.Clock.Now()
	s.outcome = Outcome{ID: s.ID, Mode: s.opts.Mode, Target: s.opts.Target, Started: s.started}
	if s.deps.Watcher != nil {
		s.deps.Watcher.Pause()
	}
	s.deps.Alert.Play(alert.Start)
	s.logf(provision.System, provision.Info, "Session %s started (%s mode)", s.ID, s.opts.Mode)

	err := s.run(ctx)
	s.outcome.Err = err
	s.outcome.Duration = s.deps.Clock.Now().Sub(s.started)

	if err != nil {
		if errors.Is(err, provision.Cancelled) {
			s.logf(provision.System, provision.Warning, "Session cancelled after %s", s.outcome.Duration.Round(100*time.Millisecond))
		} else {
			s.logf(provision.System, provision.Error, "Session failed: %v", err)
		}
		s.deps.Alert.Play(alert.Failure)
	} else {
		s.provisioned = true
		s.logf(provision.System, provision.Success, "Device provisioned in %s", s.outcome.Duration.Round(100*time.Millisecond))
		s.deps.Alert.Play(alert.Success)
	}
	s.Emit(provision.Event{Kind: provision.KindOutcome, Severity: severityOf(err), Category: provision.System, Message: outcomeMessage(err), Payload: s.outcome})
	s.publishOutcome()
	return s.outcome
}

func severityOf(err error) provision.Severity {
	if err != nil {
		return provision.Error
	}
	return provision.Success
}

func outcomeMessage(err error) string {
	if err != nil {
		return "FAILED: " + err.Error()
	}
	return "SUCCESS"
}

func (s *Session) publishOutcome() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.deps.Sink.PublishOutcome(ctx, s.outcome.Record()); err != nil {
		logger.Warningf("publishing outcome: %v", err)
	}
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return provision.Wrap(provision.Cancelled, err)
	}
	return nil
}

func (s *Session) run(ctx context.Context) error {
	var target hwversion.Version
	if s.opts.Mode == provision.Testing {
		v, err := hwversion.Parse(s.opts.Target)
		if err != nil {
			return errors.Trace(err)
		}
		target = v
	}

	port, err := s.resolve()
	if err != nil {
		return err
	}
	s.outcome.Port = port

	if err := cancelled(ctx); err != nil {
		return err
	}
	flashVersion, err := s.settleIdentity(ctx, port, target)
	if err != nil {
		return err
	}
	s.outcome.FlashVersion = flashVersion

	if err := cancelled(ctx); err != nil {
		return err
	}
	set, err := s.deps.Firmware.Acquire(ctx, s.opts.Mode, flashVersion, s)
	if err != nil {
		return err
	}
	s.outcome.Build = set.Build.Name

	if err := cancelled(ctx); err != nil {
		return err
	}
	if err := s.deps.Flasher.Flash(port, set, s); err != nil {
		return err
	}

	return s.awaitReady(ctx, port)
}

func (s *Session) resolve() (string, error) {
	if s.opts.Port != "" {
		s.logf(provision.Serial, provision.Info, "Using port %s", s.opts.Port)
		return s.opts.Port, nil
	}
	res, err := s.deps.Resolver.Resolve()
	if err != nil {
		return "", provision.Wrap(provision.NoPortFound, err)
	}
	if err := res.Err(); err != nil {
		s.logf(provision.Serial, provision.Error, "Port resolution: %v", err)
		return "", err
	}
	s.logf(provision.Serial, provision.Info, "Device found on %s", res.Port)
	return res.Port, nil
}

// settleIdentity returns the version to flash for. In testing mode the
// target is burned and verified; a failed burn falls back to an existing
// record. Production mode only reads.
func (s *Session) settleIdentity(ctx context.Context, port string, target hwversion.Version) (hwversion.Version, error) {
	id := s.deps.Identity
	if s.opts.Mode != provision.Testing {
		v, ok := id.Read(ctx, port, s)
		if !ok {
			s.logf(provision.Identity, provision.Error, "No hardware version on device")
			return hwversion.Version{}, provision.NoExistingIdentity
		}
		s.logf(provision.Identity, provision.Success, "Device hardware version %s", v)
		return v, nil
	}

	if !id.Burn(ctx, port, target, s) {
		s.logf(provision.Identity, provision.Warning, "Burn failed, reading existing hardware version")
		v, ok := id.Read(ctx, port, s)
		if !ok {
			s.logf(provision.Identity, provision.Error, "Burn failed and no existing hardware version found")
			return hwversion.Version{}, provision.Wrapf(provision.BurnFailed, "burning %s on %s", target, port)
		}
		s.logf(provision.Identity, provision.Warning, "Using existing hardware version %s", v)
		return v, nil
	}

	if s.opts.BurnSettle > 0 {
		select {
		case <-s.deps.Clock.After(s.opts.BurnSettle):
		case <-ctx.Done():
			return hwversion.Version{}, provision.Wrap(provision.Cancelled, ctx.Err())
		}
	}
	got, ok := id.Read(ctx, port, s)
	if !ok {
		s.logf(provision.Identity, provision.Error, "Verification failed: version unreadable after burn")
		return hwversion.Version{}, provision.Wrapf(provision.BurnVerifyMismatch, "wrote %s, read nothing", target)
	}
	if got != target {
		s.logf(provision.Identity, provision.Error, "Verification failed: wrote %s, read %s", target, got)
		return hwversion.Version{}, provision.Wrapf(provision.BurnVerifyMismatch, "wrote %s, read %s", target, got)
	}
	s.logf(provision.Identity, provision.Success, "Hardware version %s burned and verified", target)
	return target, nil
}

// awaitReady hands the port to the telemetry listener and waits for the
// ready marker. The listener keeps running after ready until Close.
func (s *Session) awaitReady(ctx context.Context, port string) error {
	// A fresh flash invalidates any earlier capture.
	s.drainReady()

	listenCtx, stop := context.WithCancel(context.Background())
	s.stopListener = stop
	s.listeners = &errgroup.Group{}
	l := s.deps.Listen(port)
	s.listeners.Go(func() error {
		return l.Listen(listenCtx, s)
	})

	var timeout <-chan time.Time
	if s.opts.ListenTimeout > 0 {
		timeout = s.deps.Clock.After(s.opts.ListenTimeout)
	}

	s.logf(provision.Serial, provision.Info, "Waiting for device to report ready")
	select {
	case t := <-s.readySig:
		s.outcome.WirelessAddress = t.Address
		s.outcome.WirelessName = t.Name
		return nil
	case <-s.lostSig:
		return provision.Wrapf(provision.ReadyTimeout, "device on %s disconnected before reporting ready", port)
	case <-timeout:
		s.logf(provision.Serial, provision.Error, "Device did not report ready within %s", s.opts.ListenTimeout)
		return provision.Wrapf(provision.ReadyTimeout, "no ready marker within %s", s.opts.ListenTimeout)
	case <-ctx.Done():
		return provision.Wrap(provision.Cancelled, ctx.Err())
	}
}

func (s *Session) drainReady() {
	select {
	case <-s.ready:
	default:
	}
	select {
	case <-s.readySig:
	default:
	}
	select {
	case <-s.lostSig:
	default:
	}
}
