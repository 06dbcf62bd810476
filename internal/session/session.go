// Package session sequences one device through the provisioning pipeline:
// resolve the port, settle its hardware identity, download and flash the
// firmware, then wait for the device to announce itself over telemetry so
// wireless QC can run.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"golang.org/x/sync/errgroup"

	"github.com/buckleypaul/dinoflash/internal/alert"
	"github.com/buckleypaul/dinoflash/internal/firmware"
	"github.com/buckleypaul/dinoflash/internal/hwversion"
	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/qc"
	"github.com/buckleypaul/dinoflash/internal/serial"
	"github.com/buckleypaul/dinoflash/internal/sink"
)

var logger = loggo.GetLogger("dinoflash.session")

const publishTimeout = 15 * time.Second

// ErrClosed is returned by steps started after Close.
const ErrClosed = errors.ConstError("session closed")

// PortResolver finds the device port.
type PortResolver interface {
	Resolve() (serial.Resolution, error)
}

// IdentityStore burns and reads the hardware-version record.
type IdentityStore interface {
	Burn(ctx context.Context, port string, v hwversion.Version, emit provision.Emitter) bool
	Read(ctx context.Context, port string, emit provision.Emitter) (hwversion.Version, bool)
}

// FirmwareSource downloads the build for a mode and version.
type FirmwareSource interface {
	Acquire(ctx context.Context, mode provision.Mode, v hwversion.Version, emit provision.Emitter) (firmware.ArtifactSet, error)
}

// Flasher writes a build to the device.
type Flasher interface {
	Flash(port string, set firmware.ArtifactSet, emit provision.Emitter) error
}

// Listener relays device telemetry until ctx is done or the port goes away.
type Listener interface {
	Listen(ctx context.Context, emit provision.Emitter) error
}

// QCRunner runs wireless QC once a ready target is available.
type QCRunner interface {
	Run(ctx context.Context, ready <-chan qc.Target, emit provision.Emitter) (qc.Report, error)
}

// PortWatcher is paused while a session owns the port.
type PortWatcher interface {
	Pause()
	Resume()
}

// Deps are the collaborators shared by every session on a station.
type Deps struct {
	Resolver PortResolver
	Identity IdentityStore
	Firmware FirmwareSource
	Flasher  Flasher
	// Listen builds a telemetry listener for a port.
	Listen func(port string) Listener
	QC     QCRunner
	Sink   sink.Sink
	Alert  alert.Alerter
	// Watcher is optional.
	Watcher PortWatcher
	Clock   clock.Clock
}

// Options are the per-session settings.
type Options struct {
	Mode provision.Mode
	// Target is the hardware version to burn in testing mode. Production
	// mode ignores it.
	Target string
	// Port skips resolution when set.
	Port       string
	BurnSettle time.Duration
	// ListenTimeout bounds the wait for the ready marker after flashing.
	// Zero waits until the port disappears or ctx is done.
	ListenTimeout time.Duration
}

// Session is one provisioning attempt for one device. Provision and RunQC
// run one at a time; Close may be called from any goroutine and waits for
// the running step to return.
type Session struct {
	ID   string
	deps Deps
	opts Options

	events   chan provision.Event
	observer provision.Emitter
	consumed chan struct{}

	// Owned by the consumer goroutine until consumed is closed.
	log []string

	// ready holds at most one unconsumed target. Written only by the
	// consumer, read-then-cleared by RunQC.
	ready    chan qc.Target
	readySig chan qc.Target
	lostSig  chan struct{}

	started      time.Time
	provisioned  bool
	outcome      Outcome
	stopListener context.CancelFunc
	listeners    *errgroup.Group

	mu        sync.Mutex
	closing   bool
	steps     sync.WaitGroup
	closeOnce sync.Once
}

// New starts a session. observer receives every event after the session
// has recorded it; it may be nil.
func New(deps Deps, opts Options, observer provision.Emitter) *Session {
	if deps.Sink == nil {
		deps.Sink = sink.Nop{}
	}
	if deps.Alert == nil {
		deps.Alert = alert.Silent{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if observer == nil {
		observer = provision.Discard
	}
	s := &Session{
		ID:       uuid.NewString(),
		deps:     deps,
		opts:     opts,
		events:   make(chan provision.Event, 256),
		observer: observer,
		consumed: make(chan struct{}),
		ready:    make(chan qc.Target, 1),
		readySig: make(chan qc.Target, 1),
		lostSig:  make(chan struct{}, 1),
	}
	go s.consume()
	return s
}

// Emit implements provision.Emitter for the session's producers.
func (s *Session) Emit(e provision.Event) {
	if e.Time.IsZero() {
		e.Time = s.deps.Clock.Now()
	}
	s.events <- e
}

// consume is the only writer of the session log and the ready slot.
func (s *Session) consume() {
	defer close(s.consumed)
	for e := range s.events {
		switch e.Kind {
		case provision.KindProgress, provision.KindProgressShown, provision.KindProgressHidden:
		default:
			s.log = append(s.log, e.String())
		}
		switch e.Kind {
		case provision.KindDeviceReady:
			t := qc.Target{Address: e.Address, Name: e.Name}
			replace(s.ready, t)
			replace(s.readySig, t)
		case provision.KindDisconnected:
			signal(s.lostSig)
		}
		if e.Kind == provision.KindLog {
			logger.Debugf("[%s] %s", e.Category, e.Message)
		}
		s.observer.Emit(e)
	}
}

// replace leaves t as the only value in a one-slot channel. Only the
// consumer sends, so the send cannot block.
func replace(ch chan qc.Target, t qc.Target) {
	select {
	case <-ch:
	default:
	}
	ch <- t
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Session) logf(cat provision.Category, sev provision.Severity, format string, args ...interface{}) {
	e := provision.Logf(cat, sev, format, args...)
	e.Time = s.deps.Clock.Now()
	s.Emit(e)
}

// enter registers a running step. It fails once Close has started.
func (s *Session) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.steps.Add(1)
	return true
}

// Close waits for a running Provision or RunQC to return, then stops the
// telemetry listener, publishes the session log and hands the port back to
// the watcher. Cancel the step's context first to keep the wait short. It
// is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.steps.Wait()

		if s.stopListener != nil {
			s.stopListener()
			if err := s.listeners.Wait(); err != nil {
				logger.Warningf("telemetry listener: %v", err)
			}
		}
		close(s.events)
		<-s.consumed

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		l := sink.Log{SessionID: s.ID, Port: s.outcome.Port, Timestamp: s.started, Lines: s.log}
		if err := s.deps.Sink.PublishLog(ctx, l); err != nil {
			logger.Warningf("publishing session log: %v", err)
		}
		if s.deps.Watcher != nil {
			s.deps.Watcher.Resume()
		}
	})
}

// Log returns the accumulated session log. It is complete only after Close.
func (s *Session) Log() []string {
	<-s.consumed
	return append([]string(nil), s.log...)
}
