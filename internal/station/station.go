// Package station runs provisioning sessions for the interactive front end
// and reports their progress as bubbletea messages.
package station

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/qc"
	"github.com/buckleypaul/dinoflash/internal/serial"
	"github.com/buckleypaul/dinoflash/internal/session"
)

var logger = loggo.GetLogger("dinoflash.station")

// EventMsg carries a session event to the pages.
type EventMsg struct {
	Event provision.Event
}

// PortStatusMsg is sent when the attached-port status changes.
type PortStatusMsg struct {
	Resolution serial.Resolution
}

// RegistryStatusMsg reports whether the build registry answered.
type RegistryStatusMsg struct {
	Online bool
}

// SessionDoneMsg is sent when provisioning finishes.
type SessionDoneMsg struct {
	Outcome session.Outcome
}

// QCDoneMsg is sent when a QC run finishes.
type QCDoneMsg struct {
	Report qc.Report
	Err    error
}

// ErrBusy is returned when an operation is already running.
const ErrBusy = errors.ConstError("a session step is already running")

// Pinger checks the registry.
type Pinger interface {
	Online(ctx context.Context) bool
}

// Station owns at most one session at a time.
type Station struct {
	Deps session.Deps
	// Options returns the settings for a new session in mode.
	Options func(mode provision.Mode) session.Options
	Watcher *serial.Watcher
	Pinger  Pinger

	send func(tea.Msg)

	mu      sync.Mutex
	current *session.Session
	cancel  context.CancelFunc
	busy    bool
	// pinned is the operator's choice among several matching ports.
	pinned string
}

// SetSender wires the program that receives asynchronous messages. It must
// be called before the program starts.
func (s *Station) SetSender(send func(tea.Msg)) {
	s.send = send
}

func (s *Station) emit(e provision.Event) {
	if s.send != nil {
		s.send(EventMsg{Event: e})
	}
}

func (s *Station) begin() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrBusy
	}
	s.busy = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	return ctx, nil
}

func (s *Station) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Busy reports whether a session step is running.
func (s *Station) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Provision closes any previous session and provisions a new device.
func (s *Station) Provision(mode provision.Mode) tea.Cmd {
	ctx, err := s.begin()
	if err != nil {
		return nil
	}
	s.closeCurrent()
	opts := s.Options(mode)
	if opts.Port == "" {
		opts.Port = s.Port()
	}
	sess := session.New(s.Deps, opts, provision.EmitFunc(s.emit))
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	return func() tea.Msg {
		defer s.end()
		out := sess.Provision(ctx)
		logger.Infof("session %s finished: %s", out.ID, outcomeWord(out))
		return SessionDoneMsg{Outcome: out}
	}
}

func outcomeWord(o session.Outcome) string {
	if o.Success() {
		return "success"
	}
	return o.Reason()
}

// RunQC tests the device of the current session.
func (s *Station) RunQC() tea.Cmd {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return func() tea.Msg {
			return QCDoneMsg{Err: errors.New("no provisioned device; start a session first")}
		}
	}
	ctx, err := s.begin()
	if err != nil {
		return nil
	}
	return func() tea.Msg {
		defer s.end()
		report, err := sess.RunQC(ctx)
		return QCDoneMsg{Report: report, Err: err}
	}
}

// Stop cancels the running step.
func (s *Station) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Finish closes the current session, publishing its log. It returns
// ErrBusy while a step is running.
func (s *Station) Finish() error {
	if s.Busy() {
		return ErrBusy
	}
	s.closeCurrent()
	return nil
}

// Shutdown cancels the running step and closes the current session once
// that step returns.
func (s *Station) Shutdown() {
	s.Stop()
	s.closeCurrent()
}

func (s *Station) closeCurrent() {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// SetPort pins new sessions to port until it is unplugged. An empty port
// returns to automatic resolution.
func (s *Station) SetPort(port string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = port
}

// Port returns the pinned port, if any.
func (s *Station) Port() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned
}

// observePorts drops a pinned port that is no longer attached.
func (s *Station) observePorts(r serial.Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinned != "" && !r.Has(s.pinned) {
		logger.Infof("pinned port %s went away", s.pinned)
		s.pinned = ""
	}
}

// WatchPorts reports port transitions until ctx is done.
func (s *Station) WatchPorts(ctx context.Context) {
	if s.Watcher == nil {
		return
	}
	err := s.Watcher.Run(ctx, func(r serial.Resolution) {
		s.observePorts(r)
		if s.send != nil {
			s.send(PortStatusMsg{Resolution: r})
		}
	})
	if err != nil {
		logger.Errorf("port watcher: %v", err)
	}
}

// CheckRegistry pings the registry.
func (s *Station) CheckRegistry() tea.Cmd {
	if s.Pinger == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return RegistryStatusMsg{Online: s.Pinger.Online(ctx)}
	}
}
