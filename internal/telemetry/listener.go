// Package telemetry watches the device's serial log after flashing and
// reports when it is ready for a wireless connection.
package telemetry

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo"

	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/serial"
)

var logger = loggo.GetLogger("dinoflash.telemetry")

const (
	// ReadyMarker is printed once advertising has started.
	ReadyMarker = "The device is now discoverable and ready for connection!"

	// DefaultReadTimeout bounds each serial read so the loop can notice
	// cancellation.
	DefaultReadTimeout = 100 * time.Millisecond
	// DefaultPresenceInterval is how often an idle port is checked for
	// removal.
	DefaultPresenceInterval = time.Second
)

var (
	macPattern  = regexp.MustCompile(`Bluetooth MAC: ([\w:]+)`)
	namePattern = regexp.MustCompile(`Setting device name to: ([\w-]+)`)
)

// Capture is the wireless identity announced during one boot.
type Capture struct {
	Address string
	Name    string
}

// Complete reports whether both halves have been seen.
func (c Capture) Complete() bool {
	return c.Address != "" && c.Name != ""
}

// Listener reads telemetry from one port.
type Listener struct {
	Port  string
	Baud  int
	Open  serial.Opener
	List  serial.Lister
	Clock clock.Clock
	// PresenceInterval throttles the attached-port check made while the
	// line is idle.
	PresenceInterval time.Duration

	capture Capture
}

// New returns a Listener for port at baud using the system port list.
func New(port string, baud int) *Listener {
	return &Listener{
		Port:             port,
		Baud:             baud,
		Open:             serial.TimeoutOpener(DefaultReadTimeout),
		List:             serial.ListPorts,
		Clock:            clock.WallClock,
		PresenceInterval: DefaultPresenceInterval,
	}
}

// Listen relays lines until ctx is done or the port goes away. A
// KindDeviceReady event is emitted each time a complete identity is
// followed by the ready marker; the captured pair is cleared afterwards so
// a later boot is captured on its own. When the port disappears or a read
// fails a KindDisconnected event is emitted and Listen returns nil.
func (l *Listener) Listen(ctx context.Context, emit provision.Emitter) error {
	conn, err := l.Open(l.Port, l.Baud)
	if err != nil {
		emit.Emit(provision.Logf(provision.Serial, provision.Error, "Could not open %s: %v", l.Port, err))
		l.disconnected(emit)
		return err
	}
	defer conn.Close()
	emit.Emit(provision.Logf(provision.Serial, provision.Info, "Listening on %s at %d baud", l.Port, l.Baud))

	var (
		lines     serial.LineBuffer
		buf       = make([]byte, 1024)
		lastCheck = l.Clock.Now()
	)
	for {
		select {
		case <-ctx.Done():
			logger.Debugf("listener on %s stopped", l.Port)
			return nil
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			emit.Emit(provision.Logf(provision.Serial, provision.Warning, "Serial read failed on %s: %v", l.Port, err))
			l.disconnected(emit)
			return nil
		}
		if n > 0 {
			for _, line := range lines.Feed(buf[:n]) {
				l.handleLine(line, emit)
			}
			continue
		}

		if now := l.Clock.Now(); now.Sub(lastCheck) >= l.PresenceInterval {
			lastCheck = now
			if !serial.Present(l.List, l.Port) {
				emit.Emit(provision.Logf(provision.Serial, provision.Warning, "Port %s disconnected", l.Port))
				l.disconnected(emit)
				return nil
			}
		}
	}
}

func (l *Listener) disconnected(emit provision.Emitter) {
	emit.Emit(provision.Event{Time: l.Clock.Now(), Kind: provision.KindDisconnected, Category: provision.Serial, Message: l.Port})
}

func (l *Listener) handleLine(line string, emit provision.Emitter) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	emit.Emit(provision.Event{Time: l.Clock.Now(), Kind: provision.KindLog, Severity: provision.Info, Category: provision.Serial, Message: line})

	if m := macPattern.FindStringSubmatch(line); m != nil {
		l.capture.Address = strings.ToUpper(m[1])
		logger.Debugf("captured address %s", l.capture.Address)
	}
	if m := namePattern.FindStringSubmatch(line); m != nil {
		l.capture.Name = m[1]
		logger.Debugf("captured name %s", l.capture.Name)
	}
	if !strings.Contains(line, ReadyMarker) {
		return
	}
	if !l.capture.Complete() {
		logger.Debugf("ready marker before identity was complete: %+v", l.capture)
		return
	}
	emit.Emit(provision.Event{
		Time:     l.Clock.Now(),
		Kind:     provision.KindDeviceReady,
		Severity: provision.Success,
		Category: provision.Wireless,
		Message:  "Device ready for connection",
		Address:  l.capture.Address,
		Name:     l.capture.Name,
	})
	l.capture = Capture{}
}
