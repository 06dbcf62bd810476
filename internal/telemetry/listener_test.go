package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock"

	"github.com/buckleypaul/dinoflash/internal/provision"
	"github.com/buckleypaul/dinoflash/internal/serial"
)

type fakeConn struct {
	mu     sync.Mutex
	chunks []string
	err    error
	closed atomic.Bool
}

func (c *fakeConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.chunks) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []provision.Event
}

func (r *recorder) Emit(e provision.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) of(k provision.EventKind) []provision.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []provision.Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func newTestListener(conn *fakeConn, present *atomic.Bool) *Listener {
	return &Listener{
		Port: "/dev/ttyACM0",
		Baud: serial.DefaultMonitorBaud,
		Open: func(string, int) (serial.Conn, error) { return conn, nil },
		List: func() ([]serial.PortInfo, error) {
			if present.Load() {
				return []serial.PortInfo{{Name: "/dev/ttyACM0"}}, nil
			}
			return nil, nil
		},
		Clock: clock.WallClock,
	}
}

const bootLog = "I (312) app: Bluetooth MAC: aa:bb:cc:dd:ee:ff\r\n" +
	"I (315) app: Setting device name to: Dino-1234\r\n" +
	"I (900) app: The device is now discoverable and ready for connection!\r\n"

func TestListenEmitsReadyOnce(t *testing.T) {
	conn := &fakeConn{chunks: []string{bootLog[:20], bootLog[20:]}}
	var present atomic.Bool
	present.Store(true)
	l := newTestListener(conn, &present)

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Listen(ctx, rec) }()

	deadline := time.After(2 * time.Second)
	for len(rec.of(provision.KindDeviceReady)) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ready")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ready := rec.of(provision.KindDeviceReady)
	if len(ready) != 1 {
		t.Fatalf("expected 1 ready event, got %d", len(ready))
	}
	if ready[0].Address != "AA:BB:CC:DD:EE:FF" || ready[0].Name != "Dino-1234" {
		t.Errorf("unexpected identity %q %q", ready[0].Address, ready[0].Name)
	}
	if len(rec.of(provision.KindLog)) < 3 {
		t.Error("expected every line relayed")
	}
	if !conn.closed.Load() {
		t.Error("expected port closed")
	}
}

func TestReadyClearsCaptureForNextBoot(t *testing.T) {
	l := &Listener{Clock: clock.WallClock}
	rec := &recorder{}
	l.handleLine("Bluetooth MAC: 11:22:33:44:55:66", rec)
	l.handleLine("Setting device name to: Dino-A", rec)
	l.handleLine(ReadyMarker, rec)
	// Marker repeated without a fresh identity.
	l.handleLine(ReadyMarker, rec)
	l.handleLine("Bluetooth MAC: 11:22:33:44:55:77", rec)
	l.handleLine("Setting device name to: Dino-B", rec)
	l.handleLine(ReadyMarker, rec)

	ready := rec.of(provision.KindDeviceReady)
	if len(ready) != 2 {
		t.Fatalf("expected 2 ready events, got %d", len(ready))
	}
	if ready[1].Name != "Dino-B" || ready[1].Address != "11:22:33:44:55:77" {
		t.Errorf("second boot captured %+v", ready[1])
	}
}

func TestReadyNeedsBothHalves(t *testing.T) {
	l := &Listener{Clock: clock.WallClock}
	rec := &recorder{}
	l.handleLine("Bluetooth MAC: 11:22:33:44:55:66", rec)
	l.handleLine(ReadyMarker, rec)
	l.handleLine("garbage Setting device name", rec)
	if n := len(rec.of(provision.KindDeviceReady)); n != 0 {
		t.Errorf("expected no ready event, got %d", n)
	}
}

func TestListenPortDisappears(t *testing.T) {
	conn := &fakeConn{}
	var present atomic.Bool
	l := newTestListener(conn, &present)

	rec := &recorder{}
	if err := l.Listen(context.Background(), rec); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if n := len(rec.of(provision.KindDisconnected)); n != 1 {
		t.Errorf("expected 1 disconnected event, got %d", n)
	}
}

func TestListenReadError(t *testing.T) {
	conn := &fakeConn{err: errors.New("device reports readiness to read but returned no data")}
	var present atomic.Bool
	present.Store(true)
	l := newTestListener(conn, &present)

	rec := &recorder{}
	if err := l.Listen(context.Background(), rec); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if n := len(rec.of(provision.KindDisconnected)); n != 1 {
		t.Errorf("expected 1 disconnected event, got %d", n)
	}
}

func TestListenOpenFailure(t *testing.T) {
	l := &Listener{
		Port:  "/dev/ttyACM9",
		Open:  func(string, int) (serial.Conn, error) { return nil, errors.New("busy") },
		Clock: clock.WallClock,
	}
	rec := &recorder{}
	if err := l.Listen(context.Background(), rec); err == nil {
		t.Fatal("expected error")
	}
	if n := len(rec.of(provision.KindDisconnected)); n != 1 {
		t.Errorf("expected 1 disconnected event, got %d", n)
	}
}
