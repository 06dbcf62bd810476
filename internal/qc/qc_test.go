package qc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/provision"
)

const deviceAddr = "AA:BB:CC:DD:EE:FF"

var fastTimings = Timings{
	ReadyTimeout:     50 * time.Millisecond,
	ScanWindow:       10 * time.Millisecond,
	ScanAttempts:     3,
	ScanRetryDelay:   5 * time.Millisecond,
	Settle:           time.Millisecond,
	InvokeAttempts:   2,
	InvokeRetryDelay: time.Millisecond,
	ResultsWindow:    30 * time.Millisecond,
}

type fakeLink struct {
	mu           sync.Mutex
	sendErrs     []error
	sends        int
	payloads     []string
	notes        chan []byte
	disconnected bool
}

func (l *fakeLink) SendCommand(ctx context.Context, index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sends++
	if len(l.sendErrs) > 0 {
		err := l.sendErrs[0]
		l.sendErrs = l.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, p := range l.payloads {
		l.notes <- []byte(p)
	}
	return nil
}

func (l *fakeLink) Notifications() <-chan []byte { return l.notes }

func (l *fakeLink) Disconnect() error {
	l.mu.Lock()
	l.disconnected = true
	l.mu.Unlock()
	return nil
}

type fakeWireless struct {
	// scans lists the advertisements returned per scan; later scans reuse
	// the last entry.
	scans      [][]Advertisement
	scanCount  int
	link       *fakeLink
	connectErr error
}

func (w *fakeWireless) Scan(ctx context.Context, window time.Duration) ([]Advertisement, error) {
	i := w.scanCount
	w.scanCount++
	select {
	case <-time.After(window):
	case <-ctx.Done():
	}
	if len(w.scans) == 0 {
		return nil, nil
	}
	if i >= len(w.scans) {
		i = len(w.scans) - 1
	}
	return w.scans[i], nil
}

func (w *fakeWireless) Connect(ctx context.Context, address string) (Link, error) {
	if w.connectErr != nil {
		return nil, w.connectErr
	}
	return w.link, nil
}

func newLink(payloads ...string) *fakeLink {
	return &fakeLink{payloads: payloads, notes: make(chan []byte, 16)}
}

func newTestOrchestrator(w Wireless) *Orchestrator {
	o := New(w, clock.WallClock)
	o.Timings = fastTimings
	return o
}

func readyNow(addr string) <-chan Target {
	ch := make(chan Target, 1)
	ch <- Target{Address: addr, Name: "Dino-1234"}
	return ch
}

const passingResult = `{"name":"microphone_balance","status":"pass","details":"ok","evaluation_data":{"rms_L":0.50,"rms_R":0.52}}`

func TestRunPasses(t *testing.T) {
	link := newLink(passingResult, `[{"name":"speaker","status":"PASS"}]`)
	w := &fakeWireless{scans: [][]Advertisement{{{Address: "aa:bb:cc:dd:ee:ff", Name: "Dino-1234"}}}, link: link}

	report, err := newTestOrchestrator(w).Run(context.Background(), readyNow(deviceAddr), provision.Discard)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Passed || len(report.Lines) != 2 {
		t.Fatalf("expected 2 passing lines, got %+v", report)
	}
	if report.Summary() != "2/2 tests passed" {
		t.Errorf("unexpected summary %q", report.Summary())
	}
	if report.Lines[0].Balance == nil || !report.Lines[0].Balanced {
		t.Errorf("expected balanced first line, got %+v", report.Lines[0])
	}
	if !link.disconnected {
		t.Error("expected disconnect")
	}
}

func TestDiscoverMissThenHit(t *testing.T) {
	w := &fakeWireless{scans: [][]Advertisement{
		{{Address: "11:22:33:44:55:66"}},
		{{Address: deviceAddr}},
	}}
	o := newTestOrchestrator(w)
	if err := o.Discover(context.Background(), deviceAddr, provision.Discard); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if w.scanCount != 2 {
		t.Errorf("expected 2 scans, got %d", w.scanCount)
	}
}

func TestDiscoverBounded(t *testing.T) {
	w := &fakeWireless{}
	o := newTestOrchestrator(w)

	start := time.Now()
	err := o.Discover(context.Background(), deviceAddr, provision.Discard)
	elapsed := time.Since(start)

	if !errors.Is(err, provision.DeviceNotFound) {
		t.Fatalf("expected DeviceNotFound, got %v", err)
	}
	if w.scanCount != 3 {
		t.Errorf("expected 3 scans, got %d", w.scanCount)
	}
	limit := 3*(fastTimings.ScanWindow+fastTimings.ScanRetryDelay) + 200*time.Millisecond
	if elapsed > limit {
		t.Errorf("discover took %s, limit %s", elapsed, limit)
	}
}

func TestAwaitReadyTimeout(t *testing.T) {
	o := newTestOrchestrator(&fakeWireless{})
	_, err := o.Run(context.Background(), make(chan Target), provision.Discard)
	if !errors.Is(err, provision.ReadyTimeout) {
		t.Fatalf("expected ReadyTimeout, got %v", err)
	}
}

func TestConnectFailed(t *testing.T) {
	w := &fakeWireless{scans: [][]Advertisement{{{Address: deviceAddr}}}, connectErr: errors.New("le-connection-abort")}
	_, err := newTestOrchestrator(w).Run(context.Background(), readyNow(deviceAddr), provision.Discard)
	if !errors.Is(err, provision.ConnectFailed) {
		t.Fatalf("expected ConnectFailed, got %v", err)
	}
}

func TestInvokeRetriesOnce(t *testing.T) {
	link := newLink(passingResult)
	link.sendErrs = []error{errors.New("gatt busy"), nil}
	w := &fakeWireless{scans: [][]Advertisement{{{Address: deviceAddr}}}, link: link}

	if _, err := newTestOrchestrator(w).Run(context.Background(), readyNow(deviceAddr), provision.Discard); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if link.sends != 2 {
		t.Errorf("expected 2 sends, got %d", link.sends)
	}
}

func TestInvokeFailsAfterTwoAttempts(t *testing.T) {
	link := newLink()
	link.sendErrs = []error{errors.New("gatt busy"), errors.New("gatt busy"), nil}
	w := &fakeWireless{scans: [][]Advertisement{{{Address: deviceAddr}}}, link: link}

	_, err := newTestOrchestrator(w).Run(context.Background(), readyNow(deviceAddr), provision.Discard)
	if !errors.Is(err, provision.TestInvokeFailed) {
		t.Fatalf("expected TestInvokeFailed, got %v", err)
	}
	if link.sends != 2 {
		t.Errorf("expected 2 sends, got %d", link.sends)
	}
	if !link.disconnected {
		t.Error("expected disconnect after failure")
	}
}

func TestNoResultsIsTimeout(t *testing.T) {
	link := newLink("not json")
	w := &fakeWireless{scans: [][]Advertisement{{{Address: deviceAddr}}}, link: link}

	_, err := newTestOrchestrator(w).Run(context.Background(), readyNow(deviceAddr), provision.Discard)
	if !errors.Is(err, provision.TestTimeout) {
		t.Fatalf("expected TestTimeout, got %v", err)
	}
}

func TestOneFailingSubTestFailsQC(t *testing.T) {
	link := newLink(passingResult, `{"name":"speaker","status":"fail","details":"no signal"}`)
	w := &fakeWireless{scans: [][]Advertisement{{{Address: deviceAddr}}}, link: link}

	report, err := newTestOrchestrator(w).Run(context.Background(), readyNow(deviceAddr), provision.Discard)
	if !errors.Is(err, provision.QCFailed) {
		t.Fatalf("expected QCFailed, got %v", err)
	}
	if report.Passed || report.PassedCount() != 1 {
		t.Errorf("expected 1 of 2 passing, got %+v", report)
	}
}

func TestCancelStopsDiscovery(t *testing.T) {
	w := &fakeWireless{}
	o := newTestOrchestrator(w)
	o.Timings.ScanRetryDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := o.Discover(ctx, deviceAddr, provision.Discard)
	if !errors.Is(err, provision.Cancelled) {
		t.Fatalf("expected Cancelled, got %v", err)
	}
}
