// Package ble adapts the host Bluetooth LE adapter to the QC wireless
// interface.
package ble

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"tinygo.org/x/bluetooth"

	"github.com/buckleypaul/dinoflash/internal/qc"
)

var logger = loggo.GetLogger("dinoflash.ble")

// DefaultServiceUUID is the device diagnostics service.
const DefaultServiceUUID = "a07498ca-ad5b-474e-940d-16f1fbe7e8cd"

// UUIDs names the diagnostics service and its characteristics.
type UUIDs struct {
	Service string
	Command string
	Result  string
}

// command is the test trigger written to the command characteristic.
type command struct {
	Cmd   string `json:"cmd"`
	Index int    `json:"index"`
}

// Adapter drives one host adapter. All radio calls are serialised by mu.
type Adapter struct {
	mu      sync.Mutex
	adapter *bluetooth.Adapter
	uuids   UUIDs
	enabled bool
	seen    map[string]bluetooth.Address
}

// New returns an Adapter on the default host adapter.
func New(uuids UUIDs) *Adapter {
	return &Adapter{
		adapter: bluetooth.DefaultAdapter,
		uuids:   uuids,
		seen:    make(map[string]bluetooth.Address),
	}
}

func (a *Adapter) enable() error {
	if a.enabled {
		return nil
	}
	if err := a.adapter.Enable(); err != nil {
		return errors.Annotate(err, "enabling bluetooth adapter")
	}
	a.enabled = true
	return nil
}

// Scan implements qc.Wireless.
func (a *Adapter) Scan(ctx context.Context, window time.Duration) ([]qc.Advertisement, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enable(); err != nil {
		return nil, err
	}

	var (
		resMu sync.Mutex
		found = make(map[string]qc.Advertisement)
		done  = make(chan error, 1)
	)
	go func() {
		done <- a.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			addr := strings.ToUpper(r.Address.String())
			resMu.Lock()
			a.seen[addr] = r.Address
			found[addr] = qc.Advertisement{Address: addr, Name: r.LocalName(), RSSI: r.RSSI}
			resMu.Unlock()
		})
	}()

	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return nil, errors.Annotate(err, "scanning")
		}
	case <-timer.C:
		a.stopScan(done)
	case <-ctx.Done():
		a.stopScan(done)
	}

	resMu.Lock()
	defer resMu.Unlock()
	out := make([]qc.Advertisement, 0, len(found))
	for _, ad := range found {
		out = append(out, ad)
	}
	logger.Debugf("scan saw %d devices", len(out))
	return out, nil
}

func (a *Adapter) stopScan(done <-chan error) {
	if err := a.adapter.StopScan(); err != nil {
		logger.Warningf("stopping scan: %v", err)
	}
	if err := <-done; err != nil {
		logger.Debugf("scan ended: %v", err)
	}
}

// Connect implements qc.Wireless. The address must have been seen by an
// earlier Scan.
func (a *Adapter) Connect(ctx context.Context, address string) (qc.Link, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enable(); err != nil {
		return nil, err
	}
	addr, ok := a.seen[strings.ToUpper(address)]
	if !ok {
		return nil, errors.NotFoundf("advertiser %s", address)
	}
	dev, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, errors.Annotatef(err, "connecting to %s", address)
	}
	l := &link{adapter: a, device: dev, notes: make(chan []byte, 32)}
	if err := l.setup(a.uuids); err != nil {
		dev.Disconnect()
		return nil, errors.Trace(err)
	}
	return l, nil
}

type link struct {
	adapter *Adapter
	device  bluetooth.Device
	command bluetooth.DeviceCharacteristic

	closeOnce sync.Once
	notesMu   sync.Mutex
	closed    bool
	notes     chan []byte
}

func parseUUID(s string) (bluetooth.UUID, error) {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		return bluetooth.UUID{}, errors.NotValidf("uuid %q", s)
	}
	return u, nil
}

func (l *link) setup(uuids UUIDs) error {
	svcUUID, err := parseUUID(uuids.Service)
	if err != nil {
		return err
	}
	cmdUUID, err := parseUUID(uuids.Command)
	if err != nil {
		return err
	}
	resUUID, err := parseUUID(uuids.Result)
	if err != nil {
		return err
	}

	services, err := l.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(services) == 0 {
		return errors.Errorf("diagnostics service %s not found: %v", uuids.Service, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{cmdUUID, resUUID})
	if err != nil {
		return errors.Annotate(err, "discovering characteristics")
	}
	var haveCmd, haveRes bool
	for _, c := range chars {
		switch c.UUID() {
		case cmdUUID:
			l.command = c
			haveCmd = true
		case resUUID:
			if err := c.EnableNotifications(l.deliver); err != nil {
				return errors.Annotate(err, "enabling result notifications")
			}
			haveRes = true
		}
	}
	if !haveCmd || !haveRes {
		return errors.NotFoundf("diagnostics characteristics")
	}
	return nil
}

func (l *link) deliver(buf []byte) {
	payload := append([]byte(nil), buf...)
	l.notesMu.Lock()
	defer l.notesMu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.notes <- payload:
	default:
		logger.Warningf("dropping notification, buffer full")
	}
}

// SendCommand implements qc.Link.
func (l *link) SendCommand(ctx context.Context, index int) error {
	payload, err := json.Marshal(command{Cmd: "run_test", Index: index})
	if err != nil {
		return errors.Trace(err)
	}
	l.adapter.mu.Lock()
	defer l.adapter.mu.Unlock()
	if _, err := l.command.WriteWithoutResponse(payload); err != nil {
		return errors.Annotate(err, "writing test command")
	}
	return nil
}

// Notifications implements qc.Link.
func (l *link) Notifications() <-chan []byte { return l.notes }

// Disconnect implements qc.Link.
func (l *link) Disconnect() error {
	var err error
	l.closeOnce.Do(func() {
		l.adapter.mu.Lock()
		err = l.device.Disconnect()
		l.adapter.mu.Unlock()

		l.notesMu.Lock()
		l.closed = true
		close(l.notes)
		l.notesMu.Unlock()
	})
	return errors.Trace(err)
}
