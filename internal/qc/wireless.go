package qc

import (
	"context"
	"strings"
	"time"
)

// Advertisement is one device seen during a scan.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// Link is a connection to a device under test.
type Link interface {
	// SendCommand asks the device to run the functional test at index.
	SendCommand(ctx context.Context, index int) error
	// Notifications delivers result payloads pushed by the device. The
	// channel is closed on disconnect.
	Notifications() <-chan []byte
	Disconnect() error
}

// Wireless is the radio stack used for QC. Implementations serialise
// access to the adapter.
type Wireless interface {
	// Scan collects advertisements for at most window.
	Scan(ctx context.Context, window time.Duration) ([]Advertisement, error)
	Connect(ctx context.Context, address string) (Link, error)
}

// Target is the device identity learned from telemetry.
type Target struct {
	Address string
	Name    string
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
