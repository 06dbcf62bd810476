package provision

import (
	"fmt"
	"time"
)

// Severity is set by the component that produces an event. Consumers never
// infer it from the message text.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "info"
}

// Category names the subsystem an event came from.
type Category string

const (
	System   Category = "system"
	Identity Category = "identity"
	Firmware Category = "firmware"
	Flash    Category = "flash"
	Serial   Category = "serial"
	Wireless Category = "wireless"
	QC       Category = "qc"
)

// EventKind discriminates the payload of an Event.
type EventKind int

const (
	// KindLog is a plain log line.
	KindLog EventKind = iota
	// KindProgressShown opens a flash progress window.
	KindProgressShown
	// KindProgress carries Percent for the application partition.
	KindProgress
	// KindProgressHidden closes the progress window. Emitted exactly once
	// per KindProgressShown.
	KindProgressHidden
	// KindDeviceReady carries the wireless identity captured from telemetry.
	KindDeviceReady
	// KindDisconnected reports that the telemetry port went away.
	KindDisconnected
	// KindOutcome carries the final session outcome.
	KindOutcome
	// KindQCResult carries the wireless QC report.
	KindQCResult
)

// Event is the immutable unit every producer emits. Only the session
// coordinator turns events into session state.
type Event struct {
	Time     time.Time
	Kind     EventKind
	Severity Severity
	Category Category
	Message  string
	Percent  int
	Address  string
	Name     string
	Payload  interface{}
}

// String renders the event the way it appears in a session log.
func (e Event) String() string {
	ts := e.Time.Format("15:04:05")
	switch e.Kind {
	case KindProgress:
		return fmt.Sprintf("%s [%s] progress %d%%", ts, e.Category, e.Percent)
	case KindDeviceReady:
		return fmt.Sprintf("%s [%s] device ready: %s (%s)", ts, e.Category, e.Name, e.Address)
	}
	return fmt.Sprintf("%s [%s] %s", ts, e.Category, e.Message)
}

// Emitter receives events. Implementations must not block for long; the
// pipeline calls Emit from its worker goroutines.
type Emitter interface {
	Emit(Event)
}

// EmitFunc adapts a function to Emitter.
type EmitFunc func(Event)

// Emit calls f(e).
func (f EmitFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitFunc(func(Event) {})

// Logf builds a KindLog event.
func Logf(cat Category, sev Severity, format string, args ...interface{}) Event {
	return Event{
		Time:     time.Now(),
		Kind:     KindLog,
		Severity: sev,
		Category: cat,
		Message:  fmt.Sprintf(format, args...),
	}
}
