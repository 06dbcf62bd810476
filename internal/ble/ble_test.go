package ble

import (
	"encoding/json"
	"testing"

	"github.com/juju/errors"
)

func TestCommandPayload(t *testing.T) {
	data, err := json.Marshal(command{Cmd: "run_test", Index: 0})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"cmd":"run_test","index":0}` {
		t.Errorf("unexpected payload %s", data)
	}
}

func TestParseUUID(t *testing.T) {
	if _, err := parseUUID(DefaultServiceUUID); err != nil {
		t.Fatalf("parseUUID: %v", err)
	}
	if _, err := parseUUID("not-a-uuid"); !errors.Is(err, errors.NotValid) {
		t.Errorf("expected NotValid, got %v", err)
	}
}

func TestDeliverAfterDisconnectIsDropped(t *testing.T) {
	l := &link{notes: make(chan []byte, 1)}
	l.deliver([]byte("a"))
	l.notesMu.Lock()
	l.closed = true
	close(l.notes)
	l.notesMu.Unlock()
	l.deliver([]byte("b"))

	var got []string
	for p := range l.notes {
		got = append(got, string(p))
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("expected [a], got %v", got)
	}
}
