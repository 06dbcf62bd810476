package serial

import (
	"errors"
	"testing"

	jujuerrors "github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/provision"
)

func staticLister(ports ...PortInfo) Lister {
	return func() ([]PortInfo, error) { return ports, nil }
}

func target(name string) PortInfo {
	return PortInfo{Name: name, IsUSB: true, VID: "303a", PID: "1001"}
}

func TestResolve(t *testing.T) {
	other := PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10C4", PID: "EA60"}
	native := PortInfo{Name: "/dev/ttyS0"}

	tests := []struct {
		name   string
		ports  []PortInfo
		status Status
		port   string
		err    error
	}{
		{"empty", nil, None, "", provision.NoPortFound},
		{"no match", []PortInfo{other, native}, None, "", provision.NoPortFound},
		{"one", []PortInfo{other, target("/dev/ttyACM0")}, One, "/dev/ttyACM0", nil},
		{"many", []PortInfo{target("/dev/ttyACM1"), target("/dev/ttyACM0")}, Many, "", provision.AmbiguousPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{VID: DefaultVID, PID: DefaultPID, List: staticLister(tt.ports...)}
			res, err := r.Resolve()
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if res.Status != tt.status || res.Port != tt.port {
				t.Errorf("got %v %q, want %v %q", res.Status, res.Port, tt.status, tt.port)
			}
			if got := res.Err(); !jujuerrors.Is(got, tt.err) && !(got == nil && tt.err == nil) {
				t.Errorf("Err() = %v, want %v", got, tt.err)
			}
		})
	}
}

func TestResolveManyListsSortedCandidates(t *testing.T) {
	r := &Resolver{VID: DefaultVID, PID: DefaultPID, List: staticLister(target("/dev/b"), target("/dev/a"))}
	res, _ := r.Resolve()
	if len(res.Candidates) != 2 || res.Candidates[0] != "/dev/a" {
		t.Errorf("candidates = %v", res.Candidates)
	}
}

func TestResolveListError(t *testing.T) {
	r := &Resolver{List: func() ([]PortInfo, error) { return nil, errors.New("boom") }}
	if _, err := r.Resolve(); err == nil {
		t.Fatal("expected error")
	}
}

func TestPresent(t *testing.T) {
	list := staticLister(target("/dev/ttyACM0"))
	if !Present(list, "/dev/ttyACM0") {
		t.Error("expected present")
	}
	if Present(list, "/dev/ttyACM1") {
		t.Error("expected absent")
	}
	failing := func() ([]PortInfo, error) { return nil, errors.New("gone") }
	if Present(failing, "/dev/ttyACM0") {
		t.Error("listing error should count as absent")
	}
}

func TestLineBuffer(t *testing.T) {
	var b LineBuffer
	if got := b.Feed([]byte("partial")); len(got) != 0 {
		t.Fatalf("unexpected lines %v", got)
	}
	got := b.Feed([]byte(" line\r\nnext\nrest"))
	if len(got) != 2 || got[0] != "partial line" || got[1] != "next" {
		t.Fatalf("got %q", got)
	}
	if rest := b.Flush(); rest != "rest" {
		t.Errorf("Flush = %q", rest)
	}
	if rest := b.Flush(); rest != "" {
		t.Errorf("second Flush = %q", rest)
	}
}
