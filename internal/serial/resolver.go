package serial

import (
	"fmt"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/provision"
)

// Espressif USB-JTAG/serial bridge built into the ESP32-S3.
const (
	DefaultVID = "303A"
	DefaultPID = "1001"
)

// Status classifies a port scan.
type Status int

const (
	None Status = iota
	One
	Many
)

func (s Status) String() string {
	switch s {
	case One:
		return "one"
	case Many:
		return "many"
	}
	return "none"
}

// Resolution is the outcome of a single scan. Port is set only for One.
type Resolution struct {
	Status     Status
	Port       string
	Candidates []string
}

// Err converts a non-One resolution into the matching failure.
func (r Resolution) Err() error {
	switch r.Status {
	case One:
		return nil
	case Many:
		return provision.Wrapf(provision.AmbiguousPort, "%d matching ports: %s", len(r.Candidates), strings.Join(r.Candidates, ", "))
	}
	return provision.NoPortFound
}

// Has reports whether port is one of the matching ports.
func (r Resolution) Has(port string) bool {
	for _, c := range r.Candidates {
		if c == port {
			return true
		}
	}
	return false
}

// Equal compares status and port.
func (r Resolution) Equal(o Resolution) bool {
	return r.Status == o.Status && r.Port == o.Port
}

func (r Resolution) String() string {
	if r.Status == One {
		return fmt.Sprintf("one (%s)", r.Port)
	}
	return r.Status.String()
}

// Resolver filters attached ports by USB identifier. It has no side
// effects and is safe to call repeatedly.
type Resolver struct {
	VID  string
	PID  string
	List Lister
}

// NewResolver returns a Resolver backed by the system port list.
func NewResolver(vid, pid string) *Resolver {
	return &Resolver{VID: vid, PID: pid, List: ListPorts}
}

// Resolve scans attached ports and classifies the matches.
func (r *Resolver) Resolve() (Resolution, error) {
	ports, err := r.List()
	if err != nil {
		return Resolution{}, errors.Annotate(err, "listing serial ports")
	}
	var matches []string
	for _, p := range ports {
		if p.Matches(r.VID, r.PID) {
			matches = append(matches, p.Name)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return Resolution{Status: None}, nil
	case 1:
		return Resolution{Status: One, Port: matches[0], Candidates: matches}, nil
	}
	return Resolution{Status: Many, Candidates: matches}, nil
}
