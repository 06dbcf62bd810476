// Package provision holds the types shared by every stage of the device
// provisioning pipeline: the operating mode, the structured event stream
// and the failure taxonomy.
package provision

import (
	"fmt"
	"strings"
)

// Mode selects which firmware registry is used and whether the identity
// record is burned (testing) or only read (production).
type Mode string

const (
	Production Mode = "production"
	Testing    Mode = "testing"
)

// ParseMode accepts "production"/"prod" and "testing"/"test".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production, nil
	case "testing", "test":
		return Testing, nil
	}
	return "", fmt.Errorf("unknown mode %q (want production or testing)", s)
}

// Title returns the mode name capitalised for display.
func (m Mode) Title() string {
	if m == "" {
		return ""
	}
	return strings.ToUpper(string(m[:1])) + string(m[1:])
}
