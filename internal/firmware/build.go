// Package firmware lists, selects and downloads firmware builds from the
// remote build registry.
package firmware

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/buckleypaul/dinoflash/internal/hwversion"
	"github.com/buckleypaul/dinoflash/internal/provision"
)

// BuildID accepts both numeric and string ids from the registry.
type BuildID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *BuildID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = BuildID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = BuildID(n.String())
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Timestamp keeps the registry's raw creation time alongside the parsed
// value. Unparseable values still order lexically.
type Timestamp struct {
	Raw  string
	Time time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.Raw = s
	t.Time = time.Time{}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			break
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Raw)
}

// After reports whether t is strictly later than o.
func (t Timestamp) After(o Timestamp) bool {
	if !t.Time.IsZero() && !o.Time.IsZero() {
		return t.Time.After(o.Time)
	}
	return t.Raw > o.Raw
}

// Build is a registry build record.
type Build struct {
	ID                BuildID   `json:"id"`
	Name              string    `json:"name"`
	CreatedAt         Timestamp `json:"created_at"`
	SupportedVersions []string  `json:"supported_versions"`
}

// Supports reports whether the build lists v among its supported versions.
func (b Build) Supports(v hwversion.Version) bool {
	for _, s := range b.SupportedVersions {
		if parsed, err := hwversion.Parse(strings.TrimSpace(s)); err == nil && parsed == v {
			return true
		}
	}
	return false
}

// Select picks the newest build supporting v. Ties keep the first build in
// registry order.
func Select(builds []Build, v hwversion.Version) (Build, error) {
	var (
		best  Build
		found bool
	)
	for _, b := range builds {
		if !b.Supports(v) {
			continue
		}
		if !found || b.CreatedAt.After(best.CreatedAt) {
			best = b
			found = true
		}
	}
	if !found {
		return Build{}, provision.Wrapf(provision.NoCompatibleFirmware, "no build supports hardware version %s", v)
	}
	return best, nil
}
