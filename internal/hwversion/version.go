// Package hwversion models the immutable hardware-version identity stamped
// into a unit's one-time-programmable block.
package hwversion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/buckleypaul/dinoflash/internal/provision"
)

// RecordSize is the size of the one-time-programmable user block.
const RecordSize = 32

// Version is a major.minor.patch triple. The zero value is reserved and
// means "absent".
type Version struct {
	Major, Minor, Patch uint8
}

// Parse reads "major.minor.patch" with each component in [0,255].
// "0.0.0" is rejected because it cannot be told apart from an unwritten
// block.
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, provision.Wrapf(provision.InvalidVersionFormat, "%q: want major.minor.patch", s)
	}
	var out [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return Version{}, provision.Wrapf(provision.InvalidVersionFormat, "%q: component %q out of range", s, p)
		}
		out[i] = uint8(n)
	}
	v := Version{Major: out[0], Minor: out[1], Patch: out[2]}
	if v.IsZero() {
		return Version{}, provision.Wrapf(provision.InvalidVersionFormat, "%q is reserved", s)
	}
	return v, nil
}

// IsZero reports whether v is the reserved all-zero triple.
func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Encode lays v out as the 32-byte block record: bytes 0-2 hold
// major/minor/patch, the rest is zero.
func (v Version) Encode() [RecordSize]byte {
	var rec [RecordSize]byte
	rec[0], rec[1], rec[2] = v.Major, v.Minor, v.Patch
	return rec
}

// Decode reads the version from the first three bytes of a block record.
// ok is false for short records and for the all-zero triple.
func Decode(rec []byte) (v Version, ok bool) {
	if len(rec) < 3 {
		return Version{}, false
	}
	v = Version{Major: rec[0], Minor: rec[1], Patch: rec[2]}
	if v.IsZero() {
		return Version{}, false
	}
	return v, true
}
