package alert

import (
	"bytes"
	"testing"

	"github.com/juju/clock"
)

func TestBellPatterns(t *testing.T) {
	for cue, want := range map[Cue]int{Start: 1, Success: 2, Failure: 3} {
		var buf bytes.Buffer
		b := NewBell(&buf)
		b.Clock = clock.WallClock
		b.Gap = 0
		b.ring(cue)
		if got := bytes.Count(buf.Bytes(), []byte{'\a'}); got != want {
			t.Errorf("%s: expected %d bells, got %d", cue, want, got)
		}
	}
}
