// Package alert gives the operator an audible cue at the start and end of
// a session.
package alert

import (
	"io"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("dinoflash.alert")

// Cue identifies a session milestone.
type Cue int

const (
	Start Cue = iota
	Success
	Failure
)

func (c Cue) String() string {
	switch c {
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return "start"
}

// pattern is the number of bells rung for each cue.
var pattern = map[Cue]int{
	Start:   1,
	Success: 2,
	Failure: 3,
}

// Alerter plays cues.
type Alerter interface {
	Play(Cue)
}

// Silent plays nothing.
type Silent struct{}

func (Silent) Play(Cue) {}

// Bell rings the terminal bell on w. Cues play in the background, one at
// a time.
type Bell struct {
	W     io.Writer
	Clock clock.Clock
	Gap   time.Duration

	mu sync.Mutex
}

// NewBell returns a Bell writing to w.
func NewBell(w io.Writer) *Bell {
	return &Bell{W: w, Clock: clock.WallClock, Gap: 150 * time.Millisecond}
}

// Play rings the pattern for c without blocking the caller.
func (b *Bell) Play(c Cue) {
	go b.ring(c)
}

func (b *Bell) ring(c Cue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < pattern[c]; i++ {
		if i > 0 {
			<-b.Clock.After(b.Gap)
		}
		if _, err := b.W.Write([]byte{'\a'}); err != nil {
			logger.Debugf("bell: %v", err)
			return
		}
	}
}
