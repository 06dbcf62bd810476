package flash

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AppAddress is where the application partition is written.
const AppAddress = 0x260000

var (
	writingPattern = regexp.MustCompile(`Writing at 0x([0-9a-fA-F]+)`)
	wrotePattern   = regexp.MustCompile(`Wrote .* at 0x([0-9a-fA-F]+)`)
	// Matches both "(25 %)" and the progress bar's "25.1%".
	percentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
)

func matchAddress(re *regexp.Regexp, line string) (uint64, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	addr, err := strconv.ParseUint(m[1], 16, 64)
	if err != nil {
		return 0, false
	}
	return addr, true
}

func parsePercent(line string) (int, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// progressTracker follows the application partition write. The window
// opens on the first write at the application address and closes on the
// matching "Wrote" summary. Reported values never decrease and stay within
// 0..100.
type progressTracker struct {
	app    uint64
	active bool
	closed bool
	last   int
}

func newProgressTracker(app uint64) *progressTracker {
	return &progressTracker{app: app, last: -1}
}

// observe returns a percentage to report for line, if any.
func (p *progressTracker) observe(line string) (int, bool) {
	if p.closed {
		return 0, false
	}
	if addr, ok := matchAddress(wrotePattern, line); ok && addr == p.app && p.active {
		p.active = false
		p.closed = true
		if p.last < 100 {
			p.last = 100
			return 100, true
		}
		return 0, false
	}
	if !p.active {
		addr, ok := matchAddress(writingPattern, line)
		if !ok || addr != p.app {
			return 0, false
		}
		p.active = true
	}
	if !writingPattern.MatchString(line) {
		return 0, false
	}
	n, ok := parsePercent(line)
	if !ok {
		return 0, false
	}
	if n > 100 {
		n = 100
	}
	if n <= p.last {
		return 0, false
	}
	p.last = n
	return n, true
}

// relay rewrites tool output for the session log. Progress lines become
// "Flashing... N%" and consecutive duplicates are dropped.
type relay struct {
	last string
}

func (r *relay) clean(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if writingPattern.MatchString(line) {
		if n, ok := parsePercent(line); ok {
			line = fmt.Sprintf("Flashing... %d%%", n)
		}
	}
	if line == r.last {
		return "", false
	}
	r.last = line
	return line, true
}
