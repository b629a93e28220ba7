package executor

import (
	"regexp"
	"strconv"
	"time"
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	timeRe     = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// ProgressTracker turns ffmpeg status lines into a completion percentage.
type ProgressTracker struct {
	total time.Duration
}

// Observe reads one output line. It reports a percentage once the input
// duration is known and the line carries a position.
func (p *ProgressTracker) Observe(line string) (float64, bool) {
	if m := durationRe.FindStringSubmatch(line); m != nil && p.total == 0 {
		p.total = clock(m[1:])
		return 0, false
	}
	if p.total <= 0 {
		return 0, false
	}
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct := float64(clock(m[1:])) / float64(p.total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

func clock(parts []string) time.Duration {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.ParseFloat(parts[2], 64)
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s*float64(time.Second))
}
