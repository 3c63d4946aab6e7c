// Package timeutil provides minute-of-day clock parsing and half-open
// interval arithmetic used by availability materialization and booking
// admission.
package timeutil

import (
	"errors"
	"fmt"
	"sort"
)

var ErrBadClock = errors.New("bad clock value")

// MinutesPerDay bounds every interval endpoint.
const MinutesPerDay = 24 * 60

// Interval is a half-open [Start, End) range in minutes since midnight.
// End may be MinutesPerDay (exclusive midnight).
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (iv Interval) Valid() bool {
	return iv.Start >= 0 && iv.End <= MinutesPerDay && iv.Start < iv.End
}

func (iv Interval) Duration() int {
	return iv.End - iv.Start
}

func (iv Interval) String() string {
	return FormatClock(iv.Start) + "-" + FormatClock(iv.End)
}

// Overlaps reports whether a and b share at least one minute. Touching
// endpoints (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// ParseClock converts "HH:MM" to minutes since midnight. "24:00" is not a
// valid clock reading; ParseInterval accepts it as an end only.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	h, ok1 := atoi2(s[0], s[1])
	m, ok2 := atoi2(s[3], s[4])
	if !ok1 || !ok2 || h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return h*60 + m, nil
}

func atoi2(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseInterval parses a "HH:MM"-"HH:MM" pair and requires start < end.
// The end may be "24:00", meaning the interval runs to the end of the day.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	var e int
	if end == "24:00" {
		e = MinutesPerDay
	} else {
		e, err = ParseClock(end)
		if err != nil {
			return Interval{}, err
		}
	}
	if s >= e {
		return Interval{}, fmt.Errorf("%w: start %s not before end %s", ErrBadClock, start, end)
	}
	return Interval{Start: s, End: e}, nil
}

// Subtract removes every busy interval from the free set, splitting where
// a busy range lands in the middle. The free set is coalesced first, so the
// result is always sorted and disjoint regardless of input order or overlap.
func Subtract(free, busy []Interval) []Interval {
	// Coalescing first guarantees the result is sorted and disjoint even
	// when the free set carries overlapping or touching windows.
	remaining := Merge(free)
	for _, b := range busy {
		if b.Start >= b.End {
			continue
		}
		next := make([]Interval, 0, len(remaining)+1)
		for _, f := range remaining {
			if !Overlaps(f, b) {
				next = append(next, f)
				continue
			}
			if f.Start < b.Start {
				next = append(next, Interval{Start: f.Start, End: b.Start})
			}
			if b.End < f.End {
				next = append(next, Interval{Start: b.End, End: f.End})
			}
		}
		remaining = next
	}
	return remaining
}

// Chunk splits iv into consecutive size-minute units starting at iv.Start.
// A trailing remainder shorter than size is dropped.
func Chunk(iv Interval, size int) []Interval {
	if size <= 0 || !iv.Valid() {
		return nil
	}
	var out []Interval
	for start := iv.Start; start+size <= iv.End; start += size {
		out = append(out, Interval{Start: start, End: start + size})
	}
	return out
}

// Merge coalesces overlapping or touching intervals into a minimal sorted set.
func Merge(ivs []Interval) []Interval {
	valid := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.Start < iv.End {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start < valid[j].Start })
	out := []Interval{valid[0]}
	for _, iv := range valid[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
