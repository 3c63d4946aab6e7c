package timeutil

import (
	"math/rand"
	"testing"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:00", 540, false},
		{"23:59", 1439, false},
		{"12:30", 750, false},
		{"24:00", 0, true},
		{"9:00", 0, true},
		{"09:60", 0, true},
		{"0900", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
		{"09:00x", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error, got %d", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFormatClockRoundTrip(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		got, err := ParseClock(FormatClock(m))
		if err != nil {
			t.Fatalf("round trip of %d: %v", m, err)
		}
		if got != m {
			t.Fatalf("round trip of %d gave %d", m, got)
		}
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", Interval{540, 600}, Interval{660, 720}, false},
		{"touching endpoints", Interval{540, 600}, Interval{600, 660}, false},
		{"partial", Interval{540, 630}, Interval{600, 660}, true},
		{"contained", Interval{540, 720}, Interval{600, 660}, true},
		{"identical", Interval{540, 600}, Interval{540, 600}, true},
		{"one minute shared", Interval{540, 601}, Interval{600, 660}, true},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: Overlaps(%v, %v) = %v, want %v", tc.name, tc.a, tc.b, got, tc.want)
		}
		// symmetry
		if got := Overlaps(tc.b, tc.a); got != tc.want {
			t.Errorf("%s: Overlaps(%v, %v) not symmetric", tc.name, tc.b, tc.a)
		}
	}
}

func TestSubtract(t *testing.T) {
	cases := []struct {
		name string
		free []Interval
		busy []Interval
		want []Interval
	}{
		{
			name: "hole in the middle",
			free: []Interval{{540, 720}},
			busy: []Interval{{600, 660}},
			want: []Interval{{540, 600}, {660, 720}},
		},
		{
			name: "busy clips the front",
			free: []Interval{{540, 720}},
			busy: []Interval{{480, 600}},
			want: []Interval{{600, 720}},
		},
		{
			name: "busy clips the back",
			free: []Interval{{540, 720}},
			busy: []Interval{{660, 780}},
			want: []Interval{{540, 660}},
		},
		{
			name: "busy swallows free",
			free: []Interval{{540, 600}},
			busy: []Interval{{480, 720}},
			want: []Interval{},
		},
		{
			name: "touching busy leaves free intact",
			free: []Interval{{540, 600}},
			busy: []Interval{{600, 660}},
			want: []Interval{{540, 600}},
		},
		{
			name: "multiple busy across multiple free",
			free: []Interval{{540, 720}, {780, 900}},
			busy: []Interval{{600, 630}, {810, 840}},
			want: []Interval{{540, 600}, {630, 720}, {780, 810}, {840, 900}},
		},
		{
			name: "no busy",
			free: []Interval{{540, 720}},
			busy: nil,
			want: []Interval{{540, 720}},
		},
		{
			name: "overlapping free windows coalesce",
			free: []Interval{{540, 660}, {600, 720}},
			busy: []Interval{{600, 630}},
			want: []Interval{{540, 600}, {630, 720}},
		},
		{
			name: "unordered free comes back sorted",
			free: []Interval{{780, 900}, {540, 660}},
			busy: nil,
			want: []Interval{{540, 660}, {780, 900}},
		},
	}
	for _, tc := range cases {
		got := Subtract(tc.free, tc.busy)
		if len(got) != len(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
				break
			}
		}
	}
}

// TestSubtractAgainstMinuteScan cross-checks Subtract against a brute-force
// per-minute membership scan on random inputs.
func TestSubtractAgainstMinuteScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		free := randomIntervals(rng, 4)
		busy := randomIntervals(rng, 4)
		got := Subtract(free, busy)

		var member [MinutesPerDay]bool
		for _, f := range free {
			for m := f.Start; m < f.End; m++ {
				member[m] = true
			}
		}
		for _, b := range busy {
			for m := b.Start; m < b.End; m++ {
				member[m] = false
			}
		}
		var gotMember [MinutesPerDay]bool
		prevEnd := -1
		for _, iv := range got {
			if !iv.Valid() {
				t.Fatalf("iter %d: invalid interval %v in result", iter, iv)
			}
			if iv.Start < prevEnd {
				t.Fatalf("iter %d: result not sorted/disjoint: %v", iter, got)
			}
			prevEnd = iv.End
			for m := iv.Start; m < iv.End; m++ {
				gotMember[m] = true
			}
		}
		if member != gotMember {
			t.Fatalf("iter %d: Subtract(%v, %v) = %v disagrees with minute scan", iter, free, busy, got)
		}
	}
}

func randomIntervals(rng *rand.Rand, n int) []Interval {
	out := make([]Interval, 0, n)
	for i := 0; i < n; i++ {
		start := rng.Intn(MinutesPerDay - 1)
		end := start + 1 + rng.Intn(MinutesPerDay-start-1)
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}

func TestChunk(t *testing.T) {
	cases := []struct {
		name string
		in   Interval
		size int
		want []Interval
	}{
		{"exact multiple", Interval{540, 720}, 60, []Interval{{540, 600}, {600, 660}, {660, 720}}},
		{"remainder dropped", Interval{540, 650}, 60, []Interval{{540, 600}}},
		{"too short", Interval{540, 570}, 60, nil},
		{"thirty minute units", Interval{540, 630}, 30, []Interval{{540, 570}, {570, 600}, {600, 630}}},
		{"zero size", Interval{540, 600}, 0, nil},
	}
	for _, tc := range cases {
		got := Chunk(tc.in, tc.size)
		if len(got) != len(tc.want) {
			t.Errorf("%s: Chunk(%v, %d) = %v, want %v", tc.name, tc.in, tc.size, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: Chunk(%v, %d) = %v, want %v", tc.name, tc.in, tc.size, got, tc.want)
				break
			}
		}
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]Interval{{600, 660}, {540, 610}, {700, 720}, {660, 665}})
	want := []Interval{{540, 665}, {700, 720}}
	if len(got) != len(want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("Merge = %v, want %v", got, want)
		}
	}
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("09:00", "17:00")
	if err != nil {
		t.Fatalf("ParseInterval: %v", err)
	}
	if iv.Start != 540 || iv.End != 1020 {
		t.Fatalf("ParseInterval = %v", iv)
	}
	if _, err := ParseInterval("17:00", "09:00"); err == nil {
		t.Fatal("expected inverted interval to be rejected")
	}
	if _, err := ParseInterval("09:00", "09:00"); err == nil {
		t.Fatal("expected empty interval to be rejected")
	}
}

func TestParseIntervalMidnightEnd(t *testing.T) {
	iv, err := ParseInterval("21:00", "24:00")
	if err != nil {
		t.Fatalf("ParseInterval: %v", err)
	}
	if iv.Start != 1260 || iv.End != MinutesPerDay {
		t.Fatalf("ParseInterval = %v", iv)
	}
	if FormatClock(iv.End) != "24:00" {
		t.Fatalf("FormatClock(%d) = %s, want 24:00", iv.End, FormatClock(iv.End))
	}
	if _, err := ParseInterval("24:00", "10:00"); err == nil {
		t.Fatal("expected 24:00 start to be rejected")
	}
}
