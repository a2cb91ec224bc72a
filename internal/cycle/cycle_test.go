package cycle

import (
	"testing"
	"time"
)

// dayOf returns a date in a 31-day month so every day 1..31 is reachable.
func dayOf(d int) time.Time {
	return time.Date(2024, time.January, d, 12, 0, 0, 0, time.UTC)
}

// windowSet builds the expected pooled days independently of the
// production arithmetic: the ten days from r, wrapping past 31 back to 1.
func windowSet(r int) map[int]bool {
	set := make(map[int]bool)
	for i := 0; i < 10; i++ {
		day := r + i
		if day > 31 {
			day -= 31
		}
		set[day] = true
	}
	return set
}

func TestClassifyAutoExhaustive(t *testing.T) {
	for r := 1; r <= 31; r++ {
		pooled := windowSet(r)
		for d := 1; d <= 31; d++ {
			want := TrackPersonal
			if pooled[d] {
				want = TrackPooled
			}
			got := Classify(ModeAuto, dayOf(r), dayOf(d), Options{})
			if got != want {
				t.Errorf("registration day %d, query day %d: got %s, want %s", r, d, got, want)
			}
		}
	}
}

func TestClassifyAllPooledAlwaysPooled(t *testing.T) {
	for r := 1; r <= 31; r++ {
		for d := 1; d <= 31; d++ {
			if got := Classify(ModeAllPooled, dayOf(r), dayOf(d), Options{}); got != TrackPooled {
				t.Fatalf("all_pooled registration day %d query day %d: got %s", r, d, got)
			}
		}
	}
	// Mode wins over the day-one fee rule too.
	if got := Classify(ModeAllPooled, dayOf(15), dayOf(1), Options{FeeOnDayOne: true}); got != TrackPooled {
		t.Fatalf("all_pooled on day 1 with fee rule: got %s, want POOLED", got)
	}
}

func TestClassifyScenarios(t *testing.T) {
	tests := []struct {
		name             string
		registrationDay  int
		queryDate        time.Time
		opts             Options
		want             Track
	}{
		{"inside window", 5, dayOf(10), Options{}, TrackPooled},
		{"window start", 5, dayOf(5), Options{}, TrackPooled},
		{"window end", 5, dayOf(14), Options{}, TrackPooled},
		{"after window", 5, dayOf(20), Options{}, TrackPersonal},
		{"before window", 5, dayOf(4), Options{}, TrackPersonal},
		// Registration on the 28th wraps: 28..31 then 1..6.
		{"wrapped window next month", 28, time.Date(2024, time.February, 2, 9, 0, 0, 0, time.UTC), Options{}, TrackPooled},
		{"wrapped window end", 28, dayOf(6), Options{}, TrackPooled},
		{"outside wrapped window", 28, dayOf(7), Options{}, TrackPersonal},
		{"day one without fee rule", 15, dayOf(1), Options{}, TrackPersonal},
		{"day one with fee rule", 15, dayOf(1), Options{FeeOnDayOne: true}, TrackFee},
		{"fee rule only fires on day one", 15, dayOf(2), Options{FeeOnDayOne: true}, TrackPersonal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(ModeAuto, dayOf(tt.registrationDay), tt.queryDate, tt.opts)
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	start, end, wraps := Window(dayOf(5))
	if start != 5 || end != 14 || wraps {
		t.Fatalf("Window(5) = (%d, %d, %v), want (5, 14, false)", start, end, wraps)
	}
	start, end, wraps = Window(dayOf(28))
	if start != 28 || end != 6 || !wraps {
		t.Fatalf("Window(28) = (%d, %d, %v), want (28, 6, true)", start, end, wraps)
	}
	// Day 22 is the last non-wrapping start: 22+9 = 31.
	start, end, wraps = Window(dayOf(22))
	if start != 22 || end != 31 || wraps {
		t.Fatalf("Window(22) = (%d, %d, %v), want (22, 31, false)", start, end, wraps)
	}
}

func TestParseTrack(t *testing.T) {
	for _, valid := range []string{"POOLED", "PERSONAL", "FEE"} {
		if _, err := ParseTrack(valid); err != nil {
			t.Fatalf("ParseTrack(%q): %v", valid, err)
		}
	}
	if _, err := ParseTrack("SAVINGS"); err == nil {
		t.Fatal("ParseTrack accepted an unknown track")
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"auto", "all_pooled"} {
		if _, err := ParseMode(valid); err != nil {
			t.Fatalf("ParseMode(%q): %v", valid, err)
		}
	}
	if _, err := ParseMode("manual"); err == nil {
		t.Fatal("ParseMode accepted an unknown mode")
	}
}
