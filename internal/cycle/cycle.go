package cycle

import (
	"fmt"
	"time"
)

// Track identifies the savings track a contribution is posted to.
type Track string

const (
	TrackPooled   Track = "POOLED"
	TrackPersonal Track = "PERSONAL"
	TrackFee      Track = "FEE"
)

// ParseTrack validates a caller-supplied track name.
func ParseTrack(s string) (Track, error) {
	switch Track(s) {
	case TrackPooled, TrackPersonal, TrackFee:
		return Track(s), nil
	}
	return "", fmt.Errorf("unknown track %q", s)
}

// Mode is a member's contribution mode.
type Mode string

const (
	// ModeAuto classifies by the member's rolling monthly window.
	ModeAuto Mode = "auto"
	// ModeAllPooled routes every contribution to the pooled track.
	ModeAllPooled Mode = "all_pooled"
)

// ParseMode validates a contribution mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeAllPooled:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown contribution mode %q", s)
}

// Options control classification behavior that not every caller wants.
type Options struct {
	// FeeOnDayOne routes the first day of the month to the fee track
	// before the pooled window is consulted. Off unless a caller opts in.
	FeeOnDayOne bool
}

const windowDays = 10

// Window returns the pooled window for a registration date as a pair of
// days-of-month: the ten consecutive days starting at the registration
// day. When the window runs past 31 it wraps (end = end - 31). The
// arithmetic is day-of-month only and ignores actual month lengths.
func Window(registeredAt time.Time) (start, end int, wraps bool) {
	start = registeredAt.Day()
	end = start + windowDays - 1
	if end > 31 {
		end -= 31
	}
	return start, end, start > end
}

// Classify returns the track for a contribution made on asOf by a member
// registered at registeredAt. ModeAllPooled wins over everything,
// including the day-one fee rule. Pure and total: no I/O, no clock.
func Classify(mode Mode, registeredAt, asOf time.Time, opts Options) Track {
	if mode == ModeAllPooled {
		return TrackPooled
	}
	day := asOf.Day()
	if opts.FeeOnDayOne && day == 1 {
		return TrackFee
	}
	start, end, wraps := Window(registeredAt)
	if wraps {
		if day >= start || day <= end {
			return TrackPooled
		}
		return TrackPersonal
	}
	if day >= start && day <= end {
		return TrackPooled
	}
	return TrackPersonal
}

// Describe renders the pooled window in words for contribution previews.
func Describe(registeredAt time.Time) string {
	start, end, wraps := Window(registeredAt)
	if wraps {
		return fmt.Sprintf("pooled window runs from day %d through month end and from day 1 through day %d", start, end)
	}
	return fmt.Sprintf("pooled window runs from day %d through day %d", start, end)
}
