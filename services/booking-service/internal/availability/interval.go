package availability

import (
	"slices"

	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
)

// Interval is a local open interval [Start, End) within one date.
type Interval struct {
	Start localtime.Clock
	End   localtime.Clock
}

func (iv Interval) Valid() bool {
	return iv.Start >= 0 && iv.End <= localtime.EndOfDay && iv.End > iv.Start
}

// Contains reports whether [start, start+length) lies inside the interval.
func (iv Interval) Contains(start localtime.Clock, length int) bool {
	return start >= iv.Start && int(start)+length <= int(iv.End)
}

// MergeIntervals sorts intervals by start and merges overlapping or touching
// ones. Invalid intervals are dropped. The input is not modified.
func MergeIntervals(in []Interval) []Interval {
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.Valid() {
			out = append(out, iv)
		}
	}
	if len(out) < 2 {
		return out
	}
	slices.SortFunc(out, func(a, b Interval) int {
		if a.Start != b.Start {
			return int(a.Start - b.Start)
		}
		return int(a.End - b.End)
	})

	merged := out[:1]
	for _, iv := range out[1:] {
		last := &merged[len(merged)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
