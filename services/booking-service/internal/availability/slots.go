package availability

import (
	"iter"

	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
)

const DefaultGranularity = 15

// GenerateSlots yields local start times stepping by granularity from each
// interval's start, keeping only starts where the whole duration fits before
// that interval's end. Intervals are walked independently, so a slot never
// spans two of them. The sequence can be ranged over repeatedly.
func GenerateSlots(intervals []Interval, duration, granularity int) iter.Seq[localtime.Clock] {
	return func(yield func(localtime.Clock) bool) {
		if duration <= 0 || granularity <= 0 {
			return
		}
		for _, iv := range intervals {
			if !iv.Valid() {
				continue
			}
			for start := iv.Start; int(start)+duration <= int(iv.End); start += localtime.Clock(granularity) {
				if !yield(start) {
					return
				}
			}
		}
	}
}
