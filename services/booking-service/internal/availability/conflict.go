package availability

import (
	"slices"
	"time"

	"github.com/bookit-app/bookit/services/booking-service/internal/model"
)

// Busy is an occupied instant interval [Start, End) with the buffers that must
// stay clear around it.
type Busy struct {
	Start        time.Time
	End          time.Time
	BufferBefore time.Duration
	BufferAfter  time.Duration
	ServiceID    string
}

func BusyFromAppointment(a model.Appointment) Busy {
	return Busy{
		Start:        a.StartTime,
		End:          a.EndTime,
		BufferBefore: time.Duration(a.BufferBeforeMin) * time.Minute,
		BufferAfter:  time.Duration(a.BufferAfterMin) * time.Minute,
		ServiceID:    a.ServiceID,
	}
}

func (b Busy) padded() (time.Time, time.Time) {
	return b.Start.Add(-b.BufferBefore), b.End.Add(b.BufferAfter)
}

// overlaps tests half-open intervals: touching endpoints do not overlap.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Conflicts reports whether a's padded interval overlaps b's body or b's
// padded interval overlaps a's body. Conflicts(a, b) == Conflicts(b, a).
func Conflicts(a, b Busy) bool {
	aPadStart, aPadEnd := a.padded()
	bPadStart, bPadEnd := b.padded()
	return overlaps(aPadStart, aPadEnd, b.Start, b.End) ||
		overlaps(a.Start, a.End, bPadStart, bPadEnd)
}

// CheckSlot reports whether candidate can be booked next to existing.
// Any conflicting booking of a different service blocks it. Conflicting
// bookings of the same service block it once the most of them active at one
// moment inside the candidate's padded window reaches capacity.
func CheckSlot(candidate Busy, existing []Busy, capacity int) bool {
	if capacity < 1 {
		capacity = 1
	}
	winStart, winEnd := candidate.padded()
	var edges []edge
	for _, e := range existing {
		if !Conflicts(candidate, e) {
			continue
		}
		if e.ServiceID != candidate.ServiceID {
			return false
		}
		// A conflict means the padded intervals intersect, so the clipped
		// interval is never empty.
		start, end := e.padded()
		if start.Before(winStart) {
			start = winStart
		}
		if end.After(winEnd) {
			end = winEnd
		}
		edges = append(edges, edge{at: start, delta: 1}, edge{at: end, delta: -1})
	}
	return maxActive(edges) < capacity
}

type edge struct {
	at    time.Time
	delta int
}

// maxActive sweeps half-open interval edges. Ends sort before starts at the
// same instant, so touching intervals never count together.
func maxActive(edges []edge) int {
	slices.SortFunc(edges, func(a, b edge) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return a.delta - b.delta
	})
	active, peak := 0, 0
	for _, e := range edges {
		active += e.delta
		peak = max(peak, active)
	}
	return peak
}
