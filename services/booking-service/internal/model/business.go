package model

import (
	"time"

	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
)

type Business struct {
	ID       string
	Name     string
	Slug     string
	Timezone string
}

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMin     int
	BufferBeforeMin int
	BufferAfterMin  int
	MaxConcurrent   int
	PriceCents      int64
	DepositCents    int64
	Active          bool
}

// Capacity is the number of overlapping bookings of this service a single
// resource may hold. Zero or negative values mean 1.
func (s Service) Capacity() int {
	if s.MaxConcurrent < 1 {
		return 1
	}
	return s.MaxConcurrent
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMin) * time.Minute
}

type Staff struct {
	ID         string
	BusinessID string
	Name       string
	Active     bool
}

// AvailabilityRule is a weekly recurring open interval. A nil StaffID scopes
// it to the whole business.
type AvailabilityRule struct {
	ID         string
	BusinessID string
	StaffID    *string
	Weekday    time.Weekday
	Start      localtime.Clock
	End        localtime.Clock
}

// AvailabilityException overrides the rules for one date: either closed, or a
// single replacement interval [Start, End).
type AvailabilityException struct {
	ID         string
	BusinessID string
	StaffID    *string
	Date       localtime.Date
	IsClosed   bool
	Start      *localtime.Clock
	End        *localtime.Clock
	Reason     string
}
