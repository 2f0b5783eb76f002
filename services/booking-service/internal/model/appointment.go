package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusNoShow    Status = "noshow"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusCanceled, StatusCompleted, StatusNoShow},
}

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusConfirmed, StatusCanceled, StatusNoShow, StatusCompleted:
		return s, true
	}
	return "", false
}

// CanTransitionTo reports whether next is reachable from s in one step.
// Re-applying the current status is handled by callers as a no-op.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Occupies reports whether an appointment in this status blocks its slot.
func (s Status) Occupies() bool {
	return s != StatusCanceled
}

// Appointment is the instant interval [StartTime, EndTime). Buffers are the
// service buffers at booking time so later service edits do not move existing
// blocks.
type Appointment struct {
	ID              string
	BusinessID      string
	ServiceID       string
	StaffID         *string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	StartTime       time.Time
	EndTime         time.Time
	BufferBeforeMin int
	BufferAfterMin  int
	Status          Status
	CanceledAt      *time.Time
	CancelReason    string
	CreatedAt       time.Time
}
