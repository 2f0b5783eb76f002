package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bookit-app/bookit/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentBooked        = "booking.appointment.booked.v1"
	EventAppointmentCanceled      = "booking.appointment.canceled.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"

	aggregateAppointment = "appointment"
)

type appointmentPayload struct {
	AppointmentID  string `json:"appointment_id"`
	BusinessID     string `json:"business_id"`
	ServiceID      string `json:"service_id"`
	StaffID        string `json:"staff_id,omitempty"`
	CustomerName   string `json:"customer_name,omitempty"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	CanceledAt     string `json:"canceled_at,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

func newPayload(appt model.Appointment) appointmentPayload {
	p := appointmentPayload{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		ServiceID:     appt.ServiceID,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        string(appt.Status),
	}
	if appt.StaffID != nil {
		p.StaffID = *appt.StaffID
	}
	return p
}

func marshal(eventType string, appt model.Appointment, p appointmentPayload) (Event, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("outbox: marshal %s: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}

func AppointmentBooked(appt model.Appointment) (Event, error) {
	p := newPayload(appt)
	p.CustomerName = appt.CustomerName
	p.CustomerEmail = appt.CustomerEmail
	p.CustomerPhone = appt.CustomerPhone
	return marshal(EventAppointmentBooked, appt, p)
}

// AppointmentStatusChanged returns the canceled event when appt is canceled,
// else the generic status change event.
func AppointmentStatusChanged(appt model.Appointment, previous model.Status) (Event, error) {
	p := newPayload(appt)
	p.PreviousStatus = string(previous)
	if appt.Status == model.StatusCanceled {
		if appt.CanceledAt != nil {
			p.CanceledAt = appt.CanceledAt.UTC().Format(time.RFC3339)
		}
		p.Reason = appt.CancelReason
		return marshal(EventAppointmentCanceled, appt, p)
	}
	return marshal(EventAppointmentStatusChanged, appt, p)
}
