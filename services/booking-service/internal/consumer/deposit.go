package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const DepositPaidTopic = "payments.deposit.paid.v1"

type StatusChanger interface {
	ChangeStatus(ctx context.Context, businessID, appointmentID string, next model.Status, reason string) (model.Appointment, error)
}

type depositPaid struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
}

// DepositPaid confirms a pending appointment once its deposit is settled.
// Appointments that already moved on, or no longer exist, are skipped.
func DepositPaid(bookings StatusChanger, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt depositPaid
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("consumer.DepositPaid: decode: %w", err)
		}
		if evt.BusinessID == "" || evt.AppointmentID == "" {
			return fmt.Errorf("consumer.DepositPaid: business_id and appointment_id are required")
		}

		appt, err := bookings.ChangeStatus(ctx, evt.BusinessID, evt.AppointmentID, model.StatusConfirmed, "deposit paid")
		switch {
		case err == nil:
			logger.Info("appointment confirmed", "appointment_id", appt.ID, "business_id", appt.BusinessID)
			return nil
		case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrInvalidTransition):
			logger.Warn("deposit ignored", "appointment_id", evt.AppointmentID, "err", err)
			return nil
		default:
			return fmt.Errorf("consumer.DepositPaid: %w", err)
		}
	}
}
