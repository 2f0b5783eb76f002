package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/availability"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{apperr.NotFound("business"), codes.NotFound},
		{apperr.Invalid("bad"), codes.InvalidArgument},
		{fmt.Errorf("x: %w", apperr.ErrInvalidTimezone), codes.InvalidArgument},
		{fmt.Errorf("x: %w", apperr.ErrStorageConflict), codes.Aborted},
		{fmt.Errorf("x: %w", apperr.ErrSlotUnavailable), codes.Aborted},
		{fmt.Errorf("x: %w", apperr.ErrInvalidTransition), codes.FailedPrecondition},
		{fmt.Errorf("x: %w", apperr.ErrStorageUnavailable), codes.Unavailable},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		if got := status.Code(toStatus(discard, tc.err)); got != tc.code {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.code, got)
		}
	}
	if msg := status.Convert(toStatus(discard, errors.New("secret"))).Message(); msg != "internal error" {
		t.Fatalf("internal error text leaked: %q", msg)
	}
	wrapped := fmt.Errorf("availability.GetAvailableSlots: %w", fmt.Errorf("storage.GetBusiness: %w", apperr.NotFound("business")))
	if msg := status.Convert(toStatus(discard, wrapped)).Message(); msg != "business not found" {
		t.Fatalf("op prefixes leaked: %q", msg)
	}
}

type recordingEngine struct {
	query availability.SlotQuery
}

func (r *recordingEngine) GetAvailableSlots(_ context.Context, q availability.SlotQuery) (availability.Result, error) {
	r.query = q
	return availability.Result{}, nil
}

func (r *recordingEngine) IsSlotAvailable(context.Context, availability.SlotCheck) (bool, error) {
	return false, nil
}

func TestGetAvailableSlots_ParsesRequest(t *testing.T) {
	engine := &recordingEngine{}
	s := &server{engine: engine, logger: discard}

	req, _ := structpb.NewStruct(map[string]any{"business_id": " b1 ", "service_id": "cut", "from": "2024-01-15"})
	resp, err := s.GetAvailableSlots(context.Background(), req)
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if engine.query.BusinessID != "b1" || engine.query.StaffID != nil || !engine.query.To.IsZero() {
		t.Fatalf("unexpected query: %+v", engine.query)
	}
	if _, ok := resp.GetFields()["days"]; !ok {
		t.Fatal("expected days field")
	}

	req, _ = structpb.NewStruct(map[string]any{"business_id": "b1", "service_id": "cut"})
	if _, err := s.GetAvailableSlots(context.Background(), req); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument without from, got %v", err)
	}
}
