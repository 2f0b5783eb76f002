package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/availability"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type SlotEngine interface {
	GetAvailableSlots(ctx context.Context, q availability.SlotQuery) (availability.Result, error)
	IsSlotAvailable(ctx context.Context, check availability.SlotCheck) (bool, error)
}

type server struct {
	engine SlotEngine
	logger *slog.Logger
}

// Register installs the availability service and the standard health
// service. The returned health server lets the caller flip to NOT_SERVING on
// shutdown.
func Register(grpcServer *grpc.Server, engine SlotEngine, logger *slog.Logger) *health.Server {
	grpcServer.RegisterService(&ServiceDesc, &server{engine: engine, logger: logger})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	return hs
}

func (s *server) GetAvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	from, err := dateField(req, "from", true)
	if err != nil {
		return nil, toStatus(s.logger, err)
	}
	to, err := dateField(req, "to", false)
	if err != nil {
		return nil, toStatus(s.logger, err)
	}

	res, err := s.engine.GetAvailableSlots(ctx, availability.SlotQuery{
		BusinessID: stringField(req, "business_id"),
		ServiceID:  stringField(req, "service_id"),
		StaffID:    optionalField(req, "staff_id"),
		From:       from,
		To:         to,
	})
	if err != nil {
		return nil, toStatus(s.logger, err)
	}

	days := make([]any, 0, len(res.Days))
	for _, d := range res.Dates() {
		slots := make([]any, 0, len(res.Days[d]))
		for _, c := range res.Days[d] {
			slots = append(slots, c.String())
		}
		days = append(days, map[string]any{"date": d.String(), "slots": slots})
	}
	out, err := structpb.NewStruct(map[string]any{
		"business_id":  res.Business.ID,
		"service_id":   res.Service.ID,
		"timezone":     res.Business.Timezone,
		"duration_min": res.Service.DurationMin,
		"days":         days,
	})
	if err != nil {
		return nil, toStatus(s.logger, err)
	}
	return out, nil
}

func (s *server) IsSlotAvailable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	date, err := dateField(req, "date", true)
	if err != nil {
		return nil, toStatus(s.logger, err)
	}
	start, err := localtime.ParseClock(stringField(req, "time"))
	if err != nil {
		return nil, toStatus(s.logger, err)
	}

	ok, err := s.engine.IsSlotAvailable(ctx, availability.SlotCheck{
		BusinessID: stringField(req, "business_id"),
		ServiceID:  stringField(req, "service_id"),
		StaffID:    optionalField(req, "staff_id"),
		Date:       date,
		Start:      start,
	})
	if err != nil {
		return nil, toStatus(s.logger, err)
	}
	return structpb.NewStruct(map[string]any{"available": ok})
}

func stringField(req *structpb.Struct, key string) string {
	return strings.TrimSpace(req.GetFields()[key].GetStringValue())
}

func optionalField(req *structpb.Struct, key string) *string {
	v := stringField(req, key)
	if v == "" {
		return nil
	}
	return &v
}

func dateField(req *structpb.Struct, key string, required bool) (localtime.Date, error) {
	raw := stringField(req, key)
	if raw == "" {
		if required {
			return localtime.Date{}, apperr.Invalid("%s is required", key)
		}
		return localtime.Date{}, nil
	}
	d, err := localtime.ParseDate(raw)
	if err != nil {
		return localtime.Date{}, apperr.Invalid("%s must be YYYY-MM-DD", key)
	}
	return d, nil
}

// toStatus maps error kinds onto gRPC codes. Unclassified errors are logged
// and reported as Internal without their text.
func toStatus(logger *slog.Logger, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, apperr.ErrInvalidTimezone):
		code = codes.InvalidArgument
	case errors.Is(err, apperr.ErrStorageConflict), errors.Is(err, apperr.ErrSlotUnavailable):
		code = codes.Aborted
	case errors.Is(err, apperr.ErrInvalidTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, apperr.ErrStorageUnavailable):
		code = codes.Unavailable
	default:
		logger.Error("grpc request failed", "err", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, apperr.PublicMessage(err))
}
