package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/bookit-app/bookit/libs/grpcx"
	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/availability"
	"github.com/bookit-app/bookit/services/booking-service/internal/grpcserver"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type stubEngine struct {
	lastCheck availability.SlotCheck
}

var monday = localtime.NewDate(2024, time.January, 15)

func (s *stubEngine) GetAvailableSlots(_ context.Context, q availability.SlotQuery) (availability.Result, error) {
	if q.ServiceID == "missing" {
		return availability.Result{}, apperr.NotFound("service")
	}
	return availability.Result{
		Business: model.Business{ID: q.BusinessID, Timezone: "America/New_York"},
		Service:  model.Service{ID: q.ServiceID, DurationMin: 30},
		Days: map[localtime.Date][]localtime.Clock{
			monday:            {localtime.ClockOf(9, 0), localtime.ClockOf(9, 30)},
			monday.AddDays(1): {},
		},
	}, nil
}

func (s *stubEngine) IsSlotAvailable(_ context.Context, check availability.SlotCheck) (bool, error) {
	s.lastCheck = check
	return check.Start == localtime.ClockOf(9, 0), nil
}

func startServer(t *testing.T, engine grpcserver.SlotEngine) *grpc.ClientConn {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpcx.ServerOptions(grpcx.UnaryServerLogInterceptor(logger))...)
	grpcserver.Register(srv, engine, logger)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpcx.Dial("passthrough:///bufnet", grpcx.DialOptions{},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestClient_GetAvailableSlots(t *testing.T) {
	conn := startServer(t, &stubEngine{})
	client := NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slots, err := client.GetAvailableSlots(ctx, availability.SlotQuery{BusinessID: "b1", ServiceID: "cut", From: monday, To: monday.AddDays(1)})
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if slots.Timezone != "America/New_York" || slots.DurationMin != 30 || len(slots.Days) != 2 {
		t.Fatalf("unexpected slots: %+v", slots)
	}
	if got := slots.Days[monday]; len(got) != 2 || got[1] != localtime.ClockOf(9, 30) {
		t.Fatalf("unexpected monday slots: %v", got)
	}
	if got, ok := slots.Days[monday.AddDays(1)]; !ok || len(got) != 0 {
		t.Fatalf("expected empty tuesday, got %v (%v)", got, ok)
	}
}

func TestClient_IsSlotAvailable(t *testing.T) {
	engine := &stubEngine{}
	client := NewClient(startServer(t, engine))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	staff := "s1"
	ok, err := client.IsSlotAvailable(ctx, availability.SlotCheck{BusinessID: "b1", ServiceID: "cut", StaffID: &staff, Date: monday, Start: localtime.ClockOf(9, 0)})
	if err != nil || !ok {
		t.Fatalf("expected available, got %v (%v)", ok, err)
	}
	if engine.lastCheck.StaffID == nil || *engine.lastCheck.StaffID != "s1" || engine.lastCheck.Date != monday {
		t.Fatalf("unexpected check on server: %+v", engine.lastCheck)
	}
}

func TestClient_ErrorKindsCrossTheWire(t *testing.T) {
	client := NewClient(startServer(t, &stubEngine{}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.GetAvailableSlots(ctx, availability.SlotQuery{BusinessID: "b1", ServiceID: "missing", From: monday})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = client.IsSlotAvailable(ctx, availability.SlotCheck{BusinessID: "b1", ServiceID: "cut", Date: monday, Start: localtime.EndOfDay + 1})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for bad time, got %v", err)
	}
}

func TestHealthService(t *testing.T) {
	conn := startServer(t, &stubEngine{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
}
