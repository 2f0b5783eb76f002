// Package scheduling is the Go client of the availability gRPC API.
package scheduling

import (
	"context"
	"fmt"

	"github.com/bookit-app/bookit/libs/grpcx"
	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/availability"
	"github.com/bookit-app/bookit/services/booking-service/internal/grpcserver"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Slots struct {
	BusinessID  string
	ServiceID   string
	Timezone    string
	DurationMin int
	Days        map[localtime.Date][]localtime.Clock
}

type Client struct {
	conn grpc.ClientConnInterface
	// closer is set when the client owns the connection.
	closer func() error
}

// Dial connects lazily to addr through grpcx.Dial.
func Dial(addr string, extra ...grpc.DialOption) (*Client, error) {
	conn, err := grpcx.Dial(addr, grpcx.DialOptions{}, extra...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, closer: conn.Close}, nil
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) GetAvailableSlots(ctx context.Context, q availability.SlotQuery) (Slots, error) {
	fields := map[string]any{
		"business_id": q.BusinessID,
		"service_id":  q.ServiceID,
		"from":        q.From.String(),
	}
	if !q.To.IsZero() {
		fields["to"] = q.To.String()
	}
	if q.StaffID != nil {
		fields["staff_id"] = *q.StaffID
	}

	resp, err := c.invoke(ctx, grpcserver.MethodGetAvailableSlots, fields)
	if err != nil {
		return Slots{}, err
	}

	m := resp.AsMap()
	out := Slots{
		BusinessID: asString(m["business_id"]),
		ServiceID:  asString(m["service_id"]),
		Timezone:   asString(m["timezone"]),
		Days:       map[localtime.Date][]localtime.Clock{},
	}
	if n, ok := m["duration_min"].(float64); ok {
		out.DurationMin = int(n)
	}
	days, _ := m["days"].([]any)
	for _, raw := range days {
		day, _ := raw.(map[string]any)
		date, err := localtime.ParseDate(asString(day["date"]))
		if err != nil {
			return Slots{}, fmt.Errorf("scheduling: bad date in response: %w", err)
		}
		slots := []localtime.Clock{}
		list, _ := day["slots"].([]any)
		for _, s := range list {
			clock, err := localtime.ParseClock(asString(s))
			if err != nil {
				return Slots{}, fmt.Errorf("scheduling: bad slot in response: %w", err)
			}
			slots = append(slots, clock)
		}
		out.Days[date] = slots
	}
	return out, nil
}

func (c *Client) IsSlotAvailable(ctx context.Context, check availability.SlotCheck) (bool, error) {
	fields := map[string]any{
		"business_id": check.BusinessID,
		"service_id":  check.ServiceID,
		"date":        check.Date.String(),
		"time":        check.Start.String(),
	}
	if check.StaffID != nil {
		fields["staff_id"] = *check.StaffID
	}
	resp, err := c.invoke(ctx, grpcserver.MethodIsSlotAvailable, fields)
	if err != nil {
		return false, err
	}
	return resp.GetFields()["available"].GetBoolValue(), nil
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("scheduling: build request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, fromStatus(method, err)
	}
	return resp, nil
}

// fromStatus turns a gRPC status back into the matching error kind so
// callers can use errors.Is across the wire.
func fromStatus(method string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	var kind error
	switch st.Code() {
	case codes.NotFound:
		kind = apperr.ErrNotFound
	case codes.InvalidArgument:
		kind = apperr.ErrInvalidInput
	case codes.Aborted:
		kind = apperr.ErrStorageConflict
	case codes.FailedPrecondition:
		kind = apperr.ErrInvalidTransition
	case codes.Unavailable, codes.DeadlineExceeded:
		kind = apperr.ErrStorageUnavailable
	default:
		return fmt.Errorf("%s: %w", method, err)
	}
	return fmt.Errorf("%s: %w: %s", method, kind, st.Message())
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
