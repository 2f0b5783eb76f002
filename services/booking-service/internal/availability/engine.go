package availability

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultMaxRangeDays = 31

// Store is the read side the engine needs. Every method reports unknown ids
// with apperr.ErrNotFound.
type Store interface {
	GetBusiness(ctx context.Context, businessID string) (model.Business, error)
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
	GetStaff(ctx context.Context, businessID, staffID string) (model.Staff, error)
	// ListQualifiedStaff returns active staff linked to the service, in a stable order.
	ListQualifiedStaff(ctx context.Context, businessID, serviceID string) ([]model.Staff, error)
	// HasStaff reports whether the business has any active staff. Without it
	// the business is booked as a single resource.
	HasStaff(ctx context.Context, businessID string) (bool, error)
	ListRules(ctx context.Context, businessID string) ([]model.AvailabilityRule, error)
	ListExceptions(ctx context.Context, businessID string, from, to localtime.Date) ([]model.AvailabilityException, error)
	// ListBusy returns non-canceled appointments intersecting [from, to). A nil
	// staffID selects every appointment of the business.
	ListBusy(ctx context.Context, businessID string, staffID *string, from, to time.Time) ([]model.Appointment, error)
}

type Config struct {
	Granularity  int // minutes between candidate starts
	MaxRangeDays int
	MinNotice    time.Duration
	Now          func() time.Time
}

type Engine struct {
	store  Store
	cfg    Config
	tracer trace.Tracer
}

func NewEngine(store Store, cfg Config) *Engine {
	if cfg.Granularity <= 0 {
		cfg.Granularity = DefaultGranularity
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = DefaultMaxRangeDays
	}
	if cfg.MinNotice < 0 {
		cfg.MinNotice = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/bookit-app/bookit/services/booking-service/internal/availability"),
	}
}

// WithStore returns a copy of the engine reading from store, e.g. one bound
// to a transaction.
func (e *Engine) WithStore(store Store) *Engine {
	next := *e
	next.store = store
	return &next
}

func (e *Engine) Granularity() int { return e.cfg.Granularity }

type SlotQuery struct {
	BusinessID string
	ServiceID  string
	StaffID    *string // nil means any qualified staff
	From       localtime.Date
	To         localtime.Date // inclusive; zero means From
}

type SlotCheck struct {
	BusinessID string
	ServiceID  string
	StaffID    *string
	Date       localtime.Date
	Start      localtime.Clock
}

// Result carries the slots plus the context callers need to render them.
type Result struct {
	Business model.Business
	Service  model.Service
	Location *time.Location
	Days     map[localtime.Date][]localtime.Clock
}

// Dates returns the result's dates in ascending order.
func (r Result) Dates() []localtime.Date {
	dates := make([]localtime.Date, 0, len(r.Days))
	for d := range r.Days {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, localtime.Date.Compare)
	return dates
}

// resource is one bookable calendar: a staff member, or the whole business
// when it has no staff.
type resource struct {
	staffID *string
	busy    []Busy
}

type plan struct {
	business  model.Business
	service   model.Service
	loc       *time.Location
	resources []resource
}

// GetAvailableSlots returns, for every date in [From, To], the ordered local
// start times at which the service can be booked. A date with no slots maps
// to an empty slice.
func (e *Engine) GetAvailableSlots(ctx context.Context, q SlotQuery) (Result, error) {
	const op = "availability.GetAvailableSlots"

	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("business.id", q.BusinessID),
		attribute.String("service.id", q.ServiceID),
		attribute.String("range.from", q.From.String()),
	))
	defer span.End()

	res, err := e.getAvailableSlots(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	total := 0
	for _, slots := range res.Days {
		total += len(slots)
	}
	span.SetAttributes(attribute.Int("slots.count", total), attribute.Int("range.days", len(res.Days)))
	return res, nil
}

func (e *Engine) getAvailableSlots(ctx context.Context, q SlotQuery) (Result, error) {
	if q.From.IsZero() {
		return Result{}, apperr.Invalid("from date is required")
	}
	if q.To.IsZero() {
		q.To = q.From
	}
	if q.To.Before(q.From) {
		return Result{}, apperr.Invalid("to date %s is before from date %s", q.To, q.From)
	}
	if days := q.From.DaysUntil(q.To) + 1; days > e.cfg.MaxRangeDays {
		return Result{}, apperr.Invalid("date range of %d days exceeds the maximum of %d", days, e.cfg.MaxRangeDays)
	}

	p, err := e.prepare(ctx, q.BusinessID, q.ServiceID, q.StaffID)
	if err != nil {
		return Result{}, err
	}
	rules, err := e.store.ListRules(ctx, q.BusinessID)
	if err != nil {
		return Result{}, err
	}
	exceptions, err := e.store.ListExceptions(ctx, q.BusinessID, q.From, q.To)
	if err != nil {
		return Result{}, err
	}
	if err := e.loadBusy(ctx, &p, dayStart(q.From, p.loc).Add(-24*time.Hour), dayStart(q.To.AddDays(1), p.loc).Add(24*time.Hour)); err != nil {
		return Result{}, err
	}

	cutoff := e.cfg.Now().Add(e.cfg.MinNotice)
	days := make(map[localtime.Date][]localtime.Clock, q.From.DaysUntil(q.To)+1)
	for d := q.From; !d.After(q.To); d = d.AddDays(1) {
		seen := map[localtime.Clock]bool{}
		slots := []localtime.Clock{}
		for _, r := range p.resources {
			intervals := ResolveIntervals(rules, exceptions, r.staffID, d)
			for start := range GenerateSlots(intervals, p.service.DurationMin, e.cfg.Granularity) {
				if seen[start] {
					continue
				}
				free, err := e.free(p, r, d, start, cutoff)
				if err != nil {
					return Result{}, err
				}
				if free {
					seen[start] = true
					slots = append(slots, start)
				}
			}
		}
		slices.Sort(slots)
		days[d] = slots
	}

	return Result{Business: p.business, Service: p.service, Location: p.loc, Days: days}, nil
}

// IsSlotAvailable reports whether the service can be booked at check.Start on
// check.Date. The start does not need to sit on the slot grid.
func (e *Engine) IsSlotAvailable(ctx context.Context, check SlotCheck) (bool, error) {
	_, ok, err := e.FindFreeStaff(ctx, check)
	return ok, err
}

// FindFreeStaff returns the first candidate resource free at the requested
// start. The returned staff id is nil for a business without staff.
func (e *Engine) FindFreeStaff(ctx context.Context, check SlotCheck) (*string, bool, error) {
	const op = "availability.FindFreeStaff"

	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("business.id", check.BusinessID),
		attribute.String("service.id", check.ServiceID),
		attribute.String("slot.date", check.Date.String()),
		attribute.String("slot.start", check.Start.String()),
	))
	defer span.End()

	staffID, ok, err := e.findFreeStaff(ctx, check)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	span.SetAttributes(attribute.Bool("slot.available", ok))
	return staffID, ok, nil
}

func (e *Engine) findFreeStaff(ctx context.Context, check SlotCheck) (*string, bool, error) {
	if check.Date.IsZero() {
		return nil, false, apperr.Invalid("date is required")
	}
	if check.Start < 0 || check.Start >= localtime.EndOfDay {
		return nil, false, apperr.Invalid("start %s out of range", check.Start)
	}

	p, err := e.prepare(ctx, check.BusinessID, check.ServiceID, check.StaffID)
	if err != nil {
		return nil, false, err
	}
	at, err := localtime.ToInstant(check.Date, check.Start, p.loc)
	if errors.Is(err, localtime.ErrNonexistentLocalTime) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rules, err := e.store.ListRules(ctx, check.BusinessID)
	if err != nil {
		return nil, false, err
	}
	exceptions, err := e.store.ListExceptions(ctx, check.BusinessID, check.Date, check.Date)
	if err != nil {
		return nil, false, err
	}
	if err := e.loadBusy(ctx, &p, at.Add(-24*time.Hour), at.Add(p.service.Duration()+24*time.Hour)); err != nil {
		return nil, false, err
	}

	cutoff := e.cfg.Now().Add(e.cfg.MinNotice)
	for _, r := range p.resources {
		intervals := ResolveIntervals(rules, exceptions, r.staffID, check.Date)
		if !fitsAny(intervals, check.Start, p.service.DurationMin) {
			continue
		}
		free, err := e.free(p, r, check.Date, check.Start, cutoff)
		if err != nil {
			return nil, false, err
		}
		if free {
			return r.staffID, true, nil
		}
	}
	return nil, false, nil
}

func (e *Engine) prepare(ctx context.Context, businessID, serviceID string, staffID *string) (plan, error) {
	if businessID == "" || serviceID == "" {
		return plan{}, apperr.Invalid("business_id and service_id are required")
	}
	business, err := e.store.GetBusiness(ctx, businessID)
	if err != nil {
		return plan{}, err
	}
	loc, err := localtime.LoadZone(business.Timezone)
	if err != nil {
		return plan{}, err
	}
	service, err := e.store.GetService(ctx, businessID, serviceID)
	if err != nil {
		return plan{}, err
	}
	if !service.Active {
		return plan{}, apperr.NotFound("service")
	}
	if service.DurationMin <= 0 || service.BufferBeforeMin < 0 || service.BufferAfterMin < 0 {
		return plan{}, apperr.Invalid("service %s has invalid duration or buffers", service.ID)
	}

	p := plan{business: business, service: service, loc: loc}

	if staffID != nil {
		staff, err := e.store.GetStaff(ctx, businessID, *staffID)
		if err != nil {
			return plan{}, err
		}
		if !staff.Active {
			return plan{}, apperr.NotFound("staff")
		}
		qualified, err := e.store.ListQualifiedStaff(ctx, businessID, serviceID)
		if err != nil {
			return plan{}, err
		}
		if !slices.ContainsFunc(qualified, func(s model.Staff) bool { return s.ID == staff.ID }) {
			return plan{}, apperr.Invalid("staff %s does not offer service %s", staff.ID, service.ID)
		}
		id := staff.ID
		p.resources = []resource{{staffID: &id}}
		return p, nil
	}

	hasStaff, err := e.store.HasStaff(ctx, businessID)
	if err != nil {
		return plan{}, err
	}
	if !hasStaff {
		p.resources = []resource{{}}
		return p, nil
	}
	qualified, err := e.store.ListQualifiedStaff(ctx, businessID, serviceID)
	if err != nil {
		return plan{}, err
	}
	for _, s := range qualified {
		id := s.ID
		p.resources = append(p.resources, resource{staffID: &id})
	}
	return p, nil
}

func (e *Engine) loadBusy(ctx context.Context, p *plan, from, to time.Time) error {
	for i := range p.resources {
		appts, err := e.store.ListBusy(ctx, p.business.ID, p.resources[i].staffID, from, to)
		if err != nil {
			return err
		}
		busy := make([]Busy, 0, len(appts))
		for _, a := range appts {
			if a.Status.Occupies() {
				busy = append(busy, BusyFromAppointment(a))
			}
		}
		p.resources[i].busy = busy
	}
	return nil
}

// free checks one local start against notice and the resource's bookings.
// Nonexistent local times are never free.
func (e *Engine) free(p plan, r resource, date localtime.Date, start localtime.Clock, cutoff time.Time) (bool, error) {
	at, err := localtime.ToInstant(date, start, p.loc)
	if errors.Is(err, localtime.ErrNonexistentLocalTime) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if at.Before(cutoff) {
		return false, nil
	}
	candidate := Busy{
		Start:        at,
		End:          at.Add(p.service.Duration()),
		BufferBefore: time.Duration(p.service.BufferBeforeMin) * time.Minute,
		BufferAfter:  time.Duration(p.service.BufferAfterMin) * time.Minute,
		ServiceID:    p.service.ID,
	}
	return CheckSlot(candidate, r.busy, p.service.Capacity()), nil
}

func fitsAny(intervals []Interval, start localtime.Clock, duration int) bool {
	for _, iv := range intervals {
		if iv.Contains(start, duration) {
			return true
		}
	}
	return false
}

// dayStart is local midnight of d in loc, normalized by time.Date.
func dayStart(d localtime.Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}
