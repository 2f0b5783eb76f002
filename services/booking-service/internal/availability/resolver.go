package availability

import (
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
)

// ResolveIntervals returns the sorted, disjoint open intervals for date.
//
// A date exception wins over every weekly rule: the staff member's own
// exception if staffID is set and one exists, else the business-wide one.
// Without an exception, the staff member's rules for the weekday are used when
// any exist; otherwise the business-wide rules apply. The two sets are never
// blended.
func ResolveIntervals(rules []model.AvailabilityRule, exceptions []model.AvailabilityException, staffID *string, date localtime.Date) []Interval {
	if exc, ok := findException(exceptions, staffID, date); ok {
		if exc.IsClosed || exc.Start == nil || exc.End == nil {
			return nil
		}
		return MergeIntervals([]Interval{{Start: *exc.Start, End: *exc.End}})
	}

	weekday := date.Weekday()
	var staffRules, businessRules []Interval
	for _, rule := range rules {
		if rule.Weekday != weekday {
			continue
		}
		iv := Interval{Start: rule.Start, End: rule.End}
		switch {
		case rule.StaffID == nil:
			businessRules = append(businessRules, iv)
		case staffID != nil && *rule.StaffID == *staffID:
			staffRules = append(staffRules, iv)
		}
	}
	if len(staffRules) > 0 {
		return MergeIntervals(staffRules)
	}
	return MergeIntervals(businessRules)
}

func findException(exceptions []model.AvailabilityException, staffID *string, date localtime.Date) (model.AvailabilityException, bool) {
	var (
		business model.AvailabilityException
		found    bool
	)
	for _, exc := range exceptions {
		if exc.Date != date {
			continue
		}
		if exc.StaffID == nil {
			business, found = exc, true
			continue
		}
		if staffID != nil && *exc.StaffID == *staffID {
			return exc, true
		}
	}
	return business, found
}
