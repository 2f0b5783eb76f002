package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
)

// ServicePatch is a partial update of a service. Nil fields are left as they are.
type ServicePatch struct {
	Name            *string `json:"name,omitempty"`
	DurationMin     *int    `json:"duration_min,omitempty"`
	BufferBeforeMin *int    `json:"buffer_before_min,omitempty"`
	BufferAfterMin  *int    `json:"buffer_after_min,omitempty"`
	MaxConcurrent   *int    `json:"max_concurrent,omitempty"`
	PriceCents      *int64  `json:"price_cents,omitempty"`
	DepositCents    *int64  `json:"deposit_cents,omitempty"`
	Active          *bool   `json:"active,omitempty"`
}

type patchField struct {
	column string
	value  any
}

func (p ServicePatch) fields() []patchField {
	var out []patchField
	add := func(column string, value any) {
		out = append(out, patchField{column: column, value: value})
	}
	if p.Name != nil {
		add("name", strings.TrimSpace(*p.Name))
	}
	if p.DurationMin != nil {
		add("duration_min", *p.DurationMin)
	}
	if p.BufferBeforeMin != nil {
		add("buffer_before_min", *p.BufferBeforeMin)
	}
	if p.BufferAfterMin != nil {
		add("buffer_after_min", *p.BufferAfterMin)
	}
	if p.MaxConcurrent != nil {
		add("max_concurrent", *p.MaxConcurrent)
	}
	if p.PriceCents != nil {
		add("price_cents", *p.PriceCents)
	}
	if p.DepositCents != nil {
		add("deposit_cents", *p.DepositCents)
	}
	if p.Active != nil {
		add("active", *p.Active)
	}
	return out
}

func (p ServicePatch) Empty() bool {
	return len(p.fields()) == 0
}

func (p ServicePatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return apperr.Invalid("name must not be empty")
	}
	if p.DurationMin != nil && (*p.DurationMin <= 0 || *p.DurationMin > 24*60) {
		return apperr.Invalid("duration_min must be between 1 and 1440")
	}
	if p.BufferBeforeMin != nil && *p.BufferBeforeMin < 0 {
		return apperr.Invalid("buffer_before_min must be >= 0")
	}
	if p.BufferAfterMin != nil && *p.BufferAfterMin < 0 {
		return apperr.Invalid("buffer_after_min must be >= 0")
	}
	if p.MaxConcurrent != nil && *p.MaxConcurrent < 1 {
		return apperr.Invalid("max_concurrent must be >= 1")
	}
	if p.PriceCents != nil && *p.PriceCents < 0 {
		return apperr.Invalid("price_cents must be >= 0")
	}
	if p.DepositCents != nil && *p.DepositCents < 0 {
		return apperr.Invalid("deposit_cents must be >= 0")
	}
	if p.PriceCents != nil && p.DepositCents != nil && *p.DepositCents > *p.PriceCents {
		return apperr.Invalid("deposit_cents must not exceed price_cents")
	}
	return nil
}

// SQL renders the parameterized UPDATE for the set fields. Column names come
// from a fixed list, only values are bound.
func (p ServicePatch) SQL(businessID, serviceID string) (string, []any, error) {
	if err := p.Validate(); err != nil {
		return "", nil, err
	}
	fields := p.fields()
	if len(fields) == 0 {
		return "", nil, apperr.Invalid("patch has no fields")
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for _, f := range fields {
		args = append(args, f.value)
		sets = append(sets, fmt.Sprintf("%s = $%d", f.column, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, businessID, serviceID)

	query := fmt.Sprintf(
		"UPDATE services SET %s WHERE business_id = $%d AND id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args)-1, len(args), serviceColumns,
	)
	return query, args, nil
}

func (r *Repository) PatchService(ctx context.Context, businessID, serviceID string, patch ServicePatch) (model.Service, error) {
	const op = "storage.PatchService"

	query, args, err := patch.SQL(businessID, serviceID)
	if err != nil {
		return model.Service{}, fmt.Errorf("%s: %w", op, err)
	}
	s, err := scanService(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		return model.Service{}, classify(op, err)
	}
	return s, nil
}
