package storage

import (
	"context"

	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Owner is the repository used by owner endpoints. Writes that touch more
// than one row run in their own transaction.
type Owner struct {
	*Repository
	db TxRunner
}

func NewOwner(repo *Repository, runner TxRunner) *Owner {
	return &Owner{Repository: repo, db: runner}
}

func (o *Owner) ReplaceRules(ctx context.Context, businessID string, staffID *string, rules []model.AvailabilityRule) error {
	return o.db.InTx(ctx, func(tx pgx.Tx) error {
		repo := o.Repository.WithQuerier(tx)
		if staffID != nil {
			if _, err := repo.GetStaff(ctx, businessID, *staffID); err != nil {
				return err
			}
		}
		return repo.ReplaceRules(ctx, businessID, staffID, rules)
	})
}

func (o *Owner) UpsertException(ctx context.Context, exc model.AvailabilityException) (model.AvailabilityException, error) {
	if exc.StaffID != nil {
		if _, err := o.Repository.GetStaff(ctx, exc.BusinessID, *exc.StaffID); err != nil {
			return model.AvailabilityException{}, err
		}
	}
	return o.Repository.UpsertException(ctx, exc)
}
