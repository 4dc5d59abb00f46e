package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avoynich/wsprovd/internal/model"
)

var _ model.FailureStore = (*FailureRepository)(nil)

type FailureRepository struct {
	db *Connection
}

func NewFailureRepository(db *Connection) *FailureRepository {
	return &FailureRepository{
		db: db,
	}
}

func (r *FailureRepository) Get(ctx context.Context, failType, source string) (model.FailureRecord, error) {
	var rec model.FailureRecord
	query := `SELECT failtype, source, count, last_failure, lockout_until
			  FROM failure_log WHERE failtype = $1 AND source = $2`

	err := r.db.QueryRow(ctx, query, failType, source).Scan(
		&rec.FailType, &rec.Source, &rec.Count, &rec.LastFailure, &rec.LockoutUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.FailureRecord{}, model.ErrNotFound
		}
		return model.FailureRecord{}, fmt.Errorf("failed to get failure record: %w", err)
	}

	return rec, nil
}

func (r *FailureRepository) Increment(ctx context.Context, failType, source string, at time.Time) (model.FailureRecord, error) {
	var rec model.FailureRecord
	query := `INSERT INTO failure_log (failtype, source, count, last_failure)
			  VALUES ($1, $2, 1, $3)
			  ON CONFLICT (failtype, source) DO UPDATE
			  SET count = failure_log.count + 1, last_failure = EXCLUDED.last_failure
			  RETURNING failtype, source, count, last_failure, lockout_until`

	err := r.db.QueryRow(ctx, query, failType, source, at).Scan(
		&rec.FailType, &rec.Source, &rec.Count, &rec.LastFailure, &rec.LockoutUntil,
	)
	if err != nil {
		return model.FailureRecord{}, fmt.Errorf("failed to increment failure record: %w", err)
	}

	return rec, nil
}

func (r *FailureRepository) SetLockout(ctx context.Context, failType, source string, until time.Time) error {
	query := `UPDATE failure_log SET lockout_until = $1 WHERE failtype = $2 AND source = $3`

	if _, err := r.db.Exec(ctx, query, until, failType, source); err != nil {
		return fmt.Errorf("failed to set lockout: %w", err)
	}

	return nil
}

func (r *FailureRepository) Reset(ctx context.Context, failType, source string) error {
	query := `DELETE FROM failure_log WHERE failtype = $1 AND source = $2`

	if _, err := r.db.Exec(ctx, query, failType, source); err != nil {
		return fmt.Errorf("failed to reset failure record: %w", err)
	}

	return nil
}
