package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avoynich/wsprovd/internal/model"
)

var _ model.SafeguardStore = (*SafeguardRepository)(nil)

type SafeguardRepository struct {
	db *Connection
}

func NewSafeguardRepository(db *Connection) *SafeguardRepository {
	return &SafeguardRepository{
		db: db,
	}
}

func (r *SafeguardRepository) GetLastAttempt(ctx context.Context, op, host string) (time.Time, error) {
	var last time.Time
	query := `SELECT last_attempt FROM safeguards WHERE op = $1 AND host = $2`

	err := r.db.QueryRow(ctx, query, op, host).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, model.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to get last attempt: %w", err)
	}

	return last, nil
}

func (r *SafeguardRepository) SetLastAttempt(ctx context.Context, op, host string, at time.Time) error {
	query := `INSERT INTO safeguards (op, host, last_attempt) VALUES ($1, $2, $3)
			  ON CONFLICT (op, host) DO UPDATE SET last_attempt = EXCLUDED.last_attempt`

	if _, err := r.db.Exec(ctx, query, op, host, at); err != nil {
		return fmt.Errorf("failed to set last attempt: %w", err)
	}

	return nil
}
