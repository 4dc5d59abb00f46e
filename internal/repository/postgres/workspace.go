package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avoynich/wsprovd/internal/model"
)

var _ model.WorkspaceStore = (*WorkspaceRepository)(nil)

const uniqueViolation = "23505"

type WorkspaceRepository struct {
	db *Connection
}

func NewWorkspaceRepository(db *Connection) *WorkspaceRepository {
	return &WorkspaceRepository{
		db: db,
	}
}

func (r *WorkspaceRepository) Get(ctx context.Context, wid uuid.UUID) (model.Workspace, error) {
	var ws model.Workspace
	query := `SELECT wid, friendly_address, password, status, quota, created_at, updated_at
			  FROM workspaces WHERE wid = $1`

	err := r.db.QueryRow(ctx, query, wid).Scan(
		&ws.ID, &ws.FriendlyAddress, &ws.PasswordHash, &ws.Status, &ws.Quota, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Workspace{}, model.ErrNotFound
		}
		return model.Workspace{}, fmt.Errorf("failed to get workspace: %w", err)
	}

	devQuery := `SELECT wid, devid, keytype, devkey, sessid, status, created_at
				 FROM workspace_devices WHERE wid = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, devQuery, wid)
	if err != nil {
		return model.Workspace{}, fmt.Errorf("failed to get workspace devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dev model.DeviceBinding
		if err := rows.Scan(&dev.WorkspaceID, &dev.DeviceID, &dev.KeyType, &dev.DeviceKey,
			&dev.SessionID, &dev.Status, &dev.CreatedAt); err != nil {
			return model.Workspace{}, fmt.Errorf("failed to scan workspace device: %w", err)
		}
		ws.Devices = append(ws.Devices, dev)
	}
	if err := rows.Err(); err != nil {
		return model.Workspace{}, fmt.Errorf("failed to read workspace devices: %w", err)
	}

	return ws, nil
}

// Create inserts the workspace row and its first device binding in one
// transaction. The primary key on workspaces.wid makes concurrent
// creations of the same WID resolve to exactly one success.
func (r *WorkspaceRepository) Create(ctx context.Context, ws model.Workspace, dev model.DeviceBinding) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO workspaces (wid, friendly_address, password, status, quota, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ws.ID, ws.FriendlyAddress, ws.PasswordHash, ws.Status, ws.Quota, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrWorkspaceExists
		}
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	if err := insertDevice(ctx, tx, dev); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit workspace creation: %w", err)
	}

	return nil
}

func (r *WorkspaceRepository) AddDevice(ctx context.Context, dev model.DeviceBinding) error {
	return insertDevice(ctx, r.db, dev)
}

func (r *WorkspaceRepository) SetStatus(ctx context.Context, wid uuid.UUID, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE workspaces SET status = $1, updated_at = now() WHERE wid = $2`, status, wid)
	if err != nil {
		return fmt.Errorf("failed to set workspace status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Remove marks a workspace deleted and drops its device bindings. The
// workspace row is kept so the WID cannot be reused.
func (r *WorkspaceRepository) Remove(ctx context.Context, wid uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE workspaces SET password = '-', status = $1, updated_at = now() WHERE wid = $2`,
		model.StatusDeleted, wid)
	if err != nil {
		return fmt.Errorf("failed to mark workspace deleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM workspace_devices WHERE wid = $1`, wid); err != nil {
		return fmt.Errorf("failed to remove workspace devices: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit workspace removal: %w", err)
	}

	return nil
}

// Purge hard-deletes a workspace and its devices. Used only to roll back
// a creation whose content root could not be provisioned.
func (r *WorkspaceRepository) Purge(ctx context.Context, wid uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM workspace_devices WHERE wid = $1`, wid); err != nil {
		return fmt.Errorf("failed to purge workspace devices: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workspaces WHERE wid = $1`, wid); err != nil {
		return fmt.Errorf("failed to purge workspace: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit workspace purge: %w", err)
	}

	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertDevice(ctx context.Context, db execer, dev model.DeviceBinding) error {
	_, err := db.Exec(ctx,
		`INSERT INTO workspace_devices (wid, devid, keytype, devkey, sessid, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		dev.WorkspaceID, dev.DeviceID, dev.KeyType, dev.DeviceKey, dev.SessionID, dev.Status, dev.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDeviceExists
		}
		return fmt.Errorf("failed to add device: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
