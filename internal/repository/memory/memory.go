// Package memory holds the in-memory reference implementations of the
// identity store contracts. Each repository serializes its operations
// with a mutex, which gives the same exactly-once guarantees the
// postgres repositories get from their primary keys. They back unit
// tests and single-process deployments without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avoynich/wsprovd/internal/model"
)

var _ model.WorkspaceStore = (*WorkspaceRepository)(nil)

type WorkspaceRepository struct {
	mu         sync.Mutex
	workspaces map[uuid.UUID]*model.Workspace
}

func NewWorkspaceRepository() *WorkspaceRepository {
	return &WorkspaceRepository{
		workspaces: make(map[uuid.UUID]*model.Workspace),
	}
}

func (r *WorkspaceRepository) Get(ctx context.Context, wid uuid.UUID) (model.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[wid]
	if !ok {
		return model.Workspace{}, model.ErrNotFound
	}

	out := *ws
	out.Devices = append([]model.DeviceBinding(nil), ws.Devices...)
	return out, nil
}

func (r *WorkspaceRepository) Create(ctx context.Context, ws model.Workspace, dev model.DeviceBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workspaces[ws.ID]; ok {
		return model.ErrWorkspaceExists
	}

	stored := ws
	stored.Devices = []model.DeviceBinding{dev}
	r.workspaces[ws.ID] = &stored
	return nil
}

func (r *WorkspaceRepository) AddDevice(ctx context.Context, dev model.DeviceBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[dev.WorkspaceID]
	if !ok {
		return model.ErrNotFound
	}
	for _, existing := range ws.Devices {
		if existing.DeviceID == dev.DeviceID {
			return model.ErrDeviceExists
		}
	}

	ws.Devices = append(ws.Devices, dev)
	return nil
}

func (r *WorkspaceRepository) SetStatus(ctx context.Context, wid uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[wid]
	if !ok {
		return model.ErrNotFound
	}

	ws.Status = status
	ws.UpdatedAt = time.Now()
	return nil
}

func (r *WorkspaceRepository) Remove(ctx context.Context, wid uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[wid]
	if !ok {
		return model.ErrNotFound
	}

	ws.Status = model.StatusDeleted
	ws.PasswordHash = "-"
	ws.Devices = nil
	ws.UpdatedAt = time.Now()
	return nil
}

func (r *WorkspaceRepository) Purge(ctx context.Context, wid uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.workspaces, wid)
	return nil
}

var _ model.SafeguardStore = (*SafeguardRepository)(nil)

type SafeguardRepository struct {
	mu       sync.Mutex
	attempts map[string]time.Time
}

func NewSafeguardRepository() *SafeguardRepository {
	return &SafeguardRepository{
		attempts: make(map[string]time.Time),
	}
}

func (r *SafeguardRepository) GetLastAttempt(ctx context.Context, op, host string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	last, ok := r.attempts[op+"|"+host]
	if !ok {
		return time.Time{}, model.ErrNotFound
	}
	return last, nil
}

func (r *SafeguardRepository) SetLastAttempt(ctx context.Context, op, host string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts[op+"|"+host] = at
	return nil
}

var _ model.FailureStore = (*FailureRepository)(nil)

type FailureRepository struct {
	mu       sync.Mutex
	failures map[string]*model.FailureRecord
}

func NewFailureRepository() *FailureRepository {
	return &FailureRepository{
		failures: make(map[string]*model.FailureRecord),
	}
}

func (r *FailureRepository) Get(ctx context.Context, failType, source string) (model.FailureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.failures[failType+"|"+source]
	if !ok {
		return model.FailureRecord{}, model.ErrNotFound
	}
	return *rec, nil
}

func (r *FailureRepository) Increment(ctx context.Context, failType, source string, at time.Time) (model.FailureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := failType + "|" + source
	rec, ok := r.failures[key]
	if !ok {
		rec = &model.FailureRecord{FailType: failType, Source: source}
		r.failures[key] = rec
	}

	rec.Count++
	rec.LastFailure = at
	return *rec, nil
}

func (r *FailureRepository) SetLockout(ctx context.Context, failType, source string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.failures[failType+"|"+source]
	if !ok {
		return model.ErrNotFound
	}

	u := until
	rec.LockoutUntil = &u
	return nil
}

func (r *FailureRepository) Reset(ctx context.Context, failType, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.failures, failType+"|"+source)
	return nil
}
