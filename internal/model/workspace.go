package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Workspace statuses. Deleted workspaces keep their row so a WID is never
// reissued to another account.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

// KeyTypeCurve25519 is the only device key algorithm currently accepted.
const KeyTypeCurve25519 = "curve25519"

// WorkspaceStore defines persistence operations for workspaces and their
// device bindings. Create must be atomic for the workspace row plus the
// first device binding, and must enforce WID uniqueness at the store
// boundary: two concurrent creations of the same WID resolve to one
// success and ErrWorkspaceExists for the rest.
type WorkspaceStore interface {
	Get(ctx context.Context, wid uuid.UUID) (Workspace, error)
	Create(ctx context.Context, workspace Workspace, device DeviceBinding) error
	AddDevice(ctx context.Context, device DeviceBinding) error
	SetStatus(ctx context.Context, wid uuid.UUID, status string) error
	Remove(ctx context.Context, wid uuid.UUID) error
	Purge(ctx context.Context, wid uuid.UUID) error
}

// Workspace represents one provisioned identity. FriendlyAddress is a
// human-readable alias for the WID; it is empty until the owner claims
// one.
type Workspace struct {
	ID              uuid.UUID
	FriendlyAddress string
	PasswordHash    string
	Status       string
	Quota        int64
	Devices      []DeviceBinding
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeviceBinding associates one client device key with a workspace and
// carries the session token issued for it. A device ID is unique within
// its workspace; re-registering the same device ID is a conflict.
type DeviceBinding struct {
	WorkspaceID uuid.UUID
	DeviceID    uuid.UUID
	KeyType     string
	DeviceKey   string
	SessionID   string
	Status      string
	CreatedAt   time.Time
}
