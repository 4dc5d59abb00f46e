package model

import (
	"context"
	"time"
)

// Guarded operation classes for the per-host safeguard timestamps.
const (
	OpAccountCreate = "account-create"
	OpAccountDelete = "account-delete"
)

// Failure classes tracked by the lockout ledger.
const (
	FailWorkspace = "workspace"
	FailPassword  = "password"
	FailRecipient = "recipient"
)

// SafeguardStore persists the last-attempt timestamp per guarded
// operation and source host.
type SafeguardStore interface {
	GetLastAttempt(ctx context.Context, op, host string) (time.Time, error)
	SetLastAttempt(ctx context.Context, op, host string, at time.Time) error
}

// FailureStore persists the consecutive-failure ledger driving lockouts.
type FailureStore interface {
	Get(ctx context.Context, failType, source string) (FailureRecord, error)
	Increment(ctx context.Context, failType, source string, at time.Time) (FailureRecord, error)
	SetLockout(ctx context.Context, failType, source string, until time.Time) error
	Reset(ctx context.Context, failType, source string) error
}

// FailureRecord tracks consecutive failures for one (class, source) pair.
// Source is a host address or a workspace ID depending on the class.
type FailureRecord struct {
	FailType     string
	Source       string
	Count        int
	LastFailure  time.Time
	LockoutUntil *time.Time
}
