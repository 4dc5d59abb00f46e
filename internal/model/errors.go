package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrWorkspaceExists      = errors.New("workspace already exists")
	ErrDeviceExists         = errors.New("device already registered")
	ErrUnsupportedAlgorithm = errors.New("unsupported key algorithm")
	ErrBadValue             = errors.New("invalid value")
	ErrOwnershipProof       = errors.New("ownership proof rejected")
)

// ThrottledError reports a safeguarded operation attempted again before
// the per-host timeout elapsed.
type ThrottledError struct {
	Wait time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled: retry in %d seconds", int(e.Wait.Seconds()))
}

// WaitSeconds returns the remaining wait rounded up to whole seconds.
func (e *ThrottledError) WaitSeconds() int {
	secs := int((e.Wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// LockoutError reports a source denied by the failure ledger until the
// lockout expires.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("locked out until %s", e.Until.UTC().Format(time.RFC3339))
}
