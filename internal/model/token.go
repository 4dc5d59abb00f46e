package model

import "github.com/google/uuid"

// SessionTokenManager issues and validates session tokens bound to a
// (workspace, device) pair. Tokens are opaque to clients.
type SessionTokenManager interface {
	Issue(wid, deviceID uuid.UUID) (string, error)
	Parse(token string) (wid uuid.UUID, deviceID uuid.UUID, err error)
}
