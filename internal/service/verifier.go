package service

import (
	"context"
	"fmt"

	"github.com/avoynich/wsprovd/internal/model"
	"github.com/avoynich/wsprovd/internal/password"
)

// DeleteVerifier proves ownership of a workspace before destructive
// operations. The concrete challenge/response scheme is still settling,
// so the manager only depends on this capability.
type DeleteVerifier interface {
	Verify(ctx context.Context, ws model.Workspace, publicKey, proof string) error
}

// PasswordVerifier accepts a delete request when the presented proof
// re-verifies against the workspace's stored password hash.
type PasswordVerifier struct{}

func NewPasswordVerifier() *PasswordVerifier {
	return &PasswordVerifier{}
}

func (v *PasswordVerifier) Verify(ctx context.Context, ws model.Workspace, publicKey, proof string) error {
	if ws.PasswordHash == "" || ws.PasswordHash == "-" {
		return model.ErrOwnershipProof
	}

	ok, err := password.Verify(proof, ws.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify ownership proof: %w", err)
	}
	if !ok {
		return model.ErrOwnershipProof
	}
	return nil
}
