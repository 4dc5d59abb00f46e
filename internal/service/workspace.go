package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avoynich/wsprovd/internal/logger"
	"github.com/avoynich/wsprovd/internal/model"
)

// ErrMissingHost marks a creation request that reached the manager
// without a source host. That is a programming defect in the caller, not
// client input, so it surfaces as an internal error.
var ErrMissingHost = errors.New("missing source host")

// canonical UUID string length
const widLength = 36

var supportedKeyTypes = map[string]bool{
	model.KeyTypeCurve25519: true,
}

// CreateWorkspaceRequest carries the inputs for provisioning a
// workspace. RequestedWID, PasswordHash and DeviceKey are optional for
// the server-generated creation path.
type CreateWorkspaceRequest struct {
	RequestedWID string
	PasswordHash string
	KeyType      string
	DeviceKey    string
	SourceHost   string
}

// CreateWorkspaceResult returns the identifiers allocated for a new
// workspace and its first device.
type CreateWorkspaceResult struct {
	WorkspaceID uuid.UUID
	DeviceID    uuid.UUID
	SessionID   string
}

// DeleteWorkspaceRequest carries the inputs for destroying a workspace.
type DeleteWorkspaceRequest struct {
	WID        string
	PublicKey  string
	Proof      string
	SourceHost string
}

// Workspace provisions and destroys workspace identities.
type Workspace struct {
	store     model.WorkspaceStore
	storage   model.Storage
	safeguard *Safeguard
	sessions  model.SessionTokenManager
	verifier  DeleteVerifier

	defaultQuota int64
	logger       *logger.Logger
}

func NewWorkspace(
	store model.WorkspaceStore,
	storage model.Storage,
	safeguard *Safeguard,
	sessions model.SessionTokenManager,
	verifier DeleteVerifier,
	defaultQuota int64,
	logger *logger.Logger,
) *Workspace {
	return &Workspace{
		store:        store,
		storage:      storage,
		safeguard:    safeguard,
		sessions:     sessions,
		verifier:     verifier,
		defaultQuota: defaultQuota,
		logger:       logger,
	}
}

// Create provisions a workspace and its first device binding. Validation
// runs before any state is touched; the store insert is atomic, and a
// content-root failure rolls the insert back so nothing observable is
// left behind.
func (w *Workspace) Create(ctx context.Context, req CreateWorkspaceRequest) (CreateWorkspaceResult, error) {
	if req.SourceHost == "" {
		w.logger.Error("Workspace service: create request without source host")
		return CreateWorkspaceResult{}, ErrMissingHost
	}

	if !supportedKeyTypes[strings.ToLower(req.KeyType)] {
		return CreateWorkspaceResult{}, model.ErrUnsupportedAlgorithm
	}

	wid := uuid.New()
	if req.RequestedWID != "" {
		parsed, err := parseWID(req.RequestedWID)
		if err != nil {
			return CreateWorkspaceResult{}, err
		}
		wid = parsed
	}

	if err := w.safeguard.CheckAndMark(ctx, model.OpAccountCreate, req.SourceHost); err != nil {
		return CreateWorkspaceResult{}, err
	}

	now := time.Now()
	deviceID := uuid.New()

	sessionID, err := w.sessions.Issue(wid, deviceID)
	if err != nil {
		return CreateWorkspaceResult{}, fmt.Errorf("failed to issue session: %w", err)
	}

	ws := model.Workspace{
		ID:           wid,
		PasswordHash: req.PasswordHash,
		Status:       model.StatusActive,
		Quota:        w.defaultQuota,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	dev := model.DeviceBinding{
		WorkspaceID: wid,
		DeviceID:    deviceID,
		KeyType:     strings.ToLower(req.KeyType),
		DeviceKey:   req.DeviceKey,
		SessionID:   sessionID,
		Status:      model.StatusActive,
		CreatedAt:   now,
	}

	if err := w.store.Create(ctx, ws, dev); err != nil {
		if errors.Is(err, model.ErrWorkspaceExists) {
			return CreateWorkspaceResult{}, model.ErrWorkspaceExists
		}
		return CreateWorkspaceResult{}, fmt.Errorf("failed to create workspace record: %w", err)
	}

	if err := w.storage.EnsureRoot(ctx, wid.String()); err != nil {
		w.logger.Error("Workspace service: content root creation failed, rolling back",
			"wid", wid.String(),
			"error", err.Error())
		if perr := w.store.Purge(ctx, wid); perr != nil {
			w.logger.Error("Workspace service: rollback failed",
				"wid", wid.String(),
				"error", perr.Error())
		}
		return CreateWorkspaceResult{}, fmt.Errorf("failed to create workspace root: %w", err)
	}

	w.logger.Info("Workspace service: workspace created",
		"wid", wid.String(),
		"device_id", deviceID.String(),
		"host", req.SourceHost)

	return CreateWorkspaceResult{
		WorkspaceID: wid,
		DeviceID:    deviceID,
		SessionID:   sessionID,
	}, nil
}

// Exists resolves a relative path under a workspace root and reports
// whether it exists. A request with no path component is invalid on its
// face: there is nothing to check the existence of.
func (w *Workspace) Exists(ctx context.Context, widStr string, pathTokens []string) (bool, error) {
	wid, err := parseWID(widStr)
	if err != nil {
		return false, err
	}

	if len(pathTokens) == 0 {
		return false, model.ErrBadValue
	}
	for _, tok := range pathTokens {
		if tok == "" || tok == "." || tok == ".." ||
			strings.ContainsAny(tok, "/\\") {
			return false, model.ErrBadValue
		}
	}

	if _, err := w.store.Get(ctx, wid); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, model.ErrNotFound
		}
		return false, fmt.Errorf("failed to look up workspace: %w", err)
	}

	key := wid.String() + "/" + strings.Join(pathTokens, "/")
	exists, err := w.storage.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check path: %w", err)
	}
	return exists, nil
}

// Delete destroys a workspace after the caller proves ownership. It is
// guarded by the same per-host throttle as creation to block mass-delete
// abuse, and by the password failure ledger.
func (w *Workspace) Delete(ctx context.Context, req DeleteWorkspaceRequest) error {
	if req.SourceHost == "" {
		w.logger.Error("Workspace service: delete request without source host")
		return ErrMissingHost
	}

	wid, err := parseWID(req.WID)
	if err != nil {
		return err
	}

	if err := w.safeguard.CheckAndMark(ctx, model.OpAccountDelete, req.SourceHost); err != nil {
		return err
	}

	if err := w.safeguard.CheckLockout(ctx, model.FailPassword, wid.String()); err != nil {
		return err
	}

	ws, err := w.store.Get(ctx, wid)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrNotFound
		}
		return fmt.Errorf("failed to look up workspace: %w", err)
	}
	if ws.Status == model.StatusDeleted {
		return model.ErrNotFound
	}

	if err := w.verifier.Verify(ctx, ws, req.PublicKey, req.Proof); err != nil {
		if errors.Is(err, model.ErrOwnershipProof) {
			if ferr := w.safeguard.RecordFailure(ctx, model.FailPassword, wid.String()); ferr != nil {
				w.logger.Error("Workspace service: failed to record ownership failure",
					"wid", wid.String(),
					"error", ferr.Error())
			}
			return model.ErrOwnershipProof
		}
		return fmt.Errorf("failed to verify ownership: %w", err)
	}

	if err := w.store.Remove(ctx, wid); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}

	if err := w.storage.RemoveRoot(ctx, wid.String()); err != nil {
		// The record is already gone; content cleanup is best-effort.
		w.logger.Error("Workspace service: failed to remove content root",
			"wid", wid.String(),
			"error", err.Error())
	}

	w.logger.Info("Workspace service: workspace deleted",
		"wid", wid.String(),
		"host", req.SourceHost)

	return nil
}

func parseWID(s string) (uuid.UUID, error) {
	if len(s) != widLength {
		return uuid.Nil, model.ErrBadValue
	}
	wid, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, model.ErrBadValue
	}
	return wid, nil
}
