package tcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/avoynich/wsprovd/internal/model"
	"github.com/avoynich/wsprovd/internal/service"
)

// addWorkspaceCommand provisions a workspace with server-generated
// identifiers. Everything the client needs comes back in the response.
//
// Syntax: ADDWKSPC
type addWorkspaceCommand struct {
	workspaces WorkspaceService
}

func (c *addWorkspaceCommand) Validate() error {
	return nil
}

func (c *addWorkspaceCommand) Execute(ctx context.Context, s *Session) error {
	res, err := c.workspaces.Create(ctx, service.CreateWorkspaceRequest{
		KeyType:    model.KeyTypeCurve25519,
		SourceHost: s.Host(),
	})

	var throttled *model.ThrottledError
	switch {
	case err == nil:
		line := fmt.Sprintf("+OK %s %s %s",
			res.WorkspaceID.String(), res.DeviceID.String(), res.SessionID)
		if werr := s.WriteLine(line); werr != nil {
			return werr
		}
		return s.WriteLine(".")
	case errors.As(err, &throttled):
		return s.WriteLine(fmt.Sprintf(
			"-ERR Please wait %d seconds to create another account.",
			throttled.WaitSeconds()))
	default:
		return s.WriteLine("-ERR Internal error. Sorry!")
	}
}

// deleteWorkspaceCommand destroys a workspace after an ownership check.
//
// Syntax: DELWKSPC <wid> <public-key> <password-proof>
type deleteWorkspaceCommand struct {
	workspaces WorkspaceService
	args       []string
}

func (c *deleteWorkspaceCommand) Validate() error {
	if len(c.args) != 3 {
		return &wireError{line: "-ERR Invalid command"}
	}
	return nil
}

func (c *deleteWorkspaceCommand) Execute(ctx context.Context, s *Session) error {
	err := c.workspaces.Delete(ctx, service.DeleteWorkspaceRequest{
		WID:        c.args[0],
		PublicKey:  c.args[1],
		Proof:      c.args[2],
		SourceHost: s.Host(),
	})

	var throttled *model.ThrottledError
	var lockout *model.LockoutError
	switch {
	case err == nil:
		return s.WriteLine("+OK")
	case errors.As(err, &throttled):
		return s.WriteLine(fmt.Sprintf(
			"-ERR Please wait %d seconds to delete another account.",
			throttled.WaitSeconds()))
	case errors.As(err, &lockout):
		return s.WriteLine("-ERR Too many failures. Try again later.")
	case errors.Is(err, model.ErrBadValue),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrOwnershipProof):
		return s.WriteLine("-ERR")
	default:
		return s.WriteLine("-ERR Internal error. Sorry!")
	}
}

// existsCommand reports whether a path exists under a workspace root. A
// bare workspace ID with no path always fails.
//
// Syntax: EXISTS <wid> <path-token> [path-token...]
type existsCommand struct {
	workspaces WorkspaceService
	args       []string
}

func (c *existsCommand) Validate() error {
	if len(c.args) < 2 {
		return &wireError{line: "-ERR"}
	}
	return nil
}

func (c *existsCommand) Execute(ctx context.Context, s *Session) error {
	exists, err := c.workspaces.Exists(ctx, c.args[0], c.args[1:])
	if err != nil || !exists {
		return s.WriteLine("-ERR")
	}
	return s.WriteLine("+OK")
}
