package tcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/avoynich/wsprovd/internal/model"
	"github.com/avoynich/wsprovd/internal/service"
)

const respInternal = "300 INTERNAL SERVER ERROR"

// registerCommand provisions a workspace with client-supplied identity
// material.
//
// Syntax: REGISTER <wid> <password-hash> <key-algorithm> <device-key>
type registerCommand struct {
	workspaces WorkspaceService
	args       []string
}

func (c *registerCommand) Validate() error {
	if len(c.args) != 4 {
		return &wireError{line: "400 BAD REQUEST"}
	}
	return nil
}

func (c *registerCommand) Execute(ctx context.Context, s *Session) error {
	res, err := c.workspaces.Create(ctx, service.CreateWorkspaceRequest{
		RequestedWID: c.args[0],
		PasswordHash: c.args[1],
		KeyType:      c.args[2],
		DeviceKey:    c.args[3],
		SourceHost:   s.Host(),
	})

	var throttled *model.ThrottledError
	switch {
	case err == nil:
		return s.WriteLine("201 REGISTERED " + res.DeviceID.String())
	case errors.Is(err, model.ErrUnsupportedAlgorithm):
		return s.WriteLine("309 ENCRYPTION UNSUPPORTED")
	case errors.Is(err, model.ErrBadValue):
		return s.WriteLine("400 BAD REQUEST")
	case errors.Is(err, model.ErrWorkspaceExists):
		return s.WriteLine("408 RESOURCE EXISTS")
	case errors.As(err, &throttled):
		return s.WriteLine(fmt.Sprintf("405 TOO MANY %d", throttled.WaitSeconds()))
	default:
		return s.WriteLine(respInternal)
	}
}
