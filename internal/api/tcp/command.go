package tcp

import (
	"context"
	"strings"

	"github.com/avoynich/wsprovd/internal/logger"
	"github.com/avoynich/wsprovd/internal/service"
)

// WorkspaceService describes the provisioning operations the protocol
// engine executes on behalf of clients.
type WorkspaceService interface {
	Create(ctx context.Context, req service.CreateWorkspaceRequest) (service.CreateWorkspaceResult, error)
	Exists(ctx context.Context, wid string, pathTokens []string) (bool, error)
	Delete(ctx context.Context, req service.DeleteWorkspaceRequest) error
}

// Command is one parsed protocol command. Validate checks argument shape
// without touching any state; Execute runs the command and writes its
// response to the session. Execute errors are I/O failures, not command
// outcomes: outcomes are always expressed as a wire response.
type Command interface {
	Validate() error
	Execute(ctx context.Context, s *Session) error
}

// wireError carries the exact response line for a validation failure.
type wireError struct {
	line string
}

func (e *wireError) Error() string {
	return e.line
}

// Engine resolves verbs to command variants and runs them. One engine is
// shared by every session.
type Engine struct {
	workspaces WorkspaceService
	logger     *logger.Logger
}

func NewEngine(workspaces WorkspaceService, logger *logger.Logger) *Engine {
	return &Engine{
		workspaces: workspaces,
		logger:     logger,
	}
}

// HandleLine processes one tokenized command line and reports whether
// the session should keep going. A rejected command still returns true:
// the client gets its error response and the session continues. False
// means QUIT or a write failure.
func (e *Engine) HandleLine(ctx context.Context, tokens []string, s *Session) bool {
	if len(tokens) == 0 {
		return true
	}

	verb := strings.ToUpper(tokens[0])
	args := tokens[1:]

	var cmd Command
	switch verb {
	case "QUIT":
		return false
	case "NOOP":
		// Resets the idle counter, nothing else.
		return true
	case "REGISTER":
		cmd = &registerCommand{workspaces: e.workspaces, args: args}
	case "ADDWKSPC":
		cmd = &addWorkspaceCommand{workspaces: e.workspaces}
	case "DELWKSPC":
		cmd = &deleteWorkspaceCommand{workspaces: e.workspaces, args: args}
	case "EXISTS":
		cmd = &existsCommand{workspaces: e.workspaces, args: args}
	default:
		return s.WriteLine("400 BAD COMMAND") == nil
	}

	if err := cmd.Validate(); err != nil {
		werr, ok := err.(*wireError)
		if !ok {
			e.logger.Error("Engine: validation failed unexpectedly",
				"verb", verb,
				"error", err.Error())
			return s.WriteLine(respInternal) == nil
		}
		return s.WriteLine(werr.line) == nil
	}

	if err := cmd.Execute(ctx, s); err != nil {
		e.logger.Error("Engine: response write failed",
			"verb", verb,
			"host", s.Host(),
			"error", err.Error())
		return false
	}
	return true
}
