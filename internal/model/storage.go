package model

import (
	"context"
	"io"
)

// Storage is the workspace content store. Keys are slash-separated paths
// rooted at a workspace ID. EnsureRoot is called once during workspace
// creation and must be idempotent.
type Storage interface {
	EnsureRoot(ctx context.Context, wid string) error
	Upload(ctx context.Context, key string, reader io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	RemoveRoot(ctx context.Context, wid string) error
}
