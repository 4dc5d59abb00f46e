package local

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoynich/wsprovd/internal/model"
)

const wid = "11111111-1111-1111-1111-111111111111"

func TestStorage_RootLifecycle(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.EnsureRoot(ctx, wid))

	exists, err := s.Exists(ctx, wid)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.RemoveRoot(ctx, wid))

	exists, err = s.Exists(ctx, wid)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStorage_UploadDownload(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.EnsureRoot(ctx, wid))
	require.NoError(t, s.Upload(ctx, wid+"/inbox/msg1", strings.NewReader("payload")))

	exists, err := s.Exists(ctx, wid+"/inbox/msg1")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := s.Download(ctx, wid+"/inbox/msg1")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, s.Delete(ctx, wid+"/inbox/msg1"))
	_, err = s.Download(ctx, wid+"/inbox/msg1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStorage_TraversalRejected(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{
		"",
		"..",
		"../outside",
		wid + "/../../outside",
		"/etc/passwd",
	} {
		_, err := s.Exists(ctx, key)
		assert.ErrorIs(t, err, model.ErrBadValue, "key %q", key)
	}
}

func TestStorage_RemoveRootIsRecursive(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.EnsureRoot(ctx, wid))
	require.NoError(t, s.Upload(ctx, wid+"/a/b/c", strings.NewReader("x")))

	require.NoError(t, s.RemoveRoot(ctx, wid))

	exists, err := s.Exists(ctx, wid+"/a/b/c")
	require.NoError(t, err)
	assert.False(t, exists)
}
