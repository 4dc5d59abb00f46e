//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/avoynich/wsprovd/internal/model"
	repo "github.com/avoynich/wsprovd/internal/repository/postgres"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "wsprovd_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/wsprovd_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newWorkspace(wid uuid.UUID) (model.Workspace, model.DeviceBinding) {
	now := time.Now()
	ws := model.Workspace{
		ID:           wid,
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		Status:       model.StatusActive,
		Quota:        0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	dev := model.DeviceBinding{
		WorkspaceID: wid,
		DeviceID:    uuid.New(),
		KeyType:     model.KeyTypeCurve25519,
		DeviceKey:   "device-key",
		SessionID:   "session-id",
		Status:      model.StatusActive,
		CreatedAt:   now,
	}
	return ws, dev
}

func TestRepositories_CRUD(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	t.Run("workspace_repository", func(t *testing.T) {
		wr := repo.NewWorkspaceRepository(conn)
		wid := uuid.New()
		ws, dev := newWorkspace(wid)

		require.NoError(t, wr.Create(ctx, ws, dev))

		got, err := wr.Get(ctx, wid)
		require.NoError(t, err)
		require.Equal(t, ws.ID, got.ID)
		require.Equal(t, model.StatusActive, got.Status)
		require.Len(t, got.Devices, 1)
		require.Equal(t, dev.DeviceID, got.Devices[0].DeviceID)

		// Duplicate creation resolves at the store boundary.
		ws2, dev2 := newWorkspace(wid)
		err = wr.Create(ctx, ws2, dev2)
		require.ErrorIs(t, err, model.ErrWorkspaceExists)

		second := model.DeviceBinding{
			WorkspaceID: wid,
			DeviceID:    uuid.New(),
			KeyType:     model.KeyTypeCurve25519,
			DeviceKey:   "second-key",
			SessionID:   "second-session",
			Status:      model.StatusActive,
			CreatedAt:   time.Now(),
		}
		require.NoError(t, wr.AddDevice(ctx, second))
		require.ErrorIs(t, wr.AddDevice(ctx, second), model.ErrDeviceExists)

		got, err = wr.Get(ctx, wid)
		require.NoError(t, err)
		require.Len(t, got.Devices, 2)

		require.NoError(t, wr.SetStatus(ctx, wid, model.StatusSuspended))
		got, err = wr.Get(ctx, wid)
		require.NoError(t, err)
		require.Equal(t, model.StatusSuspended, got.Status)

		// Remove keeps the row so the WID is never handed out again.
		require.NoError(t, wr.Remove(ctx, wid))
		got, err = wr.Get(ctx, wid)
		require.NoError(t, err)
		require.Equal(t, model.StatusDeleted, got.Status)
		require.Empty(t, got.Devices)

		ws3, dev3 := newWorkspace(wid)
		require.ErrorIs(t, wr.Create(ctx, ws3, dev3), model.ErrWorkspaceExists)

		require.NoError(t, wr.Purge(ctx, wid))
		_, err = wr.Get(ctx, wid)
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("safeguard_repository", func(t *testing.T) {
		sr := repo.NewSafeguardRepository(conn)

		_, err := sr.GetLastAttempt(ctx, model.OpAccountCreate, "203.0.113.7")
		require.ErrorIs(t, err, model.ErrNotFound)

		first := time.Now().Add(-time.Minute).UTC().Truncate(time.Microsecond)
		require.NoError(t, sr.SetLastAttempt(ctx, model.OpAccountCreate, "203.0.113.7", first))

		got, err := sr.GetLastAttempt(ctx, model.OpAccountCreate, "203.0.113.7")
		require.NoError(t, err)
		require.True(t, got.Equal(first))

		// Upsert refreshes the timestamp in place.
		second := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, sr.SetLastAttempt(ctx, model.OpAccountCreate, "203.0.113.7", second))

		got, err = sr.GetLastAttempt(ctx, model.OpAccountCreate, "203.0.113.7")
		require.NoError(t, err)
		require.True(t, got.Equal(second))

		// Operations are keyed independently.
		_, err = sr.GetLastAttempt(ctx, model.OpAccountDelete, "203.0.113.7")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("failure_repository", func(t *testing.T) {
		fr := repo.NewFailureRepository(conn)
		wid := uuid.New().String()

		_, err := fr.Get(ctx, model.FailPassword, wid)
		require.ErrorIs(t, err, model.ErrNotFound)

		rec, err := fr.Increment(ctx, model.FailPassword, wid, time.Now())
		require.NoError(t, err)
		require.Equal(t, 1, rec.Count)

		rec, err = fr.Increment(ctx, model.FailPassword, wid, time.Now())
		require.NoError(t, err)
		require.Equal(t, 2, rec.Count)
		require.Nil(t, rec.LockoutUntil)

		until := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Microsecond)
		require.NoError(t, fr.SetLockout(ctx, model.FailPassword, wid, until))

		rec, err = fr.Get(ctx, model.FailPassword, wid)
		require.NoError(t, err)
		require.NotNil(t, rec.LockoutUntil)
		require.True(t, rec.LockoutUntil.Equal(until))

		require.NoError(t, fr.Reset(ctx, model.FailPassword, wid))
		_, err = fr.Get(ctx, model.FailPassword, wid)
		require.ErrorIs(t, err, model.ErrNotFound)
	})
}
