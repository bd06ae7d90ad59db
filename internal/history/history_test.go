package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func release(env string, status string, started time.Time) *Release {
	return &Release{
		ID:            uuid.NewString(),
		Project:       "dashboard",
		Env:           env,
		App:           "SALES_DASH",
		Database:      "DB",
		Schema:        "PUBLIC",
		Stage:         "APP_STAGE",
		Warehouse:     "WH",
		FilesUploaded: 3,
		BytesUploaded: 1024,
		Status:        status,
		StartedAt:     started,
		FinishedAt:    started.Add(30 * time.Second),
	}
}

func TestRecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	first := release("dev", StatusSuccess, base)
	second := release("dev", StatusFailed, base.Add(time.Hour))
	second.Error = "upload failed"
	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, second))

	releases, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, releases, 2)

	// Most recent first.
	assert.Equal(t, second.ID, releases[0].ID)
	assert.Equal(t, StatusFailed, releases[0].Status)
	assert.Equal(t, "upload failed", releases[0].Error)
	assert.Equal(t, first.ID, releases[1].ID)
	assert.Equal(t, 3, releases[1].FilesUploaded)
	assert.Equal(t, int64(1024), releases[1].BytesUploaded)
	assert.True(t, releases[1].StartedAt.Equal(base))
	assert.Equal(t, 30*time.Second, releases[1].Duration())
}

func TestListFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.Record(ctx, release("dev", StatusSuccess, base)))
	require.NoError(t, store.Record(ctx, release("prod", StatusSuccess, base.Add(time.Minute))))

	devOnly, err := store.List(ctx, Filter{Env: "dev"})
	require.NoError(t, err)
	require.Len(t, devOnly, 1)
	assert.Equal(t, "dev", devOnly[0].Env)

	limited, err := store.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := store.List(ctx, Filter{App: "OTHER_APP"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLatestSkipsFailures(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	ok := release("dev", StatusSuccess, base)
	require.NoError(t, store.Record(ctx, ok))
	require.NoError(t, store.Record(ctx, release("dev", StatusFailed, base.Add(time.Minute))))

	latest, err := store.Latest(ctx, "dev", "SALES_DASH")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ok.ID, latest.ID)

	missing, err := store.Latest(ctx, "prod", "SALES_DASH")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, release("dev", StatusSuccess, base.Add(time.Duration(i)*time.Minute))))
	}

	deleted, err := store.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	remaining, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestRecordValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.Record(ctx, nil))
	assert.Error(t, store.Record(ctx, &Release{Status: StatusSuccess}))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Record(context.Background(), release("dev", StatusSuccess, time.Now().UTC())))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	releases, err := second.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, releases, 1)
}
