package cli

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowstage/stagectl/internal/config"
	"github.com/snowstage/stagectl/internal/engine"
	"github.com/snowstage/stagectl/internal/history"
)

func TestRecordHistorySurvivesExpiredDeployContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	proj := &project{
		cfg: &config.ProjectConfig{
			Project: "demo",
			History: config.HistoryConfig{Path: path},
		},
		target: engine.Target{
			Env:       "dev",
			Database:  "ANALYTICS",
			Schema:    "PUBLIC",
			Stage:     "APP_STAGE",
			Warehouse: "REPORTING_WH",
			AppName:   "SALES_DASH",
		},
	}
	outcome := &deployOutcome{
		releaseID: "rel-timeout",
		startedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recordHistory(ctx, slog.New(slog.DiscardHandler), proj, outcome, errors.New("deploy timed out"))

	store, err := history.Open(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	releases, err := store.List(context.Background(), history.Filter{})
	require.NoError(t, err)
	require.Len(t, releases, 1)
	assert.Equal(t, "rel-timeout", releases[0].ID)
	assert.Equal(t, history.StatusFailed, releases[0].Status)
	assert.Equal(t, "deploy timed out", releases[0].Error)
}

func TestRecordHistoryDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	proj := &project{
		cfg: &config.ProjectConfig{
			History: config.HistoryConfig{Path: path, Disabled: true},
		},
	}

	recordHistory(context.Background(), slog.New(slog.DiscardHandler), proj, &deployOutcome{releaseID: "rel-1"}, nil)

	store, err := history.Open(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	releases, err := store.List(context.Background(), history.Filter{})
	require.NoError(t, err)
	assert.Empty(t, releases)
}
