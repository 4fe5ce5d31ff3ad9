package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidar-tools/lidarchive/internal/models"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.duckdb"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func row(taskID string, start time.Time) models.TaskRow {
	return models.TaskRow{
		RunID:        "run-1",
		ProcessStart: start,
		TaskID:       taskID,
		DataFolder:   "/data",
		OutputFolder: "/out",
		OutputFile:   taskID + ".nc",
		SystemID:     375,
		RemoteID:     "20240305mg" + taskID[len(taskID)-2:],
		Uploaded:     true,
		Result:       "Uploaded",
	}
}

func TestStore_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	store := createTestStore(t)

	first := time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)
	start := time.Date(2024, 3, 6, 7, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, []models.TaskRow{
		row("20240305_0000", start),
		row("20240305_0001", start.Add(time.Minute)),
	}, first))

	retry := row("20240305_0000", start.Add(24*time.Hour))
	retry.Downloaded = true
	retry.RemoteVersion = "5.2.1"
	require.NoError(t, store.Append(ctx, []models.TaskRow{retry}, second))

	t.Run("count", func(t *testing.T) {
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("recent is newest first", func(t *testing.T) {
		entries, err := store.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.True(t, entries[0].RecordedAt.Equal(second))
		assert.Equal(t, "20240305_0000", entries[0].TaskID)
		assert.True(t, entries[0].Downloaded)
		assert.Equal(t, "5.2.1", entries[0].RemoteVersion)
		assert.Equal(t, "20240305_0001", entries[1].TaskID)
		assert.Equal(t, 375, entries[1].SystemID)
	})

	t.Run("per task", func(t *testing.T) {
		entries, err := store.ForTask(ctx, "20240305_0000")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.False(t, entries[0].Downloaded)
		assert.True(t, entries[1].Downloaded)
		assert.True(t, entries[0].ProcessStart.Equal(start))
	})

	t.Run("empty append is a no-op", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, nil, second))
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.duckdb")

	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, []models.TaskRow{row("20240305_0000", time.Now())}, time.Now()))
	require.NoError(t, store.Close())

	reopened, err := OpenReadOnly(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Error(t, reopened.Append(ctx, []models.TaskRow{row("20240305_0001", time.Now())}, time.Now()))
}
