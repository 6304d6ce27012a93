// File: internal/store/sqlite_test.go
package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

	open := func(t *testing.T) *SQLiteStore {
		s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "db", "pilot.db"), zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("should round-trip an episode", func(t *testing.T) {
		s := open(t)
		ep := sampleEpisode("lite-1", started)
		require.NoError(t, s.SaveEpisode(ctx, ep))

		loaded, err := s.LoadEpisode(ctx, "lite-1")
		require.NoError(t, err)
		if diff := cmp.Diff(ep, loaded); diff != "" {
			t.Errorf("episode mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should grow an episode across per-step saves", func(t *testing.T) {
		s := open(t)
		ep := sampleEpisode("lite-2", started)
		steps := ep.Data
		ep.Data = []schemas.StepRecord{}
		ep.Status, ep.FinishedAt = "", nil

		for _, step := range steps {
			require.NoError(t, ep.AppendStep(step))
			require.NoError(t, s.SaveEpisode(ctx, ep))
		}
		ep.Terminate(schemas.ReasonCompleted, started.Add(time.Minute))
		require.NoError(t, s.SaveEpisode(ctx, ep))

		loaded, err := s.LoadEpisode(ctx, "lite-2")
		require.NoError(t, err)
		assert.Len(t, loaded.Data, 2)
		assert.Equal(t, schemas.ReasonCompleted, loaded.Status)

		list, err := s.ListEpisodes(ctx, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 2, list[0].Steps)
		assert.True(t, started.Equal(list[0].StartedAt))
	})

	t.Run("should list newest first", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveEpisode(ctx, sampleEpisode("old", started)))
		require.NoError(t, s.SaveEpisode(ctx, sampleEpisode("new", started.Add(24*time.Hour))))

		list, err := s.ListEpisodes(ctx, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "new", list[0].EpisodeID)
	})

	t.Run("should report unknown episodes", func(t *testing.T) {
		_, err := open(t).LoadEpisode(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
