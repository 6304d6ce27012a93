// File: internal/store/file_test.go
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

	newStore := func(t *testing.T) *FileStore {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "output"), zaptest.NewLogger(t))
		require.NoError(t, err)
		return s
	}

	t.Run("should round-trip an episode", func(t *testing.T) {
		s := newStore(t)
		ep := sampleEpisode("3f2a9c1e", started)
		require.NoError(t, s.SaveEpisode(ctx, ep))

		loaded, err := s.LoadEpisode(ctx, "3f2a9c1e")
		require.NoError(t, err)
		if diff := cmp.Diff(ep, loaded); diff != "" {
			t.Errorf("episode mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should write the original record shape", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveEpisode(ctx, sampleEpisode("shape", started)))

		raw, err := os.ReadFile(filepath.Join(s.EpisodeDir("shape"), RecordFileName))
		require.NoError(t, err)
		for _, key := range []string{`"phone"`, `"os"`, `"screen_resolution"`, `"query"`, `"episode_id"`, `"data"`, `"observation"`, `"plan"`, `"label"`, `"box": [`} {
			assert.Contains(t, string(raw), key)
		}
	})

	t.Run("should overwrite on repeated saves", func(t *testing.T) {
		s := newStore(t)
		ep := sampleEpisode("again", started)
		ep.Data = ep.Data[:1]
		ep.Status = ""
		require.NoError(t, s.SaveEpisode(ctx, ep))

		full := sampleEpisode("again", started)
		require.NoError(t, s.SaveEpisode(ctx, full))

		loaded, err := s.LoadEpisode(ctx, "again")
		require.NoError(t, err)
		assert.Len(t, loaded.Data, 2)
		entries, err := os.ReadDir(s.EpisodeDir("again"))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no temp files left behind")
	})

	t.Run("should report unknown episodes", func(t *testing.T) {
		_, err := newStore(t).LoadEpisode(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("should reject path-like ids and artifact names", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadEpisode(ctx, "../etc")
		assert.Error(t, err)
		_, err = s.WriteArtifact(ctx, "ok", "../escape.png", []byte("x"))
		assert.Error(t, err)
	})

	t.Run("should store artifacts beside the record", func(t *testing.T) {
		s := newStore(t)
		ref, err := s.WriteArtifact(ctx, "art", "1-1.xml", []byte("<hierarchy/>"))
		require.NoError(t, err)
		assert.Equal(t, "1-1.xml", ref)
		data, err := os.ReadFile(filepath.Join(s.EpisodeDir("art"), ref))
		require.NoError(t, err)
		assert.Equal(t, "<hierarchy/>", string(data))
	})

	t.Run("should list newest first and honour the limit", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveEpisode(ctx, sampleEpisode("older", started)))
		require.NoError(t, s.SaveEpisode(ctx, sampleEpisode("newer", started.Add(time.Hour))))
		require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "stray"), 0o755))

		all, err := s.ListEpisodes(ctx, 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "newer", all[0].EpisodeID)
		assert.Equal(t, 2, all[0].Steps)

		one, err := s.ListEpisodes(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, one, 1)
	})
}
