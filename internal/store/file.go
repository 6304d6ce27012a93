// File: internal/store/file.go
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// RecordFileName is the per-episode record inside the episode directory.
const RecordFileName = "task.json"

// FileStore keeps one directory per episode under root, holding task.json and
// the step artifacts.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// NewFileStore creates root if needed.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", root, err)
	}
	return &FileStore{root: root, logger: logger.Named("store.file")}, nil
}

// Root returns the output directory.
func (s *FileStore) Root() string { return s.root }

// EpisodeDir returns the directory holding an episode's files.
func (s *FileStore) EpisodeDir(episodeID string) string {
	return filepath.Join(s.root, episodeID)
}

// SaveEpisode writes task.json via a temp file and rename, so readers never
// observe a partial record.
func (s *FileStore) SaveEpisode(_ context.Context, ep *schemas.Episode) error {
	if err := validateID(ep.EpisodeID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode episode %s: %w", ep.EpisodeID, err)
	}
	dir := s.EpisodeDir(ep.EpisodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create episode directory: %w", err)
	}
	final := filepath.Join(dir, RecordFileName)
	if err := writeAtomic(final, data); err != nil {
		return err
	}
	s.logger.Debug("Episode saved.", zap.String("episode_id", ep.EpisodeID), zap.Int("steps", len(ep.Data)))
	return nil
}

// LoadEpisode reads task.json for episodeID.
func (s *FileStore) LoadEpisode(_ context.Context, episodeID string) (*schemas.Episode, error) {
	if err := validateID(episodeID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.EpisodeDir(episodeID), RecordFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, episodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read episode %s: %w", episodeID, err)
	}
	var ep schemas.Episode
	if err := json.Unmarshal(data, &ep); err != nil {
		return nil, fmt.Errorf("failed to decode episode %s: %w", episodeID, err)
	}
	return &ep, nil
}

// ListEpisodes scans the output directory. Directories without a readable
// record are skipped.
func (s *FileStore) ListEpisodes(ctx context.Context, limit int) ([]schemas.EpisodeSummary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.root, err)
	}
	var out []schemas.EpisodeSummary
	for _, e := range entries {
		if !e.IsDir() || validateID(e.Name()) != nil {
			continue
		}
		ep, err := s.LoadEpisode(ctx, e.Name())
		if err != nil {
			s.logger.Debug("Skipping unreadable episode directory.", zap.String("dir", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, ep.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WriteArtifact stores a step artifact next to the record and returns the
// reference kept in the step record (the file name relative to the episode
// directory).
func (s *FileStore) WriteArtifact(_ context.Context, episodeID, name string, data []byte) (string, error) {
	if err := validateID(episodeID); err != nil {
		return "", err
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("artifact name %q must not contain a path", name)
	}
	dir := s.EpisodeDir(episodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create episode directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return name, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".task-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move record into place: %w", err)
	}
	return nil
}

var _ schemas.EpisodeStore = (*FileStore)(nil)
