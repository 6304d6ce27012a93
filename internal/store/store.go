// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// ErrNotFound is returned when an episode id is unknown to the store.
var ErrNotFound = errors.New("episode not found")

var episodeIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

func validateID(id string) error {
	if !episodeIDRegex.MatchString(id) {
		return fmt.Errorf("invalid episode id %q", id)
	}
	return nil
}

// Open returns the episode store selected by cfg.Driver. Artifacts always live
// in the file store rooted at cfg.OutputDir, which is returned alongside.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (schemas.EpisodeStore, *FileStore, error) {
	files, err := NewFileStore(cfg.OutputDir, logger)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Driver {
	case config.StoreFile:
		return files, files, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		pg, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, files, nil
	case config.StoreSQLite:
		lite, err := NewSQLiteStore(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return lite, files, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
