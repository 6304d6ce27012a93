// File: internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// sqliteTimeLayout is fixed-width so started_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	sqliteUpsertEpisode = `
        INSERT INTO episodes (episode_id, query, status, phone, os, step_count, started_at, finished_at, record)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (episode_id) DO UPDATE SET
            status = excluded.status,
            phone = excluded.phone,
            os = excluded.os,
            step_count = excluded.step_count,
            finished_at = excluded.finished_at,
            record = excluded.record`
	sqliteUpsertStep = `
        INSERT INTO episode_steps (episode_id, step, record) VALUES (?, ?, ?)
        ON CONFLICT (episode_id, step) DO UPDATE SET record = excluded.record`
	sqliteSelectEpisode = `SELECT record FROM episodes WHERE episode_id = ?`
	sqliteSelectSteps   = `SELECT record FROM episode_steps WHERE episode_id = ? ORDER BY step`
	sqliteListEpisodes  = `SELECT episode_id, query, status, step_count, started_at FROM episodes ORDER BY started_at DESC LIMIT ?`
)

// SQLiteStore persists episodes in an embedded SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY between pool connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db, log: logger.Named("store.sqlite")}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// SaveEpisode upserts the header and steps in one transaction.
func (s *SQLiteStore) SaveEpisode(ctx context.Context, ep *schemas.Episode) error {
	head, steps, err := splitEpisode(ep)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	var finished sql.NullString
	if ep.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*ep.FinishedAt), Valid: true}
	}
	_, err = tx.ExecContext(ctx, sqliteUpsertEpisode,
		ep.EpisodeID, ep.Query, string(ep.Status), ep.Phone, ep.OS, len(ep.Data),
		formatTime(ep.StartedAt), finished, string(head))
	if err != nil {
		return fmt.Errorf("failed to upsert episode %s: %w", ep.EpisodeID, err)
	}
	for i, raw := range steps {
		if _, err := tx.ExecContext(ctx, sqliteUpsertStep, ep.EpisodeID, ep.Data[i].Step, string(raw)); err != nil {
			return fmt.Errorf("failed to upsert step %d: %w", ep.Data[i].Step, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadEpisode reassembles an episode from its header and step rows.
func (s *SQLiteStore) LoadEpisode(ctx context.Context, episodeID string) (*schemas.Episode, error) {
	var head string
	if err := s.db.QueryRowContext(ctx, sqliteSelectEpisode, episodeID).Scan(&head); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, episodeID)
		}
		return nil, fmt.Errorf("failed to load episode %s: %w", episodeID, err)
	}
	ep, err := decodeHeader([]byte(head))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqliteSelectSteps, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for %s: %w", episodeID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step, err := decodeStep([]byte(raw))
		if err != nil {
			return nil, err
		}
		ep.Data = append(ep.Data, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	return ep, nil
}

// ListEpisodes returns summaries, newest first. SQLite reads LIMIT -1 as no limit.
func (s *SQLiteStore) ListEpisodes(ctx context.Context, limit int) ([]schemas.EpisodeSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, sqliteListEpisodes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var out []schemas.EpisodeSummary
	for rows.Next() {
		var (
			sum             schemas.EpisodeSummary
			status, started string
		)
		if err := rows.Scan(&sum.EpisodeID, &sum.Query, &status, &sum.Steps, &started); err != nil {
			return nil, fmt.Errorf("failed to scan episode summary: %w", err)
		}
		sum.Status = schemas.TerminalReason(status)
		if sum.StartedAt, err = time.Parse(sqliteTimeLayout, started); err != nil {
			return nil, fmt.Errorf("bad started_at %q: %w", started, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ schemas.EpisodeStore = (*SQLiteStore)(nil)
