// File: internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// DBPool abstracts pgxpool.Pool so pgxmock can stand in for it in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlUpsertEpisode = `
        INSERT INTO episodes (episode_id, query, status, phone, os, step_count, started_at, finished_at, record)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (episode_id) DO UPDATE SET
            status = EXCLUDED.status,
            phone = EXCLUDED.phone,
            os = EXCLUDED.os,
            step_count = EXCLUDED.step_count,
            finished_at = EXCLUDED.finished_at,
            record = EXCLUDED.record;
    `
	sqlUpsertStep = `
        INSERT INTO episode_steps (episode_id, step, record)
        VALUES ($1, $2, $3)
        ON CONFLICT (episode_id, step) DO UPDATE SET record = EXCLUDED.record;
    `
	sqlSelectEpisode = `SELECT record FROM episodes WHERE episode_id = $1`
	sqlSelectSteps   = `SELECT record FROM episode_steps WHERE episode_id = $1 ORDER BY step`
	sqlListEpisodes  = `
        SELECT episode_id, query, status, step_count, started_at
        FROM episodes
        ORDER BY started_at DESC
        LIMIT $1
    `
)

// PostgresStore persists episodes in PostgreSQL.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresStore verifies the connection and creates the tables if needed.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("store.postgres")}, nil
}

// SaveEpisode upserts the header and every step in one transaction.
func (s *PostgresStore) SaveEpisode(ctx context.Context, ep *schemas.Episode) error {
	head, steps, err := splitEpisode(ep)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlUpsertEpisode,
		ep.EpisodeID, ep.Query, string(ep.Status), ep.Phone, ep.OS, len(ep.Data),
		ep.StartedAt, ep.FinishedAt, head)
	if err != nil {
		return fmt.Errorf("failed to upsert episode %s: %w", ep.EpisodeID, err)
	}
	for i, raw := range steps {
		if _, err := tx.Exec(ctx, sqlUpsertStep, ep.EpisodeID, ep.Data[i].Step, raw); err != nil {
			return fmt.Errorf("failed to upsert step %d: %w", ep.Data[i].Step, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadEpisode reassembles an episode from its header and step rows.
func (s *PostgresStore) LoadEpisode(ctx context.Context, episodeID string) (*schemas.Episode, error) {
	var head []byte
	if err := s.pool.QueryRow(ctx, sqlSelectEpisode, episodeID).Scan(&head); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, episodeID)
		}
		return nil, fmt.Errorf("failed to load episode %s: %w", episodeID, err)
	}
	ep, err := decodeHeader(head)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sqlSelectSteps, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for %s: %w", episodeID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step, err := decodeStep(raw)
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

// ListEpisodes returns summaries, newest first.
func (s *PostgresStore) ListEpisodes(ctx context.Context, limit int) ([]schemas.EpisodeSummary, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.pool.Query(ctx, sqlListEpisodes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var out []schemas.EpisodeSummary
	for rows.Next() {
		var (
			sum    schemas.EpisodeSummary
			status string
		)
		if err := rows.Scan(&sum.EpisodeID, &sum.Query, &status, &sum.Steps, &sum.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan episode summary: %w", err)
		}
		sum.Status = schemas.TerminalReason(status)
		sum.StartedAt = sum.StartedAt.UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ schemas.EpisodeStore = (*PostgresStore)(nil)
