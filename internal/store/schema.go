// File: internal/store/schema.go
package store

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// The relational stores keep the episode header and each step in separate
// rows so a per-step save only rewrites what changed in practice.

const postgresSchema = `
CREATE TABLE IF NOT EXISTS episodes (
    episode_id  TEXT PRIMARY KEY,
    query       TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    os          TEXT NOT NULL DEFAULT '',
    step_count  INTEGER NOT NULL DEFAULT 0,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    record      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS episodes_started_at_idx ON episodes (started_at DESC);
CREATE TABLE IF NOT EXISTS episode_steps (
    episode_id TEXT NOT NULL REFERENCES episodes (episode_id) ON DELETE CASCADE,
    step       INTEGER NOT NULL,
    record     JSONB NOT NULL,
    PRIMARY KEY (episode_id, step)
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS episodes (
    episode_id  TEXT PRIMARY KEY,
    query       TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    os          TEXT NOT NULL DEFAULT '',
    step_count  INTEGER NOT NULL DEFAULT 0,
    started_at  TEXT NOT NULL,
    finished_at TEXT,
    record      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS episodes_started_at_idx ON episodes (started_at DESC);
CREATE TABLE IF NOT EXISTS episode_steps (
    episode_id TEXT NOT NULL REFERENCES episodes (episode_id) ON DELETE CASCADE,
    step       INTEGER NOT NULL,
    record     TEXT NOT NULL,
    PRIMARY KEY (episode_id, step)
);
`

// splitEpisode returns the header (episode without steps) and one encoded
// record per step.
func splitEpisode(ep *schemas.Episode) ([]byte, [][]byte, error) {
	header := *ep
	header.Data = nil
	head, err := json.Marshal(header)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode episode header: %w", err)
	}
	steps := make([][]byte, len(ep.Data))
	for i := range ep.Data {
		steps[i], err = json.Marshal(ep.Data[i])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode step %d: %w", ep.Data[i].Step, err)
		}
	}
	return head, steps, nil
}

func decodeHeader(raw []byte) (*schemas.Episode, error) {
	var ep schemas.Episode
	if err := json.Unmarshal(raw, &ep); err != nil {
		return nil, fmt.Errorf("failed to decode episode header: %w", err)
	}
	ep.Data = []schemas.StepRecord{}
	return &ep, nil
}

func decodeStep(raw []byte) (schemas.StepRecord, error) {
	var step schemas.StepRecord
	if err := json.Unmarshal(raw, &step); err != nil {
		return step, fmt.Errorf("failed to decode step: %w", err)
	}
	return step, nil
}
