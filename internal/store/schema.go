package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS patch_notes (
    key              UUID PRIMARY KEY,
    user_id          TEXT NOT NULL,
    title            TEXT NOT NULL,
    repo_owner       TEXT NOT NULL,
    repo_name        TEXT NOT NULL,
    display_name     TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'draft',

    branch           TEXT NOT NULL DEFAULT '',
    range_mode       TEXT NOT NULL DEFAULT 'dates',
    since            TIMESTAMPTZ,
    until            TIMESTAMPTZ,
    from_tag         TEXT,
    to_tag           TEXT,
    include_tags     TEXT,
    exclude_tags     TEXT,

    content          TEXT,
    changes_added    INTEGER NOT NULL DEFAULT 0,
    changes_modified INTEGER NOT NULL DEFAULT 0,
    changes_removed  INTEGER NOT NULL DEFAULT 0,
    contributors     JSONB,
    highlights       JSONB,

    render_state     TEXT NOT NULL DEFAULT 'idle',
    engine_job_id    TEXT,
    engine_bucket    TEXT,
    progress_percent INTEGER NOT NULL DEFAULT 0,
    video_url        TEXT,
    last_error       TEXT,
    stage_label      TEXT,

    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_patch_notes_user ON patch_notes (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_patch_notes_render_state ON patch_notes (render_state);
`

// EnsureSchema creates the patch_notes table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
