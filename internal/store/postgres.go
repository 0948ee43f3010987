package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/patchnotes/api/internal/model"
)

const noteColumns = `key, user_id, title, repo_owner, repo_name, display_name, status,
	branch, range_mode, since, until, from_tag, to_tag, include_tags, exclude_tags,
	content, changes_added, changes_modified, changes_removed, contributors, highlights,
	render_state, engine_job_id, engine_bucket, progress_percent, video_url, last_error, stage_label,
	created_at, updated_at`

// PostgresStore implements RecordStore over a patch_notes table.
type PostgresStore struct {
	db *sqlx.DB
}

// Connect opens the Postgres pool via the pgx stdlib driver.
func Connect(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateNote inserts a new owner record. The render job starts at idle with
// all optional render fields empty.
func (s *PostgresStore) CreateNote(ctx context.Context, note *model.PatchNote) (*model.PatchNote, error) {
	var result model.PatchNote
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO patch_notes (key, user_id, title, repo_owner, repo_name, display_name, status,
		        branch, range_mode, since, until, from_tag, to_tag, include_tags, exclude_tags, render_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING `+noteColumns,
		note.Key, note.UserID, note.Title, note.RepoOwner, note.RepoName, note.DisplayName,
		model.NoteStatusDraft, note.Branch, note.RangeMode, note.Since, note.Until,
		note.FromTag, note.ToTag, note.IncludeTags, note.ExcludeTags, model.RenderStateIdle,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("create patch note: %w", err)
	}
	return &result, nil
}

// GetNote retrieves one owner record by key.
func (s *PostgresStore) GetNote(ctx context.Context, key string) (*model.PatchNote, error) {
	var note model.PatchNote
	err := s.db.GetContext(ctx, &note,
		`SELECT `+noteColumns+` FROM patch_notes WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patch note %s: %w", key, err)
	}
	return &note, nil
}

// ListNotes returns all notes owned by a user, newest first.
func (s *PostgresStore) ListNotes(ctx context.Context, userID string) ([]model.PatchNote, error) {
	notes := []model.PatchNote{}
	err := s.db.SelectContext(ctx, &notes,
		`SELECT `+noteColumns+` FROM patch_notes WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list patch notes for %s: %w", userID, err)
	}
	return notes, nil
}

// UpdateRender is the conditional render-state write. The WHERE clause on
// render_state gives compare-and-swap semantics without a row lock: if
// another writer transitioned the row between our read and this write, zero
// rows match and the caller gets ErrNotMatched.
func (s *PostgresStore) UpdateRender(ctx context.Context, key string, set RenderFields, expect model.RenderState) (*model.PatchNote, error) {
	var result model.PatchNote
	err := s.db.QueryRowxContext(ctx,
		`UPDATE patch_notes
		 SET render_state = $1, engine_job_id = $2, engine_bucket = $3,
		     progress_percent = $4, video_url = $5, last_error = $6, updated_at = NOW()
		 WHERE key = $7 AND render_state = $8
		 RETURNING `+noteColumns,
		set.State, set.EngineJobID, set.EngineBucket, set.ProgressPercent,
		set.VideoURL, set.LastError, key, expect,
	).StructScan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.notMatched(ctx, key)
		}
		return nil, fmt.Errorf("update render state for %s: %w", key, err)
	}
	return &result, nil
}

// UpdateRenderProgress is the lighter-weight same-state refresh used while
// rendering. It never advances the state column.
func (s *PostgresStore) UpdateRenderProgress(ctx context.Context, key string, percent int) (*model.PatchNote, error) {
	var result model.PatchNote
	err := s.db.QueryRowxContext(ctx,
		`UPDATE patch_notes
		 SET progress_percent = $1, updated_at = NOW()
		 WHERE key = $2 AND render_state = $3
		 RETURNING `+noteColumns,
		percent, key, model.RenderStateRendering,
	).StructScan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.notMatched(ctx, key)
		}
		return nil, fmt.Errorf("update render progress for %s: %w", key, err)
	}
	return &result, nil
}

// UpdateContent persists the assembled patch note body and aggregates.
func (s *PostgresStore) UpdateContent(ctx context.Context, key string, content ContentFields) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE patch_notes
		 SET content = $1, changes_added = $2, changes_modified = $3, changes_removed = $4,
		     contributors = $5, updated_at = NOW()
		 WHERE key = $6`,
		content.Content, content.ChangesAdded, content.ChangesModified, content.ChangesRemoved,
		model.StringSlice(content.Contributors), key,
	)
	if err != nil {
		return fmt.Errorf("update content for %s: %w", key, err)
	}
	return checkAffected(res, key)
}

// UpdateHighlights persists the derived video highlights.
func (s *PostgresStore) UpdateHighlights(ctx context.Context, key string, highlights model.Highlights) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE patch_notes SET highlights = $1, updated_at = NOW() WHERE key = $2`,
		highlights, key,
	)
	if err != nil {
		return fmt.Errorf("update highlights for %s: %w", key, err)
	}
	return checkAffected(res, key)
}

// SetStageLabel writes the display-only pipeline stage label. It is not part
// of the state machine and is written unconditionally.
func (s *PostgresStore) SetStageLabel(ctx context.Context, key, label string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE patch_notes SET stage_label = $1, updated_at = NOW() WHERE key = $2`,
		label, key,
	)
	if err != nil {
		return fmt.Errorf("set stage label for %s: %w", key, err)
	}
	return checkAffected(res, key)
}

// SetNoteStatus updates the content lifecycle status of the owner record.
func (s *PostgresStore) SetNoteStatus(ctx context.Context, key string, status model.NoteStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE patch_notes SET status = $1, updated_at = NOW() WHERE key = $2`,
		status, key,
	)
	if err != nil {
		return fmt.Errorf("set note status for %s: %w", key, err)
	}
	return checkAffected(res, key)
}

// notMatched distinguishes a lost race from a missing row.
func (s *PostgresStore) notMatched(ctx context.Context, key string) error {
	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM patch_notes WHERE key = $1)`, key); err == nil && !exists {
		return ErrNotFound
	}
	return ErrNotMatched
}

func checkAffected(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
