package store

import (
	"context"
	"errors"

	"github.com/patchnotes/api/internal/model"
)

var (
	// ErrNotFound is returned when the owner record does not exist.
	ErrNotFound = errors.New("patch note not found")

	// ErrNotMatched is returned by conditional updates when zero rows matched
	// the expected render state. The caller lost a concurrent race and must
	// discard its result.
	ErrNotMatched = errors.New("render state changed since read")
)

// RenderFields is the full render field set written by one transition.
// Every transition writes all of these columns so the row can never drift
// into a mixed state (e.g. completed with a leftover engine handle).
type RenderFields struct {
	State           model.RenderState
	EngineJobID     *string
	EngineBucket    *string
	ProgressPercent int
	VideoURL        *string
	LastError       *string
}

// ContentFields is the generated content persisted by the pipeline.
type ContentFields struct {
	Content         string
	ChangesAdded    int
	ChangesModified int
	ChangesRemoved  int
	Contributors    []string
}

// RecordStore is the persisted record store for patch notes. The render
// lifecycle fields live on the same row as the content; UpdateRender is the
// only conditional write and the sole correctness mechanism under
// concurrent access.
type RecordStore interface {
	CreateNote(ctx context.Context, note *model.PatchNote) (*model.PatchNote, error)
	GetNote(ctx context.Context, key string) (*model.PatchNote, error)
	ListNotes(ctx context.Context, userID string) ([]model.PatchNote, error)

	// UpdateRender writes the render field set only if render_state still
	// equals expect. Returns ErrNotMatched when another writer got there
	// first, ErrNotFound when the row does not exist.
	UpdateRender(ctx context.Context, key string, set RenderFields, expect model.RenderState) (*model.PatchNote, error)

	// UpdateRenderProgress refreshes progress_percent without touching the
	// state column, conditioned on the row still being in rendering.
	UpdateRenderProgress(ctx context.Context, key string, percent int) (*model.PatchNote, error)

	UpdateContent(ctx context.Context, key string, content ContentFields) error
	UpdateHighlights(ctx context.Context, key string, highlights model.Highlights) error
	SetStageLabel(ctx context.Context, key, label string) error
	SetNoteStatus(ctx context.Context, key string, status model.NoteStatus) error
}
