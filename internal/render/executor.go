package render

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/store"
)

// DefaultFailureMessage is recorded when a fail transition carries no
// message of its own. failed rows always have a non-empty reason.
const DefaultFailureMessage = "render failed for an unknown reason"

// Fields carries the event-specific payload of one transition: the engine
// handle for start, the percent for progress, the URL for complete, the
// message for fail. Irrelevant fields are ignored.
type Fields struct {
	EngineJobID     string
	EngineBucket    string
	ProgressPercent int
	VideoURL        string
	Message         string
}

// Executor applies state transitions against the persisted row with
// optimistic-concurrency protection. It never retries a lost race itself;
// the caller may retry the whole operation.
type Executor struct {
	store store.RecordStore
	cache StatusCache // may be nil
}

// NewExecutor creates a transition executor.
func NewExecutor(recordStore store.RecordStore, cache StatusCache) *Executor {
	return &Executor{store: recordStore, cache: cache}
}

// Transition attempts one state transition for jobKey.
//
// The current row is read with its state column verbatim (not normalized),
// the (state, event) pair is checked against the transition table, the new
// field set is computed, and the write is conditioned on the state column
// still holding the value that was read. Zero matched rows means another
// process transitioned concurrently and the call fails with
// ErrConcurrentModification.
func (e *Executor) Transition(ctx context.Context, jobKey string, event model.RenderEvent, f Fields) (*model.RenderJob, error) {
	note, err := e.store.GetNote(ctx, jobKey)
	if err != nil {
		return nil, err
	}

	next, ok := Next(note.RenderState, event)
	if !ok {
		return nil, &InvalidTransitionError{From: note.RenderState, Event: event}
	}

	set, err := computeFields(note, event, next, f)
	if err != nil {
		return nil, err
	}

	updated, err := e.store.UpdateRender(ctx, jobKey, set, note.RenderState)
	if err != nil {
		if errors.Is(err, store.ErrNotMatched) {
			return nil, fmt.Errorf("transition %s on %s: %w", event, jobKey, ErrConcurrentModification)
		}
		return nil, err
	}

	e.invalidate(ctx, jobKey)
	log.Printf("[Render] %s: %s -> %s (%s)", jobKey, note.RenderState, next, event)
	return model.RenderJobOf(updated), nil
}

// RefreshProgress updates progress_percent while the job stays in
// rendering. It is a same-state refresh, not a formal transition: the
// state column is untouched, but the write is still conditioned on the row
// being in rendering so a completion recorded by a concurrent poller can
// never be overwritten.
func (e *Executor) RefreshProgress(ctx context.Context, jobKey string, percent int) (*model.RenderJob, error) {
	updated, err := e.store.UpdateRenderProgress(ctx, jobKey, ClampPercent(percent))
	if err != nil {
		if errors.Is(err, store.ErrNotMatched) {
			return nil, fmt.Errorf("progress refresh on %s: %w", jobKey, ErrConcurrentModification)
		}
		return nil, err
	}

	e.invalidate(ctx, jobKey)
	return model.RenderJobOf(updated), nil
}

// Reset clears the render unit back to idle for an explicit re-render,
// dropping the video URL, engine handle, and failure message atomically
// with the state column. Active renders must be abandoned first. Activity
// is judged on the normalized view, so a crash-stale row whose video URL
// landed before the state column can still be reset.
func (e *Executor) Reset(ctx context.Context, jobKey string) (*model.RenderJob, error) {
	note, err := e.store.GetNote(ctx, jobKey)
	if err != nil {
		return nil, err
	}

	if IsActive(Normalize(note).State) {
		return nil, fmt.Errorf("reset %s: %w", jobKey, ErrRenderActive)
	}

	set := store.RenderFields{State: model.RenderStateIdle}
	updated, err := e.store.UpdateRender(ctx, jobKey, set, note.RenderState)
	if err != nil {
		if errors.Is(err, store.ErrNotMatched) {
			return nil, fmt.Errorf("reset %s: %w", jobKey, ErrConcurrentModification)
		}
		return nil, err
	}

	e.invalidate(ctx, jobKey)
	log.Printf("[Render] %s: reset to idle", jobKey)
	return model.RenderJobOf(updated), nil
}

// computeFields derives the full render field set written for one event.
// complete and fail both clear the engine handle; fail guarantees a
// non-empty message; start from failed clears the previous error.
func computeFields(note *model.PatchNote, event model.RenderEvent, next model.RenderState, f Fields) (store.RenderFields, error) {
	switch event {
	case model.RenderEventStart:
		if f.EngineJobID == "" {
			return store.RenderFields{}, fmt.Errorf("start transition on %s requires an engine handle", note.Key)
		}
		return store.RenderFields{
			State:        next,
			EngineJobID:  strPtr(f.EngineJobID),
			EngineBucket: strPtr(f.EngineBucket),
		}, nil

	case model.RenderEventProgress:
		return store.RenderFields{
			State:           next,
			EngineJobID:     note.EngineJobID,
			EngineBucket:    note.EngineBucket,
			ProgressPercent: ClampPercent(f.ProgressPercent),
		}, nil

	case model.RenderEventComplete:
		if f.VideoURL == "" {
			return store.RenderFields{}, fmt.Errorf("complete transition on %s requires a video url", note.Key)
		}
		return store.RenderFields{
			State:           next,
			ProgressPercent: 100,
			VideoURL:        strPtr(f.VideoURL),
		}, nil

	case model.RenderEventFail:
		msg := f.Message
		if msg == "" {
			msg = DefaultFailureMessage
		}
		return store.RenderFields{
			State:     next,
			LastError: strPtr(msg),
		}, nil
	}

	return store.RenderFields{}, &InvalidTransitionError{From: note.RenderState, Event: event}
}

func (e *Executor) invalidate(ctx context.Context, jobKey string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, jobKey)
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
