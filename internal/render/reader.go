package render

import (
	"context"

	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/store"
)

// StatusCache is the optional read-through cache in front of the owner row.
// It is never authoritative; every successful transition invalidates it.
type StatusCache interface {
	Get(ctx context.Context, jobKey string) (*model.RenderJob, bool)
	Set(ctx context.Context, jobKey string, job *model.RenderJob)
	Invalidate(ctx context.Context, jobKey string)
}

// StatusReader loads and normalizes the persisted render state for one job.
type StatusReader struct {
	store store.RecordStore
	cache StatusCache // may be nil
}

// NewStatusReader creates a reader. cache may be nil to read the store
// directly on every call.
func NewStatusReader(recordStore store.RecordStore, cache StatusCache) *StatusReader {
	return &StatusReader{store: recordStore, cache: cache}
}

// Read returns the canonical render view of one owner row. Ambiguous or
// legacy stored values are normalized; a persisted video URL always wins
// over the stored state label.
func (r *StatusReader) Read(ctx context.Context, jobKey string) (*model.RenderJob, error) {
	if r.cache != nil {
		if job, ok := r.cache.Get(ctx, jobKey); ok {
			return job, nil
		}
	}

	note, err := r.store.GetNote(ctx, jobKey)
	if err != nil {
		return nil, err
	}

	job := Normalize(note)
	if r.cache != nil {
		r.cache.Set(ctx, jobKey, job)
	}
	return job, nil
}

// Normalize maps a raw owner row to a canonical render view.
//
// A present video URL forces completed regardless of the stored state label;
// this protects against a crash that left the state column stale after the
// URL was written. State labels outside the canonical set, and a completed
// label with no URL, are derived from field presence instead: a failure
// message means failed, an engine handle means queued, nothing means idle.
// Normalization never invents an engine handle.
func Normalize(note *model.PatchNote) *model.RenderJob {
	job := model.RenderJobOf(note)

	if job.VideoURL != nil && *job.VideoURL != "" {
		job.State = model.RenderStateCompleted
		job.EngineJobID = nil
		job.EngineBucket = nil
		job.LastError = nil
		return job
	}

	switch job.State {
	case model.RenderStateIdle, model.RenderStateQueued,
		model.RenderStateRendering, model.RenderStateFailed:
		return job
	}

	switch {
	case job.LastError != nil && *job.LastError != "":
		job.State = model.RenderStateFailed
	case job.EngineJobID != nil && *job.EngineJobID != "":
		job.State = model.RenderStateQueued
	default:
		job.State = model.RenderStateIdle
	}
	return job
}
