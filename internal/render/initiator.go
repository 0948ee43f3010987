package render

import (
	"context"
	"fmt"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/store"
)

// Initiator submits renders to the engine and records the idle → queued
// transition. After a submission attempt the record is never left idle:
// it ends up queued or failed, deterministically.
type Initiator struct {
	store       store.RecordStore
	engine      client.RenderEngine
	executor    *Executor
	composition string
	bucket      string
}

// NewInitiator creates a render initiator. bucket is the destination the
// engine is asked to write output into; it may be empty to let the engine
// pick its own.
func NewInitiator(recordStore store.RecordStore, engine client.RenderEngine, executor *Executor, composition, bucket string) *Initiator {
	return &Initiator{
		store:       recordStore,
		engine:      engine,
		executor:    executor,
		composition: composition,
		bucket:      bucket,
	}
}

// Start builds the render request from the note's stored highlights and
// submits it. The note must already have highlights; otherwise
// ErrMissingContent is returned and no transition is performed.
func (i *Initiator) Start(ctx context.Context, jobKey string) (*model.RenderJob, error) {
	note, err := i.store.GetNote(ctx, jobKey)
	if err != nil {
		return nil, err
	}

	if len(note.Highlights) == 0 {
		return nil, fmt.Errorf("start render for %s: %w", jobKey, ErrMissingContent)
	}

	title := note.DisplayName
	if title == "" {
		title = note.Title
	}

	resp, err := i.engine.Submit(ctx, &client.RenderSubmitRequest{
		Composition: i.composition,
		Title:       title,
		Highlights:  note.Highlights,
		Bucket:      i.bucket,
	})
	if err != nil {
		// Record the failure so the job is observable as failed, then
		// surface the submission error to the caller.
		if _, ferr := i.executor.Transition(ctx, jobKey, model.RenderEventFail, Fields{Message: err.Error()}); ferr != nil {
			return nil, fmt.Errorf("submit render for %s: %v (record failure: %w)", jobKey, err, ferr)
		}
		return nil, fmt.Errorf("submit render for %s: %w", jobKey, err)
	}

	return i.executor.Transition(ctx, jobKey, model.RenderEventStart, Fields{
		EngineJobID:  resp.JobID,
		EngineBucket: resp.Bucket,
	})
}
