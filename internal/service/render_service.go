package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/render"
	"github.com/patchnotes/api/internal/store"
)

const (
	TaskTypePipeline   = "pipeline:run"
	TaskTypeDistribute = "distribute:send"
)

// Enqueuer is the slice of asynq.Client the services need. It exists so
// handler tests can run without a Redis connection.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RenderService is the caller-visible surface of the render lifecycle:
// start the pipeline, poll status, retry, abandon. All state mutation goes
// through the transition executor.
type RenderService struct {
	store       store.RecordStore
	executor    *render.Executor
	poller      *render.Poller
	asynqClient Enqueuer
}

// NewRenderService creates the render lifecycle service.
func NewRenderService(recordStore store.RecordStore, executor *render.Executor, poller *render.Poller, asynqClient Enqueuer) *RenderService {
	return &RenderService{
		store:       recordStore,
		executor:    executor,
		poller:      poller,
		asynqClient: asynqClient,
	}
}

// StartPipeline enqueues a content-generation run for the note and returns
// immediately. The pipeline worker performs the actual stages.
func (s *RenderService) StartPipeline(ctx context.Context, noteKey string) (*model.GenerateResponse, error) {
	note, err := s.store.GetNote(ctx, noteKey)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(&model.PipelineTaskPayload{NoteKey: note.Key})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := s.store.SetNoteStatus(ctx, note.Key, model.NoteStatusGenerating); err != nil {
		return nil, err
	}
	if err := s.store.SetStageLabel(ctx, note.Key, "Queued for generation"); err != nil {
		log.Printf("Failed to set stage label: %v", err)
	}

	task := asynq.NewTask(TaskTypePipeline, payload)
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("pipeline"),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.GenerateResponse{
		NoteKey:  note.Key,
		Status:   model.NoteStatusGenerating,
		Accepted: true,
		QueuedAt: time.Now(),
	}, nil
}

// GetStatus returns the poll-safe render status for a note. For in-flight
// jobs this drives one poll against the render engine; an engine transport
// fault degrades to the last known persisted status.
func (s *RenderService) GetStatus(ctx context.Context, noteKey string) (*model.RenderStatusResponse, error) {
	job, err := s.poller.Poll(ctx, noteKey)
	if err != nil {
		if job == nil {
			return nil, err
		}
		log.Printf("Poll for %s degraded to last known status: %v", noteKey, err)
	}

	return statusResponse(job), nil
}

// Retry resets the render unit back to idle so the owner can re-render.
func (s *RenderService) Retry(ctx context.Context, noteKey string) (*model.RenderResetResponse, error) {
	job, err := s.executor.Reset(ctx, noteKey)
	if err != nil {
		return nil, err
	}
	return &model.RenderResetResponse{NoteKey: job.JobKey, State: job.State}, nil
}

// Abandon force-fails a job the caller considers stuck. It goes through the
// same transition executor, so the optimistic-concurrency guarantee holds;
// a job that already reached a terminal state rejects the transition.
func (s *RenderService) Abandon(ctx context.Context, noteKey string) (*model.RenderStatusResponse, error) {
	job, err := s.executor.Transition(ctx, noteKey, model.RenderEventFail, render.Fields{
		Message: "render abandoned by user",
	})
	if err != nil {
		return nil, err
	}
	return statusResponse(job), nil
}

func statusResponse(job *model.RenderJob) *model.RenderStatusResponse {
	return &model.RenderStatusResponse{
		NoteKey:         job.JobKey,
		State:           job.State,
		ProgressPercent: job.ProgressPercent,
		VideoURL:        job.VideoURL,
		Error:           job.LastError,
		StageLabel:      job.StageLabel,
	}
}
