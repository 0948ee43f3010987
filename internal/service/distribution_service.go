package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/store"
)

// ErrNoteNotReady is returned when distribution is requested for a note
// whose content generation has not finished.
var ErrNoteNotReady = errors.New("patch note content is not ready for distribution")

// DistributionService enqueues delivery of a finished patch note to an
// outbound channel. Delivery itself happens in the distribution worker.
type DistributionService struct {
	store       store.RecordStore
	asynqClient Enqueuer
}

func NewDistributionService(recordStore store.RecordStore, asynqClient Enqueuer) *DistributionService {
	return &DistributionService{store: recordStore, asynqClient: asynqClient}
}

// Distribute validates the note is ready and enqueues a delivery task.
func (s *DistributionService) Distribute(ctx context.Context, noteKey string, req *model.DistributeRequest) (*model.DistributeResponse, error) {
	note, err := s.store.GetNote(ctx, noteKey)
	if err != nil {
		return nil, err
	}
	if note.Status != model.NoteStatusCompleted || note.Content == nil || *note.Content == "" {
		return nil, ErrNoteNotReady
	}

	payload, err := json.Marshal(&model.DistributionTaskPayload{
		NoteKey:    note.Key,
		Channel:    req.Channel,
		Recipients: req.Recipients,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeDistribute, payload)
	_, err = s.asynqClient.Enqueue(task, asynq.Queue("distribute"), asynq.MaxRetry(3))
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.DistributeResponse{
		NoteKey:  note.Key,
		Channel:  req.Channel,
		Accepted: true,
	}, nil
}
