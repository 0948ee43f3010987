package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/store"
)

// NoteService owns the patch note records themselves. Render lifecycle
// operations live in RenderService.
type NoteService struct {
	store store.RecordStore
}

func NewNoteService(recordStore store.RecordStore) *NoteService {
	return &NoteService{store: recordStore}
}

// CreateNote persists a new owner record. The render unit starts at idle.
func (s *NoteService) CreateNote(ctx context.Context, userID string, req *model.NoteCreateRequest) (*model.PatchNote, error) {
	branch := req.Branch
	if branch == "" {
		branch = "main"
	}
	rangeMode := req.RangeMode
	if rangeMode == "" {
		rangeMode = model.RangeModeDates
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.RepoOwner + "/" + req.RepoName
	}

	note := &model.PatchNote{
		Key:         uuid.New().String(),
		UserID:      userID,
		Title:       req.Title,
		RepoOwner:   req.RepoOwner,
		RepoName:    req.RepoName,
		DisplayName: displayName,
		Status:      model.NoteStatusDraft,
		Branch:      branch,
		RangeMode:   rangeMode,
		Since:       req.Since,
		Until:       req.Until,
		FromTag:     req.FromTag,
		ToTag:       req.ToTag,
		IncludeTags: req.IncludeTags,
		ExcludeTags: req.ExcludeTags,
		RenderState: model.RenderStateIdle,
	}

	return s.store.CreateNote(ctx, note)
}

func (s *NoteService) GetNote(ctx context.Context, key string) (*model.PatchNote, error) {
	return s.store.GetNote(ctx, key)
}

func (s *NoteService) ListNotes(ctx context.Context, userID string) ([]model.PatchNote, error) {
	return s.store.ListNotes(ctx, userID)
}
