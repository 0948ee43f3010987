// Package testsupport provides in-memory fakes for the persistence and
// client boundaries so lifecycle tests run without Postgres, Redis, or the
// network.
package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/store"
)

// Store is an in-memory RecordStore with the same conditional-write
// semantics as the Postgres implementation.
type Store struct {
	mu    sync.Mutex
	notes map[string]*model.PatchNote

	// UpdateRenderCalls counts conditional render writes, matched or not.
	UpdateRenderCalls int
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{notes: make(map[string]*model.PatchNote)}
}

// Seed inserts a note directly, bypassing CreateNote defaults.
func (s *Store) Seed(note *model.PatchNote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *note
	s.notes[note.Key] = &cp
}

func (s *Store) CreateNote(_ context.Context, note *model.PatchNote) (*model.PatchNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *note
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.notes[note.Key] = &cp
	out := cp
	return &out, nil
}

func (s *Store) GetNote(_ context.Context, key string) (*model.PatchNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *note
	return &cp, nil
}

func (s *Store) ListNotes(_ context.Context, userID string) ([]model.PatchNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PatchNote
	for _, note := range s.notes {
		if note.UserID == userID {
			out = append(out, *note)
		}
	}
	return out, nil
}

func (s *Store) UpdateRender(_ context.Context, key string, set store.RenderFields, expect model.RenderState) (*model.PatchNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateRenderCalls++

	note, ok := s.notes[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	if note.RenderState != expect {
		return nil, store.ErrNotMatched
	}

	note.RenderState = set.State
	note.EngineJobID = set.EngineJobID
	note.EngineBucket = set.EngineBucket
	note.ProgressPercent = set.ProgressPercent
	note.VideoURL = set.VideoURL
	note.LastError = set.LastError
	note.UpdatedAt = time.Now()

	cp := *note
	return &cp, nil
}

func (s *Store) UpdateRenderProgress(_ context.Context, key string, percent int) (*model.PatchNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	if note.RenderState != model.RenderStateRendering {
		return nil, store.ErrNotMatched
	}

	note.ProgressPercent = percent
	note.UpdatedAt = time.Now()
	cp := *note
	return &cp, nil
}

func (s *Store) UpdateContent(_ context.Context, key string, content store.ContentFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[key]
	if !ok {
		return store.ErrNotFound
	}
	note.Content = &content.Content
	note.ChangesAdded = content.ChangesAdded
	note.ChangesModified = content.ChangesModified
	note.ChangesRemoved = content.ChangesRemoved
	note.Contributors = content.Contributors
	return nil
}

func (s *Store) UpdateHighlights(_ context.Context, key string, highlights model.Highlights) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[key]
	if !ok {
		return store.ErrNotFound
	}
	note.Highlights = highlights
	return nil
}

func (s *Store) SetStageLabel(_ context.Context, key, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[key]
	if !ok {
		return store.ErrNotFound
	}
	note.StageLabel = &label
	return nil
}

func (s *Store) SetNoteStatus(_ context.Context, key string, status model.NoteStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.notes[key]
	if !ok {
		return store.ErrNotFound
	}
	note.Status = status
	return nil
}
