package service

import (
	"context"
	"testing"

	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/testsupport"
)

func TestCreateNoteDefaults(t *testing.T) {
	svc := NewNoteService(testsupport.NewStore())

	note, err := svc.CreateNote(context.Background(), "user-1", &model.NoteCreateRequest{
		Title:     "Widgets 1.2.0",
		RepoOwner: "acme",
		RepoName:  "widgets",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if note.Key == "" {
		t.Error("key must be generated")
	}
	if note.UserID != "user-1" {
		t.Errorf("user = %s", note.UserID)
	}
	if note.Branch != "main" {
		t.Errorf("branch = %s, want main", note.Branch)
	}
	if note.RangeMode != model.RangeModeDates {
		t.Errorf("range mode = %s, want dates", note.RangeMode)
	}
	if note.DisplayName != "acme/widgets" {
		t.Errorf("display name = %s", note.DisplayName)
	}
	if note.Status != model.NoteStatusDraft {
		t.Errorf("status = %s, want draft", note.Status)
	}
	if note.RenderState != model.RenderStateIdle {
		t.Errorf("render state = %s, want idle", note.RenderState)
	}
}

func TestCreateNoteKeepsExplicitValues(t *testing.T) {
	svc := NewNoteService(testsupport.NewStore())

	from := "v1.1.0"
	to := "v1.2.0"
	note, err := svc.CreateNote(context.Background(), "user-1", &model.NoteCreateRequest{
		Title:       "Widgets 1.2.0",
		RepoOwner:   "acme",
		RepoName:    "widgets",
		DisplayName: "Acme Widgets",
		Branch:      "release",
		RangeMode:   model.RangeModeReleases,
		FromTag:     &from,
		ToTag:       &to,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if note.Branch != "release" || note.RangeMode != model.RangeModeReleases {
		t.Errorf("filters = %s %s", note.Branch, note.RangeMode)
	}
	if note.DisplayName != "Acme Widgets" {
		t.Errorf("display name = %s", note.DisplayName)
	}
	if note.FromTag == nil || *note.FromTag != "v1.1.0" {
		t.Errorf("from tag = %v", note.FromTag)
	}
}

func TestListNotesScopedToUser(t *testing.T) {
	st := testsupport.NewStore()
	st.Seed(&model.PatchNote{Key: "a", UserID: "user-1"})
	st.Seed(&model.PatchNote{Key: "b", UserID: "user-2"})

	svc := NewNoteService(st)
	notes, err := svc.ListNotes(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 1 || notes[0].Key != "a" {
		t.Errorf("notes = %v", notes)
	}
}
