package render

import (
	"context"
	"errors"
	"testing"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/testsupport"
)

func highlightedNote(key string) *model.PatchNote {
	return &model.PatchNote{
		Key:         key,
		Title:       "v1.2.0",
		DisplayName: "acme/widgets",
		RenderState: model.RenderStateIdle,
		Highlights: model.Highlights{
			{Title: "Faster sync", Description: "Background sync is twice as fast"},
		},
	}
}

func TestStartWithoutHighlights(t *testing.T) {
	st := testsupport.NewStore()
	st.Seed(&model.PatchNote{Key: "n1", RenderState: model.RenderStateIdle})
	engine := &testsupport.Engine{}

	init := NewInitiator(st, engine, NewExecutor(st, nil), "comp", "bkt")
	_, err := init.Start(context.Background(), "n1")
	if !errors.Is(err, ErrMissingContent) {
		t.Fatalf("expected ErrMissingContent, got %v", err)
	}
	if engine.SubmitN != 0 {
		t.Error("engine contacted despite missing highlights")
	}

	note, _ := st.GetNote(context.Background(), "n1")
	if note.RenderState != model.RenderStateIdle {
		t.Errorf("state = %s, want idle", note.RenderState)
	}
}

func TestStartSubmitFailureLeavesJobFailed(t *testing.T) {
	st := testsupport.NewStore()
	st.Seed(highlightedNote("n1"))
	engine := &testsupport.Engine{SubmitErr: errors.New("engine unreachable")}

	init := NewInitiator(st, engine, NewExecutor(st, nil), "comp", "bkt")
	if _, err := init.Start(context.Background(), "n1"); err == nil {
		t.Fatal("expected submit error")
	}

	note, _ := st.GetNote(context.Background(), "n1")
	if note.RenderState != model.RenderStateFailed {
		t.Errorf("state = %s, want failed", note.RenderState)
	}
	if note.LastError == nil || *note.LastError == "" {
		t.Error("failure must record a message")
	}
}

func TestStartSuccessRecordsHandle(t *testing.T) {
	st := testsupport.NewStore()
	st.Seed(highlightedNote("n1"))
	engine := &testsupport.Engine{
		SubmitResp: &client.RenderSubmitResponse{JobID: "eng-1", Bucket: "render-out"},
	}

	init := NewInitiator(st, engine, NewExecutor(st, nil), "comp", "bkt")
	job, err := init.Start(context.Background(), "n1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.State != model.RenderStateQueued {
		t.Errorf("state = %s, want queued", job.State)
	}
	if job.EngineJobID == nil || *job.EngineJobID != "eng-1" {
		t.Errorf("engine handle = %v", job.EngineJobID)
	}
	if job.EngineBucket == nil || *job.EngineBucket != "render-out" {
		t.Errorf("engine bucket = %v", job.EngineBucket)
	}
}

func TestStartRetryAfterFailure(t *testing.T) {
	st := testsupport.NewStore()
	note := highlightedNote("n1")
	note.RenderState = model.RenderStateFailed
	msg := "previous attempt failed"
	note.LastError = &msg
	st.Seed(note)

	engine := &testsupport.Engine{
		SubmitResp: &client.RenderSubmitResponse{JobID: "eng-2", Bucket: "render-out"},
	}

	init := NewInitiator(st, engine, NewExecutor(st, nil), "comp", "bkt")
	job, err := init.Start(context.Background(), "n1")
	if err != nil {
		t.Fatalf("retry start: %v", err)
	}
	if job.State != model.RenderStateQueued || job.LastError != nil {
		t.Errorf("retry left job in %s with error %v", job.State, job.LastError)
	}
}
