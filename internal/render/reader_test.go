package render

import (
	"context"
	"testing"

	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/testsupport"
)

func strp(s string) *string { return &s }

func TestNormalizeVideoURLWins(t *testing.T) {
	job := Normalize(&model.PatchNote{
		Key:         "n1",
		RenderState: model.RenderStateRendering,
		EngineJobID: strp("eng-1"),
		LastError:   strp("stale error"),
		VideoURL:    strp("https://cdn.example.com/v.mp4"),
	})

	if job.State != model.RenderStateCompleted {
		t.Errorf("state = %s, want completed", job.State)
	}
	if job.EngineJobID != nil || job.LastError != nil {
		t.Error("completed view must not expose handle or stale error")
	}
}

func TestNormalizeKnownStatesPassThrough(t *testing.T) {
	for _, state := range []model.RenderState{
		model.RenderStateIdle, model.RenderStateQueued,
		model.RenderStateRendering, model.RenderStateFailed,
	} {
		job := Normalize(&model.PatchNote{Key: "n1", RenderState: state})
		if job.State != state {
			t.Errorf("Normalize(%s) = %s", state, job.State)
		}
	}
}

func TestNormalizeDerivesFromFields(t *testing.T) {
	cases := []struct {
		name string
		note model.PatchNote
		want model.RenderState
	}{
		{"error means failed", model.PatchNote{RenderState: "bogus", LastError: strp("boom")}, model.RenderStateFailed},
		{"handle means queued", model.PatchNote{RenderState: "bogus", EngineJobID: strp("eng-1")}, model.RenderStateQueued},
		{"nothing means idle", model.PatchNote{RenderState: "bogus"}, model.RenderStateIdle},
		{"completed without url degrades", model.PatchNote{RenderState: model.RenderStateCompleted}, model.RenderStateIdle},
	}

	for _, tc := range cases {
		if got := Normalize(&tc.note).State; got != tc.want {
			t.Errorf("%s: state = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeNeverInventsHandle(t *testing.T) {
	job := Normalize(&model.PatchNote{RenderState: "bogus", LastError: strp("boom")})
	if job.EngineJobID != nil {
		t.Error("normalization invented an engine handle")
	}
}

func TestReadPopulatesAndUsesCache(t *testing.T) {
	st := testsupport.NewStore()
	st.Seed(&model.PatchNote{Key: "n1", RenderState: model.RenderStateQueued, EngineJobID: strp("eng-1")})
	cache := testsupport.NewCache()

	reader := NewStatusReader(st, cache)
	ctx := context.Background()

	first, err := reader.Read(ctx, "n1")
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if first.State != model.RenderStateQueued {
		t.Fatalf("state = %s", first.State)
	}

	// Served from cache even if the row vanishes underneath.
	st2 := testsupport.NewStore()
	reader2 := NewStatusReader(st2, cache)
	second, err := reader2.Read(ctx, "n1")
	if err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if second.State != model.RenderStateQueued {
		t.Errorf("cached state = %s, want queued", second.State)
	}
}

func TestReadCacheIsDroppedOnTransition(t *testing.T) {
	st := testsupport.NewStore()
	st.Seed(&model.PatchNote{Key: "n1", RenderState: model.RenderStateQueued, EngineJobID: strp("eng-1")})
	cache := testsupport.NewCache()

	reader := NewStatusReader(st, cache)
	exec := NewExecutor(st, cache)
	ctx := context.Background()

	if _, err := reader.Read(ctx, "n1"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := exec.Transition(ctx, "n1", model.RenderEventFail, Fields{Message: "boom"}); err != nil {
		t.Fatalf("fail transition: %v", err)
	}

	job, err := reader.Read(ctx, "n1")
	if err != nil {
		t.Fatalf("read after transition: %v", err)
	}
	if job.State != model.RenderStateFailed {
		t.Errorf("stale cache served state %s after transition", job.State)
	}
}
