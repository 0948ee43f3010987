package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/config"
	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/render"
	"github.com/patchnotes/api/internal/service"
	"github.com/patchnotes/api/internal/testsupport"
	ws "github.com/patchnotes/api/internal/websocket"
)

func pipelineTask(t *testing.T, noteKey string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(&model.PipelineTaskPayload{NoteKey: noteKey})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(service.TaskTypePipeline, payload)
}

func newWorkerHarness(st *testsupport.Store, commits *testsupport.Commits, engine *testsupport.Engine) *PipelineWorker {
	summaries := service.NewSummaryService(client.NewGroqClient(&config.GroqConfig{}))
	return newWorkerHarnessWith(st, commits, engine, summaries)
}

func newWorkerHarnessWith(st *testsupport.Store, commits *testsupport.Commits, engine *testsupport.Engine, summaries service.Summarizer) *PipelineWorker {
	exec := render.NewExecutor(st, nil)
	init := render.NewInitiator(st, engine, exec, "comp", "render-out")
	hub := ws.NewHub()
	go hub.Run()
	return NewPipelineWorker(st, commits, summaries, exec, init, hub)
}

// scriptedSummarizer overrides selected AI operations and delegates the
// rest to the unconfigured mock service.
type scriptedSummarizer struct {
	*service.SummaryService
	assembleErr    error
	highlights     []model.Highlight
	highlightsErr  error
	highlightsStub bool
}

func (s *scriptedSummarizer) AssembleChangelog(ctx context.Context, title string, summaries []service.CommitSummary) (string, error) {
	if s.assembleErr != nil {
		return "", s.assembleErr
	}
	return s.SummaryService.AssembleChangelog(ctx, title, summaries)
}

func (s *scriptedSummarizer) ExtractHighlights(ctx context.Context, content string) ([]model.Highlight, error) {
	if s.highlightsStub {
		return s.highlights, s.highlightsErr
	}
	return s.SummaryService.ExtractHighlights(ctx, content)
}

func seedDraft(st *testsupport.Store, key string) {
	st.Seed(&model.PatchNote{
		Key:         key,
		UserID:      "user-1",
		Title:       "Widgets 1.2.0",
		RepoOwner:   "acme",
		RepoName:    "widgets",
		Branch:      "main",
		RangeMode:   model.RangeModeDates,
		Status:      model.NoteStatusGenerating,
		RenderState: model.RenderStateIdle,
	})
}

func someCommits() []client.Commit {
	now := time.Now()
	return []client.Commit{
		{SHA: "aaa", Message: "feat: add dark mode\n\nlong body", Author: "alice", Date: now},
		{SHA: "bbb", Message: "fix: crash on startup", Author: "bob", Date: now},
		{SHA: "ccc", Message: "feat: faster sync", Author: "alice", Date: now},
	}
}

func TestProcessTaskStatsFetchFatal(t *testing.T) {
	st := testsupport.NewStore()
	seedDraft(st, "n1")
	commits := &testsupport.Commits{ListErr: errors.New("github is down")}

	w := newWorkerHarness(st, commits, &testsupport.Engine{})
	if err := w.ProcessTask(context.Background(), pipelineTask(t, "n1")); err == nil {
		t.Fatal("expected fatal error")
	}

	note, _ := st.GetNote(context.Background(), "n1")
	if note.Status != model.NoteStatusFailed {
		t.Errorf("status = %s, want failed", note.Status)
	}
	if note.Content != nil {
		t.Error("no content must be written on a fatal stats failure")
	}

	// The status surface must report the failure, not a pristine idle row.
	job := render.Normalize(note)
	if job.State != model.RenderStateFailed {
		t.Errorf("render state = %s, want failed", job.State)
	}
	if job.LastError == nil || !strings.Contains(*job.LastError, "github is down") {
		t.Errorf("render error = %v, want the stats-layer message", job.LastError)
	}
}

func TestProcessTaskEmptyWindowSkipsRetry(t *testing.T) {
	st := testsupport.NewStore()
	seedDraft(st, "n1")
	commits := &testsupport.Commits{}

	w := newWorkerHarness(st, commits, &testsupport.Engine{})
	err := w.ProcessTask(context.Background(), pipelineTask(t, "n1"))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	note, _ := st.GetNote(context.Background(), "n1")
	if note.Status != model.NoteStatusFailed {
		t.Errorf("status = %s, want failed", note.Status)
	}
	if note.RenderState != model.RenderStateFailed {
		t.Errorf("render state = %s, want failed", note.RenderState)
	}
	if note.LastError == nil || !strings.Contains(*note.LastError, "No commits found") {
		t.Errorf("render error = %v, want the empty-window message", note.LastError)
	}
}

func TestProcessTaskUnknownNoteSkipsRetry(t *testing.T) {
	st := testsupport.NewStore()
	w := newWorkerHarness(st, &testsupport.Commits{}, &testsupport.Engine{})
	err := w.ProcessTask(context.Background(), pipelineTask(t, "missing"))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestProcessTaskHappyPathQueuesRender(t *testing.T) {
	st := testsupport.NewStore()
	seedDraft(st, "n1")
	commits := &testsupport.Commits{
		ListResp: someCommits(),
		Details: map[string]*client.CommitDetail{
			"aaa": {SHA: "aaa", Additions: 120, Deletions: 30, FilesAdded: 2, FilesModified: 3},
			"bbb": {SHA: "bbb", Additions: 5, Deletions: 2, FilesModified: 1},
			"ccc": {SHA: "ccc", Additions: 40, Deletions: 10, FilesModified: 2, FilesRemoved: 1},
		},
	}
	engine := &testsupport.Engine{
		SubmitResp: &client.RenderSubmitResponse{JobID: "eng-1", Bucket: "render-out"},
	}

	w := newWorkerHarness(st, commits, engine)
	if err := w.ProcessTask(context.Background(), pipelineTask(t, "n1")); err != nil {
		t.Fatalf("process: %v", err)
	}

	note, _ := st.GetNote(context.Background(), "n1")
	if note.Status != model.NoteStatusCompleted {
		t.Errorf("status = %s, want completed", note.Status)
	}
	if note.Content == nil || !strings.Contains(*note.Content, "add dark mode") {
		t.Errorf("content missing commit summary: %v", note.Content)
	}
	if note.ChangesAdded != 2 || note.ChangesModified != 6 || note.ChangesRemoved != 1 {
		t.Errorf("change totals = %d/%d/%d", note.ChangesAdded, note.ChangesModified, note.ChangesRemoved)
	}
	if len(note.Contributors) != 2 {
		t.Errorf("contributors = %v, want unique authors", note.Contributors)
	}
	if len(note.Highlights) == 0 {
		t.Error("highlights not persisted")
	}
	if note.RenderState != model.RenderStateQueued {
		t.Errorf("render state = %s, want queued", note.RenderState)
	}
	if note.EngineJobID == nil || *note.EngineJobID != "eng-1" {
		t.Errorf("engine handle = %v", note.EngineJobID)
	}
}

func TestProcessTaskEngineFailureKeepsContent(t *testing.T) {
	st := testsupport.NewStore()
	seedDraft(st, "n1")
	commits := &testsupport.Commits{ListResp: someCommits()}
	engine := &testsupport.Engine{SubmitErr: errors.New("engine unreachable")}

	w := newWorkerHarness(st, commits, engine)
	if err := w.ProcessTask(context.Background(), pipelineTask(t, "n1")); err != nil {
		t.Fatalf("render submit failure must not fail the pipeline: %v", err)
	}

	note, _ := st.GetNote(context.Background(), "n1")
	if note.Status != model.NoteStatusCompleted {
		t.Errorf("status = %s, want completed", note.Status)
	}
	if note.Content == nil {
		t.Error("content lost on render failure")
	}
	if note.RenderState != model.RenderStateFailed {
		t.Errorf("render state = %s, want failed", note.RenderState)
	}
}

func TestProcessTaskAssemblyFailureUsesFallback(t *testing.T) {
	st := testsupport.NewStore()
	seedDraft(st, "n1")
	commits := &testsupport.Commits{ListResp: someCommits()}
	engine := &testsupport.Engine{
		SubmitResp: &client.RenderSubmitResponse{JobID: "eng-1", Bucket: "render-out"},
	}
	summaries := &scriptedSummarizer{
		SummaryService: service.NewSummaryService(client.NewGroqClient(&config.GroqConfig{})),
		assembleErr:    errors.New("model overloaded"),
	}

	w := newWorkerHarnessWith(st, commits, engine, summaries)
	if err := w.ProcessTask(context.Background(), pipelineTask(t, "n1")); err != nil {
		t.Fatalf("assembly failure must degrade, not fail: %v", err)
	}

	note, _ := st.GetNote(context.Background(), "n1")
	if note.Status != model.NoteStatusCompleted {
		t.Errorf("status = %s, want completed", note.Status)
	}
	if note.Content == nil || !strings.Contains(*note.Content, "3 commits") {
		t.Errorf("content must carry the raw commit count, got %v", note.Content)
	}
	if note.Content == nil || !strings.Contains(*note.Content, "add dark mode") {
		t.Error("fallback content must keep the per-commit summaries")
	}
}

func TestProcessTaskEmptyHighlightsSkipsRender(t *testing.T) {
	st := testsupport.NewStore()
	seedDraft(st, "n1")
	commits := &testsupport.Commits{ListResp: someCommits()}
	engine := &testsupport.Engine{}
	summaries := &scriptedSummarizer{
		SummaryService: service.NewSummaryService(client.NewGroqClient(&config.GroqConfig{})),
		highlightsStub: true,
	}

	w := newWorkerHarnessWith(st, commits, engine, summaries)
	if err := w.ProcessTask(context.Background(), pipelineTask(t, "n1")); err != nil {
		t.Fatalf("empty highlights must not fail the pipeline: %v", err)
	}

	note, _ := st.GetNote(context.Background(), "n1")
	if note.Status != model.NoteStatusCompleted {
		t.Errorf("status = %s, want completed", note.Status)
	}
	if note.Content == nil {
		t.Error("content lost when highlights are empty")
	}
	if note.RenderState != model.RenderStateIdle {
		t.Errorf("render state = %s, want idle", note.RenderState)
	}
	if engine.SubmitN != 0 {
		t.Errorf("engine contacted %d times, want 0", engine.SubmitN)
	}
}

func TestProcessTaskHighlightErrorSkipsRender(t *testing.T) {
	st := testsupport.NewStore()
	seedDraft(st, "n1")
	commits := &testsupport.Commits{ListResp: someCommits()}
	engine := &testsupport.Engine{}
	summaries := &scriptedSummarizer{
		SummaryService: service.NewSummaryService(client.NewGroqClient(&config.GroqConfig{})),
		highlightsStub: true,
		highlightsErr:  errors.New("bad model output"),
	}

	w := newWorkerHarnessWith(st, commits, engine, summaries)
	if err := w.ProcessTask(context.Background(), pipelineTask(t, "n1")); err != nil {
		t.Fatalf("highlight failure must not fail the pipeline: %v", err)
	}

	note, _ := st.GetNote(context.Background(), "n1")
	if note.Status != model.NoteStatusCompleted {
		t.Errorf("status = %s, want completed", note.Status)
	}
	if engine.SubmitN != 0 {
		t.Errorf("engine contacted %d times, want 0", engine.SubmitN)
	}
}

func TestFilterCommitsPrefixes(t *testing.T) {
	include := "feat"
	exclude := "chore,docs"
	commits := []client.Commit{
		{SHA: "1", Message: "feat: one"},
		{SHA: "2", Message: "chore: bump deps"},
		{SHA: "3", Message: "Feat: capitalized"},
		{SHA: "4", Message: "fix: two"},
		{SHA: "5", Message: "docs: readme"},
	}

	got := filterCommits(commits, &include, &exclude)
	if len(got) != 2 {
		t.Fatalf("filtered = %d commits, want 2", len(got))
	}
	if got[0].SHA != "1" || got[1].SHA != "3" {
		t.Errorf("wrong commits kept: %v", got)
	}

	if got := filterCommits(commits, nil, nil); len(got) != len(commits) {
		t.Error("no filters must keep everything")
	}

	if got := filterCommits(commits, nil, &exclude); len(got) != 3 {
		t.Errorf("exclude-only filtered = %d, want 3", len(got))
	}
}

func TestContributorsUniqueFirstSeen(t *testing.T) {
	got := contributorsOf([]client.Commit{
		{Author: "alice"}, {Author: "bob"}, {Author: "alice"}, {Author: ""},
	})
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("contributors = %v", got)
	}
}

func TestFallbackChangelogMentionsCommitCount(t *testing.T) {
	content := fallbackChangelog("Widgets 1.2.0", 7, []service.CommitSummary{
		{Summary: "Added dark mode", Author: "alice"},
	})
	if !strings.Contains(content, "7 commits") {
		t.Errorf("fallback must state the commit count: %q", content)
	}
	if !strings.Contains(content, "Added dark mode") {
		t.Errorf("fallback must keep summaries: %q", content)
	}
}
