package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/model"
	"github.com/patchnotes/api/internal/render"
	"github.com/patchnotes/api/internal/service"
	"github.com/patchnotes/api/internal/store"
	"github.com/patchnotes/api/internal/websocket"
	"github.com/patchnotes/api/pkg/response"
)

// Stage labels surfaced to the dashboard while the pipeline runs.
const (
	StageFetchingActivity = "Fetching repository activity"
	StageSummarizing      = "Summarizing changes"
	StageAssembling       = "Assembling patch notes"
	StageHighlights       = "Extracting highlights"
	StageRendering        = "Rendering video"
	StageCompleted        = "Completed"
)

// maxSummarizedCommits bounds per-commit API and AI calls for very active
// windows. Commits beyond the cap still count toward the change totals.
const maxSummarizedCommits = 30

// PipelineWorker runs the content-generation pipeline for one patch note:
// fetch repository activity, summarize it, assemble the changelog, extract
// highlights, then hand off to the render initiator. Content stages are
// idempotent plain writes; only the render handoff goes through the
// conditional transition executor.
type PipelineWorker struct {
	store     store.RecordStore
	commits   client.CommitHistory
	summaries service.Summarizer
	executor  *render.Executor
	initiator *render.Initiator
	hub       *websocket.Hub
}

// NewPipelineWorker creates a new pipeline worker
func NewPipelineWorker(recordStore store.RecordStore, commits client.CommitHistory, summaries service.Summarizer, executor *render.Executor, initiator *render.Initiator, hub *websocket.Hub) *PipelineWorker {
	return &PipelineWorker{
		store:     recordStore,
		commits:   commits,
		summaries: summaries,
		executor:  executor,
		initiator: initiator,
		hub:       hub,
	}
}

// ProcessTask handles one pipeline run.
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.PipelineTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	noteKey := payload.NoteKey
	log.Printf("Starting pipeline for note: %s", noteKey)

	note, err := w.store.GetNote(ctx, noteKey)
	if err != nil {
		return fmt.Errorf("failed to load note %s: %v: %w", noteKey, err, asynq.SkipRetry)
	}

	// Stage 1: fetch commit window.
	w.setStage(ctx, noteKey, StageFetchingActivity)
	commits, err := w.fetchCommits(ctx, note)
	if err != nil {
		w.failPipeline(ctx, noteKey, fmt.Sprintf("Failed to fetch repository activity: %v", err))
		return err
	}
	if len(commits) == 0 {
		w.failPipeline(ctx, noteKey, "No commits found in the configured window")
		return fmt.Errorf("no commits in window for note %s: %w", noteKey, asynq.SkipRetry)
	}

	// Stage 2: summarize each commit.
	w.setStage(ctx, noteKey, StageSummarizing)
	summaries, stats := w.summarizeCommits(ctx, note, commits)

	// Stage 3: assemble the changelog and persist it.
	w.setStage(ctx, noteKey, StageAssembling)
	content, err := w.summaries.AssembleChangelog(ctx, note.Title, summaries)
	if err != nil {
		log.Printf("Changelog assembly degraded to fallback for %s: %v", noteKey, err)
		content = fallbackChangelog(note.Title, len(commits), summaries)
	}

	stats.Contributors = contributorsOf(commits)
	stats.Content = content
	if err := w.store.UpdateContent(ctx, noteKey, stats); err != nil {
		w.failPipeline(ctx, noteKey, "Failed to save generated content")
		return err
	}

	// Stage 4: extract highlights for the video.
	w.setStage(ctx, noteKey, StageHighlights)
	highlights, err := w.summaries.ExtractHighlights(ctx, content)
	if err != nil || len(highlights) == 0 {
		if err != nil {
			log.Printf("Highlight extraction failed for %s, skipping render: %v", noteKey, err)
		}
		return w.finishWithoutRender(ctx, noteKey)
	}

	if err := w.store.UpdateHighlights(ctx, noteKey, highlights); err != nil {
		log.Printf("Failed to save highlights for %s, skipping render: %v", noteKey, err)
		return w.finishWithoutRender(ctx, noteKey)
	}

	// Stage 5: content is done; hand the render unit to the engine.
	if err := w.store.SetNoteStatus(ctx, noteKey, model.NoteStatusCompleted); err != nil {
		w.failPipeline(ctx, noteKey, "Failed to mark note completed")
		return err
	}
	w.setStage(ctx, noteKey, StageRendering)

	job, err := w.initiator.Start(ctx, noteKey)
	if err != nil {
		// The content is intact and the note stays completed; only the
		// render unit is failed, which the initiator already recorded.
		log.Printf("Render start failed for %s: %v", noteKey, err)
		w.hub.BroadcastError(noteKey, response.CodeRenderFailed, err.Error())
		return nil
	}

	w.hub.BroadcastProgress(noteKey, job.State, job.ProgressPercent)
	log.Printf("Pipeline for note %s finished, render job queued", noteKey)
	return nil
}

// fetchCommits lists the commit window and applies the note's message
// prefix filters.
func (w *PipelineWorker) fetchCommits(ctx context.Context, note *model.PatchNote) ([]client.Commit, error) {
	commits, err := w.commits.ListCommits(ctx, note.RepoOwner, note.RepoName, client.CommitFilter{
		Branch:  note.Branch,
		Mode:    note.RangeMode,
		Since:   note.Since,
		Until:   note.Until,
		FromTag: note.FromTag,
		ToTag:   note.ToTag,
	})
	if err != nil {
		return nil, err
	}
	return filterCommits(commits, note.IncludeTags, note.ExcludeTags), nil
}

// summarizeCommits produces one summary per commit, largest change first,
// and aggregates the change totals. AI failures degrade to the commit's
// subject line so the pipeline always produces content.
func (w *PipelineWorker) summarizeCommits(ctx context.Context, note *model.PatchNote, commits []client.Commit) ([]service.CommitSummary, store.ContentFields) {
	var stats store.ContentFields

	limit := len(commits)
	if limit > maxSummarizedCommits {
		limit = maxSummarizedCommits
	}

	summaries := make([]service.CommitSummary, 0, limit)
	for _, commit := range commits[:limit] {
		detail, err := w.commits.GetCommitDetail(ctx, note.RepoOwner, note.RepoName, commit.SHA)
		if err != nil {
			log.Printf("Failed to fetch detail for %s: %v", commit.SHA, err)
			detail = nil
		}

		var pr *client.PullRequest
		if detail != nil {
			stats.ChangesAdded += detail.FilesAdded
			stats.ChangesModified += detail.FilesModified
			stats.ChangesRemoved += detail.FilesRemoved

			pr, err = w.commits.FindPullRequest(ctx, note.RepoOwner, note.RepoName, commit.SHA)
			if err != nil {
				log.Printf("Failed to look up pull request for %s: %v", commit.SHA, err)
				pr = nil
			}
		}

		summary, err := w.summaries.SummarizeCommit(ctx, commit, detail, pr)
		if err != nil {
			log.Printf("Commit summary degraded to subject line for %s: %v", commit.SHA, err)
			summary = subjectLine(commit.Message)
		}

		magnitude := 0
		if detail != nil {
			magnitude = detail.Additions + detail.Deletions
		}
		summaries = append(summaries, service.CommitSummary{
			SHA:       commit.SHA,
			Author:    commit.Author,
			Summary:   summary,
			Magnitude: magnitude,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Magnitude > summaries[j].Magnitude
	})
	return summaries, stats
}

// finishWithoutRender completes the note as text-only. The render unit
// stays idle so the owner can trigger a render later once highlights exist.
func (w *PipelineWorker) finishWithoutRender(ctx context.Context, noteKey string) error {
	if err := w.store.SetNoteStatus(ctx, noteKey, model.NoteStatusCompleted); err != nil {
		w.failPipeline(ctx, noteKey, "Failed to mark note completed")
		return err
	}
	w.setStage(ctx, noteKey, StageCompleted)
	w.hub.BroadcastComplete(noteKey, "")
	log.Printf("Pipeline for note %s finished without a render", noteKey)
	return nil
}

func (w *PipelineWorker) setStage(ctx context.Context, noteKey, stage string) {
	if err := w.store.SetStageLabel(ctx, noteKey, stage); err != nil {
		log.Printf("Failed to update stage label: %v", err)
	}
	w.hub.BroadcastStage(noteKey, stage)
}

// failPipeline records a fatal pipeline failure on both lifecycles: the
// note is marked failed and the render unit is driven through the fail
// transition so the status surface reports failed with the message.
func (w *PipelineWorker) failPipeline(ctx context.Context, noteKey, errMsg string) {
	if err := w.store.SetNoteStatus(ctx, noteKey, model.NoteStatusFailed); err != nil {
		log.Printf("Failed to mark note as failed: %v", err)
	}
	if _, err := w.executor.Transition(ctx, noteKey, model.RenderEventFail, render.Fields{Message: errMsg}); err != nil {
		// A repeated run on an already-failed render has no valid fail
		// edge; the earlier message is still on the row.
		log.Printf("Failed to record render failure for %s: %v", noteKey, err)
	}
	if err := w.store.SetStageLabel(ctx, noteKey, errMsg); err != nil {
		log.Printf("Failed to update stage label: %v", err)
	}
	w.hub.BroadcastError(noteKey, "PIPELINE_FAILED", errMsg)
}

// filterCommits applies the comma-separated conventional-commit prefix
// filters (e.g. "feat,fix") against each commit's subject line.
func filterCommits(commits []client.Commit, includeTags, excludeTags *string) []client.Commit {
	include := splitTags(includeTags)
	exclude := splitTags(excludeTags)
	if len(include) == 0 && len(exclude) == 0 {
		return commits
	}

	filtered := make([]client.Commit, 0, len(commits))
	for _, commit := range commits {
		subject := strings.ToLower(subjectLine(commit.Message))
		if matchesAnyPrefix(subject, exclude) {
			continue
		}
		if len(include) > 0 && !matchesAnyPrefix(subject, include) {
			continue
		}
		filtered = append(filtered, commit)
	}
	return filtered
}

func splitTags(tags *string) []string {
	if tags == nil {
		return nil
	}
	var out []string
	for _, tag := range strings.Split(*tags, ",") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func matchesAnyPrefix(subject string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(subject, prefix) {
			return true
		}
	}
	return false
}

func subjectLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		message = message[:idx]
	}
	return strings.TrimSpace(message)
}

// fallbackChangelog is the deterministic changelog used when the AI
// assembly call fails. It keeps the per-commit summaries so the note is
// still useful.
func fallbackChangelog(title string, commitCount int, summaries []service.CommitSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "This release includes %d commits.\n\n## Changes\n\n", commitCount)
	for _, s := range summaries {
		fmt.Fprintf(&b, "- %s (%s)\n", s.Summary, s.Author)
	}
	return b.String()
}

// contributorsOf returns the unique commit authors in first-seen order.
func contributorsOf(commits []client.Commit) []string {
	seen := make(map[string]bool, len(commits))
	var out []string
	for _, commit := range commits {
		if commit.Author == "" || seen[commit.Author] {
			continue
		}
		seen[commit.Author] = true
		out = append(out, commit.Author)
	}
	return out
}
