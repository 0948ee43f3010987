package service

import (
	"context"
	"strings"
	"testing"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/config"
)

func unconfiguredSummaryService() *SummaryService {
	return NewSummaryService(client.NewGroqClient(&config.GroqConfig{}))
}

func TestSummarizeCommitFallback(t *testing.T) {
	svc := unconfiguredSummaryService()
	got, err := svc.SummarizeCommit(context.Background(), client.Commit{
		Message: "feat: add dark mode\n\nimplements the toggle",
	}, nil, nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "feat: add dark mode" {
		t.Errorf("summary = %q", got)
	}
}

func TestAssembleChangelogFallback(t *testing.T) {
	svc := unconfiguredSummaryService()
	content, err := svc.AssembleChangelog(context.Background(), "Widgets 1.2.0", []CommitSummary{
		{Summary: "Added dark mode"},
		{Summary: "Fixed startup crash"},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.Contains(content, "# Widgets 1.2.0") {
		t.Errorf("missing title: %q", content)
	}
	if !strings.Contains(content, "- Added dark mode") || !strings.Contains(content, "- Fixed startup crash") {
		t.Errorf("missing summaries: %q", content)
	}
}

func TestExtractHighlightsFallback(t *testing.T) {
	svc := unconfiguredSummaryService()
	content := "# Release\n\n- one\n- two\n- three\n- four\n"

	highlights, err := svc.ExtractHighlights(context.Background(), content)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(highlights) != 3 {
		t.Fatalf("highlights = %d, want capped at 3", len(highlights))
	}
	if highlights[0].Title != "one" {
		t.Errorf("first highlight = %+v", highlights[0])
	}
}

func TestParseHighlightsStripsFence(t *testing.T) {
	raw := "```json\n[{\"title\": \"Faster sync\", \"description\": \"Sync is twice as fast\"}]\n```"
	highlights, err := parseHighlights(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(highlights) != 1 || highlights[0].Title != "Faster sync" {
		t.Errorf("highlights = %+v", highlights)
	}
}

func TestParseHighlightsRejectsProse(t *testing.T) {
	if _, err := parseHighlights("Sorry, I cannot do that."); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}
