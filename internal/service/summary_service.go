package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/model"
)

// CommitSummary is one commit with its AI-written one-liner, ready for
// final assembly. Magnitude is additions+deletions and drives sorting.
type CommitSummary struct {
	SHA       string
	Author    string
	Summary   string
	Magnitude int
}

// Summarizer defines the interface for the AI text operations the pipeline
// depends on.
type Summarizer interface {
	SummarizeCommit(ctx context.Context, commit client.Commit, detail *client.CommitDetail, pr *client.PullRequest) (string, error)
	AssembleChangelog(ctx context.Context, title string, summaries []CommitSummary) (string, error)
	ExtractHighlights(ctx context.Context, content string) ([]model.Highlight, error)
}

// SummaryService produces the AI-written text of a patch note using Groq.
// When the client is not configured it falls back to deterministic
// templated output so development and tests work without an API key.
type SummaryService struct {
	groqClient *client.GroqClient
}

// NewSummaryService creates a new summary service with Groq client
func NewSummaryService(groqClient *client.GroqClient) *SummaryService {
	return &SummaryService{
		groqClient: groqClient,
	}
}

// SummarizeCommit writes a single-line user-facing summary of one commit.
func (s *SummaryService) SummarizeCommit(ctx context.Context, commit client.Commit, detail *client.CommitDetail, pr *client.PullRequest) (string, error) {
	if s.groqClient == nil || !s.groqClient.IsConfigured() {
		return s.summarizeMock(commit), nil
	}

	userPrompt := s.buildSummarizePrompt(commit, detail, pr)

	response, err := s.groqClient.ChatCompletion(ctx, summarizeSystemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("AI commit summary failed: %w", err)
	}

	line := strings.TrimSpace(response)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if line == "" {
		return "", fmt.Errorf("AI returned an empty commit summary")
	}
	return line, nil
}

// AssembleChangelog merges the commit summaries into the final markdown body.
func (s *SummaryService) AssembleChangelog(ctx context.Context, title string, summaries []CommitSummary) (string, error) {
	if s.groqClient == nil || !s.groqClient.IsConfigured() {
		return s.assembleMock(title, summaries), nil
	}

	userPrompt := s.buildAssemblePrompt(title, summaries)

	response, err := s.groqClient.ChatCompletion(ctx, assembleSystemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("AI changelog assembly failed: %w", err)
	}

	content := strings.TrimSpace(response)
	if content == "" {
		return "", fmt.Errorf("AI returned an empty changelog")
	}
	return content, nil
}

// ExtractHighlights pulls up to three title/description pairs from the
// final content for the video's on-screen summary.
func (s *SummaryService) ExtractHighlights(ctx context.Context, content string) ([]model.Highlight, error) {
	if s.groqClient == nil || !s.groqClient.IsConfigured() {
		return s.highlightsMock(content), nil
	}

	userPrompt := fmt.Sprintf("Patch notes:\n\n%s", content)

	response, err := s.groqClient.ChatCompletion(ctx, highlightsSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("AI highlight extraction failed: %w", err)
	}

	highlights, err := parseHighlights(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	if len(highlights) > 3 {
		highlights = highlights[:3]
	}
	return highlights, nil
}

const summarizeSystemPrompt = `You are a release-notes writer for software products.
Summarize one commit into a single line a non-technical user can understand.
Focus on what changed for the user, not on implementation details.
Output only the one-line summary, with no quotes and no trailing punctuation.`

const assembleSystemPrompt = `You are a release-notes writer for software products.
Merge the given one-line change summaries into polished markdown patch notes.
Group related changes, lead with the most impactful ones, and keep the tone
friendly and concise. Output only the markdown body.`

const highlightsSystemPrompt = `You are preparing an on-screen summary for a short release video.
Extract at most 3 highlights from the patch notes below.
Always output your response as valid JSON in the exact format requested.
Do not include any text outside the JSON structure.
Format: [{"title": "...", "description": "..."}]
Each title is at most 6 words; each description at most 20 words.`

func (s *SummaryService) buildSummarizePrompt(commit client.Commit, detail *client.CommitDetail, pr *client.PullRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commit message:\n%s\n", commit.Message)
	if pr != nil {
		fmt.Fprintf(&b, "\nPull request #%d: %s\n%s\n", pr.Number, pr.Title, pr.Body)
	}
	if detail != nil {
		fmt.Fprintf(&b, "\nChange size: +%d/-%d lines\n", detail.Additions, detail.Deletions)
		if detail.PatchExcerpt != "" {
			fmt.Fprintf(&b, "\nDiff excerpt:\n%s\n", detail.PatchExcerpt)
		}
	}
	return b.String()
}

func (s *SummaryService) buildAssemblePrompt(title string, summaries []CommitSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release: %s\nChanges (largest first):\n", title)
	for _, cs := range summaries {
		fmt.Fprintf(&b, "- %s\n", cs.Summary)
	}
	return b.String()
}

func parseHighlights(response string) ([]model.Highlight, error) {
	// Models occasionally wrap JSON in a code fence; strip to the array.
	start := strings.IndexByte(response, '[')
	end := strings.LastIndexByte(response, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var highlights []model.Highlight
	if err := json.Unmarshal([]byte(response[start:end+1]), &highlights); err != nil {
		return nil, err
	}
	return highlights, nil
}

// Mock fallbacks for development without an API key.

func (s *SummaryService) summarizeMock(commit client.Commit) string {
	line := commit.Message
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

func (s *SummaryService) assembleMock(title string, summaries []CommitSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## What's Changed\n\n", title)
	for _, cs := range summaries {
		fmt.Fprintf(&b, "- %s\n", cs.Summary)
	}
	return b.String()
}

func (s *SummaryService) highlightsMock(content string) []model.Highlight {
	var highlights []model.Highlight
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		text := strings.TrimPrefix(line, "- ")
		title := text
		if len(title) > 48 {
			title = title[:48]
		}
		highlights = append(highlights, model.Highlight{Title: title, Description: text})
		if len(highlights) == 3 {
			break
		}
	}
	return highlights
}
