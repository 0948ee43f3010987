package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/patchnotes/api/internal/config"
	"github.com/patchnotes/api/internal/model"
)

// CommitHistory defines the interface for the commit history service.
type CommitHistory interface {
	ListCommits(ctx context.Context, owner, repo string, filter CommitFilter) ([]Commit, error)
	GetCommitDetail(ctx context.Context, owner, repo, sha string) (*CommitDetail, error)
	FindPullRequest(ctx context.Context, owner, repo, sha string) (*PullRequest, error)
}

// CommitFilter bounds the commit window of one patch note.
type CommitFilter struct {
	Branch  string
	Mode    model.RangeMode
	Since   *time.Time
	Until   *time.Time
	FromTag *string
	ToTag   *string
}

// Commit is one commit in the configured window.
type Commit struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
}

// CommitDetail carries the diff-level stats for one commit.
type CommitDetail struct {
	SHA           string
	Additions     int
	Deletions     int
	FilesAdded    int
	FilesModified int
	FilesRemoved  int
	PatchExcerpt  string
}

// PullRequest is the merge context associated with a commit, if any.
type PullRequest struct {
	Number int
	Title  string
	Body   string
}

// GitHubClient implements CommitHistory against the GitHub REST API.
type GitHubClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

const (
	commitsPerPage  = 100
	maxCommitPages  = 10
	maxPatchExcerpt = 4000
)

// NewGitHubClient creates a commit history client. The token is optional
// for public repositories.
func NewGitHubClient(cfg *config.GitHubConfig) *GitHubClient {
	return &GitHubClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
	}
}

// ListCommits returns the commits in the filter window, paging through the
// API until a short page is returned. In release mode the window is taken
// from the compare endpoint between the two tags instead.
func (c *GitHubClient) ListCommits(ctx context.Context, owner, repo string, filter CommitFilter) ([]Commit, error) {
	if filter.Mode == model.RangeModeReleases {
		return c.compareCommits(ctx, owner, repo, filter)
	}

	var commits []Commit
	for page := 1; page <= maxCommitPages; page++ {
		endpoint := fmt.Sprintf("/repos/%s/%s/commits?per_page=%d&page=%d",
			url.PathEscape(owner), url.PathEscape(repo), commitsPerPage, page)
		if filter.Branch != "" {
			endpoint += "&sha=" + url.QueryEscape(filter.Branch)
		}
		if filter.Since != nil {
			endpoint += "&since=" + url.QueryEscape(filter.Since.UTC().Format(time.RFC3339))
		}
		if filter.Until != nil {
			endpoint += "&until=" + url.QueryEscape(filter.Until.UTC().Format(time.RFC3339))
		}

		var raw []apiCommit
		if err := c.get(ctx, endpoint, &raw); err != nil {
			return nil, err
		}
		for _, rc := range raw {
			commits = append(commits, rc.toCommit())
		}
		if len(raw) < commitsPerPage {
			break
		}
	}
	return commits, nil
}

// compareCommits lists the commits between two release tags.
func (c *GitHubClient) compareCommits(ctx context.Context, owner, repo string, filter CommitFilter) ([]Commit, error) {
	if filter.FromTag == nil || filter.ToTag == nil {
		return nil, fmt.Errorf("release range requires both from and to tags")
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/compare/%s...%s",
		url.PathEscape(owner), url.PathEscape(repo),
		url.PathEscape(*filter.FromTag), url.PathEscape(*filter.ToTag))

	var result struct {
		Commits []apiCommit `json:"commits"`
	}
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}

	commits := make([]Commit, 0, len(result.Commits))
	for _, rc := range result.Commits {
		commits = append(commits, rc.toCommit())
	}
	return commits, nil
}

// GetCommitDetail retrieves diff stats and a bounded patch excerpt.
func (c *GitHubClient) GetCommitDetail(ctx context.Context, owner, repo, sha string) (*CommitDetail, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/commits/%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))

	var raw struct {
		SHA   string `json:"sha"`
		Stats struct {
			Additions int `json:"additions"`
			Deletions int `json:"deletions"`
		} `json:"stats"`
		Files []struct {
			Status string `json:"status"`
			Patch  string `json:"patch"`
		} `json:"files"`
	}
	if err := c.get(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	detail := &CommitDetail{
		SHA:       raw.SHA,
		Additions: raw.Stats.Additions,
		Deletions: raw.Stats.Deletions,
	}
	var excerpt string
	for _, f := range raw.Files {
		switch f.Status {
		case "added":
			detail.FilesAdded++
		case "removed":
			detail.FilesRemoved++
		default:
			detail.FilesModified++
		}
		if len(excerpt) < maxPatchExcerpt && f.Patch != "" {
			excerpt += f.Patch + "\n"
		}
	}
	if len(excerpt) > maxPatchExcerpt {
		excerpt = excerpt[:maxPatchExcerpt]
	}
	detail.PatchExcerpt = excerpt
	return detail, nil
}

// FindPullRequest returns the first pull request associated with a commit,
// or nil when the commit was pushed directly.
func (c *GitHubClient) FindPullRequest(ctx context.Context, owner, repo, sha string) (*PullRequest, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/commits/%s/pulls",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))

	var raw []struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
	}
	if err := c.get(ctx, endpoint, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return &PullRequest{Number: raw[0].Number, Title: raw[0].Title, Body: raw[0].Body}, nil
}

type apiCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
}

func (rc apiCommit) toCommit() Commit {
	author := rc.Commit.Author.Name
	if rc.Author != nil && rc.Author.Login != "" {
		author = rc.Author.Login
	}
	return Commit{
		SHA:     rc.SHA,
		Message: rc.Commit.Message,
		Author:  author,
		Date:    rc.Commit.Author.Date,
	}
}

// get sends a GET request and parses JSON response
func (c *GitHubClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Printf("[GitHub API] → GET %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[GitHub API] ✗ GET %s — request failed: %v", req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[GitHub API] ← %d GET %s", resp.StatusCode, req.URL.String())
		return fmt.Errorf("github API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true when an access token is present. Public
// repositories work without one, at a lower rate limit.
func (c *GitHubClient) IsConfigured() bool {
	return c.token != ""
}
