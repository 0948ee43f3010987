package testsupport

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/patchnotes/api/internal/client"
	"github.com/patchnotes/api/internal/model"
)

// Engine is a scripted RenderEngine.
type Engine struct {
	SubmitResp *client.RenderSubmitResponse
	SubmitErr  error
	SubmitN    int

	ProgressResp *client.RenderProgress
	ProgressErr  error
	ProgressN    int
}

func (e *Engine) Submit(_ context.Context, _ *client.RenderSubmitRequest) (*client.RenderSubmitResponse, error) {
	e.SubmitN++
	if e.SubmitErr != nil {
		return nil, e.SubmitErr
	}
	return e.SubmitResp, nil
}

func (e *Engine) Progress(_ context.Context, _, _ string) (*client.RenderProgress, error) {
	e.ProgressN++
	if e.ProgressErr != nil {
		return nil, e.ProgressErr
	}
	return e.ProgressResp, nil
}

// Enqueuer records enqueued tasks instead of touching Redis.
type Enqueuer struct {
	mu    sync.Mutex
	Tasks []*asynq.Task
	Err   error
}

func (e *Enqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	e.Tasks = append(e.Tasks, task)
	return &asynq.TaskInfo{ID: "test", Type: task.Type()}, nil
}

// Commits is a scripted CommitHistory.
type Commits struct {
	ListResp []client.Commit
	ListErr  error

	Details map[string]*client.CommitDetail
	Pulls   map[string]*client.PullRequest
}

func (c *Commits) ListCommits(_ context.Context, _, _ string, _ client.CommitFilter) ([]client.Commit, error) {
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	return c.ListResp, nil
}

func (c *Commits) GetCommitDetail(_ context.Context, _, _, sha string) (*client.CommitDetail, error) {
	if d, ok := c.Details[sha]; ok {
		return d, nil
	}
	return &client.CommitDetail{SHA: sha}, nil
}

func (c *Commits) FindPullRequest(_ context.Context, _, _, sha string) (*client.PullRequest, error) {
	if pr, ok := c.Pulls[sha]; ok {
		return pr, nil
	}
	return nil, nil
}

// Cache is an in-memory render status cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*model.RenderJob

	// Invalidations counts explicit drops.
	Invalidations int
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*model.RenderJob)}
}

func (c *Cache) Get(_ context.Context, jobKey string) (*model.RenderJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.entries[jobKey]
	if !ok {
		return nil, false
	}
	cp := *job
	return &cp, true
}

func (c *Cache) Set(_ context.Context, jobKey string, job *model.RenderJob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *job
	c.entries[jobKey] = &cp
}

func (c *Cache) Invalidate(_ context.Context, jobKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Invalidations++
	delete(c.entries, jobKey)
}
