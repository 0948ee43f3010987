package client

import (
	"bytes"
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

// RenderEngine defines the interface for the hosted video render service.
type RenderEngine interface {
	Submit(ctx context.Context, req *RenderSubmitRequest) (*RenderSubmitResponse, error)
	Progress(ctx context.Context, jobID, bucket string) (*RenderProgress, error)
}

// EngineClient implements RenderEngine over the render farm's HTTP API.
type EngineClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// RenderSubmitRequest starts a render of the patch note summary video.
type RenderSubmitRequest struct {
	Composition string            `json:"composition"`
	Title       string            `json:"title"`
	Highlights  []model.Highlight `json:"highlights"`
	Bucket      string            `json:"bucket,omitempty"`
}

// RenderSubmitResponse carries the opaque engine handle used for polling.
type RenderSubmitResponse struct {
	JobID  string `json:"job_id"`
	Bucket string `json:"bucket"`
}

// RenderProgress is one progress snapshot from the engine.
type RenderProgress struct {
	Fraction   float64      `json:"fraction"`
	Done       bool         `json:"done"`
	OutputRef  string       `json:"output_ref,omitempty"`
	FatalError *EngineError `json:"fatal_error,omitempty"`
}

// EngineError is a fatal render failure reported by the engine.
type EngineError struct {
	Message string `json:"message"`
}

// NewEngineClient creates a new render engine client.
func NewEngineClient(cfg *config.EngineConfig) *EngineClient {
	return &EngineClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// Submit starts an asynchronous render and returns the engine handle.
func (c *EngineClient) Submit(ctx context.Context, req *RenderSubmitRequest) (*RenderSubmitResponse, error) {
	var result RenderSubmitResponse
	if err := c.post(ctx, "/v1/renders", req, &result); err != nil {
		return nil, err
	}
	if result.JobID == "" {
		return nil, fmt.Errorf("engine returned no job id")
	}
	return &result, nil
}

// Progress retrieves the current progress of a render.
func (c *EngineClient) Progress(ctx context.Context, jobID, bucket string) (*RenderProgress, error) {
	endpoint := fmt.Sprintf("/v1/renders/%s?bucket=%s", url.PathEscape(jobID), url.QueryEscape(bucket))
	var result RenderProgress
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post sends a POST request with JSON body
func (c *EngineClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *EngineClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *EngineClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Engine API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Engine API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Engine API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Engine API] ← %d %s %s — %s", resp.StatusCode, req.Method, req.URL.String(), string(respBody))
		return fmt.Errorf("engine API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Engine API] ✗ unmarshal error for %s %s: %v (body: %s)", req.Method, req.URL.String(), err, string(respBody))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *EngineClient) IsConfigured() bool {
	return c.apiKey != ""
}
