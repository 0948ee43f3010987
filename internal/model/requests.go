package model

import "time"

// NoteCreateRequest creates a patch note owner record. The render job for it
// starts implicitly at idle.
type NoteCreateRequest struct {
	Title       string    `json:"title" validate:"required,min=1,max=200"`
	RepoOwner   string    `json:"repoOwner" validate:"required,min=1,max=100"`
	RepoName    string    `json:"repoName" validate:"required,min=1,max=100"`
	DisplayName string    `json:"displayName,omitempty" validate:"omitempty,max=200"`
	Branch      string    `json:"branch,omitempty" validate:"omitempty,max=200"`
	RangeMode   RangeMode `json:"rangeMode,omitempty" validate:"omitempty,oneof=dates releases"`
	Since       *time.Time `json:"since,omitempty"`
	Until       *time.Time `json:"until,omitempty"`
	FromTag     *string    `json:"fromTag,omitempty"`
	ToTag       *string    `json:"toTag,omitempty"`
	IncludeTags *string    `json:"includeTags,omitempty"`
	ExcludeTags *string    `json:"excludeTags,omitempty"`
}

// GenerateResponse acknowledges a fire-and-forget pipeline run.
type GenerateResponse struct {
	NoteKey  string     `json:"noteKey"`
	Status   NoteStatus `json:"status"`
	Accepted bool       `json:"accepted"`
	QueuedAt time.Time  `json:"queuedAt"`
}

// RenderStatusResponse is the poll-safe status shape for one render job.
// It exposes only canonical states plus a human-readable message on failure.
type RenderStatusResponse struct {
	NoteKey         string      `json:"noteKey"`
	State           RenderState `json:"state"`
	ProgressPercent int         `json:"progressPercent"`
	VideoURL        *string     `json:"videoUrl,omitempty"`
	Error           *string     `json:"error,omitempty"`
	StageLabel      *string     `json:"stageLabel,omitempty"`
}

// RenderResetResponse is returned after an explicit re-render reset.
type RenderResetResponse struct {
	NoteKey string      `json:"noteKey"`
	State   RenderState `json:"state"`
}

// DistributeRequest enqueues delivery of a completed note.
type DistributeRequest struct {
	Channel    DistributionChannel `json:"channel" validate:"required,oneof=email social"`
	Recipients []string            `json:"recipients,omitempty" validate:"omitempty,dive,email"`
}

// DistributeResponse acknowledges an enqueued distribution.
type DistributeResponse struct {
	NoteKey  string              `json:"noteKey"`
	Channel  DistributionChannel `json:"channel"`
	Accepted bool                `json:"accepted"`
}
