package model

import "time"

// PatchNote is the owner record for one generated patch note. The render
// lifecycle fields are embedded in the same row and must only be mutated
// through the render transition executor, which writes them as a single
// unit conditioned on render_state being unchanged since it was read.
type PatchNote struct {
	Key         string     `json:"key" db:"key"`
	UserID      string     `json:"userId" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	RepoOwner   string     `json:"repoOwner" db:"repo_owner"`
	RepoName    string     `json:"repoName" db:"repo_name"`
	DisplayName string     `json:"displayName" db:"display_name"`
	Status      NoteStatus `json:"status" db:"status"`

	// Commit window filters.
	Branch      string     `json:"branch" db:"branch"`
	RangeMode   RangeMode  `json:"rangeMode" db:"range_mode"`
	Since       *time.Time `json:"since,omitempty" db:"since"`
	Until       *time.Time `json:"until,omitempty" db:"until"`
	FromTag     *string    `json:"fromTag,omitempty" db:"from_tag"`
	ToTag       *string    `json:"toTag,omitempty" db:"to_tag"`
	IncludeTags *string    `json:"includeTags,omitempty" db:"include_tags"`
	ExcludeTags *string    `json:"excludeTags,omitempty" db:"exclude_tags"`

	// Generated content.
	Content         *string     `json:"content,omitempty" db:"content"`
	ChangesAdded    int         `json:"changesAdded" db:"changes_added"`
	ChangesModified int         `json:"changesModified" db:"changes_modified"`
	ChangesRemoved  int         `json:"changesRemoved" db:"changes_removed"`
	Contributors    StringSlice `json:"contributors,omitempty" db:"contributors"`
	Highlights      Highlights  `json:"highlights,omitempty" db:"highlights"`

	// Render lifecycle unit.
	RenderState     RenderState `json:"renderState" db:"render_state"`
	EngineJobID     *string     `json:"engineJobId,omitempty" db:"engine_job_id"`
	EngineBucket    *string     `json:"engineBucket,omitempty" db:"engine_bucket"`
	ProgressPercent int         `json:"progressPercent" db:"progress_percent"`
	VideoURL        *string     `json:"videoUrl,omitempty" db:"video_url"`
	LastError       *string     `json:"lastError,omitempty" db:"last_error"`
	StageLabel      *string     `json:"stageLabel,omitempty" db:"stage_label"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Highlight is one on-screen summary item for the rendered video.
type Highlight struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// RenderJob is the render lifecycle view over a PatchNote, as returned by
// the status reader and transition executor.
type RenderJob struct {
	JobKey          string      `json:"jobKey"`
	State           RenderState `json:"state"`
	EngineJobID     *string     `json:"engineJobId,omitempty"`
	EngineBucket    *string     `json:"engineBucket,omitempty"`
	ProgressPercent int         `json:"progressPercent"`
	VideoURL        *string     `json:"videoUrl,omitempty"`
	LastError       *string     `json:"lastError,omitempty"`
	StageLabel      *string     `json:"stageLabel,omitempty"`
}

// RenderJobOf extracts the render view from an owner row without normalizing.
func RenderJobOf(note *PatchNote) *RenderJob {
	return &RenderJob{
		JobKey:          note.Key,
		State:           note.RenderState,
		EngineJobID:     note.EngineJobID,
		EngineBucket:    note.EngineBucket,
		ProgressPercent: note.ProgressPercent,
		VideoURL:        note.VideoURL,
		LastError:       note.LastError,
		StageLabel:      note.StageLabel,
	}
}
