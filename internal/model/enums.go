package model

// RenderState is the canonical lifecycle state of a patch note's video render.
type RenderState string

const (
	RenderStateIdle      RenderState = "idle"
	RenderStateQueued    RenderState = "queued"
	RenderStateRendering RenderState = "rendering"
	RenderStateCompleted RenderState = "completed"
	RenderStateFailed    RenderState = "failed"
)

var ValidRenderStates = []RenderState{
	RenderStateIdle, RenderStateQueued, RenderStateRendering,
	RenderStateCompleted, RenderStateFailed,
}

// RenderEvent is an event applied against the render state machine.
type RenderEvent string

const (
	RenderEventStart    RenderEvent = "start"
	RenderEventProgress RenderEvent = "progress"
	RenderEventComplete RenderEvent = "complete"
	RenderEventFail     RenderEvent = "fail"
)

var ValidRenderEvents = []RenderEvent{
	RenderEventStart, RenderEventProgress, RenderEventComplete, RenderEventFail,
}

// NoteStatus is the lifecycle of the patch note content itself. It is
// deliberately separate from RenderState: a note can be completed with
// no video, and a failed render leaves the note content visible.
type NoteStatus string

const (
	NoteStatusDraft      NoteStatus = "draft"
	NoteStatusGenerating NoteStatus = "generating"
	NoteStatusCompleted  NoteStatus = "completed"
	NoteStatusFailed     NoteStatus = "failed"
)

var ValidNoteStatuses = []NoteStatus{
	NoteStatusDraft, NoteStatusGenerating, NoteStatusCompleted, NoteStatusFailed,
}

// RangeMode selects how the commit window of a patch note is bounded.
type RangeMode string

const (
	RangeModeDates    RangeMode = "dates"
	RangeModeReleases RangeMode = "releases"
)

// DistributionChannel identifies an outbound provider for a finished note.
type DistributionChannel string

const (
	ChannelEmail  DistributionChannel = "email"
	ChannelSocial DistributionChannel = "social"
)

var ValidDistributionChannels = []DistributionChannel{ChannelEmail, ChannelSocial}
