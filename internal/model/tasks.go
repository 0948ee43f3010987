package model

// PipelineTaskPayload is the asynq payload for one pipeline run.
type PipelineTaskPayload struct {
	NoteKey string `json:"noteKey"`
}

// DistributionTaskPayload is the asynq payload for one outbound delivery.
type DistributionTaskPayload struct {
	NoteKey    string              `json:"noteKey"`
	Channel    DistributionChannel `json:"channel"`
	Recipients []string            `json:"recipients,omitempty"`
}
