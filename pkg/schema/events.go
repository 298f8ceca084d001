// pkg/schema/events.go
package schema

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// LifecycleEvent is published on every stage transition.
type LifecycleEvent struct {
	JobID       string      `json:"job_id"`
	Stage       Stage       `json:"stage"`
	Progress    int         `json:"progress"`
	Formats     []string    `json:"formats,omitempty"`
	Artifact    string      `json:"artifact,omitempty"`
	Error       string      `json:"error,omitempty"`
	FailureType FailureType `json:"failure_type,omitempty"`
	HappenedAt  int64       `json:"happened_at"`
}

type VideoResult struct {
	Format    string `json:"format"`
	URL       string `json:"url"`
	RemoteURL string `json:"remote_url,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Fallback  bool   `json:"fallback,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// ProductionDone is published once per job when it reaches a terminal stage.
type ProductionDone struct {
	ID               string        `json:"id"`
	Stage            Stage         `json:"stage"`
	RadioURL         string        `json:"radio_url,omitempty"`
	VoiceBackend     string        `json:"voice_backend,omitempty"`
	Normalized       bool          `json:"normalized"`
	TotalRendered    int           `json:"total_rendered"`
	TotalFailed      int           `json:"total_failed"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	Videos           []VideoResult `json:"videos,omitempty"`
	Error            string        `json:"error,omitempty"`
	FailureType      FailureType   `json:"failure_type,omitempty"`
	HappenedAt       int64         `json:"happened_at"`
}
