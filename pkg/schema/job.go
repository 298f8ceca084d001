// pkg/schema/job.go
package schema

import "time"

// Stage is one step of the production state machine.
type Stage string

const (
	StageInit      Stage = "init"
	StageScript    Stage = "script"
	StageVoice     Stage = "voice"
	StageRadio     Stage = "radio"
	StageVideo     Stage = "video"
	StageCompleted Stage = "completed"
	StageError     Stage = "error"
)

var stageOrder = map[Stage]int{
	StageInit:      0,
	StageScript:    1,
	StageVoice:     2,
	StageRadio:     3,
	StageVideo:     4,
	StageCompleted: 5,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	if s == StageError {
		return true
	}
	_, ok := stageOrder[s]
	return ok
}

// Terminal reports whether no further transitions are allowed.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

// CanTransitionTo enforces forward-only progression without skipping.
// Staying on the same stage is allowed so progress can move within a stage.
func (s Stage) CanTransitionTo(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageError {
		return true
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	if !ok {
		return false
	}
	return to == from || to == from+1
}

// Script is the structured broadcast script produced from raw news text.
type Script struct {
	Intro      string   `json:"intro"`
	Body       string   `json:"body"`
	FullScript string   `json:"fullScript"`
	Caption    string   `json:"caption"`
	Hashtags   []string `json:"hashtags"`
	WordCount  int      `json:"wordCount"`
	Truncated  bool     `json:"truncated"`
}

// VideoOutput references one rendered video artifact.
type VideoOutput struct {
	Format    string  `json:"format"`
	Path      string  `json:"path"`
	URL       string  `json:"url"`
	RemoteURL string  `json:"remoteUrl,omitempty"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Aspect    string  `json:"aspect"`
	Duration  float64 `json:"duration"`
	Fallback  bool    `json:"fallback,omitempty"`
}

// Outputs accumulates artifact references as stages complete.
type Outputs struct {
	Script         *Script                `json:"script,omitempty"`
	VoicePath      string                 `json:"voicePath,omitempty"`
	VoiceURL       string                 `json:"voiceUrl,omitempty"`
	VoiceBackend   string                 `json:"voiceBackend,omitempty"`
	RadioPath      string                 `json:"radioPath,omitempty"`
	RadioURL       string                 `json:"radioUrl,omitempty"`
	RadioRemoteURL string                 `json:"radioRemoteUrl,omitempty"`
	Normalized     bool                   `json:"normalized,omitempty"`
	VideoPath      string                 `json:"videoPath,omitempty"`
	VideoURL       string                 `json:"videoUrl,omitempty"`
	Videos         map[string]VideoOutput `json:"videos,omitempty"`
	VideoErrors    map[string]string      `json:"videoErrors,omitempty"`
}

// Job is one tracked production request.
type Job struct {
	ID               string      `json:"id"`
	Stage            Stage       `json:"stage"`
	Progress         int         `json:"progress"`
	RequestedFormats []string    `json:"requestedFormats"`
	Outputs          Outputs     `json:"outputs"`
	Error            string      `json:"error,omitempty"`
	FailureType      FailureType `json:"failureType,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// IsDone reports whether the job reached a terminal stage.
func (j *Job) IsDone() bool {
	return j.Stage.Terminal()
}

// Clone returns a deep copy safe to hand out to readers.
func (j Job) Clone() Job {
	out := j
	out.RequestedFormats = append([]string(nil), j.RequestedFormats...)
	if j.Outputs.Script != nil {
		script := *j.Outputs.Script
		script.Hashtags = append([]string(nil), j.Outputs.Script.Hashtags...)
		out.Outputs.Script = &script
	}
	if j.Outputs.Videos != nil {
		out.Outputs.Videos = make(map[string]VideoOutput, len(j.Outputs.Videos))
		for k, v := range j.Outputs.Videos {
			out.Outputs.Videos[k] = v
		}
	}
	if j.Outputs.VideoErrors != nil {
		out.Outputs.VideoErrors = make(map[string]string, len(j.Outputs.VideoErrors))
		for k, v := range j.Outputs.VideoErrors {
			out.Outputs.VideoErrors[k] = v
		}
	}
	return out
}
