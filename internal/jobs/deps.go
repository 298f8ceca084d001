package jobs

import (
	"context"

	"github.com/tendant/newscast/internal/mixer"
	"github.com/tendant/newscast/internal/render"
	"github.com/tendant/newscast/internal/speech"
	"github.com/tendant/newscast/pkg/schema"
)

type Composer interface {
	Compose(text string) schema.Script
}

type Synthesizer interface {
	Synthesize(ctx context.Context, jobID, text, outputPath string) (speech.Result, error)
}

type Mixer interface {
	Mix(ctx context.Context, speechPath, outputPath string) (mixer.Result, error)
}

type Renderer interface {
	Render(ctx context.Context, req render.Request) (render.Result, error)
}

// Paths names job artifacts and maps them to public URLs and object keys.
type Paths interface {
	VoicePath(jobID string) string
	RadioPath(jobID string) string
	VideoPath(jobID, formatID string) string
	URL(path string) string
	Key(path string) string
}

// EventPublisher receives lifecycle notifications. Publishing is best effort.
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, ev schema.LifecycleEvent) error
	PublishDone(ctx context.Context, done schema.ProductionDone) error
}

// ArtifactMirror copies a finished artifact to remote storage and returns
// its remote location.
type ArtifactMirror interface {
	Mirror(ctx context.Context, localPath, key string) (string, error)
}

type NoopPublisher struct{}

func (NoopPublisher) PublishLifecycle(context.Context, schema.LifecycleEvent) error { return nil }
func (NoopPublisher) PublishDone(context.Context, schema.ProductionDone) error { return nil }
