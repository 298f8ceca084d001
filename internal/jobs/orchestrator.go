// Package jobs runs news productions through the script, voice, radio and
// video stages on a bounded worker pool and tracks their state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tendant/newscast/internal/metrics"
	"github.com/tendant/newscast/pkg/schema"
)

const (
	MinTextLength = 10

	DefaultWorkers           = 2
	DefaultQueueSize         = 100
	DefaultStageTimeout      = 10 * time.Minute
	DefaultRenderConcurrency = 2

	publishTimeout = 5 * time.Second
)

type Config struct {
	Workers           int
	QueueSize         int
	StageTimeout      time.Duration
	RenderConcurrency int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = DefaultStageTimeout
	}
	if c.RenderConcurrency <= 0 {
		c.RenderConcurrency = DefaultRenderConcurrency
	}
	return c
}

// Deps are the collaborators of an Orchestrator. Store, Publisher, Mirror,
// Metrics and Logger are optional.
type Deps struct {
	Composer    Composer
	Synthesizer Synthesizer
	Mixer       Mixer
	Renderer    Renderer
	Catalog     *schema.Catalog
	Paths       Paths
	Store       Store
	Publisher   EventPublisher
	Mirror      ArtifactMirror
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

// Submission is returned to the caller as soon as a job is queued.
type Submission struct {
	JobID   string       `json:"jobId"`
	Formats []string     `json:"acceptedFormats"`
	Stage   schema.Stage `json:"stage"`
}

type task struct {
	jobID   string
	text    string
	formats []string
}

type Orchestrator struct {
	composer    Composer
	synth       Synthesizer
	mixer       Mixer
	renderer    Renderer
	catalog     *schema.Catalog
	paths       Paths
	store       Store
	publisher   EventPublisher
	mirror      ArtifactMirror
	metrics     *metrics.Recorder
	logger      *slog.Logger
	cfg         Config
	queue       chan task
	renderSlots *semaphore.Weighted

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Composer == nil:
		return nil, errors.New("jobs: composer is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("jobs: synthesizer is required")
	case deps.Mixer == nil:
		return nil, errors.New("jobs: mixer is required")
	case deps.Renderer == nil:
		return nil, errors.New("jobs: renderer is required")
	case deps.Paths == nil:
		return nil, errors.New("jobs: paths are required")
	}
	if deps.Catalog == nil {
		deps.Catalog = schema.MustDefaultCatalog()
	}
	if deps.Store == nil {
		deps.Store = NewMemoryStore(DefaultMaxJobs)
	}
	if deps.Publisher == nil {
		deps.Publisher = NoopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		composer:    deps.Composer,
		synth:       deps.Synthesizer,
		mixer:       deps.Mixer,
		renderer:    deps.Renderer,
		catalog:     deps.Catalog,
		paths:       deps.Paths,
		store:       deps.Store,
		publisher:   deps.Publisher,
		mirror:      deps.Mirror,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         cfg,
		queue:       make(chan task, cfg.QueueSize),
		renderSlots: semaphore.NewWeighted(int64(cfg.RenderConcurrency)),
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}, nil
}

// Submit validates text, creates a job and queues it. It never blocks on
// production work.
func (o *Orchestrator) Submit(text string, formats []string) (Submission, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinTextLength {
		o.metrics.JobRejected("validation")
		return Submission{}, &ValidationError{
			Field:   "newsText",
			Message: fmt.Sprintf("must be at least %d characters", MinTextLength),
		}
	}
	accepted := o.catalog.Accept(formats)

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.metrics.JobRejected("shutdown")
		return Submission{}, ErrShuttingDown
	}

	now := o.now()
	job := schema.Job{
		ID:               uuid.NewString(),
		Stage:            schema.StageInit,
		RequestedFormats: accepted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.store.Put(job); err != nil {
		return Submission{}, fmt.Errorf("store job: %w", err)
	}

	select {
	case o.queue <- task{jobID: job.ID, text: text, formats: accepted}:
	default:
		_ = o.store.Delete(job.ID)
		o.metrics.JobRejected("queue_full")
		return Submission{}, ErrQueueFull
	}
	o.metrics.JobSubmitted()
	o.metrics.SetQueueDepth(len(o.queue))
	o.logger.Info("job queued", "job_id", job.ID, "formats", accepted, "text_length", utf8.RuneCountInString(text))

	return Submission{JobID: job.ID, Formats: append([]string(nil), accepted...), Stage: job.Stage}, nil
}

// Status returns a snapshot of one job.
func (o *Orchestrator) Status(id string) (schema.Job, error) {
	return o.store.Get(id)
}

// List returns snapshots of all retained jobs, oldest first.
func (o *Orchestrator) List() []schema.Job {
	return o.store.List()
}

func (o *Orchestrator) Formats() []schema.VideoFormat {
	return o.catalog.Formats()
}

func (o *Orchestrator) DefaultFormat() schema.VideoFormat {
	return o.catalog.Default()
}

// QueueDepth reports jobs waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Start launches the worker pool. Calling it twice is a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.closed {
		return
	}
	o.started = true

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	o.logger.Info("worker pool started", "workers", o.cfg.Workers, "queue_size", o.cfg.QueueSize, "render_concurrency", o.cfg.RenderConcurrency)
}

func (o *Orchestrator) worker(n int) {
	defer o.wg.Done()
	for t := range o.queue {
		o.metrics.SetQueueDepth(len(o.queue))
		o.logger.Debug("worker picked job", "worker", n, "job_id", t.jobID)
		o.process(o.ctx, t)
	}
}

// Shutdown stops accepting jobs and waits for queued and running jobs to
// finish. When ctx expires first, running jobs are cancelled.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		return ctx.Err()
	}
}
