package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/newscast/internal/mixer"
	"github.com/tendant/newscast/internal/render"
	"github.com/tendant/newscast/internal/speech"
	"github.com/tendant/newscast/pkg/schema"
)

// Progress checkpoints per stage.
const (
	progressScriptStart = 10
	progressScriptDone  = 20
	progressVoiceStart  = 30
	progressVoiceDone   = 50
	progressRadioStart  = 60
	progressRadioDone   = 75
	progressVideoStart  = 80
	progressVideoSpan   = 15
	progressCompleted   = 100
)

func (o *Orchestrator) process(ctx context.Context, t task) {
	start := o.now()
	logger := o.logger.With("job_id", t.jobID)
	o.metrics.JobStarted()
	logger.Info("production started", "formats", t.formats)

	if err := o.produce(ctx, t, logger); err != nil {
		o.fail(t.jobID, err, logger)
	}

	job, err := o.store.Get(t.jobID)
	if err != nil {
		logger.Error("job vanished during production", "error", err)
		return
	}
	elapsed := o.now().Sub(start)
	o.metrics.JobFinished(string(job.Stage), elapsed)
	o.publishDone(job, elapsed, logger)
	logger.Info("production finished", "stage", job.Stage, "duration_ms", elapsed.Milliseconds())
}

func (o *Orchestrator) produce(ctx context.Context, t task, logger *slog.Logger) error {
	id := t.jobID

	// script
	if _, err := o.advance(id, schema.StageScript, progressScriptStart, "", nil); err != nil {
		return err
	}
	stageStart := time.Now()
	script := o.composer.Compose(t.text)
	o.metrics.StageCompleted(string(schema.StageScript), time.Since(stageStart), nil)
	if _, err := o.advance(id, schema.StageScript, progressScriptDone, "", func(j *schema.Job) {
		s := script
		j.Outputs.Script = &s
	}); err != nil {
		return err
	}
	logger.Info("script composed", "words", script.WordCount, "truncated", script.Truncated)

	// voice
	if _, err := o.advance(id, schema.StageVoice, progressVoiceStart, "", nil); err != nil {
		return err
	}
	var voice speech.Result
	err := o.stage(ctx, schema.StageVoice, func(ctx context.Context) error {
		var err error
		voice, err = o.synth.Synthesize(ctx, id, script.FullScript, o.paths.VoicePath(id))
		for _, a := range voice.Attempts {
			o.metrics.SpeechAttempt(a.Backend, a.Err)
		}
		return err
	})
	if err != nil {
		return err
	}
	voiceURL := o.paths.URL(voice.Path)
	if _, err := o.advance(id, schema.StageVoice, progressVoiceDone, voiceURL, func(j *schema.Job) {
		j.Outputs.VoicePath = voice.Path
		j.Outputs.VoiceURL = voiceURL
		j.Outputs.VoiceBackend = voice.Backend
	}); err != nil {
		return err
	}

	// radio
	if _, err := o.advance(id, schema.StageRadio, progressRadioStart, "", nil); err != nil {
		return err
	}
	var mix mixer.Result
	err = o.stage(ctx, schema.StageRadio, func(ctx context.Context) error {
		var err error
		mix, err = o.mixer.Mix(ctx, voice.Path, o.paths.RadioPath(id))
		return err
	})
	if err != nil {
		return err
	}
	o.metrics.RadioMixed(mix.Normalized)
	radioURL := o.paths.URL(mix.Path)
	radioRemote := o.mirrorArtifact(ctx, mix.Path, logger)
	if _, err := o.advance(id, schema.StageRadio, progressRadioDone, radioURL, func(j *schema.Job) {
		j.Outputs.RadioPath = mix.Path
		j.Outputs.RadioURL = radioURL
		j.Outputs.RadioRemoteURL = radioRemote
		j.Outputs.Normalized = mix.Normalized
	}); err != nil {
		return err
	}

	// video
	if _, err := o.advance(id, schema.StageVideo, progressVideoStart, "", nil); err != nil {
		return err
	}
	// Each render is timed from the moment it holds a slot, so time spent
	// queued behind other jobs does not count against it.
	err = o.measure(ctx, schema.StageVideo, func(ctx context.Context) error {
		return o.renderAll(ctx, id, t.formats, script.Caption, mix.Path, logger)
	})
	if err != nil {
		return err
	}

	job, err := o.advance(id, schema.StageCompleted, progressCompleted, "", nil)
	if err != nil {
		return err
	}
	logger.Info("production completed", "videos", len(job.Outputs.Videos), "video_errors", len(job.Outputs.VideoErrors))
	return nil
}

// stage runs fn under the per-stage timeout and records its duration.
func (o *Orchestrator) stage(ctx context.Context, stage schema.Stage, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()
	return o.measure(ctx, stage, fn)
}

// measure runs fn and records its duration.
func (o *Orchestrator) measure(ctx context.Context, stage schema.Stage, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	o.metrics.StageCompleted(string(stage), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s stage: %w", stage, err)
	}
	return nil
}

// renderAll renders every format concurrently. A format failure is recorded
// on the job and does not stop its siblings; only a total failure is an error.
func (o *Orchestrator) renderAll(ctx context.Context, id string, formats []string, caption, audio string, logger *slog.Logger) error {
	var (
		mu       sync.Mutex
		finished int
		errs     []error
	)
	total := len(formats)

	var g errgroup.Group
	g.SetLimit(total)
	for _, formatID := range formats {
		formatID := formatID
		g.Go(func() error {
			out, err := o.renderOne(ctx, id, formatID, caption, audio, logger)

			mu.Lock()
			defer mu.Unlock()
			finished++
			if err != nil {
				errs = append(errs, err)
			}
			progress := progressVideoStart + progressVideoSpan*finished/total
			job, uerr := o.store.Update(id, func(j *schema.Job) error {
				if err != nil {
					if j.Outputs.VideoErrors == nil {
						j.Outputs.VideoErrors = make(map[string]string)
					}
					j.Outputs.VideoErrors[formatID] = err.Error()
				} else {
					if j.Outputs.Videos == nil {
						j.Outputs.Videos = make(map[string]schema.VideoOutput)
					}
					j.Outputs.Videos[formatID] = out
				}
				if progress > j.Progress {
					j.Progress = progress
				}
				j.UpdatedAt = o.now()
				return nil
			})
			if uerr != nil {
				logger.Error("record render result", "format", formatID, "error", uerr)
				return nil
			}
			o.publishLifecycle(job, out.URL, logger)
			return nil
		})
	}
	_ = g.Wait()

	job, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if len(job.Outputs.Videos) == 0 {
		if len(errs) == 0 {
			return ErrAllRendersFailed
		}
		return fmt.Errorf("%w: %w", ErrAllRendersFailed, errors.Join(errs...))
	}

	// The first requested format that rendered becomes the primary video.
	for _, formatID := range formats {
		v, ok := job.Outputs.Videos[formatID]
		if !ok {
			continue
		}
		_, err := o.store.Update(id, func(j *schema.Job) error {
			j.Outputs.VideoPath = v.Path
			j.Outputs.VideoURL = v.URL
			return nil
		})
		return err
	}
	return nil
}

func (o *Orchestrator) renderOne(ctx context.Context, id, formatID, caption, audio string, logger *slog.Logger) (schema.VideoOutput, error) {
	if err := o.renderSlots.Acquire(ctx, 1); err != nil {
		return schema.VideoOutput{}, fmt.Errorf("wait for render slot: %w", err)
	}
	defer o.renderSlots.Release(1)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	res, err := o.renderer.Render(ctx, render.Request{
		AudioPath:  audio,
		Caption:    caption,
		OutputPath: o.paths.VideoPath(id, formatID),
		JobID:      id,
		FormatID:   formatID,
	})
	if err != nil {
		o.metrics.VideoRendered(formatID, "failed")
		logger.Warn("format render failed", "format", formatID, "error", err)
		return schema.VideoOutput{}, err
	}

	result := "primary"
	if res.Fallback {
		result = "fallback"
	}
	o.metrics.VideoRendered(formatID, result)

	return schema.VideoOutput{
		Format:    formatID,
		Path:      res.Path,
		URL:       o.paths.URL(res.Path),
		RemoteURL: o.mirrorArtifact(ctx, res.Path, logger),
		Width:     res.Format.Width,
		Height:    res.Format.Height,
		Aspect:    res.Format.Aspect,
		Duration:  float64(res.Duration),
		Fallback:  res.Fallback,
	}, nil
}

// advance moves a job to stage (or within it) and raises progress. Progress
// never decreases.
func (o *Orchestrator) advance(id string, stage schema.Stage, progress int, artifact string, mutate func(*schema.Job)) (schema.Job, error) {
	job, err := o.store.Update(id, func(j *schema.Job) error {
		if !j.Stage.CanTransitionTo(stage) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Stage, stage)
		}
		j.Stage = stage
		if progress > j.Progress {
			j.Progress = progress
		}
		if mutate != nil {
			mutate(j)
		}
		j.UpdatedAt = o.now()
		return nil
	})
	if err != nil {
		return job, err
	}
	o.publishLifecycle(job, artifact, o.logger.With("job_id", id))
	return job, nil
}

func (o *Orchestrator) fail(id string, cause error, logger *slog.Logger) {
	failureType := classifyError(cause)
	job, err := o.store.Update(id, func(j *schema.Job) error {
		if !j.Stage.CanTransitionTo(schema.StageError) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Stage, schema.StageError)
		}
		j.Stage = schema.StageError
		j.Error = cause.Error()
		j.FailureType = failureType
		j.UpdatedAt = o.now()
		return nil
	})
	if err != nil {
		logger.Error("record failure", "error", err, "cause", cause)
		return
	}
	logger.Error("production failed", "error", cause, "failure_type", failureType)
	o.publishLifecycle(job, "", logger)
}

func (o *Orchestrator) mirrorArtifact(ctx context.Context, path string, logger *slog.Logger) string {
	if o.mirror == nil {
		return ""
	}
	remote, err := o.mirror.Mirror(ctx, path, o.paths.Key(path))
	if err != nil {
		logger.Warn("artifact mirror failed", "path", path, "error", err)
		return ""
	}
	logger.Debug("artifact mirrored", "path", path, "remote", remote)
	return remote
}

func (o *Orchestrator) publishLifecycle(job schema.Job, artifact string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	ev := schema.LifecycleEvent{
		JobID:       job.ID,
		Stage:       job.Stage,
		Progress:    job.Progress,
		Formats:     job.RequestedFormats,
		Artifact:    artifact,
		Error:       job.Error,
		FailureType: job.FailureType,
		HappenedAt:  job.UpdatedAt.Unix(),
	}
	if err := o.publisher.PublishLifecycle(ctx, ev); err != nil {
		logger.Warn("publish lifecycle event", "stage", job.Stage, "error", err)
	}
}

func (o *Orchestrator) publishDone(job schema.Job, elapsed time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	done := schema.ProductionDone{
		ID:               job.ID,
		Stage:            job.Stage,
		RadioURL:         job.Outputs.RadioURL,
		VoiceBackend:     job.Outputs.VoiceBackend,
		Normalized:       job.Outputs.Normalized,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Error:            job.Error,
		FailureType:      job.FailureType,
		HappenedAt:       o.now().Unix(),
	}
	for _, formatID := range job.RequestedFormats {
		if v, ok := job.Outputs.Videos[formatID]; ok {
			done.TotalRendered++
			done.Videos = append(done.Videos, schema.VideoResult{
				Format:    formatID,
				URL:       v.URL,
				RemoteURL: v.RemoteURL,
				Width:     v.Width,
				Height:    v.Height,
				Fallback:  v.Fallback,
				Status:    "completed",
			})
			continue
		}
		if msg, ok := job.Outputs.VideoErrors[formatID]; ok {
			done.TotalFailed++
			done.Videos = append(done.Videos, schema.VideoResult{Format: formatID, Status: "failed", Error: msg})
		}
	}

	if err := o.publisher.PublishDone(ctx, done); err != nil {
		logger.Warn("publish production done", "error", err)
	}
}
