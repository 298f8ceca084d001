// Package speech converts script text into a spoken audio file by trying an
// ordered list of text-to-speech backends until one produces output.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrSynthesisFailed is matched by *SynthesisError when every backend failed.
	ErrSynthesisFailed = errors.New("speech synthesis failed")
	// ErrUnavailable is returned by a backend that cannot run in this environment.
	ErrUnavailable = errors.New("backend unavailable")
	ErrEmptyOutput = errors.New("backend produced no audio")
)

// Request is the input handed to each backend.
type Request struct {
	JobID      string
	Text       string
	OutputPath string
	TempDir    string
}

// Backend is one synthesis strategy. It returns the path of the audio it
// produced, normally OutputPath.
type Backend interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (string, error)
}

type Attempt struct {
	Backend  string
	Err      error
	Duration time.Duration
}

type SynthesisError struct {
	Attempts []Attempt
}

func (e *SynthesisError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Backend, a.Err))
	}
	if len(parts) == 0 {
		return ErrSynthesisFailed.Error() + ": no backends configured"
	}
	return ErrSynthesisFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *SynthesisError) Is(target error) bool {
	return target == ErrSynthesisFailed
}

type Result struct {
	Path     string
	Backend  string
	Attempts []Attempt
}

// Synthesizer runs backends in order and stops at the first success.
type Synthesizer struct {
	backends []Backend
	tempDir  string
	logger   *slog.Logger
}

func NewSynthesizer(backends []Backend, tempDir string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{backends: backends, tempDir: tempDir, logger: logger}
}

// Backends returns the configured backend names in cascade order.
func (s *Synthesizer) Backends() []string {
	names := make([]string, 0, len(s.backends))
	for _, b := range s.backends {
		names = append(names, b.Name())
	}
	return names
}

func (s *Synthesizer) Synthesize(ctx context.Context, jobID, text, outputPath string) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure output dir: %w", err)
	}
	tempDir := s.tempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure temp dir: %w", err)
	}

	req := Request{JobID: jobID, Text: text, OutputPath: outputPath, TempDir: tempDir}
	logger := s.logger.With("job_id", jobID)

	var attempts []Attempt
	for _, b := range s.backends {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempts}, fmt.Errorf("synthesis interrupted: %w", err)
		}

		start := time.Now()
		path, err := b.Synthesize(ctx, req)
		if err == nil {
			err = checkOutput(path)
		}
		attempt := Attempt{Backend: b.Name(), Err: err, Duration: time.Since(start)}
		attempts = append(attempts, attempt)

		if err == nil {
			logger.Info("speech synthesized", "backend", b.Name(), "path", path, "duration_ms", attempt.Duration.Milliseconds())
			return Result{Path: path, Backend: b.Name(), Attempts: attempts}, nil
		}

		logger.Warn("speech backend failed", "backend", b.Name(), "error", err)
		removePartial(outputPath)
	}

	return Result{Attempts: attempts}, &SynthesisError{Attempts: attempts}
}

func checkOutput(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if st.Size() == 0 {
		return ErrEmptyOutput
	}
	return nil
}

// removePartial deletes leftovers from a failed attempt at the target path
// and its mp3 sibling.
func removePartial(outputPath string) {
	_ = os.Remove(outputPath)
	if sib := MP3Sibling(outputPath); sib != outputPath {
		_ = os.Remove(sib)
	}
}

// MP3Sibling returns path with its extension replaced by .mp3.
func MP3Sibling(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".mp3"
}
