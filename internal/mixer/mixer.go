// Package mixer assembles the radio bulletin: intro jingle, speech and outro
// jingle concatenated into one loudness-normalized MP3.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/tendant/newscast/internal/converters"
)

const placeholderSeconds = 2

var (
	ErrSpeechMissing = errors.New("speech audio not found")
	ErrMixFailed     = errors.New("radio mix failed")
)

// MixError reports a failed fallback mix after the normalized attempt failed.
type MixError struct {
	Primary  error
	Fallback error
}

func (e *MixError) Error() string {
	return fmt.Sprintf("%v: normalized: %v; plain: %v", ErrMixFailed, e.Primary, e.Fallback)
}

func (e *MixError) Is(target error) bool { return target == ErrMixFailed }

func (e *MixError) Unwrap() []error { return []error{e.Primary, e.Fallback} }

// AudioTool is the subset of the ffmpeg toolkit the mixer needs.
type AudioTool interface {
	Silence(ctx context.Context, output string, seconds float64) error
	ConcatAudio(ctx context.Context, inputs []string, output string, loudness *converters.Loudness) error
}

type Result struct {
	Path       string
	Normalized bool
	SpeechPath string
}

type Mixer struct {
	tool      AudioTool
	jingleDir string
	loudness  converters.Loudness
	logger    *slog.Logger
	group     singleflight.Group
}

func New(tool AudioTool, jingleDir string, logger *slog.Logger) *Mixer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mixer{
		tool:      tool,
		jingleDir: jingleDir,
		loudness:  converters.BroadcastLoudness,
		logger:    logger,
	}
}

// JinglePath returns the location of the intro or outro jingle.
func (m *Mixer) JinglePath(kind string) string {
	return filepath.Join(m.jingleDir, kind+".mp3")
}

// ResolveSpeech returns speechPath if it exists, otherwise the .mp3 sibling
// of a .wav path.
func ResolveSpeech(speechPath string) (string, error) {
	if fileExists(speechPath) {
		return speechPath, nil
	}
	if strings.EqualFold(filepath.Ext(speechPath), ".wav") {
		alt := strings.TrimSuffix(speechPath, filepath.Ext(speechPath)) + ".mp3"
		if fileExists(alt) {
			return alt, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSpeechMissing, speechPath)
}

// Mix joins intro, speech and outro into outputPath, which only appears
// once the mix is complete.
func (m *Mixer) Mix(ctx context.Context, speechPath, outputPath string) (Result, error) {
	speech, err := ResolveSpeech(speechPath)
	if err != nil {
		return Result{}, err
	}

	intro, err := m.EnsureJingle(ctx, "intro")
	if err != nil {
		return Result{}, err
	}
	outro, err := m.EnsureJingle(ctx, "outro")
	if err != nil {
		return Result{}, err
	}

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".radio-*.mp3")
	if err != nil {
		return Result{}, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpName)

	res := Result{Path: outputPath, Normalized: true, SpeechPath: speech}
	inputs := []string{intro, speech, outro}
	if primaryErr := m.tool.ConcatAudio(ctx, inputs, tmpName, &m.loudness); primaryErr != nil {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("mix interrupted: %w", err)
		}
		m.logger.Warn("normalized mix failed, retrying without loudnorm", "output", outputPath, "error", primaryErr)
		if err := m.tool.ConcatAudio(ctx, inputs, tmpName, nil); err != nil {
			return Result{}, &MixError{Primary: primaryErr, Fallback: err}
		}
		res.Normalized = false
	}

	if err := os.Rename(tmpName, outputPath); err != nil {
		return Result{}, fmt.Errorf("publish mix: %w", err)
	}
	return res, nil
}

// EnsureJingle returns the jingle path, creating a silent placeholder if it
// does not exist yet. Concurrent callers share one creation.
func (m *Mixer) EnsureJingle(ctx context.Context, kind string) (string, error) {
	path := m.JinglePath(kind)
	if fileExists(path) {
		return path, nil
	}

	_, err, _ := m.group.Do(path, func() (interface{}, error) {
		if fileExists(path) {
			return nil, nil
		}
		return nil, m.createPlaceholder(ctx, kind, path)
	})
	if err != nil {
		return "", fmt.Errorf("prepare %s jingle: %w", kind, err)
	}
	return path, nil
}

func (m *Mixer) createPlaceholder(ctx context.Context, kind, path string) error {
	if err := os.MkdirAll(m.jingleDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(m.jingleDir, "."+kind+"-*.mp3")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpName)

	if err := m.tool.Silence(ctx, tmpName, placeholderSeconds); err != nil {
		return err
	}
	if fileExists(path) {
		return nil
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	m.logger.Info("created placeholder jingle", "kind", kind, "path", path)
	return nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}
