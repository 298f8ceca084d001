// Package render produces captioned videos over a solid background for every
// requested output format.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tendant/newscast/internal/img"
	"github.com/tendant/newscast/internal/process"
	"github.com/tendant/newscast/pkg/schema"
)

const (
	DefaultDuration = 30
	DefaultFont     = "Arial"
	fps             = 25
)

var ErrRenderFailed = errors.New("video render failed")

// RenderError reports a format that could not be rendered by either path.
type RenderError struct {
	Format   string
	Primary  error
	Fallback error
}

func (e *RenderError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("%v (%s): %v", ErrRenderFailed, e.Format, e.Primary)
	}
	return fmt.Sprintf("%v (%s): primary: %v; fallback: %v", ErrRenderFailed, e.Format, e.Primary, e.Fallback)
}

func (e *RenderError) Is(target error) bool { return target == ErrRenderFailed }

func (e *RenderError) Unwrap() []error {
	errs := []error{e.Primary}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// MediaTool is the subset of the ffmpeg toolkit the renderer needs.
type MediaTool interface {
	Duration(ctx context.Context, input string) (float64, error)
	Run(ctx context.Context, args ...string) (process.Result, error)
}

// Options configures the renderer. TempDir holds per-render caption files
// and defaults to os.TempDir().
type Options struct {
	BackgroundDir   string
	BackgroundColor string
	Font            string
	TempDir         string
}

type Request struct {
	AudioPath  string
	Caption    string
	OutputPath string
	JobID      string
	FormatID   string
}

type Result struct {
	Path     string
	Format   schema.VideoFormat
	Duration int
	Layout   Layout
	Fallback bool
}

type Renderer struct {
	tool    MediaTool
	catalog *schema.Catalog
	opts    Options
	logger  *slog.Logger
}

func New(tool MediaTool, catalog *schema.Catalog, opts Options, logger *slog.Logger) *Renderer {
	if catalog == nil {
		catalog = schema.MustDefaultCatalog()
	}
	if opts.BackgroundColor == "" {
		opts.BackgroundColor = img.DefaultBackground
	}
	if opts.Font == "" {
		opts.Font = DefaultFont
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{tool: tool, catalog: catalog, opts: opts, logger: logger}
}

// Render writes one video for req.FormatID. Unknown formats render with the
// catalog default. The video is encoded to a temp sibling and renamed into
// place, so OutputPath only ever holds a complete file.
func (r *Renderer) Render(ctx context.Context, req Request) (Result, error) {
	format := r.catalog.Resolve(req.FormatID)
	layout := LayoutFor(format.Width, format.Height)
	logger := r.logger.With("job_id", req.JobID, "format", format.ID)

	bg := filepath.Join(r.opts.BackgroundDir, img.BackgroundName(format.Width, format.Height))
	if err := img.EnsureBackground(bg, format.Width, format.Height, r.opts.BackgroundColor); err != nil {
		return Result{}, &RenderError{Format: format.ID, Primary: fmt.Errorf("background: %w", err)}
	}
	dir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, &RenderError{Format: format.ID, Primary: fmt.Errorf("ensure output dir: %w", err)}
	}
	tmp, err := os.CreateTemp(dir, ".video-*.mp4")
	if err != nil {
		return Result{}, &RenderError{Format: format.ID, Primary: fmt.Errorf("create temp: %w", err)}
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpName)

	duration := r.duration(ctx, req.AudioPath, logger)
	res := Result{Path: req.OutputPath, Format: format, Duration: duration, Layout: layout}

	primaryErr := r.renderPrimary(ctx, bg, tmpName, req.AudioPath, req.Caption, format, duration, layout)
	if primaryErr != nil {
		if err := ctx.Err(); err != nil {
			return Result{}, &RenderError{Format: format.ID, Primary: fmt.Errorf("%w: %w", err, primaryErr)}
		}
		logger.Warn("animated render failed, using static fallback", "error", primaryErr)
		if _, err := r.tool.Run(ctx, FallbackArgs(bg, req.AudioPath, tmpName, format, duration)...); err != nil {
			return Result{}, &RenderError{Format: format.ID, Primary: primaryErr, Fallback: err}
		}
		res.Fallback = true
	}

	if err := os.Rename(tmpName, req.OutputPath); err != nil {
		return Result{}, &RenderError{Format: format.ID, Primary: fmt.Errorf("publish video: %w", err)}
	}
	logger.Info("video rendered", "path", req.OutputPath, "duration", duration, "layout", layout.Class, "fallback", res.Fallback)
	return res, nil
}

// renderPrimary runs the animated render. The caption is handed to drawtext
// through a text file that lives only for the duration of the run.
func (r *Renderer) renderPrimary(ctx context.Context, bg, output, audio, caption string, format schema.VideoFormat, duration int, layout Layout) error {
	f, err := os.CreateTemp(r.opts.TempDir, "caption-*.txt")
	if err != nil {
		return fmt.Errorf("caption file: %w", err)
	}
	captionFile := f.Name()
	defer os.Remove(captionFile)

	_, err = f.WriteString(CaptionText(caption))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("caption file: %w", err)
	}

	_, err = r.tool.Run(ctx, PrimaryArgs(bg, audio, output, format, duration, layout, captionFile, r.opts.Font)...)
	return err
}

// duration is ceil(audio length)+1 seconds, or DefaultDuration when the
// audio cannot be probed.
func (r *Renderer) duration(ctx context.Context, audio string, logger *slog.Logger) int {
	d, err := r.tool.Duration(ctx, audio)
	if err != nil || d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		logger.Warn("audio probe failed, using default duration", "audio", audio, "error", err, "default", DefaultDuration)
		return DefaultDuration
	}
	return int(math.Ceil(d)) + 1
}

// VideoFilter builds the animated filter chain for one format. captionFile
// names the file drawtext reads the caption from.
func VideoFilter(f schema.VideoFormat, duration int, layout Layout, captionFile, font string) string {
	size := f.Dimensions()
	return fmt.Sprintf(
		"[0:v]scale=%d:%d,"+
			"zoompan=z='min(zoom+0.0003,1.03)':d=%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%s:fps=%d,"+
			"drawbox=y=ih-%d:color=black@0.7:width=iw:height=%d:t=fill,"+
			"drawtext=textfile=%s:expansion=none:font=%s:fontsize=%d:fontcolor=white:x=(w-text_w)/2:y=h-%d[v]",
		f.Width, f.Height,
		duration*fps, size, fps,
		layout.BandOffset, layout.BandHeight,
		EscapeFilterValue(captionFile), EscapeFilterValue(font), layout.FontSize, layout.TextOffset,
	)
}

// PrimaryArgs renders a slow zoom over a single still with the caption band.
func PrimaryArgs(background, audio, output string, f schema.VideoFormat, duration int, layout Layout, captionFile, font string) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", background,
		"-i", audio,
		"-filter_complex", VideoFilter(f, duration, layout, captionFile, font),
		"-map", "[v]",
		"-map", "1:a",
	}
	return append(args, encodeArgs(output, duration)...)
}

// FallbackArgs renders the looped still scaled to size, without zoom or caption.
func FallbackArgs(background, audio, output string, f schema.VideoFormat, duration int) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loop", "1",
		"-i", background,
		"-i", audio,
		"-vf", fmt.Sprintf("scale=%d:%d", f.Width, f.Height),
		"-map", "0:v",
		"-map", "1:a",
	}
	return append(args, encodeArgs(output, duration)...)
}

func encodeArgs(output string, duration int) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-c:a", "aac",
		"-b:a", "128k",
		"-t", strconv.Itoa(duration),
		"-shortest",
		"-movflags", "+faststart",
		output,
	}
}
