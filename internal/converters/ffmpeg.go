package converters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tendant/newscast/internal/process"
)

// FFmpeg issues ffmpeg and ffprobe invocations.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      process.Runner
}

// NewFFmpeg creates a toolkit. Empty paths default to binaries on PATH.
func NewFFmpeg(runner process.Runner, ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = process.ExecRunner{}
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, runner: runner}
}

// Binary returns the configured ffmpeg executable.
func (f *FFmpeg) Binary() string { return f.ffmpegPath }

// ProbeBinary returns the configured ffprobe executable.
func (f *FFmpeg) ProbeBinary() string { return f.ffprobePath }

// Run executes ffmpeg with the given arguments.
func (f *FFmpeg) Run(ctx context.Context, args ...string) (process.Result, error) {
	return f.runner.Run(ctx, process.Command{Name: f.ffmpegPath, Args: args})
}

// Probe returns duration, size and (for video) dimensions of a media file.
func (f *FFmpeg) Probe(ctx context.Context, input string) (*FileInfo, error) {
	res, err := f.runner.Run(ctx, process.Command{
		Name: f.ffprobePath,
		Args: []string{
			"-v", "error",
			"-show_entries", "format=duration,size",
			"-show_entries", "stream=width,height",
			"-of", "default=noprint_wrappers=1",
			input,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", input, err)
	}
	return parseProbeOutput(res.Stdout), nil
}

// Duration returns the media duration in seconds.
func (f *FFmpeg) Duration(ctx context.Context, input string) (float64, error) {
	info, err := f.Probe(ctx, input)
	if err != nil {
		return 0, err
	}
	if info.Duration <= 0 {
		return 0, fmt.Errorf("%s: %w", input, ErrNoDuration)
	}
	return info.Duration, nil
}

func parseProbeOutput(out string) *FileInfo {
	info := &FileInfo{}
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}

		switch key {
		case "width":
			if w, err := strconv.Atoi(value); err == nil && info.Width == 0 {
				info.Width = w
			}
		case "height":
			if h, err := strconv.Atoi(value); err == nil && info.Height == 0 {
				info.Height = h
			}
		case "duration":
			if d, err := strconv.ParseFloat(value, 64); err == nil && d > info.Duration {
				info.Duration = d
			}
		case "size":
			if s, err := strconv.ParseInt(value, 10, 64); err == nil {
				info.Size = s
			}
		}
	}
	return info
}

// Silence writes a stereo 44.1kHz silent clip of the given length.
func (f *FFmpeg) Silence(ctx context.Context, output string, seconds float64) error {
	_, err := f.Run(ctx,
		"-hide_banner", "-nostdin", "-y",
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=stereo",
		"-t", formatFloat(seconds),
		output,
	)
	if err != nil {
		return fmt.Errorf("generate silence: %w", err)
	}
	return nil
}

// ConcatAudio joins inputs in order into one audio stream. A non-nil
// loudness target appends a loudnorm pass to the filter graph.
func (f *FFmpeg) ConcatAudio(ctx context.Context, inputs []string, output string, loudness *Loudness) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat requires at least one input")
	}
	args := []string{"-hide_banner", "-nostdin", "-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", ConcatFilter(len(inputs), loudness),
		"-map", "[outa]",
		output,
	)
	if _, err := f.Run(ctx, args...); err != nil {
		return fmt.Errorf("concat audio: %w", err)
	}
	return nil
}

// ConcatFilter builds the audio concat graph, e.g.
// [0:a][1:a][2:a]concat=n=3:v=0:a=1,loudnorm=I=-16:TP=-1.5:LRA=11[outa]
func ConcatFilter(n int, loudness *Loudness) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:a]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1", n)
	if loudness != nil {
		fmt.Fprintf(&b, ",loudnorm=I=%s:TP=%s:LRA=%s",
			formatFloat(loudness.Integrated), formatFloat(loudness.TruePeak), formatFloat(loudness.Range))
	}
	b.WriteString("[outa]")
	return b.String()
}

// TranscodeToWAV converts any audio input to 16-bit PCM at the given rate.
func (f *FFmpeg) TranscodeToWAV(ctx context.Context, input, output string, sampleRate int) error {
	_, err := f.Run(ctx,
		"-hide_banner", "-nostdin", "-y",
		"-i", input,
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		output,
	)
	if err != nil {
		return fmt.Errorf("transcode %s: %w", input, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
