package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tendant/newscast/internal/process"
)

const (
	DefaultPiperModel = "ar_JO-kareem-medium"
	DefaultLanguage   = "ar"
	DefaultSpeed      = 130
	DefaultXTTSModel  = "tts_models/multilingual/multi-dataset/xtts_v2"

	gttsSampleRate = 22050
)

// DefaultOrder is the cascade used when none is configured.
var DefaultOrder = []string{"xtts", "piper", "espeak", "gtts"}

// gttsProgram reads text from argv[1], writes MP3 to argv[2] in language argv[3].
const gttsProgram = `import sys
from gtts import gTTS
with open(sys.argv[1], encoding="utf-8") as f:
    text = f.read()
gTTS(text=text, lang=sys.argv[3], slow=False).save(sys.argv[2])
`

// Transcoder converts intermediate MP3 output into PCM WAV.
type Transcoder interface {
	TranscodeToWAV(ctx context.Context, input, output string, sampleRate int) error
}

// Options configures the built-in backends.
type Options struct {
	Runner      process.Runner
	Transcoder  Transcoder
	Language    string
	PiperPath   string
	PiperModel  string
	EspeakPath  string
	EspeakSpeed int
	PythonPath  string
	CoquiPath   string
	XTTSModel   string
	VoiceSample string
}

func (o Options) withDefaults() Options {
	if o.Runner == nil {
		o.Runner = process.ExecRunner{}
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	if o.PiperPath == "" {
		o.PiperPath = "piper"
	}
	if o.PiperModel == "" {
		o.PiperModel = DefaultPiperModel
	}
	if o.EspeakPath == "" {
		o.EspeakPath = "espeak-ng"
	}
	if o.EspeakSpeed <= 0 {
		o.EspeakSpeed = DefaultSpeed
	}
	if o.PythonPath == "" {
		o.PythonPath = "python3"
	}
	if o.CoquiPath == "" {
		o.CoquiPath = "tts"
	}
	if o.XTTSModel == "" {
		o.XTTSModel = DefaultXTTSModel
	}
	return o
}

// BuildBackends instantiates backends by name in the given order.
func BuildBackends(names []string, opts Options) ([]Backend, error) {
	opts = opts.withDefaults()
	if len(names) == 0 {
		names = DefaultOrder
	}

	backends := make([]Backend, 0, len(names))
	for _, raw := range names {
		switch name := strings.ToLower(strings.TrimSpace(raw)); name {
		case "":
			continue
		case "xtts":
			backends = append(backends, &XTTS{Bin: opts.CoquiPath, Model: opts.XTTSModel, Language: opts.Language, VoiceSample: opts.VoiceSample, Runner: opts.Runner})
		case "piper":
			backends = append(backends, &Piper{Bin: opts.PiperPath, Model: opts.PiperModel, Runner: opts.Runner})
		case "espeak", "espeak-ng":
			backends = append(backends, &Espeak{Bin: opts.EspeakPath, Voice: opts.Language, Speed: opts.EspeakSpeed, Runner: opts.Runner})
		case "gtts":
			backends = append(backends, &GTTS{Python: opts.PythonPath, Language: opts.Language, Runner: opts.Runner, Transcoder: opts.Transcoder})
		default:
			return nil, fmt.Errorf("unknown speech backend %q", raw)
		}
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no speech backends configured")
	}
	return backends, nil
}

// XTTS clones the uploaded voice sample with Coqui XTTS v2.
type XTTS struct {
	Bin         string
	Model       string
	Language    string
	VoiceSample string
	Runner      process.Runner
}

func (x *XTTS) Name() string { return "xtts" }

func (x *XTTS) Synthesize(ctx context.Context, req Request) (string, error) {
	if x.VoiceSample == "" {
		return "", fmt.Errorf("%w: no voice sample configured", ErrUnavailable)
	}
	if st, err := os.Stat(x.VoiceSample); err != nil || st.Size() == 0 {
		return "", fmt.Errorf("%w: voice sample %s not uploaded", ErrUnavailable, filepath.Base(x.VoiceSample))
	}

	_, err := x.Runner.Run(ctx, process.Command{
		Name: x.Bin,
		Args: []string{
			"--model_name", x.Model,
			"--text", req.Text,
			"--speaker_wav", x.VoiceSample,
			"--language_idx", x.Language,
			"--out_path", req.OutputPath,
		},
	})
	if err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

// Piper reads the text on stdin and writes WAV directly.
type Piper struct {
	Bin    string
	Model  string
	Runner process.Runner
}

func (p *Piper) Name() string { return "piper" }

func (p *Piper) Synthesize(ctx context.Context, req Request) (string, error) {
	_, err := p.Runner.Run(ctx, process.Command{
		Name:  p.Bin,
		Args:  []string{"--model", p.Model, "--output_file", req.OutputPath},
		Stdin: strings.NewReader(req.Text),
	})
	if err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

// Espeak runs espeak-ng with the text supplied through a temp file.
type Espeak struct {
	Bin    string
	Voice  string
	Speed  int
	Runner process.Runner
}

func (e *Espeak) Name() string { return "espeak" }

func (e *Espeak) Synthesize(ctx context.Context, req Request) (string, error) {
	textPath, cleanup, err := writeTextFile(req, "espeak")
	if err != nil {
		return "", err
	}
	defer cleanup()

	_, err = e.Runner.Run(ctx, process.Command{
		Name: e.Bin,
		Args: []string{"-v", e.Voice, "-s", strconv.Itoa(e.Speed), "-w", req.OutputPath, "-f", textPath},
	})
	if err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

// GTTS runs a fixed python program around the gTTS library, then transcodes
// its MP3 output to WAV. When transcoding fails the MP3 is returned.
type GTTS struct {
	Python     string
	Language   string
	Runner     process.Runner
	Transcoder Transcoder
}

func (g *GTTS) Name() string { return "gtts" }

func (g *GTTS) Synthesize(ctx context.Context, req Request) (string, error) {
	textPath, cleanup, err := writeTextFile(req, "gtts")
	if err != nil {
		return "", err
	}
	defer cleanup()

	mp3Path := MP3Sibling(req.OutputPath)
	_, err = g.Runner.Run(ctx, process.Command{
		Name: g.Python,
		Args: []string{"-c", gttsProgram, textPath, mp3Path, g.Language},
	})
	if err != nil {
		return "", err
	}
	if mp3Path == req.OutputPath || g.Transcoder == nil {
		return mp3Path, nil
	}

	if err := g.Transcoder.TranscodeToWAV(ctx, mp3Path, req.OutputPath, gttsSampleRate); err != nil {
		_ = os.Remove(req.OutputPath)
		return mp3Path, nil
	}
	_ = os.Remove(mp3Path)
	return req.OutputPath, nil
}

func writeTextFile(req Request, backend string) (string, func(), error) {
	f, err := os.CreateTemp(req.TempDir, fmt.Sprintf("%s-%s-*.txt", backend, safeName(req.JobID)))
	if err != nil {
		return "", nil, fmt.Errorf("create text file: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := f.WriteString(req.Text); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write text file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close text file: %w", err)
	}
	return name, cleanup, nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
