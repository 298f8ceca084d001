package mixer

import (
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tendant/newscast/internal/converters"
)

type fakeTool struct {
	silences       atomic.Int32
	failNormalized bool
	failPlain      bool

	mu      sync.Mutex
	inputs  [][]string
	norms   []bool
	outputs []string
}

func (f *fakeTool) Silence(_ context.Context, output string, _ float64) error {
	f.silences.Add(1)
	time.Sleep(5 * time.Millisecond)
	return os.WriteFile(output, []byte("silence"), 0o644)
}

func (f *fakeTool) ConcatAudio(_ context.Context, inputs []string, output string, loudness *converters.Loudness) error {
	f.mu.Lock()
	f.inputs = append(f.inputs, inputs)
	f.norms = append(f.norms, loudness != nil)
	f.outputs = append(f.outputs, output)
	f.mu.Unlock()

	// ffmpeg leaves a truncated file behind when it fails mid-encode.
	if loudness != nil && f.failNormalized {
		_ = os.WriteFile(output, []byte("mp"), 0o644)
		return errors.New("loudnorm: filter not found")
	}
	if loudness == nil && f.failPlain {
		_ = os.WriteFile(output, []byte("m"), 0o644)
		return errors.New("concat: invalid input")
	}
	return os.WriteFile(output, []byte("mp3"), 0o644)
}

func writeSpeech(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestMixNormalized(t *testing.T) {
	tmp := t.TempDir()
	speech := filepath.Join(tmp, "audio", "voice_1.wav")
	writeSpeech(t, speech)
	out := filepath.Join(tmp, "audio", "radio_1.mp3")

	tool := &fakeTool{}
	m := New(tool, filepath.Join(tmp, "jingles"), nil)

	res, err := m.Mix(context.Background(), speech, out)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if !res.Normalized || res.Path != out || res.SpeechPath != speech {
		t.Fatalf("result = %+v", res)
	}
	if got := tool.silences.Load(); got != 2 {
		t.Fatalf("placeholder jingles created = %d, want 2", got)
	}
	want := []string{m.JinglePath("intro"), speech, m.JinglePath("outro")}
	for i, in := range tool.inputs[0] {
		if in != want[i] {
			t.Fatalf("input %d = %s, want %s", i, in, want[i])
		}
	}
	if encoded := tool.outputs[0]; encoded == out || filepath.Dir(encoded) != filepath.Dir(out) {
		t.Fatalf("encoded to %s, want a temp sibling of %s", encoded, out)
	}
	if b, err := os.ReadFile(out); err != nil || string(b) != "mp3" {
		t.Fatalf("output = %q, %v", b, err)
	}
	assertNoTemps(t, filepath.Dir(out))

	if _, err := m.Mix(context.Background(), speech, out); err != nil {
		t.Fatalf("second Mix: %v", err)
	}
	if got := tool.silences.Load(); got != 2 {
		t.Fatalf("jingles regenerated: %d", got)
	}
}

func TestMixFallsBackWithoutLoudnorm(t *testing.T) {
	tmp := t.TempDir()
	speech := filepath.Join(tmp, "voice.wav")
	writeSpeech(t, speech)

	tool := &fakeTool{failNormalized: true}
	res, err := New(tool, tmp, nil).Mix(context.Background(), speech, filepath.Join(tmp, "radio.mp3"))
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if res.Normalized {
		t.Fatalf("expected unnormalized result")
	}
	if len(tool.norms) != 2 || !tool.norms[0] || tool.norms[1] {
		t.Fatalf("attempts = %v", tool.norms)
	}
	if b, err := os.ReadFile(res.Path); err != nil || string(b) != "mp3" {
		t.Fatalf("output = %q, %v", b, err)
	}
	assertNoTemps(t, tmp)
}

func TestMixFallbackFailure(t *testing.T) {
	tmp := t.TempDir()
	speech := filepath.Join(tmp, "voice.wav")
	writeSpeech(t, speech)

	tool := &fakeTool{failNormalized: true, failPlain: true}
	_, err := New(tool, tmp, nil).Mix(context.Background(), speech, filepath.Join(tmp, "radio.mp3"))
	if !errors.Is(err, ErrMixFailed) {
		t.Fatalf("err = %v, want ErrMixFailed", err)
	}
	var mixErr *MixError
	if !errors.As(err, &mixErr) || mixErr.Primary == nil || mixErr.Fallback == nil {
		t.Fatalf("mix error = %+v", mixErr)
	}
	if _, err := os.Stat(filepath.Join(tmp, "radio.mp3")); !os.IsNotExist(err) {
		t.Fatalf("failed mix published an output: %v", err)
	}
	assertNoTemps(t, tmp)
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	if m, _ := filepath.Glob(filepath.Join(dir, ".radio-*")); len(m) > 0 {
		t.Fatalf("temp files left behind: %v", m)
	}
}

func TestMixUsesMP3Sibling(t *testing.T) {
	tmp := t.TempDir()
	mp3 := filepath.Join(tmp, "voice_1.mp3")
	writeSpeech(t, mp3)

	tool := &fakeTool{}
	res, err := New(tool, tmp, nil).Mix(context.Background(), filepath.Join(tmp, "voice_1.wav"), filepath.Join(tmp, "radio.mp3"))
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if res.SpeechPath != mp3 {
		t.Fatalf("speech path = %s, want %s", res.SpeechPath, mp3)
	}
}

func TestMixMissingSpeech(t *testing.T) {
	tmp := t.TempDir()
	tool := &fakeTool{}

	_, err := New(tool, tmp, nil).Mix(context.Background(), filepath.Join(tmp, "nope.wav"), filepath.Join(tmp, "radio.mp3"))
	if !errors.Is(err, ErrSpeechMissing) {
		t.Fatalf("err = %v, want ErrSpeechMissing", err)
	}
	if len(tool.inputs) != 0 {
		t.Fatalf("concat attempted without speech")
	}
}

func TestEnsureJingleConcurrent(t *testing.T) {
	tmp := t.TempDir()
	tool := &fakeTool{}
	m := New(tool, filepath.Join(tmp, "jingles"), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.EnsureJingle(context.Background(), "intro"); err != nil {
				t.Errorf("EnsureJingle: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := tool.silences.Load(); got != 1 {
		t.Fatalf("placeholder generated %d times, want 1", got)
	}
	entries, _ := os.ReadDir(filepath.Join(tmp, "jingles"))
	if len(entries) != 1 || entries[0].Name() != "intro.mp3" {
		t.Fatalf("jingle dir = %v", entries)
	}
}

// noLoudnorm behaves like an ffmpeg build without the loudnorm filter.
type noLoudnorm struct {
	*converters.FFmpeg
}

func (n noLoudnorm) ConcatAudio(ctx context.Context, inputs []string, output string, loudness *converters.Loudness) error {
	if loudness != nil {
		return errors.New("loudnorm: no such filter")
	}
	return n.FFmpeg.ConcatAudio(ctx, inputs, output, nil)
}

func TestMixWithRealFFmpeg(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real ffmpeg test in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	ctx := context.Background()
	tmp := t.TempDir()
	ff := converters.NewFFmpeg(nil, "", "")
	speech := filepath.Join(tmp, "voice.wav")
	if err := ff.Silence(ctx, speech, 3); err != nil {
		t.Fatalf("Silence: %v", err)
	}
	// Placeholder jingles are 2s each.
	const want = 2 + 3 + 2

	m := New(ff, filepath.Join(tmp, "jingles"), nil)
	var durations []float64
	for _, name := range []string{"radio_a.mp3", "radio_b.mp3"} {
		res, err := m.Mix(ctx, speech, filepath.Join(tmp, name))
		if err != nil {
			t.Fatalf("Mix %s: %v", name, err)
		}
		if !res.Normalized {
			t.Fatalf("%s: expected normalized mix", name)
		}
		d, err := ff.Duration(ctx, res.Path)
		if err != nil {
			t.Fatalf("Duration %s: %v", name, err)
		}
		durations = append(durations, d)
	}
	if math.Abs(durations[0]-durations[1]) > 0.05 {
		t.Fatalf("repeated mixes differ: %v", durations)
	}
	if math.Abs(durations[0]-want) > 0.4 {
		t.Fatalf("normalized duration = %v, want about %ds", durations[0], want)
	}

	res, err := New(noLoudnorm{ff}, filepath.Join(tmp, "jingles"), nil).Mix(ctx, speech, filepath.Join(tmp, "radio_plain.mp3"))
	if err != nil {
		t.Fatalf("fallback Mix: %v", err)
	}
	if res.Normalized {
		t.Fatalf("expected unnormalized fallback")
	}
	d, err := ff.Duration(ctx, res.Path)
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if math.Abs(d-want) > 0.4 {
		t.Fatalf("fallback duration = %v, want about %ds", d, want)
	}
	assertNoTemps(t, tmp)
}
