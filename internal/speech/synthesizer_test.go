package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tendant/newscast/internal/process"
	"github.com/tendant/newscast/internal/process/processtest"
)

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSynthesizeFallsThroughToEspeak(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "audio", "voice_job1.wav")

	fake := &processtest.FakeRunner{Handler: func(cmd process.Command, stdin string) (process.Result, error) {
		switch cmd.Name {
		case "piper":
			// partial output left behind by a crashing backend
			writeFile(t, argAfter(cmd.Args, "--output_file"), "junk")
			return processtest.Fail(cmd, 1, "model not found")
		case "espeak-ng":
			text, err := os.ReadFile(argAfter(cmd.Args, "-f"))
			if err != nil || string(text) != "مرحبا" {
				t.Errorf("text file = %q, %v", text, err)
			}
			writeFile(t, argAfter(cmd.Args, "-w"), "RIFF")
			return process.Result{}, nil
		}
		t.Errorf("unexpected command %s", cmd.Name)
		return process.Result{}, nil
	}}

	backends, err := BuildBackends(nil, Options{Runner: fake, VoiceSample: filepath.Join(tmp, "missing.wav")})
	if err != nil {
		t.Fatalf("BuildBackends: %v", err)
	}
	s := NewSynthesizer(backends, filepath.Join(tmp, "tmp"), nil)

	res, err := s.Synthesize(context.Background(), "job1", "مرحبا", out)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Backend != "espeak" || res.Path != out {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(res.Attempts))
	}
	if !errors.Is(res.Attempts[0].Err, ErrUnavailable) {
		t.Fatalf("xtts attempt err = %v", res.Attempts[0].Err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "RIFF" {
		t.Fatalf("output = %q", data)
	}

	leftovers, _ := filepath.Glob(filepath.Join(tmp, "tmp", "*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files not cleaned: %v", leftovers)
	}
	if got := fake.CallsTo("piper"); len(got) != 1 || argAfter(got[0].Args, "--model") != DefaultPiperModel {
		t.Fatalf("piper calls = %+v", got)
	}
}

func TestSynthesizeUsesVoiceSampleWhenPresent(t *testing.T) {
	tmp := t.TempDir()
	sample := filepath.Join(tmp, "imad_nour.wav")
	writeFile(t, sample, "sample")
	out := filepath.Join(tmp, "voice.wav")

	fake := &processtest.FakeRunner{Handler: func(cmd process.Command, _ string) (process.Result, error) {
		if cmd.Name != "tts" {
			t.Errorf("unexpected command %s", cmd.Name)
		}
		if argAfter(cmd.Args, "--speaker_wav") != sample {
			t.Errorf("speaker = %q", argAfter(cmd.Args, "--speaker_wav"))
		}
		writeFile(t, argAfter(cmd.Args, "--out_path"), "RIFF")
		return process.Result{}, nil
	}}
	backends, err := BuildBackends([]string{"xtts", "piper"}, Options{Runner: fake, VoiceSample: sample})
	if err != nil {
		t.Fatalf("BuildBackends: %v", err)
	}

	res, err := NewSynthesizer(backends, tmp, nil).Synthesize(context.Background(), "j", "نص", out)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Backend != "xtts" || len(res.Attempts) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSynthesizeEmptyOutputIsFailure(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "voice.wav")

	fake := &processtest.FakeRunner{Handler: func(cmd process.Command, _ string) (process.Result, error) {
		writeFile(t, argAfter(cmd.Args, "--output_file"), "")
		return process.Result{}, nil
	}}
	backends, _ := BuildBackends([]string{"piper"}, Options{Runner: fake})

	_, err := NewSynthesizer(backends, tmp, nil).Synthesize(context.Background(), "j", "نص", out)
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("err = %v, want ErrSynthesisFailed", err)
	}
	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) || !errors.Is(synthErr.Attempts[0].Err, ErrEmptyOutput) {
		t.Fatalf("attempts = %+v", synthErr)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("empty output not removed")
	}
}

func TestSynthesizeAllBackendsFail(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "voice.wav")

	fake := &processtest.FakeRunner{Handler: func(cmd process.Command, _ string) (process.Result, error) {
		if cmd.Name == "python3" {
			writeFile(t, cmd.Args[3], "partial mp3")
		}
		return processtest.Fail(cmd, 127, "not found")
	}}
	backends, _ := BuildBackends([]string{"piper", "espeak", "gtts"}, Options{Runner: fake})

	_, err := NewSynthesizer(backends, tmp, nil).Synthesize(context.Background(), "j", "نص", out)
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("err = %v, want ErrSynthesisFailed", err)
	}
	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) || len(synthErr.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %+v", synthErr)
	}
	if _, statErr := os.Stat(MP3Sibling(out)); !os.IsNotExist(statErr) {
		t.Fatalf("partial mp3 sibling not removed")
	}
}

type failingTranscoder struct{}

func (failingTranscoder) TranscodeToWAV(context.Context, string, string, int) error {
	return errors.New("ffmpeg missing")
}

func TestGTTSReturnsMP3WhenTranscodeFails(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "voice.wav")

	fake := &processtest.FakeRunner{Handler: func(cmd process.Command, _ string) (process.Result, error) {
		if cmd.Args[0] != "-c" || cmd.Args[4] != "ar" {
			t.Errorf("args = %v", cmd.Args)
		}
		writeFile(t, cmd.Args[3], "ID3")
		return process.Result{}, nil
	}}
	backends, _ := BuildBackends([]string{"gtts"}, Options{Runner: fake, Transcoder: failingTranscoder{}})

	res, err := NewSynthesizer(backends, tmp, nil).Synthesize(context.Background(), "j", "نص", out)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Path != MP3Sibling(out) {
		t.Fatalf("path = %s, want mp3 sibling", res.Path)
	}
}

func TestSynthesizeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backends, _ := BuildBackends([]string{"piper"}, Options{Runner: &processtest.FakeRunner{}})
	_, err := NewSynthesizer(backends, t.TempDir(), nil).Synthesize(ctx, "j", "نص", filepath.Join(t.TempDir(), "v.wav"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBuildBackendsRejectsUnknown(t *testing.T) {
	if _, err := BuildBackends([]string{"piper", "festival"}, Options{}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	backends, err := BuildBackends([]string{" Piper ", "espeak-ng"}, Options{})
	if err != nil {
		t.Fatalf("BuildBackends: %v", err)
	}
	if len(backends) != 2 || backends[1].Name() != "espeak" {
		t.Fatalf("backends = %v", backends)
	}
}
