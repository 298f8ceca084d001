package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/tendant/newscast/internal/process"
	"github.com/tendant/newscast/internal/process/processtest"
	"github.com/tendant/newscast/pkg/schema"
)

type fakeMedia struct {
	duration    float64
	probeErr    error
	failPrimary bool
	failAll     bool

	mu       sync.Mutex
	calls    [][]string
	captions []string
}

func (f *fakeMedia) Duration(context.Context, string) (float64, error) {
	return f.duration, f.probeErr
}

func (f *fakeMedia) Run(_ context.Context, args ...string) (process.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()

	primary := contains(args, "-filter_complex")
	if primary {
		f.recordCaption(argAfter(args, "-filter_complex"))
	}
	if f.failAll || (primary && f.failPrimary) {
		return processtest.Fail(process.Command{Name: "ffmpeg", Args: args}, 1, "No such filter: 'zoompan'")
	}
	return process.Result{}, os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
}

// recordCaption reads the drawtext text file while the render still owns it.
func (f *fakeMedia) recordCaption(filter string) {
	_, rest, ok := strings.Cut(filter, "drawtext=textfile=")
	if !ok {
		return
	}
	path, _, _ := strings.Cut(rest, ":expansion")
	b, err := os.ReadFile(path)
	if err != nil {
		b = []byte("<missing: " + err.Error() + ">")
	}
	f.mu.Lock()
	f.captions = append(f.captions, string(b))
	f.mu.Unlock()
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func newRenderer(t *testing.T, media *fakeMedia) (*Renderer, string) {
	t.Helper()
	tmp := t.TempDir()
	opts := Options{BackgroundDir: filepath.Join(tmp, "backgrounds"), TempDir: tmp}
	return New(media, schema.MustDefaultCatalog(), opts, nil), tmp
}

func TestRenderUsesFormatDimensions(t *testing.T) {
	media := &fakeMedia{duration: 12.2}
	r, tmp := newRenderer(t, media)
	out := filepath.Join(tmp, "videos", "video_j_square.mp4")

	res, err := r.Render(context.Background(), Request{AudioPath: "radio.mp3", Caption: "📰 عاجل | خبر...", OutputPath: out, JobID: "j", FormatID: "square"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Format.ID != "square" || res.Duration != 14 || res.Fallback {
		t.Fatalf("result = %+v", res)
	}
	if res.Layout.Class != LayoutEqual {
		t.Fatalf("layout = %s", res.Layout.Class)
	}

	args := media.calls[0]
	filter := argAfter(args, "-filter_complex")
	for _, want := range []string{"scale=1080:1080", "s=1080x1080", "d=350", "drawbox=y=ih-220", "height=150", "fontsize=30", "y=h-175", "expansion=none"} {
		if !strings.Contains(filter, want) {
			t.Errorf("filter %q missing %q", filter, want)
		}
	}
	if argAfter(args, "-t") != "14" || !contains(args, "-shortest") || argAfter(args, "-movflags") != "+faststart" {
		t.Errorf("encode args = %v", args)
	}
	if contains(args, "-loop") {
		t.Errorf("primary render must not loop the still")
	}
	if _, err := os.Stat(filepath.Join(tmp, "backgrounds", "bg_1080x1080.jpg")); err != nil {
		t.Fatalf("background not created: %v", err)
	}
	if b, err := os.ReadFile(out); err != nil || string(b) != "mp4" {
		t.Fatalf("output = %q, %v", b, err)
	}
	if encoded := args[len(args)-1]; encoded == out || filepath.Dir(encoded) != filepath.Dir(out) {
		t.Fatalf("encoded to %s, want a temp sibling of %s", encoded, out)
	}
	assertNoLeftovers(t, tmp)
	assertNoLeftovers(t, filepath.Dir(out))
}

func assertNoLeftovers(t *testing.T, dir string) {
	t.Helper()
	for _, pattern := range []string{".video-*", "caption-*"} {
		if m, _ := filepath.Glob(filepath.Join(dir, pattern)); len(m) > 0 {
			t.Fatalf("temp files left behind: %v", m)
		}
	}
}

func TestRenderCaptionFile(t *testing.T) {
	media := &fakeMedia{duration: 4}
	r, tmp := newRenderer(t, media)

	caption := "it's 50%: [a], b; c\\d\nسطر"
	_, err := r.Render(context.Background(), Request{AudioPath: "a.mp3", Caption: caption, OutputPath: filepath.Join(tmp, "v.mp4"), FormatID: "reels"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(media.captions) != 1 || media.captions[0] != "it's 50%: [a], b; c\\d سطر" {
		t.Fatalf("captions = %q", media.captions)
	}
	filter := argAfter(media.calls[0], "-filter_complex")
	if strings.Contains(filter, "50%") || strings.Contains(filter, "text='") {
		t.Fatalf("caption text leaked into filter: %s", filter)
	}
	assertNoLeftovers(t, tmp)
}

func TestRenderUnknownFormatUsesDefault(t *testing.T) {
	media := &fakeMedia{duration: 5}
	r, tmp := newRenderer(t, media)

	res, err := r.Render(context.Background(), Request{AudioPath: "a.mp3", Caption: "c", OutputPath: filepath.Join(tmp, "v.mp4"), FormatID: "imax"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Format.ID != schema.DefaultFormatID || res.Layout.Class != LayoutTall {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(argAfter(media.calls[0], "-filter_complex"), "s=1080x1920") {
		t.Fatalf("default dimensions not used")
	}
}

func TestRenderProbeFailureUsesDefaultDuration(t *testing.T) {
	media := &fakeMedia{probeErr: errors.New("ffprobe: not found")}
	r, tmp := newRenderer(t, media)

	res, err := r.Render(context.Background(), Request{AudioPath: "a.mp3", OutputPath: filepath.Join(tmp, "v.mp4"), FormatID: "reels"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Duration != DefaultDuration {
		t.Fatalf("duration = %d, want %d", res.Duration, DefaultDuration)
	}
}

func TestRenderFallback(t *testing.T) {
	media := &fakeMedia{duration: 9.5, failPrimary: true}
	r, tmp := newRenderer(t, media)

	res, err := r.Render(context.Background(), Request{AudioPath: "a.mp3", OutputPath: filepath.Join(tmp, "v.mp4"), FormatID: "widescreen"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !res.Fallback {
		t.Fatalf("expected fallback render")
	}
	if len(media.calls) != 2 {
		t.Fatalf("calls = %d", len(media.calls))
	}
	fallback := media.calls[1]
	if argAfter(fallback, "-loop") != "1" || argAfter(fallback, "-vf") != "scale=1280:720" || argAfter(fallback, "-t") != "11" {
		t.Fatalf("fallback args = %v", fallback)
	}
}

func TestRenderBothPathsFail(t *testing.T) {
	media := &fakeMedia{duration: 3, failAll: true}
	r, tmp := newRenderer(t, media)

	_, err := r.Render(context.Background(), Request{AudioPath: "a.mp3", OutputPath: filepath.Join(tmp, "v.mp4"), FormatID: "portrait"})
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("err = %v, want ErrRenderFailed", err)
	}
	var renderErr *RenderError
	if !errors.As(err, &renderErr) || renderErr.Format != "portrait" {
		t.Fatalf("render error = %+v", renderErr)
	}
	if _, err := os.Stat(filepath.Join(tmp, "v.mp4")); !os.IsNotExist(err) {
		t.Fatalf("failed render left an output: %v", err)
	}
	assertNoLeftovers(t, tmp)
}

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{1080, 1920, LayoutTall},
		{1080, 1350, LayoutTall},
		{1080, 1080, LayoutEqual},
		{1100, 1050, LayoutEqual},
		{1080, 566, LayoutWide},
		{1280, 720, LayoutWide},
	}
	for _, tt := range tests {
		if got := LayoutFor(tt.w, tt.h).Class; got != tt.want {
			t.Errorf("LayoutFor(%d, %d) = %s, want %s", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestCaptionText(t *testing.T) {
	if got := CaptionText("line one\nit's 50%"); got != "line one it's 50%" {
		t.Fatalf("CaptionText = %q", got)
	}

	long := strings.Repeat("ب", 199) + "::::"
	got := CaptionText(long)
	if n := utf8.RuneCountInString(got); n != 200 {
		t.Fatalf("caption runes = %d, want 200", n)
	}
	if !strings.HasSuffix(got, "ب:") {
		t.Fatalf("truncated caption = %q", got)
	}
}

func TestEscapeFilterValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/srv/storage/tmp/caption-123.txt", "/srv/storage/tmp/caption-123.txt"},
		{`C:\fonts`, `C\\:\\\\fonts`},
		{"it's", `it\\\'s`},
		{"a,b;[c]", `a\,b\;\[c\]`},
	}
	for _, tt := range tests {
		if got := EscapeFilterValue(tt.in); got != tt.want {
			t.Errorf("EscapeFilterValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
