package img

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestEnsureBackgroundCreatesOutput(t *testing.T) {
	tmp := t.TempDir()
	dstPath := filepath.Join(tmp, "nested", BackgroundName(108, 192))

	if err := EnsureBackground(dstPath, 108, 192, DefaultBackground); err != nil {
		t.Fatalf("EnsureBackground returned error: %v", err)
	}

	got, err := imaging.Open(dstPath)
	if err != nil {
		t.Fatalf("open background: %v", err)
	}
	b := got.Bounds()
	if b.Dx() != 108 || b.Dy() != 192 {
		t.Fatalf("unexpected background size: got %dx%d, want 108x192", b.Dx(), b.Dy())
	}

	leftovers, _ := filepath.Glob(filepath.Join(tmp, "nested", ".bg-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestEnsureBackgroundKeepsExisting(t *testing.T) {
	tmp := t.TempDir()
	dstPath := filepath.Join(tmp, "bg.jpg")
	if err := os.WriteFile(dstPath, []byte("cached"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := EnsureBackground(dstPath, 10, 10, DefaultBackground); err != nil {
		t.Fatalf("EnsureBackground returned error: %v", err)
	}
	data, _ := os.ReadFile(dstPath)
	if string(data) != "cached" {
		t.Fatalf("existing background was overwritten")
	}
}

func TestEnsureBackgroundRejectsBadInput(t *testing.T) {
	tmp := t.TempDir()
	if err := EnsureBackground(filepath.Join(tmp, "a.jpg"), 0, 10, DefaultBackground); err == nil {
		t.Fatalf("expected error for zero width")
	}
	err := EnsureBackground(filepath.Join(tmp, "b.jpg"), 10, 10, "#zzzzzz")
	if !errors.Is(err, ErrBadColor) {
		t.Fatalf("err = %v, want ErrBadColor", err)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#1a1a2e", color.NRGBA{R: 0x1a, G: 0x1a, B: 0x2e, A: 0xff}},
		{"fff", color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
		{" #000000 ", color.NRGBA{A: 0xff}},
	}
	for _, tt := range tests {
		got, err := ParseHexColor(tt.in)
		if err != nil {
			t.Fatalf("ParseHexColor(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseHexColor("#12345"); err == nil {
		t.Fatalf("expected error for 5-digit color")
	}
}
