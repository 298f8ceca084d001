// internal/img/background.go
package img

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultBackground is the dark navy used behind every rendered video.
const DefaultBackground = "#1a1a2e"

var ErrBadColor = errors.New("invalid hex color")

// ParseHexColor parses #rgb or #rrggbb into an opaque color.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// BackgroundName returns the cache file name for a solid background of the
// given size, e.g. bg_1080x1920.jpg.
func BackgroundName(w, h int) string {
	return fmt.Sprintf("bg_%dx%d.jpg", w, h)
}

// EnsureBackground creates a solid JPEG still at path unless one exists.
// The file is written to a temp sibling and renamed so concurrent callers
// never observe a partial image.
func EnsureBackground(path string, w, h int, hexColor string) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("background size %dx%d: dimensions must be positive", w, h)
	}
	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		return nil
	}

	fill, err := ParseHexColor(hexColor)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bg-*.jpg")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	still := imaging.New(w, h, fill)
	if err := imaging.Encode(tmp, still, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
