// Package storage owns the on-disk artifact layout and the public URLs that
// point into it.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	DefaultPublicPrefix = "/storage"
	DefaultVoiceSample  = "imad_nour"

	dirAudio       = "audio"
	dirVideos      = "videos"
	dirVoices      = "voices"
	dirJingles     = "jingles"
	dirBackgrounds = "backgrounds"
	dirTemp        = "tmp"
)

var (
	ErrUnknownAsset = errors.New("unknown asset role")
	ErrEmptyUpload  = errors.New("uploaded file is empty")
)

// Asset roles replaceable through uploads.
const (
	AssetVoice       = "voice"
	AssetIntroJingle = "intro"
	AssetOutroJingle = "outro"
)

// Layout maps artifacts to deterministic paths under one root directory.
type Layout struct {
	root        string
	prefix      string
	voiceSample string
}

func NewLayout(root, publicPrefix, voiceSample string) *Layout {
	if publicPrefix == "" {
		publicPrefix = DefaultPublicPrefix
	}
	if voiceSample == "" {
		voiceSample = DefaultVoiceSample
	}
	return &Layout{
		root:        root,
		prefix:      "/" + strings.Trim(publicPrefix, "/"),
		voiceSample: voiceSample,
	}
}

// Ensure creates every directory of the layout.
func (l *Layout) Ensure() error {
	for _, dir := range []string{dirAudio, dirVideos, dirVoices, dirJingles, dirBackgrounds, dirTemp} {
		if err := os.MkdirAll(filepath.Join(l.root, dir), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (l *Layout) Root() string { return l.root }
func (l *Layout) PublicPrefix() string { return l.prefix }
func (l *Layout) AudioDir() string { return filepath.Join(l.root, dirAudio) }
func (l *Layout) VideoDir() string { return filepath.Join(l.root, dirVideos) }
func (l *Layout) JingleDir() string { return filepath.Join(l.root, dirJingles) }
func (l *Layout) BackgroundDir() string { return filepath.Join(l.root, dirBackgrounds) }
func (l *Layout) TempDir() string { return filepath.Join(l.root, dirTemp) }
func (l *Layout) VoiceSamplePath() string { return filepath.Join(l.root, dirVoices, l.voiceSample+".wav") }

// VoicePath is the synthesized speech for a job.
func (l *Layout) VoicePath(jobID string) string {
	return filepath.Join(l.root, dirAudio, "voice_"+jobID+".wav")
}

// RadioPath is the mixed bulletin for a job.
func (l *Layout) RadioPath(jobID string) string {
	return filepath.Join(l.root, dirAudio, "radio_"+jobID+".mp3")
}

// VideoPath is the rendered video for one job and format.
func (l *Layout) VideoPath(jobID, formatID string) string {
	return filepath.Join(l.root, dirVideos, "video_"+jobID+"_"+formatID+".mp4")
}

// JinglePath returns the intro or outro jingle path.
func (l *Layout) JinglePath(kind string) string {
	return filepath.Join(l.root, dirJingles, kind+".mp3")
}

// URL maps an absolute artifact path to its public URL. Paths outside the
// root yield an empty string.
func (l *Layout) URL(p string) string {
	rel, err := filepath.Rel(l.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return path.Join(l.prefix, filepath.ToSlash(rel))
}

// Key returns the slash-separated path relative to the root, used as an
// object key when mirroring artifacts.
func (l *Layout) Key(p string) string {
	rel, err := filepath.Rel(l.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(p)
	}
	return filepath.ToSlash(rel)
}

// AssetPath resolves an upload role to its target file.
func (l *Layout) AssetPath(role string) (string, error) {
	switch role {
	case AssetVoice:
		return l.VoiceSamplePath(), nil
	case AssetIntroJingle, AssetOutroJingle:
		return l.JinglePath(role), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAsset, role)
}

// SaveAsset replaces the asset for role with the content of r. The new file
// becomes visible atomically; readers never see a partial upload.
func (l *Layout) SaveAsset(role string, r io.Reader) (string, int64, error) {
	dst, err := l.AssetPath(role)
	if err != nil {
		return "", 0, err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*"+filepath.Ext(dst))
	if err != nil {
		return "", 0, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return "", 0, fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close upload: %w", err)
	}
	if n == 0 {
		return "", 0, ErrEmptyUpload
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", 0, fmt.Errorf("replace %s: %w", role, err)
	}
	return dst, n, nil
}
