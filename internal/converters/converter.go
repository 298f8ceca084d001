// Package converters wraps the ffmpeg/ffprobe toolchain used by the
// production pipeline. Every invocation goes through process.Runner with an
// explicit argument list.
package converters

import (
	"context"
	"errors"
)

// ErrNoDuration is returned when a probe yields no usable duration.
var ErrNoDuration = errors.New("media duration unavailable")

// Prober reads media metadata without converting it.
type Prober interface {
	Probe(ctx context.Context, input string) (*FileInfo, error)
}

// FileInfo contains metadata about a media file
type FileInfo struct {
	Width    int     // Width in pixels (videos/images)
	Height   int     // Height in pixels (videos/images)
	Duration float64 // Duration in seconds
	Size     int64   // File size in bytes
}

// Loudness is an EBU R128 normalization target for the loudnorm filter.
type Loudness struct {
	Integrated float64 // I, LUFS
	TruePeak   float64 // TP, dBTP
	Range      float64 // LRA, LU
}

// BroadcastLoudness is the reference target: I=-16, TP=-1.5, LRA=11.
var BroadcastLoudness = Loudness{Integrated: -16, TruePeak: -1.5, Range: 11}
