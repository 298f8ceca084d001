package schema

import (
	"testing"
)

func TestStageTransitions(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageInit, StageScript, true},
		{StageScript, StageScript, true},
		{StageScript, StageVoice, true},
		{StageVoice, StageRadio, true},
		{StageRadio, StageVideo, true},
		{StageVideo, StageCompleted, true},
		{StageInit, StageVoice, false},
		{StageVoice, StageScript, false},
		{StageRadio, StageCompleted, false},
		{StageInit, StageError, true},
		{StageVideo, StageError, true},
		{StageCompleted, StageError, false},
		{StageError, StageInit, false},
		{StageInit, Stage("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Fatalf("CanTransitionTo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCatalogResolveAndAccept(t *testing.T) {
	c := MustDefaultCatalog()

	if f := c.Resolve("square"); f.Width != 1080 || f.Height != 1080 {
		t.Fatalf("square resolved to %s", f.Dimensions())
	}
	if f := c.Resolve("nope"); f.ID != DefaultFormatID || f.Dimensions() != "1080x1920" {
		t.Fatalf("unknown format resolved to %+v", f)
	}

	got := c.Accept([]string{"widescreen", "bogus", "reels", "widescreen"})
	if len(got) != 2 || got[0] != "widescreen" || got[1] != "reels" {
		t.Fatalf("Accept = %v", got)
	}

	got = c.Accept(nil)
	if len(got) != 1 || got[0] != DefaultFormatID {
		t.Fatalf("Accept(nil) = %v", got)
	}
}

func TestNewCatalogRejectsBadFormats(t *testing.T) {
	tests := []struct {
		name    string
		formats []VideoFormat
		def     string
	}{
		{"empty", nil, ""},
		{"missing id", []VideoFormat{{Width: 2, Height: 2}}, ""},
		{"odd size", []VideoFormat{{ID: "a", Width: 3, Height: 2}}, ""},
		{"duplicate", []VideoFormat{{ID: "a", Width: 2, Height: 2}, {ID: "a", Width: 4, Height: 4}}, ""},
		{"unknown default", []VideoFormat{{ID: "a", Width: 2, Height: 2}}, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCatalog(tt.formats, tt.def); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestJobCloneIsDeep(t *testing.T) {
	job := Job{
		ID:               "job-1",
		RequestedFormats: []string{"reels"},
		Outputs: Outputs{
			Script: &Script{Body: "body", Hashtags: []string{"#a"}},
			Videos: map[string]VideoOutput{"reels": {Format: "reels"}},
		},
	}

	clone := job.Clone()
	clone.RequestedFormats[0] = "square"
	clone.Outputs.Script.Hashtags[0] = "#b"
	clone.Outputs.Videos["square"] = VideoOutput{}

	if job.RequestedFormats[0] != "reels" {
		t.Fatal("requested formats shared with clone")
	}
	if job.Outputs.Script.Hashtags[0] != "#a" {
		t.Fatal("hashtags shared with clone")
	}
	if len(job.Outputs.Videos) != 1 {
		t.Fatal("videos map shared with clone")
	}
}
