// Package script turns raw news text into a structured broadcast script.
package script

import (
	"strings"

	"github.com/tendant/newscast/pkg/schema"
)

const (
	DefaultIntro   = "أهلاً بكم في نشرة أخبار إذاعة القدس"
	DefaultClosing = "شكراً لمتابعتكم، وإلى اللقاء في نشرة أخبار قادمة."

	captionPrefix = "📰 عاجل | "
	ellipsis      = "..."

	// Bodies longer than truncateAbove words are cut to keepWords words.
	truncateAbove = 100
	keepWords     = 75
	captionRunes  = 150
)

// DefaultHashtags is the curated static hashtag list.
var DefaultHashtags = []string{"#أخبار_القدس", "#إذاعة_القدس", "#فلسطين", "#عاجل", "#أخبار_اليوم"}

// Composer builds scripts. The zero value is not usable; use New.
type Composer struct {
	intro    string
	closing  string
	hashtags []string
}

type Option func(*Composer)

// WithHashtags replaces the static hashtag list. Empty lists are ignored.
func WithHashtags(tags []string) Option {
	return func(c *Composer) {
		if len(tags) > 0 {
			c.hashtags = append([]string(nil), tags...)
		}
	}
}

func WithIntro(intro string) Option {
	return func(c *Composer) {
		if s := strings.TrimSpace(intro); s != "" {
			c.intro = s
		}
	}
}

func WithClosing(closing string) Option {
	return func(c *Composer) {
		if s := strings.TrimSpace(closing); s != "" {
			c.closing = s
		}
	}
}

func New(opts ...Option) *Composer {
	c := &Composer{
		intro:    DefaultIntro,
		closing:  DefaultClosing,
		hashtags: DefaultHashtags,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose is pure and never fails. Inputs are expected to be validated by
// the caller; an empty input yields an empty body.
func (c *Composer) Compose(text string) schema.Script {
	trimmed := strings.TrimSpace(text)
	words := strings.Fields(trimmed)

	body := trimmed
	truncated := false
	if len(words) > truncateAbove {
		body = strings.Join(words[:keepWords], " ") + ellipsis
		truncated = true
	}

	return schema.Script{
		Intro:      c.intro,
		Body:       body,
		FullScript: c.intro + ".\n\n" + body + "\n\n" + c.closing,
		Caption:    captionPrefix + firstRunes(body, captionRunes) + ellipsis,
		Hashtags:   append([]string(nil), c.hashtags...),
		WordCount:  len(words),
		Truncated:  truncated,
	}
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
