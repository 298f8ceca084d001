package render

import (
	"strings"
	"unicode/utf8"
)

const (
	LayoutTall  = "tall"
	LayoutEqual = "equal"
	LayoutWide  = "wide"

	captionRunes = 200
)

// Layout places the caption band relative to the bottom edge of the frame.
type Layout struct {
	Class      string
	BandOffset int
	BandHeight int
	TextOffset int
	FontSize   int
}

var layouts = map[string]Layout{
	LayoutTall:  {Class: LayoutTall, BandOffset: 280, BandHeight: 180, TextOffset: 220, FontSize: 32},
	LayoutEqual: {Class: LayoutEqual, BandOffset: 220, BandHeight: 150, TextOffset: 175, FontSize: 30},
	LayoutWide:  {Class: LayoutWide, BandOffset: 160, BandHeight: 110, TextOffset: 120, FontSize: 26},
}

// LayoutFor classifies a frame as tall (h > 1.1w), wide (w > 1.1h) or equal.
func LayoutFor(width, height int) Layout {
	w, h := float64(width), float64(height)
	switch {
	case h > 1.1*w:
		return layouts[LayoutTall]
	case w > 1.1*h:
		return layouts[LayoutWide]
	default:
		return layouts[LayoutEqual]
	}
}

// A filter option value passes through two parsers: the option list splits
// on ':' and the filtergraph splits on ',', ';' and brackets. Each level
// honours backslash escapes and single quotes.
var (
	optionEscaper      = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	filtergraphEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// EscapeFilterValue escapes s for use as an unquoted option value inside a
// -filter_complex graph.
func EscapeFilterValue(s string) string {
	return filtergraphEscaper.Replace(optionEscaper.Replace(s))
}

// CaptionText flattens the caption to one line of at most 200 runes. The
// result is written verbatim to the drawtext text file.
func CaptionText(caption string) string {
	caption = strings.ReplaceAll(caption, "\n", " ")
	if utf8.RuneCountInString(caption) > captionRunes {
		caption = string([]rune(caption)[:captionRunes])
	}
	return caption
}
