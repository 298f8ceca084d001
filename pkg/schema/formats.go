// pkg/schema/formats.go
package schema

import (
	"fmt"
	"strings"
)

// VideoFormat is a named output profile.
type VideoFormat struct {
	ID     string `json:"id" yaml:"id"`
	Label  string `json:"label" yaml:"label"`
	Icon   string `json:"icon" yaml:"icon"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Aspect string `json:"aspect" yaml:"aspect"`
}

// Dimensions returns the WxH label used in filenames and filters.
func (f VideoFormat) Dimensions() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// DefaultFormatID is the canonical format used when none is recognized.
const DefaultFormatID = "reels"

// DefaultFormats returns the built-in catalog entries.
func DefaultFormats() []VideoFormat {
	return []VideoFormat{
		{ID: "reels", Label: "Reels / TikTok / Shorts", Icon: "📱", Width: 1080, Height: 1920, Aspect: "9:16"},
		{ID: "square", Label: "Instagram Post", Icon: "⬜", Width: 1080, Height: 1080, Aspect: "1:1"},
		{ID: "portrait", Label: "Instagram Portrait", Icon: "🖼️", Width: 1080, Height: 1350, Aspect: "4:5"},
		{ID: "landscape", Label: "Facebook / X", Icon: "🖥️", Width: 1080, Height: 566, Aspect: "1.91:1"},
		{ID: "widescreen", Label: "YouTube", Icon: "▶️", Width: 1280, Height: 720, Aspect: "16:9"},
	}
}

// Catalog is an immutable, ordered set of formats with a default entry.
type Catalog struct {
	formats   []VideoFormat
	byID      map[string]VideoFormat
	defaultID string
}

// NewCatalog validates formats and builds a lookup table.
func NewCatalog(formats []VideoFormat, defaultID string) (*Catalog, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("catalog requires at least one format")
	}
	c := &Catalog{
		formats: make([]VideoFormat, 0, len(formats)),
		byID:    make(map[string]VideoFormat, len(formats)),
	}
	for _, f := range formats {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			return nil, fmt.Errorf("format id is required")
		}
		if f.Width <= 0 || f.Height <= 0 {
			return nil, fmt.Errorf("format %s: dimensions must be positive (got %dx%d)", f.ID, f.Width, f.Height)
		}
		if f.Width%2 != 0 || f.Height%2 != 0 {
			return nil, fmt.Errorf("format %s: dimensions must be even for h264 (got %dx%d)", f.ID, f.Width, f.Height)
		}
		if _, dup := c.byID[f.ID]; dup {
			return nil, fmt.Errorf("duplicate format id %s", f.ID)
		}
		c.byID[f.ID] = f
		c.formats = append(c.formats, f)
	}
	if defaultID == "" {
		defaultID = c.formats[0].ID
	}
	if _, ok := c.byID[defaultID]; !ok {
		return nil, fmt.Errorf("default format %s not in catalog", defaultID)
	}
	c.defaultID = defaultID
	return c, nil
}

// MustDefaultCatalog returns the built-in catalog.
func MustDefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultFormats(), DefaultFormatID)
	if err != nil {
		panic(err)
	}
	return c
}

// Formats returns the catalog entries in declaration order.
func (c *Catalog) Formats() []VideoFormat {
	return append([]VideoFormat(nil), c.formats...)
}

// Default returns the default format.
func (c *Catalog) Default() VideoFormat {
	return c.byID[c.defaultID]
}

// Lookup finds a format by identifier.
func (c *Catalog) Lookup(id string) (VideoFormat, bool) {
	f, ok := c.byID[strings.TrimSpace(id)]
	return f, ok
}

// Resolve returns the named format or the default for unknown identifiers.
func (c *Catalog) Resolve(id string) VideoFormat {
	if f, ok := c.Lookup(id); ok {
		return f
	}
	return c.Default()
}

// Accept keeps recognized identifiers in caller order without duplicates,
// falling back to the default format when nothing is recognized.
func (c *Catalog) Accept(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		f, ok := c.Lookup(id)
		if !ok || seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		out = append(out, f.ID)
	}
	if len(out) == 0 {
		out = append(out, c.defaultID)
	}
	return out
}
