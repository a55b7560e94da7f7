// Package palette assigns colors to categorical values.
package palette

import "github.com/cespare/xxhash/v2"

// Default is the categorical palette. Values beyond fifteen categories repeat
// colors; collisions are expected.
var Default = Palette{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#008080", "#9a6324",
	"#800000", "#808000", "#000075", "#fabebe", "#808080",
}

// Palette is an ordered list of CSS colors.
type Palette []string

// ColorFor maps value to a palette entry. The result depends only on value
// and the palette, so the same value always gets the same color.
func (p Palette) ColorFor(value string) string {
	if len(p) == 0 {
		return Default.ColorFor(value)
	}
	return p[xxhash.Sum64String(value)%uint64(len(p))]
}

// ColorFor maps value using the Default palette.
func ColorFor(value string) string { return Default.ColorFor(value) }
