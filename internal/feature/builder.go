package feature

import (
	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/geometry"
	"github.com/joeblew999/plat-recmap/internal/palette"
	"github.com/joeblew999/plat-recmap/internal/record"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

// DefaultStyle is used when no color field is selected.
func DefaultStyle() surface.Style {
	return surface.Style{
		Color:       "#3388ff",
		FillColor:   "#3388ff",
		Weight:      2,
		Opacity:     0.8,
		FillOpacity: 0.35,
	}
}

// Builder turns records into a feature Set.
type Builder struct {
	parser  *geometry.Parser
	palette palette.Palette
	base    surface.Style
	log     *zap.Logger
}

// NewBuilder creates a builder. A zero base style means DefaultStyle.
func NewBuilder(parser *geometry.Parser, p palette.Palette, base surface.Style, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if base == (surface.Style{}) {
		base = DefaultStyle()
	}
	return &Builder{parser: parser, palette: p, base: base, log: log.Named("feature")}
}

// Category returns the legend category of r for colorField.
func Category(r record.Record, colorField string) string {
	if colorField == "" {
		return ""
	}
	if v := record.Stringify(r[colorField]); v != "" {
		return v
	}
	return NoValue
}

// Build parses every geometry column of every record. Each parsed value
// becomes its own Feature; values that do not parse are skipped.
func (b *Builder) Build(records []record.Record, geomColumns []string, colorField string) *Set {
	set := &Set{colorField: colorField, extent: Extent{Empty: true}}

	for _, r := range records {
		for _, col := range geomColumns {
			raw, ok := r[col]
			if !ok || raw == nil {
				continue
			}
			g := b.parser.Parse(raw)
			if g == nil {
				set.dropped++
				b.log.Debug("record excluded from map",
					zap.String("record_id", r.ID()),
					zap.String("column", col))
				continue
			}

			f := &Feature{
				handle:   Handle(len(set.features)),
				geometry: g,
				record:   r,
				column:   col,
				category: Category(r, colorField),
			}
			f.base = b.styleFor(f.category, colorField)
			set.features = append(set.features, f)

			if set.extent.Empty {
				set.extent = Extent{Bound: g.Bound()}
			} else {
				set.extent.Bound = set.extent.Bound.Union(g.Bound())
			}
		}
	}

	b.log.Info("built feature set",
		zap.Int("records", len(records)),
		zap.Int("features", len(set.features)),
		zap.Int("dropped", set.dropped),
		zap.String("color_field", colorField))
	return set
}

func (b *Builder) styleFor(category, colorField string) surface.Style {
	s := b.base
	if colorField != "" {
		c := b.palette.ColorFor(category)
		s.Color = c
		s.FillColor = c
	}
	return s
}
