// Package feature binds parsed geometry to its source record and style.
//
// A Set is rebuilt from scratch whenever the record set, geometry columns or
// color field change. Individual features are never patched except for
// visibility, which only the legend controller changes through ApplyHidden.
package feature

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-recmap/internal/geometry"
	"github.com/joeblew999/plat-recmap/internal/record"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

// NoValue is the category used for nil or empty values.
const NoValue = "No value"

// Handle indexes a Feature within its Set.
type Handle int

// Feature is a parsed geometry bound to its record and display style.
type Feature struct {
	handle   Handle
	geometry geometry.Geometry
	record   record.Record
	column   string
	category string
	base     surface.Style
	hidden   bool
}

func (f *Feature) Handle() Handle { return f.handle }
func (f *Feature) Geometry() geometry.Geometry { return f.geometry }
func (f *Feature) Record() record.Record { return f.record }
func (f *Feature) Column() string { return f.column }
func (f *Feature) RecordID() string { return f.record.ID() }
func (f *Feature) Category() string { return f.category }
func (f *Feature) Visible() bool { return !f.hidden }

// Style returns the style to draw with: the category style when visible,
// fully transparent when hidden.
func (f *Feature) Style() surface.Style {
	s := f.base
	if f.hidden {
		s.Opacity = 0
		s.FillOpacity = 0
	}
	return s
}

// Extent is the bounding rectangle of all geometries in a Set.
type Extent struct {
	Bound orb.Bound
	Empty bool
}

func (e Extent) MinLat() float64 { return e.Bound.Bottom() }
func (e Extent) MaxLat() float64 { return e.Bound.Top() }
func (e Extent) MinLng() float64 { return e.Bound.Left() }
func (e Extent) MaxLng() float64 { return e.Bound.Right() }

// Set is the complete collection of features for one record set.
type Set struct {
	features   []*Feature
	extent     Extent
	colorField string
	dropped    int
}

// EmptySet returns a set with no features.
func EmptySet() *Set { return &Set{extent: Extent{Empty: true}} }

func (s *Set) Features() []*Feature { return s.features }
func (s *Set) Len() int { return len(s.features) }
func (s *Set) Extent() Extent { return s.extent }
func (s *Set) ColorField() string { return s.colorField }

// Dropped is the number of geometry values that failed to parse.
func (s *Set) Dropped() int { return s.dropped }

// Get returns the feature for h.
func (s *Set) Get(h Handle) (*Feature, bool) {
	if h < 0 || int(h) >= len(s.features) {
		return nil, false
	}
	return s.features[h], true
}

// ApplyHidden sets each feature's visibility from isHidden(category) and
// returns the features whose visibility changed.
func (s *Set) ApplyHidden(isHidden func(category string) bool) []*Feature {
	var changed []*Feature
	for _, f := range s.features {
		hidden := isHidden(f.category)
		if hidden != f.hidden {
			f.hidden = hidden
			changed = append(changed, f)
		}
	}
	return changed
}

// GeoJSON exports the set with record attributes and display state.
func (s *Set) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range s.features {
		gf := geojson.NewFeature(f.geometry.Orb())
		gf.ID = int(f.handle)
		for k, v := range f.record {
			if k == f.column {
				continue
			}
			gf.Properties[k] = v
		}
		gf.Properties["_recordId"] = f.RecordID()
		gf.Properties["_column"] = f.column
		gf.Properties["_category"] = f.category
		gf.Properties["_visible"] = f.Visible()
		gf.Properties["_style"] = f.Style()
		fc.Append(gf)
	}
	if !s.extent.Empty {
		fc.BBox = geojson.NewBBox(s.extent.Bound)
	}
	return fc
}
