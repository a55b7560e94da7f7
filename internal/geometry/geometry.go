// Package geometry turns raw attribute values into a tagged geometry model.
//
// Coordinates are stored as orb.Point values, which are always (lng, lat):
// WKT's x/y order. Every ring produced by this package is closed.
package geometry

import (
	"github.com/paulmach/orb"
)

// Kind tags the geometry variant.
type Kind string

const (
	KindPoint        Kind = "Point"
	KindPolygon      Kind = "Polygon"
	KindMultiPolygon Kind = "MultiPolygon"
)

// Geometry is one of Point, Polygon or MultiPolygon.
type Geometry interface {
	Kind() Kind
	// Bound returns the lng/lat bounding rectangle.
	Bound() orb.Bound
	// Orb converts the geometry for rendering and encoding.
	Orb() orb.Geometry

	isGeometry()
}

// Point is a single WGS84 location.
type Point struct {
	Lat float64
	Lng float64
}

func (p Point) Kind() Kind { return KindPoint }
func (p Point) Orb() orb.Geometry { return orb.Point{p.Lng, p.Lat} }
func (p Point) Bound() orb.Bound { return orb.Point{p.Lng, p.Lat}.Bound() }
func (Point) isGeometry() {}

// Polygon is a single closed ring of (lng, lat) points.
type Polygon struct {
	Ring orb.Ring
}

func (p Polygon) Kind() Kind { return KindPolygon }
func (p Polygon) Orb() orb.Geometry { return orb.Polygon{p.Ring} }
func (p Polygon) Bound() orb.Bound { return p.Ring.Bound() }
func (Polygon) isGeometry() {}

// MultiPolygon is a sequence of single-ring polygons.
type MultiPolygon struct {
	Polygons []Polygon
}

func (m MultiPolygon) Kind() Kind { return KindMultiPolygon }

func (m MultiPolygon) Orb() orb.Geometry {
	mp := make(orb.MultiPolygon, 0, len(m.Polygons))
	for _, p := range m.Polygons {
		mp = append(mp, orb.Polygon{p.Ring})
	}
	return mp
}

func (m MultiPolygon) Bound() orb.Bound { return m.Orb().Bound() }
func (MultiPolygon) isGeometry() {}

// closeRing appends the first point when the ring is open.
func closeRing(r orb.Ring) orb.Ring {
	if len(r) == 0 || r[0] == r[len(r)-1] {
		return r
	}
	return append(r, r[0])
}
