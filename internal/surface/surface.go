// Package surface defines the slippy-map drawing surface the viewer renders
// onto, and provides Headless, an in-process implementation whose state is
// exported as GeoJSON to a browser map.
//
// Layers created on a surface are write-only targets: callers keep their own
// index from domain objects to LayerID and never read data back off a layer.
package surface

import (
	"context"

	"github.com/paulmach/orb"
)

// LayerID identifies a layer on a surface.
type LayerID string

// GroupID identifies a layer group on a surface.
type GroupID string

// EventType names a pointer event.
type EventType string

const (
	Click       EventType = "click"
	DoubleClick EventType = "dblclick"
	Hover       EventType = "hover"
)

// Event is a pointer event in map coordinates.
type Event struct {
	Type  EventType `json:"type" enum:"click,dblclick,hover" doc:"Event type"`
	Lat   float64   `json:"lat" doc:"Latitude"`
	Lng   float64   `json:"lng" doc:"Longitude"`
	Layer LayerID   `json:"layer,omitempty" doc:"Layer the event targeted, if any"`
}

// Point returns the event location as an orb point (lng, lat).
func (e Event) Point() orb.Point { return orb.Point{e.Lng, e.Lat} }

// Handler receives surface events.
type Handler func(Event)

// Style is the paint applied to a layer.
type Style struct {
	Color       string  `json:"color" yaml:"color" doc:"Stroke color (CSS)"`
	FillColor   string  `json:"fillColor" yaml:"fill_color" doc:"Fill color (CSS)"`
	Weight      float64 `json:"weight" yaml:"weight" doc:"Stroke width"`
	Opacity     float64 `json:"opacity" yaml:"opacity" doc:"Stroke opacity (0-1)"`
	FillOpacity float64 `json:"fillOpacity" yaml:"fill_opacity" doc:"Fill opacity (0-1)"`
	DashArray   string  `json:"dashArray,omitempty" yaml:"dash_array" doc:"Stroke dash pattern"`
}

// Shape is a geometry with its style.
type Shape struct {
	Geometry orb.Geometry
	Style    Style
}

// PopupFunc renders popup content for a layer on demand.
type PopupFunc func() (string, error)

// Map is a created map bound to a container.
type Map interface {
	SetBaseLayer(url, attribution string)
	RemoveBaseLayer()

	NewGroup() GroupID
	ClearGroup(g GroupID)
	AddShape(g GroupID, s Shape) LayerID
	SetStyle(id LayerID, s Style)
	SetGeometry(id LayerID, geom orb.Geometry)
	RemoveLayer(id LayerID)
	BindPopup(id LayerID, fn PopupFunc)

	// On subscribes to map events; the returned func unsubscribes.
	On(t EventType, h Handler) (off func())
	OnLayer(id LayerID, t EventType, h Handler) (off func())

	GroupBounds(g GroupID) (orb.Bound, bool)
	FitBounds(b orb.Bound, padding int)
	Distance(a, b orb.Point) float64
	SetCursor(cursor string)
}

// Factory creates maps. It is the capability handle returned once the
// mapping runtime is available.
type Factory interface {
	NewMap(container string) (Map, error)
}

// Loader makes a mapping runtime available.
type Loader func(ctx context.Context) (Factory, error)
