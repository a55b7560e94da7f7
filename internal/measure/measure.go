// Package measure captures user-drawn paths and polygons from map clicks and
// reports their length or area.
//
// One session is active at a time. Line sessions report after the second
// point, area sessions after the third. A double-click ends the session and
// leaves the drawing in place; Clear removes it.
package measure

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/surface"
)

// Mode is the active measurement mode.
type Mode string

const (
	ModeNone Mode = "none"
	ModeLine Mode = "line"
	ModeArea Mode = "area"
)

// ParseMode parses "none", "line" or "area".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeNone, ModeLine, ModeArea:
		return m, nil
	case "":
		return ModeNone, nil
	default:
		return "", fmt.Errorf("unknown measurement mode %q", s)
	}
}

// AreaMethod selects the area formula.
type AreaMethod string

const (
	// Geodesic is the spherical polygon area.
	Geodesic AreaMethod = "geodesic"
	// BoundingBox multiplies the extent's sides by a fixed meters-per-degree.
	BoundingBox AreaMethod = "bbox"
)

// metersPerDegree approximates one degree of latitude or longitude.
const metersPerDegree = 111320

const crosshair = "crosshair"

// Canvas is the part of the map surface measurements draw on.
type Canvas interface {
	On(t surface.EventType, h surface.Handler) (off func())
	AddShape(g surface.GroupID, s surface.Shape) surface.LayerID
	SetGeometry(id surface.LayerID, geom orb.Geometry)
	RemoveLayer(id surface.LayerID)
	Distance(a, b orb.Point) float64
	SetCursor(cursor string)
}

// Result is the state of the current or last measurement.
type Result struct {
	Session string      `json:"session,omitempty" doc:"Measurement session ID"`
	Mode    Mode        `json:"mode" doc:"Mode of the measured shape"`
	Active  bool        `json:"active" doc:"Whether clicks are still being captured"`
	Units   Units       `json:"units" doc:"Unit system"`
	Points  [][]float64 `json:"points" doc:"Captured points as [lat, lng]"`
	Value   float64     `json:"value" doc:"Meters (line) or square meters (area)"`
	Label   string      `json:"label,omitempty" doc:"Formatted value; empty until enough points"`
}

type session struct {
	id     string
	mode   Mode
	points []orb.Point
	layer  surface.LayerID
	active bool
	off    []func()
}

// Engine runs measurement sessions against a canvas.
type Engine struct {
	mu       sync.Mutex
	canvas   Canvas
	units    Units
	method   AreaMethod
	style    surface.Style
	session  *session
	log      *zap.Logger
	onChange func(Result)
}

// Options configures an Engine.
type Options struct {
	Units      Units
	AreaMethod AreaMethod
	Style      surface.Style
	// OnChange is called after every state change, outside the engine lock.
	OnChange func(Result)
	Logger   *zap.Logger
}

// New creates an engine drawing on canvas.
func New(canvas Canvas, opts Options) *Engine {
	if opts.Units == "" {
		opts.Units = Metric
	}
	if opts.AreaMethod == "" {
		opts.AreaMethod = Geodesic
	}
	if opts.Style == (surface.Style{}) {
		opts.Style = surface.Style{
			Color: "#ff7800", FillColor: "#ff7800", Weight: 3,
			Opacity: 0.9, FillOpacity: 0.2, DashArray: "6 4",
		}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		canvas:   canvas,
		units:    opts.Units,
		method:   opts.AreaMethod,
		style:    opts.Style,
		log:      opts.Logger.Named("measure"),
		onChange: opts.OnChange,
	}
}

// Mode returns the mode of the session capturing clicks, or ModeNone.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || !e.session.active {
		return ModeNone
	}
	return e.session.mode
}

// Activate starts a session in mode. Activating the mode that is already
// capturing toggles it off; any other prior session is cleared first.
func (e *Engine) Activate(mode Mode) Result {
	e.mu.Lock()
	current := e.session
	e.clearLocked()

	if mode != ModeNone && !(current != nil && current.active && current.mode == mode) {
		s := &session{id: uuid.NewString(), mode: mode, active: true}
		e.session = s
		s.off = append(s.off,
			e.canvas.On(surface.Click, e.handleClick),
			e.canvas.On(surface.DoubleClick, e.handleDoubleClick),
		)
		e.canvas.SetCursor(crosshair)
		e.log.Debug("measurement started", zap.String("mode", string(mode)), zap.String("session", s.id))
	}
	return e.unlockAndNotify()
}

// Clear removes any drawn measurement and resets the mode.
func (e *Engine) Clear() Result {
	e.mu.Lock()
	e.clearLocked()
	return e.unlockAndNotify()
}

// SetUnits switches the unit system; the current result is reformatted.
func (e *Engine) SetUnits(u Units) Result {
	e.mu.Lock()
	e.units = u
	return e.unlockAndNotify()
}

// Result returns the current measurement.
func (e *Engine) Result() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resultLocked()
}

func (e *Engine) handleClick(ev surface.Event) {
	e.mu.Lock()
	s := e.session
	if s == nil || !s.active {
		e.mu.Unlock()
		return
	}
	s.points = append(s.points, ev.Point())
	geom := e.shapeLocked(s)
	if s.layer == "" {
		s.layer = e.canvas.AddShape("", surface.Shape{Geometry: geom, Style: e.style})
	} else {
		e.canvas.SetGeometry(s.layer, geom)
	}
	e.unlockAndNotify()
}

func (e *Engine) handleDoubleClick(surface.Event) {
	e.mu.Lock()
	s := e.session
	if s == nil || !s.active {
		e.mu.Unlock()
		return
	}
	e.stopLocked(s)
	e.unlockAndNotify()
}

// stopLocked detaches handlers and resets the cursor, keeping the drawing.
func (e *Engine) stopLocked(s *session) {
	for _, off := range s.off {
		off()
	}
	s.off = nil
	s.active = false
	e.canvas.SetCursor("")
}

func (e *Engine) clearLocked() {
	s := e.session
	if s == nil {
		return
	}
	if s.active {
		e.stopLocked(s)
	}
	if s.layer != "" {
		e.canvas.RemoveLayer(s.layer)
	}
	e.session = nil
}

func (e *Engine) shapeLocked(s *session) orb.Geometry {
	if s.mode == ModeArea && len(s.points) >= 3 {
		ring := make(orb.Ring, 0, len(s.points)+1)
		ring = append(ring, s.points...)
		ring = append(ring, s.points[0])
		return orb.Polygon{ring}
	}
	return orb.LineString(append([]orb.Point(nil), s.points...))
}

func (e *Engine) resultLocked() Result {
	r := Result{Mode: ModeNone, Units: e.units, Points: [][]float64{}}
	s := e.session
	if s == nil {
		return r
	}
	r.Session = s.id
	r.Mode = s.mode
	r.Active = s.active
	for _, p := range s.points {
		r.Points = append(r.Points, []float64{p.Lat(), p.Lon()})
	}

	switch s.mode {
	case ModeLine:
		if len(s.points) >= 2 {
			r.Value = e.pathLength(s.points)
			r.Label = FormatDistance(r.Value, e.units)
		}
	case ModeArea:
		if len(s.points) >= 3 {
			r.Value = Area(s.points, e.method)
			r.Label = FormatArea(r.Value, e.units)
		}
	}
	return r
}

func (e *Engine) pathLength(pts []orb.Point) float64 {
	var total float64
	for i := 1; i < len(pts); i++ {
		total += e.canvas.Distance(pts[i-1], pts[i])
	}
	return total
}

func (e *Engine) unlockAndNotify() Result {
	r := e.resultLocked()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(r)
	}
	return r
}

// Area returns the area in square meters of the polygon through pts.
func Area(pts []orb.Point, method AreaMethod) float64 {
	if len(pts) < 3 {
		return 0
	}
	if method == BoundingBox {
		b := orb.MultiPoint(pts).Bound()
		return (b.Top() - b.Bottom()) * (b.Right() - b.Left()) * metersPerDegree * metersPerDegree
	}
	ring := make(orb.Ring, 0, len(pts)+1)
	ring = append(ring, pts...)
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return geo.Area(orb.Polygon{ring})
}
