package surface

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// BaseLayer is the tile layer under all shapes.
type BaseLayer struct {
	URL         string `json:"url" yaml:"url" doc:"Tile URL template"`
	Attribution string `json:"attribution,omitempty" yaml:"attribution" doc:"Attribution HTML"`
}

// Bounds is a lat/lng rectangle in JSON form.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// BoundsOf converts an orb bound (lng/lat) to Bounds.
func BoundsOf(b orb.Bound) Bounds {
	return Bounds{South: b.Bottom(), West: b.Left(), North: b.Top(), East: b.Right()}
}

// Snapshot is the exported state of a Headless map.
type Snapshot struct {
	Container string                     `json:"container"`
	BaseLayer *BaseLayer                 `json:"baseLayer,omitempty"`
	Cursor    string                     `json:"cursor,omitempty"`
	View      *Bounds                    `json:"view,omitempty"`
	Padding   int                        `json:"padding,omitempty"`
	Layers    *geojson.FeatureCollection `json:"layers"`
}

type layer struct {
	id    LayerID
	group GroupID
	shape Shape
	popup PopupFunc
}

type subscription struct {
	id int
	h  Handler
}

// Headless is a Map that keeps its layers in memory.
type Headless struct {
	mu        sync.RWMutex
	container string
	base      *BaseLayer
	groups    map[GroupID][]LayerID
	layers    map[LayerID]*layer
	order     []LayerID
	handlers  map[EventType][]subscription
	onLayer   map[LayerID]map[EventType][]subscription
	nextSub   int
	view      orb.Bound
	viewSet   bool
	padding   int
	cursor    string
}

// NewHeadless creates an empty headless map bound to container.
func NewHeadless(container string) *Headless {
	return &Headless{
		container: container,
		groups:    make(map[GroupID][]LayerID),
		layers:    make(map[LayerID]*layer),
		handlers:  make(map[EventType][]subscription),
		onLayer:   make(map[LayerID]map[EventType][]subscription),
	}
}

func (h *Headless) SetBaseLayer(url, attribution string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = &BaseLayer{URL: url, Attribution: attribution}
}

func (h *Headless) RemoveBaseLayer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = nil
}

func (h *Headless) NewGroup() GroupID {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := GroupID(uuid.NewString())
	h.groups[id] = nil
	return id
}

// ClearGroup removes every layer in g, including their handlers and popups.
func (h *Headless) ClearGroup(g GroupID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := h.groups[g]
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		delete(h.layers, id)
		delete(h.onLayer, id)
	}
	order := h.order[:0]
	for _, id := range h.order {
		if _, ok := h.layers[id]; ok {
			order = append(order, id)
		}
	}
	h.order = order
	h.groups[g] = nil
}

func (h *Headless) AddShape(g GroupID, s Shape) LayerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := LayerID(uuid.NewString())
	h.layers[id] = &layer{id: id, group: g, shape: s}
	h.order = append(h.order, id)
	if g != "" {
		h.groups[g] = append(h.groups[g], id)
	}
	return id
}

func (h *Headless) SetStyle(id LayerID, s Style) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.layers[id]; ok {
		l.shape.Style = s
	}
}

func (h *Headless) SetGeometry(id LayerID, geom orb.Geometry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.layers[id]; ok {
		l.shape.Geometry = geom
	}
}

func (h *Headless) RemoveLayer(id LayerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.layers[id]; ok && l.group != "" {
		ids := h.groups[l.group]
		for i, other := range ids {
			if other == id {
				h.groups[l.group] = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
	}
	h.removeLocked(id)
}

func (h *Headless) removeLocked(id LayerID) {
	delete(h.layers, id)
	delete(h.onLayer, id)
	for i, other := range h.order {
		if other == id {
			h.order = append(h.order[:i:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *Headless) BindPopup(id LayerID, fn PopupFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.layers[id]; ok {
		l.popup = fn
	}
}

func (h *Headless) On(t EventType, fn Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSub++
	sub := subscription{id: h.nextSub, h: fn}
	h.handlers[t] = append(h.handlers[t], sub)
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.handlers[t] = without(h.handlers[t], sub.id)
	}
}

func (h *Headless) OnLayer(id LayerID, t EventType, fn Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.layers[id]; !ok {
		return func() {}
	}
	h.nextSub++
	sub := subscription{id: h.nextSub, h: fn}
	if h.onLayer[id] == nil {
		h.onLayer[id] = make(map[EventType][]subscription)
	}
	h.onLayer[id][t] = append(h.onLayer[id][t], sub)
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if m := h.onLayer[id]; m != nil {
			m[t] = without(m[t], sub.id)
		}
	}
}

func without(subs []subscription, id int) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// GroupBounds returns the bound of all layers in g; false when g is empty.
func (h *Headless) GroupBounds(g GroupID) (orb.Bound, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var b orb.Bound
	found := false
	for _, id := range h.groups[g] {
		l := h.layers[id]
		if l == nil || l.shape.Geometry == nil {
			continue
		}
		lb := l.shape.Geometry.Bound()
		if !found {
			b, found = lb, true
			continue
		}
		b = b.Union(lb)
	}
	return b, found
}

func (h *Headless) FitBounds(b orb.Bound, padding int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.view, h.viewSet, h.padding = b, true, padding
}

// Distance is the great-circle distance in meters.
func (h *Headless) Distance(a, b orb.Point) float64 {
	return geo.Distance(a, b)
}

func (h *Headless) SetCursor(cursor string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cursor = cursor
}

// Cursor returns the current cursor.
func (h *Headless) Cursor() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cursor
}

// Fire dispatches e to map handlers, then to handlers on e.Layer.
// Handlers run without the surface lock held and may call back into it.
func (h *Headless) Fire(e Event) {
	h.mu.RLock()
	subs := append([]subscription(nil), h.handlers[e.Type]...)
	if e.Layer != "" {
		if m := h.onLayer[e.Layer]; m != nil {
			subs = append(subs, m[e.Type]...)
		}
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.h(e)
	}
}

// Popup renders the popup bound to id.
func (h *Headless) Popup(id LayerID) (string, error) {
	h.mu.RLock()
	l, ok := h.layers[id]
	var fn PopupFunc
	if ok {
		fn = l.popup
	}
	h.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("layer %q not found", id)
	}
	if fn == nil {
		return "", fmt.Errorf("layer %q has no popup", id)
	}
	return fn()
}

// Len returns the number of live layers.
func (h *Headless) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.layers)
}

// Style returns the current style of a layer.
func (h *Headless) Style(id LayerID) (Style, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	l, ok := h.layers[id]
	if !ok {
		return Style{}, false
	}
	return l.shape.Style, true
}

// Snapshot exports the map state with layers in insertion order.
func (h *Headless) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	fc := geojson.NewFeatureCollection()
	for _, id := range h.order {
		l := h.layers[id]
		if l.shape.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(l.shape.Geometry)
		f.ID = string(l.id)
		f.Properties["group"] = string(l.group)
		f.Properties["style"] = l.shape.Style
		f.Properties["popup"] = l.popup != nil
		fc.Append(f)
	}

	snap := Snapshot{
		Container: h.container,
		Cursor:    h.cursor,
		Padding:   h.padding,
		Layers:    fc,
	}
	if h.base != nil {
		base := *h.base
		snap.BaseLayer = &base
	}
	if h.viewSet {
		v := BoundsOf(h.view)
		snap.View = &v
	}
	return snap
}

// Runtime is a Factory of Headless maps, one per container.
type Runtime struct {
	mu   sync.Mutex
	maps map[string]*Headless
}

// NewRuntime creates an empty headless runtime.
func NewRuntime() *Runtime {
	return &Runtime{maps: make(map[string]*Headless)}
}

// NewMap creates (or replaces) the map bound to container.
func (r *Runtime) NewMap(container string) (Map, error) {
	if container == "" {
		return nil, fmt.Errorf("container is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m := NewHeadless(container)
	r.maps[container] = m
	return m, nil
}

// Map returns the map bound to container, if created.
func (r *Runtime) Map(container string) (*Headless, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.maps[container]
	return m, ok
}

// Loader returns a Loader that hands out r.
func (r *Runtime) Loader() Loader {
	return func(ctx context.Context) (Factory, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return r, nil
	}
}
