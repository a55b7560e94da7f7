package mapview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/feature"
	"github.com/joeblew999/plat-recmap/internal/geometry"
	"github.com/joeblew999/plat-recmap/internal/legend"
	"github.com/joeblew999/plat-recmap/internal/measure"
	"github.com/joeblew999/plat-recmap/internal/palette"
	"github.com/joeblew999/plat-recmap/internal/popup"
	"github.com/joeblew999/plat-recmap/internal/record"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

// ErrFeatureNotFound is returned for handles outside the current set.
var ErrFeatureNotFound = errors.New("feature not found")

// Change describes a state change of the view.
type Change struct {
	Resource string // "features", "legend", "measure", "popup"
	Action   string
	ID       string
}

// Source supplies the complete record snapshot and its columns.
type Source interface {
	Records(ctx context.Context) ([]record.Record, error)
	Columns(ctx context.Context) ([]record.Column, error)
}

// Config configures a View.
type Config struct {
	Container string
	BaseLayer surface.BaseLayer
	// FitPadding is the padding in pixels applied when fitting the view.
	FitPadding int
	// GeometryColumns are read in addition to columns flagged as geometry.
	GeometryColumns []string
	ColorField      string
	Palette         palette.Palette
	Style           surface.Style
	Units           measure.Units
	AreaMethod      measure.AreaMethod
	PopupLimit      int
	OnChange        func(Change)
	Logger          *zap.Logger
}

// View owns the rendered state of one map container.
type View struct {
	mu  sync.Mutex
	rt  *Runtime
	cfg Config
	log *zap.Logger

	legend *legend.Controller
	popups *popup.Bridge

	ready   bool
	queued  bool
	m       surface.Map
	group   surface.GroupID
	builder *feature.Builder
	measure *measure.Engine

	records    []record.Record
	columns    []record.Column
	colorField string
	set        *feature.Set
	layers     []surface.LayerID
}

// New creates a view whose popups commit edits through update.
func New(rt *Runtime, update popup.UpdateFunc, cfg Config) (*View, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Container == "" {
		cfg.Container = "map"
	}
	if len(cfg.Palette) == 0 {
		cfg.Palette = palette.Default
	}
	log := cfg.Logger.Named("mapview")

	bridge, err := popup.NewBridge(update, popup.Options{Limit: cfg.PopupLimit, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	return &View{
		rt:         rt,
		cfg:        cfg,
		log:        log,
		legend:     legend.New(cfg.Palette),
		popups:     bridge,
		colorField: cfg.ColorField,
		set:        feature.EmptySet(),
	}, nil
}

// Open waits for the runtime, creates the map and applies any record set
// queued before it was ready. Opening an open view is a no-op.
func (v *View) Open(ctx context.Context) error {
	caps, err := v.rt.Init(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ready {
		return nil
	}

	m, err := caps.Factory.NewMap(v.cfg.Container)
	if err != nil {
		return fmt.Errorf("%w: create map: %v", ErrRuntimeUnavailable, err)
	}
	if v.cfg.BaseLayer.URL != "" {
		m.SetBaseLayer(v.cfg.BaseLayer.URL, v.cfg.BaseLayer.Attribution)
	}
	v.m = m
	v.group = m.NewGroup()
	v.builder = feature.NewBuilder(geometry.NewParser(v.cfg.Logger, caps.Decoder), v.cfg.Palette, v.cfg.Style, v.cfg.Logger)
	v.measure = measure.New(m, measure.Options{
		Units:      v.cfg.Units,
		AreaMethod: v.cfg.AreaMethod,
		Logger:     v.cfg.Logger,
		OnChange: func(r measure.Result) {
			v.notify(Change{Resource: "measure", Action: "updated", ID: r.Session})
		},
	})
	v.ready = true
	v.log.Info("map opened", zap.String("container", v.cfg.Container))

	if v.queued {
		v.queued = false
		v.rebuildLocked()
	}
	return nil
}

// Ready reports whether Open has completed.
func (v *View) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ready
}

// SetRecords replaces the record set. Before the view is open the set is
// kept and rendered by Open.
func (v *View) SetRecords(records []record.Record, columns []record.Column) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records = records
	v.columns = columns
	if !v.ready {
		v.queued = true
		v.log.Debug("record set queued until map is ready", zap.Int("records", len(records)))
		return
	}
	v.rebuildLocked()
}

// Reload fetches a fresh snapshot from src and rebuilds.
func (v *View) Reload(ctx context.Context, src Source) error {
	records, err := src.Records(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	columns, err := src.Columns(ctx)
	if err != nil {
		return fmt.Errorf("load columns: %w", err)
	}
	v.SetRecords(records, columns)
	return nil
}

// SetColorField selects the categorical field and rebuilds.
func (v *View) SetColorField(field string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.colorField = field
	if v.ready {
		v.rebuildLocked()
	}
}

// ColorField returns the selected categorical field.
func (v *View) ColorField() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.colorField
}

// Columns returns the current column descriptors.
func (v *View) Columns() []record.Column {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]record.Column(nil), v.columns...)
}

// rebuildLocked reparses every record and redraws from an empty group.
func (v *View) rebuildLocked() {
	v.popups.Reset()
	v.popups.SetColumns(v.columns)

	set := v.builder.Build(v.records, v.geometryColumns(), v.colorField)
	v.legend.Rebuild(set)

	v.m.ClearGroup(v.group)
	v.layers = make([]surface.LayerID, set.Len())
	for _, f := range set.Features() {
		id := v.m.AddShape(v.group, surface.Shape{Geometry: f.Geometry().Orb(), Style: f.Style()})
		v.layers[f.Handle()] = id
		v.m.BindPopup(id, v.popupFunc(f.Handle()))
	}
	v.set = set

	if ext := set.Extent(); !ext.Empty {
		v.m.FitBounds(ext.Bound, v.cfg.FitPadding)
	}
	v.log.Debug("features rendered", zap.Int("features", set.Len()), zap.Int("dropped", set.Dropped()))
	v.notify(Change{Resource: "features", Action: "rebuilt"})
}

func (v *View) geometryColumns() []string {
	cols := record.GeometryColumns(v.columns)
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	for _, c := range v.cfg.GeometryColumns {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	return cols
}

func (v *View) popupFunc(h feature.Handle) surface.PopupFunc {
	return func() (string, error) {
		p, err := v.OpenPopup(h)
		if err != nil {
			return "", err
		}
		return p.HTML()
	}
}

// restyleLocked pushes the current style of changed features to their layers.
func (v *View) restyleLocked(changed []*feature.Feature) {
	for _, f := range changed {
		if int(f.Handle()) < len(v.layers) {
			v.m.SetStyle(v.layers[f.Handle()], f.Style())
		}
	}
}

// Features returns the current feature set.
func (v *View) Features() *feature.Set {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.set
}

// Layer returns the surface layer drawn for h.
func (v *View) Layer(h feature.Handle) (surface.LayerID, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if h < 0 || int(h) >= len(v.layers) {
		return "", false
	}
	return v.layers[h], true
}

// Legend returns the legend items of the current set.
func (v *View) Legend() []legend.Item { return v.legend.Items() }

// HiddenValues returns the hidden categories.
func (v *View) HiddenValues() []string { return v.legend.HiddenValues() }

// ToggleLegend flips the visibility of one category.
func (v *View) ToggleLegend(value string) ([]legend.Item, error) {
	v.mu.Lock()
	if !v.ready {
		v.mu.Unlock()
		return nil, ErrNotReady
	}
	v.restyleLocked(v.legend.Toggle(value))
	v.mu.Unlock()

	v.notify(Change{Resource: "legend", Action: "toggled", ID: value})
	return v.legend.Items(), nil
}

// ShowAll makes every category visible.
func (v *View) ShowAll() ([]legend.Item, error) {
	v.mu.Lock()
	if !v.ready {
		v.mu.Unlock()
		return nil, ErrNotReady
	}
	v.restyleLocked(v.legend.ShowAll())
	v.mu.Unlock()

	v.notify(Change{Resource: "legend", Action: "reset"})
	return v.legend.Items(), nil
}

// Measure returns the measurement engine of the open map.
func (v *View) Measure() (*measure.Engine, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.ready {
		return nil, ErrNotReady
	}
	return v.measure, nil
}

// OpenPopup opens the detail panel of a feature.
func (v *View) OpenPopup(h feature.Handle) (*popup.Panel, error) {
	v.mu.Lock()
	f, ok := v.set.Get(h)
	v.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrFeatureNotFound, h)
	}
	p := v.popups.Open(f)
	v.notify(Change{Resource: "popup", Action: "opened", ID: p.ID()})
	return p, nil
}

// OpenRecordPopup opens the panel of the feature drawn from column of the
// record with recordID.
func (v *View) OpenRecordPopup(recordID, column string) (*popup.Panel, error) {
	v.mu.Lock()
	var found *feature.Feature
	for _, f := range v.set.Features() {
		if f.RecordID() == recordID && f.Column() == column {
			found = f
			break
		}
	}
	v.mu.Unlock()
	if found == nil {
		return nil, fmt.Errorf("%w: record %s", ErrFeatureNotFound, recordID)
	}
	return v.OpenPopup(found.Handle())
}

// Popups returns the popup bridge.
func (v *View) Popups() *popup.Bridge { return v.popups }

// eventSource is implemented by surfaces that accept forwarded events.
type eventSource interface {
	Fire(e surface.Event)
}

// Dispatch forwards a pointer event from the browser to the map.
func (v *View) Dispatch(e surface.Event) error {
	v.mu.Lock()
	m := v.m
	v.mu.Unlock()
	if m == nil {
		return ErrNotReady
	}
	src, ok := m.(eventSource)
	if !ok {
		return fmt.Errorf("surface %T does not accept forwarded events", m)
	}
	src.Fire(e)
	return nil
}

type snapshotter interface {
	Snapshot() surface.Snapshot
}

// Snapshot exports the map surface state.
func (v *View) Snapshot() (surface.Snapshot, error) {
	v.mu.Lock()
	m := v.m
	v.mu.Unlock()
	if m == nil {
		return surface.Snapshot{}, ErrNotReady
	}
	s, ok := m.(snapshotter)
	if !ok {
		return surface.Snapshot{}, fmt.Errorf("surface %T cannot be exported", m)
	}
	return s.Snapshot(), nil
}

func (v *View) notify(c Change) {
	if v.cfg.OnChange != nil {
		v.cfg.OnChange(c)
	}
}
