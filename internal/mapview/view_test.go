package mapview

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-recmap/internal/feature"
	"github.com/joeblew999/plat-recmap/internal/measure"
	"github.com/joeblew999/plat-recmap/internal/record"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

var testColumns = []record.Column{
	{Key: "id", Permission: record.PermissionView},
	{Key: "geometry", IsGeometry: true, Permission: record.PermissionView},
	{Key: "name", Permission: record.PermissionEdit},
	{Key: "status", Permission: record.PermissionView},
}

func testRecords() []record.Record {
	return []record.Record{
		{"id": 1, "name": "North", "status": "Active", "geometry": "POLYGON((77.1 12.9, 77.2 12.9, 77.2 13.0, 77.1 12.9))"},
		{"id": 2, "name": "Broken", "status": "Active", "geometry": "MULTIPOLYGON (((0 0, 1 0, 1 1"},
		{"id": 3, "name": "South", "status": "Closed", "geometry": "POINT(77.15 12.8)"},
		{"id": 4, "name": "East", "status": "Active", "geometry": "POINT(77.3 12.95)"},
	}
}

type changes struct {
	mu  sync.Mutex
	all []Change
}

func (c *changes) record(ch Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = append(c.all, ch)
}

func (c *changes) count(resource string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ch := range c.all {
		if ch.Resource == resource {
			n++
		}
	}
	return n
}

func newTestView(t *testing.T, cfg Config, update func(context.Context, string, map[string]any) error) (*View, *surface.Runtime, *changes) {
	t.Helper()
	sr := surface.NewRuntime()
	rt := NewRuntime(sr.Loader(), nil, RuntimeOptions{})
	ch := &changes{}
	cfg.OnChange = ch.record
	if update == nil {
		update = func(context.Context, string, map[string]any) error { return nil }
	}
	v, err := New(rt, update, cfg)
	require.NoError(t, err)
	return v, sr, ch
}

func headless(t *testing.T, sr *surface.Runtime) *surface.Headless {
	t.Helper()
	m, ok := sr.Map("map")
	require.True(t, ok)
	return m
}

func TestRecordsQueuedUntilOpen(t *testing.T) {
	v, sr, ch := newTestView(t, Config{ColorField: "status", FitPadding: 20}, nil)

	v.SetRecords(testRecords(), testColumns)
	assert.False(t, v.Ready())
	assert.Equal(t, 0, v.Features().Len())
	assert.Equal(t, 0, ch.count("features"))

	require.NoError(t, v.Open(context.Background()))
	assert.True(t, v.Ready())

	set := v.Features()
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, 1, set.Dropped())

	m := headless(t, sr)
	assert.Equal(t, 3, m.Len())
	snap := m.Snapshot()
	require.NotNil(t, snap.View)
	assert.InDelta(t, 12.8, snap.View.South, 1e-9)
	assert.InDelta(t, 13.0, snap.View.North, 1e-9)
	assert.InDelta(t, 77.1, snap.View.West, 1e-9)
	assert.InDelta(t, 77.3, snap.View.East, 1e-9)
	assert.Equal(t, 20, snap.Padding)
	assert.Equal(t, 1, ch.count("features"))

	require.NoError(t, v.Open(context.Background()), "second open is a no-op")
	assert.Equal(t, 3, m.Len())
}

func TestRebuildClearsPriorLayers(t *testing.T) {
	v, sr, _ := newTestView(t, Config{}, nil)
	require.NoError(t, v.Open(context.Background()))

	v.SetRecords(testRecords(), testColumns)
	v.SetRecords(testRecords()[:1], testColumns)
	assert.Equal(t, 1, headless(t, sr).Len())

	v.SetRecords(nil, testColumns)
	assert.Equal(t, 0, headless(t, sr).Len())
	assert.True(t, v.Features().Extent().Empty)
}

func TestConfiguredGeometryColumns(t *testing.T) {
	v, _, _ := newTestView(t, Config{GeometryColumns: []string{"site"}}, nil)
	require.NoError(t, v.Open(context.Background()))

	v.SetRecords([]record.Record{
		{"id": 1, "geometry": "POINT(1 1)", "site": "POINT(2 2)"},
	}, testColumns)
	assert.Equal(t, 2, v.Features().Len())
}

func TestLegendToggleRestylesLayers(t *testing.T) {
	v, sr, ch := newTestView(t, Config{ColorField: "status"}, nil)
	_, err := v.ToggleLegend("Active")
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, v.Open(context.Background()))
	v.SetRecords(testRecords(), testColumns)
	m := headless(t, sr)

	items, err := v.ToggleLegend("Active")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Active", items[0].Value)
	assert.False(t, items[0].Visible)
	assert.True(t, items[1].Visible)

	for _, f := range v.Features().Features() {
		id, ok := v.Layer(f.Handle())
		require.True(t, ok)
		style, ok := m.Style(id)
		require.True(t, ok)
		if f.Category() == "Active" {
			assert.False(t, f.Visible())
			assert.Zero(t, style.Opacity)
		} else {
			assert.True(t, f.Visible())
			assert.NotZero(t, style.Opacity)
		}
	}
	assert.Equal(t, []string{"Active"}, v.HiddenValues())

	_, err = v.ShowAll()
	require.NoError(t, err)
	for _, f := range v.Features().Features() {
		assert.True(t, f.Visible())
	}
	assert.Equal(t, 2, ch.count("legend"))
}

func TestHiddenValuesSurviveReloadButNotFieldChange(t *testing.T) {
	v, _, _ := newTestView(t, Config{ColorField: "status"}, nil)
	require.NoError(t, v.Open(context.Background()))
	v.SetRecords(testRecords(), testColumns)

	_, err := v.ToggleLegend("Closed")
	require.NoError(t, err)
	v.SetRecords(testRecords(), testColumns)
	assert.Equal(t, []string{"Closed"}, v.HiddenValues())

	v.SetColorField("name")
	assert.Empty(t, v.HiddenValues())
	assert.Equal(t, "name", v.Features().ColorField())
}

func TestPopupBoundToLayer(t *testing.T) {
	v, sr, _ := newTestView(t, Config{}, nil)
	require.NoError(t, v.Open(context.Background()))
	v.SetRecords(testRecords(), testColumns)

	id, ok := v.Layer(feature.Handle(0))
	require.True(t, ok)
	html, err := headless(t, sr).Popup(id)
	require.NoError(t, err)
	assert.Contains(t, html, "North")

	_, err = v.OpenPopup(feature.Handle(99))
	assert.ErrorIs(t, err, ErrFeatureNotFound)
}

func TestPopupCommitUsesUpdateSink(t *testing.T) {
	var got map[string]any
	v, _, _ := newTestView(t, Config{}, func(_ context.Context, id string, updates map[string]any) error {
		if id != "1" {
			return errors.New("unexpected record")
		}
		got = updates
		return nil
	})
	require.NoError(t, v.Open(context.Background()))
	v.SetRecords(testRecords(), testColumns)

	p, err := v.OpenPopup(feature.Handle(0))
	require.NoError(t, err)
	require.NoError(t, p.StartEdit("name"))
	require.NoError(t, p.Commit(context.Background(), "Renamed"))
	assert.Equal(t, map[string]any{"name": "Renamed"}, got)

	v.SetRecords(testRecords(), testColumns)
	_, ok := v.Popups().Panel(p.ID())
	assert.False(t, ok, "rebuild discards open panels")
}

func TestDispatchDrivesMeasurement(t *testing.T) {
	v, _, ch := newTestView(t, Config{}, nil)
	assert.ErrorIs(t, v.Dispatch(surface.Event{Type: surface.Click}), ErrNotReady)
	_, err := v.Measure()
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, v.Open(context.Background()))
	eng, err := v.Measure()
	require.NoError(t, err)
	eng.Activate(measure.ModeLine)

	require.NoError(t, v.Dispatch(surface.Event{Type: surface.Click, Lat: 0, Lng: 0}))
	require.NoError(t, v.Dispatch(surface.Event{Type: surface.Click, Lat: 0, Lng: 0.01}))
	r := eng.Result()
	assert.Len(t, r.Points, 2)
	assert.NotEmpty(t, r.Label)
	assert.GreaterOrEqual(t, ch.count("measure"), 3)

	snap, err := v.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Layers.Features, 1)
	assert.Equal(t, "crosshair", snap.Cursor)
}

func TestOpenFailsWhenRuntimeUnavailable(t *testing.T) {
	rt := NewRuntime(func(context.Context) (surface.Factory, error) {
		return nil, errors.New("offline")
	}, nil, RuntimeOptions{})
	v, err := New(rt, nil, Config{})
	require.NoError(t, err)

	v.SetRecords(testRecords(), testColumns)
	err = v.Open(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
	assert.False(t, v.Ready())
}

type staticSource struct {
	records []record.Record
	err     error
}

func (s staticSource) Records(context.Context) ([]record.Record, error) { return s.records, s.err }
func (s staticSource) Columns(context.Context) ([]record.Column, error) { return testColumns, nil }

func TestReload(t *testing.T) {
	v, _, _ := newTestView(t, Config{}, nil)
	require.NoError(t, v.Open(context.Background()))

	require.NoError(t, v.Reload(context.Background(), staticSource{records: testRecords()}))
	assert.Equal(t, 3, v.Features().Len())
	assert.Equal(t, testColumns, v.Columns())

	err := v.Reload(context.Background(), staticSource{err: errors.New("db down")})
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, 3, v.Features().Len())
}
