package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-recmap/internal/mapview"
	"github.com/joeblew999/plat-recmap/internal/record"
	"github.com/joeblew999/plat-recmap/internal/service"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

var apiColumns = []record.Column{
	{Key: "id", Permission: record.PermissionView},
	{Key: "geometry", IsGeometry: true, Permission: record.PermissionView},
	{Key: "name", Permission: record.PermissionEdit},
	{Key: "status", Permission: record.PermissionView},
}

// memStore is an in-memory record source and update sink.
type memStore struct {
	mu      sync.Mutex
	records []record.Record
	fail    error
}

func (s *memStore) Records(context.Context) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *memStore) Columns(context.Context) ([]record.Column, error) { return apiColumns, nil }

func (s *memStore) Update(_ context.Context, id string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for _, r := range s.records {
		if r.ID() == id {
			for k, v := range updates {
				r[k] = v
			}
			return nil
		}
	}
	return errors.New("no such record")
}

type harness struct {
	api   humatest.TestAPI
	mux   *http.ServeMux
	view  *mapview.View
	store *memStore
	bus   *service.EventBus
}

func newHarness(t *testing.T, open bool) *harness {
	t.Helper()
	st := &memStore{records: []record.Record{
		{"id": 1, "name": "North", "status": "Active", "geometry": "POLYGON((77.1 12.9, 77.2 12.9, 77.2 13.0, 77.1 12.9))"},
		{"id": 2, "name": "South", "status": "Closed", "geometry": "POINT(77.15 12.8)"},
		{"id": 3, "name": "Gone", "status": "Active", "geometry": "MULTIPOLYGON (((0 0, 1 0, 1 1"},
	}}
	rt := mapview.NewRuntime(surface.NewRuntime().Loader(), nil, mapview.RuntimeOptions{})
	bus := service.NewEventBus(nil)
	view, err := mapview.New(rt, st.Update, mapview.Config{
		ColorField: "status",
		OnChange: func(c mapview.Change) {
			bus.Publish(service.Event{Resource: c.Resource, Action: c.Action, ID: c.ID})
		},
	})
	require.NoError(t, err)
	if open {
		require.NoError(t, view.Open(context.Background()))
		require.NoError(t, view.Reload(context.Background(), st))
	}

	mux := http.NewServeMux()
	humaAPI := humago.New(mux, huma.DefaultConfig("recmap test", "1.0.0"))
	RegisterRoutes(humaAPI, &Services{View: view, Source: st, Bus: bus})
	return &harness{api: humatest.Wrap(t, humaAPI), mux: mux, view: view, store: st, bus: bus}
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t, false)
	resp := h.api.Get("/health")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decode[HealthBody](t, resp).Status)
}

func TestNotReady(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, h.api.Get("/api/v1/map").Code)
	assert.Equal(t, http.StatusServiceUnavailable, h.api.Get("/api/v1/measure").Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		h.api.Post("/api/v1/legend/toggle", map[string]any{"value": "Active"}).Code)

	info := decode[InfoBody](t, h.api.Get("/api/v1/info"))
	assert.False(t, info.Ready)
}

func TestFeatures(t *testing.T) {
	h := newHarness(t, true)
	body := decode[FeaturesBody](t, h.api.Get("/api/v1/features"))

	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 1, body.Dropped)
	assert.False(t, body.Empty)
	require.NotNil(t, body.Extent)
	assert.InDelta(t, 12.8, body.Extent.MinLat, 1e-9)
	assert.InDelta(t, 77.2, body.Extent.MaxLng, 1e-9)
	require.NotNil(t, body.GeoJSON)
	assert.Len(t, body.GeoJSON.Features, 2)

	snap := decode[surface.Snapshot](t, h.api.Get("/api/v1/map"))
	assert.Equal(t, "map", snap.Container)
	assert.NotNil(t, snap.View)
}

func TestLegendOperations(t *testing.T) {
	h := newHarness(t, true)

	body := decode[LegendBody](t, h.api.Get("/api/v1/legend"))
	assert.Equal(t, "status", body.Field)
	require.Len(t, body.Items, 2)

	resp := h.api.Post("/api/v1/legend/toggle", map[string]any{"value": "Active"})
	require.Equal(t, http.StatusOK, resp.Code)
	body = decode[LegendBody](t, resp)
	assert.Equal(t, []string{"Active"}, body.Hidden)

	fc := decode[FeaturesBody](t, h.api.Get("/api/v1/features"))
	for _, f := range fc.GeoJSON.Features {
		assert.Equal(t, f.Properties["_category"] != "Active", f.Properties["_visible"])
	}

	body = decode[LegendBody](t, h.api.Post("/api/v1/legend/show-all", map[string]any{}))
	assert.Empty(t, body.Hidden)

	resp = h.api.Put("/api/v1/color-field", map[string]any{"field": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	body = decode[LegendBody](t, h.api.Put("/api/v1/color-field", map[string]any{"field": "name"}))
	assert.Equal(t, "name", body.Field)
	assert.Len(t, body.Items, 2)
}

func openPopup(t *testing.T, h *harness) PopupBody {
	t.Helper()
	resp := h.api.Get("/api/v1/features/0/popup")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decode[PopupBody](t, resp)
}

func TestPopupEditCommit(t *testing.T) {
	h := newHarness(t, true)
	p := openPopup(t, h)
	assert.Equal(t, "North", p.Popup.Title)
	assert.Contains(t, p.HTML, "popup-"+p.Popup.ID)

	resp := h.api.Post("/api/v1/popups/"+p.Popup.ID+"/edit", map[string]any{"field": "status"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = h.api.Post("/api/v1/popups/"+p.Popup.ID+"/edit", map[string]any{"field": "name"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "name", decode[PopupBody](t, resp).Popup.Editing)

	resp = h.api.Post("/api/v1/popups/"+p.Popup.ID+"/commit", map[string]any{"value": "North Field"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	after := decode[PopupBody](t, resp)
	assert.Equal(t, "North Field", after.Popup.Title, "panel reopened from reloaded records")
	assert.Empty(t, after.Popup.Editing)

	records, _ := h.store.Records(context.Background())
	assert.Equal(t, "North Field", records[0]["name"])

	assert.Equal(t, http.StatusNotFound,
		h.api.Post("/api/v1/popups/"+p.Popup.ID+"/commit", map[string]any{"value": "x"}).Code,
		"the old panel was discarded by the reload")
}

func TestPopupCommitFailureKeepsEditOpen(t *testing.T) {
	h := newHarness(t, true)
	h.store.fail = errors.New("disk full")
	p := openPopup(t, h)

	require.Equal(t, http.StatusOK,
		h.api.Post("/api/v1/popups/"+p.Popup.ID+"/edit", map[string]any{"field": "name"}).Code)
	resp := h.api.Post("/api/v1/popups/"+p.Popup.ID+"/commit", map[string]any{"value": "x"})
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Body.String(), "disk full")

	panel, ok := h.view.Popups().Panel(p.Popup.ID)
	require.True(t, ok)
	v := panel.View()
	assert.Equal(t, "name", v.Editing)
	assert.Equal(t, "disk full", v.Error)

	resp = h.api.Post("/api/v1/popups/"+p.Popup.ID+"/cancel", map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[PopupBody](t, resp).Popup.Editing)

	resp = h.api.Post("/api/v1/popups/"+p.Popup.ID+"/cancel", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestPopupNotFound(t *testing.T) {
	h := newHarness(t, true)
	assert.Equal(t, http.StatusNotFound, h.api.Get("/api/v1/features/42/popup").Code)
	assert.Equal(t, http.StatusNotFound,
		h.api.Post("/api/v1/popups/missing/edit", map[string]any{"field": "name"}).Code)

	p := openPopup(t, h)
	assert.Equal(t, http.StatusOK, h.api.Delete("/api/v1/popups/"+p.Popup.ID).Code)
	_, ok := h.view.Popups().Panel(p.Popup.ID)
	assert.False(t, ok)
}

func TestMeasurementFlow(t *testing.T) {
	h := newHarness(t, true)

	resp := h.api.Put("/api/v1/measure/mode", map[string]any{"mode": "line"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	const deg100m = 100 / 111319.49079327357
	h.api.Post("/api/v1/map/events", map[string]any{"type": "click", "lat": 0, "lng": 0})
	resp = h.api.Post("/api/v1/map/events", map[string]any{"type": "click", "lat": 0, "lng": deg100m})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	r := decode[map[string]any](t, h.api.Get("/api/v1/measure"))
	assert.Equal(t, "100.00 m", r["label"])
	assert.Equal(t, "line", r["mode"])

	r = decode[map[string]any](t, h.api.Put("/api/v1/measure/units", map[string]any{"units": "imperial"}))
	assert.Equal(t, "328.08 ft", r["label"])

	r = decode[map[string]any](t, h.api.Post("/api/v1/measure/clear", map[string]any{}))
	assert.Equal(t, "none", r["mode"])

	assert.Equal(t, http.StatusUnprocessableEntity,
		h.api.Put("/api/v1/measure/mode", map[string]any{"mode": "circle"}).Code)
}

func TestReloadRecords(t *testing.T) {
	h := newHarness(t, true)
	h.store.mu.Lock()
	h.store.records = h.store.records[:1]
	h.store.mu.Unlock()

	body := decode[FeaturesBody](t, h.api.Post("/api/v1/records/reload", map[string]any{}))
	assert.Equal(t, 1, body.Count)
}

func TestEventsStream(t *testing.T) {
	h := newHarness(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.mux.ServeHTTP(rec, req)
	}()

	require.Eventually(t, func() bool { return h.bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	_, err := h.view.ToggleLegend("Closed")
	require.NoError(t, err)
	<-done

	out := rec.Body.String()
	assert.Contains(t, out, "datastar-patch-signals")
	assert.Contains(t, out, "featureCount")
	assert.True(t, strings.Contains(out, "recmap-changed"), out)
}
