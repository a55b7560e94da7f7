package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-recmap/internal/feature"
	"github.com/joeblew999/plat-recmap/internal/legend"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

type ExtentBody struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

type FeaturesBody struct {
	Count      int                        `json:"count" doc:"Number of features"`
	Dropped    int                        `json:"dropped" doc:"Geometry values that failed to parse"`
	ColorField string                     `json:"colorField,omitempty" doc:"Selected categorical field"`
	Empty      bool                       `json:"empty" doc:"True when no geometry parsed"`
	Extent     *ExtentBody                `json:"extent,omitempty" doc:"Bounding extent of all features"`
	GeoJSON    *geojson.FeatureCollection `json:"geojson" doc:"Features with record attributes and display state"`
}

type ColorFieldInput struct {
	Body struct {
		Field string `json:"field" doc:"Categorical field; empty to clear" example:"status"`
	}
}

type LegendBody struct {
	Field  string        `json:"field,omitempty" doc:"Categorical field"`
	Items  []legend.Item `json:"items" doc:"Legend entries"`
	Hidden []string      `json:"hidden" doc:"Hidden categories"`
}

func featuresBody(set *feature.Set) FeaturesBody {
	body := FeaturesBody{
		Count:      set.Len(),
		Dropped:    set.Dropped(),
		ColorField: set.ColorField(),
		Empty:      set.Extent().Empty,
		GeoJSON:    set.GeoJSON(),
	}
	if ext := set.Extent(); !ext.Empty {
		body.Extent = &ExtentBody{
			MinLat: ext.MinLat(), MaxLat: ext.MaxLat(),
			MinLng: ext.MinLng(), MaxLng: ext.MaxLng(),
		}
	}
	return body
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *struct{}) (*struct{ Body FeaturesBody }, error) {
	return &struct{ Body FeaturesBody }{Body: featuresBody(h.svc.View.Features())}, nil
}

func (h *APIHandler) GetMap(ctx context.Context, input *struct{}) (*struct{ Body surface.Snapshot }, error) {
	snap, err := h.svc.View.Snapshot()
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body surface.Snapshot }{Body: snap}, nil
}

func (h *APIHandler) ReloadRecords(ctx context.Context, input *struct{}) (*struct{ Body FeaturesBody }, error) {
	if h.svc.Source == nil {
		return nil, huma.Error400BadRequest("no record source configured")
	}
	if err := h.svc.View.Reload(ctx, h.svc.Source); err != nil {
		return nil, huma.Error502BadGateway("reload records", err)
	}
	return &struct{ Body FeaturesBody }{Body: featuresBody(h.svc.View.Features())}, nil
}

func (h *APIHandler) PutColorField(ctx context.Context, input *ColorFieldInput) (*struct{ Body LegendBody }, error) {
	field := input.Body.Field
	if field != "" {
		if cols := h.svc.View.Columns(); len(cols) > 0 && !hasColumn(cols, field) {
			return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("unknown field %q", field))
		}
	}
	h.svc.View.SetColorField(field)
	return &struct{ Body LegendBody }{Body: h.legendBody()}, nil
}
