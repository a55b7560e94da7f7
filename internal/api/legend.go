package api

import (
	"context"

	"github.com/joeblew999/plat-recmap/internal/record"
)

type ToggleInput struct {
	Body struct {
		Value string `json:"value" doc:"Category value to show or hide" example:"Active"`
	}
}

func (h *APIHandler) legendBody() LegendBody {
	hidden := h.svc.View.HiddenValues()
	if hidden == nil {
		hidden = []string{}
	}
	return LegendBody{
		Field:  h.svc.View.Features().ColorField(),
		Items:  h.svc.View.Legend(),
		Hidden: hidden,
	}
}

func (h *APIHandler) GetLegend(ctx context.Context, input *struct{}) (*struct{ Body LegendBody }, error) {
	return &struct{ Body LegendBody }{Body: h.legendBody()}, nil
}

func (h *APIHandler) ToggleLegend(ctx context.Context, input *ToggleInput) (*struct{ Body LegendBody }, error) {
	if _, err := h.svc.View.ToggleLegend(input.Body.Value); err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body LegendBody }{Body: h.legendBody()}, nil
}

func (h *APIHandler) ShowAll(ctx context.Context, input *struct{}) (*struct{ Body LegendBody }, error) {
	if _, err := h.svc.View.ShowAll(); err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body LegendBody }{Body: h.legendBody()}, nil
}

func hasColumn(cols []record.Column, key string) bool {
	for _, c := range cols {
		if c.Key == key {
			return true
		}
	}
	return false
}
