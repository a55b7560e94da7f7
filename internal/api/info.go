package api

import (
	"context"
)

type InfoBody struct {
	Name       string `json:"name" doc:"Service name"`
	Version    string `json:"version" doc:"Service version"`
	Ready      bool   `json:"ready" doc:"Whether the map is open"`
	Features   int    `json:"features" doc:"Number of rendered features"`
	Dropped    int    `json:"dropped" doc:"Geometry values that failed to parse"`
	ColorField string `json:"colorField,omitempty" doc:"Selected categorical field"`
	Columns    int    `json:"columns" doc:"Number of record columns"`
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	v := h.svc.View
	set := v.Features()
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-recmap",
		Version:    "0.1.0",
		Ready:      v.Ready(),
		Features:   set.Len(),
		Dropped:    set.Dropped(),
		ColorField: v.ColorField(),
		Columns:    len(v.Columns()),
	}}, nil
}
