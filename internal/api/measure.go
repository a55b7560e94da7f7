package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-recmap/internal/measure"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

type MeasureModeInput struct {
	Body struct {
		Mode string `json:"mode" enum:"none,line,area" doc:"Measurement mode; activating the active mode turns it off"`
	}
}

type MeasureUnitsInput struct {
	Body struct {
		Units string `json:"units" enum:"metric,imperial" doc:"Unit system"`
	}
}

type MapEventInput struct {
	Body surface.Event
}

type MeasureOutput struct {
	Body measure.Result
}

func (h *APIHandler) engine() (*measure.Engine, error) {
	e, err := h.svc.View.Measure()
	if err != nil {
		return nil, toHTTPError(err)
	}
	return e, nil
}

func (h *APIHandler) GetMeasure(ctx context.Context, input *struct{}) (*MeasureOutput, error) {
	e, err := h.engine()
	if err != nil {
		return nil, err
	}
	return &MeasureOutput{Body: e.Result()}, nil
}

func (h *APIHandler) PutMeasureMode(ctx context.Context, input *MeasureModeInput) (*MeasureOutput, error) {
	mode, err := measure.ParseMode(input.Body.Mode)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	e, err := h.engine()
	if err != nil {
		return nil, err
	}
	if mode == measure.ModeNone {
		return &MeasureOutput{Body: e.Clear()}, nil
	}
	return &MeasureOutput{Body: e.Activate(mode)}, nil
}

func (h *APIHandler) PutMeasureUnits(ctx context.Context, input *MeasureUnitsInput) (*MeasureOutput, error) {
	units, err := measure.ParseUnits(input.Body.Units)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	e, err := h.engine()
	if err != nil {
		return nil, err
	}
	return &MeasureOutput{Body: e.SetUnits(units)}, nil
}

func (h *APIHandler) ClearMeasure(ctx context.Context, input *struct{}) (*MeasureOutput, error) {
	e, err := h.engine()
	if err != nil {
		return nil, err
	}
	return &MeasureOutput{Body: e.Clear()}, nil
}

// PostMapEvent forwards a pointer event from the browser map.
func (h *APIHandler) PostMapEvent(ctx context.Context, input *MapEventInput) (*MeasureOutput, error) {
	e, err := h.engine()
	if err != nil {
		return nil, err
	}
	if err := h.svc.View.Dispatch(input.Body); err != nil {
		return nil, toHTTPError(err)
	}
	return &MeasureOutput{Body: e.Result()}, nil
}
