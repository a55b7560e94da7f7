// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/mapview"
	"github.com/joeblew999/plat-recmap/internal/popup"
	"github.com/joeblew999/plat-recmap/internal/service"
	"github.com/joeblew999/plat-recmap/internal/store"
)

// Services holds the dependencies of the API handlers.
type Services struct {
	View *mapview.View
	// Source re-reads records after reloads and committed edits. Optional.
	Source mapview.Source
	Bus    *service.EventBus
	Logger *zap.Logger
}

// Types

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
	log *zap.Logger
}

func NewAPIHandler(svc *Services) *APIHandler {
	log := svc.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if svc.Bus == nil {
		svc.Bus = service.NewEventBus(log)
	}
	return &APIHandler{svc: svc, log: log.Named("api")}
}

// RegisterRoutes registers every operation on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

// RegisterFeatures registers feature set and record routes.
func (h *APIHandler) RegisterFeatures(api huma.API) {
	huma.Get(api, "/api/v1/features", h.GetFeatures, huma.OperationTags("features"))
	huma.Get(api, "/api/v1/map", h.GetMap, huma.OperationTags("features"))
	huma.Post(api, "/api/v1/records/reload", h.ReloadRecords, huma.OperationTags("features"))
	huma.Put(api, "/api/v1/color-field", h.PutColorField, huma.OperationTags("legend"))
}

// RegisterLegend registers legend routes.
func (h *APIHandler) RegisterLegend(api huma.API) {
	huma.Get(api, "/api/v1/legend", h.GetLegend, huma.OperationTags("legend"))
	huma.Post(api, "/api/v1/legend/toggle", h.ToggleLegend, huma.OperationTags("legend"))
	huma.Post(api, "/api/v1/legend/show-all", h.ShowAll, huma.OperationTags("legend"))
}

// RegisterPopups registers popup and inline edit routes.
func (h *APIHandler) RegisterPopups(api huma.API) {
	huma.Get(api, "/api/v1/features/{handle}/popup", h.OpenPopup, huma.OperationTags("popups"))
	huma.Post(api, "/api/v1/popups/{id}/edit", h.StartEdit, huma.OperationTags("popups"))
	huma.Post(api, "/api/v1/popups/{id}/commit", h.CommitEdit, huma.OperationTags("popups"))
	huma.Post(api, "/api/v1/popups/{id}/cancel", h.CancelEdit, huma.OperationTags("popups"))
	huma.Delete(api, "/api/v1/popups/{id}", h.ClosePopup, huma.OperationTags("popups"))
}

// RegisterMeasure registers measurement routes.
func (h *APIHandler) RegisterMeasure(api huma.API) {
	huma.Get(api, "/api/v1/measure", h.GetMeasure, huma.OperationTags("measure"))
	huma.Put(api, "/api/v1/measure/mode", h.PutMeasureMode, huma.OperationTags("measure"))
	huma.Put(api, "/api/v1/measure/units", h.PutMeasureUnits, huma.OperationTags("measure"))
	huma.Post(api, "/api/v1/measure/clear", h.ClearMeasure, huma.OperationTags("measure"))
	huma.Post(api, "/api/v1/map/events", h.PostMapEvent, huma.OperationTags("measure"))
}

// RegisterEvents registers the Datastar SSE stream.
func (h *APIHandler) RegisterEvents(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events, huma.OperationTags("events"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) publish(resource, action, id string) {
	h.svc.Bus.Publish(service.Event{Resource: resource, Action: action, ID: id})
}

// toHTTPError maps domain errors to Huma status errors.
func toHTTPError(err error) huma.StatusError {
	switch {
	case errors.Is(err, mapview.ErrNotReady), errors.Is(err, mapview.ErrRuntimeUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, mapview.ErrFeatureNotFound),
		errors.Is(err, store.ErrRecordNotFound),
		errors.Is(err, popup.ErrPanelClosed):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, popup.ErrNoActiveEdit):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, popup.ErrNotEditable),
		errors.Is(err, store.ErrUnknownColumn),
		errors.Is(err, store.ErrReadOnlyColumn):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
