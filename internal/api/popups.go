package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/feature"
	"github.com/joeblew999/plat-recmap/internal/humastar"
	"github.com/joeblew999/plat-recmap/internal/popup"
)

type HandleInput struct {
	Handle int `path:"handle" minimum:"0" doc:"Feature handle" example:"0"`
}

type PopupIDInput struct {
	ID string `path:"id" doc:"Popup ID"`
}

// PopupSignalsInput accepts a JSON object or Datastar signals. Edit reads
// "field"; commit reads "value".
type PopupSignalsInput struct {
	PopupIDInput
	humastar.SignalsInput
}

type PopupBody struct {
	Popup popup.View `json:"popup" doc:"Panel state"`
	HTML  string     `json:"html" doc:"Rendered panel"`
}

type PopupOutput struct {
	Body PopupBody
}

func popupOutput(p *popup.Panel) (*PopupOutput, error) {
	html, err := p.HTML()
	if err != nil {
		return nil, huma.Error500InternalServerError("render popup", err)
	}
	return &PopupOutput{Body: PopupBody{Popup: p.View(), HTML: html}}, nil
}

func (h *APIHandler) panel(id string) (*popup.Panel, error) {
	p, ok := h.svc.View.Popups().Panel(id)
	if !ok {
		return nil, huma.Error404NotFound("popup not found")
	}
	return p, nil
}

func (h *APIHandler) OpenPopup(ctx context.Context, input *HandleInput) (*PopupOutput, error) {
	p, err := h.svc.View.OpenPopup(feature.Handle(input.Handle))
	if err != nil {
		return nil, toHTTPError(err)
	}
	return popupOutput(p)
}

func (h *APIHandler) StartEdit(ctx context.Context, input *PopupSignalsInput) (*PopupOutput, error) {
	signals, err := input.Parse()
	if err != nil {
		return nil, err
	}
	p, err := h.panel(input.ID)
	if err != nil {
		return nil, err
	}
	field := signals.String("field")
	if field == "" {
		return nil, huma.Error400BadRequest("field is required")
	}
	previous, hadActive := h.svc.View.Popups().Active()
	if err := p.StartEdit(field); err != nil {
		return nil, toHTTPError(err)
	}
	if hadActive && previous != p.ID() {
		h.publish("popup", "edit_cancelled", previous)
	}
	h.publish("popup", "editing", p.ID())
	return popupOutput(p)
}

func (h *APIHandler) CancelEdit(ctx context.Context, input *PopupSignalsInput) (*PopupOutput, error) {
	p, err := h.panel(input.ID)
	if err != nil {
		return nil, err
	}
	if err := p.Cancel(); err != nil {
		return nil, toHTTPError(err)
	}
	h.publish("popup", "edit_cancelled", p.ID())
	return popupOutput(p)
}

// CommitEdit sends the edited value to the record store. On success the
// records are reloaded and the panel of the same feature is reopened.
func (h *APIHandler) CommitEdit(ctx context.Context, input *PopupSignalsInput) (*PopupOutput, error) {
	signals, err := input.Parse()
	if err != nil {
		return nil, err
	}
	p, err := h.panel(input.ID)
	if err != nil {
		return nil, err
	}
	if !signals.Has("value") {
		return nil, huma.Error400BadRequest("value is required")
	}

	if err := p.Commit(ctx, signals.Value("value")); err != nil {
		h.publish("popup", "commit_failed", p.ID())
		if mapped := toHTTPError(err); mapped.GetStatus() != http.StatusInternalServerError {
			return nil, mapped
		}
		return nil, huma.Error502BadGateway("record update failed", err)
	}
	h.publish("popup", "committed", p.ID())

	if h.svc.Source == nil {
		return popupOutput(p)
	}
	if err := h.svc.View.Reload(ctx, h.svc.Source); err != nil {
		h.log.Warn("reload after edit failed", zap.Error(err))
		return popupOutput(p)
	}
	reopened, err := h.svc.View.OpenRecordPopup(p.RecordID(), p.Column())
	if err != nil {
		// The edit can move the record out of the rendered set.
		return popupOutput(p)
	}
	return popupOutput(reopened)
}

func (h *APIHandler) ClosePopup(ctx context.Context, input *PopupIDInput) (*struct{ Body MessageBody }, error) {
	h.svc.View.Popups().Close(input.ID)
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Popup closed"}}, nil
}
