package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/humastar"
	"github.com/joeblew999/plat-recmap/internal/service"
)

// Events streams view changes to the Datastar UI. The current state is sent
// on connect; legend and measurement changes follow as signal patches and
// popup changes as element patches. Every change also dispatches a
// "recmap-changed" DOM event so the map script can refetch /api/v1/map.
func (h *APIHandler) Events(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	return humastar.Stream(func(sse humastar.SSE) {
		ch := h.svc.Bus.Subscribe()
		defer h.svc.Bus.Unsubscribe(ch)

		if err := h.sendState(sse); err != nil {
			h.log.Debug("sse client gone", zap.Error(err))
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := h.sendEvent(sse, ev); err != nil {
					h.log.Debug("sse client gone", zap.Error(err))
					return
				}
			}
		}
	}), nil
}

func (h *APIHandler) stateSignals() map[string]any {
	set := h.svc.View.Features()
	signals := map[string]any{
		"ready":        h.svc.View.Ready(),
		"featureCount": set.Len(),
		"dropped":      set.Dropped(),
		"legend":       h.legendBody(),
	}
	if e, err := h.svc.View.Measure(); err == nil {
		signals["measure"] = e.Result()
	}
	return signals
}

func (h *APIHandler) sendState(sse humastar.SSE) error {
	return sse.Signals(h.stateSignals())
}

func (h *APIHandler) sendEvent(sse humastar.SSE, ev service.Event) error {
	switch ev.Resource {
	case "features", "legend":
		if err := sse.Signals(h.stateSignals()); err != nil {
			return err
		}
	case "measure":
		if e, err := h.svc.View.Measure(); err == nil {
			if err := sse.Signals(map[string]any{"measure": e.Result()}); err != nil {
				return err
			}
		}
	case "popup":
		if p, ok := h.svc.View.Popups().Panel(ev.ID); ok {
			html, err := p.HTML()
			if err != nil {
				h.log.Warn("render popup", zap.String("popup", ev.ID), zap.Error(err))
				break
			}
			if err := sse.Replace(html, "#popup-"+ev.ID); err != nil {
				return err
			}
		}
	}
	return sse.DispatchCustomEvent("recmap-changed", map[string]any{
		"resource": ev.Resource,
		"action":   ev.Action,
		"id":       ev.ID,
	})
}
