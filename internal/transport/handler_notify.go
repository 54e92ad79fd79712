package transport

import (
	"context"
	"net/http"

	"github.com/shelfloop/gateway/model"
)

type notifyRequest struct {
	Recipient string         `json:"recipient"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data"`
}

// HandleSendManualNotification invokes the push-dispatch function for a
// single recipient. Admin only; the RequireAdmin middleware gates the route.
func (h *Handlers) HandleSendManualNotification(w http.ResponseWriter, r *http.Request) {
	h.run("send_manual_notification", w, r, func(ctx context.Context, p *model.Principal, r *http.Request) (map[string]any, error) {
		var req notifyRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := checkRequired(
			requiredField{"recipient", req.Recipient},
			requiredField{"title", req.Title},
			requiredField{"body", req.Body},
		); err != nil {
			return nil, err
		}

		result, err := h.capability.Invoke(ctx, p.Token, h.cfg.Push.DispatchFunction, map[string]any{
			"recipient": req.Recipient,
			"title":     req.Title,
			"body":      req.Body,
			"data":      req.Data,
		})
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"message": "Notification sent",
			"result":  result,
		}, nil
	})
}
