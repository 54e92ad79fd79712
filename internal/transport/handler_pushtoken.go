package transport

import (
	"context"
	"net/http"

	"github.com/shelfloop/gateway/model"
)

type pushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// HandleUpdatePushToken stores a device push token on the caller's own
// profile.
func (h *Handlers) HandleUpdatePushToken(w http.ResponseWriter, r *http.Request) {
	h.run("update_push_token", w, r, func(ctx context.Context, p *model.Principal, r *http.Request) (map[string]any, error) {
		var req pushTokenRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := checkRequired(requiredField{"push_token", req.PushToken}); err != nil {
			return nil, err
		}

		if err := h.capability.UpdateMe(ctx, p.Token, map[string]any{
			"push_token": req.PushToken,
		}); err != nil {
			return nil, err
		}

		return map[string]any{"message": "Push token updated"}, nil
	})
}
