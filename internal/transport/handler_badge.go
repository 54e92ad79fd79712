package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/shelfloop/gateway/model"
)

type badgeRequest struct {
	UserEmail string `json:"user_email"`
	BadgeName string `json:"badge_name"`
}

// HandleUnlockBadge creates a badge-unlock record attributed to the target
// user. The write uses the service-role credential, never the caller's own:
// the record belongs to another identity. Admin only.
func (h *Handlers) HandleUnlockBadge(w http.ResponseWriter, r *http.Request) {
	h.run("unlock_badge", w, r, func(ctx context.Context, p *model.Principal, r *http.Request) (map[string]any, error) {
		var req badgeRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := checkRequired(
			requiredField{"user_email", req.UserEmail},
			requiredField{"badge_name", req.BadgeName},
		); err != nil {
			return nil, err
		}

		badge, err := h.capability.CreatePrivileged(ctx, "BadgeUnlock", map[string]any{
			"user_email":  req.UserEmail,
			"badge_name":  req.BadgeName,
			"unlocked_by": p.Email,
			"unlocked_at": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, err
		}

		return map[string]any{"badge": badge}, nil
	})
}
