package transport

import (
	"context"
	"net/http"

	"github.com/shelfloop/gateway/internal/board"
	"github.com/shelfloop/gateway/model"
)

type shareRequest struct {
	ImageURL    string `json:"image_url"`
	BookTitle   string `json:"book_title"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

// HandleShareToBoard posts a new pin for a book to the configured board.
func (h *Handlers) HandleShareToBoard(w http.ResponseWriter, r *http.Request) {
	h.run("share_to_board", w, r, func(ctx context.Context, p *model.Principal, r *http.Request) (map[string]any, error) {
		var req shareRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := checkRequired(
			requiredField{"image_url", req.ImageURL},
			requiredField{"book_title", req.BookTitle},
		); err != nil {
			return nil, err
		}

		note := req.BookTitle
		if req.Description != "" {
			note += "\n\n" + req.Description
		}

		pin, err := h.board.CreatePin(ctx, board.CreatePinRequest{
			Note:     note,
			ImageURL: req.ImageURL,
			Link:     req.Link,
		})
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"pin_url": pin.URL,
			"pin_id":  pin.ID,
		}, nil
	})
}
