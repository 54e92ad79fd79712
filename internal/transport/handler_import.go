package transport

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/shelfloop/gateway/internal/observability"
	"github.com/shelfloop/gateway/model"
)

type importRequest struct {
	Limit int `json:"limit"`
}

// HandleImportFromBoard fetches pins from the configured board and creates a
// saved-book record for each one with the caller's own privilege.
//
// Per-item creation failures are logged and skipped rather than aborting the
// batch: the response reports imported versus total, so a partial import is a
// normal successful outcome.
func (h *Handlers) HandleImportFromBoard(w http.ResponseWriter, r *http.Request) {
	h.run("import_from_board", w, r, func(ctx context.Context, p *model.Principal, r *http.Request) (map[string]any, error) {
		var req importRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}

		pins, err := h.board.ListPins(ctx, req.Limit)
		if err != nil {
			return nil, err
		}

		logger := observability.RequestLogger(ctx, h.logger)
		imported := 0
		items := make([]map[string]any, 0, len(pins))
		// Sequential on purpose: one item's latency never overlaps another's,
		// and the imported/total accounting needs no coordination.
		for _, pin := range pins {
			item, err := h.capability.Create(ctx, p.Token, "SavedBook", map[string]any{
				"title":           pin.Description,
				"cover_image_url": pin.ImageURL,
				"source_url":      pin.URL,
				"board_pin_id":    pin.ID,
			})
			if err != nil {
				logger.Warn("import: skipping item",
					zap.String("pin_id", pin.ID),
					zap.Error(err),
				)
				h.recordImportItem("skipped")
				continue
			}
			imported++
			items = append(items, item)
			h.recordImportItem("imported")
		}

		return map[string]any{
			"imported": imported,
			"total":    len(pins),
			"items":    items,
		}, nil
	})
}

func (h *Handlers) recordImportItem(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordImportItem(outcome)
	}
}
