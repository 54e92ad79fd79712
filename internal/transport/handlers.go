package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shelfloop/gateway/internal/baas"
	"github.com/shelfloop/gateway/internal/board"
	"github.com/shelfloop/gateway/internal/config"
	"github.com/shelfloop/gateway/internal/observability"
	"github.com/shelfloop/gateway/model"
)

// BoardAPI is the board surface the handlers consume.
type BoardAPI interface {
	board.Lister
	board.Poster
}

// Handlers holds the injected dependencies shared by the action handlers.
type Handlers struct {
	cfg        *config.Config
	capability baas.Capability
	board      BoardAPI
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewHandlers creates the handler set. metrics may be nil.
func NewHandlers(cfg *config.Config, capability baas.Capability, boardAPI BoardAPI, metrics *observability.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		cfg:        cfg,
		capability: capability,
		board:      boardAPI,
		metrics:    metrics,
		logger:     logger,
	}
}

// actionFunc is the handler-specific part of the pipeline: validate the
// request and perform exactly one delegated call. The returned map becomes
// the success payload.
type actionFunc func(ctx context.Context, p *model.Principal, r *http.Request) (map[string]any, error)

// run executes the shared action pipeline: the principal was resolved by the
// auth middleware and the admin gate by RequireAdmin; run adds tracing,
// metrics, and the uniform success/error response shape around the
// handler-specific delegate.
func (h *Handlers) run(action string, w http.ResponseWriter, r *http.Request, fn actionFunc) {
	start := time.Now()
	ctx, span := observability.StartSpan(r.Context(), "action."+action,
		observability.AttrAction.String(action))

	p := model.PrincipalFrom(ctx)
	if p == nil {
		observability.EndSpanWithError(span, model.NewUnauthorizedError())
		h.record(action, "unauthorized", start)
		WriteError(w, model.NewUnauthorizedError())
		return
	}
	span.SetAttributes(observability.AttrSubjectID.String(p.SubjectID))

	payload, err := fn(ctx, p, r)
	if err != nil {
		observability.EndSpanWithError(span, err)
		h.record(action, outcomeOf(err), start)
		WriteError(w, err)
		return
	}

	span.End()
	h.record(action, "success", start)
	WriteSuccess(w, payload)
}

func (h *Handlers) record(action, outcome string, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordAction(action, outcome, time.Since(start))
	}
}

func outcomeOf(err error) string {
	var ge *model.GatewayError
	if errors.As(err, &ge) {
		switch ge.Code {
		case model.ErrBadRequest:
			return "invalid_input"
		case model.ErrUnauthorized:
			return "unauthorized"
		case model.ErrForbidden:
			return "forbidden"
		case model.ErrConfigMissing:
			return "config_missing"
		}
	}
	return "error"
}

// decodeJSON parses the request body into dst. An empty body is valid and
// leaves dst zeroed; malformed JSON is an input error.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return model.NewBadRequestError("unreadable request body")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return model.NewBadRequestError("invalid JSON body")
	}
	return nil
}

// requiredField pairs a wire field name with its submitted value.
type requiredField struct {
	name  string
	value string
}

// checkRequired returns a validation error naming every required field that
// is absent or empty, in declaration order.
func checkRequired(fields ...requiredField) error {
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return model.NewMissingFieldsError(missing)
	}
	return nil
}
