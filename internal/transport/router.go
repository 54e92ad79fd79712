package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shelfloop/gateway/internal/config"
	"github.com/shelfloop/gateway/internal/framereport"
	"github.com/shelfloop/gateway/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config        *config.Config
	Handlers      *Handlers
	Authenticator Authenticator
	Reporter      *framereport.Reporter
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Readiness     observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass
// authentication.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(deps.Reporter, logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Action routes: every handler runs the full authenticated pipeline.
	r.Group(func(r chi.Router) {
		if deps.Config.Observability.Tracing.Enabled {
			r.Use(observability.TracingMiddleware)
		}
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}
		// Logging sits above auth so 401 rejections still produce a line.
		r.Use(RequestLogging(logger))
		r.Use(AuthMiddleware(deps.Authenticator, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))

		h := deps.Handlers
		r.Post("/functions/importFromBoard", h.HandleImportFromBoard)
		r.Post("/functions/shareToBoard", h.HandleShareToBoard)
		r.Post("/functions/updatePushToken", h.HandleUpdatePushToken)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/functions/sendManualNotification", h.HandleSendManualNotification)
			r.Post("/functions/unlockBadge", h.HandleUnlockBadge)
		})
	})

	return r
}
