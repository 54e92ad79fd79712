// Package framereport forwards uncaught failures to the host frame embedding
// the application. Reports are best-effort: delivery is fire-and-forget with
// no acknowledgement and no retry.
package framereport

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/shelfloop/gateway/internal/observability"
	"github.com/shelfloop/gateway/model"
)

// Report is the normalized error payload delivered to the host.
type Report struct {
	Title         string `json:"title"`
	Details       string `json:"details"`
	ComponentName string `json:"componentName"`
}

// componentPattern pulls a function name out of a sandbox-evaluated stack
// frame, e.g. "at formatDate (eval ...". The BaaS function runtime embeds such
// frames in the error bodies it returns. Extraction is a heuristic; when
// nothing matches, the report simply carries no component name.
var componentPattern = regexp.MustCompile(`at (\S+) \(eval`)

// Reporter captures failures and hands normalized reports to a Sink. It is
// inert until Install is called.
type Reporter struct {
	mu        sync.Mutex
	installed bool

	sink    Sink
	metrics *observability.Metrics
	logger  *zap.Logger
}

// Option configures optional Reporter collaborators.
type Option func(*Reporter)

// WithMetrics attaches Prometheus instruments to the reporter.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Reporter) { r.metrics = m }
}

// WithLogger attaches a logger to the reporter.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// New creates a Reporter delivering to sink. A nil sink yields a reporter
// whose Install is a no-op, for deployments that are not embedded in a host.
func New(sink Sink, opts ...Option) *Reporter {
	r := &Reporter{sink: sink, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Install activates the reporter and returns its uninstall function. Install
// is idempotent: while the reporter is active, further calls return a no-op
// disposer, so callers may install on every startup path without duplicating
// reports.
func (r *Reporter) Install() func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sink == nil || r.installed {
		return func() {}
	}
	r.installed = true
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.installed = false
	}
}

// Installed reports whether the reporter is currently active.
func (r *Reporter) Installed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installed
}

// CaptureError reports a failure that surfaced through an error value, such
// as a background task or upstream call that could not be retried. Errors
// carrying a payment-required upstream status are dropped: that condition
// comes from the BaaS billing layer and is not actionable by the host.
func (r *Reporter) CaptureError(ctx context.Context, err error) {
	if err == nil || !r.Installed() {
		return
	}
	if model.ResponseStatus(err) == http.StatusPaymentRequired {
		r.record("suppressed")
		return
	}

	// UpstreamError stringifies with its response body, so stack text
	// embedded in an upstream error stays searchable.
	details := err.Error()
	name := componentName(details, false)
	r.deliver(ctx, Report{
		Title:         title(name, err.Error()),
		Details:       details,
		ComponentName: name,
	})
}

// CapturePanic reports a recovered panic. A component name of literally
// "eval" is discarded here as an artifact of sandboxed evaluation, not a
// meaningful caller.
func (r *Reporter) CapturePanic(ctx context.Context, value any, stack []byte) {
	if !r.Installed() {
		return
	}
	if err, ok := value.(error); ok && model.ResponseStatus(err) == http.StatusPaymentRequired {
		r.record("suppressed")
		return
	}

	msg := fmt.Sprint(value)
	name := componentName(msg+"\n"+string(stack), true)
	r.deliver(ctx, Report{
		Title:         title(name, msg),
		Details:       msg,
		ComponentName: name,
	})
}

func (r *Reporter) deliver(ctx context.Context, rep Report) {
	if err := r.sink.Send(ctx, rep); err != nil {
		r.record("failed")
		r.logger.Warn("framereport: delivery failed",
			zap.String("title", rep.Title), zap.Error(err))
		return
	}
	r.record("sent")
}

func (r *Reporter) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordFrameReport(outcome)
	}
}

// componentName extracts a function name from stack text. discardEval drops a
// matched name of literally "eval".
func componentName(stack string, discardEval bool) string {
	m := componentPattern.FindStringSubmatch(stack)
	if m == nil {
		return ""
	}
	if discardEval && m[1] == "eval" {
		return ""
	}
	return m[1]
}

func title(name, msg string) string {
	if name == "" {
		return msg
	}
	return "Error in " + name + ": " + msg
}
