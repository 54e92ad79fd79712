// Package baas is the HTTP client for the backend-as-a-service that owns
// application entities and authentication. Handlers depend on the Capability
// interface, never on this client directly, so tests can substitute fakes.
package baas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shelfloop/gateway/internal/config"
	"github.com/shelfloop/gateway/internal/observability"
	"github.com/shelfloop/gateway/model"
)

// Capability is the subset of the BaaS surface the gateway consumes.
//
// Methods taking a token act with the caller's own privilege; CreatePrivileged
// acts with the service-role credential and is the only way the gateway writes
// data attributed to another identity.
type Capability interface {
	// Authenticate resolves the principal behind a bearer token. A nil
	// principal with a nil error means the token resolved to nobody.
	Authenticate(ctx context.Context, token string) (*model.Principal, error)
	// UpdateMe patches the caller's own profile.
	UpdateMe(ctx context.Context, token string, patch map[string]any) error
	// Create inserts an entity record with the caller's privilege.
	Create(ctx context.Context, token, kind string, fields map[string]any) (map[string]any, error)
	// CreatePrivileged inserts an entity record with the service-role
	// credential.
	CreatePrivileged(ctx context.Context, kind string, fields map[string]any) (map[string]any, error)
	// Invoke calls a named server-side function with the caller's privilege.
	Invoke(ctx context.Context, token, name string, payload map[string]any) (map[string]any, error)
}

const serviceName = "baas"

// Client is the HTTP implementation of Capability with circuit breaker and
// bounded retry around every call.
type Client struct {
	cfg     config.BaaSConfig
	appID   string
	client  *http.Client
	breaker *CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithMetrics attaches Prometheus instruments to the client.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger attaches a logger to the client.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a BaaS client. appID may come from configuration or from
// session parameter resolution at boot.
func NewClient(cfg config.BaaSConfig, appID string, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		cfg:   cfg,
		appID: appID,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewCircuitBreaker(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.SuccessThreshold,
			cfg.CircuitBreaker.Timeout,
		),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate implements Capability.
func (c *Client) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	body, err := c.do(ctx, http.MethodGet, c.appURL("auth/me"), bearerHeaders(token), nil, "auth.me")
	if err != nil {
		var ue *model.UpstreamError
		if errors.As(err, &ue) && (ue.StatusCode == http.StatusUnauthorized || ue.StatusCode == http.StatusForbidden) {
			return nil, nil
		}
		return nil, err
	}

	role, _ := body["role"].(string)
	if role == "" {
		role = model.RoleUser
	}
	p := &model.Principal{
		SubjectID: stringField(body, "id"),
		Email:     stringField(body, "email"),
		Role:      role,
		Token:     token,
	}
	if p.SubjectID == "" && p.Email == "" {
		return nil, nil
	}
	return p, nil
}

// UpdateMe implements Capability.
func (c *Client) UpdateMe(ctx context.Context, token string, patch map[string]any) error {
	_, err := c.do(ctx, http.MethodPatch, c.appURL("auth/me"), bearerHeaders(token), patch, "auth.updateMe")
	return err
}

// Create implements Capability.
func (c *Client) Create(ctx context.Context, token, kind string, fields map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, c.appURL("entities/"+kind), bearerHeaders(token), fields, "entities.create",
		observability.AttrEntity.String(kind))
}

// CreatePrivileged implements Capability. The service-role key replaces the
// caller's credential entirely; the two are never combined on one request.
func (c *Client) CreatePrivileged(ctx context.Context, kind string, fields map[string]any) (map[string]any, error) {
	if c.cfg.ServiceRoleKey == "" {
		return nil, model.NewConfigMissingError("service role key")
	}
	h := http.Header{}
	h.Set("api_key", c.cfg.ServiceRoleKey)
	return c.do(ctx, http.MethodPost, c.appURL("entities/"+kind), h, fields, "entities.createPrivileged",
		observability.AttrEntity.String(kind))
}

// Invoke implements Capability.
func (c *Client) Invoke(ctx context.Context, token, name string, payload map[string]any) (map[string]any, error) {
	h := bearerHeaders(token)
	if c.cfg.FunctionsVersion != "" {
		h.Set("X-Functions-Version", c.cfg.FunctionsVersion)
	}
	return c.do(ctx, http.MethodPost, c.appURL("functions/"+name), h, payload, "functions.invoke",
		observability.AttrFunction.String(name))
}

// HealthCheck reports whether the BaaS is reachable. Any HTTP response, even
// an error status, counts as reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("baas unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// --- request execution ---

// do performs one logical BaaS operation with retry and breaker protection,
// returning the decoded JSON object body. One span covers all attempts.
func (c *Client) do(ctx context.Context, method, reqURL string, headers http.Header, body map[string]any, operation string, attrs ...attribute.KeyValue) (map[string]any, error) {
	ctx, span := observability.StartSpan(ctx, "baas."+operation,
		append([]attribute.KeyValue{observability.AttrService.String(serviceName)}, attrs...)...)
	result, err := c.doWithRetry(ctx, method, reqURL, headers, body, operation)
	observability.EndSpanWithError(span, err)
	return result, err
}

func (c *Client) doWithRetry(ctx context.Context, method, reqURL string, headers http.Header, body map[string]any, operation string) (map[string]any, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("baas: marshal body: %w", err)
		}
	}

	retryCfg := c.cfg.Retry
	maxAttempts := retryCfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	canRetry := method == http.MethodGet || !retryCfg.IdempotentOnly

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.RecordUpstreamRetry(serviceName)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDelay(retryCfg, attempt)):
			}
		}

		result, err := c.doOnce(ctx, method, reqURL, headers, bodyBytes, operation)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !canRetry || !isRetryable(err) {
			return nil, err
		}
		c.logger.Debug("baas: retrying after error",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// doOnce performs a single HTTP request with circuit breaker protection.
func (c *Client) doOnce(ctx context.Context, method, reqURL string, headers http.Header, bodyBytes []byte, operation string) (map[string]any, error) {
	if err := c.breaker.Allow(); err != nil {
		c.reportBreaker()
		return nil, &model.UpstreamError{Service: serviceName, Err: err}
	}

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("baas: build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	observability.InjectTraceHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.reportBreaker()
		if isConnectionError(err) || ctx.Err() != nil {
			return nil, &model.UpstreamError{Service: serviceName, Err: err}
		}
		return nil, fmt.Errorf("baas: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		c.breaker.RecordFailure()
		c.reportBreaker()
		return nil, fmt.Errorf("baas: read response: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordUpstreamRequest(serviceName, operation, resp.StatusCode, time.Since(start))
	}

	// 4xx are caller problems, not infrastructure failures.
	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
	c.reportBreaker()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	result := map[string]any{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("baas: decode response: %w", err)
		}
	}
	return result, nil
}

func (c *Client) appURL(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/apps/" + c.appID + "/" + path
}

func (c *Client) reportBreaker() {
	if c.metrics != nil {
		c.metrics.SetUpstreamBreakerState(serviceName, float64(c.breaker.State()))
	}
}

// --- helpers ---

func bearerHeaders(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// isRetryable reports whether an error is worth another attempt. Breaker-open
// errors and upstream 4xx are not; 5xx and transport errors are.
func isRetryable(err error) bool {
	var ue *model.UpstreamError
	if errors.As(err, &ue) {
		if ue.Err != nil {
			return !strings.Contains(ue.Err.Error(), "circuit breaker")
		}
		return ue.StatusCode >= 500
	}
	return true
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func backoffDelay(cfg config.RetryConfig, attempt int) time.Duration {
	initial := cfg.BackoffInitial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	mult := cfg.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}
	max := cfg.BackoffMax
	if max <= 0 {
		max = 2 * time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * mult)
		if delay > max {
			return max
		}
	}
	return delay
}
