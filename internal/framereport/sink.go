package framereport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// messageType is the fixed discriminator the host frame switches on.
const messageType = "app_error"

// envelope is the wire format of a host message.
type envelope struct {
	Type  string `json:"type"`
	Error Report `json:"error"`
}

// Sink delivers one report to the host. Implementations must not retry.
type Sink interface {
	Send(ctx context.Context, rep Report) error
}

// HTTPSink posts reports to the host frame's callback URL.
type HTTPSink struct {
	hostURL string
	client  *http.Client
}

// NewHTTPSink creates a sink posting to hostURL.
func NewHTTPSink(hostURL string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSink{
		hostURL: hostURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, rep Report) error {
	body, err := json.Marshal(envelope{Type: messageType, Error: rep})
	if err != nil {
		return fmt.Errorf("framereport: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hostURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("framereport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("framereport: post: %w", err)
	}
	// No acknowledgement is awaited; any response status is accepted.
	resp.Body.Close()
	return nil
}

// MemorySink records reports in memory. Test use only.
type MemorySink struct {
	mu      sync.Mutex
	reports []Report
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Send implements Sink.
func (s *MemorySink) Send(_ context.Context, rep Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, rep)
	return nil
}

// Reports returns a copy of everything sent so far.
func (s *MemorySink) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Report, len(s.reports))
	copy(out, s.reports)
	return out
}
