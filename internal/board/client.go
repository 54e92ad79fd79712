// Package board is the client for the social image-board API used for book
// imports and shares. The gateway owns a single server-side access token for
// the board; callers never present board credentials of their own.
package board

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shelfloop/gateway/internal/config"
	"github.com/shelfloop/gateway/model"
)

const serviceName = "board"

// Pin is a single board entry as the import and share flows see it, flattened
// from the board API's nested wire shape.
type Pin struct {
	ID          string
	Description string
	ImageURL    string
	URL         string
	Board       string
	CreatedAt   string
}

// pinListEnvelope is the wire shape of a pin listing: records under a "data"
// key, with the image address nested two levels deep.
type pinListEnvelope struct {
	Data []struct {
		ID    string `json:"id"`
		Image struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
		} `json:"image"`
		URL         string `json:"url"`
		Description string `json:"description"`
		CreatedAt   string `json:"created_at"`
		Board       string `json:"board"`
	} `json:"data"`
}

// CreatePinRequest is the payload for posting a new pin.
type CreatePinRequest struct {
	Board    string `json:"board"`
	Note     string `json:"note"`
	ImageURL string `json:"image_url"`
	Link     string `json:"link,omitempty"`
}

// CreatePinResult identifies a freshly created pin. The API returns only the
// id; URL is derived from it.
type CreatePinResult struct {
	ID  string `json:"id"`
	URL string `json:"-"`
}

// Lister fetches pins from the configured board.
type Lister interface {
	ListPins(ctx context.Context, limit int) ([]Pin, error)
}

// Poster creates pins on the board.
type Poster interface {
	CreatePin(ctx context.Context, req CreatePinRequest) (*CreatePinResult, error)
}

// Client talks to the board API over HTTP. The board expects its access token
// as an access_token query parameter, not an Authorization header.
type Client struct {
	cfg  config.BoardConfig
	http *resty.Client
}

// NewClient creates a board client from configuration.
func NewClient(cfg config.BoardConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			// Retry reads only; pin creation is not idempotent.
			return r.Request.Method == http.MethodGet && r.StatusCode() >= 500
		})
	return &Client{cfg: cfg, http: rc}
}

// Configured reports whether the board access token is present. Handlers that
// need the board check this before doing any work.
func (c *Client) Configured() bool {
	return c.cfg.AccessToken != ""
}

// ListPins fetches up to limit pins for the authenticated board account.
func (c *Client) ListPins(ctx context.Context, limit int) ([]Pin, error) {
	if !c.Configured() {
		return nil, model.NewConfigMissingError("board access token")
	}
	if limit < 1 {
		limit = 25
	}

	var out pinListEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", c.cfg.AccessToken).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetQueryParam("fields", "id,image,url,description,created_at,board").
		SetResult(&out).
		Get("/pins")
	if err != nil {
		return nil, fmt.Errorf("board: list pins: %w", err)
	}
	if resp.IsError() {
		return nil, upstreamError(resp)
	}

	pins := make([]Pin, 0, len(out.Data))
	for _, d := range out.Data {
		pins = append(pins, Pin{
			ID:          d.ID,
			Description: d.Description,
			ImageURL:    d.Image.Original.URL,
			URL:         d.URL,
			Board:       d.Board,
			CreatedAt:   d.CreatedAt,
		})
	}
	return pins, nil
}

// CreatePin posts a new pin to the board.
func (c *Client) CreatePin(ctx context.Context, req CreatePinRequest) (*CreatePinResult, error) {
	if !c.Configured() {
		return nil, model.NewConfigMissingError("board access token")
	}
	if req.Board == "" {
		req.Board = c.cfg.BoardID
	}

	var out CreatePinResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", c.cfg.AccessToken).
		SetBody(req).
		SetResult(&out).
		Post("/pins")
	if err != nil {
		return nil, fmt.Errorf("board: create pin: %w", err)
	}
	if resp.IsError() {
		return nil, upstreamError(resp)
	}
	if out.ID != "" {
		out.URL = pinURL(out.ID)
	}
	return &out, nil
}

// pinURL builds the public pin page address from an id.
func pinURL(id string) string {
	return "https://www.pinterest.com/pin/" + id + "/"
}

func upstreamError(resp *resty.Response) error {
	return &model.UpstreamError{
		Service:    serviceName,
		StatusCode: resp.StatusCode(),
		Body:       string(resp.Body()),
	}
}
