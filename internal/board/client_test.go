package board

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shelfloop/gateway/internal/config"
	"github.com/shelfloop/gateway/model"
)

func testConfig(baseURL string) config.BoardConfig {
	return config.BoardConfig{
		BaseURL:     baseURL,
		BoardID:     "board-77",
		Timeout:     2 * time.Second,
		AccessToken: "tok-board",
	}
}

func TestListPinsDecodesDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pins" {
			t.Errorf("path = %q, want /pins", r.URL.Path)
		}
		if got := r.URL.Query().Get("access_token"); got != "tok-board" {
			t.Errorf("access_token = %q, want tok-board", got)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want no auth header", got)
		}
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q, want 10", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"id":          "p-1",
					"image":       map[string]any{"original": map[string]any{"url": "https://img/1.jpg"}},
					"url":         "https://board/pin/p-1",
					"description": "Dune by Frank Herbert",
					"created_at":  "2026-08-01T10:00:00Z",
					"board":       "board-77",
				},
				{
					"id":          "p-2",
					"image":       map[string]any{"original": map[string]any{"url": "https://img/2.jpg"}},
					"description": "Hyperion",
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	pins, err := c.ListPins(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListPins: %v", err)
	}
	if len(pins) != 2 {
		t.Fatalf("len(pins) = %d, want 2", len(pins))
	}
	if pins[0].ID != "p-1" || pins[0].Description != "Dune by Frank Herbert" {
		t.Errorf("pins[0] = %+v", pins[0])
	}
	if pins[0].ImageURL != "https://img/1.jpg" {
		t.Errorf("pins[0].ImageURL = %q, want nested image.original.url", pins[0].ImageURL)
	}
	if pins[0].URL != "https://board/pin/p-1" {
		t.Errorf("pins[0].URL = %q", pins[0].URL)
	}
	if pins[1].ImageURL != "https://img/2.jpg" {
		t.Errorf("pins[1].ImageURL = %q", pins[1].ImageURL)
	}
}

func TestListPinsWithoutToken(t *testing.T) {
	cfg := testConfig("http://localhost:0")
	cfg.AccessToken = ""
	c := NewClient(cfg)

	_, err := c.ListPins(context.Background(), 10)
	var ge *model.GatewayError
	if !errors.As(err, &ge) || ge.Code != model.ErrConfigMissing {
		t.Fatalf("error = %v, want CONFIG_MISSING", err)
	}
}

func TestCreatePinFillsBoardAndURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pins" {
			t.Errorf("%s %s, want POST /pins", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("access_token"); got != "tok-board" {
			t.Errorf("access_token = %q, want tok-board", got)
		}
		var req CreatePinRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Board != "board-77" {
			t.Errorf("board = %q, want board-77 (default)", req.Board)
		}
		if req.ImageURL != "https://img/cover.jpg" {
			t.Errorf("image_url = %q", req.ImageURL)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "p-9"})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	out, err := c.CreatePin(context.Background(), CreatePinRequest{
		Note:     "Currently reading: Dune",
		ImageURL: "https://img/cover.jpg",
	})
	if err != nil {
		t.Fatalf("CreatePin: %v", err)
	}
	if out.ID != "p-9" {
		t.Errorf("ID = %q, want p-9", out.ID)
	}
	if out.URL != "https://www.pinterest.com/pin/p-9/" {
		t.Errorf("URL = %q", out.URL)
	}
}

func TestCreatePinUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"board not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.CreatePin(context.Background(), CreatePinRequest{ImageURL: "https://img/x.jpg"})
	var ue *model.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %T, want *model.UpstreamError", err)
	}
	if ue.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", ue.StatusCode)
	}
}
