package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewMissingFieldsError_message(t *testing.T) {
	err := NewMissingFieldsError([]string{"image_url", "board"})
	if err.Message != "image_url, board are required" {
		t.Errorf("message = %q, want %q", err.Message, "image_url, board are required")
	}
	if err.Code != ErrBadRequest {
		t.Errorf("code = %q, want %q", err.Code, ErrBadRequest)
	}
}

func TestNewConfigMissingError_message(t *testing.T) {
	err := NewConfigMissingError("board access token")
	if err.Message != "board access token not configured" {
		t.Errorf("message = %q", err.Message)
	}
}

func TestNewInternalError_exposesUnderlyingMessage(t *testing.T) {
	err := NewInternalError(fmt.Errorf("connection reset"))
	if err.Message != "connection reset" {
		t.Errorf("message = %q, want underlying message", err.Message)
	}
}

func TestNewInternalError_nil(t *testing.T) {
	err := NewInternalError(nil)
	if err.Message == "" {
		t.Error("message is empty for nil cause")
	}
}

func TestUpstreamError_Error(t *testing.T) {
	e := &UpstreamError{Service: "board", StatusCode: 503, Body: "down"}
	if e.Error() != "board returned status 503: down" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestResponseStatus_direct(t *testing.T) {
	e := &UpstreamError{Service: "baas", StatusCode: 402}
	if got := ResponseStatus(e); got != 402 {
		t.Errorf("ResponseStatus = %d, want 402", got)
	}
}

func TestResponseStatus_wrapped(t *testing.T) {
	inner := &UpstreamError{Service: "baas", StatusCode: 402}
	wrapped := fmt.Errorf("invoke failed: %w", inner)
	if got := ResponseStatus(wrapped); got != 402 {
		t.Errorf("ResponseStatus(wrapped) = %d, want 402", got)
	}
}

func TestResponseStatus_none(t *testing.T) {
	if got := ResponseStatus(errors.New("plain")); got != 0 {
		t.Errorf("ResponseStatus(plain) = %d, want 0", got)
	}
}
