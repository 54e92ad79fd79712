// Package transport contains the HTTP router, middleware chain, and the five
// action handlers of the gateway.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shelfloop/gateway/model"
)

// statusForCode maps gateway error codes to HTTP status codes. Configuration
// and upstream failures surface as 500: callers cannot act on the distinction,
// operators read it from the error message and the logs.
var statusForCode = map[string]int{
	model.ErrBadRequest:    http.StatusBadRequest,
	model.ErrUnauthorized:  http.StatusUnauthorized,
	model.ErrForbidden:     http.StatusForbidden,
	model.ErrConfigMissing: http.StatusInternalServerError,
	model.ErrUpstream:      http.StatusInternalServerError,
	model.ErrInternalError: http.StatusInternalServerError,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteSuccess writes a 200 response of the form {"success":true, ...payload}.
func WriteSuccess(w http.ResponseWriter, payload map[string]any) {
	body := make(map[string]any, len(payload)+1)
	body["success"] = true
	for k, v := range payload {
		body[k] = v
	}
	WriteJSON(w, http.StatusOK, body)
}

// WriteError maps any error to the {"error": "<message>"} wire shape. A
// *model.GatewayError selects its own status; everything else, including
// upstream failures, becomes a 500 with the underlying message exposed.
func WriteError(w http.ResponseWriter, err error) {
	var ge *model.GatewayError
	if !errors.As(err, &ge) {
		ge = model.NewInternalError(err)
	}

	status := statusForCode[ge.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, ge)
}
