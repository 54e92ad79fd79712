package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/shelfloop/gateway/internal/board"
	"github.com/shelfloop/gateway/internal/config"
	"github.com/shelfloop/gateway/model"
)

// stubAuthenticator resolves fixed tokens to fixed principals.
type stubAuthenticator struct {
	principals map[string]*model.Principal
	err        error
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*model.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.principals[token], nil
}

// stubCapability records calls and returns scripted results.
type stubCapability struct {
	createCalls     int
	createErrOnCall int // 1-based call index that fails; 0 means never
	created         []map[string]any

	privilegedCalls int
	privilegedKind  string
	privilegedErr   error

	invokeCalls int
	invokeName  string
	invokeErr   error

	updateMeCalls int
	updateMePatch map[string]any
	updateMeErr   error
}

func (s *stubCapability) Authenticate(context.Context, string) (*model.Principal, error) {
	return nil, errors.New("not used in handler tests")
}

func (s *stubCapability) Create(_ context.Context, _, kind string, fields map[string]any) (map[string]any, error) {
	s.createCalls++
	if s.createErrOnCall > 0 && s.createCalls == s.createErrOnCall {
		return nil, &model.UpstreamError{Service: "baas", StatusCode: 500, Body: "boom"}
	}
	rec := map[string]any{"id": kind, "fields": fields}
	s.created = append(s.created, rec)
	return rec, nil
}

func (s *stubCapability) CreatePrivileged(_ context.Context, kind string, fields map[string]any) (map[string]any, error) {
	s.privilegedCalls++
	s.privilegedKind = kind
	if s.privilegedErr != nil {
		return nil, s.privilegedErr
	}
	out := map[string]any{"id": "rec-1"}
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (s *stubCapability) Invoke(_ context.Context, _, name string, _ map[string]any) (map[string]any, error) {
	s.invokeCalls++
	s.invokeName = name
	if s.invokeErr != nil {
		return nil, s.invokeErr
	}
	return map[string]any{"delivered": true}, nil
}

func (s *stubCapability) UpdateMe(_ context.Context, _ string, patch map[string]any) error {
	s.updateMeCalls++
	s.updateMePatch = patch
	return s.updateMeErr
}

// stubBoard records calls and returns scripted pins.
type stubBoard struct {
	pins      []board.Pin
	listErr   error
	listCalls int

	createCalls int
	createReq   board.CreatePinRequest
	createErr   error
}

func (s *stubBoard) ListPins(context.Context, int) ([]board.Pin, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.pins, nil
}

func (s *stubBoard) CreatePin(_ context.Context, req board.CreatePinRequest) (*board.CreatePinResult, error) {
	s.createCalls++
	s.createReq = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &board.CreatePinResult{ID: "pin-1", URL: "https://www.pinterest.com/pin/pin-1/"}, nil
}

type testEnv struct {
	srv        *httptest.Server
	capability *stubCapability
	board      *stubBoard
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	capability := &stubCapability{}
	brd := &stubBoard{}
	cfg := config.Defaults()
	cfg.Board.AccessToken = "tok-board"

	authn := &stubAuthenticator{principals: map[string]*model.Principal{
		"user-token":  {SubjectID: "u-1", Email: "reader@example.com", Role: model.RoleUser, Token: "user-token"},
		"admin-token": {SubjectID: "u-2", Email: "admin@example.com", Role: model.RoleAdmin, Token: "admin-token"},
	}}

	router := NewRouter(Dependencies{
		Config:        cfg,
		Handlers:      NewHandlers(cfg, capability, brd, nil, zap.NewNop()),
		Authenticator: authn,
		Logger:        zap.NewNop(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, capability: capability, board: brd}
}

func (e *testEnv) post(t *testing.T, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestHandlersRejectMissingCredentials(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{
		"/functions/importFromBoard",
		"/functions/shareToBoard",
		"/functions/sendManualNotification",
		"/functions/updatePushToken",
		"/functions/unlockBadge",
	}
	for _, path := range paths {
		resp, body := env.post(t, path, "", `{}`)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, resp.StatusCode)
		}
		if body["error"] != "Unauthorized" {
			t.Errorf("%s: error = %v, want Unauthorized", path, body["error"])
		}
	}

	if env.board.listCalls != 0 || env.board.createCalls != 0 {
		t.Errorf("board calls = %d/%d, want none", env.board.listCalls, env.board.createCalls)
	}
	if env.capability.createCalls+env.capability.invokeCalls+env.capability.updateMeCalls+env.capability.privilegedCalls != 0 {
		t.Error("capability was called for unauthenticated requests")
	}
}

func TestHandlersRejectUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/updatePushToken", "bogus", `{"push_token":"x"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body["error"] != "Unauthorized" {
		t.Errorf("error = %v", body["error"])
	}
	if env.capability.updateMeCalls != 0 {
		t.Error("capability was called for an unresolvable token")
	}
}

func TestAdminHandlersRejectNonAdmin(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/functions/sendManualNotification", "/functions/unlockBadge"} {
		resp, body := env.post(t, path, "user-token", `{}`)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", path, resp.StatusCode)
		}
		if body["error"] != "Forbidden: admin access required" {
			t.Errorf("%s: error = %v", path, body["error"])
		}
	}
	if env.capability.invokeCalls != 0 || env.capability.privilegedCalls != 0 {
		t.Error("delegated call issued for forbidden request")
	}
}

func TestImportSkipsFailedItems(t *testing.T) {
	env := newTestEnv(t)
	env.board.pins = []board.Pin{
		{ID: "p-1", Description: "Dune", ImageURL: "https://img/1.jpg", URL: "https://board/pin/p-1"},
		{ID: "p-2", Description: "Hyperion", ImageURL: "https://img/2.jpg", URL: "https://board/pin/p-2"},
		{ID: "p-3", Description: "Solaris", ImageURL: "https://img/3.jpg", URL: "https://board/pin/p-3"},
	}
	env.capability.createErrOnCall = 2

	resp, body := env.post(t, "/functions/importFromBoard", "user-token", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["imported"] != float64(2) || body["total"] != float64(3) {
		t.Errorf("imported/total = %v/%v, want 2/3", body["imported"], body["total"])
	}
	if got := len(env.capability.created); got != 2 {
		t.Fatalf("successful creates = %d, want 2", got)
	}
	if env.capability.createCalls != 3 {
		t.Errorf("create attempts = %d, want 3", env.capability.createCalls)
	}
	first := env.capability.created[0]["fields"].(map[string]any)
	if first["title"] != "Dune" || first["source_url"] != "https://board/pin/p-1" {
		t.Errorf("created fields = %v, want pin description as title and pin url as source_url", first)
	}
}

func TestImportBoardFailureIsBatchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.board.listErr = &model.UpstreamError{Service: "board", StatusCode: 502, Body: "bad gateway"}

	resp, body := env.post(t, "/functions/importFromBoard", "user-token", `{}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if body["error"] == nil || body["error"] == "" {
		t.Error("error message missing")
	}
	if env.capability.createCalls != 0 {
		t.Error("entity creates issued after board failure")
	}
}

func TestShareRequiresImageURL(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/shareToBoard", "user-token", `{"book_title":"Dune"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "image_url are required" {
		t.Errorf("error = %v, want %q", body["error"], "image_url are required")
	}
	if env.board.createCalls != 0 {
		t.Error("board called despite validation failure")
	}
}

func TestShareListsAllMissingFields(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/shareToBoard", "user-token", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "image_url, book_title are required" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestShareCreatesPin(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/shareToBoard", "user-token",
		`{"image_url":"https://img/cover.jpg","book_title":"Dune","description":"A classic."}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["pin_id"] != "pin-1" {
		t.Errorf("pin_id = %v", body["pin_id"])
	}
	if body["pin_url"] != "https://www.pinterest.com/pin/pin-1/" {
		t.Errorf("pin_url = %v", body["pin_url"])
	}
	if env.board.createReq.Note != "Dune\n\nA classic." {
		t.Errorf("note = %q", env.board.createReq.Note)
	}
}

func TestNotifyInvokesDispatchFunction(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/sendManualNotification", "admin-token",
		`{"recipient":"reader@example.com","title":"New badge","body":"You earned Bookworm"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["message"] != "Notification sent" {
		t.Errorf("message = %v", body["message"])
	}
	result, ok := body["result"].(map[string]any)
	if !ok || result["delivered"] != true {
		t.Errorf("result = %v", body["result"])
	}
	if env.capability.invokeName != "sendPushNotification" {
		t.Errorf("invoked function = %q", env.capability.invokeName)
	}
}

func TestNotifyValidatesFields(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/sendManualNotification", "admin-token", `{"title":"x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "recipient, body are required" {
		t.Errorf("error = %v", body["error"])
	}
	if env.capability.invokeCalls != 0 {
		t.Error("dispatch invoked despite validation failure")
	}
}

func TestUpdatePushToken(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/updatePushToken", "user-token", `{"push_token":"device-token-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["message"] != "Push token updated" {
		t.Errorf("message = %v", body["message"])
	}
	if env.capability.updateMePatch["push_token"] != "device-token-1" {
		t.Errorf("patch = %v", env.capability.updateMePatch)
	}
}

func TestUpdatePushTokenRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/updatePushToken", "user-token", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "push_token are required" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestUnlockBadgeUsesElevatedCredential(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/unlockBadge", "admin-token",
		`{"user_email":"reader@example.com","badge_name":"Bookworm"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	badge, ok := body["badge"].(map[string]any)
	if !ok {
		t.Fatalf("badge = %v", body["badge"])
	}
	if badge["badge_name"] != "Bookworm" || badge["user_email"] != "reader@example.com" {
		t.Errorf("badge = %v", badge)
	}
	if env.capability.privilegedCalls != 1 || env.capability.privilegedKind != "BadgeUnlock" {
		t.Errorf("privileged calls = %d kind = %q", env.capability.privilegedCalls, env.capability.privilegedKind)
	}
	if env.capability.createCalls != 0 {
		t.Error("caller-privilege create used for badge unlock")
	}
}

func TestMissingBoardTokenSurfacesAsConfigError(t *testing.T) {
	env := newTestEnv(t)
	env.board.listErr = model.NewConfigMissingError("board access token")

	resp, body := env.post(t, "/functions/importFromBoard", "user-token", `{}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if body["error"] != "board access token not configured" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestMalformedJSONBody(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/functions/shareToBoard", "user-token", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "invalid JSON body" {
		t.Errorf("error = %v", body["error"])
	}
}
