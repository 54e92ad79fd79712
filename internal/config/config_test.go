package config

import (
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Identity.Mode != "jwt" {
		t.Errorf("Identity.Mode = %q, want jwt", cfg.Identity.Mode)
	}
	if cfg.Identity.Issuer != "https://auth.example.com" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if cfg.BaaS.BaseURL != "https://base44.app/api" {
		t.Errorf("BaaS.BaseURL = %q", cfg.BaaS.BaseURL)
	}
	if cfg.BaaS.AppID != "app-123" {
		t.Errorf("BaaS.AppID = %q", cfg.BaaS.AppID)
	}
	if cfg.BaaS.Retry.MaxAttempts != 3 {
		t.Errorf("BaaS.Retry.MaxAttempts = %d, want 3", cfg.BaaS.Retry.MaxAttempts)
	}
	if cfg.Board.BoardID != "reading-inspo" {
		t.Errorf("Board.BoardID = %q", cfg.Board.BoardID)
	}
	if cfg.Board.Timeout != 8*time.Second {
		t.Errorf("Board.Timeout = %v, want 8s", cfg.Board.Timeout)
	}
	if cfg.Session.Namespace != "base44" {
		t.Errorf("Session.Namespace = %q", cfg.Session.Namespace)
	}
	if cfg.Reporter.HostURL != "https://host.example.com/frame-errors" {
		t.Errorf("Reporter.HostURL = %q", cfg.Reporter.HostURL)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_baas(t *testing.T) {
	_, err := Load("testdata/missing_baas.yaml")
	if err == nil {
		t.Fatal("Load() without baas settings should return error")
	}
}

func TestLoad_bad_identity_mode(t *testing.T) {
	_, err := Load("testdata/bad_identity_mode.yaml")
	if err == nil {
		t.Fatal("Load() with unknown identity mode should return error")
	}
}

func TestLoad_boardTokenFromEnv(t *testing.T) {
	t.Setenv("SHELFGATE_BOARD_ACCESS_TOKEN", "pin-token")
	t.Setenv("SHELFGATE_SERVICE_ROLE_KEY", "svc-key")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Board.AccessToken != "pin-token" {
		t.Errorf("Board.AccessToken = %q, want pin-token", cfg.Board.AccessToken)
	}
	if cfg.BaaS.ServiceRoleKey != "svc-key" {
		t.Errorf("BaaS.ServiceRoleKey = %q, want svc-key", cfg.BaaS.ServiceRoleKey)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv("SHELFGATE_SERVER_PORT", "7070")
	t.Setenv("SHELFGATE_BAAS_APP_ID", "app-override")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070 from env", cfg.Server.Port)
	}
	if cfg.BaaS.AppID != "app-override" {
		t.Errorf("BaaS.AppID = %q, want app-override from env", cfg.BaaS.AppID)
	}
}

func TestValidate_missingSecretsAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.BaaS.BaseURL = "https://base44.app/api"
	cfg.BaaS.AppID = "app-1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v; absent secrets must not fail validation", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Identity.Mode != "remote" {
		t.Errorf("default Identity.Mode = %q, want remote", cfg.Identity.Mode)
	}
	if cfg.Push.DispatchFunction != "sendPushNotification" {
		t.Errorf("default Push.DispatchFunction = %q", cfg.Push.DispatchFunction)
	}
	if cfg.Session.Namespace != "base44" {
		t.Errorf("default Session.Namespace = %q, want base44", cfg.Session.Namespace)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}
