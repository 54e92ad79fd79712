package model

import (
	"context"
	"testing"
)

func TestPrincipal_Validate_ok(t *testing.T) {
	p := &Principal{SubjectID: "user-1", Email: "reader@example.com", Token: "tok"}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestPrincipal_Validate_missingIdentity(t *testing.T) {
	p := &Principal{Token: "tok"}
	if err := p.Validate(); err == nil {
		t.Error("Validate() = nil, want error for missing identity")
	}
}

func TestPrincipal_Validate_missingToken(t *testing.T) {
	p := &Principal{SubjectID: "user-1"}
	if err := p.Validate(); err == nil {
		t.Error("Validate() = nil, want error for missing token")
	}
}

func TestPrincipal_IsAdmin(t *testing.T) {
	if (&Principal{Role: RoleUser}).IsAdmin() {
		t.Error("user role reported as admin")
	}
	if !(&Principal{Role: RoleAdmin}).IsAdmin() {
		t.Error("admin role not reported as admin")
	}
}

func TestPrincipalContext_roundTrip(t *testing.T) {
	p := &Principal{SubjectID: "user-1", Token: "tok"}
	ctx := WithPrincipal(context.Background(), p)
	got := PrincipalFrom(ctx)
	if got != p {
		t.Errorf("PrincipalFrom = %v, want %v", got, p)
	}
}

func TestPrincipalFrom_absent(t *testing.T) {
	if got := PrincipalFrom(context.Background()); got != nil {
		t.Errorf("PrincipalFrom(empty) = %v, want nil", got)
	}
}

func TestMustPrincipal_panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustPrincipal did not panic without a principal")
		}
	}()
	MustPrincipal(context.Background())
}
