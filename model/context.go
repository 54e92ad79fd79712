// Package model contains the core domain types shared across the gateway:
// the authenticated principal, the gateway error taxonomy, and the payloads
// exchanged with the backend-as-a-service and the board API.
package model

import (
	"context"
	"errors"
	"fmt"
)

// Role names recognised by the gateway. The BaaS is the source of truth for
// a principal's role; the gateway only compares against these values.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Principal carries the identity of an authenticated caller for the lifetime
// of a single request. It is fetched from the BaaS per request, never cached,
// and is immutable after construction.
type Principal struct {
	SubjectID string
	Email     string
	Role      string
	// Token is the caller's raw bearer token, forwarded to the BaaS for
	// operations performed with the caller's own privilege.
	Token string
}

// Validate checks that all mandatory fields are present.
func (p *Principal) Validate() error {
	var errs []error
	if p.SubjectID == "" && p.Email == "" {
		errs = append(errs, fmt.Errorf("SubjectID or Email is required"))
	}
	if p.Token == "" {
		errs = append(errs, fmt.Errorf("Token is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IsAdmin returns true if the principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type principalKey struct{}

// WithPrincipal attaches a Principal to the given context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the Principal from the context, or returns nil if
// not present.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// MustPrincipal extracts the Principal from the context, panicking if it is
// not present. Safe to call in handlers that are guaranteed to run behind the
// authentication middleware.
func MustPrincipal(ctx context.Context) *Principal {
	p := PrincipalFrom(ctx)
	if p == nil {
		panic("model: no Principal in context; handler mounted outside auth middleware")
	}
	return p
}
