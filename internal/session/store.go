// Package session resolves the gateway's session parameters (app id, server
// URL, access token, origin URL, functions version) from the boot URL, a
// persistent store, and compiled-in defaults, in that precedence order.
package session

import "context"

// Store persists resolved session parameters under their derived keys.
type Store interface {
	// Get returns the stored value for key. ok is false when the key has
	// never been written.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// HealthCheck reports whether the store is usable.
	HealthCheck(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}
