package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

// Options controls a single parameter resolution.
type Options struct {
	// Default is returned and persisted when the boot URL does not carry the
	// parameter. An empty default is treated as absent.
	Default string
	// RemoveFromURL strips the parameter from the resolver's current URL
	// after it has been read, leaving path, fragment, and the order of the
	// remaining query keys untouched.
	RemoveFromURL bool
}

// Resolver resolves named parameters with a fixed precedence: the boot URL's
// query string wins, then an explicit default, then the persistent store.
// A value found in the URL or supplied as a default is persisted immediately,
// so later resolutions (and later runs, with a durable store) see it even
// after it is scrubbed from the URL.
type Resolver struct {
	mu        sync.Mutex
	current   *url.URL
	store     Store
	namespace string
	logger    *zap.Logger
}

// NewResolver creates a Resolver over the given boot URL. An empty bootURL is
// valid: every resolution then falls through to default and store.
func NewResolver(bootURL string, store Store, namespace string, logger *zap.Logger) (*Resolver, error) {
	var u *url.URL
	if bootURL != "" {
		var err error
		u, err = url.Parse(bootURL)
		if err != nil {
			return nil, fmt.Errorf("session: parse boot url: %w", err)
		}
	}
	if namespace == "" {
		namespace = "base44"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		current:   u,
		store:     store,
		namespace: namespace,
		logger:    logger,
	}, nil
}

// Resolve returns the value for the named parameter, or "" when no source
// supplies one. Absence is not an error.
func (r *Resolver) Resolve(ctx context.Context, name string, opts Options) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.storageKey(name)

	if r.current != nil {
		q := r.current.Query()
		if q.Has(name) {
			value := q.Get(name)
			if opts.RemoveFromURL {
				removeQueryParam(r.current, name)
			}
			if err := r.store.Set(ctx, key, value); err != nil {
				r.logger.Warn("session: persisting parameter failed",
					zap.String("key", key), zap.Error(err))
			}
			return value, nil
		}
	}

	if opts.Default != "" {
		if err := r.store.Set(ctx, key, opts.Default); err != nil {
			r.logger.Warn("session: persisting default failed",
				zap.String("key", key), zap.Error(err))
		}
		return opts.Default, nil
	}

	value, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("session: reading %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

// CurrentURL returns the resolver's URL after any scrubbing so far. Empty when
// the resolver was built without a boot URL.
func (r *Resolver) CurrentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.current.String()
}

// storageKey derives the namespaced store key for a parameter name:
// mixed-case names become lowercase underscore-delimited, e.g. accessToken
// maps to base44_access_token.
func (r *Resolver) storageKey(name string) string {
	return r.namespace + "_" + toSnake(name)
}

func toSnake(name string) string {
	var b strings.Builder
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// removeQueryParam deletes exactly one key from u's query string in place.
// url.Values.Encode sorts keys alphabetically, which would reorder the
// remaining parameters, so the raw query is rewritten segment by segment
// instead.
func removeQueryParam(u *url.URL, name string) {
	if u.RawQuery == "" {
		return
	}
	segments := strings.Split(u.RawQuery, "&")
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		rawKey := seg
		if i := strings.IndexByte(seg, '='); i >= 0 {
			rawKey = seg[:i]
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		if key == name {
			continue
		}
		kept = append(kept, seg)
	}
	u.RawQuery = strings.Join(kept, "&")
}
