package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/shelfloop/gateway/internal/config"
)

// Parameters holds the five session values resolved once at startup.
type Parameters struct {
	AppID            string
	ServerURL        string
	AccessToken      string
	FromURL          string
	FunctionsVersion string
}

// Resolve builds the session parameter set from the boot URL, the store, and
// the configured defaults. The access token is always stripped from the URL
// once read; the origin URL defaults to the boot URL as it stands after that
// strip.
func Resolve(ctx context.Context, cfg config.SessionConfig, store Store, logger *zap.Logger) (*Parameters, *Resolver, error) {
	r, err := NewResolver(cfg.BootURL, store, cfg.Namespace, logger)
	if err != nil {
		return nil, nil, err
	}

	p := &Parameters{}

	if p.AppID, err = r.Resolve(ctx, "app_id", Options{Default: cfg.DefaultAppID}); err != nil {
		return nil, nil, err
	}
	if p.ServerURL, err = r.Resolve(ctx, "server_url", Options{Default: cfg.DefaultServerURL}); err != nil {
		return nil, nil, err
	}
	if p.AccessToken, err = r.Resolve(ctx, "access_token", Options{RemoveFromURL: true}); err != nil {
		return nil, nil, err
	}
	if p.FromURL, err = r.Resolve(ctx, "from_url", Options{Default: r.CurrentURL()}); err != nil {
		return nil, nil, err
	}
	if p.FunctionsVersion, err = r.Resolve(ctx, "functions_version", Options{}); err != nil {
		return nil, nil, err
	}

	return p, r, nil
}
