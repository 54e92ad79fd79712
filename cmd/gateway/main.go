// Package main is the entry point for the Shelfloop gateway server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/shelfloop/gateway/internal/baas"
	"github.com/shelfloop/gateway/internal/board"
	"github.com/shelfloop/gateway/internal/config"
	"github.com/shelfloop/gateway/internal/framereport"
	"github.com/shelfloop/gateway/internal/observability"
	"github.com/shelfloop/gateway/internal/session"
	"github.com/shelfloop/gateway/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "shelfloop-gateway", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Session parameters resolve once, before any client is built.
	store, err := buildSessionStore(ctx, cfg.Session.Store, logger)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return 1
	}
	defer store.Close()

	params, _, err := session.Resolve(ctx, cfg.Session, store, logger)
	if err != nil {
		logger.Error("session parameter resolution failed", zap.Error(err))
		return 1
	}
	if params.ServerURL != "" {
		cfg.BaaS.BaseURL = params.ServerURL
	}
	if params.FunctionsVersion != "" {
		cfg.BaaS.FunctionsVersion = params.FunctionsVersion
	}
	appID := cfg.BaaS.AppID
	if appID == "" {
		appID = params.AppID
	}
	logger.Info("session resolved",
		zap.String("app_id", appID),
		zap.String("server_url", cfg.BaaS.BaseURL),
		zap.String("from_url", params.FromURL),
	)

	baasClient := baas.NewClient(cfg.BaaS, appID,
		baas.WithMetrics(metrics),
		baas.WithLogger(logger),
	)
	boardClient := board.NewClient(cfg.Board)

	// Host-frame error reporting is active only when a host URL is
	// configured, the server-side analog of the embedding check.
	var sink framereport.Sink
	if cfg.Reporter.HostURL != "" {
		sink = framereport.NewHTTPSink(cfg.Reporter.HostURL, cfg.Reporter.Timeout)
	}
	reporter := framereport.New(sink,
		framereport.WithMetrics(metrics),
		framereport.WithLogger(logger),
	)
	uninstall := reporter.Install()
	defer uninstall()

	authn, err := buildAuthenticator(cfg.Identity, baasClient, logger)
	if err != nil {
		logger.Error("authenticator initialization failed", zap.Error(err))
		return 1
	}

	readiness := observability.ReadinessChecks{
		BoardTokenConfigured:     func() bool { return cfg.Board.AccessToken != "" },
		ServiceRoleKeyConfigured: func() bool { return cfg.BaaS.ServiceRoleKey != "" },
		SessionStore:             store,
		BaaS:                     baasClient,
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:        cfg,
		Handlers:      transport.NewHandlers(cfg, baasClient, boardClient, metrics, logger),
		Authenticator: authn,
		Reporter:      reporter,
		Metrics:       metrics,
		Logger:        logger,
		Readiness:     readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("identity_mode", cfg.Identity.Mode),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildAuthenticator selects the identity strategy: local JWT verification
// against a JWKS endpoint, or delegating every token to the BaaS auth
// capability.
func buildAuthenticator(cfg config.IdentityConfig, baasClient *baas.Client, logger *zap.Logger) (transport.Authenticator, error) {
	switch cfg.Mode {
	case "jwt":
		jwks := transport.NewJWKSClient(cfg.JWKSURL, cfg.JWKSCacheTTL, logger)
		return transport.NewJWTAuthenticator(cfg, jwks, logger), nil
	case "remote", "":
		return baasClient, nil
	default:
		return nil, fmt.Errorf("unsupported identity mode: %q", cfg.Mode)
	}
}

// buildSessionStore creates the session parameter store based on config.
func buildSessionStore(ctx context.Context, cfg config.SessionStoreConfig, logger *zap.Logger) (session.Store, error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			logger.Warn("session store DSN not configured, using in-memory store")
			return session.NewMemoryStore(), nil
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("session store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("session store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("session store: ping: %w", err)
		}

		store, err := session.NewPgStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported session store driver: %q", cfg.Driver)
	}
}
