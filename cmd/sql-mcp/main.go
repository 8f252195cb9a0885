package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/ddellecasedata/sql-mcp/instrumentation"
	"github.com/ddellecasedata/sql-mcp/inventory"
	"github.com/ddellecasedata/sql-mcp/mcp"
	"github.com/ddellecasedata/sql-mcp/security"
	"github.com/ddellecasedata/sql-mcp/server"
	"github.com/ddellecasedata/sql-mcp/storage/memory"
)

const serverVersion = "1.0.0"

const usageInstructions = "Household inventory server. Use the search tool to find food items, " +
	"fetch to read a full record, add_food_item to stock new items, list_expiring to see what " +
	"needs eating soon, and list_tasks for open household tasks."

type config struct {
	Port         int    `env:"PORT,default=10000"`
	BaseURL      string `env:"BASE_URL"`
	DatabasePath string `env:"DATABASE_PATH,default=inventory.db"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`

	AccessTokenTTL  int64 `env:"ACCESS_TOKEN_TTL,default=2592000"`
	RequirePKCE     bool  `env:"REQUIRE_PKCE,default=false"`
	AllowInsecure   bool  `env:"ALLOW_INSECURE_HTTP,default=false"`
	TrustProxy      bool  `env:"TRUST_PROXY,default=false"`
	MaxClientsPerIP int   `env:"MAX_CLIENTS_PER_IP,default=10"`
	RateLimitRPS    int   `env:"RATE_LIMIT_RPS,default=10"`
	RateLimitBurst  int   `env:"RATE_LIMIT_BURST,default=20"`

	DisableAuth            bool   `env:"DISABLE_AUTH,default=false"`
	DebugSubject           string `env:"DEBUG_SUBJECT,default=debug-user"`
	AllowSessionRecovery   bool   `env:"ALLOW_SESSION_RECOVERY,default=true"`
	InstrumentationEnabled bool   `env:"INSTRUMENTATION_ENABLED,default=true"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return fmt.Errorf("decoding environment: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    "sql-mcp",
		ServiceVersion: serverVersion,
		Enabled:        cfg.InstrumentationEnabled,
	})
	if err != nil {
		return fmt.Errorf("initializing instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}()

	store := memory.New(memory.WithLogger(logger))
	defer store.Stop()
	store.SetInstrumentation(inst)

	inv, err := inventory.Open(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("opening inventory database: %w", err)
	}
	defer inv.Close()

	oauthSrv, err := server.New(store, store, store, &server.Config{
		Issuer:            cfg.BaseURL,
		AccessTokenTTL:    cfg.AccessTokenTTL,
		RequirePKCE:       cfg.RequirePKCE,
		AllowInsecureHTTP: cfg.AllowInsecure,
		TrustProxy:        cfg.TrustProxy,
		MaxClientsPerIP:   cfg.MaxClientsPerIP,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating OAuth server: %w", err)
	}

	auditor := security.NewAuditor(logger, true)
	rateLimiter := security.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	defer rateLimiter.Stop()

	oauthSrv.SetAuditor(auditor)
	oauthSrv.SetRateLimiter(rateLimiter)
	oauthSrv.SetInstrumentation(inst)

	registry := mcp.NewRegistry()
	if err := inventory.RegisterTools(registry, inv, cfg.BaseURL); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	var authenticator mcp.Authenticator = mcp.NewBearerAuthenticator(oauthSrv)
	if cfg.DisableAuth {
		authenticator = mcp.NewStaticAuthenticator(cfg.DebugSubject, "inventory search fetch", logger)
	}

	mcpHandler := mcp.NewHandler(authenticator, mcp.NewSessionManager(store), registry, mcp.Config{
		ServerName:             "sql-mcp",
		ServerVersion:          serverVersion,
		Instructions:           usageInstructions,
		ResourceMetadataURL:    oauthSrv.Config.ProtectedResourceMetadataEndpoint(),
		DisableSessionRecovery: !cfg.AllowSessionRecovery,
	}, logger)
	mcpHandler.Auditor = auditor
	mcpHandler.SetInstrumentation(inst)

	mux := http.NewServeMux()
	server.NewHandler(oauthSrv).RegisterRoutes(mux)
	mux.Handle("/mcp", mcpHandler)
	mux.HandleFunc("/health", healthHandler(inv))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           security.RequestIDMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			"addr", httpServer.Addr,
			"issuer", cfg.BaseURL,
			"tools", registry.Len())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// healthHandler reports liveness of the domain store
func healthHandler(inv *inventory.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := inv.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unreachable"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}
}
