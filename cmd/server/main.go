package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"cropguide/backend/internal/agronomy"
	"cropguide/backend/internal/api"
	"cropguide/backend/internal/auth"
	"cropguide/backend/internal/config"
	"cropguide/backend/internal/flow"
	"cropguide/backend/internal/logging"
	"cropguide/backend/internal/mcp"
	"cropguide/backend/internal/model"
	"cropguide/backend/internal/repository"
	"cropguide/backend/internal/services"
	"cropguide/backend/internal/tls"
)

var version = "dev"

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:          "cropguide-server",
		Short:        "Serve crop guidance flows over HTTP and MCP",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), envFile)
		},
	}
	rootCmd.Flags().StringVar(&envFile, "env", "", "Path to .env file")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string) error {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"model_provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
		"db_enabled", cfg.DB.Enabled,
		"oidc_issuer", cfg.Auth.Issuer,
		"swagger_client_id", cfg.Auth.SwaggerClientID,
		"config_file", cfg.ConfigFile,
	)

	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("Swagger client ID matches the backend client ID. PKCE sign-in from /docs fails when the backend client requires a secret.")
	}

	logger.Info("Starting CropGuide service", "version", version)

	repo, closeRepo, err := initRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	client, err := model.New(ctx, cfg.Model)
	if err != nil {
		return fmt.Errorf("model client initialization failed: %w", err)
	}
	catalog, err := agronomy.NewCatalog(client, flow.WithLogger(logger.With("component", "flow")))
	if err != nil {
		return fmt.Errorf("flow catalog initialization failed: %w", err)
	}
	advisor, err := agronomy.NewAdvisor(catalog, cfg.Flows.MaxConcurrency, logger)
	if err != nil {
		return err
	}
	defer advisor.Close()

	svc := services.NewAdvisorService(advisor, repo, logger)
	logger.Info("Service layer initialized", "flows", len(catalog.Flows()))

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)

	e.Use(otelecho.Middleware(api.ServiceName))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	authz, err := auth.New(ctx, cfg, repo, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}
	if authz.Bypassed() {
		logger.Warn("Authentication is bypassed; every request acts as the development farmer", "email", auth.DevEmail)
	}

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, api.NewServer(svc, logger))
	e.GET("/health", api.NewHandler(svc, version).HandleHealth)

	logger.Info("REST API handlers mounted")

	mountMCP(e, mcp.NewServer(svc, version), authz.RequireAuth)

	logger.Info("MCP protocol handlers mounted", "streamable", "/mcp", "sse", "/mcp/sse")

	spec, err := api.BuildOpenAPI(catalog.Flows(), api.OpenAPIInfo{
		Title:   "CropGuide API",
		Version: version,
		Issuer:  cfg.Auth.Issuer,
		Scopes:  auth.AllScopes,
	})
	if err != nil {
		return err
	}
	e.GET("/openapi.yaml", api.SpecHandler(spec))
	e.GET("/docs", api.SwaggerHandler(cfg.Auth.SwaggerClientID, auth.AllScopes))
	e.GET("/docs/oauth2-redirect.html", api.OAuth2RedirectHandler)

	if crops, ok := cfg.MaxTimelyFarmCrops(); ok {
		if crops < 1 {
			logger.Warn("A farm analysis can outlast server.write_timeout even for a single crop",
				"write_timeout", cfg.Server.WriteTimeout, "model_timeout", cfg.Model.Timeout)
		} else {
			logger.Info("Farm analysis bound", "max_timely_crops", crops, "write_timeout", cfg.Server.WriteTimeout)
		}
	}

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.TLS.Enable {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return errors.New("TLS enabled but tls.cert_file or tls.key_file is not set")
		}
		created, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		if created {
			logger.Info("Generated self-signed certificate", "cert_file", cfg.TLS.CertFile, "hostnames", cfg.TLS.Hostnames)
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}

// mountMCP serves the MCP transports under /mcp behind requireAuth, so tool
// calls run as the authenticated farmer.
func mountMCP(e *echo.Echo, mcpServer *mcp.Server, requireAuth func(http.Handler) http.Handler) {
	mux := http.NewServeMux()
	mcp.MountHTTPHandlers(mux, mcpServer.GetMCPServer())
	handler := echo.WrapHandler(mux)

	g := e.Group("/mcp", echo.WrapMiddleware(requireAuth))
	g.Any("", handler)
	g.Any("/*", handler)
}

// initRepository connects to PostgreSQL when db.enabled is set and falls
// back to the in-memory store otherwise.
func initRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, func(), error) {
	if !cfg.DB.Enabled {
		logger.Warn("Database disabled; farmers and history are kept in memory")
		return repository.NewMemoryStore(), func() {}, nil
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("database migration failed: %w", err)
	}
	logger.Info("Database connected", "host", cfg.DB.Host, "name", cfg.DB.Name)
	return store, pool.Close, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
