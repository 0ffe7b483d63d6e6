package main

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chartview/chartview/internal/attachment"
	"github.com/chartview/chartview/internal/auth"
	"github.com/chartview/chartview/internal/config"
	"github.com/chartview/chartview/internal/platform/audit"
	platformauth "github.com/chartview/chartview/internal/platform/auth"
	"github.com/chartview/chartview/internal/platform/middleware"
	"github.com/chartview/chartview/internal/record"
	"github.com/chartview/chartview/internal/token"
	"github.com/chartview/chartview/internal/upstream"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chartview-server",
		Short: "Unified patient record API over the configured EHR sources",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Shared state and upstream clients.
	tokens := token.NewContext()
	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout()}
	adapters := []upstream.Adapter{
		upstream.NewDocRefAdapter(adapterOptions(cfg, token.SourceA), httpClient, tokens, logger),
		upstream.NewDiagReportAdapter(adapterOptions(cfg, token.SourceB), httpClient, tokens, logger),
	}

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		// Dev only; Validate rejects a missing secret elsewhere. Sessions
		// do not survive a restart with a generated secret.
		sessionSecret = randomSecret()
		logger.Warn().Msg("SESSION_SECRET not set, generated a throwaway secret")
	}
	sessions := platformauth.NewSessionManager(sessionSecret, cfg.SessionTTL())
	aggregator := record.NewAggregator(adapters, tokens, cfg.UpstreamTimeout(), logger)
	resolver := attachment.NewResolver(adapters, tokens, logger)

	// Audit trail: durable when a database is configured, in-memory
	// otherwise.
	var auditRepo audit.Repo = audit.NewMemoryRepo()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := audit.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare audit schema")
		}
		auditRepo = audit.NewPGRepo(pool)
		logger.Info().Msg("audit trail backed by postgres")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Login flow stays public; everything under /api/v1 requires a
	// platform session.
	authHandler := auth.NewHandler(cfg, adapters, tokens, sessions, logger)
	authHandler.RegisterRoutes(e.Group("/auth"))

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(platformauth.DevMiddleware(sessions))
	} else {
		apiV1.Use(platformauth.Middleware(sessions))
	}
	apiV1.Use(middleware.RequestTimeout(4 * cfg.UpstreamTimeout()))

	record.NewHandler(aggregator).RegisterRoutes(apiV1)
	attachment.NewHandler(resolver).RegisterRoutes(apiV1)
	audit.NewHandler(auditRepo, logger).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := cryptorand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func adapterOptions(cfg *config.Config, source token.Source) upstream.Options {
	s := cfg.Source(source)
	return upstream.Options{
		BaseURL:        s.BaseURL,
		AuthHeader:     s.AuthHeader,
		PlatformHeader: s.PlatformHeader,
		TokenURL:       s.TokenURL,
		ClientID:       s.ClientID,
		ClientSecret:   s.ClientSecret,
		RedirectURI:    s.RedirectURI,
	}
}
