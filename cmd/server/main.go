package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexworks/be-referrals/internal/client"
	"github.com/lexworks/be-referrals/internal/config"
	"github.com/lexworks/be-referrals/internal/handler"
	"github.com/lexworks/be-referrals/internal/metrics"
	"github.com/lexworks/be-referrals/internal/platform/database"
	"github.com/lexworks/be-referrals/internal/platform/logger"
	"github.com/lexworks/be-referrals/internal/platform/middleware"
	"github.com/lexworks/be-referrals/internal/policy"
	"github.com/lexworks/be-referrals/internal/repository"
	"github.com/lexworks/be-referrals/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting referral workflow engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Policy table: configuration-as-data with built-in defaults.
	table := policy.Default()
	if cfg.PolicyFile != "" {
		table, err = policy.LoadFile(cfg.PolicyFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PolicyFile).Msg("Failed to load policy table")
		}
		log.Info().Str("path", cfg.PolicyFile).Msg("Policy table loaded")
	}

	// Record store: postgres when configured, in-memory otherwise.
	var (
		referralStore service.ReferralStore
		approvalStore service.ApprovalStore
		commentStore  service.CommentStore
	)
	if cfg.Database.Host != "" {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		referralStore = repository.NewReferralRepository(db)
		approvalStore = repository.NewApprovalRepository(db)
		commentStore = repository.NewCommentRepository(db)
	} else {
		log.Warn().Msg("DB_HOST not set; using in-memory record store")
		mem := repository.NewMemoryStore()
		referralStore = mem.Referrals()
		approvalStore = mem.Approvals()
		commentStore = mem.Comments()
	}

	// Identity provider.
	var identity service.IdentityClient
	if cfg.IdentityURL != "" {
		identity = client.NewIdentityHTTPClient(cfg.IdentityURL)
		log.Info().Str("identity_url", cfg.IdentityURL).Msg("Identity client initialized")
	} else {
		if cfg.Service.Environment != "development" {
			log.Fatal().Msg("IDENTITY_URL is required outside development")
		}
		log.Warn().Msg("IDENTITY_URL not set; using static development directory")
		identity = client.NewStaticDirectory(map[string]string{
			"dev-case-manager": "case_manager",
			"dev-firm-admin":   "firm_admin",
			"dev-compliance":   "compliance_officer",
			"dev-partner":      "managing_partner",
		})
	}

	workflowService := service.NewWorkflowService(referralStore, approvalStore, table, log)
	approvalService := service.NewApprovalService(approvalStore, workflowService, identity, table, log)
	commentService := service.NewCommentService(commentStore, referralStore, log)
	riskService := service.NewRiskService(referralStore, log)

	m := metrics.New()
	httpHandler := handler.NewHTTPHandler(
		workflowService, approvalService, commentService, riskService, m, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth([]byte(cfg.JWTSigningKey), log))
		httpHandler.Routes(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
