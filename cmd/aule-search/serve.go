package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/aulesearch/internal/adapters/duckdb"
	"github.com/manthysbr/aulesearch/internal/adapters/providers"
	appconfig "github.com/manthysbr/aulesearch/internal/config"
	"github.com/manthysbr/aulesearch/internal/core/ports"
	"github.com/manthysbr/aulesearch/internal/core/services"
	"github.com/manthysbr/aulesearch/pkg/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	path, err := appconfig.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := appconfig.Load(path)
	if err != nil {
		return err
	}

	level, _ := appconfig.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	logger.Info("starting aule-search", "version", version, "config", path)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, logger, cfg)
}

func serve(ctx context.Context, logger *slog.Logger, cfg *appconfig.Config) error {
	var secretKey *appconfig.SecretKey
	if cfg.HasEncryptedKeys() {
		sk, err := appconfig.NewSecretKey()
		if err != nil {
			return fmt.Errorf("failed to init secret key: %w", err)
		}
		secretKey = sk
	}

	modelConfigs, err := cfg.ModelConfigs(secretKey)
	if err != nil {
		return fmt.Errorf("failed to read model configs: %w", err)
	}

	// Model Discovery - detect installed Ollama and proxy models on startup
	discovery := services.NewModelDiscovery(logger)
	if cfg.Discovery.OllamaURL != "" {
		discovered, err := discovery.DiscoverOllama(ctx, cfg.Discovery.OllamaURL)
		if err != nil {
			logger.Warn("ollama model discovery failed (non-fatal)", "error", err)
		} else {
			modelConfigs = append(modelConfigs, discovered...)
		}
	}
	if cfg.Discovery.OpenAIURL != "" {
		apiKey, err := cfg.DiscoveryAPIKey(secretKey)
		if err != nil {
			return err
		}
		discovered, err := discovery.DiscoverOpenAICompatible(ctx, cfg.Discovery.OpenAIURL, apiKey)
		if err != nil {
			logger.Warn("openai-compatible model discovery failed (non-fatal)", "error", err)
		} else {
			modelConfigs = append(modelConfigs, discovered...)
		}
	}

	factory := providers.NewModelFactory(logger)
	registry := services.NewModelRegistry(logger, cfg.ProbeConcurrency)
	for _, mc := range modelConfigs {
		if _, exists := registry.GetModel(mc.ID); exists {
			logger.Warn("skipping duplicate model", "model_id", mc.ID)
			continue
		}
		backend, err := factory.CreateModel(mc)
		if err != nil {
			logger.Error("skipping model", "model_id", mc.ID, "provider", mc.Provider, "error", err)
			continue
		}
		registry.RegisterModel(backend)
	}
	if registry.ModelCount() == 0 {
		logger.Warn("no models registered; searches will fail until one is configured")
	}

	if cfg.DefaultModel != "" {
		if err := registry.SetDefaultModel(cfg.DefaultModel); err != nil {
			logger.Warn("default model not applied", "error", err)
		}
	}

	var (
		repo      ports.TraceRepository
		closeRepo func() error
	)
	if cfg.TraceDBPath != "" {
		r, err := duckdb.NewRepository(cfg.TraceDBPath)
		if err != nil {
			return fmt.Errorf("failed to init trace repository: %w", err)
		}
		repo, closeRepo = r, r.Close
	}

	tracer := services.NewTraceCollector(logger, repo)
	orchestrator := services.NewSearchOrchestrator(logger, registry, services.WithTracer(tracer))
	if cfg.ActiveModel != "" {
		if err := orchestrator.SetActiveModel(cfg.ActiveModel); err != nil {
			logger.Warn("active model not applied", "error", err)
		}
	}

	apiServer, err := api.NewServer(logger, orchestrator, registry, tracer)
	if err != nil {
		return fmt.Errorf("failed to init api server: %w", err)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.Handler(apiServer.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	monitor := services.NewHealthMonitor(logger, orchestrator, cfg.HealthInterval)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return monitor.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("starting search api server", "addr", cfg.Server.Addr, "models", registry.ModelCount())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	tracer.Wait()
	if closeRepo != nil {
		if cerr := closeRepo(); cerr != nil {
			logger.Warn("closing trace repository", "error", cerr)
		}
	}
	return err
}
