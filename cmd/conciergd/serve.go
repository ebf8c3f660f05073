package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/voyagerhq/concierge/assemble"
	"github.com/voyagerhq/concierge/config"
	"github.com/voyagerhq/concierge/gateway"
	"github.com/voyagerhq/concierge/logging"
	"github.com/voyagerhq/concierge/memory"
	"github.com/voyagerhq/concierge/metrics"
	"github.com/voyagerhq/concierge/model"
	anthropicmodel "github.com/voyagerhq/concierge/model/anthropic"
	openaimodel "github.com/voyagerhq/concierge/model/openai"
	"github.com/voyagerhq/concierge/ops"
	"github.com/voyagerhq/concierge/orchestrator"
	"github.com/voyagerhq/concierge/safety"
	"github.com/voyagerhq/concierge/store"
	"github.com/voyagerhq/concierge/tool"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.New(&logging.Config{
		Level:    logging.ParseLevel(cfg.Logging.Level),
		Format:   cfg.Logging.Format,
		Sanitize: cfg.SanitizeLogs(),
	})
	m := metrics.New()

	db, err := store.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	memStore := memory.NewInMemoryStore()

	registry := tool.NewRegistry()
	if err := ops.RegisterBuiltins(registry, db); err != nil {
		return err
	}
	dispatcher := tool.NewDispatcher(registry, func(o *tool.Options) {
		o.Logger = logger
		o.Observer = m
	})

	mdl, err := buildModel(cfg.Model)
	if err != nil {
		return err
	}

	orch := orchestrator.New(
		safety.NewGate(cfg.Safety.ExtraDenyPatterns...),
		assemble.New(memStore, func(o *assemble.Options) {
			o.Logger = logger
			o.HistoryLimit = cfg.Round.HistoryCap
		}),
		mdl,
		dispatcher,
		registry,
		memStore,
		db,
		func(o *orchestrator.Options) {
			o.Logger = logger
			o.Metrics = m
			o.Auditor = orchestrator.NewLogAuditor(logger)
			o.Instructions = cfg.Model.Instructions
			o.HistoryCap = cfg.Round.HistoryCap
			o.MaxToolIterations = cfg.Round.MaxToolIterations
			o.RoundBudget = cfg.Round.Budget
			o.ModelTimeout = cfg.Round.ModelTimeout
		},
	)

	sessions := gateway.NewRegistry(orch, func(o *gateway.Options) {
		o.Logger = logger
		o.Metrics = m
		o.IdleTimeout = cfg.Session.IdleTimeout
		o.QueueSize = cfg.Session.QueueSize
	})
	ws := gateway.NewServer(sessions, func(o *gateway.ServerOptions) {
		o.Logger = logger
		o.Metrics = m
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sessions.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	ws.Routes(e)

	msrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: m.Handler()}
	go func() {
		if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics.server_failed", "error", err.Error())
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
		_ = msrv.Shutdown(shutdownCtx)
	}()

	logger.Info("server.started", "addr", cfg.Server.Addr, "metrics_addr", cfg.Server.MetricsAddr,
		"model_provider", cfg.Model.Provider, "tools", registry.Names())
	if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server.stopped")
	return nil
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Name != "" {
				o.Model = anthropic.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
		}), nil
	case "mock":
		return model.NewMockModel("mock"), nil
	default:
		return nil, errors.New("unknown model provider: " + cfg.Provider)
	}
}
