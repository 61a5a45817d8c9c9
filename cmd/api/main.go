package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/bootstrap"
	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("error", "console").Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.New(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}
	if !cfg.LLM.Enabled() {
		log.Fatal("LLM credentials or model missing, set LLM_MODEL plus LLM_API_KEY (or ARK AK/SK)",
			zap.String("provider", cfg.LLM.Provider))
	}

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize assistant", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			log.Warn("shutdown cleanup failed", zap.Error(err))
		}
	}()

	log.Info("assistant initialized",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("knowledge_backend", cfg.Knowledge.Backend),
		zap.String("memory_backend", cfg.Memory.Backend),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Bool("tracing", cfg.Observability.TracingEnabled))

	startServer(ctx, log, cfg.Server, app.Router(version))
}

func startServer(ctx context.Context, log *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("lifeline backend listening", zap.String("addr", addr), zap.String("version", version))
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		log.Error("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
