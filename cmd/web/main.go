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

	"gelap-studio/internal/api"
	"gelap-studio/internal/app"
	"gelap-studio/internal/config"
	"gelap-studio/internal/lockfile"
	"gelap-studio/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	lock, err := lockfile.Acquire(cfg.DataDir, "web")
	if err != nil {
		logger.Error("data dir busy", "err", err)
		os.Exit(1)
	}
	defer lock.Release()

	a, err := app.Open(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	handler, err := api.New(api.Options{
		Studio:         a.Studio,
		Verifier:       a.Gemini,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout(),
	})
	if err != nil {
		logger.Error("api init failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web started", "addr", cfg.WebAddr, "data_dir", cfg.DataDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	if err := handler.Wait(shutdownCtx); err != nil {
		logger.Warn("runs still active at shutdown", "err", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("close failed", "err", err)
	}
}
