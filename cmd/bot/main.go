package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gelap-studio/internal/app"
	"gelap-studio/internal/config"
	"gelap-studio/internal/handlers"
	"gelap-studio/internal/lockfile"
	"gelap-studio/internal/logging"
	"gelap-studio/internal/mediagroup"
	"gelap-studio/internal/session"
	"gelap-studio/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if err := cfg.RequireTelegram(); err != nil {
		logger.Error("config invalid", "err", err)
		os.Exit(1)
	}

	lock, err := lockfile.Acquire(cfg.DataDir, "bot")
	if err != nil {
		logger.Error("data dir lock failed", "err", err)
		os.Exit(1)
	}
	defer lock.Release()

	a, err := app.Open(cfg, logger)
	if err != nil {
		logger.Error("app init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			logger.Error("close failed", "err", err)
		}
	}()

	if restored, err := a.Studio.Character.Restore(context.Background()); err != nil {
		logger.Warn("character workspace restore failed", "err", err)
	} else if restored {
		logger.Info("character workspace restored")
	}

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: a.HTTP,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	handler := handlers.New(handlers.Options{
		Messenger: tg,
		Studio:    a.Studio,
		Sessions:  session.NewStore(session.Options{}),
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.MaxConcurrent)
	dispatch := func(fn func(ctx context.Context)) bool {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return false
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			// Work outlives the signal so a batch can end on its stop token.
			reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.RequestTimeout())
			defer cancel()
			fn(reqCtx)
		}()
		return true
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce(),
		OnFlush: func(group mediagroup.Group) {
			dispatch(func(ctx context.Context) { handler.HandleMediaGroup(ctx, group) })
		},
	})
	defer aggregator.Close()
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "data_dir", cfg.DataDir, "daily_limit", cfg.DailyLimit)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})

	func() {
		defer tg.StopUpdates()
		for {
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				return
			case update, ok := <-updates:
				if !ok {
					logger.Info("updates channel closed")
					return
				}
				ok = dispatch(func(ctx context.Context) {
					if err := handler.HandleUpdate(ctx, update); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("handle update failed", "err", err)
					}
				})
				if !ok {
					return
				}
			}
		}
	}()

	aggregator.Close()
	handler.StopAll()
	wg.Wait()
}
