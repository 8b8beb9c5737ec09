// Package app wires the shared core every binary runs on.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"gelap-studio/internal/config"
	"gelap-studio/internal/gemini"
	"gelap-studio/internal/httpclient"
	"gelap-studio/internal/store"
	"gelap-studio/internal/studio"
	"gelap-studio/internal/usage"
	"gelap-studio/internal/workspace"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	HTTP    *http.Client
	Store   *store.Store
	Tracker *usage.Tracker
	Gemini  *gemini.Client
	Studio  *studio.Studio
}

// Open opens the store under cfg.DataDir and builds the studio on top of
// it. The caller owns Close.
func Open(cfg config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout(),
		Logger:     logger,
	})

	gem := gemini.New(gemini.Options{
		APIKey:            cfg.GeminiAPIKey,
		BaseURL:           cfg.GeminiBaseURL,
		APIVersion:        cfg.GeminiAPIVersion,
		ImageModel:        cfg.GeminiImageModel,
		TextModel:         cfg.GeminiTextModel,
		HTTPClient:        httpClient,
		Logger:            logger,
		RequestsPerMinute: cfg.GeminiRequestsPerMinute,
		CallTimeout:       cfg.CallTimeout(),
		VerifyCacheTTL:    cfg.VerifyCacheTTL(),
	})

	tracker := usage.New(st, usage.Options{DailyLimit: cfg.DailyLimit, Location: loc})

	s, err := studio.New(studio.Options{
		Generator: gem,
		Analyzer:  gem,
		Tracker:   tracker,
		Store:     st,
		Autosaver: workspace.New(workspace.Options{
			Drafts:   st,
			Debounce: cfg.AutosaveDebounce(),
			Logger:   logger,
		}),
		Logger:            logger,
		HTTPClient:        httpClient,
		ModelsBaseURL:     cfg.ModelsBaseURL,
		ProductCooldown:   cfg.ProductCooldown(),
		CharacterCooldown: cfg.CharacterCooldown(),
		MaxHistory:        cfg.MaxHistoryItems,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		HTTP:    httpClient,
		Store:   st,
		Tracker: tracker,
		Gemini:  gem,
		Studio:  s,
	}, nil
}

// Close flushes pending drafts and closes the store.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Studio.Close(ctx), a.Store.Close())
}
