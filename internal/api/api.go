package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/gemini"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
	"gelap-studio/internal/studio"
	"gelap-studio/internal/usage"
)

// CredentialHeader carries a caller-supplied Gemini key.
const CredentialHeader = "X-Gemini-Key"

const maxUploadBytes = 25 << 20

type Verifier interface {
	VerifyCredential(ctx context.Context, key string) error
}

type Options struct {
	Studio   *studio.Studio
	Verifier Verifier
	Logger   *slog.Logger
	// RequestTimeout bounds synchronous generations and every background run.
	RequestTimeout time.Duration
	// RunTTL is how long finished runs stay queryable.
	RunTTL time.Duration
	Now    func() time.Time
}

type Server struct {
	studio   *studio.Studio
	verifier Verifier
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
	runs     *runRegistry
	wg       sync.WaitGroup
	router   chi.Router
}

type apiError struct {
	Error string `json:"error"`
}

var errBadRequest = errors.New("invalid request")

func New(opts Options) (*Server, error) {
	if opts.Studio == nil {
		return nil, errors.New("api requires a studio")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		studio:   opts.Studio,
		verifier: opts.Verifier,
		logger:   logger,
		timeout:  timeout,
		now:      now,
		runs:     newRunRegistry(opts.RunTTL),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until background runs finish or ctx ends.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.runs.stopAll()
		return ctx.Err()
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, s.accessLog, withCredential)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Get("/usage", s.handleUsage)
		r.Post("/verify", s.handleVerify)

		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", s.handleRun)
			r.Post("/stop", s.handleStopRun)
		})

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", s.handleListAssets)
			r.Post("/", s.handleUploadAsset)
			r.Get("/{id}", s.handleGetAsset)
			r.Get("/{id}/download", s.handleDownloadAsset)
			r.Delete("/{id}", s.handleDeleteAsset)
		})

		r.Route("/subjects", func(r chi.Router) {
			r.Get("/", s.handleListSubjects)
			r.Post("/", s.handleUploadSubject)
			r.Put("/selected", s.handleSelectSubject)
			r.Patch("/{id}", s.handleEditSubject)
			r.Delete("/{id}", s.handleDeleteSubject)
		})

		r.Route("/drafts/{key}", func(r chi.Router) {
			r.Get("/", s.handleGetDraft)
			r.Put("/", s.handlePutDraft)
			r.Delete("/", s.handleDeleteDraft)
		})

		r.Route("/product", func(r chi.Router) {
			r.Post("/analyze", s.handleProductAnalyze)
			r.Post("/runs", s.handleProductRun)
			r.Post("/regenerate", s.handleProductRegenerate)
			s.mountResults(r, workflowProduct)
		})
		r.Route("/mockup", func(r chi.Router) {
			r.Post("/clean", s.handleMockupClean)
			r.Post("/skip", s.handleMockupSkip)
			r.Post("/inject", s.handleMockupInject)
			r.Post("/generate", s.handleMockupGenerate)
			s.mountResults(r, workflowMockup)
		})
		r.Route("/photostudio", func(r chi.Router) {
			r.Post("/generate", s.handlePhotoStudio)
			s.mountResults(r, workflowPhotoStudio)
		})
		r.Route("/hiremodel", func(r chi.Router) {
			r.Post("/generate", s.handleHireModel)
			s.mountResults(r, workflowHireModel)
		})
		r.Route("/character", func(r chi.Router) {
			r.Get("/", s.handleCharacterWorkspace)
			r.Put("/", s.handleCharacterUpdate)
			r.Post("/restore", s.handleCharacterRestore)
			r.Post("/runs", s.handleCharacterRun)
			r.Post("/save", s.handleCharacterSave)
			r.Get("/export", s.handleCharacterExport)
			r.Get("/items/{id}/download", s.handleCharacterDownload)
		})
		r.Route("/rebrand", func(r chi.Router) {
			r.Post("/generate", s.handleRebrand)
			s.mountResults(r, workflowRebrand)
		})
		r.Route("/tools", func(r chi.Router) {
			r.Get("/", s.handleListTools)
			r.Post("/generate", s.handleQuickTool)
			s.mountResults(r, workflowQuickTool)
		})
	})
	return r
}

// accessLog logs one line per request once the handler returns.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"dur_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func withCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := strings.TrimSpace(r.Header.Get(CredentialHeader)); key != "" {
			r = r.WithContext(studio.WithCredential(r.Context(), key))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.studio.Catalog())
}

type usageResponse struct {
	Date      string `json:"date"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	snap, err := s.studio.Tracker().Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, &studio.StorageError{Op: "read usage", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Date:      snap.Date(),
		Used:      snap.Used,
		Limit:     snap.Limit,
		Remaining: snap.Remaining(),
	})
}

type verifyRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		writeJSON(w, http.StatusNotImplemented, apiError{Error: "verification is not configured"})
		return
	}
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = studio.CredentialFrom(r.Context())
	}
	if err := s.verifier.VerifyCredential(r.Context(), key); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and the user-facing message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := studio.Describe(err)
	if errors.Is(err, errBadRequest) {
		msg = err.Error()
	}
	log := s.logger.With("path", r.URL.Path, "status", status, "request_id", middleware.GetReqID(r.Context()))
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	} else {
		log.Debug("request rejected", "err", err)
	}
	writeJSON(w, status, apiError{Error: msg})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, codec.ErrEmpty),
		errors.Is(err, codec.ErrMalformed),
		errors.Is(err, prompt.ErrMissingImage),
		errors.Is(err, prompt.ErrMissingDesign),
		errors.Is(err, prompt.ErrMissingInteraction),
		errors.Is(err, prompt.ErrMissingName),
		errors.Is(err, prompt.ErrMissingObject),
		errors.Is(err, prompt.ErrTooManyFaces),
		errors.Is(err, prompt.ErrPeopleCount),
		errors.Is(err, prompt.ErrUnknownTool),
		errors.Is(err, prompt.ErrEmptyPrompt),
		errors.Is(err, gemini.ErrEmptyPrompt),
		errors.Is(err, batch.ErrEmptyPlan):
		return http.StatusBadRequest
	case errors.Is(err, studio.ErrNoCleanBase), errors.Is(err, studio.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, studio.ErrNoResult), errors.Is(err, studio.ErrUnknownModel), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usage.ErrDailyLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, studio.ErrNoAnalyzer):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch gemini.KindOf(err) {
	case gemini.KindAuth:
		return http.StatusUnauthorized
	case gemini.KindQuota:
		return http.StatusTooManyRequests
	case gemini.KindBadRequest:
		return http.StatusBadRequest
	case gemini.KindTimeout:
		return http.StatusGatewayTimeout
	case gemini.KindNetwork, gemini.KindNoImage:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
