package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/history"
	"gelap-studio/internal/studio"
)

const defaultRunTTL = time.Hour

// Run is the pollable progress of a background batch.
type Run struct {
	ID         string         `json:"id"`
	Workflow   string         `json:"workflow"`
	State      batch.State    `json:"state"`
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	Status     string         `json:"status"`
	Items      []history.Item `json:"items,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

type runEntry struct {
	mu   sync.Mutex
	run  Run
	stop *batch.StopToken
}

func (e *runEntry) snapshot() Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.run
	out.Items = append([]history.Item(nil), e.run.Items...)
	return out
}

func (e *runEntry) observe(ev batch.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.run.Total = ev.Total
	e.run.Status = ev.Status()
	switch ev.Kind {
	case batch.EventGenerated:
		if ev.Item != nil {
			e.run.Items = append(e.run.Items, *ev.Item)
		}
		e.run.Completed = len(e.run.Items)
	case batch.EventFinished:
		e.run.State = ev.State
	}
}

func (e *runEntry) finish(res batch.Result, err error, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.run.State = res.State
	if e.run.State == "" || e.run.State == batch.StateRunning || e.run.State == batch.StateIdle {
		e.run.State = batch.StateFailed
	}
	if err != nil {
		e.run.Error = studio.Describe(err)
		e.run.Status = e.run.Error
	}
	e.run.Items = res.Items
	e.run.Completed = len(res.Items)
	e.run.FinishedAt = &at
}

// runRegistry keeps runs in a TTL cache so finished runs age out on their
// own.
type runRegistry struct {
	cache *cache.Cache
}

func newRunRegistry(ttl time.Duration) *runRegistry {
	if ttl <= 0 {
		ttl = defaultRunTTL
	}
	return &runRegistry{cache: cache.New(ttl, ttl/2)}
}

func (rr *runRegistry) add(workflow string, startedAt time.Time) *runEntry {
	e := &runEntry{
		run: Run{
			ID:        uuid.NewString(),
			Workflow:  workflow,
			State:     batch.StateRunning,
			Status:    "Queued.",
			StartedAt: startedAt,
		},
		stop: batch.NewStopToken(),
	}
	rr.cache.Set(e.run.ID, e, cache.DefaultExpiration)
	return e
}

func (rr *runRegistry) get(id string) (*runEntry, bool) {
	v, ok := rr.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*runEntry), true
}

func (rr *runRegistry) stopAll() {
	for _, item := range rr.cache.Items() {
		item.Object.(*runEntry).stop.Stop()
	}
}

// startRun runs fn in the background under the request's credential and
// answers 202 with the run to poll.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request, workflow string, fn func(context.Context, studio.RunOptions) (batch.Result, error)) {
	entry := s.runs.add(workflow, s.now())
	credential := studio.CredentialFrom(r.Context())
	log := s.logger.With("run", entry.run.ID, "workflow", workflow)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(studio.WithCredential(context.Background(), credential), s.timeout)
		defer cancel()

		res, err := fn(ctx, studio.RunOptions{Stop: entry.stop, OnEvent: entry.observe})
		entry.finish(res, err, s.now())
		if err != nil {
			log.Warn("run failed", "err", err, "completed", len(res.Items))
			return
		}
		log.Info("run finished", "state", res.State, "completed", len(res.Items))
	}()

	writeJSON(w, http.StatusAccepted, entry.snapshot())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, entry.snapshot())
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "run not found"})
		return
	}
	entry.stop.Stop()
	writeJSON(w, http.StatusAccepted, entry.snapshot())
}
