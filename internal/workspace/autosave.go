package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gelap-studio/internal/store"
)

// Drafts is the slice of the store the autosaver needs.
type Drafts interface {
	SaveWorkspaceDraft(ctx context.Context, workflowKey string, data []byte, version int64) error
	LoadWorkspaceDraft(ctx context.Context, workflowKey string) (*store.Draft, error)
}

type Options struct {
	Drafts   Drafts
	Debounce time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
	// OnSaved is called after every write attempt, including stale rejections.
	OnSaved func(key string, version int64, err error)
}

// Autosaver coalesces rapid draft changes per workflow key and writes only the
// latest snapshot once the key has been quiet for the debounce window.
type Autosaver struct {
	mu       sync.Mutex
	drafts   Drafts
	debounce time.Duration
	logger   *slog.Logger
	now      func() time.Time
	onSaved  func(string, int64, error)
	pending  map[string]*pendingDraft
	version  int64
	closed   bool
}

type pendingDraft struct {
	data    []byte
	version int64
	timer   *time.Timer
}

func New(opts Options) *Autosaver {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Autosaver{
		drafts:   opts.Drafts,
		debounce: debounce,
		logger:   logger,
		now:      now,
		onSaved:  opts.OnSaved,
		pending:  make(map[string]*pendingDraft),
	}
}

// Schedule snapshots v now and (re)starts the key's debounce timer. The
// returned version is strictly greater than any version handed out before,
// including by earlier processes, because it is seeded from the clock.
func (a *Autosaver) Schedule(key string, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode draft %s: %w", key, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, errors.New("autosaver closed")
	}

	version := a.nextVersion()
	pd, ok := a.pending[key]
	if !ok {
		pd = &pendingDraft{}
		a.pending[key] = pd
	}
	pd.data = data
	pd.version = version

	if pd.timer != nil {
		pd.timer.Stop()
	}
	pd.timer = time.AfterFunc(a.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = a.flush(ctx, key, version)
	})
	return version, nil
}

// Flush writes the key's pending snapshot immediately.
func (a *Autosaver) Flush(ctx context.Context, key string) error {
	return a.flush(ctx, key, 0)
}

// Close flushes every pending draft and refuses further schedules.
func (a *Autosaver) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	keys := make([]string, 0, len(a.pending))
	for key := range a.pending {
		keys = append(keys, key)
	}
	a.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := a.Flush(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending reports whether key has an unsaved snapshot.
func (a *Autosaver) Pending(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[key]
	return ok
}

// Load decodes the stored draft for key into v. It reports false when no
// draft exists.
func (a *Autosaver) Load(ctx context.Context, key string, v any) (bool, error) {
	draft, err := a.drafts.LoadWorkspaceDraft(ctx, key)
	if err != nil {
		return false, err
	}
	if draft == nil {
		return false, nil
	}
	if err := json.Unmarshal(draft.Data, v); err != nil {
		return false, fmt.Errorf("decode draft %s: %w", key, err)
	}
	a.mu.Lock()
	if draft.Version > a.version {
		a.version = draft.Version
	}
	a.mu.Unlock()
	return true, nil
}

// flush saves the pending snapshot for key. A non-zero want skips the write
// when a newer snapshot has been scheduled since the timer was armed.
func (a *Autosaver) flush(ctx context.Context, key string, want int64) error {
	a.mu.Lock()
	pd, ok := a.pending[key]
	if !ok || (want != 0 && pd.version != want) {
		a.mu.Unlock()
		return nil
	}
	delete(a.pending, key)
	if pd.timer != nil {
		pd.timer.Stop()
	}
	data, version := pd.data, pd.version
	onSaved := a.onSaved
	a.mu.Unlock()

	err := a.drafts.SaveWorkspaceDraft(ctx, key, data, version)
	if errors.Is(err, store.ErrStaleDraft) {
		a.logger.Debug("stale draft skipped", "key", key, "version", version)
		err = nil
	} else if err != nil {
		a.logger.Warn("draft autosave failed", "key", key, "version", version, "err", err)
	}
	if onSaved != nil {
		onSaved(key, version, err)
	}
	return err
}

func (a *Autosaver) nextVersion() int64 {
	v := a.now().UnixMilli()
	if v <= a.version {
		v = a.version + 1
	}
	a.version = v
	return v
}
