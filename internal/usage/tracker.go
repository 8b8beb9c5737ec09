package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultDailyLimit = 20
	keyPrefix         = "gelap_usage_"
)

var ErrDailyLimit = errors.New("daily usage limit reached")

// Counter persists one integer per key.
type Counter interface {
	Count(ctx context.Context, key string) (int, error)
	Increment(ctx context.Context, key string) (int, error)
}

type Options struct {
	DailyLimit int
	Location   *time.Location
	Now        func() time.Time
}

// Tracker is a soft, best-effort daily quota. Nothing prevents two callers from
// both observing remaining quota and then both spending it.
type Tracker struct {
	counter Counter
	limit   int
	loc     *time.Location
	now     func() time.Time
}

func New(counter Counter, opts Options) *Tracker {
	limit := opts.DailyLimit
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{counter: counter, limit: limit, loc: loc, now: now}
}

func (t *Tracker) Limit() int {
	return t.limit
}

// Key is the storage key for today, e.g. gelap_usage_2024-05-01.
func (t *Tracker) Key() string {
	return keyPrefix + t.now().In(t.loc).Format(time.DateOnly)
}

func (t *Tracker) Usage(ctx context.Context) (int, error) {
	n, err := t.counter.Count(ctx, t.Key())
	if err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return n, nil
}

func (t *Tracker) Increment(ctx context.Context) (int, error) {
	n, err := t.counter.Increment(ctx, t.Key())
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return n, nil
}

func (t *Tracker) HasQuotaRemaining(ctx context.Context) (bool, error) {
	n, err := t.Usage(ctx)
	if err != nil {
		return false, err
	}
	return n < t.limit, nil
}

// Require returns ErrDailyLimit when today's quota is spent.
func (t *Tracker) Require(ctx context.Context) error {
	ok, err := t.HasQuotaRemaining(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDailyLimit
	}
	return nil
}

type Snapshot struct {
	Key   string
	Used  int
	Limit int
}

func (s Snapshot) Remaining() int {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// Date is the calendar day the snapshot counts, as YYYY-MM-DD.
func (s Snapshot) Date() string {
	return strings.TrimPrefix(s.Key, keyPrefix)
}

func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	n, err := t.Usage(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Key: t.Key(), Used: n, Limit: t.limit}, nil
}

// MemoryCounter keeps counters in process memory.
type MemoryCounter struct {
	mu     sync.Mutex
	values map[string]int
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{values: make(map[string]int)}
}

func (m *MemoryCounter) Count(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MemoryCounter) Increment(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key]++
	return m.values[key], nil
}

// Set overwrites a counter; used to seed state.
func (m *MemoryCounter) Set(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = n
}
