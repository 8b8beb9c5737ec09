package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Item is one successful generation. Items are never mutated.
type Item struct {
	ID           string    `json:"id"`
	ImageDataURI string    `json:"image"`
	Prompt       string    `json:"prompt"`
	Label        string    `json:"label,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Options struct {
	MaxItems int
	Now      func() time.Time
}

// List keeps results newest first.
type List struct {
	mu       sync.Mutex
	items    []Item
	maxItems int
	now      func() time.Time
}

func New(opts Options) *List {
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = 100
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &List{maxItems: maxItems, now: now}
}

// Add prepends a result and returns the stored item.
func (l *List) Add(imageDataURI, prompt, label string) Item {
	item := Item{
		ID:           uuid.NewString(),
		ImageDataURI: imageDataURI,
		Prompt:       prompt,
		Label:        label,
		CreatedAt:    l.now(),
	}
	l.Prepend(item)
	return item
}

func (l *List) Prepend(items ...Item) {
	if len(items) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]Item, 0, len(items)+len(l.items))
	for i := len(items) - 1; i >= 0; i-- {
		next = append(next, items[i])
	}
	next = append(next, l.items...)
	if len(next) > l.maxItems {
		next = next[:l.maxItems]
	}
	l.items = next
}

// Snapshot returns a copy, newest first.
func (l *List) Snapshot() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Replace swaps the content, used when restoring a draft. items must be
// newest first.
func (l *List) Replace(items []Item) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append([]Item(nil), items...)
	if len(l.items) > l.maxItems {
		l.items = l.items[:l.maxItems]
	}
}

func (l *List) Latest() (Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) == 0 {
		return Item{}, false
	}
	return l.items[0], true
}

func (l *List) Get(id string) (Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, it := range l.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
}
