package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/gemini"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
	"gelap-studio/internal/usage"
	"gelap-studio/internal/workspace"
)

type Generator interface {
	GenerateImage(ctx context.Context, in gemini.ImageRequest) (string, error)
}

type Analyzer interface {
	AnalyzePrompt(ctx context.Context, in gemini.AnalysisRequest) (string, error)
}

type Options struct {
	Generator Generator
	Analyzer  Analyzer
	Tracker   *usage.Tracker
	Store     *store.Store
	Autosaver *workspace.Autosaver
	Logger    *slog.Logger

	// HTTPClient fetches predefined model references.
	HTTPClient *http.Client
	// ModelsBaseURL serves /models/<folder>/reference.jpg. Empty skips that source.
	ModelsBaseURL string

	ProductCooldown   time.Duration
	CharacterCooldown time.Duration
	// Tick is the cooldown poll interval.
	Tick       time.Duration
	MaxHistory int
	Now        func() time.Time
}

// Studio wires one controller per workflow screen to the shared generator,
// quota tracker and store.
type Studio struct {
	gen       Generator
	analyzer  Analyzer
	tracker   *usage.Tracker
	store     *store.Store
	autosaver *workspace.Autosaver
	logger    *slog.Logger
	http      *http.Client
	modelsURL string

	productCooldown   time.Duration
	characterCooldown time.Duration
	tick              time.Duration
	maxHistory        int
	now               func() time.Time

	Product     *ProductPhoto
	Mockup      *Mockup
	PhotoStudio *PhotoStudio
	HireModel   *HireModel
	Character   *CharacterStudio
	Rebrand     *Rebrand
	QuickTool   *QuickTool
}

func New(opts Options) (*Studio, error) {
	switch {
	case opts.Generator == nil:
		return nil, errors.New("studio requires a generator")
	case opts.Tracker == nil:
		return nil, errors.New("studio requires a usage tracker")
	case opts.Store == nil:
		return nil, errors.New("studio requires a store")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	autosaver := opts.Autosaver
	if autosaver == nil {
		autosaver = workspace.New(workspace.Options{Drafts: opts.Store, Logger: logger})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = time.Second
	}

	s := &Studio{
		gen:               opts.Generator,
		analyzer:          opts.Analyzer,
		tracker:           opts.Tracker,
		store:             opts.Store,
		autosaver:         autosaver,
		logger:            logger,
		http:              httpClient,
		modelsURL:         strings.TrimRight(opts.ModelsBaseURL, "/"),
		productCooldown:   opts.ProductCooldown,
		characterCooldown: opts.CharacterCooldown,
		tick:              tick,
		maxHistory:        opts.MaxHistory,
		now:               now,
	}
	s.Product = &ProductPhoto{s: s, history: s.newHistory()}
	s.Mockup = &Mockup{s: s, history: s.newHistory()}
	s.PhotoStudio = &PhotoStudio{s: s, history: s.newHistory()}
	s.HireModel = &HireModel{s: s, history: s.newHistory()}
	s.Character = &CharacterStudio{s: s}
	s.Rebrand = &Rebrand{s: s, history: s.newHistory()}
	s.QuickTool = &QuickTool{s: s, history: s.newHistory()}
	return s, nil
}

func (s *Studio) Catalog() *prompt.Catalog {
	return prompt.Default()
}

func (s *Studio) Tracker() *usage.Tracker {
	return s.tracker
}

func (s *Studio) Store() *store.Store {
	return s.store
}

// Autosaver debounces workspace drafts for every workflow.
func (s *Studio) Autosaver() *workspace.Autosaver {
	return s.autosaver
}

// Close flushes pending workspace drafts.
func (s *Studio) Close(ctx context.Context) error {
	return s.autosaver.Close(ctx)
}

func (s *Studio) newHistory() *history.List {
	return history.New(history.Options{MaxItems: s.maxHistory, Now: s.now})
}

type credentialKey struct{}

// WithCredential attaches a caller-supplied API key to ctx. Remote calls made
// under ctx use it instead of the process key.
func WithCredential(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, credentialKey{}, strings.TrimSpace(key))
}

func CredentialFrom(ctx context.Context) string {
	key, _ := ctx.Value(credentialKey{}).(string)
	return key
}

// RunOptions lets the caller observe and stop a batch.
type RunOptions struct {
	Stop    *batch.StopToken
	OnEvent func(batch.Event)
}

func (s *Studio) run(ctx context.Context, list *history.List, plan batch.Plan, ro RunOptions, sink func(context.Context, history.Item, batch.Iteration) error) batch.Result {
	runner := batch.New(batch.Options{
		Generator: s.gen,
		Tracker:   s.tracker,
		History:   list,
		Logger:    s.logger,
		OnEvent:   ro.OnEvent,
		Sink:      sink,
		Tick:      s.tick,
	})
	plan.Credential = CredentialFrom(ctx)
	return runner.Run(ctx, plan, ro.Stop)
}

// single runs one generation through the same quota and history path as a
// batch.
func (s *Studio) single(ctx context.Context, list *history.List, sub batch.Submission) (history.Item, error) {
	res := s.run(ctx, list, batch.Plan{
		Count: 1,
		Build: func(batch.Iteration) (batch.Submission, error) { return sub, nil },
	}, RunOptions{}, nil)
	if res.Err != nil {
		return history.Item{}, res.Err
	}
	if len(res.Items) == 0 {
		return history.Item{}, ErrNoResult
	}
	return res.Items[0], nil
}

func (s *Studio) saveAsset(ctx context.Context, list *history.List, itemID, assetPrompt, title string) (store.Asset, error) {
	item, ok := latestOr(list, itemID)
	if !ok {
		return store.Asset{}, ErrNoResult
	}
	if assetPrompt == "" {
		assetPrompt = item.Prompt
	}
	asset, err := s.store.SaveAsset(ctx, store.Asset{
		Kind:         store.AssetGenerated,
		ImageDataURI: item.ImageDataURI,
		Prompt:       assetPrompt,
		Title:        title,
	})
	if err != nil {
		return store.Asset{}, &StorageError{Op: "save asset", Err: err}
	}
	s.logger.Info("asset saved", "asset_id", asset.ID, "title", title)
	return asset, nil
}

// latestOr resolves itemID in list, or the newest item when itemID is empty.
func latestOr(list *history.List, itemID string) (history.Item, bool) {
	if itemID == "" {
		return list.Latest()
	}
	return list.Get(itemID)
}

// EncodeAll encodes raw uploads concurrently, keeping input order.
func EncodeAll(ctx context.Context, uploads [][]byte) ([]codec.Image, error) {
	out := make([]codec.Image, len(uploads))
	g, _ := errgroup.WithContext(ctx)
	for i, raw := range uploads {
		g.Go(func() error {
			img, err := codec.EncodeBytes(raw, "")
			if err != nil {
				return fmt.Errorf("encode image %d: %w", i+1, err)
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// busy guards a controller against overlapping runs.
type busy struct {
	mu      sync.Mutex
	running bool
}

func (b *busy) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrBusy
	}
	b.running = true
	return nil
}

func (b *busy) end() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// assetMeta is what Save writes for a history item when it differs from the
// item's display text.
type assetMeta struct {
	prompt string
	title  string
}

type itemMeta struct {
	mu sync.Mutex
	m  map[string]assetMeta
}

func (im *itemMeta) put(id string, meta assetMeta) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.m == nil {
		im.m = make(map[string]assetMeta)
	}
	im.m[id] = meta
}

func (im *itemMeta) get(id string) (assetMeta, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	meta, ok := im.m[id]
	return meta, ok
}
