package studio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
)

const (
	mockupInjectDisplay = "Inject Design Flow"
	mockupInjectedTitle = "Injected"
	mockupDownloadLabel = "MockupStudio"
)

// Mockup runs the two-step clean-then-inject flow and the generate-new flow.
type Mockup struct {
	s       *Studio
	history *history.List
	busy    busy

	meta itemMeta

	mu      sync.Mutex
	base    codec.Image
	cleaned bool
}

// Clean removes existing prints from the target and keeps the result as the
// base for Inject. It uses quota but does not enter the history.
func (m *Mockup) Clean(ctx context.Context, sel prompt.MockupCleanSelection) (codec.Image, error) {
	if err := m.busy.begin(); err != nil {
		return codec.Image{}, err
	}
	defer m.busy.end()

	built, err := prompt.BuildMockupClean(sel)
	if err != nil {
		return codec.Image{}, err
	}
	item, err := m.s.single(ctx, nil, batch.Submission{Built: built, Display: "Clean Surface", Label: "Clean"})
	if err != nil {
		return codec.Image{}, err
	}
	cleaned, err := codec.Decode(item.ImageDataURI)
	if err != nil {
		return codec.Image{}, fmt.Errorf("decode cleaned surface: %w", err)
	}

	m.mu.Lock()
	m.base, m.cleaned = cleaned, true
	m.mu.Unlock()
	return cleaned, nil
}

// SkipCleaning uses the target as is.
func (m *Mockup) SkipCleaning(target codec.Image) error {
	if target.IsZero() {
		return prompt.ErrMissingImage
	}
	m.mu.Lock()
	m.base, m.cleaned = target, false
	m.mu.Unlock()
	return nil
}

// Base returns the surface Inject will use and whether it was cleaned.
func (m *Mockup) Base() (img codec.Image, cleaned bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.base, m.cleaned, !m.base.IsZero()
}

func (m *Mockup) Reset() {
	m.mu.Lock()
	m.base, m.cleaned = codec.Image{}, false
	m.mu.Unlock()
}

// Inject places the design on the prepared base. sel.Base is ignored; the
// base always comes from Clean or SkipCleaning.
func (m *Mockup) Inject(ctx context.Context, sel prompt.MockupInjectSelection) (history.Item, error) {
	if err := m.busy.begin(); err != nil {
		return history.Item{}, err
	}
	defer m.busy.end()

	base, _, ok := m.Base()
	if !ok {
		return history.Item{}, ErrNoCleanBase
	}
	sel.Base = base
	built, err := prompt.BuildMockupInject(sel)
	if err != nil {
		return history.Item{}, err
	}
	item, err := m.s.single(ctx, m.history, batch.Submission{Built: built, Display: mockupInjectDisplay, Label: mockupDownloadLabel})
	if err != nil {
		return history.Item{}, err
	}
	m.meta.put(item.ID, assetMeta{prompt: built.Text, title: mockupInjectedTitle})
	return item, nil
}

// GenerateNew renders the design on a catalog object in a new scene.
func (m *Mockup) GenerateNew(ctx context.Context, sel prompt.MockupGenerateSelection) (history.Item, error) {
	if err := m.busy.begin(); err != nil {
		return history.Item{}, err
	}
	defer m.busy.end()

	built, err := prompt.BuildMockupGenerate(sel)
	if err != nil {
		return history.Item{}, err
	}
	item, err := m.s.single(ctx, m.history, batch.Submission{Built: built, Display: built.Text, Label: mockupDownloadLabel})
	if err != nil {
		return history.Item{}, err
	}
	m.meta.put(item.ID, assetMeta{prompt: built.Text, title: strings.TrimSpace(sel.Object)})
	return item, nil
}

func (m *Mockup) History() []history.Item {
	return m.history.Snapshot()
}

// Save stores a result titled "Mockup: <object>" or "Mockup: Injected".
func (m *Mockup) Save(ctx context.Context, itemID string) (store.Asset, error) {
	item, ok := latestOr(m.history, itemID)
	if !ok {
		return store.Asset{}, ErrNoResult
	}
	meta, ok := m.meta.get(item.ID)
	if !ok {
		meta = assetMeta{title: mockupInjectedTitle}
	}
	return m.s.saveAsset(ctx, m.history, item.ID, meta.prompt, "Mockup: "+meta.title)
}
