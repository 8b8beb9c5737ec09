package studio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/gemini"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
)

const productSaveTitle = "Product Studio Generation"

// ProductPhoto analyses a product shot into an editable prompt and renders
// it in batches.
type ProductPhoto struct {
	s       *Studio
	history *history.List
	busy    busy

	mu     sync.Mutex
	prompt string
}

// Analyze runs the text step only and remembers the result as the current
// editable prompt.
func (p *ProductPhoto) Analyze(ctx context.Context, sel prompt.ProductSelection) (string, error) {
	if err := sel.Validate(); err != nil {
		return "", err
	}
	if p.s.analyzer == nil {
		return "", ErrNoAnalyzer
	}
	text, err := p.s.analyzer.AnalyzePrompt(ctx, gemini.AnalysisRequest{
		Instruction: prompt.AnalysisInstruction(sel),
		Product:     sel.Product,
		Style:       sel.Style,
		Credential:  CredentialFrom(ctx),
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		text = prompt.DefaultProductPrompt
	}
	p.setPrompt(text)
	return text, nil
}

// Generate analyses the images and renders sel.Count results.
func (p *ProductPhoto) Generate(ctx context.Context, sel prompt.ProductSelection, ro RunOptions) (batch.Result, error) {
	if err := p.busy.begin(); err != nil {
		return batch.Result{}, err
	}
	defer p.busy.end()

	if err := sel.Validate(); err != nil {
		return batch.Result{}, err
	}
	if err := p.s.tracker.Require(ctx); err != nil {
		return batch.Result{}, err
	}
	text, err := p.Analyze(ctx, sel)
	if err != nil {
		return batch.Result{}, err
	}
	return p.render(ctx, sel, text, ro)
}

// Regenerate skips analysis and renders the edited prompt. An empty edit
// reuses the last analysed prompt.
func (p *ProductPhoto) Regenerate(ctx context.Context, sel prompt.ProductSelection, edited string, ro RunOptions) (batch.Result, error) {
	if err := p.busy.begin(); err != nil {
		return batch.Result{}, err
	}
	defer p.busy.end()

	edited = strings.TrimSpace(edited)
	if edited == "" {
		edited = p.Prompt()
	} else {
		p.setPrompt(edited)
	}
	return p.render(ctx, sel, edited, ro)
}

func (p *ProductPhoto) render(ctx context.Context, sel prompt.ProductSelection, description string, ro RunOptions) (batch.Result, error) {
	built, err := prompt.BuildProduct(sel, description)
	if err != nil {
		return batch.Result{}, err
	}
	count := min(max(sel.Count, 1), prompt.MaxProductCount)
	display := strings.TrimSpace(description)
	if display == "" {
		display = prompt.DefaultProductPrompt
	}

	res := p.s.run(ctx, p.history, batch.Plan{
		Count:    count,
		Base:     built,
		Display:  display,
		Variants: prompt.ProductVariants(sel),
		Cooldown: p.s.productCooldown,
	}, ro, nil)
	if res.Err != nil {
		return res, fmt.Errorf("product batch: %w", res.Err)
	}
	return res, nil
}

func (p *ProductPhoto) Prompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompt
}

func (p *ProductPhoto) setPrompt(v string) {
	p.mu.Lock()
	p.prompt = v
	p.mu.Unlock()
}

func (p *ProductPhoto) History() []history.Item {
	return p.history.Snapshot()
}

// Save stores a result in the gallery. An empty itemID saves the newest.
func (p *ProductPhoto) Save(ctx context.Context, itemID string) (store.Asset, error) {
	return p.s.saveAsset(ctx, p.history, itemID, "", productSaveTitle)
}
