package studio

import (
	"context"
	"strings"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
)

type Rebrand struct {
	s       *Studio
	history *history.List
	busy    busy
	meta    itemMeta
}

func (r *Rebrand) Generate(ctx context.Context, sel prompt.RebrandSelection) (history.Item, error) {
	if err := r.busy.begin(); err != nil {
		return history.Item{}, err
	}
	defer r.busy.end()

	built, err := prompt.BuildRebrand(sel)
	if err != nil {
		return history.Item{}, err
	}
	item, err := r.s.single(ctx, r.history, batch.Submission{Built: built, Display: built.Text, Label: "RebrandStudio"})
	if err != nil {
		return history.Item{}, err
	}
	r.meta.put(item.ID, assetMeta{title: "Rebrand: " + strings.TrimSpace(sel.BrandName)})
	return item, nil
}

func (r *Rebrand) History() []history.Item {
	return r.history.Snapshot()
}

func (r *Rebrand) Save(ctx context.Context, itemID string) (store.Asset, error) {
	item, ok := latestOr(r.history, itemID)
	if !ok {
		return store.Asset{}, ErrNoResult
	}
	title := "Rebrand"
	if meta, ok := r.meta.get(item.ID); ok {
		title = meta.title
	}
	return r.s.saveAsset(ctx, r.history, item.ID, "", title)
}
