package studio

import (
	"context"
	"fmt"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
)

type PhotoStudio struct {
	s       *Studio
	history *history.List
	busy    busy
}

func (p *PhotoStudio) Generate(ctx context.Context, sel prompt.PhotoStudioSelection) (history.Item, error) {
	if err := p.busy.begin(); err != nil {
		return history.Item{}, err
	}
	defer p.busy.end()

	built, err := prompt.BuildPhotoStudio(sel)
	if err != nil {
		return history.Item{}, err
	}
	st, _ := p.s.Catalog().SubjectType(sel.SubjectType)
	display := fmt.Sprintf("Studio: %s - %s", st.Label, sel.Occasion)
	return p.s.single(ctx, p.history, batch.Submission{Built: built, Display: display, Label: "PhotoStudio"})
}

func (p *PhotoStudio) History() []history.Item {
	return p.history.Snapshot()
}

func (p *PhotoStudio) Save(ctx context.Context, itemID string) (store.Asset, error) {
	return p.s.saveAsset(ctx, p.history, itemID, "", "Studio Portrait")
}
