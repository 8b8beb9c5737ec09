package studio

import (
	"context"
	"strings"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
)

// QuickTool runs the single-prompt tools (logo maker, text effects and
// similar).
type QuickTool struct {
	s       *Studio
	history *history.List
	busy    busy
	meta    itemMeta
}

func (q *QuickTool) Tools() []prompt.QuickTool {
	return append([]prompt.QuickTool(nil), q.s.Catalog().QuickTools...)
}

func (q *QuickTool) Generate(ctx context.Context, sel prompt.QuickToolSelection) (history.Item, error) {
	if err := q.busy.begin(); err != nil {
		return history.Item{}, err
	}
	defer q.busy.end()

	built, tool, err := prompt.BuildQuickTool(sel)
	if err != nil {
		return history.Item{}, err
	}
	display := strings.TrimSpace(sel.Prompt)
	if display == "" {
		display = tool.Label
	}
	item, err := q.s.single(ctx, q.history, batch.Submission{Built: built, Display: display, Label: tool.Label})
	if err != nil {
		return history.Item{}, err
	}
	q.meta.put(item.ID, assetMeta{title: tool.Label + " Generation"})
	return item, nil
}

func (q *QuickTool) History() []history.Item {
	return q.history.Snapshot()
}

func (q *QuickTool) Save(ctx context.Context, itemID string) (store.Asset, error) {
	item, ok := latestOr(q.history, itemID)
	if !ok {
		return store.Asset{}, ErrNoResult
	}
	title := item.Label + " Generation"
	if meta, ok := q.meta.get(item.ID); ok {
		title = meta.title
	}
	return q.s.saveAsset(ctx, q.history, item.ID, "", title)
}
