package handlers

import (
	"fmt"
	"strings"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
)

// progress relays batch events to the chat: each image as it lands and one
// note per cooldown.
type progress struct {
	h        *Handler
	chatID   int64
	cooling  int
	finished string
}

func (p *progress) observe(ev batch.Event) {
	switch ev.Kind {
	case batch.EventStarted:
		p.cooling = -1
		if ev.Total > 1 {
			p.send(fmt.Sprintf("🎨 %s /stop ends it after the current image.", ev.Status()))
		}
	case batch.EventGenerating:
		p.h.tg.SendTyping(p.chatID)
	case batch.EventGenerated:
		if ev.Item == nil {
			return
		}
		img, err := codec.Decode(ev.Item.ImageDataURI)
		if err != nil {
			p.h.logger.Warn("batch result undecodable", "chat_id", p.chatID, "err", err)
			return
		}
		caption := fmt.Sprintf("%d/%d", ev.Index+1, ev.Total)
		if ev.Label != "" {
			caption = ev.Label + " " + caption
		}
		if err := p.h.tg.SendImage(p.chatID, img, caption); err != nil {
			p.h.logger.Warn("send batch result failed", "chat_id", p.chatID, "err", err)
		}
	case batch.EventCooldown:
		if p.cooling == ev.Index {
			return
		}
		p.cooling = ev.Index
		p.send("⏳ " + ev.Status())
	case batch.EventFinished:
		p.finished = ev.Status()
	}
}

func (p *progress) send(text string) {
	if err := p.h.tg.SendText(p.chatID, text); err != nil {
		p.h.logger.Warn("send progress failed", "chat_id", p.chatID, "err", err)
	}
}

func toolList(tools []prompt.QuickTool) string {
	var b strings.Builder
	b.WriteString("🧰 Tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "%s - %s", t.ID, t.Label)
		if t.RequiresImage {
			b.WriteString(" (needs a photo)")
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nUsage: /tool <id> <prompt>")
	return b.String()
}

func assetTitle(asset store.Asset, err error) (string, error) {
	return asset.Title, err
}
