package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"gelap-studio/internal/codec"
	"gelap-studio/internal/history"
	"gelap-studio/internal/mediagroup"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/session"
	"gelap-studio/internal/studio"
	"gelap-studio/internal/telegram"
)

const (
	workflowProduct   = "product"
	workflowMockup    = "mockup"
	workflowCharacter = "character"
	workflowRebrand   = "rebrand"
	workflowTool      = "tool"
)

// Messenger is the part of the Telegram client the handler talks to.
type Messenger interface {
	SendTyping(chatID int64)
	SendText(chatID int64, text string) error
	SendImage(chatID int64, img codec.Image, caption string) error
	SendDocument(chatID int64, name string, data []byte, caption string) error
	DownloadImage(ctx context.Context, fileID string) (codec.Image, error)
}

type Options struct {
	Messenger Messenger
	Studio    *studio.Studio
	Sessions  *session.Store
	Logger    *slog.Logger
}

type Handler struct {
	tg         Messenger
	studio     *studio.Studio
	sessions   *session.Store
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Options{})
	}

	return &Handler{
		tg:       opts.Messenger,
		studio:   opts.Studio,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

// StopAll asks every running batch to stop after its current image.
func (h *Handler) StopAll() {
	h.sessions.StopAll()
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}

	chatID := msg.Chat.ID
	var username string
	if msg.From != nil {
		username = msg.From.UserName
	}

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, username, msg.Command(), msg.CommandArguments())
	}

	if fileID := imageFileID(msg); fileID != "" {
		if msg.MediaGroupID != "" && h.aggregator != nil {
			var userID int64
			if msg.From != nil {
				userID = msg.From.ID
			}
			h.aggregator.Add(mediagroup.Item{
				ChatID:       chatID,
				UserID:       userID,
				Username:     username,
				MediaGroupID: msg.MediaGroupID,
				Caption:      msg.Caption,
				FileID:       fileID,
			})
			return nil
		}
		return h.processImages(ctx, chatID, username, msg.Caption, []string{fileID})
	}

	if strings.TrimSpace(msg.Text) != "" {
		return h.handleText(chatID, username)
	}
	return nil
}

func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.processImages(ctx, group.ChatID, group.Username, group.Caption, group.FileIDs); err != nil {
		h.logger.Error("media group processing failed", "chat_id", group.ChatID, "err", err)
	}
}

// imageFileID picks the largest photo size, or an image sent as a file.
func imageFileID(msg *tgbotapi.Message) string {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID
	}
	return ""
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, username, command, args string) error {
	switch command {
	case "start", "help":
		return h.tg.SendText(chatID, helpText)
	case "usage":
		return h.sendUsage(ctx, chatID)
	case "stop":
		if h.sessions.Stop(chatID) {
			return h.tg.SendText(chatID, "⏹ Stopping after the current image...")
		}
		return h.tg.SendText(chatID, "Nothing is running.")
	case "cancel":
		if st := h.sessions.Get(chatID, username); st.Mode == session.ModeMockupDesign {
			h.studio.Mockup.Reset()
		}
		h.sessions.Clear(chatID)
		return h.tg.SendText(chatID, "✅ Cancelled.")
	case "save":
		return h.save(ctx, chatID, username)
	case "rebrand":
		sel := rebrandSelection(args)
		if sel.BrandName == "" {
			return h.tg.SendText(chatID, "Usage: /rebrand [style=modern] [palette=ocean] Brand Name | short description")
		}
		return h.runSingle(ctx, chatID, username, workflowRebrand, func() (itemResult, error) {
			item, err := h.studio.Rebrand.Generate(ctx, sel)
			return itemResult{item: item}, err
		})
	case "tool":
		return h.startTool(ctx, chatID, username, args)
	case "product", "mockup", "character":
		reply, err := h.enterMode(chatID, username, command, args)
		if err != nil {
			return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
		}
		return h.tg.SendText(chatID, reply)
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

func (h *Handler) handleText(chatID int64, username string) error {
	if st := h.sessions.Get(chatID, username); st.Mode != session.ModeIdle {
		return h.tg.SendText(chatID, "📷 Send a photo to continue, or /cancel.")
	}
	return h.tg.SendText(chatID, "Pick a workflow first. Use /help to see them.")
}

// enterMode makes the chat wait for images for command.
func (h *Handler) enterMode(chatID int64, username, command, args string) (string, error) {
	var (
		mode  session.Mode
		reply string
	)
	switch command {
	case "product":
		mode = session.ModeProduct
		sel := productSelection(args)
		reply = fmt.Sprintf("📷 Send the product photo (%d image(s) will be generated). Send a second photo in the same album to use it as a style reference.", sel.Count)
	case "mockup":
		mode = session.ModeMockupTarget
		reply = "📷 Send the photo of the object to print on. Add the design as a second photo in the same album to do both steps at once."
		if parseMockup(args).skipClean {
			reply += " Cleaning will be skipped."
		}
	case "character":
		ca := parseCharacter(args)
		if ca.name == "" {
			return "", prompt.ErrMissingName
		}
		mode = session.ModeCharacter
		reply = fmt.Sprintf("📷 Send 1 to 5 face photos of %s in one album.", ca.name)
	case "tool":
		toolID, _ := parseTool(args)
		tool, ok := h.studio.Catalog().QuickTool(toolID)
		if !ok {
			return "", fmt.Errorf("%w: %q", prompt.ErrUnknownTool, toolID)
		}
		mode = session.ModeTool
		reply = fmt.Sprintf("📷 Send the photo for %s.", tool.Label)
	default:
		return "", fmt.Errorf("command %q has no image step", command)
	}

	h.sessions.Update(chatID, username, func(st *session.Session) {
		st.Mode = mode
		st.Args = args
	})
	return reply, nil
}

func (h *Handler) startTool(ctx context.Context, chatID int64, username, args string) error {
	toolID, text := parseTool(args)
	if toolID == "" {
		return h.tg.SendText(chatID, toolList(h.studio.QuickTool.Tools()))
	}
	tool, ok := h.studio.Catalog().QuickTool(toolID)
	if !ok {
		return h.tg.SendText(chatID, "❌ "+studio.Describe(fmt.Errorf("%w: %q", prompt.ErrUnknownTool, toolID)))
	}
	if tool.RequiresImage {
		reply, err := h.enterMode(chatID, username, "tool", args)
		if err != nil {
			return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
		}
		return h.tg.SendText(chatID, reply)
	}
	return h.runSingle(ctx, chatID, username, workflowTool, func() (itemResult, error) {
		item, err := h.studio.QuickTool.Generate(ctx, quickToolSelection(toolID, text, codec.Image{}))
		return itemResult{item: item}, err
	})
}

func (h *Handler) processImages(ctx context.Context, chatID int64, username, caption string, fileIDs []string) error {
	if command, args, ok := captionCommand(caption); ok {
		if _, err := h.enterMode(chatID, username, command, args); err != nil {
			return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
		}
	}

	st := h.sessions.Get(chatID, username)
	if st.Mode == session.ModeIdle {
		return h.tg.SendText(chatID, "Pick a workflow first, e.g. /product, /mockup or /character. Use /help for details.")
	}

	h.tg.SendTyping(chatID)
	images, err := h.download(ctx, fileIDs)
	if err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Failed to download the photo.")
	}

	switch st.Mode {
	case session.ModeProduct:
		return h.runProduct(ctx, chatID, username, st.Args, images)
	case session.ModeMockupTarget:
		return h.runMockupTarget(ctx, chatID, username, st.Args, images)
	case session.ModeMockupDesign:
		return h.runMockupInject(ctx, chatID, username, st.Args, images[0])
	case session.ModeCharacter:
		return h.runCharacter(ctx, chatID, username, st.Args, images)
	case session.ModeTool:
		toolID, text := parseTool(st.Args)
		h.sessions.Clear(chatID)
		return h.runSingle(ctx, chatID, username, workflowTool, func() (itemResult, error) {
			item, err := h.studio.QuickTool.Generate(ctx, quickToolSelection(toolID, text, images[0]))
			return itemResult{item: item}, err
		})
	}
	return nil
}

func (h *Handler) download(ctx context.Context, fileIDs []string) ([]codec.Image, error) {
	if len(fileIDs) == 0 {
		return nil, errors.New("no files to download")
	}
	images := make([]codec.Image, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			img, err := h.tg.DownloadImage(egCtx, fileID)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func (h *Handler) runProduct(ctx context.Context, chatID int64, username, args string, images []codec.Image) error {
	sel := productSelection(args)
	sel.Product = images[0]
	if len(images) > 1 {
		sel.Style = images[1]
	}
	h.sessions.Clear(chatID)
	return h.runBatch(ctx, chatID, username, workflowProduct, func(ro studio.RunOptions) (int, error) {
		res, err := h.studio.Product.Generate(ctx, sel, ro)
		return len(res.Items), err
	})
}

func (h *Handler) runMockupTarget(ctx context.Context, chatID int64, username, args string, images []codec.Image) error {
	ma := parseMockup(args)
	target := images[0]

	if ma.skipClean {
		if err := h.studio.Mockup.SkipCleaning(target); err != nil {
			return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
		}
	} else {
		var cleaned bool
		err := h.runSingle(ctx, chatID, username, "", func() (itemResult, error) {
			img, err := h.studio.Mockup.Clean(ctx, prompt.MockupCleanSelection{Target: target, AspectRatio: ma.aspectRatio})
			cleaned = err == nil
			return itemResult{image: img, caption: "🧽 Surface cleaned."}, err
		})
		if err != nil || !cleaned {
			return err
		}
	}

	h.sessions.Update(chatID, username, func(st *session.Session) { st.Mode = session.ModeMockupDesign })
	if len(images) > 1 {
		return h.runMockupInject(ctx, chatID, username, args, images[1])
	}
	return h.tg.SendText(chatID, "🎨 Now send the design to place on it.")
}

func (h *Handler) runMockupInject(ctx context.Context, chatID int64, username, args string, design codec.Image) error {
	ma := parseMockup(args)
	return h.runSingle(ctx, chatID, username, workflowMockup, func() (itemResult, error) {
		item, err := h.studio.Mockup.Inject(ctx, prompt.MockupInjectSelection{
			Design:      design,
			AspectRatio: ma.aspectRatio,
			MockupStyle: ma.style,
		})
		return itemResult{item: item, caption: "✅ Mockup ready. Send another design, /save or /cancel."}, err
	})
}

func (h *Handler) runCharacter(ctx context.Context, chatID int64, username, args string, images []codec.Image) error {
	ca := parseCharacter(args)
	if err := h.studio.Character.Update(ca.apply(images)); err != nil {
		return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
	}
	h.sessions.Clear(chatID)

	var completed int
	err := h.runBatch(ctx, chatID, username, workflowCharacter, func(ro studio.RunOptions) (int, error) {
		res, err := h.studio.Character.GeneratePack(ctx, ro)
		completed = len(res.Items)
		return completed, err
	})
	if err != nil || completed == 0 {
		return err
	}

	var buf bytes.Buffer
	name, err := h.studio.Character.ExportZip(&buf)
	if err != nil {
		h.logger.Error("character pack export failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
	}
	return h.tg.SendDocument(chatID, name, buf.Bytes(), "📦 Character pack. Use /save to add this character to the model list.")
}

// runBatch runs fn with a stop token registered for the chat and streams
// each result back as it arrives.
func (h *Handler) runBatch(ctx context.Context, chatID int64, username, workflow string, fn func(studio.RunOptions) (int, error)) error {
	stop, ok := h.sessions.BeginRun(chatID)
	if !ok {
		return h.tg.SendText(chatID, "❌ "+studio.Describe(studio.ErrBusy))
	}
	defer h.sessions.EndRun(chatID, stop)

	p := &progress{h: h, chatID: chatID}
	completed, err := fn(studio.RunOptions{Stop: stop, OnEvent: p.observe})
	if completed > 0 {
		h.sessions.Update(chatID, username, func(st *session.Session) { st.Workflow = workflow })
	}
	if err != nil {
		h.logger.Warn("batch failed", "chat_id", chatID, "workflow", workflow, "completed", completed, "err", err)
		return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
	}
	return h.tg.SendText(chatID, p.finished+" Use /save to keep the latest.")
}

// runSingle runs one generation. An empty workflow leaves /save untouched.
func (h *Handler) runSingle(ctx context.Context, chatID int64, username, workflow string, fn func() (itemResult, error)) error {
	stop, ok := h.sessions.BeginRun(chatID)
	if !ok {
		return h.tg.SendText(chatID, "❌ "+studio.Describe(studio.ErrBusy))
	}
	defer h.sessions.EndRun(chatID, stop)

	h.tg.SendTyping(chatID)
	res, err := fn()
	if err != nil {
		h.logger.Warn("generation failed", "chat_id", chatID, "workflow", workflow, "err", err)
		return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
	}
	if workflow != "" {
		h.sessions.Update(chatID, username, func(st *session.Session) { st.Workflow = workflow })
	}

	img := res.image
	if img.IsZero() {
		if img, err = codec.Decode(res.item.ImageDataURI); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	caption := res.caption
	if caption == "" {
		caption = "✅ " + res.item.Label + " ready. Use /save to keep it."
	}
	return h.tg.SendImage(chatID, img, caption)
}

func (h *Handler) save(ctx context.Context, chatID int64, username string) error {
	st := h.sessions.Get(chatID, username)

	if st.Workflow == workflowCharacter {
		sub, _, err := h.studio.Character.SaveCharacter(ctx)
		if err != nil {
			return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
		}
		h.logger.Info("character saved from chat", "chat_id", chatID, "subject_id", sub.ID)
		return h.tg.SendText(chatID, "💾 "+sub.Name+" saved as a model and added to the gallery.")
	}

	var title string
	var err error
	switch st.Workflow {
	case workflowProduct:
		title, err = assetTitle(h.studio.Product.Save(ctx, ""))
	case workflowMockup:
		title, err = assetTitle(h.studio.Mockup.Save(ctx, ""))
	case workflowRebrand:
		title, err = assetTitle(h.studio.Rebrand.Save(ctx, ""))
	case workflowTool:
		title, err = assetTitle(h.studio.QuickTool.Save(ctx, ""))
	default:
		return h.tg.SendText(chatID, studio.Describe(studio.ErrNoResult))
	}
	if err != nil {
		return h.tg.SendText(chatID, "❌ "+studio.Describe(err))
	}
	return h.tg.SendText(chatID, "💾 Saved to gallery: "+title)
}

func (h *Handler) sendUsage(ctx context.Context, chatID int64) error {
	snap, err := h.studio.Tracker().Snapshot(ctx)
	if err != nil {
		h.logger.Error("usage read failed", "err", err)
		return h.tg.SendText(chatID, "❌ "+studio.Describe(&studio.StorageError{Op: "read usage", Err: err}))
	}
	return h.tg.SendText(chatID, fmt.Sprintf("📊 Usage %s: %d of %d used, %d remaining.", snap.Date(), snap.Used, snap.Limit, snap.Remaining()))
}

// captionCommand reads "/command args" from a photo caption.
func captionCommand(caption string) (command, args string, ok bool) {
	caption = strings.TrimSpace(caption)
	if !strings.HasPrefix(caption, "/") {
		return "", "", false
	}
	command, args, _ = strings.Cut(caption[1:], " ")
	command, _, _ = strings.Cut(command, "@")
	command = strings.ToLower(command)
	switch command {
	case "product", "mockup", "character", "tool":
		return command, strings.TrimSpace(args), true
	}
	return "", "", false
}

type itemResult struct {
	item    history.Item
	image   codec.Image
	caption string
}

const helpText = "🎨 Gelap Studio\n\n" +
	"/product [count=3] [ratio=1:1] [templates=minimal,luxury] [vary] [preserve] [description] - product photos from your shot\n" +
	"/mockup [skip] [ratio=1:1] [technique=dtg] [color=#ffffff] - clean an object and print your design on it\n" +
	"/character [gender=Male] [bg=#808080] Name | outfit - 13-shot character sheet with a zip pack\n" +
	"/rebrand [style=modern] [palette=ocean] Name | description - brand identity concept\n" +
	"/tool [id] [prompt] - quick generation tools\n" +
	"/save - keep the latest result in the gallery\n" +
	"/usage - today's quota\n" +
	"/stop - stop the running batch\n" +
	"/cancel - leave the current workflow\n\n" +
	"Commands can also be sent as a photo caption."
