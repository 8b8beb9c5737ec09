package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gelap-studio/internal/codec"
	"gelap-studio/internal/gemini"
	"gelap-studio/internal/logging"
	"gelap-studio/internal/mediagroup"
	"gelap-studio/internal/session"
	"gelap-studio/internal/store"
	"gelap-studio/internal/studio"
	"gelap-studio/internal/telegram"
	"gelap-studio/internal/usage"
	"gelap-studio/internal/workspace"
)

const chatID int64 = 42

type sentDocument struct {
	name string
	data []byte
}

type fakeMessenger struct {
	mu      sync.Mutex
	texts   []string
	images  []string
	docs    []sentDocument
	files   map[string]codec.Image
	onImage func(n int)
}

func (m *fakeMessenger) SendTyping(int64) {}

func (m *fakeMessenger) SendText(_ int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *fakeMessenger) SendImage(_ int64, img codec.Image, caption string) error {
	m.mu.Lock()
	m.images = append(m.images, caption)
	n := len(m.images)
	hook := m.onImage
	m.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (m *fakeMessenger) SendDocument(_ int64, name string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, sentDocument{name: name, data: data})
	return nil
}

func (m *fakeMessenger) DownloadImage(_ context.Context, fileID string) (codec.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.files[fileID]
	if !ok {
		return codec.Image{}, errors.New("file not found")
	}
	return img, nil
}

func (m *fakeMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

func (m *fakeMessenger) imageCaptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.images...)
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []gemini.ImageRequest
}

func (f *fakeGenerator) GenerateImage(_ context.Context, in gemini.ImageRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	return codec.Image{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("out-%d", len(f.calls))))}.DataURI(), nil
}

func (f *fakeGenerator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) AnalyzePrompt(context.Context, gemini.AnalysisRequest) (string, error) {
	return "a bottle on marble", nil
}

type env struct {
	h     *Handler
	tg    *fakeMessenger
	gen   *fakeGenerator
	store *store.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gen := &fakeGenerator{}
	s, err := studio.New(studio.Options{
		Generator: gen,
		Analyzer:  fakeAnalyzer{},
		Tracker:   usage.New(usage.NewMemoryCounter(), usage.Options{DailyLimit: 20}),
		Store:     st,
		Autosaver: workspace.New(workspace.Options{Drafts: st, Debounce: time.Hour}),
		Logger:    logging.Discard(),
		Tick:      time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	tg := &fakeMessenger{files: map[string]codec.Image{
		"photo-1": {MimeType: "image/jpeg", Data: "UEhPVE8x"},
		"photo-2": {MimeType: "image/jpeg", Data: "UEhPVE8y"},
		"photo-3": {MimeType: "image/jpeg", Data: "UEhPVE8z"},
	}}
	h := New(Options{Messenger: tg, Studio: s, Sessions: session.NewStore(session.Options{}), Logger: logging.Discard()})
	return &env{h: h, tg: tg, gen: gen, store: st}
}

func command(text string) telegram.Update {
	name := strings.Fields(text)[0]
	return telegram.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: chatID, UserName: "sari"},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func photo(fileID, caption string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: chatID},
		From:    &tgbotapi.User{ID: chatID, UserName: "sari"},
		Caption: caption,
		Photo:   []tgbotapi.PhotoSize{{FileID: "thumb"}, {FileID: fileID}},
	}}
}

func (e *env) send(t *testing.T, u telegram.Update) {
	t.Helper()
	require.NoError(t, e.h.HandleUpdate(context.Background(), u))
}

func TestUsageCommand(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/usage"))
	assert.Contains(t, e.tg.lastText(), "0 of 20 used, 20 remaining")
}

func TestPhotoWithoutWorkflowAsksForOne(t *testing.T) {
	e := newEnv(t)
	e.send(t, photo("photo-1", ""))
	assert.Contains(t, e.tg.lastText(), "Pick a workflow first")
	assert.Zero(t, e.gen.count())
}

func TestProductBatchFromPhoto(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/product count=2 templates=minimal,luxury"))
	assert.Contains(t, e.tg.lastText(), "2 image(s)")

	e.send(t, photo("photo-1", ""))
	assert.Equal(t, 2, e.gen.count())
	assert.Len(t, e.tg.imageCaptions(), 2)
	assert.Contains(t, e.tg.lastText(), "Batch complete: 2 of 2.")
	assert.Equal(t, session.ModeIdle, e.h.sessions.Get(chatID, "").Mode)

	e.send(t, command("/save"))
	assert.Contains(t, e.tg.lastText(), "Saved to gallery: Product Studio Generation")
	assets, err := e.store.ListAssets(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestCaptionStartsWorkflow(t *testing.T) {
	e := newEnv(t)
	e.send(t, photo("photo-1", "/product minimal white backdrop"))
	assert.Equal(t, 1, e.gen.count())
	assert.Len(t, e.tg.imageCaptions(), 1)
}

func TestStopMidBatch(t *testing.T) {
	e := newEnv(t)
	e.tg.onImage = func(n int) {
		if n == 1 {
			require.NoError(t, e.h.HandleUpdate(context.Background(), command("/stop")))
		}
	}
	e.send(t, command("/product count=3"))
	e.send(t, photo("photo-1", ""))

	assert.Equal(t, 1, e.gen.count())
	assert.Contains(t, e.tg.lastText(), "Stopped by user after 1 of 3.")
	assert.False(t, e.h.sessions.Get(chatID, "").Running)
}

func TestStopWhenIdle(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/stop"))
	assert.Equal(t, "Nothing is running.", e.tg.lastText())
}

func TestDownloadFailure(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/product"))
	e.send(t, photo("missing", ""))
	assert.Contains(t, e.tg.lastText(), "Failed to download")
	assert.Zero(t, e.gen.count())
}

func TestRebrand(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/rebrand"))
	assert.Contains(t, e.tg.lastText(), "Usage: /rebrand")

	e.send(t, command("/rebrand style=modern palette=ocean Kopi Senja | small batch coffee"))
	require.Equal(t, 1, e.gen.count())
	assert.Contains(t, e.gen.calls[0].Prompt, `- Name: "Kopi Senja"`)
	assert.Contains(t, e.gen.calls[0].Prompt, "Ocean Blue")

	e.send(t, command("/save"))
	assert.Contains(t, e.tg.lastText(), "Rebrand: Kopi Senja")
}

func TestMockupAlbumCleansThenInjects(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/mockup technique=dtg"))
	e.h.HandleMediaGroup(context.Background(), mediagroup.Group{ChatID: chatID, FileIDs: []string{"photo-1", "photo-2"}})

	require.Equal(t, 2, e.gen.count())
	require.Len(t, e.gen.calls[1].Images, 2)
	assert.Equal(t, "UEhPVE8y", e.gen.calls[1].Images[1].Data)
	assert.Len(t, e.tg.imageCaptions(), 2)
	assert.Equal(t, session.ModeMockupDesign, e.h.sessions.Get(chatID, "").Mode)

	e.send(t, photo("photo-3", ""))
	assert.Equal(t, 3, e.gen.count())

	e.send(t, command("/cancel"))
	_, _, ok := e.h.studio.Mockup.Base()
	assert.False(t, ok)
}

func TestMockupSkipCleaning(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/mockup skip"))
	e.send(t, photo("photo-1", ""))
	assert.Zero(t, e.gen.count())
	assert.Contains(t, e.tg.lastText(), "Now send the design")

	e.send(t, photo("photo-2", ""))
	require.Equal(t, 1, e.gen.count())
	assert.Equal(t, "UEhPVE8x", e.gen.calls[0].Images[0].Data)
}

func TestCharacterPack(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/character"))
	assert.Contains(t, e.tg.lastText(), "A name is required.")

	e.send(t, command("/character gender=Female Sari | Batik dress"))
	e.h.HandleMediaGroup(context.Background(), mediagroup.Group{ChatID: chatID, FileIDs: []string{"photo-1", "photo-2"}})

	shots := len(e.h.studio.Character.Shots())
	assert.Equal(t, shots, e.gen.count())
	assert.Len(t, e.tg.imageCaptions(), shots)
	assert.Contains(t, e.gen.calls[0].Prompt, "WEARING: Batik dress.")

	require.Len(t, e.tg.docs, 1)
	assert.Equal(t, "Sari_CharacterPack.zip", e.tg.docs[0].name)
	zr, err := zip.NewReader(bytes.NewReader(e.tg.docs[0].data), int64(len(e.tg.docs[0].data)))
	require.NoError(t, err)
	assert.Len(t, zr.File, shots)

	e.send(t, command("/save"))
	assert.Contains(t, e.tg.lastText(), "Sari saved as a model")
	subjects, err := e.store.ListCustomSubjects(context.Background())
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "Sari", subjects[0].Name)
}

func TestToolCommands(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/tool"))
	assert.Contains(t, e.tg.lastText(), "fashion-catalogue - Fashion Catalogue")

	e.send(t, command("/tool nope hello"))
	assert.Contains(t, e.tg.lastText(), "Unknown tool.")

	e.send(t, command("/tool fashion-catalogue red linen set"))
	require.Equal(t, 1, e.gen.count())
	assert.Contains(t, e.gen.calls[0].Prompt, "Fashion catalogue shot. red linen set.")

	e.send(t, command("/tool product-photo on a marble table"))
	assert.Contains(t, e.tg.lastText(), "Send the photo for Product Photo Studio")
	e.send(t, photo("photo-1", ""))
	require.Equal(t, 2, e.gen.count())
	assert.Len(t, e.gen.calls[1].Images, 1)
}

func TestSaveWithoutResult(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/save"))
	assert.Equal(t, "There is no generated image yet.", e.tg.lastText())
}

func TestUnknownCommand(t *testing.T) {
	e := newEnv(t)
	e.send(t, command("/dance"))
	assert.Contains(t, e.tg.lastText(), "Unknown command")
}
