package studio

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/gemini"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
	"gelap-studio/internal/usage"
	"gelap-studio/internal/workspace"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls []gemini.ImageRequest
}

func (f *fakeGenerator) GenerateImage(_ context.Context, in gemini.ImageRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	payload := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("out-%d", len(f.calls))))
	return "data:image/png;base64," + payload, nil
}

func (f *fakeGenerator) Calls() []gemini.ImageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gemini.ImageRequest(nil), f.calls...)
}

type fakeAnalyzer struct {
	calls int
	text  string
}

func (f *fakeAnalyzer) AnalyzePrompt(context.Context, gemini.AnalysisRequest) (string, error) {
	f.calls++
	return f.text, nil
}

type fixture struct {
	studio   *Studio
	store    *store.Store
	gen      *fakeGenerator
	analyzer *fakeAnalyzer
	counter  *usage.MemoryCounter
	tracker  *usage.Tracker
}

func newFixture(t *testing.T, modelsURL string) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return newFixtureWithStore(t, st, modelsURL)
}

func newFixtureWithStore(t *testing.T, st *store.Store, modelsURL string) *fixture {
	t.Helper()
	counter := usage.NewMemoryCounter()
	tracker := usage.New(counter, usage.Options{DailyLimit: 20})
	f := &fixture{
		store:    st,
		gen:      &fakeGenerator{},
		analyzer: &fakeAnalyzer{text: "analysed prompt"},
		counter:  counter,
		tracker:  tracker,
	}
	s, err := New(Options{
		Generator:     f.gen,
		Analyzer:      f.analyzer,
		Tracker:       tracker,
		Store:         st,
		Autosaver:     workspace.New(workspace.Options{Drafts: st, Debounce: 10 * time.Millisecond}),
		ModelsBaseURL: modelsURL,
		Tick:          time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	f.studio = s
	return f
}

func (f *fixture) used(t *testing.T) int {
	t.Helper()
	n, err := f.tracker.Usage(context.Background())
	require.NoError(t, err)
	return n
}

func pngImage(data string) codec.Image {
	return codec.Image{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString([]byte(data))}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", usage.ErrDailyLimit), "Daily usage limit reached. Try again tomorrow."},
		{&gemini.Error{Kind: gemini.KindAuth, Message: "bad key"}, "Invalid API key. Please check your key and try again."},
		{&gemini.Error{Kind: gemini.KindQuota, Message: "429"}, "API quota exceeded. Please wait a moment or check your plan."},
		{prompt.ErrMissingInteraction, "Please select or describe a model interaction."},
		{ErrNoCleanBase, "Clean the mockup surface (or skip cleaning) before injecting a design."},
		{&StorageError{Op: "save asset", Err: errors.New("disk full")}, "Failed to save. Storage is unavailable."},
		{errors.New("boom"), "Something went wrong: boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.err))
	}
}

func TestProductGenerateRunsBatch(t *testing.T) {
	f := newFixture(t, "")
	ctx := WithCredential(context.Background(), " user-key ")

	res, err := f.studio.Product.Generate(ctx, prompt.ProductSelection{
		Product: pngImage("product"),
		Count:   2,
	}, RunOptions{})
	require.NoError(t, err)

	assert.Len(t, res.Items, 2)
	assert.Equal(t, 1, f.analyzer.calls)
	assert.Equal(t, "analysed prompt", f.studio.Product.Prompt())
	assert.Len(t, f.studio.Product.History(), 2)
	assert.Equal(t, 2, f.used(t))

	calls := f.gen.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "user-key", calls[0].Credential)
	assert.Contains(t, calls[0].Prompt, "analysed prompt")

	asset, err := f.studio.Product.Save(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, productSaveTitle, asset.Title)
	assert.Equal(t, "analysed prompt", asset.Prompt)
}

func TestProductGenerateChecksQuotaBeforeAnalysis(t *testing.T) {
	f := newFixture(t, "")
	f.counter.Set(f.tracker.Key(), 20)

	_, err := f.studio.Product.Generate(context.Background(), prompt.ProductSelection{Product: pngImage("p"), Count: 1}, RunOptions{})
	assert.ErrorIs(t, err, usage.ErrDailyLimit)
	assert.Zero(t, f.analyzer.calls)
	assert.Empty(t, f.gen.Calls())
}

func TestProductRegenerateUsesEditedPrompt(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.studio.Product.Regenerate(context.Background(), prompt.ProductSelection{Product: pngImage("p")}, "  my edit  ", RunOptions{})
	require.NoError(t, err)

	assert.Zero(t, f.analyzer.calls)
	assert.Equal(t, "my edit", f.studio.Product.Prompt())
	assert.Equal(t, "my edit", f.studio.Product.History()[0].Prompt)
}

func TestMockupInjectNeedsBase(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.studio.Mockup.Inject(context.Background(), prompt.MockupInjectSelection{Design: pngImage("design")})
	assert.ErrorIs(t, err, ErrNoCleanBase)
	assert.Empty(t, f.gen.Calls())
}

func TestMockupCleanThenInject(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	cleaned, err := f.studio.Mockup.Clean(ctx, prompt.MockupCleanSelection{Target: pngImage("shirt")})
	require.NoError(t, err)
	assert.Empty(t, f.studio.Mockup.History())

	base, wasCleaned, ok := f.studio.Mockup.Base()
	require.True(t, ok)
	assert.True(t, wasCleaned)
	assert.Equal(t, cleaned, base)

	item, err := f.studio.Mockup.Inject(ctx, prompt.MockupInjectSelection{Design: pngImage("design")})
	require.NoError(t, err)
	assert.Equal(t, mockupInjectDisplay, item.Prompt)
	assert.Equal(t, mockupDownloadLabel, item.Label)
	assert.Equal(t, 2, f.used(t))

	calls := f.gen.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, cleaned.Data, calls[1].Images[0].Data)

	asset, err := f.studio.Mockup.Save(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mockup: Injected", asset.Title)
	assert.Equal(t, calls[1].Prompt, asset.Prompt)
}

func TestMockupSkipCleaning(t *testing.T) {
	f := newFixture(t, "")
	assert.ErrorIs(t, f.studio.Mockup.SkipCleaning(codec.Image{}), prompt.ErrMissingImage)

	target := pngImage("mug")
	require.NoError(t, f.studio.Mockup.SkipCleaning(target))
	base, cleaned, ok := f.studio.Mockup.Base()
	assert.True(t, ok)
	assert.False(t, cleaned)
	assert.Equal(t, target, base)

	f.studio.Mockup.Reset()
	_, _, ok = f.studio.Mockup.Base()
	assert.False(t, ok)
}

func TestHireModelSubjectLifecycle(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	hm := f.studio.HireModel

	assert.Equal(t, "m7", hm.Selected())

	sub, err := hm.UploadSubject(ctx, "", "photos/a-very-long-model-name.png", pngImage("face"))
	require.NoError(t, err)
	assert.Equal(t, "a-very-long-mod", sub.Name)
	assert.Equal(t, uploadedSubjectDescription, sub.Description)
	assert.Equal(t, sub.ID, hm.Selected())

	subjects, err := hm.Subjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.True(t, subjects[0].Custom)
	assert.Equal(t, "m7", subjects[1].ID)

	edited, err := hm.EditSubject(ctx, sub.ID, "Ayu", codec.Image{})
	require.NoError(t, err)
	assert.Equal(t, "Ayu", edited.Name)
	assert.Equal(t, sub.ThumbnailDataURI, edited.ThumbnailDataURI)

	_, err = hm.EditSubject(ctx, "missing", "X", codec.Image{})
	assert.ErrorIs(t, err, ErrUnknownModel)

	next, err := hm.DeleteSubject(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "m7", next)
	assert.Equal(t, "m7", hm.Selected())
}

func TestHireModelUsesCustomSubject(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	face := pngImage("face")

	sub, err := f.studio.HireModel.UploadSubject(ctx, "Ayu", "", face)
	require.NoError(t, err)

	item, err := f.studio.HireModel.Generate(ctx, HireModelRequest{
		HireModelSelection: prompt.HireModelSelection{Mode: prompt.HireHuman, Context: "Brand Ambassador"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Model", item.Label)

	calls := f.gen.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Images, 1)
	assert.Equal(t, face.Data, calls[0].Images[0].Data)
	assert.Contains(t, calls[0].Prompt, "Professional Model ("+sub.Name+")")

	asset, err := f.studio.HireModel.Save(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Model Portfolio", asset.Title)
	assert.Equal(t, "Hire Model: human - Brand Ambassador", asset.Prompt)
}

func TestHireModelFetchesPredefinedReference(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/models/jono/reference.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jono-reference"))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	_, err := f.studio.HireModel.Generate(context.Background(), HireModelRequest{
		HireModelSelection: prompt.HireModelSelection{Context: "Tech Gadget"},
		SubjectID:          "m7",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	calls := f.gen.Calls()
	require.Len(t, calls[0].Images, 1)
	assert.Equal(t, "image/jpeg", calls[0].Images[0].MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jono-reference")), calls[0].Images[0].Data)
}

func TestHireModelUnknownSubject(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.studio.HireModel.Generate(context.Background(), HireModelRequest{SubjectID: "nobody"})
	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.Empty(t, f.gen.Calls())
}

func TestHireModelValidatesInteraction(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.studio.HireModel.Generate(context.Background(), HireModelRequest{
		HireModelSelection: prompt.HireModelSelection{Context: prompt.ContextClothing},
	})
	assert.ErrorIs(t, err, prompt.ErrMissingInteraction)
}

func setupCharacter(t *testing.T, cs *CharacterStudio) {
	t.Helper()
	require.NoError(t, cs.Update(func(w *CharacterWorkspace) {
		w.Name = "Rara"
		w.Gender = "Female"
		w.RefImages = []string{pngImage("face-1").DataURI(), pngImage("face-2").DataURI()}
	}))
}

func TestCharacterPackAnchorsLaterShots(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	cs := f.studio.Character
	setupCharacter(t, cs)

	var events int
	res, err := cs.GeneratePack(ctx, RunOptions{OnEvent: func(batch.Event) { events++ }})
	require.NoError(t, err)

	shots := cs.Shots()
	require.Len(t, res.Items, len(shots))
	assert.Positive(t, events)

	calls := f.gen.Calls()
	require.Len(t, calls, len(shots))
	assert.Len(t, calls[0].Images, 2)
	assert.NotContains(t, calls[0].Prompt, "OFFICIAL GENERATED DESIGN")
	assert.Len(t, calls[1].Images, 3)
	assert.Contains(t, calls[1].Prompt, "Reference Image #3 is the OFFICIAL GENERATED DESIGN")

	ws := cs.Workspace()
	require.Len(t, ws.Items, len(shots))
	assert.Equal(t, "Front Standing", ws.Items[0].Label)
	assert.Equal(t, shots[4].Type, ws.Items[4].Type)
}

func TestCharacterSaveAndExport(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	cs := f.studio.Character

	_, _, err := cs.SaveCharacter(ctx)
	assert.ErrorIs(t, err, ErrNoResult)

	setupCharacter(t, cs)
	_, err = cs.GeneratePack(ctx, RunOptions{})
	require.NoError(t, err)

	sub, asset, err := cs.SaveCharacter(ctx)
	require.NoError(t, err)
	ws := cs.Workspace()
	assert.Equal(t, "Rara", sub.Name)
	assert.Equal(t, ws.Items[0].URL, sub.ThumbnailDataURI)
	assert.True(t, strings.HasPrefix(sub.Description, "Custom character created in Character Studio. Gender: Female."))
	assert.Equal(t, "Rara Character Sheet", asset.Title)
	assert.Equal(t, "Character Pack: Rara (Saved as Model)", asset.Prompt)

	subjects, err := f.studio.HireModel.Subjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, subjects[0].ID)

	var buf bytes.Buffer
	name, err := cs.ExportZip(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Rara_CharacterPack.zip", name)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, len(ws.Items))
	assert.Equal(t, "Rara_CharacterPack/Rara_FullBody_Front_Standing.png", zr.File[0].Name)
}

func TestCharacterWorkspaceRestores(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	first := newFixtureWithStore(t, st, "")
	setupCharacter(t, first.studio.Character)
	require.NoError(t, first.studio.Character.Flush(context.Background()))

	second := newFixtureWithStore(t, st, "")
	ok, err := second.studio.Character.Restore(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ws := second.studio.Character.Workspace()
	assert.Equal(t, "Rara", ws.Name)
	assert.Len(t, ws.RefImages, 2)
	assert.Equal(t, prompt.DefaultCharacterBackground, ws.Background)
}

func TestCharacterUpdateKeepsBlankGenderAndBackground(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.studio.Character.Update(func(w *CharacterWorkspace) {
		w.Name = "Sari"
		w.Gender = ""
		w.Background = ""
		w.RefImages = []string{pngImage("face").DataURI()}
		w.Items = []CharacterItem{{ID: "a", Type: "closeup", Label: "Close Up", URL: pngImage("shot").DataURI()}}
	}))

	ws := f.studio.Character.Workspace()
	assert.Equal(t, "Sari", ws.Name)
	assert.Empty(t, ws.Gender)
	assert.Empty(t, ws.Background)
	assert.Len(t, ws.RefImages, 1)
	assert.Len(t, ws.Items, 1)

	require.NoError(t, f.studio.Character.Update(func(w *CharacterWorkspace) { w.CustomOutfit = "Batik" }))
	ws = f.studio.Character.Workspace()
	assert.Equal(t, "Sari", ws.Name)
	assert.Len(t, ws.Items, 1)
}

func TestCharacterRestoreKeepsBlankDraftFields(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	draft, err := json.Marshal(CharacterWorkspace{
		Name:  "Sari",
		Items: []CharacterItem{{ID: "a", Type: "closeup", Label: "Close Up", URL: pngImage("shot").DataURI()}},
	})
	require.NoError(t, err)
	require.NoError(t, st.SaveWorkspaceDraft(context.Background(), characterDraftKey, draft, 1))

	f := newFixtureWithStore(t, st, "")
	ok, err := f.studio.Character.Restore(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ws := f.studio.Character.Workspace()
	assert.Equal(t, "Sari", ws.Name)
	assert.Empty(t, ws.Gender)
	require.Len(t, ws.Items, 1)
	assert.Equal(t, "Close Up", ws.Items[0].Label)
}

func TestCharacterUpdateCapsReferences(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.studio.Character.Update(func(w *CharacterWorkspace) {
		for i := 0; i < 7; i++ {
			w.RefImages = append(w.RefImages, pngImage(fmt.Sprint(i)).DataURI())
		}
	}))
	assert.Len(t, f.studio.Character.Workspace().RefImages, prompt.MaxFacesPerPerson)
}

func TestRebrandGenerateAndSave(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.studio.Rebrand.Generate(ctx, prompt.RebrandSelection{})
	assert.ErrorIs(t, err, prompt.ErrMissingName)

	item, err := f.studio.Rebrand.Generate(ctx, prompt.RebrandSelection{BrandName: " Kopi Senja ", Industry: "Coffee"})
	require.NoError(t, err)
	assert.Equal(t, "RebrandStudio", item.Label)
	assert.Equal(t, prompt.RebrandAspect, f.gen.Calls()[0].AspectRatio)

	asset, err := f.studio.Rebrand.Save(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rebrand: Kopi Senja", asset.Title)
}

func TestQuickToolGenerate(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.studio.QuickTool.Generate(ctx, prompt.QuickToolSelection{ToolID: "fashion-catalogue"})
	assert.ErrorIs(t, err, prompt.ErrEmptyPrompt)

	_, err = f.studio.QuickTool.Generate(ctx, prompt.QuickToolSelection{ToolID: "nope", Prompt: "x"})
	assert.ErrorIs(t, err, prompt.ErrUnknownTool)

	item, err := f.studio.QuickTool.Generate(ctx, prompt.QuickToolSelection{ToolID: "fashion-catalogue", Prompt: "red dress"})
	require.NoError(t, err)
	assert.Equal(t, "red dress", item.Prompt)
	assert.Equal(t, "Fashion Catalogue", item.Label)
	assert.Contains(t, f.gen.Calls()[0].Prompt, "Fashion catalogue shot. red dress.")

	asset, err := f.studio.QuickTool.Save(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Fashion Catalogue Generation", asset.Title)
}

func TestBusyRejectsOverlap(t *testing.T) {
	var b busy
	require.NoError(t, b.begin())
	assert.ErrorIs(t, b.begin(), ErrBusy)
	b.end()
	assert.NoError(t, b.begin())
}

func TestEncodeAllKeepsOrder(t *testing.T) {
	imgs, err := EncodeAll(context.Background(), [][]byte{[]byte("one"), []byte("two")})
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("two")), imgs[1].Data)

	_, err = EncodeAll(context.Background(), [][]byte{nil})
	assert.ErrorIs(t, err, codec.ErrEmpty)
}
