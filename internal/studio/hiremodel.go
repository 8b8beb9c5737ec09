package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
)

const (
	uploadedSubjectDescription = "Uploaded Model Reference"
	maxUploadNameLen           = 15
	maxReferenceBytes          = 20 << 20
)

// Subject is one pickable model: a saved custom subject or a catalog model.
type Subject struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Custom      bool   `json:"custom"`
}

// HireModelRequest is a selection plus the subject to resolve into the
// identity reference. An empty SubjectID uses the current selection.
type HireModelRequest struct {
	prompt.HireModelSelection
	SubjectID string
}

type HireModel struct {
	s       *Studio
	history *history.List
	busy    busy
	meta    itemMeta

	mu       sync.Mutex
	selected string
}

// Subjects lists custom subjects (newest first) followed by the catalog
// models with any cached thumbnail.
func (h *HireModel) Subjects(ctx context.Context) ([]Subject, error) {
	custom, err := h.s.store.ListCustomSubjects(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list subjects", Err: err}
	}
	thumbs, err := h.s.store.SubjectThumbnails(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list thumbnails", Err: err}
	}

	out := make([]Subject, 0, len(custom)+len(h.s.Catalog().HireModel.PredefinedModels))
	for _, c := range custom {
		out = append(out, Subject{ID: c.ID, Name: c.Name, Description: c.Description, Thumbnail: c.ThumbnailDataURI, Custom: true})
	}
	for _, m := range h.s.Catalog().HireModel.PredefinedModels {
		thumb := thumbs[m.ID]
		if thumb == "" {
			thumb = m.FallbackURL
		}
		out = append(out, Subject{ID: m.ID, Name: m.Name, Description: m.Description, Thumbnail: thumb})
	}
	return out, nil
}

// Selected is the current subject id, defaulting to the first catalog model.
func (h *HireModel) Selected() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.selected == "" {
		return h.defaultSubject()
	}
	return h.selected
}

func (h *HireModel) Select(id string) {
	h.mu.Lock()
	h.selected = id
	h.mu.Unlock()
}

func (h *HireModel) defaultSubject() string {
	models := h.s.Catalog().HireModel.PredefinedModels
	if len(models) == 0 {
		return ""
	}
	return models[0].ID
}

// UploadSubject saves an uploaded reference as a custom subject and selects
// it. Without a name the file name stem is used, cut to 15 characters.
func (h *HireModel) UploadSubject(ctx context.Context, name, fileName string, img codec.Image) (store.Subject, error) {
	if img.IsZero() {
		return store.Subject{}, prompt.ErrMissingImage
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = uploadName(fileName)
	}
	sub, err := h.s.store.SaveCustomSubject(ctx, store.Subject{
		Name:             name,
		ThumbnailDataURI: img.DataURI(),
		Description:      uploadedSubjectDescription,
	})
	if err != nil {
		return store.Subject{}, &StorageError{Op: "upload subject", Err: err}
	}
	h.Select(sub.ID)
	return sub, nil
}

func uploadName(fileName string) string {
	base := filepath.Base(strings.TrimSpace(fileName))
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	if utf8.RuneCountInString(base) > maxUploadNameLen {
		base = string([]rune(base)[:maxUploadNameLen])
	}
	if base == "" || base == "/" {
		base = "Model"
	}
	return base
}

// EditSubject renames a custom subject and optionally replaces its image.
func (h *HireModel) EditSubject(ctx context.Context, id, name string, img codec.Image) (store.Subject, error) {
	if strings.TrimSpace(name) == "" {
		return store.Subject{}, prompt.ErrMissingName
	}
	thumb := ""
	if !img.IsZero() {
		thumb = img.DataURI()
	}
	sub, err := h.s.store.UpdateCustomSubject(ctx, id, name, thumb)
	if errors.Is(err, store.ErrNotFound) {
		return store.Subject{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	if err != nil {
		return store.Subject{}, &StorageError{Op: "edit subject", Err: err}
	}
	return sub, nil
}

// DeleteSubject removes a custom subject. When it was selected, the first
// remaining custom subject is selected, or else the first catalog model. It
// returns the selection after the delete.
func (h *HireModel) DeleteSubject(ctx context.Context, id string) (string, error) {
	if err := h.s.store.DeleteCustomSubject(ctx, id); err != nil {
		return h.Selected(), &StorageError{Op: "delete subject", Err: err}
	}
	if h.Selected() != id {
		return h.Selected(), nil
	}

	remaining, err := h.s.store.ListCustomSubjects(ctx)
	if err != nil {
		return h.Selected(), &StorageError{Op: "list subjects", Err: err}
	}
	next := h.defaultSubject()
	if len(remaining) > 0 {
		next = remaining[0].ID
	}
	h.Select(next)
	return next, nil
}

func (h *HireModel) Generate(ctx context.Context, req HireModelRequest) (history.Item, error) {
	if err := h.busy.begin(); err != nil {
		return history.Item{}, err
	}
	defer h.busy.end()

	sel := req.HireModelSelection
	if err := sel.Validate(); err != nil {
		return history.Item{}, err
	}
	if err := h.s.tracker.Require(ctx); err != nil {
		return history.Item{}, err
	}
	if sel.Mode != prompt.HireAnimal && !sel.CustomModel {
		id := req.SubjectID
		if id == "" {
			id = h.Selected()
		}
		if err := h.resolveSubject(ctx, id, &sel); err != nil {
			return history.Item{}, err
		}
	}

	built, err := prompt.BuildHireModel(sel)
	if err != nil {
		return history.Item{}, err
	}
	item, err := h.s.single(ctx, h.history, batch.Submission{Built: built, Display: built.Text, Label: "Model"})
	if err != nil {
		return history.Item{}, err
	}
	mode := sel.Mode
	if mode == "" {
		mode = prompt.HireHuman
	}
	h.meta.put(item.ID, assetMeta{prompt: fmt.Sprintf("Hire Model: %s - %s", mode, sel.Context)})
	return item, nil
}

// resolveSubject fills the identity reference. A custom subject always has
// its thumbnail; a catalog model falls back to a text description when no
// reference image can be obtained.
func (h *HireModel) resolveSubject(ctx context.Context, id string, sel *prompt.HireModelSelection) error {
	custom, err := h.s.store.GetCustomSubject(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return &StorageError{Op: "load subject", Err: err}
	}
	if custom != nil {
		img, err := codec.Decode(custom.ThumbnailDataURI)
		if err != nil {
			return fmt.Errorf("decode subject %s: %w", custom.Name, err)
		}
		sel.Identity = img
		sel.SubjectName = custom.Name
		sel.SubjectDescription = custom.Description
		return nil
	}

	model, ok := h.s.Catalog().PredefinedModel(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	if img, ok := h.ModelReference(ctx, model); ok {
		sel.Identity = img
		return nil
	}
	sel.SubjectName = model.Name
	sel.SubjectDescription = model.Description
	return nil
}

// ModelReference finds a reference image for a catalog model: the dedicated
// reference file, then the thumbnail cache, then the remote fallback, which
// is cached on success.
func (h *HireModel) ModelReference(ctx context.Context, model prompt.PredefinedModel) (codec.Image, bool) {
	log := h.s.logger.With("model_id", model.ID)

	if h.s.modelsURL != "" {
		url := fmt.Sprintf("%s/models/%s/reference.jpg", h.s.modelsURL, model.Folder)
		img, err := h.fetchImage(ctx, url)
		if err == nil {
			return img, true
		}
		log.Debug("model reference unavailable", "err", err)
	}

	if cached, ok, err := h.s.store.SubjectThumbnail(ctx, model.ID); err != nil {
		log.Warn("thumbnail cache read failed", "err", err)
	} else if ok {
		if img, err := codec.Decode(cached); err == nil {
			return img, true
		}
	}

	if model.FallbackURL == "" {
		return codec.Image{}, false
	}
	img, err := h.fetchImage(ctx, model.FallbackURL)
	if err != nil {
		log.Warn("model fallback fetch failed", "err", err)
		return codec.Image{}, false
	}
	if err := h.s.store.SaveSubjectThumbnail(ctx, model.ID, img.DataURI()); err != nil {
		log.Warn("thumbnail cache write failed", "err", err)
	}
	return img, true
}

func (h *HireModel) fetchImage(ctx context.Context, url string) (codec.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return codec.Image{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.s.http.Do(req)
	if err != nil {
		return codec.Image{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return codec.Image{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes))
	if err != nil {
		return codec.Image{}, fmt.Errorf("read %s: %w", url, err)
	}
	return codec.EncodeBytes(raw, resp.Header.Get("Content-Type"))
}

func (h *HireModel) History() []history.Item {
	return h.history.Snapshot()
}

func (h *HireModel) Save(ctx context.Context, itemID string) (store.Asset, error) {
	item, ok := latestOr(h.history, itemID)
	if !ok {
		return store.Asset{}, ErrNoResult
	}
	meta, _ := h.meta.get(item.ID)
	return h.s.saveAsset(ctx, h.history, item.ID, meta.prompt, "Model Portfolio")
}
