package studio

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"gelap-studio/internal/batch"
	"gelap-studio/internal/codec"
	"gelap-studio/internal/export"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/store"
)

const characterDraftKey = "character"

// CharacterItem is one generated shot of the pack.
type CharacterItem struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// CharacterWorkspace is the autosaved editable state of Character Studio.
// Images are data URIs.
type CharacterWorkspace struct {
	Name           string          `json:"name"`
	Gender         string          `json:"gender"`
	SelectedOutfit string          `json:"selectedOutfit"`
	CustomOutfit   string          `json:"customOutfit"`
	Background     string          `json:"solidBgColor"`
	AspectRatio    string          `json:"aspectRatio"`
	RefImages      []string        `json:"refImages"`
	OutfitRef      string          `json:"outfitRef,omitempty"`
	Items          []CharacterItem `json:"generatedItems"`
}

func (w CharacterWorkspace) outfit() string {
	if v := strings.TrimSpace(w.CustomOutfit); v != "" {
		return v
	}
	return w.SelectedOutfit
}

func (w CharacterWorkspace) clone() CharacterWorkspace {
	w.RefImages = append([]string(nil), w.RefImages...)
	w.Items = append([]CharacterItem(nil), w.Items...)
	return w
}

// CharacterStudio generates a consistent multi-angle character sheet.
type CharacterStudio struct {
	s    *Studio
	busy busy

	mu          sync.Mutex
	ws          CharacterWorkspace
	initialized bool
}

func (c *CharacterStudio) defaults() CharacterWorkspace {
	cat := c.s.Catalog().Character
	ws := CharacterWorkspace{
		Gender:      "Female",
		Background:  prompt.DefaultCharacterBackground,
		AspectRatio: prompt.DefaultCharacterAspect,
	}
	if len(cat.Outfits) > 0 {
		ws.SelectedOutfit = cat.Outfits[0]
	}
	return ws
}

func (c *CharacterStudio) Workspace() CharacterWorkspace {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initLocked()
	return c.ws.clone()
}

// initLocked seeds the defaults once. Blank fields set later by the user or a
// restored draft are kept.
func (c *CharacterStudio) initLocked() {
	if c.initialized {
		return
	}
	c.ws = c.defaults()
	c.initialized = true
}

// Update applies fn to the workspace and schedules an autosave. At most
// MaxFacesPerPerson identity references are kept.
func (c *CharacterStudio) Update(fn func(*CharacterWorkspace)) error {
	c.mu.Lock()
	c.initLocked()
	fn(&c.ws)
	if len(c.ws.RefImages) > prompt.MaxFacesPerPerson {
		c.ws.RefImages = c.ws.RefImages[:prompt.MaxFacesPerPerson]
	}
	snapshot := c.ws.clone()
	c.mu.Unlock()

	_, err := c.s.autosaver.Schedule(characterDraftKey, snapshot)
	return err
}

// Restore loads the autosaved workspace. It reports false when there is
// nothing to restore.
func (c *CharacterStudio) Restore(ctx context.Context) (bool, error) {
	ws := c.defaults()
	ok, err := c.s.autosaver.Load(ctx, characterDraftKey, &ws)
	if err != nil {
		return false, &StorageError{Op: "restore character workspace", Err: err}
	}
	if !ok {
		return false, nil
	}
	c.mu.Lock()
	c.ws = ws
	c.initialized = true
	c.mu.Unlock()
	return true, nil
}

// Flush writes a pending autosave now.
func (c *CharacterStudio) Flush(ctx context.Context) error {
	return c.s.autosaver.Flush(ctx, characterDraftKey)
}

func (c *CharacterStudio) Shots() []prompt.Shot {
	return append([]prompt.Shot(nil), c.s.Catalog().Character.Shots...)
}

func (c *CharacterStudio) selection(ws CharacterWorkspace) (prompt.CharacterSelection, error) {
	sel := prompt.CharacterSelection{
		Name:        ws.Name,
		Gender:      ws.Gender,
		Outfit:      ws.outfit(),
		Background:  ws.Background,
		AspectRatio: ws.AspectRatio,
	}
	for i, uri := range ws.RefImages {
		img, err := codec.Decode(uri)
		if err != nil {
			return sel, fmt.Errorf("decode reference %d: %w", i+1, err)
		}
		sel.Identity = append(sel.Identity, img)
	}
	if ws.OutfitRef != "" {
		img, err := codec.Decode(ws.OutfitRef)
		if err != nil {
			return sel, fmt.Errorf("decode outfit reference: %w", err)
		}
		sel.OutfitRef = img
	}
	return sel, sel.Validate()
}

// GeneratePack renders every shot in order. The first shot is the anchor
// that later shots are told to match. Each result is added to the workspace
// as it arrives.
func (c *CharacterStudio) GeneratePack(ctx context.Context, ro RunOptions) (batch.Result, error) {
	if err := c.busy.begin(); err != nil {
		return batch.Result{}, err
	}
	defer c.busy.end()

	ws := c.Workspace()
	sel, err := c.selection(ws)
	if err != nil {
		return batch.Result{}, err
	}
	shots := c.Shots()
	if len(shots) == 0 {
		return batch.Result{}, batch.ErrEmptyPlan
	}
	if err := c.Update(func(w *CharacterWorkspace) { w.Items = nil }); err != nil {
		return batch.Result{}, err
	}

	plan := batch.Plan{
		Count:      len(shots),
		AnchorLock: true,
		Cooldown:   c.s.characterCooldown,
		Build: func(it batch.Iteration) (batch.Submission, error) {
			shot := shots[it.Index]
			built, err := prompt.BuildCharacterShot(sel, shot)
			if err != nil {
				return batch.Submission{}, err
			}
			return batch.Submission{Built: built, Display: shot.Prompt, Label: shot.Label}, nil
		},
	}
	sink := func(_ context.Context, item history.Item, it batch.Iteration) error {
		shot := shots[it.Index]
		return c.Update(func(w *CharacterWorkspace) {
			w.Items = append(w.Items, CharacterItem{ID: item.ID, Type: shot.Type, Label: shot.Label, URL: item.ImageDataURI})
		})
	}

	res := c.s.run(ctx, nil, plan, ro, sink)
	if res.Err != nil {
		return res, fmt.Errorf("character pack: %w", res.Err)
	}
	return res, nil
}

func (c *CharacterStudio) thumbnail(items []CharacterItem) (CharacterItem, bool) {
	if len(items) == 0 {
		return CharacterItem{}, false
	}
	for _, label := range []string{"Front Standing", "Front View"} {
		for _, it := range items {
			if it.Label == label {
				return it, true
			}
		}
	}
	return items[0], true
}

// SaveCharacter registers the character as a Hire Model subject and records
// its thumbnail in the gallery.
func (c *CharacterStudio) SaveCharacter(ctx context.Context) (store.Subject, store.Asset, error) {
	ws := c.Workspace()
	thumb, ok := c.thumbnail(ws.Items)
	if !ok {
		return store.Subject{}, store.Asset{}, ErrNoResult
	}
	name := strings.TrimSpace(ws.Name)

	sub, err := c.s.store.SaveCustomSubject(ctx, store.Subject{
		Name:             name,
		ThumbnailDataURI: thumb.URL,
		Description:      fmt.Sprintf("Custom character created in Character Studio. Gender: %s. Outfit: %s", ws.Gender, ws.outfit()),
	})
	if err != nil {
		return store.Subject{}, store.Asset{}, &StorageError{Op: "save character", Err: err}
	}
	asset, err := c.s.store.SaveAsset(ctx, store.Asset{
		Kind:         store.AssetGenerated,
		ImageDataURI: thumb.URL,
		Prompt:       fmt.Sprintf("Character Pack: %s (Saved as Model)", name),
		Title:        name + " Character Sheet",
	})
	if err != nil {
		return sub, store.Asset{}, &StorageError{Op: "save character sheet", Err: err}
	}
	c.s.logger.Info("character saved", "subject_id", sub.ID, "asset_id", asset.ID)
	return sub, asset, nil
}

// ExportZip writes the pack archive and returns its file name.
func (c *CharacterStudio) ExportZip(w io.Writer) (string, error) {
	ws := c.Workspace()
	if len(ws.Items) == 0 {
		return "", ErrNoResult
	}
	shots := make([]export.PackShot, 0, len(ws.Items))
	for _, it := range ws.Items {
		img, err := codec.Decode(it.URL)
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", it.Label, err)
		}
		shots = append(shots, export.PackShot{Type: it.Type, Label: it.Label, Image: img})
	}
	if err := export.WriteCharacterPack(w, ws.Name, shots); err != nil {
		return "", err
	}
	return export.PackFileName(ws.Name), nil
}
