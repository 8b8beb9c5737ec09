package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed catalog.toml
var catalogTOML []byte

// Option is one selectable preset. Not every catalog fills every field.
type Option struct {
	ID          string   `toml:"id" json:"id,omitempty"`
	Label       string   `toml:"label" json:"label"`
	Value       string   `toml:"value" json:"value,omitempty"`
	Prompt      string   `toml:"prompt" json:"prompt,omitempty"`
	Description string   `toml:"description" json:"description,omitempty"`
	Colors      []string `toml:"colors" json:"colors,omitempty"`
}

type PredefinedModel struct {
	ID          string `toml:"id" json:"id"`
	Name        string `toml:"name" json:"name"`
	Folder      string `toml:"folder" json:"folder"`
	Description string `toml:"description" json:"description"`
	FallbackURL string `toml:"fallback_url" json:"fallbackUrl"`
}

type SubjectType struct {
	ID    string `toml:"id" json:"id"`
	Label string `toml:"label" json:"label"`
	Min   int    `toml:"min" json:"min"`
	Max   int    `toml:"max" json:"max"`
}

// Shot is one entry of the character sheet shot list.
type Shot struct {
	Type   string `toml:"type" json:"type"`
	Label  string `toml:"label" json:"label"`
	Prompt string `toml:"prompt" json:"prompt"`
}

type QuickTool struct {
	ID            string `toml:"id" json:"id"`
	Label         string `toml:"label" json:"label"`
	Template      string `toml:"template" json:"template,omitempty"`
	RequiresImage bool   `toml:"requires_image" json:"requiresImage"`
}

type ProductCatalog struct {
	StyleVariations []string `toml:"style_variations" json:"styleVariations"`
	Templates       []Option `toml:"templates" json:"templates"`
	AspectRatios    []Option `toml:"aspect_ratios" json:"aspectRatios"`
	Lighting        []Option `toml:"lighting" json:"lighting"`
	CameraAngles    []Option `toml:"camera_angles" json:"cameraAngles"`
	Lenses          []Option `toml:"lenses" json:"lenses"`
}

type MockupCatalog struct {
	Objects      []string `toml:"objects" json:"objects"`
	Categories   []string `toml:"categories" json:"categories"`
	DesignTypes  []string `toml:"design_types" json:"designTypes"`
	Scenes       []Option `toml:"scenes" json:"scenes"`
	Techniques   []Option `toml:"techniques" json:"techniques"`
	AspectRatios []Option `toml:"aspect_ratios" json:"aspectRatios"`
}

type HireModelCatalog struct {
	CampaignContexts []string          `toml:"campaign_contexts" json:"campaignContexts"`
	DisabledContexts []string          `toml:"disabled_contexts" json:"disabledContexts"`
	ClothingTypes    []string          `toml:"clothing_types" json:"clothingTypes"`
	Interactions     []string          `toml:"interactions" json:"interactions"`
	FoodInteractions []string          `toml:"food_interactions" json:"foodInteractions"`
	BodyTypes        []string          `toml:"body_types" json:"bodyTypes"`
	Ethnicities      []string          `toml:"ethnicities" json:"ethnicities"`
	Animals          []string          `toml:"animals" json:"animals"`
	Outfits          []string          `toml:"outfits" json:"outfits"`
	Backgrounds      []string          `toml:"backgrounds" json:"backgrounds"`
	Poses            []string          `toml:"poses" json:"poses"`
	Framings         []string          `toml:"framings" json:"framings"`
	Angles           []string          `toml:"angles" json:"angles"`
	FramingPrompts   map[string]string `toml:"framing_prompts" json:"-"`
	AnglePrompts     map[string]string `toml:"angle_prompts" json:"-"`
	AspectRatios     []Option          `toml:"aspect_ratios" json:"aspectRatios"`
	PredefinedModels []PredefinedModel `toml:"predefined_models" json:"predefinedModels"`
}

type PhotoStudioCatalog struct {
	Occasions    []string      `toml:"occasions" json:"occasions"`
	PosesSingle  []string      `toml:"poses_single" json:"posesSingle"`
	PosesCouple  []string      `toml:"poses_couple" json:"posesCouple"`
	PosesGroup   []string      `toml:"poses_group" json:"posesGroup"`
	Outfits      []string      `toml:"outfits" json:"outfits"`
	Backgrounds  []string      `toml:"backgrounds" json:"backgrounds"`
	SubjectTypes []SubjectType `toml:"subject_types" json:"subjectTypes"`
	Framings     []Option      `toml:"framings" json:"framings"`
	LUTs         []Option      `toml:"luts" json:"luts"`
	AspectRatios []Option      `toml:"aspect_ratios" json:"aspectRatios"`
}

type CharacterCatalog struct {
	Outfits      []string `toml:"outfits" json:"outfits"`
	Genders      []string `toml:"genders" json:"genders"`
	Shots        []Shot   `toml:"shots" json:"shots"`
	AspectRatios []Option `toml:"aspect_ratios" json:"aspectRatios"`
}

type RebrandCatalog struct {
	Industries []string `toml:"industries" json:"industries"`
	Styles     []Option `toml:"styles" json:"styles"`
	Palettes   []Option `toml:"palettes" json:"palettes"`
}

// Catalog holds every preset list the builders and front ends draw from.
type Catalog struct {
	Product     ProductCatalog     `toml:"product" json:"product"`
	Mockup      MockupCatalog      `toml:"mockup" json:"mockup"`
	HireModel   HireModelCatalog   `toml:"hire_model" json:"hireModel"`
	PhotoStudio PhotoStudioCatalog `toml:"photo_studio" json:"photoStudio"`
	Character   CharacterCatalog   `toml:"character" json:"character"`
	Rebrand     RebrandCatalog     `toml:"rebrand" json:"rebrand"`
	QuickTools  []QuickTool        `toml:"quick_tools" json:"quickTools"`
}

var catalog = mustLoadCatalog(catalogTOML)

func mustLoadCatalog(raw []byte) *Catalog {
	var c Catalog
	if err := toml.Unmarshal(raw, &c); err != nil {
		panic(fmt.Sprintf("prompt: decode catalog: %v", err))
	}
	if len(c.Character.Shots) == 0 {
		panic("prompt: catalog has no character shots")
	}
	return &c
}

// Default returns the embedded catalog. Callers must not mutate it.
func Default() *Catalog {
	return catalog
}

func findOption(list []Option, id string) (Option, bool) {
	id = strings.TrimSpace(id)
	for _, o := range list {
		if strings.EqualFold(o.ID, id) {
			return o, true
		}
	}
	return Option{}, false
}

func (c *Catalog) Template(id string) (Option, bool)  { return findOption(c.Product.Templates, id) }
func (c *Catalog) Scene(id string) (Option, bool)     { return findOption(c.Mockup.Scenes, id) }
func (c *Catalog) Technique(id string) (Option, bool) { return findOption(c.Mockup.Techniques, id) }
func (c *Catalog) Framing(id string) (Option, bool)   { return findOption(c.PhotoStudio.Framings, id) }
func (c *Catalog) LUT(id string) (Option, bool)       { return findOption(c.PhotoStudio.LUTs, id) }
func (c *Catalog) BrandStyle(id string) (Option, bool) {
	return findOption(c.Rebrand.Styles, id)
}
func (c *Catalog) Palette(id string) (Option, bool) { return findOption(c.Rebrand.Palettes, id) }

func (c *Catalog) SubjectType(id string) (SubjectType, bool) {
	for _, t := range c.PhotoStudio.SubjectTypes {
		if strings.EqualFold(t.ID, strings.TrimSpace(id)) {
			return t, true
		}
	}
	return SubjectType{}, false
}

func (c *Catalog) PredefinedModel(id string) (PredefinedModel, bool) {
	for _, m := range c.HireModel.PredefinedModels {
		if m.ID == id {
			return m, true
		}
	}
	return PredefinedModel{}, false
}

func (c *Catalog) QuickTool(id string) (QuickTool, bool) {
	for _, t := range c.QuickTools {
		if strings.EqualFold(t.ID, strings.TrimSpace(id)) {
			return t, true
		}
	}
	return QuickTool{}, false
}

// ContextDisabled reports whether a campaign context is shown but not selectable.
func (c *Catalog) ContextDisabled(ctx string) bool {
	for _, d := range c.HireModel.DisabledContexts {
		if d == ctx {
			return true
		}
	}
	return false
}

// Shot returns the character sheet shot with the given label.
func (c *Catalog) Shot(label string) (Shot, bool) {
	for _, s := range c.Character.Shots {
		if strings.EqualFold(s.Label, strings.TrimSpace(label)) {
			return s, true
		}
	}
	return Shot{}, false
}
