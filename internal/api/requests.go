package api

import (
	"fmt"
	"strings"

	"gelap-studio/internal/codec"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/studio"
)

// dataURI is an image sent inline as a data URI or bare base64. Empty means
// absent.
type dataURI string

func (d dataURI) image(field string) (codec.Image, error) {
	if strings.TrimSpace(string(d)) == "" {
		return codec.Image{}, nil
	}
	img, err := codec.Decode(string(d))
	if err != nil {
		return codec.Image{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return img, nil
}

func images(field string, in []dataURI) ([]codec.Image, error) {
	out := make([]codec.Image, 0, len(in))
	for i, d := range in {
		img, err := d.image(fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		if !img.IsZero() {
			out = append(out, img)
		}
	}
	return out, nil
}

type productRequest struct {
	Product         dataURI  `json:"product"`
	Style           dataURI  `json:"style"`
	Description     string   `json:"description"`
	ManualOverride  bool     `json:"manualOverride"`
	Lighting        string   `json:"lighting"`
	Perspective     string   `json:"perspective"`
	Lens            string   `json:"lens"`
	FilmGrain       int      `json:"filmGrain"`
	AspectRatio     string   `json:"aspectRatio"`
	PreserveDetails bool     `json:"preserveDetails"`
	Count           int      `json:"count"`
	VaryStyles      bool     `json:"varyStyles"`
	UseTemplates    bool     `json:"useTemplates"`
	TemplateIDs     []string `json:"templateIds"`
	// Prompt is the edited prompt for regenerate.
	Prompt string `json:"prompt"`
}

func (req productRequest) selection() (prompt.ProductSelection, error) {
	product, err := req.Product.image("product")
	if err != nil {
		return prompt.ProductSelection{}, err
	}
	style, err := req.Style.image("style")
	if err != nil {
		return prompt.ProductSelection{}, err
	}
	return prompt.ProductSelection{
		Product:         product,
		Style:           style,
		Description:     req.Description,
		ManualOverride:  req.ManualOverride,
		Lighting:        req.Lighting,
		Perspective:     req.Perspective,
		Lens:            req.Lens,
		FilmGrain:       req.FilmGrain,
		AspectRatio:     req.AspectRatio,
		PreserveDetails: req.PreserveDetails,
		Count:           req.Count,
		VaryStyles:      req.VaryStyles,
		UseTemplates:    req.UseTemplates,
		TemplateIDs:     req.TemplateIDs,
	}, nil
}

type mockupStyle struct {
	Category    string `json:"category"`
	DesignType  string `json:"designType"`
	ColorHex    string `json:"colorHex"`
	TechniqueID string `json:"techniqueId"`
}

func (m mockupStyle) style() prompt.MockupStyle {
	return prompt.MockupStyle{Category: m.Category, DesignType: m.DesignType, ColorHex: m.ColorHex, TechniqueID: m.TechniqueID}
}

type mockupRequest struct {
	Target      dataURI `json:"target"`
	Design      dataURI `json:"design"`
	Object      string  `json:"object"`
	SceneID     string  `json:"sceneId"`
	Details     string  `json:"details"`
	AspectRatio string  `json:"aspectRatio"`
	mockupStyle
}

type personRequest struct {
	Label  string    `json:"label"`
	Faces  []dataURI `json:"faces"`
	Outfit dataURI   `json:"outfit"`
}

type photoStudioRequest struct {
	SubjectType     string          `json:"subjectType"`
	Occasion        string          `json:"occasion"`
	People          []personRequest `json:"people"`
	Outfit          string          `json:"outfit"`
	SolidBackground bool            `json:"solidBackground"`
	BackgroundHex   string          `json:"backgroundHex"`
	Background      string          `json:"background"`
	Pose            string          `json:"pose"`
	FramingID       string          `json:"framingId"`
	LUTID           string          `json:"lutId"`
	AspectRatio     string          `json:"aspectRatio"`
}

func (req photoStudioRequest) selection() (prompt.PhotoStudioSelection, error) {
	sel := prompt.PhotoStudioSelection{
		SubjectType:     req.SubjectType,
		Occasion:        req.Occasion,
		Outfit:          req.Outfit,
		SolidBackground: req.SolidBackground,
		BackgroundHex:   req.BackgroundHex,
		Background:      req.Background,
		Pose:            req.Pose,
		FramingID:       req.FramingID,
		LUTID:           req.LUTID,
		AspectRatio:     req.AspectRatio,
	}
	for i, p := range req.People {
		faces, err := images(fmt.Sprintf("people[%d].faces", i), p.Faces)
		if err != nil {
			return sel, err
		}
		outfit, err := p.Outfit.image(fmt.Sprintf("people[%d].outfit", i))
		if err != nil {
			return sel, err
		}
		label := p.Label
		if label == "" {
			label = fmt.Sprintf("Person %d", i+1)
		}
		sel.People = append(sel.People, prompt.Person{Label: label, Faces: faces, Outfit: outfit})
	}
	return sel, nil
}

type hireModelRequest struct {
	SubjectID string `json:"subjectId"`

	Mode    string `json:"mode"`
	Context string `json:"context"`

	CustomModel bool   `json:"customModel"`
	Age         string `json:"age"`
	Ethnicity   string `json:"ethnicity"`
	Gender      string `json:"gender"`
	BodyType    string `json:"bodyType"`
	Height      string `json:"height"`
	Weight      string `json:"weight"`

	AnimalType  string `json:"animalType"`
	AnimalBreed string `json:"animalBreed"`

	Product      dataURI `json:"product"`
	ClothingType string  `json:"clothingType"`
	FoodItem     string  `json:"foodItem"`
	Interaction  string  `json:"interaction"`

	OverrideOutfit bool    `json:"overrideOutfit"`
	OutfitImage    dataURI `json:"outfitImage"`
	Outfit         string  `json:"outfit"`

	OverridePose bool   `json:"overridePose"`
	Pose         string `json:"pose"`

	Framing       string `json:"framing"`
	CustomFraming string `json:"customFraming"`
	Angle         string `json:"angle"`
	CustomAngle   string `json:"customAngle"`

	SolidBackground bool   `json:"solidBackground"`
	BackgroundHex   string `json:"backgroundHex"`
	Background      string `json:"background"`

	AspectRatio string `json:"aspectRatio"`
}

func (req hireModelRequest) request() (studio.HireModelRequest, error) {
	product, err := req.Product.image("product")
	if err != nil {
		return studio.HireModelRequest{}, err
	}
	outfit, err := req.OutfitImage.image("outfitImage")
	if err != nil {
		return studio.HireModelRequest{}, err
	}
	return studio.HireModelRequest{
		SubjectID: req.SubjectID,
		HireModelSelection: prompt.HireModelSelection{
			Mode:            prompt.HireMode(strings.ToLower(strings.TrimSpace(req.Mode))),
			Context:         req.Context,
			CustomModel:     req.CustomModel,
			Age:             req.Age,
			Ethnicity:       req.Ethnicity,
			Gender:          req.Gender,
			BodyType:        req.BodyType,
			Height:          req.Height,
			Weight:          req.Weight,
			AnimalType:      req.AnimalType,
			AnimalBreed:     req.AnimalBreed,
			Product:         product,
			ClothingType:    req.ClothingType,
			FoodItem:        req.FoodItem,
			Interaction:     req.Interaction,
			OverrideOutfit:  req.OverrideOutfit,
			OutfitImage:     outfit,
			Outfit:          req.Outfit,
			OverridePose:    req.OverridePose,
			Pose:            req.Pose,
			Framing:         req.Framing,
			CustomFraming:   req.CustomFraming,
			Angle:           req.Angle,
			CustomAngle:     req.CustomAngle,
			SolidBackground: req.SolidBackground,
			BackgroundHex:   req.BackgroundHex,
			Background:      req.Background,
			AspectRatio:     req.AspectRatio,
		},
	}, nil
}

type rebrandRequest struct {
	BrandName   string  `json:"brandName"`
	Industry    string  `json:"industry"`
	Description string  `json:"description"`
	StyleID     string  `json:"styleId"`
	PaletteID   string  `json:"paletteId"`
	Reference   dataURI `json:"reference"`
}

type quickToolRequest struct {
	ToolID string  `json:"toolId"`
	Prompt string  `json:"prompt"`
	Image  dataURI `json:"image"`
}

// characterRequest replaces the editable part of the character workspace.
// Generated items are kept.
type characterRequest struct {
	Name           string    `json:"name"`
	Gender         string    `json:"gender"`
	SelectedOutfit string    `json:"selectedOutfit"`
	CustomOutfit   string    `json:"customOutfit"`
	Background     string    `json:"solidBgColor"`
	AspectRatio    string    `json:"aspectRatio"`
	RefImages      []dataURI `json:"refImages"`
	OutfitRef      dataURI   `json:"outfitRef"`
}

func (req characterRequest) apply(w *studio.CharacterWorkspace) {
	w.Name = req.Name
	w.Gender = req.Gender
	w.SelectedOutfit = req.SelectedOutfit
	w.CustomOutfit = req.CustomOutfit
	w.Background = req.Background
	w.AspectRatio = req.AspectRatio
	w.RefImages = nil
	for _, ref := range req.RefImages {
		if strings.TrimSpace(string(ref)) != "" {
			w.RefImages = append(w.RefImages, string(ref))
		}
	}
	w.OutfitRef = string(req.OutfitRef)
}

func (req characterRequest) validate() error {
	if _, err := images("refImages", req.RefImages); err != nil {
		return err
	}
	_, err := req.OutfitRef.image("outfitRef")
	return err
}
