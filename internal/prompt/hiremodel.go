package prompt

import (
	"fmt"
	"strings"

	"gelap-studio/internal/codec"
)

type HireMode string

const (
	HireHuman  HireMode = "human"
	HireAnimal HireMode = "animal"
)

const (
	ContextClothing = "Clothing Line"
	ContextFood     = "F&B Product"

	DefaultFoodItem     = "Food/Drink Product"
	DefaultHireAspect   = "3:4"
	defaultOutfitClause = "WEARING: Keep the model's outfit consistent with the Reference Image (if provided) or use context-appropriate attire. Do not change clothes if the reference shows a distinct outfit."
)

// HireModelSelection describes one campaign portrait. Identity is the
// resolved model reference image (custom subject thumbnail or predefined
// reference); SubjectName is set when the subject should also be described
// in text.
type HireModelSelection struct {
	Mode    HireMode
	Context string

	Identity           codec.Image
	SubjectName        string
	SubjectDescription string

	// Custom human, used instead of a chosen subject.
	CustomModel bool
	Age         string
	Ethnicity   string
	Gender      string
	BodyType    string
	Height      string
	Weight      string

	AnimalType  string
	AnimalBreed string

	Product      codec.Image
	ClothingType string
	FoodItem     string
	Interaction  string

	OverrideOutfit bool
	OutfitImage    codec.Image
	Outfit         string

	OverridePose bool
	Pose         string

	Framing       string
	CustomFraming string
	Angle         string
	CustomAngle   string

	SolidBackground bool
	BackgroundHex   string
	Background      string

	AspectRatio string
}

func (s HireModelSelection) Validate() error {
	switch s.Context {
	case ContextClothing, ContextFood:
		if strings.TrimSpace(s.Interaction) == "" {
			return ErrMissingInteraction
		}
	}
	return nil
}

func BuildHireModel(sel HireModelSelection) (Built, error) {
	if err := sel.Validate(); err != nil {
		return Built{}, err
	}
	c := Default()
	var refs Refs

	var b strings.Builder
	b.Grow(4096)
	b.WriteString("Professional Studio Portrait. Campaign Context: " + sel.Context + ". ")

	if sel.Mode != HireAnimal && !sel.CustomModel {
		if !sel.Identity.IsZero() {
			idx := refs.Add(sel.Identity)
			b.WriteString("\nCRITICAL IDENTITY INSTRUCTION (99% MATCH):\n")
			fmt.Fprintf(&b, "- Reference Image %d is the MODEL REFERENCE.\n", idx)
			b.WriteString("- YOU MUST GENERATE THE EXACT SAME PERSON.\n")
			b.WriteString("- STRICTLY COPY: Face structure, Skin tone/texture, Hairstyle & Hair color, Accessories, Tattoos, and Body weight.\n")
			b.WriteString("- The result must look like a photograph of this specific person.\n")
		}
		if name := strings.TrimSpace(sel.SubjectName); name != "" {
			b.WriteString("\nSUBJECT: Professional Model (" + name + "). ")
			if d := strings.TrimSpace(sel.SubjectDescription); d != "" {
				b.WriteString(d + ". ")
			}
		}
	}

	productIdx := 0
	if !sel.Product.IsZero() {
		productIdx = refs.Add(sel.Product)
		fmt.Fprintf(&b, "\nPRODUCT INTERACTION: Reference Image #%d is the PRODUCT REFERENCE. The model is interacting with or holding this product. Integrate the product naturally into the scene. ", productIdx)
	}

	action := strings.TrimSpace(sel.Interaction)
	clothing := strings.TrimSpace(sel.ClothingType)
	switch sel.Context {
	case ContextClothing:
		b.WriteString("\nCLOTHING ITEM TYPE: " + clothing + ".")
		b.WriteString("\nMODEL ACTION: " + action + ". ")
		b.WriteString("\nFABRIC PHYSICS: Ensure the " + clothing + " drapes, folds, and fits realistically based on the action '" + action + "'.")
		if productIdx > 0 {
			fmt.Fprintf(&b, " Match the texture/look of Reference Image #%d.", productIdx)
		}
	case ContextFood:
		item := strings.TrimSpace(sel.FoodItem)
		if item == "" {
			item = DefaultFoodItem
		}
		b.WriteString("\nF&B ITEM: " + item + ".")
		b.WriteString("\nMODEL ACTION: " + action + ".")
		b.WriteString("\nREALISM INSTRUCTION: Make the food/drink look delicious and fresh. Ensure the model's interaction (bite, sip, hold) obeys physics. If eating, mouth shape must match the action.")
		if productIdx > 0 {
			fmt.Fprintf(&b, " Match the visual appearance of Reference Image #%d.", productIdx)
		}
	}

	// An override with neither image nor text keeps the default clause.
	outfit := defaultOutfitClause
	outfitText := strings.TrimSpace(sel.Outfit)
	switch {
	case !sel.OverrideOutfit:
	case !sel.OutfitImage.IsZero():
		idx := refs.Add(sel.OutfitImage)
		outfit = fmt.Sprintf("WEARING REFERENCE: Reference Image #%d is the OUTFIT REFERENCE. Model is wearing the outfit from this image. Match style and fit. ", idx)
	case outfitText != "":
		outfit = "WEARING: " + outfitText + ". "
	}
	if sel.Context == ContextClothing {
		outfit += "\nIMPORTANT: This is a clothing campaign for '" + clothing + "'. The model must be wearing/interacting with this specific item type."
	}
	b.WriteString("\nSTYLING & OUTFIT: " + outfit)

	switch {
	case sel.Mode == HireAnimal:
		b.WriteString("\nSUBJECT: ")
		if breed := strings.TrimSpace(sel.AnimalBreed); breed != "" {
			b.WriteString(breed + " ")
		}
		b.WriteString(strings.TrimSpace(sel.AnimalType) + ". ")
		b.WriteString("The animal is posing professionally for a commercial shoot. ")
	case sel.CustomModel:
		fmt.Fprintf(&b, "\nSUBJECT: %s year old %s %s. ", sel.Age, sel.Ethnicity, sel.Gender)
		fmt.Fprintf(&b, "Body Type: %s. Height: %s. Weight: %s. ", sel.BodyType, sel.Height, sel.Weight)
		b.WriteString("Features: Photorealistic skin texture, detailed eyes, professional pose. ")
	}

	if sel.OverridePose {
		b.WriteString("\nPOSE OVERRIDE: " + strings.TrimSpace(sel.Pose) + ". Ignore implied poses from interaction if they conflict.")
	} else {
		b.WriteString("\nPOSE: Natural pose that fits the action described above.")
	}

	b.WriteString("\n" + framingClause(c, sel) + " " + angleClause(c, sel))

	if sel.SolidBackground {
		b.WriteString("\nBACKGROUND: Solid Studio Background. Color Hex: " + sel.BackgroundHex + ". Professional studio lighting. ")
	} else {
		b.WriteString("\nBACKGROUND: " + strings.TrimSpace(sel.Background) + ". ")
	}

	b.WriteString("\n\nHYPER-REALISM & PHYSICS INTEGRATION:\n")
	writeLines(&b,
		"1. GLOBAL ILLUMINATION: The subject, product, and background MUST share the exact same lighting environment. Light direction, color temperature, and intensity must be consistent across the entire scene.",
		"2. CONTACT SHADOWS: Where the model touches the product or the ground, there must be realistic ambient occlusion and contact shadows. No floating objects.",
		"3. REFLECTIONS: If the product or background is reflective, it must reflect the model and environment accurately.",
		"4. TEXTURE COHERENCE: Skin texture (pores, subsurface scattering) and fabric texture must render with the same level of detail and noise as the environment.",
		"5. COLOR BLEED: Subtle light bounce (color bleeding) from the environment onto the subject and vice versa to ground them in the scene.",
		"6. PERSPECTIVE ALIGNMENT: Shadows, background geometry, and model proportions must strictly follow the requested camera angle and framing.",
		"   - If Low Angle: Underside of chin/nose visible, background ceiling/sky visible, legs elongated.",
		"   - If High Angle: Top of head visible, background floor visible, body tapered.",
	)
	b.WriteString("QUALITY: 8k resolution, highly detailed, photorealistic, commercial advertisement standard. Lighting: Commercial photography lighting optimized for " + sel.Context + ".")

	return Built{Text: b.String(), Images: refs.Images(), AspectRatio: hintOr(sel.AspectRatio, DefaultHireAspect)}, nil
}

func framingClause(c *Catalog, sel HireModelSelection) string {
	if custom := strings.TrimSpace(sel.CustomFraming); custom != "" {
		return "CAMERA FRAMING: " + custom
	}
	if p, ok := c.HireModel.FramingPrompts[sel.Framing]; ok {
		return p
	}
	return "FRAMING: " + sel.Framing + "."
}

func angleClause(c *Catalog, sel HireModelSelection) string {
	if custom := strings.TrimSpace(sel.CustomAngle); custom != "" {
		return "CAMERA ANGLE: " + custom
	}
	if p, ok := c.HireModel.AnglePrompts[sel.Angle]; ok {
		return p
	}
	return "ANGLE: " + sel.Angle + "."
}
