package prompt

import (
	"fmt"
	"strings"

	"gelap-studio/internal/codec"
)

const (
	DefaultStudioAspect  = "3:4"
	DefaultStudioFraming = "portrait"
	DefaultStudioLUT     = "natural"
)

// Person is one subject of a studio shoot: up to MaxFacesPerPerson face
// references and an optional outfit override image.
type Person struct {
	Label  string
	Faces  []codec.Image
	Outfit codec.Image
}

func (p Person) overridesOutfit() bool {
	return !p.Outfit.IsZero()
}

type PhotoStudioSelection struct {
	SubjectType string
	Occasion    string
	People      []Person

	Outfit string

	SolidBackground bool
	BackgroundHex   string
	Background      string

	Pose        string
	FramingID   string
	LUTID       string
	AspectRatio string
}

func (s PhotoStudioSelection) Validate() error {
	st, ok := Default().SubjectType(s.SubjectType)
	if !ok {
		return fmt.Errorf("unknown subject type %q", s.SubjectType)
	}
	if len(s.People) < st.Min || len(s.People) > st.Max {
		return fmt.Errorf("%w: %s takes %d to %d, got %d", ErrPeopleCount, st.Label, st.Min, st.Max, len(s.People))
	}
	for _, p := range s.People {
		if len(p.Faces) == 0 {
			return fmt.Errorf("%w: %s has no face reference", ErrMissingImage, p.Label)
		}
		if len(p.Faces) > MaxFacesPerPerson {
			return fmt.Errorf("%w: %s has %d", ErrTooManyFaces, p.Label, len(p.Faces))
		}
	}
	return nil
}

// BuildPhotoStudio lays out each person's faces followed by their outfit
// image, then names every range in the character mapping. The default
// wardrobe clause is left out when every person overrides their outfit.
func BuildPhotoStudio(sel PhotoStudioSelection) (Built, error) {
	if err := sel.Validate(); err != nil {
		return Built{}, err
	}
	c := Default()
	st, _ := c.SubjectType(sel.SubjectType)

	var refs Refs
	var mapping []string
	defaultWardrobe := false
	for i, p := range sel.People {
		label := strings.TrimSpace(p.Label)
		if label == "" {
			label = fmt.Sprintf("Person %d", i+1)
		}
		first, last := refs.AddAll(p.Faces)
		var line string
		if first == last {
			line = fmt.Sprintf("%s is Reference Image %d.", label, first)
		} else {
			line = fmt.Sprintf("%s is defined by Reference Images %d to %d.", label, first, last)
		}
		if p.overridesOutfit() {
			idx := refs.Add(p.Outfit)
			line += fmt.Sprintf("\n   - OUTFIT OVERRIDE: %s MUST wear the outfit shown in Reference Image %d. Copy the clothing style, texture, and fit from this image exactly. Do NOT apply the Default Wardrobe setting to this person.", label, idx)
		} else {
			defaultWardrobe = true
			line += fmt.Sprintf("\n   - WARDROBE: %s should wear the 'Default Wardrobe' style defined below.", label)
		}
		mapping = append(mapping, line)
	}

	background := strings.TrimSpace(sel.Background)
	if sel.SolidBackground {
		background = "Solid Studio Background. Color Hex: " + sel.BackgroundHex + ". Clean, seamless, professional studio backdrop."
	}

	framingID := sel.FramingID
	if framingID == "" {
		framingID = DefaultStudioFraming
	}
	lutID := sel.LUTID
	if lutID == "" {
		lutID = DefaultStudioLUT
	}
	framing, _ := c.Framing(framingID)
	lut, _ := c.LUT(lutID)

	var b strings.Builder
	b.Grow(4096)
	writeLines(&b,
		"Professional Studio Photography Session.",
		"",
		"SUBJECT CONFIGURATION:",
		"Type: "+st.Label+".",
		"Occasion: "+sel.Occasion+".",
		"",
		"CHARACTER REFERENCES & OUTFITS:",
		strings.Join(mapping, "\n"),
		"",
		"CRITICAL IDENTITY INSTRUCTION:",
		"You are an advanced AI photographer specialized in Face ID preservation.",
		"The generated faces MUST be 99% identical to the provided reference images.",
		"- STRICTLY COPY facial structure, eye shape, nose bridge, mouth, and skin texture.",
		"- Maintain the exact likeness. If the reference is Asian, the output must be Asian. If Caucasian, Caucasian.",
		"- Sub-surface scattering on skin must be realistic. No plastic skin.",
		"- Maintain the body size/weight of the person as inferred from reference images.",
		"",
		"INSTRUCTION:",
		fmt.Sprintf("Generate a photorealistic image featuring exactly %d person(s).", len(sel.People)),
		"For each person, use their corresponding Reference Images to strictly determine their facial features, hair, and likeness.",
		"Blend the features from the multiple reference images to create a perfect, consistent look for that person.",
		"",
		"POSE & ACTION:",
		strings.TrimSpace(sel.Pose)+".",
		"Ensure the pose is natural for the occasion ("+sel.Occasion+").",
		"",
		"STYLING:",
	)
	if defaultWardrobe {
		writeLines(&b, "DEFAULT WARDROBE: "+strings.TrimSpace(sel.Outfit)+". This style applies ONLY to persons marked as using the 'Default Wardrobe' above. It must NOT influence persons with explicit Outfit Overrides. Match the vibe of the occasion.")
	}
	writeLines(&b,
		"Environment: "+background+".",
		"",
		"CAMERA SETTINGS:",
		"- Shot Type: "+framing.Label+" ("+framing.Description+").",
		"- Color Grading: "+lut.Label+" ("+lut.Description+").",
		"- Lighting: Professional studio lighting optimized for "+sel.Occasion+".",
		"",
		"REALISM & PHYSICS:",
		"- Lighting must match the environment perfectly (reflections in eyes, shadows on floor/wall).",
		"- Fabric textures (cotton, silk, denim) must be distinguishable and high resolution.",
		"- Shadows must fall correctly based on the light source.",
		"- Depth of field should be appropriate for the Shot Type (e.g., blurred background for Portrait).",
	)
	b.WriteString("- Quality: 8k resolution, award-winning photography, sharp focus, highly detailed skin texture.")

	return Built{Text: b.String(), Images: refs.Images(), AspectRatio: hint(sel.AspectRatio)}, nil
}
