package prompt

import (
	"fmt"
	"strings"

	"gelap-studio/internal/codec"
)

const (
	DefaultCharacterBackground = "#808080"
	DefaultCharacterAspect     = "2:3"
)

type CharacterSelection struct {
	Name       string
	Gender     string
	Identity   []codec.Image
	OutfitRef  codec.Image
	Outfit     string
	Background string
	// AspectRatio applies to every shot so the pack has uniform dimensions.
	AspectRatio string
}

func (s CharacterSelection) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrMissingName
	}
	if len(s.Identity) == 0 {
		return ErrMissingImage
	}
	if len(s.Identity) > MaxFacesPerPerson {
		return fmt.Errorf("%w: %d identity references", ErrTooManyFaces, len(s.Identity))
	}
	return nil
}

// BuildCharacterShot builds one shot of the character sheet. The anchor for
// later shots is attached with Built.WithAnchor.
func BuildCharacterShot(sel CharacterSelection, shot Shot) (Built, error) {
	if err := sel.Validate(); err != nil {
		return Built{}, err
	}

	var refs Refs
	first, last := refs.AddAll(sel.Identity)

	outfit := "WEARING: " + strings.TrimSpace(sel.Outfit) + "."
	if !sel.OutfitRef.IsZero() {
		idx := refs.Add(sel.OutfitRef)
		outfit = fmt.Sprintf("WEARING OUTFIT REFERENCE: The character MUST wear the exact outfit shown in Image #%d. Copy the style, fabric, and fit precisely.", idx)
	}

	background := strings.TrimSpace(sel.Background)
	if background == "" {
		background = DefaultCharacterBackground
	}

	identityRange := fmt.Sprintf("Images %d to %d are", first, last)
	if first == last {
		identityRange = fmt.Sprintf("Image %d is", first)
	}

	var b strings.Builder
	b.Grow(2048)
	writeLines(&b,
		"Character Sheet Generation.",
		fmt.Sprintf("SUBJECT IDENTITY: %s (%s).", strings.TrimSpace(sel.Name), sel.Gender),
		"",
		"CRITICAL IDENTITY INSTRUCTION (99% ACCURACY):",
		"- You are an advanced AI specialized in Face ID preservation.",
		"- "+identityRange+" the CHARACTER IDENTITY REFERENCES.",
		"- You MUST generate a character that is a 99% perfect match to these references.",
		"- STRICTLY COPY: Facial bone structure, eye shape, nose shape, mouth, skin texture, moles/scars, and hairstyle.",
		"- STRICTLY COPY: Body weight and build from the references. Do not make them thinner or heavier.",
		"- The result must be Photorealistic, 8k resolution. Real human skin texture (pores, imperfections). No plastic/3D render look.",
		"",
		"TASK: "+strings.TrimSuffix(shot.Prompt, ".")+".",
		"",
		"STYLING:",
		"- "+outfit,
		"- BACKGROUND: Solid, flat studio background. EXACT COLOR HEX: "+background+". Ensure the background is uniform and matches this color code precisely.",
		"",
		"CONSISTENCY RULE:",
		"- The subject MUST look exactly the same in every single generated image.",
		"- The outfit MUST remain consistent across all angles.",
		"",
	)
	b.WriteString("Framing: Follow the TASK framing instruction precisely (Close Up vs Medium vs Full Body).")

	return Built{Text: b.String(), Images: refs.Images(), AspectRatio: hintOr(sel.AspectRatio, DefaultCharacterAspect)}, nil
}

// AnchorClause points the model at the batch anchor, the first generated
// image, by its position in the reference list.
func AnchorClause(index int) string {
	var b strings.Builder
	b.WriteString("\n\nCRITICAL OUTFIT CONSISTENCY:\n")
	fmt.Fprintf(&b, "- Reference Image #%d is the OFFICIAL GENERATED DESIGN of this character (Full Body View).\n", index)
	fmt.Fprintf(&b, "- You MUST perfectly match the outfit details, colors, fabric textures, and accessories from Image #%d.\n", index)
	b.WriteString("- This is the SAME photoshoot. Do not change the shirt design or color.\n")
	fmt.Fprintf(&b, "- Use Image #%d as the primary source of truth for the outfit.", index)
	return b.String()
}
