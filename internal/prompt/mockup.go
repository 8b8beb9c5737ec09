package prompt

import (
	"fmt"
	"strings"

	"gelap-studio/internal/codec"
)

const (
	mockupCleanText = "Edit this image. Identify the main product or object in the photo. " +
		"Remove all text, logos, graphics, and branding from its surface. " +
		"Make the surface look blank and clean, but PRESERVE the original texture, lighting, shadows, and reflections exactly. " +
		"Do not change the background or the object's shape. Just erase the graphics."

	DefaultDesignType   = "Logo / Icon"
	DefaultMockupAspect = "1:1"
)

type MockupCleanSelection struct {
	Target      codec.Image
	AspectRatio string
}

func BuildMockupClean(sel MockupCleanSelection) (Built, error) {
	if sel.Target.IsZero() {
		return Built{}, ErrMissingImage
	}
	var refs Refs
	refs.Add(sel.Target)
	return Built{Text: mockupCleanText, Images: refs.Images(), AspectRatio: hint(sel.AspectRatio)}, nil
}

// MockupStyle carries the options shared by inject and generate.
type MockupStyle struct {
	Category   string
	DesignType string
	// ColorHex, when set, forces a single ink colour.
	ColorHex string
	// TechniqueID, when set, names a print technique from the catalog.
	TechniqueID string
}

func (s MockupStyle) designType() string {
	if v := strings.TrimSpace(s.DesignType); v != "" {
		return v
	}
	return DefaultDesignType
}

func (s MockupStyle) technique() (Option, bool) {
	if strings.TrimSpace(s.TechniqueID) == "" {
		return Option{}, false
	}
	return Default().Technique(s.TechniqueID)
}

type MockupInjectSelection struct {
	// Base is the cleaned surface, or the original target when cleaning was skipped.
	Base        codec.Image
	Design      codec.Image
	AspectRatio string
	MockupStyle
}

func BuildMockupInject(sel MockupInjectSelection) (Built, error) {
	if sel.Base.IsZero() {
		return Built{}, ErrMissingImage
	}
	if sel.Design.IsZero() {
		return Built{}, ErrMissingDesign
	}

	var refs Refs
	base := refs.Add(sel.Base)
	design := refs.Add(sel.Design)

	ctxLine := "CONTEXT: This is a " + sel.designType()
	if c := strings.TrimSpace(sel.Category); c != "" {
		ctxLine += " for a " + c + " brand"
	}

	var b strings.Builder
	b.Grow(2048)
	writeLines(&b,
		fmt.Sprintf("Edit Image %d (the target mockup).", base),
		ctxLine+".",
		"",
		"TASK:",
		fmt.Sprintf("- Apply the design (from Image %d) onto the MAIN surface of the object in Image %d.", design, base),
		"",
	)
	if t, ok := sel.technique(); ok {
		writeLines(&b, "PRINTING TECHNIQUE: "+t.Label, "TECHNIQUE SPECIFICS: "+t.Prompt)
	} else {
		writeLines(&b, "PRINTING TECHNIQUE: Analyze the mockup surface and apply the design using a photorealistic printing method suitable for the material (e.g., if fabric, use screen print or DTG; if paper, use offset print).")
	}
	writeLines(&b, "", "COLOR INSTRUCTION:")
	if hex := strings.TrimSpace(sel.ColorHex); hex != "" {
		writeLines(&b,
			"COLOR OVERRIDE:",
			"- The uploaded design MUST be rendered in single color: "+hex+".",
			"- Ignore the original colors of the uploaded design.",
			"- The texture and lighting of the object should interact with this "+hex+" ink/material.",
		)
	} else {
		writeLines(&b, "Preserve the original colors of the design.")
	}
	writeLines(&b,
		"",
		"CRITICAL REALISM INSTRUCTIONS:",
		"1. PHYSICS & LIGHTING: The design must interact with the environment's lighting. If the material is embroidery or foil, it MUST catch the light and show specular highlights. If it's ink, it must accept shadows from folds and wrinkles.",
		"2. TEXTURE & SCALE:",
		"   - Match the scale of the texture (e.g. thread thickness) to the object size. Threads must be fine and realistic, not thick ropes.",
		"   - If using embroidery, threads should be fine, dense, and follow the form.",
		"   - If using ink, it should follow the weave of the fabric beneath it.",
		"3. DISPLACEMENT: The design is not just an overlay. It must wrap around curves, disappear into deep folds, and distort with the geometry of the object.",
		`4. BLENDING: The edges of the design should blend naturally with the surface, avoiding a "sticker" look unless specified.`,
		"5. Do not change the background or the object's shape.",
		"",
	)
	b.WriteString("OUTPUT: A photorealistic commercial photograph.")

	return Built{Text: b.String(), Images: refs.Images(), AspectRatio: hint(sel.AspectRatio)}, nil
}

type MockupGenerateSelection struct {
	Design      codec.Image
	Object      string
	SceneID     string
	Details     string
	AspectRatio string
	MockupStyle
}

// BuildMockupGenerate renders the design on a new object. The aspect ratio
// falls back to square.
func BuildMockupGenerate(sel MockupGenerateSelection) (Built, error) {
	if sel.Design.IsZero() {
		return Built{}, ErrMissingDesign
	}
	object := strings.TrimSpace(sel.Object)
	if object == "" {
		return Built{}, ErrMissingObject
	}

	var refs Refs
	design := refs.Add(sel.Design)

	scene := ""
	if s, ok := Default().Scene(sel.SceneID); ok {
		scene = s.Prompt
	}
	color := "Use the original colors of the uploaded design."
	if hex := strings.TrimSpace(sel.ColorHex); hex != "" {
		color = "Render the logo/design in strictly " + hex + "."
	}

	var b strings.Builder
	b.Grow(2048)
	writeLines(&b,
		"Create a Photorealistic Professional 3D Mockup.",
		"OBJECT: "+object,
		"SCENE/ENVIRONMENT: "+scene,
	)
	if c := strings.TrimSpace(sel.Category); c != "" {
		writeLines(&b, "Category: "+c+".")
	}
	writeLines(&b,
		fmt.Sprintf("DESIGN: Image %d is the uploaded design.", design),
		"DESIGN TYPE: "+sel.designType(),
		"COLOR: "+color,
		"",
	)
	if t, ok := sel.technique(); ok {
		writeLines(&b, "PRINTING TECHNIQUE: "+t.Label, "TECHNIQUE SPECIFICS: "+t.Prompt, "")
	}
	writeLines(&b,
		"CRITICAL REALISM INSTRUCTIONS:",
		"- The design must be applied to the "+object+" with hyper-realistic physical properties.",
		"- Displace the design according to the surface bumps, wrinkles, and folds.",
		"- LIGHTING INTERACTION: The design material (ink/thread/foil) must reflect light differently than the base object material.",
		"- If Embroidery: detailed individual stitches, satin sheen, realistic thread thickness relative to object.",
		"- If Screen Print: Ink sits on top, slight texture, cracking if vintage.",
		"- Maintain high resolution details, realistic shadows, and reflections.",
	)
	if d := strings.TrimSpace(sel.Details); d != "" {
		writeLines(&b, "ADDITIONAL DETAILS: "+d)
	}
	b.WriteString("Output: High-end commercial photography style, 8k resolution.")

	return Built{Text: b.String(), Images: refs.Images(), AspectRatio: hintOr(sel.AspectRatio, DefaultMockupAspect)}, nil
}
