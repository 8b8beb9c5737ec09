package prompt

import (
	"fmt"
	"strings"

	"gelap-studio/internal/codec"
)

const (
	DefaultProductPrompt = "High-end product photography"
	automatic            = "Automatic"
)

// MaxProductCount caps one product batch.
const MaxProductCount = 10

type ProductSelection struct {
	Product codec.Image
	// Style is the optional composition/lighting reference.
	Style       codec.Image
	Description string

	ManualOverride bool
	Lighting       string
	Perspective    string
	Lens           string
	FilmGrain      int
	AspectRatio    string

	PreserveDetails bool

	Count        int
	VaryStyles   bool
	UseTemplates bool
	TemplateIDs  []string
}

func (s ProductSelection) Validate() error {
	if s.Product.IsZero() {
		return ErrMissingImage
	}
	return nil
}

// Technical returns lighting, perspective and lens as sent to analysis.
// Without manual override every value is Automatic.
func (s ProductSelection) Technical() (lighting, perspective, lens string) {
	if !s.ManualOverride {
		return automatic, automatic, automatic
	}
	return orAutomatic(s.Lighting), orAutomatic(s.Perspective), orAutomatic(s.Lens)
}

// AnalysisInstruction is the text part of the analyze step. The product
// image is attached first and the optional style image second.
func AnalysisInstruction(sel ProductSelection) string {
	lighting, perspective, lens := sel.Technical()
	preserve := ""
	if sel.PreserveDetails {
		preserve = "shadows, reflections, texture, lighting"
	}

	var b strings.Builder
	b.Grow(2048)
	writeLines(&b,
		"You are an expert Commercial Photographer and AI Prompt Engineer.",
		"Your goal is to write the perfect image generation prompt to re-create a product shot.",
		"",
		"INPUT DATA:",
		"1. Product Image (Attached first): This is the main subject.",
		"2. Style Reference (Attached second, optional): Use this for lighting, mood, color palette, and background style.",
		fmt.Sprintf("3. User Request: %q", strings.TrimSpace(sel.Description)),
		"4. Technical Settings:",
		"   - Lighting: "+lighting,
		"   - Camera Angle: "+perspective,
		"   - Lens: "+lens,
		fmt.Sprintf("   - Film Grain: %d%%", sel.FilmGrain),
		"   - Preserve: "+preserve,
		"",
		"CRITICAL ANALYSIS INSTRUCTIONS:",
		`1. PRODUCT ISOLATION: Focus ONLY on the main product object in the "Product Image". IGNORE hands holding it, table surfaces, background clutter, or any other objects. The prompt must describe the product cleanly.`,
		"2. IF STYLE REFERENCE IS PROVIDED: Analyze its lighting, composition, and mood. Write a prompt that places the *isolated* product into that exact style.",
		`3. IF STYLE REFERENCE IS MISSING: You MUST invent a "High-End Professional Commercial Advertisement" scene.`,
		"   - Style: Hyper-realistic, 8k resolution, award-winning photography.",
		"   - Context: Place the product in a creative, relevant, and stunning environment (e.g., splashing water for drinks, floating geometry for tech, podiums for beauty).",
		"   - Lighting: Cinematic, perfectly balanced studio lighting.",
		"",
		"TASK:",
		"Write a single, highly detailed, descriptive prompt.",
		"- Focus on describing the lighting, textures, composition, and product placement.",
		"- Include the specific camera details provided.",
		`- Output ONLY the prompt text. Do not add "Here is the prompt:" or markdown formatting.`,
	)
	return b.String()
}

// BuildProduct wraps the analysed (or hand edited) description into the
// generation prompt. With a style reference the compositor variant is used.
func BuildProduct(sel ProductSelection, description string) (Built, error) {
	if err := sel.Validate(); err != nil {
		return Built{}, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = DefaultProductPrompt
	}

	var refs Refs
	product := refs.Add(sel.Product)

	var b strings.Builder
	b.Grow(1024)
	if !sel.Style.IsZero() {
		style := refs.Add(sel.Style)
		writeLines(&b,
			"SYSTEM INSTRUCTION: Expert Digital Compositor & Photographer.",
			"TASK: Create a photorealistic composite image.",
			"INPUTS:",
			fmt.Sprintf("- Image %d: THE PRODUCT (Subject).", product),
			fmt.Sprintf("- Image %d: THE STYLE REFERENCE (Composition, Lighting, Background).", style),
			"STRICT INSTRUCTIONS:",
			fmt.Sprintf("1. COMPOSITION: Use the exact composition, camera angle, and background of Image %d.", style),
			fmt.Sprintf("2. SUBJECT: Replace the main object currently in Image %d with the PRODUCT from Image %d.", style, product),
			"3. INTEGRATION: Match lighting, shadows, and reflections.",
			"4. QUALITY: High-fidelity, 4k, commercial photography.",
			"DESCRIPTION OF DESIRED OUTPUT:",
		)
	} else {
		writeLines(&b,
			"SYSTEM INSTRUCTION: Expert Commercial Photographer.",
			"TASK: Generate a high-end product advertisement.",
			fmt.Sprintf("INPUT: Image %d is the PRODUCT (Ignore hands, background, or clutter. Isolate the product object).", product),
			"INSTRUCTION:",
			"- Place the isolated PRODUCT in a STUNNING commercial scene.",
			"- Style: Hyper-realistic, 8K, Professional Advertisement.",
			"- Maintain the visual integrity of the PRODUCT.",
			"- Ensure realistic lighting, shadows, and textures.",
		)
	}
	b.WriteString(description)
	b.WriteString(technicalSuffix(sel))

	return Built{
		Text:        b.String(),
		Images:      refs.Images(),
		AspectRatio: hint(sel.AspectRatio),
	}, nil
}

func technicalSuffix(sel ProductSelection) string {
	var specs []string
	if sel.ManualOverride {
		if v := strings.TrimSpace(sel.Lighting); v != "" && v != automatic {
			specs = append(specs, "Lighting Style: "+v)
		}
		if v := strings.TrimSpace(sel.Perspective); v != "" && v != automatic {
			specs = append(specs, "Camera Perspective: "+v)
		}
		if v := strings.TrimSpace(sel.Lens); v != "" && v != automatic {
			specs = append(specs, "Lens Type: "+v)
		}
	}
	if sel.FilmGrain > 0 {
		specs = append(specs, fmt.Sprintf("Film Grain: %d%%", sel.FilmGrain))
	}
	if len(specs) == 0 {
		return ""
	}
	return "\n\nREQUIRED TECHNICAL SPECIFICATIONS: " + strings.Join(specs, ", ")
}

type VariantKind int

const (
	VariantTemplate VariantKind = iota + 1
	VariantStyle
)

// Variant is one entry of a batch rotation.
type Variant struct {
	Kind  VariantKind
	Label string
	Style string
}

// Clause is appended to the base prompt for the iteration (0-based).
func (v Variant) Clause(iteration int) string {
	switch v.Kind {
	case VariantTemplate:
		return "\n\nIMPORTANT - TEMPLATE STYLE: " + v.Style + " Keep the product hyper-realistic and isolated."
	case VariantStyle:
		return fmt.Sprintf("\n\nIMPORTANT - BATCH VARIATION %d: IGNORE previous background/lighting instructions. Instead, strictly use this style: %q. Keep the product hyper-realistic and isolated.", iteration+1, v.Style)
	default:
		return ""
	}
}

// Display is the history text for a result generated with this variant.
func (v Variant) Display(base string) string {
	switch v.Kind {
	case VariantTemplate:
		return base + " | Template: " + v.Label
	case VariantStyle:
		return base + " | Variation: " + v.Style
	default:
		return base
	}
}

// ProductVariants returns the rotation for a product batch. Selected
// templates win; otherwise the generic style variations apply to batches
// of more than one image when VaryStyles is set. Unknown template ids are
// skipped.
func ProductVariants(sel ProductSelection) []Variant {
	c := Default()
	if sel.UseTemplates && len(sel.TemplateIDs) > 0 {
		var out []Variant
		for _, id := range sel.TemplateIDs {
			t, ok := c.Template(id)
			if !ok {
				continue
			}
			out = append(out, Variant{Kind: VariantTemplate, Label: t.Label, Style: t.Prompt})
		}
		return out
	}
	if sel.Count > 1 && sel.VaryStyles {
		out := make([]Variant, 0, len(c.Product.StyleVariations))
		for _, style := range c.Product.StyleVariations {
			out = append(out, Variant{Kind: VariantStyle, Style: style})
		}
		return out
	}
	return nil
}

func writeLines(b *strings.Builder, lines ...string) {
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

func orAutomatic(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return automatic
	}
	return v
}

// hint normalises an aspect ratio selection. Automatic and empty both mean
// no hint.
func hint(aspect string) string {
	aspect = strings.TrimSpace(aspect)
	if aspect == "" || aspect == automatic {
		return ""
	}
	return aspect
}

func hintOr(aspect, fallback string) string {
	if h := hint(aspect); h != "" {
		return h
	}
	return fallback
}
