package prompt

import (
	"strings"

	"gelap-studio/internal/codec"
)

const RebrandAspect = "1:1"

type RebrandSelection struct {
	BrandName   string
	Industry    string
	Description string
	StyleID     string
	PaletteID   string
	// Reference is an optional existing logo or motif.
	Reference codec.Image
}

func BuildRebrand(sel RebrandSelection) (Built, error) {
	name := strings.TrimSpace(sel.BrandName)
	if name == "" {
		return Built{}, ErrMissingName
	}
	c := Default()
	style, _ := c.BrandStyle(sel.StyleID)
	palette, _ := c.Palette(sel.PaletteID)

	var refs Refs
	var b strings.Builder
	b.Grow(1024)
	writeLines(&b,
		"Create a professional High-Quality Brand Identity Presentation.",
		"",
		"BRAND DETAILS:",
		`- Name: "`+name+`"`,
		"- Industry: "+sel.Industry,
		"- Description: "+strings.TrimSpace(sel.Description),
		"",
		"DESIGN DIRECTION:",
		"- Style: "+style.Label+" ("+style.Description+")",
		"- Color Palette: "+palette.Label+" Theme.",
		"",
		"REQUIREMENTS:",
		"- Generate a high-resolution image featuring the Logo Design clearly.",
		"- Present it on a high-quality mockup (e.g., business card, signage, or clean wall).",
		`- Ensure text is legible and spelling of "`+name+`" is correct.`,
	)
	b.WriteString("- Professional studio lighting, 8k resolution.")
	if !sel.Reference.IsZero() {
		refs.Add(sel.Reference)
		b.WriteString("\n\nREFERENCE: Use the attached image as visual inspiration for structure or motif, but modernize it according to the selected style.")
	}

	return Built{Text: b.String(), Images: refs.Images(), AspectRatio: RebrandAspect}, nil
}
