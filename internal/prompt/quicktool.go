package prompt

import (
	"fmt"
	"strings"

	"gelap-studio/internal/codec"
)

type QuickToolSelection struct {
	ToolID string
	Prompt string
	Image  codec.Image
}

// BuildQuickTool wraps the free text in the tool's template. Tools without
// a template send the text as is.
func BuildQuickTool(sel QuickToolSelection) (Built, QuickTool, error) {
	tool, ok := Default().QuickTool(sel.ToolID)
	if !ok {
		return Built{}, QuickTool{}, fmt.Errorf("%w: %q", ErrUnknownTool, sel.ToolID)
	}
	text := strings.TrimSpace(sel.Prompt)
	if text == "" && sel.Image.IsZero() {
		return Built{}, tool, ErrEmptyPrompt
	}
	if tool.RequiresImage && sel.Image.IsZero() {
		return Built{}, tool, ErrMissingImage
	}

	if tool.Template != "" {
		text = strings.ReplaceAll(tool.Template, "{prompt}", text)
	}
	if text == "" {
		return Built{}, tool, ErrEmptyPrompt
	}

	var refs Refs
	if !sel.Image.IsZero() {
		refs.Add(sel.Image)
	}
	return Built{Text: text, Images: refs.Images()}, tool, nil
}
