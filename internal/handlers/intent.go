package handlers

import (
	"regexp"
	"strconv"
	"strings"

	"gelap-studio/internal/codec"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/studio"
)

var aspectRatioRegex = regexp.MustCompile(`^\d{1,2}:\d{1,2}$`)

// commandArgs splits "key=value" options and bare flags from the free text
// of a command.
type commandArgs struct {
	opts  map[string]string
	flags map[string]bool
	text  string
}

func parseArgs(raw string, knownFlags ...string) commandArgs {
	known := make(map[string]bool, len(knownFlags))
	for _, f := range knownFlags {
		known[f] = true
	}

	a := commandArgs{opts: map[string]string{}, flags: map[string]bool{}}
	var text []string
	for _, tok := range strings.Fields(raw) {
		lower := strings.ToLower(tok)
		if key, value, ok := strings.Cut(tok, "="); ok && key != "" {
			a.opts[strings.ToLower(key)] = strings.TrimSpace(value)
			continue
		}
		if known[lower] {
			a.flags[lower] = true
			continue
		}
		if aspectRatioRegex.MatchString(tok) {
			a.opts["ratio"] = tok
			continue
		}
		text = append(text, tok)
	}
	a.text = strings.Join(text, " ")
	return a
}

func (a commandArgs) get(keys ...string) string {
	for _, k := range keys {
		if v, ok := a.opts[k]; ok {
			return strings.ReplaceAll(v, "_", " ")
		}
	}
	return ""
}

// id returns a catalog id as typed, lower-cased.
func (a commandArgs) id(key string) string {
	return strings.ToLower(a.opts[key])
}

func (a commandArgs) int(key string, def, lo, hi int) int {
	v, ok := a.opts[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return min(max(n, lo), hi)
}

func (a commandArgs) list(key string) []string {
	v, ok := a.opts[key]
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func (a commandArgs) ratio() string {
	if v := a.opts["ratio"]; aspectRatioRegex.MatchString(v) {
		return v
	}
	return ""
}

// productSelection maps
// "/product [count=N] [ratio=W:H] [templates=a,b] [vary] [preserve] [grain=N] [description]".
func productSelection(raw string) prompt.ProductSelection {
	a := parseArgs(raw, "vary", "preserve")
	sel := prompt.ProductSelection{
		Description:     a.text,
		AspectRatio:     a.ratio(),
		Count:           a.int("count", 1, 1, prompt.MaxProductCount),
		VaryStyles:      a.flags["vary"],
		PreserveDetails: a.flags["preserve"],
		FilmGrain:       a.int("grain", 0, 0, 100),
		Lighting:        a.get("lighting"),
		Perspective:     a.get("angle", "perspective"),
		Lens:            a.get("lens"),
	}
	sel.ManualOverride = sel.Lighting != "" || sel.Perspective != "" || sel.Lens != ""
	if ids := a.list("templates"); len(ids) > 0 {
		sel.UseTemplates = true
		sel.TemplateIDs = ids
	}
	return sel
}

type mockupArgs struct {
	skipClean   bool
	aspectRatio string
	style       prompt.MockupStyle
}

// parseMockup maps "/mockup [skip] [ratio=W:H] [type=..] [color=#hex] [technique=id] [category=..]".
func parseMockup(raw string) mockupArgs {
	a := parseArgs(raw, "skip")
	return mockupArgs{
		skipClean:   a.flags["skip"],
		aspectRatio: a.ratio(),
		style: prompt.MockupStyle{
			Category:    a.get("category"),
			DesignType:  a.get("type"),
			ColorHex:    a.get("color"),
			TechniqueID: a.id("technique"),
		},
	}
}

// rebrandSelection maps "/rebrand [style=id] [palette=id] [industry=..] Name | description".
func rebrandSelection(raw string) prompt.RebrandSelection {
	a := parseArgs(raw)
	name, description, _ := strings.Cut(a.text, "|")
	c := prompt.Default()
	sel := prompt.RebrandSelection{
		BrandName:   strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Industry:    a.get("industry"),
		StyleID:     a.id("style"),
		PaletteID:   a.id("palette"),
	}
	if sel.Industry == "" && len(c.Rebrand.Industries) > 0 {
		sel.Industry = c.Rebrand.Industries[0]
	}
	if _, ok := c.BrandStyle(sel.StyleID); !ok && len(c.Rebrand.Styles) > 0 {
		sel.StyleID = c.Rebrand.Styles[0].ID
	}
	if _, ok := c.Palette(sel.PaletteID); !ok && len(c.Rebrand.Palettes) > 0 {
		sel.PaletteID = c.Rebrand.Palettes[0].ID
	}
	return sel
}

type characterArgs struct {
	name        string
	gender      string
	outfit      string
	background  string
	aspectRatio string
}

// parseCharacter maps "/character [gender=..] [bg=#hex] [ratio=W:H] Name | outfit".
func parseCharacter(raw string) characterArgs {
	a := parseArgs(raw)
	name, outfit, _ := strings.Cut(a.text, "|")
	return characterArgs{
		name:        strings.TrimSpace(name),
		gender:      a.get("gender"),
		outfit:      strings.TrimSpace(outfit),
		background:  a.get("bg", "background"),
		aspectRatio: a.ratio(),
	}
}

// apply returns the workspace edit for a new pack built from refs. Unset
// options keep their current values.
func (ca characterArgs) apply(refs []codec.Image) func(*studio.CharacterWorkspace) {
	return func(w *studio.CharacterWorkspace) {
		w.Name = ca.name
		if ca.gender != "" {
			w.Gender = ca.gender
		}
		if ca.outfit != "" {
			w.CustomOutfit = ca.outfit
		}
		if ca.background != "" {
			w.Background = ca.background
		}
		if ca.aspectRatio != "" {
			w.AspectRatio = ca.aspectRatio
		}
		w.OutfitRef = ""
		w.RefImages = nil
		for _, img := range refs[:min(len(refs), prompt.MaxFacesPerPerson)] {
			w.RefImages = append(w.RefImages, img.DataURI())
		}
	}
}

func quickToolSelection(toolID, text string, img codec.Image) prompt.QuickToolSelection {
	return prompt.QuickToolSelection{ToolID: toolID, Prompt: text, Image: img}
}

// parseTool splits "/tool <id> <prompt>".
func parseTool(raw string) (toolID, text string) {
	raw = strings.TrimSpace(raw)
	toolID, text, _ = strings.Cut(raw, " ")
	return strings.ToLower(toolID), strings.TrimSpace(text)
}
