package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gelap-studio/internal/codec"
)

func img(tag string) codec.Image {
	return codec.Image{MimeType: "image/png", Data: tag}
}

func payloads(imgs []codec.Image) []string {
	out := make([]string, len(imgs))
	for i, im := range imgs {
		out[i] = im.Data
	}
	return out
}

func TestCatalogLoads(t *testing.T) {
	c := Default()
	assert.Len(t, c.Product.StyleVariations, 10)
	assert.NotEmpty(t, c.Product.Templates)
	assert.Len(t, c.Character.Shots, 13)
	assert.Equal(t, "Front Standing", c.Character.Shots[0].Label)
	assert.Len(t, c.QuickTools, 8)

	tech, ok := c.Technique("dtg")
	require.True(t, ok)
	assert.Equal(t, "Digital Print (DTG)", tech.Label)

	_, ok = c.Template("does-not-exist")
	assert.False(t, ok)

	st, ok := c.SubjectType("group")
	require.True(t, ok)
	assert.Equal(t, 3, st.Min)
	assert.Equal(t, 10, st.Max)

	assert.True(t, c.ContextDisabled("Consumer Electronics"))
	assert.False(t, c.ContextDisabled(ContextClothing))
}

func TestRefsRunningCounter(t *testing.T) {
	var refs Refs
	assert.Equal(t, 1, refs.Add(img("A")))
	first, last := refs.AddAll([]codec.Image{img("B"), img("C")})
	assert.Equal(t, 2, first)
	assert.Equal(t, 3, last)

	first, last = refs.AddAll(nil)
	assert.Zero(t, first)
	assert.Zero(t, last)

	assert.Equal(t, []string{"A", "B", "C"}, payloads(refs.Images()))
	assert.Equal(t, 3, refs.Len())
}

func TestWithAnchorDoesNotAliasImages(t *testing.T) {
	base := Built{Text: "x", Images: make([]codec.Image, 1, 4)}
	base.Images[0] = img("A")

	a := base.WithAnchor(img("ANCHOR1"))
	b := base.WithAnchor(img("ANCHOR2"))

	assert.Equal(t, []string{"A", "ANCHOR1"}, payloads(a.Images))
	assert.Equal(t, []string{"A", "ANCHOR2"}, payloads(b.Images))
	assert.Contains(t, a.Text, "Reference Image #2 is the OFFICIAL GENERATED DESIGN")
	assert.Len(t, base.Images, 1)
}

func TestBuildProductCommercial(t *testing.T) {
	built, err := BuildProduct(ProductSelection{Product: img("P"), AspectRatio: "1:1"}, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"P"}, payloads(built.Images))
	assert.Equal(t, "1:1", built.AspectRatio)
	assert.True(t, strings.HasPrefix(built.Text, "SYSTEM INSTRUCTION: Expert Commercial Photographer."))
	assert.Contains(t, built.Text, "INPUT: Image 1 is the PRODUCT")
	assert.True(t, strings.HasSuffix(built.Text, DefaultProductPrompt))
	assert.NotContains(t, built.Text, "REQUIRED TECHNICAL SPECIFICATIONS")
}

func TestBuildProductCompositorWithTechnicalSuffix(t *testing.T) {
	sel := ProductSelection{
		Product:        img("P"),
		Style:          img("S"),
		ManualOverride: true,
		Lighting:       "Rembrandt",
		Perspective:    "Automatic",
		Lens:           "Macro 100mm",
		FilmGrain:      15,
		AspectRatio:    "Automatic",
	}
	built, err := BuildProduct(sel, "A bottle on wet slate")
	require.NoError(t, err)

	assert.Equal(t, []string{"P", "S"}, payloads(built.Images))
	assert.Empty(t, built.AspectRatio)
	assert.Contains(t, built.Text, "- Image 1: THE PRODUCT (Subject).")
	assert.Contains(t, built.Text, "- Image 2: THE STYLE REFERENCE")
	assert.Contains(t, built.Text, "DESCRIPTION OF DESIRED OUTPUT:\nA bottle on wet slate")

	idx := strings.Index(built.Text, "A bottle on wet slate")
	suffix := strings.Index(built.Text, "REQUIRED TECHNICAL SPECIFICATIONS: Lighting Style: Rembrandt, Lens Type: Macro 100mm, Film Grain: 15%")
	require.NotEqual(t, -1, suffix)
	assert.Greater(t, suffix, idx)
	assert.NotContains(t, built.Text, "Camera Perspective")
}

func TestBuildProductIgnoresTechnicalWithoutOverride(t *testing.T) {
	built, err := BuildProduct(ProductSelection{Product: img("P"), Lighting: "Rembrandt"}, "x")
	require.NoError(t, err)
	assert.NotContains(t, built.Text, "Rembrandt")

	_, err = BuildProduct(ProductSelection{}, "x")
	assert.ErrorIs(t, err, ErrMissingImage)
}

func TestAnalysisInstruction(t *testing.T) {
	text := AnalysisInstruction(ProductSelection{Description: "summer drink", Lighting: "Rembrandt", FilmGrain: 5, PreserveDetails: true})
	assert.Contains(t, text, `3. User Request: "summer drink"`)
	assert.Contains(t, text, "   - Lighting: Automatic")
	assert.Contains(t, text, "   - Film Grain: 5%")
	assert.Contains(t, text, "   - Preserve: shadows, reflections, texture, lighting")

	text = AnalysisInstruction(ProductSelection{ManualOverride: true, Lighting: "Rembrandt"})
	assert.Contains(t, text, "   - Lighting: Rembrandt")
	assert.Contains(t, text, "   - Camera Angle: Automatic")
}

func TestProductVariants(t *testing.T) {
	templates := ProductVariants(ProductSelection{UseTemplates: true, TemplateIDs: []string{"luxury", "nope", "minimal"}, Count: 1})
	require.Len(t, templates, 2)
	assert.Equal(t, "Luxury", templates[0].Label)
	assert.Contains(t, templates[0].Clause(0), "IMPORTANT - TEMPLATE STYLE: Style: Luxury.")
	assert.Equal(t, "base | Template: Luxury", templates[0].Display("base"))

	styles := ProductVariants(ProductSelection{Count: 3, VaryStyles: true})
	require.Len(t, styles, 10)
	assert.Contains(t, styles[1].Clause(1), "IMPORTANT - BATCH VARIATION 2:")
	assert.True(t, strings.HasPrefix(styles[0].Display("base"), "base | Variation: Style: Minimalist Podium."))

	assert.Nil(t, ProductVariants(ProductSelection{Count: 1, VaryStyles: true}))
	assert.Nil(t, ProductVariants(ProductSelection{Count: 4}))
}

func TestBuildMockupClean(t *testing.T) {
	built, err := BuildMockupClean(MockupCleanSelection{Target: img("T")})
	require.NoError(t, err)
	assert.Equal(t, []string{"T"}, payloads(built.Images))
	assert.Contains(t, built.Text, "Just erase the graphics.")

	_, err = BuildMockupClean(MockupCleanSelection{})
	assert.ErrorIs(t, err, ErrMissingImage)
}

func TestBuildMockupInjectOrderAndOverrides(t *testing.T) {
	built, err := BuildMockupInject(MockupInjectSelection{
		Base:   img("CLEAN"),
		Design: img("DESIGN"),
		MockupStyle: MockupStyle{
			Category:    "Coffee",
			ColorHex:    "#ff0000",
			TechniqueID: "dtg",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CLEAN", "DESIGN"}, payloads(built.Images))
	assert.Contains(t, built.Text, "Edit Image 1 (the target mockup).")
	assert.Contains(t, built.Text, "Apply the design (from Image 2)")
	assert.Contains(t, built.Text, "CONTEXT: This is a Logo / Icon for a Coffee brand.")
	assert.Contains(t, built.Text, "PRINTING TECHNIQUE: Digital Print (DTG)")
	assert.Contains(t, built.Text, "single color: #ff0000")
	assert.NotContains(t, built.Text, "Preserve the original colors of the design.")

	plain, err := BuildMockupInject(MockupInjectSelection{Base: img("CLEAN"), Design: img("DESIGN")})
	require.NoError(t, err)
	assert.Contains(t, plain.Text, "Preserve the original colors of the design.")
	assert.Contains(t, plain.Text, "PRINTING TECHNIQUE: Analyze the mockup surface")

	_, err = BuildMockupInject(MockupInjectSelection{Base: img("CLEAN")})
	assert.ErrorIs(t, err, ErrMissingDesign)
}

func TestBuildMockupGenerateDefaultsSquare(t *testing.T) {
	built, err := BuildMockupGenerate(MockupGenerateSelection{
		Design:  img("D"),
		Object:  "Tote Bag",
		SceneID: "marble",
		Details: "morning light",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultMockupAspect, built.AspectRatio)
	assert.Contains(t, built.Text, "SCENE/ENVIRONMENT: Placed on a luxury white marble surface.")
	assert.Contains(t, built.Text, "applied to the Tote Bag")
	assert.Contains(t, built.Text, "ADDITIONAL DETAILS: morning light")
	assert.Contains(t, built.Text, "Use the original colors of the uploaded design.")

	_, err = BuildMockupGenerate(MockupGenerateSelection{Design: img("D")})
	assert.ErrorIs(t, err, ErrMissingObject)
}

func TestBuildHireModelIndicesFollowSubmissionOrder(t *testing.T) {
	built, err := BuildHireModel(HireModelSelection{
		Mode:           HireHuman,
		Context:        ContextClothing,
		Identity:       img("MODEL"),
		SubjectName:    "Rara",
		Product:        img("PRODUCT"),
		ClothingType:   "Denim Jacket",
		Interaction:    "Adjusting collar",
		OverrideOutfit: true,
		OutfitImage:    img("OUTFIT"),
		Framing:        "Full Body",
		Angle:          "Eye Level",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"MODEL", "PRODUCT", "OUTFIT"}, payloads(built.Images))
	assert.Contains(t, built.Text, "Reference Image 1 is the MODEL REFERENCE.")
	assert.Contains(t, built.Text, "Reference Image #2 is the PRODUCT REFERENCE.")
	assert.Contains(t, built.Text, "Reference Image #3 is the OUTFIT REFERENCE.")
	assert.Contains(t, built.Text, "SUBJECT: Professional Model (Rara).")
	assert.NotContains(t, built.Text, defaultOutfitClause)
	assert.Contains(t, built.Text, "clothing campaign for 'Denim Jacket'")
	assert.Contains(t, built.Text, "CAMERA FRAMING: FULL BODY SHOT.")
	assert.Contains(t, built.Text, "CAMERA ANGLE: EYE LEVEL.")
	assert.Equal(t, DefaultHireAspect, built.AspectRatio)
}

func TestBuildHireModelWithoutIdentityShiftsIndices(t *testing.T) {
	built, err := BuildHireModel(HireModelSelection{
		Mode:        HireHuman,
		Context:     "Skincare & Beauty",
		SubjectName: "Jono (Local)",
		Product:     img("PRODUCT"),
		Framing:     "Something Else",
		Angle:       "Eye Level",
		CustomAngle: "tilted slightly",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"PRODUCT"}, payloads(built.Images))
	assert.NotContains(t, built.Text, "MODEL REFERENCE")
	assert.Contains(t, built.Text, "Reference Image #1 is the PRODUCT REFERENCE.")
	assert.Contains(t, built.Text, defaultOutfitClause)
	assert.Contains(t, built.Text, "FRAMING: Something Else.")
	assert.Contains(t, built.Text, "CAMERA ANGLE: tilted slightly")
}

func TestBuildHireModelEmptyOutfitOverrideKeepsDefault(t *testing.T) {
	sel := HireModelSelection{
		Mode:           HireHuman,
		Context:        "Skincare & Beauty",
		SubjectName:    "Jono (Local)",
		Product:        img("PRODUCT"),
		OverrideOutfit: true,
		Outfit:         "   ",
	}
	built, err := BuildHireModel(sel)
	require.NoError(t, err)
	assert.Contains(t, built.Text, "STYLING & OUTFIT: "+defaultOutfitClause)
	assert.Equal(t, []string{"PRODUCT"}, payloads(built.Images))

	sel.Outfit = "linen kebaya"
	built, err = BuildHireModel(sel)
	require.NoError(t, err)
	assert.Contains(t, built.Text, "STYLING & OUTFIT: WEARING: linen kebaya. ")
	assert.NotContains(t, built.Text, defaultOutfitClause)
}

func TestBuildHireModelRequiresInteraction(t *testing.T) {
	for _, ctx := range []string{ContextClothing, ContextFood} {
		_, err := BuildHireModel(HireModelSelection{Context: ctx})
		assert.ErrorIs(t, err, ErrMissingInteraction, ctx)
	}

	built, err := BuildHireModel(HireModelSelection{Mode: HireAnimal, Context: ContextFood, Interaction: "Sniffing", AnimalType: "Dog", AnimalBreed: "Corgi", Identity: img("IGNORED")})
	require.NoError(t, err)
	assert.Empty(t, built.Images)
	assert.Contains(t, built.Text, "F&B ITEM: Food/Drink Product.")
	assert.Contains(t, built.Text, "SUBJECT: Corgi Dog.")
}

func TestBuildPhotoStudioPositionalIndex(t *testing.T) {
	sel := PhotoStudioSelection{
		SubjectType: "couple",
		Occasion:    "Pre-Wedding",
		People: []Person{
			{Label: "Person 1", Faces: []codec.Image{img("A1"), img("A2")}},
			{Label: "Person 2", Faces: []codec.Image{img("B1")}, Outfit: img("B-OUTFIT")},
		},
		Outfit: "Elegant Formal",
		Pose:   "Holding hands",
	}
	built, err := BuildPhotoStudio(sel)
	require.NoError(t, err)

	assert.Equal(t, []string{"A1", "A2", "B1", "B-OUTFIT"}, payloads(built.Images))
	assert.Contains(t, built.Text, "Person 1 is defined by Reference Images 1 to 2.")
	assert.Contains(t, built.Text, "Person 2 is Reference Image 3.")
	assert.Contains(t, built.Text, "Person 2 MUST wear the outfit shown in Reference Image 4.")
	assert.Contains(t, built.Text, "WARDROBE: Person 1 should wear the 'Default Wardrobe'")
	assert.Contains(t, built.Text, "DEFAULT WARDROBE: Elegant Formal.")
	assert.Contains(t, built.Text, "exactly 2 person(s)")
	assert.Contains(t, built.Text, "Shot Type: Headshot / Portrait (Shoulders and up).")
	assert.Contains(t, built.Text, "Color Grading: Natural Studio (True to life colors).")
}

func TestBuildPhotoStudioOverrideSuppressesDefaultWardrobe(t *testing.T) {
	built, err := BuildPhotoStudio(PhotoStudioSelection{
		SubjectType: "single",
		People:      []Person{{Faces: []codec.Image{img("F")}, Outfit: img("O")}},
		Outfit:      "Casual Denim",
	})
	require.NoError(t, err)
	assert.NotContains(t, built.Text, "DEFAULT WARDROBE")
	assert.NotContains(t, built.Text, "Casual Denim")
	assert.Contains(t, built.Text, "Person 1 MUST wear the outfit shown in Reference Image 2.")
}

func TestPhotoStudioValidation(t *testing.T) {
	faces := func(n int) []codec.Image {
		out := make([]codec.Image, n)
		for i := range out {
			out[i] = img(fmt.Sprint(i))
		}
		return out
	}

	_, err := BuildPhotoStudio(PhotoStudioSelection{SubjectType: "couple", People: []Person{{Faces: faces(1)}}})
	assert.ErrorIs(t, err, ErrPeopleCount)

	_, err = BuildPhotoStudio(PhotoStudioSelection{SubjectType: "single", People: []Person{{Faces: faces(6)}}})
	assert.ErrorIs(t, err, ErrTooManyFaces)

	_, err = BuildPhotoStudio(PhotoStudioSelection{SubjectType: "single", People: []Person{{}}})
	assert.ErrorIs(t, err, ErrMissingImage)

	_, err = BuildPhotoStudio(PhotoStudioSelection{SubjectType: "crowd"})
	assert.Error(t, err)
}

func TestBuildCharacterShot(t *testing.T) {
	sel := CharacterSelection{
		Name:      "Sari",
		Gender:    "Female",
		Identity:  []codec.Image{img("I1"), img("I2")},
		OutfitRef: img("OUT"),
	}
	shot := Default().Character.Shots[0]
	built, err := BuildCharacterShot(sel, shot)
	require.NoError(t, err)

	assert.Equal(t, []string{"I1", "I2", "OUT"}, payloads(built.Images))
	assert.Contains(t, built.Text, "SUBJECT IDENTITY: Sari (Female).")
	assert.Contains(t, built.Text, "Images 1 to 2 are the CHARACTER IDENTITY REFERENCES.")
	assert.Contains(t, built.Text, "exact outfit shown in Image #3.")
	assert.Contains(t, built.Text, "EXACT COLOR HEX: #808080.")
	assert.Equal(t, DefaultCharacterAspect, built.AspectRatio)
	assert.NotContains(t, built.Text, "CRITICAL OUTFIT CONSISTENCY")

	anchored := built.WithAnchor(img("ANCHOR"))
	assert.Equal(t, []string{"I1", "I2", "OUT", "ANCHOR"}, payloads(anchored.Images))
	assert.Contains(t, anchored.Text, "Reference Image #4 is the OFFICIAL GENERATED DESIGN")
	assert.Contains(t, anchored.Text, "Use Image #4 as the primary source of truth for the outfit.")
}

func TestCharacterValidation(t *testing.T) {
	_, err := BuildCharacterShot(CharacterSelection{Identity: []codec.Image{img("I")}}, Shot{})
	assert.ErrorIs(t, err, ErrMissingName)

	_, err = BuildCharacterShot(CharacterSelection{Name: "x"}, Shot{})
	assert.ErrorIs(t, err, ErrMissingImage)
}

func TestBuildRebrand(t *testing.T) {
	built, err := BuildRebrand(RebrandSelection{BrandName: "Kopi Senja", Industry: "Food & Beverage", StyleID: "vintage", PaletteID: "monochrome"})
	require.NoError(t, err)
	assert.Empty(t, built.Images)
	assert.Equal(t, "1:1", built.AspectRatio)
	assert.Contains(t, built.Text, `- Name: "Kopi Senja"`)
	assert.Contains(t, built.Text, "- Style: Vintage (Retro, nostalgic, textured)")
	assert.Contains(t, built.Text, "- Color Palette: Monochrome Theme.")
	assert.NotContains(t, built.Text, "REFERENCE:")

	withRef, err := BuildRebrand(RebrandSelection{BrandName: "Kopi Senja", Reference: img("OLD")})
	require.NoError(t, err)
	assert.Len(t, withRef.Images, 1)
	assert.Contains(t, withRef.Text, "REFERENCE: Use the attached image")

	_, err = BuildRebrand(RebrandSelection{})
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestBuildQuickTool(t *testing.T) {
	built, tool, err := BuildQuickTool(QuickToolSelection{ToolID: "pre-wedding", Prompt: "beach at dusk"})
	require.NoError(t, err)
	assert.Equal(t, "PreWedding", tool.Label)
	assert.Equal(t, "Romantic pre-wedding photography. beach at dusk. Soft lighting, dreamy atmosphere, couple portraiture style.", built.Text)
	assert.Empty(t, built.Images)

	_, _, err = BuildQuickTool(QuickToolSelection{ToolID: "mockup", Prompt: "mug"})
	assert.ErrorIs(t, err, ErrMissingImage)

	built, _, err = BuildQuickTool(QuickToolSelection{ToolID: "photo-studio", Prompt: "family portrait"})
	require.NoError(t, err)
	assert.Equal(t, "family portrait", built.Text)

	_, _, err = BuildQuickTool(QuickToolSelection{ToolID: "hire-model"})
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, _, err = BuildQuickTool(QuickToolSelection{ToolID: "video"})
	assert.ErrorIs(t, err, ErrUnknownTool)
}
