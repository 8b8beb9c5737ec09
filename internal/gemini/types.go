package gemini

import "gelap-studio/internal/codec"

// AspectAutomatic means the model picks the aspect ratio.
const AspectAutomatic = "Automatic"

type ImageRequest struct {
	Prompt      string
	Images      []codec.Image
	AspectRatio string
	// Credential overrides the client's default API key when set.
	Credential string
}

type AnalysisRequest struct {
	Instruction string
	Product     codec.Image
	Style       codec.Image
	Credential  string
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	MaxOutputTokens int          `json:"maxOutputTokens,omitempty"`
	ImageConfig     *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}
