package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"gelap-studio/internal/codec"
)

const (
	DefaultImageModel = "gemini-2.5-flash-image"
	DefaultTextModel  = "gemini-2.5-flash"

	defaultCallTimeout = 120 * time.Second
	defaultVerifyTTL   = 30 * time.Minute
)

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	ImageModel string
	TextModel  string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// RequestsPerMinute paces every remote call. Zero disables pacing.
	RequestsPerMinute int
	CallTimeout       time.Duration
	VerifyCacheTTL    time.Duration
}

type Client struct {
	apiKey      string
	baseURL     string
	apiVersion  string
	imageModel  string
	textModel   string
	httpClient  *http.Client
	logger      *slog.Logger
	limiter     *rate.Limiter
	callTimeout time.Duration
	verified    *cache.Cache
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = DefaultTextModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 2)
	}

	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	verifyTTL := opts.VerifyCacheTTL
	if verifyTTL <= 0 {
		verifyTTL = defaultVerifyTTL
	}

	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		apiVersion:  apiVersion,
		imageModel:  imageModel,
		textModel:   textModel,
		httpClient:  httpClient,
		logger:      logger,
		limiter:     limiter,
		callTimeout: callTimeout,
		verified:    cache.New(verifyTTL, 2*verifyTTL),
	}
}

// VerifyCredential issues a one-token text generation with key. Successful
// keys are remembered for the cache TTL.
func (c *Client) VerifyCredential(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &Error{Kind: KindAuth, Err: ErrMissingCredential}
	}

	cacheKey := fingerprint(key)
	if _, ok := c.verified.Get(cacheKey); ok {
		return nil
	}

	req := generateContentRequest{
		Contents:         []content{{Parts: []part{{Text: "test"}}}},
		GenerationConfig: &generationConfig{MaxOutputTokens: 1},
	}
	if _, err := c.generateContent(ctx, key, c.textModel, req); err != nil {
		return err
	}
	c.verified.Set(cacheKey, true, cache.DefaultExpiration)
	return nil
}

// GenerateImage sends the reference images in order followed by the prompt
// and returns the first inline image as a data URI.
func (c *Client) GenerateImage(ctx context.Context, in ImageRequest) (string, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return "", &Error{Kind: KindBadRequest, Err: ErrEmptyPrompt}
	}
	key, err := c.credential(in.Credential)
	if err != nil {
		return "", err
	}

	parts := make([]part, 0, len(in.Images)+1)
	for _, img := range in.Images {
		parts = append(parts, inlinePart(img))
	}
	parts = append(parts, part{Text: prompt})

	req := generateContentRequest{Contents: []content{{Parts: parts}}}
	if aspect := strings.TrimSpace(in.AspectRatio); aspect != "" && aspect != AspectAutomatic {
		req.GenerationConfig = &generationConfig{ImageConfig: &imageConfig{AspectRatio: aspect}}
	}

	resp, err := c.generateContent(ctx, key, c.imageModel, req)
	if err != nil {
		return "", err
	}

	if uri, ok := firstImage(resp); ok {
		return uri, nil
	}
	return "", noImageError(resp)
}

// AnalyzePrompt turns a product image, an optional style image and the
// instruction text into a ready-to-use image prompt.
func (c *Client) AnalyzePrompt(ctx context.Context, in AnalysisRequest) (string, error) {
	if in.Product.IsZero() {
		return "", fmt.Errorf("analyze images for prompt generation: %w", &Error{Kind: KindBadRequest, Err: codec.ErrEmpty})
	}
	key, err := c.credential(in.Credential)
	if err != nil {
		return "", fmt.Errorf("analyze images for prompt generation: %w", err)
	}

	parts := []part{{Text: in.Instruction}, inlinePart(in.Product)}
	if !in.Style.IsZero() {
		parts = append(parts, inlinePart(in.Style))
	}

	resp, err := c.generateContent(ctx, key, c.textModel, generateContentRequest{Contents: []content{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("analyze images for prompt generation: %w", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

func (c *Client) credential(override string) (string, error) {
	if key := strings.TrimSpace(override); key != "" {
		return key, nil
	}
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	return "", &Error{Kind: KindAuth, Err: ErrMissingCredential}
}

func (c *Client) generateContent(ctx context.Context, key, model string, payload generateContentRequest) (generateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return generateContentResponse{}, err
		}
		return generateContentResponse{}, &Error{Kind: KindTimeout, Err: err}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		gerr := classifyTransport(err)
		c.logger.Warn("gemini request failed", "model", model, "kind", gerr.Kind, "err", err)
		return generateContentResponse{}, gerr
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, classifyTransport(fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("gemini response", "model", model, "status", httpResp.StatusCode, "bytes", len(rawBody), "dur_ms", time.Since(start).Milliseconds())

	if httpResp.StatusCode >= 400 {
		gerr := classifyResponse(httpResp.StatusCode, rawBody)
		c.logger.Warn("gemini API error", "model", model, "status", httpResp.StatusCode, "kind", gerr.Kind, "reason", gerr.Reason)
		return generateContentResponse{}, gerr
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, &Error{Kind: KindUnknown, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return decoded, nil
}

func inlinePart(img codec.Image) part {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = codec.FallbackMimeType
	}
	return part{InlineData: &blob{Data: codec.StripPrefix(img.Data), MimeType: mimeType}}
}

func firstImage(resp generateContentResponse) (string, bool) {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			mimeType := p.InlineData.MimeType
			if mimeType == "" {
				mimeType = "image/png"
			}
			return fmt.Sprintf("data:%s;base64,%s", mimeType, p.InlineData.Data), true
		}
	}
	return "", false
}

func responseText(resp generateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func noImageError(resp generateContentResponse) *Error {
	msg := "no image data in response, the model may have returned text instead"
	switch {
	case resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "":
		msg = "prompt blocked: " + resp.PromptFeedback.BlockReason
	case len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" && resp.Candidates[0].FinishReason != "STOP":
		msg += " (finish reason " + resp.Candidates[0].FinishReason + ")"
	}
	if text := strings.TrimSpace(responseText(resp)); text != "" {
		if len(text) > 200 {
			text = text[:200]
		}
		msg += ": " + text
	}
	return &Error{Kind: KindNoImage, Message: msg}
}

func fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
