package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gelap-studio/internal/codec"
)

type recorded struct {
	path string
	key  string
	body generateContentRequest
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body generateContentRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, recorded{path: r.URL.Path, key: r.Header.Get("x-goog-api-key"), body: body})
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(srv *httptest.Server, opts Options) *Client {
	opts.BaseURL = srv.URL
	opts.HTTPClient = srv.Client()
	if opts.APIKey == "" {
		opts.APIKey = "test-key"
	}
	return New(opts)
}

const imageResponse = `{"candidates":[{"content":{"parts":[{"text":"here"},{"inlineData":{"mimeType":"image/webp","data":"UklGRg=="}}]}}]}`

func TestGenerateImageSendsImagesBeforeText(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, imageResponse)
	client := newTestClient(srv, Options{})

	uri, err := client.GenerateImage(context.Background(), ImageRequest{
		Prompt: "Reference Image 1 is the product.",
		Images: []codec.Image{
			{MimeType: "image/png", Data: "AAAA"},
			{MimeType: "image/jpeg", Data: "BBBB"},
		},
		AspectRatio: "1:1",
	})
	require.NoError(t, err)
	assert.Equal(t, "data:image/webp;base64,UklGRg==", uri)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/v1beta/models/gemini-2.5-flash-image:generateContent", call.path)
	assert.Equal(t, "test-key", call.key)

	parts := call.body.Contents[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "AAAA", parts[0].InlineData.Data)
	assert.Equal(t, "BBBB", parts[1].InlineData.Data)
	assert.Equal(t, "Reference Image 1 is the product.", parts[2].Text)
	require.NotNil(t, call.body.GenerationConfig)
	assert.Equal(t, "1:1", call.body.GenerationConfig.ImageConfig.AspectRatio)
}

func TestGenerateImageOmitsAutomaticAspect(t *testing.T) {
	for _, aspect := range []string{"", AspectAutomatic} {
		srv, calls := newTestServer(t, http.StatusOK, imageResponse)
		client := newTestClient(srv, Options{})

		_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x", AspectRatio: aspect})
		require.NoError(t, err)
		assert.Nil(t, (*calls)[0].body.GenerationConfig, "aspect %q", aspect)
	}
}

func TestGenerateImageDefaultsMimeToPNG(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"inlineData":{"data":"QUJD"}}]}}]}`)
	client := newTestClient(srv, Options{})

	uri, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,QUJD", uri)
}

func TestGenerateImageCredentialOverride(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, imageResponse)
	client := newTestClient(srv, Options{})

	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x", Credential: "user-key"})
	require.NoError(t, err)
	assert.Equal(t, "user-key", (*calls)[0].key)
}

func TestGenerateImageNoImage(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"I cannot draw that"}]}}]}`)
	client := newTestClient(srv, Options{})

	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, KindNoImage, KindOf(err))
	assert.Contains(t, err.Error(), "I cannot draw that")
}

func TestGenerateImageValidation(t *testing.T) {
	client := New(Options{})

	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "  "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Equal(t, KindBadRequest, KindOf(err))

	_, err = client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, KindAuth, KindOf(err))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, KindAuth},
		{"forbidden", http.StatusForbidden, `{"error":{"status":"PERMISSION_DENIED"}}`, KindAuth},
		{"quota", http.StatusTooManyRequests, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, KindQuota},
		{"bad request", http.StatusBadRequest, `{"error":{"status":"INVALID_ARGUMENT","message":"bad aspect"}}`, KindBadRequest},
		{"invalid key", http.StatusBadRequest, `{"error":{"status":"INVALID_ARGUMENT","message":"API key not valid","details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo","reason":"API_KEY_INVALID"}]}}`, KindAuth},
		{"exhausted via status field", http.StatusServiceUnavailable, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, KindQuota},
		{"server error", http.StatusInternalServerError, `oops`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.status, tt.body)
			client := newTestClient(srv, Options{})

			_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))

			var gerr *Error
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, tt.status, gerr.StatusCode)
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(Options{APIKey: "k", BaseURL: url})
	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(srv, Options{CallTimeout: 50 * time.Millisecond})
	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestVerifyCredentialCachesSuccess(t *testing.T) {
	var hits atomic.Int32
	var body generateContentRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"t"}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(srv, Options{})
	require.NoError(t, client.VerifyCredential(context.Background(), "abc"))
	require.NoError(t, client.VerifyCredential(context.Background(), " abc "))

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", path)
	require.NotNil(t, body.GenerationConfig)
	assert.Equal(t, 1, body.GenerationConfig.MaxOutputTokens)
}

func TestVerifyCredentialFailureNotCached(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusTooManyRequests, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`)
	client := newTestClient(srv, Options{})

	err := client.VerifyCredential(context.Background(), "abc")
	assert.Equal(t, KindQuota, KindOf(err))
	err = client.VerifyCredential(context.Background(), "abc")
	assert.Equal(t, KindQuota, KindOf(err))
	assert.Len(t, *calls, 2)

	assert.ErrorIs(t, client.VerifyCredential(context.Background(), ""), ErrMissingCredential)
}

func TestAnalyzePromptPartOrder(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  A bottle on wet stone.  "}]}}]}`)
	client := newTestClient(srv, Options{})

	text, err := client.AnalyzePrompt(context.Background(), AnalysisRequest{
		Instruction: "describe",
		Product:     codec.Image{MimeType: "image/png", Data: "PROD"},
		Style:       codec.Image{MimeType: "image/png", Data: "STYLE"},
	})
	require.NoError(t, err)
	assert.Equal(t, "A bottle on wet stone.", text)

	parts := (*calls)[0].body.Contents[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "describe", parts[0].Text)
	assert.Equal(t, "PROD", parts[1].InlineData.Data)
	assert.Equal(t, "STYLE", parts[2].InlineData.Data)
	assert.True(t, strings.HasSuffix((*calls)[0].path, "gemini-2.5-flash:generateContent"))
}

func TestAnalyzePromptWrapsAndKeepsKind(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusUnauthorized, `{}`)
	client := newTestClient(srv, Options{})

	_, err := client.AnalyzePrompt(context.Background(), AnalysisRequest{
		Instruction: "describe",
		Product:     codec.Image{MimeType: "image/png", Data: "PROD"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyze images for prompt generation")
	assert.Equal(t, KindAuth, KindOf(err))
	assert.Len(t, (*calls)[0].body.Contents[0].Parts, 2)
}
