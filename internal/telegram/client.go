package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gelap-studio/internal/codec"
)

const (
	maxMessageBytes = 4096
	maxCaptionBytes = 1024
	// maxDownloadBytes matches the Bot API getFile limit.
	maxDownloadBytes = 20 << 20
)

type Options struct {
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Debug      bool
}

type Client struct {
	bot        *tgbotapi.BotAPI
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("http client is nil")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	bot.Debug = opts.Debug

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		bot:        bot,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}, nil
}

func (c *Client) Username() string {
	return c.bot.Self.UserName
}

type Update = tgbotapi.Update

type UpdatesOptions struct {
	Timeout time.Duration
}

func (c *Client) Updates(opts UpdatesOptions) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	if opts.Timeout > 0 {
		u.Timeout = int(opts.Timeout.Seconds())
	} else {
		u.Timeout = 30
	}
	return c.bot.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

func (c *Client) SendTyping(chatID int64) {
	_, _ = c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto))
}

func (c *Client) SendText(chatID int64, text string) error {
	for _, p := range splitByBytes(text, maxMessageBytes) {
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, p)); err != nil {
			return err
		}
	}
	return nil
}

// SendImage uploads img as a compressed photo.
func (c *Client) SendImage(chatID int64, img codec.Image, caption string) error {
	raw, err := img.Bytes()
	if err != nil {
		return err
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "image" + extension(img.MimeType),
		Bytes: raw,
	})
	if caption != "" {
		photo.Caption = truncateByBytes(caption, maxCaptionBytes)
	}

	_, err = c.bot.Send(photo)
	return err
}

// SendDocument uploads data as a file, e.g. a zip pack or a lossless PNG.
func (c *Client) SendDocument(chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	if caption != "" {
		doc.Caption = truncateByBytes(caption, maxCaptionBytes)
	}
	_, err := c.bot.Send(doc)
	return err
}

// DownloadImage fetches a photo or image document the user sent.
func (c *Client) DownloadImage(ctx context.Context, fileID string) (codec.Image, error) {
	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return codec.Image{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return codec.Image{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return codec.Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return codec.Image{}, fmt.Errorf("telegram file download %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return codec.Image{}, err
	}
	if len(raw) > maxDownloadBytes {
		return codec.Image{}, fmt.Errorf("telegram file %s exceeds %d bytes", fileID, maxDownloadBytes)
	}

	c.logger.Debug("telegram file downloaded", "bytes", len(raw))
	return codec.EncodeBytes(raw, resp.Header.Get("Content-Type"))
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ".png"
}

// splitByBytes breaks text into messages of at most maxBytes, cutting at
// the last line break that fits when there is one.
func splitByBytes(text string, maxBytes int) []string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return []string{text}
	}

	var out []string
	for text != "" {
		var head string
		head, text = cutByBytes(text, maxBytes, true)
		out = append(out, head)
	}
	return out
}

func truncateByBytes(text string, maxBytes int) string {
	if maxBytes <= 0 {
		return text
	}
	head, _ := cutByBytes(text, maxBytes, false)
	if len(head) > maxBytes {
		return ""
	}
	return head
}

// cutByBytes splits text at a rune boundary so head fits maxBytes. A single
// rune wider than maxBytes is returned whole. With atLine the cut moves back
// to the last newline and drops it.
func cutByBytes(text string, maxBytes int, atLine bool) (head, rest string) {
	if len(text) <= maxBytes {
		return text, ""
	}
	end := maxBytes
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == 0 {
		_, end = utf8.DecodeRuneInString(text)
	}
	if atLine {
		if i := strings.LastIndexByte(text[:end], '\n'); i > 0 {
			return text[:i], text[i+1:]
		}
	}
	return text[:end], text[end:]
}
