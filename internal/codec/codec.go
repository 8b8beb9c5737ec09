package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const FallbackMimeType = "image/jpeg"

var (
	ErrEmpty     = errors.New("empty image data")
	ErrMalformed = errors.New("malformed data uri")
)

var dataURLRegex = regexp.MustCompile(`^data:([^;,]+)(;[^,]*)?,`)

// Image is an encoded image ready to be submitted as an inline part.
// Data never carries the data URI prefix.
type Image struct {
	MimeType string
	Data     string
}

func (i Image) IsZero() bool {
	return strings.TrimSpace(i.Data) == ""
}

func (i Image) DataURI() string {
	mimeType := i.MimeType
	if mimeType == "" {
		mimeType = FallbackMimeType
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, i.Data)
}

func (i Image) Bytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(i.Data)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return raw, nil
}

func Encode(r io.Reader) (Image, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	return EncodeBytes(raw, "")
}

func EncodeFile(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return Encode(f)
}

// EncodeBytes sniffs the MIME type when the declared one is empty or generic.
func EncodeBytes(raw []byte, declared string) (Image, error) {
	if len(raw) == 0 {
		return Image{}, ErrEmpty
	}
	return Image{
		MimeType: resolveMimeType(declared, raw),
		Data:     base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// Decode splits a data URI into MIME type and payload. A bare base64 payload
// is accepted and tagged with FallbackMimeType.
func Decode(value string) (Image, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Image{}, ErrEmpty
	}

	if !strings.HasPrefix(value, "data:") {
		return Image{MimeType: FallbackMimeType, Data: value}, nil
	}

	matches := dataURLRegex.FindStringSubmatch(value)
	if len(matches) < 2 {
		return Image{}, ErrMalformed
	}
	if !strings.Contains(matches[2], "base64") {
		return Image{}, fmt.Errorf("%w: payload is not base64", ErrMalformed)
	}

	data := StripPrefix(value)
	if data == "" {
		return Image{}, ErrEmpty
	}
	return Image{MimeType: strings.TrimSpace(matches[1]), Data: data}, nil
}

func MustDecode(value string) Image {
	img, err := Decode(value)
	if err != nil {
		panic(err)
	}
	return img
}

func StripPrefix(value string) string {
	if idx := strings.IndexByte(value, ','); idx >= 0 && strings.HasPrefix(value, "data:") {
		return value[idx+1:]
	}
	return value
}

func resolveMimeType(declared string, raw []byte) string {
	mimeType := strings.TrimSpace(declared)
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(raw).String()
	}
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" || mimeType == "application/octet-stream" || mimeType == "text/plain" {
		mimeType = FallbackMimeType
	}
	return mimeType
}
