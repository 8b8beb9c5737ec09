package export

import (
	"archive/zip"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"gelap-studio/internal/codec"
	"gelap-studio/internal/store"
)

const downloadPrefix = "Gelap5-"

var (
	whitespace  = regexp.MustCompile(`\s+`)
	nonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9]`)
	pathUnsafe  = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]`)
	markRemover = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Fold strips diacritics so accented letters survive ASCII-only filters.
func Fold(value string) string {
	out, _, err := transform.String(markRemover, value)
	if err != nil {
		return value
	}
	return out
}

// DownloadName is the file name for a single result of a tool, e.g.
// Gelap5-MockupStudio_1715000000000.png.
func DownloadName(toolLabel string, at time.Time) string {
	return fmt.Sprintf("%s%s_%d.png", downloadPrefix, whitespace.ReplaceAllString(Fold(toolLabel), ""), at.UnixMilli())
}

// AssetFileName names a gallery download from the asset title, or from its
// kind when untitled.
func AssetFileName(asset store.Asset) string {
	title := nonAlnum.ReplaceAllString(Fold(asset.Title), "")
	if title == "" {
		if asset.Kind == store.AssetGenerated {
			title = "Generated"
		} else {
			title = "Upload"
		}
	}
	return fmt.Sprintf("%s%s_%d.png", downloadPrefix, title, asset.CreatedAt.UnixMilli())
}

// ProductFileName names a product photo download by its MIME type.
func ProductFileName(mimeType string, at time.Time) string {
	ext := "png"
	switch mimeType {
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("gelap-product-hq-%d.%s", at.UnixMilli(), ext)
}

// SafeLabel replaces every character outside [A-Za-z0-9] with an underscore.
func SafeLabel(label string) string {
	return nonAlnum.ReplaceAllString(Fold(label), "_")
}

func cleanName(name string) string {
	name = strings.TrimSpace(pathUnsafe.ReplaceAllString(name, "_"))
	if name == "" {
		return "Character"
	}
	return name
}

// ShotFileName is the single-download name of one character shot.
func ShotFileName(name, shotType, label string) string {
	return fmt.Sprintf("%s_%s_%s.png", cleanName(name), shotType, pathUnsafe.ReplaceAllString(label, "_"))
}

func PackFileName(name string) string {
	return cleanName(name) + "_CharacterPack.zip"
}

// PackShot is one generated image of a character sheet.
type PackShot struct {
	Type  string
	Label string
	Image codec.Image
}

// PackEntryName is the path of a shot inside the pack archive.
func PackEntryName(name string, shot PackShot) string {
	name = cleanName(name)
	return fmt.Sprintf("%s_CharacterPack/%s_%s_%s.png", name, name, shot.Type, SafeLabel(shot.Label))
}

// WriteCharacterPack streams a zip with one PNG entry per shot under a
// <name>_CharacterPack folder.
func WriteCharacterPack(w io.Writer, name string, shots []PackShot) error {
	if len(shots) == 0 {
		return fmt.Errorf("character pack %q has no images", name)
	}
	zw := zip.NewWriter(w)
	for _, shot := range shots {
		raw, err := shot.Image.Bytes()
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("decode %s: %w", shot.Label, err)
		}
		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     PackEntryName(name, shot),
			Method:   zip.Store,
			Modified: time.Now(),
		})
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("create zip entry: %w", err)
		}
		if _, err := entry.Write(raw); err != nil {
			_ = zw.Close()
			return fmt.Errorf("write zip entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	return nil
}
