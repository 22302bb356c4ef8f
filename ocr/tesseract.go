package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// ProviderTesseract names results produced by Tesseract.
const ProviderTesseract = "tesseract"

// minHeight is the height below which photos are upscaled before OCR.
const minHeight = 1200

// Tesseract runs a local Tesseract engine over a preprocessed copy of the
// photo.
type Tesseract struct {
	Languages []string
	logger    *zap.Logger
}

// NewTesseract returns a scanner using languages (default "eng").
func NewTesseract(logger *zap.Logger, languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tesseract{Languages: languages, logger: logger}
}

func (t *Tesseract) Scan(ctx context.Context, img []byte, mimeType string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared, err := Preprocess(img)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", mimeType, err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.Languages...); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	_ = client.SetWhitelist("0123456789")
	_ = client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT)
	if err := client.SetImageFromBytes(prepared); err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("word boxes: %w", err)
	}

	result := &Result{Provider: ProviderTesseract, FullText: strings.TrimSpace(text)}
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}
		result.addToken(Token{
			Text:       word,
			Confidence: box.Confidence / 100,
			X:          box.Box.Min.X,
			Y:          box.Box.Min.Y,
			Width:      box.Box.Dx(),
			Height:     box.Box.Dy(),
		})
	}
	result.finish()

	t.logger.Debug("tesseract pass",
		zap.Int("words", len(result.Tokens)),
		zap.Int("numbers", len(result.Numbers)),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// Preprocess decodes a JPEG or PNG photo, applies EXIF orientation and
// returns a grayscale, contrast-boosted, sharpened PNG. Small photos are
// upscaled so printed digits are large enough for Tesseract.
func Preprocess(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	out := prepare(src)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func prepare(src image.Image) *image.NRGBA {
	gray := imaging.Grayscale(src)
	gray = imaging.AdjustContrast(gray, 20)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < minHeight {
		gray = imaging.Resize(gray, 0, minHeight, imaging.Lanczos)
	}
	return gray
}
