// Package ocr reads the printed numbers off a ticket photo with
// Tesseract. Its output feeds the AI pass of the recognition service.
package ocr

import (
	"context"
	"slices"
)

// Token is one recognized word and where it sits in the image.
type Token struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Result of an OCR pass. Confidence is the mean word confidence in [0,1].
type Result struct {
	Provider   string  `json:"provider"`
	FullText   string  `json:"full_text"`
	Tokens     []Token `json:"tokens"`
	Numbers    []int   `json:"numbers"`
	Confidence float64 `json:"confidence"`
}

// Scanner extracts text and ticket numbers from an encoded image.
type Scanner interface {
	Scan(ctx context.Context, img []byte, mimeType string) (*Result, error)
}

// addToken records tok and the ticket numbers it contains.
func (r *Result) addToken(tok Token) {
	r.Tokens = append(r.Tokens, tok)
	r.Numbers = append(r.Numbers, SplitNumbers(tok.Text)...)
}

func (r *Result) finish() {
	if len(r.Tokens) > 0 {
		var sum float64
		for _, t := range r.Tokens {
			sum += t.Confidence
		}
		r.Confidence = sum / float64(len(r.Tokens))
	}
	slices.Sort(r.Numbers)
}
