package main

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/bodul/loto/ocr"
)

// Analyze sends the image with the scan prompt to Gemini and decodes the
// JSON answer.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, img []byte, mimeType string, hint *ocr.Result) (*TicketReading, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: promptFor(hint)},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: img}},
		},
	}}
	config := g.generationConfig()

	return withRetry(ctx, g.logger, g.Name(), func(ctx context.Context) (*TicketReading, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			return nil, err
		}
		return parseReading(resp.Text())
	})
}

func (g *GeminiAnalyzer) generationConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		TopP:             genai.Ptr(float32(1)),
		ResponseMIMEType: "application/json",
	}
	cfg.ThinkingConfig = thinkingConfig(g.thinking)
	return cfg
}

// thinkingConfig maps a thinking level name to the model setting. Empty
// or unknown names leave the model default.
func thinkingConfig(level string) *genai.ThinkingConfig {
	switch strings.ToLower(level) {
	case "off", "none", "0":
		return &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(0))}
	case "minimal":
		return &genai.ThinkingConfig{ThinkingLevel: genai.ThinkingLevelMinimal}
	case "low":
		return &genai.ThinkingConfig{ThinkingLevel: genai.ThinkingLevelLow}
	case "medium":
		return &genai.ThinkingConfig{ThinkingLevel: genai.ThinkingLevelMedium}
	case "high":
		return &genai.ThinkingConfig{ThinkingLevel: genai.ThinkingLevelHigh}
	}
	return nil
}
