package main

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"go.uber.org/zap"
)

func TestThinkingConfig(t *testing.T) {
	if thinkingConfig("") != nil || thinkingConfig("bogus") != nil {
		t.Fatal("unknown levels should keep the model default")
	}
	off := thinkingConfig("off")
	if off == nil || off.ThinkingBudget == nil || *off.ThinkingBudget != 0 {
		t.Fatalf("off should set a zero budget: %+v", off)
	}
	if c := thinkingConfig("HIGH"); c == nil || c.ThinkingLevel == "" {
		t.Fatalf("high should set a level: %+v", c)
	}
}

func TestGeminiAnalyzer(t *testing.T) {
	key := os.Getenv("GOOGLE_API_KEY")
	project := os.Getenv("GCP_PROJECT_ID")
	if key == "" && project == "" {
		t.Skip("GOOGLE_API_KEY or GCP_PROJECT_ID not set, skipping integration test")
	}
	imageData, err := os.ReadFile("testdata/ticket.jpg")
	if err != nil {
		t.Skipf("no sample ticket: %v", err)
	}

	ctx := context.Background()
	cfg := Default().AI.Gemini
	cfg.APIKey, cfg.Project = key, project
	g, err := NewGeminiAnalyzer(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("create analyzer: %v", err)
	}

	r, err := g.Analyze(ctx, imageData, "image/jpeg", nil)
	if err != nil {
		t.Fatalf("analyze image: %v", err)
	}
	out, _ := json.MarshalIndent(r, "", "  ")
	t.Logf("Reading:\n%s", out)
}
