package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultRegion = "europe-west1"
	defaultModel  = "gemini-3-flash-preview"
)

// GeminiAnalyzer reads tickets with a Gemini model.
type GeminiAnalyzer struct {
	client   *genai.Client
	model    string
	thinking string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGeminiAnalyzer creates an analyzer. An API key selects the Gemini
// API; otherwise Project selects Vertex AI with Application Default
// Credentials (set GOOGLE_APPLICATION_CREDENTIALS to a service account
// key file).
func NewGeminiAnalyzer(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiAnalyzer, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case cfg.Project != "":
		region := cfg.Region
		if region == "" {
			region = defaultRegion
		}
		cc.Project = cfg.Project
		cc.Location = region
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, errors.New("gemini needs GOOGLE_API_KEY or GCP_PROJECT_ID")
	}
	return newGeminiAnalyzer(ctx, cc, cfg, logger)
}

func newGeminiAnalyzer(ctx context.Context, cc *genai.ClientConfig, cfg GeminiConfig, logger *zap.Logger) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &GeminiAnalyzer{
		client:   client,
		model:    model,
		thinking: cfg.Thinking,
		timeout:  cfg.Timeout,
		logger:   logger,
	}, nil
}

func (g *GeminiAnalyzer) Name() string { return "gemini" }
