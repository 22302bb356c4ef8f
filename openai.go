package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/bodul/loto/ocr"
)

const (
	defaultOpenAIModel = "gpt-5.2"
	maxOpenAITokens    = 16000
)

// OpenAIAnalyzer reads tickets with an OpenAI chat model.
type OpenAIAnalyzer struct {
	client          openai.Client
	model           string
	reasoningEffort string
	timeout         time.Duration
	logger          *zap.Logger
}

// NewOpenAIAnalyzer creates an analyzer. Extra options are passed to the
// OpenAI client.
func NewOpenAIAnalyzer(cfg OpenAIConfig, logger *zap.Logger, opts ...option.RequestOption) (*OpenAIAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai needs OPENAI_API_KEY")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &OpenAIAnalyzer{
		client:          openai.NewClient(opts...),
		model:           model,
		reasoningEffort: cfg.ReasoningEffort,
		timeout:         cfg.Timeout,
		logger:          logger,
	}, nil
}

func (a *OpenAIAnalyzer) Name() string { return "openai" }

// Analyze sends the image inline as a data URI.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, img []byte, mimeType string, hint *ocr.Result) (*TicketReading, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img))
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(a.model),
		MaxCompletionTokens: openai.Int(maxOpenAITokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(promptFor(hint)),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI}),
			}),
		},
	}
	if a.reasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(strings.ToLower(a.reasoningEffort))
	}

	return withRetry(ctx, a.logger, a.Name(), func(ctx context.Context) (*TicketReading, error) {
		resp, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("no choices in response")
		}
		msg := resp.Choices[0].Message
		if msg.Refusal != "" {
			a.logger.Warn("model refused the request", zap.String("refusal", msg.Refusal))
			return nil, fmt.Errorf("refused: %s", msg.Refusal)
		}
		return parseReading(msg.Content)
	})
}
