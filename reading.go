package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bodul/loto/ocr"
	"github.com/bodul/loto/ticket"
)

// TicketReading is what a model read off a ticket photo.
type TicketReading struct {
	LotteryType string         `json:"lottery_type"`
	Blocks      []ticket.Block `json:"blocks"`
	AllNumbers  []int          `json:"all_numbers"`
	TicketID    string         `json:"ticket_id"`
	Confidence  float64        `json:"confidence"`
	Notes       string         `json:"notes"`
}

// Analyzer reads a ticket image with an AI model. hint carries the OCR
// pass, or nil when OCR is disabled or failed.
type Analyzer interface {
	Analyze(ctx context.Context, img []byte, mimeType string, hint *ocr.Result) (*TicketReading, error)
	Name() string
}

// errInvalidReading marks a model answer that is not the expected JSON.
// Those are not retried.
var errInvalidReading = errors.New("invalid reading")

// analyzeAttempts and retryDelay bound how hard an analyzer retries a
// failed request.
var (
	analyzeAttempts = 2
	retryDelay      = time.Second
)

const ticketFormat = `The ticket may be:
- "LOTO" (Lô Tô): a bingo-style card with 3 blocks; each block has 3 rows of 9 columns. Numbers range from 1 to 90. Each row has 5 numbers and 4 blank cells.
- "VN_6_DIGIT": a traditional lottery ticket with 6-digit numbers.

Respond ONLY with valid JSON in this exact format:
{
  "lottery_type": "LOTO",
  "blocks": [
    {"row1": [13, 22, 41, 61, 86], "row2": [3, 24, 34, 52, 71], "row3": [1, 35, 56, 64, 83]},
    {"row1": [], "row2": [], "row3": []},
    {"row1": [], "row2": [], "row3": []}
  ],
  "all_numbers": [1, 3, 13, 22, 24, 34, 35, 41, 52, 56, 61, 64, 71, 83, 86],
  "ticket_id": "",
  "confidence": 0.0,
  "notes": ""
}

Rules:
- For LOTO: each number is 1-90; extract every number from all 3 blocks, row by row, left to right.
- For VN_6_DIGIT: each number is exactly 6 digits; put them in all_numbers and leave blocks empty.
- all_numbers must contain every unique number on the ticket, sorted ascending.
- confidence is 0.0 to 1.0 based on image clarity.
- ticket_id: any visible ticket or series number.
- If you cannot read the ticket, set confidence to 0.0 and all_numbers to an empty array.
- Do not make up numbers. Only extract what you can clearly see.`

const scanPrompt = "You are a Vietnamese lottery ticket scanner. Analyze the image and extract all numbers visible on the ticket.\n\n" + ticketFormat

const hybridRules = `

Additional rules when OCR data is given:
- Prefer OCR-detected numbers unless the image clearly contradicts them.
- If OCR missed numbers that are clearly visible in the image, add them.
- If OCR read a number wrong (for example 18 where the image shows 13), correct it.
- Set a higher confidence when OCR and your reading agree.
- In notes, mention any corrections you made to the OCR data.`

// maxHintText caps the raw OCR text put into a prompt.
const maxHintText = 500

// promptFor returns the prompt for an image, with the OCR pass folded in
// when there is one.
func promptFor(hint *ocr.Result) string {
	if hint == nil {
		return scanPrompt
	}
	numbers := make([]string, len(hint.Numbers))
	for i, n := range hint.Numbers {
		numbers[i] = strconv.Itoa(n)
	}
	text := hint.FullText
	if r := []rune(text); len(r) > maxHintText {
		text = string(r[:maxHintText])
	}

	var b strings.Builder
	b.WriteString("You are a Vietnamese lottery ticket scanner. You have OCR data to help you. Analyze BOTH the image and the OCR data below.\n\n")
	fmt.Fprintf(&b, "## OCR data (%s)\n", hint.Provider)
	fmt.Fprintf(&b, "Detected numbers: [%s]\n", strings.Join(numbers, ", "))
	fmt.Fprintf(&b, "OCR confidence: %.2f\n", hint.Confidence)
	fmt.Fprintf(&b, "Raw text: %q\n\n", text)
	b.WriteString("## Your task\nUse the OCR numbers as your primary reference. Only override them when the image clearly shows different digits.\n\n")
	b.WriteString(ticketFormat)
	b.WriteString(hybridRules)
	return b.String()
}

// cleanJSON strips the markdown fence models like to wrap JSON in.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseReading decodes a model answer.
func parseReading(raw string) (*TicketReading, error) {
	content := cleanJSON(raw)
	if content == "" {
		return nil, fmt.Errorf("empty model response")
	}
	var r TicketReading
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidReading, err)
	}
	return &r, nil
}

// withRetry runs call up to analyzeAttempts times. Invalid answers and
// cancellation end the loop early.
func withRetry(ctx context.Context, logger *zap.Logger, provider string, call func(context.Context) (*TicketReading, error)) (*TicketReading, error) {
	var lastErr error
	for attempt := range analyzeAttempts {
		if attempt > 0 {
			logger.Warn("retrying model request", zap.String("provider", provider), zap.Int("attempt", attempt), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		r, err := call(ctx)
		if err == nil {
			logReading(logger, provider, r)
			return r, nil
		}
		if errors.Is(err, errInvalidReading) || ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", provider, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%s: %w", provider, lastErr)
}

func logReading(logger *zap.Logger, provider string, r *TicketReading) {
	fields := []zap.Field{
		zap.String("provider", provider),
		zap.String("lottery_type", r.LotteryType),
		zap.String("ticket_id", r.TicketID),
		zap.Float64("confidence", r.Confidence),
		zap.Ints("all_numbers", r.AllNumbers),
		zap.Int("blocks", len(r.Blocks)),
		zap.String("notes", r.Notes),
	}
	for i, b := range r.Blocks {
		fields = append(fields, zap.String(fmt.Sprintf("block%d", i+1),
			fmt.Sprintf("row1=%v row2=%v row3=%v", b.Row1, b.Row2, b.Row3)))
	}
	logger.Info("model reading", fields...)
}
