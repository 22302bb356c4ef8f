package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/bodul/loto/ocr"
	"github.com/bodul/loto/recognition"
)

// Coverage thresholds for trusting the model over OCR. Coverage is the
// share of model numbers OCR also found.
const (
	coverageTrusted   = 0.85
	coverageConfirmed = 0.95
	coveragePartial   = 0.7

	// mergeConfidence is the model confidence above which unconfirmed
	// numbers are kept on low coverage.
	mergeConfidence = 0.7
	minMergedConf   = 0.4
)

// TicketReader turns an uploaded image into a reading.
type TicketReader interface {
	Read(ctx context.Context, img []byte, mimeType string) (*TicketReading, error)
}

// HybridReader runs the OCR pass (when configured) and the model, and
// reconciles their numbers.
type HybridReader struct {
	ocr    ocr.Scanner
	ai     Analyzer
	logger *zap.Logger
}

// NewHybridReader creates a reader. A nil OCR scanner reads with the
// model alone.
func NewHybridReader(scanner ocr.Scanner, ai Analyzer, logger *zap.Logger) *HybridReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridReader{ocr: scanner, ai: ai, logger: logger}
}

func (h *HybridReader) Read(ctx context.Context, img []byte, mimeType string) (*TicketReading, error) {
	if h.ocr == nil {
		return h.ai.Analyze(ctx, img, mimeType, nil)
	}

	hint, err := h.ocr.Scan(ctx, img, mimeType)
	if err != nil {
		h.logger.Warn("OCR failed, reading with the model only", zap.Error(err))
		return h.ai.Analyze(ctx, img, mimeType, nil)
	}
	h.logger.Info("OCR completed",
		zap.String("provider", hint.Provider),
		zap.Ints("numbers", hint.Numbers),
		zap.Float64("confidence", hint.Confidence),
	)

	reading, err := h.ai.Analyze(ctx, img, mimeType, hint)
	if err != nil {
		h.logger.Warn("model failed, using the OCR reading", zap.Error(err))
		return ocrOnlyReading(hint), nil
	}

	final := reconcile(hint, reading)
	h.logger.Info("reconciled reading",
		zap.Ints("numbers", final.AllNumbers),
		zap.Float64("confidence", final.Confidence),
		zap.String("notes", final.Notes),
	)
	return final, nil
}

// ocrOnlyReading builds a blockless reading from the OCR numbers.
func ocrOnlyReading(hint *ocr.Result) *TicketReading {
	return &TicketReading{
		LotteryType: recognition.LotteryLoto,
		AllNumbers:  slices.Sorted(maps.Keys(ticketSet(hint.Numbers))),
		Confidence:  hint.Confidence * 0.9,
		Notes:       "OCR-only scan (model unavailable)",
	}
}

// reconcile adjusts the model reading by how many of its numbers OCR
// confirmed. r is modified in place and returned.
func reconcile(hint *ocr.Result, r *TicketReading) *TicketReading {
	found := ticketSet(hint.Numbers)
	read := make(map[int]struct{}, len(r.AllNumbers))
	for _, n := range r.AllNumbers {
		read[n] = struct{}{}
	}

	agreed := 0
	for n := range read {
		if _, ok := found[n]; ok {
			agreed++
		}
	}
	var coverage float64
	if len(read) > 0 {
		coverage = float64(agreed) / float64(len(read))
	}

	switch {
	case coverage >= coverageTrusted:
		r.Confidence = (r.Confidence + hint.Confidence) / 2
		if coverage >= coverageConfirmed {
			r.Confidence = min(r.Confidence*1.1, 1)
		}
		r.Notes = fmt.Sprintf("hybrid scan: %.0f%% of model numbers confirmed by OCR", coverage*100)
		return r
	case coverage >= coveragePartial:
		r.Confidence = r.Confidence*0.7 + hint.Confidence*0.3
		r.Notes = fmt.Sprintf("hybrid scan: %.0f%% of model numbers confirmed by OCR", coverage*100)
		return r
	}

	var merged []int
	for n := range read {
		_, ok := found[n]
		if ok || r.Confidence >= mergeConfidence {
			merged = append(merged, n)
		}
	}
	slices.Sort(merged)

	r.AllNumbers = merged
	r.Confidence = max((r.Confidence+hint.Confidence)/2*0.8, minMergedConf)
	r.Notes = fmt.Sprintf("hybrid scan: low coverage (%.0f%%), merged results", coverage*100)
	return r
}

// ticketSet returns the distinct numbers of ns that fit on a Lô Tô
// ticket.
func ticketSet(ns []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ns))
	for _, n := range ns {
		if n >= 1 && n <= 90 {
			set[n] = struct{}{}
		}
	}
	return set
}
