package main

import (
	"fmt"

	"github.com/bodul/loto/recognition"
)

const (
	minConfidence       = 0.6
	confirmedConfidence = 0.85
)

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// validateReading returns the reading's distinct valid numbers in reading
// order and the scan status. A rejected reading comes with the reason.
func validateReading(r *TicketReading) ([]int, string, error) {
	if r.Confidence < minConfidence {
		return nil, recognition.StatusRejected, fmt.Errorf("confidence too low: %.2f", r.Confidence)
	}

	seen := make(map[int]bool, len(r.AllNumbers))
	var valid []int
	for _, n := range r.AllNumbers {
		if r.LotteryType == recognition.LotteryLoto && (n < 1 || n > 90) {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		valid = append(valid, n)
	}
	if len(valid) == 0 {
		return nil, recognition.StatusRejected, fmt.Errorf("no valid numbers found")
	}

	if r.Confidence < confirmedConfidence {
		return valid, recognition.StatusNeedsConfirmation, nil
	}
	return valid, recognition.StatusOK, nil
}
