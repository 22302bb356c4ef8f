// Package scan drives a ticket scan session: image selection, the
// recognition request with its cosmetic progress stages and timeout,
// the scanned ticket and the player's marks.
package scan

import (
	"fmt"
	"time"

	"github.com/bodul/loto/recognition"
	"github.com/bodul/loto/ticket"
)

// Phase is the orchestrator's position in the scan lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseImageSelected
	PhaseScanning
	PhaseCompleted
	PhaseRejected
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:          "idle",
	PhaseImageSelected: "image_selected",
	PhaseScanning:      "scanning",
	PhaseCompleted:     "completed",
	PhaseRejected:      "rejected",
	PhaseFailed:        "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Progress stages shown while scanning. They carry no meaning beyond
// giving the player a sense of progress.
const (
	StageOCR = iota
	StageAI
	StageReconcile
	stageCount
)

var stageLabels = [stageCount]string{
	"Analyzing the image (OCR)...",
	"Verifying with AI...",
	"Reconciling results...",
}

// StageLabel returns the progress text for stage.
func StageLabel(stage int) string {
	if stage < 0 || stage >= stageCount {
		return ""
	}
	return stageLabels[stage]
}

// State is a snapshot of the scan session. Ticket and Marks are
// immutable values and may be shared between snapshots.
type State struct {
	Phase Phase
	Stage int // meaningful while Phase == PhaseScanning

	Image  *recognition.Image
	Ticket *ticket.Ticket // set only in PhaseCompleted
	Marks  ticket.Marks

	// Metadata of the last response.
	ScanID      string
	TicketID    string
	LotteryType string
	Confidence  float64
	Notes       string

	// Err is the failure behind PhaseRejected or PhaseFailed.
	Err error

	ScanStartedAt time.Time
}

// Scanned reports whether a ticket is on the board.
func (s State) Scanned() bool {
	return s.Ticket != nil
}

// Destructive reports whether clearing or rescanning would discard marks.
func (s State) Destructive() bool {
	return !s.Marks.Empty()
}

func (s State) clone() State {
	if s.Image != nil {
		img := *s.Image
		s.Image = &img
	}
	return s
}
