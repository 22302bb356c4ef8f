package main

import (
	"github.com/bodul/loto/recognition"
	"github.com/bodul/loto/scan"
	"github.com/bodul/loto/ticket"
)

// CellView is one grid position as a renderer draws it.
type CellView struct {
	Number int  `json:"number,omitempty"`
	Filled bool `json:"filled"`
	Marked bool `json:"marked,omitempty"`
}

// RowView is a row laid out on the 9 decade columns.
type RowView struct {
	Cells    []CellView `json:"cells"`
	Complete bool       `json:"complete"`
}

// BlockView is one ticket sheet.
type BlockView struct {
	Rows []RowView `json:"rows"`
}

// SessionView is the board state sent to renderers.
type SessionView struct {
	Phase       scan.Phase         `json:"phase"`
	Stage       int                `json:"stage"`
	StageLabel  string             `json:"stage_label,omitempty"`
	Image       *recognition.Image `json:"image,omitempty"`
	Blocks      []BlockView        `json:"blocks"`
	Marks       []int              `json:"marks"`
	Destructive bool               `json:"destructive"`
	ScanID      string             `json:"scan_id,omitempty"`
	TicketID    string             `json:"ticket_id,omitempty"`
	LotteryType string             `json:"lottery_type,omitempty"`
	Confidence  float64            `json:"confidence,omitempty"`
	Notes       string             `json:"notes,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// newSessionView lays out the ticket of st. Grids are rebuilt on every
// call.
func newSessionView(st scan.State) SessionView {
	v := SessionView{
		Phase:       st.Phase,
		Stage:       st.Stage,
		Image:       st.Image,
		Blocks:      []BlockView{},
		Marks:       st.Marks.Sorted(),
		Destructive: st.Destructive(),
		ScanID:      st.ScanID,
		TicketID:    st.TicketID,
		LotteryType: st.LotteryType,
		Confidence:  st.Confidence,
		Notes:       st.Notes,
		Error:       scan.UserMessage(st.Err),
	}
	if st.Phase == scan.PhaseScanning {
		v.StageLabel = scan.StageLabel(st.Stage)
	}
	if v.Marks == nil {
		v.Marks = []int{}
	}
	if st.Ticket == nil {
		return v
	}

	for _, b := range st.Ticket.Blocks {
		var bv BlockView
		for _, row := range b.Rows() {
			bv.Rows = append(bv.Rows, newRowView(row, st.Marks))
		}
		v.Blocks = append(v.Blocks, bv)
	}
	return v
}

func newRowView(row ticket.Row, marks ticket.Marks) RowView {
	grid := ticket.BuildGrid(row)
	rv := RowView{
		Cells:    make([]CellView, len(grid)),
		Complete: ticket.RowSatisfied(row, marks),
	}
	for i, c := range grid {
		rv.Cells[i] = CellView{
			Number: c.Number,
			Filled: c.Filled,
			Marked: c.Filled && marks.Has(c.Number),
		}
	}
	return rv
}
