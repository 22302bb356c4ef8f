// Package ticket models a recognized Lô Tô ticket: its blocks and rows,
// the 9-column grid a row is laid out on, the set of numbers the player
// has marked, and row-completion (win) detection.
//
// Everything in this package is pure. Values are safe to recompute on
// every render and are never mutated in place.
package ticket

import "slices"

// Row is one printed line of a block. A playable row holds 5 distinct
// numbers in [1,90], but recognition may be partial so any length is
// accepted.
type Row []int

// Block is one physical ticket sheet: exactly three rows.
type Block struct {
	Row1 Row `json:"row1"`
	Row2 Row `json:"row2"`
	Row3 Row `json:"row3"`
}

// Rows returns the three rows of the block in print order.
func (b Block) Rows() [3]Row {
	return [3]Row{b.Row1, b.Row2, b.Row3}
}

// Ticket is the ordered list of blocks recognized from one image.
type Ticket struct {
	Blocks []Block `json:"blocks"`
}

// FromBlocks builds a Ticket from recognized blocks. Rows are copied so
// later changes to the source slices do not leak into the ticket.
func FromBlocks(blocks []Block) *Ticket {
	t := &Ticket{Blocks: make([]Block, len(blocks))}
	for i, b := range blocks {
		t.Blocks[i] = Block{
			Row1: slices.Clone(b.Row1),
			Row2: slices.Clone(b.Row2),
			Row3: slices.Clone(b.Row3),
		}
	}
	return t
}

// Rows returns every row of every block, block by block.
func (t *Ticket) Rows() []Row {
	if t == nil {
		return nil
	}
	rows := make([]Row, 0, len(t.Blocks)*3)
	for _, b := range t.Blocks {
		r := b.Rows()
		rows = append(rows, r[:]...)
	}
	return rows
}

// Contains reports whether n is printed anywhere on the ticket.
func (t *Ticket) Contains(n int) bool {
	for _, row := range t.Rows() {
		if slices.Contains(row, n) {
			return true
		}
	}
	return false
}

// Numbers returns the distinct numbers printed on the ticket, ascending.
func (t *Ticket) Numbers() []int {
	var all []int
	for _, row := range t.Rows() {
		all = append(all, row...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}
