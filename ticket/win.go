package ticket

// RowLength is the number of printed numbers on a complete row.
const RowLength = 5

// RowSatisfied reports whether every number of a complete row is marked.
// Rows that are not exactly RowLength long never win.
func RowSatisfied(row Row, m Marks) bool {
	if len(row) != RowLength {
		return false
	}
	for _, n := range row {
		if !m.Has(n) {
			return false
		}
	}
	return true
}

// AnyRowSatisfied reports whether at least one row of the ticket is
// fully marked.
func AnyRowSatisfied(t *Ticket, m Marks) bool {
	for _, row := range t.Rows() {
		if RowSatisfied(row, m) {
			return true
		}
	}
	return false
}

// WinTriggered is the edge-triggered win check run after a toggle: it is
// true only when the ticket goes from no satisfied row to at least one.
//
// The check looks at the ticket as a whole, not at individual rows: if
// one won row is broken while another stays satisfied, nothing fires.
func WinTriggered(t *Ticket, before, after Marks) bool {
	return AnyRowSatisfied(t, after) && !AnyRowSatisfied(t, before)
}
