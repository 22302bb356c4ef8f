package ticket

// Columns is the number of decade columns on a printed ticket.
const Columns = 9

// Cell is one position of a grid row. Empty cells have Filled=false.
type Cell struct {
	Number int  `json:"number,omitempty"`
	Filled bool `json:"filled"`
}

// Grid is the positional layout of a row: one cell per decade column.
type Grid [Columns]Cell

// Column returns the decade column of n: floor(n/10), with 90 folded
// into the last column. The result may fall outside [0, Columns) for
// out-of-range input.
func Column(n int) int {
	if n == 90 {
		return Columns - 1
	}
	c := n / 10
	if n < 0 && n%10 != 0 {
		c-- // floor, not truncation
	}
	return c
}

// BuildGrid lays a row out on the 9 decade columns. Numbers sharing a
// column overwrite each other in iteration order (last write wins).
// Numbers whose column is off the grid are skipped, never rejected.
func BuildGrid(row Row) Grid {
	var g Grid
	for _, n := range row {
		c := Column(n)
		if c < 0 || c >= Columns {
			continue
		}
		g[c] = Cell{Number: n, Filled: true}
	}
	return g
}
