package ticket

import "testing"

func TestBuildGridDecadeColumns(t *testing.T) {
	g := BuildGrid(Row{5, 13, 27, 44, 90})

	want := map[int]int{0: 5, 1: 13, 2: 27, 4: 44, 8: 90}
	for col, cell := range g {
		n, ok := want[col]
		if !ok {
			if cell.Filled {
				t.Errorf("cell %d: expected empty, got %d", col, cell.Number)
			}
			continue
		}
		if !cell.Filled || cell.Number != n {
			t.Errorf("cell %d: expected %d, got %+v", col, n, cell)
		}
	}
}

func TestBuildGridEmptyRow(t *testing.T) {
	g := BuildGrid(nil)
	for col, cell := range g {
		if cell.Filled {
			t.Fatalf("cell %d: expected empty, got %d", col, cell.Number)
		}
	}
}

func TestBuildGridLastWriteWins(t *testing.T) {
	g := BuildGrid(Row{31, 35, 38})
	if g[3].Number != 38 {
		t.Fatalf("expected later number 38 in column 3, got %d", g[3].Number)
	}
}

func TestBuildGridSkipsOffGridNumbers(t *testing.T) {
	// Must not panic; 0 lands in column 0, the rest fall off the grid.
	g := BuildGrid(Row{-5, 0, 91, 123})

	if !g[0].Filled || g[0].Number != 0 {
		t.Fatalf("expected 0 in column 0, got %+v", g[0])
	}
	for col := 1; col < Columns; col++ {
		if g[col].Filled {
			t.Errorf("cell %d: expected empty, got %d", col, g[col].Number)
		}
	}
}

func TestColumn(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 0}, {9, 0}, {10, 1}, {19, 1}, {80, 8}, {89, 8}, {90, 8}, {91, 9}, {-1, -1}, {-10, -1},
	}
	for _, tt := range tests {
		if got := Column(tt.n); got != tt.want {
			t.Errorf("Column(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
