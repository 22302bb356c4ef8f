package tui

import (
	"io"

	"github.com/bodul/loto/scan"
)

// Bell returns win effects that ring the terminal bell on w.
func Bell(w io.Writer) scan.EffectsFunc {
	return func() (scan.Effects, error) {
		return bell{w: w}, nil
	}
}

type bell struct {
	w io.Writer
}

func (b bell) Celebrate(scan.State) {
	io.WriteString(b.w, "\a")
}

func (b bell) Close() error { return nil }
