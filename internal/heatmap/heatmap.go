// Package heatmap stores per-player position heatmaps as small saturating
// grids that serialize to run-length encoded strings.
package heatmap

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/FiskLee/stattracker/internal/rle"
)

// ErrDimension is returned when a decoded grid does not match the requested
// width and height.
var ErrDimension = errors.New("heatmap: dimension mismatch")

// Grid is a W x H matrix of hit counts that saturate at 255.
type Grid struct {
	w, h  int
	cells []uint8
}

// New returns an empty grid. Non-positive dimensions are clamped to 1.
func New(w, h int) *Grid {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return &Grid{w: w, h: h, cells: make([]uint8, w*h)}
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.w }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.h }

// Mark increments the cell at (x, y). Out-of-range coordinates are ignored.
func (g *Grid) Mark(x, y int) {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return
	}
	if i := y*g.w + x; g.cells[i] < 255 {
		g.cells[i]++
	}
}

// At returns the count at (x, y), or 0 when out of range.
func (g *Grid) At(x, y int) int {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return 0
	}
	return int(g.cells[y*g.w+x])
}

// MarkWorld maps a world position inside [0,worldW) x [0,worldH) onto the
// grid and marks it.
func (g *Grid) MarkWorld(px, py, worldW, worldH float64) {
	if worldW <= 0 || worldH <= 0 {
		return
	}
	g.Mark(int(px/worldW*float64(g.w)), int(py/worldH*float64(g.h)))
}

// Encode renders the grid row-major as an RLE string. Each cell becomes one
// code point equal to its count.
func (g *Grid) Encode() string {
	buf := make([]byte, 0, len(g.cells))
	for _, c := range g.cells {
		buf = utf8.AppendRune(buf, rune(c))
	}
	return rle.EncodeString(string(buf))
}

// Decode parses a string produced by Encode into a w x h grid. An empty
// string decodes to an empty grid.
func Decode(w, h int, s string) (*Grid, error) {
	g := New(w, h)
	if s == "" {
		return g, nil
	}
	text, err := rle.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("heatmap: %w", err)
	}
	i := 0
	for _, r := range text {
		if i >= len(g.cells) || r > 255 {
			return nil, ErrDimension
		}
		g.cells[i] = uint8(r)
		i++
	}
	if i != len(g.cells) {
		return nil, ErrDimension
	}
	return g, nil
}
