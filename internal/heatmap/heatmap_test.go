package heatmap_test

import (
	"strings"
	"testing"

	"github.com/FiskLee/stattracker/internal/heatmap"
	"github.com/FiskLee/stattracker/internal/rle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_MarkAndAt(t *testing.T) {
	g := heatmap.New(4, 3)
	g.Mark(1, 2)
	g.Mark(1, 2)
	g.Mark(9, 9)
	g.Mark(-1, 0)
	assert.Equal(t, 2, g.At(1, 2))
	assert.Equal(t, 0, g.At(0, 0))
	assert.Equal(t, 0, g.At(9, 9))
}

func TestGrid_Saturates(t *testing.T) {
	g := heatmap.New(1, 1)
	for i := 0; i < 400; i++ {
		g.Mark(0, 0)
	}
	assert.Equal(t, 255, g.At(0, 0))
}

func TestGrid_MarkWorld(t *testing.T) {
	g := heatmap.New(10, 10)
	g.MarkWorld(55, 12, 100, 100)
	assert.Equal(t, 1, g.At(5, 1))
	g.MarkWorld(1, 1, 0, 100)
	assert.Equal(t, 0, g.At(0, 0))
}

func TestGrid_EncodeDecode(t *testing.T) {
	g := heatmap.New(32, 32)
	g.Mark(3, 4)
	g.Mark(31, 31)
	for i := 0; i < 300; i++ {
		g.Mark(10, 10)
	}

	s := g.Encode()
	assert.True(t, strings.HasPrefix(s, rle.Marker))
	assert.Less(t, len(s), 32*32)

	back, err := heatmap.Decode(32, 32, s)
	require.NoError(t, err)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			assert.Equal(t, g.At(x, y), back.At(x, y))
		}
	}
}

func TestDecode_Empty(t *testing.T) {
	g, err := heatmap.Decode(2, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Width())
	assert.Equal(t, 2, g.Height())
}

func TestDecode_DimensionMismatch(t *testing.T) {
	s := heatmap.New(4, 4).Encode()
	_, err := heatmap.Decode(8, 8, s)
	assert.ErrorIs(t, err, heatmap.ErrDimension)
	_, err = heatmap.Decode(2, 2, s)
	assert.ErrorIs(t, err, heatmap.ErrDimension)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := heatmap.Decode(2, 2, "RLE1:4")
	assert.ErrorIs(t, err, rle.ErrMalformedStream)
}
