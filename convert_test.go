package tuftybadge

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/LionsPhil/tufty-badge/pri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quadrants(w, h int, colors [4]color.RGBA) *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			q := 0
			if x >= w/2 {
				q++
			}
			if y >= h/2 {
				q += 2
			}
			m.SetRGBA(x, y, colors[q])
		}
	}
	return m
}

func TestPalettizePassthrough(t *testing.T) {
	t.Parallel()

	pm := image.NewPaletted(image.Rect(0, 0, pri.DefaultWidth, pri.DefaultHeight), color.Palette{
		color.RGBA{A: 0xff},
		color.RGBA{R: 0xff, A: 0xff},
	})

	got, err := Palettize(pm, ConvertOptions{})
	require.NoError(t, err)

	assert.Same(t, pm, got)
}

func TestPalettizeWrongSize(t *testing.T) {
	t.Parallel()

	pm := image.NewPaletted(image.Rect(0, 0, 16, 16), color.Palette{
		color.RGBA{A: 0xff},
	})

	_, err := Palettize(pm, ConvertOptions{})
	assert.ErrorIs(t, err, ErrImageSize)
}

func TestPalettizeKeepSize(t *testing.T) {
	t.Parallel()

	pm := image.NewPaletted(image.Rect(0, 0, 16, 16), color.Palette{
		color.RGBA{A: 0xff},
	})

	got, err := Palettize(pm, ConvertOptions{KeepSize: true})
	require.NoError(t, err)

	assert.Same(t, pm, got)
}

func TestPalettizeResizes(t *testing.T) {
	t.Parallel()

	m := quadrants(64, 48, [4]color.RGBA{
		{R: 0xff, A: 0xff},
		{G: 0xff, A: 0xff},
		{B: 0xff, A: 0xff},
		{R: 0xff, G: 0xff, A: 0xff},
	})

	pm, err := Palettize(m, ConvertOptions{Width: 32, Height: 24})
	require.NoError(t, err)

	assert.Equal(t, 32, pm.Rect.Dx())
	assert.Equal(t, 24, pm.Rect.Dy())
	assert.LessOrEqual(t, len(pm.Palette), pri.PaletteEntries)
}

func TestPalettizeQuantizes(t *testing.T) {
	t.Parallel()

	colors := [4]color.RGBA{
		{R: 0xff, A: 0xff},
		{G: 0xff, A: 0xff},
		{B: 0xff, A: 0xff},
		{R: 0xff, G: 0xff, A: 0xff},
	}
	m := quadrants(8, 6, colors)

	pm, err := Palettize(m, ConvertOptions{Width: 8, Height: 6, NoDither: true})
	require.NoError(t, err)

	require.Equal(t, m.Bounds(), pm.Bounds())
	assert.LessOrEqual(t, len(pm.Palette), 4)

	// Four flat regions quantize losslessly.
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			want := color.RGBAModel.Convert(m.At(x, y))
			got := color.RGBAModel.Convert(pm.At(x, y))
			require.Equal(t, want, got, "pixel (%d,%d)", x, y)
		}
	}
}

func TestConvertRoundTrip(t *testing.T) {
	t.Parallel()

	colors := [4]color.RGBA{
		{R: 0xff, A: 0xff},
		{G: 0xff, A: 0xff},
		{B: 0xff, A: 0xff},
		{A: 0xff},
	}
	m := quadrants(8, 6, colors)

	var b bytes.Buffer
	require.NoError(t, Convert(&b, m, ConvertOptions{Width: 8, Height: 6}))

	pm, err := pri.Decode(&b, 8, 6)
	require.NoError(t, err)

	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			want := color.RGBAModel.Convert(m.At(x, y))
			got := color.RGBAModel.Convert(pm.At(x, y))
			require.Equal(t, want, got, "pixel (%d,%d)", x, y)
		}
	}
}
