package tuftybadge

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/LionsPhil/tufty-badge/pri"
	"github.com/disintegration/gift"
	"github.com/ericpauley/go-quantize/quantize"
)

// ErrImageSize means palettized artwork does not match the target
// dimensions. Resampling indexed pixels would wreck the palette, so it
// is never done silently.
var ErrImageSize = errors.New("tuftybadge: palettized image is wrong size")

// ConvertOptions control how source artwork becomes a badge image. The
// zero value targets the Tufty display, dithered, with unspans on.
type ConvertOptions struct {
	// Width and Height are the output dimensions; zero means the
	// 320x240 badge display.
	Width, Height int

	// KeepSize encodes at the source dimensions instead of resizing,
	// for artwork aimed at something other than the badge display.
	KeepSize bool

	// NoDither maps each pixel to its nearest palette color instead
	// of error-diffusing. Flat shaded sources come out cleaner.
	NoDither bool

	// DisableLiterals is passed through to the encoder.
	DisableLiterals bool
}

func (o ConvertOptions) target() image.Rectangle {
	w, h := o.Width, o.Height
	if w == 0 {
		w = pri.DefaultWidth
	}
	if h == 0 {
		h = pri.DefaultHeight
	}
	return image.Rect(0, 0, w, h)
}

// Palettize prepares arbitrary artwork for encoding: resize to the
// target, median cut down to 256 colors, dither. Sources that arrive
// palettized are deliberate pixel art and pass through untouched, but
// a size mismatch on one is an error rather than a resample.
func Palettize(m image.Image, o ConvertOptions) (*image.Paletted, error) {
	target := o.target()

	if pm, ok := m.(*image.Paletted); ok && len(pm.Palette) <= pri.PaletteEntries {
		if !o.KeepSize && (pm.Rect.Dx() != target.Dx() || pm.Rect.Dy() != target.Dy()) {
			return nil, ErrImageSize
		}
		return pm, nil
	}

	b := m.Bounds()
	if !o.KeepSize && (b.Dx() != target.Dx() || b.Dy() != target.Dy()) {
		g := gift.New(gift.Resize(target.Dx(), target.Dy(), gift.LanczosResampling))
		resized := image.NewRGBA(g.Bounds(b))
		g.Draw(resized, m)
		m, b = resized, resized.Bounds()
	}

	q := quantize.MedianCutQuantizer{}
	pm := image.NewPaletted(b, q.Quantize(make(color.Palette, 0, pri.PaletteEntries), m))

	if o.NoDither {
		draw.Draw(pm, b, m, b.Min, draw.Src)
	} else {
		draw.FloydSteinberg.Draw(pm, b, m, b.Min)
	}

	return pm, nil
}

// Convert palettizes m and writes it to w as a stream.
func Convert(w io.Writer, m image.Image, o ConvertOptions) error {
	pm, err := Palettize(m, o)
	if err != nil {
		return err
	}
	return pri.Encode(w, pm, &pri.Options{DisableLiterals: o.DisableLiterals})
}
