/*
Package pri implements a Pico RLE Image encoder and decoder.

The format compresses an 8-bit palettized image into a stream that can
be painted straight onto a pixel-addressable display one row at a time,
without a frame buffer on the decoding side. A file is 768 bytes of
palette; 256 colors of three bytes each, red then green then blue,
followed by each row of pixels as a sequence of two byte span records.
A record with a non-zero first byte paints that many copies of the
palette index in the second byte. A zero first byte is an escape
marking an "unspan": the second byte becomes a length and that many raw
palette indices follow verbatim, which beats two bytes per pixel across
noisy regions that never repeat.

There is no magic number, no version field, no checksum, and no
dimensions; producer and consumer agree on the image size out of band.
The Tufty 2040 display is 320 by 240 and badge artwork uses exactly
that, but the codec itself works for any agreed size. Within one row
the span records always contribute exactly the row width in pixels, and
spans never cross rows.
*/
package pri

import (
	"errors"
	"image/color"
)

const (
	// PaletteEntries is the fixed number of colors in every stream.
	// Images with fewer colors pad the remainder with black.
	PaletteEntries = 256

	// PaletteSize is the size of the palette block in bytes.
	PaletteSize = PaletteEntries * 3

	// MaxRunLength is the most pixels one run record can paint. The
	// count field is a single byte with zero reserved as the unspan
	// escape.
	MaxRunLength = 255

	// MaxLiteralLength is the most pixels one unspan can carry, again
	// limited by its single length byte.
	MaxLiteralLength = 255

	// DefaultWidth and DefaultHeight are the Tufty 2040 display
	// dimensions, used by tooling when no explicit size is given.
	DefaultWidth  = 320
	DefaultHeight = 240
)

var (
	// ErrInvalidPixelValue means an encode found a pixel index with no
	// corresponding palette entry.
	ErrInvalidPixelValue = errors.New("pri: pixel index outside palette")

	// ErrPaletteOverflow means the image needs more than 256 colors,
	// which the palette cannot represent.
	ErrPaletteOverflow = errors.New("pri: more than 256 colors")

	// ErrTruncatedStream means the stream ended mid-record or before
	// every row had been decoded.
	ErrTruncatedStream = errors.New("pri: truncated stream")

	// ErrRowOverflow means a span would have painted past the end of
	// its row.
	ErrRowOverflow = errors.New("pri: span overruns row")

	// ErrRowUnderflow means a row's spans ended before covering the
	// full row width.
	ErrRowUnderflow = errors.New("pri: row ends short of width")
)

// RGB is one palette entry. The format carries no alpha channel.
type RGB struct {
	R, G, B uint8
}

// Palette is the fixed color table that prefixes every stream, indexed
// by pixel value. Entries beyond those the image uses are zero.
type Palette [PaletteEntries]RGB

// NewPalette builds a Palette from a stdlib palette, padding short
// palettes with black. More than 256 entries fails with
// ErrPaletteOverflow.
func NewPalette(cp color.Palette) (*Palette, error) {
	if len(cp) > PaletteEntries {
		return nil, ErrPaletteOverflow
	}
	var p Palette
	for i, c := range cp {
		r, g, b, _ := c.RGBA()
		p[i] = RGB{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
	}
	return &p, nil
}

// ColorPalette returns all 256 entries as a stdlib palette, fully
// opaque.
func (p *Palette) ColorPalette() color.Palette {
	cp := make(color.Palette, PaletteEntries)
	for i, c := range p {
		cp[i] = color.RGBA{c.R, c.G, c.B, 0xff}
	}
	return cp
}
