package pri

import (
	"bufio"
	"image"
	"image/color"
	"io"
)

// Options adjust encoder output. The zero value matches the original
// converter: isolated pixels batch into unspans.
type Options struct {
	// DisableLiterals emits every isolated pixel as a run of one
	// instead of batching unspans, costing two bytes per noisy pixel.
	// The output is still a valid stream; decoders need no matching
	// setting.
	DisableLiterals bool
}

type encoder struct {
	w    *bufio.Writer
	opts Options

	// Pending isolated pixels, flushed as one unspan.
	lit  [MaxLiteralLength]byte
	nlit int
}

func (e *encoder) flushLiterals() error {
	switch e.nlit {
	case 0:
		return nil
	case 1:
		// A lone pixel costs the same either way; a run of one keeps
		// the escape record out of simple streams.
		e.nlit = 0
		_, err := e.w.Write([]byte{1, e.lit[0]})
		return err
	default:
		n := e.nlit
		e.nlit = 0
		if _, err := e.w.Write([]byte{0, byte(n)}); err != nil {
			return err
		}
		_, err := e.w.Write(e.lit[:n])
		return err
	}
}

// flushRun emits the current run. Singletons accumulate as pending
// literals when that policy is on; pending literals always flush before
// a true run so the two kinds never interleave within a group.
func (e *encoder) flushRun(pixel uint8, count int) error {
	switch {
	case count == 0:
		return e.flushLiterals()
	case count == 1 && !e.opts.DisableLiterals:
		e.lit[e.nlit] = pixel
		e.nlit++
		if e.nlit == MaxLiteralLength {
			return e.flushLiterals()
		}
		return nil
	default:
		if err := e.flushLiterals(); err != nil {
			return err
		}
		_, err := e.w.Write([]byte{byte(count), pixel})
		return err
	}
}

// encodeRow greedily spans one row of pixel indices. colors is the
// number of valid palette entries; any index at or beyond it has no
// color and fails the encode.
func (e *encoder) encodeRow(row []uint8, colors int) error {
	runPixel, runLen := -1, 0
	for _, px := range row {
		if int(px) == runPixel {
			runLen++
			if runLen == MaxRunLength {
				if err := e.flushRun(px, runLen); err != nil {
					return err
				}
				runPixel, runLen = -1, 0
			}
			continue
		}
		if int(px) >= colors {
			return ErrInvalidPixelValue
		}
		if runLen > 0 {
			if err := e.flushRun(uint8(runPixel), runLen); err != nil {
				return err
			}
		}
		runPixel, runLen = int(px), 1
	}
	if runLen > 0 {
		if err := e.flushRun(uint8(runPixel), runLen); err != nil {
			return err
		}
	}
	return e.flushLiterals()
}

// WritePalette writes the fixed 768 byte palette block.
func WritePalette(w io.Writer, p *Palette) error {
	var buf [PaletteSize]byte
	for i, c := range p {
		buf[i*3+0] = c.R
		buf[i*3+1] = c.G
		buf[i*3+2] = c.B
	}
	_, err := w.Write(buf[:])
	return err
}

// palettize derives an exact palette for images that did not arrive
// with one. Colors index in order of first appearance so the result is
// deterministic.
func palettize(m image.Image) (*image.Paletted, error) {
	b := m.Bounds()

	if cp, ok := m.ColorModel().(color.Palette); ok && len(cp) <= PaletteEntries {
		pm := image.NewPaletted(b, cp)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				pm.Set(x, y, m.At(x, y))
			}
		}
		return pm, nil
	}

	pm := image.NewPaletted(b, make(color.Palette, 0, PaletteEntries))
	index := make(map[color.Color]uint8)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := m.At(x, y)
			i, ok := index[c]
			if !ok {
				if len(pm.Palette) == PaletteEntries {
					return nil, ErrPaletteOverflow
				}
				i = uint8(len(pm.Palette))
				pm.Palette = append(pm.Palette, c)
				index[c] = i
			}
			pm.SetColorIndex(x, y, i)
		}
	}
	return pm, nil
}

// Encode writes the Image m to w as a palette block followed by the
// span encoding of each row. Encoding is lossless: m must already be
// palettized, or use few enough distinct colors that an exact palette
// can be derived. Reducing richer images to 256 colors is a conversion
// step, not the codec's job, and fails here with ErrPaletteOverflow.
func Encode(w io.Writer, m image.Image, o *Options) error {
	var opts Options
	if o != nil {
		opts = *o
	}

	pm, _ := m.(*image.Paletted)
	if pm == nil {
		var err error
		if pm, err = palettize(m); err != nil {
			return err
		}
	}

	pal, err := NewPalette(pm.Palette)
	if err != nil {
		return err
	}

	// Adjust image so that top-left corner is at (0, 0)
	if pm.Rect.Min != (image.Point{}) {
		dup := *pm
		dup.Rect = dup.Rect.Sub(dup.Rect.Min)
		pm = &dup
	}

	e := encoder{w: bufio.NewWriter(w), opts: opts}

	if err := WritePalette(e.w, pal); err != nil {
		return err
	}

	width, colors := pm.Rect.Dx(), len(pm.Palette)
	for y := 0; y < pm.Rect.Dy(); y++ {
		row := pm.Pix[y*pm.Stride : y*pm.Stride+width]
		if err := e.encodeRow(row, colors); err != nil {
			return err
		}
	}

	return e.w.Flush()
}
