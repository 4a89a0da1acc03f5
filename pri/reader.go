package pri

import (
	"fmt"
	"image"
	"io"
)

// A DecodeError reports a corrupt span stream. Offset is the number of
// span bytes consumed when the corruption was detected, counted from
// the first byte after the palette. Rows already painted stay painted;
// there is no frame buffer to roll back.
type DecodeError struct {
	Offset int64
	Row    int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v (row %d, offset %d)", e.Err, e.Row, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Sink is the surface a decode paints onto. Blit only ever passes
// coordinates inside the width and height it was given, and a SetRun
// never crosses a row boundary. SetRun is the performance lever: sink
// writes dominate decode cost, so implementations should fill runs in
// bulk rather than pixel by pixel.
type Sink interface {
	SetPixel(x, y int, index uint8)
	SetRun(x, y, count int, index uint8)
}

// ReadPalette reads the 768 byte palette block that starts a stream.
func ReadPalette(r io.Reader) (*Palette, error) {
	var buf [PaletteSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrTruncatedStream
		}
		return nil, err
	}
	var p Palette
	for i := range p {
		p[i] = RGB{buf[i*3], buf[i*3+1], buf[i*3+2]}
	}
	return &p, nil
}

type blitter struct {
	r     io.Reader
	dst   Sink
	width int
	off   int64

	// Scratch for one header and one unspan payload. Decode state
	// never grows beyond this regardless of image size.
	hdr [2]byte
	lit [MaxLiteralLength]byte
}

func (d *blitter) readFull(b []byte) (int, error) {
	n, err := io.ReadFull(d.r, b)
	d.off += int64(n)
	return n, err
}

func (d *blitter) corrupt(y int, err error) error {
	return &DecodeError{Offset: d.off, Row: y, Err: err}
}

func (d *blitter) row(y int) error {
	for x := 0; x < d.width; {
		n, err := d.readFull(d.hdr[:])
		if err != nil {
			// A clean end between records mid-row means the spans
			// under-covered the row. Anywhere else the stream just
			// ran dry.
			if err == io.EOF && n == 0 && x > 0 {
				return d.corrupt(y, ErrRowUnderflow)
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return d.corrupt(y, ErrTruncatedStream)
			}
			return err
		}

		count, value := int(d.hdr[0]), d.hdr[1]

		if count == 0 {
			length := int(value)
			if length == 0 {
				// Zero pixel contribution. No encoder emits this;
				// skip it like the badge does.
				continue
			}
			if x+length > d.width {
				return d.corrupt(y, ErrRowOverflow)
			}
			if _, err := d.readFull(d.lit[:length]); err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					return d.corrupt(y, ErrTruncatedStream)
				}
				return err
			}
			for i, b := range d.lit[:length] {
				d.dst.SetPixel(x+i, y, b)
			}
			x += length
			continue
		}

		if x+count > d.width {
			return d.corrupt(y, ErrRowOverflow)
		}
		d.dst.SetRun(x, y, count, value)
		x += count
	}
	return nil
}

// Blit streams span records from r onto dst. The palette must already
// have been consumed from r (see ReadPalette) and its colors programmed
// into whatever dst paints; width and height are the out of band image
// dimensions. Rows paint top to bottom, left to right, reading only as
// far as the current record, so r can be as slow and memory-starved as
// a flash filesystem handle.
//
// Corruption is reported as a *DecodeError wrapping ErrTruncatedStream,
// ErrRowOverflow or ErrRowUnderflow. No pixel is ever painted at or
// past the row width, and rows painted before the error remain.
func Blit(r io.Reader, width, height int, dst Sink) error {
	d := blitter{r: r, dst: dst, width: width}
	for y := 0; y < height; y++ {
		if err := d.row(y); err != nil {
			return err
		}
	}
	return nil
}

// imageSink paints into a paletted image. Runs fill by doubling copy,
// which the runtime turns into a few large moves.
type imageSink struct {
	pm *image.Paletted
}

func (s imageSink) SetPixel(x, y int, index uint8) {
	s.pm.Pix[s.pm.PixOffset(x, y)] = index
}

func (s imageSink) SetRun(x, y, count int, index uint8) {
	i := s.pm.PixOffset(x, y)
	run := s.pm.Pix[i : i+count]
	run[0] = index
	for n := 1; n < count; n *= 2 {
		copy(run[n:], run[:n])
	}
}

// Decode reads a complete stream, palette then spans, and returns the
// image. The dimensions are not encoded in the stream and must come
// from the caller.
func Decode(r io.Reader, width, height int) (*image.Paletted, error) {
	p, err := ReadPalette(r)
	if err != nil {
		return nil, err
	}
	pm := image.NewPaletted(image.Rect(0, 0, width, height), p.ColorPalette())
	if err := Blit(r, width, height, imageSink{pm}); err != nil {
		return nil, err
	}
	return pm, nil
}
