// Package ppm reads and writes binary portable pixmaps (P6) with 8-bit samples.
package ppm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strconv"
)

// Magic is the header token of a binary pixmap.
const Magic = "P6"

// MaxValue is the only sample range written.
const MaxValue = 255

// MaxPixels bounds the raster Decode will allocate, 16384x16384.
const MaxPixels = 1 << 28

// ErrFormat is returned for input that is not an 8-bit P6 pixmap.
var ErrFormat = errors.New("ppm: invalid format")

// Image is a packed RGB image, 3 bytes per pixel, rows top to bottom.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// New allocates a black image.
func New(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*3),
	}
}

// PixOffset is the index of the first byte of pixel (x, y).
func (m *Image) PixOffset(x, y int) int {
	return (y*m.Width + x) * 3
}

// RGB returns the samples of pixel (x, y).
func (m *Image) RGB(x, y int) (r, g, b uint8) {
	i := m.PixOffset(x, y)
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

// SetRGB sets the samples of pixel (x, y).
func (m *Image) SetRGB(x, y int, r, g, b uint8) {
	i := m.PixOffset(x, y)
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = r, g, b
}

func (m *Image) ColorModel() color.Model { return color.RGBAModel }

func (m *Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

func (m *Image) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(m.Bounds())) {
		return color.RGBA{}
	}
	r, g, b := m.RGB(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// WriteHeader writes the P6 header for a width x height image. Exactly
// width*height*3 sample bytes must follow.
func WriteHeader(w io.Writer, width, height int) error {
	_, err := fmt.Fprintf(w, "%s\n%d\n%d\n%d\n", Magic, width, height, MaxValue)
	return err
}

// Encode writes m as a P6 pixmap.
func Encode(w io.Writer, m *Image) error {
	if len(m.Pix) != m.Width*m.Height*3 {
		return fmt.Errorf("ppm: %dx%d image holds %d bytes", m.Width, m.Height, len(m.Pix))
	}
	if err := WriteHeader(w, m.Width, m.Height); err != nil {
		return err
	}
	_, err := w.Write(m.Pix)
	return err
}

// Decode reads a P6 pixmap. Comments and any whitespace between header
// fields are accepted; the maximum sample value must be at most 255.
func Decode(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)
	magic, err := token(br)
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrFormat, magic)
	}
	var fields [3]int
	for i := range fields {
		tok, err := token(br)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: header field %q", ErrFormat, tok)
		}
		fields[i] = n
	}
	if fields[2] > MaxValue {
		return nil, fmt.Errorf("%w: 16-bit samples (max value %d)", ErrFormat, fields[2])
	}
	width, height := fields[0], fields[1]
	if width > MaxPixels || height > MaxPixels || int64(width)*int64(height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrFormat, width, height, MaxPixels)
	}
	// the raster grows with the input, so a short file fails before the
	// full size is allocated
	size := int64(width) * int64(height) * 3
	var raster bytes.Buffer
	if _, err := raster.ReadFrom(io.LimitReader(br, size)); err != nil {
		return nil, fmt.Errorf("%w: read raster: %w", ErrFormat, err)
	}
	if int64(raster.Len()) != size {
		return nil, fmt.Errorf("%w: short raster: %d of %d bytes", ErrFormat, raster.Len(), size)
	}
	return &Image{Width: width, Height: height, Pix: raster.Bytes()}, nil
}

// ReadFile decodes the pixmap at path.
func ReadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// token reads one header field and consumes the single whitespace byte
// that terminates it.
func token(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(tok) > 0 {
				return string(tok), nil
			}
			return "", fmt.Errorf("%w: truncated header", ErrFormat)
		}
		switch {
		case c == '#' && len(tok) == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", fmt.Errorf("%w: truncated header", ErrFormat)
			}
		case isSpace(c):
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, c)
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
