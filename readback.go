package vkshot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/andewx/vkshot/ppm"
)

const stagingTexelBytes = 4

// readback maps the staging image and writes it to req.Path.
func (c *Capturer) readback(req Request, staging *stagingImage, capability Capability) error {
	layout := staging.Layout()
	data, err := staging.Map()
	if err != nil {
		return fmt.Errorf("%w: map staging memory: %w", ErrDevice, err)
	}

	width, height := int(req.Width), int(req.Height)
	offset, pitch := int(layout.Offset), int(layout.RowPitch)
	if pitch < width*stagingTexelBytes {
		return fmt.Errorf("%w: row pitch %d below row size %d", ErrDevice, pitch, width*stagingTexelBytes)
	}
	if need := offset + pitch*(height-1) + width*stagingTexelBytes; need > len(data) {
		return fmt.Errorf("%w: mapped %d bytes, subresource needs %d", ErrDevice, len(data), need)
	}

	return writeFileAtomic(req.Path, func(w *bufio.Writer) error {
		if err := ppm.WriteHeader(w, width, height); err != nil {
			return err
		}
		return encodeRows(w, data[offset:], pitch, width, height, capability.Swizzle)
	})
}

// encodeRows writes height rows of width RGBA texels, pitch bytes apart, as
// packed RGB. The alpha byte is dropped; swizzle exchanges bytes 0 and 2.
func encodeRows(w *bufio.Writer, src []byte, pitch, width, height int, swizzle bool) error {
	out := make([]byte, width*3)
	for y := 0; y < height; y++ {
		row := src[y*pitch : y*pitch+width*stagingTexelBytes]
		for x := 0; x < width; x++ {
			px := row[x*stagingTexelBytes : x*stagingTexelBytes+stagingTexelBytes]
			o := out[x*3 : x*3+3]
			if swizzle {
				o[0], o[1], o[2] = px[2], px[1], px[0]
			} else {
				o[0], o[1], o[2] = px[0], px[1], px[2]
			}
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
	}
	return nil
}

// writeFileAtomic writes through a temporary file next to path and renames
// it into place only once everything has been written, so path never holds
// a truncated image.
func writeFileAtomic(path string, write func(w *bufio.Writer) error) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriterSize(f, 64*1024)
	werr := write(bw)
	if werr == nil {
		werr = bw.Flush()
	}
	if werr == nil {
		werr = f.Chmod(0o644)
	}
	werr = multierr.Append(werr, f.Close())
	if werr != nil {
		return fmt.Errorf("%w: write %s: %w", ErrOutput, path, werr)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return nil
}
