// Package imgcmp scores captured frames against a reference run: mean squared
// error, peak signal-to-noise ratio and structural similarity.
package imgcmp

import (
	"errors"
	"fmt"
	"math"

	"github.com/andewx/vkshot/ppm"
)

// ErrSizeMismatch is returned when two images differ in dimensions.
var ErrSizeMismatch = errors.New("imgcmp: image dimensions differ")

// DataRange is the dynamic range of an 8-bit sample.
const DataRange = 255.0

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
)

func sameSize(a, b *ppm.Image) error {
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}

// MSE is the mean squared difference over every sample of both images.
func MSE(a, b *ppm.Image) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	if len(a.Pix) == 0 {
		return 0, nil
	}
	var sum float64
	for i := range a.Pix {
		d := float64(a.Pix[i]) - float64(b.Pix[i])
		sum += d * d
	}
	return sum / float64(len(a.Pix)), nil
}

// PSNR is the peak signal-to-noise ratio in dB, +Inf for identical images.
func PSNR(a, b *ppm.Image) (float64, error) {
	mse, err := MSE(a, b)
	if err != nil {
		return 0, err
	}
	return psnrFromMSE(mse), nil
}

func psnrFromMSE(mse float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(DataRange*DataRange/mse)
}

// SSIM is the mean structural similarity of the three channels. Each channel
// is scored with a 7x7 uniform window using the unbiased sample variance,
// averaged over every window that lies fully inside the image.
func SSIM(a, b *ppm.Image) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	if a.Width < ssimWindow || a.Height < ssimWindow {
		return 0, fmt.Errorf("imgcmp: ssim needs at least %dx%d pixels, got %dx%d",
			ssimWindow, ssimWindow, a.Width, a.Height)
	}
	var total float64
	for c := 0; c < 3; c++ {
		total += channelSSIM(a, b, c)
	}
	return total / 3, nil
}

// channelSSIM works on summed-area tables of x, y, x², y² and xy so each
// window costs a constant number of lookups.
func channelSSIM(a, b *ppm.Image, channel int) float64 {
	w, h := a.Width, a.Height
	stride := w + 1
	size := stride * (h + 1)
	sx, sy := make([]float64, size), make([]float64, size)
	sxx, syy, sxy := make([]float64, size), make([]float64, size), make([]float64, size)

	for y := 0; y < h; y++ {
		var rx, ry, rxx, ryy, rxy float64
		for x := 0; x < w; x++ {
			i := a.PixOffset(x, y) + channel
			vx, vy := float64(a.Pix[i]), float64(b.Pix[i])
			rx += vx
			ry += vy
			rxx += vx * vx
			ryy += vy * vy
			rxy += vx * vy

			o := (y+1)*stride + x + 1
			up := y*stride + x + 1
			sx[o] = sx[up] + rx
			sy[o] = sy[up] + ry
			sxx[o] = sxx[up] + rxx
			syy[o] = syy[up] + ryy
			sxy[o] = sxy[up] + rxy
		}
	}

	box := func(t []float64, x0, y0 int) float64 {
		x1, y1 := x0+ssimWindow, y0+ssimWindow
		return t[y1*stride+x1] - t[y0*stride+x1] - t[y1*stride+x0] + t[y0*stride+x0]
	}

	const n = ssimWindow * ssimWindow
	const covNorm = float64(n) / float64(n-1)
	c1 := (ssimK1 * DataRange) * (ssimK1 * DataRange)
	c2 := (ssimK2 * DataRange) * (ssimK2 * DataRange)

	var sum float64
	var count int
	for y0 := 0; y0+ssimWindow <= h; y0++ {
		for x0 := 0; x0+ssimWindow <= w; x0++ {
			ux := box(sx, x0, y0) / n
			uy := box(sy, x0, y0) / n
			vx := covNorm * (box(sxx, x0, y0)/n - ux*ux)
			vy := covNorm * (box(syy, x0, y0)/n - uy*uy)
			vxy := covNorm * (box(sxy, x0, y0)/n - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			sum += num / den
			count++
		}
	}
	return sum / float64(count)
}

// Diff returns |a-b| per sample, multiplied by amplify and clipped to 255.
func Diff(a, b *ppm.Image, amplify float64) (*ppm.Image, error) {
	if err := sameSize(a, b); err != nil {
		return nil, err
	}
	out := ppm.New(a.Width, a.Height)
	for i := range a.Pix {
		d := math.Abs(float64(a.Pix[i])-float64(b.Pix[i])) * amplify
		out.Pix[i] = uint8(math.Max(0, math.Min(d, DataRange)))
	}
	return out, nil
}
