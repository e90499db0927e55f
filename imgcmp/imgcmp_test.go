package imgcmp

import (
	"bytes"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkshot/ppm"
)

func filled(w, h int, v uint8) *ppm.Image {
	m := ppm.New(w, h)
	for i := range m.Pix {
		m.Pix[i] = v
	}
	return m
}

func gradient(w, h int) *ppm.Image {
	m := ppm.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetRGB(x, y, uint8(x*16), uint8(y*16), uint8((x+y)*8))
		}
	}
	return m
}

func TestIdenticalImages(t *testing.T) {
	a := gradient(12, 9)
	res, err := Compare(3, a, gradient(12, 9))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Frame)
	assert.Zero(t, res.MSE)
	assert.True(t, math.IsInf(res.PSNR, 1))
	assert.InDelta(t, 1.0, res.SSIM, 1e-12)
}

func TestConstantOffset(t *testing.T) {
	a, b := filled(8, 8, 0), filled(8, 8, 10)

	mse, err := MSE(a, b)
	require.NoError(t, err)
	assert.Equal(t, 100.0, mse)

	psnr, err := PSNR(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 10*math.Log10(255*255/100.0), psnr, 1e-9)

	// flat windows: only the luminance term differs
	s, err := SSIM(a, b)
	require.NoError(t, err)
	c1 := (0.01 * 255) * (0.01 * 255)
	assert.InDelta(t, c1/(100+c1), s, 1e-9)
}

func TestSSIMDropsWithNoise(t *testing.T) {
	a := gradient(16, 16)
	b := gradient(16, 16)
	for i := 0; i < len(b.Pix); i += 7 {
		b.Pix[i] ^= 0x40
	}
	s, err := SSIM(a, b)
	require.NoError(t, err)
	assert.Less(t, s, 1.0)
	assert.Greater(t, s, 0.0)
}

func TestMetricErrors(t *testing.T) {
	_, err := MSE(filled(8, 8, 0), filled(8, 9, 0))
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = SSIM(filled(6, 8, 0), filled(6, 8, 0))
	assert.Error(t, err)

	_, err = Diff(filled(2, 2, 0), filled(3, 2, 0), 10)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestDiffAmplifiesAndClips(t *testing.T) {
	a, b := ppm.New(2, 1), ppm.New(2, 1)
	a.SetRGB(0, 0, 10, 20, 30)
	b.SetRGB(0, 0, 12, 20, 0)
	b.SetRGB(1, 0, 1, 0, 0)

	d, err := Diff(a, b, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte{20, 0, 255, 10, 0, 0}, d.Pix)
}

func TestFrameNumber(t *testing.T) {
	n, ok := FrameNumber("baseline_fp32_frame120.ppm")
	assert.True(t, ok)
	assert.Equal(t, 120, n)

	_, ok = FrameNumber("frame12.png")
	assert.False(t, ok)
	_, ok = FrameNumber("frame.ppm")
	assert.False(t, ok)
}

func writePPM(t *testing.T, dir, name string, m *ppm.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, ppm.Encode(&buf, m))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

func TestMatchFrames(t *testing.T) {
	dir := t.TempDir()
	img := filled(1, 1, 0)
	for _, name := range []string{
		"ref_frame1.ppm", "ref_frame2.ppm", "ref_frame10.ppm",
		"cmp_frame10.ppm", "cmp_frame1.ppm", "cmp_frame3.ppm",
		"ref_notes.ppm", "other_frame1.ppm",
	} {
		writePPM(t, dir, name, img)
	}

	pairs, err := MatchFrames(dir, "ref", "cmp")
	require.NoError(t, err)
	assert.Equal(t, []Pair{
		{Frame: 1, Reference: "ref_frame1.ppm", Compare: "cmp_frame1.ppm"},
		{Frame: 10, Reference: "ref_frame10.ppm", Compare: "cmp_frame10.ppm"},
	}, pairs)
}

func TestCompareDir(t *testing.T) {
	dir := t.TempDir()
	writePPM(t, dir, "a_frame1.ppm", gradient(8, 8))
	writePPM(t, dir, "b_frame1.ppm", gradient(8, 8))
	writePPM(t, dir, "a_frame2.ppm", filled(8, 8, 0))
	writePPM(t, dir, "b_frame2.ppm", filled(8, 8, 10))
	writePPM(t, dir, "a_frame3.ppm", filled(8, 8, 0))
	writePPM(t, dir, "b_frame3.ppm", filled(9, 8, 0))
	writePPM(t, dir, "a_frame4.ppm", filled(8, 8, 0))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_frame4.ppm"), []byte("P6\n100000 100000\n255\n"), 0o644))

	diffDir := filepath.Join(dir, "diff")
	rep, err := CompareDir(Options{Dir: dir, Reference: "a_", Compare: "b_", DiffDir: diffDir, Amplify: 10})
	require.NoError(t, err)

	assert.Len(t, rep.Pairs, 4)
	require.Len(t, rep.Results, 2)
	require.Len(t, rep.Skipped, 2)
	assert.Equal(t, 3, rep.Skipped[0].Frame)
	assert.ErrorIs(t, rep.Skipped[0].Err, ErrSizeMismatch)
	assert.Equal(t, 4, rep.Skipped[1].Frame)
	assert.ErrorIs(t, rep.Skipped[1].Err, ppm.ErrFormat)
	assert.NoFileExists(t, filepath.Join(diffDir, "diff_frame4.png"))

	avg, ok := rep.Average()
	require.True(t, ok)
	assert.InDelta(t, 50.0, avg.MSE, 1e-9)
	assert.InDelta(t, (InfPSNRScore+rep.Results[1].PSNR)/2, avg.PSNR, 1e-9)

	f, err := os.Open(filepath.Join(diffDir, "diff_frame2.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(100*0x101), r)

	_, err = CompareDir(Options{Dir: dir, Reference: "x_", Compare: "y_"})
	assert.ErrorIs(t, err, ErrNoPairs)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Result{
		{Frame: 1, MSE: 0, PSNR: math.Inf(1), SSIM: 1},
		{Frame: 2, MSE: 2, PSNR: 40, SSIM: 0.5},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"frame,mse,psnr,ssim",
		"1,0,inf,1",
		"2,2,40,0.5",
		"AVERAGE,1,70,0.75",
	}, lines)

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "frame,mse,psnr,ssim\n", buf.String())
}

func TestAssess(t *testing.T) {
	tests := []struct {
		psnr, ssim float64
		grade      Grade
	}{
		{45, 0.995, Excellent},
		{35, 0.96, Good},
		{25, 0.92, Fair},
		{10, 0.5, Poor},
	}
	for _, tt := range tests {
		g, msg := AssessPSNR(tt.psnr)
		assert.Equal(t, tt.grade, g, msg)
		g, msg = AssessSSIM(tt.ssim)
		assert.Equal(t, tt.grade, g, msg)
	}

	_, msg := AssessPSNR(41.27)
	assert.Equal(t, "PSNR 41.3 dB: Excellent - virtually indistinguishable", msg)
	assert.Equal(t, "excellent", Excellent.String())
}
