package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkshot/ppm"
)

func writeFrame(t *testing.T, path string, shade byte) {
	t.Helper()
	m := ppm.New(8, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			m.SetRGB(x, y, shade+byte(x), shade, byte(y*16))
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, ppm.Encode(f, m))
	require.NoError(t, f.Close())
}

func TestRun(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	for _, n := range []int{60, 120} {
		writeFrame(t, filepath.Join(dir, "base_frame"+strconv.Itoa(n)+".ppm"), 40)
		writeFrame(t, filepath.Join(dir, "fp16_frame"+strconv.Itoa(n)+".ppm"), 40)
	}
	writeFrame(t, filepath.Join(dir, "base_frame180.ppm"), 40)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fp16_frame180.ppm"), []byte("P6\n4000000000 4000000000\n255\n"), 0o644))
	out := filepath.Join(dir, "results.csv")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-r", "base", "-c", "fp16", "-d", dir, "-o", out, "--diff"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	text := stdout.String()
	assert.Contains(t, text, "Found 3 matching frame pairs")
	assert.Contains(t, stderr.String(), "Warning: Frame 180 skipped")
	assert.Contains(t, text, "Frame    60: MSE=    0.0000  PSNR=     inf dB")
	assert.Contains(t, text, "AVERAGE:       MSE=    0.0000  PSNR=  100.00 dB")
	assert.Contains(t, text, "PSNR 100.0 dB: Excellent - virtually indistinguishable")
	assert.Contains(t, text, "Results saved to: "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "frame,mse,psnr,ssim\n60,0,inf,")
	assert.FileExists(t, filepath.Join(dir, "diff", "diff_frame120.png"))
}

func TestRunErrors(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{"missing prefixes", []string{"-d", dir}, 2, "--reference and --compare are required"},
		{"missing directory", []string{"-r", "a", "-c", "b", "-d", filepath.Join(dir, "nope")}, 1, "Directory not found"},
		{"no pairs", []string{"-r", "a", "-c", "b", "-d", dir}, 1, "no matching frames found"},
		{"bad flag", []string{"--bogus"}, 2, "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.code, run(tt.args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), tt.msg)
		})
	}
}
