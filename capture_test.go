package vkshot

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andewx/vkshot/internal/fakevk"
	"github.com/andewx/vkshot/memtrack"
	"github.com/andewx/vkshot/ppm"
)

func testColor(x, y int) [4]byte {
	return [4]byte{uint8(x*7 + 1), uint8(y*13 + 2), uint8(x + y + 3), 0x80}
}

type fixture struct {
	dev     *fakevk.Device
	tracker *memtrack.Tracker
	req     Request
}

func newFixture(t *testing.T, format vk.Format, width, height uint32) *fixture {
	t.Helper()
	dev := fakevk.New()
	src := dev.NewSourceImage(format, width, height, testColor)
	return &fixture{
		dev:     dev,
		tracker: memtrack.New(),
		req: Request{
			Device:         dev.Device(),
			PhysicalDevice: dev.PhysicalDevice(),
			Commands:       dev,
			Queue:          dev.Queue(),
			Image:          src,
			Format:         format,
			Width:          width,
			Height:         height,
			Path:           filepath.Join(t.TempDir(), "frame1.ppm"),
		},
	}
}

func (f *fixture) capturer(opts ...Option) *Capturer {
	return New(append([]Option{WithDriver(f.dev), WithTracker(f.tracker)}, opts...)...)
}

// assertClean checks that nothing created by a capture outlives it and that
// the presentable image is back where the presentation engine expects it.
func (f *fixture) assertClean(t *testing.T) {
	t.Helper()
	assert.Zero(t, f.dev.LiveImages(), "staging images left")
	assert.Zero(t, f.dev.LiveMemory(), "allocations left")
	assert.Zero(t, f.dev.MappedMemory(), "mappings left")
	assert.Zero(t, f.dev.PendingCommandBuffers(), "command buffers left")
	assert.Zero(t, f.tracker.Count(), "tracker still holds allocations")
	assert.Empty(t, f.dev.Violations)

	src, ok := f.dev.Image(f.req.Image)
	require.True(t, ok)
	assert.Equal(t, vk.ImageLayoutPresentSrc, src.Layout)
	assert.Equal(t, vk.AccessFlags(vk.AccessMemoryReadBit), src.Access)
}

func expectedPPM(t *testing.T, width, height int, swapRB bool) []byte {
	t.Helper()
	m := ppm.New(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := testColor(x, y)
			if swapRB {
				c[0], c[2] = c[2], c[0]
			}
			m.SetRGB(x, y, c[0], c[1], c[2])
		}
	}
	var buf bytes.Buffer
	require.NoError(t, ppm.Encode(&buf, m))
	return buf.Bytes()
}

func readOutput(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestCaptureBlit(t *testing.T) {
	for _, format := range []vk.Format{vk.FormatR8g8b8a8Unorm, vk.FormatB8g8r8a8Srgb, vk.FormatR16g16b16a16Unorm} {
		t.Run(FormatName(format), func(t *testing.T) {
			f := newFixture(t, format, 5, 3)
			require.NoError(t, f.capturer().Capture(f.req))

			data := readOutput(t, f.req.Path)
			assert.True(t, bytes.HasPrefix(data, []byte("P6\n5\n3\n255\n")))
			assert.Len(t, data, len("P6\n5\n3\n255\n")+5*3*3)
			assert.Equal(t, expectedPPM(t, 5, 3, false), data)
			assert.Equal(t, 1, f.dev.Blits)
			assert.Zero(t, f.dev.Copies)
			f.assertClean(t)
		})
	}
}

func TestCaptureCopy(t *testing.T) {
	tests := []struct {
		name    string
		format  vk.Format
		swizzle FormatSet
		swapRB  bool
	}{
		{"rgba", vk.FormatR8g8b8a8Unorm, DefaultSwizzleFormats(), false},
		{"bgra srgb", vk.FormatB8g8r8a8Srgb, DefaultSwizzleFormats(), false},
		{"bgra unorm", vk.FormatB8g8r8a8Unorm, DefaultSwizzleFormats(), false},
		// outside the configured family a source is taken as RGB-ordered
		{"bgra not in family", vk.FormatB8g8r8a8Unorm, NewFormatSet(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.format, 4, 4)
			f.dev.DisableBlit()
			require.NoError(t, f.capturer(WithSwizzleFormats(tt.swizzle)).Capture(f.req))

			assert.Equal(t, expectedPPM(t, 4, 4, tt.swapRB), readOutput(t, f.req.Path))
			assert.Zero(t, f.dev.Blits)
			assert.Equal(t, 1, f.dev.Copies)
			f.assertClean(t)
		})
	}
}

func TestFallbackMatchesBlit(t *testing.T) {
	for _, format := range []vk.Format{vk.FormatR8g8b8a8Srgb, vk.FormatB8g8r8a8Unorm} {
		t.Run(FormatName(format), func(t *testing.T) {
			f := newFixture(t, format, 9, 7)
			blitPath := f.req.Path
			require.NoError(t, f.capturer().Capture(f.req))

			copyReq := f.req
			copyReq.Path = filepath.Join(filepath.Dir(blitPath), "frame2.ppm")
			require.NoError(t, f.capturer(WithForceCopy(true)).Capture(copyReq))

			assert.Equal(t, readOutput(t, blitPath), readOutput(t, copyReq.Path))
			assert.Equal(t, 1, f.dev.Blits)
			assert.Equal(t, 1, f.dev.Copies)
			f.assertClean(t)
		})
	}
}

func TestRowPitchPadding(t *testing.T) {
	for _, blit := range []bool{true, false} {
		f := newFixture(t, vk.FormatB8g8r8a8Srgb, 3, 4)
		f.dev.RowPadding = 52
		f.dev.SubresourceOffset = 256
		if !blit {
			f.dev.DisableBlit()
		}
		require.NoError(t, f.capturer().Capture(f.req))

		data := readOutput(t, f.req.Path)
		assert.Equal(t, expectedPPM(t, 3, 4, false), data, "blit=%v", blit)
		assert.NotContains(t, string(data[len("P6\n3\n4\n255\n"):]), "\xee", "padding leaked")
		f.assertClean(t)
	}
}

func TestCaptureIdempotent(t *testing.T) {
	f := newFixture(t, vk.FormatB8g8r8a8Unorm, 6, 2)
	c := f.capturer()

	require.NoError(t, c.Capture(f.req))
	first := readOutput(t, f.req.Path)
	peak := f.tracker.Peak()

	require.NoError(t, c.Capture(f.req))
	assert.Equal(t, first, readOutput(t, f.req.Path))
	assert.Equal(t, peak, f.tracker.Peak(), "one staging allocation at a time")
	assert.Equal(t, 2, f.dev.Submissions)
	f.assertClean(t)
}

func TestBarrierSequence(t *testing.T) {
	f := newFixture(t, vk.FormatB8g8r8a8Srgb, 2, 2)
	require.NoError(t, f.capturer().Capture(f.req))
	require.Len(t, f.dev.Barriers, 4)

	type step struct {
		source               bool
		srcAccess, dstAccess vk.AccessFlagBits
		oldLayout, newLayout vk.ImageLayout
	}
	want := []step{
		{false, 0, vk.AccessTransferWriteBit, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal},
		{true, vk.AccessMemoryReadBit, vk.AccessTransferReadBit, vk.ImageLayoutPresentSrc, vk.ImageLayoutTransferSrcOptimal},
		{false, vk.AccessTransferWriteBit, vk.AccessMemoryReadBit, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutGeneral},
		{true, vk.AccessTransferReadBit, vk.AccessMemoryReadBit, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutPresentSrc},
	}
	for i, b := range f.dev.Barriers {
		w := want[i]
		assert.Equal(t, w.source, b.Image == f.req.Image, "barrier %d image", i)
		assert.Equal(t, vk.AccessFlags(w.srcAccess), b.SrcAccessMask, "barrier %d src access", i)
		assert.Equal(t, vk.AccessFlags(w.dstAccess), b.DstAccessMask, "barrier %d dst access", i)
		assert.Equal(t, w.oldLayout, b.OldLayout, "barrier %d old layout", i)
		assert.Equal(t, w.newLayout, b.NewLayout, "barrier %d new layout", i)
		assert.Equal(t, uint32(vk.QueueFamilyIgnored), b.SrcQueueFamilyIndex)
		assert.Equal(t, uint32(vk.QueueFamilyIgnored), b.DstQueueFamilyIndex)
		assert.Equal(t, uint32(1), b.SubresourceRange.LevelCount)
		assert.Equal(t, uint32(1), b.SubresourceRange.LayerCount)
	}
}

func TestCaptureFailures(t *testing.T) {
	tests := []struct {
		point fakevk.FailPoint
		// transferred reports whether the source went through the barriers.
		transferred bool
	}{
		{fakevk.FailCreateImage, false},
		{fakevk.FailMemoryType, false},
		{fakevk.FailAllocate, false},
		{fakevk.FailBind, false},
		{fakevk.FailBegin, false},
		{fakevk.FailFlush, false},
		{fakevk.FailMap, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.point), func(t *testing.T) {
			f := newFixture(t, vk.FormatR8g8b8a8Unorm, 4, 4)
			f.dev.Fail(tt.point)

			err := f.capturer().Capture(f.req)
			assert.ErrorIs(t, err, ErrDevice)
			assert.ErrorIs(t, err, fakevk.ErrInjected)
			assert.NoFileExists(t, f.req.Path)
			assert.Equal(t, tt.transferred, len(f.dev.Barriers) == 4)
			f.assertClean(t)
		})
	}
}

func TestCaptureOutputFailure(t *testing.T) {
	f := newFixture(t, vk.FormatR8g8b8a8Unorm, 4, 4)
	dir := filepath.Dir(f.req.Path)
	f.req.Path = filepath.Join(dir, "missing", "frame1.ppm")

	core, logs := observer.New(zap.DebugLevel)
	ok := f.capturer(WithLogger(zap.New(core))).Save(f.req)
	assert.False(t, ok)

	warned := logs.FilterMessage("screenshot failed").FilterLevelExact(zap.WarnLevel)
	require.Equal(t, 1, warned.Len())
	assert.Equal(t, f.req.Path, warned.All()[0].ContextMap()["path"])
	f.assertClean(t)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temporary files left behind")

	err = f.capturer().Capture(f.req)
	assert.ErrorIs(t, err, ErrOutput)
	assert.ErrorIs(t, err, fs.ErrNotExist, "the OS cause stays matchable")
}

func TestCaptureRejectsShortMapping(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *fakevk.Device)
		msg   string
	}{
		{"mapping ends early", func(d *fakevk.Device) { d.MapShortfall = 1 }, "mapped"},
		{"mapping ends early with offset", func(d *fakevk.Device) {
			d.SubresourceOffset = 64
			d.RowPadding = 8
			d.MapShortfall = 9
		}, "mapped"},
		{"pitch below row size", func(d *fakevk.Device) { d.ReportedRowPitch = 12 }, "row pitch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, vk.FormatR8g8b8a8Unorm, 4, 4)
			tt.setup(f.dev)

			err := f.capturer().Capture(f.req)
			assert.ErrorIs(t, err, ErrDevice)
			assert.ErrorContains(t, err, tt.msg)
			assert.NoFileExists(t, f.req.Path)
			f.assertClean(t)

			entries, err := os.ReadDir(filepath.Dir(f.req.Path))
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestCaptureInvalidRequest(t *testing.T) {
	f := newFixture(t, vk.FormatR8g8b8a8Unorm, 4, 4)
	req := f.req
	req.Width = 0

	core, logs := observer.New(zap.DebugLevel)
	assert.False(t, f.capturer(WithLogger(zap.New(core))).Save(req))
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
	assert.Zero(t, f.dev.Submissions)
	assert.Zero(t, f.tracker.Peak(), "nothing allocated")
	f.assertClean(t)
}

func TestCopyRejectsWideTexels(t *testing.T) {
	f := newFixture(t, vk.FormatR16g16b16a16Unorm, 4, 4)
	f.dev.DisableBlit()

	err := f.capturer().Capture(f.req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, f.tracker.Peak())
	f.assertClean(t)
}

type tagSpy struct {
	*memtrack.Tracker
	tags []string
}

func (s *tagSpy) RecordAllocation(mem vk.DeviceMemory, size vk.DeviceSize, memoryTypeIndex uint32, tag string) {
	s.tags = append(s.tags, tag)
	s.Tracker.RecordAllocation(mem, size, memoryTypeIndex, tag)
}

func TestCaptureReportsAllocations(t *testing.T) {
	f := newFixture(t, vk.FormatR8g8b8a8Unorm, 8, 2)
	f.dev.RowPadding = 32
	spy := &tagSpy{Tracker: f.tracker}

	require.NoError(t, f.capturer(WithTracker(spy)).Capture(f.req))
	require.NoError(t, f.capturer(WithTracker(spy), WithMemoryTag("frames")).Capture(f.req))

	assert.Equal(t, []string{DefaultMemoryTag, "frames"}, spy.tags)
	assert.Equal(t, vk.DeviceSize((8*4+32)*2), f.tracker.Peak())
	f.assertClean(t)
}

func TestCaptureLogs(t *testing.T) {
	f := newFixture(t, vk.FormatB8g8r8a8Srgb, 2, 2)
	f.dev.DisableBlit()
	core, logs := observer.New(zap.DebugLevel)

	require.True(t, f.capturer(WithLogger(zap.New(core))).Save(f.req))

	probed := logs.FilterMessage("capability probed").All()
	require.Len(t, probed, 1)
	assert.Equal(t, false, probed[0].ContextMap()["blit"])
	assert.Equal(t, true, probed[0].ContextMap()["swizzle"])
	assert.Equal(t, "B8G8R8A8_SRGB", probed[0].ContextMap()["format"])
	assert.NotEmpty(t, probed[0].ContextMap()["capture"])

	saved := logs.FilterMessage("screenshot saved").All()
	require.Len(t, saved, 1)
	assert.Equal(t, f.req.Path, saved[0].ContextMap()["path"])
}
