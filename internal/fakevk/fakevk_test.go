package fakevk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestTexelRoundTrip(t *testing.T) {
	c := [4]byte{10, 20, 30, 40}
	for _, f := range []vk.Format{
		vk.FormatR8g8b8a8Unorm,
		vk.FormatB8g8r8a8Srgb,
		vk.FormatA8b8g8r8UnormPack32,
		vk.FormatR16g16b16a16Unorm,
	} {
		buf := make([]byte, texelSize(f))
		encodeTexel(f, c, buf)
		got, ok := decodeTexel(f, buf)
		require.True(t, ok)
		assert.Equal(t, c, got, "format %d", f)
	}

	buf := make([]byte, 4)
	encodeTexel(vk.FormatB8g8r8a8Unorm, c, buf)
	assert.Equal(t, []byte{30, 20, 10, 40}, buf)
}

func TestBarrierTracking(t *testing.T) {
	d := New()
	img := d.NewSourceImage(vk.FormatR8g8b8a8Unorm, 2, 2, func(x, y int) [4]byte { return [4]byte{} })

	cb, err := d.BeginOneShot()
	require.NoError(t, err)
	d.CmdPipelineBarrier(cb, 0, 0, []vk.ImageMemoryBarrier{{
		SrcAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit),
		DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit),
		OldLayout:     vk.ImageLayoutPresentSrc,
		NewLayout:     vk.ImageLayoutTransferSrcOptimal,
		Image:         img,
	}})

	state, _ := d.Image(img)
	assert.Equal(t, vk.ImageLayoutPresentSrc, state.Layout, "nothing runs before the flush")

	require.NoError(t, d.FlushOneShot(cb, d.Queue()))
	assert.Equal(t, vk.ImageLayoutTransferSrcOptimal, state.Layout)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferReadBit), state.Access)
	assert.Empty(t, d.Violations)
	assert.Equal(t, 1, d.Submissions)
	assert.Zero(t, d.PendingCommandBuffers())
}

func TestViolations(t *testing.T) {
	d := New()
	img := d.NewSourceImage(vk.FormatR8g8b8a8Unorm, 1, 1, func(x, y int) [4]byte { return [4]byte{} })

	// recording outside a command buffer
	d.CmdPipelineBarrier(vk.CommandBuffer(handle()), 0, 0, nil)
	require.Len(t, d.Violations, 1)

	cb, err := d.BeginOneShot()
	require.NoError(t, err)
	d.CmdPipelineBarrier(cb, 0, 0, []vk.ImageMemoryBarrier{{
		OldLayout: vk.ImageLayoutTransferDstOptimal,
		NewLayout: vk.ImageLayoutGeneral,
		Image:     img,
	}})
	require.NoError(t, d.FlushOneShot(cb, d.Queue()))
	assert.Len(t, d.Violations, 3, "wrong old layout and wrong src access")

	d.DestroyImage(d.Device(), img)
	assert.Len(t, d.Violations, 4)
}

func TestFailPoints(t *testing.T) {
	d := New()
	d.Fail(FailCreateImage, FailBegin)

	_, err := d.CreateImage(d.Device(), &vk.ImageCreateInfo{})
	assert.ErrorIs(t, err, ErrInjected)
	_, err = d.BeginOneShot()
	assert.ErrorIs(t, err, ErrInjected)

	d.Heal()
	_, err = d.BeginOneShot()
	assert.NoError(t, err)
}

func TestMemoryTypeIndex(t *testing.T) {
	d := New()
	idx, err := d.MemoryTypeIndex(0b11, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx)

	_, err = d.MemoryTypeIndex(0b01, vk.MemoryPropertyHostVisibleBit)
	assert.Error(t, err)
}

func TestFormatProperties(t *testing.T) {
	d := New()
	props := d.FormatProperties(d.PhysicalDevice(), vk.FormatR8g8b8a8Unorm)
	assert.NotZero(t, props.LinearTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureBlitDstBit))

	d.DisableBlit()
	props = d.FormatProperties(d.PhysicalDevice(), vk.FormatB8g8r8a8Srgb)
	assert.Zero(t, props.OptimalTilingFeatures)

	d.SetFormatFeatures(vk.FormatB8g8r8a8Srgb, 0, vk.FormatFeatureBlitSrcBit)
	props = d.FormatProperties(d.PhysicalDevice(), vk.FormatB8g8r8a8Srgb)
	assert.Equal(t, vk.FormatFeatureFlags(vk.FormatFeatureBlitSrcBit), props.OptimalTilingFeatures)
}
