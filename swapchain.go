package vkshot

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

// swapchainUsage lets the presented images be cleared and read back.
const swapchainUsage = vk.ImageUsageColorAttachmentBit |
	vk.ImageUsageTransferSrcBit |
	vk.ImageUsageTransferDstBit

// Swapchain holds the presentable images of a surface.
type Swapchain struct {
	device vk.Device
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent vk.Extent2D
	images []vk.Image
}

func newSwapchain(gpu vk.PhysicalDevice, device vk.Device, surface vk.Surface,
	dims SwapchainDimensions, families []uint32, logger *zap.Logger) (*Swapchain, error) {

	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(gpu, surface, &caps)
	if isError(ret) {
		return nil, NewError(ret)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	if vk.ImageUsageFlagBits(caps.SupportedUsageFlags)&swapchainUsage != swapchainUsage {
		return nil, fmt.Errorf("vulkan error: surface images cannot be transfer sources (usage %#x)",
			uint32(caps.SupportedUsageFlags))
	}

	var formatCount uint32
	ret = vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, nil)
	if isError(ret) {
		return nil, NewError(ret)
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	ret = vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, formats)
	if isError(ret) {
		return nil, NewError(ret)
	}
	for i := range formats {
		formats[i].Deref()
	}
	format, err := chooseSurfaceFormat(formats, dims.Format)
	if err != nil {
		return nil, err
	}

	s := &Swapchain{
		device: device,
		format: format,
		extent: chooseExtent(caps, dims),
	}

	// Figure out a suitable surface transform.
	preTransform := vk.SurfaceTransformIdentityBit
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&preTransform == 0 {
		preTransform = caps.CurrentTransform
	}

	// Find a supported composite alpha mode - one of these is guaranteed to be set
	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	sharing, shared := sharingMode(families...)
	ret = vk.CreateSwapchain(device, &vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               surface,
		MinImageCount:         chooseImageCount(caps, dims.Images),
		ImageFormat:           format.Format,
		ImageColorSpace:       format.ColorSpace,
		ImageExtent:           s.extent,
		ImageUsage:            vk.ImageUsageFlags(swapchainUsage),
		PreTransform:          preTransform,
		CompositeAlpha:        compositeAlpha,
		ImageArrayLayers:      1,
		ImageSharingMode:      sharing,
		QueueFamilyIndexCount: uint32(len(shared)),
		PQueueFamilyIndices:   shared,
		// FIFO is the only mode every implementation supports
		PresentMode: vk.PresentModeFifo,
		Clipped:     vk.True,
	}, nil, &s.handle)
	if isError(ret) {
		return nil, NewError(ret)
	}

	var imageCount uint32
	ret = vk.GetSwapchainImages(device, s.handle, &imageCount, nil)
	if isError(ret) {
		s.Destroy()
		return nil, NewError(ret)
	}
	s.images = make([]vk.Image, imageCount)
	ret = vk.GetSwapchainImages(device, s.handle, &imageCount, s.images)
	if isError(ret) {
		s.Destroy()
		return nil, NewError(ret)
	}

	logger.Info("swapchain created",
		zap.String("format", FormatName(format.Format)),
		zap.Uint32("width", s.extent.Width),
		zap.Uint32("height", s.extent.Height),
		zap.Uint32("images", imageCount))
	return s, nil
}

// sharingMode shares the images between distinct queue families, so frames
// cleared and captured on the graphics queue can be presented from another
// family without ownership transfers.
func sharingMode(families ...uint32) (vk.SharingMode, []uint32) {
	var distinct []uint32
	for _, f := range families {
		dup := false
		for _, d := range distinct {
			dup = dup || d == f
		}
		if !dup {
			distinct = append(distinct, f)
		}
	}
	if len(distinct) < 2 {
		return vk.SharingModeExclusive, nil
	}
	return vk.SharingModeConcurrent, distinct
}

// chooseSurfaceFormat returns want when the surface offers it, otherwise the
// first reported format. A single undefined entry means any format is fine.
func chooseSurfaceFormat(formats []vk.SurfaceFormat, want vk.Format) (vk.SurfaceFormat, error) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, fmt.Errorf("vulkan error: surface reports no color formats")
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		format := formats[0]
		format.Format = want
		return format, nil
	}
	for _, f := range formats {
		if f.Format == want {
			return f, nil
		}
	}
	return formats[0], nil
}

// chooseExtent follows the surface extent unless the surface leaves it to the
// swapchain, in which case dims is clamped to the supported range.
func chooseExtent(caps vk.SurfaceCapabilities, dims SwapchainDimensions) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clampUint32(dims.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clampUint32(dims.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// chooseImageCount clamps desired to the surface limits; a zero maximum means
// no limit.
func chooseImageCount(caps vk.SurfaceCapabilities, desired uint32) uint32 {
	if desired < caps.MinImageCount {
		desired = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && desired > caps.MaxImageCount {
		desired = caps.MaxImageCount
	}
	return desired
}

func clampUint32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Swapchain) Images() []vk.Image {
	return s.images
}

func (s *Swapchain) Format() vk.Format {
	return s.format.Format
}

func (s *Swapchain) Extent() vk.Extent2D {
	return s.extent
}

func (s *Swapchain) Destroy() {
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.device, s.handle, nil)
		s.handle = vk.NullSwapchain
	}
	s.images = nil
}
