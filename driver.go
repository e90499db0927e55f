package vkshot

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Driver is the set of Vulkan entry points a capture uses. The default
// driver forwards to github.com/vulkan-go/vulkan; tests substitute a
// simulated device.
type Driver interface {
	FormatProperties(gpu vk.PhysicalDevice, format vk.Format) vk.FormatProperties

	CreateImage(dev vk.Device, info *vk.ImageCreateInfo) (vk.Image, error)
	DestroyImage(dev vk.Device, img vk.Image)
	ImageMemoryRequirements(dev vk.Device, img vk.Image) vk.MemoryRequirements
	ImageSubresourceLayout(dev vk.Device, img vk.Image, sub vk.ImageSubresource) vk.SubresourceLayout

	AllocateMemory(dev vk.Device, info *vk.MemoryAllocateInfo) (vk.DeviceMemory, error)
	FreeMemory(dev vk.Device, mem vk.DeviceMemory)
	BindImageMemory(dev vk.Device, img vk.Image, mem vk.DeviceMemory, offset vk.DeviceSize) error
	// MapMemory maps size bytes from the start of mem.
	MapMemory(dev vk.Device, mem vk.DeviceMemory, size vk.DeviceSize) ([]byte, error)
	UnmapMemory(dev vk.Device, mem vk.DeviceMemory)

	CmdPipelineBarrier(cmd vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier)
	CmdBlitImage(cmd vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout,
		dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageBlit, filter vk.Filter)
	CmdCopyImage(cmd vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout,
		dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy)
}

// VulkanDriver returns the driver backed by the loaded Vulkan library.
// vk.Init (or vk.SetGetInstanceProcAddr + vk.Init) must have been called.
func VulkanDriver() Driver {
	return vulkanDriver{}
}

type vulkanDriver struct{}

func (vulkanDriver) FormatProperties(gpu vk.PhysicalDevice, format vk.Format) vk.FormatProperties {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(gpu, format, &props)
	props.Deref()
	return props
}

func (vulkanDriver) CreateImage(dev vk.Device, info *vk.ImageCreateInfo) (vk.Image, error) {
	var img vk.Image
	ret := vk.CreateImage(dev, info, nil, &img)
	if isError(ret) {
		return nil, NewError(ret)
	}
	return img, nil
}

func (vulkanDriver) DestroyImage(dev vk.Device, img vk.Image) {
	vk.DestroyImage(dev, img, nil)
}

func (vulkanDriver) ImageMemoryRequirements(dev vk.Device, img vk.Image) vk.MemoryRequirements {
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, img, &reqs)
	reqs.Deref()
	return reqs
}

func (vulkanDriver) ImageSubresourceLayout(dev vk.Device, img vk.Image, sub vk.ImageSubresource) vk.SubresourceLayout {
	var layout vk.SubresourceLayout
	vk.GetImageSubresourceLayout(dev, img, &sub, &layout)
	layout.Deref()
	return layout
}

func (vulkanDriver) AllocateMemory(dev vk.Device, info *vk.MemoryAllocateInfo) (vk.DeviceMemory, error) {
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(dev, info, nil, &mem)
	if isError(ret) {
		return nil, NewError(ret)
	}
	return mem, nil
}

func (vulkanDriver) FreeMemory(dev vk.Device, mem vk.DeviceMemory) {
	vk.FreeMemory(dev, mem, nil)
}

func (vulkanDriver) BindImageMemory(dev vk.Device, img vk.Image, mem vk.DeviceMemory, offset vk.DeviceSize) error {
	return NewError(vk.BindImageMemory(dev, img, mem, offset))
}

func (vulkanDriver) MapMemory(dev vk.Device, mem vk.DeviceMemory, size vk.DeviceSize) ([]byte, error) {
	var ptr unsafe.Pointer
	ret := vk.MapMemory(dev, mem, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr)
	if isError(ret) {
		return nil, NewError(ret)
	}
	if ptr == nil {
		vk.UnmapMemory(dev, mem)
		return nil, fmt.Errorf("vulkan MapMemory returned a nil pointer (len=%d)", size)
	}
	return unsafe.Slice((*byte)(ptr), int(size)), nil
}

func (vulkanDriver) UnmapMemory(dev vk.Device, mem vk.DeviceMemory) {
	vk.UnmapMemory(dev, mem)
}

func (vulkanDriver) CmdPipelineBarrier(cmd vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0,
		0, nil,
		0, nil,
		uint32(len(barriers)), barriers)
}

func (vulkanDriver) CmdBlitImage(cmd vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout,
	dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageBlit, filter vk.Filter) {
	vk.CmdBlitImage(cmd, src, srcLayout, dst, dstLayout, uint32(len(regions)), regions, filter)
}

func (vulkanDriver) CmdCopyImage(cmd vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout,
	dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	vk.CmdCopyImage(cmd, src, srcLayout, dst, dstLayout, uint32(len(regions)), regions)
}
