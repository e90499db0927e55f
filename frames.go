package vkshot

import (
	"errors"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

var errNoSwapchain = errors.New("vulkan error: platform has no swapchain")

// frame holds the resources of one frame in flight. Its fences are waited on
// before the frame slot is reused, so its command buffers can be recycled.
type frame struct {
	device   vk.Device
	fences   *FenceManager
	commands *CommandBufferManager
	acquire  vk.Semaphore
	release  vk.Semaphore
}

func newFrame(device vk.Device, queueFamily uint32) (f *frame, err error) {
	commands, err := NewCommandBufferManager(device, vk.CommandBufferLevelPrimary, queueFamily)
	if err != nil {
		return nil, err
	}
	f = &frame{
		device:   device,
		fences:   NewFenceManager(device),
		commands: commands,
	}
	for _, sem := range []*vk.Semaphore{&f.acquire, &f.release} {
		ret := vk.CreateSemaphore(device, &vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}, nil, sem)
		if isError(ret) {
			f.Destroy()
			return nil, NewError(ret)
		}
	}
	return f, nil
}

// Reset waits for the frame's submissions and recycles its command buffers.
func (f *frame) Reset() {
	f.fences.Reset()
	f.commands.Reset()
}

func (f *frame) Destroy() {
	f.fences.Destroy()
	f.commands.Destroy()
	if f.acquire != vk.NullSemaphore {
		vk.DestroySemaphore(f.device, f.acquire, nil)
		f.acquire = vk.NullSemaphore
	}
	if f.release != vk.NullSemaphore {
		vk.DestroySemaphore(f.device, f.release, nil)
		f.release = vk.NullSemaphore
	}
}

// frameRing cycles through one frame per swapchain image.
type frameRing struct {
	frames []*frame
	next   int
}

func newFrameRing(device vk.Device, queueFamily uint32, count int) (*frameRing, error) {
	r := &frameRing{}
	for i := 0; i < count; i++ {
		f, err := newFrame(device, queueFamily)
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.frames = append(r.frames, f)
	}
	return r, nil
}

// take returns the next frame after waiting for its previous use.
func (r *frameRing) take() *frame {
	f := r.frames[r.next]
	r.next = (r.next + 1) % len(r.frames)
	f.Reset()
	return f
}

func (r *frameRing) Destroy() {
	for _, f := range r.frames {
		f.Destroy()
	}
	r.frames = nil
}

// Frame is a swapchain image acquired for rendering and presentation.
type Frame struct {
	// Index of the image in the swapchain.
	Index uint32
	Image vk.Image

	slot *frame
}

// AcquireFrame takes the next swapchain image. The returned frame must be
// submitted with ClearFrame before it is presented.
func (p *Platform) AcquireFrame() (Frame, error) {
	if p.swapchain == nil {
		return Frame{}, errNoSwapchain
	}
	slot := p.frames.take()
	var idx uint32
	ret := vk.AcquireNextImage(p.device, p.swapchain.handle, vk.MaxUint64, slot.acquire, vk.NullFence, &idx)
	switch ret {
	case vk.Success, vk.Suboptimal:
	default:
		return Frame{}, NewError(ret)
	}
	return Frame{Index: idx, Image: p.swapchain.images[idx], slot: slot}, nil
}

// ClearFrame fills the frame's image with color and leaves it in
// ImageLayoutPresentSrc. The submission waits for the image to be acquired
// and signals the semaphore PresentFrame waits on.
func (p *Platform) ClearFrame(f Frame, color [4]float32) error {
	cmd, err := f.slot.commands.NewCommandBuffer()
	if err != nil {
		return err
	}
	ret := vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if isError(ret) {
		return NewError(ret)
	}

	layoutBarrier(cmd, f.Image,
		vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit,
		0, vk.AccessTransferWriteBit,
		vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	value := clearColorValue(color)
	vk.CmdClearColorImage(cmd, f.Image, vk.ImageLayoutTransferDstOptimal, &value,
		1, []vk.ImageSubresourceRange{colorRange})
	layoutBarrier(cmd, f.Image,
		vk.PipelineStageTransferBit, vk.PipelineStageBottomOfPipeBit,
		vk.AccessTransferWriteBit, vk.AccessMemoryReadBit,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc)

	if ret := vk.EndCommandBuffer(cmd); isError(ret) {
		return NewError(ret)
	}
	fence, err := f.slot.fences.NewFence()
	if err != nil {
		return err
	}
	ret = vk.QueueSubmit(p.graphicsQueue, 1, []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{f.slot.acquire},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{f.slot.release},
	}}, fence)
	if isError(ret) {
		f.slot.fences.count--
		return NewError(ret)
	}
	return nil
}

// WaitFrame blocks until the frame's submissions have completed. The image is
// then idle in ImageLayoutPresentSrc and can be captured.
func (p *Platform) WaitFrame(f Frame) {
	f.slot.fences.Reset()
}

// PresentFrame queues the frame's image for presentation.
func (p *Platform) PresentFrame(f Frame) error {
	ret := vk.QueuePresent(p.presentQueue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{f.slot.release},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{p.swapchain.handle},
		PImageIndices:      []uint32{f.Index},
	})
	switch ret {
	case vk.Success, vk.Suboptimal:
		return nil
	default:
		return NewError(ret)
	}
}

// CaptureRequest describes a capture of the frame's image to path.
func (p *Platform) CaptureRequest(f Frame, cmds Commander, path string) Request {
	extent := p.swapchain.Extent()
	return Request{
		Device:         p.device,
		PhysicalDevice: p.gpu,
		Commands:       cmds,
		Queue:          p.graphicsQueue,
		Image:          f.Image,
		Format:         p.swapchain.Format(),
		Width:          extent.Width,
		Height:         extent.Height,
		Path:           path,
	}
}

func layoutBarrier(cmd vk.CommandBuffer, img vk.Image,
	srcStage, dstStage vk.PipelineStageFlagBits,
	srcAccess, dstAccess vk.AccessFlagBits, oldLayout, newLayout vk.ImageLayout) {

	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(srcAccess),
			DstAccessMask:       vk.AccessFlags(dstAccess),
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img,
			SubresourceRange:    colorRange,
		}})
}

// clearColorValue packs an RGBA float color into the union Vulkan expects.
func clearColorValue(color [4]float32) vk.ClearColorValue {
	var value vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&value)) = color
	return value
}
