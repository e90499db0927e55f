package vkshot

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Commander is the device/queue collaborator of a capture: it resolves memory
// types and records and flushes one-shot command buffers, hiding the fences
// used to wait for them.
type Commander interface {
	// MemoryTypeIndex returns a memory type allowed by typeBits that has all
	// of props.
	MemoryTypeIndex(typeBits uint32, props vk.MemoryPropertyFlagBits) (uint32, error)
	// BeginOneShot returns a primary command buffer in the recording state.
	BeginOneShot() (vk.CommandBuffer, error)
	// FlushOneShot ends cmd, submits it to queue and blocks until the device
	// has finished executing it.
	FlushOneShot(cmd vk.CommandBuffer, queue vk.Queue) error
}

// FenceManager keeps track of fences which in turn are used to keep track of GPU progress.
// The manager is not thread-safe.
type FenceManager struct {
	device vk.Device
	fences []vk.Fence
	count  uint32
}

func NewFenceManager(device vk.Device) *FenceManager {
	return &FenceManager{
		device: device,
	}
}

// Reset waits for the GPU to signal all outstanding fences and makes them reusable.
func (f *FenceManager) Reset() {
	if f.count > 0 {
		vk.WaitForFences(f.device, f.count, f.fences, vk.True, vk.MaxUint64)
		vk.ResetFences(f.device, f.count, f.fences)
	}
	f.count = 0
}

func (f *FenceManager) NewFence() (vk.Fence, error) {
	if f.count < uint32(len(f.fences)) {
		fence := f.fences[f.count]
		f.count++
		return fence, nil
	}
	var fence vk.Fence
	ret := vk.CreateFence(f.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &fence)
	if isError(ret) {
		return fence, NewError(ret)
	}
	f.fences = append(f.fences, fence)
	f.count++
	return fence, nil
}

func (f *FenceManager) ActiveFences() []vk.Fence {
	return f.fences[:f.count]
}

func (f *FenceManager) Destroy() {
	f.Reset()
	for i := range f.fences {
		vk.DestroyFence(f.device, f.fences[i], nil)
	}
	f.fences = nil
}

// CommandBufferManager allocates command buffers and recycles them.
// The manager is not thread-safe.
type CommandBufferManager struct {
	device             vk.Device
	pool               vk.CommandPool
	buffers            []vk.CommandBuffer
	commandBufferLevel vk.CommandBufferLevel
	count              uint32
}

// NewCommandBufferManager creates a pool on queueFamily whose buffers can be
// reset individually.
func NewCommandBufferManager(device vk.Device,
	bufferLevel vk.CommandBufferLevel, queueFamily uint32) (*CommandBufferManager, error) {

	var pool vk.CommandPool
	ret := vk.CreateCommandPool(device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)
	if isError(ret) {
		return nil, NewError(ret)
	}

	return &CommandBufferManager{
		pool:               pool,
		device:             device,
		commandBufferLevel: bufferLevel,
	}, nil
}

// Reset marks every managed command buffer as recyclable.
func (c *CommandBufferManager) Reset() {
	c.count = 0
}

func (c *CommandBufferManager) Destroy() {
	if len(c.buffers) > 0 {
		vk.FreeCommandBuffers(c.device, c.pool, uint32(len(c.buffers)), c.buffers)
	}
	vk.DestroyCommandPool(c.device, c.pool, nil)
	c.buffers = nil
}

// NewCommandBuffer returns a fresh or recycled command buffer in the initial state.
func (c *CommandBufferManager) NewCommandBuffer() (vk.CommandBuffer, error) {
	if c.count < uint32(len(c.buffers)) {
		buf := c.buffers[c.count]
		c.count++
		ret := vk.ResetCommandBuffer(buf,
			vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit))
		if isError(ret) {
			return buf, NewError(ret)
		}
		return buf, nil
	}
	bufs := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(c.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.pool,
		Level:              c.commandBufferLevel,
		CommandBufferCount: 1,
	}, bufs)
	if isError(ret) {
		return nil, NewError(ret)
	}
	c.buffers = append(c.buffers, bufs[0])
	c.count++
	return bufs[0], nil
}

// OneShotCommands is the Commander backed by a real device. Command buffers
// are recycled after every flush, so a single instance serves any number of
// sequential captures.
type OneShotCommands struct {
	device   vk.Device
	memProps vk.PhysicalDeviceMemoryProperties
	buffers  *CommandBufferManager
	fences   *FenceManager
}

// NewOneShotCommands creates the command pool on queueFamily. memProps are the
// physical device memory properties used to resolve memory types.
func NewOneShotCommands(device vk.Device, memProps vk.PhysicalDeviceMemoryProperties,
	queueFamily uint32) (*OneShotCommands, error) {

	buffers, err := NewCommandBufferManager(device, vk.CommandBufferLevelPrimary, queueFamily)
	if err != nil {
		return nil, err
	}
	return &OneShotCommands{
		device:   device,
		memProps: memProps,
		buffers:  buffers,
		fences:   NewFenceManager(device),
	}, nil
}

func (o *OneShotCommands) MemoryTypeIndex(typeBits uint32, props vk.MemoryPropertyFlagBits) (uint32, error) {
	idx, ok := FindRequiredMemoryType(o.memProps, vk.MemoryPropertyFlagBits(typeBits), props)
	if !ok {
		return 0, fmt.Errorf("vulkan error: no memory type in %#x with properties %#x", typeBits, uint32(props))
	}
	return idx, nil
}

func (o *OneShotCommands) BeginOneShot() (vk.CommandBuffer, error) {
	cmd, err := o.buffers.NewCommandBuffer()
	if err != nil {
		return nil, err
	}
	ret := vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if isError(ret) {
		return nil, NewError(ret)
	}
	return cmd, nil
}

func (o *OneShotCommands) FlushOneShot(cmd vk.CommandBuffer, queue vk.Queue) error {
	defer o.buffers.Reset()
	if ret := vk.EndCommandBuffer(cmd); isError(ret) {
		return NewError(ret)
	}
	fence, err := o.fences.NewFence()
	if err != nil {
		return err
	}
	// Reset waits on the fence, which blocks until the submission is done.
	defer o.fences.Reset()

	ret := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}}, fence)
	if isError(ret) {
		// nothing was submitted, the fence would never signal
		o.fences.count--
		return NewError(ret)
	}
	return NewError(vk.WaitForFences(o.device, 1, []vk.Fence{fence}, vk.True, vk.MaxUint64))
}

// Destroy waits for outstanding work and frees the pool and fences.
func (o *OneShotCommands) Destroy() {
	o.fences.Destroy()
	o.buffers.Destroy()
}
