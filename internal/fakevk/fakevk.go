// Package fakevk is an in-memory stand-in for a Vulkan device. It implements
// the driver and command interfaces of the capture path, tracks image layouts
// and access masks through barriers, executes recorded blits and copies
// when a command buffer is flushed, and records every misuse it sees as a
// violation instead of failing.
package fakevk

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// FailPoint names an operation that can be made to fail.
type FailPoint string

const (
	FailCreateImage FailPoint = "create-image"
	FailAllocate    FailPoint = "allocate-memory"
	FailBind        FailPoint = "bind-memory"
	FailMemoryType  FailPoint = "memory-type"
	FailBegin       FailPoint = "begin"
	FailFlush       FailPoint = "flush"
	FailMap         FailPoint = "map-memory"
)

// ErrInjected is returned by operations made to fail with Fail.
var ErrInjected = errors.New("fakevk: injected failure")

// poison fills freshly allocated memory so stale bytes are recognizable.
const poison = 0xEE

// Image is the simulated state of an image.
type Image struct {
	Format        vk.Format
	Width, Height uint32
	Tiling        vk.ImageTiling
	Usage         vk.ImageUsageFlags
	MipLevels     uint32
	ArrayLayers   uint32
	Layout        vk.ImageLayout
	Access        vk.AccessFlags

	// Source images keep their texels here, tightly packed.
	Texels []byte

	// Staging images live in bound memory.
	Memory   *Memory
	Offset   int
	RowPitch int

	source bool
}

// Memory is a simulated allocation.
type Memory struct {
	Data      []byte
	TypeIndex uint32
	Mapped    bool
}

type command func(d *Device)

type commandBuffer struct {
	recording bool
	commands  []command
}

// Device simulates one logical device with a single queue.
type Device struct {
	// RowPadding is added to every staging row.
	RowPadding int
	// SubresourceOffset is where the staging subresource starts in memory.
	SubresourceOffset int
	// ReportedRowPitch, when positive, replaces the row pitch returned by
	// ImageSubresourceLayout. Transfers still use the real pitch.
	ReportedRowPitch int
	// MapShortfall is cut from the end of every mapped range.
	MapShortfall int
	// MemoryTypes are the property flags of the device memory types.
	MemoryTypes []vk.MemoryPropertyFlags

	optimal map[vk.Format]vk.FormatFeatureFlags
	linear  map[vk.Format]vk.FormatFeatureFlags
	fail    map[FailPoint]bool
	blit    bool

	images   map[vk.Image]*Image
	memories map[vk.DeviceMemory]*Memory
	buffers  map[vk.CommandBuffer]*commandBuffer

	device vk.Device
	gpu    vk.PhysicalDevice
	queue  vk.Queue

	// Barriers lists every executed barrier in order.
	Barriers []vk.ImageMemoryBarrier
	// Violations lists misuse detected while recording or executing.
	Violations  []string
	Submissions int
	Blits       int
	Copies      int
}

// New returns a device on which every format can be blitted into a linear
// R8G8B8A8_UNORM image.
func New() *Device {
	return &Device{
		MemoryTypes: []vk.MemoryPropertyFlags{
			vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit),
		},
		optimal:  make(map[vk.Format]vk.FormatFeatureFlags),
		linear:   make(map[vk.Format]vk.FormatFeatureFlags),
		fail:     make(map[FailPoint]bool),
		blit:     true,
		images:   make(map[vk.Image]*Image),
		memories: make(map[vk.DeviceMemory]*Memory),
		buffers:  make(map[vk.CommandBuffer]*commandBuffer),
		device:   vk.Device(handle()),
		gpu:      vk.PhysicalDevice(handle()),
		queue:    vk.Queue(handle()),
	}
}

func handle() unsafe.Pointer {
	return unsafe.Pointer(new(byte))
}

// Handle accessors for building requests.
func (d *Device) Device() vk.Device                 { return d.device }
func (d *Device) PhysicalDevice() vk.PhysicalDevice { return d.gpu }
func (d *Device) Queue() vk.Queue                   { return d.queue }

// Fail makes the named operations fail until Heal is called.
func (d *Device) Fail(points ...FailPoint) {
	for _, p := range points {
		d.fail[p] = true
	}
}

// Heal clears every failure point.
func (d *Device) Heal() {
	d.fail = make(map[FailPoint]bool)
}

func (d *Device) failing(p FailPoint) error {
	if d.fail[p] {
		return fmt.Errorf("%w: %s", ErrInjected, p)
	}
	return nil
}

// SetFormatFeatures overrides the tiling features reported for f.
func (d *Device) SetFormatFeatures(f vk.Format, linear, optimal vk.FormatFeatureFlagBits) {
	d.linear[f] = vk.FormatFeatureFlags(linear)
	d.optimal[f] = vk.FormatFeatureFlags(optimal)
}

// DisableBlit removes blit support from every format without an override.
func (d *Device) DisableBlit() {
	d.blit = false
}

func (d *Device) violate(format string, args ...any) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

// NewSourceImage adds an optimally tiled presentable image, as a swapchain
// hands it out: in ImageLayoutPresentSrc with memory-read access. color
// returns the RGBA value of each pixel, which is stored in f's byte order.
func (d *Device) NewSourceImage(f vk.Format, width, height uint32, color func(x, y int) [4]byte) vk.Image {
	size := texelSize(f)
	if size == 0 {
		size = 4
	}
	img := &Image{
		Format:      f,
		Width:       width,
		Height:      height,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
		MipLevels:   1,
		ArrayLayers: 1,
		Layout:      vk.ImageLayoutPresentSrc,
		Access:      vk.AccessFlags(vk.AccessMemoryReadBit),
		Texels:      make([]byte, int(width*height)*size),
		source:      true,
	}
	for y := 0; y < int(height); y++ {
		for x := 0; x < int(width); x++ {
			i := (y*int(width) + x) * size
			encodeTexel(f, color(x, y), img.Texels[i:i+size])
		}
	}
	h := vk.Image(handle())
	d.images[h] = img
	return h
}

// Image returns the state of a live image.
func (d *Device) Image(h vk.Image) (*Image, bool) {
	img, ok := d.images[h]
	return img, ok
}

// LiveImages counts images created through CreateImage and not destroyed.
func (d *Device) LiveImages() int {
	n := 0
	for _, img := range d.images {
		if !img.source {
			n++
		}
	}
	return n
}

// LiveMemory counts allocations not yet freed.
func (d *Device) LiveMemory() int {
	return len(d.memories)
}

// MappedMemory counts allocations currently mapped.
func (d *Device) MappedMemory() int {
	n := 0
	for _, m := range d.memories {
		if m.Mapped {
			n++
		}
	}
	return n
}

// PendingCommandBuffers counts command buffers begun but not flushed.
func (d *Device) PendingCommandBuffers() int {
	return len(d.buffers)
}
