package vkshot

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// stagingImage owns the linear, host-visible image a capture is copied into
// and its single memory allocation. Release frees both and may be called any
// number of times.
type stagingImage struct {
	driver   Driver
	device   vk.Device
	recorder AllocationRecorder

	image      vk.Image
	memory     vk.DeviceMemory
	size       vk.DeviceSize
	memoryType uint32
	mapped     bool
}

// newStagingImage creates and binds the staging image. On failure everything
// created so far is released and the error wraps ErrDevice.
func newStagingImage(driver Driver, cmds Commander, device vk.Device,
	width, height uint32, rec AllocationRecorder, tag string) (*stagingImage, error) {

	s := &stagingImage{
		driver:   driver,
		device:   device,
		recorder: rec,
	}
	if err := s.provision(cmds, width, height, tag); err != nil {
		s.Release()
		return nil, fmt.Errorf("%w: staging image: %w", ErrDevice, err)
	}
	return s, nil
}

func (s *stagingImage) provision(cmds Commander, width, height uint32, tag string) error {
	img, err := s.driver.CreateImage(s.device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    StagingFormat,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingLinear,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	})
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	s.image = img

	// The driver decides the size; rows may be padded.
	reqs := s.driver.ImageMemoryRequirements(s.device, img)
	memType, err := cmds.MemoryTypeIndex(reqs.MemoryTypeBits,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return fmt.Errorf("memory type: %w", err)
	}

	mem, err := s.driver.AllocateMemory(s.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memType,
	})
	if err != nil {
		return fmt.Errorf("allocate %d bytes: %w", reqs.Size, err)
	}
	s.memory = mem
	s.size = reqs.Size
	s.memoryType = memType
	if s.recorder != nil {
		s.recorder.RecordAllocation(mem, reqs.Size, memType, tag)
	}

	if err := s.driver.BindImageMemory(s.device, img, mem, 0); err != nil {
		return fmt.Errorf("bind memory: %w", err)
	}
	return nil
}

// Layout reports where the single subresource lives in the allocation.
func (s *stagingImage) Layout() vk.SubresourceLayout {
	return s.driver.ImageSubresourceLayout(s.device, s.image, vk.ImageSubresource{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevel:   0,
		ArrayLayer: 0,
	})
}

// Map maps the whole allocation. Host-coherent memory needs no invalidate.
func (s *stagingImage) Map() ([]byte, error) {
	data, err := s.driver.MapMemory(s.device, s.memory, s.size)
	if err != nil {
		return nil, err
	}
	s.mapped = true
	return data, nil
}

func (s *stagingImage) Release() {
	if s.mapped {
		s.driver.UnmapMemory(s.device, s.memory)
		s.mapped = false
	}
	if s.memory != nil {
		s.driver.FreeMemory(s.device, s.memory)
		if s.recorder != nil {
			s.recorder.RecordFree(s.memory)
		}
		s.memory = nil
	}
	if s.image != nil {
		s.driver.DestroyImage(s.device, s.image)
		s.image = nil
	}
}
