package fakevk

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

func (d *Device) FormatProperties(gpu vk.PhysicalDevice, f vk.Format) vk.FormatProperties {
	var props vk.FormatProperties
	if d.blit {
		props.OptimalTilingFeatures = vk.FormatFeatureFlags(vk.FormatFeatureBlitSrcBit | vk.FormatFeatureTransferSrcBit)
		if f == vk.FormatR8g8b8a8Unorm {
			props.LinearTilingFeatures = vk.FormatFeatureFlags(vk.FormatFeatureBlitDstBit | vk.FormatFeatureTransferDstBit)
		}
	}
	if v, ok := d.optimal[f]; ok {
		props.OptimalTilingFeatures = v
	}
	if v, ok := d.linear[f]; ok {
		props.LinearTilingFeatures = v
	}
	return props
}

func (d *Device) CreateImage(dev vk.Device, info *vk.ImageCreateInfo) (vk.Image, error) {
	if err := d.failing(FailCreateImage); err != nil {
		return nil, err
	}
	if info.Extent.Width == 0 || info.Extent.Height == 0 || info.Extent.Depth != 1 {
		d.violate("create image: extent %v", info.Extent)
	}
	img := &Image{
		Format:      info.Format,
		Width:       info.Extent.Width,
		Height:      info.Extent.Height,
		Tiling:      info.Tiling,
		Usage:       info.Usage,
		MipLevels:   info.MipLevels,
		ArrayLayers: info.ArrayLayers,
		Layout:      info.InitialLayout,
		RowPitch:    int(info.Extent.Width)*texelSize(info.Format) + d.RowPadding,
		Offset:      d.SubresourceOffset,
	}
	h := vk.Image(handle())
	d.images[h] = img
	return h, nil
}

func (d *Device) DestroyImage(dev vk.Device, h vk.Image) {
	img, ok := d.images[h]
	if !ok {
		d.violate("destroy image: unknown handle")
		return
	}
	if img.source {
		d.violate("destroy image: presentable image destroyed")
	}
	delete(d.images, h)
}

func (d *Device) ImageMemoryRequirements(dev vk.Device, h vk.Image) vk.MemoryRequirements {
	img, ok := d.images[h]
	if !ok {
		d.violate("memory requirements: unknown image")
		return vk.MemoryRequirements{}
	}
	size := img.Offset + img.RowPitch*int(img.Height)
	var bits uint32
	for i := range d.MemoryTypes {
		bits |= 1 << uint(i)
	}
	return vk.MemoryRequirements{
		Size:           vk.DeviceSize(size),
		Alignment:      256,
		MemoryTypeBits: bits,
	}
}

func (d *Device) ImageSubresourceLayout(dev vk.Device, h vk.Image, sub vk.ImageSubresource) vk.SubresourceLayout {
	img, ok := d.images[h]
	if !ok {
		d.violate("subresource layout: unknown image")
		return vk.SubresourceLayout{}
	}
	if sub.AspectMask != vk.ImageAspectFlags(vk.ImageAspectColorBit) || sub.MipLevel != 0 || sub.ArrayLayer != 0 {
		d.violate("subresource layout: unexpected subresource %+v", sub)
	}
	if img.Tiling != vk.ImageTilingLinear {
		d.violate("subresource layout: image is not linear")
	}
	pitch := img.RowPitch
	if d.ReportedRowPitch > 0 {
		pitch = d.ReportedRowPitch
	}
	return vk.SubresourceLayout{
		Offset:   vk.DeviceSize(img.Offset),
		Size:     vk.DeviceSize(pitch * int(img.Height)),
		RowPitch: vk.DeviceSize(pitch),
	}
}

func (d *Device) AllocateMemory(dev vk.Device, info *vk.MemoryAllocateInfo) (vk.DeviceMemory, error) {
	if err := d.failing(FailAllocate); err != nil {
		return nil, err
	}
	if int(info.MemoryTypeIndex) >= len(d.MemoryTypes) {
		d.violate("allocate: memory type %d out of range", info.MemoryTypeIndex)
	}
	mem := &Memory{
		Data:      make([]byte, int(info.AllocationSize)),
		TypeIndex: info.MemoryTypeIndex,
	}
	for i := range mem.Data {
		mem.Data[i] = poison
	}
	h := vk.DeviceMemory(handle())
	d.memories[h] = mem
	return h, nil
}

func (d *Device) FreeMemory(dev vk.Device, h vk.DeviceMemory) {
	mem, ok := d.memories[h]
	if !ok {
		d.violate("free memory: unknown handle")
		return
	}
	if mem.Mapped {
		d.violate("free memory: still mapped")
	}
	delete(d.memories, h)
}

func (d *Device) BindImageMemory(dev vk.Device, img vk.Image, mem vk.DeviceMemory, offset vk.DeviceSize) error {
	if err := d.failing(FailBind); err != nil {
		return err
	}
	i, ok := d.images[img]
	m, mok := d.memories[mem]
	if !ok || !mok {
		d.violate("bind: unknown image or memory")
		return fmt.Errorf("fakevk: bind unknown handle")
	}
	if offset != 0 {
		d.violate("bind: offset %d", offset)
	}
	i.Memory = m
	return nil
}

func (d *Device) MapMemory(dev vk.Device, h vk.DeviceMemory, size vk.DeviceSize) ([]byte, error) {
	if err := d.failing(FailMap); err != nil {
		return nil, err
	}
	mem, ok := d.memories[h]
	if !ok {
		d.violate("map: unknown memory")
		return nil, fmt.Errorf("fakevk: map unknown memory")
	}
	if mem.Mapped {
		d.violate("map: already mapped")
	}
	if !d.hostVisible(mem.TypeIndex) {
		d.violate("map: memory type %d is not host visible", mem.TypeIndex)
	}
	if int(size) > len(mem.Data) {
		d.violate("map: %d bytes of a %d byte allocation", size, len(mem.Data))
		size = vk.DeviceSize(len(mem.Data))
	}
	if short := vk.DeviceSize(d.MapShortfall); short > 0 {
		if short > size {
			short = size
		}
		size -= short
	}
	mem.Mapped = true
	return mem.Data[:size], nil
}

func (d *Device) UnmapMemory(dev vk.Device, h vk.DeviceMemory) {
	mem, ok := d.memories[h]
	if !ok || !mem.Mapped {
		d.violate("unmap: memory not mapped")
		return
	}
	mem.Mapped = false
}

func (d *Device) hostVisible(typeIndex uint32) bool {
	if int(typeIndex) >= len(d.MemoryTypes) {
		return false
	}
	return d.MemoryTypes[typeIndex]&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0
}

// record queues cmd for execution when the buffer is flushed.
func (d *Device) record(cb vk.CommandBuffer, name string, cmd command) {
	buf, ok := d.buffers[cb]
	if !ok || !buf.recording {
		d.violate("%s: command buffer not recording", name)
		return
	}
	buf.commands = append(buf.commands, cmd)
}

func (d *Device) CmdPipelineBarrier(cb vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barriers []vk.ImageMemoryBarrier) {
	barriers = append([]vk.ImageMemoryBarrier(nil), barriers...)
	d.record(cb, "barrier", func(d *Device) {
		for _, b := range barriers {
			d.executeBarrier(b)
		}
	})
}

func (d *Device) executeBarrier(b vk.ImageMemoryBarrier) {
	d.Barriers = append(d.Barriers, b)
	img, ok := d.images[b.Image]
	if !ok {
		d.violate("barrier: unknown image")
		return
	}
	if b.OldLayout != vk.ImageLayoutUndefined && b.OldLayout != img.Layout {
		d.violate("barrier: old layout %d, image is in %d", b.OldLayout, img.Layout)
	}
	if b.SrcAccessMask != img.Access {
		d.violate("barrier: src access %#x, last access %#x", b.SrcAccessMask, img.Access)
	}
	img.Layout = b.NewLayout
	img.Access = b.DstAccessMask
}

func (d *Device) CmdBlitImage(cb vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout,
	dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageBlit, filter vk.Filter) {

	regions = append([]vk.ImageBlit(nil), regions...)
	d.record(cb, "blit", func(d *Device) {
		d.Blits++
		s, t, ok := d.transferPair("blit", src, srcLayout, dst, dstLayout)
		if !ok {
			return
		}
		if filter != vk.FilterNearest {
			d.violate("blit: filter %d", filter)
		}
		for _, r := range regions {
			so, eo := r.SrcOffsets[0], r.SrcOffsets[1]
			if !sameOffset(r.DstOffsets[0], so) || !sameOffset(r.DstOffsets[1], eo) {
				d.violate("blit: scaling %v -> %v", r.SrcOffsets, r.DstOffsets)
				continue
			}
			if !d.inBounds(s, so, eo) || !d.inBounds(t, so, eo) {
				d.violate("blit: region %v outside the images", r.SrcOffsets)
				continue
			}
			for y := int(so.Y); y < int(eo.Y); y++ {
				for x := int(so.X); x < int(eo.X); x++ {
					rgba, ok := decodeTexel(s.Format, s.texel(x, y))
					if !ok {
						d.violate("blit: cannot convert from format %d", s.Format)
						return
					}
					var out [4]byte
					encodeTexel(t.Format, rgba, out[:])
					copy(t.stagingTexel(x, y), out[:])
				}
			}
		}
	})
}

func (d *Device) CmdCopyImage(cb vk.CommandBuffer, src vk.Image, srcLayout vk.ImageLayout,
	dst vk.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {

	regions = append([]vk.ImageCopy(nil), regions...)
	d.record(cb, "copy", func(d *Device) {
		d.Copies++
		s, t, ok := d.transferPair("copy", src, srcLayout, dst, dstLayout)
		if !ok {
			return
		}
		if texelSize(s.Format) != texelSize(t.Format) {
			d.violate("copy: texel size %d into %d", texelSize(s.Format), texelSize(t.Format))
			return
		}
		for _, r := range regions {
			if !sameOffset(r.SrcOffset, r.DstOffset) {
				d.violate("copy: offsets differ")
				continue
			}
			start := r.SrcOffset
			end := vk.Offset3D{
				X: start.X + int32(r.Extent.Width),
				Y: start.Y + int32(r.Extent.Height),
				Z: 1,
			}
			if !d.inBounds(s, start, end) || !d.inBounds(t, start, end) {
				d.violate("copy: extent %v outside the images", r.Extent)
				continue
			}
			for y := int(start.Y); y < int(end.Y); y++ {
				for x := int(start.X); x < int(end.X); x++ {
					copy(t.stagingTexel(x, y), s.texel(x, y))
				}
			}
		}
	})
}

func (d *Device) transferPair(name string, src vk.Image, srcLayout vk.ImageLayout,
	dst vk.Image, dstLayout vk.ImageLayout) (s, t *Image, ok bool) {

	s, sok := d.images[src]
	t, tok := d.images[dst]
	if !sok || !tok {
		d.violate("%s: unknown image", name)
		return nil, nil, false
	}
	if srcLayout != vk.ImageLayoutTransferSrcOptimal || s.Layout != srcLayout {
		d.violate("%s: source in layout %d, declared %d", name, s.Layout, srcLayout)
	}
	if dstLayout != vk.ImageLayoutTransferDstOptimal || t.Layout != dstLayout {
		d.violate("%s: destination in layout %d, declared %d", name, t.Layout, dstLayout)
	}
	if s.Access != vk.AccessFlags(vk.AccessTransferReadBit) {
		d.violate("%s: source access %#x without transfer read", name, s.Access)
	}
	if t.Access != vk.AccessFlags(vk.AccessTransferWriteBit) {
		d.violate("%s: destination access %#x without transfer write", name, t.Access)
	}
	if t.Memory == nil {
		d.violate("%s: destination has no memory bound", name)
		return nil, nil, false
	}
	return s, t, true
}

func sameOffset(a, b vk.Offset3D) bool {
	return a.X == b.X && a.Y == b.Y && a.Z == b.Z
}

func (d *Device) inBounds(img *Image, start, end vk.Offset3D) bool {
	return start.X >= 0 && start.Y >= 0 &&
		end.X <= int32(img.Width) && end.Y <= int32(img.Height) &&
		start.X <= end.X && start.Y <= end.Y
}

func (img *Image) texel(x, y int) []byte {
	size := texelSize(img.Format)
	i := (y*int(img.Width) + x) * size
	return img.Texels[i : i+size]
}

func (img *Image) stagingTexel(x, y int) []byte {
	size := texelSize(img.Format)
	i := img.Offset + y*img.RowPitch + x*size
	return img.Memory.Data[i : i+size]
}

// MemoryTypeIndex picks the first allowed memory type with all of props.
func (d *Device) MemoryTypeIndex(typeBits uint32, props vk.MemoryPropertyFlagBits) (uint32, error) {
	if err := d.failing(FailMemoryType); err != nil {
		return 0, err
	}
	want := vk.MemoryPropertyFlags(props)
	for i, flags := range d.MemoryTypes {
		if typeBits&(1<<uint(i)) != 0 && flags&want == want {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("fakevk: no memory type in %#x with %#x", typeBits, want)
}

func (d *Device) BeginOneShot() (vk.CommandBuffer, error) {
	if err := d.failing(FailBegin); err != nil {
		return nil, err
	}
	cb := vk.CommandBuffer(handle())
	d.buffers[cb] = &commandBuffer{recording: true}
	return cb, nil
}

// FlushOneShot executes the recorded commands in order. An injected failure
// drops the buffer without executing it, like a rejected submission.
func (d *Device) FlushOneShot(cb vk.CommandBuffer, queue vk.Queue) error {
	buf, ok := d.buffers[cb]
	if !ok || !buf.recording {
		d.violate("flush: command buffer not recording")
		return fmt.Errorf("fakevk: flush of unknown command buffer")
	}
	delete(d.buffers, cb)
	if queue != d.queue {
		d.violate("flush: unknown queue")
	}
	if err := d.failing(FailFlush); err != nil {
		return err
	}
	d.Submissions++
	for _, cmd := range buf.commands {
		cmd(d)
	}
	return nil
}
