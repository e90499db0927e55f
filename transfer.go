package vkshot

import vk "github.com/vulkan-go/vulkan"

var (
	colorRange = vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
	colorLayers = vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
)

// insertImageBarrier records a layout transition of the color subresource,
// ordered between transfer stages.
func insertImageBarrier(driver Driver, cmd vk.CommandBuffer, img vk.Image,
	srcAccess, dstAccess vk.AccessFlagBits, oldLayout, newLayout vk.ImageLayout) {

	transfer := vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	driver.CmdPipelineBarrier(cmd, transfer, transfer, []vk.ImageMemoryBarrier{{
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

// recordTransfer records the whole capture into cmd. The source image is
// taken from the presentation engine, read, and handed back in
// ImageLayoutPresentSrc; the staging image ends up in ImageLayoutGeneral.
func recordTransfer(driver Driver, cmd vk.CommandBuffer, src, dst vk.Image,
	blit bool, width, height uint32) {

	insertImageBarrier(driver, cmd, dst,
		0, vk.AccessTransferWriteBit,
		vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)

	insertImageBarrier(driver, cmd, src,
		vk.AccessMemoryReadBit, vk.AccessTransferReadBit,
		vk.ImageLayoutPresentSrc, vk.ImageLayoutTransferSrcOptimal)

	if blit {
		// Same size on both sides: the blit only converts the format.
		extent := vk.Offset3D{X: int32(width), Y: int32(height), Z: 1}
		driver.CmdBlitImage(cmd,
			src, vk.ImageLayoutTransferSrcOptimal,
			dst, vk.ImageLayoutTransferDstOptimal,
			[]vk.ImageBlit{{
				SrcSubresource: colorLayers,
				SrcOffsets:     [2]vk.Offset3D{{}, extent},
				DstSubresource: colorLayers,
				DstOffsets:     [2]vk.Offset3D{{}, extent},
			}},
			vk.FilterNearest)
	} else {
		driver.CmdCopyImage(cmd,
			src, vk.ImageLayoutTransferSrcOptimal,
			dst, vk.ImageLayoutTransferDstOptimal,
			[]vk.ImageCopy{{
				SrcSubresource: colorLayers,
				DstSubresource: colorLayers,
				Extent: vk.Extent3D{
					Width:  width,
					Height: height,
					Depth:  1,
				},
			}})
	}

	insertImageBarrier(driver, cmd, dst,
		vk.AccessTransferWriteBit, vk.AccessMemoryReadBit,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutGeneral)

	insertImageBarrier(driver, cmd, src,
		vk.AccessTransferReadBit, vk.AccessMemoryReadBit,
		vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutPresentSrc)
}
