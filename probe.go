package vkshot

import vk "github.com/vulkan-go/vulkan"

// Capability is the copy strategy chosen for one capture.
type Capability struct {
	// Blit is true when the device can blit the source format into the
	// linearly tiled staging format, converting it on the way.
	Blit bool
	// Swizzle is true when the raw copy path is taken for a BGR-ordered
	// source, so red and blue must be exchanged on readback.
	Swizzle bool
}

// probeCapability queries format support; it creates nothing on the device.
func probeCapability(driver Driver, gpu vk.PhysicalDevice, src vk.Format,
	bgr FormatSet, forceCopy bool) Capability {

	blit := !forceCopy
	if blit {
		props := driver.FormatProperties(gpu, src)
		if props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureBlitSrcBit) == 0 {
			blit = false
		}
	}
	if blit {
		props := driver.FormatProperties(gpu, StagingFormat)
		if props.LinearTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureBlitDstBit) == 0 {
			blit = false
		}
	}
	if blit {
		return Capability{Blit: true}
	}
	return Capability{Swizzle: bgr.Has(src)}
}
