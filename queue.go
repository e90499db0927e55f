package vkshot

import (
	"errors"

	vk "github.com/vulkan-go/vulkan"
)

var (
	errNoQueueFamily   = errors.New("vulkan error: could not find a suitable queue family for the target Vulkan mode")
	errNoPresentFamily = errors.New("vulkan error: could not find a separate queue with present capabilities")
)

// queueFamilyProperties lists the queue families of gpu, dereferenced.
func queueFamilyProperties(gpu vk.PhysicalDevice) []vk.QueueFamilyProperties {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)
	for i := range props {
		props[i].Deref()
	}
	return props
}

// selectQueueFamilies picks the graphics family with all of required and, when
// needsPresent, a family that can present. A family doing both is preferred;
// otherwise the first capable family is paired with the first one that
// presents.
func selectQueueFamilies(props []vk.QueueFamilyProperties, required vk.QueueFlags,
	needsPresent bool, supportsPresent func(family uint32) bool) (graphics, present uint32, err error) {

	graphicsFound := false
	for i := range props {
		family := uint32(i)
		if props[i].QueueFlags&required != required {
			continue
		}
		if !needsPresent || supportsPresent(family) {
			return family, family, nil
		}
		if !graphicsFound {
			graphics = family
			graphicsFound = true
		}
	}
	if !graphicsFound {
		return 0, 0, errNoQueueFamily
	}
	for i := range props {
		if supportsPresent(uint32(i)) {
			return graphics, uint32(i), nil
		}
	}
	return 0, 0, errNoPresentFamily
}

// queueCreateInfos requests one queue from each distinct family.
func queueCreateInfos(families ...uint32) []vk.DeviceQueueCreateInfo {
	var infos []vk.DeviceQueueCreateInfo
	seen := make(map[uint32]bool)
	for _, family := range families {
		if seen[family] {
			continue
		}
		seen[family] = true
		infos = append(infos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	return infos
}
