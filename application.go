package vkshot

import vk "github.com/vulkan-go/vulkan"

// VulkanMode selects the queue capabilities a Platform must provide.
type VulkanMode uint32

const (
	VulkanCompute VulkanMode = 1 << iota
	VulkanGraphics
	VulkanPresent

	VulkanNone VulkanMode = 0
)

func (v VulkanMode) Has(mode VulkanMode) bool {
	return v&mode == mode
}

// queueFlags is the queue family capability required by the mode. Present
// support is a per-surface query and is not part of it.
func (v VulkanMode) queueFlags() vk.QueueFlags {
	var flags vk.QueueFlags
	if v.Has(VulkanCompute) {
		flags |= vk.QueueFlags(vk.QueueComputeBit)
	}
	if v.Has(VulkanGraphics) {
		flags |= vk.QueueFlags(vk.QueueGraphicsBit)
	}
	return flags
}

// Application describes what NewPlatform should bring up.
type Application interface {
	VulkanAPIVersion() vk.Version
	VulkanAppVersion() vk.Version
	VulkanAppName() string
	VulkanMode() VulkanMode
	// VulkanSurface creates the presentation surface on instance. It is only
	// called when the mode has VulkanPresent.
	VulkanSurface(instance vk.Instance) (vk.Surface, error)
	VulkanInstanceExtensions() []string
	VulkanDeviceExtensions() []string
	// VulkanDebug registers a debug report callback that logs through the
	// platform logger.
	VulkanDebug() bool

	// DECORATORS:
	// ApplicationSwapchainDimensions
	// ApplicationVulkanLayers
}

type ApplicationSwapchainDimensions interface {
	VulkanSwapchainDimensions() SwapchainDimensions
}

type ApplicationVulkanLayers interface {
	VulkanLayers() []string
}

var (
	DefaultVulkanAppVersion = vk.MakeVersion(1, 0, 0)
	DefaultVulkanAPIVersion = vk.MakeVersion(1, 0, 0)
	DefaultVulkanMode       = VulkanGraphics | VulkanPresent
)

// SwapchainDimensions describes the size and format of the swapchain.
type SwapchainDimensions struct {
	// Width of the swapchain, used when the surface leaves the extent to
	// the application.
	Width uint32
	// Height of the swapchain.
	Height uint32
	// Format is the preferred pixel format. The first format reported by
	// the surface is used when it is not available.
	Format vk.Format
	// Images is the desired number of swapchain images.
	Images uint32
}

// DefaultSwapchainDimensions is used when the application has no
// ApplicationSwapchainDimensions decorator.
var DefaultSwapchainDimensions = SwapchainDimensions{
	Width:  640,
	Height: 480,
	Format: vk.FormatB8g8r8a8Unorm,
	Images: 3,
}
