package main

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkshot"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// window is the glfw window the demo presents to. It describes the Vulkan
// setup the platform should create for it.
type window struct {
	handle *glfw.Window
	cfg    vkshot.Config
}

func newWindow(cfg vkshot.Config) (*window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.Visible, glfw.True)
	handle, err := glfw.CreateWindow(cfg.Width, cfg.Height, "vkshot", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	return &window{handle: handle, cfg: cfg}, nil
}

func (w *window) ShouldClose() bool {
	return w.handle.ShouldClose()
}

func (w *window) Destroy() {
	w.handle.Destroy()
}

func (w *window) VulkanAPIVersion() vk.Version { return vkshot.DefaultVulkanAPIVersion }

func (w *window) VulkanAppVersion() vk.Version { return vkshot.DefaultVulkanAppVersion }

func (w *window) VulkanAppName() string { return "vkshot" }

func (w *window) VulkanMode() vkshot.VulkanMode { return vkshot.DefaultVulkanMode }

func (w *window) VulkanSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := w.handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("create window surface: %w", err)
	}
	return vk.SurfaceFromPointer(ptr), nil
}

func (w *window) VulkanInstanceExtensions() []string {
	exts := w.handle.GetRequiredInstanceExtensions()
	if w.cfg.Validation {
		exts = append(exts, "VK_EXT_debug_report")
	}
	return exts
}

func (w *window) VulkanDeviceExtensions() []string { return nil }

func (w *window) VulkanDebug() bool { return w.cfg.Validation }

func (w *window) VulkanLayers() []string {
	if !w.cfg.Validation {
		return nil
	}
	return []string{validationLayer}
}

func (w *window) VulkanSwapchainDimensions() vkshot.SwapchainDimensions {
	width, height := w.handle.GetFramebufferSize()
	dims := vkshot.DefaultSwapchainDimensions
	dims.Width = uint32(width)
	dims.Height = uint32(height)
	return dims
}
