package vkshot

import (
	"errors"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Platform owns the instance, device and queues, plus the swapchain and its
// per-frame resources when the application presents.
type Platform struct {
	logger *zap.Logger

	instance vk.Instance
	gpu      vk.PhysicalDevice
	device   vk.Device
	surface  vk.Surface

	debugCallback vk.DebugReportCallback

	graphicsQueueIndex uint32
	presentQueueIndex  uint32
	graphicsQueue      vk.Queue
	presentQueue       vk.Queue

	gpuProperties    vk.PhysicalDeviceProperties
	memoryProperties vk.PhysicalDeviceMemoryProperties

	swapchain *Swapchain
	frames    *frameRing
}

// NewPlatform creates the Vulkan objects app asks for. vk.Init must have
// been called. A nil logger discards everything.
func NewPlatform(app Application, logger *zap.Logger) (p *Platform, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p = &Platform{logger: logger.Named("vulkan")}
	created := p
	defer func() {
		if err != nil {
			created.Destroy()
			p = nil
		}
	}()
	defer checkErr(&err)

	// Select instance extensions
	actualInstanceExtensions, err := InstanceExtensions()
	orPanic(err)
	instanceExtensions, missing := checkExisting(actualInstanceExtensions, app.VulkanInstanceExtensions())
	if missing > 0 {
		p.logger.Warn("missing required instance extensions", zap.Int("missing", missing))
	}
	p.logger.Debug("enabling instance extensions", zap.Int("count", len(instanceExtensions)))

	// Select instance layers
	var validationLayers []string
	if iface, ok := app.(ApplicationVulkanLayers); ok {
		actualValidationLayers, err := ValidationLayers()
		orPanic(err)
		validationLayers, missing = checkExisting(actualValidationLayers, iface.VulkanLayers())
		if missing > 0 {
			p.logger.Warn("missing required validation layers", zap.Int("missing", missing))
		}
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(app.VulkanAPIVersion()),
			ApplicationVersion: uint32(app.VulkanAppVersion()),
			PApplicationName:   safeString(app.VulkanAppName()),
			PEngineName:        "vkshot\x00",
		},
		EnabledExtensionCount:   uint32(len(instanceExtensions)),
		PpEnabledExtensionNames: instanceExtensions,
		EnabledLayerCount:       uint32(len(validationLayers)),
		PpEnabledLayerNames:     validationLayers,
	}, nil, &instance)
	orPanic(NewError(ret))
	p.instance = instance
	vk.InitInstance(instance)

	if app.VulkanDebug() {
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: p.debugReport,
		}, nil, &p.debugCallback)
		orPanic(NewError(ret))
		p.logger.Debug("debug report callback enabled")
	}

	// Find a suitable GPU
	var gpuCount uint32
	ret = vk.EnumeratePhysicalDevices(p.instance, &gpuCount, nil)
	orPanic(NewError(ret))
	if gpuCount == 0 {
		return nil, errors.New("vulkan error: no GPU devices found")
	}
	gpus := make([]vk.PhysicalDevice, gpuCount)
	ret = vk.EnumeratePhysicalDevices(p.instance, &gpuCount, gpus)
	orPanic(NewError(ret))
	// multiple GPUs not supported
	p.gpu = gpus[0]
	vk.GetPhysicalDeviceProperties(p.gpu, &p.gpuProperties)
	p.gpuProperties.Deref()
	vk.GetPhysicalDeviceMemoryProperties(p.gpu, &p.memoryProperties)
	p.memoryProperties.Deref()
	p.logger.Info("selected GPU",
		zap.String("name", vk.ToString(p.gpuProperties.DeviceName[:])),
		zap.Uint32("devices", gpuCount))

	mode := app.VulkanMode()
	requiredDeviceExtensions := app.VulkanDeviceExtensions()
	if mode.Has(VulkanPresent) {
		requiredDeviceExtensions = mergeNames([]string{"VK_KHR_swapchain"}, requiredDeviceExtensions)
	}
	actualDeviceExtensions, err := DeviceExtensions(p.gpu)
	orPanic(err)
	deviceExtensions, missing := checkExisting(actualDeviceExtensions, requiredDeviceExtensions)
	if missing > 0 {
		p.logger.Warn("missing required device extensions", zap.Int("missing", missing))
	}
	p.logger.Debug("enabling device extensions", zap.Int("count", len(deviceExtensions)))

	if mode.Has(VulkanPresent) {
		p.surface, err = app.VulkanSurface(p.instance)
		orPanic(err)
		if p.surface == vk.NullSurface {
			return nil, errors.New("vulkan error: surface required but not provided")
		}
	}

	props := queueFamilyProperties(p.gpu)
	if len(props) == 0 {
		return nil, errors.New("vulkan error: no queue families found on GPU 0")
	}
	p.graphicsQueueIndex, p.presentQueueIndex, err = selectQueueFamilies(props,
		mode.queueFlags(), mode.Has(VulkanPresent), p.supportsPresent)
	orPanic(err)

	queueInfos := queueCreateInfos(p.graphicsQueueIndex, p.presentQueueIndex)
	var device vk.Device
	ret = vk.CreateDevice(p.gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
		EnabledLayerCount:       uint32(len(validationLayers)),
		PpEnabledLayerNames:     validationLayers,
	}, nil, &device)
	orPanic(NewError(ret))
	p.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(p.device, p.graphicsQueueIndex, 0, &queue)
	p.graphicsQueue = queue
	p.presentQueue = queue
	if p.HasSeparatePresentQueue() {
		var presentQueue vk.Queue
		vk.GetDeviceQueue(p.device, p.presentQueueIndex, 0, &presentQueue)
		p.presentQueue = presentQueue
	}

	if mode.Has(VulkanPresent) {
		dimensions := DefaultSwapchainDimensions
		if iface, ok := app.(ApplicationSwapchainDimensions); ok {
			dimensions = iface.VulkanSwapchainDimensions()
		}
		p.swapchain, err = newSwapchain(p.gpu, p.device, p.surface, dimensions,
			[]uint32{p.graphicsQueueIndex, p.presentQueueIndex}, p.logger)
		orPanic(err)
		p.frames, err = newFrameRing(p.device, p.graphicsQueueIndex, len(p.swapchain.Images()))
		orPanic(err)
	}
	return p, nil
}

func (p *Platform) supportsPresent(family uint32) bool {
	var supported vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(p.gpu, family, p.surface, &supported)
	return supported.B()
}

func (p *Platform) MemoryProperties() vk.PhysicalDeviceMemoryProperties {
	return p.memoryProperties
}

func (p *Platform) PhysicalDeviceProperties() vk.PhysicalDeviceProperties {
	return p.gpuProperties
}

func (p *Platform) PhysicalDevice() vk.PhysicalDevice {
	return p.gpu
}

func (p *Platform) Surface() vk.Surface {
	return p.surface
}

func (p *Platform) GraphicsQueueFamilyIndex() uint32 {
	return p.graphicsQueueIndex
}

func (p *Platform) PresentQueueFamilyIndex() uint32 {
	return p.presentQueueIndex
}

// HasSeparatePresentQueue is true when PresentQueueFamilyIndex differs from GraphicsQueueFamilyIndex.
func (p *Platform) HasSeparatePresentQueue() bool {
	return p.presentQueueIndex != p.graphicsQueueIndex
}

func (p *Platform) GraphicsQueue() vk.Queue {
	return p.graphicsQueue
}

func (p *Platform) PresentQueue() vk.Queue {
	return p.presentQueue
}

func (p *Platform) Instance() vk.Instance {
	return p.instance
}

func (p *Platform) Device() vk.Device {
	return p.device
}

// Swapchain is nil unless the application mode has VulkanPresent.
func (p *Platform) Swapchain() *Swapchain {
	return p.swapchain
}

// WaitIdle blocks until the device has finished all submitted work.
func (p *Platform) WaitIdle() error {
	if p.device == nil {
		return nil
	}
	return NewError(vk.DeviceWaitIdle(p.device))
}

// Destroy releases everything NewPlatform created. It is safe on a partially
// initialized platform.
func (p *Platform) Destroy() {
	if p.device != nil {
		vk.DeviceWaitIdle(p.device)
	}
	if p.frames != nil {
		p.frames.Destroy()
		p.frames = nil
	}
	if p.swapchain != nil {
		p.swapchain.Destroy()
		p.swapchain = nil
	}
	if p.surface != vk.NullSurface {
		vk.DestroySurface(p.instance, p.surface, nil)
		p.surface = vk.NullSurface
	}
	if p.device != nil {
		vk.DestroyDevice(p.device, nil)
		p.device = nil
	}
	if p.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(p.instance, p.debugCallback, nil)
		p.debugCallback = vk.NullDebugReportCallback
	}
	if p.instance != nil {
		vk.DestroyInstance(p.instance, nil)
		p.instance = nil
	}
}

func (p *Platform) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	if ce := p.logger.Check(debugReportLevel(flags), pMessage); ce != nil {
		ce.Write(
			zap.String("layer", pLayerPrefix),
			zap.Int32("code", messageCode),
			zap.String("kind", debugReportKind(flags)),
		)
	}
	return vk.Bool32(vk.False)
}

// debugReportLevel maps the most severe report flag to a log level.
func debugReportLevel(flags vk.DebugReportFlags) zapcore.Level {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		return zapcore.ErrorLevel
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		return zapcore.WarnLevel
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func debugReportKind(flags vk.DebugReportFlags) string {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		return "error"
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		return "warning"
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		return "performance"
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		return "information"
	default:
		return "debug"
	}
}
