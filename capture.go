package vkshot

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

// Request describes one capture. It is not modified by the capture.
type Request struct {
	Device         vk.Device
	PhysicalDevice vk.PhysicalDevice
	Commands       Commander
	Queue          vk.Queue

	// Image is the presentable source image, in ImageLayoutPresentSrc.
	Image  vk.Image
	Format vk.Format
	Width  uint32
	Height uint32

	// Path of the PPM file to write.
	Path string
}

// Validate rejects requests that no copy strategy can serve.
func (r Request) Validate() error {
	switch {
	case r.Width == 0 || r.Height == 0:
		return fmt.Errorf("%w: empty extent %dx%d", ErrInvalidRequest, r.Width, r.Height)
	case r.Commands == nil:
		return fmt.Errorf("%w: no command collaborator", ErrInvalidRequest)
	case r.Path == "":
		return fmt.Errorf("%w: no output path", ErrInvalidRequest)
	}
	return capturable(r.Format)
}

// AllocationRecorder is notified of the staging allocation and its release.
// memtrack.Tracker implements it.
type AllocationRecorder interface {
	RecordAllocation(mem vk.DeviceMemory, size vk.DeviceSize, memoryTypeIndex uint32, tag string)
	RecordFree(mem vk.DeviceMemory)
}

// DefaultMemoryTag tags staging allocations reported to the recorder.
const DefaultMemoryTag = "screenshot"

// Capturer saves presentable images to PPM files. A Capturer holds no GPU
// resources between calls and may be reused; captures of the same source
// image must not run concurrently.
type Capturer struct {
	driver    Driver
	recorder  AllocationRecorder
	logger    *zap.Logger
	swizzle   FormatSet
	forceCopy bool
	tag       string
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithDriver replaces the Vulkan driver.
func WithDriver(d Driver) Option {
	return func(c *Capturer) { c.driver = d }
}

// WithTracker reports staging allocations to rec.
func WithTracker(rec AllocationRecorder) Option {
	return func(c *Capturer) { c.recorder = rec }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Capturer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSwizzleFormats replaces the BGR-ordered family swizzled on the copy path.
func WithSwizzleFormats(s FormatSet) Option {
	return func(c *Capturer) { c.swizzle = s }
}

// WithForceCopy makes the capability probe report no blit support.
func WithForceCopy(force bool) Option {
	return func(c *Capturer) { c.forceCopy = force }
}

// WithMemoryTag sets the tag of staging allocations.
func WithMemoryTag(tag string) Option {
	return func(c *Capturer) { c.tag = tag }
}

// New returns a Capturer using the Vulkan driver unless overridden.
func New(opts ...Option) *Capturer {
	c := &Capturer{
		driver:  VulkanDriver(),
		logger:  zap.NewNop(),
		swizzle: DefaultSwizzleFormats(),
		tag:     DefaultMemoryTag,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save captures req with a default Capturer.
func Save(req Request) bool {
	return New().Save(req)
}

// Save captures req and reports success. The cause of a failure is logged.
func (c *Capturer) Save(req Request) bool {
	if err := c.Capture(req); err != nil {
		lvl := c.logger.Error
		if errors.Is(err, ErrOutput) || errors.Is(err, ErrInvalidRequest) {
			lvl = c.logger.Warn
		}
		lvl("screenshot failed", zap.String("path", req.Path), zap.Error(err))
		return false
	}
	return true
}

// Capture copies req.Image into a host-visible staging image and writes it
// to req.Path. It blocks until the device has finished the copy. All
// temporary resources are released before it returns, and the source image
// is handed back in ImageLayoutPresentSrc once the transfer was submitted.
func (c *Capturer) Capture(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	log := c.logger.With(
		zap.String("capture", uuid.NewString()),
		zap.String("format", FormatName(req.Format)),
		zap.Uint32("width", req.Width),
		zap.Uint32("height", req.Height),
	)

	capability := probeCapability(c.driver, req.PhysicalDevice, req.Format, c.swizzle, c.forceCopy)
	log.Debug("capability probed",
		zap.Bool("blit", capability.Blit),
		zap.Bool("swizzle", capability.Swizzle))
	if !capability.Blit && texelBytes(req.Format) != 4 {
		return fmt.Errorf("%w: no blit support and %s cannot be copied into %s",
			ErrInvalidRequest, FormatName(req.Format), FormatName(StagingFormat))
	}

	staging, err := newStagingImage(c.driver, req.Commands, req.Device,
		req.Width, req.Height, c.recorder, c.tag)
	if err != nil {
		return err
	}
	defer staging.Release()
	log.Debug("staging image ready",
		zap.Uint64("bytes", uint64(staging.size)),
		zap.Uint32("memory_type", staging.memoryType))

	if err := c.transfer(req, staging, capability); err != nil {
		return err
	}
	if err := c.readback(req, staging, capability); err != nil {
		return err
	}
	log.Info("screenshot saved", zap.String("path", req.Path))
	return nil
}

func (c *Capturer) transfer(req Request, staging *stagingImage, capability Capability) error {
	cmd, err := req.Commands.BeginOneShot()
	if err != nil {
		return fmt.Errorf("%w: begin command buffer: %w", ErrDevice, err)
	}
	recordTransfer(c.driver, cmd, req.Image, staging.image, capability.Blit, req.Width, req.Height)
	if err := req.Commands.FlushOneShot(cmd, req.Queue); err != nil {
		return fmt.Errorf("%w: submit transfer: %w", ErrDevice, err)
	}
	return nil
}
