package vkshot

import (
	"fmt"
	"sort"
	"strings"

	vk "github.com/vulkan-go/vulkan"
)

// StagingFormat is the fixed format of the host-visible staging image.
const StagingFormat = vk.FormatR8g8b8a8Unorm

// formatNames maps the Vulkan spelling (without the VK_FORMAT_ prefix) of the
// 32-bit color formats a swapchain can hand out.
var formatNames = map[string]vk.Format{
	"R8G8B8A8_UNORM":           vk.FormatR8g8b8a8Unorm,
	"R8G8B8A8_SNORM":           vk.FormatR8g8b8a8Snorm,
	"R8G8B8A8_USCALED":         vk.FormatR8g8b8a8Uscaled,
	"R8G8B8A8_SSCALED":         vk.FormatR8g8b8a8Sscaled,
	"R8G8B8A8_UINT":            vk.FormatR8g8b8a8Uint,
	"R8G8B8A8_SINT":            vk.FormatR8g8b8a8Sint,
	"R8G8B8A8_SRGB":            vk.FormatR8g8b8a8Srgb,
	"B8G8R8A8_UNORM":           vk.FormatB8g8r8a8Unorm,
	"B8G8R8A8_SNORM":           vk.FormatB8g8r8a8Snorm,
	"B8G8R8A8_USCALED":         vk.FormatB8g8r8a8Uscaled,
	"B8G8R8A8_SSCALED":         vk.FormatB8g8r8a8Sscaled,
	"B8G8R8A8_UINT":            vk.FormatB8g8r8a8Uint,
	"B8G8R8A8_SINT":            vk.FormatB8g8r8a8Sint,
	"B8G8R8A8_SRGB":            vk.FormatB8g8r8a8Srgb,
	"A8B8G8R8_UNORM_PACK32":    vk.FormatA8b8g8r8UnormPack32,
	"A8B8G8R8_SNORM_PACK32":    vk.FormatA8b8g8r8SnormPack32,
	"A8B8G8R8_UINT_PACK32":     vk.FormatA8b8g8r8UintPack32,
	"A8B8G8R8_SINT_PACK32":     vk.FormatA8b8g8r8SintPack32,
	"A8B8G8R8_SRGB_PACK32":     vk.FormatA8b8g8r8SrgbPack32,
	"A2R10G10B10_UNORM_PACK32": vk.FormatA2r10g10b10UnormPack32,
	"A2B10G10R10_UNORM_PACK32": vk.FormatA2b10g10r10UnormPack32,
	"B10G11R11_UFLOAT_PACK32":  vk.FormatB10g11r11UfloatPack32,
	"R16G16B16A16_SFLOAT":      vk.FormatR16g16b16a16Sfloat,
	"R16G16B16A16_UNORM":       vk.FormatR16g16b16a16Unorm,
}

// texelBytes gives the texel size of the formats known to formatNames.
// A raw copy into the staging image needs a 4 byte texel.
func texelBytes(f vk.Format) int {
	switch f {
	case vk.FormatR16g16b16a16Sfloat, vk.FormatR16g16b16a16Unorm:
		return 8
	}
	for _, known := range formatNames {
		if known == f {
			return 4
		}
	}
	return 0
}

// ParseFormat resolves a format name such as "B8G8R8A8_SRGB" or
// "VK_FORMAT_B8G8R8A8_SRGB". Case is ignored.
func ParseFormat(name string) (vk.Format, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "VK_FORMAT_")
	if f, ok := formatNames[key]; ok {
		return f, nil
	}
	return vk.FormatUndefined, fmt.Errorf("vkshot: unknown format %q", name)
}

// FormatName returns the Vulkan spelling of f, or its number when unknown.
func FormatName(f vk.Format) string {
	for name, known := range formatNames {
		if known == f {
			return name
		}
	}
	return fmt.Sprintf("FORMAT(%d)", int32(f))
}

// FormatSet is a set of formats, used for the BGR-ordered family whose bytes
// are swizzled when the raw copy path is taken.
type FormatSet map[vk.Format]struct{}

// NewFormatSet returns a set holding formats.
func NewFormatSet(formats ...vk.Format) FormatSet {
	s := make(FormatSet, len(formats))
	for _, f := range formats {
		s[f] = struct{}{}
	}
	return s
}

// ParseFormatSet builds a set from format names.
func ParseFormatSet(names []string) (FormatSet, error) {
	s := make(FormatSet, len(names))
	for _, name := range names {
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		s[f] = struct{}{}
	}
	return s, nil
}

// Has reports whether f is in the set.
func (s FormatSet) Has(f vk.Format) bool {
	_, ok := s[f]
	return ok
}

// Names lists the set in sorted order.
func (s FormatSet) Names() []string {
	names := make([]string, 0, len(s))
	for f := range s {
		names = append(names, FormatName(f))
	}
	sort.Strings(names)
	return names
}

// DefaultSwizzleFormats is the BGR family recognized out of the box.
func DefaultSwizzleFormats() FormatSet {
	return NewFormatSet(
		vk.FormatB8g8r8a8Srgb,
		vk.FormatB8g8r8a8Unorm,
		vk.FormatB8g8r8a8Snorm,
	)
}

// Format enum ranges of the Vulkan registry that cannot be captured.
const (
	firstDepthFormat      = vk.FormatD16Unorm
	lastDepthFormat       = vk.FormatD32SfloatS8Uint
	firstCompressedFormat = vk.FormatBc1RgbUnormBlock
	lastCompressedFormat  = vk.FormatAstc12x12SrgbBlock

	// VK_FORMAT_G8B8G8R8_422_UNORM .. VK_FORMAT_G16_B16_R16_3PLANE_444_UNORM
	firstYcbcrFormat vk.Format = 1000156000
	lastYcbcrFormat  vk.Format = 1000156033
	// VK_FORMAT_PVRTC1_2BPP_UNORM_BLOCK_IMG .. VK_FORMAT_PVRTC2_4BPP_SRGB_BLOCK_IMG
	firstPvrtcFormat vk.Format = 1000054000
	lastPvrtcFormat  vk.Format = 1000054007
	// VK_FORMAT_ASTC_4x4_SFLOAT_BLOCK .. VK_FORMAT_ASTC_12x12_SFLOAT_BLOCK
	firstAstcHdrFormat vk.Format = 1000066000
	lastAstcHdrFormat  vk.Format = 1000066013
)

// capturable reports whether a source of format f can be blitted or copied
// into the staging image at all.
func capturable(f vk.Format) error {
	switch {
	case f == vk.FormatUndefined:
		return fmt.Errorf("%w: undefined source format", ErrInvalidRequest)
	case f >= firstDepthFormat && f <= lastDepthFormat:
		return fmt.Errorf("%w: depth/stencil source format %s", ErrInvalidRequest, FormatName(f))
	case f >= firstCompressedFormat && f <= lastCompressedFormat,
		f >= firstPvrtcFormat && f <= lastPvrtcFormat,
		f >= firstAstcHdrFormat && f <= lastAstcHdrFormat:
		return fmt.Errorf("%w: compressed source format %s", ErrInvalidRequest, FormatName(f))
	case f >= firstYcbcrFormat && f <= lastYcbcrFormat:
		return fmt.Errorf("%w: multi-planar source format %s", ErrInvalidRequest, FormatName(f))
	}
	return nil
}
