package fakevk

import vk "github.com/vulkan-go/vulkan"

func texelSize(f vk.Format) int {
	switch f {
	case vk.FormatR8g8b8a8Unorm, vk.FormatR8g8b8a8Srgb, vk.FormatR8g8b8a8Snorm,
		vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb, vk.FormatB8g8r8a8Snorm,
		vk.FormatA8b8g8r8UnormPack32, vk.FormatA8b8g8r8SrgbPack32:
		return 4
	case vk.FormatR16g16b16a16Unorm:
		return 8
	}
	return 0
}

func bgr(f vk.Format) bool {
	switch f {
	case vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb, vk.FormatB8g8r8a8Snorm:
		return true
	}
	return false
}

// encodeTexel stores an RGBA value in f's memory byte order.
func encodeTexel(f vk.Format, c [4]byte, out []byte) {
	switch {
	case f == vk.FormatR16g16b16a16Unorm:
		for i, v := range c {
			// little endian 16-bit unorm, v*257
			out[2*i], out[2*i+1] = v, v
		}
	case bgr(f):
		out[0], out[1], out[2], out[3] = c[2], c[1], c[0], c[3]
	default:
		copy(out, c[:])
	}
}

// decodeTexel is the format conversion a blit performs.
func decodeTexel(f vk.Format, in []byte) ([4]byte, bool) {
	switch {
	case f == vk.FormatR16g16b16a16Unorm:
		return [4]byte{in[1], in[3], in[5], in[7]}, true
	case bgr(f):
		return [4]byte{in[2], in[1], in[0], in[3]}, true
	case texelSize(f) == 4:
		return [4]byte{in[0], in[1], in[2], in[3]}, true
	}
	return [4]byte{}, false
}
