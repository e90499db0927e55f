package vkshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vkshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
output_dir: out
frames: 120
capture_every: 30
swizzle_formats: [B8G8R8A8_UNORM]
force_copy: true
dev: true
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, 120, cfg.Frames)
	assert.Equal(t, 30, cfg.CaptureEvery)
	assert.Equal(t, []string{"B8G8R8A8_UNORM"}, cfg.SwizzleFormats)
	assert.True(t, cfg.ForceCopy)
	assert.True(t, cfg.Dev)
	// untouched keys keep their defaults
	assert.Equal(t, "frame%d.ppm", cfg.FilePattern)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, filepath.Join("out", "frame30.ppm"), cfg.FramePath(30))
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRejects(t *testing.T) {
	for name, body := range map[string]string{
		"bad yaml":      "frames: [",
		"bad format":    "swizzle_formats: [RGB]",
		"zero interval": "capture_every: 0",
		"no verb":       "file_pattern: shot.ppm",
		"bad size":      "width: -1",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vkshot.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VKSHOT_OUTPUT_DIR", "/tmp/shots")
	t.Setenv("VKSHOT_FRAMES", "10")
	t.Setenv("VKSHOT_CAPTURE_EVERY", "not a number")
	t.Setenv("VKSHOT_SWIZZLE_FORMATS", "B8G8R8A8_SRGB, A8B8G8R8_UNORM_PACK32 ,")
	t.Setenv("VKSHOT_FORCE_COPY", "true")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "/tmp/shots", cfg.OutputDir)
	assert.Equal(t, 10, cfg.Frames)
	assert.Equal(t, 60, cfg.CaptureEvery)
	assert.Equal(t, []string{"B8G8R8A8_SRGB", "A8B8G8R8_UNORM_PACK32"}, cfg.SwizzleFormats)
	assert.True(t, cfg.ForceCopy)
	assert.NoError(t, cfg.Check())
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SwizzleFormats = []string{"A8B8G8R8_UNORM_PACK32"}
	cfg.ForceCopy = true
	cfg.MemoryTag = "frames"

	opts, err := cfg.Options()
	require.NoError(t, err)
	c := New(opts...)
	assert.True(t, c.forceCopy)
	assert.Equal(t, "frames", c.tag)
	assert.True(t, c.swizzle.Has(vk.FormatA8b8g8r8UnormPack32))
	assert.False(t, c.swizzle.Has(vk.FormatB8g8r8a8Srgb))

	cfg.SwizzleFormats = []string{"bogus"}
	_, err = cfg.Options()
	assert.Error(t, err)
}
