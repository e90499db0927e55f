package vkshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the file and environment configuration of the capture tools.
type Config struct {
	// OutputDir receives the captured frames.
	OutputDir string `yaml:"output_dir"`
	// FilePattern names a frame; %d is replaced by the frame number.
	FilePattern string `yaml:"file_pattern"`
	// Frames is the number of frames to present, 0 runs until the window closes.
	Frames int `yaml:"frames"`
	// CaptureEvery captures every n-th presented frame.
	CaptureEvery int `yaml:"capture_every"`

	SwizzleFormats []string `yaml:"swizzle_formats"`
	ForceCopy      bool     `yaml:"force_copy"`
	MemoryTag      string   `yaml:"memory_tag"`
	// MemoryCSV is where the allocation report is written on exit.
	MemoryCSV string `yaml:"memory_csv"`

	LogFile    string `yaml:"log_file"`
	Dev        bool   `yaml:"dev"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Validation bool   `yaml:"validation"`
}

// DefaultConfig is used for every key the file and environment leave unset.
func DefaultConfig() Config {
	return Config{
		OutputDir:      "screenshots",
		FilePattern:    "frame%d.ppm",
		Frames:         300,
		CaptureEvery:   60,
		SwizzleFormats: DefaultSwizzleFormats().Names(),
		MemoryTag:      DefaultMemoryTag,
		MemoryCSV:      "memory.csv",
		Width:          800,
		Height:         600,
	}
}

// LoadConfig reads a YAML file over DefaultConfig. A missing path yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("vkshot: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("vkshot: parse config %s: %w", path, err)
	}
	return cfg, cfg.Check()
}

// ApplyEnv overrides cfg from VKSHOT_* variables. Values that do not parse
// are ignored.
func (cfg *Config) ApplyEnv() {
	cfg.OutputDir = envString("VKSHOT_OUTPUT_DIR", cfg.OutputDir)
	cfg.FilePattern = envString("VKSHOT_FILE_PATTERN", cfg.FilePattern)
	cfg.Frames = envInt("VKSHOT_FRAMES", cfg.Frames)
	cfg.CaptureEvery = envInt("VKSHOT_CAPTURE_EVERY", cfg.CaptureEvery)
	if v := os.Getenv("VKSHOT_SWIZZLE_FORMATS"); v != "" {
		cfg.SwizzleFormats = splitList(v)
	}
	cfg.ForceCopy = envBool("VKSHOT_FORCE_COPY", cfg.ForceCopy)
	cfg.MemoryTag = envString("VKSHOT_MEMORY_TAG", cfg.MemoryTag)
	cfg.MemoryCSV = envString("VKSHOT_MEMORY_CSV", cfg.MemoryCSV)
	cfg.LogFile = envString("VKSHOT_LOG_FILE", cfg.LogFile)
	cfg.Dev = envBool("VKSHOT_DEV", cfg.Dev)
	cfg.Width = envInt("VKSHOT_WIDTH", cfg.Width)
	cfg.Height = envInt("VKSHOT_HEIGHT", cfg.Height)
	cfg.Validation = envBool("VKSHOT_VALIDATION", cfg.Validation)
}

// Check rejects values no run can use.
func (cfg Config) Check() error {
	switch {
	case cfg.Width <= 0 || cfg.Height <= 0:
		return fmt.Errorf("vkshot: window size %dx%d", cfg.Width, cfg.Height)
	case cfg.CaptureEvery <= 0:
		return fmt.Errorf("vkshot: capture_every must be positive, got %d", cfg.CaptureEvery)
	case cfg.Frames < 0:
		return fmt.Errorf("vkshot: negative frame count %d", cfg.Frames)
	case !strings.Contains(cfg.FilePattern, "%d"):
		return fmt.Errorf("vkshot: file_pattern %q has no %%d", cfg.FilePattern)
	}
	_, err := ParseFormatSet(cfg.SwizzleFormats)
	return err
}

// FramePath is the output path of frame n.
func (cfg Config) FramePath(n int) string {
	return filepath.Join(cfg.OutputDir, fmt.Sprintf(cfg.FilePattern, n))
}

// Options turns the capture settings into Capturer options.
func (cfg Config) Options() ([]Option, error) {
	set, err := ParseFormatSet(cfg.SwizzleFormats)
	if err != nil {
		return nil, err
	}
	return []Option{
		WithSwizzleFormats(set),
		WithForceCopy(cfg.ForceCopy),
		WithMemoryTag(cfg.MemoryTag),
	}, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
