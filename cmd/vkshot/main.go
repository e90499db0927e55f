// Command vkshot opens a window, presents an animated clear color and saves
// every n-th presented frame as a PPM file.
//
// Settings come from a YAML file (-config), VKSHOT_* variables and a .env
// file in the working directory. On exit the staging memory report is
// printed and written as CSV.
package main

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/andewx/vkshot"
	"github.com/andewx/vkshot/logging"
	"github.com/andewx/vkshot/memtrack"
)

func init() {
	// glfw and the presentation engine must stay on the main thread
	runtime.LockOSThread()
}

func main() {
	configPath := pflag.StringP("config", "f", "vkshot.yaml", "YAML configuration file")
	pflag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		// the logger is not configured yet
		fmt.Fprintf(os.Stderr, "Warning: .env file not loaded: %v\n", err)
	}

	cfg, err := vkshot.LoadConfig(*configPath)
	if err == nil {
		cfg.ApplyEnv()
		err = cfg.Check()
	}
	logger := logging.New(logging.Options{Dev: cfg.Dev, File: cfg.LogFile})
	defer logger.Sync()
	vkshot.Fatal(logger, err)

	vkshot.Fatal(logger, run(cfg, logger), func() { logger.Sync() })
}

func run(cfg vkshot.Config, logger *zap.Logger) (err error) {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("init glfw: %w", err)
	}
	defer glfw.Terminate()

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return fmt.Errorf("init vulkan: %w", err)
	}

	win, err := newWindow(cfg)
	if err != nil {
		return err
	}
	defer win.Destroy()

	platform, err := vkshot.NewPlatform(win, logger)
	if err != nil {
		return err
	}
	defer platform.Destroy()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	cmds, err := vkshot.NewOneShotCommands(platform.Device(), platform.MemoryProperties(),
		platform.GraphicsQueueFamilyIndex())
	if err != nil {
		return err
	}
	defer cmds.Destroy()

	tracker := memtrack.New()
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	capturer := vkshot.New(append(opts, vkshot.WithLogger(logger), vkshot.WithTracker(tracker))...)

	saved, failed := 0, 0
	for n := 1; cfg.Frames == 0 || n <= cfg.Frames; n++ {
		glfw.PollEvents()
		if win.ShouldClose() {
			break
		}
		frame, err := platform.AcquireFrame()
		if err != nil {
			return err
		}
		if err := platform.ClearFrame(frame, frameColor(n)); err != nil {
			return err
		}
		if n%cfg.CaptureEvery == 0 {
			platform.WaitFrame(frame)
			if capturer.Save(platform.CaptureRequest(frame, cmds, cfg.FramePath(n))) {
				saved++
			} else {
				failed++
			}
		}
		if err := platform.PresentFrame(frame); err != nil {
			return err
		}
	}
	if err := platform.WaitIdle(); err != nil {
		return err
	}
	logger.Info("run finished", zap.Int("saved", saved), zap.Int("failed", failed))

	err = tracker.WriteSummary(os.Stdout)
	if cfg.MemoryCSV != "" {
		err = multierr.Append(err, tracker.SaveCSV(cfg.MemoryCSV))
	}
	return err
}

// frameColor cycles the hue once every 360 frames.
func frameColor(n int) [4]float32 {
	h := float64(n%360) / 60
	x := float32(1 - math.Abs(math.Mod(h, 2)-1))
	switch int(h) {
	case 0:
		return [4]float32{1, x, 0, 1}
	case 1:
		return [4]float32{x, 1, 0, 1}
	case 2:
		return [4]float32{0, 1, x, 1}
	case 3:
		return [4]float32{0, x, 1, 1}
	case 4:
		return [4]float32{x, 0, 1, 1}
	default:
		return [4]float32{1, 0, x, 1}
	}
}
