package vkshot

import (
	"errors"
	"fmt"
	"runtime"

	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRequest marks a capture request rejected before any GPU work.
	ErrInvalidRequest = errors.New("vkshot: invalid capture request")

	// ErrDevice marks a failure reported by the device: image or memory
	// creation, binding, mapping or command submission.
	ErrDevice = errors.New("vkshot: device error")

	// ErrOutput marks an output file that could not be created or written.
	ErrOutput = errors.New("vkshot: output error")
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// NewError converts a Vulkan result into an error, nil on vk.Success.
// The error names the calling function.
func NewError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return fmt.Errorf("vulkan error: %s (%d)", vk.Error(ret).Error(), ret)
	}
	return fmt.Errorf("vulkan error: %s (%d) on %s",
		vk.Error(ret).Error(), ret, runtime.FuncForPC(pc).Name())
}

// Fatal runs the finalizers and exits through the logger when err is non-nil.
func Fatal(logger *zap.Logger, err error, finalizers ...func()) {
	if err == nil {
		return
	}
	for _, fn := range finalizers {
		fn()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Fatal("vkshot: fatal", zap.Error(err))
}

func orPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkErr(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = e
			return
		}
		*err = fmt.Errorf("%+v", v)
	}
}
