package render

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/vulkan-go/vulkan"
)

// ErrUnsupportedExtent is returned by Swapchain.Recreate when the surface
// rejects the requested size, typically mid-drag or while the window is
// minimized. The caller retries with a corrected extent on a later frame.
var ErrUnsupportedExtent = errors.New("render: surface rejected the requested extent")

func NewError(retVal vulkan.Result) error {
	if retVal != vulkan.Success {
		pc, _, _, ok := runtime.Caller(1)
		if !ok {
			return fmt.Errorf("vulkan error: %w (%d)", vulkan.Error(retVal), retVal)
		}
		frame := newStackFrame(pc)
		return fmt.Errorf("vulkan error: %w (%d) on %s",
			vulkan.Error(retVal), retVal, frame.String())
	}
	return nil
}

func IsError(retVal vulkan.Result) bool {
	return retVal != vulkan.Success
}

func OrPanic(err error, finalizers ...func()) {
	if err != nil {
		for _, fn := range finalizers {
			fn()
		}
		panic(err)
	}
}

func CheckError(err *error) {
	if v := recover(); v != nil {
		*err = fmt.Errorf("%+v", v)
	}
}
