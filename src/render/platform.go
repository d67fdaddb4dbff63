package render

import (
	"github.com/vulkan-go/vulkan"
)

// Events is the reduced view of a window system's event queue. Anything that
// is not a resize or a close request is dropped at the platform layer.
type Events struct {
	Resized        bool
	CloseRequested bool
}

// Platform abstracts the window system the presentation chain targets. The
// render package never talks to a windowing library directly; it only needs a
// surface, the framebuffer size, and resize/close notifications.
type Platform interface {
	// InstanceExtensions returns the instance extensions the window system
	// requires, each NUL-terminated for the Vulkan loader.
	InstanceExtensions() []string

	// CreateSurface creates a presentable surface on the given instance.
	CreateSurface(instance vulkan.Instance) (vulkan.Surface, error)

	// FramebufferSize returns the current framebuffer size in pixels. Used
	// only when the surface reports an indeterminate current extent.
	FramebufferSize() (width, height int)

	// PollEvents drains pending window events and reduces them.
	PollEvents() Events

	// ShouldClose reports whether the window has been asked to close.
	ShouldClose() bool
}
