// Package platform implements the render.Platform contract on GLFW. It is
// the only package that talks to the window system; everything it reports is
// reduced to what the presentation loop needs.
package platform

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/vulkan-go/vulkan"

	"github.com/gadunga/vulkano-bufferless/src/render"
)

// Window wraps a GLFW window created without a client API so the surface
// belongs to Vulkan alone.
type Window struct {
	win     *glfw.Window
	resized bool
}

// New initializes GLFW and creates the window. Must be called from the main
// OS thread, like every other method on Window.
func New(title string, width, height int) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("initializing glfw: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("creating window: %w", err)
	}

	w := &Window{win: win}
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, _, _ int) {
		w.resized = true
	})
	return w, nil
}

// ProcAddr returns the Vulkan loader entry point for vulkan.SetGetInstanceProcAddr.
func (w *Window) ProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (w *Window) InstanceExtensions() []string {
	extensions := w.win.GetRequiredInstanceExtensions()
	safe := make([]string, len(extensions))
	for i, ext := range extensions {
		safe[i] = ext + "\x00"
	}
	return safe
}

func (w *Window) CreateSurface(instance vulkan.Instance) (vulkan.Surface, error) {
	surface, err := w.win.CreateWindowSurface(instance, nil)
	if err != nil {
		return vulkan.NullSurface, fmt.Errorf("creating window surface: %w", err)
	}
	return vulkan.SurfaceFromPointer(surface), nil
}

func (w *Window) FramebufferSize() (int, int) {
	return w.win.GetFramebufferSize()
}

// PollEvents drains the GLFW queue and reports the reduced events since the
// last call. The resize flag is set from the framebuffer-size callback and
// consumed here.
func (w *Window) PollEvents() render.Events {
	glfw.PollEvents()
	events := render.Events{
		Resized:        w.resized,
		CloseRequested: w.win.ShouldClose(),
	}
	w.resized = false
	return events
}

func (w *Window) ShouldClose() bool {
	return w.win.ShouldClose()
}

func (w *Window) Destroy() {
	w.win.Destroy()
	glfw.Terminate()
}
