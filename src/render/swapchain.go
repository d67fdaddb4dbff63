package render

import (
	"fmt"
	"math"

	"github.com/vulkan-go/vulkan"
)

// Swapchain is the presentable-image chain negotiated against the context
// surface. The image set, format, and extent are constant for one chain
// generation; Recreate replaces the whole generation rather than patching it.
type Swapchain struct {
	ctx *Context

	handle      vulkan.Swapchain
	images      []vulkan.Image
	format      vulkan.Format
	colorSpace  vulkan.ColorSpace
	presentMode vulkan.PresentMode
	extent      vulkan.Extent2D
}

// NewSwapchain negotiates a chain against the surface capabilities: the
// minimum image count the surface allows, the first supported surface format
// and composite alpha mode, and strict FIFO presentation so frames appear in
// submission order without tearing. hint is used only when the surface
// reports an indeterminate current extent, clamped to the supported range.
func NewSwapchain(ctx *Context, hint vulkan.Extent2D) (*Swapchain, error) {
	s := &Swapchain{
		ctx:         ctx,
		handle:      vulkan.NullSwapchain,
		presentMode: vulkan.PresentModeFifo,
	}

	format, colorSpace, err := s.pickFormat()
	if err != nil {
		return nil, err
	}
	s.format = format
	s.colorSpace = colorSpace

	if err := s.build(hint, vulkan.NullSwapchain); err != nil {
		return nil, err
	}
	return s, nil
}

// Recreate replaces the chain for a new extent against the same surface.
// Returns ErrUnsupportedExtent when the surface cannot present at extent; the
// previous chain generation is left untouched in that case.
func (s *Swapchain) Recreate(extent vulkan.Extent2D) error {
	caps, err := s.ctx.SurfaceCapabilities()
	if err != nil {
		return err
	}
	if !extentSupported(extent, caps.MinImageExtent, caps.MaxImageExtent) {
		return ErrUnsupportedExtent
	}

	// Old-generation images may still be referenced by queued work; the
	// single-queue model makes a full drain the cheapest correct barrier.
	s.ctx.WaitIdle()

	old := s.handle
	if err := s.build(extent, old); err != nil {
		return err
	}
	if old != vulkan.NullSwapchain {
		vulkan.DestroySwapchain(s.ctx.device, old, nil)
	}
	return nil
}

func (s *Swapchain) build(hint vulkan.Extent2D, old vulkan.Swapchain) error {
	caps, err := s.ctx.SurfaceCapabilities()
	if err != nil {
		return err
	}

	extent := negotiateExtent(caps, hint)
	imageCount := negotiateImageCount(caps)
	alpha := pickCompositeAlpha(vulkan.CompositeAlphaFlagBits(caps.SupportedCompositeAlpha))

	createInfo := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          s.ctx.surface,
		MinImageCount:    imageCount,
		ImageFormat:      s.format,
		ImageColorSpace:  s.colorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		ImageSharingMode: vulkan.SharingModeExclusive,
		PreTransform:     vulkan.SurfaceTransformIdentityBit,
		CompositeAlpha:   alpha,
		PresentMode:      s.presentMode,
		Clipped:          vulkan.True,
		OldSwapchain:     old,
	}

	var handle vulkan.Swapchain
	if err := NewError(vulkan.CreateSwapchain(s.ctx.device, &createInfo, nil, &handle)); err != nil {
		return fmt.Errorf("creating swapchain: %w", err)
	}

	var count uint32
	vulkan.GetSwapchainImages(s.ctx.device, handle, &count, nil)
	images := make([]vulkan.Image, count)
	if err := NewError(vulkan.GetSwapchainImages(s.ctx.device, handle, &count, images)); err != nil {
		vulkan.DestroySwapchain(s.ctx.device, handle, nil)
		return fmt.Errorf("fetching swapchain images: %w", err)
	}

	s.handle = handle
	s.images = images
	s.extent = extent
	return nil
}

func (s *Swapchain) pickFormat() (vulkan.Format, vulkan.ColorSpace, error) {
	var count uint32
	res := vulkan.GetPhysicalDeviceSurfaceFormats(s.ctx.gpu, s.ctx.surface, &count, nil)
	if err := NewError(res); err != nil {
		return 0, 0, fmt.Errorf("counting surface formats: %w", err)
	}
	if count == 0 {
		return 0, 0, fmt.Errorf("surface reports no formats")
	}

	formats := make([]vulkan.SurfaceFormat, count)
	res = vulkan.GetPhysicalDeviceSurfaceFormats(s.ctx.gpu, s.ctx.surface, &count, formats)
	if err := NewError(res); err != nil {
		return 0, 0, fmt.Errorf("fetching surface formats: %w", err)
	}
	formats[0].Deref()

	// FormatUndefined in a one-entry list means the surface takes anything.
	if formats[0].Format == vulkan.FormatUndefined {
		return vulkan.FormatB8g8r8a8Unorm, formats[0].ColorSpace, nil
	}
	return formats[0].Format, formats[0].ColorSpace, nil
}

// Acquire blocks until the display frees a presentable image, then returns
// its index. imageReady is signaled once the image may be written. outdated
// reports the chain no longer matches the surface and must be recreated
// before any work is submitted.
func (s *Swapchain) Acquire(imageReady vulkan.Semaphore) (image int, outdated bool, err error) {
	var index uint32
	res := vulkan.AcquireNextImage(
		s.ctx.device, s.handle, math.MaxUint64, imageReady, vulkan.NullFence, &index,
	)
	switch {
	case res == vulkan.ErrorOutOfDate:
		return 0, true, nil
	case res == vulkan.Suboptimal:
		// Still presentable; treat as a normal acquisition.
	case IsError(res):
		return 0, false, NewError(res)
	}
	return int(index), false, nil
}

// Present queues image for display once renderDone signals. outdated has the
// same meaning as in Acquire.
func (s *Swapchain) Present(queue vulkan.Queue, image int, renderDone vulkan.Semaphore) (outdated bool, err error) {
	presentInfo := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{renderDone},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{s.handle},
		PImageIndices:      []uint32{uint32(image)},
	}

	res := vulkan.QueuePresent(queue, &presentInfo)
	switch {
	case res == vulkan.ErrorOutOfDate:
		return true, nil
	case res == vulkan.Suboptimal:
		return false, nil
	case IsError(res):
		return false, NewError(res)
	}
	return false, nil
}

func (s *Swapchain) Images() []vulkan.Image {
	return s.images
}

func (s *Swapchain) Format() vulkan.Format {
	return s.format
}

func (s *Swapchain) Extent() vulkan.Extent2D {
	return s.extent
}

func (s *Swapchain) Destroy() {
	if s.handle != vulkan.NullSwapchain {
		vulkan.DestroySwapchain(s.ctx.device, s.handle, nil)
		s.handle = vulkan.NullSwapchain
	}
	s.images = nil
}

// negotiateExtent returns the extent a new chain generation should use: the
// surface's current extent when it is deterministic, otherwise hint clamped
// to the supported range.
func negotiateExtent(caps vulkan.SurfaceCapabilities, hint vulkan.Extent2D) vulkan.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return clampExtent(hint, caps.MinImageExtent, caps.MaxImageExtent)
}

func clampExtent(e, min, max vulkan.Extent2D) vulkan.Extent2D {
	return vulkan.Extent2D{
		Width:  clampUint32(e.Width, min.Width, max.Width),
		Height: clampUint32(e.Height, min.Height, max.Height),
	}
}

func clampUint32(v, min, max uint32) uint32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func extentSupported(e, min, max vulkan.Extent2D) bool {
	if e.Width == 0 || e.Height == 0 {
		return false
	}
	return e.Width >= min.Width && e.Width <= max.Width &&
		e.Height >= min.Height && e.Height <= max.Height
}

// negotiateImageCount asks for the minimum the surface supports; FIFO
// guarantees eventual availability regardless of the depth granted.
func negotiateImageCount(caps vulkan.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// pickCompositeAlpha returns the first supported composite alpha mode, in the
// order the Vulkan spec enumerates them.
func pickCompositeAlpha(supported vulkan.CompositeAlphaFlagBits) vulkan.CompositeAlphaFlagBits {
	modes := []vulkan.CompositeAlphaFlagBits{
		vulkan.CompositeAlphaOpaqueBit,
		vulkan.CompositeAlphaPreMultipliedBit,
		vulkan.CompositeAlphaPostMultipliedBit,
		vulkan.CompositeAlphaInheritBit,
	}
	for _, mode := range modes {
		if supported&mode != 0 {
			return mode
		}
	}
	return vulkan.CompositeAlphaOpaqueBit
}
