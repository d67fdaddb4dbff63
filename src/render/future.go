package render

import (
	"fmt"
	"math"

	"github.com/vulkan-go/vulkan"
)

// FrameSync is the in-flight synchronization tracker: it wraps exactly one
// "previous GPU work has (not yet) finished" token at a time, plus the two
// semaphores a submission is composed with. The token is always replaced,
// never dropped, so CPU writes to shared frame resources stay ordered after
// the GPU's last read of them.
type FrameSync interface {
	// RetireCompleted purges bookkeeping for work already known complete.
	// Never blocks; called once at the top of every iteration.
	RetireCompleted()

	// JoinPrevious orders the upcoming recording after the completion of the
	// current token, blocking only if that work is still in flight.
	JoinPrevious() error

	// ImageReady is the semaphore the chain signals when an acquired image
	// becomes writable; every submission waits on it.
	ImageReady() vulkan.Semaphore

	// RenderDone is the semaphore a submission signals on completion and
	// presentation waits on.
	RenderDone() vulkan.Semaphore

	// Fence is the fence a submission signals; it becomes the next token.
	Fence() vulkan.Fence

	// Adopt marks the just-submitted work as the current in-flight token.
	Adopt()

	// ResetFresh drops a token that can no longer be waited on safely and
	// replaces it with an already-complete one.
	ResetFresh() error

	// Generation counts token replacements since creation.
	Generation() uint64

	Destroy()
}

type flightTracker struct {
	device vulkan.Device

	imageReady vulkan.Semaphore
	renderDone vulkan.Semaphore
	fence      vulkan.Fence

	pending    bool
	generation uint64
}

// NewFrameSync creates a tracker whose initial token is already complete.
func NewFrameSync(device vulkan.Device) (FrameSync, error) {
	t := &flightTracker{device: device}
	if err := t.createObjects(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *flightTracker) createObjects() error {
	semInfo := vulkan.SemaphoreCreateInfo{
		SType: vulkan.StructureTypeSemaphoreCreateInfo,
	}
	if err := NewError(vulkan.CreateSemaphore(t.device, &semInfo, nil, &t.imageReady)); err != nil {
		return fmt.Errorf("creating image-ready semaphore: %w", err)
	}
	if err := NewError(vulkan.CreateSemaphore(t.device, &semInfo, nil, &t.renderDone)); err != nil {
		return fmt.Errorf("creating render-done semaphore: %w", err)
	}

	fenceInfo := vulkan.FenceCreateInfo{
		SType: vulkan.StructureTypeFenceCreateInfo,
	}
	if err := NewError(vulkan.CreateFence(t.device, &fenceInfo, nil, &t.fence)); err != nil {
		return fmt.Errorf("creating in-flight fence: %w", err)
	}
	return nil
}

func (t *flightTracker) RetireCompleted() {
	if !t.pending {
		return
	}
	if vulkan.GetFenceStatus(t.device, t.fence) != vulkan.Success {
		return
	}
	vulkan.ResetFences(t.device, 1, []vulkan.Fence{t.fence})
	t.pending = false
}

func (t *flightTracker) JoinPrevious() error {
	if !t.pending {
		return nil
	}
	fences := []vulkan.Fence{t.fence}
	res := vulkan.WaitForFences(t.device, 1, fences, vulkan.True, math.MaxUint64)
	if err := NewError(res); err != nil {
		return fmt.Errorf("waiting for previous frame: %w", err)
	}
	vulkan.ResetFences(t.device, 1, fences)
	t.pending = false
	return nil
}

func (t *flightTracker) ImageReady() vulkan.Semaphore {
	return t.imageReady
}

func (t *flightTracker) RenderDone() vulkan.Semaphore {
	return t.renderDone
}

func (t *flightTracker) Fence() vulkan.Fence {
	return t.fence
}

func (t *flightTracker) Adopt() {
	t.pending = true
	t.generation++
}

func (t *flightTracker) ResetFresh() error {
	// The failed token's semaphores may hold a signal no one will ever wait
	// for; recreating all three objects is the only state known to be clean.
	vulkan.DeviceWaitIdle(t.device)
	t.Destroy()
	if err := t.createObjects(); err != nil {
		return err
	}
	t.pending = false
	t.generation++
	return nil
}

func (t *flightTracker) Generation() uint64 {
	return t.generation
}

func (t *flightTracker) Destroy() {
	if t.imageReady != vulkan.NullSemaphore {
		vulkan.DestroySemaphore(t.device, t.imageReady, nil)
		t.imageReady = vulkan.NullSemaphore
	}
	if t.renderDone != vulkan.NullSemaphore {
		vulkan.DestroySemaphore(t.device, t.renderDone, nil)
		t.renderDone = vulkan.NullSemaphore
	}
	if t.fence != vulkan.NullFence {
		vulkan.DestroyFence(t.device, t.fence, nil)
		t.fence = vulkan.NullFence
	}
}
