package render

import (
	"errors"
	"fmt"
	"log"

	"github.com/vulkan-go/vulkan"
)

// FrameOutcome tags the result of one frame iteration.
type FrameOutcome int

const (
	// FramePresented means the frame was submitted and queued for display.
	FramePresented FrameOutcome = iota

	// FrameSwapchainStale means the chain no longer matches the surface (or
	// could not yet be rebuilt) and no frame was presented; the next
	// iteration recreates the chain before acquiring again.
	FrameSwapchainStale

	// FrameDropped means presentation failed for a transient, non-fatal
	// reason; the frame was sacrificed and the loop continues.
	FrameDropped

	// FrameTerminated means a close request was observed; the loop must not
	// run again.
	FrameTerminated
)

func (o FrameOutcome) String() string {
	switch o {
	case FramePresented:
		return "Presented"
	case FrameSwapchainStale:
		return "SwapchainStale"
	case FrameDropped:
		return "Dropped"
	case FrameTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("FrameOutcome(%d)", int(o))
	}
}

// PresentChain is the executor's view of the presentable-image chain.
// *Swapchain implements it.
type PresentChain interface {
	Recreate(extent vulkan.Extent2D) error
	Acquire(imageReady vulkan.Semaphore) (image int, outdated bool, err error)
	Present(queue vulkan.Queue, image int, renderDone vulkan.Semaphore) (outdated bool, err error)
	Images() []vulkan.Image
	Format() vulkan.Format
	Extent() vulkan.Extent2D
}

// RenderTargets is the executor's view of the per-image render-target set.
// *TargetSet implements it.
type RenderTargets interface {
	Rebuild(chain PresentChain) error
	Len() int
	At(image int) vulkan.Framebuffer
}

// FrameRenderer records and submits the GPU work for one frame. *Pipeline
// implements it.
type FrameRenderer interface {
	Submit(target vulkan.Framebuffer, state DynamicState, sync FrameSync) error
}

// SurfaceInfo supplies the extent a rebuilt chain should target.
type SurfaceInfo interface {
	CurrentExtent() (vulkan.Extent2D, error)
}

// FrameExecutor owns all mutable presentation state (chain, target set,
// dynamic viewport state, in-flight tracker, and the staleness flag) and
// advances it one frame per RunFrame call. Everything GPU-facing is reached
// through the collaborator interfaces above, so each step can be exercised
// with injected results.
type FrameExecutor struct {
	platform Platform
	surface  SurfaceInfo
	queue    vulkan.Queue

	chain   PresentChain
	targets RenderTargets
	frames  FrameRenderer
	sync    FrameSync

	state        DynamicState
	stale        bool
	targetsValid bool

	logf func(format string, v ...interface{})
}

// ExecutorConfig wires a FrameExecutor's collaborators.
type ExecutorConfig struct {
	Platform Platform
	Surface  SurfaceInfo
	Queue    vulkan.Queue
	Chain    PresentChain
	Targets  RenderTargets
	Frames   FrameRenderer
	Sync     FrameSync

	// Logf receives soft per-frame errors. Defaults to log.Printf.
	Logf func(format string, v ...interface{})
}

// NewFrameExecutor builds an executor over an already-created chain. The
// target set is populated lazily on the first frame.
func NewFrameExecutor(cfg ExecutorConfig) *FrameExecutor {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &FrameExecutor{
		platform: cfg.Platform,
		surface:  cfg.Surface,
		queue:    cfg.Queue,
		chain:    cfg.Chain,
		targets:  cfg.Targets,
		frames:   cfg.Frames,
		sync:     cfg.Sync,
		state:    NewDynamicState(cfg.Chain.Extent()),
		logf:     logf,
	}
}

// Run iterates RunFrame until a close request or a fatal error.
func (e *FrameExecutor) Run() error {
	for {
		outcome, err := e.RunFrame()
		if err != nil {
			return err
		}
		if outcome == FrameTerminated {
			return nil
		}
	}
}

// RunFrame advances the presentation state machine by one iteration:
// retire completed work, rebuild the chain if stale, wait out the previous
// frame, acquire an image, submit the frame, present, and reconcile errors. A non-nil error is fatal;
// every recoverable condition is folded into the returned outcome.
func (e *FrameExecutor) RunFrame() (FrameOutcome, error) {
	e.sync.RetireCompleted()

	if e.stale {
		ok, err := e.recreateChain()
		if err != nil {
			return FrameSwapchainStale, err
		}
		if !ok {
			// Surface rejected the extent; leave everything in place and
			// retry next iteration. Unbounded by design of the loop caller.
			return e.finish(FrameSwapchainStale)
		}
	}

	if !e.targetsValid {
		if err := e.targets.Rebuild(e.chain); err != nil {
			return FrameSwapchainStale, fmt.Errorf("rebuilding render targets: %w", err)
		}
		e.targetsValid = true
	}

	// The previous submission still waits on the imageReady semaphore until
	// its fence signals; the semaphore must not be handed back to Acquire
	// while that wait is outstanding.
	if err := e.sync.JoinPrevious(); err != nil {
		return FrameSwapchainStale, err
	}

	image, outdated, err := e.chain.Acquire(e.sync.ImageReady())
	if err != nil {
		return FrameSwapchainStale, fmt.Errorf("acquiring image: %w", err)
	}
	if outdated {
		e.stale = true
		return e.finish(FrameSwapchainStale)
	}

	if err := e.frames.Submit(e.targets.At(image), e.state, e.sync); err != nil {
		return FrameSwapchainStale, fmt.Errorf("submitting frame: %w", err)
	}

	outcome := FramePresented
	outdated, err = e.chain.Present(e.queue, image, e.sync.RenderDone())
	switch {
	case outdated:
		e.stale = true
		if rerr := e.sync.ResetFresh(); rerr != nil {
			return FrameSwapchainStale, rerr
		}
		outcome = FrameSwapchainStale
	case err != nil:
		// Driver hiccup; drop the frame and carry on with a clean token.
		e.logf("present failed, dropping frame: %v", err)
		if rerr := e.sync.ResetFresh(); rerr != nil {
			return FrameDropped, rerr
		}
		outcome = FrameDropped
	default:
		e.sync.Adopt()
	}

	return e.finish(outcome)
}

// recreateChain rebuilds the chain at the surface's current extent. ok is
// false when the surface rejected the extent and the caller should retry on
// a later iteration.
func (e *FrameExecutor) recreateChain() (ok bool, err error) {
	extent, err := e.surface.CurrentExtent()
	if err != nil {
		return false, err
	}

	if err := e.chain.Recreate(extent); err != nil {
		if errors.Is(err, ErrUnsupportedExtent) {
			return false, nil
		}
		return false, fmt.Errorf("recreating swapchain: %w", err)
	}

	e.stale = false
	e.targetsValid = false
	e.state = NewDynamicState(e.chain.Extent())
	return true, nil
}

// finish drains window events at the iteration boundary. A resize marks the
// chain stale for the next iteration; a close request terminates immediately,
// overriding the frame outcome.
func (e *FrameExecutor) finish(outcome FrameOutcome) (FrameOutcome, error) {
	events := e.platform.PollEvents()
	if events.Resized {
		e.stale = true
	}
	if events.CloseRequested || e.platform.ShouldClose() {
		return FrameTerminated, nil
	}
	return outcome, nil
}

// State exposes the current dynamic viewport state.
func (e *FrameExecutor) State() DynamicState {
	return e.state
}
