// Renders a full-screen procedural gradient through a Vulkan presentation
// chain, surviving resizes and transient driver errors until the window is
// closed.
package main

import (
	"log"
	"runtime"

	"github.com/vulkan-go/vulkan"

	"github.com/gadunga/vulkano-bufferless/src/platform"
	"github.com/gadunga/vulkano-bufferless/src/render"
)

const (
	title = "gradient"

	// Extent hint used only when the surface reports an indeterminate
	// current extent.
	initialWidth  = 1024
	initialHeight = 768
)

func init() {
	// GLFW event processing must stay on the main OS thread.
	runtime.LockOSThread()
}

func main() {
	window, err := platform.New(title, initialWidth, initialHeight)
	if err != nil {
		log.Fatalf("creating window: %s", err)
	}
	defer window.Destroy()

	vulkan.SetGetInstanceProcAddr(window.ProcAddr())
	if err := vulkan.Init(); err != nil {
		log.Fatalf("initializing vulkan: %s", err)
	}

	ctx, err := render.NewContext(window, title)
	if err != nil {
		log.Fatalf("creating device context: %s", err)
	}
	defer ctx.Destroy()

	log.Printf("Using device: %s (type: %s)", ctx.GPUName(), ctx.GPUTypeName())

	hint := vulkan.Extent2D{Width: initialWidth, Height: initialHeight}
	chain, err := render.NewSwapchain(ctx, hint)
	if err != nil {
		log.Fatalf("creating swapchain: %s", err)
	}
	defer chain.Destroy()

	pipeline, err := render.NewPipeline(ctx, chain.Format())
	if err != nil {
		log.Fatalf("creating pipeline: %s", err)
	}
	defer pipeline.Destroy()

	targets := render.NewTargetSet(ctx, pipeline.RenderPass())
	defer targets.Destroy()

	sync, err := render.NewFrameSync(ctx.Device())
	if err != nil {
		log.Fatalf("creating frame sync: %s", err)
	}
	defer sync.Destroy()

	executor := render.NewFrameExecutor(render.ExecutorConfig{
		Platform: window,
		Surface:  render.NewSurfaceInfo(ctx, window),
		Queue:    ctx.Queue(),
		Chain:    chain,
		Targets:  targets,
		Frames:   pipeline,
		Sync:     sync,
	})

	if err := executor.Run(); err != nil {
		log.Fatalf("presentation loop: %s", err)
	}

	// Outstanding GPU work must drain before the deferred teardown runs.
	ctx.WaitIdle()
}
