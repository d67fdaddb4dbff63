package render

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulkan-go/vulkan"
)

// callLog records the order of GPU-facing operations across all fakes so
// tests can assert on sequencing, not just counts.
type callLog struct {
	calls []string
}

func (l *callLog) add(name string) {
	l.calls = append(l.calls, name)
}

type acquireResult struct {
	image    int
	outdated bool
	err      error
}

type presentResult struct {
	outdated bool
	err      error
}

type fakeChain struct {
	log    *callLog
	extent vulkan.Extent2D
	images int

	acquireScript  []acquireResult
	presentScript  []presentResult
	recreateScript []error

	acquires  int
	presents  int
	recreates []vulkan.Extent2D
}

func (c *fakeChain) Recreate(extent vulkan.Extent2D) error {
	c.log.add("recreate")
	c.recreates = append(c.recreates, extent)

	var err error
	if len(c.recreateScript) > 0 {
		err, c.recreateScript = c.recreateScript[0], c.recreateScript[1:]
	}
	if err != nil {
		return err
	}
	c.extent = extent
	return nil
}

func (c *fakeChain) Acquire(vulkan.Semaphore) (int, bool, error) {
	c.log.add("acquire")
	c.acquires++

	if len(c.acquireScript) > 0 {
		var r acquireResult
		r, c.acquireScript = c.acquireScript[0], c.acquireScript[1:]
		return r.image, r.outdated, r.err
	}
	return (c.acquires - 1) % c.images, false, nil
}

func (c *fakeChain) Present(_ vulkan.Queue, _ int, _ vulkan.Semaphore) (bool, error) {
	c.log.add("present")
	c.presents++

	if len(c.presentScript) > 0 {
		var r presentResult
		r, c.presentScript = c.presentScript[0], c.presentScript[1:]
		return r.outdated, r.err
	}
	return false, nil
}

func (c *fakeChain) Images() []vulkan.Image {
	return make([]vulkan.Image, c.images)
}

func (c *fakeChain) Format() vulkan.Format {
	return vulkan.FormatB8g8r8a8Unorm
}

func (c *fakeChain) Extent() vulkan.Extent2D {
	return c.extent
}

type fakeTargets struct {
	log      *callLog
	size     int
	rebuilds int
}

func (t *fakeTargets) Rebuild(chain PresentChain) error {
	t.log.add("rebuild")
	t.size = len(chain.Images())
	t.rebuilds++
	return nil
}

func (t *fakeTargets) Len() int {
	return t.size
}

func (t *fakeTargets) At(int) vulkan.Framebuffer {
	return vulkan.NullFramebuffer
}

type fakeRenderer struct {
	log     *callLog
	submits int
	states  []DynamicState
	err     error
}

func (r *fakeRenderer) Submit(_ vulkan.Framebuffer, state DynamicState, _ FrameSync) error {
	r.log.add("submit")
	r.submits++
	r.states = append(r.states, state)
	return r.err
}

type fakeSync struct {
	log        *callLog
	retired    int
	joined     int
	adopted    int
	resets     int
	generation uint64
}

func (s *fakeSync) RetireCompleted()              { s.retired++ }
func (s *fakeSync) JoinPrevious() error           { s.log.add("join"); s.joined++; return nil }
func (s *fakeSync) ImageReady() vulkan.Semaphore  { return vulkan.NullSemaphore }
func (s *fakeSync) RenderDone() vulkan.Semaphore  { return vulkan.NullSemaphore }
func (s *fakeSync) Fence() vulkan.Fence           { return vulkan.NullFence }
func (s *fakeSync) Adopt()                        { s.adopted++; s.generation++ }
func (s *fakeSync) ResetFresh() error             { s.resets++; s.generation++; return nil }
func (s *fakeSync) Generation() uint64            { return s.generation }
func (s *fakeSync) Destroy()                      {}

type fakePlatform struct {
	events []Events
	closed bool
}

func (p *fakePlatform) InstanceExtensions() []string { return nil }

func (p *fakePlatform) CreateSurface(vulkan.Instance) (vulkan.Surface, error) {
	return vulkan.NullSurface, nil
}

func (p *fakePlatform) FramebufferSize() (int, int) { return 0, 0 }

func (p *fakePlatform) PollEvents() Events {
	if len(p.events) == 0 {
		return Events{}
	}
	var e Events
	e, p.events = p.events[0], p.events[1:]
	if e.CloseRequested {
		p.closed = true
	}
	return e
}

func (p *fakePlatform) ShouldClose() bool { return p.closed }

type fakeSurface struct {
	extent vulkan.Extent2D
}

func (s *fakeSurface) CurrentExtent() (vulkan.Extent2D, error) {
	return s.extent, nil
}

type harness struct {
	log      *callLog
	chain    *fakeChain
	targets  *fakeTargets
	frames   *fakeRenderer
	sync     *fakeSync
	platform *fakePlatform
	surface  *fakeSurface
	exec     *FrameExecutor
}

func newHarness(extent vulkan.Extent2D, images int) *harness {
	h := &harness{log: &callLog{}}
	h.chain = &fakeChain{log: h.log, extent: extent, images: images}
	h.targets = &fakeTargets{log: h.log}
	h.frames = &fakeRenderer{log: h.log}
	h.sync = &fakeSync{log: h.log}
	h.platform = &fakePlatform{}
	h.surface = &fakeSurface{extent: extent}
	h.exec = NewFrameExecutor(ExecutorConfig{
		Platform: h.platform,
		Surface:  h.surface,
		Chain:    h.chain,
		Targets:  h.targets,
		Frames:   h.frames,
		Sync:     h.sync,
		Logf:     func(string, ...interface{}) {},
	})
	return h
}

func TestConsecutiveFramesPresented(t *testing.T) {
	const frames = 5
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 3)

	for i := 0; i < frames; i++ {
		outcome, err := h.exec.RunFrame()
		require.NoError(t, err)
		require.Equal(t, FramePresented, outcome, "frame %d", i)
	}

	require.Equal(t, frames, h.frames.submits)
	require.Equal(t, frames, h.chain.presents)
	require.Equal(t, uint64(frames), h.sync.Generation(),
		"in-flight token must be replaced once per presented frame")
	require.Equal(t, frames, h.sync.retired)
	require.Equal(t, 1, h.targets.rebuilds, "targets built lazily once")
	require.Empty(t, h.chain.recreates)
}

func TestPreviousFrameJoinedBeforeSemaphoreReuse(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)

	for i := 0; i < 2; i++ {
		_, err := h.exec.RunFrame()
		require.NoError(t, err)
	}

	// The imageReady semaphore handed to Acquire still carries the previous
	// submission's wait until that frame's fence is joined, so the join must
	// come first in every iteration.
	require.Equal(t, []string{
		"rebuild", "join", "acquire", "submit", "present",
		"join", "acquire", "submit", "present",
	}, h.log.calls)
}

func TestViewportDerivedFromExtent(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)

	state := h.exec.State()
	require.Equal(t, float32(800), state.Viewport.Width)
	require.Equal(t, float32(600), state.Viewport.Height)
	require.Equal(t, float32(0), state.Viewport.MinDepth)
	require.Equal(t, float32(1), state.Viewport.MaxDepth)
}

func TestResizeRebuildsChainTargetsAndViewport(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)

	outcome, err := h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FramePresented, outcome)

	h.platform.events = []Events{{Resized: true}}
	outcome, err = h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FramePresented, outcome)

	h.surface.extent = vulkan.Extent2D{Width: 400, Height: 300}
	outcome, err = h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FramePresented, outcome)

	require.Equal(t, []vulkan.Extent2D{{Width: 400, Height: 300}}, h.chain.recreates)
	require.Equal(t, len(h.chain.Images()), h.targets.Len())
	require.Equal(t, float32(400), h.exec.State().Viewport.Width)
	require.Equal(t, float32(300), h.exec.State().Viewport.Height)
}

func TestOutOfDateAcquireRecreatesBeforeNextAcquire(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)
	h.chain.acquireScript = []acquireResult{{outdated: true}}

	outcome, err := h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FrameSwapchainStale, outcome)
	require.Zero(t, h.frames.submits, "no submission in the iteration that saw out-of-date")
	require.Zero(t, h.chain.presents)

	outcome, err = h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FramePresented, outcome)

	require.Equal(t, []string{
		"rebuild", "join", "acquire", // first iteration stops at acquire
		"recreate", "rebuild", "join", "acquire", "submit", "present",
	}, h.log.calls)
}

func TestUnsupportedExtentLeavesStateUntouchedAndRetries(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)

	outcome, err := h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FramePresented, outcome)

	rebuilds := h.targets.rebuilds
	state := h.exec.State()

	h.platform.events = []Events{{Resized: true}}
	_, err = h.exec.RunFrame()
	require.NoError(t, err)

	h.chain.recreateScript = []error{ErrUnsupportedExtent, ErrUnsupportedExtent, nil}
	h.surface.extent = vulkan.Extent2D{Width: 0, Height: 0}

	for i := 0; i < 2; i++ {
		outcome, err = h.exec.RunFrame()
		require.NoError(t, err)
		require.Equal(t, FrameSwapchainStale, outcome, "retry %d", i)
		require.Equal(t, rebuilds, h.targets.rebuilds, "targets must not be rebuilt")
		require.Equal(t, state, h.exec.State(), "viewport state must not change")
	}

	h.surface.extent = vulkan.Extent2D{Width: 640, Height: 480}
	outcome, err = h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FramePresented, outcome)
	require.Equal(t, float32(640), h.exec.State().Viewport.Width)
}

func TestCloseAfterPresentTerminatesSameIteration(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)
	h.platform.events = []Events{{CloseRequested: true}}

	outcome, err := h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FrameTerminated, outcome)
	require.Equal(t, 1, h.frames.submits, "the frame in flight still presents")
	require.Equal(t, 1, h.chain.acquires)
}

func TestRunStopsAfterCloseRequest(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)
	h.platform.events = []Events{{}, {}, {CloseRequested: true}}

	require.NoError(t, h.exec.Run())
	require.Equal(t, 3, h.chain.acquires, "no acquisitions after termination")
	require.Equal(t, 3, h.chain.presents)
}

func TestPresentOutOfDateResetsTokenAndMarksStale(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)
	h.chain.presentScript = []presentResult{{outdated: true}}

	outcome, err := h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FrameSwapchainStale, outcome)
	require.Equal(t, 1, h.sync.resets, "failed token must be replaced, not kept")
	require.Zero(t, h.sync.adopted)

	outcome, err = h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FramePresented, outcome)
	require.Len(t, h.chain.recreates, 1, "next iteration recreates the chain")
}

func TestPresentSoftErrorDropsFrameAndContinues(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)
	h.chain.presentScript = []presentResult{{err: errors.New("device hiccup")}}

	var logged []string
	h.exec.logf = func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	}

	outcome, err := h.exec.RunFrame()
	require.NoError(t, err, "a present hiccup is not fatal")
	require.Equal(t, FrameDropped, outcome)
	require.Equal(t, 1, h.sync.resets)
	require.Len(t, logged, 1)
	require.Contains(t, logged[0], "device hiccup")

	outcome, err = h.exec.RunFrame()
	require.NoError(t, err)
	require.Equal(t, FramePresented, outcome)
	require.Empty(t, h.chain.recreates, "a soft error does not mark the chain stale")
}

func TestFatalAcquireErrorPropagates(t *testing.T) {
	h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 2)
	h.chain.acquireScript = []acquireResult{{err: errors.New("device lost")}}

	_, err := h.exec.RunFrame()
	require.Error(t, err)
	require.Contains(t, err.Error(), "device lost")
	require.Zero(t, h.frames.submits)
}

func TestTargetSetTracksImageCountAcrossResizes(t *testing.T) {
	for _, tc := range []struct {
		name    string
		resizes []vulkan.Extent2D
	}{
		{"single", []vulkan.Extent2D{{Width: 400, Height: 300}}},
		{"shrink then grow", []vulkan.Extent2D{
			{Width: 100, Height: 100}, {Width: 1920, Height: 1080},
		}},
		{"repeated", []vulkan.Extent2D{
			{Width: 500, Height: 500}, {Width: 500, Height: 500}, {Width: 250, Height: 125},
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(vulkan.Extent2D{Width: 800, Height: 600}, 3)

			for _, extent := range tc.resizes {
				h.platform.events = []Events{{Resized: true}}
				_, err := h.exec.RunFrame()
				require.NoError(t, err)

				h.surface.extent = extent
				_, err = h.exec.RunFrame()
				require.NoError(t, err)

				require.Equal(t, len(h.chain.Images()), h.targets.Len())
				require.Equal(t, float32(extent.Width), h.exec.State().Viewport.Width)
				require.Equal(t, float32(extent.Height), h.exec.State().Viewport.Height)
			}
		})
	}
}

func TestOutcomeStrings(t *testing.T) {
	require.Equal(t, "Presented", FramePresented.String())
	require.Equal(t, "SwapchainStale", FrameSwapchainStale.String())
	require.Equal(t, "Dropped", FrameDropped.String())
	require.Equal(t, "Terminated", FrameTerminated.String())
}
