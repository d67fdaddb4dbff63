package render

import (
	"encoding/binary"
	"fmt"

	"github.com/vulkan-go/vulkan"

	"github.com/gadunga/vulkano-bufferless/src/render/shaders"
)

// clearColor is the fixed render-pass clear: opaque blue.
var clearColor = []float32{0.0, 0.0, 1.0, 1.0}

// Pipeline is the fixed rendering configuration: a single-subpass render pass
// over one color attachment (clear then store, presented afterwards), the
// bufferless gradient pipeline, and the one command buffer each frame is
// recorded into. Nothing here changes after construction except the recorded
// commands.
type Pipeline struct {
	ctx *Context

	pass     vulkan.RenderPass
	layout   vulkan.PipelineLayout
	pipeline vulkan.Pipeline
	pool     vulkan.CommandPool
	cmd      vulkan.CommandBuffer
}

// NewPipeline builds the render pass and graphics pipeline against the
// chain's negotiated color format. The vertex stage consumes no buffers; all
// three vertex positions derive from gl_VertexIndex inside the shader.
func NewPipeline(ctx *Context, format vulkan.Format) (*Pipeline, error) {
	p := &Pipeline{ctx: ctx}

	if err := p.createRenderPass(format); err != nil {
		return nil, err
	}
	if err := p.createPipeline(); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createCommandBuffer(); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) createRenderPass(format vulkan.Format) error {
	colorAttachment := vulkan.AttachmentDescription{
		Format:         format,
		Samples:        vulkan.SampleCount1Bit,
		LoadOp:         vulkan.AttachmentLoadOpClear,
		StoreOp:        vulkan.AttachmentStoreOpStore,
		StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
		StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
		InitialLayout:  vulkan.ImageLayoutUndefined,
		FinalLayout:    vulkan.ImageLayoutPresentSrc,
	}

	subpass := vulkan.SubpassDescription{
		PipelineBindPoint:    vulkan.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vulkan.AttachmentReference{{
			Attachment: 0,
			Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
		}},
	}

	// The acquire semaphore gates the color-attachment stage, so external
	// work must be ordered against it here as well.
	dependency := vulkan.SubpassDependency{
		SrcSubpass:    vulkan.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vulkan.AccessFlags(vulkan.AccessColorAttachmentWriteBit),
	}

	passInfo := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vulkan.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vulkan.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vulkan.SubpassDependency{dependency},
	}

	var pass vulkan.RenderPass
	if err := NewError(vulkan.CreateRenderPass(p.ctx.device, &passInfo, nil, &pass)); err != nil {
		return fmt.Errorf("creating render pass: %w", err)
	}
	p.pass = pass
	return nil
}

func (p *Pipeline) createPipeline() error {
	vert, err := p.loadShader("gradient.vert.spv")
	if err != nil {
		return err
	}
	defer vulkan.DestroyShaderModule(p.ctx.device, vert, nil)

	frag, err := p.loadShader("gradient.frag.spv")
	if err != nil {
		return err
	}
	defer vulkan.DestroyShaderModule(p.ctx.device, frag, nil)

	stages := []vulkan.PipelineShaderStageCreateInfo{
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageVertexBit,
			Module: vert,
			PName:  "main\x00",
		},
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageFragmentBit,
			Module: frag,
			PName:  "main\x00",
		},
	}

	// Bufferless: no bindings, no attributes.
	vertexInput := vulkan.PipelineVertexInputStateCreateInfo{
		SType: vulkan.StructureTypePipelineVertexInputStateCreateInfo,
	}

	inputAssembly := vulkan.PipelineInputAssemblyStateCreateInfo{
		SType:    vulkan.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vulkan.PrimitiveTopologyTriangleList,
	}

	// Viewport and scissor are dynamic; the counts still have to be declared.
	viewportState := vulkan.PipelineViewportStateCreateInfo{
		SType:         vulkan.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	dynamicStates := []vulkan.DynamicState{
		vulkan.DynamicStateViewport,
		vulkan.DynamicStateScissor,
	}
	dynamicState := vulkan.PipelineDynamicStateCreateInfo{
		SType:             vulkan.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	rasterizer := vulkan.PipelineRasterizationStateCreateInfo{
		SType:       vulkan.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vulkan.PolygonModeFill,
		LineWidth:   1,
		CullMode:    vulkan.CullModeFlags(vulkan.CullModeFrontBit),
		FrontFace:   vulkan.FrontFaceCounterClockwise,
	}

	multisampling := vulkan.PipelineMultisampleStateCreateInfo{
		SType:                vulkan.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vulkan.SampleCount1Bit,
		MinSampleShading:     1,
	}

	blendAttachment := vulkan.PipelineColorBlendAttachmentState{
		ColorWriteMask: vulkan.ColorComponentFlags(
			vulkan.ColorComponentRBit |
				vulkan.ColorComponentGBit |
				vulkan.ColorComponentBBit |
				vulkan.ColorComponentABit,
		),
	}
	blending := vulkan.PipelineColorBlendStateCreateInfo{
		SType:           vulkan.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vulkan.PipelineColorBlendAttachmentState{blendAttachment},
	}

	layoutInfo := vulkan.PipelineLayoutCreateInfo{
		SType: vulkan.StructureTypePipelineLayoutCreateInfo,
	}
	var layout vulkan.PipelineLayout
	if err := NewError(vulkan.CreatePipelineLayout(p.ctx.device, &layoutInfo, nil, &layout)); err != nil {
		return fmt.Errorf("creating pipeline layout: %w", err)
	}
	p.layout = layout

	pipelineInfo := vulkan.GraphicsPipelineCreateInfo{
		SType:               vulkan.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PColorBlendState:    &blending,
		PDynamicState:       &dynamicState,
		Layout:              p.layout,
		RenderPass:          p.pass,
		Subpass:             0,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vulkan.Pipeline, 1)
	res := vulkan.CreateGraphicsPipelines(
		p.ctx.device,
		vulkan.NullPipelineCache,
		1,
		[]vulkan.GraphicsPipelineCreateInfo{pipelineInfo},
		nil,
		pipelines,
	)
	if err := NewError(res); err != nil {
		return fmt.Errorf("creating graphics pipeline: %w", err)
	}
	p.pipeline = pipelines[0]
	return nil
}

func (p *Pipeline) loadShader(name string) (vulkan.ShaderModule, error) {
	code, err := shaders.FS.ReadFile(name)
	if err != nil {
		return vulkan.NullShaderModule, fmt.Errorf("reading shader %s: %w", name, err)
	}

	createInfo := vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    repackUint32(code),
	}

	var module vulkan.ShaderModule
	if err := NewError(vulkan.CreateShaderModule(p.ctx.device, &createInfo, nil, &module)); err != nil {
		return vulkan.NullShaderModule, fmt.Errorf("creating shader module %s: %w", name, err)
	}
	return module, nil
}

func (p *Pipeline) createCommandBuffer() error {
	poolInfo := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		Flags:            vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: p.ctx.queueFamily,
	}

	var pool vulkan.CommandPool
	if err := NewError(vulkan.CreateCommandPool(p.ctx.device, &poolInfo, nil, &pool)); err != nil {
		return fmt.Errorf("creating command pool: %w", err)
	}
	p.pool = pool

	allocInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	buffers := make([]vulkan.CommandBuffer, 1)
	if err := NewError(vulkan.AllocateCommandBuffers(p.ctx.device, &allocInfo, buffers)); err != nil {
		return fmt.Errorf("allocating command buffer: %w", err)
	}
	p.cmd = buffers[0]
	return nil
}

// RenderPass exposes the fixed render pass so target sets can bind to it.
func (p *Pipeline) RenderPass() vulkan.RenderPass {
	return p.pass
}

// Submit records one frame into target and submits it: clear, bind the fixed
// pipeline and dynamic state, draw three vertices in one instance, end. The
// submission waits on sync.ImageReady at the color-attachment stage, signals
// sync.RenderDone, and signals sync.Fence when the GPU finishes.
func (p *Pipeline) Submit(target vulkan.Framebuffer, state DynamicState, sync FrameSync) error {
	vulkan.ResetCommandBuffer(p.cmd, 0)

	beginInfo := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := NewError(vulkan.BeginCommandBuffer(p.cmd, &beginInfo)); err != nil {
		return fmt.Errorf("beginning command buffer: %w", err)
	}

	passInfo := vulkan.RenderPassBeginInfo{
		SType:           vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:      p.pass,
		Framebuffer:     target,
		RenderArea:      state.Scissor,
		ClearValueCount: 1,
		PClearValues:    []vulkan.ClearValue{vulkan.NewClearValue(clearColor)},
	}

	vulkan.CmdBeginRenderPass(p.cmd, &passInfo, vulkan.SubpassContentsInline)
	vulkan.CmdBindPipeline(p.cmd, vulkan.PipelineBindPointGraphics, p.pipeline)
	vulkan.CmdSetViewport(p.cmd, 0, 1, []vulkan.Viewport{state.Viewport})
	vulkan.CmdSetScissor(p.cmd, 0, 1, []vulkan.Rect2D{state.Scissor})
	vulkan.CmdDraw(p.cmd, 3, 1, 0, 0)
	vulkan.CmdEndRenderPass(p.cmd)

	if err := NewError(vulkan.EndCommandBuffer(p.cmd)); err != nil {
		return fmt.Errorf("ending command buffer: %w", err)
	}

	submitInfo := vulkan.SubmitInfo{
		SType:              vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{sync.ImageReady()},
		PWaitDstStageMask: []vulkan.PipelineStageFlags{
			vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vulkan.CommandBuffer{p.cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vulkan.Semaphore{sync.RenderDone()},
	}

	res := vulkan.QueueSubmit(p.ctx.queue, 1, []vulkan.SubmitInfo{submitInfo}, sync.Fence())
	if err := NewError(res); err != nil {
		return fmt.Errorf("submitting frame: %w", err)
	}
	return nil
}

func (p *Pipeline) Destroy() {
	if p.pool != vulkan.NullCommandPool {
		vulkan.DestroyCommandPool(p.ctx.device, p.pool, nil)
		p.pool = vulkan.NullCommandPool
	}
	if p.pipeline != vulkan.NullPipeline {
		vulkan.DestroyPipeline(p.ctx.device, p.pipeline, nil)
		p.pipeline = vulkan.NullPipeline
	}
	if p.layout != vulkan.NullPipelineLayout {
		vulkan.DestroyPipelineLayout(p.ctx.device, p.layout, nil)
		p.layout = vulkan.NullPipelineLayout
	}
	if p.pass != vulkan.NullRenderPass {
		vulkan.DestroyRenderPass(p.ctx.device, p.pass, nil)
		p.pass = vulkan.NullRenderPass
	}
}

func repackUint32(data []byte) []uint32 {
	buf := make([]uint32, len(data)/4)
	for i := range buf {
		buf[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return buf
}
