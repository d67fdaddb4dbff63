package render

import (
	"fmt"

	"github.com/vulkan-go/vulkan"
)

// TargetSet holds one render-target binding (image view + framebuffer) per
// presentable image, index-aligned with the chain's image sequence. It is
// only ever rebuilt wholesale after the chain is replaced; a failure to bind
// any image is a configuration error and fatal to the caller.
type TargetSet struct {
	ctx  *Context
	pass vulkan.RenderPass

	views        []vulkan.ImageView
	framebuffers []vulkan.Framebuffer
}

// NewTargetSet returns an empty set bound to the fixed render pass. The first
// Rebuild populates it; the executor rebuilds lazily on first use after the
// chain is replaced.
func NewTargetSet(ctx *Context, pass vulkan.RenderPass) *TargetSet {
	return &TargetSet{ctx: ctx, pass: pass}
}

// Rebuild discards the previous bindings and derives one per chain image at
// the chain's current format and extent.
func (t *TargetSet) Rebuild(chain PresentChain) error {
	t.Destroy()

	images := chain.Images()
	format := chain.Format()
	extent := chain.Extent()

	t.views = make([]vulkan.ImageView, 0, len(images))
	t.framebuffers = make([]vulkan.Framebuffer, 0, len(images))

	for i, image := range images {
		viewInfo := vulkan.ImageViewCreateInfo{
			SType:    vulkan.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vulkan.ImageViewType2d,
			Format:   format,
			Components: vulkan.ComponentMapping{
				R: vulkan.ComponentSwizzleIdentity,
				G: vulkan.ComponentSwizzleIdentity,
				B: vulkan.ComponentSwizzleIdentity,
				A: vulkan.ComponentSwizzleIdentity,
			},
			SubresourceRange: vulkan.ImageSubresourceRange{
				AspectMask: vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}

		var view vulkan.ImageView
		if err := NewError(vulkan.CreateImageView(t.ctx.device, &viewInfo, nil, &view)); err != nil {
			return fmt.Errorf("creating view for image %d: %w", i, err)
		}
		t.views = append(t.views, view)

		fbInfo := vulkan.FramebufferCreateInfo{
			SType:           vulkan.StructureTypeFramebufferCreateInfo,
			RenderPass:      t.pass,
			AttachmentCount: 1,
			PAttachments:    []vulkan.ImageView{view},
			Width:           extent.Width,
			Height:          extent.Height,
			Layers:          1,
		}

		var framebuffer vulkan.Framebuffer
		if err := NewError(vulkan.CreateFramebuffer(t.ctx.device, &fbInfo, nil, &framebuffer)); err != nil {
			return fmt.Errorf("creating framebuffer for image %d: %w", i, err)
		}
		t.framebuffers = append(t.framebuffers, framebuffer)
	}

	return nil
}

func (t *TargetSet) Len() int {
	return len(t.framebuffers)
}

// At returns the framebuffer bound to chain image i.
func (t *TargetSet) At(i int) vulkan.Framebuffer {
	return t.framebuffers[i]
}

func (t *TargetSet) Destroy() {
	for _, framebuffer := range t.framebuffers {
		vulkan.DestroyFramebuffer(t.ctx.device, framebuffer, nil)
	}
	for _, view := range t.views {
		vulkan.DestroyImageView(t.ctx.device, view, nil)
	}
	t.framebuffers = nil
	t.views = nil
}
