package render

import (
	"github.com/vulkan-go/vulkan"
)

// DynamicState is the per-chain-generation dynamic pipeline state: a full
// viewport over the chain extent and a matching scissor. Derived whenever the
// extent changes, read-only while a frame records.
type DynamicState struct {
	Viewport vulkan.Viewport
	Scissor  vulkan.Rect2D
}

// NewDynamicState derives the dynamic state for extent with depth range [0,1].
func NewDynamicState(extent vulkan.Extent2D) DynamicState {
	return DynamicState{
		Viewport: vulkan.Viewport{
			X:        0,
			Y:        0,
			Width:    float32(extent.Width),
			Height:   float32(extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		},
		Scissor: vulkan.Rect2D{
			Offset: vulkan.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
	}
}
