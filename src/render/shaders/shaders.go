// Package shaders embeds the compiled SPIR-V for the fixed gradient
// pipeline. The GLSL sources live alongside the binaries; regenerate with
// go generate after editing them.
package shaders

import "embed"

//go:generate glslc gradient.vert -o gradient.vert.spv
//go:generate glslc gradient.frag -o gradient.frag.spv

//go:embed gradient.vert.spv gradient.frag.spv
var FS embed.FS
