package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/triangle/gfx"
)

var formats = map[gfx.Format]core1_0.Format{
	gfx.FormatR8G8B8A8UNorm:     core1_0.FormatR8G8B8A8UnsignedNormalized,
	gfx.FormatB8G8R8A8UNorm:     core1_0.FormatB8G8R8A8UnsignedNormalized,
	gfx.FormatR32G32B32Float:    core1_0.FormatR32G32B32SignedFloat,
	gfx.FormatR32G32B32A32Float: core1_0.FormatR32G32B32A32SignedFloat,
}

func vkFormat(f gfx.Format) (core1_0.Format, error) {
	format, ok := formats[f]
	if !ok {
		return 0, errors.Errorf("vulkan: unsupported format %s", f)
	}
	return format, nil
}

func gfxFormat(f core1_0.Format) (gfx.Format, error) {
	for gf, vf := range formats {
		if vf == f {
			return gf, nil
		}
	}
	return gfx.FormatUnknown, errors.Errorf("vulkan: surface format %s has no gfx equivalent", f)
}

func polygonMode(m gfx.FillMode) core1_0.PolygonMode {
	if m == gfx.FillModeWireframe {
		return core1_0.PolygonModeLine
	}
	return core1_0.PolygonModeFill
}

func cullMode(m gfx.CullMode) core1_0.CullModeFlags {
	switch m {
	case gfx.CullModeFront:
		return core1_0.CullModeFront
	case gfx.CullModeBack:
		return core1_0.CullModeBack
	}
	return core1_0.CullModeFlags(0)
}

// frontFace maps the winding convention. Vertex shaders flip Y so that the picture
// matches a Y-up clip space; the winding seen in the framebuffer is therefore the same
// as the authored one.
func frontFace(counterClockwise bool) core1_0.FrontFace {
	if counterClockwise {
		return core1_0.FrontFaceCounterClockwise
	}
	return core1_0.FrontFaceClockwise
}

func blendFactor(b gfx.Blend) core1_0.BlendFactor {
	if b == gfx.BlendOne {
		return core1_0.BlendFactorOne
	}
	return core1_0.BlendFactorZero
}

func colorWriteMask(m gfx.ColorWriteMask) core1_0.ColorComponentFlags {
	var flags core1_0.ColorComponentFlags
	if m&gfx.ColorWriteRed != 0 {
		flags |= core1_0.ColorComponentRed
	}
	if m&gfx.ColorWriteGreen != 0 {
		flags |= core1_0.ColorComponentGreen
	}
	if m&gfx.ColorWriteBlue != 0 {
		flags |= core1_0.ColorComponentBlue
	}
	if m&gfx.ColorWriteAlpha != 0 {
		flags |= core1_0.ColorComponentAlpha
	}
	return flags
}

func sampleCount(n int) (core1_0.SampleCountFlags, error) {
	if n != 1 {
		return 0, errors.Errorf("vulkan: multisampling is not supported, got %d samples", n)
	}
	return core1_0.Samples1, nil
}

func imageLayout(s gfx.ResourceState) (core1_0.ImageLayout, error) {
	switch s {
	case gfx.ResourceStatePresent:
		return khr_swapchain.ImageLayoutPresentSrc, nil
	case gfx.ResourceStateRenderTarget:
		return core1_0.ImageLayoutColorAttachmentOptimal, nil
	}
	return 0, errors.Errorf("vulkan: no image layout for state %s", s)
}
