package renderer

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/triangle/gfx"
	"github.com/vkngwrapper/triangle/shader"
)

var inputLayout = []gfx.InputElementDesc{
	{SemanticName: "POSITION", Format: gfx.FormatR32G32B32Float, AlignedByteOffset: 0},
	{SemanticName: "COLOR", Format: gfx.FormatR32G32B32A32Float, AlignedByteOffset: 12},
}

func (c *Context) buildPipeline(shaders ShaderCompiler) error {
	var err error
	c.rootSignature, err = c.device.CreateRootSignature(gfx.RootSignatureDesc{
		Flags: gfx.RootSignatureAllowInputAssemblerInputLayout,
	})
	if err != nil {
		return initError("CreateRootSignature", err)
	}

	program, err := shaders.Compile()
	if err != nil {
		return compileError(err)
	}
	c.log.Debug("shaders compiled",
		slog.Int("vertexWords", len(program.Vertex.Code)),
		slog.Int("pixelWords", len(program.Pixel.Code)))

	c.pipelineState, err = c.device.CreateGraphicsPipelineState(gfx.GraphicsPipelineDesc{
		RootSignature: c.rootSignature,
		VS:            program.Vertex,
		PS:            program.Pixel,
		InputLayout:   inputLayout,
		Rasterizer: gfx.RasterizerDesc{
			FillMode:              gfx.FillModeSolid,
			CullMode:              gfx.CullModeBack,
			FrontCounterClockwise: false,
			DepthClipEnable:       true,
		},
		Blend: gfx.BlendDesc{
			RenderTarget: gfx.RenderTargetBlendDesc{
				SrcBlend:              gfx.BlendOne,
				DestBlend:             gfx.BlendZero,
				BlendOp:               gfx.BlendOpAdd,
				SrcBlendAlpha:         gfx.BlendOne,
				DestBlendAlpha:        gfx.BlendZero,
				BlendOpAlpha:          gfx.BlendOpAdd,
				RenderTargetWriteMask: gfx.ColorWriteAll,
			},
		},
		SampleMask:            gfx.DefaultSampleMask,
		PrimitiveTopologyType: gfx.PrimitiveTopologyTypeTriangle,
		RTVFormats:            []gfx.Format{c.swapChain.Desc().Format},
		SampleCount:           1,
	})
	if err != nil {
		return initError("CreateGraphicsPipelineState", err)
	}

	return nil
}

func compileError(err error) error {
	var ce *shader.CompileError
	if errors.As(err, &ce) {
		return &Error{
			Kind:  KindShaderCompilation,
			Op:    "Compile",
			Stage: ce.Stage.String(),
			File:  ce.File,
			Err:   errors.WithStack(ce.Err),
		}
	}
	return &Error{Kind: KindShaderCompilation, Op: "Compile", Err: errors.WithStack(err)}
}
