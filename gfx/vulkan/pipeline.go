package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/triangle/gfx"
)

type PipelineState struct {
	device   *Device
	desc     gfx.GraphicsPipelineDesc
	layout   core1_0.PipelineLayout
	pipeline core1_0.Pipeline
}

var _ gfx.PipelineState = (*PipelineState)(nil)

// vertexInput packs the input layout into one binding whose stride is the end of the
// furthest element.
func vertexInput(layout []gfx.InputElementDesc) (*core1_0.PipelineVertexInputStateCreateInfo, error) {
	stride := 0
	var attributes []core1_0.VertexInputAttributeDescription
	for location, element := range layout {
		if element.InputSlot != 0 {
			return nil, errors.Errorf("vulkan: input slot %d is not supported", element.InputSlot)
		}

		format, err := vkFormat(element.Format)
		if err != nil {
			return nil, errors.Wrapf(err, "input element %s", element.SemanticName)
		}

		attributes = append(attributes, core1_0.VertexInputAttributeDescription{
			Binding:  0,
			Location: uint32(location),
			Format:   format,
			Offset:   element.AlignedByteOffset,
		})

		if end := element.AlignedByteOffset + element.Format.Size(); end > stride {
			stride = end
		}
	}

	return &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    stride,
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
		VertexAttributeDescriptions: attributes,
	}, nil
}

func (d *Device) createShaderModule(code gfx.ShaderBytecode) (core1_0.ShaderModule, error) {
	if len(code.Code) == 0 {
		return core1_0.ShaderModule{}, errors.New("vulkan: empty shader bytecode")
	}

	module, _, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code.Code,
	})
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrap(err, "create shader module")
	}
	return module, nil
}

func (d *Device) CreateGraphicsPipelineState(desc gfx.GraphicsPipelineDesc) (gfx.PipelineState, error) {
	rootSignature, ok := desc.RootSignature.(*RootSignature)
	if !ok {
		return nil, errors.Errorf("vulkan: foreign root signature %T", desc.RootSignature)
	}
	if desc.PrimitiveTopologyType != gfx.PrimitiveTopologyTypeTriangle {
		return nil, errors.Errorf("vulkan: unsupported topology type %d", desc.PrimitiveTopologyType)
	}
	if len(desc.RTVFormats) != 1 {
		return nil, errors.Errorf("vulkan: expected exactly one render target format, got %d", len(desc.RTVFormats))
	}
	if desc.SampleMask != gfx.DefaultSampleMask || desc.Blend.AlphaToCoverageEnable {
		return nil, errors.New("vulkan: sample masks and alpha to coverage are not supported")
	}
	if desc.DepthStencil.DepthEnable || desc.DepthStencil.StencilEnable {
		return nil, errors.New("vulkan: depth and stencil testing need a depth target")
	}

	format, err := vkFormat(desc.RTVFormats[0])
	if err != nil {
		return nil, err
	}
	samples, err := sampleCount(desc.SampleCount)
	if err != nil {
		return nil, err
	}
	pass, err := d.renderPass(format, false)
	if err != nil {
		return nil, err
	}
	vertexInputState, err := vertexInput(desc.InputLayout)
	if err != nil {
		return nil, err
	}

	vertShader, err := d.createShaderModule(desc.VS)
	if err != nil {
		return nil, errors.Wrap(err, "vertex shader")
	}
	defer d.driver.DestroyShaderModule(vertShader, nil)

	fragShader, err := d.createShaderModule(desc.PS)
	if err != nil {
		return nil, errors.Wrap(err, "pixel shader")
	}
	defer d.driver.DestroyShaderModule(fragShader, nil)

	blend := desc.Blend.RenderTarget
	rasterizer := desc.Rasterizer

	pipelines, _, err := d.driver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: vertShader,
					Name:   desc.VS.EntryPoint,
				},
				{
					Stage:  core1_0.StageFragment,
					Module: fragShader,
					Name:   desc.PS.EntryPoint,
				},
			},
			VertexInputState: vertexInputState,
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               core1_0.PrimitiveTopologyTriangleList,
				PrimitiveRestartEnable: false,
			},
			// Viewport and scissor are dynamic; one of each is set while recording.
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{{}},
				Scissors:  []core1_0.Rect2D{{}},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				DepthClampEnable:        !rasterizer.DepthClipEnable,
				RasterizerDiscardEnable: false,

				PolygonMode: polygonMode(rasterizer.FillMode),
				CullMode:    cullMode(rasterizer.CullMode),
				FrontFace:   frontFace(rasterizer.FrontCounterClockwise),

				DepthBiasEnable: false,

				LineWidth: 1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				SampleShadingEnable:  false,
				RasterizationSamples: samples,
				MinSampleShading:     1.0,
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOpEnabled: false,
				LogicOp:        core1_0.LogicOpCopy,

				BlendConstants: [4]float32{0, 0, 0, 0},
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						BlendEnabled:        blend.BlendEnable,
						SrcColorBlendFactor: blendFactor(blend.SrcBlend),
						DstColorBlendFactor: blendFactor(blend.DestBlend),
						ColorBlendOp:        core1_0.BlendOpAdd,
						SrcAlphaBlendFactor: blendFactor(blend.SrcBlendAlpha),
						DstAlphaBlendFactor: blendFactor(blend.DestBlendAlpha),
						AlphaBlendOp:        core1_0.BlendOpAdd,
						ColorWriteMask:      colorWriteMask(blend.RenderTargetWriteMask),
					},
				},
			},
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
			},
			Layout:            rootSignature.layout,
			RenderPass:        pass,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "create graphics pipeline")
	}

	return &PipelineState{
		device:   d,
		desc:     desc,
		layout:   rootSignature.layout,
		pipeline: pipelines[0],
	}, nil
}

func (p *PipelineState) Release() {
	if p.pipeline.Initialized() {
		p.device.driver.DestroyPipeline(p.pipeline, nil)
		p.pipeline = core1_0.Pipeline{}
	}
}
