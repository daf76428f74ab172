package renderer

import (
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/triangle/gfx"
	"github.com/vkngwrapper/triangle/gfx/gfxtest"
	"github.com/vkngwrapper/triangle/shader"
)

type stubShaders struct {
	err error
}

func (s stubShaders) Compile() (shader.Program, error) {
	if s.err != nil {
		return shader.Program{}, s.err
	}
	code := []uint32{shader.SPIRVMagic, 0x00010000, 0, 1, 0}
	return shader.Program{
		Vertex: gfx.ShaderBytecode{Code: code, EntryPoint: shader.EntryPoint},
		Pixel:  gfx.ShaderBytecode{Code: code, EntryPoint: shader.EntryPoint},
	}, nil
}

var testWindow = gfxtest.Window{Width: 640, Height: 480}

func testOptions() Options {
	return Options{Debug: true, Logger: slog.New(slog.DiscardHandler), StatsInterval: 1}
}

func newTestContext(t *testing.T, gpu *gfxtest.GPU) *Context {
	t.Helper()
	ctx, err := Initialize(gpu, testWindow, stubShaders{}, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctx.Close()
	})
	return ctx
}

func TestInitialize_ViewportAndScissor(t *testing.T) {
	ctx := newTestContext(t, gfxtest.New())

	assert.Equal(t, gfx.Viewport{Width: 640, Height: 480, MaxDepth: 1}, ctx.Viewport())
	assert.Equal(t, gfx.Rect{Right: 640, Bottom: 480}, ctx.ScissorRect())
	assert.Equal(t, 640, ctx.ScissorRect().Width())
	assert.Equal(t, 480, ctx.ScissorRect().Height())
	assert.Equal(t, StateIdle, ctx.State())
}

func TestInitialize_DebugLayer(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
	}{
		{name: "enabled", debug: true},
		{name: "disabled", debug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gpu := gfxtest.New()
			opts := testOptions()
			opts.Debug = tt.debug

			ctx, err := Initialize(gpu, testWindow, stubShaders{}, opts)
			require.NoError(t, err)
			defer ctx.Close()

			assert.Equal(t, tt.debug, gpu.DebugLayerEnabled())
		})
	}
}

func TestInitialize_BootstrapState(t *testing.T) {
	gpu := gfxtest.New()
	ctx := newTestContext(t, gpu)

	device := ctx.device.(*gfxtest.Device)
	list := device.CommandList(0)
	assert.True(t, list.Closed())
	assert.Equal(t, 1, list.Closes())
	assert.Empty(t, gpu.Queue(0).Submissions())

	// The bootstrap drain signals the first counter value.
	assert.Equal(t, []uint64{1}, gpu.Queue(0).Signals())
	assert.Equal(t, uint64(2), ctx.FenceValue())
	assert.GreaterOrEqual(t, ctx.fence.CompletedValue(), uint64(1))

	heap := ctx.rtvHeap.(*gfxtest.DescriptorHeap)
	assert.Equal(t, 0, heap.View(0).Index())
	assert.Equal(t, 1, heap.View(1).Index())
}

func TestInitialize_Pipeline(t *testing.T) {
	gpu := gfxtest.New()
	ctx := newTestContext(t, gpu)

	pso := ctx.device.(*gfxtest.Device).PipelineState(0)
	desc := pso.Desc

	require.Len(t, desc.InputLayout, 2)
	assert.Equal(t, "POSITION", desc.InputLayout[0].SemanticName)
	assert.Equal(t, 0, desc.InputLayout[0].AlignedByteOffset)
	assert.Equal(t, "COLOR", desc.InputLayout[1].SemanticName)
	assert.Equal(t, 12, desc.InputLayout[1].AlignedByteOffset)
	assert.Equal(t, VertexStride, desc.InputLayout[1].AlignedByteOffset+desc.InputLayout[1].Format.Size())

	assert.Equal(t, gfx.CullModeBack, desc.Rasterizer.CullMode)
	assert.Equal(t, gfx.FillModeSolid, desc.Rasterizer.FillMode)
	assert.False(t, desc.Rasterizer.FrontCounterClockwise)
	assert.False(t, desc.DepthStencil.DepthEnable)
	assert.False(t, desc.DepthStencil.StencilEnable)
	assert.False(t, desc.Blend.RenderTarget.BlendEnable)
	assert.Equal(t, gfx.ColorWriteAll, desc.Blend.RenderTarget.RenderTargetWriteMask)
	assert.Equal(t, uint32(gfx.DefaultSampleMask), desc.SampleMask)
	assert.Equal(t, []gfx.Format{ctx.swapChain.Desc().Format}, desc.RTVFormats)
	assert.Equal(t, 1, desc.SampleCount)

	rs := desc.RootSignature.(*gfxtest.RootSignature)
	assert.Zero(t, rs.Desc.NumParameters)
	assert.Zero(t, rs.Desc.NumStaticSamplers)
	assert.Equal(t, gfx.RootSignatureAllowInputAssemblerInputLayout, rs.Desc.Flags)
}

func TestInitialize_VertexUpload(t *testing.T) {
	ctx := newTestContext(t, gfxtest.New())

	view := ctx.VertexBufferView()
	assert.Equal(t, VertexStride, view.StrideInBytes)
	assert.Equal(t, 84, view.SizeInBytes)
	assert.Equal(t, ctx.vertexBuffer.GPUVirtualAddress(), view.BufferLocation)

	buf := ctx.vertexBuffer.(*gfxtest.Buffer)
	ranges := buf.ReadRanges()
	require.Len(t, ranges, 1)
	require.NotNil(t, ranges[0])
	assert.True(t, ranges[0].Empty())
	assert.False(t, buf.Mapped())

	want, err := EncodeVertices(Triangle[:])
	require.NoError(t, err)
	assert.Equal(t, want, buf.Bytes())
}

func TestInitialize_Failures(t *testing.T) {
	tests := []struct {
		fail   string
		kind   Kind
		wantOp string
	}{
		{fail: "EnableDebugLayer", kind: KindInitialization, wantOp: "EnableDebugLayer"},
		{fail: "Adapters", kind: KindInitialization, wantOp: "EnumAdapters"},
		{fail: "CreateDevice", kind: KindInitialization, wantOp: "CreateDevice"},
		{fail: "CreateCommandQueue", kind: KindInitialization, wantOp: "CreateCommandQueue"},
		{fail: "CreateSwapChain", kind: KindInitialization, wantOp: "CreateSwapChain"},
		{fail: "CreateDescriptorHeap", kind: KindInitialization, wantOp: "CreateDescriptorHeap"},
		{fail: "GetBuffer", kind: KindInitialization, wantOp: "GetBuffer"},
		{fail: "CreateRenderTargetView", kind: KindInitialization, wantOp: "CreateRenderTargetView"},
		{fail: "CreateRootSignature", kind: KindInitialization, wantOp: "CreateRootSignature"},
		{fail: "CreateGraphicsPipelineState", kind: KindInitialization, wantOp: "CreateGraphicsPipelineState"},
		{fail: "CreateCommandAllocator", kind: KindInitialization, wantOp: "CreateCommandAllocator"},
		{fail: "CreateCommandList", kind: KindInitialization, wantOp: "CreateCommandList"},
		{fail: "CommandList.Close", kind: KindInitialization, wantOp: "CloseCommandList"},
		{fail: "CreateCommittedResource", kind: KindInitialization, wantOp: "CreateCommittedResource"},
		{fail: "Map", kind: KindInitialization, wantOp: "Map"},
		{fail: "CreateFence", kind: KindSynchronization, wantOp: "CreateFence"},
		{fail: "CreateFenceEvent", kind: KindSynchronization, wantOp: "CreateFenceEvent"},
		{fail: "Signal", kind: KindSynchronization, wantOp: "Signal"},
	}

	for _, tt := range tests {
		t.Run(tt.fail, func(t *testing.T) {
			gpu := gfxtest.New()
			injected := errors.New("injected failure")
			gpu.FailOn(tt.fail, injected)

			ctx, err := Initialize(gpu, testWindow, stubShaders{}, testOptions())
			require.Error(t, err)
			assert.Nil(t, ctx)

			assert.True(t, IsKind(err, tt.kind), "got %v", err)
			var re *Error
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.wantOp, re.Op)
			assert.True(t, errors.Is(err, injected))

			assert.Empty(t, gpu.Live(), "leaked %v", gpu.LiveKinds())
		})
	}
}

func TestInitialize_NoAdapters(t *testing.T) {
	gpu := gfxtest.New(gfxtest.WithAdapters(0))

	_, err := Initialize(gpu, testWindow, stubShaders{}, testOptions())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInitialization))
	assert.True(t, errors.Is(err, gfx.ErrNoAdapters))
	assert.Empty(t, gpu.Live())
}

func TestInitialize_EmptyWindow(t *testing.T) {
	gpu := gfxtest.New()

	_, err := Initialize(gpu, gfxtest.Window{}, stubShaders{}, testOptions())
	require.Error(t, err)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, KindInitialization, re.Kind)
	assert.Equal(t, "CreateSwapChain", re.Op)
	assert.Empty(t, gpu.Live())
}

func TestInitialize_ShaderFailure(t *testing.T) {
	gpu := gfxtest.New()
	compileErr := &shader.CompileError{
		Stage: shader.StagePixel,
		File:  "triangle.frag.wgsl",
		Err:   errors.New("expected ';'"),
	}

	_, err := Initialize(gpu, testWindow, stubShaders{err: compileErr}, testOptions())
	require.Error(t, err)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, KindShaderCompilation, re.Kind)
	assert.Equal(t, "pixel", re.Stage)
	assert.Equal(t, "triangle.frag.wgsl", re.File)
	assert.Contains(t, err.Error(), "pixel shader triangle.frag.wgsl")
	assert.Empty(t, gpu.Live(), "leaked %v", gpu.LiveKinds())
}

func TestInitialize_ShippedShaders(t *testing.T) {
	gpu := gfxtest.New()
	compiler := shader.NewCompiler("../triangle/shaders", "triangle.vert.wgsl", "triangle.frag.wgsl")

	ctx, err := Initialize(gpu, testWindow, compiler, testOptions())
	require.NoError(t, err)
	require.NoError(t, ctx.RenderFrame())
	require.NoError(t, ctx.Close())
	assert.Empty(t, gpu.Live())
}

func TestClose(t *testing.T) {
	gpu := gfxtest.New(gfxtest.WithLatency(time.Millisecond))
	ctx, err := Initialize(gpu, testWindow, stubShaders{}, testOptions())
	require.NoError(t, err)
	queue := gpu.Queue(0)

	require.NoError(t, ctx.RenderFrame())
	require.NoError(t, ctx.Close())

	// Init drain, one frame, final drain.
	assert.Equal(t, []uint64{1, 2, 3}, queue.Signals())
	assert.Empty(t, gpu.Live(), "leaked %v", gpu.LiveKinds())

	require.NoError(t, ctx.Close())
	assert.ErrorIs(t, ctx.RenderFrame(), ErrClosed)

	_, err = ctx.VertexData()
	assert.ErrorIs(t, err, ErrClosed)
}
