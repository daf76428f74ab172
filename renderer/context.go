// Package renderer draws one triangle per frame into a double-buffered swap chain.
//
// A Context is built once by Initialize, which creates the whole object graph in
// dependency order: device and queue, swap chain, render target views, pipeline,
// command allocator and list, vertex buffer and finally the frame fence. RenderFrame
// then records, submits and presents one frame and blocks until the GPU retired it
// before returning, so at most one frame is ever in flight.
//
// A Context must be driven from a single goroutine.
package renderer

import (
	"log/slog"

	"github.com/g3n/engine/math32"
	"github.com/google/uuid"

	"github.com/vkngwrapper/triangle/gfx"
	"github.com/vkngwrapper/triangle/shader"
)

// FrameCount is the number of swap chain buffers and render targets.
const FrameCount = 2

// ShaderCompiler produces the vertex and pixel stage bytecode.
type ShaderCompiler interface {
	Compile() (shader.Program, error)
}

type Options struct {
	// Debug enables the API validation layer before the device is created.
	Debug bool
	// Logger receives the context's records. Defaults to slog.Default().
	Logger *slog.Logger
	// StatsInterval is how many frames pass between two statistics records; 0 disables them.
	StatsInterval int
	// ClearColor overrides the package ClearColor when set.
	ClearColor *math32.Color4
}

type Context struct {
	id     uuid.UUID
	log    *slog.Logger
	opts   Options
	window gfx.Window

	adapter gfx.Adapter
	device  gfx.Device
	queue   gfx.CommandQueue

	swapChain  gfx.SwapChain
	frameIndex int
	viewport   gfx.Viewport
	scissor    gfx.Rect
	clearColor math32.Color4

	rtvHeap       gfx.DescriptorHeap
	renderTargets [FrameCount]gfx.Resource
	rtvHandles    [FrameCount]gfx.CPUDescriptorHandle

	rootSignature gfx.RootSignature
	pipelineState gfx.PipelineState

	allocator   gfx.CommandAllocator
	commandList gfx.GraphicsCommandList

	vertexBuffer     gfx.Resource
	vertexBufferView gfx.VertexBufferView

	fence      gfx.Fence
	fenceEvent gfx.Event
	fenceValue uint64

	state State
	// outstanding is set while submitted command lists have not been covered by a
	// completed fence wait.
	outstanding bool
	failed      error
	closed      bool
	stats       FrameStats
}

// Initialize builds the rendering object graph for window. The factory stays owned by
// the caller and must outlive the context. On failure every object created so far is
// released before the error is returned.
func Initialize(factory gfx.Factory, window gfx.Window, shaders ShaderCompiler, opts Options) (ctx *Context, err error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Context{
		id:         uuid.New(),
		opts:       opts,
		window:     window,
		clearColor: ClearColor,
		fenceValue: 1,
	}
	if opts.ClearColor != nil {
		c.clearColor = *opts.ClearColor
	}
	c.log = opts.Logger.With(slog.String("context", c.id.String()))

	defer func() {
		if err != nil {
			c.log.Error("initialization failed", slog.Any("error", err))
			c.release()
		}
	}()

	err = c.initDevice(factory)
	if err != nil {
		return nil, err
	}

	err = c.createSwapChain(factory)
	if err != nil {
		return nil, err
	}

	err = c.createRenderTargets()
	if err != nil {
		return nil, err
	}

	err = c.buildPipeline(shaders)
	if err != nil {
		return nil, err
	}

	err = c.createCommandInfrastructure()
	if err != nil {
		return nil, err
	}

	err = c.uploadTriangle()
	if err != nil {
		return nil, err
	}

	err = c.createFence()
	if err != nil {
		return nil, err
	}

	err = c.WaitForPreviousFrame()
	if err != nil {
		return nil, err
	}

	c.log.Info("render context ready",
		slog.String("adapter", c.adapter.Description()),
		slog.Int("width", int(c.viewport.Width)),
		slog.Int("height", int(c.viewport.Height)),
		slog.String("format", c.swapChain.Desc().Format.String()),
		slog.Int("frameIndex", c.frameIndex))
	return c, nil
}

// ID identifies the context in log records.
func (c *Context) ID() uuid.UUID { return c.id }

// FrameIndex is the back buffer the next frame records into.
func (c *Context) FrameIndex() int { return c.frameIndex }

// FenceValue is the value the next fence signal will carry.
func (c *Context) FenceValue() uint64 { return c.fenceValue }

func (c *Context) Viewport() gfx.Viewport { return c.viewport }

func (c *Context) ScissorRect() gfx.Rect { return c.scissor }

// ClearColor is the color every frame clears its back buffer to.
func (c *Context) ClearColor() math32.Color4 { return c.clearColor }

func (c *Context) VertexBufferView() gfx.VertexBufferView { return c.vertexBufferView }

func (c *Context) State() State { return c.state }

func (c *Context) Stats() FrameStats { return c.stats }

// Close waits for the last submitted frame to retire and releases every object the
// context owns, children before the device. After a failure in the fence path the
// fence is not used again; the queue is idled instead when work is still outstanding.
// Calling Close again is a no-op.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.failed == nil || !IsKind(c.failed, KindSynchronization) {
		err = c.WaitForPreviousFrame()
	}

	if c.outstanding {
		idleErr := c.queue.WaitIdle()
		if idleErr != nil {
			c.log.Error("queue did not go idle", slog.Any("error", idleErr))
			if err == nil {
				err = syncError("WaitIdle", idleErr)
			}
		}
		c.outstanding = false
	}

	c.release()
	c.log.Info("render context closed", slog.Uint64("frames", c.stats.Frames))
	return err
}

func (c *Context) release() {
	if c.fenceEvent != nil {
		c.fenceEvent.Release()
		c.fenceEvent = nil
	}

	if c.fence != nil {
		c.fence.Release()
		c.fence = nil
	}

	if c.vertexBuffer != nil {
		c.vertexBuffer.Release()
		c.vertexBuffer = nil
	}

	if c.commandList != nil {
		c.commandList.Release()
		c.commandList = nil
	}

	if c.allocator != nil {
		c.allocator.Release()
		c.allocator = nil
	}

	if c.pipelineState != nil {
		c.pipelineState.Release()
		c.pipelineState = nil
	}

	if c.rootSignature != nil {
		c.rootSignature.Release()
		c.rootSignature = nil
	}

	for i, target := range c.renderTargets {
		if target != nil {
			target.Release()
			c.renderTargets[i] = nil
		}
	}

	if c.rtvHeap != nil {
		c.rtvHeap.Release()
		c.rtvHeap = nil
	}

	if c.swapChain != nil {
		c.swapChain.Release()
		c.swapChain = nil
	}

	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}

	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
}
