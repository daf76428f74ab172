package renderer

import (
	"fmt"
	"log/slog"

	"github.com/g3n/engine/math32"
	"github.com/loov/hrtime"

	"github.com/vkngwrapper/triangle/gfx"
)

// State is the position of the context in the per-frame cycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateSubmitted
	StatePresented
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	case StatePresented:
		return "presented"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ClearColor is the default color the back buffer is filled with before the triangle
// is drawn.
var ClearColor = math32.Color4{R: 0, G: 0, B: 0, A: 1}

func rgba(c math32.Color4) [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}

// RenderFrame records, submits and presents one frame, then waits for the GPU to
// retire it. Any failure leaves the context unusable: later calls return
// ErrContextFailed.
func (c *Context) RenderFrame() error {
	if c.closed {
		return ErrClosed
	}
	if c.failed != nil {
		return ErrContextFailed
	}

	err := c.renderFrame()
	if err != nil {
		c.failed = err
		c.log.Error("frame failed", slog.Uint64("frame", c.stats.Frames), slog.Any("error", err))
		return err
	}
	return nil
}

func (c *Context) renderFrame() error {
	start := hrtime.Now()

	c.state = StateRecording
	err := c.populateCommandList()
	if err != nil {
		return err
	}
	recorded := hrtime.Now()

	err = c.queue.ExecuteCommandLists(c.commandList)
	if err != nil {
		return recordingError("ExecuteCommandLists", err)
	}
	c.outstanding = true
	c.state = StateSubmitted

	err = c.swapChain.Present(1, 0)
	if err != nil {
		return recordingError("Present", err)
	}
	c.state = StatePresented
	presented := hrtime.Now()

	err = c.WaitForPreviousFrame()
	if err != nil {
		return err
	}
	c.state = StateIdle

	c.stats.Frames++
	c.stats.Record.Add(recorded - start)
	c.stats.Present.Add(presented - recorded)
	c.stats.Total.Add(hrtime.Since(start))
	c.logStats()
	return nil
}

func (c *Context) populateCommandList() error {
	// Safe only because the previous frame's work has retired.
	err := c.allocator.Reset()
	if err != nil {
		return recordingError("ResetCommandAllocator", err)
	}

	err = c.commandList.Reset(c.allocator, c.pipelineState)
	if err != nil {
		return recordingError("ResetCommandList", err)
	}

	target := c.renderTargets[c.frameIndex]
	rtv := c.rtvHandles[c.frameIndex]

	c.commandList.SetGraphicsRootSignature(c.rootSignature)
	c.commandList.SetViewports(c.viewport)
	c.commandList.SetScissorRects(c.scissor)

	c.commandList.ResourceBarrier(gfx.Transition(target, gfx.ResourceStatePresent, gfx.ResourceStateRenderTarget))

	c.commandList.SetRenderTargets(rtv)
	c.commandList.ClearRenderTargetView(rtv, rgba(c.clearColor))
	c.commandList.SetPrimitiveTopology(gfx.PrimitiveTopologyTriangleList)
	c.commandList.SetVertexBuffers(0, c.vertexBufferView)
	c.commandList.DrawInstanced(len(Triangle), 1, 0, 0)

	c.commandList.ResourceBarrier(gfx.Transition(target, gfx.ResourceStateRenderTarget, gfx.ResourceStatePresent))

	err = c.commandList.Close()
	if err != nil {
		return recordingError("CloseCommandList", err)
	}
	return nil
}
