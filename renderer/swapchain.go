package renderer

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/triangle/gfx"
)

func (c *Context) createSwapChain(factory gfx.Factory) error {
	width, height := c.window.ClientSize()
	if width <= 0 || height <= 0 {
		return initError("CreateSwapChain", errors.Newf("window client area is %dx%d", width, height))
	}

	var err error
	c.swapChain, err = factory.CreateSwapChain(c.queue, c.window, gfx.SwapChainDesc{
		Width:       width,
		Height:      height,
		Format:      gfx.FormatR8G8B8A8UNorm,
		BufferCount: FrameCount,
		SwapEffect:  gfx.SwapEffectFlipDiscard,
		SampleCount: 1,
	})
	if err != nil {
		return initError("CreateSwapChain", err)
	}

	c.viewport = gfx.Viewport{
		Width:    float32(width),
		Height:   float32(height),
		MaxDepth: 1,
	}
	c.scissor = gfx.Rect{Right: width, Bottom: height}
	c.frameIndex = c.swapChain.CurrentBackBufferIndex()

	c.log.Debug("swap chain created",
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Int("frameIndex", c.frameIndex))
	return nil
}

func (c *Context) createRenderTargets() error {
	var err error
	c.rtvHeap, err = c.device.CreateDescriptorHeap(gfx.DescriptorHeapDesc{
		Type:           gfx.DescriptorHeapRTV,
		NumDescriptors: FrameCount,
	})
	if err != nil {
		return initError("CreateDescriptorHeap", err)
	}

	for i := 0; i < FrameCount; i++ {
		c.renderTargets[i], err = c.swapChain.GetBuffer(i)
		if err != nil {
			return initError("GetBuffer", err)
		}

		c.rtvHandles[i] = c.rtvHeap.CPUHandle(i)
		err = c.device.CreateRenderTargetView(c.renderTargets[i], c.rtvHandles[i])
		if err != nil {
			return initError("CreateRenderTargetView", err)
		}
	}

	return nil
}
