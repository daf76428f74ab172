package renderer

import (
	"log/slog"

	"github.com/loov/hrtime"

	"github.com/vkngwrapper/triangle/gfx"
)

func (c *Context) createFence() error {
	var err error
	c.fence, err = c.device.CreateFence(0)
	if err != nil {
		return syncError("CreateFence", err)
	}

	c.fenceEvent, err = c.device.CreateFenceEvent("Fence Event")
	if err != nil {
		return syncError("CreateFenceEvent", err)
	}

	return nil
}

// WaitForPreviousFrame blocks until every piece of work submitted so far has
// retired on the GPU, then picks up the back buffer the next frame records into.
func (c *Context) WaitForPreviousFrame() error {
	start := hrtime.Now()

	target := c.fenceValue
	err := c.queue.Signal(c.fence, target)
	if err != nil {
		return syncError("Signal", err)
	}
	c.fenceValue++

	if c.fence.CompletedValue() < target {
		err = c.fence.SetEventOnCompletion(target, c.fenceEvent)
		if err != nil {
			return syncError("SetEventOnCompletion", err)
		}

		err = c.fenceEvent.Wait(gfx.Infinite)
		if err != nil {
			return syncError("Wait", err)
		}
		c.stats.BlockedWaits++
	} else {
		c.stats.SkippedWaits++
	}

	c.outstanding = false
	c.frameIndex = c.swapChain.CurrentBackBufferIndex()
	c.stats.Wait.Add(hrtime.Since(start))

	c.log.Debug("previous frame retired",
		slog.Uint64("fence", target),
		slog.Int("frameIndex", c.frameIndex))
	return nil
}
