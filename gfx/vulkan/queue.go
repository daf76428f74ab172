package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/triangle/gfx"
)

// Queue submits to the graphics queue and presents on the present queue, which may be
// the same VkQueue.
type Queue struct {
	device   *Device
	graphics core1_0.Queue
	present  core1_0.Queue

	// swapChain is the chain presenting from this queue, if any. Its image acquisition
	// and render completion are chained to submissions through semaphores.
	swapChain *SwapChain
}

var _ gfx.CommandQueue = (*Queue)(nil)

func (q *Queue) ExecuteCommandLists(lists ...gfx.GraphicsCommandList) error {
	submit := core1_0.SubmitInfo{}
	submitted := make([]*CommandList, 0, len(lists))
	for _, l := range lists {
		list, ok := l.(*CommandList)
		if !ok {
			return errors.Errorf("vulkan: foreign command list %T", l)
		}
		if list.recording {
			return gfx.ErrListNotClosed
		}
		submit.CommandBuffers = append(submit.CommandBuffers, list.buffer)
		submitted = append(submitted, list)
	}

	if sc := q.swapChain; sc != nil && sc.acquirePending {
		submit.WaitSemaphores = []core1_0.Semaphore{sc.imageAvailable[sc.acquireSlot]}
		submit.WaitDstStageMask = []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput}
		submit.SignalSemaphores = []core1_0.Semaphore{sc.renderFinished[sc.index]}
		sc.acquirePending = false
		sc.renderPending = true
	}

	_, err := q.device.driver.QueueSubmit(q.graphics, nil, submit)
	if err != nil {
		return errors.Wrap(err, "queue submit")
	}

	// Later recordings can rely on the layouts these lists leave behind.
	for _, list := range submitted {
		for _, image := range list.transitioned {
			image.initialized = true
		}
	}
	return nil
}

// Signal submits an empty batch carrying a VkFence, which fires once all earlier
// submissions on the queue completed.
func (q *Queue) Signal(fence gfx.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return errors.Errorf("vulkan: foreign fence %T", fence)
	}

	vkFence, err := q.device.acquireFence()
	if err != nil {
		return err
	}

	_, err = q.device.driver.QueueSubmit(q.graphics, &vkFence)
	if err != nil {
		_ = q.device.recycleFence(vkFence)
		return errors.Wrap(err, "queue signal")
	}

	f.enqueue(value, vkFence)
	return nil
}

func (q *Queue) WaitIdle() error {
	_, err := q.device.driver.QueueWaitIdle(q.graphics)
	if err != nil {
		return errors.Wrap(err, "wait for graphics queue")
	}
	if q.present != q.graphics {
		_, err = q.device.driver.QueueWaitIdle(q.present)
		if err != nil {
			return errors.Wrap(err, "wait for present queue")
		}
	}
	return nil
}

func (q *Queue) Release() {
	if q.device.driver == nil {
		return
	}
	_ = q.WaitIdle()
}
