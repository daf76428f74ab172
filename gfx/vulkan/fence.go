package vulkan

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/triangle/gfx"
)

type pendingSignal struct {
	value uint64
	fence core1_0.Fence
}

// Fence emulates a value-carrying fence. Every Signal submits a binary VkFence; the
// completed value is the value of the newest signal whose VkFence has fired. Signals
// retire in submission order because they go to a single queue.
type Fence struct {
	device    *Device
	completed uint64
	pending   []pendingSignal
}

var _ gfx.Fence = (*Fence)(nil)

func (f *Fence) enqueue(value uint64, fence core1_0.Fence) {
	f.pending = append(f.pending, pendingSignal{value: value, fence: fence})
}

// retire waits up to timeout for pending signals up to target and recycles their
// VkFences. A zero timeout only polls.
func (f *Fence) retire(target uint64, timeout time.Duration) error {
	for len(f.pending) > 0 && f.pending[0].value <= target {
		next := f.pending[0]
		res, err := f.device.driver.WaitForFences(true, timeout, next.fence)
		if err != nil {
			return errors.Wrap(err, "wait for fence")
		}
		if res == core1_0.VKTimeout {
			return gfx.ErrWaitTimeout
		}

		f.pending = f.pending[1:]
		if next.value > f.completed {
			f.completed = next.value
		}

		err = f.device.recycleFence(next.fence)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *Fence) CompletedValue() uint64 {
	err := f.retire(^uint64(0), 0)
	if err != nil && !errors.Is(err, gfx.ErrWaitTimeout) {
		f.device.factory.log.Error("fence poll failed", slog.Any("error", err))
	}
	return f.completed
}

func (f *Fence) SetEventOnCompletion(value uint64, event gfx.Event) error {
	ev, ok := event.(*Event)
	if !ok {
		return errors.Errorf("vulkan: foreign event %T", event)
	}

	ev.fence = f
	ev.value = value
	return nil
}

// Release waits for outstanding signals so their VkFences can be reused.
func (f *Fence) Release() {
	_ = f.retire(^uint64(0), common.NoTimeout)
	f.pending = nil
}

// Event is armed by SetEventOnCompletion and consumed by the next Wait.
type Event struct {
	name  string
	fence *Fence
	value uint64
}

var _ gfx.Event = (*Event)(nil)

func (e *Event) Wait(timeout time.Duration) error {
	if e.fence == nil {
		return errors.Errorf("vulkan: event %q was never armed", e.name)
	}

	if timeout == gfx.Infinite {
		timeout = common.NoTimeout
	}

	err := e.fence.retire(e.value, timeout)
	if err != nil {
		return err
	}
	if e.fence.completed < e.value {
		return errors.Errorf("vulkan: event %q armed for %d but no signal reaches it", e.name, e.value)
	}

	e.fence = nil
	return nil
}

func (e *Event) Release() {
	e.fence = nil
}
