package gfxtest

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/triangle/gfx"
)

type waiter struct {
	value uint64
	event *Event
}

type Fence struct {
	gpu *GPU

	mu        sync.Mutex
	completed uint64
	waiters   []waiter
	released  bool
}

var _ gfx.Fence = (*Fence)(nil)

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Fence) SetEventOnCompletion(value uint64, event gfx.Event) error {
	if err := f.gpu.fail("SetEventOnCompletion"); err != nil {
		return err
	}

	ev, ok := event.(*Event)
	if !ok {
		return errors.Errorf("gfxtest: foreign event %T", event)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return gfx.ErrReleased
	}
	if f.completed >= value {
		ev.signal()
		return nil
	}
	f.waiters = append(f.waiters, waiter{value: value, event: ev})
	return nil
}

func (f *Fence) complete(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value > f.completed {
		f.completed = value
	}

	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= f.completed {
			w.event.signal()
			continue
		}
		pending = append(pending, w)
	}
	f.waiters = pending
}

func (f *Fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return
	}
	f.released = true
	f.waiters = nil
	f.gpu.untrack("Fence")
}

// Event is an auto-reset wait handle.
type Event struct {
	gpu      *GPU
	name     string
	ch       chan struct{}
	waits    int
	released bool
}

var _ gfx.Event = (*Event)(nil)

func (e *Event) signal() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

func (e *Event) Wait(timeout time.Duration) error {
	if err := e.gpu.fail("Wait"); err != nil {
		return err
	}

	e.waits++
	if timeout == gfx.Infinite {
		<-e.ch
		return nil
	}

	select {
	case <-e.ch:
		return nil
	case <-time.After(timeout):
		return gfx.ErrWaitTimeout
	}
}

// Waits is the number of times the CPU blocked on the event.
func (e *Event) Waits() int {
	return e.waits
}

func (e *Event) Release() {
	if e.released {
		return
	}
	e.released = true
	e.gpu.untrack("Event")
}
