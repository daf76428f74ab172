package gfxtest

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/triangle/gfx"
)

// Submission is one command list as it was executed.
type Submission struct {
	Commands []Command
}

// Queue executes work on a dedicated goroutine in submission order.
type Queue struct {
	device  *Device
	kind    gfx.CommandListType
	latency time.Duration

	jobs chan func()
	done chan struct{}

	mu          sync.Mutex
	submissions []Submission
	signals     []uint64
	released    bool
}

var _ gfx.CommandQueue = (*Queue)(nil)

func newQueue(d *Device, kind gfx.CommandListType) *Queue {
	q := &Queue{
		device:  d,
		kind:    kind,
		latency: d.gpu.opts.Latency,
		jobs:    make(chan func(), 64),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for job := range q.jobs {
		if q.latency > 0 {
			time.Sleep(q.latency)
		}
		job()
	}
}

func (q *Queue) enqueue(job func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return gfx.ErrReleased
	}
	q.jobs <- job
	return nil
}

func (q *Queue) ExecuteCommandLists(lists ...gfx.GraphicsCommandList) error {
	if err := q.device.gpu.fail("ExecuteCommandLists"); err != nil {
		return err
	}

	for _, l := range lists {
		list, ok := l.(*CommandList)
		if !ok {
			return errors.Errorf("gfxtest: foreign command list %T", l)
		}
		if !list.Closed() {
			return gfx.ErrListNotClosed
		}
		buffers, err := list.execute()
		if err != nil {
			return err
		}

		alloc := list.allocator()
		inFlight := func(n int) {
			alloc.addInFlight(n)
			list.addInFlight(n)
			for _, buf := range buffers {
				buf.addInFlight(n)
			}
		}
		inFlight(1)
		q.mu.Lock()
		q.submissions = append(q.submissions, Submission{Commands: list.Commands()})
		q.mu.Unlock()

		err = q.enqueue(func() {
			inFlight(-1)
		})
		if err != nil {
			inFlight(-1)
			return err
		}
	}
	return nil
}

func (q *Queue) Signal(fence gfx.Fence, value uint64) error {
	if err := q.device.gpu.fail("Signal"); err != nil {
		return err
	}

	f, ok := fence.(*Fence)
	if !ok {
		return errors.Errorf("gfxtest: foreign fence %T", fence)
	}

	q.mu.Lock()
	q.signals = append(q.signals, value)
	q.mu.Unlock()

	return q.enqueue(func() {
		f.complete(value)
	})
}

func (q *Queue) WaitIdle() error {
	if err := q.device.gpu.fail("WaitIdle"); err != nil {
		return err
	}

	idle := make(chan struct{})
	err := q.enqueue(func() {
		close(idle)
	})
	if err != nil {
		return err
	}
	<-idle
	return nil
}

// Submissions returns every executed command list, oldest first.
func (q *Queue) Submissions() []Submission {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Submission(nil), q.submissions...)
}

// Signals returns the value of every Signal call, oldest first.
func (q *Queue) Signals() []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uint64(nil), q.signals...)
}

// Release stops the GPU goroutine after it drained the queued work.
func (q *Queue) Release() {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return
	}
	q.released = true
	close(q.jobs)
	q.mu.Unlock()

	<-q.done
	q.device.gpu.untrack("CommandQueue")
}

type SwapChain struct {
	gpu    *GPU
	queue  *Queue
	window gfx.Window
	desc   gfx.SwapChainDesc
	images []*image

	mu       sync.Mutex
	index    int
	presents []int
	released bool
}

var _ gfx.SwapChain = (*SwapChain)(nil)

func (s *SwapChain) Desc() gfx.SwapChainDesc {
	return s.desc
}

func (s *SwapChain) GetBuffer(index int) (gfx.Resource, error) {
	if err := s.gpu.fail("GetBuffer"); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.images) {
		return nil, errors.Errorf("gfxtest: swap chain buffer %d out of range [0,%d)", index, len(s.images))
	}

	s.gpu.track("Resource")
	return &BackBuffer{gpu: s.gpu, img: s.images[index]}, nil
}

func (s *SwapChain) CurrentBackBufferIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Present hands the current back buffer to the display and flips to the next one.
// The buffer must have been transitioned back to the present state.
func (s *SwapChain) Present(syncInterval int, flags uint32) error {
	if err := s.gpu.fail("Present"); err != nil {
		return err
	}
	if syncInterval < 0 || syncInterval > 4 {
		return errors.Errorf("gfxtest: invalid sync interval %d", syncInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.images[s.index]
	if st := img.State(); st != gfx.ResourceStatePresent {
		return errors.Wrapf(gfx.ErrInvalidState, "gfxtest: presenting buffer %d in state %s", s.index, st)
	}
	s.presents = append(s.presents, s.index)
	s.index = (s.index + 1) % len(s.images)
	return nil
}

// Presents returns the back buffer index of every present, oldest first.
func (s *SwapChain) Presents() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.presents...)
}

// BufferState reports the current state of swap chain image index.
func (s *SwapChain) BufferState(index int) gfx.ResourceState {
	return s.images[index].State()
}

func (s *SwapChain) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.gpu.untrack("SwapChain")
}
