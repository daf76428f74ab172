// Package gfxtest is an in-memory GPU implementing the gfx interfaces.
//
// The queue executes submissions on its own goroutine, in order, optionally after a
// configurable latency, so fence waits really block. Command lists are validated when
// they execute: resource states must match the declared barrier transitions, draws need
// a bound pipeline, viewport, scissor, vertex buffer and render target, and allocators
// may not be reset while their lists are still in flight. Releasing a list or buffer
// the GPU has not finished with is recorded as a violation. Every created object is
// counted until released so tests can check for leaks.
package gfxtest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/triangle/gfx"
)

type Options struct {
	// Adapters is the number of adapters reported by enumeration.
	Adapters int
	// StartIndex is the back buffer index a new swap chain reports.
	StartIndex int
	// Latency delays every queue job on the GPU goroutine.
	Latency time.Duration
}

type Option func(*Options)

func WithAdapters(n int) Option {
	return func(o *Options) { o.Adapters = n }
}

func WithStartIndex(i int) Option {
	return func(o *Options) { o.StartIndex = i }
}

func WithLatency(d time.Duration) Option {
	return func(o *Options) { o.Latency = d }
}

// GPU is the factory of the simulated device. It doubles as the bookkeeper for live
// objects and injected failures.
type GPU struct {
	opts Options

	mu           sync.Mutex
	live         map[string]int
	failures     map[string]error
	violations   []string
	debugEnabled bool
	enumerated   bool
	nextAddress  uint64

	queues     []*Queue
	swapChains []*SwapChain
}

var _ gfx.Factory = (*GPU)(nil)

func New(options ...Option) *GPU {
	opts := Options{Adapters: 1}
	for _, o := range options {
		o(&opts)
	}

	g := &GPU{
		opts:        opts,
		live:        make(map[string]int),
		failures:    make(map[string]error),
		nextAddress: 0x10000000,
	}
	g.track("Factory")
	return g
}

// FailOn makes the next call of the named operation return err.
func (g *GPU) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = err
}

func (g *GPU) fail(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err, ok := g.failures[op]
	if !ok {
		return nil
	}
	delete(g.failures, op)
	return errors.Wrapf(err, "gfxtest: %s", op)
}

// violate records a use the real API forbids but cannot report synchronously.
func (g *GPU) violate(format string, args ...any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.violations = append(g.violations, fmt.Sprintf(format, args...))
}

// Violations lists every forbidden use seen so far, such as releasing a command list
// or buffer the GPU is still executing.
func (g *GPU) Violations() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.violations...)
}

func (g *GPU) track(kind string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[kind]++
}

func (g *GPU) untrack(kind string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[kind]--
	if g.live[kind] == 0 {
		delete(g.live, kind)
	}
}

// Live reports the number of unreleased objects of each kind, excluding the factory.
func (g *GPU) Live() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int, len(g.live))
	for kind, n := range g.live {
		if kind == "Factory" {
			continue
		}
		out[kind] = n
	}
	return out
}

// LiveKinds lists the kinds that still have unreleased objects, sorted.
func (g *GPU) LiveKinds() []string {
	var kinds []string
	for kind := range g.Live() {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func (g *GPU) DebugLayerEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.debugEnabled
}

// Queue returns the n-th queue created on any device of this GPU.
func (g *GPU) Queue(n int) *Queue {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queues[n]
}

// SwapChain returns the n-th swap chain created by this GPU.
func (g *GPU) SwapChain(n int) *SwapChain {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.swapChains[n]
}

func (g *GPU) allocateAddress(size int) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	addr := g.nextAddress
	g.nextAddress += uint64((size + 0xffff) &^ 0xffff)
	return addr
}

func (g *GPU) Release() {
	g.untrack("Factory")
}

func (g *GPU) EnableDebugLayer() error {
	if err := g.fail("EnableDebugLayer"); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.enumerated {
		return gfx.ErrDebugLayerTooLate
	}
	g.debugEnabled = true
	return nil
}

type adapter struct {
	index int
}

func (a adapter) Description() string {
	return fmt.Sprintf("gfxtest adapter %d", a.index)
}

func (g *GPU) Adapters() ([]gfx.Adapter, error) {
	if err := g.fail("Adapters"); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.enumerated = true
	g.mu.Unlock()

	var adapters []gfx.Adapter
	for i := 0; i < g.opts.Adapters; i++ {
		adapters = append(adapters, adapter{index: i})
	}
	return adapters, nil
}

func (g *GPU) CreateDevice(a gfx.Adapter) (gfx.Device, error) {
	if err := g.fail("CreateDevice"); err != nil {
		return nil, err
	}
	if _, ok := a.(adapter); !ok {
		return nil, errors.Errorf("gfxtest: foreign adapter %T", a)
	}

	g.track("Device")
	return &Device{gpu: g}, nil
}

func (g *GPU) CreateSwapChain(q gfx.CommandQueue, window gfx.Window, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	if err := g.fail("CreateSwapChain"); err != nil {
		return nil, err
	}

	queue, ok := q.(*Queue)
	if !ok {
		return nil, errors.Errorf("gfxtest: foreign queue %T", q)
	}
	if desc.BufferCount < 2 {
		return nil, errors.Errorf("gfxtest: flip swap chains need at least 2 buffers, got %d", desc.BufferCount)
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, errors.Errorf("gfxtest: invalid swap chain size %dx%d", desc.Width, desc.Height)
	}

	sc := &SwapChain{
		gpu:    g,
		queue:  queue,
		window: window,
		desc:   desc,
		index:  g.opts.StartIndex % desc.BufferCount,
	}
	for i := 0; i < desc.BufferCount; i++ {
		sc.images = append(sc.images, &image{name: "backbuffer", index: i, state: gfx.ResourceStatePresent})
	}

	g.track("SwapChain")
	g.mu.Lock()
	g.swapChains = append(g.swapChains, sc)
	g.mu.Unlock()
	return sc, nil
}

// Window is a fixed-size host window.
type Window struct {
	Width, Height int
}

func (w Window) ClientSize() (int, int) {
	return w.Width, w.Height
}
