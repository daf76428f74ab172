package gfxtest

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/triangle/gfx"
)

type Device struct {
	gpu *GPU

	mu       sync.Mutex
	buffers  map[uint64]*Buffer
	lists    []*CommandList
	pipeline []*PipelineState
	released bool
}

var _ gfx.Device = (*Device)(nil)

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true
	d.gpu.untrack("Device")
}

// CommandList returns the n-th command list created on the device.
func (d *Device) CommandList(n int) *CommandList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lists[n]
}

// PipelineState returns the n-th pipeline state created on the device.
func (d *Device) PipelineState(n int) *PipelineState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipeline[n]
}

func (d *Device) buffer(address uint64) (*Buffer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for base, buf := range d.buffers {
		if address >= base && address < base+uint64(len(buf.data)) {
			return buf, true
		}
	}
	return nil, false
}

func (d *Device) CreateCommandQueue(kind gfx.CommandListType) (gfx.CommandQueue, error) {
	if err := d.gpu.fail("CreateCommandQueue"); err != nil {
		return nil, err
	}

	q := newQueue(d, kind)
	d.gpu.track("CommandQueue")
	d.gpu.mu.Lock()
	d.gpu.queues = append(d.gpu.queues, q)
	d.gpu.mu.Unlock()
	return q, nil
}

type DescriptorHeap struct {
	gpu      *GPU
	desc     gfx.DescriptorHeapDesc
	views    []*BackBuffer
	released bool
}

func (d *Device) CreateDescriptorHeap(desc gfx.DescriptorHeapDesc) (gfx.DescriptorHeap, error) {
	if err := d.gpu.fail("CreateDescriptorHeap"); err != nil {
		return nil, err
	}
	if desc.NumDescriptors <= 0 {
		return nil, errors.Errorf("gfxtest: descriptor heap needs at least one descriptor")
	}
	if desc.Type == gfx.DescriptorHeapRTV && desc.ShaderVisible {
		return nil, errors.Errorf("gfxtest: render target view heaps cannot be shader visible")
	}

	d.gpu.track("DescriptorHeap")
	return &DescriptorHeap{
		gpu:   d.gpu,
		desc:  desc,
		views: make([]*BackBuffer, desc.NumDescriptors),
	}, nil
}

func (h *DescriptorHeap) Desc() gfx.DescriptorHeapDesc {
	return h.desc
}

func (h *DescriptorHeap) CPUHandle(slot int) gfx.CPUDescriptorHandle {
	return gfx.CPUDescriptorHandle{Heap: h, Slot: slot}
}

func (h *DescriptorHeap) Release() {
	if h.released {
		return
	}
	h.released = true
	h.gpu.untrack("DescriptorHeap")
}

// View returns the back buffer bound to slot, or nil.
func (h *DescriptorHeap) View(slot int) *BackBuffer {
	return h.views[slot]
}

func (d *Device) CreateRenderTargetView(res gfx.Resource, handle gfx.CPUDescriptorHandle) error {
	if err := d.gpu.fail("CreateRenderTargetView"); err != nil {
		return err
	}

	heap, ok := handle.Heap.(*DescriptorHeap)
	if !ok {
		return errors.Errorf("gfxtest: foreign descriptor heap %T", handle.Heap)
	}
	if heap.desc.Type != gfx.DescriptorHeapRTV {
		return errors.Errorf("gfxtest: descriptor heap is not a render target view heap")
	}
	if handle.Slot < 0 || handle.Slot >= len(heap.views) {
		return errors.Errorf("gfxtest: descriptor slot %d out of range [0,%d)", handle.Slot, len(heap.views))
	}
	bb, ok := res.(*BackBuffer)
	if !ok {
		return errors.Errorf("gfxtest: render target views need a swap chain buffer, got %T", res)
	}

	heap.views[handle.Slot] = bb
	return nil
}

type RootSignature struct {
	gpu      *GPU
	Desc     gfx.RootSignatureDesc
	released bool
}

func (d *Device) CreateRootSignature(desc gfx.RootSignatureDesc) (gfx.RootSignature, error) {
	if err := d.gpu.fail("CreateRootSignature"); err != nil {
		return nil, err
	}

	d.gpu.track("RootSignature")
	return &RootSignature{gpu: d.gpu, Desc: desc}, nil
}

func (r *RootSignature) Release() {
	if r.released {
		return
	}
	r.released = true
	r.gpu.untrack("RootSignature")
}

type PipelineState struct {
	gpu      *GPU
	Desc     gfx.GraphicsPipelineDesc
	released bool
}

func (d *Device) CreateGraphicsPipelineState(desc gfx.GraphicsPipelineDesc) (gfx.PipelineState, error) {
	if err := d.gpu.fail("CreateGraphicsPipelineState"); err != nil {
		return nil, err
	}
	if desc.RootSignature == nil {
		return nil, errors.Errorf("gfxtest: pipeline state needs a root signature")
	}
	if len(desc.VS.Code) == 0 || len(desc.PS.Code) == 0 {
		return nil, errors.Errorf("gfxtest: pipeline state needs vertex and pixel shader bytecode")
	}
	if len(desc.RTVFormats) != 1 {
		return nil, errors.Errorf("gfxtest: expected exactly one render target format, got %d", len(desc.RTVFormats))
	}

	ps := &PipelineState{gpu: d.gpu, Desc: desc}
	d.gpu.track("PipelineState")
	d.mu.Lock()
	d.pipeline = append(d.pipeline, ps)
	d.mu.Unlock()
	return ps, nil
}

func (p *PipelineState) Release() {
	if p.released {
		return
	}
	p.released = true
	p.gpu.untrack("PipelineState")
}

type CommandAllocator struct {
	gpu *GPU

	mu        sync.Mutex
	inFlight  int
	recording int
	resets    int
	released  bool
}

func (d *Device) CreateCommandAllocator(kind gfx.CommandListType) (gfx.CommandAllocator, error) {
	if err := d.gpu.fail("CreateCommandAllocator"); err != nil {
		return nil, err
	}

	d.gpu.track("CommandAllocator")
	return &CommandAllocator{gpu: d.gpu}, nil
}

func (a *CommandAllocator) Reset() error {
	if err := a.gpu.fail("CommandAllocator.Reset"); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight > 0 {
		return errors.Errorf("gfxtest: allocator reset with %d submission(s) still executing", a.inFlight)
	}
	if a.recording > 0 {
		return errors.Errorf("gfxtest: allocator reset while a command list is recording")
	}
	a.resets++
	return nil
}

// Resets is the number of successful allocator resets.
func (a *CommandAllocator) Resets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resets
}

func (a *CommandAllocator) addInFlight(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight += n
}

func (a *CommandAllocator) addRecording(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recording += n
}

func (a *CommandAllocator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	a.gpu.untrack("CommandAllocator")
}

func (d *Device) CreateCommandList(kind gfx.CommandListType, alloc gfx.CommandAllocator, initial gfx.PipelineState) (gfx.GraphicsCommandList, error) {
	if err := d.gpu.fail("CreateCommandList"); err != nil {
		return nil, err
	}

	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return nil, errors.Errorf("gfxtest: foreign allocator %T", alloc)
	}

	list := &CommandList{device: d, kind: kind}
	list.begin(a, initial)

	d.gpu.track("CommandList")
	d.mu.Lock()
	d.lists = append(d.lists, list)
	d.mu.Unlock()
	return list, nil
}

func (d *Device) CreateCommittedResource(desc gfx.BufferDesc) (gfx.Resource, error) {
	if err := d.gpu.fail("CreateCommittedResource"); err != nil {
		return nil, err
	}
	if desc.Size <= 0 {
		return nil, errors.Errorf("gfxtest: buffer size must be positive, got %d", desc.Size)
	}

	buf := &Buffer{
		device:  d,
		address: d.gpu.allocateAddress(desc.Size),
		data:    make([]byte, desc.Size),
		state:   desc.InitialState,
		heap:    desc.Heap,
	}

	d.gpu.track("Resource")
	d.mu.Lock()
	if d.buffers == nil {
		d.buffers = make(map[uint64]*Buffer)
	}
	d.buffers[buf.address] = buf
	d.mu.Unlock()
	return buf, nil
}

func (d *Device) CreateFence(initialValue uint64) (gfx.Fence, error) {
	if err := d.gpu.fail("CreateFence"); err != nil {
		return nil, err
	}

	d.gpu.track("Fence")
	return &Fence{gpu: d.gpu, completed: initialValue}, nil
}

func (d *Device) CreateFenceEvent(name string) (gfx.Event, error) {
	if err := d.gpu.fail("CreateFenceEvent"); err != nil {
		return nil, err
	}

	d.gpu.track("Event")
	return &Event{gpu: d.gpu, name: name, ch: make(chan struct{}, 1)}, nil
}
