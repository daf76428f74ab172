package gfxtest

import (
	"sync"

	"github.com/vkngwrapper/triangle/gfx"
)

// Buffer is a committed buffer resource.
type Buffer struct {
	device  *Device
	address uint64
	heap    gfx.HeapType

	mu         sync.Mutex
	data       []byte
	state      gfx.ResourceState
	mapped     int
	maps       int
	readRanges []*gfx.Range
	inFlight   int
	released   bool
}

var _ gfx.Resource = (*Buffer)(nil)

func (b *Buffer) GPUVirtualAddress() uint64 {
	return b.address
}

func (b *Buffer) Map(readRange *gfx.Range) ([]byte, error) {
	if err := b.device.gpu.fail("Map"); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, gfx.ErrReleased
	}
	if b.heap != gfx.HeapTypeUpload {
		return nil, gfx.ErrNotMappable
	}

	var recorded *gfx.Range
	if readRange != nil {
		r := *readRange
		recorded = &r
	}
	b.readRanges = append(b.readRanges, recorded)
	b.mapped++
	b.maps++
	return b.data, nil
}

func (b *Buffer) Unmap(writtenRange *gfx.Range) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mapped > 0 {
		b.mapped--
	}
}

// ReadRanges returns the read range passed to each Map call, in order. A nil entry
// means the whole buffer was declared readable.
func (b *Buffer) ReadRanges() []*gfx.Range {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*gfx.Range(nil), b.readRanges...)
}

// Mapped reports whether a mapping is outstanding.
func (b *Buffer) Mapped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mapped > 0
}

func (b *Buffer) addInFlight(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight += n
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

func (b *Buffer) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	inFlight := b.inFlight
	b.mu.Unlock()

	if inFlight > 0 {
		b.device.gpu.violate("buffer %#x released with %d submission(s) in flight", b.address, inFlight)
	}

	b.device.mu.Lock()
	delete(b.device.buffers, b.address)
	b.device.mu.Unlock()
	b.device.gpu.untrack("Resource")
}

type image struct {
	name  string
	index int

	mu    sync.Mutex
	state gfx.ResourceState
}

func (i *image) State() gfx.ResourceState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *image) transition(before, after gfx.ResourceState) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != before {
		return false
	}
	i.state = after
	return true
}

// BackBuffer is a reference to one swap chain image. Each GetBuffer call returns a new
// reference that must be released on its own.
type BackBuffer struct {
	gpu      *GPU
	img      *image
	released bool
}

var _ gfx.Resource = (*BackBuffer)(nil)

func (b *BackBuffer) Index() int {
	return b.img.index
}

func (b *BackBuffer) State() gfx.ResourceState {
	return b.img.State()
}

func (b *BackBuffer) GPUVirtualAddress() uint64 {
	return 0
}

func (b *BackBuffer) Map(*gfx.Range) ([]byte, error) {
	return nil, gfx.ErrNotMappable
}

func (b *BackBuffer) Unmap(*gfx.Range) {}

func (b *BackBuffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.gpu.untrack("Resource")
}

// BackBufferIndex returns the swap chain index res refers to, or -1.
func BackBufferIndex(res gfx.Resource) int {
	bb, ok := res.(*BackBuffer)
	if !ok {
		return -1
	}
	return bb.Index()
}
