package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/triangle/gfx"
)

// Buffer is a host-visible, coherent vertex buffer. Its GPU virtual address is
// synthetic: it identifies the buffer and an offset within it when a vertex buffer view
// is bound.
type Buffer struct {
	device  *Device
	buffer  core1_0.Buffer
	memory  core1_0.DeviceMemory
	size    int
	address uint64
	mapped  bool
}

var _ gfx.Resource = (*Buffer)(nil)

func (b *Buffer) GPUVirtualAddress() uint64 {
	return b.address
}

// Map maps the whole buffer. The memory is coherent, so neither range needs flushing
// or invalidation.
func (b *Buffer) Map(readRange *gfx.Range) ([]byte, error) {
	if !b.buffer.Initialized() {
		return nil, gfx.ErrReleased
	}
	if b.mapped {
		return nil, errors.New("vulkan: buffer is already mapped")
	}

	memoryPtr, _, err := b.device.driver.MapMemory(b.memory, 0, b.size, 0)
	if err != nil {
		return nil, errors.Wrap(err, "map memory")
	}
	b.mapped = true

	return unsafe.Slice((*byte)(memoryPtr), b.size), nil
}

func (b *Buffer) Unmap(writtenRange *gfx.Range) {
	if !b.mapped {
		return
	}
	b.device.driver.UnmapMemory(b.memory)
	b.mapped = false
}

func (b *Buffer) Release() {
	if !b.buffer.Initialized() {
		return
	}
	b.Unmap(nil)

	b.device.mu.Lock()
	delete(b.device.buffers, b.address)
	b.device.mu.Unlock()

	b.device.driver.DestroyBuffer(b.buffer, nil)
	b.device.driver.FreeMemory(b.memory, nil)
	b.buffer = core1_0.Buffer{}
	b.memory = core1_0.DeviceMemory{}
}

type swapImage struct {
	index  int
	handle core1_0.Image
	// initialized is false until a submitted barrier moved the image out of the
	// undefined layout it is created in.
	initialized bool
}

// BackBuffer refers to one swap chain image. The image itself belongs to the swap chain.
type BackBuffer struct {
	swapChain *SwapChain
	image     *swapImage
}

var _ gfx.Resource = (*BackBuffer)(nil)

func (b *BackBuffer) GPUVirtualAddress() uint64 {
	return 0
}

func (b *BackBuffer) Map(*gfx.Range) ([]byte, error) {
	return nil, gfx.ErrNotMappable
}

func (b *BackBuffer) Unmap(*gfx.Range) {}

func (b *BackBuffer) Release() {}
