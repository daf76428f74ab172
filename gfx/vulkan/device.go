package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/triangle/gfx"
)

type renderPassKey struct {
	format core1_0.Format
	clear  bool
}

type Device struct {
	factory *Factory
	adapter *adapter
	driver  core1_0.CoreDeviceDriver

	renderPasses map[renderPassKey]core1_0.RenderPass

	mu          sync.Mutex
	buffers     map[uint64]*Buffer
	nextAddress uint64
	fencePool   []core1_0.Fence
}

var _ gfx.Device = (*Device)(nil)

func newDevice(f *Factory, a *adapter, driver core1_0.CoreDeviceDriver) *Device {
	return &Device{
		factory:      f,
		adapter:      a,
		driver:       driver,
		renderPasses: make(map[renderPassKey]core1_0.RenderPass),
		buffers:      make(map[uint64]*Buffer),
		nextAddress:  0x10000,
	}
}

// renderPass returns the single-subpass pass drawing into one color attachment of
// format. Every pass keeps the attachment in the color attachment layout; moving to and
// from the present layout is left to explicit barriers.
func (d *Device) renderPass(format core1_0.Format, clear bool) (core1_0.RenderPass, error) {
	key := renderPassKey{format: format, clear: clear}
	if pass, ok := d.renderPasses[key]; ok {
		return pass, nil
	}

	loadOp := core1_0.AttachmentLoadOpLoad
	if clear {
		loadOp = core1_0.AttachmentLoadOpClear
	}

	pass, _, err := d.driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         format,
				Samples:        core1_0.Samples1,
				LoadOp:         loadOp,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutColorAttachmentOptimal,
				FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
	})
	if err != nil {
		return core1_0.RenderPass{}, errors.Wrap(err, "create render pass")
	}

	d.renderPasses[key] = pass
	return pass, nil
}

func (d *Device) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.factory.instanceDriver.GetPhysicalDeviceMemoryProperties(d.adapter.physicalDevice)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Errorf("no memory type with properties %s", properties)
}

func (d *Device) allocateAddress(size int) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := d.nextAddress
	d.nextAddress += uint64((size + 0xffff) &^ 0xffff)
	return addr
}

func (d *Device) buffer(address uint64) (*Buffer, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for base, buf := range d.buffers {
		if address >= base && address < base+uint64(buf.size) {
			return buf, address - base, true
		}
	}
	return nil, 0, false
}

func (d *Device) acquireFence() (core1_0.Fence, error) {
	d.mu.Lock()
	if n := len(d.fencePool); n > 0 {
		fence := d.fencePool[n-1]
		d.fencePool = d.fencePool[:n-1]
		d.mu.Unlock()
		return fence, nil
	}
	d.mu.Unlock()

	fence, _, err := d.driver.CreateFence(nil, core1_0.FenceCreateInfo{})
	if err != nil {
		return core1_0.Fence{}, errors.Wrap(err, "create fence")
	}
	return fence, nil
}

func (d *Device) recycleFence(fence core1_0.Fence) error {
	_, err := d.driver.ResetFences(fence)
	if err != nil {
		return errors.Wrap(err, "reset fence")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.fencePool = append(d.fencePool, fence)
	return nil
}

func (d *Device) CreateCommandQueue(kind gfx.CommandListType) (gfx.CommandQueue, error) {
	if kind != gfx.CommandListDirect {
		return nil, errors.Errorf("vulkan: unsupported queue type %s", kind)
	}

	return &Queue{
		device:   d,
		graphics: d.driver.GetQueue(*d.adapter.indices.GraphicsFamily, 0),
		present:  d.driver.GetQueue(*d.adapter.indices.PresentFamily, 0),
	}, nil
}

func (d *Device) CreateDescriptorHeap(desc gfx.DescriptorHeapDesc) (gfx.DescriptorHeap, error) {
	if desc.Type != gfx.DescriptorHeapRTV {
		return nil, errors.Errorf("vulkan: unsupported descriptor heap type %d", desc.Type)
	}
	if desc.NumDescriptors <= 0 {
		return nil, errors.New("vulkan: descriptor heap needs at least one descriptor")
	}

	return &DescriptorHeap{
		device: d,
		desc:   desc,
		views:  make([]*renderTargetView, desc.NumDescriptors),
	}, nil
}

func (d *Device) CreateRenderTargetView(res gfx.Resource, handle gfx.CPUDescriptorHandle) error {
	heap, ok := handle.Heap.(*DescriptorHeap)
	if !ok {
		return errors.Errorf("vulkan: foreign descriptor heap %T", handle.Heap)
	}
	if handle.Slot < 0 || handle.Slot >= len(heap.views) {
		return errors.Errorf("vulkan: descriptor slot %d out of range [0,%d)", handle.Slot, len(heap.views))
	}
	target, ok := res.(*BackBuffer)
	if !ok {
		return errors.Errorf("vulkan: render target views need a swap chain buffer, got %T", res)
	}

	view, err := d.createRenderTargetView(target)
	if err != nil {
		return err
	}

	if old := heap.views[handle.Slot]; old != nil {
		old.destroy()
	}
	heap.views[handle.Slot] = view
	return nil
}

func (d *Device) createRenderTargetView(target *BackBuffer) (*renderTargetView, error) {
	sc := target.swapChain
	imageView, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    target.image.handle,
		ViewType: core1_0.ImageViewType2D,
		Format:   sc.format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}

	pass, err := d.renderPass(sc.format, false)
	if err != nil {
		d.driver.DestroyImageView(imageView, nil)
		return nil, err
	}

	framebuffer, _, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  pass,
		Layers:      1,
		Attachments: []core1_0.ImageView{imageView},
		Width:       sc.extent.Width,
		Height:      sc.extent.Height,
	})
	if err != nil {
		d.driver.DestroyImageView(imageView, nil)
		return nil, errors.Wrap(err, "create framebuffer")
	}

	return &renderTargetView{
		device:      d,
		image:       target.image,
		format:      sc.format,
		extent:      sc.extent,
		imageView:   imageView,
		framebuffer: framebuffer,
	}, nil
}

func (d *Device) CreateRootSignature(desc gfx.RootSignatureDesc) (gfx.RootSignature, error) {
	if desc.NumParameters != 0 || desc.NumStaticSamplers != 0 {
		return nil, errors.New("vulkan: root signatures with parameters are not supported")
	}

	layout, _, err := d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	return &RootSignature{device: d, desc: desc, layout: layout}, nil
}

func (d *Device) CreateCommandAllocator(kind gfx.CommandListType) (gfx.CommandAllocator, error) {
	if kind != gfx.CommandListDirect {
		return nil, errors.Errorf("vulkan: unsupported allocator type %s", kind)
	}

	pool, _, err := d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: *d.adapter.indices.GraphicsFamily,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}

	return &CommandAllocator{device: d, pool: pool}, nil
}

func (d *Device) CreateCommandList(kind gfx.CommandListType, alloc gfx.CommandAllocator, initial gfx.PipelineState) (gfx.GraphicsCommandList, error) {
	allocator, ok := alloc.(*CommandAllocator)
	if !ok {
		return nil, errors.Errorf("vulkan: foreign allocator %T", alloc)
	}

	buffers, _, err := d.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        allocator.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffer")
	}

	list := &CommandList{device: d, buffer: buffers[0]}
	err = list.begin(allocator, initial)
	if err != nil {
		d.driver.FreeCommandBuffers(buffers...)
		return nil, err
	}
	return list, nil
}

func (d *Device) CreateCommittedResource(desc gfx.BufferDesc) (gfx.Resource, error) {
	if desc.Heap != gfx.HeapTypeUpload {
		return nil, errors.Errorf("vulkan: unsupported heap type %d", desc.Heap)
	}
	if desc.Size <= 0 {
		return nil, errors.Errorf("vulkan: buffer size must be positive, got %d", desc.Size)
	}

	buffer, _, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        desc.Size,
		Usage:       core1_0.BufferUsageVertexBuffer,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}

	memRequirements := d.driver.GetBufferMemoryRequirements(buffer)
	memoryTypeIndex, err := d.findMemoryType(memRequirements.MemoryTypeBits, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		return nil, err
	}

	memory, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		return nil, errors.Wrap(err, "allocate memory")
	}

	_, err = d.driver.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		d.driver.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "bind buffer memory")
	}

	buf := &Buffer{
		device:  d,
		buffer:  buffer,
		memory:  memory,
		size:    desc.Size,
		address: d.allocateAddress(desc.Size),
	}

	d.mu.Lock()
	d.buffers[buf.address] = buf
	d.mu.Unlock()
	return buf, nil
}

func (d *Device) CreateFence(initialValue uint64) (gfx.Fence, error) {
	return &Fence{device: d, completed: initialValue}, nil
}

func (d *Device) CreateFenceEvent(name string) (gfx.Event, error) {
	return &Event{name: name}, nil
}

// Release waits for the device to go idle and destroys it. Every child object must
// have been released first.
func (d *Device) Release() {
	if d.driver == nil {
		return
	}

	_, _ = d.driver.DeviceWaitIdle()

	for _, pass := range d.renderPasses {
		d.driver.DestroyRenderPass(pass, nil)
	}
	d.renderPasses = nil

	for _, fence := range d.fencePool {
		d.driver.DestroyFence(fence, nil)
	}
	d.fencePool = nil

	d.driver.DestroyDevice(nil)
	d.driver = nil
}

type DescriptorHeap struct {
	device *Device
	desc   gfx.DescriptorHeapDesc
	views  []*renderTargetView
}

func (h *DescriptorHeap) Desc() gfx.DescriptorHeapDesc {
	return h.desc
}

func (h *DescriptorHeap) CPUHandle(slot int) gfx.CPUDescriptorHandle {
	return gfx.CPUDescriptorHandle{Heap: h, Slot: slot}
}

func (h *DescriptorHeap) view(handle gfx.CPUDescriptorHandle) (*renderTargetView, error) {
	if handle.Heap != gfx.DescriptorHeap(h) {
		return nil, errors.New("vulkan: descriptor handle belongs to another heap")
	}
	if handle.Slot < 0 || handle.Slot >= len(h.views) || h.views[handle.Slot] == nil {
		return nil, errors.Errorf("vulkan: no render target view in slot %d", handle.Slot)
	}
	return h.views[handle.Slot], nil
}

func (h *DescriptorHeap) Release() {
	for i, view := range h.views {
		if view != nil {
			view.destroy()
			h.views[i] = nil
		}
	}
}

type renderTargetView struct {
	device      *Device
	image       *swapImage
	format      core1_0.Format
	extent      core1_0.Extent2D
	imageView   core1_0.ImageView
	framebuffer core1_0.Framebuffer
}

func (v *renderTargetView) destroy() {
	v.device.driver.DestroyFramebuffer(v.framebuffer, nil)
	v.device.driver.DestroyImageView(v.imageView, nil)
}

type RootSignature struct {
	device *Device
	desc   gfx.RootSignatureDesc
	layout core1_0.PipelineLayout
}

func (r *RootSignature) Release() {
	if r.layout.Initialized() {
		r.device.driver.DestroyPipelineLayout(r.layout, nil)
		r.layout = core1_0.PipelineLayout{}
	}
}

type CommandAllocator struct {
	device *Device
	pool   core1_0.CommandPool

	recording int
}

// Reset returns every command buffer of the pool to the initial state. It fails while
// a list allocated from it is recording.
func (a *CommandAllocator) Reset() error {
	if a.recording > 0 {
		return errors.New("vulkan: allocator reset while a command list is recording")
	}

	_, err := a.device.driver.ResetCommandPool(a.pool, 0)
	if err != nil {
		return errors.Wrap(err, "reset command pool")
	}
	return nil
}

func (a *CommandAllocator) Release() {
	if a.pool.Initialized() {
		a.device.driver.DestroyCommandPool(a.pool, nil)
		a.pool = core1_0.CommandPool{}
	}
}
