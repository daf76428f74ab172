package vulkan

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/triangle/gfx"
)

type swapChainSupportDetails struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

type SwapChain struct {
	device    *Device
	queue     *Queue
	extension khr_swapchain.ExtensionDriver
	swapchain khr_swapchain.Swapchain

	desc   gfx.SwapChainDesc
	format core1_0.Format
	extent core1_0.Extent2D
	images []*swapImage

	// imageAvailable is a ring with one more semaphore than images, so an acquire
	// never reuses a semaphore whose wait is still queued.
	imageAvailable []core1_0.Semaphore
	renderFinished []core1_0.Semaphore
	acquireSlot    int
	index          int
	acquirePending bool
	renderPending  bool
}

var _ gfx.SwapChain = (*SwapChain)(nil)

func (f *Factory) querySwapChainSupport(device core1_0.PhysicalDevice) (swapChainSupportDetails, error) {
	var details swapChainSupportDetails
	var err error

	details.Capabilities, _, err = f.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(f.surface, device)
	if err != nil {
		return details, err
	}

	details.Formats, _, err = f.surfaceExtension.GetPhysicalDeviceSurfaceFormats(f.surface, device)
	if err != nil {
		return details, err
	}

	details.PresentModes, _, err = f.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(f.surface, device)
	return details, err
}

// chooseSurfaceFormat prefers the requested format, then the other 8-bit UNORM layout.
func chooseSurfaceFormat(requested core1_0.Format, availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, preferred := range []core1_0.Format{requested, core1_0.FormatB8G8R8A8UnsignedNormalized, core1_0.FormatR8G8B8A8UnsignedNormalized} {
		for _, format := range availableFormats {
			if format.Format == preferred && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
				return format
			}
		}
	}

	return availableFormats[0]
}

func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	if width < capabilities.MinImageExtent.Width {
		width = capabilities.MinImageExtent.Width
	}
	if width > capabilities.MaxImageExtent.Width {
		width = capabilities.MaxImageExtent.Width
	}
	if height < capabilities.MinImageExtent.Height {
		height = capabilities.MinImageExtent.Height
	}
	if height > capabilities.MaxImageExtent.Height {
		height = capabilities.MaxImageExtent.Height
	}

	return core1_0.Extent2D{Width: width, Height: height}
}

// CreateSwapChain creates a FIFO swap chain with exactly desc.BufferCount images on the
// window surface. The returned Desc carries the format actually used.
func (f *Factory) CreateSwapChain(q gfx.CommandQueue, window gfx.Window, desc gfx.SwapChainDesc) (gfx.SwapChain, error) {
	queue, ok := q.(*Queue)
	if !ok {
		return nil, errors.Errorf("vulkan: foreign queue %T", q)
	}
	if desc.SampleCount != 1 {
		return nil, errors.Errorf("vulkan: swap chains cannot be multisampled, got %d samples", desc.SampleCount)
	}
	device := queue.device

	requested, err := vkFormat(desc.Format)
	if err != nil {
		return nil, err
	}

	support, err := f.querySwapChainSupport(device.adapter.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "query swap chain support")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return nil, errors.New("vulkan: surface reports no formats or present modes")
	}

	caps := support.Capabilities
	if desc.BufferCount < caps.MinImageCount || (caps.MaxImageCount > 0 && desc.BufferCount > caps.MaxImageCount) {
		return nil, errors.Errorf("vulkan: surface supports %d to %d images, %d requested", caps.MinImageCount, caps.MaxImageCount, desc.BufferCount)
	}

	surfaceFormat := chooseSurfaceFormat(requested, support.Formats)
	width, height := window.ClientSize()
	if desc.Width > 0 && desc.Height > 0 {
		width, height = desc.Width, desc.Height
	}
	extent := chooseExtent(caps, width, height)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	indices := device.adapter.indices
	if *indices.GraphicsFamily != *indices.PresentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, *indices.GraphicsFamily, *indices.PresentFamily)
	}

	sc := &SwapChain{
		device:    device,
		queue:     queue,
		extension: khr_swapchain.CreateExtensionDriverFromCoreDriver(device.driver),
		format:    surfaceFormat.Format,
		extent:    extent,
	}

	sc.swapchain, _, err = sc.extension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: f.surface,

		MinImageCount:    desc.BufferCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    khr_surface.PresentModeFIFO,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	err = sc.init(desc)
	if err != nil {
		sc.Release()
		return nil, err
	}

	queue.swapChain = sc
	f.log.Debug("swap chain created",
		slog.Int("width", extent.Width),
		slog.Int("height", extent.Height),
		slog.String("format", sc.desc.Format.String()),
		slog.Int("images", len(sc.images)))
	return sc, nil
}

func (s *SwapChain) init(desc gfx.SwapChainDesc) error {
	images, _, err := s.extension.GetSwapchainImages(s.swapchain)
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	if len(images) != desc.BufferCount {
		return errors.Errorf("vulkan: swapchain created %d images, %d requested", len(images), desc.BufferCount)
	}
	for i, image := range images {
		s.images = append(s.images, &swapImage{index: i, handle: image})
	}

	for i := 0; i < len(images)+1; i++ {
		semaphore, _, err := s.device.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create semaphore")
		}
		s.imageAvailable = append(s.imageAvailable, semaphore)
	}
	for range images {
		semaphore, _, err := s.device.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create semaphore")
		}
		s.renderFinished = append(s.renderFinished, semaphore)
	}

	format, err := gfxFormat(s.format)
	if err != nil {
		return err
	}
	s.desc = desc
	s.desc.Format = format
	s.desc.Width = s.extent.Width
	s.desc.Height = s.extent.Height

	s.acquireSlot = len(s.imageAvailable) - 1
	return s.acquire()
}

func (s *SwapChain) acquire() error {
	s.acquireSlot = (s.acquireSlot + 1) % len(s.imageAvailable)
	imageIndex, _, err := s.extension.AcquireNextImage(s.swapchain, common.NoTimeout, &s.imageAvailable[s.acquireSlot], nil)
	if err != nil {
		return errors.Wrap(err, "acquire next image")
	}

	s.index = imageIndex
	s.acquirePending = true
	return nil
}

func (s *SwapChain) Desc() gfx.SwapChainDesc {
	return s.desc
}

func (s *SwapChain) GetBuffer(index int) (gfx.Resource, error) {
	if index < 0 || index >= len(s.images) {
		return nil, errors.Errorf("vulkan: swap chain buffer %d out of range [0,%d)", index, len(s.images))
	}
	return &BackBuffer{swapChain: s, image: s.images[index]}, nil
}

func (s *SwapChain) CurrentBackBufferIndex() int {
	return s.index
}

// Present queues the current image for display and acquires the next one. The window
// is never resized, so an out of date swapchain is reported as an error.
func (s *SwapChain) Present(syncInterval int, flags uint32) error {
	if syncInterval != 1 {
		return errors.Errorf("vulkan: only a sync interval of 1 is supported, got %d", syncInterval)
	}

	info := khr_swapchain.PresentInfo{
		Swapchains:   []khr_swapchain.Swapchain{s.swapchain},
		ImageIndices: []int{s.index},
	}
	if s.renderPending {
		info.WaitSemaphores = []core1_0.Semaphore{s.renderFinished[s.index]}
		s.renderPending = false
	}

	res, err := s.extension.QueuePresent(s.queue.present, info)
	if res == khr_swapchain.VKErrorOutOfDate {
		return errors.Wrap(err, "swapchain out of date")
	} else if err != nil {
		return errors.Wrap(err, "queue present")
	}

	return s.acquire()
}

func (s *SwapChain) Release() {
	if s.queue != nil && s.queue.swapChain == s {
		s.queue.swapChain = nil
	}

	if s.device.driver != nil {
		_, _ = s.device.driver.DeviceWaitIdle()
	}

	for _, semaphore := range s.renderFinished {
		s.device.driver.DestroySemaphore(semaphore, nil)
	}
	s.renderFinished = nil

	for _, semaphore := range s.imageAvailable {
		s.device.driver.DestroySemaphore(semaphore, nil)
	}
	s.imageAvailable = nil

	if s.swapchain.Initialized() {
		s.extension.DestroySwapchain(s.swapchain, nil)
		s.swapchain = khr_swapchain.Swapchain{}
	}
}
