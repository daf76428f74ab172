// Package vulkan implements the gfx interfaces on Vulkan through vkngwrapper, presenting
// into an SDL2 window.
//
// The Vulkan instance is created lazily by the first call to Adapters, so the validation
// layer can only be requested before that. Fences carrying a 64-bit value are emulated
// with a pool of binary VkFences, and the swap chain acquires its next image right after
// every present so the current back buffer index is known before recording starts.
package vulkan

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/triangle/gfx"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Factory struct {
	window *sdl.Window
	log    *slog.Logger
	title  string

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver

	debug          bool
	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface
}

var _ gfx.Factory = (*Factory)(nil)

// NewFactory loads the Vulkan driver through SDL. window must have been created with
// sdl.WINDOW_VULKAN and must outlive the factory.
func NewFactory(window *sdl.Window, title string, logger *slog.Logger) (*Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	globalDriver, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan driver")
	}

	return &Factory{
		window:       window,
		log:          logger.With(slog.String("backend", "vulkan")),
		title:        title,
		globalDriver: globalDriver,
	}, nil
}

func (f *Factory) EnableDebugLayer() error {
	if f.instanceDriver != nil {
		return gfx.ErrDebugLayerTooLate
	}

	layers, _, err := f.globalDriver.AvailableLayers()
	if err != nil {
		return errors.Wrap(err, "enumerate layers")
	}
	for _, layer := range validationLayers {
		_, hasValidation := layers[layer]
		if !hasValidation {
			return errors.Newf("validation layer %s not available, install the LunarG Vulkan SDK", layer)
		}
	}

	f.debug = true
	return nil
}

func (f *Factory) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    f.title,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := f.window.VulkanGetInstanceExtensions()
	extensions, _, err := f.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("missing instance extension %s required by sdl", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if f.debug {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, validationLayers...)
		instanceOptions.Next = f.debugMessengerOptions()
	}

	instance, _, err := f.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}

	f.instanceDriver, err = f.globalDriver.BuildInstanceDriver(instance)
	if err != nil {
		return errors.Wrap(err, "build instance driver")
	}

	if f.debug {
		f.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(f.instanceDriver)
		f.debugMessenger, _, err = f.debugDriver.CreateDebugUtilsMessenger(nil, f.debugMessengerOptions())
		if err != nil {
			return errors.Wrap(err, "create debug messenger")
		}
	}

	f.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(f.instanceDriver)
	f.surface, err = vkng_sdl2.CreateSurface(f.instanceDriver.Instance(), f.surfaceExtension, f.window)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}

	return nil
}

func (f *Factory) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    f.logDebug,
	}
}

func (f *Factory) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if (severity & ext_debug_utils.SeverityError) != 0 {
		level = slog.LevelError
	}
	f.log.Log(context.Background(), level, data.Message, slog.String("type", msgType.String()))
	return false
}

type queueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *queueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

type adapter struct {
	physicalDevice core1_0.PhysicalDevice
	name           string
	indices        queueFamilyIndices
}

func (a *adapter) Description() string {
	return a.name
}

// Adapters lists the physical devices that can render to and present on the window
// surface. The first call creates the instance.
func (f *Factory) Adapters() ([]gfx.Adapter, error) {
	if f.instanceDriver == nil {
		err := f.createInstance()
		if err != nil {
			return nil, err
		}
	}

	physicalDevices, _, err := f.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}

	var adapters []gfx.Adapter
	for _, device := range physicalDevices {
		indices, err := f.findQueueFamilies(device)
		if err != nil {
			return nil, err
		}
		if !indices.IsComplete() || !f.checkDeviceExtensionSupport(device) {
			continue
		}

		properties, err := f.instanceDriver.GetPhysicalDeviceProperties(device)
		if err != nil {
			return nil, errors.Wrap(err, "physical device properties")
		}

		adapters = append(adapters, &adapter{
			physicalDevice: device,
			name:           properties.DriverName,
			indices:        indices,
		})
	}

	return adapters, nil
}

func (f *Factory) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := f.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

func (f *Factory) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilyIndices, error) {
	indices := queueFamilyIndices{}
	queueFamilies := f.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = queueFamilyIdx
		}

		supported, _, err := f.surfaceExtension.GetPhysicalDeviceSurfaceSupport(f.surface, device, queueFamilyIdx)
		if err != nil {
			return indices, errors.Wrap(err, "surface support")
		}

		if supported {
			indices.PresentFamily = new(int)
			*indices.PresentFamily = queueFamilyIdx
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

func (f *Factory) CreateDevice(a gfx.Adapter) (gfx.Device, error) {
	chosen, ok := a.(*adapter)
	if !ok {
		return nil, errors.Errorf("vulkan: foreign adapter %T", a)
	}

	uniqueQueueFamilies := []int{*chosen.indices.GraphicsFamily}
	if uniqueQueueFamilies[0] != *chosen.indices.PresentFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, *chosen.indices.PresentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string(nil), deviceExtensions...)

	// Needed on portability implementations such as MoltenVK.
	extensions, _, err := f.instanceDriver.EnumerateDeviceExtensionProperties(chosen.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate device extensions")
	}
	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, _, err := f.instanceDriver.CreateDevice(chosen.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueFamilyOptions,
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create device")
	}

	deviceDriver, err := f.instanceDriver.BuildDeviceDriver(device)
	if err != nil {
		return nil, errors.Wrap(err, "build device driver")
	}

	return newDevice(f, chosen, deviceDriver), nil
}

func (f *Factory) Release() {
	if f.surface.Initialized() {
		f.surfaceExtension.DestroySurface(f.surface, nil)
		f.surface = khr_surface.Surface{}
	}

	if f.debugMessenger.Initialized() {
		f.debugDriver.DestroyDebugUtilsMessenger(f.debugMessenger, nil)
		f.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if f.instanceDriver != nil {
		f.instanceDriver.DestroyInstance(nil)
		f.instanceDriver = nil
	}
}

// Window adapts an SDL window to gfx.Window.
type Window struct {
	*sdl.Window
}

func (w Window) ClientSize() (int, int) {
	width, height := w.VulkanGetDrawableSize()
	return int(width), int(height)
}
