package vulkan

import (
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
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/logging"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type queueFamilies struct {
	graphics *int
	present  *int
}

func (q queueFamilies) complete() bool {
	return q.graphics != nil && q.present != nil
}

// Instance owns the Vulkan instance, the optional debug messenger and the
// window surface.
type Instance struct {
	window     *sdl.Window
	validation bool

	global    core1_0.GlobalDriver
	driver    core1_0.CoreInstanceDriver
	debug     ext_debug_utils.ExtensionDriver
	messenger ext_debug_utils.DebugUtilsMessenger

	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface
}

// NewInstance creates an instance with the extensions the window needs and
// a surface for it. With validation set the Khronos layer is enabled and
// its messages are logged.
func NewInstance(window *sdl.Window, appName string, validation bool) (*Instance, error) {
	global, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}

	i := &Instance{window: window, validation: validation, global: global}
	if err := i.createInstance(appName); err != nil {
		return nil, err
	}
	if err := i.setupDebugMessenger(); err != nil {
		i.Destroy()
		return nil, err
	}

	i.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(i.driver)
	surface, err := vkng_sdl2.CreateSurface(i.driver.Instance(), i.surfaceExtension, window)
	if err != nil {
		i.Destroy()
		return nil, errors.Wrap(err, "create surface")
	}
	i.surface = surface
	return i, nil
}

func (i *Instance) createInstance(appName string) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    appName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "sponza",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := i.global.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "vkEnumerateInstanceExtensionProperties")
	}
	for _, ext := range i.window.VulkanGetInstanceExtensions() {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("window requires missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if i.validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]; enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if i.validation {
		layers, _, err := i.global.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "vkEnumerateInstanceLayerProperties")
		}
		for _, layer := range validationLayers {
			if _, hasValidation := layers[layer]; !hasValidation {
				return errors.Newf("validation layer %s not available, install the Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}
		instanceOptions.Next = i.debugMessengerOptions()
	}

	i.driver, _, err = i.global.CreateInstance(nil, instanceOptions)
	return errors.Wrap(err, "vkCreateInstance")
}

func (i *Instance) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    logDebug,
	}
}

func (i *Instance) setupDebugMessenger() error {
	if !i.validation {
		return nil
	}
	var err error
	i.debug = ext_debug_utils.CreateExtensionDriverFromCoreDriver(i.driver)
	i.messenger, _, err = i.debug.CreateDebugUtilsMessenger(nil, i.debugMessengerOptions())
	return errors.Wrap(err, "vkCreateDebugUtilsMessenger")
}

func logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	logger := logging.Logger()
	if severity&ext_debug_utils.SeverityError != 0 {
		logger.Error("vulkan", "type", msgType, "message", data.Message)
	} else {
		logger.Warn("vulkan", "type", msgType, "message", data.Message)
	}
	return false
}

func (i *Instance) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilies, error) {
	families := queueFamilies{}
	for idx, family := range i.driver.GetPhysicalDeviceQueueFamilyProperties(device) {
		if family.QueueFlags&core1_0.QueueGraphics != 0 && families.graphics == nil {
			families.graphics = new(int)
			*families.graphics = idx
		}

		supported, _, err := i.surfaceExtension.GetPhysicalDeviceSurfaceSupport(i.surface, device, idx)
		if err != nil {
			return families, errors.Wrap(err, "vkGetPhysicalDeviceSurfaceSupportKHR")
		}
		if supported && families.present == nil {
			families.present = new(int)
			*families.present = idx
		}

		if families.complete() {
			break
		}
	}
	return families, nil
}

func (i *Instance) supportsExtensions(device core1_0.PhysicalDevice) bool {
	extensions, _, err := i.driver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}
	for _, extension := range deviceExtensions {
		if _, hasExtension := extensions[extension]; !hasExtension {
			return false
		}
	}
	return true
}

func (i *Instance) suitable(device core1_0.PhysicalDevice) bool {
	families, err := i.findQueueFamilies(device)
	if err != nil || !families.complete() || !i.supportsExtensions(device) {
		return false
	}
	support, err := i.querySwapchainSupport(device)
	if err != nil {
		return false
	}
	return len(support.formats) > 0 && len(support.presentModes) > 0
}

// CreateDevice picks the first physical device that can render to and
// present on the surface and opens it.
func (i *Instance) CreateDevice() (*Device, error) {
	physicalDevices, _, err := i.driver.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "vkEnumeratePhysicalDevices")
	}

	var physical core1_0.PhysicalDevice
	for _, candidate := range physicalDevices {
		if i.suitable(candidate) {
			physical = candidate
			break
		}
	}
	if !physical.Initialized() {
		return nil, gpu.ResourceExhaustedf("none of %d physical devices can present to the window", len(physicalDevices))
	}

	d := newDevice(i, physical)
	if err := d.queryPhysicalDevice(); err != nil {
		return nil, err
	}

	families, err := i.findQueueFamilies(physical)
	if err != nil {
		return nil, err
	}
	d.graphicsFamily = *families.graphics
	d.presentFamily = *families.present

	uniqueQueueFamilies := []int{d.graphicsFamily}
	if d.presentFamily != d.graphicsFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, d.presentFamily)
	}
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string{}, deviceExtensions...)
	extensions, _, err := i.driver.EnumerateDeviceExtensionProperties(physical)
	if err != nil {
		return nil, errors.Wrap(err, "vkEnumerateDeviceExtensionProperties")
	}
	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	var res common.VkResult
	d.driver, res, err = i.driver.CreateDevice(physical, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: d.anisotropy,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, vkErr("vkCreateDevice", res, err)
	}

	d.graphicsQueue = d.driver.GetQueue(d.graphicsFamily, 0)
	d.presentQueue = d.driver.GetQueue(d.presentFamily, 0)

	d.commandPool, res, err = d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: d.graphicsFamily,
	})
	if err != nil {
		d.Destroy()
		return nil, vkErr("vkCreateCommandPool", res, err)
	}

	logging.Logger().Info("device selected",
		"name", d.props.Name,
		"vendor", d.props.VendorID,
		"device", d.props.DeviceID,
		"graphicsFamily", d.graphicsFamily,
		"presentFamily", d.presentFamily)
	return d, nil
}

// Destroy releases the surface, the messenger and the instance. Devices
// created from the instance must be destroyed first.
func (i *Instance) Destroy() {
	if i.driver == nil {
		return
	}
	if i.messenger.Initialized() {
		i.debug.DestroyDebugUtilsMessenger(i.messenger, nil)
	}
	if i.surface.Initialized() {
		i.surfaceExtension.DestroySurface(i.surface, nil)
	}
	i.driver.DestroyInstance(nil)
	i.driver = nil
}
