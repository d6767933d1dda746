package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/logging"
)

type swapchainSupport struct {
	capabilities *khr_surface.SurfaceCapabilities
	formats      []khr_surface.SurfaceFormat
	presentModes []khr_surface.PresentMode
}

func (i *Instance) querySwapchainSupport(device core1_0.PhysicalDevice) (swapchainSupport, error) {
	var support swapchainSupport
	var err error

	support.capabilities, _, err = i.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(i.surface, device)
	if err != nil {
		return support, errors.Wrap(err, "vkGetPhysicalDeviceSurfaceCapabilitiesKHR")
	}
	support.formats, _, err = i.surfaceExtension.GetPhysicalDeviceSurfaceFormats(i.surface, device)
	if err != nil {
		return support, errors.Wrap(err, "vkGetPhysicalDeviceSurfaceFormatsKHR")
	}
	support.presentModes, _, err = i.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(i.surface, device)
	return support, errors.Wrap(err, "vkGetPhysicalDeviceSurfacePresentModesKHR")
}

// chooseSurfaceFormat prefers sRGB BGRA, the format the composition pass
// is written for.
func chooseSurfaceFormat(available []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}
	return available[0]
}

func choosePresentMode(available []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range available {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}
	return khr_surface.PresentModeFIFO
}

// chooseExtent uses the surface's extent when it dictates one and clamps
// the requested extent otherwise.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, requested gpu.Extent) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}
	width := clamp(requested.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	height := clamp(requested.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
	return core1_0.Extent2D{Width: width, Height: height}
}

func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Swapchain presents to the instance's window surface. It implements the
// renderer's presenter boundary.
type Swapchain struct {
	device    *Device
	extension khr_swapchain.ExtensionDriver

	swapchain khr_swapchain.Swapchain
	format    core1_0.Format
	extent    gpu.Extent

	views []gpu.ImageViewHandle
	// available rotates through one semaphore per image; with a single
	// frame in flight none is reused before its wait completed.
	available []gpu.SemaphoreHandle
	frame     int
}

func NewSwapchain(device *Device, extent gpu.Extent) (*Swapchain, error) {
	s := &Swapchain{
		device:    device,
		extension: khr_swapchain.CreateExtensionDriverFromCoreDriver(device.driver),
	}
	if err := s.create(extent); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create(requested gpu.Extent) error {
	instance := s.device.instance
	support, err := instance.querySwapchainSupport(s.device.physical)
	if err != nil {
		return err
	}

	surfaceFormat := chooseSurfaceFormat(support.formats)
	presentMode := choosePresentMode(support.presentModes)
	extent := chooseExtent(support.capabilities, requested)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if s.device.graphicsFamily != s.device.presentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, s.device.graphicsFamily, s.device.presentFamily)
	}

	swapchain, res, err := s.extension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: instance.surface,

		MinImageCount:    chooseImageCount(support.capabilities),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return vkErr("vkCreateSwapchainKHR", res, err)
	}
	s.swapchain = swapchain
	s.format = surfaceFormat.Format
	s.extent = gpu.Extent{Width: extent.Width, Height: extent.Height}

	images, res, err := s.extension.GetSwapchainImages(swapchain)
	if err != nil {
		return vkErr("vkGetSwapchainImagesKHR", res, err)
	}
	for _, image := range images {
		view, err := s.device.createView(image, s.format, core1_0.ImageAspectColor)
		if err != nil {
			return err
		}
		s.views = append(s.views, s.device.views.add(view))

		semaphore, err := s.device.CreateSemaphore()
		if err != nil {
			return err
		}
		s.available = append(s.available, semaphore)
	}

	logging.Logger().Info("swapchain created",
		"extent", s.extent,
		"images", len(images),
		"format", gpuFormat(s.format),
		"presentMode", presentMode)
	return nil
}

func (s *Swapchain) cleanup() {
	for _, view := range s.views {
		s.device.DestroyImageView(view)
	}
	for _, semaphore := range s.available {
		s.device.DestroySemaphore(semaphore)
	}
	s.views = nil
	s.available = nil
	if s.swapchain.Initialized() {
		s.extension.DestroySwapchain(s.swapchain, nil)
		s.swapchain = khr_swapchain.Swapchain{}
	}
}

func (s *Swapchain) Extent() gpu.Extent           { return s.extent }
func (s *Swapchain) Format() gpu.Format           { return gpuFormat(s.format) }
func (s *Swapchain) Views() []gpu.ImageViewHandle { return s.views }

func (s *Swapchain) Acquire() (int, gpu.SemaphoreHandle, error) {
	semaphoreHandle := s.available[s.frame%len(s.available)]
	semaphore, err := s.device.semaphores.get(semaphoreHandle)
	if err != nil {
		return 0, 0, err
	}

	imageIndex, res, err := s.extension.AcquireNextImage(s.swapchain, common.NoTimeout, &semaphore, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, 0, errors.Mark(errors.New("vkAcquireNextImageKHR: out of date"), gpu.ErrOutOfDate)
	} else if err != nil {
		return 0, 0, vkErr("vkAcquireNextImageKHR", res, err)
	}
	s.frame++
	return imageIndex, semaphoreHandle, nil
}

// Present queues the image once renderDone is signaled. A suboptimal chain
// is reported as out of date so the caller recreates it.
func (s *Swapchain) Present(index int, renderDone gpu.SemaphoreHandle) error {
	semaphore, err := s.device.semaphores.get(renderDone)
	if err != nil {
		return err
	}
	res, err := s.extension.QueuePresent(s.device.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{semaphore},
		Swapchains:     []khr_swapchain.Swapchain{s.swapchain},
		ImageIndices:   []int{index},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return errors.Mark(errors.Newf("vkQueuePresentKHR: %s", res), gpu.ErrOutOfDate)
	}
	return vkErr("vkQueuePresentKHR", res, err)
}

// Resize waits for the device and recreates the chain at the surface's
// current extent, or at extent when the surface leaves it to us.
func (s *Swapchain) Resize(extent gpu.Extent) error {
	if err := s.device.WaitIdle(); err != nil {
		return err
	}
	s.cleanup()
	return s.create(extent)
}

func (s *Swapchain) Destroy() {
	s.cleanup()
}
