package simgpu

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// Swapchain is a fake presentable image chain over a simulated Device.
type Swapchain struct {
	device *Device
	format gpu.Format
	extent gpu.Extent

	images    []gpu.ImageHandle
	views     []gpu.ImageViewHandle
	available []gpu.SemaphoreHandle
	scope     *gpu.Scope

	frame     int
	presented []int
	// OutOfDate makes the next Acquire report gpu.ErrOutOfDate.
	OutOfDate bool
}

func NewSwapchain(device *Device, extent gpu.Extent, imageCount int) (*Swapchain, error) {
	s := &Swapchain{device: device, format: gpu.FormatBGRA8SRGB}
	if err := s.create(extent, imageCount); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create(extent gpu.Extent, imageCount int) error {
	s.scope = gpu.NewScope("swapchain")
	s.extent = extent
	for i := 0; i < imageCount; i++ {
		img, _, err := gpu.NewImage(s.device, s.scope, gpu.ImageDesc{
			Label:  fmt.Sprintf("swapchain[%d]", i),
			Format: s.format,
			Extent: extent,
			Usage:  gpu.ImageUsageColorAttachment,
		}, gpu.MemoryDeviceLocal)
		if err != nil {
			return err
		}
		view, err := s.device.CreateImageView(gpu.ImageViewDesc{Image: img, Format: s.format, Aspect: gpu.AspectColor})
		if err != nil {
			return err
		}
		gpu.Own(s.scope, view, s.device.DestroyImageView)
		sem, err := s.device.CreateSemaphore()
		if err != nil {
			return err
		}
		gpu.Own(s.scope, sem, s.device.DestroySemaphore)

		s.images = append(s.images, img)
		s.views = append(s.views, view)
		s.available = append(s.available, sem)
	}
	return nil
}

// Resize recreates the chain at a new extent.
func (s *Swapchain) Resize(extent gpu.Extent) error {
	count := len(s.images)
	s.Destroy()
	s.OutOfDate = false
	return s.create(extent, count)
}

func (s *Swapchain) Destroy() {
	s.scope.Release()
	s.images = nil
	s.views = nil
	s.available = nil
}

func (s *Swapchain) Extent() gpu.Extent           { return s.extent }
func (s *Swapchain) Format() gpu.Format           { return s.format }
func (s *Swapchain) Views() []gpu.ImageViewHandle { return s.views }
func (s *Swapchain) Images() []gpu.ImageHandle    { return s.images }

// Presented returns the image index of every successful present.
func (s *Swapchain) Presented() []int { return s.presented }

func (s *Swapchain) Acquire() (int, gpu.SemaphoreHandle, error) {
	if s.OutOfDate {
		return 0, 0, errors.Wrap(gpu.ErrOutOfDate, "acquire")
	}
	index := s.frame % len(s.images)
	s.frame++
	sem := s.available[index]
	if err := s.device.Signal(sem); err != nil {
		return 0, 0, err
	}
	return index, sem, nil
}

func (s *Swapchain) Present(index int, wait gpu.SemaphoreHandle) error {
	if err := s.device.Consume(wait); err != nil {
		return err
	}
	if layout := s.device.ImageLayout(s.images[index]); layout != gpu.LayoutPresentSrc {
		return s.device.violate(gpu.Validationf("present of %s in layout %s", fmt.Sprintf("swapchain[%d]", index), layout))
	}
	s.presented = append(s.presented, index)
	return nil
}
