package frame

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// Presenter is the swap chain the frames are presented to.
type Presenter interface {
	Extent() gpu.Extent
	Format() gpu.Format
	Views() []gpu.ImageViewHandle
	// Acquire returns the next presentable image and the semaphore that is
	// signaled once it may be rendered to. It fails with gpu.ErrOutOfDate
	// when the chain no longer matches the surface.
	Acquire() (index int, imageReady gpu.SemaphoreHandle, err error)
	Present(index int, renderDone gpu.SemaphoreHandle) error
	// Resize recreates the chain. Implementations backed by a surface may
	// use the surface's current extent instead of extent.
	Resize(extent gpu.Extent) error
}

// Submitter chains the two sequences of a frame and keeps one frame in
// flight.
type Submitter struct {
	device gpu.Device
	frame  *Frame
	scope  *gpu.Scope

	offscreenDone gpu.SemaphoreHandle
	renderDone    gpu.SemaphoreHandle
	inFlight      gpu.FenceHandle
}

func NewSubmitter(device gpu.Device, frame *Frame) (*Submitter, error) {
	s := &Submitter{device: device, frame: frame, scope: gpu.NewScope("frame sync")}

	var err error
	if s.offscreenDone, err = device.CreateSemaphore(); err != nil {
		s.Destroy()
		return nil, errors.Wrap(err, "create offscreen semaphore")
	}
	gpu.Own(s.scope, s.offscreenDone, device.DestroySemaphore)

	if s.renderDone, err = device.CreateSemaphore(); err != nil {
		s.Destroy()
		return nil, errors.Wrap(err, "create render semaphore")
	}
	gpu.Own(s.scope, s.renderDone, device.DestroySemaphore)

	if s.inFlight, err = device.CreateFence(true); err != nil {
		s.Destroy()
		return nil, errors.Wrap(err, "create in-flight fence")
	}
	gpu.Own(s.scope, s.inFlight, device.DestroyFence)
	return s, nil
}

// Submit performs the two submissions of a frame. The offscreen sequence
// signals offscreenDone. The onscreen sequence waits for it at the
// fragment stage and for imageReady at color output, signals renderDone
// and arms the in-flight fence. It returns renderDone for presentation.
//
// A failure before the first submission leaves the frame Idle. A failure
// after it leaves the frame Failed, and every later Submit, Wait or
// recording fails.
func (s *Submitter) Submit(offscreen, onscreen gpu.CommandBuffer, imageReady gpu.SemaphoreHandle) (gpu.SemaphoreHandle, error) {
	if err := s.frame.Transition(RecordingOffscreen); err != nil {
		return 0, err
	}
	err := s.device.Submit(gpu.SubmitInfo{
		CommandBuffers: []gpu.CommandBuffer{offscreen},
		Signal:         []gpu.SemaphoreHandle{s.offscreenDone},
	})
	if err != nil {
		s.frame.state = Idle
		return 0, errors.Wrap(err, "submit offscreen sequence")
	}

	if err := s.frame.Transition(RecordingOnscreen); err != nil {
		return 0, err
	}
	if err := s.device.ResetFence(s.inFlight); err != nil {
		s.frame.state = Failed
		return 0, errors.Wrap(err, "reset in-flight fence")
	}
	err = s.device.Submit(gpu.SubmitInfo{
		CommandBuffers: []gpu.CommandBuffer{onscreen},
		Wait: []gpu.SemaphoreWait{
			{Semaphore: s.offscreenDone, Stage: gpu.StageFragmentShader},
			{Semaphore: imageReady, Stage: gpu.StageColorAttachmentOutput},
		},
		Signal: []gpu.SemaphoreHandle{s.renderDone},
		Fence:  s.inFlight,
	})
	if err != nil {
		s.frame.state = Failed
		return 0, errors.Wrap(err, "submit onscreen sequence")
	}
	if err := s.frame.Transition(Submitted); err != nil {
		return 0, err
	}
	return s.renderDone, nil
}

// Wait blocks until the frame in flight has completed. It returns
// immediately when no frame is in flight.
func (s *Submitter) Wait() error {
	switch s.frame.State() {
	case Idle:
		return nil
	case Submitted:
	case Failed:
		return gpu.Configurationf("wait on a frame whose onscreen submission failed")
	default:
		return gpu.Configurationf("wait while the frame is %s", s.frame.State())
	}
	if err := s.device.WaitFence(s.inFlight); err != nil {
		return errors.Wrap(err, "wait for in-flight fence")
	}
	return s.frame.Transition(Idle)
}

func (s *Submitter) Frame() *Frame { return s.frame }

func (s *Submitter) Destroy() {
	s.scope.Release()
}
