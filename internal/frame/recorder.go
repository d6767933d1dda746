package frame

import (
	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/logging"
	"github.com/vkngwrapper/sponza/internal/passgraph"
	"github.com/vkngwrapper/sponza/internal/pipeline"
)

// Framebuffers are the onscreen render targets, one per presentable
// image.
type Framebuffers interface {
	RenderPass() gpu.RenderPassHandle
	Framebuffer(index int) gpu.FramebufferHandle
	Len() int
	Extent() gpu.Extent
	ClearValues() []gpu.ClearValue
}

// Recorder owns the recorded command sequences: one offscreen sequence
// and one onscreen sequence per presentable image.
type Recorder struct {
	device    gpu.Device
	pipelines *pipeline.Registry
	frame     *Frame

	offscreen gpu.CommandBuffer
	onscreen  []gpu.CommandBuffer
}

func NewRecorder(device gpu.Device, pipelines *pipeline.Registry, frame *Frame) *Recorder {
	return &Recorder{device: device, pipelines: pipelines, frame: frame}
}

// BuildDeferred records the offscreen passes of g, freeing the previous
// offscreen sequence first.
func (r *Recorder) BuildDeferred(g *passgraph.Graph) error {
	if err := r.frame.requireIdle("record offscreen sequence"); err != nil {
		return err
	}
	if r.offscreen != nil {
		r.device.FreeCommandBuffer(r.offscreen)
		r.offscreen = nil
	}

	start := hrtime.Now()
	cmd, err := r.record(g.RecordOffscreen)
	if err != nil {
		return errors.Wrap(err, "record offscreen sequence")
	}
	r.offscreen = cmd
	logging.Logger().Debug("offscreen sequence recorded", "passes", len(g.Offscreen()), "elapsed", hrtime.Now()-start)
	return nil
}

// BuildOnscreen records the onscreen pass of g once per framebuffer,
// freeing the previous onscreen sequences first.
func (r *Recorder) BuildOnscreen(g *passgraph.Graph, framebuffers Framebuffers) error {
	if err := r.frame.requireIdle("record onscreen sequences"); err != nil {
		return err
	}
	r.freeOnscreen()

	start := hrtime.Now()
	for i := 0; i < framebuffers.Len(); i++ {
		begin := gpu.RenderPassBegin{
			RenderPass:  framebuffers.RenderPass(),
			Framebuffer: framebuffers.Framebuffer(i),
			Area:        gpu.Rect{Extent: framebuffers.Extent()},
			Clear:       framebuffers.ClearValues(),
		}
		cmd, err := r.record(func(enc *passgraph.Encoder) error {
			return g.RecordOnscreen(enc, begin)
		})
		if err != nil {
			r.freeOnscreen()
			return errors.Wrapf(err, "record onscreen sequence %d", i)
		}
		r.onscreen = append(r.onscreen, cmd)
	}
	logging.Logger().Debug("onscreen sequences recorded", "images", len(r.onscreen), "elapsed", hrtime.Now()-start)
	return nil
}

func (r *Recorder) record(fn func(enc *passgraph.Encoder) error) (gpu.CommandBuffer, error) {
	cmd, err := r.device.AllocateCommandBuffer()
	if err != nil {
		return nil, err
	}
	if err := cmd.Begin(); err != nil {
		r.device.FreeCommandBuffer(cmd)
		return nil, err
	}
	if err := fn(passgraph.NewEncoder(cmd, r.pipelines)); err != nil {
		// End reports nothing new; the encoder already failed.
		_ = cmd.End()
		r.device.FreeCommandBuffer(cmd)
		return nil, err
	}
	if err := cmd.End(); err != nil {
		r.device.FreeCommandBuffer(cmd)
		return nil, err
	}
	return cmd, nil
}

// Offscreen returns the offscreen sequence.
func (r *Recorder) Offscreen() (gpu.CommandBuffer, error) {
	if r.offscreen == nil {
		return nil, gpu.Configurationf("offscreen sequence has not been recorded")
	}
	return r.offscreen, nil
}

// Onscreen returns the onscreen sequence of presentable image index.
func (r *Recorder) Onscreen(index int) (gpu.CommandBuffer, error) {
	if index < 0 || index >= len(r.onscreen) {
		return nil, gpu.Configurationf("no onscreen sequence for image %d of %d", index, len(r.onscreen))
	}
	return r.onscreen[index], nil
}

func (r *Recorder) freeOnscreen() {
	for _, cmd := range r.onscreen {
		r.device.FreeCommandBuffer(cmd)
	}
	r.onscreen = nil
}

// Destroy frees every sequence.
func (r *Recorder) Destroy() {
	if r.offscreen != nil {
		r.device.FreeCommandBuffer(r.offscreen)
		r.offscreen = nil
	}
	r.freeOnscreen()
}
