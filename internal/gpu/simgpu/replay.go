package simgpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// Submission is the record of one Device.Submit call.
type Submission struct {
	ID             int
	CommandBuffers []*CommandBuffer
	Wait           []gpu.SemaphoreWait
	Signal         []gpu.SemaphoreHandle
	Fence          gpu.FenceHandle

	// deps holds every submission whose completion this one waited for,
	// directly or through a chain of semaphores.
	deps map[int]bool
}

// Submissions returns every submission so far, oldest first.
func (d *Device) Submissions() []*Submission {
	return d.submissions
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	sub := &Submission{
		ID:     len(d.submissions) + 1,
		Wait:   info.Wait,
		Signal: info.Signal,
		Fence:  info.Fence,
		deps:   map[int]bool{},
	}
	sub.deps[sub.ID] = true

	var errs error
	fail := func(err error) {
		errs = errors.CombineErrors(errs, d.violate(err))
	}

	for _, w := range info.Wait {
		sem, ok := d.semaphores[w.Semaphore]
		if !ok {
			return gpu.Configurationf("submission %d waits on unknown semaphore %d", sub.ID, w.Semaphore)
		}
		if !sem.signaled {
			fail(gpu.Validationf("submission %d waits on semaphore %d that nothing signaled", sub.ID, w.Semaphore))
			continue
		}
		sem.signaled = false
		if sem.signaledBy != 0 {
			for dep := range d.submissions[sem.signaledBy-1].deps {
				sub.deps[dep] = true
			}
		}
	}

	for _, buffer := range info.CommandBuffers {
		cb, ok := buffer.(*CommandBuffer)
		if !ok || cb.device != d {
			return gpu.Configurationf("submission %d contains a command buffer from another device", sub.ID)
		}
		if cb.state != cbExecutable {
			fail(gpu.Validationf("submission %d contains a command buffer that is not executable", sub.ID))
			continue
		}
		sub.CommandBuffers = append(sub.CommandBuffers, cb)
	}

	if info.Fence != 0 {
		f, ok := d.fences[info.Fence]
		if !ok {
			return gpu.Configurationf("submission %d signals unknown fence %d", sub.ID, info.Fence)
		}
		if f.signaled {
			fail(gpu.Validationf("submission %d signals fence %d that was not reset", sub.ID, info.Fence))
		}
	}

	d.submissions = append(d.submissions, sub)

	for _, cb := range sub.CommandBuffers {
		r := replay{device: d, sub: sub}
		for _, cmd := range cb.commands {
			if err := r.execute(cmd); err != nil {
				fail(err)
			}
		}
	}

	for _, s := range info.Signal {
		sem, ok := d.semaphores[s]
		if !ok {
			return gpu.Configurationf("submission %d signals unknown semaphore %d", sub.ID, s)
		}
		if sem.signaled {
			fail(gpu.Validationf("submission %d signals semaphore %d that is already signaled", sub.ID, s))
		}
		sem.signaled = true
		sem.signaledBy = sub.ID
	}
	if info.Fence != 0 {
		f := d.fences[info.Fence]
		f.signaled = true
		f.submission = sub.ID
	}
	return errs
}

// visible reports whether work from submission id is complete from the
// point of view of sub.
func (d *Device) visible(sub *Submission, id int) bool {
	return id == 0 || id <= d.completedUpTo || sub.deps[id]
}

type attachmentRef struct {
	image *image
	label string
	desc  gpu.AttachmentDesc
	depth bool
}

type replay struct {
	device *Device
	sub    *Submission

	pass        *gpu.RenderPassDesc
	attachments []attachmentRef
	pipeline    *gpu.PipelineDesc
	set         gpu.DescriptorSetHandle
	setLayout   gpu.PipelineLayoutHandle
	vertex      bool
	index       bool
}

func (r *replay) execute(cmd Command) error {
	d := r.device
	switch cmd.Op {
	case OpBeginRenderPass:
		return r.beginRenderPass(cmd)
	case OpEndRenderPass:
		r.endRenderPass()
	case OpBindPipeline:
		desc, ok := d.pipelines[cmd.Pipeline]
		if !ok {
			return gpu.Validationf("pipeline %q destroyed before execution", cmd.Label)
		}
		r.pipeline = &desc
	case OpBindDescriptorSet:
		r.set = cmd.Set
		r.setLayout = cmd.Layout
	case OpBindVertexBuffer:
		r.vertex = true
	case OpBindIndexBuffer:
		r.index = true
	case OpDraw, OpDrawIndexed:
		return r.draw(cmd)
	case OpBarrier:
		return r.barrier(cmd.Barrier)
	case OpCopyBuffer:
		src, err := d.lookupBuffer(cmd.Buffer)
		if err != nil {
			return gpu.Validationf("copy: %v", err)
		}
		dst, err := d.lookupBuffer(cmd.DstBuffer)
		if err != nil {
			return gpu.Validationf("copy: %v", err)
		}
		if cmd.Size > src.size || cmd.Size > dst.size {
			return gpu.Validationf("copy of %d bytes overruns buffers of %d and %d bytes", cmd.Size, src.size, dst.size)
		}
		copy(d.memories[dst.memory].data[:cmd.Size], d.memories[src.memory].data[:cmd.Size])
	case OpCopyBufferToImage:
		img, ok := d.images[cmd.Image]
		if !ok {
			return gpu.Validationf("copy to destroyed image %d", cmd.Image)
		}
		if img.layout != gpu.LayoutTransferDst {
			return gpu.Validationf("copy to image %q in layout %s", img.desc.Label, img.layout)
		}
		img.pendingWrite = true
		img.writtenBy = r.sub.ID
		img.sampled = false
	}
	return nil
}

func (r *replay) beginRenderPass(cmd Command) error {
	d := r.device
	rp, ok := d.renderPasses[cmd.Begin.RenderPass]
	if !ok {
		return gpu.Validationf("render pass %q destroyed before execution", cmd.Label)
	}
	fb, ok := d.framebuffers[cmd.Begin.Framebuffer]
	if !ok {
		return gpu.Validationf("framebuffer for %q destroyed before execution", rp.Label)
	}

	r.pass = &rp
	r.attachments = r.attachments[:0]
	descs := append([]gpu.AttachmentDesc(nil), rp.Color...)
	if rp.Depth != nil {
		descs = append(descs, *rp.Depth)
	}

	incomingFromReads := false
	for _, dep := range rp.Dependencies {
		if dep.Incoming && dep.SrcStage&gpu.StageFragmentShader != 0 {
			incomingFromReads = true
		}
	}

	var errs error
	for i, desc := range descs {
		view, ok := d.views[fb.desc.Views[i]]
		if !ok {
			return gpu.Validationf("render pass %q attachment %d view destroyed", rp.Label, i)
		}
		img, ok := d.images[view.Image]
		if !ok {
			return gpu.Validationf("render pass %q attachment %d image destroyed", rp.Label, i)
		}
		if desc.InitialLayout != gpu.LayoutUndefined && img.layout != desc.InitialLayout {
			errs = errors.CombineErrors(errs, gpu.Validationf(
				"render pass %q: attachment %d (%s) is in layout %s, render pass expects %s",
				rp.Label, i, img.desc.Label, img.layout, desc.InitialLayout))
		}
		if img.sampled && !incomingFromReads {
			errs = errors.CombineErrors(errs, gpu.Validationf(
				"render pass %q overwrites %s while earlier fragment shader reads may be in flight",
				rp.Label, img.desc.Label))
		}
		isDepth := i >= len(rp.Color)
		if isDepth {
			img.layout = gpu.LayoutDepthStencilAttachment
		} else {
			img.layout = gpu.LayoutColorAttachment
		}
		r.attachments = append(r.attachments, attachmentRef{image: img, label: img.desc.Label, desc: desc, depth: isDepth})
	}
	return errs
}

func (r *replay) endRenderPass() {
	if r.pass == nil {
		return
	}
	flushed := false
	for _, dep := range r.pass.Dependencies {
		if !dep.Incoming && dep.DstStage&gpu.StageFragmentShader != 0 && dep.DstAccess&gpu.AccessShaderRead != 0 {
			flushed = true
		}
	}
	for _, a := range r.attachments {
		a.image.layout = a.desc.FinalLayout
		if a.desc.StoreOp != gpu.StoreOpStore {
			continue
		}
		a.image.writtenBy = r.sub.ID
		a.image.sampled = false
		a.image.pendingWrite = !(flushed && a.desc.FinalLayout == gpu.LayoutShaderReadOnly)
	}
	r.pass = nil
	r.attachments = nil
}

func (r *replay) barrier(b gpu.Barrier) error {
	d := r.device
	var errs error
	for _, ib := range b.Images {
		img, ok := d.images[ib.Image]
		if !ok {
			errs = errors.CombineErrors(errs, gpu.Validationf("barrier on destroyed image %d", ib.Image))
			continue
		}
		if ib.OldLayout != gpu.LayoutUndefined && img.layout != ib.OldLayout {
			errs = errors.CombineErrors(errs, gpu.Validationf(
				"barrier on %s expects layout %s, image is in %s", img.desc.Label, ib.OldLayout, img.layout))
		}
		if ib.OldLayout != ib.NewLayout {
			img.transitions++
		}
		img.layout = ib.NewLayout

		switch {
		case ib.OldLayout == gpu.LayoutUndefined:
			// Previous contents are discarded.
			img.pendingWrite = false
		case img.pendingWrite && ib.SrcAccess&gpu.AccessWrites != 0 &&
			ib.DstAccess&gpu.AccessShaderRead != 0 && b.DstStage&gpu.StageFragmentShader != 0:
			img.pendingWrite = false
		}
	}
	return errs
}

func (r *replay) draw(cmd Command) error {
	d := r.device
	if r.pass == nil {
		return gpu.Validationf("%s outside a render pass", cmd.Op)
	}
	if r.pipeline == nil {
		return gpu.Validationf("%s in %q without a bound pipeline", cmd.Op, r.pass.Label)
	}
	p := r.pipeline
	if p.ColorAttachments != len(r.pass.Color) {
		return gpu.Validationf("pipeline %q writes %d color attachments inside %q which has %d",
			p.Label, p.ColorAttachments, r.pass.Label, len(r.pass.Color))
	}
	if p.VertexInput != nil && !r.vertex {
		return gpu.Validationf("pipeline %q draws without a vertex buffer", p.Label)
	}
	if cmd.Op == OpDrawIndexed && !r.index {
		return gpu.Validationf("pipeline %q draws indexed without an index buffer", p.Label)
	}

	setLayouts := d.pipelineLayouts[p.Layout]
	if len(setLayouts) == 0 {
		return nil
	}
	if r.set == 0 {
		return gpu.Validationf("pipeline %q draws without its descriptor set", p.Label)
	}
	set, ok := d.sets[r.set]
	if !ok {
		return gpu.Validationf("pipeline %q draws with a freed descriptor set", p.Label)
	}
	if set.layout != setLayouts[0] {
		return gpu.Validationf("pipeline %q draws with a descriptor set of another layout", p.Label)
	}

	var errs error
	for _, slot := range d.setLayouts[set.layout] {
		w, ok := set.writes[slot.Binding]
		if !ok {
			errs = errors.CombineErrors(errs, gpu.Validationf("pipeline %q: binding %d was never written", p.Label, slot.Binding))
			continue
		}
		if w.Kind != gpu.DescriptorSampledImage {
			continue
		}
		view, ok := d.views[w.View]
		if !ok {
			errs = errors.CombineErrors(errs, gpu.Validationf("pipeline %q: binding %d view destroyed", p.Label, slot.Binding))
			continue
		}
		img := d.images[view.Image]
		for _, a := range r.attachments {
			if a.image == img {
				errs = errors.CombineErrors(errs, gpu.Validationf(
					"pipeline %q samples %s while it is an attachment of %q", p.Label, img.desc.Label, r.pass.Label))
			}
		}
		if img.layout != gpu.LayoutShaderReadOnly {
			errs = errors.CombineErrors(errs, gpu.Validationf(
				"pipeline %q samples %s in layout %s", p.Label, img.desc.Label, img.layout))
		}
		if img.pendingWrite {
			errs = errors.CombineErrors(errs, gpu.Validationf(
				"pipeline %q samples %s before a barrier made its last write visible", p.Label, img.desc.Label))
		}
		if !d.visible(r.sub, img.writtenBy) {
			errs = errors.CombineErrors(errs, gpu.Validationf(
				"pipeline %q samples %s written by submission %d which submission %d does not wait for",
				p.Label, img.desc.Label, img.writtenBy, r.sub.ID))
		}
		img.sampled = true
	}
	return errs
}
