package attachment

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// TargetSet groups the attachments one pass renders into together with the
// render pass and framebuffer built over them. Every pass uses the same
// Create, Resize and Destroy contract.
type TargetSet struct {
	name   string
	device gpu.Device
	color  []*Attachment
	depth  *Attachment

	renderPass  gpu.RenderPassHandle
	framebuffer gpu.FramebufferHandle
	extent      gpu.Extent
	scope       *gpu.Scope
	fbScope     *gpu.Scope
}

func NewTargetSet(device gpu.Device, name string, color []*Attachment, depth *Attachment) *TargetSet {
	return &TargetSet{
		name:   name,
		device: device,
		color:  color,
		depth:  depth,
	}
}

func (t *TargetSet) Name() string                       { return t.name }
func (t *TargetSet) Color() []*Attachment               { return t.color }
func (t *TargetSet) Depth() *Attachment                 { return t.depth }
func (t *TargetSet) Extent() gpu.Extent                 { return t.extent }
func (t *TargetSet) RenderPass() gpu.RenderPassHandle   { return t.renderPass }
func (t *TargetSet) Framebuffer() gpu.FramebufferHandle { return t.framebuffer }

// Attachments returns the color attachments followed by the depth
// attachment, in framebuffer order.
func (t *TargetSet) Attachments() []*Attachment {
	out := append([]*Attachment(nil), t.color...)
	if t.depth != nil {
		out = append(out, t.depth)
	}
	return out
}

// ClearValues clears color to transparent black and depth to 1.0, in
// framebuffer order.
func (t *TargetSet) ClearValues() []gpu.ClearValue {
	clear := make([]gpu.ClearValue, 0, len(t.color)+1)
	for range t.color {
		clear = append(clear, gpu.ClearColor(0, 0, 0, 0))
	}
	if t.depth != nil {
		clear = append(clear, gpu.ClearDepth(1))
	}
	return clear
}

// RenderPassDesc describes the render pass for the set. Color attachments
// start from their resting layout and end in LayoutColorAttachment; the
// pass graph makes the writes visible with an explicit barrier afterwards.
// The incoming dependency orders the writes after fragment shader reads of
// the previous frame.
func (t *TargetSet) RenderPassDesc() gpu.RenderPassDesc {
	desc := gpu.RenderPassDesc{
		Label: t.name,
		Dependencies: []gpu.Dependency{{
			Incoming:  true,
			SrcStage:  gpu.StageFragmentShader,
			DstStage:  gpu.StageColorAttachmentOutput | gpu.StageEarlyFragmentTests,
			SrcAccess: gpu.AccessShaderRead,
			DstAccess: gpu.AccessColorAttachmentWrite | gpu.AccessDepthStencilAttachmentWrite,
		}},
	}
	for _, a := range t.color {
		desc.Color = append(desc.Color, gpu.AttachmentDesc{
			Format:        a.Format(),
			LoadOp:        gpu.LoadOpClear,
			StoreOp:       gpu.StoreOpStore,
			InitialLayout: a.Layout(),
			FinalLayout:   gpu.LayoutColorAttachment,
		})
	}
	if t.depth != nil {
		desc.Depth = &gpu.AttachmentDesc{
			Format:        t.depth.Format(),
			LoadOp:        gpu.LoadOpClear,
			StoreOp:       gpu.StoreOpStore,
			InitialLayout: gpu.LayoutDepthStencilAttachment,
			FinalLayout:   gpu.LayoutDepthStencilAttachment,
		}
	}
	return desc
}

// Create builds the render pass and framebuffer. All attachments must share
// one extent.
func (t *TargetSet) Create() error {
	if len(t.color) == 0 && t.depth == nil {
		return gpu.Configurationf("target set %q has no attachments", t.name)
	}
	t.scope = gpu.NewScope(t.name)
	renderPass, err := t.device.CreateRenderPass(t.RenderPassDesc())
	if err != nil {
		t.scope.Release()
		return errors.Wrapf(err, "target set %q render pass", t.name)
	}
	t.renderPass = gpu.Own(t.scope, renderPass, t.device.DestroyRenderPass)

	if err := t.createFramebuffer(); err != nil {
		t.Destroy()
		return err
	}
	return nil
}

func (t *TargetSet) createFramebuffer() error {
	all := t.Attachments()
	extent := all[0].Extent()
	views := make([]gpu.ImageViewHandle, 0, len(all))
	for _, a := range all {
		if a.Extent() != extent {
			return gpu.Configurationf("target set %q mixes extents %s and %s (%s)", t.name, extent, a.Extent(), a.Name())
		}
		views = append(views, a.View())
	}

	if t.fbScope == nil {
		t.fbScope = t.scope.Child("framebuffer")
	}
	framebuffer, err := t.device.CreateFramebuffer(gpu.FramebufferDesc{
		RenderPass: t.renderPass,
		Views:      views,
		Extent:     extent,
	})
	if err != nil {
		return errors.Wrapf(err, "target set %q framebuffer", t.name)
	}
	t.framebuffer = gpu.Own(t.fbScope, framebuffer, t.device.DestroyFramebuffer)
	t.extent = extent
	return nil
}

// Resize rebuilds the framebuffer over attachments the manager has already
// recreated. The render pass is kept; formats and layouts do not change.
func (t *TargetSet) Resize() error {
	if t.scope == nil {
		return gpu.Configurationf("resize of target set %q before Create", t.name)
	}
	t.fbScope.Release()
	t.framebuffer = 0
	return t.createFramebuffer()
}

func (t *TargetSet) Destroy() {
	if t.scope != nil {
		t.scope.Release()
	}
	t.scope = nil
	t.fbScope = nil
	t.renderPass = 0
	t.framebuffer = 0
}

// PresentTarget is the onscreen counterpart of TargetSet: one render pass
// over the presentable images and one framebuffer per image.
type PresentTarget struct {
	device gpu.Device
	format gpu.Format

	renderPass   gpu.RenderPassHandle
	framebuffers []gpu.FramebufferHandle
	extent       gpu.Extent
	scope        *gpu.Scope
	fbScope      *gpu.Scope
}

func NewPresentTarget(device gpu.Device, format gpu.Format) *PresentTarget {
	return &PresentTarget{device: device, format: format}
}

func (p *PresentTarget) RenderPass() gpu.RenderPassHandle { return p.renderPass }
func (p *PresentTarget) Extent() gpu.Extent               { return p.extent }
func (p *PresentTarget) Len() int                         { return len(p.framebuffers) }

func (p *PresentTarget) Framebuffer(index int) gpu.FramebufferHandle {
	return p.framebuffers[index]
}

func (p *PresentTarget) ClearValues() []gpu.ClearValue {
	return []gpu.ClearValue{gpu.ClearColor(0, 0, 0, 0)}
}

func (p *PresentTarget) RenderPassDesc() gpu.RenderPassDesc {
	return gpu.RenderPassDesc{
		Label: "present",
		Color: []gpu.AttachmentDesc{{
			Format:        p.format,
			LoadOp:        gpu.LoadOpClear,
			StoreOp:       gpu.StoreOpStore,
			InitialLayout: gpu.LayoutUndefined,
			FinalLayout:   gpu.LayoutPresentSrc,
		}},
		Dependencies: []gpu.Dependency{{
			Incoming:  true,
			SrcStage:  gpu.StageColorAttachmentOutput,
			DstStage:  gpu.StageColorAttachmentOutput,
			DstAccess: gpu.AccessColorAttachmentWrite,
		}},
	}
}

func (p *PresentTarget) Create(views []gpu.ImageViewHandle, extent gpu.Extent) error {
	p.scope = gpu.NewScope("present")
	renderPass, err := p.device.CreateRenderPass(p.RenderPassDesc())
	if err != nil {
		p.scope.Release()
		return errors.Wrap(err, "present render pass")
	}
	p.renderPass = gpu.Own(p.scope, renderPass, p.device.DestroyRenderPass)
	if err := p.createFramebuffers(views, extent); err != nil {
		p.Destroy()
		return err
	}
	return nil
}

func (p *PresentTarget) createFramebuffers(views []gpu.ImageViewHandle, extent gpu.Extent) error {
	if p.fbScope == nil {
		p.fbScope = p.scope.Child("framebuffers")
	}
	p.framebuffers = p.framebuffers[:0]
	for _, view := range views {
		framebuffer, err := p.device.CreateFramebuffer(gpu.FramebufferDesc{
			RenderPass: p.renderPass,
			Views:      []gpu.ImageViewHandle{view},
			Extent:     extent,
		})
		if err != nil {
			return errors.Wrap(err, "present framebuffer")
		}
		p.framebuffers = append(p.framebuffers, gpu.Own(p.fbScope, framebuffer, p.device.DestroyFramebuffer))
	}
	p.extent = extent
	return nil
}

// Resize rebuilds the framebuffers over a recreated swap chain.
func (p *PresentTarget) Resize(views []gpu.ImageViewHandle, extent gpu.Extent) error {
	if p.scope == nil {
		return gpu.Configurationf("resize of present target before Create")
	}
	p.fbScope.Release()
	return p.createFramebuffers(views, extent)
}

func (p *PresentTarget) Destroy() {
	if p.scope != nil {
		p.scope.Release()
	}
	p.scope = nil
	p.fbScope = nil
	p.renderPass = 0
	p.framebuffers = nil
}
