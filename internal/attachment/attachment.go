// Package attachment owns the renderer's offscreen render targets: the
// images, their memory and views, and the render pass and framebuffer each
// group of targets is drawn through.
package attachment

import (
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// Usage describes how the renderer uses an attachment.
type Usage uint32

const (
	// UsageColor attachments are written as color targets.
	UsageColor Usage = 1 << iota
	// UsageDepthStencil attachments are written as the depth target.
	UsageDepthStencil
	// UsageSampled attachments are read by later passes. Their contents may
	// be sampled before the first write, e.g. by the debug view.
	UsageSampled
)

// Desc describes an attachment to create.
type Desc struct {
	Name   string
	Format gpu.Format
	Usage  Usage
	Extent gpu.Extent
}

// Attachment is one render target. The image, memory and view are owned by
// the attachment; passes and bindings only hold the pointer.
type Attachment struct {
	desc Desc

	image  gpu.ImageHandle
	memory gpu.MemoryHandle
	view   gpu.ImageViewHandle
	scope  *gpu.Scope

	// layout is the layout the image rests in between passes.
	layout gpu.ImageLayout
}

func (a *Attachment) Name() string              { return a.desc.Name }
func (a *Attachment) Format() gpu.Format        { return a.desc.Format }
func (a *Attachment) Usage() Usage              { return a.desc.Usage }
func (a *Attachment) Extent() gpu.Extent        { return a.desc.Extent }
func (a *Attachment) Image() gpu.ImageHandle    { return a.image }
func (a *Attachment) View() gpu.ImageViewHandle { return a.view }

// Layout is the layout the attachment rests in between passes. Render
// passes writing the attachment start from it.
func (a *Attachment) Layout() gpu.ImageLayout { return a.layout }

func (a *Attachment) IsDepth() bool {
	return a.desc.Usage&UsageDepthStencil != 0
}

func (a *Attachment) Aspect() gpu.ImageAspect {
	return gpu.AspectFor(a.desc.Format)
}

// InitialLayout returns the layout an attachment with the given usage must
// be in right after creation so that its first use is valid.
func InitialLayout(usage Usage) gpu.ImageLayout {
	switch {
	case usage&UsageDepthStencil != 0:
		return gpu.LayoutDepthStencilAttachment
	case usage&UsageSampled != 0:
		return gpu.LayoutShaderReadOnly
	default:
		return gpu.LayoutColorAttachment
	}
}

func imageUsage(usage Usage) gpu.ImageUsage {
	var out gpu.ImageUsage
	if usage&UsageColor != 0 {
		out |= gpu.ImageUsageColorAttachment
	}
	if usage&UsageDepthStencil != 0 {
		out |= gpu.ImageUsageDepthStencilAttachment
	}
	if usage&UsageSampled != 0 {
		out |= gpu.ImageUsageSampled
	}
	return out
}

func initialAccess(layout gpu.ImageLayout) (gpu.PipelineStage, gpu.Access) {
	switch layout {
	case gpu.LayoutDepthStencilAttachment:
		return gpu.StageEarlyFragmentTests, gpu.AccessDepthStencilAttachmentRead | gpu.AccessDepthStencilAttachmentWrite
	case gpu.LayoutShaderReadOnly:
		return gpu.StageFragmentShader, gpu.AccessShaderRead
	}
	return gpu.StageColorAttachmentOutput, gpu.AccessColorAttachmentWrite
}
