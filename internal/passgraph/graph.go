// Package passgraph describes the ordered passes of a frame, checks their
// attachment dependencies and records them through an Encoder.
package passgraph

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/attachment"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// Pass is one render pass of the graph. Targets is nil for the onscreen
// pass, which renders into whichever presentable image the frame
// acquired.
type Pass struct {
	Name    string
	Targets *attachment.TargetSet
	// Reads lists the attachments the pass samples.
	Reads []*attachment.Attachment
	// Record fills the pass between BeginPass and EndPass.
	Record func(enc *Encoder) error
}

func (p *Pass) Onscreen() bool { return p.Targets == nil }

// Writes returns the attachments the pass renders into.
func (p *Pass) Writes() []*attachment.Attachment {
	if p.Targets == nil {
		return nil
	}
	return p.Targets.Attachments()
}

// flush is the barrier after the pass that makes its color writes
// visible to fragment shader reads and returns sampled attachments to
// their resting layout.
func (p *Pass) flush() (gpu.Barrier, bool) {
	b := gpu.Barrier{
		SrcStage: gpu.StageColorAttachmentOutput,
		DstStage: gpu.StageFragmentShader,
	}
	if p.Targets == nil {
		return b, false
	}
	for _, a := range p.Targets.Color() {
		if a.Usage()&attachment.UsageSampled == 0 {
			continue
		}
		b.Images = append(b.Images, gpu.ImageBarrier{
			Image:     a.Image(),
			Aspect:    a.Aspect(),
			OldLayout: gpu.LayoutColorAttachment,
			NewLayout: a.Layout(),
			SrcAccess: gpu.AccessColorAttachmentWrite,
			DstAccess: gpu.AccessShaderRead,
		})
	}
	return b, len(b.Images) > 0
}

// Graph is an ordered list of passes. Every pass but the last renders
// offscreen; the last one is the onscreen composition.
type Graph struct {
	passes   []*Pass
	external map[*attachment.Attachment]bool
}

func New() *Graph {
	return &Graph{external: map[*attachment.Attachment]bool{}}
}

// Add appends p.
func (g *Graph) Add(p *Pass) *Graph {
	g.passes = append(g.passes, p)
	return g
}

// External declares attachments that are read without a writer in the
// graph. Their contents come from an earlier frame or are undefined.
func (g *Graph) External(attachments ...*attachment.Attachment) *Graph {
	for _, a := range attachments {
		g.external[a] = true
	}
	return g
}

func (g *Graph) Passes() []*Pass { return g.passes }

// Offscreen returns every pass before the onscreen one.
func (g *Graph) Offscreen() []*Pass {
	if len(g.passes) == 0 {
		return nil
	}
	return g.passes[:len(g.passes)-1]
}

// Onscreen returns the last pass.
func (g *Graph) Onscreen() *Pass {
	if len(g.passes) == 0 {
		return nil
	}
	return g.passes[len(g.passes)-1]
}

// Validate walks the graph in order: every read has an earlier writer or
// is external, no attachment is written by two passes and the onscreen
// pass is last.
func (g *Graph) Validate() error {
	if len(g.passes) == 0 {
		return gpu.Configurationf("pass graph is empty")
	}

	names := map[string]bool{}
	writer := map[*attachment.Attachment]string{}
	for i, p := range g.passes {
		if names[p.Name] {
			return gpu.Configurationf("pass %q appears twice", p.Name)
		}
		names[p.Name] = true

		last := i == len(g.passes)-1
		switch {
		case p.Onscreen() && !last:
			return gpu.Configurationf("onscreen pass %q is not last", p.Name)
		case !p.Onscreen() && last:
			return gpu.Configurationf("last pass %q does not render onscreen", p.Name)
		}

		writes := p.Writes()
		for _, a := range p.Reads {
			for _, w := range writes {
				if w == a {
					return gpu.Configurationf("pass %q reads its own attachment %s", p.Name, a.Name())
				}
			}
			if _, ok := writer[a]; !ok && !g.external[a] {
				return gpu.Configurationf("pass %q reads %s which no earlier pass writes", p.Name, a.Name())
			}
		}
		for _, a := range writes {
			if w, ok := writer[a]; ok {
				return gpu.Configurationf("attachment %s is written by %q and %q", a.Name(), w, p.Name)
			}
			writer[a] = p.Name
		}
	}
	return nil
}

// RecordOffscreen records every offscreen pass, each followed by its
// flush barrier.
func (g *Graph) RecordOffscreen(enc *Encoder) error {
	for _, p := range g.Offscreen() {
		begin := gpu.RenderPassBegin{
			RenderPass:  p.Targets.RenderPass(),
			Framebuffer: p.Targets.Framebuffer(),
			Area:        gpu.Rect{Extent: p.Targets.Extent()},
			Clear:       p.Targets.ClearValues(),
		}
		if err := g.record(enc, p, begin); err != nil {
			return err
		}
	}
	return nil
}

// RecordOnscreen records the onscreen pass into the framebuffer described
// by begin.
func (g *Graph) RecordOnscreen(enc *Encoder, begin gpu.RenderPassBegin) error {
	p := g.Onscreen()
	if p == nil || !p.Onscreen() {
		return gpu.Configurationf("pass graph has no onscreen pass")
	}
	return g.record(enc, p, begin)
}

func (g *Graph) record(enc *Encoder, p *Pass, begin gpu.RenderPassBegin) error {
	enc.BeginPass(p.Name, begin)
	if p.Record != nil {
		if err := p.Record(enc); err != nil {
			enc.fail(errors.Wrapf(err, "pass %q", p.Name))
		}
	}
	enc.EndPass()
	if b, ok := p.flush(); ok {
		enc.Barrier(b)
	}
	return enc.Err()
}
