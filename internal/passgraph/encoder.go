package passgraph

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/pipeline"
)

// Encoder records passes into a command buffer, resolving pipelines by
// variant name. The first failure sticks; later calls are ignored and the
// failure is returned by Err.
type Encoder struct {
	cmd       gpu.CommandBuffer
	pipelines *pipeline.Registry

	pass   string
	inPass bool
	extent gpu.Extent
	bound  *pipeline.Variant
	err    error
}

func NewEncoder(cmd gpu.CommandBuffer, pipelines *pipeline.Registry) *Encoder {
	return &Encoder{cmd: cmd, pipelines: pipelines}
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *Encoder) Err() error { return e.err }

// Extent is the render area of the current pass.
func (e *Encoder) Extent() gpu.Extent { return e.extent }

// BeginPass begins a render pass and sets viewport and scissor to the
// whole render area.
func (e *Encoder) BeginPass(name string, begin gpu.RenderPassBegin) {
	if e.err != nil {
		return
	}
	if e.inPass {
		e.fail(gpu.Configurationf("pass %q begun inside pass %q", name, e.pass))
		return
	}
	e.cmd.BeginRenderPass(begin)
	e.pass = name
	e.inPass = true
	e.extent = begin.Area.Extent
	e.bound = nil
	e.SetViewport(begin.Area)
}

// SetViewport restricts drawing to rect.
func (e *Encoder) SetViewport(rect gpu.Rect) {
	if e.err != nil {
		return
	}
	e.cmd.SetViewport(gpu.Viewport{
		X:        float32(rect.X),
		Y:        float32(rect.Y),
		Width:    float32(rect.Width),
		Height:   float32(rect.Height),
		MaxDepth: 1,
	})
	e.cmd.SetScissor(rect)
}

func (e *Encoder) BindPipeline(name string) {
	if !e.check("bind pipeline " + name) {
		return
	}
	v, err := e.pipelines.Get(name)
	if err != nil {
		e.fail(errors.Wrapf(err, "pass %q", e.pass))
		return
	}
	e.cmd.BindPipeline(v.Pipeline)
	e.bound = v
}

// BindResources binds set against the layout of the bound pipeline.
func (e *Encoder) BindResources(set gpu.DescriptorSetHandle) {
	if !e.check("bind resources") {
		return
	}
	if e.bound == nil {
		e.fail(gpu.Configurationf("pass %q binds resources before a pipeline", e.pass))
		return
	}
	e.cmd.BindDescriptorSet(e.bound.Layout, set)
}

// BindGeometry binds the shared vertex and index buffers.
func (e *Encoder) BindGeometry(vertices, indices gpu.BufferHandle) {
	if !e.check("bind geometry") {
		return
	}
	e.cmd.BindVertexBuffer(vertices, 0)
	e.cmd.BindIndexBuffer(indices, 0)
}

// Draw draws vertexCount generated vertices.
func (e *Encoder) Draw(vertexCount int) {
	if !e.check("draw") || !e.checkBound() {
		return
	}
	e.cmd.Draw(vertexCount, 1, 0, 0)
}

func (e *Encoder) DrawIndexed(indexCount, firstIndex, vertexOffset int) {
	if !e.check("indexed draw") || !e.checkBound() {
		return
	}
	e.cmd.DrawIndexed(indexCount, 1, firstIndex, vertexOffset, 0)
}

func (e *Encoder) EndPass() {
	if !e.check("end pass") {
		return
	}
	e.cmd.EndRenderPass()
	e.inPass = false
	e.bound = nil
}

// Barrier records b between passes.
func (e *Encoder) Barrier(b gpu.Barrier) {
	if e.err != nil {
		return
	}
	if e.inPass {
		e.fail(gpu.Configurationf("barrier inside pass %q", e.pass))
		return
	}
	e.cmd.PipelineBarrier(b)
}

func (e *Encoder) check(op string) bool {
	if e.err != nil {
		return false
	}
	if !e.inPass {
		e.fail(gpu.Configurationf("%s outside a pass", op))
		return false
	}
	return true
}

func (e *Encoder) checkBound() bool {
	if e.bound == nil {
		e.fail(gpu.Configurationf("pass %q draws without a pipeline", e.pass))
		return false
	}
	return true
}
