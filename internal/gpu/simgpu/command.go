package simgpu

import (
	"fmt"

	"github.com/vkngwrapper/sponza/internal/gpu"
)

type Op int

const (
	OpBeginRenderPass Op = iota
	OpEndRenderPass
	OpSetViewport
	OpSetScissor
	OpBindPipeline
	OpBindDescriptorSet
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpDraw
	OpDrawIndexed
	OpBarrier
	OpCopyBuffer
	OpCopyBufferToImage
)

var opNames = [...]string{
	OpBeginRenderPass:   "BeginRenderPass",
	OpEndRenderPass:     "EndRenderPass",
	OpSetViewport:       "SetViewport",
	OpSetScissor:        "SetScissor",
	OpBindPipeline:      "BindPipeline",
	OpBindDescriptorSet: "BindDescriptorSet",
	OpBindVertexBuffer:  "BindVertexBuffer",
	OpBindIndexBuffer:   "BindIndexBuffer",
	OpDraw:              "Draw",
	OpDrawIndexed:       "DrawIndexed",
	OpBarrier:           "Barrier",
	OpCopyBuffer:        "CopyBuffer",
	OpCopyBufferToImage: "CopyBufferToImage",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op Op

	Begin    gpu.RenderPassBegin
	Viewport gpu.Viewport
	Scissor  gpu.Rect

	Pipeline gpu.PipelineHandle
	// Label is the label of the bound pipeline or of the render pass begun.
	Label  string
	Layout gpu.PipelineLayoutHandle
	Set    gpu.DescriptorSetHandle

	Buffer    gpu.BufferHandle
	DstBuffer gpu.BufferHandle
	Image     gpu.ImageHandle
	Aspect    gpu.ImageAspect
	Extent    gpu.Extent
	Offset    int
	Size      int

	Count         int
	Instances     int
	First         int
	VertexOffset  int
	FirstInstance int

	Barrier gpu.Barrier
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbFreed
)

// CommandBuffer records commands for later replay by Device.Submit.
type CommandBuffer struct {
	device   *Device
	state    cbState
	commands []Command
	inPass   bool
	err      error
}

var _ gpu.CommandBuffer = (*CommandBuffer)(nil)

func (d *Device) AllocateCommandBuffer() (gpu.CommandBuffer, error) {
	d.handle(kindCommandBuffer)
	cb := &CommandBuffer{device: d}
	d.commandBuffers[cb] = true
	return cb, nil
}

func (d *Device) FreeCommandBuffer(buffer gpu.CommandBuffer) {
	cb, ok := buffer.(*CommandBuffer)
	if ok && d.commandBuffers[cb] {
		delete(d.commandBuffers, cb)
		cb.state = cbFreed
		d.live[kindCommandBuffer]--
		return
	}
	d.violate(gpu.Validationf("free of unknown or already freed command buffer"))
}

func (d *Device) RunOneShot(fn func(cmd gpu.CommandBuffer) error) error {
	cmd, err := d.AllocateCommandBuffer()
	if err != nil {
		return err
	}
	defer d.FreeCommandBuffer(cmd)

	if err := cmd.Begin(); err != nil {
		return err
	}
	if err := fn(cmd); err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}
	if err := d.Submit(gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{cmd}}); err != nil {
		return err
	}
	return d.WaitIdle()
}

// Commands returns the commands recorded since the last Begin.
func (c *CommandBuffer) Commands() []Command {
	return c.commands
}

// Ops returns the op of every recorded command, in order.
func (c *CommandBuffer) Ops() []Op {
	ops := make([]Op, len(c.commands))
	for i, cmd := range c.commands {
		ops[i] = cmd.Op
	}
	return ops
}

// BoundPipelines returns the labels of the pipelines bound, in order.
func (c *CommandBuffer) BoundPipelines() []string {
	var labels []string
	for _, cmd := range c.commands {
		if cmd.Op == OpBindPipeline {
			labels = append(labels, cmd.Label)
		}
	}
	return labels
}

// Freed reports whether the buffer was returned to the device.
func (c *CommandBuffer) Freed() bool {
	return c.state == cbFreed
}

func (c *CommandBuffer) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = c.device.violate(gpu.Validationf(format, args...))
	}
}

func (c *CommandBuffer) record(cmd Command) {
	if c.state != cbRecording {
		c.fail("%s recorded outside Begin/End", cmd.Op)
		return
	}
	c.commands = append(c.commands, cmd)
}

func (c *CommandBuffer) Begin() error {
	switch c.state {
	case cbRecording:
		return c.device.violate(gpu.Validationf("command buffer begun twice"))
	case cbFreed:
		return c.device.violate(gpu.Validationf("begin on freed command buffer"))
	}
	c.state = cbRecording
	c.commands = nil
	c.inPass = false
	c.err = nil
	return nil
}

func (c *CommandBuffer) End() error {
	if c.state != cbRecording {
		return c.device.violate(gpu.Validationf("end on command buffer that is not recording"))
	}
	if c.inPass {
		c.fail("command buffer ended inside a render pass")
	}
	c.state = cbExecutable
	return c.err
}

func (c *CommandBuffer) BeginRenderPass(begin gpu.RenderPassBegin) {
	if c.inPass {
		c.fail("render pass begun inside another render pass")
		return
	}
	rp, ok := c.device.renderPasses[begin.RenderPass]
	if !ok {
		c.fail("begin of unknown render pass %d", begin.RenderPass)
		return
	}
	fb, ok := c.device.framebuffers[begin.Framebuffer]
	if !ok {
		c.fail("begin of render pass %q with unknown framebuffer", rp.Label)
		return
	}
	if fb.desc.RenderPass != begin.RenderPass {
		c.fail("render pass %q begun with a framebuffer created for another render pass", rp.Label)
		return
	}
	if len(begin.Clear) != rp.AttachmentCount() {
		c.fail("render pass %q begun with %d clear values for %d attachments", rp.Label, len(begin.Clear), rp.AttachmentCount())
		return
	}
	c.inPass = true
	c.record(Command{Op: OpBeginRenderPass, Begin: begin, Label: rp.Label})
}

func (c *CommandBuffer) EndRenderPass() {
	if !c.inPass {
		c.fail("render pass ended without begin")
		return
	}
	c.inPass = false
	c.record(Command{Op: OpEndRenderPass})
}

func (c *CommandBuffer) SetViewport(viewport gpu.Viewport) {
	c.record(Command{Op: OpSetViewport, Viewport: viewport})
}

func (c *CommandBuffer) SetScissor(scissor gpu.Rect) {
	c.record(Command{Op: OpSetScissor, Scissor: scissor})
}

func (c *CommandBuffer) BindPipeline(pipeline gpu.PipelineHandle) {
	desc, ok := c.device.pipelines[pipeline]
	if !ok {
		c.fail("bind of unknown pipeline %d", pipeline)
		return
	}
	c.record(Command{Op: OpBindPipeline, Pipeline: pipeline, Label: desc.Label})
}

func (c *CommandBuffer) BindDescriptorSet(layout gpu.PipelineLayoutHandle, set gpu.DescriptorSetHandle) {
	if _, ok := c.device.sets[set]; !ok {
		c.fail("bind of unknown descriptor set %d", set)
		return
	}
	c.record(Command{Op: OpBindDescriptorSet, Layout: layout, Set: set})
}

func (c *CommandBuffer) BindVertexBuffer(buffer gpu.BufferHandle, offset int) {
	if _, err := c.device.lookupBuffer(buffer); err != nil {
		c.fail("bind vertex buffer: %v", err)
		return
	}
	c.record(Command{Op: OpBindVertexBuffer, Buffer: buffer, Offset: offset})
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.BufferHandle, offset int) {
	if _, err := c.device.lookupBuffer(buffer); err != nil {
		c.fail("bind index buffer: %v", err)
		return
	}
	c.record(Command{Op: OpBindIndexBuffer, Buffer: buffer, Offset: offset})
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance int) {
	if !c.inPass {
		c.fail("draw outside a render pass")
		return
	}
	c.record(Command{Op: OpDraw, Count: vertexCount, Instances: instanceCount, First: firstVertex, FirstInstance: firstInstance})
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	if !c.inPass {
		c.fail("indexed draw outside a render pass")
		return
	}
	c.record(Command{Op: OpDrawIndexed, Count: indexCount, Instances: instanceCount, First: firstIndex, VertexOffset: vertexOffset, FirstInstance: firstInstance})
}

func (c *CommandBuffer) PipelineBarrier(barrier gpu.Barrier) {
	if c.inPass {
		c.fail("pipeline barrier inside a render pass")
		return
	}
	c.record(Command{Op: OpBarrier, Barrier: barrier})
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.BufferHandle, size int) {
	if c.inPass {
		c.fail("copy inside a render pass")
		return
	}
	c.record(Command{Op: OpCopyBuffer, Buffer: src, DstBuffer: dst, Size: size})
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.BufferHandle, dst gpu.ImageHandle, aspect gpu.ImageAspect, extent gpu.Extent) {
	if c.inPass {
		c.fail("copy inside a render pass")
		return
	}
	c.record(Command{Op: OpCopyBufferToImage, Buffer: src, Image: dst, Aspect: aspect, Extent: extent})
}
