package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// CommandBuffer records into a primary command buffer. The first handle
// lookup or driver failure sticks; later calls are dropped and End reports
// it.
type CommandBuffer struct {
	device *Device
	buffer core1_0.CommandBuffer
	err    error
}

var _ gpu.CommandBuffer = (*CommandBuffer)(nil)

func (c *CommandBuffer) fail(err error) bool {
	if err != nil && c.err == nil {
		c.err = err
	}
	return c.err != nil
}

func (c *CommandBuffer) driver() core1_0.CoreDeviceDriver {
	return c.device.driver
}

// Begin starts a new recording. The pool is created with the reset flag,
// so beginning again discards what was recorded before.
func (c *CommandBuffer) Begin() error {
	c.err = nil
	res, err := c.driver().BeginCommandBuffer(c.buffer, core1_0.CommandBufferBeginInfo{})
	return vkErr("vkBeginCommandBuffer", res, err)
}

func (c *CommandBuffer) End() error {
	if c.err != nil {
		return c.err
	}
	res, err := c.driver().EndCommandBuffer(c.buffer)
	return vkErr("vkEndCommandBuffer", res, err)
}

func (c *CommandBuffer) BeginRenderPass(begin gpu.RenderPassBegin) {
	if c.err != nil {
		return
	}
	renderPass, err := c.device.renderPasses.get(begin.RenderPass)
	if c.fail(err) {
		return
	}
	framebuffer, err := c.device.framebuffers.get(begin.Framebuffer)
	if c.fail(err) {
		return
	}
	clearValues := make([]core1_0.ClearValue, 0, len(begin.Clear))
	for _, clear := range begin.Clear {
		clearValues = append(clearValues, vkClearValue(clear))
	}
	err = c.driver().CmdBeginRenderPass(c.buffer, core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea:  vkRect(begin.Area),
		ClearValues: clearValues,
	})
	c.fail(errors.Wrap(err, "vkCmdBeginRenderPass"))
}

func (c *CommandBuffer) EndRenderPass() {
	if c.err != nil {
		return
	}
	c.driver().CmdEndRenderPass(c.buffer)
}

func (c *CommandBuffer) SetViewport(viewport gpu.Viewport) {
	if c.err != nil {
		return
	}
	c.driver().CmdSetViewport(c.buffer, core1_0.Viewport{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	})
}

func (c *CommandBuffer) SetScissor(scissor gpu.Rect) {
	if c.err != nil {
		return
	}
	c.driver().CmdSetScissor(c.buffer, vkRect(scissor))
}

func (c *CommandBuffer) BindPipeline(pipeline gpu.PipelineHandle) {
	if c.err != nil {
		return
	}
	p, err := c.device.pipelines.get(pipeline)
	if c.fail(err) {
		return
	}
	c.driver().CmdBindPipeline(c.buffer, core1_0.PipelineBindPointGraphics, p)
}

func (c *CommandBuffer) BindDescriptorSet(layout gpu.PipelineLayoutHandle, set gpu.DescriptorSetHandle) {
	if c.err != nil {
		return
	}
	l, err := c.device.pipelineLayouts.get(layout)
	if c.fail(err) {
		return
	}
	s, err := c.device.sets.get(set)
	if c.fail(err) {
		return
	}
	c.driver().CmdBindDescriptorSets(c.buffer, core1_0.PipelineBindPointGraphics, l, 0, []core1_0.DescriptorSet{s.set}, nil)
}

func (c *CommandBuffer) BindVertexBuffer(buffer gpu.BufferHandle, offset int) {
	if c.err != nil {
		return
	}
	b, err := c.device.buffers.get(buffer)
	if c.fail(err) {
		return
	}
	c.driver().CmdBindVertexBuffers(c.buffer, 0, []core1_0.Buffer{b}, []int{offset})
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.BufferHandle, offset int) {
	if c.err != nil {
		return
	}
	b, err := c.device.buffers.get(buffer)
	if c.fail(err) {
		return
	}
	c.driver().CmdBindIndexBuffer(c.buffer, b, offset, core1_0.IndexTypeUInt32)
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance int) {
	if c.err != nil {
		return
	}
	c.driver().CmdDraw(c.buffer, vertexCount, instanceCount, uint32(firstVertex), uint32(firstInstance))
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	if c.err != nil {
		return
	}
	c.driver().CmdDrawIndexed(c.buffer, indexCount, instanceCount, uint32(firstIndex), vertexOffset, uint32(firstInstance))
}

func (c *CommandBuffer) PipelineBarrier(barrier gpu.Barrier) {
	if c.err != nil {
		return
	}
	imageBarriers := make([]core1_0.ImageMemoryBarrier, 0, len(barrier.Images))
	for _, b := range barrier.Images {
		image, err := c.device.images.get(b.Image)
		if c.fail(err) {
			return
		}
		imageBarriers = append(imageBarriers, core1_0.ImageMemoryBarrier{
			OldLayout:           vkLayout(b.OldLayout),
			NewLayout:           vkLayout(b.NewLayout),
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     vkAspect(b.Aspect),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: vkAccess(b.SrcAccess),
			DstAccessMask: vkAccess(b.DstAccess),
		})
	}
	err := c.driver().CmdPipelineBarrier(c.buffer, vkStage(barrier.SrcStage), vkStage(barrier.DstStage), 0, nil, nil, imageBarriers)
	c.fail(errors.Wrap(err, "vkCmdPipelineBarrier"))
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.BufferHandle, size int) {
	if c.err != nil {
		return
	}
	srcBuffer, err := c.device.buffers.get(src)
	if c.fail(err) {
		return
	}
	dstBuffer, err := c.device.buffers.get(dst)
	if c.fail(err) {
		return
	}
	err = c.driver().CmdCopyBuffer(c.buffer, srcBuffer, dstBuffer, core1_0.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      size,
	})
	c.fail(errors.Wrap(err, "vkCmdCopyBuffer"))
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.BufferHandle, dst gpu.ImageHandle, aspect gpu.ImageAspect, extent gpu.Extent) {
	if c.err != nil {
		return
	}
	buffer, err := c.device.buffers.get(src)
	if c.fail(err) {
		return
	}
	image, err := c.device.images.get(dst)
	if c.fail(err) {
		return
	}
	err = c.driver().CmdCopyBufferToImage(c.buffer, buffer, image, core1_0.ImageLayoutTransferDstOptimal, core1_0.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: core1_0.ImageSubresourceLayers{
			AspectMask:     vkAspect(aspect),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	})
	c.fail(errors.Wrap(err, "vkCmdCopyBufferToImage"))
}
