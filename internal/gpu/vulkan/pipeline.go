package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

func attachmentDescription(a gpu.AttachmentDesc) core1_0.AttachmentDescription {
	return core1_0.AttachmentDescription{
		Format:         vkFormat(a.Format),
		Samples:        core1_0.Samples1,
		LoadOp:         vkLoadOp(a.LoadOp),
		StoreOp:        vkStoreOp(a.StoreOp),
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  vkLayout(a.InitialLayout),
		FinalLayout:    vkLayout(a.FinalLayout),
	}
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPassHandle, error) {
	var attachments []core1_0.AttachmentDescription
	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
	}
	for i, color := range desc.Color {
		attachments = append(attachments, attachmentDescription(color))
		subpass.ColorAttachments = append(subpass.ColorAttachments, core1_0.AttachmentReference{
			Attachment: i,
			Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
		})
	}
	if desc.Depth != nil {
		attachments = append(attachments, attachmentDescription(*desc.Depth))
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: len(desc.Color),
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	var dependencies []core1_0.SubpassDependency
	for _, dep := range desc.Dependencies {
		dependency := core1_0.SubpassDependency{
			SrcSubpass:    0,
			DstSubpass:    core1_0.SubpassExternal,
			SrcStageMask:  vkStage(dep.SrcStage),
			SrcAccessMask: vkAccess(dep.SrcAccess),
			DstStageMask:  vkStage(dep.DstStage),
			DstAccessMask: vkAccess(dep.DstAccess),
		}
		if dep.Incoming {
			dependency.SrcSubpass = core1_0.SubpassExternal
			dependency.DstSubpass = 0
		}
		dependencies = append(dependencies, dependency)
	}

	renderPass, res, err := d.driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments:         attachments,
		Subpasses:           []core1_0.SubpassDescription{subpass},
		SubpassDependencies: dependencies,
	})
	if err != nil {
		return 0, errors.Wrapf(vkErr("vkCreateRenderPass", res, err), "render pass %q", desc.Label)
	}
	return d.renderPasses.add(renderPass), nil
}

func (d *Device) DestroyRenderPass(renderPass gpu.RenderPassHandle) {
	if rp, ok := d.renderPasses.take(renderPass); ok {
		d.driver.DestroyRenderPass(rp, nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(slots []gpu.BindingSlot) (gpu.DescriptorSetLayoutHandle, error) {
	bindings := make([]core1_0.DescriptorSetLayoutBinding, 0, len(slots))
	for _, slot := range slots {
		bindings = append(bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         slot.Binding,
			DescriptorType:  vkDescriptorType(slot.Kind),
			DescriptorCount: 1,
			StageFlags:      vkShaderStages(slot.Stages),
		})
	}
	layout, res, err := d.driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: bindings,
	})
	if err != nil {
		return 0, vkErr("vkCreateDescriptorSetLayout", res, err)
	}
	return d.setLayouts.add(layout), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayoutHandle) {
	if l, ok := d.setLayouts.take(layout); ok {
		d.driver.DestroyDescriptorSetLayout(l, nil)
	}
}

func (d *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayoutHandle) (gpu.PipelineLayoutHandle, error) {
	layouts := make([]core1_0.DescriptorSetLayout, 0, len(setLayouts))
	for _, h := range setLayouts {
		layout, err := d.setLayouts.get(h)
		if err != nil {
			return 0, err
		}
		layouts = append(layouts, layout)
	}
	layout, res, err := d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: layouts,
	})
	if err != nil {
		return 0, vkErr("vkCreatePipelineLayout", res, err)
	}
	return d.pipelineLayouts.add(layout), nil
}

func (d *Device) DestroyPipelineLayout(layout gpu.PipelineLayoutHandle) {
	if l, ok := d.pipelineLayouts.take(layout); ok {
		d.driver.DestroyPipelineLayout(l, nil)
	}
}

// CreatePipelineCache seeds a cache with data saved by an earlier run. The
// caller has already checked the header against this device.
func (d *Device) CreatePipelineCache(initialData []byte) (gpu.PipelineCacheHandle, error) {
	cache, res, err := d.driver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: initialData,
	})
	if err != nil {
		return 0, vkErr("vkCreatePipelineCache", res, err)
	}
	return d.caches.add(cache), nil
}

func (d *Device) PipelineCacheData(cache gpu.PipelineCacheHandle) ([]byte, error) {
	c, err := d.caches.get(cache)
	if err != nil {
		return nil, err
	}
	data, res, err := d.driver.GetPipelineCacheData(c)
	if err != nil {
		return nil, vkErr("vkGetPipelineCacheData", res, err)
	}
	return data, nil
}

func (d *Device) DestroyPipelineCache(cache gpu.PipelineCacheHandle) {
	if c, ok := d.caches.take(cache); ok {
		d.driver.DestroyPipelineCache(c, nil)
	}
}

func specialization(constants []gpu.SpecConstant) (map[uint32]any, error) {
	if len(constants) == 0 {
		return nil, nil
	}
	values := make(map[uint32]any, len(constants))
	for _, c := range constants {
		switch c.Value.(type) {
		case int32, uint32, float32, bool:
			values[c.ID] = c.Value
		default:
			return nil, gpu.Configurationf("specialization constant %d has unsupported type %T", c.ID, c.Value)
		}
	}
	return values, nil
}

func vertexInput(layout *gpu.VertexLayout) *core1_0.PipelineVertexInputStateCreateInfo {
	if layout == nil {
		return &core1_0.PipelineVertexInputStateCreateInfo{}
	}
	input := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    layout.Stride,
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
	}
	for _, attr := range layout.Attributes {
		input.VertexAttributeDescriptions = append(input.VertexAttributeDescriptions, core1_0.VertexInputAttributeDescription{
			Binding:  0,
			Location: uint32(attr.Location),
			Format:   vkFormat(attr.Format),
			Offset:   attr.Offset,
		})
	}
	return input
}

// CreateGraphicsPipeline builds one pipeline with a dynamic viewport and
// scissor, so a resize does not invalidate it by itself.
func (d *Device) CreateGraphicsPipeline(cache gpu.PipelineCacheHandle, desc gpu.PipelineDesc) (gpu.PipelineHandle, error) {
	vertShader, err := d.shaders.get(desc.Vertex)
	if err != nil {
		return 0, err
	}
	fragShader, err := d.shaders.get(desc.Fragment)
	if err != nil {
		return 0, err
	}
	layout, err := d.pipelineLayouts.get(desc.Layout)
	if err != nil {
		return 0, err
	}
	renderPass, err := d.renderPasses.get(desc.RenderPass)
	if err != nil {
		return 0, err
	}
	specValues, err := specialization(desc.Specialization)
	if err != nil {
		return 0, err
	}

	var pipelineCache *core1_0.PipelineCache
	if cache != 0 {
		c, err := d.caches.get(cache)
		if err != nil {
			return 0, err
		}
		pipelineCache = &c
	}

	blendAttachments := make([]core1_0.PipelineColorBlendAttachmentState, desc.ColorAttachments)
	for i := range blendAttachments {
		blendAttachments[i] = core1_0.PipelineColorBlendAttachmentState{
			BlendEnabled:        desc.BlendEnable,
			SrcColorBlendFactor: core1_0.BlendFactorSrcAlpha,
			DstColorBlendFactor: core1_0.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        core1_0.BlendOpAdd,
			SrcAlphaBlendFactor: core1_0.BlendFactorOne,
			DstAlphaBlendFactor: core1_0.BlendFactorZero,
			AlphaBlendOp:        core1_0.BlendOpAdd,
			ColorWriteMask:      core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
		}
	}

	info := core1_0.GraphicsPipelineCreateInfo{
		Stages: []core1_0.PipelineShaderStageCreateInfo{
			{
				Stage:              core1_0.StageVertex,
				Module:             vertShader,
				Name:               "main",
				SpecializationInfo: specValues,
			},
			{
				Stage:              core1_0.StageFragment,
				Module:             fragShader,
				Name:               "main",
				SpecializationInfo: specValues,
			},
		},
		VertexInputState: vertexInput(desc.VertexInput),
		InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology: vkTopology(desc.Topology),
		},
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{Width: 1, Height: 1, MaxDepth: 1}},
			Scissors:  []core1_0.Rect2D{{Extent: core1_0.Extent2D{Width: 1, Height: 1}}},
		},
		RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    vkCullMode(desc.CullMode),
			FrontFace:   core1_0.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  desc.DepthTest,
			DepthWriteEnable: desc.DepthWrite,
			DepthCompareOp:   vkCompareOp(desc.DepthCompare),
		},
		ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
			LogicOp:     core1_0.LogicOpCopy,
			Attachments: blendAttachments,
		},
		DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
		},
		Layout:            layout,
		RenderPass:        renderPass,
		Subpass:           0,
		BasePipelineIndex: -1,
	}

	if desc.AllowDerivatives {
		info.Flags |= core1_0.PipelineCreateAllowDerivatives
	}
	if desc.Base != 0 {
		base, err := d.pipelines.get(desc.Base)
		if err != nil {
			return 0, err
		}
		info.Flags |= core1_0.PipelineCreateDerivative
		info.BasePipeline = base
	}

	pipelines, res, err := d.driver.CreateGraphicsPipelines(pipelineCache, nil, info)
	if err != nil {
		return 0, errors.Wrapf(vkErr("vkCreateGraphicsPipelines", res, err), "pipeline %q", desc.Label)
	}
	return d.pipelines.add(pipelines[0]), nil
}

func (d *Device) DestroyPipeline(pipeline gpu.PipelineHandle) {
	if p, ok := d.pipelines.take(pipeline); ok {
		d.driver.DestroyPipeline(p, nil)
	}
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes []gpu.PoolSize) (gpu.DescriptorPoolHandle, error) {
	poolSizes := make([]core1_0.DescriptorPoolSize, 0, len(sizes))
	for _, size := range sizes {
		poolSizes = append(poolSizes, core1_0.DescriptorPoolSize{
			Type:            vkDescriptorType(size.Kind),
			DescriptorCount: size.Count,
		})
	}
	pool, res, err := d.driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   maxSets,
		PoolSizes: poolSizes,
	})
	if err != nil {
		return 0, vkErr("vkCreateDescriptorPool", res, err)
	}
	return d.pools.add(pool), nil
}

// DestroyDescriptorPool also forgets every set allocated from the pool; the
// driver frees them with it.
func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPoolHandle) {
	p, ok := d.pools.take(pool)
	if !ok {
		return
	}
	for h, set := range d.sets.items {
		if set.pool == pool {
			delete(d.sets.items, h)
		}
	}
	d.driver.DestroyDescriptorPool(p, nil)
}

func (d *Device) AllocateDescriptorSet(pool gpu.DescriptorPoolHandle, layout gpu.DescriptorSetLayoutHandle) (gpu.DescriptorSetHandle, error) {
	p, err := d.pools.get(pool)
	if err != nil {
		return 0, err
	}
	l, err := d.setLayouts.get(layout)
	if err != nil {
		return 0, err
	}
	sets, res, err := d.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p,
		SetLayouts:     []core1_0.DescriptorSetLayout{l},
	})
	if err != nil {
		return 0, vkErr("vkAllocateDescriptorSets", res, err)
	}
	return d.sets.add(descriptorSet{set: sets[0], pool: pool}), nil
}

func (d *Device) UpdateDescriptorSet(set gpu.DescriptorSetHandle, writes []gpu.DescriptorWrite) error {
	s, err := d.sets.get(set)
	if err != nil {
		return err
	}
	descriptorWrites := make([]core1_0.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := core1_0.WriteDescriptorSet{
			DstSet:          s.set,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  vkDescriptorType(w.Kind),
		}
		switch w.Kind {
		case gpu.DescriptorUniformBuffer:
			buffer, err := d.buffers.get(w.Buffer)
			if err != nil {
				return err
			}
			write.BufferInfo = []core1_0.DescriptorBufferInfo{
				{Buffer: buffer, Offset: w.Offset, Range: w.Range},
			}
		default:
			view, err := d.views.get(w.View)
			if err != nil {
				return err
			}
			sampler, err := d.samplers.get(w.Sampler)
			if err != nil {
				return err
			}
			write.ImageInfo = []core1_0.DescriptorImageInfo{
				{ImageView: view, Sampler: sampler, ImageLayout: vkLayout(w.Layout)},
			}
		}
		descriptorWrites = append(descriptorWrites, write)
	}
	return errors.Wrap(d.driver.UpdateDescriptorSets(descriptorWrites, nil), "vkUpdateDescriptorSets")
}
