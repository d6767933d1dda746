package vulkan

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

var formats = map[gpu.Format]core1_0.Format{
	gpu.FormatUndefined:   core1_0.FormatUndefined,
	gpu.FormatR8Unorm:     core1_0.FormatR8UnsignedNormalized,
	gpu.FormatRGBA8Unorm:  core1_0.FormatR8G8B8A8UnsignedNormalized,
	gpu.FormatRGBA8SRGB:   core1_0.FormatR8G8B8A8SRGB,
	gpu.FormatBGRA8Unorm:  core1_0.FormatB8G8R8A8UnsignedNormalized,
	gpu.FormatBGRA8SRGB:   core1_0.FormatB8G8R8A8SRGB,
	gpu.FormatRGBA16Float: core1_0.FormatR16G16B16A16SignedFloat,
	gpu.FormatRGBA32Float: core1_0.FormatR32G32B32A32SignedFloat,
	gpu.FormatRG32Float:   core1_0.FormatR32G32SignedFloat,
	gpu.FormatRGB32Float:  core1_0.FormatR32G32B32SignedFloat,
	gpu.FormatD32Float:    core1_0.FormatD32SignedFloat,
	gpu.FormatD32FloatS8:  core1_0.FormatD32SignedFloatS8UnsignedInt,
	gpu.FormatD24UnormS8:  core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

func vkFormat(f gpu.Format) core1_0.Format {
	return formats[f]
}

// gpuFormat maps a driver format back, FormatUndefined when the renderer
// has no name for it.
func gpuFormat(f core1_0.Format) gpu.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gpu.FormatUndefined
}

var layouts = map[gpu.ImageLayout]core1_0.ImageLayout{
	gpu.LayoutUndefined:              core1_0.ImageLayoutUndefined,
	gpu.LayoutColorAttachment:        core1_0.ImageLayoutColorAttachmentOptimal,
	gpu.LayoutDepthStencilAttachment: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
	gpu.LayoutShaderReadOnly:         core1_0.ImageLayoutShaderReadOnlyOptimal,
	gpu.LayoutTransferSrc:            core1_0.ImageLayoutTransferSrcOptimal,
	gpu.LayoutTransferDst:            core1_0.ImageLayoutTransferDstOptimal,
	gpu.LayoutPresentSrc:             khr_swapchain.ImageLayoutPresentSrc,
}

func vkLayout(l gpu.ImageLayout) core1_0.ImageLayout {
	return layouts[l]
}

func vkImageUsage(u gpu.ImageUsage) core1_0.ImageUsageFlags {
	var flags core1_0.ImageUsageFlags
	if u&gpu.ImageUsageColorAttachment != 0 {
		flags |= core1_0.ImageUsageColorAttachment
	}
	if u&gpu.ImageUsageDepthStencilAttachment != 0 {
		flags |= core1_0.ImageUsageDepthStencilAttachment
	}
	if u&gpu.ImageUsageSampled != 0 {
		flags |= core1_0.ImageUsageSampled
	}
	if u&gpu.ImageUsageTransferSrc != 0 {
		flags |= core1_0.ImageUsageTransferSrc
	}
	if u&gpu.ImageUsageTransferDst != 0 {
		flags |= core1_0.ImageUsageTransferDst
	}
	return flags
}

func vkBufferUsage(u gpu.BufferUsage) core1_0.BufferUsageFlags {
	var flags core1_0.BufferUsageFlags
	if u&gpu.BufferUsageVertex != 0 {
		flags |= core1_0.BufferUsageVertexBuffer
	}
	if u&gpu.BufferUsageIndex != 0 {
		flags |= core1_0.BufferUsageIndexBuffer
	}
	if u&gpu.BufferUsageUniform != 0 {
		flags |= core1_0.BufferUsageUniformBuffer
	}
	if u&gpu.BufferUsageTransferSrc != 0 {
		flags |= core1_0.BufferUsageTransferSrc
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		flags |= core1_0.BufferUsageTransferDst
	}
	return flags
}

func vkAspect(a gpu.ImageAspect) core1_0.ImageAspectFlags {
	var flags core1_0.ImageAspectFlags
	if a&gpu.AspectColor != 0 {
		flags |= core1_0.ImageAspectColor
	}
	if a&gpu.AspectDepth != 0 {
		flags |= core1_0.ImageAspectDepth
	}
	if a&gpu.AspectStencil != 0 {
		flags |= core1_0.ImageAspectStencil
	}
	return flags
}

var stages = []struct {
	gpu gpu.PipelineStage
	vk  core1_0.PipelineStageFlags
}{
	{gpu.StageTopOfPipe, core1_0.PipelineStageTopOfPipe},
	{gpu.StageVertexShader, core1_0.PipelineStageVertexShader},
	{gpu.StageFragmentShader, core1_0.PipelineStageFragmentShader},
	{gpu.StageEarlyFragmentTests, core1_0.PipelineStageEarlyFragmentTests},
	{gpu.StageLateFragmentTests, core1_0.PipelineStageLateFragmentTests},
	{gpu.StageColorAttachmentOutput, core1_0.PipelineStageColorAttachmentOutput},
	{gpu.StageTransfer, core1_0.PipelineStageTransfer},
	{gpu.StageBottomOfPipe, core1_0.PipelineStageBottomOfPipe},
}

// vkStage maps a stage mask. An empty mask becomes top-of-pipe, which the
// driver accepts where zero is invalid.
func vkStage(s gpu.PipelineStage) core1_0.PipelineStageFlags {
	var flags core1_0.PipelineStageFlags
	for _, st := range stages {
		if s&st.gpu != 0 {
			flags |= st.vk
		}
	}
	if flags == 0 {
		return core1_0.PipelineStageTopOfPipe
	}
	return flags
}

var accesses = []struct {
	gpu gpu.Access
	vk  core1_0.AccessFlags
}{
	{gpu.AccessShaderRead, core1_0.AccessShaderRead},
	{gpu.AccessColorAttachmentRead, core1_0.AccessColorAttachmentRead},
	{gpu.AccessColorAttachmentWrite, core1_0.AccessColorAttachmentWrite},
	{gpu.AccessDepthStencilAttachmentRead, core1_0.AccessDepthStencilAttachmentRead},
	{gpu.AccessDepthStencilAttachmentWrite, core1_0.AccessDepthStencilAttachmentWrite},
	{gpu.AccessTransferRead, core1_0.AccessTransferRead},
	{gpu.AccessTransferWrite, core1_0.AccessTransferWrite},
	{gpu.AccessMemoryRead, core1_0.AccessMemoryRead},
}

func vkAccess(a gpu.Access) core1_0.AccessFlags {
	var flags core1_0.AccessFlags
	for _, ac := range accesses {
		if a&ac.gpu != 0 {
			flags |= ac.vk
		}
	}
	return flags
}

func gpuMemoryProperties(flags core1_0.MemoryPropertyFlags) gpu.MemoryProperty {
	var props gpu.MemoryProperty
	if flags&core1_0.MemoryPropertyDeviceLocal != 0 {
		props |= gpu.MemoryDeviceLocal
	}
	if flags&core1_0.MemoryPropertyHostVisible != 0 {
		props |= gpu.MemoryHostVisible
	}
	if flags&core1_0.MemoryPropertyHostCoherent != 0 {
		props |= gpu.MemoryHostCoherent
	}
	return props
}

func vkShaderStages(s gpu.ShaderStage) core1_0.ShaderStageFlags {
	var flags core1_0.ShaderStageFlags
	if s&gpu.ShaderVertex != 0 {
		flags |= core1_0.StageVertex
	}
	if s&gpu.ShaderFragment != 0 {
		flags |= core1_0.StageFragment
	}
	return flags
}

func vkDescriptorType(k gpu.DescriptorKind) core1_0.DescriptorType {
	if k == gpu.DescriptorUniformBuffer {
		return core1_0.DescriptorTypeUniformBuffer
	}
	return core1_0.DescriptorTypeCombinedImageSampler
}

func vkCullMode(c gpu.CullMode) core1_0.CullModeFlags {
	switch c {
	case gpu.CullBack:
		return core1_0.CullModeBack
	case gpu.CullFront:
		return core1_0.CullModeFront
	}
	return core1_0.CullModeNone
}

func vkCompareOp(c gpu.CompareOp) core1_0.CompareOp {
	switch c {
	case gpu.CompareLessOrEqual:
		return core1_0.CompareOpLessOrEqual
	case gpu.CompareAlways:
		return core1_0.CompareOpAlways
	}
	return core1_0.CompareOpLess
}

func vkTopology(t gpu.Topology) core1_0.PrimitiveTopology {
	if t == gpu.TopologyTriangleStrip {
		return core1_0.PrimitiveTopologyTriangleStrip
	}
	return core1_0.PrimitiveTopologyTriangleList
}

func vkLoadOp(op gpu.LoadOp) core1_0.AttachmentLoadOp {
	switch op {
	case gpu.LoadOpLoad:
		return core1_0.AttachmentLoadOpLoad
	case gpu.LoadOpDontCare:
		return core1_0.AttachmentLoadOpDontCare
	}
	return core1_0.AttachmentLoadOpClear
}

func vkStoreOp(op gpu.StoreOp) core1_0.AttachmentStoreOp {
	if op == gpu.StoreOpDontCare {
		return core1_0.AttachmentStoreOpDontCare
	}
	return core1_0.AttachmentStoreOpStore
}

func vkFilter(f gpu.Filter) core1_0.Filter {
	if f == gpu.FilterNearest {
		return core1_0.FilterNearest
	}
	return core1_0.FilterLinear
}

func vkAddressMode(a gpu.AddressMode) core1_0.SamplerAddressMode {
	if a == gpu.AddressRepeat {
		return core1_0.SamplerAddressModeRepeat
	}
	return core1_0.SamplerAddressModeClampToEdge
}

func vkClearValue(c gpu.ClearValue) core1_0.ClearValue {
	if c.IsDepth {
		return core1_0.ClearValueDepthStencil{Depth: c.Depth, Stencil: c.Stencil}
	}
	return core1_0.ClearValueFloat(c.Color)
}

func vkRect(r gpu.Rect) core1_0.Rect2D {
	return core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: r.X, Y: r.Y},
		Extent: core1_0.Extent2D{Width: r.Width, Height: r.Height},
	}
}
