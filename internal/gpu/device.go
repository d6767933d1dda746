package gpu

import "github.com/google/uuid"

type ImageDesc struct {
	Label  string
	Format Format
	Extent Extent
	Usage  ImageUsage
}

type ImageViewDesc struct {
	Image  ImageHandle
	Format Format
	Aspect ImageAspect
}

type SamplerDesc struct {
	Filter  Filter
	Address AddressMode
}

// AttachmentDesc describes one render pass attachment. The subpass layout is
// implied by the format: color attachments are written in
// LayoutColorAttachment and depth attachments in LayoutDepthStencilAttachment.
type AttachmentDesc struct {
	Format        Format
	LoadOp        LoadOp
	StoreOp       StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

// Dependency orders the render pass subpass against work outside it. When
// Incoming is set it is an external-to-subpass dependency, otherwise a
// subpass-to-external one.
type Dependency struct {
	Incoming  bool
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
}

type RenderPassDesc struct {
	Label        string
	Color        []AttachmentDesc
	Depth        *AttachmentDesc
	Dependencies []Dependency
}

// AttachmentCount is the number of framebuffer views the pass expects.
func (d RenderPassDesc) AttachmentCount() int {
	if d.Depth != nil {
		return len(d.Color) + 1
	}
	return len(d.Color)
}

type FramebufferDesc struct {
	RenderPass RenderPassHandle
	// Views lists color attachments first, then the depth attachment.
	Views  []ImageViewHandle
	Extent Extent
}

type VertexAttribute struct {
	Location int
	Format   Format
	Offset   int
}

type VertexLayout struct {
	Stride     int
	Attributes []VertexAttribute
}

// SpecConstant is a specialization constant. Value must be an int32,
// uint32, float32 or bool.
type SpecConstant struct {
	ID    uint32
	Value any
}

type PipelineDesc struct {
	Label          string
	Vertex         ShaderModuleHandle
	Fragment       ShaderModuleHandle
	Specialization []SpecConstant

	// VertexInput is nil for pipelines that generate their own vertices.
	VertexInput *VertexLayout
	Topology    Topology

	CullMode         CullMode
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     CompareOp
	BlendEnable      bool
	ColorAttachments int

	Layout     PipelineLayoutHandle
	RenderPass RenderPassHandle

	AllowDerivatives bool
	Base             PipelineHandle
}

type BindingSlot struct {
	Binding int
	Kind    DescriptorKind
	Stages  ShaderStage
}

type PoolSize struct {
	Kind  DescriptorKind
	Count int
}

type DescriptorWrite struct {
	Binding int
	Kind    DescriptorKind

	Buffer BufferHandle
	Offset int
	Range  int

	View    ImageViewHandle
	Sampler SamplerHandle
	Layout  ImageLayout
}

type ImageBarrier struct {
	Image     ImageHandle
	Aspect    ImageAspect
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
}

type Barrier struct {
	SrcStage PipelineStage
	DstStage PipelineStage
	Images   []ImageBarrier
}

type RenderPassBegin struct {
	RenderPass  RenderPassHandle
	Framebuffer FramebufferHandle
	Area        Rect
	Clear       []ClearValue
}

type SemaphoreWait struct {
	Semaphore SemaphoreHandle
	Stage     PipelineStage
}

type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	Wait           []SemaphoreWait
	Signal         []SemaphoreHandle
	// Fence is signaled when the submission completes. Zero means none.
	Fence FenceHandle
}

type DeviceProperties struct {
	Name              string
	VendorID          uint32
	DeviceID          uint32
	PipelineCacheUUID uuid.UUID
}

// Device is the backend the renderer records against. The Vulkan backend
// drives real hardware; simgpu records and validates in memory.
type Device interface {
	Properties() DeviceProperties
	MemoryTypes() []MemoryType
	// SupportsDepthFormat reports whether the format can back a depth
	// attachment with optimal tiling.
	SupportsDepthFormat(format Format) bool

	CreateImage(desc ImageDesc) (ImageHandle, MemoryRequirements, error)
	DestroyImage(image ImageHandle)
	AllocateMemory(size int, memoryType int) (MemoryHandle, error)
	FreeMemory(memory MemoryHandle)
	BindImageMemory(image ImageHandle, memory MemoryHandle) error
	CreateImageView(desc ImageViewDesc) (ImageViewHandle, error)
	DestroyImageView(view ImageViewHandle)
	CreateSampler(desc SamplerDesc) (SamplerHandle, error)
	DestroySampler(sampler SamplerHandle)

	CreateBuffer(size int, usage BufferUsage) (BufferHandle, MemoryRequirements, error)
	DestroyBuffer(buffer BufferHandle)
	BindBufferMemory(buffer BufferHandle, memory MemoryHandle) error
	// WriteMemory maps host-visible memory, copies data at offset and unmaps.
	WriteMemory(memory MemoryHandle, offset int, data []byte) error
	ReadMemory(memory MemoryHandle, offset int, size int) ([]byte, error)

	CreateRenderPass(desc RenderPassDesc) (RenderPassHandle, error)
	DestroyRenderPass(renderPass RenderPassHandle)
	CreateFramebuffer(desc FramebufferDesc) (FramebufferHandle, error)
	DestroyFramebuffer(framebuffer FramebufferHandle)

	CreateShaderModule(code []uint32) (ShaderModuleHandle, error)
	DestroyShaderModule(module ShaderModuleHandle)
	CreateDescriptorSetLayout(slots []BindingSlot) (DescriptorSetLayoutHandle, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayoutHandle)
	CreatePipelineLayout(setLayouts []DescriptorSetLayoutHandle) (PipelineLayoutHandle, error)
	DestroyPipelineLayout(layout PipelineLayoutHandle)
	CreatePipelineCache(initialData []byte) (PipelineCacheHandle, error)
	PipelineCacheData(cache PipelineCacheHandle) ([]byte, error)
	DestroyPipelineCache(cache PipelineCacheHandle)
	CreateGraphicsPipeline(cache PipelineCacheHandle, desc PipelineDesc) (PipelineHandle, error)
	DestroyPipeline(pipeline PipelineHandle)

	CreateDescriptorPool(maxSets int, sizes []PoolSize) (DescriptorPoolHandle, error)
	DestroyDescriptorPool(pool DescriptorPoolHandle)
	AllocateDescriptorSet(pool DescriptorPoolHandle, layout DescriptorSetLayoutHandle) (DescriptorSetHandle, error)
	// UpdateDescriptorSet writes every entry of writes in one batch.
	UpdateDescriptorSet(set DescriptorSetHandle, writes []DescriptorWrite) error

	AllocateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(buffer CommandBuffer)
	// RunOneShot records fn into a transient command buffer, submits it and
	// waits for the queue to drain.
	RunOneShot(fn func(cmd CommandBuffer) error) error

	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(semaphore SemaphoreHandle)
	CreateFence(signaled bool) (FenceHandle, error)
	DestroyFence(fence FenceHandle)
	WaitFence(fence FenceHandle) error
	ResetFence(fence FenceHandle) error

	Submit(info SubmitInfo) error
	WaitIdle() error
}

// CommandBuffer records GPU work. Recording calls after a failed call are
// ignored by the backends; the failure is reported by End.
type CommandBuffer interface {
	Begin() error
	End() error

	BeginRenderPass(begin RenderPassBegin)
	EndRenderPass()
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect)

	BindPipeline(pipeline PipelineHandle)
	BindDescriptorSet(layout PipelineLayoutHandle, set DescriptorSetHandle)
	BindVertexBuffer(buffer BufferHandle, offset int)
	BindIndexBuffer(buffer BufferHandle, offset int)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance int)
	DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int)

	PipelineBarrier(barrier Barrier)
	CopyBuffer(src, dst BufferHandle, size int)
	CopyBufferToImage(src BufferHandle, dst ImageHandle, aspect ImageAspect, extent Extent)
}
