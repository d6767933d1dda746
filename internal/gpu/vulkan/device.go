// Package vulkan implements gpu.Device on the vkngwrapper core 1.0 drivers.
package vulkan

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/logging"
)

// fenceTimeout bounds every fence wait. A frame that takes longer than this
// means the device is lost or hung.
const fenceTimeout = 10 * time.Second

type descriptorSet struct {
	set  core1_0.DescriptorSet
	pool gpu.DescriptorPoolHandle
}

// Device drives one logical Vulkan device through a single graphics queue.
// It is not safe for concurrent use.
type Device struct {
	instance *Instance
	physical core1_0.PhysicalDevice
	driver   core1_0.CoreDeviceDriver

	graphicsFamily int
	presentFamily  int
	graphicsQueue  core1_0.Queue
	presentQueue   core1_0.Queue
	commandPool    core1_0.CommandPool

	props         gpu.DeviceProperties
	memoryTypes   []gpu.MemoryType
	depthFormats  map[gpu.Format]bool
	anisotropy    bool
	maxAnisotropy float32

	images          *table[gpu.ImageHandle, core1_0.Image]
	memory          *table[gpu.MemoryHandle, core1_0.DeviceMemory]
	views           *table[gpu.ImageViewHandle, core1_0.ImageView]
	samplers        *table[gpu.SamplerHandle, core1_0.Sampler]
	buffers         *table[gpu.BufferHandle, core1_0.Buffer]
	renderPasses    *table[gpu.RenderPassHandle, core1_0.RenderPass]
	framebuffers    *table[gpu.FramebufferHandle, core1_0.Framebuffer]
	shaders         *table[gpu.ShaderModuleHandle, core1_0.ShaderModule]
	setLayouts      *table[gpu.DescriptorSetLayoutHandle, core1_0.DescriptorSetLayout]
	pipelineLayouts *table[gpu.PipelineLayoutHandle, core1_0.PipelineLayout]
	caches          *table[gpu.PipelineCacheHandle, core1_0.PipelineCache]
	pipelines       *table[gpu.PipelineHandle, core1_0.Pipeline]
	pools           *table[gpu.DescriptorPoolHandle, core1_0.DescriptorPool]
	sets            *table[gpu.DescriptorSetHandle, descriptorSet]
	semaphores      *table[gpu.SemaphoreHandle, core1_0.Semaphore]
	fences          *table[gpu.FenceHandle, core1_0.Fence]
}

var _ gpu.Device = (*Device)(nil)

func newDevice(instance *Instance, physical core1_0.PhysicalDevice) *Device {
	return &Device{
		instance:        instance,
		physical:        physical,
		depthFormats:    map[gpu.Format]bool{},
		images:          newTable[gpu.ImageHandle, core1_0.Image]("image"),
		memory:          newTable[gpu.MemoryHandle, core1_0.DeviceMemory]("memory"),
		views:           newTable[gpu.ImageViewHandle, core1_0.ImageView]("image view"),
		samplers:        newTable[gpu.SamplerHandle, core1_0.Sampler]("sampler"),
		buffers:         newTable[gpu.BufferHandle, core1_0.Buffer]("buffer"),
		renderPasses:    newTable[gpu.RenderPassHandle, core1_0.RenderPass]("render pass"),
		framebuffers:    newTable[gpu.FramebufferHandle, core1_0.Framebuffer]("framebuffer"),
		shaders:         newTable[gpu.ShaderModuleHandle, core1_0.ShaderModule]("shader module"),
		setLayouts:      newTable[gpu.DescriptorSetLayoutHandle, core1_0.DescriptorSetLayout]("descriptor set layout"),
		pipelineLayouts: newTable[gpu.PipelineLayoutHandle, core1_0.PipelineLayout]("pipeline layout"),
		caches:          newTable[gpu.PipelineCacheHandle, core1_0.PipelineCache]("pipeline cache"),
		pipelines:       newTable[gpu.PipelineHandle, core1_0.Pipeline]("pipeline"),
		pools:           newTable[gpu.DescriptorPoolHandle, core1_0.DescriptorPool]("descriptor pool"),
		sets:            newTable[gpu.DescriptorSetHandle, descriptorSet]("descriptor set"),
		semaphores:      newTable[gpu.SemaphoreHandle, core1_0.Semaphore]("semaphore"),
		fences:          newTable[gpu.FenceHandle, core1_0.Fence]("fence"),
	}
}

// vkErr wraps a failed driver call with its name. Out-of-memory and pool
// fragmentation results are marked gpu.ErrResourceExhausted.
func vkErr(call string, res common.VkResult, err error) error {
	if err == nil {
		return nil
	}
	switch res {
	case core1_0.VKErrorOutOfHostMemory, core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorFragmentedPool, core1_0.VKErrorTooManyObjects:
		err = errors.Mark(err, gpu.ErrResourceExhausted)
	}
	return errors.Wrap(err, call)
}

// queryPhysicalDevice fills the properties the renderer reads.
func (d *Device) queryPhysicalDevice() error {
	instance := d.instance.driver
	props, err := instance.GetPhysicalDeviceProperties(d.physical)
	if err != nil {
		return errors.Wrap(err, "vkGetPhysicalDeviceProperties")
	}
	d.props = gpu.DeviceProperties{
		Name:              props.DriverName,
		VendorID:          props.VendorID,
		DeviceID:          props.DeviceID,
		PipelineCacheUUID: props.PipelineCacheUUID,
	}
	d.maxAnisotropy = props.Limits.MaxSamplerAnisotropy

	features := instance.GetPhysicalDeviceFeatures(d.physical)
	d.anisotropy = features.SamplerAnisotropy

	memProperties := instance.GetPhysicalDeviceMemoryProperties(d.physical)
	for _, memoryType := range memProperties.MemoryTypes {
		d.memoryTypes = append(d.memoryTypes, gpu.MemoryType{
			Properties: gpuMemoryProperties(memoryType.PropertyFlags),
			HeapIndex:  memoryType.HeapIndex,
		})
	}

	for _, format := range gpu.DepthFormats {
		formatProps := instance.GetPhysicalDeviceFormatProperties(d.physical, vkFormat(format))
		if formatProps.OptimalTilingFeatures&core1_0.FormatFeatureDepthStencilAttachment != 0 {
			d.depthFormats[format] = true
		}
	}
	return nil
}

func (d *Device) Properties() gpu.DeviceProperties { return d.props }
func (d *Device) MemoryTypes() []gpu.MemoryType    { return d.memoryTypes }

func (d *Device) SupportsDepthFormat(format gpu.Format) bool {
	return d.depthFormats[format]
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.ImageHandle, gpu.MemoryRequirements, error) {
	image, res, err := d.driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vkFormat(desc.Format),
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         vkImageUsage(desc.Usage),
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return 0, gpu.MemoryRequirements{}, vkErr("vkCreateImage", res, err)
	}

	memReqs := d.driver.GetImageMemoryRequirements(image)
	logging.Logger().Debug("image created", "label", desc.Label, "format", desc.Format, "extent", desc.Extent)
	return d.images.add(image), gpu.MemoryRequirements{Size: memReqs.Size, MemoryTypeBits: memReqs.MemoryTypeBits}, nil
}

func (d *Device) DestroyImage(image gpu.ImageHandle) {
	if img, ok := d.images.take(image); ok {
		d.driver.DestroyImage(img, nil)
	}
}

func (d *Device) AllocateMemory(size int, memoryType int) (gpu.MemoryHandle, error) {
	memory, res, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryType,
	})
	if err != nil {
		return 0, vkErr("vkAllocateMemory", res, err)
	}
	return d.memory.add(memory), nil
}

func (d *Device) FreeMemory(memory gpu.MemoryHandle) {
	if mem, ok := d.memory.take(memory); ok {
		d.driver.FreeMemory(mem, nil)
	}
}

func (d *Device) BindImageMemory(image gpu.ImageHandle, memory gpu.MemoryHandle) error {
	img, err := d.images.get(image)
	if err != nil {
		return err
	}
	mem, err := d.memory.get(memory)
	if err != nil {
		return err
	}
	res, err := d.driver.BindImageMemory(img, mem, 0)
	return vkErr("vkBindImageMemory", res, err)
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageViewHandle, error) {
	img, err := d.images.get(desc.Image)
	if err != nil {
		return 0, err
	}
	view, err := d.createView(img, vkFormat(desc.Format), vkAspect(desc.Aspect))
	if err != nil {
		return 0, err
	}
	return d.views.add(view), nil
}

func (d *Device) createView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (core1_0.ImageView, error) {
	view, res, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return view, vkErr("vkCreateImageView", res, err)
}

func (d *Device) DestroyImageView(view gpu.ImageViewHandle) {
	if v, ok := d.views.take(view); ok {
		d.driver.DestroyImageView(v, nil)
	}
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.SamplerHandle, error) {
	address := vkAddressMode(desc.Address)
	anisotropy := d.anisotropy && desc.Filter == gpu.FilterLinear
	sampler, res, err := d.driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:        vkFilter(desc.Filter),
		MinFilter:        vkFilter(desc.Filter),
		AddressModeU:     address,
		AddressModeV:     address,
		AddressModeW:     address,
		AnisotropyEnable: anisotropy,
		MaxAnisotropy:    d.maxAnisotropy,
		BorderColor:      core1_0.BorderColorFloatOpaqueWhite,
		MipmapMode:       core1_0.SamplerMipmapModeLinear,
		MinLod:           0,
		MaxLod:           1,
	})
	if err != nil {
		return 0, vkErr("vkCreateSampler", res, err)
	}
	return d.samplers.add(sampler), nil
}

func (d *Device) DestroySampler(sampler gpu.SamplerHandle) {
	if s, ok := d.samplers.take(sampler); ok {
		d.driver.DestroySampler(s, nil)
	}
}

func (d *Device) CreateBuffer(size int, usage gpu.BufferUsage) (gpu.BufferHandle, gpu.MemoryRequirements, error) {
	buffer, res, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       vkBufferUsage(usage),
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return 0, gpu.MemoryRequirements{}, vkErr("vkCreateBuffer", res, err)
	}
	memReqs := d.driver.GetBufferMemoryRequirements(buffer)
	return d.buffers.add(buffer), gpu.MemoryRequirements{Size: memReqs.Size, MemoryTypeBits: memReqs.MemoryTypeBits}, nil
}

func (d *Device) DestroyBuffer(buffer gpu.BufferHandle) {
	if b, ok := d.buffers.take(buffer); ok {
		d.driver.DestroyBuffer(b, nil)
	}
}

func (d *Device) BindBufferMemory(buffer gpu.BufferHandle, memory gpu.MemoryHandle) error {
	buf, err := d.buffers.get(buffer)
	if err != nil {
		return err
	}
	mem, err := d.memory.get(memory)
	if err != nil {
		return err
	}
	res, err := d.driver.BindBufferMemory(buf, mem, 0)
	return vkErr("vkBindBufferMemory", res, err)
}

func (d *Device) WriteMemory(memory gpu.MemoryHandle, offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	mem, err := d.memory.get(memory)
	if err != nil {
		return err
	}
	memoryPtr, res, err := d.driver.MapMemory(mem, offset, len(data), 0)
	if err != nil {
		return vkErr("vkMapMemory", res, err)
	}
	defer d.driver.UnmapMemory(mem)

	copy(unsafe.Slice((*byte)(memoryPtr), len(data)), data)
	return nil
}

func (d *Device) ReadMemory(memory gpu.MemoryHandle, offset int, size int) ([]byte, error) {
	mem, err := d.memory.get(memory)
	if err != nil {
		return nil, err
	}
	memoryPtr, res, err := d.driver.MapMemory(mem, offset, size, 0)
	if err != nil {
		return nil, vkErr("vkMapMemory", res, err)
	}
	defer d.driver.UnmapMemory(mem)

	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(memoryPtr), size))
	return out, nil
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.FramebufferHandle, error) {
	renderPass, err := d.renderPasses.get(desc.RenderPass)
	if err != nil {
		return 0, err
	}
	views := make([]core1_0.ImageView, 0, len(desc.Views))
	for _, v := range desc.Views {
		view, err := d.views.get(v)
		if err != nil {
			return 0, err
		}
		views = append(views, view)
	}
	framebuffer, res, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  renderPass,
		Layers:      1,
		Attachments: views,
		Width:       desc.Extent.Width,
		Height:      desc.Extent.Height,
	})
	if err != nil {
		return 0, vkErr("vkCreateFramebuffer", res, err)
	}
	return d.framebuffers.add(framebuffer), nil
}

func (d *Device) DestroyFramebuffer(framebuffer gpu.FramebufferHandle) {
	if f, ok := d.framebuffers.take(framebuffer); ok {
		d.driver.DestroyFramebuffer(f, nil)
	}
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModuleHandle, error) {
	module, res, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return 0, vkErr("vkCreateShaderModule", res, err)
	}
	return d.shaders.add(module), nil
}

func (d *Device) DestroyShaderModule(module gpu.ShaderModuleHandle) {
	if m, ok := d.shaders.take(module); ok {
		d.driver.DestroyShaderModule(m, nil)
	}
}

func (d *Device) AllocateCommandBuffer() (gpu.CommandBuffer, error) {
	buffers, res, err := d.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, vkErr("vkAllocateCommandBuffers", res, err)
	}
	return &CommandBuffer{device: d, buffer: buffers[0]}, nil
}

func (d *Device) FreeCommandBuffer(buffer gpu.CommandBuffer) {
	if cmd, ok := buffer.(*CommandBuffer); ok && cmd.buffer.Initialized() {
		d.driver.FreeCommandBuffers(cmd.buffer)
		cmd.buffer = core1_0.CommandBuffer{}
	}
}

// RunOneShot is the single-time command path: record, submit without a
// fence and drain the graphics queue.
func (d *Device) RunOneShot(fn func(cmd gpu.CommandBuffer) error) error {
	buffer, err := d.AllocateCommandBuffer()
	if err != nil {
		return err
	}
	defer d.FreeCommandBuffer(buffer)

	cmd := buffer.(*CommandBuffer)
	res, err := d.driver.BeginCommandBuffer(cmd.buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return vkErr("vkBeginCommandBuffer", res, err)
	}
	if err := fn(cmd); err != nil {
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}

	res, err = d.driver.QueueSubmit(d.graphicsQueue, nil, core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{cmd.buffer},
	})
	if err != nil {
		return vkErr("vkQueueSubmit", res, err)
	}
	res, err = d.driver.QueueWaitIdle(d.graphicsQueue)
	return vkErr("vkQueueWaitIdle", res, err)
}

func (d *Device) CreateSemaphore() (gpu.SemaphoreHandle, error) {
	semaphore, res, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return 0, vkErr("vkCreateSemaphore", res, err)
	}
	return d.semaphores.add(semaphore), nil
}

func (d *Device) DestroySemaphore(semaphore gpu.SemaphoreHandle) {
	if s, ok := d.semaphores.take(semaphore); ok {
		d.driver.DestroySemaphore(s, nil)
	}
}

func (d *Device) CreateFence(signaled bool) (gpu.FenceHandle, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}
	fence, res, err := d.driver.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return 0, vkErr("vkCreateFence", res, err)
	}
	return d.fences.add(fence), nil
}

func (d *Device) DestroyFence(fence gpu.FenceHandle) {
	if f, ok := d.fences.take(fence); ok {
		d.driver.DestroyFence(f, nil)
	}
}

func (d *Device) WaitFence(fence gpu.FenceHandle) error {
	f, err := d.fences.get(fence)
	if err != nil {
		return err
	}
	res, err := d.driver.WaitForFences(true, fenceTimeout, f)
	if err != nil {
		return vkErr("vkWaitForFences", res, err)
	}
	if res == core1_0.VKTimeout {
		return errors.Newf("vkWaitForFences: no signal after %s", fenceTimeout)
	}
	return nil
}

func (d *Device) ResetFence(fence gpu.FenceHandle) error {
	f, err := d.fences.get(fence)
	if err != nil {
		return err
	}
	res, err := d.driver.ResetFences(f)
	return vkErr("vkResetFences", res, err)
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	submit := core1_0.SubmitInfo{}
	for _, buffer := range info.CommandBuffers {
		cmd, ok := buffer.(*CommandBuffer)
		if !ok {
			return gpu.Configurationf("command buffer %T was not allocated by this device", buffer)
		}
		submit.CommandBuffers = append(submit.CommandBuffers, cmd.buffer)
	}
	for _, wait := range info.Wait {
		semaphore, err := d.semaphores.get(wait.Semaphore)
		if err != nil {
			return err
		}
		submit.WaitSemaphores = append(submit.WaitSemaphores, semaphore)
		submit.WaitDstStageMask = append(submit.WaitDstStageMask, vkStage(wait.Stage))
	}
	for _, signal := range info.Signal {
		semaphore, err := d.semaphores.get(signal)
		if err != nil {
			return err
		}
		submit.SignalSemaphores = append(submit.SignalSemaphores, semaphore)
	}

	var fence *core1_0.Fence
	if info.Fence != 0 {
		f, err := d.fences.get(info.Fence)
		if err != nil {
			return err
		}
		fence = &f
	}

	res, err := d.driver.QueueSubmit(d.graphicsQueue, fence, submit)
	return vkErr("vkQueueSubmit", res, err)
}

func (d *Device) WaitIdle() error {
	res, err := d.driver.DeviceWaitIdle()
	return vkErr("vkDeviceWaitIdle", res, err)
}

// liveObjects counts the handles still registered, by kind.
func (d *Device) liveObjects() map[string]int {
	counts := map[string]int{
		d.images.kind:          d.images.len(),
		d.memory.kind:          d.memory.len(),
		d.views.kind:           d.views.len(),
		d.samplers.kind:        d.samplers.len(),
		d.buffers.kind:         d.buffers.len(),
		d.renderPasses.kind:    d.renderPasses.len(),
		d.framebuffers.kind:    d.framebuffers.len(),
		d.shaders.kind:         d.shaders.len(),
		d.setLayouts.kind:      d.setLayouts.len(),
		d.pipelineLayouts.kind: d.pipelineLayouts.len(),
		d.caches.kind:          d.caches.len(),
		d.pipelines.kind:       d.pipelines.len(),
		d.pools.kind:           d.pools.len(),
		d.semaphores.kind:      d.semaphores.len(),
		d.fences.kind:          d.fences.len(),
	}
	for kind, n := range counts {
		if n == 0 {
			delete(counts, kind)
		}
	}
	return counts
}

// Destroy releases the command pool and the logical device. Objects the
// renderer failed to release are reported, not destroyed.
func (d *Device) Destroy() {
	if d.driver == nil {
		return
	}
	if leaked := d.liveObjects(); len(leaked) > 0 {
		logging.Logger().Warn("device destroyed with live objects", "objects", leaked)
	}
	if d.commandPool.Initialized() {
		d.driver.DestroyCommandPool(d.commandPool, nil)
	}
	d.driver.DestroyDevice(nil)
	d.driver = nil
}
