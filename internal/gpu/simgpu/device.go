// Package simgpu is an in-memory gpu.Device. It records every command,
// replays submissions against simulated image state and reports hazards
// the real hardware would silently get wrong: sampling an image before its
// write was made visible, beginning a render pass with an attachment in the
// wrong layout, overwriting an attachment still being read, and waiting on
// work nobody signaled.
package simgpu

import (
	"encoding/binary"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// DefaultPipelineCacheUUID identifies the simulated driver's cache format.
var DefaultPipelineCacheUUID = uuid.MustParse("5d1a4f62-3c0e-4b5f-9a51-7b1f2e0c9d44")

const (
	kindImage               = "image"
	kindMemory              = "memory"
	kindImageView           = "image-view"
	kindSampler             = "sampler"
	kindBuffer              = "buffer"
	kindRenderPass          = "render-pass"
	kindFramebuffer         = "framebuffer"
	kindShaderModule        = "shader-module"
	kindDescriptorSetLayout = "descriptor-set-layout"
	kindPipelineLayout      = "pipeline-layout"
	kindPipelineCache       = "pipeline-cache"
	kindPipeline            = "pipeline"
	kindDescriptorPool      = "descriptor-pool"
	kindCommandBuffer       = "command-buffer"
	kindSemaphore           = "semaphore"
	kindFence               = "fence"
)

type Option func(*Device)

// WithMemoryTypes replaces the default device-local plus host-visible
// memory types.
func WithMemoryTypes(types ...gpu.MemoryType) Option {
	return func(d *Device) {
		d.memoryTypes = types
	}
}

// WithDepthFormats restricts the depth formats the device reports as
// supported.
func WithDepthFormats(formats ...gpu.Format) Option {
	return func(d *Device) {
		d.depthFormats = map[gpu.Format]bool{}
		for _, f := range formats {
			d.depthFormats[f] = true
		}
	}
}

func WithProperties(props gpu.DeviceProperties) Option {
	return func(d *Device) {
		d.props = props
	}
}

type image struct {
	desc   gpu.ImageDesc
	reqs   gpu.MemoryRequirements
	memory gpu.MemoryHandle

	layout gpu.ImageLayout
	// pendingWrite is set when the image was written and no barrier has yet
	// made that write visible to fragment shader reads.
	pendingWrite bool
	// writtenBy is the submission that last wrote the image, 0 for none.
	writtenBy int
	// sampled is set when a draw read the image since its last write.
	sampled     bool
	transitions int
}

type memory struct {
	size       int
	memoryType int
	data       []byte
}

type buffer struct {
	size   int
	usage  gpu.BufferUsage
	memory gpu.MemoryHandle
}

type framebuffer struct {
	desc gpu.FramebufferDesc
}

type descriptorSet struct {
	pool    gpu.DescriptorPoolHandle
	layout  gpu.DescriptorSetLayoutHandle
	writes  map[int]gpu.DescriptorWrite
	updates int
}

type semaphore struct {
	signaled   bool
	signaledBy int
}

type fence struct {
	signaled   bool
	submission int
}

type pool struct {
	maxSets int
	sets    []gpu.DescriptorSetHandle
}

// Device is a simulated gpu.Device. It is not safe for concurrent use.
type Device struct {
	props        gpu.DeviceProperties
	memoryTypes  []gpu.MemoryType
	depthFormats map[gpu.Format]bool

	next uint64
	live map[string]int

	images          map[gpu.ImageHandle]*image
	memories        map[gpu.MemoryHandle]*memory
	views           map[gpu.ImageViewHandle]gpu.ImageViewDesc
	samplers        map[gpu.SamplerHandle]gpu.SamplerDesc
	buffers         map[gpu.BufferHandle]*buffer
	renderPasses    map[gpu.RenderPassHandle]gpu.RenderPassDesc
	framebuffers    map[gpu.FramebufferHandle]*framebuffer
	modules         map[gpu.ShaderModuleHandle][]uint32
	setLayouts      map[gpu.DescriptorSetLayoutHandle][]gpu.BindingSlot
	pipelineLayouts map[gpu.PipelineLayoutHandle][]gpu.DescriptorSetLayoutHandle
	caches          map[gpu.PipelineCacheHandle][]byte
	pipelines       map[gpu.PipelineHandle]gpu.PipelineDesc
	pools           map[gpu.DescriptorPoolHandle]*pool
	sets            map[gpu.DescriptorSetHandle]*descriptorSet
	semaphores      map[gpu.SemaphoreHandle]*semaphore
	fences          map[gpu.FenceHandle]*fence
	commandBuffers  map[*CommandBuffer]bool

	submissions   []*Submission
	completedUpTo int
	violations    []error
}

var _ gpu.Device = (*Device)(nil)

func New(opts ...Option) *Device {
	d := &Device{
		props: gpu.DeviceProperties{
			Name:              "simgpu",
			VendorID:          0x5151,
			DeviceID:          0x0001,
			PipelineCacheUUID: DefaultPipelineCacheUUID,
		},
		memoryTypes: []gpu.MemoryType{
			{Properties: gpu.MemoryDeviceLocal, HeapIndex: 0},
			{Properties: gpu.MemoryHostVisible | gpu.MemoryHostCoherent, HeapIndex: 1},
		},
		depthFormats: map[gpu.Format]bool{
			gpu.FormatD32Float:   true,
			gpu.FormatD32FloatS8: true,
			gpu.FormatD24UnormS8: true,
		},
		live:            map[string]int{},
		images:          map[gpu.ImageHandle]*image{},
		memories:        map[gpu.MemoryHandle]*memory{},
		views:           map[gpu.ImageViewHandle]gpu.ImageViewDesc{},
		samplers:        map[gpu.SamplerHandle]gpu.SamplerDesc{},
		buffers:         map[gpu.BufferHandle]*buffer{},
		renderPasses:    map[gpu.RenderPassHandle]gpu.RenderPassDesc{},
		framebuffers:    map[gpu.FramebufferHandle]*framebuffer{},
		modules:         map[gpu.ShaderModuleHandle][]uint32{},
		setLayouts:      map[gpu.DescriptorSetLayoutHandle][]gpu.BindingSlot{},
		pipelineLayouts: map[gpu.PipelineLayoutHandle][]gpu.DescriptorSetLayoutHandle{},
		caches:          map[gpu.PipelineCacheHandle][]byte{},
		pipelines:       map[gpu.PipelineHandle]gpu.PipelineDesc{},
		pools:           map[gpu.DescriptorPoolHandle]*pool{},
		sets:            map[gpu.DescriptorSetHandle]*descriptorSet{},
		semaphores:      map[gpu.SemaphoreHandle]*semaphore{},
		fences:          map[gpu.FenceHandle]*fence{},
		commandBuffers:  map[*CommandBuffer]bool{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) handle(kind string) uint64 {
	d.next++
	d.live[kind]++
	return d.next
}

func (d *Device) release(kind string, found bool, handle uint64) {
	if !found {
		d.violate(gpu.Validationf("destroy of unknown or already destroyed %s %d", kind, handle))
		return
	}
	d.live[kind]--
}

func (d *Device) violate(err error) error {
	d.violations = append(d.violations, err)
	return err
}

// Violations returns every hazard detected so far.
func (d *Device) Violations() []error {
	return d.violations
}

// Live returns the number of live objects of kind, e.g. "image".
func (d *Device) Live(kind string) int {
	return d.live[kind]
}

// LiveObjects returns the live object count per kind, omitting kinds with
// none alive.
func (d *Device) LiveObjects() map[string]int {
	out := map[string]int{}
	for kind, n := range d.live {
		if n != 0 {
			out[kind] = n
		}
	}
	return out
}

func (d *Device) Properties() gpu.DeviceProperties { return d.props }

func (d *Device) MemoryTypes() []gpu.MemoryType { return d.memoryTypes }

func (d *Device) SupportsDepthFormat(format gpu.Format) bool {
	return d.depthFormats[format]
}

func bytesPerPixel(format gpu.Format) int {
	switch format {
	case gpu.FormatR8Unorm:
		return 1
	case gpu.FormatRGBA16Float, gpu.FormatD32FloatS8, gpu.FormatRG32Float:
		return 8
	case gpu.FormatRGBA32Float:
		return 16
	case gpu.FormatRGB32Float:
		return 12
	}
	return 4
}

func (d *Device) allTypeBits() uint32 {
	return uint32(1)<<len(d.memoryTypes) - 1
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.ImageHandle, gpu.MemoryRequirements, error) {
	if desc.Extent.Empty() {
		return 0, gpu.MemoryRequirements{}, gpu.Configurationf("image %q has empty extent %s", desc.Label, desc.Extent)
	}
	if desc.Format == gpu.FormatUndefined {
		return 0, gpu.MemoryRequirements{}, gpu.Configurationf("image %q has undefined format", desc.Label)
	}
	h := gpu.ImageHandle(d.handle(kindImage))
	reqs := gpu.MemoryRequirements{
		Size:           desc.Extent.Width * desc.Extent.Height * bytesPerPixel(desc.Format),
		MemoryTypeBits: d.allTypeBits(),
	}
	d.images[h] = &image{desc: desc, reqs: reqs, layout: gpu.LayoutUndefined}
	return h, reqs, nil
}

func (d *Device) DestroyImage(h gpu.ImageHandle) {
	_, ok := d.images[h]
	delete(d.images, h)
	d.release(kindImage, ok, uint64(h))
}

func (d *Device) AllocateMemory(size int, memoryType int) (gpu.MemoryHandle, error) {
	if memoryType < 0 || memoryType >= len(d.memoryTypes) {
		return 0, gpu.ResourceExhaustedf("memory type %d does not exist", memoryType)
	}
	h := gpu.MemoryHandle(d.handle(kindMemory))
	d.memories[h] = &memory{size: size, memoryType: memoryType, data: make([]byte, size)}
	return h, nil
}

func (d *Device) FreeMemory(h gpu.MemoryHandle) {
	_, ok := d.memories[h]
	delete(d.memories, h)
	d.release(kindMemory, ok, uint64(h))
}

func (d *Device) BindImageMemory(h gpu.ImageHandle, m gpu.MemoryHandle) error {
	img, ok := d.images[h]
	if !ok {
		return gpu.Configurationf("bind memory to unknown image %d", h)
	}
	mem, ok := d.memories[m]
	if !ok {
		return gpu.Configurationf("bind unknown memory %d", m)
	}
	if mem.size < img.reqs.Size {
		return gpu.ResourceExhaustedf("memory of %d bytes is too small for image %q (%d bytes)", mem.size, img.desc.Label, img.reqs.Size)
	}
	img.memory = m
	return nil
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageViewHandle, error) {
	img, ok := d.images[desc.Image]
	if !ok {
		return 0, gpu.Configurationf("view of unknown image %d", desc.Image)
	}
	if img.memory == 0 {
		return 0, gpu.Configurationf("view of image %q without bound memory", img.desc.Label)
	}
	h := gpu.ImageViewHandle(d.handle(kindImageView))
	d.views[h] = desc
	return h, nil
}

func (d *Device) DestroyImageView(h gpu.ImageViewHandle) {
	_, ok := d.views[h]
	delete(d.views, h)
	d.release(kindImageView, ok, uint64(h))
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.SamplerHandle, error) {
	h := gpu.SamplerHandle(d.handle(kindSampler))
	d.samplers[h] = desc
	return h, nil
}

func (d *Device) DestroySampler(h gpu.SamplerHandle) {
	_, ok := d.samplers[h]
	delete(d.samplers, h)
	d.release(kindSampler, ok, uint64(h))
}

func (d *Device) CreateBuffer(size int, usage gpu.BufferUsage) (gpu.BufferHandle, gpu.MemoryRequirements, error) {
	if size <= 0 {
		return 0, gpu.MemoryRequirements{}, gpu.Configurationf("buffer of %d bytes", size)
	}
	h := gpu.BufferHandle(d.handle(kindBuffer))
	d.buffers[h] = &buffer{size: size, usage: usage}
	return h, gpu.MemoryRequirements{Size: size, MemoryTypeBits: d.allTypeBits()}, nil
}

func (d *Device) DestroyBuffer(h gpu.BufferHandle) {
	_, ok := d.buffers[h]
	delete(d.buffers, h)
	d.release(kindBuffer, ok, uint64(h))
}

func (d *Device) BindBufferMemory(h gpu.BufferHandle, m gpu.MemoryHandle) error {
	buf, ok := d.buffers[h]
	if !ok {
		return gpu.Configurationf("bind memory to unknown buffer %d", h)
	}
	mem, ok := d.memories[m]
	if !ok {
		return gpu.Configurationf("bind unknown memory %d", m)
	}
	if mem.size < buf.size {
		return gpu.ResourceExhaustedf("memory of %d bytes is too small for buffer of %d bytes", mem.size, buf.size)
	}
	buf.memory = m
	return nil
}

func (d *Device) hostMemory(m gpu.MemoryHandle, offset, size int) (*memory, error) {
	mem, ok := d.memories[m]
	if !ok {
		return nil, gpu.Configurationf("map of unknown memory %d", m)
	}
	if d.memoryTypes[mem.memoryType].Properties&gpu.MemoryHostVisible == 0 {
		return nil, d.violate(gpu.Validationf("map of memory %d which is not host visible", m))
	}
	if offset < 0 || offset+size > mem.size {
		return nil, d.violate(gpu.Validationf("map range [%d,%d) outside memory of %d bytes", offset, offset+size, mem.size))
	}
	return mem, nil
}

func (d *Device) WriteMemory(m gpu.MemoryHandle, offset int, data []byte) error {
	mem, err := d.hostMemory(m, offset, len(data))
	if err != nil {
		return err
	}
	copy(mem.data[offset:], data)
	return nil
}

func (d *Device) ReadMemory(m gpu.MemoryHandle, offset int, size int) ([]byte, error) {
	mem, err := d.hostMemory(m, offset, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, mem.data[offset:offset+size])
	return out, nil
}

// BufferContents returns a copy of the memory bound to buffer, whatever its
// memory type.
func (d *Device) BufferContents(h gpu.BufferHandle) []byte {
	buf, ok := d.buffers[h]
	if !ok || buf.memory == 0 {
		return nil
	}
	mem := d.memories[buf.memory]
	out := make([]byte, buf.size)
	copy(out, mem.data)
	return out
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPassHandle, error) {
	if desc.AttachmentCount() == 0 {
		return 0, gpu.Configurationf("render pass %q has no attachments", desc.Label)
	}
	for i, a := range desc.Color {
		if a.Format.IsDepth() {
			return 0, gpu.Configurationf("render pass %q color attachment %d has depth format %s", desc.Label, i, a.Format)
		}
	}
	if desc.Depth != nil && !desc.Depth.Format.IsDepth() {
		return 0, gpu.Configurationf("render pass %q depth attachment has color format %s", desc.Label, desc.Depth.Format)
	}
	h := gpu.RenderPassHandle(d.handle(kindRenderPass))
	d.renderPasses[h] = desc
	return h, nil
}

func (d *Device) DestroyRenderPass(h gpu.RenderPassHandle) {
	_, ok := d.renderPasses[h]
	delete(d.renderPasses, h)
	d.release(kindRenderPass, ok, uint64(h))
}

// RenderPass returns the description a render pass was created with.
func (d *Device) RenderPass(h gpu.RenderPassHandle) (gpu.RenderPassDesc, bool) {
	desc, ok := d.renderPasses[h]
	return desc, ok
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.FramebufferHandle, error) {
	rp, ok := d.renderPasses[desc.RenderPass]
	if !ok {
		return 0, gpu.Configurationf("framebuffer for unknown render pass %d", desc.RenderPass)
	}
	if len(desc.Views) != rp.AttachmentCount() {
		return 0, gpu.Configurationf("framebuffer for %q has %d attachments, render pass expects %d",
			rp.Label, len(desc.Views), rp.AttachmentCount())
	}
	for i, v := range desc.Views {
		view, ok := d.views[v]
		if !ok {
			return 0, gpu.Configurationf("framebuffer for %q references unknown view %d", rp.Label, v)
		}
		img := d.images[view.Image]
		if img.desc.Extent != desc.Extent {
			return 0, gpu.Configurationf("framebuffer for %q is %s but attachment %d (%s) is %s",
				rp.Label, desc.Extent, i, img.desc.Label, img.desc.Extent)
		}
	}
	h := gpu.FramebufferHandle(d.handle(kindFramebuffer))
	d.framebuffers[h] = &framebuffer{desc: desc}
	return h, nil
}

func (d *Device) DestroyFramebuffer(h gpu.FramebufferHandle) {
	_, ok := d.framebuffers[h]
	delete(d.framebuffers, h)
	d.release(kindFramebuffer, ok, uint64(h))
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModuleHandle, error) {
	if len(code) == 0 {
		return 0, gpu.Configurationf("empty shader module")
	}
	h := gpu.ShaderModuleHandle(d.handle(kindShaderModule))
	d.modules[h] = code
	return h, nil
}

func (d *Device) DestroyShaderModule(h gpu.ShaderModuleHandle) {
	_, ok := d.modules[h]
	delete(d.modules, h)
	d.release(kindShaderModule, ok, uint64(h))
}

func (d *Device) CreateDescriptorSetLayout(slots []gpu.BindingSlot) (gpu.DescriptorSetLayoutHandle, error) {
	seen := map[int]bool{}
	for _, s := range slots {
		if seen[s.Binding] {
			return 0, gpu.Configurationf("descriptor set layout declares binding %d twice", s.Binding)
		}
		seen[s.Binding] = true
	}
	h := gpu.DescriptorSetLayoutHandle(d.handle(kindDescriptorSetLayout))
	d.setLayouts[h] = append([]gpu.BindingSlot(nil), slots...)
	return h, nil
}

func (d *Device) DestroyDescriptorSetLayout(h gpu.DescriptorSetLayoutHandle) {
	_, ok := d.setLayouts[h]
	delete(d.setLayouts, h)
	d.release(kindDescriptorSetLayout, ok, uint64(h))
}

func (d *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayoutHandle) (gpu.PipelineLayoutHandle, error) {
	for _, l := range setLayouts {
		if _, ok := d.setLayouts[l]; !ok {
			return 0, gpu.Configurationf("pipeline layout references unknown set layout %d", l)
		}
	}
	h := gpu.PipelineLayoutHandle(d.handle(kindPipelineLayout))
	d.pipelineLayouts[h] = append([]gpu.DescriptorSetLayoutHandle(nil), setLayouts...)
	return h, nil
}

func (d *Device) DestroyPipelineLayout(h gpu.PipelineLayoutHandle) {
	_, ok := d.pipelineLayouts[h]
	delete(d.pipelineLayouts, h)
	d.release(kindPipelineLayout, ok, uint64(h))
}

// cacheHeader builds the standard 32 byte pipeline cache header.
func (d *Device) cacheHeader() []byte {
	header := make([]byte, 32)
	binary.LittleEndian.PutUint32(header[0:], 32)
	binary.LittleEndian.PutUint32(header[4:], 1)
	binary.LittleEndian.PutUint32(header[8:], d.props.VendorID)
	binary.LittleEndian.PutUint32(header[12:], d.props.DeviceID)
	copy(header[16:], d.props.PipelineCacheUUID[:])
	return header
}

func (d *Device) CreatePipelineCache(initialData []byte) (gpu.PipelineCacheHandle, error) {
	h := gpu.PipelineCacheHandle(d.handle(kindPipelineCache))
	data := initialData
	if len(data) < 32 {
		data = d.cacheHeader()
	}
	d.caches[h] = append([]byte(nil), data...)
	return h, nil
}

func (d *Device) PipelineCacheData(h gpu.PipelineCacheHandle) ([]byte, error) {
	data, ok := d.caches[h]
	if !ok {
		return nil, gpu.Configurationf("unknown pipeline cache %d", h)
	}
	return append([]byte(nil), data...), nil
}

func (d *Device) DestroyPipelineCache(h gpu.PipelineCacheHandle) {
	_, ok := d.caches[h]
	delete(d.caches, h)
	d.release(kindPipelineCache, ok, uint64(h))
}

func (d *Device) CreateGraphicsPipeline(cache gpu.PipelineCacheHandle, desc gpu.PipelineDesc) (gpu.PipelineHandle, error) {
	if _, ok := d.modules[desc.Vertex]; !ok {
		return 0, gpu.Configurationf("pipeline %q: unknown vertex module", desc.Label)
	}
	if _, ok := d.modules[desc.Fragment]; !ok {
		return 0, gpu.Configurationf("pipeline %q: unknown fragment module", desc.Label)
	}
	if _, ok := d.pipelineLayouts[desc.Layout]; !ok {
		return 0, gpu.Configurationf("pipeline %q: unknown pipeline layout", desc.Label)
	}
	rp, ok := d.renderPasses[desc.RenderPass]
	if !ok {
		return 0, gpu.Configurationf("pipeline %q: unknown render pass", desc.Label)
	}
	if desc.ColorAttachments != len(rp.Color) {
		return 0, gpu.Configurationf("pipeline %q writes %d color attachments, render pass %q has %d",
			desc.Label, desc.ColorAttachments, rp.Label, len(rp.Color))
	}
	if (desc.DepthTest || desc.DepthWrite) && rp.Depth == nil {
		return 0, gpu.Configurationf("pipeline %q uses depth but render pass %q has no depth attachment", desc.Label, rp.Label)
	}
	for _, c := range desc.Specialization {
		switch c.Value.(type) {
		case int32, uint32, float32, bool:
		default:
			return 0, gpu.Configurationf("pipeline %q: specialization constant %d has unsupported type %T", desc.Label, c.ID, c.Value)
		}
	}
	if desc.Base != 0 {
		base, ok := d.pipelines[desc.Base]
		if !ok {
			return 0, gpu.Configurationf("pipeline %q derives from unknown pipeline", desc.Label)
		}
		if !base.AllowDerivatives {
			return 0, gpu.Configurationf("pipeline %q derives from %q which does not allow derivatives", desc.Label, base.Label)
		}
	}
	if cache != 0 {
		data, ok := d.caches[cache]
		if !ok {
			return 0, gpu.Configurationf("pipeline %q: unknown pipeline cache", desc.Label)
		}
		d.caches[cache] = append(data, []byte(desc.Label)...)
	}
	h := gpu.PipelineHandle(d.handle(kindPipeline))
	d.pipelines[h] = desc
	return h, nil
}

func (d *Device) DestroyPipeline(h gpu.PipelineHandle) {
	_, ok := d.pipelines[h]
	delete(d.pipelines, h)
	d.release(kindPipeline, ok, uint64(h))
}

// Pipeline returns the description a pipeline was created with.
func (d *Device) Pipeline(h gpu.PipelineHandle) (gpu.PipelineDesc, bool) {
	desc, ok := d.pipelines[h]
	return desc, ok
}

// PipelineLabels returns the labels of every live pipeline, sorted.
func (d *Device) PipelineLabels() []string {
	var labels []string
	for _, p := range d.pipelines {
		labels = append(labels, p.Label)
	}
	sort.Strings(labels)
	return labels
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes []gpu.PoolSize) (gpu.DescriptorPoolHandle, error) {
	if maxSets <= 0 {
		return 0, gpu.Configurationf("descriptor pool with %d sets", maxSets)
	}
	h := gpu.DescriptorPoolHandle(d.handle(kindDescriptorPool))
	d.pools[h] = &pool{maxSets: maxSets}
	return h, nil
}

func (d *Device) DestroyDescriptorPool(h gpu.DescriptorPoolHandle) {
	p, ok := d.pools[h]
	if ok {
		for _, s := range p.sets {
			delete(d.sets, s)
		}
	}
	delete(d.pools, h)
	d.release(kindDescriptorPool, ok, uint64(h))
}

func (d *Device) AllocateDescriptorSet(poolHandle gpu.DescriptorPoolHandle, layout gpu.DescriptorSetLayoutHandle) (gpu.DescriptorSetHandle, error) {
	p, ok := d.pools[poolHandle]
	if !ok {
		return 0, gpu.Configurationf("allocate from unknown descriptor pool %d", poolHandle)
	}
	if _, ok := d.setLayouts[layout]; !ok {
		return 0, gpu.Configurationf("allocate set with unknown layout %d", layout)
	}
	if len(p.sets) >= p.maxSets {
		return 0, gpu.ResourceExhaustedf("descriptor pool %d exhausted after %d sets", poolHandle, p.maxSets)
	}
	d.next++
	h := gpu.DescriptorSetHandle(d.next)
	p.sets = append(p.sets, h)
	d.sets[h] = &descriptorSet{pool: poolHandle, layout: layout, writes: map[int]gpu.DescriptorWrite{}}
	return h, nil
}

func (d *Device) UpdateDescriptorSet(h gpu.DescriptorSetHandle, writes []gpu.DescriptorWrite) error {
	set, ok := d.sets[h]
	if !ok {
		return gpu.Configurationf("update of unknown descriptor set %d", h)
	}
	slots := d.setLayouts[set.layout]
	for _, w := range writes {
		var slot *gpu.BindingSlot
		for i := range slots {
			if slots[i].Binding == w.Binding {
				slot = &slots[i]
			}
		}
		if slot == nil {
			return gpu.Configurationf("descriptor set %d has no binding %d", h, w.Binding)
		}
		if slot.Kind != w.Kind {
			return gpu.Configurationf("descriptor set %d binding %d is %s, written as %s", h, w.Binding, slot.Kind, w.Kind)
		}
		switch w.Kind {
		case gpu.DescriptorUniformBuffer:
			buf, ok := d.buffers[w.Buffer]
			if !ok {
				return gpu.Configurationf("descriptor set %d binding %d references unknown buffer", h, w.Binding)
			}
			if w.Offset+w.Range > buf.size {
				return gpu.Configurationf("descriptor set %d binding %d range exceeds buffer of %d bytes", h, w.Binding, buf.size)
			}
		case gpu.DescriptorSampledImage:
			if _, ok := d.views[w.View]; !ok {
				return gpu.Configurationf("descriptor set %d binding %d references unknown view", h, w.Binding)
			}
			if _, ok := d.samplers[w.Sampler]; !ok {
				return gpu.Configurationf("descriptor set %d binding %d references unknown sampler", h, w.Binding)
			}
		}
	}
	for _, w := range writes {
		set.writes[w.Binding] = w
	}
	set.updates++
	return nil
}

// DescriptorUpdates is the number of update batches applied to set.
func (d *Device) DescriptorUpdates(h gpu.DescriptorSetHandle) int {
	if set, ok := d.sets[h]; ok {
		return set.updates
	}
	return 0
}

// DescriptorWrites returns the current contents of set, keyed by binding.
func (d *Device) DescriptorWrites(h gpu.DescriptorSetHandle) map[int]gpu.DescriptorWrite {
	if set, ok := d.sets[h]; ok {
		return set.writes
	}
	return nil
}

func (d *Device) CreateSemaphore() (gpu.SemaphoreHandle, error) {
	h := gpu.SemaphoreHandle(d.handle(kindSemaphore))
	d.semaphores[h] = &semaphore{}
	return h, nil
}

func (d *Device) DestroySemaphore(h gpu.SemaphoreHandle) {
	_, ok := d.semaphores[h]
	delete(d.semaphores, h)
	d.release(kindSemaphore, ok, uint64(h))
}

// Signal marks a semaphore as signaled by the host, the way a swap chain
// acquire does.
func (d *Device) Signal(h gpu.SemaphoreHandle) error {
	sem, ok := d.semaphores[h]
	if !ok {
		return gpu.Configurationf("signal of unknown semaphore %d", h)
	}
	if sem.signaled {
		return d.violate(gpu.Validationf("semaphore %d signaled twice without a wait", h))
	}
	sem.signaled = true
	sem.signaledBy = 0
	return nil
}

// Consume waits on a semaphore outside a submission, the way a present does.
func (d *Device) Consume(h gpu.SemaphoreHandle) error {
	sem, ok := d.semaphores[h]
	if !ok {
		return gpu.Configurationf("wait on unknown semaphore %d", h)
	}
	if !sem.signaled {
		return d.violate(gpu.Validationf("wait on semaphore %d that nothing signaled", h))
	}
	sem.signaled = false
	return nil
}

func (d *Device) CreateFence(signaled bool) (gpu.FenceHandle, error) {
	h := gpu.FenceHandle(d.handle(kindFence))
	d.fences[h] = &fence{signaled: signaled}
	return h, nil
}

func (d *Device) DestroyFence(h gpu.FenceHandle) {
	_, ok := d.fences[h]
	delete(d.fences, h)
	d.release(kindFence, ok, uint64(h))
}

func (d *Device) WaitFence(h gpu.FenceHandle) error {
	f, ok := d.fences[h]
	if !ok {
		return gpu.Configurationf("wait on unknown fence %d", h)
	}
	if !f.signaled {
		return d.violate(gpu.Validationf("wait on fence %d that no submission will signal", h))
	}
	if f.submission > d.completedUpTo {
		d.completedUpTo = f.submission
	}
	return nil
}

func (d *Device) ResetFence(h gpu.FenceHandle) error {
	f, ok := d.fences[h]
	if !ok {
		return gpu.Configurationf("reset of unknown fence %d", h)
	}
	f.signaled = false
	return nil
}

func (d *Device) WaitIdle() error {
	d.completedUpTo = len(d.submissions)
	return nil
}

// ImageLayout returns the simulated current layout of an image.
func (d *Device) ImageLayout(h gpu.ImageHandle) gpu.ImageLayout {
	if img, ok := d.images[h]; ok {
		return img.layout
	}
	return gpu.LayoutUndefined
}

// ImageDesc returns the description an image was created with.
func (d *Device) ImageDesc(h gpu.ImageHandle) (gpu.ImageDesc, bool) {
	img, ok := d.images[h]
	if !ok {
		return gpu.ImageDesc{}, false
	}
	return img.desc, true
}

// ImageTransitions counts the layout transitions recorded against an image
// by barriers outside render passes.
func (d *Device) ImageTransitions(h gpu.ImageHandle) int {
	if img, ok := d.images[h]; ok {
		return img.transitions
	}
	return 0
}

// ViewImage returns the image a view was created from.
func (d *Device) ViewImage(h gpu.ImageViewHandle) gpu.ImageHandle {
	return d.views[h].Image
}

func (d *Device) lookupBuffer(h gpu.BufferHandle) (*buffer, error) {
	buf, ok := d.buffers[h]
	if !ok {
		return nil, errors.Newf("unknown buffer %d", h)
	}
	return buf, nil
}
