package gpu

import "fmt"

// Format is a backend-neutral pixel or vertex attribute format.
type Format int

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatRGBA8Unorm
	FormatRGBA8SRGB
	FormatBGRA8Unorm
	FormatBGRA8SRGB
	FormatRGBA16Float
	FormatRGBA32Float
	FormatRG32Float
	FormatRGB32Float
	FormatD32Float
	FormatD32FloatS8
	FormatD24UnormS8
)

var formatNames = map[Format]string{
	FormatUndefined:   "Undefined",
	FormatR8Unorm:     "R8Unorm",
	FormatRGBA8Unorm:  "RGBA8Unorm",
	FormatRGBA8SRGB:   "RGBA8SRGB",
	FormatBGRA8Unorm:  "BGRA8Unorm",
	FormatBGRA8SRGB:   "BGRA8SRGB",
	FormatRGBA16Float: "RGBA16Float",
	FormatRGBA32Float: "RGBA32Float",
	FormatRG32Float:   "RG32Float",
	FormatRGB32Float:  "RGB32Float",
	FormatD32Float:    "D32Float",
	FormatD32FloatS8:  "D32FloatS8",
	FormatD24UnormS8:  "D24UnormS8",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD32FloatS8 || f == FormatD24UnormS8
}

func (f Format) HasStencil() bool {
	return f == FormatD32FloatS8 || f == FormatD24UnormS8
}

// DepthFormats lists depth formats in order of preference.
var DepthFormats = []Format{FormatD32Float, FormatD32FloatS8, FormatD24UnormS8}

type ImageUsage uint32

const (
	ImageUsageColorAttachment ImageUsage = 1 << iota
	ImageUsageDepthStencilAttachment
	ImageUsageSampled
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

var layoutNames = map[ImageLayout]string{
	LayoutUndefined:              "Undefined",
	LayoutColorAttachment:        "ColorAttachment",
	LayoutDepthStencilAttachment: "DepthStencilAttachment",
	LayoutShaderReadOnly:         "ShaderReadOnly",
	LayoutTransferSrc:            "TransferSrc",
	LayoutTransferDst:            "TransferDst",
	LayoutPresentSrc:             "PresentSrc",
}

func (l ImageLayout) String() string {
	if name, ok := layoutNames[l]; ok {
		return name
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

type ImageAspect uint32

const (
	AspectColor ImageAspect = 1 << iota
	AspectDepth
	AspectStencil
)

// AspectFor returns the aspect mask a view or barrier of the format covers.
func AspectFor(format Format) ImageAspect {
	if !format.IsDepth() {
		return AspectColor
	}
	if format.HasStencil() {
		return AspectDepth | AspectStencil
	}
	return AspectDepth
}

type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageTransfer
	StageBottomOfPipe
)

type Access uint32

const (
	AccessShaderRead Access = 1 << iota
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessMemoryRead
)

// AccessWrites is every access bit that produces data.
const AccessWrites = AccessColorAttachmentWrite | AccessDepthStencilAttachmentWrite | AccessTransferWrite

type MemoryProperty uint32

const (
	MemoryDeviceLocal MemoryProperty = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
)

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

type ShaderStage uint32

const (
	ShaderVertex ShaderStage = 1 << iota
	ShaderFragment
)

type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

func (c CullMode) String() string {
	switch c {
	case CullNone:
		return "none"
	case CullBack:
		return "back"
	case CullFront:
		return "front"
	}
	return fmt.Sprintf("CullMode(%d)", int(c))
}

type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
)

type CompareOp int

const (
	CompareLess CompareOp = iota
	CompareLessOrEqual
	CompareAlways
)

type LoadOp int

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

type StoreOp int

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

type DescriptorKind int

const (
	DescriptorUniformBuffer DescriptorKind = iota
	DescriptorSampledImage
)

func (k DescriptorKind) String() string {
	if k == DescriptorUniformBuffer {
		return "uniform-buffer"
	}
	return "sampled-image"
}

type Filter int

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode int

const (
	AddressClampToEdge AddressMode = iota
	AddressRepeat
)

type Extent struct {
	Width  int
	Height int
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

func (e Extent) Empty() bool {
	return e.Width <= 0 || e.Height <= 0
}

type Rect struct {
	X, Y int
	Extent
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// FullViewport covers the whole extent with the [0,1] depth range.
func FullViewport(extent Extent) Viewport {
	return Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1}
}

// ClearValue is either a color clear or a depth/stencil clear.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
	IsDepth bool
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepth(depth float32) ClearValue {
	return ClearValue{Depth: depth, IsDepth: true}
}

type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  int
}

type MemoryRequirements struct {
	Size           int
	MemoryTypeBits uint32
}

// Handle types are opaque identifiers issued by a Device. Zero is never a
// valid handle.
type (
	ImageHandle               uint64
	MemoryHandle              uint64
	ImageViewHandle           uint64
	SamplerHandle             uint64
	BufferHandle              uint64
	RenderPassHandle          uint64
	FramebufferHandle         uint64
	ShaderModuleHandle        uint64
	DescriptorSetLayoutHandle uint64
	DescriptorPoolHandle      uint64
	DescriptorSetHandle       uint64
	PipelineLayoutHandle      uint64
	PipelineCacheHandle       uint64
	PipelineHandle            uint64
	SemaphoreHandle           uint64
	FenceHandle               uint64
)
