package gpu

import (
	"github.com/cockroachdb/errors"
)

// FindMemoryType returns the first memory type allowed by typeBits that has
// every property in props.
func FindMemoryType(device Device, typeBits uint32, props MemoryProperty) (int, error) {
	for i, memoryType := range device.MemoryTypes() {
		typeBit := uint32(1 << i)
		if typeBits&typeBit != 0 && memoryType.Properties&props == props {
			return i, nil
		}
	}
	return 0, ResourceExhaustedf("no memory type matches type request %x with properties %x", typeBits, props)
}

// FindDepthFormat returns the preferred depth format the device supports.
func FindDepthFormat(device Device) (Format, error) {
	for _, format := range DepthFormats {
		if device.SupportsDepthFormat(format) {
			return format, nil
		}
	}
	return FormatUndefined, ResourceExhaustedf("no supported depth format among %v", DepthFormats)
}

// NewImage creates an image backed by memory with props, owned by scope.
func NewImage(device Device, scope *Scope, desc ImageDesc, props MemoryProperty) (ImageHandle, MemoryHandle, error) {
	image, reqs, err := device.CreateImage(desc)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "create image %q", desc.Label)
	}
	Own(scope, image, device.DestroyImage)

	memoryType, err := FindMemoryType(device, reqs.MemoryTypeBits, props)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "image %q", desc.Label)
	}

	memory, err := device.AllocateMemory(reqs.Size, memoryType)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "allocate memory for image %q", desc.Label)
	}
	Own(scope, memory, device.FreeMemory)

	if err := device.BindImageMemory(image, memory); err != nil {
		return 0, 0, err
	}
	return image, memory, nil
}

// NewBuffer creates a buffer of size bytes backed by memory with props,
// owned by scope.
func NewBuffer(device Device, scope *Scope, size int, usage BufferUsage, props MemoryProperty) (BufferHandle, MemoryHandle, error) {
	buffer, reqs, err := device.CreateBuffer(size, usage)
	if err != nil {
		return 0, 0, err
	}
	Own(scope, buffer, device.DestroyBuffer)

	memoryType, err := FindMemoryType(device, reqs.MemoryTypeBits, props)
	if err != nil {
		return 0, 0, err
	}

	memory, err := device.AllocateMemory(reqs.Size, memoryType)
	if err != nil {
		return 0, 0, err
	}
	Own(scope, memory, device.FreeMemory)

	if err := device.BindBufferMemory(buffer, memory); err != nil {
		return 0, 0, err
	}
	return buffer, memory, nil
}

// UploadBuffer copies data into a new device-local buffer through a
// host-visible staging buffer.
func UploadBuffer(device Device, scope *Scope, usage BufferUsage, data []byte) (BufferHandle, error) {
	if len(data) == 0 {
		return 0, errors.New("upload buffer: no data")
	}

	staging := NewScope("staging")
	defer staging.Release()

	src, srcMemory, err := NewBuffer(device, staging, len(data), BufferUsageTransferSrc, MemoryHostVisible|MemoryHostCoherent)
	if err != nil {
		return 0, err
	}
	if err := device.WriteMemory(srcMemory, 0, data); err != nil {
		return 0, err
	}

	dst, _, err := NewBuffer(device, scope, len(data), usage|BufferUsageTransferDst, MemoryDeviceLocal)
	if err != nil {
		return 0, err
	}

	err = device.RunOneShot(func(cmd CommandBuffer) error {
		cmd.CopyBuffer(src, dst, len(data))
		return nil
	})
	return dst, err
}

// UploadImage fills a sampled image created with ImageUsageTransferDst and
// leaves it in LayoutShaderReadOnly.
func UploadImage(device Device, image ImageHandle, aspect ImageAspect, extent Extent, data []byte) error {
	staging := NewScope("staging")
	defer staging.Release()

	src, srcMemory, err := NewBuffer(device, staging, len(data), BufferUsageTransferSrc, MemoryHostVisible|MemoryHostCoherent)
	if err != nil {
		return err
	}
	if err := device.WriteMemory(srcMemory, 0, data); err != nil {
		return err
	}

	return device.RunOneShot(func(cmd CommandBuffer) error {
		cmd.PipelineBarrier(Barrier{
			SrcStage: StageTopOfPipe,
			DstStage: StageTransfer,
			Images: []ImageBarrier{{
				Image:     image,
				Aspect:    aspect,
				OldLayout: LayoutUndefined,
				NewLayout: LayoutTransferDst,
				DstAccess: AccessTransferWrite,
			}},
		})
		cmd.CopyBufferToImage(src, image, aspect, extent)
		cmd.PipelineBarrier(Barrier{
			SrcStage: StageTransfer,
			DstStage: StageFragmentShader,
			Images: []ImageBarrier{{
				Image:     image,
				Aspect:    aspect,
				OldLayout: LayoutTransferDst,
				NewLayout: LayoutShaderReadOnly,
				SrcAccess: AccessTransferWrite,
				DstAccess: AccessShaderRead,
			}},
		})
		return nil
	})
}
