package uniform

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// Block is a host-visible uniform buffer holding one value of T. The value
// is mutated between frames and written to the buffer by Flush only when
// it changed.
type Block[T any] struct {
	name   string
	device gpu.Device
	buffer gpu.BufferHandle
	memory gpu.MemoryHandle
	size   int

	value   T
	dirty   bool
	version uint64
}

// NewBlock creates the buffer for a block, owned by scope, and writes the
// zero value into it.
func NewBlock[T any](device gpu.Device, scope *gpu.Scope, name string) (*Block[T], error) {
	b := &Block[T]{name: name, device: device}
	b.size = Size(&b.value)
	if b.size <= 0 {
		return nil, errors.AssertionFailedf("uniform block %q: %T is not a fixed-size type", name, b.value)
	}

	var err error
	b.buffer, b.memory, err = gpu.NewBuffer(device, scope, b.size, gpu.BufferUsageUniform, gpu.MemoryHostVisible|gpu.MemoryHostCoherent)
	if err != nil {
		return nil, errors.Wrapf(err, "uniform block %q", name)
	}
	b.dirty = true
	return b, b.Flush()
}

func (b *Block[T]) Name() string { return b.name }

// Size is the encoded size of T in bytes.
func (b *Block[T]) Size() int { return b.size }

func (b *Block[T]) Buffer() gpu.BufferHandle { return b.buffer }

// Value returns the host copy of the block.
func (b *Block[T]) Value() T { return b.value }

// Dirty reports whether the host copy differs from the buffer contents.
func (b *Block[T]) Dirty() bool { return b.dirty }

// Version counts the flushes that wrote to the buffer.
func (b *Block[T]) Version() uint64 { return b.version }

func (b *Block[T]) Set(v T) {
	b.value = v
	b.dirty = true
}

// Update mutates the host copy in place.
func (b *Block[T]) Update(fn func(v *T)) {
	fn(&b.value)
	b.dirty = true
}

// Flush writes the host copy to the buffer if it changed. It must only be
// called while no submitted frame reads the block.
func (b *Block[T]) Flush() error {
	if !b.dirty {
		return nil
	}
	data, err := Encode(&b.value)
	if err != nil {
		return err
	}
	if err := b.device.WriteMemory(b.memory, 0, data); err != nil {
		return errors.Wrapf(err, "flush uniform block %q", b.name)
	}
	b.dirty = false
	b.version++
	return nil
}

// Read decodes the current buffer contents.
func (b *Block[T]) Read() (T, error) {
	var out T
	data, err := b.device.ReadMemory(b.memory, 0, b.size)
	if err != nil {
		return out, errors.Wrapf(err, "read uniform block %q", b.name)
	}
	err = Decode(data, &out)
	return out, err
}

// Descriptor returns the descriptor write binding the whole block.
func (b *Block[T]) Descriptor(binding int) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{
		Binding: binding,
		Kind:    gpu.DescriptorUniformBuffer,
		Buffer:  b.buffer,
		Range:   b.size,
	}
}
