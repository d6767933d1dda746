// Package ssao generates the sample kernel and rotation noise used by the
// ambient occlusion pass.
package ssao

import (
	"math/rand"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/uniform"
)

// Params are the ambient occlusion tunables baked into the SSAO program as
// specialization constants.
type Params struct {
	KernelSize int
	Radius     float32
	Power      float32
	NoiseDim   int
}

func DefaultParams() Params {
	return Params{KernelSize: 64, Radius: 0.3, Power: 1.0, NoiseDim: 4}
}

func (p Params) Validate() error {
	if p.KernelSize < 1 || p.KernelSize > uniform.KernelCapacity {
		return errors.Newf("ssao kernel size %d outside [1,%d]", p.KernelSize, uniform.KernelCapacity)
	}
	if p.Radius <= 0 {
		return errors.Newf("ssao radius %v must be positive", p.Radius)
	}
	if p.NoiseDim < 1 {
		return errors.Newf("ssao noise dimension %d must be positive", p.NoiseDim)
	}
	return nil
}

// Kernel returns size sample vectors inside the +z unit hemisphere. Samples
// are scaled so that they cluster toward the origin: sample i has length at
// most lerp(0.1, 1, (i/size)^2).
func Kernel(rng *rand.Rand, size int) []mgl32.Vec3 {
	kernel := make([]mgl32.Vec3, size)
	for i := range kernel {
		sample := mgl32.Vec3{
			rng.Float32()*2 - 1,
			rng.Float32()*2 - 1,
			rng.Float32(),
		}
		if sample.Len() == 0 {
			sample = mgl32.Vec3{0, 0, 1}
		}
		sample = sample.Normalize().Mul(rng.Float32())

		scale := float32(i) / float32(size)
		scale = lerp(0.1, 1.0, scale*scale)
		kernel[i] = sample.Mul(scale)
	}
	return kernel
}

func lerp(a, b, f float32) float32 {
	return a + f*(b-a)
}

// KernelBlock packs a kernel into the uniform block layout.
func KernelBlock(kernel []mgl32.Vec3) uniform.SSAOKernel {
	var block uniform.SSAOKernel
	for i, s := range kernel {
		if i >= len(block.Samples) {
			break
		}
		block.Samples[i] = s.Vec4(0)
	}
	return block
}

// Noise returns dim*dim random rotation vectors around the z axis, stored
// as RGBA32F texels with z and w zero.
func Noise(rng *rand.Rand, dim int) []mgl32.Vec4 {
	noise := make([]mgl32.Vec4, dim*dim)
	for i := range noise {
		noise[i] = mgl32.Vec4{rng.Float32()*2 - 1, rng.Float32()*2 - 1, 0, 0}
	}
	return noise
}
