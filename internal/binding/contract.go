// Package binding owns the descriptor set layouts, pool and sets that
// connect attachments, textures and uniform blocks to each pass.
package binding

import (
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// Pass names a binding contract. The debug view shares the composition
// contract.
type Pass string

const (
	PassGBuffer     Pass = "gbuffer"
	PassSSAO        Pass = "ssao.generate"
	PassSSAOBlur    Pass = "ssao.blur"
	PassComposition Pass = "composition"
)

// G-Buffer bindings, one set per material.
const (
	GBufferSceneVS = iota
	GBufferDiffuse
	GBufferSpecular
	GBufferNormal
)

// SSAO generate bindings.
const (
	SSAOPosition = iota
	SSAONormal
	SSAONoise
	SSAOKernel
	SSAOParams
)

// SSAO blur bindings.
const (
	BlurInput = iota
)

// Composition and debug bindings.
const (
	CompositionScreenQuadVS = iota
	CompositionPosition
	CompositionNormal
	CompositionAlbedo
	CompositionSSAO
	CompositionSSAOBlur
	CompositionLights
	CompositionParams
)

type Contract struct {
	Pass  Pass
	Slots []gpu.BindingSlot
}

func sampler(binding int) gpu.BindingSlot {
	return gpu.BindingSlot{Binding: binding, Kind: gpu.DescriptorSampledImage, Stages: gpu.ShaderFragment}
}

func uniformBuffer(binding int, stages gpu.ShaderStage) gpu.BindingSlot {
	return gpu.BindingSlot{Binding: binding, Kind: gpu.DescriptorUniformBuffer, Stages: stages}
}

// Contracts lists every pass contract in pass order.
func Contracts() []Contract {
	return []Contract{
		{Pass: PassGBuffer, Slots: []gpu.BindingSlot{
			uniformBuffer(GBufferSceneVS, gpu.ShaderVertex),
			sampler(GBufferDiffuse),
			sampler(GBufferSpecular),
			sampler(GBufferNormal),
		}},
		{Pass: PassSSAO, Slots: []gpu.BindingSlot{
			sampler(SSAOPosition),
			sampler(SSAONormal),
			sampler(SSAONoise),
			uniformBuffer(SSAOKernel, gpu.ShaderFragment),
			uniformBuffer(SSAOParams, gpu.ShaderFragment),
		}},
		{Pass: PassSSAOBlur, Slots: []gpu.BindingSlot{
			sampler(BlurInput),
		}},
		{Pass: PassComposition, Slots: []gpu.BindingSlot{
			uniformBuffer(CompositionScreenQuadVS, gpu.ShaderVertex),
			sampler(CompositionPosition),
			sampler(CompositionNormal),
			sampler(CompositionAlbedo),
			sampler(CompositionSSAO),
			sampler(CompositionSSAOBlur),
			uniformBuffer(CompositionLights, gpu.ShaderFragment),
			uniformBuffer(CompositionParams, gpu.ShaderFragment),
		}},
	}
}

// ContractFor returns the contract of pass.
func ContractFor(pass Pass) (Contract, bool) {
	for _, c := range Contracts() {
		if c.Pass == pass {
			return c, true
		}
	}
	return Contract{}, false
}

// count returns the number of slots of kind.
func (c Contract) count(kind gpu.DescriptorKind) int {
	n := 0
	for _, s := range c.Slots {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
