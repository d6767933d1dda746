package binding

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/attachment"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/logging"
)

// Source is anything that can describe itself as a descriptor write:
// uniform blocks and textures.
type Source interface {
	Descriptor(binding int) gpu.DescriptorWrite
}

// MaterialSources are the three textures of one G-Buffer material set.
type MaterialSources struct {
	Diffuse  Source
	Specular Source
	Normal   Source
}

// Inputs are the resources the sets reference. Attachments are referenced
// by view handle, so the sets must be rebuilt whenever an attachment is
// recreated.
type Inputs struct {
	Position *attachment.Attachment
	Normal   *attachment.Attachment
	Albedo   *attachment.Attachment
	SSAO     *attachment.Attachment
	SSAOBlur *attachment.Attachment

	Noise     Source
	Materials []MaterialSources

	SceneVS      Source
	ScreenQuadVS Source
	Lights       Source
	SSAOParams   Source
	Kernel       Source
}

// Layer holds the set layouts and pipeline layouts for every contract, and
// the descriptor sets built from the current Inputs.
type Layer struct {
	device gpu.Device
	scope  *gpu.Scope
	sets   *gpu.Scope

	layouts         map[Pass]gpu.DescriptorSetLayoutHandle
	pipelineLayouts map[Pass]gpu.PipelineLayoutHandle
	sampler         gpu.SamplerHandle

	passSets     map[Pass]gpu.DescriptorSetHandle
	materialSets []gpu.DescriptorSetHandle
	builds       int
}

// NewLayer creates the layouts of every contract and the sampler used for
// attachments. They live until Destroy.
func NewLayer(device gpu.Device) (*Layer, error) {
	l := &Layer{
		device:          device,
		scope:           gpu.NewScope("binding"),
		layouts:         map[Pass]gpu.DescriptorSetLayoutHandle{},
		pipelineLayouts: map[Pass]gpu.PipelineLayoutHandle{},
		passSets:        map[Pass]gpu.DescriptorSetHandle{},
	}

	for _, c := range Contracts() {
		setLayout, err := device.CreateDescriptorSetLayout(c.Slots)
		if err != nil {
			l.Destroy()
			return nil, errors.Wrapf(err, "create descriptor set layout for %s", c.Pass)
		}
		l.layouts[c.Pass] = gpu.Own(l.scope, setLayout, device.DestroyDescriptorSetLayout)

		pipelineLayout, err := device.CreatePipelineLayout([]gpu.DescriptorSetLayoutHandle{setLayout})
		if err != nil {
			l.Destroy()
			return nil, errors.Wrapf(err, "create pipeline layout for %s", c.Pass)
		}
		l.pipelineLayouts[c.Pass] = gpu.Own(l.scope, pipelineLayout, device.DestroyPipelineLayout)
	}

	sampler, err := device.CreateSampler(gpu.SamplerDesc{Filter: gpu.FilterNearest, Address: gpu.AddressClampToEdge})
	if err != nil {
		l.Destroy()
		return nil, errors.Wrap(err, "create attachment sampler")
	}
	l.sampler = gpu.Own(l.scope, sampler, device.DestroySampler)
	return l, nil
}

// Build allocates a fresh pool and writes every set from in. Sets from a
// previous Build are freed with their pool, so nothing recorded against
// them may still be pending.
func (l *Layer) Build(in Inputs) error {
	if l.sets != nil {
		l.sets.Release()
	}
	l.sets = l.scope.Child("sets")
	l.passSets = map[Pass]gpu.DescriptorSetHandle{}
	l.materialSets = nil

	writes, err := l.passWrites(in)
	if err != nil {
		return err
	}

	materials := len(in.Materials)
	pool, err := l.device.CreateDescriptorPool(3+materials, l.poolSizes(materials))
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}
	gpu.Own(l.sets, pool, l.device.DestroyDescriptorPool)

	for _, pass := range []Pass{PassSSAO, PassSSAOBlur, PassComposition} {
		set, err := l.write(pool, pass, writes[pass])
		if err != nil {
			return err
		}
		l.passSets[pass] = set
	}

	gbuffer, _ := ContractFor(PassGBuffer)
	for i, m := range in.Materials {
		if m.Diffuse == nil || m.Specular == nil || m.Normal == nil {
			return gpu.Configurationf("material %d is missing a texture source", i)
		}
		if in.SceneVS == nil {
			return gpu.Configurationf("material sets need the scene uniform block")
		}
		set, err := l.write(pool, gbuffer.Pass, []gpu.DescriptorWrite{
			in.SceneVS.Descriptor(GBufferSceneVS),
			m.Diffuse.Descriptor(GBufferDiffuse),
			m.Specular.Descriptor(GBufferSpecular),
			m.Normal.Descriptor(GBufferNormal),
		})
		if err != nil {
			return errors.Wrapf(err, "material %d", i)
		}
		l.materialSets = append(l.materialSets, set)
	}

	l.builds++
	logging.Logger().Debug("descriptor sets built",
		"build", l.builds, "passSets", len(l.passSets), "materialSets", len(l.materialSets))
	return nil
}

// Rebuild rewrites every set after attachments were recreated.
func (l *Layer) Rebuild(in Inputs) error {
	return errors.Wrap(l.Build(in), "rebuild descriptor sets")
}

func (l *Layer) passWrites(in Inputs) (map[Pass][]gpu.DescriptorWrite, error) {
	for name, a := range map[string]*attachment.Attachment{
		"position": in.Position, "normal": in.Normal, "albedo": in.Albedo,
		"ssao": in.SSAO, "ssao blur": in.SSAOBlur,
	} {
		if a == nil {
			return nil, gpu.Configurationf("binding inputs lack the %s attachment", name)
		}
	}
	for name, s := range map[string]Source{
		"noise": in.Noise, "screen quad block": in.ScreenQuadVS, "lights block": in.Lights,
		"ssao params block": in.SSAOParams, "kernel block": in.Kernel,
	} {
		if s == nil {
			return nil, gpu.Configurationf("binding inputs lack the %s", name)
		}
	}

	return map[Pass][]gpu.DescriptorWrite{
		PassSSAO: {
			l.attachmentWrite(SSAOPosition, in.Position),
			l.attachmentWrite(SSAONormal, in.Normal),
			in.Noise.Descriptor(SSAONoise),
			in.Kernel.Descriptor(SSAOKernel),
			in.SSAOParams.Descriptor(SSAOParams),
		},
		PassSSAOBlur: {
			l.attachmentWrite(BlurInput, in.SSAO),
		},
		PassComposition: {
			in.ScreenQuadVS.Descriptor(CompositionScreenQuadVS),
			l.attachmentWrite(CompositionPosition, in.Position),
			l.attachmentWrite(CompositionNormal, in.Normal),
			l.attachmentWrite(CompositionAlbedo, in.Albedo),
			l.attachmentWrite(CompositionSSAO, in.SSAO),
			l.attachmentWrite(CompositionSSAOBlur, in.SSAOBlur),
			in.Lights.Descriptor(CompositionLights),
			in.SSAOParams.Descriptor(CompositionParams),
		},
	}, nil
}

func (l *Layer) attachmentWrite(binding int, a *attachment.Attachment) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{
		Binding: binding,
		Kind:    gpu.DescriptorSampledImage,
		View:    a.View(),
		Sampler: l.sampler,
		Layout:  gpu.LayoutShaderReadOnly,
	}
}

func (l *Layer) poolSizes(materials int) []gpu.PoolSize {
	var uniforms, samplers int
	for _, c := range Contracts() {
		n := 1
		if c.Pass == PassGBuffer {
			n = materials
		}
		uniforms += n * c.count(gpu.DescriptorUniformBuffer)
		samplers += n * c.count(gpu.DescriptorSampledImage)
	}
	return []gpu.PoolSize{
		{Kind: gpu.DescriptorUniformBuffer, Count: uniforms},
		{Kind: gpu.DescriptorSampledImage, Count: samplers},
	}
}

// write allocates one set for pass and writes it in a single batch once
// writes cover every slot of the contract exactly.
func (l *Layer) write(pool gpu.DescriptorPoolHandle, pass Pass, writes []gpu.DescriptorWrite) (gpu.DescriptorSetHandle, error) {
	if err := CheckComplete(pass, writes); err != nil {
		return 0, err
	}
	set, err := l.device.AllocateDescriptorSet(pool, l.layouts[pass])
	if err != nil {
		return 0, errors.Wrapf(err, "allocate %s descriptor set", pass)
	}
	if err := l.device.UpdateDescriptorSet(set, writes); err != nil {
		return 0, errors.Wrapf(err, "write %s descriptor set", pass)
	}
	return set, nil
}

// CheckComplete reports whether writes bind every slot of the pass
// contract exactly once with the declared descriptor kind.
func CheckComplete(pass Pass, writes []gpu.DescriptorWrite) error {
	contract, ok := ContractFor(pass)
	if !ok {
		return gpu.Configurationf("no binding contract for pass %q", pass)
	}
	seen := map[int]gpu.DescriptorKind{}
	for _, w := range writes {
		if _, dup := seen[w.Binding]; dup {
			return gpu.Configurationf("%s: binding %d written twice", pass, w.Binding)
		}
		seen[w.Binding] = w.Kind
	}

	var missing []int
	for _, slot := range contract.Slots {
		kind, ok := seen[slot.Binding]
		if !ok {
			missing = append(missing, slot.Binding)
			continue
		}
		if kind != slot.Kind {
			return gpu.Configurationf("%s: binding %d is %s, contract expects %s", pass, slot.Binding, kind, slot.Kind)
		}
		delete(seen, slot.Binding)
	}
	if len(missing) > 0 {
		return gpu.Configurationf("%s: bindings %v are not written", pass, missing)
	}
	if len(seen) > 0 {
		extra := make([]int, 0, len(seen))
		for b := range seen {
			extra = append(extra, b)
		}
		sort.Ints(extra)
		return gpu.Configurationf("%s: bindings %v are not part of the contract", pass, extra)
	}
	return nil
}

// PipelineLayout returns the pipeline layout of pass. The debug view uses
// PassComposition.
func (l *Layer) PipelineLayout(pass Pass) (gpu.PipelineLayoutHandle, error) {
	h, ok := l.pipelineLayouts[pass]
	if !ok {
		return 0, gpu.Configurationf("no pipeline layout for pass %q", pass)
	}
	return h, nil
}

// Set returns the descriptor set of a full-screen pass.
func (l *Layer) Set(pass Pass) (gpu.DescriptorSetHandle, error) {
	h, ok := l.passSets[pass]
	if !ok {
		return 0, gpu.Configurationf("no descriptor set for pass %q; build the binding layer first", pass)
	}
	return h, nil
}

// MaterialSet returns the G-Buffer set of material i.
func (l *Layer) MaterialSet(i int) (gpu.DescriptorSetHandle, error) {
	if i < 0 || i >= len(l.materialSets) {
		return 0, gpu.Configurationf("no descriptor set for material %d of %d", i, len(l.materialSets))
	}
	return l.materialSets[i], nil
}

func (l *Layer) MaterialCount() int { return len(l.materialSets) }

// Builds counts completed Build calls.
func (l *Layer) Builds() int { return l.builds }

func (l *Layer) Destroy() {
	l.scope.Release()
	l.sets = nil
	l.passSets = map[Pass]gpu.DescriptorSetHandle{}
	l.materialSets = nil
}
