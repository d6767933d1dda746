package passgraph

import (
	"github.com/vkngwrapper/sponza/internal/attachment"
	"github.com/vkngwrapper/sponza/internal/binding"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/pipeline"
	"github.com/vkngwrapper/sponza/internal/scene"
)

// Inputs are the collaborators of the deferred graph.
type Inputs struct {
	GBuffer  *attachment.TargetSet
	SSAO     *attachment.TargetSet
	SSAOBlur *attachment.TargetSet

	Bindings *binding.Layer
	Scene    *scene.Scene
	Vertices gpu.BufferHandle
	Indices  gpu.BufferHandle

	SSAOEnabled bool
	DebugView   bool
}

// Deferred builds the G-Buffer, SSAO, SSAO blur and composition graph.
// With SSAO disabled the two SSAO passes are left out and their
// attachments are only read as external inputs.
func Deferred(in Inputs) (*Graph, error) {
	if in.GBuffer == nil || len(in.GBuffer.Color()) != 3 {
		return nil, gpu.Configurationf("deferred graph needs a G-Buffer target set with three color attachments")
	}
	if in.SSAO == nil || in.SSAOBlur == nil || len(in.SSAO.Color()) != 1 || len(in.SSAOBlur.Color()) != 1 {
		return nil, gpu.Configurationf("deferred graph needs single-attachment SSAO target sets")
	}
	if in.Bindings == nil {
		return nil, gpu.Configurationf("deferred graph needs a binding layer")
	}
	if in.Scene == nil {
		in.Scene = scene.Empty()
	}

	gbuf := in.GBuffer.Color()
	position, normal, albedo := gbuf[0], gbuf[1], gbuf[2]
	occlusion := in.SSAO.Color()[0]
	blurred := in.SSAOBlur.Color()[0]

	g := New()
	g.Add(&Pass{
		Name:    string(binding.PassGBuffer),
		Targets: in.GBuffer,
		Record: func(enc *Encoder) error {
			return recordScene(enc, in)
		},
	})

	composition := &Pass{
		Name:  string(binding.PassComposition),
		Reads: []*attachment.Attachment{position, normal, albedo, occlusion, blurred},
		Record: func(enc *Encoder) error {
			return recordComposition(enc, in)
		},
	}

	if in.SSAOEnabled {
		g.Add(&Pass{
			Name:    string(binding.PassSSAO),
			Targets: in.SSAO,
			Reads:   []*attachment.Attachment{position, normal},
			Record:  fullscreen(in.Bindings, binding.PassSSAO, pipeline.SSAOGenerate),
		})
		g.Add(&Pass{
			Name:    string(binding.PassSSAOBlur),
			Targets: in.SSAOBlur,
			Reads:   []*attachment.Attachment{occlusion},
			Record:  fullscreen(in.Bindings, binding.PassSSAOBlur, pipeline.SSAOBlur),
		})
	} else {
		g.External(occlusion, blurred)
	}
	g.Add(composition)

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// recordScene draws opaque meshes with scene.solid, then alpha-tested
// meshes with scene.blend. Each variant is bound once.
func recordScene(enc *Encoder, in Inputs) error {
	opaque, alphaTested := in.Scene.Partition()
	groups := []struct {
		variant string
		meshes  []int
	}{
		{pipeline.SceneSolid, opaque},
		{pipeline.SceneBlend, alphaTested},
	}

	geometry := false
	for _, group := range groups {
		if len(group.meshes) == 0 {
			continue
		}
		enc.BindPipeline(group.variant)
		if !geometry {
			enc.BindGeometry(in.Vertices, in.Indices)
			geometry = true
		}
		for _, i := range group.meshes {
			m := in.Scene.Meshes[i]
			set, err := in.Bindings.MaterialSet(m.Material)
			if err != nil {
				return err
			}
			enc.BindResources(set)
			enc.DrawIndexed(m.IndexCount, m.FirstIndex, m.VertexOffset)
		}
	}
	return nil
}

func fullscreen(bindings *binding.Layer, pass binding.Pass, variant string) func(enc *Encoder) error {
	return func(enc *Encoder) error {
		set, err := bindings.Set(pass)
		if err != nil {
			return err
		}
		enc.BindPipeline(variant)
		enc.BindResources(set)
		enc.Draw(3)
		return nil
	}
}

// recordComposition draws the lit image. In debug view the G-Buffer
// visualization covers the screen first; the screen quad block then
// places the lit image in the lower-right quarter.
func recordComposition(enc *Encoder, in Inputs) error {
	set, err := in.Bindings.Set(binding.PassComposition)
	if err != nil {
		return err
	}
	if in.DebugView {
		enc.BindPipeline(pipeline.Debug)
		enc.BindResources(set)
		enc.Draw(3)
	}
	enc.BindPipeline(pipeline.CompositionVariant(in.SSAOEnabled))
	enc.BindResources(set)
	enc.Draw(3)
	return nil
}
