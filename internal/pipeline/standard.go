package pipeline

import (
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/ssao"
)

// Variant names.
const (
	SceneSolid        = "scene.solid"
	SceneBlend        = "scene.blend"
	SSAOGenerate      = "ssao.generate"
	SSAOBlur          = "ssao.blur"
	CompositionSSAO   = "composition.ssao.enabled"
	CompositionNoSSAO = "composition.ssao.disabled"
	Debug             = "debug"
)

// Programs of the standard variants. The SSAO passes and the debug view
// share a vertex stage that generates a triangle covering the viewport;
// the composition stage covers the unit quad and places it with the
// screen quad block.
var (
	ProgramGBuffer     = Program{Vertex: "gbuffer", Fragment: "gbuffer"}
	ProgramSSAO        = Program{Vertex: "fullscreen", Fragment: "ssao"}
	ProgramBlur        = Program{Vertex: "fullscreen", Fragment: "blur"}
	ProgramComposition = Program{Vertex: "composition", Fragment: "composition"}
	ProgramDebug       = Program{Vertex: "fullscreen", Fragment: "debug"}
)

// Programs lists every program the standard variants load.
var Programs = []Program{ProgramGBuffer, ProgramSSAO, ProgramBlur, ProgramComposition, ProgramDebug}

// Target is the render pass and layout a group of variants is built for.
type Target struct {
	RenderPass       gpu.RenderPassHandle
	Layout           gpu.PipelineLayoutHandle
	ColorAttachments int
}

// Targets are the render passes of the deferred pipeline.
type Targets struct {
	GBuffer     Target
	SSAO        Target
	SSAOBlur    Target
	Composition Target

	SceneVertices *gpu.VertexLayout
	SSAOParams    ssao.Params
	NearPlane     float32
	FarPlane      float32
}

// Standard registers the seven variants the deferred pass graph binds.
func Standard(r *Registry, t Targets) error {
	scene := Base{
		Layout:           t.GBuffer.Layout,
		RenderPass:       t.GBuffer.RenderPass,
		ColorAttachments: t.GBuffer.ColorAttachments,
		VertexInput:      t.SceneVertices,
		DepthTest:        true,
		CullMode:         gpu.CullBack,
	}
	sceneSpec := func(discard bool) []gpu.SpecConstant {
		return []gpu.SpecConstant{
			{ID: 0, Value: t.NearPlane},
			{ID: 1, Value: t.FarPlane},
			{ID: 2, Value: discard},
		}
	}
	if _, err := r.Add(SceneSolid, scene, ProgramGBuffer, sceneSpec(false)); err != nil {
		return err
	}
	if _, err := r.Add(SceneBlend, scene, ProgramGBuffer, sceneSpec(true),
		WithDepthWrite(false), WithCullMode(gpu.CullNone)); err != nil {
		return err
	}

	fullscreen := func(target Target) Base {
		return Base{
			Layout:           target.Layout,
			RenderPass:       target.RenderPass,
			ColorAttachments: target.ColorAttachments,
			CullMode:         gpu.CullNone,
		}
	}

	if _, err := r.Add(SSAOGenerate, fullscreen(t.SSAO), ProgramSSAO, []gpu.SpecConstant{
		{ID: 0, Value: uint32(t.SSAOParams.KernelSize)},
		{ID: 1, Value: t.SSAOParams.Radius},
		{ID: 2, Value: t.SSAOParams.Power},
	}); err != nil {
		return err
	}
	if _, err := r.Add(SSAOBlur, fullscreen(t.SSAOBlur), ProgramBlur, nil); err != nil {
		return err
	}

	composition := fullscreen(t.Composition)
	if _, err := r.Add(CompositionSSAO, composition, ProgramComposition,
		[]gpu.SpecConstant{{ID: 0, Value: true}}, AllowDerivatives()); err != nil {
		return err
	}
	if _, err := r.Add(CompositionNoSSAO, composition, ProgramComposition,
		[]gpu.SpecConstant{{ID: 0, Value: false}}, DerivedFrom(CompositionSSAO)); err != nil {
		return err
	}
	_, err := r.Add(Debug, composition, ProgramDebug, nil)
	return err
}

// CompositionVariant returns the composition variant for the SSAO setting.
func CompositionVariant(ssaoEnabled bool) string {
	if ssaoEnabled {
		return CompositionSSAO
	}
	return CompositionNoSSAO
}
