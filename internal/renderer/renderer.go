// Package renderer drives the deferred pipeline: it owns every GPU object
// of the renderer, keeps the recorded command sequences current and
// submits one frame at a time.
package renderer

import (
	"context"
	"io/fs"
	"math/rand"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/sponza/internal/attachment"
	"github.com/vkngwrapper/sponza/internal/binding"
	"github.com/vkngwrapper/sponza/internal/config"
	"github.com/vkngwrapper/sponza/internal/frame"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/logging"
	"github.com/vkngwrapper/sponza/internal/passgraph"
	"github.com/vkngwrapper/sponza/internal/pipeline"
	"github.com/vkngwrapper/sponza/internal/scene"
	"github.com/vkngwrapper/sponza/internal/ssao"
	"github.com/vkngwrapper/sponza/internal/texture"
	"github.com/vkngwrapper/sponza/internal/uniform"
)

type options struct {
	shaders   fs.FS
	shaderDir string
}

type Option func(*options)

// WithShaderFS loads the SPIR-V modules from dir inside fsys instead of
// the configured shader directory.
func WithShaderFS(fsys fs.FS, dir string) Option {
	return func(o *options) {
		o.shaders = fsys
		o.shaderDir = dir
	}
}

// Renderer is the deferred renderer. It is not safe for concurrent use.
type Renderer struct {
	device    gpu.Device
	presenter frame.Presenter
	cfg       config.Config
	scene     *scene.Scene
	shaders   *pipeline.ShaderSource

	scope  *gpu.Scope
	extent gpu.Extent

	attachments *attachment.Manager
	gbuffer     *attachment.TargetSet
	ssao        *attachment.TargetSet
	ssaoBlur    *attachment.TargetSet
	present     *attachment.PresentTarget

	screenVS   *uniform.Block[uniform.ScreenQuadVS]
	sceneVS    *uniform.Block[uniform.SceneVS]
	lights     *uniform.Block[uniform.LightsFS]
	ssaoParams *uniform.Block[uniform.SSAOParams]
	kernel     *uniform.Block[uniform.SSAOKernel]

	vertices gpu.BufferHandle
	indices  gpu.BufferHandle

	inputs    binding.Inputs
	bindings  *binding.Layer
	cache     gpu.PipelineCacheHandle
	pipelines *pipeline.Registry
	graph     *passgraph.Graph

	frame     *frame.Frame
	recorder  *frame.Recorder
	submitter *frame.Submitter

	camera       Camera
	timer        float32
	debugView    bool
	ssaoEnabled  bool
	ssaoBlurOn   bool
	ssaoOnly     bool
	followCamera bool

	frames    uint64
	frameTime time.Duration
}

// New builds every GPU object of the renderer for s. On failure whatever
// was created is released before returning.
func New(device gpu.Device, presenter frame.Presenter, cfg config.Config, s *scene.Scene, opts ...Option) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "renderer config")
	}
	if s == nil {
		s = scene.Empty()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	o := options{shaders: os.DirFS(cfg.ShaderDir), shaderDir: "."}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Renderer{
		device:       device,
		presenter:    presenter,
		cfg:          cfg,
		scene:        s,
		shaders:      pipeline.NewShaderSource(o.shaders, o.shaderDir),
		scope:        gpu.NewScope("renderer"),
		extent:       presenter.Extent(),
		camera:       NewCamera(cfg.Camera),
		debugView:    cfg.DebugView,
		ssaoEnabled:  cfg.SSAO.Enabled,
		ssaoBlurOn:   cfg.SSAO.Blur,
		followCamera: cfg.Lights.FollowCamera,
	}

	start := hrtime.Now()
	if err := r.init(); err != nil {
		r.Destroy()
		return nil, err
	}
	logging.Logger().Info("renderer ready",
		"extent", r.extent,
		"meshes", len(s.Meshes),
		"materials", len(s.Materials),
		"pipelines", r.pipelines.Len(),
		"elapsed", hrtime.Since(start))
	return r, nil
}

func (r *Renderer) init() error {
	if err := r.createAttachments(); err != nil {
		return err
	}
	if err := r.createUniforms(); err != nil {
		return err
	}
	noise, err := r.createSSAOSamples()
	if err != nil {
		return err
	}
	if err := r.uploadGeometry(); err != nil {
		return err
	}
	materials, err := r.loadMaterials()
	if err != nil {
		return err
	}

	r.inputs = binding.Inputs{
		Position:     r.gbuffer.Color()[0],
		Normal:       r.gbuffer.Color()[1],
		Albedo:       r.gbuffer.Color()[2],
		SSAO:         r.ssao.Color()[0],
		SSAOBlur:     r.ssaoBlur.Color()[0],
		Noise:        noise,
		Materials:    materials,
		SceneVS:      r.sceneVS,
		ScreenQuadVS: r.screenVS,
		Lights:       r.lights,
		SSAOParams:   r.ssaoParams,
		Kernel:       r.kernel,
	}
	if r.bindings, err = binding.NewLayer(r.device); err != nil {
		return err
	}
	r.scope.Defer(r.bindings.Destroy)
	if err := r.bindings.Build(r.inputs); err != nil {
		return err
	}

	if r.cfg.PipelineCache != "" {
		if r.cache, err = pipeline.LoadCache(r.device, r.cfg.PipelineCache); err != nil {
			return err
		}
		gpu.Own(r.scope, r.cache, r.device.DestroyPipelineCache)
	}
	r.pipelines = pipeline.NewRegistry(r.device, r.shaders, r.cache)
	r.scope.Defer(r.pipelines.Destroy)
	if err := r.buildPipelines(); err != nil {
		return err
	}

	r.frame = &frame.Frame{}
	r.recorder = frame.NewRecorder(r.device, r.pipelines, r.frame)
	r.scope.Defer(r.recorder.Destroy)
	if r.submitter, err = frame.NewSubmitter(r.device, r.frame); err != nil {
		return err
	}
	r.scope.Defer(r.submitter.Destroy)

	r.updateUniforms()
	return r.record()
}

func (r *Renderer) createAttachments() error {
	depthFormat, err := gpu.FindDepthFormat(r.device)
	if err != nil {
		return err
	}

	r.attachments = attachment.NewManager(r.device)
	r.scope.Defer(r.attachments.Destroy)

	sampled := attachment.UsageColor | attachment.UsageSampled
	descs := []attachment.Desc{
		{Name: "position", Format: gpu.FormatRGBA16Float, Usage: sampled},
		{Name: "normal", Format: gpu.FormatRGBA16Float, Usage: sampled},
		{Name: "albedo", Format: gpu.FormatRGBA8Unorm, Usage: sampled},
		{Name: "depth", Format: depthFormat, Usage: attachment.UsageDepthStencil},
		{Name: "ssao", Format: gpu.FormatR8Unorm, Usage: sampled},
		{Name: "ssao.blur", Format: gpu.FormatR8Unorm, Usage: sampled},
	}
	created := make([]*attachment.Attachment, len(descs))
	for i, desc := range descs {
		desc.Extent = r.extent
		if created[i], err = r.attachments.Create(desc); err != nil {
			return err
		}
	}

	r.gbuffer = attachment.NewTargetSet(r.device, "gbuffer", created[0:3], created[3])
	r.ssao = attachment.NewTargetSet(r.device, "ssao", created[4:5], nil)
	r.ssaoBlur = attachment.NewTargetSet(r.device, "ssao.blur", created[5:6], nil)
	for _, ts := range []*attachment.TargetSet{r.gbuffer, r.ssao, r.ssaoBlur} {
		if err := ts.Create(); err != nil {
			return err
		}
		r.scope.Defer(ts.Destroy)
	}

	r.present = attachment.NewPresentTarget(r.device, r.presenter.Format())
	if err := r.present.Create(r.presenter.Views(), r.extent); err != nil {
		return err
	}
	r.scope.Defer(r.present.Destroy)
	return nil
}

func (r *Renderer) createUniforms() error {
	var err error
	if r.screenVS, err = uniform.NewBlock[uniform.ScreenQuadVS](r.device, r.scope, "screen"); err != nil {
		return err
	}
	if r.sceneVS, err = uniform.NewBlock[uniform.SceneVS](r.device, r.scope, "scene"); err != nil {
		return err
	}
	if r.lights, err = uniform.NewBlock[uniform.LightsFS](r.device, r.scope, "lights"); err != nil {
		return err
	}
	if r.ssaoParams, err = uniform.NewBlock[uniform.SSAOParams](r.device, r.scope, "ssao.params"); err != nil {
		return err
	}
	r.kernel, err = uniform.NewBlock[uniform.SSAOKernel](r.device, r.scope, "ssao.kernel")
	return err
}

// createSSAOSamples fills the kernel block and uploads the rotation noise.
// Both come from one generator seeded by the config.
func (r *Renderer) createSSAOSamples() (*texture.Texture, error) {
	params := r.cfg.SSAO.Params()
	rng := rand.New(rand.NewSource(r.cfg.SSAO.Seed))
	r.kernel.Set(ssao.KernelBlock(ssao.Kernel(rng, params.KernelSize)))
	if err := r.kernel.Flush(); err != nil {
		return nil, err
	}
	return texture.Noise(r.device, r.scope, ssao.Noise(rng, params.NoiseDim), params.NoiseDim)
}

func (r *Renderer) uploadGeometry() error {
	if r.scene.IsEmpty() {
		return nil
	}
	vertices, err := encode(r.scene.Vertices)
	if err != nil {
		return err
	}
	if r.vertices, err = gpu.UploadBuffer(r.device, r.scope, gpu.BufferUsageVertex, vertices); err != nil {
		return errors.Wrap(err, "upload vertices")
	}
	indices, err := encode(r.scene.Indices)
	if err != nil {
		return err
	}
	if r.indices, err = gpu.UploadBuffer(r.device, r.scope, gpu.BufferUsageIndex, indices); err != nil {
		return errors.Wrap(err, "upload indices")
	}
	logging.Logger().Debug("geometry uploaded", "vertices", len(r.scene.Vertices), "indices", len(r.scene.Indices))
	return nil
}

// loadMaterials decodes every referenced texture and resolves the three
// sources of each material, substituting placeholders for absent maps.
func (r *Renderer) loadMaterials() ([]binding.MaterialSources, error) {
	images, err := scene.LoadImages(context.Background(), r.cfg.Scene.TextureDir, r.scene.TexturePaths(), r.cfg.Scene.MaxTextureSize)
	if err != nil {
		return nil, err
	}
	placeholders, err := texture.NewPlaceholders(r.device, r.scope)
	if err != nil {
		return nil, err
	}
	srgb := map[string]bool{}
	for _, m := range r.scene.Materials {
		if m.Diffuse != "" {
			srgb[m.Diffuse] = true
		}
	}
	lib, err := texture.NewLibrary(r.device, r.scope, placeholders, images, srgb)
	if err != nil {
		return nil, err
	}
	logging.Logger().Info("textures uploaded", "loaded", lib.Len(), "referenced", len(r.scene.TexturePaths()))

	materials := make([]binding.MaterialSources, len(r.scene.Materials))
	for i, m := range r.scene.Materials {
		materials[i] = binding.MaterialSources{
			Diffuse:  lib.Diffuse(m.Diffuse),
			Specular: lib.Specular(m.Specular),
			Normal:   lib.Normal(m.Normal),
		}
	}
	return materials, nil
}

// buildPipelines fills the registry against the current render passes and
// rebuilds the pass graph that binds them.
func (r *Renderer) buildPipelines() error {
	target := func(ts *attachment.TargetSet, pass binding.Pass) (pipeline.Target, error) {
		layout, err := r.bindings.PipelineLayout(pass)
		return pipeline.Target{RenderPass: ts.RenderPass(), Layout: layout, ColorAttachments: len(ts.Color())}, err
	}
	var t pipeline.Targets
	var err error
	if t.GBuffer, err = target(r.gbuffer, binding.PassGBuffer); err != nil {
		return err
	}
	if t.SSAO, err = target(r.ssao, binding.PassSSAO); err != nil {
		return err
	}
	if t.SSAOBlur, err = target(r.ssaoBlur, binding.PassSSAOBlur); err != nil {
		return err
	}
	layout, err := r.bindings.PipelineLayout(binding.PassComposition)
	if err != nil {
		return err
	}
	t.Composition = pipeline.Target{RenderPass: r.present.RenderPass(), Layout: layout, ColorAttachments: 1}
	t.SceneVertices = scene.VertexLayout()
	t.SSAOParams = r.cfg.SSAO.Params()
	t.NearPlane = r.camera.Near
	t.FarPlane = r.camera.Far

	if err := pipeline.Standard(r.pipelines, t); err != nil {
		return errors.Wrap(err, "build pipelines")
	}
	return r.buildGraph()
}

func (r *Renderer) buildGraph() error {
	g, err := passgraph.Deferred(passgraph.Inputs{
		GBuffer:     r.gbuffer,
		SSAO:        r.ssao,
		SSAOBlur:    r.ssaoBlur,
		Bindings:    r.bindings,
		Scene:       r.scene,
		Vertices:    r.vertices,
		Indices:     r.indices,
		SSAOEnabled: r.ssaoEnabled,
		DebugView:   r.debugView,
	})
	if err != nil {
		return err
	}
	r.graph = g
	return nil
}

// record re-records every command sequence from the current graph.
func (r *Renderer) record() error {
	if err := r.recorder.BuildDeferred(r.graph); err != nil {
		return err
	}
	return r.recorder.BuildOnscreen(r.graph, r.present)
}

// idle waits for the frame in flight and for the device, so that anything
// a recorded sequence references may be replaced.
func (r *Renderer) idle() error {
	if err := r.submitter.Wait(); err != nil {
		return err
	}
	return errors.Wrap(r.device.WaitIdle(), "wait idle")
}

// Resize recreates everything sized to the viewport. Attachments keep
// their names and count. A zero extent, as reported for a minimized
// window, is ignored.
func (r *Renderer) Resize(extent gpu.Extent) error {
	if extent.Width == 0 || extent.Height == 0 {
		logging.Logger().Debug("resize to empty extent ignored", "extent", extent)
		return nil
	}
	start := hrtime.Now()
	if err := r.idle(); err != nil {
		return err
	}

	if err := r.presenter.Resize(extent); err != nil {
		return errors.Wrap(err, "resize presenter")
	}
	r.extent = r.presenter.Extent()

	if err := r.attachments.ResizeAll(r.extent); err != nil {
		return err
	}
	for _, ts := range []*attachment.TargetSet{r.gbuffer, r.ssao, r.ssaoBlur} {
		if err := ts.Resize(); err != nil {
			return err
		}
	}
	if err := r.present.Resize(r.presenter.Views(), r.extent); err != nil {
		return err
	}
	if err := r.bindings.Rebuild(r.inputs); err != nil {
		return err
	}
	r.pipelines.Destroy()
	if err := r.buildPipelines(); err != nil {
		return err
	}
	if err := r.record(); err != nil {
		return err
	}
	r.updateUniforms()

	logging.Logger().Info("resized",
		"extent", r.extent,
		"attachments", r.attachments.Len(),
		"elapsed", hrtime.Since(start))
	return nil
}

// Update advances the light animation by elapsed and refreshes every
// uniform block from the camera and toggles. The blocks reach the GPU at
// the start of the next frame.
func (r *Renderer) Update(elapsed time.Duration) {
	if r.cfg.Lights.Animate {
		r.timer = advance(r.timer, elapsed.Seconds(), r.cfg.Lights.Speed)
	}
	r.updateUniforms()
}

func (r *Renderer) updateUniforms() {
	projection := r.camera.Projection(float32(r.extent.Width) / float32(r.extent.Height))
	r.screenVS.Set(uniform.ScreenQuadVS{
		Projection: ScreenProjection(r.debugView),
		Model:      ScreenModel(r.debugView),
	})
	r.sceneVS.Set(uniform.SceneVS{
		Projection: projection,
		View:       r.camera.View(),
		Model:      r.camera.Model(),
	})
	r.lights.Set(Lights(r.camera, r.timer, r.followCamera))
	r.ssaoParams.Set(uniform.SSAOParams{
		Projection: projection,
		SSAO:       flag(r.ssaoEnabled),
		SSAOOnly:   flag(r.ssaoOnly),
		SSAOBlur:   flag(r.ssaoBlurOn),
	})
}

func (r *Renderer) flushUniforms() error {
	if err := r.screenVS.Flush(); err != nil {
		return err
	}
	if err := r.sceneVS.Flush(); err != nil {
		return err
	}
	if err := r.lights.Flush(); err != nil {
		return err
	}
	return r.ssaoParams.Flush()
}

// DrawFrame waits for the previous frame, then submits and presents the
// next one. An out-of-date presenter is resized and the frame skipped.
func (r *Renderer) DrawFrame() error {
	start := hrtime.Now()
	if err := r.submitter.Wait(); err != nil {
		return err
	}

	index, imageReady, err := r.presenter.Acquire()
	if errors.Is(err, gpu.ErrOutOfDate) {
		logging.Logger().Debug("presenter out of date on acquire")
		return r.Resize(r.extent)
	}
	if err != nil {
		return errors.Wrap(err, "acquire image")
	}

	if err := r.flushUniforms(); err != nil {
		return err
	}
	offscreen, err := r.recorder.Offscreen()
	if err != nil {
		return err
	}
	onscreen, err := r.recorder.Onscreen(index)
	if err != nil {
		return err
	}
	renderDone, err := r.submitter.Submit(offscreen, onscreen, imageReady)
	if err != nil {
		return err
	}

	err = r.presenter.Present(index, renderDone)
	if errors.Is(err, gpu.ErrOutOfDate) {
		logging.Logger().Debug("presenter out of date on present")
		return r.Resize(r.extent)
	}
	if err != nil {
		return errors.Wrap(err, "present image")
	}
	r.frames++
	r.frameTime = hrtime.Since(start)
	return nil
}

// Destroy waits for the device, stores the pipeline cache and releases
// every object. It is safe on a partially built renderer.
func (r *Renderer) Destroy() {
	log := logging.Logger()
	if r.submitter != nil {
		if err := r.submitter.Wait(); err != nil {
			log.Error("wait for frame in flight", "err", err)
		}
	}
	if err := r.device.WaitIdle(); err != nil {
		log.Error("wait idle", "err", err)
	}
	if r.cache != 0 && r.cfg.PipelineCache != "" {
		if err := pipeline.SaveCache(r.device, r.cache, r.cfg.PipelineCache); err != nil {
			log.Warn("pipeline cache not saved", "err", err)
		}
	}
	r.scope.Release()
	r.cache = 0
}

func (r *Renderer) Extent() gpu.Extent { return r.extent }

// Camera returns the camera for input handling. Changes take effect on
// the next Update.
func (r *Renderer) Camera() *Camera { return &r.camera }

func (r *Renderer) Pipelines() *pipeline.Registry { return r.pipelines }

func (r *Renderer) Graph() *passgraph.Graph { return r.graph }

func (r *Renderer) Attachments() *attachment.Manager { return r.attachments }

// Frames counts the frames presented so far.
func (r *Renderer) Frames() uint64 { return r.frames }

// FrameTime is the host time spent in the last DrawFrame.
func (r *Renderer) FrameTime() time.Duration { return r.frameTime }

func flag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
