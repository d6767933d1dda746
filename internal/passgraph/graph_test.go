package passgraph

import (
	"encoding/binary"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/attachment"
	"github.com/vkngwrapper/sponza/internal/binding"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/gpu/simgpu"
	"github.com/vkngwrapper/sponza/internal/pipeline"
	"github.com/vkngwrapper/sponza/internal/scene"
	"github.com/vkngwrapper/sponza/internal/ssao"
	"github.com/vkngwrapper/sponza/internal/texture"
	"github.com/vkngwrapper/sponza/internal/uniform"
)

func shaderFS() fstest.MapFS {
	module := make([]byte, 8)
	binary.LittleEndian.PutUint32(module, 0x07230203)
	fsys := fstest.MapFS{}
	for _, p := range pipeline.Programs {
		fsys["shaders/"+p.Vertex+".vert.spv"] = &fstest.MapFile{Data: module}
		fsys["shaders/"+p.Fragment+".frag.spv"] = &fstest.MapFile{Data: module}
	}
	return fsys
}

// testScene has two opaque meshes around one alpha-tested mesh.
func testScene() *scene.Scene {
	return &scene.Scene{
		Vertices: make([]scene.Vertex, 3),
		Indices:  []uint32{0, 1, 2, 0, 2, 1, 1, 0, 2},
		Meshes: []scene.Mesh{
			{Name: "floor", FirstIndex: 0, IndexCount: 3, Material: 0},
			{Name: "leaves", FirstIndex: 3, IndexCount: 3, Material: 1},
			{Name: "column", FirstIndex: 6, IndexCount: 3, Material: 0},
		},
		Materials: []scene.Material{
			{Name: "stone"},
			{Name: "leaf", AlphaTest: true},
		},
	}
}

type fixture struct {
	device    *simgpu.Device
	extent    gpu.Extent
	inputs    Inputs
	registry  *pipeline.Registry
	present   *attachment.PresentTarget
	swapchain *simgpu.Swapchain
}

func newFixture(t *testing.T, s *scene.Scene) *fixture {
	t.Helper()
	device := simgpu.New()
	f := &fixture{device: device, extent: gpu.Extent{Width: 64, Height: 48}}
	scope := gpu.NewScope("test")
	manager := attachment.NewManager(device)
	var targets []*attachment.TargetSet
	var layer *binding.Layer

	t.Cleanup(func() {
		if f.registry != nil {
			f.registry.Destroy()
		}
		if layer != nil {
			layer.Destroy()
		}
		if f.present != nil {
			f.present.Destroy()
		}
		if f.swapchain != nil {
			f.swapchain.Destroy()
		}
		for _, ts := range targets {
			ts.Destroy()
		}
		manager.Destroy()
		scope.Release()
	})

	create := func(name string, format gpu.Format, usage attachment.Usage) *attachment.Attachment {
		a, err := manager.Create(attachment.Desc{Name: name, Format: format, Usage: usage, Extent: f.extent})
		if err != nil {
			t.Fatal(err)
		}
		return a
	}
	sampled := attachment.UsageColor | attachment.UsageSampled
	position := create("position", gpu.FormatRGBA16Float, sampled)
	normal := create("normal", gpu.FormatRGBA16Float, sampled)
	albedo := create("albedo", gpu.FormatRGBA8Unorm, sampled)
	depth := create("depth", gpu.FormatD32Float, attachment.UsageDepthStencil)
	occlusion := create("ssao", gpu.FormatR8Unorm, sampled)
	blurred := create("ssao.blur", gpu.FormatR8Unorm, sampled)

	f.inputs.GBuffer = attachment.NewTargetSet(device, "gbuffer", []*attachment.Attachment{position, normal, albedo}, depth)
	f.inputs.SSAO = attachment.NewTargetSet(device, "ssao", []*attachment.Attachment{occlusion}, nil)
	f.inputs.SSAOBlur = attachment.NewTargetSet(device, "ssao.blur", []*attachment.Attachment{blurred}, nil)
	for _, ts := range []*attachment.TargetSet{f.inputs.GBuffer, f.inputs.SSAO, f.inputs.SSAOBlur} {
		if err := ts.Create(); err != nil {
			t.Fatal(err)
		}
		targets = append(targets, ts)
	}

	var err error
	f.swapchain, err = simgpu.NewSwapchain(device, f.extent, 2)
	if err != nil {
		t.Fatal(err)
	}
	f.present = attachment.NewPresentTarget(device, f.swapchain.Format())
	if err := f.present.Create(f.swapchain.Views(), f.extent); err != nil {
		t.Fatal(err)
	}

	noise, err := texture.Noise(device, scope, make([]mgl32.Vec4, 16), 4)
	if err != nil {
		t.Fatal(err)
	}
	placeholders, err := texture.NewPlaceholders(device, scope)
	if err != nil {
		t.Fatal(err)
	}
	in := binding.Inputs{
		Position: position, Normal: normal, Albedo: albedo,
		SSAO: occlusion, SSAOBlur: blurred,
		Noise: noise,
	}
	for range s.Materials {
		in.Materials = append(in.Materials, binding.MaterialSources{
			Diffuse: placeholders.Diffuse, Specular: placeholders.Specular, Normal: placeholders.Normal,
		})
	}
	if in.SceneVS, err = uniform.NewBlock[uniform.SceneVS](device, scope, "scene"); err != nil {
		t.Fatal(err)
	}
	if in.ScreenQuadVS, err = uniform.NewBlock[uniform.ScreenQuadVS](device, scope, "quad"); err != nil {
		t.Fatal(err)
	}
	if in.Lights, err = uniform.NewBlock[uniform.LightsFS](device, scope, "lights"); err != nil {
		t.Fatal(err)
	}
	if in.SSAOParams, err = uniform.NewBlock[uniform.SSAOParams](device, scope, "params"); err != nil {
		t.Fatal(err)
	}
	if in.Kernel, err = uniform.NewBlock[uniform.SSAOKernel](device, scope, "kernel"); err != nil {
		t.Fatal(err)
	}
	if layer, err = binding.NewLayer(device); err != nil {
		t.Fatal(err)
	}
	if err := layer.Build(in); err != nil {
		t.Fatal(err)
	}
	f.inputs.Bindings = layer

	layoutOf := func(pass binding.Pass) gpu.PipelineLayoutHandle {
		h, err := layer.PipelineLayout(pass)
		if err != nil {
			t.Fatal(err)
		}
		return h
	}
	f.registry = pipeline.NewRegistry(device, pipeline.NewShaderSource(shaderFS(), "shaders"), 0)
	err = pipeline.Standard(f.registry, pipeline.Targets{
		GBuffer:       pipeline.Target{RenderPass: f.inputs.GBuffer.RenderPass(), Layout: layoutOf(binding.PassGBuffer), ColorAttachments: 3},
		SSAO:          pipeline.Target{RenderPass: f.inputs.SSAO.RenderPass(), Layout: layoutOf(binding.PassSSAO), ColorAttachments: 1},
		SSAOBlur:      pipeline.Target{RenderPass: f.inputs.SSAOBlur.RenderPass(), Layout: layoutOf(binding.PassSSAOBlur), ColorAttachments: 1},
		Composition:   pipeline.Target{RenderPass: f.present.RenderPass(), Layout: layoutOf(binding.PassComposition), ColorAttachments: 1},
		SceneVertices: scene.VertexLayout(),
		SSAOParams:    ssao.DefaultParams(),
		NearPlane:     0.1,
		FarPlane:      256,
	})
	if err != nil {
		t.Fatal(err)
	}

	f.inputs.Scene = s
	if len(s.Vertices) > 0 {
		if f.inputs.Vertices, err = gpu.UploadBuffer(device, scope, gpu.BufferUsageVertex, make([]byte, len(s.Vertices)*56)); err != nil {
			t.Fatal(err)
		}
		if f.inputs.Indices, err = gpu.UploadBuffer(device, scope, gpu.BufferUsageIndex, make([]byte, len(s.Indices)*4)); err != nil {
			t.Fatal(err)
		}
	}
	f.inputs.SSAOEnabled = true
	return f
}

// record records the offscreen and onscreen sequences of g for
// presentable image index.
func (f *fixture) record(t *testing.T, g *Graph, index int) (offscreen, onscreen *simgpu.CommandBuffer) {
	t.Helper()
	buffers := make([]*simgpu.CommandBuffer, 2)
	for i := range buffers {
		cmd, err := f.device.AllocateCommandBuffer()
		if err != nil {
			t.Fatal(err)
		}
		if err := cmd.Begin(); err != nil {
			t.Fatal(err)
		}
		enc := NewEncoder(cmd, f.registry)
		if i == 0 {
			err = g.RecordOffscreen(enc)
		} else {
			err = g.RecordOnscreen(enc, gpu.RenderPassBegin{
				RenderPass:  f.present.RenderPass(),
				Framebuffer: f.present.Framebuffer(index),
				Area:        gpu.Rect{Extent: f.present.Extent()},
				Clear:       f.present.ClearValues(),
			})
		}
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := cmd.End(); err != nil {
			t.Fatalf("End() error = %v", err)
		}
		buffers[i] = cmd.(*simgpu.CommandBuffer)
	}
	return buffers[0], buffers[1]
}

// submit runs one frame of the two sequences the way the frame submitter
// chains them.
func (f *fixture) submit(t *testing.T, g *Graph) {
	t.Helper()
	index, imageReady, err := f.swapchain.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	offscreen, onscreen := f.record(t, g, index)
	offscreenDone, _ := f.device.CreateSemaphore()
	renderDone, _ := f.device.CreateSemaphore()
	defer f.device.DestroySemaphore(offscreenDone)
	defer f.device.DestroySemaphore(renderDone)

	if err := f.device.Submit(gpu.SubmitInfo{
		CommandBuffers: []gpu.CommandBuffer{offscreen},
		Signal:         []gpu.SemaphoreHandle{offscreenDone},
	}); err != nil {
		t.Fatalf("offscreen Submit() error = %v", err)
	}
	if err := f.device.Submit(gpu.SubmitInfo{
		CommandBuffers: []gpu.CommandBuffer{onscreen},
		Wait: []gpu.SemaphoreWait{
			{Semaphore: offscreenDone, Stage: gpu.StageFragmentShader},
			{Semaphore: imageReady, Stage: gpu.StageColorAttachmentOutput},
		},
		Signal: []gpu.SemaphoreHandle{renderDone},
	}); err != nil {
		t.Fatalf("onscreen Submit() error = %v", err)
	}
	if err := f.swapchain.Present(index, renderDone); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
}

func passNames(g *Graph) []string {
	var names []string
	for _, p := range g.Passes() {
		names = append(names, p.Name)
	}
	return names
}

// structure keeps only the pass boundaries and barriers of ops.
func structure(ops []simgpu.Op) []simgpu.Op {
	var out []simgpu.Op
	for _, op := range ops {
		switch op {
		case simgpu.OpBeginRenderPass, simgpu.OpEndRenderPass, simgpu.OpBarrier:
			out = append(out, op)
		}
	}
	return out
}

func TestDeferredFlushesEveryPassBeforeItIsSampled(t *testing.T) {
	f := newFixture(t, testScene())
	g, err := Deferred(f.inputs)
	if err != nil {
		t.Fatalf("Deferred() error = %v", err)
	}

	want := []string{"gbuffer", "ssao.generate", "ssao.blur", "composition"}
	if got := passNames(g); !reflect.DeepEqual(got, want) {
		t.Fatalf("passes = %v, want %v", got, want)
	}

	offscreen, onscreen := f.record(t, g, 0)
	begin, end, barrier := simgpu.OpBeginRenderPass, simgpu.OpEndRenderPass, simgpu.OpBarrier
	wantOps := []simgpu.Op{begin, end, barrier, begin, end, barrier, begin, end, barrier}
	if got := structure(offscreen.Ops()); !reflect.DeepEqual(got, wantOps) {
		t.Errorf("offscreen structure = %v, want %v", got, wantOps)
	}
	if got := structure(onscreen.Ops()); !reflect.DeepEqual(got, []simgpu.Op{begin, end}) {
		t.Errorf("onscreen structure = %v", got)
	}

	for _, cmd := range offscreen.Commands() {
		if cmd.Op != simgpu.OpBarrier {
			continue
		}
		b := cmd.Barrier
		if b.SrcStage != gpu.StageColorAttachmentOutput || b.DstStage != gpu.StageFragmentShader {
			t.Errorf("barrier stages = %v -> %v", b.SrcStage, b.DstStage)
		}
		for _, ib := range b.Images {
			if ib.OldLayout != gpu.LayoutColorAttachment || ib.NewLayout != gpu.LayoutShaderReadOnly {
				t.Errorf("barrier layouts = %s -> %s", ib.OldLayout, ib.NewLayout)
			}
			if ib.SrcAccess != gpu.AccessColorAttachmentWrite || ib.DstAccess != gpu.AccessShaderRead {
				t.Errorf("barrier access = %v -> %v", ib.SrcAccess, ib.DstAccess)
			}
		}
	}
	for _, cmd := range offscreen.Commands() {
		if cmd.Op == simgpu.OpBarrier {
			if n := len(cmd.Barrier.Images); n != 3 {
				t.Errorf("G-Buffer barrier covers %d images, want 3", n)
			}
			break
		}
	}

	wantPipelines := []string{pipeline.SceneSolid, pipeline.SceneBlend, pipeline.SSAOGenerate, pipeline.SSAOBlur}
	if got := offscreen.BoundPipelines(); !reflect.DeepEqual(got, wantPipelines) {
		t.Errorf("offscreen pipelines = %v, want %v", got, wantPipelines)
	}
	if got := onscreen.BoundPipelines(); !reflect.DeepEqual(got, []string{pipeline.CompositionSSAO}) {
		t.Errorf("onscreen pipelines = %v", got)
	}

	for frame := 0; frame < 3; frame++ {
		f.submit(t, g)
	}
	if v := f.device.Violations(); len(v) != 0 {
		t.Errorf("violations = %v", v)
	}
}

func TestSceneDrawsOpaqueBeforeAlphaTested(t *testing.T) {
	f := newFixture(t, testScene())
	g, err := Deferred(f.inputs)
	if err != nil {
		t.Fatal(err)
	}
	offscreen, _ := f.record(t, g, 0)

	var draws []int
	var sets []gpu.DescriptorSetHandle
	for _, cmd := range offscreen.Commands() {
		switch cmd.Op {
		case simgpu.OpDrawIndexed:
			draws = append(draws, cmd.First)
		case simgpu.OpBindDescriptorSet:
			sets = append(sets, cmd.Set)
		}
	}
	// floor and column are opaque, leaves are alpha-tested.
	if want := []int{0, 6, 3}; !reflect.DeepEqual(draws, want) {
		t.Errorf("first indices drawn = %v, want %v", draws, want)
	}
	stone, _ := f.inputs.Bindings.MaterialSet(0)
	leaf, _ := f.inputs.Bindings.MaterialSet(1)
	if len(sets) < 3 || sets[0] != stone || sets[1] != stone || sets[2] != leaf {
		t.Errorf("material sets bound = %v, want [%d %d %d ...]", sets, stone, stone, leaf)
	}
}

func TestDeferredWithoutSSAO(t *testing.T) {
	f := newFixture(t, testScene())
	f.inputs.SSAOEnabled = false
	g, err := Deferred(f.inputs)
	if err != nil {
		t.Fatalf("Deferred() error = %v", err)
	}
	if got := passNames(g); !reflect.DeepEqual(got, []string{"gbuffer", "composition"}) {
		t.Fatalf("passes = %v", got)
	}

	offscreen, onscreen := f.record(t, g, 0)
	if got := offscreen.BoundPipelines(); !reflect.DeepEqual(got, []string{pipeline.SceneSolid, pipeline.SceneBlend}) {
		t.Errorf("offscreen pipelines = %v", got)
	}
	if got := onscreen.BoundPipelines(); !reflect.DeepEqual(got, []string{pipeline.CompositionNoSSAO}) {
		t.Errorf("onscreen pipelines = %v", got)
	}
	f.submit(t, g)
	f.submit(t, g)
	if v := f.device.Violations(); len(v) != 0 {
		t.Errorf("violations = %v", v)
	}
}

func TestDebugViewDrawsVisualizationBeforeComposition(t *testing.T) {
	f := newFixture(t, testScene())
	f.inputs.DebugView = true
	g, err := Deferred(f.inputs)
	if err != nil {
		t.Fatal(err)
	}
	_, onscreen := f.record(t, g, 1)

	if got, want := onscreen.BoundPipelines(), []string{pipeline.Debug, pipeline.CompositionSSAO}; !reflect.DeepEqual(got, want) {
		t.Errorf("onscreen pipelines = %v, want %v", got, want)
	}
	var viewports []gpu.Viewport
	for _, cmd := range onscreen.Commands() {
		if cmd.Op == simgpu.OpSetViewport {
			viewports = append(viewports, cmd.Viewport)
		}
	}
	// The screen quad block places the composition; both draws share the
	// full viewport.
	want := []gpu.Viewport{{Width: 64, Height: 48, MaxDepth: 1}}
	if !reflect.DeepEqual(viewports, want) {
		t.Errorf("viewports = %+v, want %+v", viewports, want)
	}
	f.submit(t, g)
	if v := f.device.Violations(); len(v) != 0 {
		t.Errorf("violations = %v", v)
	}
}

func TestEmptySceneStillClearsTheGBuffer(t *testing.T) {
	f := newFixture(t, scene.Empty())
	g, err := Deferred(f.inputs)
	if err != nil {
		t.Fatal(err)
	}
	offscreen, _ := f.record(t, g, 0)
	if got := offscreen.BoundPipelines(); !reflect.DeepEqual(got, []string{pipeline.SSAOGenerate, pipeline.SSAOBlur}) {
		t.Errorf("offscreen pipelines = %v", got)
	}
	f.submit(t, g)
	if v := f.device.Violations(); len(v) != 0 {
		t.Errorf("violations = %v", v)
	}
}

func TestValidate(t *testing.T) {
	a, b := &attachment.Attachment{}, &attachment.Attachment{}
	writesA := attachment.NewTargetSet(nil, "a", []*attachment.Attachment{a}, nil)
	writesB := attachment.NewTargetSet(nil, "b", []*attachment.Attachment{b}, nil)

	tests := []struct {
		name  string
		graph func() *Graph
		want  string
	}{
		{"valid", func() *Graph {
			return New().
				Add(&Pass{Name: "first", Targets: writesA}).
				Add(&Pass{Name: "second", Targets: writesB, Reads: []*attachment.Attachment{a}}).
				Add(&Pass{Name: "onscreen", Reads: []*attachment.Attachment{a, b}})
		}, ""},
		{"external read", func() *Graph {
			return New().External(b).
				Add(&Pass{Name: "first", Targets: writesA}).
				Add(&Pass{Name: "onscreen", Reads: []*attachment.Attachment{a, b}})
		}, ""},
		{"empty", New, "empty"},
		{"read before write", func() *Graph {
			return New().
				Add(&Pass{Name: "first", Targets: writesA, Reads: []*attachment.Attachment{b}}).
				Add(&Pass{Name: "second", Targets: writesB}).
				Add(&Pass{Name: "onscreen"})
		}, "no earlier pass writes"},
		{"read own target", func() *Graph {
			return New().
				Add(&Pass{Name: "first", Targets: writesA, Reads: []*attachment.Attachment{a}}).
				Add(&Pass{Name: "onscreen"})
		}, "its own attachment"},
		{"read own external target", func() *Graph {
			return New().External(a).
				Add(&Pass{Name: "first", Targets: writesA, Reads: []*attachment.Attachment{a}}).
				Add(&Pass{Name: "onscreen"})
		}, "its own attachment"},
		{"two writers", func() *Graph {
			return New().
				Add(&Pass{Name: "first", Targets: writesA}).
				Add(&Pass{Name: "second", Targets: writesA}).
				Add(&Pass{Name: "onscreen"})
		}, "written by"},
		{"onscreen not last", func() *Graph {
			return New().
				Add(&Pass{Name: "onscreen"}).
				Add(&Pass{Name: "first", Targets: writesA})
		}, "is not last"},
		{"last offscreen", func() *Graph {
			return New().Add(&Pass{Name: "first", Targets: writesA})
		}, "does not render onscreen"},
		{"duplicate name", func() *Graph {
			return New().
				Add(&Pass{Name: "first", Targets: writesA}).
				Add(&Pass{Name: "first", Targets: writesB}).
				Add(&Pass{Name: "onscreen"})
		}, "appears twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.graph().Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, gpu.ErrConfiguration) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want ErrConfiguration containing %q", err, tt.want)
			}
		})
	}
}

func TestEncoderFailsFastAndSticks(t *testing.T) {
	f := newFixture(t, testScene())
	cmd, _ := f.device.AllocateCommandBuffer()
	if err := cmd.Begin(); err != nil {
		t.Fatal(err)
	}

	enc := NewEncoder(cmd, f.registry)
	enc.Draw(3)
	if err := enc.Err(); !errors.Is(err, gpu.ErrConfiguration) {
		t.Fatalf("Draw() outside a pass error = %v, want ErrConfiguration", err)
	}

	enc = NewEncoder(cmd, f.registry)
	enc.BeginPass("ssao", gpu.RenderPassBegin{
		RenderPass:  f.inputs.SSAO.RenderPass(),
		Framebuffer: f.inputs.SSAO.Framebuffer(),
		Area:        gpu.Rect{Extent: f.extent},
		Clear:       f.inputs.SSAO.ClearValues(),
	})
	enc.BindPipeline("shadow")
	err := enc.Err()
	if !errors.Is(err, gpu.ErrConfiguration) || !strings.Contains(err.Error(), `"shadow"`) {
		t.Fatalf("BindPipeline(shadow) error = %v", err)
	}
	before := len(cmd.(*simgpu.CommandBuffer).Commands())
	enc.BindPipeline(pipeline.SSAOGenerate)
	enc.Draw(3)
	enc.EndPass()
	if got := len(cmd.(*simgpu.CommandBuffer).Commands()); got != before {
		t.Errorf("%d commands recorded after a failure", got-before)
	}
	if enc.Err() != err {
		t.Errorf("Err() changed to %v", enc.Err())
	}
}
