package renderer

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/config"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/gpu/simgpu"
	"github.com/vkngwrapper/sponza/internal/pipeline"
	"github.com/vkngwrapper/sponza/internal/scene"
)

func shaderFS() fstest.MapFS {
	module := make([]byte, 8)
	binary.LittleEndian.PutUint32(module, 0x07230203)
	fsys := fstest.MapFS{}
	for _, p := range pipeline.Programs {
		fsys[p.Vertex+".vert.spv"] = &fstest.MapFile{Data: module}
		fsys[p.Fragment+".frag.spv"] = &fstest.MapFile{Data: module}
	}
	return fsys
}

// testScene draws an opaque floor, alpha-tested leaves and an opaque
// column. The stone diffuse map exists on disk, the leaf map does not.
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
			{Name: "stone", Diffuse: "stone.png"},
			{Name: "leaf", Diffuse: "missing.png", AlphaTest: true},
		},
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 16; i++ {
		img.SetRGBA(i%4, i/4, color.RGBA{R: 120, G: 110, B: 100, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	device    *simgpu.Device
	swapchain *simgpu.Swapchain
	cfg       config.Config
}

func newFixture(t *testing.T, width, height int) *fixture {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "stone.png"))

	f := &fixture{device: simgpu.New(), cfg: config.Default()}
	f.cfg.Scene.TextureDir = dir
	f.cfg.PipelineCache = filepath.Join(dir, "pipeline_cache_data.bin")

	var err error
	f.swapchain, err = simgpu.NewSwapchain(f.device, gpu.Extent{Width: width, Height: height}, 3)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) renderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(f.device, f.swapchain, f.cfg, testScene(), WithShaderFS(shaderFS(), "."))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		r.Destroy()
		f.swapchain.Destroy()
	})
	return r
}

func (f *fixture) checkViolations(t *testing.T) {
	t.Helper()
	for _, v := range f.device.Violations() {
		t.Errorf("violation: %v", v)
	}
}

func drawFrames(t *testing.T, r *Renderer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		r.Update(16 * time.Millisecond)
		if err := r.DrawFrame(); err != nil {
			t.Fatalf("DrawFrame() error = %v", err)
		}
	}
}

func passNames(r *Renderer) []string {
	var names []string
	for _, p := range r.Graph().Passes() {
		names = append(names, p.Name)
	}
	return names
}

func TestDrawFrames(t *testing.T) {
	f := newFixture(t, 320, 240)
	r := f.renderer(t)

	drawFrames(t, r, 6)
	if r.Frames() != 6 {
		t.Errorf("Frames() = %d, want 6", r.Frames())
	}
	if got := len(f.swapchain.Presented()); got != 6 {
		t.Errorf("presented %d frames, want 6", got)
	}
	if got, want := passNames(r), []string{"gbuffer", "ssao.generate", "ssao.blur", "composition"}; !reflect.DeepEqual(got, want) {
		t.Errorf("passes = %v, want %v", got, want)
	}

	lights, err := r.lights.Read()
	if err != nil {
		t.Fatal(err)
	}
	if want := Lights(r.camera, r.timer, false); lights != want {
		t.Errorf("light block on the device = %+v, want %+v", lights, want)
	}
	f.checkViolations(t)
}

func TestResizeRecreatesEveryAttachment(t *testing.T) {
	f := newFixture(t, 800, 600)
	r := f.renderer(t)
	drawFrames(t, r, 2)

	before := map[string]gpu.ImageHandle{}
	for _, a := range r.Attachments().All() {
		before[a.Name()] = a.Image()
	}
	if len(before) != 6 {
		t.Fatalf("%d attachments, want 6", len(before))
	}

	large := gpu.Extent{Width: 1920, Height: 1080}
	if err := r.Resize(large); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if r.Extent() != large {
		t.Errorf("Extent() = %s, want %s", r.Extent(), large)
	}
	if n := r.Attachments().Len(); n != 6 {
		t.Errorf("%d attachments after resize, want 6", n)
	}
	for _, a := range r.Attachments().All() {
		if a.Extent() != large {
			t.Errorf("%s extent = %s, want %s", a.Name(), a.Extent(), large)
		}
		if a.Image() == before[a.Name()] {
			t.Errorf("%s image was not recreated", a.Name())
		}
	}
	if got := r.gbuffer.Extent(); got != large {
		t.Errorf("gbuffer framebuffer extent = %s", got)
	}
	if got := r.present.Extent(); got != large {
		t.Errorf("onscreen framebuffer extent = %s", got)
	}

	drawFrames(t, r, 2)
	f.checkViolations(t)
}

func TestResizeToEmptyExtentIsIgnored(t *testing.T) {
	f := newFixture(t, 64, 64)
	r := f.renderer(t)
	if err := r.Resize(gpu.Extent{Width: 0, Height: 64}); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if r.Extent() != (gpu.Extent{Width: 64, Height: 64}) {
		t.Errorf("Extent() = %s", r.Extent())
	}
	drawFrames(t, r, 1)
}

func TestToggleSSAOTwiceRestoresTheRenderer(t *testing.T) {
	f := newFixture(t, 128, 96)
	r := f.renderer(t)
	variants := r.Pipelines().Names()
	passes := passNames(r)

	if err := r.ToggleSSAO(); err != nil {
		t.Fatalf("ToggleSSAO() error = %v", err)
	}
	if r.SSAOEnabled() {
		t.Fatal("SSAO still enabled")
	}
	if got := passNames(r); !reflect.DeepEqual(got, []string{"gbuffer", "composition"}) {
		t.Errorf("passes without SSAO = %v", got)
	}
	if got := r.Pipelines().Names(); !reflect.DeepEqual(got, variants) {
		t.Errorf("variants without SSAO = %v, want %v", got, variants)
	}
	drawFrames(t, r, 2)
	params, err := r.ssaoParams.Read()
	if err != nil {
		t.Fatal(err)
	}
	if params.SSAO != 0 {
		t.Errorf("SSAO flag = %d after disabling", params.SSAO)
	}

	if err := r.ToggleSSAO(); err != nil {
		t.Fatalf("ToggleSSAO() error = %v", err)
	}
	if got := r.Pipelines().Names(); !reflect.DeepEqual(got, variants) {
		t.Errorf("variants = %v, want %v", got, variants)
	}
	if got := passNames(r); !reflect.DeepEqual(got, passes) {
		t.Errorf("passes = %v, want %v", got, passes)
	}
	drawFrames(t, r, 2)
	f.checkViolations(t)
}

func TestToggleDebugViewChangesScreenProjection(t *testing.T) {
	f := newFixture(t, 128, 96)
	r := f.renderer(t)
	drawFrames(t, r, 1)
	offscreen, _ := r.recorder.Offscreen()

	if err := r.ToggleDebugView(); err != nil {
		t.Fatalf("ToggleDebugView() error = %v", err)
	}
	drawFrames(t, r, 1)

	screen, err := r.screenVS.Read()
	if err != nil {
		t.Fatal(err)
	}
	if screen.Projection != ScreenProjection(true) || screen.Model != ScreenModel(true) {
		t.Errorf("screen block = %+v, want the debug placement", screen)
	}
	if after, _ := r.recorder.Offscreen(); after != offscreen {
		t.Error("offscreen sequence was re-recorded for a debug view toggle")
	}
	onscreen, _ := r.recorder.Onscreen(0)
	if got := onscreen.(*simgpu.CommandBuffer).BoundPipelines(); len(got) == 0 || got[0] != pipeline.Debug {
		t.Errorf("onscreen pipelines = %v, want %s first", got, pipeline.Debug)
	}
	f.checkViolations(t)
}

func TestUniformOnlyToggles(t *testing.T) {
	f := newFixture(t, 64, 64)
	r := f.renderer(t)
	builds := r.bindings.Builds()
	offscreen, _ := r.recorder.Offscreen()

	r.ToggleSSAOOnly()
	r.ToggleSSAOBlur()
	r.ToggleLightsFollowCamera()
	drawFrames(t, r, 1)

	params, err := r.ssaoParams.Read()
	if err != nil {
		t.Fatal(err)
	}
	if params.SSAOOnly != 1 || params.SSAOBlur != 0 || params.SSAO != 1 {
		t.Errorf("ssao params = only %d blur %d ssao %d", params.SSAOOnly, params.SSAOBlur, params.SSAO)
	}
	lights, err := r.lights.Read()
	if err != nil {
		t.Fatal(err)
	}
	if want := Lights(r.camera, r.timer, true); lights != want {
		t.Errorf("lights do not follow the camera: %+v", lights.Lights[0].Position)
	}
	if after, _ := r.recorder.Offscreen(); after != offscreen || r.bindings.Builds() != builds {
		t.Error("uniform-only toggle rebuilt sequences or bindings")
	}
	f.checkViolations(t)
}

func TestOutOfDateAcquireResizes(t *testing.T) {
	f := newFixture(t, 64, 64)
	r := f.renderer(t)
	drawFrames(t, r, 1)
	builds := r.bindings.Builds()

	f.swapchain.OutOfDate = true
	if err := r.DrawFrame(); err != nil {
		t.Fatalf("DrawFrame() error = %v", err)
	}
	if f.swapchain.OutOfDate {
		t.Error("presenter was not resized")
	}
	if r.Frames() != 1 {
		t.Errorf("Frames() = %d, want the out-of-date frame skipped", r.Frames())
	}
	if r.bindings.Builds() != builds+1 {
		t.Errorf("descriptor sets built %d times, want %d", r.bindings.Builds(), builds+1)
	}

	drawFrames(t, r, 2)
	f.checkViolations(t)
}

func TestDestroyReleasesEverything(t *testing.T) {
	f := newFixture(t, 64, 64)
	r, err := New(f.device, f.swapchain, f.cfg, testScene(), WithShaderFS(shaderFS(), "."))
	if err != nil {
		t.Fatal(err)
	}
	drawFrames(t, r, 3)
	r.Destroy()
	f.swapchain.Destroy()

	if live := f.device.LiveObjects(); len(live) != 0 {
		t.Errorf("live objects after Destroy = %v", live)
	}
	if _, err := os.Stat(f.cfg.PipelineCache); err != nil {
		t.Errorf("pipeline cache not written: %v", err)
	}
	f.checkViolations(t)
}

func TestNewReleasesPartialState(t *testing.T) {
	f := newFixture(t, 64, 64)
	shaders := shaderFS()
	delete(shaders, "composition.frag.spv")

	_, err := New(f.device, f.swapchain, f.cfg, testScene(), WithShaderFS(shaders, "."))
	if err == nil {
		t.Fatal("New() without the composition program succeeded")
	}
	f.swapchain.Destroy()
	if live := f.device.LiveObjects(); len(live) != 0 {
		t.Errorf("live objects after failed New = %v", live)
	}
}

func TestNewRejectsInconsistentScene(t *testing.T) {
	f := newFixture(t, 64, 64)
	defer f.swapchain.Destroy()
	s := testScene()
	s.Meshes[1].Material = 7

	_, err := New(f.device, f.swapchain, f.cfg, s, WithShaderFS(shaderFS(), "."))
	if !errors.Is(err, gpu.ErrConfiguration) {
		t.Errorf("New() error = %v, want ErrConfiguration", err)
	}
}

func TestEmptyScene(t *testing.T) {
	f := newFixture(t, 64, 64)
	r, err := New(f.device, f.swapchain, f.cfg, nil, WithShaderFS(shaderFS(), "."))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		r.Destroy()
		f.swapchain.Destroy()
	})
	drawFrames(t, r, 2)
	f.checkViolations(t)
}
