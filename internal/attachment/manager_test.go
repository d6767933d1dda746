package attachment

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/gpu/simgpu"
)

func TestCreateTransitionsOnceIntoFirstUseLayout(t *testing.T) {
	tests := []struct {
		name   string
		format gpu.Format
		usage  Usage
		want   gpu.ImageLayout
	}{
		{"sampled color", gpu.FormatRGBA16Float, UsageColor | UsageSampled, gpu.LayoutShaderReadOnly},
		{"color only", gpu.FormatRGBA8Unorm, UsageColor, gpu.LayoutColorAttachment},
		{"depth", gpu.FormatD32Float, UsageDepthStencil, gpu.LayoutDepthStencilAttachment},
		{"depth stencil", gpu.FormatD24UnormS8, UsageDepthStencil, gpu.LayoutDepthStencilAttachment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := simgpu.New()
			m := NewManager(device)
			a, err := m.Create(Desc{Name: tt.name, Format: tt.format, Usage: tt.usage, Extent: gpu.Extent{Width: 64, Height: 32}})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if got := device.ImageLayout(a.Image()); got != tt.want {
				t.Errorf("image layout = %s, want %s", got, tt.want)
			}
			if got := a.Layout(); got != tt.want {
				t.Errorf("Layout() = %s, want %s", got, tt.want)
			}
			if got := device.ImageTransitions(a.Image()); got != 1 {
				t.Errorf("transitions = %d, want 1", got)
			}
			if got := device.ViewImage(a.View()); got != a.Image() {
				t.Errorf("view image = %d, want %d", got, a.Image())
			}
			if len(device.Violations()) != 0 {
				t.Errorf("violations = %v", device.Violations())
			}
		})
	}
}

func TestCreateFailsWithoutDeviceLocalMemory(t *testing.T) {
	device := simgpu.New(simgpu.WithMemoryTypes(gpu.MemoryType{Properties: gpu.MemoryHostVisible | gpu.MemoryHostCoherent}))
	m := NewManager(device)

	_, err := m.Create(Desc{Name: "position", Format: gpu.FormatRGBA16Float, Usage: UsageColor | UsageSampled, Extent: gpu.Extent{Width: 8, Height: 8}})
	if !errors.Is(err, gpu.ErrResourceExhausted) {
		t.Fatalf("Create() error = %v, want ErrResourceExhausted", err)
	}
	if !gpu.IsFatal(err) {
		t.Errorf("IsFatal(%v) = false", err)
	}
	if live := device.LiveObjects(); len(live) != 0 {
		t.Errorf("live objects after failed create = %v", live)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestCreateRejectsInconsistentDescs(t *testing.T) {
	tests := []struct {
		name string
		desc Desc
	}{
		{"depth usage with color format", Desc{Name: "a", Format: gpu.FormatRGBA8Unorm, Usage: UsageDepthStencil}},
		{"color usage with depth format", Desc{Name: "b", Format: gpu.FormatD32Float, Usage: UsageColor}},
		{"no target usage", Desc{Name: "c", Format: gpu.FormatRGBA8Unorm, Usage: UsageSampled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.desc.Extent = gpu.Extent{Width: 4, Height: 4}
			_, err := NewManager(simgpu.New()).Create(tt.desc)
			if !errors.Is(err, gpu.ErrConfiguration) {
				t.Errorf("Create() error = %v, want ErrConfiguration", err)
			}
		})
	}

	m := NewManager(simgpu.New())
	desc := Desc{Name: "dup", Format: gpu.FormatRGBA8Unorm, Usage: UsageColor, Extent: gpu.Extent{Width: 4, Height: 4}}
	if _, err := m.Create(desc); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(desc); !errors.Is(err, gpu.ErrConfiguration) {
		t.Errorf("duplicate Create() error = %v, want ErrConfiguration", err)
	}
}

func createDeferredSet(t *testing.T, m *Manager, extent gpu.Extent) []*Attachment {
	t.Helper()
	descs := []Desc{
		{Name: "position", Format: gpu.FormatRGBA16Float, Usage: UsageColor | UsageSampled},
		{Name: "normal", Format: gpu.FormatRGBA16Float, Usage: UsageColor | UsageSampled},
		{Name: "albedo", Format: gpu.FormatRGBA8Unorm, Usage: UsageColor | UsageSampled},
		{Name: "depth", Format: gpu.FormatD32Float, Usage: UsageDepthStencil},
		{Name: "ssao", Format: gpu.FormatR8Unorm, Usage: UsageColor | UsageSampled},
		{Name: "ssao.blur", Format: gpu.FormatR8Unorm, Usage: UsageColor | UsageSampled},
	}
	var out []*Attachment
	for _, d := range descs {
		d.Extent = extent
		a, err := m.Create(d)
		if err != nil {
			t.Fatalf("Create(%s) error = %v", d.Name, err)
		}
		out = append(out, a)
	}
	return out
}

func TestResizeRecreatesEveryAttachment(t *testing.T) {
	device := simgpu.New()
	m := NewManager(device)
	small := gpu.Extent{Width: 800, Height: 600}
	large := gpu.Extent{Width: 1920, Height: 1080}
	attachments := createDeferredSet(t, m, small)

	before := map[string]gpu.ImageHandle{}
	for _, a := range attachments {
		before[a.Name()] = a.Image()
	}

	if err := m.ResizeAll(large); err != nil {
		t.Fatalf("ResizeAll() error = %v", err)
	}

	if m.Len() != 6 {
		t.Errorf("Len() = %d, want 6", m.Len())
	}
	for _, a := range m.All() {
		if a.Extent() != large {
			t.Errorf("%s extent = %s, want %s", a.Name(), a.Extent(), large)
		}
		if a.Image() == before[a.Name()] {
			t.Errorf("%s image was not recreated", a.Name())
		}
		desc, ok := device.ImageDesc(a.Image())
		if !ok || desc.Extent != large {
			t.Errorf("%s device image extent = %v, want %s", a.Name(), desc.Extent, large)
		}
		if _, ok := device.ImageDesc(before[a.Name()]); ok {
			t.Errorf("%s old image still alive", a.Name())
		}
	}
	if got := device.Live("image"); got != 6 {
		t.Errorf("live images = %d, want 6", got)
	}

	m.Destroy()
	if live := device.LiveObjects(); len(live) != 0 {
		t.Errorf("live objects after Destroy = %v", live)
	}
}

func TestTargetSetLifecycle(t *testing.T) {
	device := simgpu.New()
	m := NewManager(device)
	attachments := createDeferredSet(t, m, gpu.Extent{Width: 320, Height: 240})

	gbuffer := NewTargetSet(device, "gbuffer", attachments[:3], attachments[3])
	if err := gbuffer.Create(); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	desc, ok := device.RenderPass(gbuffer.RenderPass())
	if !ok {
		t.Fatal("render pass not created")
	}
	if len(desc.Color) != 3 || desc.Depth == nil {
		t.Fatalf("render pass has %d color attachments, depth %v", len(desc.Color), desc.Depth != nil)
	}
	for i, c := range desc.Color {
		if c.InitialLayout != attachments[i].Layout() {
			t.Errorf("color %d initial layout = %s, want %s", i, c.InitialLayout, attachments[i].Layout())
		}
		if c.LoadOp != gpu.LoadOpClear {
			t.Errorf("color %d is not cleared", i)
		}
	}

	clear := gbuffer.ClearValues()
	if len(clear) != 4 {
		t.Fatalf("len(ClearValues()) = %d, want 4", len(clear))
	}
	for i := 0; i < 3; i++ {
		if clear[i].IsDepth || clear[i].Color != [4]float32{} {
			t.Errorf("clear[%d] = %+v, want transparent black", i, clear[i])
		}
	}
	if !clear[3].IsDepth || clear[3].Depth != 1 || clear[3].Stencil != 0 {
		t.Errorf("clear[3] = %+v, want depth 1.0", clear[3])
	}

	large := gpu.Extent{Width: 640, Height: 480}
	if err := m.ResizeAll(large); err != nil {
		t.Fatal(err)
	}
	oldFramebuffer := gbuffer.Framebuffer()
	if err := gbuffer.Resize(); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if gbuffer.Framebuffer() == oldFramebuffer {
		t.Error("framebuffer was not recreated")
	}
	if gbuffer.Extent() != large {
		t.Errorf("Extent() = %s, want %s", gbuffer.Extent(), large)
	}
	if got := device.Live("framebuffer"); got != 1 {
		t.Errorf("live framebuffers = %d, want 1", got)
	}

	gbuffer.Destroy()
	if got := device.Live("render-pass"); got != 0 {
		t.Errorf("live render passes = %d, want 0", got)
	}
}

func TestTargetSetRejectsMixedExtents(t *testing.T) {
	device := simgpu.New()
	m := NewManager(device)
	a, err := m.Create(Desc{Name: "a", Format: gpu.FormatRGBA8Unorm, Usage: UsageColor, Extent: gpu.Extent{Width: 4, Height: 4}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create(Desc{Name: "b", Format: gpu.FormatRGBA8Unorm, Usage: UsageColor, Extent: gpu.Extent{Width: 8, Height: 8}})
	if err != nil {
		t.Fatal(err)
	}

	set := NewTargetSet(device, "mixed", []*Attachment{a, b}, nil)
	if err := set.Create(); !errors.Is(err, gpu.ErrConfiguration) {
		t.Errorf("Create() error = %v, want ErrConfiguration", err)
	}
	if got := device.Live("render-pass"); got != 0 {
		t.Errorf("live render passes after failed Create = %d, want 0", got)
	}
}

func TestRepeatedResizeReusesFramebufferScope(t *testing.T) {
	device := simgpu.New()
	m := NewManager(device)
	defer m.Destroy()
	attachments := createDeferredSet(t, m, gpu.Extent{Width: 64, Height: 64})

	gbuffer := NewTargetSet(device, "gbuffer", attachments[:3], attachments[3])
	if err := gbuffer.Create(); err != nil {
		t.Fatal(err)
	}
	defer gbuffer.Destroy()
	present := NewPresentTarget(device, gpu.FormatBGRA8Unorm)
	views := []gpu.ImageViewHandle{attachments[0].View(), attachments[1].View()}
	if err := present.Create(views, gpu.Extent{Width: 64, Height: 64}); err != nil {
		t.Fatal(err)
	}
	defer present.Destroy()

	for i := 1; i <= 5; i++ {
		extent := gpu.Extent{Width: 64 + 16*i, Height: 64}
		if err := m.ResizeAll(extent); err != nil {
			t.Fatal(err)
		}
		if err := gbuffer.Resize(); err != nil {
			t.Fatalf("resize %d: TargetSet.Resize() error = %v", i, err)
		}
		views := []gpu.ImageViewHandle{attachments[0].View(), attachments[1].View()}
		if err := present.Resize(views, extent); err != nil {
			t.Fatalf("resize %d: PresentTarget.Resize() error = %v", i, err)
		}
		if n := gbuffer.scope.Children(); n != 1 {
			t.Errorf("resize %d: target set has %d child scopes, want 1", i, n)
		}
		if n := present.scope.Children(); n != 1 {
			t.Errorf("resize %d: present target has %d child scopes, want 1", i, n)
		}
		if got := device.Live("framebuffer"); got != 3 {
			t.Errorf("resize %d: live framebuffers = %d, want 3", i, got)
		}
	}
}
