package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

func TestTableNeverReusesHandles(t *testing.T) {
	tbl := newTable[gpu.ImageHandle, string]("image")
	a := tbl.add("a")
	if _, ok := tbl.take(a); !ok {
		t.Fatalf("take(%d) found nothing", a)
	}
	b := tbl.add("b")
	if a == b {
		t.Errorf("handle %d reused", a)
	}
	if _, err := tbl.get(a); !errors.Is(err, gpu.ErrConfiguration) {
		t.Errorf("get of a taken handle = %v, want a configuration error", err)
	}
	if got, err := tbl.get(b); err != nil || got != "b" {
		t.Errorf("get(%d) = %q, %v", b, got, err)
	}
	if tbl.len() != 1 {
		t.Errorf("len() = %d, want 1", tbl.len())
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		if got := gpuFormat(vkFormat(f)); got != f {
			t.Errorf("gpuFormat(vkFormat(%v)) = %v", f, got)
		}
	}
}

func TestStageMask(t *testing.T) {
	tests := []struct {
		in   gpu.PipelineStage
		want core1_0.PipelineStageFlags
	}{
		{0, core1_0.PipelineStageTopOfPipe},
		{gpu.StageFragmentShader, core1_0.PipelineStageFragmentShader},
		{gpu.StageEarlyFragmentTests | gpu.StageLateFragmentTests, core1_0.PipelineStageEarlyFragmentTests | core1_0.PipelineStageLateFragmentTests},
		{gpu.StageColorAttachmentOutput | gpu.StageTransfer, core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageTransfer},
	}
	for _, tt := range tests {
		if got := vkStage(tt.in); got != tt.want {
			t.Errorf("vkStage(%b) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAccessMask(t *testing.T) {
	got := vkAccess(gpu.AccessWrites)
	want := core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite | core1_0.AccessTransferWrite
	if got != want {
		t.Errorf("vkAccess(AccessWrites) = %v, want %v", got, want)
	}
	if vkAccess(0) != 0 {
		t.Errorf("vkAccess(0) = %v", vkAccess(0))
	}
}

func TestAspectForDepthFormats(t *testing.T) {
	tests := []struct {
		format gpu.Format
		want   core1_0.ImageAspectFlags
	}{
		{gpu.FormatRGBA16Float, core1_0.ImageAspectColor},
		{gpu.FormatD32Float, core1_0.ImageAspectDepth},
		{gpu.FormatD24UnormS8, core1_0.ImageAspectDepth | core1_0.ImageAspectStencil},
	}
	for _, tt := range tests {
		if got := vkAspect(gpu.AspectFor(tt.format)); got != tt.want {
			t.Errorf("aspect of %v = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestSpecialization(t *testing.T) {
	values, err := specialization([]gpu.SpecConstant{{ID: 0, Value: uint32(1)}, {ID: 1, Value: float32(0.5)}})
	if err != nil {
		t.Fatal(err)
	}
	if values[0] != uint32(1) || values[1] != float32(0.5) {
		t.Errorf("specialization = %v", values)
	}
	if values, _ := specialization(nil); values != nil {
		t.Errorf("specialization(nil) = %v, want nil", values)
	}
	if _, err := specialization([]gpu.SpecConstant{{ID: 2, Value: 1.5}}); !errors.Is(err, gpu.ErrConfiguration) {
		t.Errorf("float64 constant: err = %v, want a configuration error", err)
	}
}

func TestChooseExtent(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 1024, Height: 768},
	}
	tests := []struct {
		requested gpu.Extent
		want      core1_0.Extent2D
	}{
		{gpu.Extent{Width: 800, Height: 600}, core1_0.Extent2D{Width: 800, Height: 600}},
		{gpu.Extent{Width: 1920, Height: 1080}, core1_0.Extent2D{Width: 1024, Height: 768}},
		{gpu.Extent{}, core1_0.Extent2D{Width: 1, Height: 1}},
	}
	for _, tt := range tests {
		if got := chooseExtent(caps, tt.requested); got != tt.want {
			t.Errorf("chooseExtent(%v) = %v, want %v", tt.requested, got, tt.want)
		}
	}

	caps.CurrentExtent = core1_0.Extent2D{Width: 640, Height: 480}
	if got := chooseExtent(caps, gpu.Extent{Width: 800, Height: 600}); got != caps.CurrentExtent {
		t.Errorf("surface extent ignored: got %v", got)
	}
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		min, max int
		want     int
	}{
		{2, 0, 3},
		{2, 8, 3},
		{3, 3, 3},
	}
	for _, tt := range tests {
		caps := &khr_surface.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
		if got := chooseImageCount(caps); got != tt.want {
			t.Errorf("chooseImageCount(min %d, max %d) = %d, want %d", tt.min, tt.max, got, tt.want)
		}
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	unorm := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	srgb := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	if got := chooseSurfaceFormat([]khr_surface.SurfaceFormat{unorm, srgb}); got != srgb {
		t.Errorf("chooseSurfaceFormat = %v, want the sRGB format", got)
	}
	if got := chooseSurfaceFormat([]khr_surface.SurfaceFormat{unorm}); got != unorm {
		t.Errorf("chooseSurfaceFormat fallback = %v", got)
	}
}

func TestChoosePresentMode(t *testing.T) {
	if got := choosePresentMode([]khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}); got != khr_surface.PresentModeMailbox {
		t.Errorf("choosePresentMode = %v, want mailbox", got)
	}
	if got := choosePresentMode(nil); got != khr_surface.PresentModeFIFO {
		t.Errorf("choosePresentMode(nil) = %v, want FIFO", got)
	}
}

func TestVkErrMarksExhaustion(t *testing.T) {
	if vkErr("vkCreateImage", core1_0.VKSuccess, nil) != nil {
		t.Error("vkErr wrapped a nil error")
	}
	err := vkErr("vkAllocateMemory", core1_0.VKErrorOutOfDeviceMemory, errors.New("out of device memory"))
	if !errors.Is(err, gpu.ErrResourceExhausted) {
		t.Errorf("err = %v, want it marked as resource exhaustion", err)
	}
	err = vkErr("vkCreateRenderPass", core1_0.VKErrorDeviceLost, errors.New("device lost"))
	if errors.Is(err, gpu.ErrResourceExhausted) {
		t.Errorf("device loss marked as exhaustion: %v", err)
	}
}
