package renderer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/config"
)

func near(a, b mgl32.Vec4) bool {
	return a.ApproxEqualThreshold(b, 1e-4)
}

func TestFireLightCirclesTheBrazier(t *testing.T) {
	cam := NewCamera(config.Default().Camera)
	tests := []struct {
		timer float32
		want  mgl32.Vec4
	}{
		{0, mgl32.Vec4{-60, 7, -15.5, 0}},
		{0.25, mgl32.Vec4{-57.5, 7, -18, 0}},
		{0.5, mgl32.Vec4{-60, 7, -20.5, 0}},
		{0.75, mgl32.Vec4{-62.5, 7, -18, 0}},
	}
	for _, tt := range tests {
		got := Lights(cam, tt.timer, false).Lights[fireLightIndex].Position
		if !near(got, tt.want) {
			t.Errorf("timer %v: fire light at %v, want %v", tt.timer, got, tt.want)
		}
	}
}

func TestStaticLights(t *testing.T) {
	cam := NewCamera(config.Default().Camera)
	block := Lights(cam, 0.3, false)

	for i := 0; i < 5; i++ {
		want := mgl32.Vec4{(float32(i) - 2.5) * 50, 1, -2.5, 0}
		if got := block.Lights[i].Position; !near(got, want) {
			t.Errorf("light %d at %v, want %v", i, got, want)
		}
		if block.Lights[i].Radius != 100 {
			t.Errorf("light %d radius = %v", i, block.Lights[i].Radius)
		}
	}
	if got := block.Lights[6].Position; got != (mgl32.Vec4{-60, 7, 14, 0}) {
		t.Errorf("second fire light at %v", got)
	}
	if block.Lights[5].Color != block.Lights[6].Color {
		t.Errorf("fire light colors differ: %v %v", block.Lights[5].Color, block.Lights[6].Color)
	}
	if block.ViewPos != (mgl32.Vec4{0, 0, 8, 0}) {
		t.Errorf("ViewPos = %v", block.ViewPos)
	}
	if block.View != cam.View() || block.Model != cam.Model() {
		t.Error("light block does not carry the camera matrices")
	}
}

func TestLightsFollowCamera(t *testing.T) {
	cam := NewCamera(config.Default().Camera)
	still := Lights(cam, 0.1, false)
	follow := Lights(cam, 0.1, true)
	for i := range still.Lights {
		want := still.Lights[i].Position.Add(cam.Eye())
		if got := follow.Lights[i].Position; !near(got, want) {
			t.Errorf("light %d at %v, want %v", i, got, want)
		}
	}
}

func TestAdvanceWraps(t *testing.T) {
	tests := []struct {
		timer   float32
		seconds float64
		speed   float32
		want    float32
	}{
		{0, 1, 0.25, 0.25},
		{0.9, 1, 0.25, 0.15},
		{0.5, 4, 0.25, 0.5},
		{0.2, 0, 0.25, 0.2},
	}
	for _, tt := range tests {
		if got := advance(tt.timer, tt.seconds, tt.speed); mgl32.Abs(got-tt.want) > 1e-6 {
			t.Errorf("advance(%v, %v, %v) = %v, want %v", tt.timer, tt.seconds, tt.speed, got, tt.want)
		}
	}
}

func TestScreenProjection(t *testing.T) {
	corner := mgl32.Vec4{1, 1, 0, 1}
	if got := ScreenProjection(false).Mul4x1(corner); !near(got, corner) {
		t.Errorf("full view maps (1,1) to %v", got)
	}
	if got := ScreenProjection(true).Mul4x1(mgl32.Vec4{2, 2, 0, 1}); !near(got, corner) {
		t.Errorf("debug view maps (2,2) to %v", got)
	}
	if got := ScreenProjection(true).Mul4x1(mgl32.Vec4{0, 0, 0, 1}); !near(got, mgl32.Vec4{-1, -1, 0, 1}) {
		t.Errorf("debug view maps the origin to %v", got)
	}
}

// screenVertex computes what the composition vertex stage emits for
// vertex index i: the generated UV and its clip position.
func screenVertex(i int, projection, model mgl32.Mat4) (mgl32.Vec2, mgl32.Vec4) {
	uv := mgl32.Vec2{float32((i << 1) & 2), float32(i & 2)}
	return uv, projection.Mul4(model).Mul4x1(mgl32.Vec4{uv[0], uv[1], 0, 1})
}

func TestScreenQuadPlacement(t *testing.T) {
	tests := []struct {
		name string
		// Clip space corners the UV square [0,1]² must land on.
		min, max mgl32.Vec2
		debug    bool
	}{
		{"full screen", mgl32.Vec2{-1, -1}, mgl32.Vec2{1, 1}, false},
		{"debug lower-right quarter", mgl32.Vec2{0, 0}, mgl32.Vec2{1, 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projection, model := ScreenProjection(tt.debug), ScreenModel(tt.debug)

			// Clip position is affine in UV, so the UV square's corners
			// follow from the generated triangle.
			uv0, p0 := screenVertex(0, projection, model)
			uv1, p1 := screenVertex(1, projection, model)
			uv2, p2 := screenVertex(2, projection, model)
			if uv0 != (mgl32.Vec2{0, 0}) || uv1 != (mgl32.Vec2{2, 0}) || uv2 != (mgl32.Vec2{0, 2}) {
				t.Fatalf("generated UVs = %v %v %v", uv0, uv1, uv2)
			}
			lo := p0.Vec2()
			hi := mgl32.Vec2{
				p0[0] + (p1[0]-p0[0])/2,
				p0[1] + (p2[1]-p0[1])/2,
			}
			if !lo.ApproxEqualThreshold(tt.min, 1e-4) || !hi.ApproxEqualThreshold(tt.max, 1e-4) {
				t.Errorf("UV square maps to %v..%v, want %v..%v", lo, hi, tt.min, tt.max)
			}
			if p0[3] != 1 || p1[3] != 1 || p2[3] != 1 {
				t.Errorf("w = %v %v %v, want 1", p0[3], p1[3], p2[3])
			}
		})
	}
}

func TestOrbitAndDolly(t *testing.T) {
	cam := NewCamera(config.Default().Camera)
	cam.Orbit(10, -5)
	cam.Dolly(2)
	if cam.Rotation != (mgl32.Vec3{-5, 100, 0}) {
		t.Errorf("Rotation = %v", cam.Rotation)
	}
	if cam.Zoom != -6 {
		t.Errorf("Zoom = %v", cam.Zoom)
	}
	if cam.Eye() != (mgl32.Vec4{0, 0, 6, 0}) {
		t.Errorf("Eye() = %v", cam.Eye())
	}
}
