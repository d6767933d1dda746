package lighting

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/uniform"
)

// viewLights puts the eye at the world origin looking down -z from z=5
// and one white light at the eye.
func viewLights() *uniform.LightsFS {
	l := &uniform.LightsFS{
		ViewPos: mgl32.Vec4{0, 0, 5, 0},
		View:    mgl32.Translate3D(0, 0, -5),
		Model:   mgl32.Ident4(),
	}
	l.Lights[0] = uniform.Light{
		Position: mgl32.Vec4{0, 0, 5, 0},
		Color:    mgl32.Vec4{1, 1, 1, 0},
		Radius:   4,
	}
	return l
}

func testLights() *uniform.LightsFS {
	l := viewLights()
	l.Lights[1] = uniform.Light{
		Position:         mgl32.Vec4{1, -3, 3, 0},
		Color:            mgl32.Vec4{1, 0.8, 0.6, 0},
		Radius:           20,
		QuadraticFalloff: 0.01,
		LinearFalloff:    0.05,
	}
	return l
}

var grey = mgl32.Vec3{0.5, 0.5, 0.5}

var texels = []Texel{
	Encode(mgl32.Vec3{0, 0, -2}, mgl32.Vec3{0, 0, 1}, grey, 0.3, 2),
	Encode(mgl32.Vec3{1, 0, -3}, mgl32.Vec3{0, 1, 1}, mgl32.Vec3{1, 0, 0}, 0, 3),
	Encode(mgl32.Vec3{50, 0, -40}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0.2, 0.4, 0.6}, 1, 40),
}

func approx(a, b mgl32.Vec3) bool {
	return a.ApproxEqualThreshold(b, 1e-5)
}

func TestEncodeMatchesGBufferLayout(t *testing.T) {
	tx := Encode(mgl32.Vec3{1, 2, -3}, mgl32.Vec3{0, 0, -4}, grey, 0.25, 3)
	if tx.Position != (mgl32.Vec4{1, 2, -3, 3}) {
		t.Errorf("Position = %v, want linear depth in w", tx.Position)
	}
	if tx.Normal != (mgl32.Vec4{0.5, 0.5, 0, 1}) {
		t.Errorf("Normal = %v, want the normal remapped to [0,1]", tx.Normal)
	}
	if tx.Albedo != (mgl32.Vec4{0.5, 0.5, 0.5, 0.25}) {
		t.Errorf("Albedo = %v, want specular in alpha", tx.Albedo)
	}
}

func TestShadeMovesLightsIntoViewSpace(t *testing.T) {
	tx := Encode(mgl32.Vec3{0, 0, -2}, mgl32.Vec3{0, 0, 1}, grey, 0, 2)
	ambient := grey.Mul(Ambient)

	// The light sits at the eye, 2 units in front of the texel.
	lit := ambient.Add(grey)
	if got := Shade(tx, viewLights()); !approx(got, lit) {
		t.Errorf("Shade() = %v, want %v", got, lit)
	}

	// Without the view transform the light would be 7 units away, out of
	// its radius.
	world := viewLights()
	world.View = mgl32.Ident4()
	if got := Shade(tx, world); !approx(got, ambient) {
		t.Errorf("Shade() without view = %v, want ambient %v", got, ambient)
	}
}

func TestSpecularComesFromAlbedoAlpha(t *testing.T) {
	dull := Encode(mgl32.Vec3{0, 0, -2}, mgl32.Vec3{0, 0, 1}, grey, 0, 2)
	shiny := Encode(mgl32.Vec3{0, 0, -2}, mgl32.Vec3{0, 0, 1}, grey, 1, 2)

	// Light, eye and normal are aligned, so the full specular lobe adds
	// the light color.
	diff := Shade(shiny, viewLights()).Sub(Shade(dull, viewLights()))
	if !approx(diff, mgl32.Vec3{1, 1, 1}) {
		t.Errorf("specular contribution = %v, want {1 1 1}", diff)
	}
}

func TestOutOfRangeTexelIsAmbientOnly(t *testing.T) {
	got := Shade(texels[2], testLights())
	want := texels[2].Albedo.Vec3().Mul(Ambient)
	if !approx(got, want) {
		t.Errorf("Shade() = %v, want ambient %v", got, want)
	}
}

func TestVariantsAgreeAtFullVisibility(t *testing.T) {
	lights := testLights()
	params := []uniform.SSAOParams{
		{SSAO: 1},
		{SSAO: 1, SSAOBlur: 1},
		{},
	}
	for i, tx := range texels {
		for _, p := range params {
			enabled := Composite(tx, lights, p, true, 1, 1)
			disabled := Composite(tx, lights, p, false, 1, 1)
			if enabled != disabled {
				t.Errorf("texel %d, params %+v: enabled %v, disabled %v", i, p, enabled, disabled)
			}
		}
	}
}

func TestComposite(t *testing.T) {
	lights := testLights()
	tx := texels[0]
	lit := Shade(tx, lights)
	tests := []struct {
		name    string
		params  uniform.SSAOParams
		variant bool
		want    mgl32.Vec3
	}{
		{"raw occlusion", uniform.SSAOParams{SSAO: 1}, true, lit.Mul(0.5)},
		{"blurred occlusion", uniform.SSAOParams{SSAO: 1, SSAOBlur: 1}, true, lit.Mul(0.25)},
		{"disabled variant ignores occlusion", uniform.SSAOParams{SSAO: 1}, false, lit},
		{"ssao flag off", uniform.SSAOParams{}, true, lit},
		{"ssao only", uniform.SSAOParams{SSAO: 1, SSAOOnly: 1}, true, mgl32.Vec3{0.5, 0.5, 0.5}},
		{"ssao only blurred", uniform.SSAOParams{SSAOOnly: 1, SSAOBlur: 1}, false, mgl32.Vec3{0.25, 0.25, 0.25}},
	}
	for _, tt := range tests {
		if got := Composite(tx, lights, tt.params, tt.variant, 0.5, 0.25); !approx(got, tt.want) {
			t.Errorf("%s: Composite() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
