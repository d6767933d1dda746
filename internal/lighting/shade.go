// Package lighting is a host-side reference of the composition fragment
// stage. The renderer never calls it per pixel; tests use it to pin down
// what the composition variants compute from the texels the G-Buffer
// program writes.
package lighting

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/uniform"
)

// Ambient is the fraction of albedo every fragment receives unlit.
const Ambient = 0.15

// SpecularPower is the exponent of the specular lobe.
const SpecularPower = 16

// Texel is one G-Buffer sample as stored in the three color attachments.
type Texel struct {
	// Position is view space with linear depth in w.
	Position mgl32.Vec4
	// Normal is the view-space normal remapped to [0,1].
	Normal mgl32.Vec4
	// Albedo carries the specular intensity in alpha.
	Albedo mgl32.Vec4
}

// Encode packs view-space surface values the way the G-Buffer program
// writes them.
func Encode(position, normal, albedo mgl32.Vec3, specular, depth float32) Texel {
	n := normal
	if n.Len() > 0 {
		n = n.Normalize()
	}
	return Texel{
		Position: position.Vec4(depth),
		Normal:   n.Mul(0.5).Add(mgl32.Vec3{0.5, 0.5, 0.5}).Vec4(1),
		Albedo:   albedo.Vec4(specular),
	}
}

// Composite computes the color the composition program writes. raw and
// blurred are the two occlusion samples; ssaoVariant is the variant's
// specialization constant.
func Composite(t Texel, lights *uniform.LightsFS, params uniform.SSAOParams, ssaoVariant bool, raw, blurred float32) mgl32.Vec3 {
	occlusion := raw
	if params.SSAOBlur == 1 {
		occlusion = blurred
	}
	if params.SSAOOnly == 1 {
		return mgl32.Vec3{occlusion, occlusion, occlusion}
	}

	color := Shade(t, lights)
	if ssaoVariant && params.SSAO == 1 {
		color = color.Mul(occlusion)
	}
	return color
}

// Shade computes the lit color of a texel before occlusion. Light and eye
// positions are moved into the texel's view space by the block's view and
// model matrices.
func Shade(t Texel, lights *uniform.LightsFS) mgl32.Vec3 {
	fragPos := t.Position.Vec3()
	normal := normalize(t.Normal.Vec3().Mul(2).Sub(mgl32.Vec3{1, 1, 1}))
	albedo := t.Albedo.Vec3()
	specularIntensity := t.Albedo.W()

	toView := lights.View.Mul4(lights.Model)
	eye := toView.Mul4x1(lights.ViewPos.Vec3().Vec4(1)).Vec3()
	v := normalize(eye.Sub(fragPos))

	color := albedo.Mul(Ambient)
	for _, light := range lights.Lights {
		l := toView.Mul4x1(light.Position.Vec3().Vec4(1)).Vec3().Sub(fragPos)
		dist := l.Len()
		if dist == 0 || dist > light.Radius {
			continue
		}
		l = l.Mul(1 / dist)
		atten := 1 / (1 + light.LinearFalloff*dist + light.QuadraticFalloff*dist*dist)
		lightColor := light.Color.Vec3()

		nDotL := max(0, normal.Dot(l))
		diffuse := mul(lightColor, albedo).Mul(nDotL * atten)

		r := reflect(l.Mul(-1), normal)
		rDotV := max(0, r.Dot(v))
		specular := lightColor.Mul(specularIntensity * float32(math.Pow(float64(rDotV), SpecularPower)) * atten)

		color = color.Add(diffuse).Add(specular)
	}
	return color
}

func normalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() == 0 {
		return v
	}
	return v.Normalize()
}

func mul(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func reflect(i, n mgl32.Vec3) mgl32.Vec3 {
	return i.Sub(n.Mul(2 * n.Dot(i)))
}
