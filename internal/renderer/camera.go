package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/config"
	"github.com/vkngwrapper/sponza/internal/uniform"
)

// Camera is an orbit camera around the scene origin.
type Camera struct {
	FOV      float32
	Near     float32
	Far      float32
	Zoom     float32
	Rotation mgl32.Vec3
	Position mgl32.Vec3
}

func NewCamera(c config.Camera) Camera {
	return Camera{
		FOV:      c.FOV,
		Near:     c.Near,
		Far:      c.Far,
		Zoom:     c.Zoom,
		Rotation: c.Rotation,
		Position: c.Position,
	}
}

func (c Camera) Projection(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), aspect, c.Near, c.Far)
}

// View translates by Zoom along z, then rotates around x, y and z.
func (c Camera) View() mgl32.Mat4 {
	view := mgl32.Translate3D(0, 0, c.Zoom)
	view = view.Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(c.Rotation.X())))
	view = view.Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(c.Rotation.Y())))
	view = view.Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(c.Rotation.Z())))
	return view
}

func (c Camera) Model() mgl32.Mat4 {
	return mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())
}

// Eye is the viewer position the composition shades against.
func (c Camera) Eye() mgl32.Vec4 {
	return mgl32.Vec4{0, 0, -c.Zoom, 0}
}

// Orbit rotates the camera by dx degrees around y and dy degrees around x.
func (c *Camera) Orbit(dx, dy float32) {
	c.Rotation[0] += dy
	c.Rotation[1] += dx
}

// Dolly moves the camera along its view axis.
func (c *Camera) Dolly(d float32) {
	c.Zoom += d
}

const (
	lightRadius    = 100
	linearFalloff  = 0.004
	quadFalloff    = 0.003
	fireOrbit      = 2.5
	fireLightIndex = 5
)

var (
	rowColors = [5]mgl32.Vec4{
		{1, 0, 0, 1},
		{1, 1, 1, 1},
		{1, 0, 0, 1},
		{0, 0, 1, 1},
		{1, 0, 0, 1},
	}
	fireColor = mgl32.Vec4{1, 0.5, 0, 1}
)

// Lights returns the light block at animation time timer, a fraction of
// one fire orbit in [0,1). Five lights stand in a row along x; two orange
// fire lights sit by the braziers and the first of them circles its
// brazier once per orbit. With follow set every light is carried along
// with the eye.
func Lights(cam Camera, timer float32, follow bool) uniform.LightsFS {
	var block uniform.LightsFS
	light := func(pos, color mgl32.Vec4) uniform.Light {
		return uniform.Light{
			Position:         pos,
			Color:            color,
			Radius:           lightRadius,
			QuadraticFalloff: quadFalloff,
			LinearFalloff:    linearFalloff,
		}
	}
	for i, color := range rowColors {
		block.Lights[i] = light(mgl32.Vec4{(float32(i) - 2.5) * 50, 1, -2.5, 0}, color)
	}

	angle := float64(mgl32.DegToRad(360 * timer))
	fire := mgl32.Vec4{
		-60 + fireOrbit*float32(math.Sin(angle)),
		7,
		-18 + fireOrbit*float32(math.Cos(angle)),
		0,
	}
	block.Lights[fireLightIndex] = light(fire, fireColor)
	block.Lights[fireLightIndex+1] = light(mgl32.Vec4{-60, 7, 14, 0}, fireColor)

	block.ViewPos = cam.Eye()
	block.View = cam.View()
	block.Model = cam.Model()
	if follow {
		for i := range block.Lights {
			block.Lights[i].Position = block.Lights[i].Position.Add(block.ViewPos)
		}
	}
	return block
}

// advance moves timer forward by seconds*speed orbits, wrapping to [0,1).
func advance(timer float32, seconds float64, speed float32) float32 {
	t := float64(timer) + seconds*float64(speed)
	return float32(t - math.Floor(t))
}

// ScreenProjection is the projection of the composition's unit quad. The
// debug view doubles the extent so the quad covers one quarter.
func ScreenProjection(debug bool) mgl32.Mat4 {
	if debug {
		return mgl32.Ortho(0, 2, 0, 2, -1, 1)
	}
	return mgl32.Ortho(0, 1, 0, 1, -1, 1)
}

// ScreenModel moves the unit quad into the lower-right quarter in debug
// view.
func ScreenModel(debug bool) mgl32.Mat4 {
	if debug {
		return mgl32.Translate3D(1, 1, 0)
	}
	return mgl32.Ident4()
}
