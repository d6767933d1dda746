// Package scene holds the geometry and materials the renderer draws and
// loads them from Wavefront OBJ files.
package scene

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// ErrAssetLoad marks failures to read scene files. The renderer logs them
// and continues with an empty scene.
var ErrAssetLoad = errors.New("asset load failed")

// Vertex is the interleaved vertex layout of the G-Buffer program.
type Vertex struct {
	Position mgl32.Vec3
	UV       mgl32.Vec2
	Color    mgl32.Vec3
	Normal   mgl32.Vec3
	Tangent  mgl32.Vec3
}

// VertexLayout describes Vertex for pipeline creation.
func VertexLayout() *gpu.VertexLayout {
	v := Vertex{}
	return &gpu.VertexLayout{
		Stride: int(unsafe.Sizeof(v)),
		Attributes: []gpu.VertexAttribute{
			{Location: 0, Format: gpu.FormatRGB32Float, Offset: int(unsafe.Offsetof(v.Position))},
			{Location: 1, Format: gpu.FormatRG32Float, Offset: int(unsafe.Offsetof(v.UV))},
			{Location: 2, Format: gpu.FormatRGB32Float, Offset: int(unsafe.Offsetof(v.Color))},
			{Location: 3, Format: gpu.FormatRGB32Float, Offset: int(unsafe.Offsetof(v.Normal))},
			{Location: 4, Format: gpu.FormatRGB32Float, Offset: int(unsafe.Offsetof(v.Tangent))},
		},
	}
}

// Material references its textures by path. An empty path means the
// channel is absent and a placeholder is bound in its place.
type Material struct {
	Name     string
	Diffuse  string
	Specular string
	Normal   string
	// AlphaTest materials are drawn after the opaque ones with the
	// alpha-tested pipeline.
	AlphaTest bool
}

// Mesh is an index range into the shared vertex and index buffers drawn
// with exactly one material.
type Mesh struct {
	Name         string
	FirstIndex   int
	IndexCount   int
	VertexOffset int
	Material     int
}

type Scene struct {
	Vertices  []Vertex
	Indices   []uint32
	Meshes    []Mesh
	Materials []Material
}

// Empty returns a scene with nothing to draw.
func Empty() *Scene {
	return &Scene{}
}

func (s *Scene) IsEmpty() bool {
	return len(s.Meshes) == 0
}

// Validate checks that every mesh references one existing material and
// that its index range fits the index buffer.
func (s *Scene) Validate() error {
	for i, m := range s.Meshes {
		if m.Material < 0 || m.Material >= len(s.Materials) {
			return gpu.Configurationf("mesh %d (%s) references material %d of %d", i, m.Name, m.Material, len(s.Materials))
		}
		if m.IndexCount <= 0 || m.FirstIndex < 0 || m.FirstIndex+m.IndexCount > len(s.Indices) {
			return gpu.Configurationf("mesh %d (%s) index range [%d,%d) outside %d indices",
				i, m.Name, m.FirstIndex, m.FirstIndex+m.IndexCount, len(s.Indices))
		}
	}
	for i, idx := range s.Indices {
		if int(idx) >= len(s.Vertices) {
			return gpu.Configurationf("index %d references vertex %d of %d", i, idx, len(s.Vertices))
		}
	}
	return nil
}

// Partition splits mesh indices into opaque and alpha-tested groups,
// keeping insertion order within each group.
func (s *Scene) Partition() (opaque, alphaTested []int) {
	for i, m := range s.Meshes {
		if s.Materials[m.Material].AlphaTest {
			alphaTested = append(alphaTested, i)
		} else {
			opaque = append(opaque, i)
		}
	}
	return opaque, alphaTested
}

// TexturePaths returns every distinct texture path referenced by a
// material, in first-reference order.
func (s *Scene) TexturePaths() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range s.Materials {
		for _, p := range []string{m.Diffuse, m.Specular, m.Normal} {
			if p != "" && !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
