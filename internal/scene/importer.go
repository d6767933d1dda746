package scene

import (
	"bufio"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/logging"
)

// LoadOBJ reads a Wavefront OBJ file and its material library. Faces are
// triangulated with reversed winding and positions are mirrored on Y to
// match Vulkan clip space. Texture paths in the returned materials are
// relative to the directory of the material library.
func LoadOBJ(objPath, mtlPath string) (*Scene, error) {
	meshFile, err := os.Open(objPath)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open %s", objPath), ErrAssetLoad)
	}
	defer meshFile.Close()

	matFile, err := os.Open(mtlPath)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open %s", mtlPath), ErrAssetLoad)
	}
	defer matFile.Close()

	// The decoder only understands map_Kd, so the library is read twice.
	extra, err := scanMaterialMaps(matFile)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "scan %s", mtlPath), ErrAssetLoad)
	}
	if _, err := matFile.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "rewind %s", mtlPath), ErrAssetLoad)
	}

	decoder, err := obj.DecodeReader(meshFile, matFile)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode %s", objPath), ErrAssetLoad)
	}
	for _, w := range decoder.Warnings {
		logging.Logger().Debug("obj decoder warning", "file", objPath, "warning", w)
	}

	return build(decoder, extra), nil
}

// materialMaps holds the texture statements the obj decoder drops.
type materialMaps struct {
	specular string
	normal   string
	mask     string
}

func scanMaterialMaps(r io.Reader) (map[string]materialMaps, error) {
	maps := map[string]materialMaps{}
	current := ""
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		// Options such as -bm precede the file name, which is always last.
		file := normalizeTexturePath(fields[len(fields)-1])
		switch strings.ToLower(fields[0]) {
		case "newmtl":
			current = fields[1]
			maps[current] = materialMaps{}
		case "map_ks":
			m := maps[current]
			m.specular = file
			maps[current] = m
		case "map_bump", "bump":
			m := maps[current]
			m.normal = file
			maps[current] = m
		case "map_d":
			m := maps[current]
			m.mask = file
			maps[current] = m
		}
	}
	return maps, scanner.Err()
}

func normalizeTexturePath(p string) string {
	return path.Clean(filepath.ToSlash(strings.ReplaceAll(p, `\`, "/")))
}

type corner struct {
	position, uv, normal int
}

// builder accumulates deduplicated vertices and per-material index lists.
type builder struct {
	decoder  *obj.Decoder
	scene    *Scene
	vertices map[corner]uint32
	tangents []mgl32.Vec3
}

func build(decoder *obj.Decoder, extra map[string]materialMaps) *Scene {
	b := &builder{
		decoder:  decoder,
		scene:    &Scene{},
		vertices: map[corner]uint32{},
	}

	materialIndex := map[string]int{}
	materialFor := func(name string) int {
		if i, ok := materialIndex[name]; ok {
			return i
		}
		m := Material{Name: name}
		if mat, ok := decoder.Materials[name]; ok {
			if mat.MapKd != "" {
				m.Diffuse = normalizeTexturePath(mat.MapKd)
			}
		}
		if e, ok := extra[name]; ok {
			m.Specular = e.specular
			m.Normal = e.normal
			if e.mask != "" {
				m.AlphaTest = true
			}
		}
		materialIndex[name] = len(b.scene.Materials)
		b.scene.Materials = append(b.scene.Materials, m)
		return materialIndex[name]
	}

	for _, object := range decoder.Objects {
		// One mesh per material used by the object, in first-use order.
		var order []string
		groups := map[string][]uint32{}
		for _, face := range object.Faces {
			if _, ok := groups[face.Material]; !ok {
				order = append(order, face.Material)
			}
			for i := 2; i < len(face.Vertices); i++ {
				tri := [3]uint32{
					b.vertex(face, 0),
					b.vertex(face, i),
					b.vertex(face, i-1),
				}
				b.accumulateTangent(tri)
				groups[face.Material] = append(groups[face.Material], tri[:]...)
			}
		}

		for _, material := range order {
			indices := groups[material]
			if len(indices) == 0 {
				continue
			}
			b.scene.Meshes = append(b.scene.Meshes, Mesh{
				Name:       object.Name,
				FirstIndex: len(b.scene.Indices),
				IndexCount: len(indices),
				Material:   materialFor(material),
			})
			b.scene.Indices = append(b.scene.Indices, indices...)
		}
	}

	b.finishTangents()
	return b.scene
}

func (b *builder) vertex(face obj.Face, i int) uint32 {
	key := corner{position: face.Vertices[i], uv: -1, normal: -1}
	if i < len(face.Uvs) {
		key.uv = face.Uvs[i]
	}
	if i < len(face.Normals) {
		key.normal = face.Normals[i]
	}
	if index, ok := b.vertices[key]; ok {
		return index
	}

	d := b.decoder
	v := Vertex{Color: mgl32.Vec3{1, 1, 1}}
	if p := key.position; p >= 0 && p*3+2 < len(d.Vertices) {
		v.Position = mgl32.Vec3{d.Vertices[p*3], -d.Vertices[p*3+1], d.Vertices[p*3+2]}
	}
	if t := key.uv; t >= 0 && t*2+1 < len(d.Uvs) {
		v.UV = mgl32.Vec2{d.Uvs[t*2], d.Uvs[t*2+1]}
	}
	if n := key.normal; n >= 0 && n*3+2 < len(d.Normals) {
		v.Normal = mgl32.Vec3{d.Normals[n*3], -d.Normals[n*3+1], d.Normals[n*3+2]}
	}

	index := uint32(len(b.scene.Vertices))
	b.scene.Vertices = append(b.scene.Vertices, v)
	b.tangents = append(b.tangents, mgl32.Vec3{})
	b.vertices[key] = index
	return index
}

func (b *builder) accumulateTangent(tri [3]uint32) {
	v0, v1, v2 := b.scene.Vertices[tri[0]], b.scene.Vertices[tri[1]], b.scene.Vertices[tri[2]]
	e1 := v1.Position.Sub(v0.Position)
	e2 := v2.Position.Sub(v0.Position)
	du1, dv1 := v1.UV[0]-v0.UV[0], v1.UV[1]-v0.UV[1]
	du2, dv2 := v2.UV[0]-v0.UV[0], v2.UV[1]-v0.UV[1]

	det := du1*dv2 - du2*dv1
	if det == 0 {
		return
	}
	tangent := e1.Mul(dv2).Sub(e2.Mul(dv1)).Mul(1 / det)
	for _, i := range tri {
		b.tangents[i] = b.tangents[i].Add(tangent)
	}
}

// finishTangents orthogonalizes the accumulated tangents against the
// vertex normals. Vertices without UV gradients get an arbitrary tangent
// perpendicular to the normal.
func (b *builder) finishTangents() {
	for i := range b.scene.Vertices {
		v := &b.scene.Vertices[i]
		n := v.Normal
		t := b.tangents[i]
		if n.Len() > 0 {
			n = n.Normalize()
			t = t.Sub(n.Mul(n.Dot(t)))
		}
		if t.Len() < 1e-6 {
			t = perpendicular(n)
		}
		v.Tangent = t.Normalize()
	}
}

func perpendicular(n mgl32.Vec3) mgl32.Vec3 {
	axis := mgl32.Vec3{1, 0, 0}
	if n.X() > 0.9 || n.X() < -0.9 {
		axis = mgl32.Vec3{0, 1, 0}
	}
	t := axis.Sub(n.Mul(n.Dot(axis)))
	if t.Len() == 0 {
		return axis
	}
	return t
}
