package pipeline

import (
	"io/fs"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

const spirvMagic = 0x07230203

// Program names the two stages of a pipeline. The stages are read from
// <dir>/<Vertex>.vert.spv and <dir>/<Fragment>.frag.spv.
type Program struct {
	Vertex   string
	Fragment string
}

func (p Program) String() string {
	if p.Vertex == p.Fragment {
		return p.Vertex
	}
	return p.Vertex + "+" + p.Fragment
}

// ShaderSource loads compiled shader stages from a file system.
type ShaderSource struct {
	fsys fs.FS
	dir  string
}

func NewShaderSource(fsys fs.FS, dir string) *ShaderSource {
	return &ShaderSource{fsys: fsys, dir: dir}
}

// Load reads both stages of program.
func (s *ShaderSource) Load(program Program) (vertex, fragment []uint32, err error) {
	vertex, err = s.read(program.Vertex + ".vert.spv")
	if err != nil {
		return nil, nil, err
	}
	fragment, err = s.read(program.Fragment + ".frag.spv")
	if err != nil {
		return nil, nil, err
	}
	return vertex, fragment, nil
}

func (s *ShaderSource) read(name string) ([]uint32, error) {
	file := path.Join(s.dir, name)
	b, err := fs.ReadFile(s.fsys, file)
	if err != nil {
		return nil, gpu.Configurationf("shader %s: %v", file, err)
	}
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, gpu.Configurationf("shader %s: %d bytes is not a SPIR-V module", file, len(b))
	}
	code := bytesToBytecode(b)
	if code[0] != spirvMagic {
		return nil, gpu.Configurationf("shader %s: bad SPIR-V magic %#x", file, code[0])
	}
	return code, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

// modules creates the shader modules of program in scope.
func (s *ShaderSource) modules(device gpu.Device, scope *gpu.Scope, program Program) (vertex, fragment gpu.ShaderModuleHandle, err error) {
	vertCode, fragCode, err := s.Load(program)
	if err != nil {
		return 0, 0, err
	}
	vertex, err = device.CreateShaderModule(vertCode)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "create vertex module of %s", program)
	}
	gpu.Own(scope, vertex, device.DestroyShaderModule)

	fragment, err = device.CreateShaderModule(fragCode)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "create fragment module of %s", program)
	}
	gpu.Own(scope, fragment, device.DestroyShaderModule)
	return vertex, fragment, nil
}
