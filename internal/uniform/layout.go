// Package uniform defines the byte-exact uniform block layouts shared with
// the shader programs and the host-visible buffers that carry them.
package uniform

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// ByteOrder is the byte order of every uniform block.
var ByteOrder = binary.LittleEndian

// MaxLights is the number of light records in LightsFS.
const MaxLights = 7

// KernelCapacity is the largest SSAO kernel the shader accepts.
const KernelCapacity = 64

// ScreenQuadVS is read by the full-screen vertex stage of the composition
// and debug programs.
type ScreenQuadVS struct {
	Projection mgl32.Mat4
	Model      mgl32.Mat4
}

// SceneVS is read by the G-Buffer vertex stage.
type SceneVS struct {
	Projection mgl32.Mat4
	View       mgl32.Mat4
	Model      mgl32.Mat4
}

// Light is one std140 light record, 48 bytes.
type Light struct {
	Position         mgl32.Vec4
	Color            mgl32.Vec4
	Radius           float32
	QuadraticFalloff float32
	LinearFalloff    float32
	Pad              float32
}

// LightsFS is read by the composition fragment stage.
type LightsFS struct {
	Lights  [MaxLights]Light
	ViewPos mgl32.Vec4
	View    mgl32.Mat4
	Model   mgl32.Mat4
}

// SSAOParams is read by the SSAO and composition fragment stages. The
// trailing padding rounds the block to the std140 size of 80 bytes.
type SSAOParams struct {
	Projection mgl32.Mat4
	SSAO       uint32
	SSAOOnly   uint32
	SSAOBlur   uint32
	_          uint32
}

// SSAOKernel holds the hemisphere sample vectors, w unused.
type SSAOKernel struct {
	Samples [KernelCapacity]mgl32.Vec4
}

// Size returns the encoded size of a block value in bytes.
func Size(v any) int {
	return binary.Size(v)
}

// Encode serializes v in the uniform byte order.
func Encode(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, ByteOrder, v); err != nil {
		return nil, errors.Wrapf(err, "encode %T", v)
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into v, which must point to a block type.
func Decode(data []byte, v any) error {
	if size := binary.Size(v); size != len(data) {
		return errors.Newf("decode %T: have %d bytes, want %d", v, len(data), size)
	}
	if err := binary.Read(bytes.NewReader(data), ByteOrder, v); err != nil {
		return errors.Wrapf(err, "decode %T", v)
	}
	return nil
}
