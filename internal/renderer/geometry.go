package renderer

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// encode packs vertex or index data the way the vertex input reads it.
func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		return nil, errors.Wrapf(err, "encode %T", data)
	}
	return buf.Bytes(), nil
}
