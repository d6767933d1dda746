package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/logging"
)

// CacheHeaderVersion1 is the only pipeline cache header layout:
//
//	Offset  Size  Meaning
//	     0     4  length in bytes of the header
//	     4     4  header version
//	     8     4  vendor ID of the device
//	    12     4  device ID of the device
//	    16    16  pipeline cache UUID of the device
const CacheHeaderVersion1 = 1

// CacheHeader is the prefix of pipeline cache data.
type CacheHeader struct {
	Length   uint32
	Version  uint32
	VendorID uint32
	DeviceID uint32
	UUID     uuid.UUID
}

// ParseCacheHeader decodes the header of cache data.
func ParseCacheHeader(data []byte) (CacheHeader, error) {
	var h CacheHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return h, errors.Wrap(err, "read pipeline cache header")
	}
	return h, nil
}

// Check reports why a header does not match the device, if it does not.
func (h CacheHeader) Check(props gpu.DeviceProperties) error {
	switch {
	case h.Length == 0:
		return errors.Newf("bad header length %#x", h.Length)
	case h.Version != CacheHeaderVersion1:
		return errors.Newf("unsupported cache header version %#x", h.Version)
	case h.VendorID != props.VendorID:
		return errors.Newf("vendor ID mismatch: cache %#x, driver %#x", h.VendorID, props.VendorID)
	case h.DeviceID != props.DeviceID:
		return errors.Newf("device ID mismatch: cache %#x, driver %#x", h.DeviceID, props.DeviceID)
	case h.UUID != props.PipelineCacheUUID:
		return errors.Newf("UUID mismatch: cache %s, driver %s", h.UUID, props.PipelineCacheUUID)
	}
	return nil
}

// LoadCache creates a pipeline cache seeded from the file at path when it
// exists and was written by the same device and driver. A stale file is
// removed so the next SaveCache repopulates it.
func LoadCache(device gpu.Device, path string) (gpu.PipelineCacheHandle, error) {
	log := logging.Logger()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Info("pipeline cache miss", "path", path)
		data = nil
	case err != nil:
		return 0, errors.Wrapf(err, "read pipeline cache %s", path)
	}

	if data != nil {
		header, err := ParseCacheHeader(data)
		if err == nil {
			err = header.Check(device.Properties())
		}
		if err != nil {
			log.Warn("discarding pipeline cache", "path", path, "err", err)
			data = nil
			// Not important if this fails.
			_ = os.Remove(path)
		} else {
			log.Info("pipeline cache hit", "path", path, "bytes", len(data))
		}
	}

	cache, err := device.CreatePipelineCache(data)
	if err != nil {
		return 0, errors.Wrap(err, "create pipeline cache")
	}
	return cache, nil
}

// SaveCache writes the current contents of cache to path.
func SaveCache(device gpu.Device, cache gpu.PipelineCacheHandle, path string) error {
	data, err := device.PipelineCacheData(cache)
	if err != nil {
		return errors.Wrap(err, "get pipeline cache data")
	}
	if err := os.WriteFile(path, data, 0666); err != nil {
		return errors.Wrapf(err, "write pipeline cache %s", path)
	}
	logging.Logger().Info("pipeline cache written", "path", path, "bytes", len(data))
	return nil
}
