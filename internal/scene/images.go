package scene

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/logging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxTextureSize bounds the larger side of decoded textures.
const DefaultMaxTextureSize = 2048

// LoadImages decodes the named texture files under dir concurrently.
// Files that are missing or cannot be decoded are logged and left out of
// the result, so their materials fall back to placeholder textures.
// Images larger than maxSize on either side are scaled down.
func LoadImages(ctx context.Context, dir string, paths []string, maxSize int) (map[string]*image.RGBA, error) {
	var mu sync.Mutex
	images := make(map[string]*image.RGBA, len(paths))

	group, ctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		p := p
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := decodeImage(filepath.Join(dir, filepath.FromSlash(p)), maxSize)
			if err != nil {
				logging.Logger().Warn("texture unavailable, using placeholder", "path", p, "err", err)
				return nil
			}
			mu.Lock()
			images[p] = img
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errors.Wrap(err, "load textures")
	}
	return images, nil
}

func decodeImage(file string, maxSize int) (*image.RGBA, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", file)
	}
	logging.Logger().Debug("decoded texture", "file", file, "format", format, "bounds", src.Bounds().String())
	return ToRGBA(src, maxSize), nil
}

// ToRGBA converts img to tightly packed RGBA8, scaling it down so that
// neither side exceeds maxSize. A non-positive maxSize disables scaling.
func ToRGBA(img image.Image, maxSize int) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			h = max(1, h*maxSize/w)
			w = maxSize
		} else {
			w = max(1, w*maxSize/h)
			h = maxSize
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
		return dst
	}

	if rgba, ok := img.(*image.RGBA); ok && bounds.Min == (image.Point{}) && rgba.Stride == w*4 {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}
