// Package texture uploads sampled images and owns the placeholder textures
// bound for absent material channels.
package texture

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/sponza/internal/gpu"
)

// Texture is a sampled image with its view and sampler.
type Texture struct {
	Label   string
	Image   gpu.ImageHandle
	View    gpu.ImageViewHandle
	Sampler gpu.SamplerHandle
	Format  gpu.Format
	Extent  gpu.Extent
}

// Descriptor returns the write binding the texture to a sampled slot.
func (t *Texture) Descriptor(binding int) gpu.DescriptorWrite {
	return gpu.DescriptorWrite{
		Binding: binding,
		Kind:    gpu.DescriptorSampledImage,
		View:    t.View,
		Sampler: t.Sampler,
		Layout:  gpu.LayoutShaderReadOnly,
	}
}

// Upload creates an RGBA8 texture from img. Every object it creates is owned
// by scope.
func Upload(device gpu.Device, scope *gpu.Scope, label string, img *image.RGBA, format gpu.Format) (*Texture, error) {
	extent := gpu.Extent{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	data := img.Pix
	if img.Stride != extent.Width*4 {
		data = make([]byte, 0, extent.Width*extent.Height*4)
		for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
			row := img.PixOffset(img.Bounds().Min.X, y)
			data = append(data, img.Pix[row:row+extent.Width*4]...)
		}
	}
	return create(device, scope, label, format, extent, data, gpu.SamplerDesc{Filter: gpu.FilterLinear, Address: gpu.AddressRepeat})
}

// Noise uploads the SSAO rotation vectors as a dim x dim RGBA32F texture
// sampled with nearest filtering and repeat addressing.
func Noise(device gpu.Device, scope *gpu.Scope, noise []mgl32.Vec4, dim int) (*Texture, error) {
	if len(noise) != dim*dim {
		return nil, errors.AssertionFailedf("noise has %d texels, want %d", len(noise), dim*dim)
	}
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, noise); err != nil {
		return nil, err
	}
	extent := gpu.Extent{Width: dim, Height: dim}
	return create(device, scope, "ssao.noise", gpu.FormatRGBA32Float, extent, buf.Bytes(), gpu.SamplerDesc{Filter: gpu.FilterNearest, Address: gpu.AddressRepeat})
}

func create(device gpu.Device, scope *gpu.Scope, label string, format gpu.Format, extent gpu.Extent, data []byte, sampler gpu.SamplerDesc) (*Texture, error) {
	t := &Texture{Label: label, Format: format, Extent: extent}

	var err error
	t.Image, _, err = gpu.NewImage(device, scope, gpu.ImageDesc{
		Label:  label,
		Format: format,
		Extent: extent,
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
	}, gpu.MemoryDeviceLocal)
	if err != nil {
		return nil, err
	}

	if err := gpu.UploadImage(device, t.Image, gpu.AspectColor, extent, data); err != nil {
		return nil, errors.Wrapf(err, "upload texture %q", label)
	}

	t.View, err = device.CreateImageView(gpu.ImageViewDesc{Image: t.Image, Format: format, Aspect: gpu.AspectColor})
	if err != nil {
		return nil, errors.Wrapf(err, "create view for texture %q", label)
	}
	gpu.Own(scope, t.View, device.DestroyImageView)

	t.Sampler, err = device.CreateSampler(sampler)
	if err != nil {
		return nil, errors.Wrapf(err, "create sampler for texture %q", label)
	}
	gpu.Own(scope, t.Sampler, device.DestroySampler)
	return t, nil
}

// Placeholders are the 1x1 textures bound for material channels without a
// texture.
type Placeholders struct {
	Diffuse  *Texture
	Specular *Texture
	Normal   *Texture
}

var (
	placeholderDiffuse  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	placeholderSpecular = color.RGBA{A: 255}
	placeholderNormal   = color.RGBA{R: 128, G: 128, B: 255, A: 255}
)

func NewPlaceholders(device gpu.Device, scope *gpu.Scope) (*Placeholders, error) {
	solid := func(label string, c color.RGBA, format gpu.Format) (*Texture, error) {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.SetRGBA(0, 0, c)
		return Upload(device, scope, label, img, format)
	}

	var p Placeholders
	var err error
	if p.Diffuse, err = solid("placeholder.diffuse", placeholderDiffuse, gpu.FormatRGBA8SRGB); err != nil {
		return nil, err
	}
	if p.Specular, err = solid("placeholder.specular", placeholderSpecular, gpu.FormatRGBA8Unorm); err != nil {
		return nil, err
	}
	if p.Normal, err = solid("placeholder.normal", placeholderNormal, gpu.FormatRGBA8Unorm); err != nil {
		return nil, err
	}
	return &p, nil
}

// Library resolves material texture paths to uploaded textures, falling back
// to placeholders for paths that were never loaded.
type Library struct {
	placeholders *Placeholders
	textures     map[string]*Texture
}

// NewLibrary uploads every decoded image. Diffuse maps are sampled as sRGB;
// srgb lists the paths that are used as diffuse maps.
func NewLibrary(device gpu.Device, scope *gpu.Scope, placeholders *Placeholders, images map[string]*image.RGBA, srgb map[string]bool) (*Library, error) {
	lib := &Library{placeholders: placeholders, textures: make(map[string]*Texture, len(images))}
	for p, img := range images {
		format := gpu.FormatRGBA8Unorm
		if srgb[p] {
			format = gpu.FormatRGBA8SRGB
		}
		t, err := Upload(device, scope, p, img, format)
		if err != nil {
			return nil, err
		}
		lib.textures[p] = t
	}
	return lib, nil
}

func (l *Library) Len() int { return len(l.textures) }

func (l *Library) Diffuse(p string) *Texture  { return l.lookup(p, l.placeholders.Diffuse) }
func (l *Library) Specular(p string) *Texture { return l.lookup(p, l.placeholders.Specular) }
func (l *Library) Normal(p string) *Texture   { return l.lookup(p, l.placeholders.Normal) }

func (l *Library) lookup(p string, fallback *Texture) *Texture {
	if t, ok := l.textures[p]; ok && p != "" {
		return t
	}
	return fallback
}
