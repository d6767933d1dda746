package ssao

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestKernelStaysInUnitHemisphere(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		kernel := Kernel(rand.New(rand.NewSource(seed)), 64)
		if len(kernel) != 64 {
			t.Fatalf("len(Kernel()) = %d, want 64", len(kernel))
		}
		for i, s := range kernel {
			if s.Z() < 0 {
				t.Errorf("seed %d sample %d = %v, below the hemisphere", seed, i, s)
			}
			if s.Len() > 1+1e-5 {
				t.Errorf("seed %d sample %d length %v > 1", seed, i, s.Len())
			}
			limit := lerp(0.1, 1, (float32(i)/64)*(float32(i)/64))
			if s.Len() > limit+1e-5 {
				t.Errorf("seed %d sample %d length %v exceeds scale %v", seed, i, s.Len(), limit)
			}
		}
	}
}

func TestKernelIsBiasedTowardOrigin(t *testing.T) {
	const size = 64
	const runs = 200
	var inner, outer float32
	for seed := int64(0); seed < runs; seed++ {
		kernel := Kernel(rand.New(rand.NewSource(seed)), size)
		for i := 0; i < size/4; i++ {
			inner += kernel[i].Len()
		}
		for i := size - size/4; i < size; i++ {
			outer += kernel[i].Len()
		}
	}
	inner /= runs * size / 4
	outer /= runs * size / 4
	if inner >= outer/2 {
		t.Errorf("mean length of first quarter %v, last quarter %v: want first well below last", inner, outer)
	}
}

func TestNoiseRotatesAroundZ(t *testing.T) {
	noise := Noise(rand.New(rand.NewSource(7)), 4)
	if len(noise) != 16 {
		t.Fatalf("len(Noise()) = %d, want 16", len(noise))
	}
	for i, n := range noise {
		if n.Z() != 0 || n.W() != 0 {
			t.Errorf("noise %d = %v, want z and w zero", i, n)
		}
		if n.X() < -1 || n.X() > 1 || n.Y() < -1 || n.Y() > 1 {
			t.Errorf("noise %d = %v outside [-1,1]", i, n)
		}
	}
}

func TestKernelBlock(t *testing.T) {
	kernel := []mgl32.Vec3{{1, 2, 3}, {4, 5, 6}}
	block := KernelBlock(kernel)
	if block.Samples[1] != (mgl32.Vec4{4, 5, 6, 0}) {
		t.Errorf("Samples[1] = %v", block.Samples[1])
	}
	if block.Samples[2] != (mgl32.Vec4{}) {
		t.Errorf("Samples[2] = %v, want zero", block.Samples[2])
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Params)
		wantErr bool
	}{
		{"default", func(p *Params) {}, false},
		{"kernel too large", func(p *Params) { p.KernelSize = 65 }, true},
		{"kernel empty", func(p *Params) { p.KernelSize = 0 }, true},
		{"zero radius", func(p *Params) { p.Radius = 0 }, true},
		{"zero noise", func(p *Params) { p.NoiseDim = 0 }, true},
	}
	for _, tt := range tests {
		p := DefaultParams()
		tt.mutate(&p)
		if err := p.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
