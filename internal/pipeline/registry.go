// Package pipeline builds the named graphics pipeline variants the passes
// bind and keeps them in an explicitly owned registry.
package pipeline

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/logging"
)

// Base is the configuration shared by every variant drawn into the same
// render pass. Viewport and scissor are always dynamic and topology is
// always a triangle list.
type Base struct {
	Layout           gpu.PipelineLayoutHandle
	RenderPass       gpu.RenderPassHandle
	ColorAttachments int
	VertexInput      *gpu.VertexLayout
	DepthTest        bool
	CullMode         gpu.CullMode
}

type config struct {
	blend            bool
	depthWrite       *bool
	cullMode         *gpu.CullMode
	derivedFrom      string
	allowDerivatives bool
}

// Option adjusts a variant relative to its base.
type Option func(*config)

func WithBlend() Option {
	return func(c *config) { c.blend = true }
}

func WithDepthWrite(enabled bool) Option {
	return func(c *config) { c.depthWrite = &enabled }
}

func WithCullMode(mode gpu.CullMode) Option {
	return func(c *config) { c.cullMode = &mode }
}

// DerivedFrom creates the variant as a derivative of an already registered
// variant that allows derivatives.
func DerivedFrom(name string) Option {
	return func(c *config) { c.derivedFrom = name }
}

func AllowDerivatives() Option {
	return func(c *config) { c.allowDerivatives = true }
}

// Variant is one compiled pipeline.
type Variant struct {
	Name      string
	Program   Program
	Pipeline  gpu.PipelineHandle
	Layout    gpu.PipelineLayoutHandle
	Desc      gpu.PipelineDesc
	BuildTime time.Duration
}

// Registry is the name-indexed store of variants. It is owned by the
// renderer and passed to whatever records draws.
type Registry struct {
	device  gpu.Device
	shaders *ShaderSource
	cache   gpu.PipelineCacheHandle

	scope    *gpu.Scope
	variants map[string]*Variant
}

// NewRegistry returns an empty registry. cache may be zero.
func NewRegistry(device gpu.Device, shaders *ShaderSource, cache gpu.PipelineCacheHandle) *Registry {
	return &Registry{
		device:   device,
		shaders:  shaders,
		cache:    cache,
		scope:    gpu.NewScope("pipelines"),
		variants: map[string]*Variant{},
	}
}

// Add compiles program against base with the given specialization and
// options, and registers it under name.
func (r *Registry) Add(name string, base Base, program Program, spec []gpu.SpecConstant, opts ...Option) (*Variant, error) {
	if _, ok := r.variants[name]; ok {
		return nil, gpu.Configurationf("pipeline variant %q registered twice", name)
	}

	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	desc := gpu.PipelineDesc{
		Label:            name,
		Specialization:   spec,
		VertexInput:      base.VertexInput,
		Topology:         gpu.TopologyTriangleList,
		CullMode:         base.CullMode,
		DepthTest:        base.DepthTest,
		DepthWrite:       base.DepthTest,
		DepthCompare:     gpu.CompareLessOrEqual,
		BlendEnable:      cfg.blend,
		ColorAttachments: base.ColorAttachments,
		Layout:           base.Layout,
		RenderPass:       base.RenderPass,
		AllowDerivatives: cfg.allowDerivatives,
	}
	if cfg.depthWrite != nil {
		desc.DepthWrite = *cfg.depthWrite
	}
	if cfg.cullMode != nil {
		desc.CullMode = *cfg.cullMode
	}
	if cfg.derivedFrom != "" {
		parent, err := r.Get(cfg.derivedFrom)
		if err != nil {
			return nil, errors.Wrapf(err, "variant %q", name)
		}
		desc.Base = parent.Pipeline
	}

	modules := gpu.NewScope(name + "/modules")
	defer modules.Release()
	var err error
	desc.Vertex, desc.Fragment, err = r.shaders.modules(r.device, modules, program)
	if err != nil {
		return nil, errors.Wrapf(err, "variant %q", name)
	}

	start := hrtime.Now()
	pipeline, err := r.device.CreateGraphicsPipeline(r.cache, desc)
	elapsed := hrtime.Now() - start
	if err != nil {
		return nil, errors.Wrapf(err, "create pipeline %q", name)
	}
	gpu.Own(r.scope, pipeline, r.device.DestroyPipeline)

	v := &Variant{
		Name:      name,
		Program:   program,
		Pipeline:  pipeline,
		Layout:    base.Layout,
		Desc:      desc,
		BuildTime: elapsed,
	}
	r.variants[name] = v
	logging.Logger().Debug("pipeline variant built", "name", name, "program", program.String(), "elapsed", elapsed)
	return v, nil
}

// Get looks up a variant. An unknown name is a configuration error that
// names the variant.
func (r *Registry) Get(name string) (*Variant, error) {
	v, ok := r.variants[name]
	if !ok {
		return nil, gpu.Configurationf("pipeline variant %q is not registered", name)
	}
	return v, nil
}

// MustGet is Get for call sites where a missing variant is a programming
// error.
func (r *Registry) MustGet(name string) *Variant {
	v, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Names returns the registered variant names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.variants))
	for name := range r.variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int { return len(r.variants) }

// Destroy destroys every variant. The registry can be filled again.
func (r *Registry) Destroy() {
	r.scope.Release()
	r.variants = map[string]*Variant{}
}
