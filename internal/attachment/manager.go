package attachment

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/sponza/internal/gpu"
	"github.com/vkngwrapper/sponza/internal/logging"
)

// Manager creates, resizes and destroys attachments. It keeps them in
// creation order.
type Manager struct {
	device      gpu.Device
	attachments []*Attachment
	byName      map[string]*Attachment
}

func NewManager(device gpu.Device) *Manager {
	return &Manager{
		device: device,
		byName: map[string]*Attachment{},
	}
}

// Create allocates the image, memory and view for desc and performs exactly
// one layout transition into the layout the first use expects. It fails
// with gpu.ErrResourceExhausted when no device-local memory type fits.
func (m *Manager) Create(desc Desc) (*Attachment, error) {
	if _, exists := m.byName[desc.Name]; exists {
		return nil, gpu.Configurationf("attachment %q already exists", desc.Name)
	}
	if desc.Usage&(UsageColor|UsageDepthStencil) == 0 {
		return nil, gpu.Configurationf("attachment %q is neither a color nor a depth target", desc.Name)
	}
	if (desc.Usage&UsageDepthStencil != 0) != desc.Format.IsDepth() {
		return nil, gpu.Configurationf("attachment %q usage does not match format %s", desc.Name, desc.Format)
	}

	a := &Attachment{desc: desc}
	if err := m.allocate(a); err != nil {
		return nil, err
	}
	m.attachments = append(m.attachments, a)
	m.byName[desc.Name] = a
	return a, nil
}

func (m *Manager) allocate(a *Attachment) error {
	scope := gpu.NewScope(a.desc.Name)
	image, memory, err := gpu.NewImage(m.device, scope, gpu.ImageDesc{
		Label:  a.desc.Name,
		Format: a.desc.Format,
		Extent: a.desc.Extent,
		Usage:  imageUsage(a.desc.Usage),
	}, gpu.MemoryDeviceLocal)
	if err != nil {
		scope.Release()
		return errors.Wrapf(err, "attachment %q", a.desc.Name)
	}

	view, err := m.device.CreateImageView(gpu.ImageViewDesc{
		Image:  image,
		Format: a.desc.Format,
		Aspect: gpu.AspectFor(a.desc.Format),
	})
	if err != nil {
		scope.Release()
		return errors.Wrapf(err, "attachment %q view", a.desc.Name)
	}
	gpu.Own(scope, view, m.device.DestroyImageView)

	layout := InitialLayout(a.desc.Usage)
	dstStage, dstAccess := initialAccess(layout)
	err = m.device.RunOneShot(func(cmd gpu.CommandBuffer) error {
		cmd.PipelineBarrier(gpu.Barrier{
			SrcStage: gpu.StageTopOfPipe,
			DstStage: dstStage,
			Images: []gpu.ImageBarrier{{
				Image:     image,
				Aspect:    gpu.AspectFor(a.desc.Format),
				OldLayout: gpu.LayoutUndefined,
				NewLayout: layout,
				DstAccess: dstAccess,
			}},
		})
		return nil
	})
	if err != nil {
		scope.Release()
		return errors.Wrapf(err, "attachment %q initial transition", a.desc.Name)
	}

	a.image = image
	a.memory = memory
	a.view = view
	a.scope = scope
	a.layout = layout

	logging.Logger().Debug("attachment created",
		"name", a.desc.Name, "format", a.desc.Format.String(),
		"extent", a.desc.Extent.String(), "layout", layout.String())
	return nil
}

func (m *Manager) release(a *Attachment) {
	if a.scope != nil {
		a.scope.Release()
	}
	a.scope = nil
	a.image = 0
	a.memory = 0
	a.view = 0
	a.layout = gpu.LayoutUndefined
}

// Resize destroys the attachment's image and recreates it at the new
// extent with the same name, format and usage. The attachment pointer
// stays valid but every view, framebuffer and descriptor built from the
// old image must be rebuilt by the caller.
func (m *Manager) Resize(a *Attachment, extent gpu.Extent) error {
	if m.byName[a.desc.Name] != a {
		return gpu.Configurationf("attachment %q is not owned by this manager", a.desc.Name)
	}
	m.release(a)
	a.desc.Extent = extent
	return m.allocate(a)
}

// ResizeAll resizes every attachment to extent.
func (m *Manager) ResizeAll(extent gpu.Extent) error {
	for _, a := range m.attachments {
		if err := m.Resize(a, extent); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) Get(name string) (*Attachment, bool) {
	a, ok := m.byName[name]
	return a, ok
}

// All returns the attachments in creation order.
func (m *Manager) All() []*Attachment {
	return m.attachments
}

func (m *Manager) Len() int {
	return len(m.attachments)
}

// Destroy releases every attachment.
func (m *Manager) Destroy() {
	for i := len(m.attachments) - 1; i >= 0; i-- {
		m.release(m.attachments[i])
	}
	m.attachments = nil
	m.byName = map[string]*Attachment{}
}
