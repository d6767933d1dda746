package gpu

// Scope owns a group of GPU objects and releases them in reverse
// acquisition order. Objects created during setup or resize are registered
// with Own as soon as they exist, so a failure halfway through leaves
// nothing behind once the scope is released.
type Scope struct {
	name     string
	releases []func()
	children []*Scope
	released bool
}

func NewScope(name string) *Scope {
	return &Scope{name: name}
}

func (s *Scope) Name() string {
	return s.name
}

// Child returns a scope released together with s, before the objects s
// acquired itself.
func (s *Scope) Child(name string) *Scope {
	child := NewScope(s.name + "/" + name)
	s.children = append(s.children, child)
	s.released = false
	return child
}

// Defer registers fn to run on Release.
func (s *Scope) Defer(fn func()) {
	s.releases = append(s.releases, fn)
	s.released = false
}

// Len is the number of objects currently owned, children excluded.
func (s *Scope) Len() int {
	return len(s.releases)
}

// Children is the number of child scopes released with s.
func (s *Scope) Children() int {
	return len(s.children)
}

// Release runs every registered release function, newest first, after
// releasing the children. The scope may be reused afterwards.
func (s *Scope) Release() {
	if s.released {
		return
	}
	for i := len(s.children) - 1; i >= 0; i-- {
		s.children[i].Release()
	}
	s.children = nil
	for i := len(s.releases) - 1; i >= 0; i-- {
		s.releases[i]()
	}
	s.releases = nil
	s.released = true
}

// Own registers destroy for handle with the scope and returns the handle.
//
//	img := gpu.Own(scope, handle, device.DestroyImage)
func Own[H comparable](s *Scope, handle H, destroy func(H)) H {
	var zero H
	if handle == zero {
		return handle
	}
	s.Defer(func() { destroy(handle) })
	return handle
}
