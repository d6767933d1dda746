package vulkan

import "github.com/vkngwrapper/sponza/internal/gpu"

// table maps the opaque handles handed to the renderer onto driver objects.
// Handles are never reused.
type table[H ~uint64, T any] struct {
	kind  string
	next  H
	items map[H]T
}

func newTable[H ~uint64, T any](kind string) *table[H, T] {
	return &table[H, T]{kind: kind, items: map[H]T{}}
}

func (t *table[H, T]) add(item T) H {
	t.next++
	t.items[t.next] = item
	return t.next
}

func (t *table[H, T]) get(h H) (T, error) {
	item, ok := t.items[h]
	if !ok {
		return item, gpu.Configurationf("unknown %s handle %d", t.kind, uint64(h))
	}
	return item, nil
}

// take removes h and returns the object it named.
func (t *table[H, T]) take(h H) (T, bool) {
	item, ok := t.items[h]
	if ok {
		delete(t.items, h)
	}
	return item, ok
}

func (t *table[H, T]) len() int {
	return len(t.items)
}
