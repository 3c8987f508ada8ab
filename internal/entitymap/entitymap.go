// Package entitymap provides the dense-vector maps keyed by the typed index
// newtypes in the api package. A PrimaryMap is
// append-only and indexed densely from zero; a SparseOverlay adds a
// default-valued overlay on top of a PrimaryMap for indices that are only
// occasionally populated (e.g. per-function debug names).
package entitymap

// Index is any of the api package's uint32-based index newtypes.
type Index interface {
	~uint32
}

// PrimaryMap is a dense vector keyed by Index K, storing values of type V.
type PrimaryMap[K Index, V any] struct {
	items []V
}

// Push appends v, returning the index it was stored at.
func (m *PrimaryMap[K, V]) Push(v V) K {
	idx := K(len(m.items))
	m.items = append(m.items, v)
	return idx
}

// Get returns the value at idx and whether idx was in range.
func (m *PrimaryMap[K, V]) Get(idx K) (V, bool) {
	var zero V
	if int(idx) >= len(m.items) {
		return zero, false
	}
	return m.items[idx], true
}

// Set overwrites the value at idx; idx must already be in range.
func (m *PrimaryMap[K, V]) Set(idx K, v V) {
	m.items[idx] = v
}

// Len returns the number of entries.
func (m *PrimaryMap[K, V]) Len() int { return len(m.items) }

// Values returns the dense backing slice for iteration. Callers must not
// retain it across a subsequent Push, which may reallocate.
func (m *PrimaryMap[K, V]) Values() []V { return m.items }

// SparseOverlay layers default-valued sparse entries over a PrimaryMap,
// useful for maps where most indices never diverge from the zero value (for
// example, custom per-data-segment names in a debug build).
type SparseOverlay[K Index, V any] struct {
	base    *PrimaryMap[K, V]
	overlay map[K]V
}

// NewSparseOverlay constructs an overlay on top of base.
func NewSparseOverlay[K Index, V any](base *PrimaryMap[K, V]) *SparseOverlay[K, V] {
	return &SparseOverlay[K, V]{base: base, overlay: make(map[K]V)}
}

// Get returns the overlay value for idx if set, else the base map's value.
func (o *SparseOverlay[K, V]) Get(idx K) (V, bool) {
	if v, ok := o.overlay[idx]; ok {
		return v, true
	}
	return o.base.Get(idx)
}

// Set records an overlay value for idx without mutating the base map.
func (o *SparseOverlay[K, V]) Set(idx K, v V) {
	o.overlay[idx] = v
}
