package model

import "tinyrnn/pkg/linalg"

// Table maps context keys to lazily created output parameters. Entries are
// never removed except by CopyFrom, and iteration follows insertion order so
// seeded runs stay reproducible.
type Table[K comparable] struct {
	rows, cols int
	init       func(*linalg.Matrix)

	entries map[K]*Param
	order   []K

	touched      map[K]struct{}
	touchedOrder []K
}

// NewTable returns an empty table of rows x cols parameters. init fills the
// weights of every newly created entry.
func NewTable[K comparable](rows, cols int, init func(*linalg.Matrix)) *Table[K] {
	return &Table[K]{
		rows:    rows,
		cols:    cols,
		init:    init,
		entries: make(map[K]*Param),
		touched: make(map[K]struct{}),
	}
}

func (t *Table[K]) Len() int { return len(t.entries) }

// Keys returns the keys in insertion order.
func (t *Table[K]) Keys() []K {
	out := make([]K, len(t.order))
	copy(out, t.order)
	return out
}

// Lookup returns the entry for key without creating it.
func (t *Table[K]) Lookup(key K) (*Param, bool) {
	p, ok := t.entries[key]
	return p, ok
}

// Add creates a freshly initialized entry for key if none exists.
func (t *Table[K]) Add(key K) *Param {
	if p, ok := t.entries[key]; ok {
		return p
	}
	p := NewParam(t.rows, t.cols)
	if t.init != nil {
		t.init(p.W)
	}
	t.entries[key] = p
	t.order = append(t.order, key)
	return p
}

// Get returns the entry for key, creating it on first access.
func (t *Table[K]) Get(key K) *Param {
	return t.Add(key)
}

// Touch marks key as having received gradient.
func (t *Table[K]) Touch(key K) {
	if _, ok := t.touched[key]; ok {
		return
	}
	t.touched[key] = struct{}{}
	t.touchedOrder = append(t.touchedOrder, key)
}

// Touched returns the keys touched since the last ResetGradients.
func (t *Table[K]) Touched() []K {
	out := make([]K, len(t.touchedOrder))
	copy(out, t.touchedOrder)
	return out
}

// ResetGradients zeroes the gradients of touched entries and clears the
// touched set. Untouched entries are assumed to be zero already.
func (t *Table[K]) ResetGradients() {
	for _, k := range t.touchedOrder {
		t.entries[k].ResetGradient()
	}
	clear(t.touched)
	t.touchedOrder = t.touchedOrder[:0]
}

// Update applies W -= gamma*G to touched entries only.
func (t *Table[K]) Update(gamma float64) {
	for _, k := range t.touchedOrder {
		t.entries[k].Update(gamma)
	}
}

func (t *Table[K]) GradTDelta() float64 {
	var s float64
	for _, k := range t.touchedOrder {
		s += t.entries[k].GradTDelta()
	}
	return s
}

func (t *Table[K]) each(f func(*Param)) {
	for _, k := range t.order {
		f(t.entries[k])
	}
}

// CopyFrom rebuilds t to hold exactly o's entries and touched set. Copied
// entries get zeroed direction buffers.
func (t *Table[K]) CopyFrom(o *Table[K]) {
	t.rows, t.cols = o.rows, o.cols
	t.entries = make(map[K]*Param, len(o.entries))
	t.order = t.order[:0]
	for _, k := range o.order {
		t.entries[k] = o.entries[k].Clone()
		t.order = append(t.order, k)
	}
	clear(t.touched)
	t.touchedOrder = t.touchedOrder[:0]
	for _, k := range o.touchedOrder {
		t.Touch(k)
	}
}
