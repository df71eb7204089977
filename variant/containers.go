package variant

import "slices"

// Array is an ordered list of variants with reference semantics. It is not
// safe for concurrent mutation.
type Array struct {
	elems []Variant
}

// NewArray returns an array holding elems.
func NewArray(elems ...Variant) *Array {
	return &Array{elems: slices.Clone(elems)}
}

func (a *Array) Len() int { return len(a.elems) }

// At returns the element at i.
func (a *Array) At(i int) Variant { return a.elems[i] }

// Set replaces the element at i.
func (a *Array) Set(i int, v Variant) { a.elems[i] = v }

// Append adds vs to the end of the array.
func (a *Array) Append(vs ...Variant) { a.elems = append(a.elems, vs...) }

// Slice returns a copy of the elements.
func (a *Array) Slice() []Variant { return slices.Clone(a.elems) }

// Dictionary maps variant keys to variant values, preserving insertion
// order. It is not safe for concurrent mutation.
type Dictionary struct {
	index  map[uint64][]int
	keys   []Variant
	values []Variant
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{index: make(map[uint64][]int)}
}

func (d *Dictionary) Len() int { return len(d.keys) }

func (d *Dictionary) find(key Variant) (uint64, int) {
	h := Hash(key)
	for _, i := range d.index[h] {
		if Equal(d.keys[i], key) {
			return h, i
		}
	}
	return h, -1
}

// Set stores value under key, replacing an existing entry in place.
func (d *Dictionary) Set(key, value Variant) {
	h, i := d.find(key)
	if i >= 0 {
		d.values[i] = value
		return
	}
	if d.index == nil {
		d.index = make(map[uint64][]int)
	}
	d.index[h] = append(d.index[h], len(d.keys))
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
}

// Get returns the value stored under key.
func (d *Dictionary) Get(key Variant) (Variant, bool) {
	_, i := d.find(key)
	if i < 0 {
		return Variant{}, false
	}
	return d.values[i], true
}

// Delete removes key and reports whether it was present.
func (d *Dictionary) Delete(key Variant) bool {
	_, i := d.find(key)
	if i < 0 {
		return false
	}
	d.keys = slices.Delete(d.keys, i, i+1)
	d.values = slices.Delete(d.values, i, i+1)
	d.reindex()
	return true
}

func (d *Dictionary) reindex() {
	clear(d.index)
	for i, k := range d.keys {
		h := Hash(k)
		d.index[h] = append(d.index[h], i)
	}
}

// Keys returns the keys in insertion order.
func (d *Dictionary) Keys() []Variant { return slices.Clone(d.keys) }

// Each calls fn for every entry in insertion order until fn returns false.
func (d *Dictionary) Each(fn func(key, value Variant) bool) {
	for i := range d.keys {
		if !fn(d.keys[i], d.values[i]) {
			return
		}
	}
}
