// Package index holds the runtime view of the published index: one
// Descriptor per tracked file, in load order, with lookup tables by path and
// by content hash.
package index

import (
	"github.com/skyline93/strvct/internal/strvct"
)

// Index holds lookup tables for path -> descriptor and id -> descriptors. It
// is immutable once built; descriptors load their content independently.
type Index struct {
	entries []*Descriptor
	byPath  map[string]*Descriptor
	byID    map[strvct.ID][]*Descriptor
	size    int64
}

// New builds an Index from the entries of an index artifact. Every entry gets
// its own descriptor, even when several entries share a hash.
func New(f strvct.IndexFile) *Index {
	idx := &Index{
		entries: make([]*Descriptor, 0, len(f)),
		byPath:  make(map[string]*Descriptor, len(f)),
		byID:    make(map[strvct.ID][]*Descriptor, len(f)),
	}

	for _, e := range f {
		d := &Descriptor{IndexEntry: e}
		idx.entries = append(idx.entries, d)
		idx.byPath[e.Path] = d
		idx.byID[e.Hash] = append(idx.byID[e.Hash], d)
		idx.size += e.Size
	}

	return idx
}

// Len returns the number of descriptors.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Size returns the sum of all entry sizes.
func (idx *Index) Size() int64 {
	return idx.size
}

// Lookup returns the descriptor for path.
func (idx *Index) Lookup(path string) (*Descriptor, bool) {
	d, ok := idx.byPath[path]
	return d, ok
}

// LookupID returns all descriptors whose content hashes to id.
func (idx *Index) LookupID(id strvct.ID) []*Descriptor {
	return idx.byID[id]
}

// IDs returns the set of distinct content hashes.
func (idx *Index) IDs() strvct.IDSet {
	ids := strvct.NewIDSet()
	for id := range idx.byID {
		ids.Insert(id)
	}
	return ids
}

// Each calls fn for all descriptors in index order.
func (idx *Index) Each(fn func(d *Descriptor)) {
	for _, d := range idx.entries {
		fn(d)
	}
}

// Filter returns the descriptors whose extension is ext, in index order.
func (idx *Index) Filter(ext string) []*Descriptor {
	var result []*Descriptor
	for _, d := range idx.entries {
		if d.Ext() == ext {
			result = append(result, d)
		}
	}
	return result
}
