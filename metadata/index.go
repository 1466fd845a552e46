package metadata

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// InvertedIndex accelerates exact-match metadata filtering.
//
// It maps (field, scalar value) to a Roaring bitmap of record positions.
// Positions are maintained incrementally on insert; any operation that
// shifts positions (delete) or replaces metadata in place must Rebuild,
// since stale positions would otherwise corrupt lookups.
//
// The index is not safe for concurrent use; the owning store serializes
// access.
type InvertedIndex struct {
	// field -> scalar key -> positions
	fields map[string]map[string]*roaring.Bitmap
}

// NewInvertedIndex creates an empty inverted index.
func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{fields: make(map[string]map[string]*roaring.Bitmap)}
}

// Add indexes the scalar fields of meta under the given record position.
// Non-scalar metadata contributes nothing.
func (ix *InvertedIndex) Add(pos uint32, meta any) {
	for field, key := range ScalarFields(meta) {
		vm, ok := ix.fields[field]
		if !ok {
			vm = make(map[string]*roaring.Bitmap)
			ix.fields[field] = vm
		}
		bm, ok := vm[key]
		if !ok {
			bm = roaring.New()
			vm[key] = bm
		}
		bm.Add(pos)
	}
}

// Rebuild discards the index and re-derives it from the full metadata
// sequence, where metas[i] is the metadata at position i.
func (ix *InvertedIndex) Rebuild(metas []any) {
	ix.fields = make(map[string]map[string]*roaring.Bitmap, len(ix.fields))
	for pos, meta := range metas {
		ix.Add(uint32(pos), meta)
	}
}

// Query returns the positions whose metadata matches every field=value pair
// (AND semantics). A filter on an unknown field/value, or on a non-scalar
// value, short-circuits to the empty set.
func (ix *InvertedIndex) Query(filters map[string]any) *roaring.Bitmap {
	if len(filters) == 0 {
		return roaring.New()
	}

	matches := make([]*roaring.Bitmap, 0, len(filters))
	for field, value := range filters {
		key, ok := ScalarKey(value)
		if !ok {
			return roaring.New()
		}
		bm := ix.fields[field][key]
		if bm == nil || bm.IsEmpty() {
			return roaring.New()
		}
		matches = append(matches, bm)
	}

	return roaring.FastAnd(matches...)
}

// FieldNames returns the sorted names of all indexed fields.
func (ix *InvertedIndex) FieldNames() []string {
	names := make([]string, 0, len(ix.fields))
	for name := range ix.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SizeInBytes is a rough estimate of the index memory footprint.
func (ix *InvertedIndex) SizeInBytes() uint64 {
	var total uint64
	for field, vm := range ix.fields {
		total += uint64(len(field))
		for key, bm := range vm {
			total += uint64(len(key)) + bm.GetSizeInBytes()
		}
	}
	return total
}
