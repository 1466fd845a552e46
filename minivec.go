package minivec

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/minivec/distance"
	"github.com/hupe1980/minivec/metadata"
	"github.com/hupe1980/minivec/quantization"
	"github.com/hupe1980/minivec/vectorstore"
)

// TextMetadataKey is the reserved metadata key under which AddText stores
// the original text. An existing entry under this key is overwritten.
const TextMetadataKey = "text"

// originalMetadataKey holds non-map metadata passed to AddText.
const originalMetadataKey = "original"

// Store is an embedded collection of vector records with exact top-k cosine
// retrieval and exact-match metadata queries.
//
// The zero value is not usable; create instances with New.
type Store struct {
	opts options

	dimension int // 0 until the first insert fixes it
	vectors   *vectorstore.Columnar
	metadatas []any
	ids       []string
	byID      map[string]uint32
	metaIndex *metadata.InvertedIndex

	logger  *Logger
	metrics MetricsCollector
}

// Record is one stored entry: id, vector and metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata any
}

// Item is one entry of a batch insert. ID is optional.
type Item struct {
	Vector   []float32
	Metadata any
	ID       string
}

// BatchResult reports the outcome of a batch insert. IDs and Errors are
// both aligned with the input items; IDs[i] is empty when Errors[i] is
// non-nil.
type BatchResult struct {
	IDs    []string
	Errors []error
}

// Failed returns the number of items that failed.
func (r BatchResult) Failed() int {
	var n int
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// Stats describes the current collection state.
type Stats struct {
	// Count is the number of stored records.
	Count int

	// Dimension is the fixed vector dimension, or 0 while unset.
	Dimension int

	// PrecisionBits is the per-dimension vector storage precision
	// (32, 16 or 8).
	PrecisionBits int

	// MemoryBytes approximates the in-memory footprint of vectors, ids and
	// the metadata index. Metadata values themselves are not measured.
	MemoryBytes int

	// MetadataKeys lists the indexed metadata field names, sorted.
	MetadataKeys []string
}

// New creates an empty, unbound Store: its dimension is fixed by the first
// inserted vector.
func New(optFns ...Option) (*Store, error) {
	opts := applyOptions(optFns)

	return &Store{
		opts:      opts,
		byID:      make(map[string]uint32),
		metaIndex: metadata.NewInvertedIndex(),
		logger:    opts.logger,
		metrics:   opts.metricsCollector,
	}, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return len(s.ids)
}

// Dimension returns the fixed vector dimension, or 0 while the store is
// unbound.
func (s *Store) Dimension() int {
	return s.dimension
}

// Add inserts a vector with attached metadata and returns the record ID.
//
// The vector is L2-normalized by default (see WithoutNormalize); a zero
// vector is stored unchanged. The vector length must match the collection
// dimension; the first insert fixes it. A caller-supplied ID must be unique.
// On any error the collection is left unchanged.
func (s *Store) Add(ctx context.Context, vector []float32, meta any, optFns ...func(o *AddOptions)) (string, error) {
	start := time.Now()
	opts := AddOptions{Normalize: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	id, err := s.add(vector, meta, opts)
	s.metrics.RecordAdd(time.Since(start), err)
	s.logger.LogAdd(ctx, id, len(vector), err)
	return id, err
}

func (s *Store) add(vector []float32, meta any, opts AddOptions) (string, error) {
	if s.dimension != 0 && len(vector) != s.dimension {
		return "", &ErrDimensionMismatch{Expected: s.dimension, Actual: len(vector)}
	}
	if len(vector) == 0 {
		// Only reachable before the first insert fixes the dimension.
		return "", &ErrInvalidDimension{Dimension: 0}
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, exists := s.byID[id]; exists {
		return "", &ErrDuplicateID{ID: id}
	}

	v := slices.Clone(vector)
	if opts.Normalize {
		distance.NormalizeL2InPlace(v) // no-op for the zero vector
	}

	if s.dimension == 0 {
		s.dimension = len(v)
		s.vectors = vectorstore.New(s.dimension)
	}

	pos := uint32(len(s.ids))
	s.vectors.Append(v)
	s.metadatas = append(s.metadatas, meta)
	s.ids = append(s.ids, id)
	s.byID[id] = pos
	s.metaIndex.Add(pos, meta)

	return id, nil
}

// AddBatch inserts multiple items sequentially, applying the same per-item
// logic as Add and preserving input order in the returned IDs.
//
// Unlike Add, vectors are NOT normalized by default (see
// WithBatchNormalize): batch loads are assumed to be normalized upstream.
// A failing item does not roll back earlier items.
func (s *Store) AddBatch(ctx context.Context, items []Item, optFns ...func(o *BatchOptions)) BatchResult {
	start := time.Now()
	opts := BatchOptions{Normalize: false}
	for _, fn := range optFns {
		fn(&opts)
	}

	result := BatchResult{
		IDs:    make([]string, len(items)),
		Errors: make([]error, len(items)),
	}
	for i, item := range items {
		result.IDs[i], result.Errors[i] = s.add(item.Vector, item.Metadata, AddOptions{
			ID:        item.ID,
			Normalize: opts.Normalize,
		})
	}

	failed := result.Failed()
	s.metrics.RecordBatchAdd(len(items), failed, time.Since(start))
	s.logger.LogBatchAdd(ctx, len(items), failed)
	return result
}

// AddText inserts a pre-computed text embedding, merging the text into the
// metadata under TextMetadataKey.
//
// If meta is a string-keyed map, a copy is taken and the text entry is set,
// silently overwriting any existing value under that key. If meta is nil a
// new map is created. Any other metadata value is wrapped as
// {text, original}.
func (s *Store) AddText(ctx context.Context, text string, embedding []float32, meta any, optFns ...func(o *AddOptions)) (string, error) {
	var doc map[string]any
	switch m := meta.(type) {
	case nil:
		doc = map[string]any{TextMetadataKey: text}
	case map[string]any:
		doc = maps.Clone(m)
		doc[TextMetadataKey] = text
	default:
		doc = map[string]any{TextMetadataKey: text, originalMetadataKey: meta}
	}

	return s.Add(ctx, embedding, doc, optFns...)
}

// Get returns the record with the given ID, or ok=false if it does not
// exist. The returned vector is a copy.
func (s *Store) Get(id string) (Record, bool) {
	pos, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return Record{
		ID:       id,
		Vector:   s.vectors.Get(int(pos)),
		Metadata: s.metadatas[pos],
	}, true
}

// Delete removes the record with the given ID and reports whether it
// existed. Removal shifts later positions down, so the metadata index is
// fully rebuilt.
func (s *Store) Delete(ctx context.Context, id string) bool {
	start := time.Now()
	pos, found := s.byID[id]
	if found {
		s.deleteAt(pos)
	}
	s.metrics.RecordDelete(time.Since(start), found)
	s.logger.LogDelete(ctx, id, found)
	return found
}

func (s *Store) deleteAt(pos uint32) {
	s.vectors.Remove(int(pos))
	s.metadatas = append(s.metadatas[:pos], s.metadatas[pos+1:]...)
	delete(s.byID, s.ids[pos])
	s.ids = append(s.ids[:pos], s.ids[pos+1:]...)

	// Positions above pos shifted down by one.
	for i := int(pos); i < len(s.ids); i++ {
		s.byID[s.ids[i]] = uint32(i)
	}
	s.metaIndex.Rebuild(s.metadatas)
}

// Update replaces the vector and/or metadata of an existing record.
// It reports found=false (with a nil error) when the ID does not exist.
//
// A replacement vector must match the collection dimension and is
// normalized per the same rule as Add; on a dimension error no part of the
// update is applied. Replacing metadata triggers a full metadata index
// rebuild.
func (s *Store) Update(ctx context.Context, id string, optFns ...func(o *UpdateOptions)) (bool, error) {
	start := time.Now()
	opts := UpdateOptions{Normalize: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	found, err := s.update(id, opts)
	s.metrics.RecordUpdate(time.Since(start), err)
	s.logger.LogUpdate(ctx, id, found, err)
	return found, err
}

func (s *Store) update(id string, opts UpdateOptions) (bool, error) {
	pos, ok := s.byID[id]
	if !ok {
		return false, nil
	}

	// Validate everything before mutating anything.
	if opts.vector != nil && len(opts.vector) != s.dimension {
		return false, &ErrDimensionMismatch{Expected: s.dimension, Actual: len(opts.vector)}
	}

	if opts.vector != nil {
		v := slices.Clone(opts.vector)
		if opts.Normalize {
			distance.NormalizeL2InPlace(v)
		}
		s.vectors.Set(int(pos), v)
	}

	if opts.hasMetadata {
		s.metadatas[pos] = opts.metadata
		s.metaIndex.Rebuild(s.metadatas)
	}

	return true, nil
}

// QueryMetadata returns the records whose metadata matches every field=value
// pair exactly (AND semantics), in insertion order. Lookups go through the
// inverted index; only scalar values (string, bool, numeric) are indexed, so
// a filter on a non-scalar value or unknown field/value yields no results.
// An empty filter set yields no results.
func (s *Store) QueryMetadata(filters map[string]any) []Record {
	if s.Len() == 0 {
		return nil
	}

	matched := s.metaIndex.Query(filters)
	if matched.IsEmpty() {
		return nil
	}

	records := make([]Record, 0, matched.GetCardinality())
	it := matched.Iterator()
	for it.HasNext() {
		pos := it.Next()
		records = append(records, Record{
			ID:       s.ids[pos],
			Vector:   s.vectors.Get(int(pos)),
			Metadata: s.metadatas[pos],
		})
	}
	return records
}

// Compress re-encodes all stored vectors at a lower precision to reduce
// memory, and returns the achieved ratio (original bytes / new bytes).
// Compression is irreversible; subsequent inserts and updates are encoded
// at the reduced precision, and snapshots persist it.
func (s *Store) Compress(ctx context.Context, optFns ...func(o *CompressOptions)) (float64, error) {
	opts := CompressOptions{Bits: 16}
	for _, fn := range optFns {
		fn(&opts)
	}

	ratio, err := s.compress(opts.Bits)
	s.logger.LogCompress(ctx, opts.Bits, ratio, err)
	return ratio, err
}

func (s *Store) compress(bits int) (float64, error) {
	if s.vectors == nil || s.vectors.Len() == 0 {
		return 1, nil
	}
	if s.vectors.Quantizer() != nil {
		return 0, ErrAlreadyCompressed
	}

	q, err := quantization.ForBits(bits)
	if err != nil {
		return 0, err
	}

	training := make([][]float32, s.vectors.Len())
	for i := range training {
		training[i] = s.vectors.View(i, nil)
	}
	if err := q.Train(training); err != nil {
		return 0, err
	}

	before := s.vectors.MemoryBytes()
	s.vectors.Quantize(q)
	after := s.vectors.MemoryBytes()
	if after == 0 {
		return 1, nil
	}
	return float64(before) / float64(after), nil
}

// Clear removes all records and resets the dimension to unset, returning
// the store to its unbound state.
func (s *Store) Clear() {
	s.dimension = 0
	s.vectors = nil
	s.metadatas = nil
	s.ids = nil
	s.byID = make(map[string]uint32)
	s.metaIndex = metadata.NewInvertedIndex()
}

// Stats returns statistics about the collection.
func (s *Store) Stats() Stats {
	st := Stats{
		Count:         s.Len(),
		Dimension:     s.dimension,
		PrecisionBits: 32,
		MetadataKeys:  s.metaIndex.FieldNames(),
	}
	if s.vectors != nil {
		st.PrecisionBits = s.vectors.PrecisionBits()
		st.MemoryBytes = s.vectors.MemoryBytes()
	}
	for _, id := range s.ids {
		st.MemoryBytes += len(id)
	}
	st.MemoryBytes += int(s.metaIndex.SizeInBytes())
	return st
}
