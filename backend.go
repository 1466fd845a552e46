package minivec

import (
	"context"
	"io"
)

// Backend is the operation surface of a vector collection. Store is the
// embedded implementation; the interface exists so callers can swap in a
// remote or mock implementation behind the same API. Remote implementations
// may treat the persistence methods as no-ops when the server owns
// durability.
type Backend interface {
	Add(ctx context.Context, vector []float32, meta any, optFns ...func(o *AddOptions)) (string, error)
	AddBatch(ctx context.Context, items []Item, optFns ...func(o *BatchOptions)) BatchResult
	Get(id string) (Record, bool)
	Delete(ctx context.Context, id string) bool
	Update(ctx context.Context, id string, optFns ...func(o *UpdateOptions)) (bool, error)
	TopK(ctx context.Context, query []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error)
	QueryMetadata(filters map[string]any) []Record
	Compress(ctx context.Context, optFns ...func(o *CompressOptions)) (float64, error)
	SaveToDisk(ctx context.Context, name string) error
	LoadFromDisk(ctx context.Context, name string) error
	SaveToWriter(w io.Writer) error
	LoadFromReader(r io.Reader) error
	Clear()
	Len() int
	Dimension() int
	Stats() Stats
}

var _ Backend = (*Store)(nil)
