// Package minivec provides an embedded store of fixed-dimension vectors with
// attached opaque metadata and exact top-k cosine retrieval.
//
// A Store keeps its records in memory as three parallel sequences (vectors,
// metadata, ids) sharing one logical position, plus an inverted index over
// scalar metadata fields for exact-match queries. The vector dimension is
// fixed by the first insert and enforced on every subsequent insert, update
// and query.
//
// # Quick start
//
//	store, err := minivec.New()
//	if err != nil {
//	    panic(err)
//	}
//
//	id, err := store.Add(ctx, []float32{0.1, 0.9, 0.2}, map[string]any{
//	    "category": "tech",
//	    "year":     2024,
//	})
//
//	results, err := store.TopK(ctx, query, 3,
//	    minivec.WithFilter(func(id string, meta any) bool {
//	        doc, ok := meta.(map[string]any)
//	        return ok && doc["category"] == "tech"
//	    }))
//
// Exact-match metadata lookups use the inverted index instead of a scan:
//
//	records := store.QueryMetadata(map[string]any{"category": "tech", "year": 2024})
//
// The full collection state round-trips through a versioned binary snapshot:
//
//	err = store.SaveToDisk(ctx, "articles")
//	err = store.LoadFromDisk(ctx, "articles")
//
// # Concurrency
//
// A Store holds no internal locks. Every mutating operation assumes
// exclusive access for its duration; concurrent callers must serialize
// access externally, for example with one sync.Mutex per Store. Search and
// other read operations may run concurrently with each other, but not with
// mutations.
//
// # Search and persistence scale
//
// Similarity search is an exact linear scan: O(n·d) per query, with
// best-effort context cancellation. There is no approximate index; for
// collections beyond a few hundred thousand vectors an ANN-based engine is
// the better tool. Persistence is a whole-collection snapshot, not a write
// ahead log; a crash between saves loses the delta.
package minivec
