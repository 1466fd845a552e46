package minivec

import (
	"context"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/minivec/distance"
	"github.com/hupe1980/minivec/embedding"
)

const (
	// parallelThreshold is the record count above which the similarity scan
	// fans out across CPUs.
	parallelThreshold = 4096

	// ctxCheckInterval bounds how often a scan polls for cancellation.
	ctxCheckInterval = 1024
)

// SearchResult is one ranked similarity match.
type SearchResult struct {
	ID       string
	Metadata any

	// Score is the dot product of the stored vector with the L2-normalized
	// query. For records stored normalized this is the cosine similarity.
	Score float32
}

// TopK returns the k highest-scoring records for the query vector,
// descending by score, with ties broken by insertion order. Fewer than k
// results are returned when the collection (or the subset passing the
// filter) is smaller; an empty collection yields an empty result.
//
// The query is always L2-normalized before comparison. Stored vectors are
// only normalized if normalization was requested at insert time: against
// records inserted with normalization disabled, scores are plain dot
// products against the unit query rather than true cosine similarity. Keep
// insertion normalization consistent if scores must be comparable across
// records.
//
// The scan is exact (O(n·d)) and honors context cancellation.
func (s *Store) TopK(ctx context.Context, query []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	start := time.Now()
	opts := SearchOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	results, err := s.topK(ctx, query, k, opts.Filter)
	s.metrics.RecordSearch(k, time.Since(start), err)
	s.logger.LogSearch(ctx, k, len(results), err)
	return results, err
}

func (s *Store) topK(ctx context.Context, query []float32, k int, filter FilterFunc) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	n := s.Len()
	if n == 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, &ErrDimensionMismatch{Expected: s.dimension, Actual: len(query)}
	}
	if k > n {
		// At most n results exist; never size heaps off the raw request.
		k = n
	}

	// The zero query cannot be normalized; every score is then zero.
	q, _ := distance.NormalizeL2Copy(query)

	var merged *topKHeap
	if n < parallelThreshold || runtime.GOMAXPROCS(0) == 1 {
		merged = newTopKHeap(k)
		if err := s.scanRange(ctx, q, filter, 0, n, merged); err != nil {
			return nil, err
		}
	} else {
		var err error
		merged, err = s.scanParallel(ctx, q, filter, n, k)
		if err != nil {
			return nil, err
		}
	}

	return s.extract(merged), nil
}

// scanRange scores records in [lo, hi), pushing candidates into h.
func (s *Store) scanRange(ctx context.Context, q []float32, filter FilterFunc, lo, hi int, h *topKHeap) error {
	scratch := make([]float32, s.dimension)
	for i := lo; i < hi; i++ {
		if (i-lo)%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if filter != nil && !filter(s.ids[i], s.metadatas[i]) {
			// Failing records can never be selected; they also do not
			// occupy a result slot.
			continue
		}
		h.push(candidate{pos: uint32(i), score: distance.Dot(s.vectors.View(i, scratch), q)})
	}
	return nil
}

func (s *Store) scanParallel(ctx context.Context, q []float32, filter FilterFunc, n, k int) (*topKHeap, error) {
	workers := runtime.GOMAXPROCS(0)
	if max := (n + parallelThreshold - 1) / parallelThreshold; workers > max {
		workers = max
	}

	heaps := make([]*topKHeap, workers)
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		lo := w * chunk
		hi := min(lo+chunk, n)
		h := newTopKHeap(k)
		heaps[w] = h
		g.Go(func() error {
			return s.scanRange(gctx, q, filter, lo, hi, h)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := newTopKHeap(k)
	for _, h := range heaps {
		for _, c := range h.items {
			merged.push(c)
		}
	}
	return merged, nil
}

func (s *Store) extract(h *topKHeap) []SearchResult {
	items := slices.Clone(h.items)
	slices.SortFunc(items, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		case a.pos < b.pos:
			return -1
		case a.pos > b.pos:
			return 1
		default:
			return 0
		}
	})

	results := make([]SearchResult, len(items))
	for i, c := range items {
		results[i] = SearchResult{
			ID:       s.ids[c.pos],
			Metadata: s.metadatas[c.pos],
			Score:    c.score,
		}
	}
	return results
}

// SearchText embeds the query text via the given embedder and delegates to
// TopK. Blank or whitespace-only text fails with ErrEmptyQuery before the
// embedder is invoked.
func (s *Store) SearchText(ctx context.Context, query string, embedder embedding.Embedder, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	vector, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, &OperationError{Op: "embed query", Err: err}
	}

	return s.TopK(ctx, vector, k, optFns...)
}

// candidate is one scored record position during a scan.
type candidate struct {
	pos   uint32
	score float32
}

// topKHeap is a bounded min-heap holding the best k candidates seen so far.
// The root is the current worst candidate: lowest score, with equal scores
// ranking later insertions as worse, which yields a stable final order.
type topKHeap struct {
	items []candidate
	k     int
}

func newTopKHeap(k int) *topKHeap {
	return &topKHeap{items: make([]candidate, 0, k), k: k}
}

// worse reports whether a ranks below b.
func worse(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.pos > b.pos
}

func (h *topKHeap) push(c candidate) {
	if len(h.items) < h.k {
		h.items = append(h.items, c)
		h.siftUp(len(h.items) - 1)
		return
	}
	if worse(c, h.items[0]) {
		return
	}
	h.items[0] = c
	h.siftDown(0)
}

func (h *topKHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !worse(h.items[i], h.items[parent]) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *topKHeap) siftDown(i int) {
	n := len(h.items)
	for {
		worst := i
		if l := 2*i + 1; l < n && worse(h.items[l], h.items[worst]) {
			worst = l
		}
		if r := 2*i + 2; r < n && worse(h.items[r], h.items[worst]) {
			worst = r
		}
		if worst == i {
			return
		}
		h.items[i], h.items[worst] = h.items[worst], h.items[i]
		i = worst
	}
}
