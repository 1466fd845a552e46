package minivec

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/minivec/distance"
)

func TestTopK(t *testing.T) {
	ctx := context.Background()

	t.Run("RanksByCosineSimilarity", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0, 0, 0}, nil, WithID("v1"))
		require.NoError(t, err)
		_, err = s.Add(ctx, []float32{0, 1, 0, 0}, nil, WithID("v2"))
		require.NoError(t, err)
		_, err = s.Add(ctx, []float32{0.9, 0.1, 0, 0}, nil, WithID("v3"))
		require.NoError(t, err)

		results, err := s.TopK(ctx, []float32{1, 0, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "v1", results[0].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Equal(t, "v3", results[1].ID)
		assert.InDelta(t, 0.9939, results[1].Score, 1e-4)
	})

	t.Run("KLargerThanCollection", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, nil)
		require.NoError(t, err)

		results, err := s.TopK(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, results, 1)

		// Arbitrarily large k must truncate, not allocate.
		results, err = s.TopK(ctx, []float32{1, 0}, math.MaxInt)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("EmptyCollection", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		results, err := s.TopK(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("InvalidK", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.TopK(ctx, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, ErrInvalidK)

		_, err = s.TopK(ctx, []float32{1, 0}, -3)
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0, 0}, nil)
		require.NoError(t, err)

		_, err = s.TopK(ctx, []float32{1, 0}, 1)
		var mismatch *ErrDimensionMismatch
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("QueryNormalizedNotMutated", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, nil, WithID("a"))
		require.NoError(t, err)

		q := []float32{3, 0}
		results, err := s.TopK(ctx, q, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)

		// Scores come from the normalized copy; the caller's query is intact.
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Equal(t, []float32{3, 0}, q)
	})

	t.Run("TiesBreakByInsertionOrder", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		// Identical vectors under distinct IDs score identically.
		for _, id := range []string{"first", "second", "third"} {
			_, err := s.Add(ctx, []float32{1, 0}, nil, WithID(id))
			require.NoError(t, err)
		}

		results, err := s.TopK(ctx, []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "first", results[0].ID)
		assert.Equal(t, "second", results[1].ID)
	})

	t.Run("Filter", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, map[string]any{"lang": "en"}, WithID("en-1"))
		require.NoError(t, err)
		_, err = s.Add(ctx, []float32{0.99, 0.01}, map[string]any{"lang": "de"}, WithID("de-1"))
		require.NoError(t, err)

		results, err := s.TopK(ctx, []float32{1, 0}, 2, WithFilter(func(_ string, meta any) bool {
			m, _ := meta.(map[string]any)
			return m["lang"] == "de"
		}))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "de-1", results[0].ID)
	})

	t.Run("FilterRejectsAll", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, nil)
		require.NoError(t, err)

		results, err := s.TopK(ctx, []float32{1, 0}, 1, WithFilter(func(string, any) bool {
			return false
		}))
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Cancellation", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		for i := 0; i < 100; i++ {
			_, err := s.Add(ctx, []float32{float32(i), 1}, nil)
			require.NoError(t, err)
		}

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err = s.TopK(cancelled, []float32{1, 0}, 5)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ParallelScanMatchesSerial", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		// Enough records to cross the parallel threshold.
		n := parallelThreshold + 500
		items := make([]Item, n)
		for i := range items {
			items[i] = Item{
				Vector: []float32{float32(i%97) + 1, float32(i%13) + 1, 1},
				ID:     fmt.Sprintf("rec-%05d", i),
			}
		}
		result := s.AddBatch(ctx, items, WithBatchNormalize())
		require.Equal(t, 0, result.Failed())

		query := []float32{5, 2, 1}
		parallel, err := s.TopK(ctx, query, 10)
		require.NoError(t, err)

		q, _ := distance.NormalizeL2Copy(query)
		serial := newTopKHeap(10)
		require.NoError(t, s.scanRange(ctx, q, nil, 0, n, serial))
		expected := s.extract(serial)

		require.Len(t, parallel, 10)
		for i := range expected {
			assert.Equal(t, expected[i].ID, parallel[i].ID)
			assert.InDelta(t, expected[i].Score, parallel[i].Score, 1e-6)
		}
	})
}

func TestSearchText(t *testing.T) {
	ctx := context.Background()

	embedder := fakeEmbedder{
		"apple":  {1, 0, 0},
		"banana": {0, 1, 0},
	}

	t.Run("DelegatesToTopK", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.AddText(ctx, "apple", []float32{1, 0, 0}, nil, WithID("apple"))
		require.NoError(t, err)
		_, err = s.AddText(ctx, "banana", []float32{0, 1, 0}, nil, WithID("banana"))
		require.NoError(t, err)

		results, err := s.SearchText(ctx, "apple", embedder, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "apple", results[0].ID)
	})

	t.Run("BlankQuery", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.SearchText(ctx, "   ", embedder, 1)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("EmbedderError", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.SearchText(ctx, "unknown", embedder, 1)
		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "embed query", opErr.Op)
	})
}

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder map[string][]float32

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := f[text]
	if !ok {
		return nil, fmt.Errorf("unknown text %q", text)
	}
	return v, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f fakeEmbedder) Dimensions() int { return 3 }
