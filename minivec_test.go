package minivec

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("GeneratesID", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		id, err := s.Add(ctx, []float32{1, 2, 3}, map[string]any{"kind": "demo"})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, 1, s.Len())
		assert.Equal(t, 3, s.Dimension())
	})

	t.Run("CallerID", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		id, err := s.Add(ctx, []float32{1, 0}, nil, WithID("doc-1"))
		require.NoError(t, err)
		assert.Equal(t, "doc-1", id)

		rec, ok := s.Get("doc-1")
		require.True(t, ok)
		assert.Equal(t, "doc-1", rec.ID)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, nil, WithID("doc-1"))
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{0, 1}, nil, WithID("doc-1"))
		var dup *ErrDuplicateID
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "doc-1", dup.ID)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("NormalizesByDefault", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		id, err := s.Add(ctx, []float32{3, 4}, nil)
		require.NoError(t, err)

		rec, ok := s.Get(id)
		require.True(t, ok)

		var norm float64
		for _, x := range rec.Vector {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	})

	t.Run("WithoutNormalize", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		id, err := s.Add(ctx, []float32{3, 4}, nil, WithoutNormalize())
		require.NoError(t, err)

		rec, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, rec.Vector)
	})

	t.Run("ZeroVectorUnchanged", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		id, err := s.Add(ctx, []float32{0, 0, 0}, nil)
		require.NoError(t, err)

		rec, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, []float32{0, 0, 0}, rec.Vector)
	})

	t.Run("EmptyVector", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, nil, nil)
		var invalid *ErrInvalidDimension
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("EmptyVectorAfterDimensionFixed", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 2, 3}, nil)
		require.NoError(t, err)

		_, err = s.Add(ctx, nil, nil)
		var mismatch *ErrDimensionMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 3, mismatch.Expected)
		assert.Equal(t, 0, mismatch.Actual)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 2, 3}, nil)
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 2}, nil)
		var mismatch *ErrDimensionMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 3, mismatch.Expected)
		assert.Equal(t, 2, mismatch.Actual)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("CallerVectorNotAliased", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		v := []float32{1, 0}
		id, err := s.Add(ctx, v, nil, WithoutNormalize())
		require.NoError(t, err)

		v[0] = 99
		rec, _ := s.Get(id)
		assert.Equal(t, []float32{1, 0}, rec.Vector)
	})
}

func TestAddBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("PreservesOrder", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		result := s.AddBatch(ctx, []Item{
			{Vector: []float32{1, 0}, ID: "a"},
			{Vector: []float32{0, 1}, ID: "b"},
		})
		require.Equal(t, 0, result.Failed())
		assert.Equal(t, []string{"a", "b"}, result.IDs)
	})

	t.Run("NoNormalizationByDefault", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		result := s.AddBatch(ctx, []Item{{Vector: []float32{3, 4}}})
		require.Equal(t, 0, result.Failed())

		rec, ok := s.Get(result.IDs[0])
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, rec.Vector)
	})

	t.Run("WithBatchNormalize", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		result := s.AddBatch(ctx, []Item{{Vector: []float32{3, 4}}}, WithBatchNormalize())
		require.Equal(t, 0, result.Failed())

		rec, ok := s.Get(result.IDs[0])
		require.True(t, ok)
		assert.InDelta(t, 0.6, rec.Vector[0], 1e-6)
		assert.InDelta(t, 0.8, rec.Vector[1], 1e-6)
	})

	t.Run("PartialFailure", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		result := s.AddBatch(ctx, []Item{
			{Vector: []float32{1, 0}, ID: "a"},
			{Vector: []float32{1, 0, 0}, ID: "bad"},
			{Vector: []float32{0, 1}, ID: "c"},
		})
		assert.Equal(t, 1, result.Failed())
		assert.NoError(t, result.Errors[0])
		assert.Error(t, result.Errors[1])
		assert.Empty(t, result.IDs[1])
		assert.NoError(t, result.Errors[2])
		assert.Equal(t, 2, s.Len())
	})
}

func TestAddText(t *testing.T) {
	ctx := context.Background()

	t.Run("MergesIntoMap", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		meta := map[string]any{"lang": "en"}
		id, err := s.AddText(ctx, "hello world", []float32{1, 0}, meta)
		require.NoError(t, err)

		rec, ok := s.Get(id)
		require.True(t, ok)
		m := rec.Metadata.(map[string]any)
		assert.Equal(t, "hello world", m[TextMetadataKey])
		assert.Equal(t, "en", m["lang"])

		// The caller's map is untouched.
		assert.NotContains(t, meta, TextMetadataKey)
	})

	t.Run("NilMetadata", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		id, err := s.AddText(ctx, "hello", []float32{1, 0}, nil)
		require.NoError(t, err)

		rec, _ := s.Get(id)
		assert.Equal(t, map[string]any{TextMetadataKey: "hello"}, rec.Metadata)
	})

	t.Run("WrapsNonMap", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		id, err := s.AddText(ctx, "hello", []float32{1, 0}, 42)
		require.NoError(t, err)

		rec, _ := s.Get(id)
		m := rec.Metadata.(map[string]any)
		assert.Equal(t, "hello", m[TextMetadataKey])
		assert.Equal(t, 42, m["original"])
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("RemovesRecord", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, nil, WithID("a"))
		require.NoError(t, err)
		_, err = s.Add(ctx, []float32{0, 1}, nil, WithID("b"))
		require.NoError(t, err)

		assert.True(t, s.Delete(ctx, "a"))
		assert.Equal(t, 1, s.Len())

		_, ok := s.Get("a")
		assert.False(t, ok)
		_, ok = s.Get("b")
		assert.True(t, ok)
	})

	t.Run("MissingID", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		assert.False(t, s.Delete(ctx, "nope"))
	})

	t.Run("KeepsDimension", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0, 0}, nil, WithID("a"))
		require.NoError(t, err)
		require.True(t, s.Delete(ctx, "a"))

		// The dimension stays fixed even when the store empties.
		assert.Equal(t, 3, s.Dimension())
		_, err = s.Add(ctx, []float32{1, 2}, nil)
		assert.Error(t, err)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("ReplacesVector", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, nil, WithID("a"))
		require.NoError(t, err)

		found, err := s.Update(ctx, "a", WithNewVector([]float32{3, 4}))
		require.NoError(t, err)
		require.True(t, found)

		rec, _ := s.Get("a")
		assert.InDelta(t, 0.6, rec.Vector[0], 1e-6)
		assert.InDelta(t, 0.8, rec.Vector[1], 1e-6)
	})

	t.Run("ReplacesMetadata", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, map[string]any{"v": 1}, WithID("a"))
		require.NoError(t, err)

		found, err := s.Update(ctx, "a", WithNewMetadata(map[string]any{"v": 2}))
		require.NoError(t, err)
		require.True(t, found)

		matches := s.QueryMetadata(map[string]any{"v": 2})
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].ID)
		assert.Empty(t, s.QueryMetadata(map[string]any{"v": 1}))
	})

	t.Run("MissingIDIsNotAnError", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		found, err := s.Update(ctx, "nope", WithNewVector([]float32{1}))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("DimensionMismatchLeavesRecordIntact", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, map[string]any{"v": 1}, WithID("a"))
		require.NoError(t, err)

		found, err := s.Update(ctx, "a",
			WithNewVector([]float32{1, 2, 3}),
			WithNewMetadata(map[string]any{"v": 2}),
		)
		var mismatch *ErrDimensionMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.False(t, found)

		// Neither the vector nor the metadata changed.
		rec, _ := s.Get("a")
		assert.Equal(t, map[string]any{"v": 1}, rec.Metadata)
	})
}

func TestQueryMetadata(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) *Store {
		t.Helper()
		s, err := New()
		require.NoError(t, err)
		_, err = s.Add(ctx, []float32{1, 0}, map[string]any{"category": "tech", "year": 2024}, WithID("a"))
		require.NoError(t, err)
		_, err = s.Add(ctx, []float32{0, 1}, map[string]any{"category": "tech", "year": 2025}, WithID("b"))
		require.NoError(t, err)
		_, err = s.Add(ctx, []float32{1, 1}, map[string]any{"category": "art"}, WithID("c"))
		require.NoError(t, err)
		return s
	}

	t.Run("SingleField", func(t *testing.T) {
		s := newStore(t)

		matches := s.QueryMetadata(map[string]any{"category": "tech"})
		require.Len(t, matches, 2)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, "b", matches[1].ID)
	})

	t.Run("ANDSemantics", func(t *testing.T) {
		s := newStore(t)

		matches := s.QueryMetadata(map[string]any{"category": "tech", "year": 2025})
		require.Len(t, matches, 1)
		assert.Equal(t, "b", matches[0].ID)
	})

	t.Run("NumericEquivalence", func(t *testing.T) {
		s := newStore(t)

		// int and float64 filters match the same indexed value.
		assert.Len(t, s.QueryMetadata(map[string]any{"year": float64(2024)}), 1)
		assert.Len(t, s.QueryMetadata(map[string]any{"year": 2024}), 1)
	})

	t.Run("NoMatches", func(t *testing.T) {
		s := newStore(t)

		assert.Empty(t, s.QueryMetadata(map[string]any{"category": "sports"}))
		assert.Empty(t, s.QueryMetadata(map[string]any{"unknown": "x"}))
	})

	t.Run("EmptyFilters", func(t *testing.T) {
		s := newStore(t)
		assert.Empty(t, s.QueryMetadata(nil))
		assert.Empty(t, s.QueryMetadata(map[string]any{}))
	})
}

func TestCompress(t *testing.T) {
	ctx := context.Background()

	t.Run("HalvesMemory", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			_, err := s.Add(ctx, []float32{float32(i), 1, 2, 3}, nil)
			require.NoError(t, err)
		}

		before := s.Stats().MemoryBytes
		ratio, err := s.Compress(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, ratio, 0.01)
		assert.Equal(t, 16, s.Stats().PrecisionBits)
		assert.Less(t, s.Stats().MemoryBytes, before)
	})

	t.Run("SearchStillWorks", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0, 0}, nil, WithID("x"))
		require.NoError(t, err)
		_, err = s.Add(ctx, []float32{0, 1, 0}, nil, WithID("y"))
		require.NoError(t, err)

		_, err = s.Compress(ctx, WithBits(8))
		require.NoError(t, err)

		results, err := s.TopK(ctx, []float32{1, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "x", results[0].ID)
	})

	t.Run("EmptyStore", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		ratio, err := s.Compress(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1.0, ratio)
	})

	t.Run("AlreadyCompressed", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, nil)
		require.NoError(t, err)

		_, err = s.Compress(ctx)
		require.NoError(t, err)

		_, err = s.Compress(ctx)
		assert.ErrorIs(t, err, ErrAlreadyCompressed)
	})

	t.Run("UnsupportedBits", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		_, err = s.Add(ctx, []float32{1, 0}, nil)
		require.NoError(t, err)

		_, err = s.Compress(ctx, WithBits(4))
		assert.Error(t, err)
	})
}

func TestClear(t *testing.T) {
	ctx := context.Background()

	s, err := New()
	require.NoError(t, err)

	_, err = s.Add(ctx, []float32{1, 0, 0}, map[string]any{"k": "v"})
	require.NoError(t, err)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Dimension())

	// The store is unbound again.
	_, err = s.Add(ctx, []float32{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Dimension())
}

func TestStats(t *testing.T) {
	ctx := context.Background()

	s, err := New()
	require.NoError(t, err)

	st := s.Stats()
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, 0, st.Dimension)

	_, err = s.Add(ctx, []float32{1, 0}, map[string]any{"category": "tech", "year": 2024})
	require.NoError(t, err)

	st = s.Stats()
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, 2, st.Dimension)
	assert.Equal(t, 32, st.PrecisionBits)
	assert.Positive(t, st.MemoryBytes)
	assert.Equal(t, []string{"category", "year"}, st.MetadataKeys)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()

	mc := &BasicMetricsCollector{}
	s, err := New(WithMetricsCollector(mc))
	require.NoError(t, err)

	_, err = s.Add(ctx, []float32{1, 0}, nil)
	require.NoError(t, err)
	_, err = s.TopK(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	s.Delete(ctx, "nope")

	stats := mc.Stats()
	assert.Equal(t, int64(1), stats.AddCount)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(1), stats.DeleteCount)
	assert.Equal(t, int64(1), stats.DeleteMisses)
}
