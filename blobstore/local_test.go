package blobstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()

	t.Run("PutOpen", func(t *testing.T) {
		bs, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		content := []byte("hello blob")
		require.NoError(t, bs.Put(ctx, "snapshots/docs.mvec", bytes.NewReader(content), int64(len(content))))

		blob, err := bs.Open(ctx, "snapshots/docs.mvec")
		require.NoError(t, err)
		defer blob.Close()

		assert.Equal(t, int64(len(content)), blob.Size())
		got, err := io.ReadAll(blob)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("OpenMissing", func(t *testing.T) {
		bs, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		_, err = bs.Open(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		bs, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, bs.Put(ctx, "x", strings.NewReader("first"), 5))
		require.NoError(t, bs.Put(ctx, "x", strings.NewReader("second"), 6))

		blob, err := bs.Open(ctx, "x")
		require.NoError(t, err)
		defer blob.Close()

		got, err := io.ReadAll(blob)
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("Delete", func(t *testing.T) {
		bs, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, bs.Put(ctx, "x", strings.NewReader("data"), 4))
		require.NoError(t, bs.Delete(ctx, "x"))

		_, err = bs.Open(ctx, "x")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting again is fine.
		assert.NoError(t, bs.Delete(ctx, "x"))
	})

	t.Run("List", func(t *testing.T) {
		bs, err := NewLocalStore(t.TempDir())
		require.NoError(t, err)

		for _, name := range []string{"a/one", "a/two", "b/three"} {
			require.NoError(t, bs.Put(ctx, name, strings.NewReader("x"), 1))
		}

		names, err := bs.List(ctx, "a/")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/one", "a/two"}, names)

		all, err := bs.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}
