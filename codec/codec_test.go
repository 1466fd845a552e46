package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	_, ok = ByName("msgpack")
	assert.False(t, ok)
}

func TestJSON(t *testing.T) {
	data, err := JSON{}.Marshal(map[string]any{"k": "v", "n": 1})
	require.NoError(t, err)

	var got any
	require.NoError(t, JSON{}.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{"k": "v", "n": float64(1)}, got)
}
