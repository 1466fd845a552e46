// Package vectorstore provides columnar float32 vector storage with optional
// quantized backing.
//
// Vectors are stored in a single contiguous slice (struct-of-arrays layout)
// while at full precision. After quantization the store keeps per-row codes
// and decodes on read; the transition is one-way.
package vectorstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/minivec/quantization"
)

// Columnar stores fixed-dimension vectors addressed by dense position.
type Columnar struct {
	dim   int
	data  []float32 // SOA backing; active while quant == nil
	codes [][]byte  // quantized backing; active when quant != nil
	quant quantization.Quantizer
}

// New creates an empty store for vectors of the given dimension.
func New(dimension int) *Columnar {
	return &Columnar{dim: dimension}
}

// Dimension returns the fixed vector dimension.
func (c *Columnar) Dimension() int { return c.dim }

// Len returns the number of stored vectors.
func (c *Columnar) Len() int {
	if c.quant != nil {
		return len(c.codes)
	}
	if c.dim == 0 {
		return 0
	}
	return len(c.data) / c.dim
}

// Quantizer returns the active quantizer, or nil at full precision.
func (c *Columnar) Quantizer() quantization.Quantizer { return c.quant }

// PrecisionBits returns the per-dimension storage precision (32, 16 or 8).
func (c *Columnar) PrecisionBits() int {
	if c.quant != nil {
		return c.quant.Bits()
	}
	return 32
}

// Append adds v at the next position. len(v) must equal the dimension.
func (c *Columnar) Append(v []float32) {
	if c.quant != nil {
		c.codes = append(c.codes, c.quant.Encode(v))
		return
	}
	c.data = append(c.data, v...)
}

// Set replaces the vector at position i.
func (c *Columnar) Set(i int, v []float32) {
	if c.quant != nil {
		c.codes[i] = c.quant.Encode(v)
		return
	}
	copy(c.data[i*c.dim:(i+1)*c.dim], v)
}

// View returns the vector at position i without copying where possible.
// At full precision the returned slice aliases the backing array and must
// not be mutated or retained across mutations. When quantized, the vector
// is decoded into scratch (grown as needed) and that buffer is returned.
func (c *Columnar) View(i int, scratch []float32) []float32 {
	if c.quant != nil {
		return c.quant.Decode(c.codes[i], scratch)
	}
	return c.data[i*c.dim : (i+1)*c.dim]
}

// Get returns a copy of the vector at position i.
func (c *Columnar) Get(i int) []float32 {
	out := make([]float32, c.dim)
	copy(out, c.View(i, out))
	return out
}

// Remove deletes the vector at position i, shifting later positions down.
func (c *Columnar) Remove(i int) {
	if c.quant != nil {
		c.codes = append(c.codes[:i], c.codes[i+1:]...)
		return
	}
	c.data = append(c.data[:i*c.dim], c.data[(i+1)*c.dim:]...)
}

// Quantize re-encodes all vectors through q and switches to quantized
// backing. The transition is irreversible; q must already be trained.
func (c *Columnar) Quantize(q quantization.Quantizer) {
	n := c.Len()
	codes := make([][]byte, n)
	for i := range n {
		codes[i] = q.Encode(c.data[i*c.dim : (i+1)*c.dim])
	}
	c.codes = codes
	c.data = nil
	c.quant = q
}

// MemoryBytes returns the size of the vector backing in bytes.
func (c *Columnar) MemoryBytes() int {
	if c.quant != nil {
		var total int
		for _, code := range c.codes {
			total += len(code)
		}
		return total
	}
	return 4 * len(c.data)
}

// Raw serializes the backing into a flat byte slice for persistence, along
// with the precision and quantizer parameters needed to reconstruct it.
func (c *Columnar) Raw() (bits int, params []byte, data []byte, err error) {
	if c.quant != nil {
		params, err = c.quant.MarshalBinary()
		if err != nil {
			return 0, nil, nil, err
		}
		size := c.quant.CodeSize(c.dim)
		data = make([]byte, 0, size*len(c.codes))
		for _, code := range c.codes {
			data = append(data, code...)
		}
		return c.quant.Bits(), params, data, nil
	}

	data = make([]byte, 4*len(c.data))
	for i, f := range c.data {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(f))
	}
	return 32, nil, data, nil
}

// FromRaw reconstructs a store from its serialized form.
func FromRaw(dimension, count, bits int, params, data []byte) (*Columnar, error) {
	c := New(dimension)
	if count == 0 {
		return c, nil
	}
	if dimension <= 0 {
		return nil, errors.New("vectorstore: non-empty store requires a positive dimension")
	}

	if bits == 32 {
		if len(data) != 4*dimension*count {
			return nil, fmt.Errorf("vectorstore: vector section is %d bytes, want %d", len(data), 4*dimension*count)
		}
		c.data = make([]float32, dimension*count)
		for i := range c.data {
			c.data[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return c, nil
	}

	q, err := quantization.Unmarshal(bits, params)
	if err != nil {
		return nil, err
	}
	size := q.CodeSize(dimension)
	if len(data) != size*count {
		return nil, fmt.Errorf("vectorstore: vector section is %d bytes, want %d", len(data), size*count)
	}
	c.quant = q
	c.codes = make([][]byte, count)
	for i := range count {
		code := make([]byte, size)
		copy(code, data[i*size:(i+1)*size])
		c.codes[i] = code
	}
	return c, nil
}
