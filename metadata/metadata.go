// Package metadata provides scalar-field extraction and inverted indexing
// for exact-match metadata queries.
//
// Record metadata is opaque to the store: any value is legal. Only
// string-keyed maps with scalar values (string, bool, integer, float)
// participate in indexing; everything else is reachable solely through the
// linear-scan filter path during similarity search.
package metadata

import (
	"math"
	"strconv"
)

// ScalarKey returns a stable string representation of a scalar value for use
// as an inverted-index key, and whether the value is an indexable scalar.
//
// The encoding is type-prefixed so that, for example, the string "1" and the
// integer 1 occupy distinct postings. Floats are keyed by their exact bit
// pattern to avoid formatting ambiguity. The encoding must remain stable
// across versions; persisted files are re-indexed on load, but query results
// depend on insert and query agreeing on the key.
func ScalarKey(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return "s:" + v, true
	case bool:
		if v {
			return "b:1", true
		}
		return "b:0", true
	case int:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int8:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int16:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int32:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int64:
		return "i:" + strconv.FormatInt(v, 10), true
	case uint:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return "i:" + strconv.FormatUint(v, 10), true
	case float32:
		return floatKey(float64(v)), true
	case float64:
		return floatKey(v), true
	default:
		return "", false
	}
}

func floatKey(f float64) string {
	// Integral floats share postings with the equivalent integer, so that
	// JSON round trips (which decode numbers as float64) keep matching
	// values inserted as Go ints.
	if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
		return "i:" + strconv.FormatInt(int64(f), 10)
	}
	return "f:" + strconv.FormatUint(math.Float64bits(f), 16)
}

// ScalarFields extracts the indexable fields of a metadata value.
// It returns field name -> scalar key for every scalar-valued entry, or nil
// if meta is not a string-keyed map or has no scalar fields.
func ScalarFields(meta any) map[string]string {
	doc, ok := meta.(map[string]any)
	if !ok {
		return nil
	}

	var fields map[string]string
	for k, v := range doc {
		sk, ok := ScalarKey(v)
		if !ok {
			continue
		}
		if fields == nil {
			fields = make(map[string]string, len(doc))
		}
		fields[k] = sk
	}
	return fields
}
