// Package codec centralizes metadata payload encoding.
//
// Codec selection is a compatibility boundary: snapshots record the codec
// name in their header so that files written with one codec are decoded with
// the same codec on load.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
//
// This is used by the snapshot format, which stores the codec name in its
// header so files are self-describing.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	default:
		return nil, false
	}
}

// Default is the codec used when none is configured explicitly.
var Default Codec = JSON{}
