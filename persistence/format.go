package persistence

import "errors"

const (
	// MagicNumber identifies minivec snapshot files (ASCII "MVEC").
	MagicNumber = 0x4D564543

	// VersionLegacy is the original 3-field format: per-record vector and
	// metadata only, no IDs and no explicit dimension.
	VersionLegacy = 1

	// VersionCurrent is the current 4-field format with an explicit header
	// (compression, precision, codec name) and CRC-protected payload.
	VersionCurrent = 2
)

var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("unsupported format version")
	ErrInvalidCompression = errors.New("unsupported compression type")
	ErrChecksumMismatch   = errors.New("payload checksum mismatch")
	ErrCorruptSnapshot    = errors.New("corrupt snapshot")
)

// CompressionType selects the payload compression algorithm.
// The choice is recorded in the snapshot header, so files are self-describing.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionLZ4
	CompressionZSTD
)

func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

func (t CompressionType) valid() bool {
	return t <= CompressionZSTD
}

// Snapshot is the serialized state of one collection: the three parallel
// sequences plus dimension and vector precision.
//
// For VersionLegacy files IDs is nil and Dimension/Precision are zero; the
// caller is responsible for synthesizing IDs and inferring the dimension
// from LegacyVectors.
type Snapshot struct {
	Version   uint16
	CodecName string

	Count     int
	Dimension int
	Precision int // bits per dimension: 32, 16 or 8

	QuantizerParams []byte
	VectorData      []byte   // packed rows; layout determined by Precision
	IDs             []string // nil for legacy files
	Metadata        [][]byte // codec-encoded, one entry per record

	// LegacyVectors carries per-record vectors for VersionLegacy files,
	// where row width is not known up front.
	LegacyVectors [][]float32
}
