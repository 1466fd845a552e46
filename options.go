package minivec

import (
	"github.com/hupe1980/minivec/codec"
	"github.com/hupe1980/minivec/persistence"
)

type options struct {
	storageRoot      string
	codec            codec.Codec
	compression      persistence.CompressionType
	logger           *Logger
	metricsCollector MetricsCollector
}

// Option configures Store constructor behavior.
type Option func(*options)

// WithStorageRoot configures the directory that SaveToDisk/LoadFromDisk
// resolve collection names against. The directory is created on first save.
// Default: "data".
func WithStorageRoot(root string) Option {
	return func(o *options) {
		o.storageRoot = root
	}
}

// WithCodec configures the codec used for metadata in snapshots.
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures the snapshot payload compression.
// Default: persistence.CompressionZSTD.
func WithCompression(t persistence.CompressionType) Option {
	return func(o *options) {
		o.compression = t
	}
}

// WithLogger configures structured logging. Pass nil to disable.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

func applyOptions(optFns []Option) options {
	opts := options{
		storageRoot:      "data",
		codec:            codec.Default,
		compression:      persistence.CompressionZSTD,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// AddOptions contains options for single inserts.
type AddOptions struct {
	// ID supplies the record ID. A UUID is generated when empty.
	// A supplied ID must not already exist in the collection.
	ID string

	// Normalize controls L2 normalization of the stored vector.
	// Default: true. Normalizing a zero vector is a no-op.
	Normalize bool
}

// WithID supplies a caller-chosen record ID.
func WithID(id string) func(o *AddOptions) {
	return func(o *AddOptions) {
		o.ID = id
	}
}

// WithoutNormalize stores the vector as-is.
//
// Mixing normalized and unnormalized records skews similarity scores; see
// the TopK contract.
func WithoutNormalize() func(o *AddOptions) {
	return func(o *AddOptions) {
		o.Normalize = false
	}
}

// BatchOptions contains options for batch inserts.
type BatchOptions struct {
	// Normalize controls L2 normalization of all stored vectors in the
	// batch. Default: false; batch loads are assumed to be normalized
	// upstream. Note this is the opposite of the single-insert default;
	// the asymmetry is deliberate.
	Normalize bool
}

// WithBatchNormalize enables L2 normalization for the whole batch.
func WithBatchNormalize() func(o *BatchOptions) {
	return func(o *BatchOptions) {
		o.Normalize = true
	}
}

// UpdateOptions contains options for updates. At least one of the vector or
// metadata must be supplied for the update to have an effect.
type UpdateOptions struct {
	vector      []float32
	metadata    any
	hasMetadata bool

	// Normalize controls L2 normalization of a replacement vector.
	// Default: true.
	Normalize bool
}

// WithNewVector replaces the stored vector. Its length must equal the
// collection dimension.
func WithNewVector(v []float32) func(o *UpdateOptions) {
	return func(o *UpdateOptions) {
		o.vector = v
	}
}

// WithNewMetadata replaces the stored metadata and triggers a full
// metadata index rebuild.
func WithNewMetadata(meta any) func(o *UpdateOptions) {
	return func(o *UpdateOptions) {
		o.metadata = meta
		o.hasMetadata = true
	}
}

// WithoutUpdateNormalize stores the replacement vector as-is.
func WithoutUpdateNormalize() func(o *UpdateOptions) {
	return func(o *UpdateOptions) {
		o.Normalize = false
	}
}

// FilterFunc decides whether a record participates in similarity ranking.
// Records failing the filter can never be selected.
type FilterFunc func(id string, metadata any) bool

// SearchOptions contains options for similarity search.
type SearchOptions struct {
	// Filter is applied to every record during the scan. Nil means no
	// filtering.
	Filter FilterFunc
}

// WithFilter restricts search results to records passing fn.
func WithFilter(fn FilterFunc) func(o *SearchOptions) {
	return func(o *SearchOptions) {
		o.Filter = fn
	}
}

// CompressOptions contains options for vector compression.
type CompressOptions struct {
	// Bits is the target per-dimension precision: 16 (half precision) or
	// 8 (scalar quantization). Default: 16.
	Bits int
}

// WithBits selects the target precision.
func WithBits(bits int) func(o *CompressOptions) {
	return func(o *CompressOptions) {
		o.Bits = bits
	}
}
