package minivec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/minivec/blobstore"
	"github.com/hupe1980/minivec/codec"
	"github.com/hupe1980/minivec/metadata"
	"github.com/hupe1980/minivec/persistence"
	"github.com/hupe1980/minivec/vectorstore"
)

// snapshotExt is the file extension for collection snapshots.
const snapshotExt = ".mvec"

func (s *Store) collectionPath(name string) string {
	return filepath.Join(s.opts.storageRoot, name+snapshotExt)
}

// SaveToDisk writes a snapshot of the collection under the configured
// storage root. The write is atomic: the snapshot is staged to a temporary
// file and renamed into place, so a crash mid-save never corrupts a
// previous snapshot.
func (s *Store) SaveToDisk(ctx context.Context, name string) error {
	start := time.Now()
	err := s.saveToDisk(name)
	s.metrics.RecordPersist("save", time.Since(start), err)
	s.logger.LogSnapshot(ctx, name, err)
	return err
}

func (s *Store) saveToDisk(name string) error {
	path := s.collectionPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &OperationError{Op: "save", Err: err}
	}
	if err := persistence.SaveToFile(path, s.SaveToWriter); err != nil {
		return &OperationError{Op: "save", Err: err}
	}
	return nil
}

// LoadFromDisk replaces the collection contents with a previously saved
// snapshot. A missing snapshot is not an error: the collection is reset to
// empty and unbound, matching a save that never happened.
func (s *Store) LoadFromDisk(ctx context.Context, name string) error {
	start := time.Now()
	count, err := s.loadFromDisk(name)
	s.metrics.RecordPersist("load", time.Since(start), err)
	s.logger.LogLoad(ctx, name, count, err)
	return err
}

func (s *Store) loadFromDisk(name string) (int, error) {
	f, err := os.Open(s.collectionPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.Clear()
			return 0, nil
		}
		return 0, &OperationError{Op: "load", Err: err}
	}
	defer f.Close()

	if err := s.LoadFromReader(f); err != nil {
		return 0, err
	}
	return s.Len(), nil
}

// SaveToBlob writes a snapshot of the collection to the given blob store,
// for example an S3 or MinIO bucket.
func (s *Store) SaveToBlob(ctx context.Context, bs blobstore.BlobStore, name string) error {
	start := time.Now()
	err := s.saveToBlob(ctx, bs, name)
	s.metrics.RecordPersist("save", time.Since(start), err)
	s.logger.LogSnapshot(ctx, name, err)
	return err
}

func (s *Store) saveToBlob(ctx context.Context, bs blobstore.BlobStore, name string) error {
	var buf bytes.Buffer
	if err := s.SaveToWriter(&buf); err != nil {
		return err
	}
	if err := bs.Put(ctx, name+snapshotExt, &buf, int64(buf.Len())); err != nil {
		return &OperationError{Op: "save", Err: err}
	}
	return nil
}

// LoadFromBlob replaces the collection contents with a snapshot from the
// given blob store. A missing blob resets the collection to empty, like
// LoadFromDisk.
func (s *Store) LoadFromBlob(ctx context.Context, bs blobstore.BlobStore, name string) error {
	start := time.Now()
	count, err := s.loadFromBlob(ctx, bs, name)
	s.metrics.RecordPersist("load", time.Since(start), err)
	s.logger.LogLoad(ctx, name, count, err)
	return err
}

func (s *Store) loadFromBlob(ctx context.Context, bs blobstore.BlobStore, name string) (int, error) {
	blob, err := bs.Open(ctx, name+snapshotExt)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.Clear()
			return 0, nil
		}
		return 0, &OperationError{Op: "load", Err: err}
	}
	defer blob.Close()

	if err := s.LoadFromReader(blob); err != nil {
		return 0, err
	}
	return s.Len(), nil
}

// SaveToWriter serializes the collection to w in the binary snapshot
// format, using the configured metadata codec and compression.
func (s *Store) SaveToWriter(w io.Writer) error {
	snap := &persistence.Snapshot{
		Version:   persistence.VersionCurrent,
		CodecName: s.opts.codec.Name(),
		Count:     s.Len(),
		Dimension: s.dimension,
		Precision: 32,
		IDs:       s.ids,
	}

	if s.vectors != nil {
		bits, params, data, err := s.vectors.Raw()
		if err != nil {
			return &OperationError{Op: "save", Err: err}
		}
		snap.Precision = bits
		snap.QuantizerParams = params
		snap.VectorData = data
	}

	snap.Metadata = make([][]byte, s.Len())
	for i, meta := range s.metadatas {
		encoded, err := s.opts.codec.Marshal(meta)
		if err != nil {
			return &OperationError{Op: "save", Err: fmt.Errorf("encode metadata %d: %w", i, err)}
		}
		snap.Metadata[i] = encoded
	}

	if err := persistence.Write(w, snap, s.opts.compression); err != nil {
		return &OperationError{Op: "save", Err: err}
	}
	return nil
}

// LoadFromReader replaces the collection contents with a snapshot read from
// r. Both the current format and the legacy per-record format are accepted;
// legacy records carry no IDs, so fresh ones are assigned, and the
// dimension is inferred from the first vector. On any error the collection
// is left unchanged.
func (s *Store) LoadFromReader(r io.Reader) error {
	snap, err := persistence.Read(r)
	if err != nil {
		return &OperationError{Op: "load", Err: err}
	}

	if snap.Version == persistence.VersionLegacy {
		return s.loadLegacy(snap)
	}
	return s.loadCurrent(snap)
}

func (s *Store) loadCurrent(snap *persistence.Snapshot) error {
	c, ok := codec.ByName(snap.CodecName)
	if !ok {
		// Unknown codec name in the header; the configured codec is the
		// only remaining candidate.
		c = s.opts.codec
	}

	vectors, err := vectorstore.FromRaw(snap.Dimension, snap.Count, snap.Precision, snap.QuantizerParams, snap.VectorData)
	if err != nil {
		return &OperationError{Op: "load", Err: err}
	}

	if len(snap.IDs) != snap.Count || len(snap.Metadata) != snap.Count {
		return &OperationError{Op: "load", Err: persistence.ErrCorruptSnapshot}
	}

	metadatas := make([]any, snap.Count)
	for i, encoded := range snap.Metadata {
		var meta any
		if err := c.Unmarshal(encoded, &meta); err != nil {
			return &OperationError{Op: "load", Err: fmt.Errorf("decode metadata %d: %w", i, err)}
		}
		metadatas[i] = meta
	}

	byID := make(map[string]uint32, snap.Count)
	for i, id := range snap.IDs {
		if _, ok := byID[id]; ok {
			return &OperationError{Op: "load", Err: fmt.Errorf("%w: duplicate id %q", persistence.ErrCorruptSnapshot, id)}
		}
		byID[id] = uint32(i)
	}

	s.swap(snap.Dimension, vectors, snap.IDs, metadatas, byID)
	return nil
}

func (s *Store) loadLegacy(snap *persistence.Snapshot) error {
	count := len(snap.LegacyVectors)
	if len(snap.Metadata) != count {
		return &OperationError{Op: "load", Err: persistence.ErrCorruptSnapshot}
	}

	dimension := 0
	if count > 0 {
		dimension = len(snap.LegacyVectors[0])
		if dimension == 0 {
			return &OperationError{Op: "load", Err: fmt.Errorf("%w: empty vector", persistence.ErrCorruptSnapshot)}
		}
	}

	var vectors *vectorstore.Columnar
	if dimension > 0 {
		vectors = vectorstore.New(dimension)
	}

	ids := make([]string, count)
	metadatas := make([]any, count)
	byID := make(map[string]uint32, count)

	for i, v := range snap.LegacyVectors {
		if len(v) != dimension {
			return &OperationError{Op: "load", Err: fmt.Errorf("%w: vector %d has dimension %d, want %d", persistence.ErrCorruptSnapshot, i, len(v), dimension)}
		}
		vectors.Append(v)

		var meta any
		if err := s.opts.codec.Unmarshal(snap.Metadata[i], &meta); err != nil {
			return &OperationError{Op: "load", Err: fmt.Errorf("decode metadata %d: %w", i, err)}
		}
		metadatas[i] = meta

		ids[i] = uuid.NewString()
		byID[ids[i]] = uint32(i)
	}

	s.swap(dimension, vectors, ids, metadatas, byID)
	return nil
}

// swap installs fully built replacement state. Callers must not have
// mutated the receiver before this point, so a failed load leaves the
// collection untouched.
func (s *Store) swap(dimension int, vectors *vectorstore.Columnar, ids []string, metadatas []any, byID map[string]uint32) {
	s.dimension = dimension
	s.vectors = vectors
	s.ids = ids
	s.metadatas = metadatas
	s.byID = byID

	s.metaIndex = metadata.NewInvertedIndex()
	s.metaIndex.Rebuild(metadatas)
}
