// Package persistence implements the on-disk snapshot container.
//
// Layout (VersionCurrent, all integers little-endian):
//
//	magic      uint32
//	version    uint16
//	compression uint8
//	precision  uint8
//	count      uint64
//	dimension  uint32
//	codec name uint8 length + bytes
//	params     uint32 length + bytes
//	checksum   uint32 (CRC-32C of the uncompressed payload)
//	payload block: [usize uint32][csize uint32][data]
//	  csize == 0 means the payload is stored uncompressed (usize bytes)
//
// The payload holds the vector section (uint64 length + packed rows), then
// count id entries (uint16 length + bytes), then count metadata entries
// (uint32 length + bytes).
//
// VersionLegacy files have no compression, checksum, ids or dimension:
// after magic and version they carry a uint64 count followed by per-record
// [uint32 n][n float32s][uint32 m][m metadata bytes].
package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// maxSectionBytes bounds single-section allocations when reading untrusted
// files.
const maxSectionBytes = 1 << 31

// Write serializes snap to w in the current format version.
func Write(w io.Writer, snap *Snapshot, compression CompressionType) error {
	if !compression.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidCompression, compression)
	}
	if snap.Count != len(snap.Metadata) || snap.Count != len(snap.IDs) {
		return fmt.Errorf("%w: section counts disagree", ErrCorruptSnapshot)
	}

	payload, err := encodePayload(snap)
	if err != nil {
		return err
	}
	checksum := crc32.Checksum(payload, castagnoli)

	block, err := compressBlock(payload, compression)
	if err != nil {
		return err
	}

	var hdr bytes.Buffer
	binary.Write(&hdr, binary.LittleEndian, uint32(MagicNumber))
	binary.Write(&hdr, binary.LittleEndian, uint16(VersionCurrent))
	hdr.WriteByte(byte(compression))
	hdr.WriteByte(byte(snap.Precision))
	binary.Write(&hdr, binary.LittleEndian, uint64(snap.Count))
	binary.Write(&hdr, binary.LittleEndian, uint32(snap.Dimension))
	if len(snap.CodecName) > 255 {
		return fmt.Errorf("%w: codec name too long", ErrCorruptSnapshot)
	}
	hdr.WriteByte(byte(len(snap.CodecName)))
	hdr.WriteString(snap.CodecName)
	binary.Write(&hdr, binary.LittleEndian, uint32(len(snap.QuantizerParams)))
	hdr.Write(snap.QuantizerParams)
	binary.Write(&hdr, binary.LittleEndian, checksum)

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	return writeBlock(w, payload, block)
}

func encodePayload(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(snap.VectorData)))
	buf.Write(snap.VectorData)
	for _, id := range snap.IDs {
		if len(id) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: id too long", ErrCorruptSnapshot)
		}
		binary.Write(&buf, binary.LittleEndian, uint16(len(id)))
		buf.WriteString(id)
	}
	for _, meta := range snap.Metadata {
		binary.Write(&buf, binary.LittleEndian, uint32(len(meta)))
		buf.Write(meta)
	}
	return buf.Bytes(), nil
}

// Read parses a snapshot from r, dispatching on the header version.
func Read(r io.Reader) (*Snapshot, error) {
	br := bufio.NewReader(r)

	var magic uint32
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != MagicNumber {
		return nil, ErrInvalidMagic
	}

	var version uint16
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}

	switch version {
	case VersionLegacy:
		return readLegacy(br)
	case VersionCurrent:
		return readCurrent(br)
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}
}

func readCurrent(r *bufio.Reader) (*Snapshot, error) {
	var (
		compression, precision byte
		count                  uint64
		dimension              uint32
	)
	if err := binary.Read(r, binary.LittleEndian, &compression); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &precision); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &dimension); err != nil {
		return nil, err
	}
	if !CompressionType(compression).valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, compression)
	}
	// The count field is outside the payload checksum; bound it before any
	// count-sized allocation.
	if count > maxSectionBytes {
		return nil, fmt.Errorf("%w: implausible record count %d", ErrCorruptSnapshot, count)
	}

	var nameLen byte
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return nil, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}

	var paramsLen uint32
	if err := binary.Read(r, binary.LittleEndian, &paramsLen); err != nil {
		return nil, err
	}
	if paramsLen > maxSectionBytes {
		return nil, fmt.Errorf("%w: oversized quantizer params", ErrCorruptSnapshot)
	}
	params := make([]byte, paramsLen)
	if _, err := io.ReadFull(r, params); err != nil {
		return nil, err
	}

	var checksum uint32
	if err := binary.Read(r, binary.LittleEndian, &checksum); err != nil {
		return nil, err
	}

	payload, err := readBlock(r, CompressionType(compression))
	if err != nil {
		return nil, err
	}
	if crc32.Checksum(payload, castagnoli) != checksum {
		return nil, ErrChecksumMismatch
	}

	snap := &Snapshot{
		Version:         VersionCurrent,
		CodecName:       string(name),
		Count:           int(count),
		Dimension:       int(dimension),
		Precision:       int(precision),
		QuantizerParams: params,
	}
	if err := decodePayload(payload, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func decodePayload(payload []byte, snap *Snapshot) error {
	buf := bytes.NewReader(payload)

	var vecLen uint64
	if err := binary.Read(buf, binary.LittleEndian, &vecLen); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if vecLen > maxSectionBytes {
		return fmt.Errorf("%w: oversized vector section", ErrCorruptSnapshot)
	}
	snap.VectorData = make([]byte, vecLen)
	if _, err := io.ReadFull(buf, snap.VectorData); err != nil {
		return fmt.Errorf("%w: truncated vector section", ErrCorruptSnapshot)
	}

	// Every record carries at least an id length (2 bytes) and a metadata
	// length (4 bytes); a count the remaining payload cannot hold is corrupt.
	if snap.Count*6 > buf.Len() {
		return fmt.Errorf("%w: record count %d exceeds payload", ErrCorruptSnapshot, snap.Count)
	}

	snap.IDs = make([]string, snap.Count)
	for i := range snap.IDs {
		var n uint16
		if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
			return fmt.Errorf("%w: truncated id section", ErrCorruptSnapshot)
		}
		id := make([]byte, n)
		if _, err := io.ReadFull(buf, id); err != nil {
			return fmt.Errorf("%w: truncated id section", ErrCorruptSnapshot)
		}
		snap.IDs[i] = string(id)
	}

	snap.Metadata = make([][]byte, snap.Count)
	for i := range snap.Metadata {
		var n uint32
		if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
			return fmt.Errorf("%w: truncated metadata section", ErrCorruptSnapshot)
		}
		if n > maxSectionBytes {
			return fmt.Errorf("%w: oversized metadata entry", ErrCorruptSnapshot)
		}
		meta := make([]byte, n)
		if _, err := io.ReadFull(buf, meta); err != nil {
			return fmt.Errorf("%w: truncated metadata section", ErrCorruptSnapshot)
		}
		snap.Metadata[i] = meta
	}

	if buf.Len() != 0 {
		return fmt.Errorf("%w: %d trailing payload bytes", ErrCorruptSnapshot, buf.Len())
	}
	return nil
}

func readLegacy(r *bufio.Reader) (*Snapshot, error) {
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	// Each legacy record is at least 8 bytes (two length prefixes); the
	// count is untrusted, so cap it and grow the slices as records parse.
	if count > maxSectionBytes/8 {
		return nil, fmt.Errorf("%w: implausible record count %d", ErrCorruptSnapshot, count)
	}

	snap := &Snapshot{
		Version: VersionLegacy,
		Count:   int(count),
	}

	for i := 0; i < int(count); i++ {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: truncated record %d", ErrCorruptSnapshot, i)
		}
		if n > maxSectionBytes/4 {
			return nil, fmt.Errorf("%w: oversized vector", ErrCorruptSnapshot)
		}
		vec := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, &vec); err != nil {
			return nil, fmt.Errorf("%w: truncated record %d", ErrCorruptSnapshot, i)
		}

		var m uint32
		if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
			return nil, fmt.Errorf("%w: truncated record %d", ErrCorruptSnapshot, i)
		}
		if m > maxSectionBytes {
			return nil, fmt.Errorf("%w: oversized metadata entry", ErrCorruptSnapshot)
		}
		meta := make([]byte, m)
		if _, err := io.ReadFull(r, meta); err != nil {
			return nil, fmt.Errorf("%w: truncated record %d", ErrCorruptSnapshot, i)
		}

		snap.LegacyVectors = append(snap.LegacyVectors, vec)
		snap.Metadata = append(snap.Metadata, meta)
	}

	return snap, nil
}

// WriteLegacy emits a VersionLegacy file. It exists for migration tooling
// and tests; new snapshots always use Write.
func WriteLegacy(w io.Writer, vectors [][]float32, metadata [][]byte) error {
	if len(vectors) != len(metadata) {
		return fmt.Errorf("%w: section counts disagree", ErrCorruptSnapshot)
	}

	bw := bufio.NewWriter(w)
	binary.Write(bw, binary.LittleEndian, uint32(MagicNumber))
	binary.Write(bw, binary.LittleEndian, uint16(VersionLegacy))
	binary.Write(bw, binary.LittleEndian, uint64(len(vectors)))
	for i, vec := range vectors {
		binary.Write(bw, binary.LittleEndian, uint32(len(vec)))
		binary.Write(bw, binary.LittleEndian, vec)
		binary.Write(bw, binary.LittleEndian, uint32(len(metadata[i])))
		bw.Write(metadata[i])
	}
	return bw.Flush()
}

// writeBlock writes the payload block: [usize][csize][data].
// block == nil means the payload was incompressible and is stored raw.
func writeBlock(w io.Writer, payload, block []byte) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(payload)))
	if block == nil {
		binary.LittleEndian.PutUint32(hdr[4:], 0)
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		_, err := w.Write(payload)
		return err
	}
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(block)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(block)
	return err
}

func readBlock(r io.Reader, compression CompressionType) ([]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	usize := binary.LittleEndian.Uint32(hdr[0:])
	csize := binary.LittleEndian.Uint32(hdr[4:])
	if usize > maxSectionBytes || csize > maxSectionBytes {
		return nil, fmt.Errorf("%w: oversized payload block", ErrCorruptSnapshot)
	}

	if csize == 0 {
		payload := make([]byte, usize)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}

	compressed := make([]byte, csize)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	return decompressBlock(compressed, int(usize), compression)
}

// compressBlock compresses the payload, or returns nil if compression is
// disabled or does not help.
func compressBlock(payload []byte, compression CompressionType) ([]byte, error) {
	if compression == CompressionNone || len(payload) == 0 {
		return nil, nil
	}

	var compressed []byte
	switch compression {
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(payload))
		buf := make([]byte, bound)
		n, err := lz4.CompressBlock(payload, buf, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil // incompressible
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		compressed = enc.EncodeAll(payload, nil)
		_ = enc.Close()
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, compression)
	}

	if len(compressed) >= len(payload) {
		return nil, nil
	}
	return compressed, nil
}

func decompressBlock(compressed []byte, usize int, compression CompressionType) ([]byte, error) {
	switch compression {
	case CompressionLZ4:
		payload := make([]byte, usize)
		n, err := lz4.UncompressBlock(compressed, payload)
		if err != nil {
			return nil, err
		}
		if n != usize {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorruptSnapshot, n, usize)
		}
		return payload, nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		payload, err := dec.DecodeAll(compressed, make([]byte, 0, usize))
		if err != nil {
			return nil, err
		}
		if len(payload) != usize {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorruptSnapshot, len(payload), usize)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, compression)
	}
}

// SaveToFile writes a snapshot atomically: the content is written to a temp
// file in the target directory, synced, then renamed over the target.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, filename)
}
