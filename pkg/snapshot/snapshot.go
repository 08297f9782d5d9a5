// Package snapshot exports the live contents of a store to a portable stream
// and replays such a stream into another store.
//
// A stream starts with an uncompressed header (magic, version, codec). The
// rest is compressed with the codec and holds a sequence of protobuf wire
// fields: one length-delimited field 1 per entry, carrying a message with
// the key (field 1, varint) and the value (field 2, bytes), followed by a
// single length-delimited field 2 trailer carrying the entry count
// (field 14, varint) and the xxhash64 digest of every entry message in
// order (field 15, fixed64).
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/KevoDB/lsmkv/pkg/common/iterator"
	"github.com/cespare/xxhash/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// Version is the stream format version written by Export
	Version = 1

	// MaxMessageSize bounds a single entry or trailer message
	MaxMessageSize = 64 << 20
)

var magic = []byte("LSMKVSNP")

var (
	// ErrChecksumMismatch is returned when the trailer digest or count does not match the entries read
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
	// ErrMalformedRecord is returned for a stream that cannot be decoded
	ErrMalformedRecord = errors.New("malformed snapshot record")
)

// Stream level field numbers
const (
	fieldEntry   protowire.Number = 1
	fieldTrailer protowire.Number = 2
)

// Entry and trailer message field numbers
const (
	fieldKey    protowire.Number = 1
	fieldValue  protowire.Number = 2
	fieldCount  protowire.Number = 14
	fieldDigest protowire.Number = 15
)

// Source is anything that can produce an ordered iterator of live entries.
type Source interface {
	NewIterator(lo, hi uint64) (iterator.Iterator, error)
}

// Sink receives the entries of an imported snapshot.
type Sink interface {
	Put(key uint64, value []byte) error
}

// Stats summarizes an export or import.
type Stats struct {
	Codec   Codec
	Entries int64
	Bytes   int64
	Digest  uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("%d entries, %d bytes, codec %s, digest %016x", s.Entries, s.Bytes, s.Codec, s.Digest)
}

type exportOptions struct {
	codec  Codec
	lo, hi uint64
}

// Option configures Export.
type Option func(*exportOptions)

// WithCodec selects the compression codec. Defaults to zstd.
func WithCodec(codec Codec) Option {
	return func(o *exportOptions) {
		o.codec = codec
	}
}

// WithRange limits the export to keys in [lo, hi].
func WithRange(lo, hi uint64) Option {
	return func(o *exportOptions) {
		o.lo = lo
		o.hi = hi
	}
}

// Export writes every live entry of src to w.
func Export(w io.Writer, src Source, opts ...Option) (Stats, error) {
	o := exportOptions{codec: CodecZstd, hi: ^uint64(0)}
	for _, opt := range opts {
		opt(&o)
	}

	stats := Stats{Codec: o.codec}

	it, err := src.NewIterator(o.lo, o.hi)
	if err != nil {
		return stats, err
	}

	header := append(append([]byte(nil), magic...), Version, byte(o.codec))
	if _, err := w.Write(header); err != nil {
		return stats, fmt.Errorf("failed to write snapshot header: %w", err)
	}

	cw, err := newCompressWriter(w, o.codec)
	if err != nil {
		return stats, err
	}

	digest := xxhash.New()
	var msg, field []byte
	for it.SeekToFirst(); it.Valid(); it.Next() {
		value := it.Value()
		msg = protowire.AppendTag(msg[:0], fieldKey, protowire.VarintType)
		msg = protowire.AppendVarint(msg, it.Key())
		msg = protowire.AppendTag(msg, fieldValue, protowire.BytesType)
		msg = protowire.AppendBytes(msg, value)

		field = protowire.AppendTag(field[:0], fieldEntry, protowire.BytesType)
		field = protowire.AppendBytes(field, msg)
		if _, err := cw.Write(field); err != nil {
			cw.Close()
			return stats, fmt.Errorf("failed to write snapshot entry: %w", err)
		}

		digest.Write(msg)
		stats.Entries++
		stats.Bytes += int64(len(value))
	}
	if err := it.Err(); err != nil {
		cw.Close()
		return stats, fmt.Errorf("failed to read entries: %w", err)
	}

	stats.Digest = digest.Sum64()
	msg = protowire.AppendTag(msg[:0], fieldCount, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(stats.Entries))
	msg = protowire.AppendTag(msg, fieldDigest, protowire.Fixed64Type)
	msg = protowire.AppendFixed64(msg, stats.Digest)

	field = protowire.AppendTag(field[:0], fieldTrailer, protowire.BytesType)
	field = protowire.AppendBytes(field, msg)
	if _, err := cw.Write(field); err != nil {
		cw.Close()
		return stats, fmt.Errorf("failed to write snapshot trailer: %w", err)
	}

	if err := cw.Close(); err != nil {
		return stats, fmt.Errorf("failed to finish snapshot: %w", err)
	}
	return stats, nil
}

// Record is one decoded entry.
type Record struct {
	Key   uint64
	Value []byte
}

// Import reads a stream written by Export and puts every entry into dst.
// The whole stream is decoded and verified against its trailer before the
// first Put, so a corrupt stream leaves dst untouched.
func Import(r io.Reader, dst Sink) (Stats, error) {
	records, stats, err := Read(r)
	if err != nil {
		return stats, err
	}

	for _, rec := range records {
		if err := dst.Put(rec.Key, rec.Value); err != nil {
			return stats, fmt.Errorf("failed to import key %d: %w", rec.Key, err)
		}
	}
	return stats, nil
}

// Read decodes and verifies a stream without applying it.
func Read(r io.Reader) ([]Record, Stats, error) {
	var stats Stats

	header := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, stats, fmt.Errorf("%w: short header: %v", ErrMalformedRecord, err)
	}
	if !bytes.Equal(header[:len(magic)], magic) {
		return nil, stats, fmt.Errorf("%w: bad magic", ErrMalformedRecord)
	}
	if v := header[len(magic)]; v != Version {
		return nil, stats, fmt.Errorf("%w: unsupported version %d", ErrMalformedRecord, v)
	}
	stats.Codec = Codec(header[len(magic)+1])

	cr, err := newCompressReader(r, stats.Codec)
	if err != nil {
		return nil, stats, err
	}
	defer cr.Close()
	br := bufio.NewReader(cr)

	digest := xxhash.New()
	var records []Record
	for {
		num, msg, err := readField(br)
		if err == io.EOF {
			return nil, stats, fmt.Errorf("%w: missing trailer", ErrMalformedRecord)
		}
		if err != nil {
			return nil, stats, err
		}

		switch num {
		case fieldEntry:
			rec, err := decodeEntry(msg)
			if err != nil {
				return nil, stats, err
			}
			digest.Write(msg)
			records = append(records, rec)
			stats.Entries++
			stats.Bytes += int64(len(rec.Value))

		case fieldTrailer:
			count, sum, err := decodeTrailer(msg)
			if err != nil {
				return nil, stats, err
			}
			stats.Digest = digest.Sum64()
			if count != uint64(stats.Entries) {
				return nil, stats, fmt.Errorf("%w: trailer counts %d entries, read %d", ErrChecksumMismatch, count, stats.Entries)
			}
			if sum != stats.Digest {
				return nil, stats, fmt.Errorf("%w: trailer digest %016x, computed %016x", ErrChecksumMismatch, sum, stats.Digest)
			}
			if _, err := br.ReadByte(); err != io.EOF {
				return nil, stats, fmt.Errorf("%w: data after trailer", ErrMalformedRecord)
			}
			return records, stats, nil

		default:
			return nil, stats, fmt.Errorf("%w: unexpected field %d", ErrMalformedRecord, num)
		}
	}
}

// readField reads one length-delimited top level field. io.EOF is returned
// only when the stream ends cleanly before a tag.
func readField(br *bufio.Reader) (protowire.Number, []byte, error) {
	tag, err := binary.ReadUvarint(br)
	if err == io.EOF {
		return 0, nil, io.EOF
	}
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	num, typ := protowire.DecodeTag(tag)
	if typ != protowire.BytesType {
		return 0, nil, fmt.Errorf("%w: field %d has wire type %d", ErrMalformedRecord, num, typ)
	}

	size, err := binary.ReadUvarint(br)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if size > MaxMessageSize {
		return 0, nil, fmt.Errorf("%w: message of %d bytes", ErrMalformedRecord, size)
	}

	msg := make([]byte, size)
	if _, err := io.ReadFull(br, msg); err != nil {
		return 0, nil, fmt.Errorf("%w: truncated message: %v", ErrMalformedRecord, err)
	}
	return num, msg, nil
}

func decodeEntry(msg []byte) (Record, error) {
	var rec Record
	var hasKey bool

	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return rec, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		msg = msg[n:]

		switch {
		case num == fieldKey && typ == protowire.VarintType:
			rec.Key, n = protowire.ConsumeVarint(msg)
			hasKey = true
		case num == fieldValue && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(msg)
			rec.Value = append([]byte(nil), v...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if n < 0 {
			return rec, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		msg = msg[n:]
	}

	if !hasKey {
		return rec, fmt.Errorf("%w: entry without key", ErrMalformedRecord)
	}
	if rec.Value == nil {
		rec.Value = []byte{}
	}
	return rec, nil
}

func decodeTrailer(msg []byte) (count, digest uint64, err error) {
	var hasCount, hasDigest bool

	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return 0, 0, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		msg = msg[n:]

		switch {
		case num == fieldCount && typ == protowire.VarintType:
			count, n = protowire.ConsumeVarint(msg)
			hasCount = true
		case num == fieldDigest && typ == protowire.Fixed64Type:
			digest, n = protowire.ConsumeFixed64(msg)
			hasDigest = true
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if n < 0 {
			return 0, 0, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		msg = msg[n:]
	}

	if !hasCount || !hasDigest {
		return 0, 0, fmt.Errorf("%w: incomplete trailer", ErrMalformedRecord)
	}
	return count, digest, nil
}
