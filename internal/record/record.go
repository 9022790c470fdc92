// Package record implements the on-disk encoding of a single log mutation.
//
// Every record is self-delimiting so a segment can be replayed by decoding
// records back to back. The layout, little-endian and fixed width, is:
//
//	<crc:uint32><kind:uint8><key_len:uint32><key>[<value_len:uint32><value>]
//
// The value length and value are present only for Set records. The CRC32
// (IEEE) covers every byte after the checksum field.
package record

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/cockroachdb/errors"
)

// Kind tags a record as a write or a tombstone.
type Kind uint8

const (
	KindSet    Kind = 1
	KindRemove Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// CRC (4) + Kind (1) + KeySize (4)
const HeaderSizeBytes = 9

// ValueSize (4), Set records only
const ValueSizeBytes = 4

var (
	// ErrCorruptRecord is returned when bytes do not match the record framing.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrTruncated is returned when a record runs past the end of its input.
	// It is also an ErrCorruptRecord.
	ErrTruncated = errors.Mark(errors.New("truncated record"), ErrCorruptRecord)
)

// ErrTooLarge is returned for a key or value whose length does not fit the
// 32-bit length fields.
var ErrTooLarge = errors.New("key or value too large")

// CheckLengths rejects key and value lengths the framing cannot represent.
func CheckLengths(keyLen, valueLen int) error {
	if uint64(keyLen) > math.MaxUint32 {
		return errors.Wrapf(ErrTooLarge, "key is %d bytes", keyLen)
	}
	if uint64(valueLen) > math.MaxUint32 {
		return errors.Wrapf(ErrTooLarge, "value is %d bytes", valueLen)
	}
	return nil
}

// Record is one mutation appended to the log.
type Record struct {
	Kind  Kind
	Key   []byte
	Value []byte // nil for KindRemove
}

func NewSet(key, value []byte) Record {
	return Record{Kind: KindSet, Key: key, Value: value}
}

func NewRemove(key []byte) Record {
	return Record{Kind: KindRemove, Key: key}
}

// EncodedSize returns the number of bytes Encode produces for r.
func EncodedSize(r Record) int {
	n := HeaderSizeBytes + len(r.Key)
	if r.Kind == KindSet {
		n += ValueSizeBytes + len(r.Value)
	}
	return n
}

// Encode serializes r into its wire format. The key and value must pass
// CheckLengths.
func Encode(r Record) []byte {
	buf := make([]byte, 4, EncodedSize(r))

	buf = append(buf, byte(r.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Key)))
	buf = append(buf, r.Key...)
	if r.Kind == KindSet {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Value)))
		buf = append(buf, r.Value...)
	}

	binary.LittleEndian.PutUint32(buf[:4], CalculateCRC(buf[4:]))
	return buf
}

// Decode parses the record at the start of data and returns it together with
// the number of bytes it occupied. The returned key and value do not alias
// data.
func Decode(data []byte) (Record, int, error) {
	if len(data) < HeaderSizeBytes {
		return Record{}, 0, errors.Wrapf(ErrTruncated, "header needs %d bytes, have %d", HeaderSizeBytes, len(data))
	}

	crc := binary.LittleEndian.Uint32(data[0:4])
	kind := Kind(data[4])
	if kind != KindSet && kind != KindRemove {
		return Record{}, 0, errors.Wrapf(ErrCorruptRecord, "unknown record kind %d", data[4])
	}

	keySize := uint64(binary.LittleEndian.Uint32(data[5:9]))
	end := uint64(HeaderSizeBytes) + keySize
	if uint64(len(data)) < end {
		return Record{}, 0, errors.Wrapf(ErrTruncated, "key needs %d bytes, have %d", keySize, len(data)-HeaderSizeBytes)
	}
	key := data[HeaderSizeBytes:end]

	var value []byte
	if kind == KindSet {
		if uint64(len(data)) < end+ValueSizeBytes {
			return Record{}, 0, errors.Wrap(ErrTruncated, "missing value size")
		}
		valueSize := uint64(binary.LittleEndian.Uint32(data[end : end+ValueSizeBytes]))
		end += ValueSizeBytes
		if uint64(len(data)) < end+valueSize {
			return Record{}, 0, errors.Wrapf(ErrTruncated, "value needs %d bytes, have %d", valueSize, uint64(len(data))-end)
		}
		value = bytes.Clone(data[end : end+valueSize])
		end += valueSize
	}

	if !ValidateCRC(data[4:end], crc) {
		return Record{}, 0, errors.Wrap(ErrCorruptRecord, "checksum mismatch")
	}

	return Record{Kind: kind, Key: bytes.Clone(key), Value: value}, int(end), nil
}

// Read decodes the next record from r, reading at most limit bytes. It
// returns io.EOF when r is exhausted on a record boundary (or limit is zero),
// and an ErrTruncated error when the input ends inside a record.
//
// Lengths are checked against limit before any buffer is sized from them, so
// a garbage length field cannot trigger a huge allocation.
func Read(r io.Reader, limit int64) (Record, int64, error) {
	if limit <= 0 {
		return Record{}, 0, io.EOF
	}

	buf := make([]byte, HeaderSizeBytes)
	if n, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF && n == 0 {
			return Record{}, 0, io.EOF
		}
		return Record{}, 0, readError(err)
	}

	kind := Kind(buf[4])
	if kind != KindSet && kind != KindRemove {
		return Record{}, 0, errors.Wrapf(ErrCorruptRecord, "unknown record kind %d", buf[4])
	}

	rest := int64(binary.LittleEndian.Uint32(buf[5:9]))
	if kind == KindSet {
		rest += ValueSizeBytes
	}

	buf, err := readMore(r, buf, rest, limit)
	if err != nil {
		return Record{}, 0, err
	}

	if kind == KindSet {
		valueSize := int64(binary.LittleEndian.Uint32(buf[len(buf)-ValueSizeBytes:]))
		if buf, err = readMore(r, buf, valueSize, limit); err != nil {
			return Record{}, 0, err
		}
	}

	rec, n, err := Decode(buf)
	if err != nil {
		return Record{}, 0, err
	}
	return rec, int64(n), nil
}

func readMore(r io.Reader, buf []byte, n, limit int64) ([]byte, error) {
	if int64(len(buf))+n > limit {
		return nil, errors.Wrapf(ErrTruncated, "record needs %d bytes, %d remain", int64(len(buf))+n, limit)
	}

	start := len(buf)
	buf = append(buf, make([]byte, n)...)
	if _, err := io.ReadFull(r, buf[start:]); err != nil {
		return nil, readError(err)
	}
	return buf, nil
}

func readError(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(ErrTruncated, "unexpected end of input")
	}
	return err
}
