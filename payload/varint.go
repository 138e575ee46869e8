package payload

import (
	"bytes"
	"encoding/binary"
)

// Wire types, matching protobuf's tag encoding: tag = (fieldNumber<<3)|wireType.
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

const maxVarintBytes = 10

func encodeTag(fieldNumber uint32, wireType uint8) []byte {
	return encodeVarint(uint64(fieldNumber)<<3 | uint64(wireType))
}

// encodeVarint writes v as a base-128 little-endian varint, the same
// scheme protobuf (and, structurally, the donor MQTT codec's own
// encodeLength) use: 7 bits of payload per byte, high bit set on every
// byte but the last.
func encodeVarint(v uint64) []byte {
	buf := make([]byte, 0, maxVarintBytes)
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	buf = append(buf, byte(v))
	return buf
}

// decodeVarint reads a varint from buf and returns its value; buf is
// advanced past the bytes consumed. offset is used only to annotate errors.
func decodeVarint(buf *bytes.Buffer, offset int) (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < maxVarintBytes; i++ {
		b, err := buf.ReadByte()
		if err != nil {
			return 0, newCodecErr(offset, 0, "truncated varint")
		}
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, newCodecErr(offset, 0, "varint longer than 10 bytes")
}

// zigzagEncode32/64 map a signed value to an unsigned one by zigzag
// encoding (0, -1, 1, -2, ... -> 0, 1, 2, 3, ...), per spec.md §4.1;
// zigzagDecode32/64 invert that mapping.
func zigzagEncode32(v int32) uint32 { return uint32((v << 1) ^ (v >> 31)) }
func zigzagDecode32(v uint32) int32 { return int32(v>>1) ^ -int32(v&1) }
func zigzagEncode64(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func zigzagDecode64(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }

func putFixed32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putFixed64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readFixed32(buf *bytes.Buffer, offset int) (uint32, error) {
	if buf.Len() < 4 {
		return 0, newCodecErr(offset, 0, "truncated fixed32")
	}
	return binary.LittleEndian.Uint32(buf.Next(4)), nil
}

func readFixed64(buf *bytes.Buffer, offset int) (uint64, error) {
	if buf.Len() < 8 {
		return 0, newCodecErr(offset, 0, "truncated fixed64")
	}
	return binary.LittleEndian.Uint64(buf.Next(8)), nil
}

// readLengthDelimited reads a wireBytes field's varint length prefix and
// the bytes that follow.
func readLengthDelimited(buf *bytes.Buffer, offset int) ([]byte, error) {
	n, err := decodeVarint(buf, offset)
	if err != nil {
		return nil, err
	}
	if uint64(buf.Len()) < n {
		return nil, newCodecErr(offset, 0, "truncated length-delimited field")
	}
	return bytes.Clone(buf.Next(int(n))), nil
}

func writeLengthDelimited(dst *bytes.Buffer, tag uint32, body []byte) {
	dst.Write(encodeTag(tag, wireBytes))
	dst.Write(encodeVarint(uint64(len(body))))
	dst.Write(body)
}

// skipField consumes and discards a field's value given its wire type,
// used by decode to tolerate unknown tags per spec.md §4.1 ("unknown
// fields are skipped").
func skipField(buf *bytes.Buffer, wireType uint8, offset int) error {
	switch wireType {
	case wireVarint:
		_, err := decodeVarint(buf, offset)
		return err
	case wireFixed64:
		_, err := readFixed64(buf, offset)
		return err
	case wireBytes:
		_, err := readLengthDelimited(buf, offset)
		return err
	case wireFixed32:
		_, err := readFixed32(buf, offset)
		return err
	default:
		return newCodecErr(offset, 0, "unknown wire type")
	}
}
