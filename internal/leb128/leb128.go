// Package leb128 decodes and encodes the variable-length integers used
// throughout the WebAssembly binary format.
package leb128

import "errors"

var (
	// ErrOverflow means the encoding used more bits than the target type holds.
	ErrOverflow = errors.New("leb128: value overflows target type")
	// ErrTruncated means the buffer ended before the terminating byte.
	ErrTruncated = errors.New("leb128: truncated encoding")
)

// LoadUint32 decodes an unsigned 32-bit integer from the front of buf,
// returning the value and the number of bytes consumed.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	v, n, err := LoadUint64(buf)
	if err != nil {
		return 0, 0, err
	}
	if v > 0xffff_ffff {
		return 0, 0, ErrOverflow
	}
	return uint32(v), n, nil
}

// LoadUint64 decodes an unsigned 64-bit integer from the front of buf.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		if i >= 10 {
			return 0, 0, ErrOverflow
		}
		b := buf[i]
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if i == 9 && b > 1 {
				return 0, 0, ErrOverflow
			}
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// LoadInt32 decodes a signed 32-bit integer from the front of buf.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := LoadInt64(buf)
	if err != nil {
		return 0, 0, err
	}
	if v > 0x7fff_ffff || v < -0x8000_0000 {
		return 0, 0, ErrOverflow
	}
	return int32(v), n, nil
}

// LoadInt64 decodes a signed 64-bit integer from the front of buf.
func LoadInt64(buf []byte) (int64, uint64, error) {
	var result int64
	var shift uint
	for i := 0; i < len(buf); i++ {
		if i >= 10 {
			return 0, 0, ErrOverflow
		}
		b := buf[i]
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, uint64(i + 1), nil
		}
	}
	return 0, 0, ErrTruncated
}

// EncodeUint32 appends the encoding of v to nothing, returning the bytes.
func EncodeUint32(v uint32) []byte { return EncodeUint64(uint64(v)) }

// EncodeUint64 returns the unsigned encoding of v.
func EncodeUint64(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// EncodeInt32 returns the signed encoding of v.
func EncodeInt32(v int32) []byte { return EncodeInt64(int64(v)) }

// EncodeInt64 returns the signed encoding of v.
func EncodeInt64(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
