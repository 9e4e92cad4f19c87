package codec

import "github.com/cuemby/noteforge/pkg/ncerr"

// maxVarintBits bounds the decoded value to what spec.md §4.1 requires
// ("at least 56 bits of payload must be accepted") while staying
// inside the 64-bit range of a Go uint64.
const maxVarintBits = 64

// EncodeVarint encodes n as unsigned LEB128: 7 data bits per byte,
// high bit set while more bytes follow. Fails with KindNegative if n
// is negative.
func EncodeVarint(n int64) ([]byte, error) {
	if n < 0 {
		return nil, ncerr.Wrap(ncerr.KindNegative, "cannot encode negative varint", nil)
	}
	return EncodeUvarint(uint64(n)), nil
}

// EncodeUvarint encodes n as unsigned LEB128.
func EncodeUvarint(n uint64) []byte {
	if n == 0 {
		return []byte{0x00}
	}
	var out []byte
	for n > 0 {
		b := byte(n & 0x7f)
		n >>= 7
		if n > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// DecodeUvarint decodes an unsigned LEB128 varint from the start of
// buf, returning the value and the number of bytes consumed.
//
// Fails with KindIncomplete if the continuation bit is set at the end
// of buf, and KindOverflow if decoding would exceed maxVarintBits of
// payload.
func DecodeUvarint(buf []byte) (uint64, int, error) {
	var result uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if shift >= maxVarintBits || (shift == maxVarintBits-1 && b&0x7f > 1) {
			return 0, 0, ncerr.Wrap(ncerr.KindOverflow, "varint exceeds supported width", nil)
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ncerr.Wrap(ncerr.KindIncomplete, "varint continuation bit set at end of buffer", nil)
}
