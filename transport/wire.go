package transport

import "encoding/binary"

// Fixed-width big-endian encoders/decoders. Callers budget packet space
// themselves; these never write beyond dst's length.

func getUint8(b []byte) (uint8, []byte) {
	return b[0], b[1:]
}

func putUint8(dst []byte, v uint8) []byte {
	dst[0] = v
	return dst[1:]
}

func getUint16(b []byte) (uint16, []byte) {
	return binary.BigEndian.Uint16(b), b[2:]
}

func putUint16(dst []byte, v uint16) []byte {
	binary.BigEndian.PutUint16(dst, v)
	return dst[2:]
}

func getUint32(b []byte) (uint32, []byte) {
	return binary.BigEndian.Uint32(b), b[4:]
}

func putUint32(dst []byte, v uint32) []byte {
	binary.BigEndian.PutUint32(dst, v)
	return dst[4:]
}

func getUint64(b []byte) (uint64, []byte) {
	return binary.BigEndian.Uint64(b), b[8:]
}

func putUint64(dst []byte, v uint64) []byte {
	binary.BigEndian.PutUint64(dst, v)
	return dst[8:]
}

// variableWidth returns the minimum number of bytes (1, 2, 4 or 8) needed
// to represent v in a fixed-width big-endian field.
func variableWidth(v uint64) int {
	switch {
	case v <= 0xff:
		return 1
	case v <= 0xffff:
		return 2
	case v <= 0xffffffff:
		return 4
	default:
		return 8
	}
}

// getUintN reads an n-byte (1, 2, 4 or 8) big-endian unsigned integer.
func getUintN(b []byte, n int) (uint64, []byte, bool) {
	if len(b) < n {
		return 0, b, false
	}
	switch n {
	case 1:
		return uint64(b[0]), b[1:], true
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), b[2:], true
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), b[4:], true
	case 8:
		return binary.BigEndian.Uint64(b), b[8:], true
	default:
		return 0, b, false
	}
}

// putUintN writes v as an n-byte (1, 2, 4 or 8) big-endian unsigned
// integer. Callers must have pre-checked that len(dst) >= n.
func putUintN(dst []byte, v uint64, n int) []byte {
	switch n {
	case 1:
		dst[0] = byte(v)
		return dst[1:]
	case 2:
		binary.BigEndian.PutUint16(dst, uint16(v))
		return dst[2:]
	case 4:
		binary.BigEndian.PutUint32(dst, uint32(v))
		return dst[4:]
	case 8:
		binary.BigEndian.PutUint64(dst, v)
		return dst[8:]
	default:
		panic("transport: invalid fixed-width length")
	}
}

// appendUintN appends v as an n-byte (1, 2, 4 or 8) big-endian unsigned
// integer, growing dst.
func appendUintN(dst []byte, v uint64, n int) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, n)...)
	putUintN(dst[start:], v, n)
	return dst
}

// widthCode/codeWidth map a field's byte length to the 2-bit code used by
// the STREAM frame's header flags (0=1 byte, 1=2 bytes, 2=4 bytes, 3=8 bytes).
func widthCode(n int) uint8 {
	switch n {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		panic("transport: invalid field width")
	}
}

func codeWidth(code uint8) int {
	return 1 << (code & 0x3)
}
