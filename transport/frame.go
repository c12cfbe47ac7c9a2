package transport

import "encoding/binary"

// Frame type bytes. STREAM packs extra shape information into the low bits
// of the type byte rather than using one fixed value; every other frame,
// ACK included, has one fixed value.
const (
	frameTypePadding       = 0x00
	frameTypeRstStream     = 0x01
	frameTypeMaxData       = 0x04
	frameTypeMaxStreamData = 0x05
	frameTypeStopSending   = 0x0c
	frameTypeAck           = 0xa0
	frameTypeStreamBase    = 0xc0 // | finFlag | offsetWidthCode<<2 | streamIDWidthCode

	frameTypeStreamFinFlag  = 0x20
	frameTypeStreamOffShift = 2
	frameTypeStreamIDMask   = 0x03
)

type paddingFrame struct{}

type rstStreamFrame struct {
	streamID    uint32
	errorCode   uint32
	finalOffset uint64
}

type stopSendingFrame struct {
	streamID  uint32
	errorCode uint32
}

type maxDataFrame struct {
	maximumDataKB uint32
}

type maxStreamDataFrame struct {
	streamID          uint32
	maximumStreamData uint32
}

// ackBlock is a (gap, length) pair beyond the first block: gap counts the
// packet numbers skipped between the previous block's low end and this
// block's high end.
type ackBlock struct {
	gap    uint64
	length uint64
}

type ackFrame struct {
	largestAck    uint64
	ackDelay      uint64
	firstBlockLen uint64
	blocks        []ackBlock
}

type streamFrame struct {
	streamID uint32
	offset   uint64
	fin      bool
	data     []byte
}

// Wire sizes, used by send.go to check a frame fits the remaining packet
// budget before committing to encoding it.

func rstStreamSize() int { return 1 + 4 + 4 + 8 }

func stopSendingSize() int { return 1 + 4 + 4 }

func maxDataSize() int { return 1 + 4 }

func maxStreamDataSize() int { return 1 + 4 + 4 }

func ackSize(f ackFrame) int { return 1 + 4 + 4 + 4 + 1 + 8*len(f.blocks) }

func streamHeaderSize(f streamFrame) int {
	return 1 + variableWidth(uint64(f.streamID)) + variableWidth(f.offset) + 2
}

func encodePadding(dst []byte, n int) []byte {
	for i := 0; i < n; i++ {
		dst = append(dst, frameTypePadding)
	}
	return dst
}

func encodeRstStream(dst []byte, f rstStreamFrame) []byte {
	dst = append(dst, frameTypeRstStream)
	dst = binary.BigEndian.AppendUint32(dst, f.streamID)
	dst = binary.BigEndian.AppendUint32(dst, f.errorCode)
	dst = binary.BigEndian.AppendUint64(dst, f.finalOffset)
	return dst
}

func decodeRstStream(b []byte) (rstStreamFrame, []byte, bool) {
	if len(b) < 16 {
		return rstStreamFrame{}, b, false
	}
	streamID, b := getUint32(b)
	errorCode, b := getUint32(b)
	finalOffset, b := getUint64(b)
	return rstStreamFrame{streamID, errorCode, finalOffset}, b, true
}

func encodeStopSending(dst []byte, f stopSendingFrame) []byte {
	dst = append(dst, frameTypeStopSending)
	dst = binary.BigEndian.AppendUint32(dst, f.streamID)
	dst = binary.BigEndian.AppendUint32(dst, f.errorCode)
	return dst
}

func decodeStopSending(b []byte) (stopSendingFrame, []byte, bool) {
	if len(b) < 8 {
		return stopSendingFrame{}, b, false
	}
	streamID, b := getUint32(b)
	errorCode, b := getUint32(b)
	return stopSendingFrame{streamID, errorCode}, b, true
}

func encodeMaxData(dst []byte, f maxDataFrame) []byte {
	dst = append(dst, frameTypeMaxData)
	dst = binary.BigEndian.AppendUint32(dst, f.maximumDataKB)
	return dst
}

func decodeMaxData(b []byte) (maxDataFrame, []byte, bool) {
	if len(b) < 4 {
		return maxDataFrame{}, b, false
	}
	v, b := getUint32(b)
	return maxDataFrame{v}, b, true
}

func encodeMaxStreamData(dst []byte, f maxStreamDataFrame) []byte {
	dst = append(dst, frameTypeMaxStreamData)
	dst = binary.BigEndian.AppendUint32(dst, f.streamID)
	dst = binary.BigEndian.AppendUint32(dst, f.maximumStreamData)
	return dst
}

func decodeMaxStreamData(b []byte) (maxStreamDataFrame, []byte, bool) {
	if len(b) < 8 {
		return maxStreamDataFrame{}, b, false
	}
	streamID, b := getUint32(b)
	limit, b := getUint32(b)
	return maxStreamDataFrame{streamID, limit}, b, true
}

// encodeAck writes the single frame type byte, largest-ack/ack-delay/
// first-block as 4-byte fields, a 1-byte block count, then each
// (gap, length) pair as 4-byte fields. This is the spec's fixed-width
// wire codec, not a real QUIC variable-length integer encoding.
func encodeAck(dst []byte, f ackFrame) []byte {
	dst = append(dst, frameTypeAck)
	dst = binary.BigEndian.AppendUint32(dst, uint32(f.largestAck))
	dst = binary.BigEndian.AppendUint32(dst, uint32(f.ackDelay))
	dst = binary.BigEndian.AppendUint32(dst, uint32(f.firstBlockLen))
	dst = append(dst, uint8(len(f.blocks)))
	for _, blk := range f.blocks {
		dst = binary.BigEndian.AppendUint32(dst, uint32(blk.gap))
		dst = binary.BigEndian.AppendUint32(dst, uint32(blk.length))
	}
	return dst
}

func decodeAck(b []byte) (ackFrame, []byte, bool) {
	if len(b) < 13 {
		return ackFrame{}, b, false
	}
	largest, b := getUint32(b)
	delay, b := getUint32(b)
	firstLen, b := getUint32(b)
	numBlocks, b := getUint8(b)
	f := ackFrame{largestAck: uint64(largest), ackDelay: uint64(delay), firstBlockLen: uint64(firstLen)}
	for i := uint8(0); i < numBlocks; i++ {
		if len(b) < 8 {
			return ackFrame{}, b, false
		}
		gap, rest := getUint32(b)
		length, rest2 := getUint32(rest)
		f.blocks = append(f.blocks, ackBlock{uint64(gap), uint64(length)})
		b = rest2
	}
	return f, b, true
}

// encodeStream writes a STREAM frame. The offset and stream-id fields use
// the minimum fixed width that fits their value (1/2/4/8 bytes), recorded
// as 2-bit width codes in the type byte. Length is always explicit (a
// 2-byte field), including for a frame that ends the packet; it is never
// elided.
func encodeStream(dst []byte, f streamFrame) []byte {
	idWidth := variableWidth(uint64(f.streamID))
	offWidth := variableWidth(f.offset)
	tb := uint8(frameTypeStreamBase) | widthCode(idWidth) | (widthCode(offWidth) << frameTypeStreamOffShift)
	if f.fin {
		tb |= frameTypeStreamFinFlag
	}
	dst = append(dst, tb)
	dst = appendUintN(dst, uint64(f.streamID), idWidth)
	dst = appendUintN(dst, f.offset, offWidth)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.data)))
	dst = append(dst, f.data...)
	return dst
}

// decodeStream decodes a STREAM frame given its already-consumed type
// byte.
func decodeStream(typeByte uint8, b []byte) (streamFrame, []byte, bool) {
	idWidth := codeWidth(typeByte & frameTypeStreamIDMask)
	offWidth := codeWidth((typeByte >> frameTypeStreamOffShift) & frameTypeStreamIDMask)
	streamID, b, ok := getUintN(b, idWidth)
	if !ok {
		return streamFrame{}, b, false
	}
	offset, b, ok := getUintN(b, offWidth)
	if !ok {
		return streamFrame{}, b, false
	}
	if len(b) < 2 {
		return streamFrame{}, b, false
	}
	length, b := getUint16(b)
	if len(b) < int(length) {
		return streamFrame{}, b, false
	}
	data := b[:length]
	b = b[length:]
	return streamFrame{
		streamID: uint32(streamID),
		offset:   offset,
		fin:      typeByte&frameTypeStreamFinFlag != 0,
		data:     data,
	}, b, true
}
