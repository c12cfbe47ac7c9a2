package transport

import "sort"

// oooSegment is a received-but-not-yet-contiguous chunk of stream data.
type oooSegment struct {
	off  uint64
	data []byte
}

// recvBuffer reassembles a peer's byte stream from out-of-order STREAM
// frames. dataOff is the offset of the first byte not yet consumed by the
// application; buf holds the contiguous run of bytes available starting
// at dataOff. received records every offset range that has arrived; it is
// not consulted when deduplicating or checking the final offset.
type recvBuffer struct {
	dataOff uint64
	buf     []byte
	ooo     []oooSegment

	received rangeSet
	eos      uint64
}

func newRecvBuffer() *recvBuffer {
	return &recvBuffer{eos: noOffset}
}

func (r *recvBuffer) highWaterMark() uint64 {
	return r.dataOff + uint64(len(r.buf))
}

// write delivers bytes arriving at absolute offset off. Bytes already
// consumed (or already received) are clipped; the call is idempotent for
// data previously delivered. Where the frame lands exactly at the current
// high-water mark, its payload is appended directly with a single copy and
// any now-contiguous out-of-order segments are drained in; there is no
// second, separate reassembly copy the way a gap-first arrival needs.
func (r *recvBuffer) write(off uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	end := off + uint64(len(data))
	if r.eos != noOffset && end > r.eos {
		return newError(KindInvalidStreamData, "stream data received past final offset")
	}
	if end <= r.dataOff {
		return nil // fully duplicate, already consumed
	}
	if off < r.dataOff {
		skip := r.dataOff - off
		data = data[skip:]
		off = r.dataOff
	}
	if len(data) == 0 {
		return nil
	}
	r.received.add(off, off+uint64(len(data)))

	hwm := r.highWaterMark()
	switch {
	case off == hwm:
		r.buf = append(r.buf, data...)
		r.drainOOO()
	case off > hwm:
		r.insertOOO(off, data)
	default:
		// Overlaps buf's tail partially; only the bytes past hwm are new.
		newStart := hwm - off
		if newStart < uint64(len(data)) {
			r.buf = append(r.buf, data[newStart:]...)
			r.drainOOO()
		}
	}
	return nil
}

func (r *recvBuffer) insertOOO(off uint64, data []byte) {
	i := sort.Search(len(r.ooo), func(i int) bool { return r.ooo[i].off >= off })
	if i < len(r.ooo) && r.ooo[i].off == off {
		if len(data) > len(r.ooo[i].data) {
			r.ooo[i].data = data
		}
		return
	}
	seg := oooSegment{off: off, data: data}
	r.ooo = append(r.ooo, oooSegment{})
	copy(r.ooo[i+1:], r.ooo[i:])
	r.ooo[i] = seg
}

func (r *recvBuffer) drainOOO() {
	for len(r.ooo) > 0 {
		hwm := r.highWaterMark()
		seg := r.ooo[0]
		if seg.off > hwm {
			return
		}
		r.ooo = r.ooo[1:]
		if end := seg.off + uint64(len(seg.data)); end > hwm {
			r.buf = append(r.buf, seg.data[hwm-seg.off:]...)
		}
	}
}

// markEOS records the peer's final offset. It fails if data already
// received (buffered or out-of-order) extends beyond off, or if a
// different final offset was previously recorded.
func (r *recvBuffer) markEOS(off uint64) error {
	if r.eos != noOffset {
		if r.eos != off {
			return newError(KindInvalidStreamData, "conflicting stream final offset")
		}
		return nil
	}
	if r.highWaterMark() > off {
		return newError(KindInvalidStreamData, "final offset below already-received data")
	}
	for _, seg := range r.ooo {
		if seg.off+uint64(len(seg.data)) > off {
			return newError(KindInvalidStreamData, "final offset below already-received data")
		}
	}
	r.eos = off
	return nil
}

// eosReached reports whether the application has consumed every byte up
// to and including the peer's FIN.
func (r *recvBuffer) eosReached() bool {
	return r.eos != noOffset && r.dataOff == r.eos
}

// get returns the contiguous unconsumed prefix, aliasing the buffer's own
// backing array: a caller that consumes it synchronously (the copyless
// path for data that arrived exactly at dataOff) never forces a second
// copy; only bytes left unread across calls to shift persist in buf.
func (r *recvBuffer) get() []byte {
	return r.buf
}

// shift marks n bytes as consumed by the application.
func (r *recvBuffer) shift(n uint64) {
	if n == 0 {
		return
	}
	r.buf = r.buf[n:]
	r.dataOff += n
}
