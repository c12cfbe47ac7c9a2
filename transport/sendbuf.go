package transport

// noOffset marks "not set" for an EOS offset (the UINT64_MAX sentinel of
// the spec).
const noOffset = ^uint64(0)

// offsetRange is the [Start, End) byte range an ack-book entry for stream
// data refers to; the FIN flag is represented as the single virtual byte
// [eos, eos+1).
type offsetRange struct {
	Start uint64
	End   uint64
}

// sendBuffer holds bytes at absolute stream offsets [dataOff, dataOff+len),
// plus eos (noOffset until closed). pending tracks offsets needing
// (re)transmission; ackedRanges tracks confirmed offsets so that bytes can
// be dropped once contiguous with dataOff.
//
// Invariant: pending ∪ ackedRanges ∪ in-flight == every byte written but not yet
// confirmed. The connection's ack book is the only place that knows which
// bytes are currently in-flight; sendBuffer itself only ever sees pending
// (about to send / resend) and acked (confirmed) transitions.
type sendBuffer struct {
	dataOff uint64
	data    []byte
	eos     uint64

	pending     rangeSet
	ackedRanges rangeSet
}

func newSendBuffer() *sendBuffer {
	return &sendBuffer{eos: noOffset}
}

// end returns the offset just past the last written byte.
func (s *sendBuffer) end() uint64 {
	return s.dataOff + uint64(len(s.data))
}

// write appends bytes to the logical stream and marks them pending.
func (s *sendBuffer) write(b []byte) error {
	if s.eos != noOffset {
		return newError(KindFinClosed, "write after shutdown")
	}
	if len(b) == 0 {
		return nil
	}
	start := s.end()
	s.data = append(s.data, b...)
	s.pending.add(start, s.end())
	return nil
}

// shutdown marks the stream closed for sending: eos becomes the current
// end offset, and the FIN (represented as the single virtual byte
// [eos, eos+1)) is scheduled for transmission.
func (s *sendBuffer) shutdown() {
	if s.eos != noOffset {
		return
	}
	s.eos = s.end()
	s.pending.add(s.eos, s.eos+1)
}

// transferComplete reports whether every written byte, including the FIN,
// has been acked.
func (s *sendBuffer) transferComplete() bool {
	if s.eos == noOffset {
		return false
	}
	return s.dataOff == s.eos+1
}

// emit copies up to len(dst) bytes starting at off into dst and returns
// the number of bytes copied. off must be >= dataOff. Copying the FIN
// virtual byte is a no-op: callers detect FIN by comparing off+n against
// eos, not by reading a byte for it.
func (s *sendBuffer) emit(off uint64, dst []byte) int {
	avail := s.end()
	if off >= avail {
		return 0
	}
	idx := off - s.dataOff
	n := copy(dst, s.data[idx:])
	return n
}

// acked marks [start, end) delivered. When the acked prefix becomes
// contiguous with dataOff, bytes (and the FIN marker, once reached) are
// dropped from the head.
func (s *sendBuffer) acked(start, end uint64) {
	s.ackedRanges.add(start, end)
	s.tryAdvance()
}

// lost re-adds [start, end) to pending for retransmission.
func (s *sendBuffer) lost(start, end uint64) {
	s.pending.add(start, end)
}

func (s *sendBuffer) tryAdvance() {
	first, ok := s.ackedRanges.first()
	if !ok || first.Start > s.dataOff {
		return
	}
	limit := s.end()
	if s.eos != noOffset && limit == s.eos {
		limit = s.eos + 1 // the FIN virtual byte immediately follows the data
	}
	end := first.End
	if end > limit {
		end = limit
	}
	if end <= s.dataOff {
		return
	}
	advance := end - s.dataOff
	dataAdvance := advance
	if s.eos != noOffset && s.dataOff+dataAdvance > s.eos {
		dataAdvance = s.eos - s.dataOff
	}
	s.data = s.data[dataAdvance:]
	s.dataOff += advance
	s.ackedRanges.removePrefix(s.dataOff)
}
