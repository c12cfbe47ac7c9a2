package transport

import "time"

// takePending removes up to maxBytes from the front of the pending range
// set and returns the range taken (which may include the FIN virtual
// byte as its last unit), ready to be hung off an ack-book entry.
func (s *sendBuffer) takePending(maxBytes int) (offsetRange, bool) {
	first, ok := s.pending.first()
	if !ok || maxBytes <= 0 {
		return offsetRange{}, false
	}
	end := first.Start + uint64(maxBytes)
	if end > first.End {
		end = first.End
	}
	s.pending.removePrefix(end)
	return offsetRange{first.Start, end}, true
}

// buildStreamFrame carves a STREAM frame for streamID out of sb, bounded
// by the packet space left (budget, in bytes available for the frame
// including its header). It returns the frame and the ack-book action to
// record for it.
func buildStreamFrame(streamID uint32, sb *sendBuffer, budget int) (streamFrame, ackAction, bool) {
	// Reserve the worst-case header (type + 8-byte id + 8-byte offset + 2-byte length).
	const maxHeader = 1 + 8 + 8 + 2
	if budget <= maxHeader {
		return streamFrame{}, ackAction{}, false
	}
	maxData := budget - maxHeader
	r, ok := sb.takePending(maxData)
	if !ok {
		return streamFrame{}, ackAction{}, false
	}

	fin := false
	dataEnd := r.End
	if sb.eos != noOffset && r.End == sb.eos+1 {
		fin = true
		dataEnd = sb.eos
	}
	data := make([]byte, dataEnd-r.Start)
	n := sb.emit(r.Start, data)
	data = data[:n]

	f := streamFrame{streamID: streamID, offset: r.Start, fin: fin, data: data}
	a := ackAction{kind: actionStreamData, streamID: streamID, start: r.Start, end: r.End}
	return f, a, true
}

// Send packs one packet's worth of pending work into dst and returns the
// number of bytes written. It returns (0, nil) when there is nothing to
// send.
func (c *Connection) Send(now time.Time, dst []byte) (int, error) {
	if c.state == stateClosed {
		return 0, ErrFreeConnection
	}
	if err := c.CheckTimeout(now); err != nil {
		return 0, err
	}

	typ := c.nextPacketType()
	protected := typ == packetType1RTTKeyPhase0 || typ == packetType1RTTKeyPhase1

	budgetTotal := len(dst)
	if typ == packetTypeClientInitial && budgetTotal > clientInitialSize {
		budgetTotal = clientInitialSize
	}
	if budgetTotal > maxPacketSize {
		budgetTotal = maxPacketSize
	}

	hdr := packetHeader{typ: typ, connectionID: c.connectionID, packetNumber: c.nextPacketNumber}
	if isLongHeaderType(typ) {
		hdr.version = protocolVersion
	}
	hdrSize := headerSize(typ, c.localParams.TruncateConnectionID)

	tagOverhead := 8
	var keys *OneRTTKeys
	if protected {
		keys = c.oneRTTWrite
		if keys == nil {
			return 0, newError(KindInternal, "no 1-RTT write key installed yet")
		}
		tagOverhead = keys.aead.Overhead()
	}

	budget := budgetTotal - hdrSize - tagOverhead
	if budget < 0 {
		return 0, newError(KindInternal, "packet budget too small for header")
	}

	var payload []byte
	entry := c.book.allocate(c.nextPacketNumber, now)
	wrote := false

	// Only emit pending ACKs in a packet type this connection is still
	// allowed to ack over: once a protected packet has needed acking,
	// acksRequireEncryption latches and cleartext packets (other than the
	// CLIENT_INITIAL, which never carries an ACK anyway) stop carrying them.
	canAck := typ != packetTypeClientInitial && (!c.acksRequireEncryption || protected)
	if c.ackQueued && canAck {
		if f, nextCursor, complete, ok := c.buildAckFrame(c.ackCursor, budget); ok {
			payload = encodeAck(payload, f)
			budget -= ackSize(f)
			c.ackCursor = nextCursor
			c.ackQueued = !complete
			wrote = true
		}
	}

	for _, s := range c.streams {
		if s.stopSendingState == senderSend && stopSendingSize() <= budget {
			payload = encodeStopSending(payload, stopSendingFrame{streamID: s.id, errorCode: s.stopSendingReason})
			budget -= stopSendingSize()
			s.stopSendingState = senderUnacked
			entry.record(ackAction{kind: actionStreamStateSender, streamID: s.id, senderKind: senderStopSending})
			wrote = true
		}
		if s.rstState == senderSend && rstStreamSize() <= budget {
			payload = encodeRstStream(payload, rstStreamFrame{streamID: s.id, errorCode: s.rstReason, finalOffset: s.send.eos})
			budget -= rstStreamSize()
			s.rstState = senderUnacked
			entry.record(ackAction{kind: actionStreamStateSender, streamID: s.id, senderKind: senderRstStream})
			wrote = true
		}
	}

	if c.localMaxDataSender.shouldUpdate(c.bytesReceived, c.localMaxData, minMaxDataDelta) && maxDataSize() <= budget {
		limitKB := uint32((c.bytesReceived + c.localMaxData) / 1024)
		payload = encodeMaxData(payload, maxDataFrame{maximumDataKB: limitKB})
		budget -= maxDataSize()
		c.localMaxDataSender.record(uint64(limitKB) * 1024)
		entry.record(ackAction{kind: actionMaxData, limit: uint64(limitKB) * 1024})
		wrote = true
	}

	for _, s := range c.streams {
		if s.maxStreamDataSender.shouldUpdate(0, s.recvWindow, minMaxStreamDataDelta) && maxStreamDataSize() <= budget {
			limit := s.recv.highWaterMark() + s.recvWindow
			payload = encodeMaxStreamData(payload, maxStreamDataFrame{streamID: s.id, maximumStreamData: uint32(limit)})
			budget -= maxStreamDataSize()
			s.maxStreamDataSender.record(limit)
			entry.record(ackAction{kind: actionMaxStreamData, streamID: s.id, limit: limit})
			wrote = true
		}
	}

	if !c.cryptoSend.pending.empty() {
		if f, a, ok := buildStreamFrame(0, c.cryptoSend, budget); ok {
			payload = encodeStream(payload, f)
			budget -= streamHeaderSize(f) + len(f.data)
			entry.record(a)
			wrote = true
		}
	}
	for _, s := range c.streams {
		if s.send.pending.empty() {
			continue
		}
		if f, a, ok := buildStreamFrame(s.id, s.send, budget); ok {
			payload = encodeStream(payload, f)
			budget -= streamHeaderSize(f) + len(f.data)
			entry.record(a)
			wrote = true
		}
	}

	if typ == packetTypeClientInitial {
		// The initial flight must fit in this single packet; if there is
		// still pending crypto data after packing, the handshake will
		// never make progress.
		if !c.cryptoSend.pending.empty() {
			c.book.release(c.nextPacketNumber)
			return 0, newError(KindHandshakeTooLarge, "initial flight does not fit in one packet")
		}
		payload = encodePadding(payload, budget)
	}

	if !wrote && len(payload) == 0 {
		c.book.release(c.nextPacketNumber)
		return 0, nil
	}

	full := appendHeader(dst[:0], hdr, c.localParams.TruncateConnectionID)
	if protected {
		full = keys.seal(full, full, payload, c.nextPacketNumber)
	} else {
		full = append(full, payload...)
		full = appendCleartextTag(full)
	}

	c.logEvent(newLogEventPacket(now, logEventPacketSent, hdr, len(payload)))
	c.nextPacketNumber++
	return len(full), nil
}

func (c *Connection) nextPacketType() uint8 {
	// A side that has just completed the handshake may still have its
	// final cleartext flight (e.g. the server's Finished) sitting in
	// cryptoSend; that has to go out cleartext since the peer cannot yet
	// have derived read keys for a 1-RTT packet it hasn't seen completion
	// confirmed from. Only switch once the crypto stream has drained.
	if c.handshake.done() && c.cryptoSend.pending.empty() {
		return packetType1RTTKeyPhase0
	}
	if c.isClient {
		if c.nextPacketNumber == 0 {
			return packetTypeClientInitial
		}
		return packetTypeClientCleartext
	}
	return packetTypeServerCleartext
}

// buildAckFrame describes received packet numbers as a largest-ack/
// first-block pair plus trailing gap/block pairs, read off
// recvPacketNumbers from the top down starting at the `skip`-th range
// from the top (skip ranges already covered by an earlier partial frame
// in this acking cycle). It packs as many trailing blocks as fit in
// budget and stops there, so a range set too large for one packet gets
// split across Send calls instead of dropped: the caller resumes from
// nextSkip on the next call. complete reports whether every range was
// covered, and ok reports whether anything at all was built (false
// means even the largest-ack/first-block header didn't fit budget).
func (c *Connection) buildAckFrame(skip int, budget int) (f ackFrame, nextSkip int, complete bool, ok bool) {
	ranges := c.recvPacketNumbers.ranges
	n := len(ranges)
	if n == 0 || skip >= n {
		return ackFrame{}, 0, true, false
	}

	top := n - 1 - skip
	last := ranges[top]
	f = ackFrame{largestAck: last.End - 1, firstBlockLen: last.End - 1 - last.Start}
	if ackSize(f) > budget {
		return ackFrame{}, skip, false, false
	}

	consumed := 1
	hi := last.Start
	for i := top - 1; i >= 0; i-- {
		r := ranges[i]
		gap := hi - r.End
		length := r.End - r.Start - 1
		candidate := append(append([]ackBlock(nil), f.blocks...), ackBlock{gap: gap, length: length})
		if ackSize(ackFrame{largestAck: f.largestAck, firstBlockLen: f.firstBlockLen, blocks: candidate}) > budget {
			break
		}
		f.blocks = candidate
		hi = r.Start
		consumed++
	}

	nextSkip = skip + consumed
	complete = nextSkip >= n
	if complete {
		nextSkip = 0
	}
	return f, nextSkip, complete, true
}
