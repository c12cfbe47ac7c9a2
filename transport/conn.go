package transport

import (
	"time"
)

// connState is this connection's coarse lifecycle stage, named after
// quicly's own before-ServerHello / before-Finished / 1-RTT-encrypted
// states collapsed to what callers need to observe.
type connState int

const (
	stateHandshake connState = iota
	stateActive
	stateClosed
)

const (
	maxPacketSize     = 1452 // UDP payload budget below typical path MTU
	clientInitialSize = 1272 // exact padded size of the first CLIENT_INITIAL

	defaultRTO            = 3 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultRecvWindow      = 16 * 1024
	minMaxDataDelta        = 4 * 1024
	minMaxStreamDataDelta  = 4 * 1024
)

// Connection is one QUIC endpoint's view of a single connection: stream
// multiplexing, the single packet-number space, connection-level flow
// control, and the in-flight ack book. Connection never touches the
// network directly; Receive/Send operate on byte slices so the host
// harness owns the socket.
type Connection struct {
	isClient     bool
	state        connState
	connectionID uint64

	handshake     *handshakeDriver
	cryptoSend    *sendBuffer
	cryptoRecv    *recvBuffer

	oneRTTRead  *OneRTTKeys
	oneRTTWrite *OneRTTKeys

	localParams  TransportParameters
	peerParams   TransportParameters
	peerParamsOK bool

	streams           map[uint32]*Stream
	nextLocalStreamID uint32
	nextPeerStreamID  uint32

	localMaxData    uint64 // bytes this side permits the peer to send
	bytesReceived   uint64
	localMaxDataSender maxSender

	peerMaxData uint64 // bytes the peer permits this side to send
	bytesSent   uint64

	nextPacketNumber   uint64
	recvPacketNumbers  rangeSet
	largestRecvPN      uint64
	ackQueued          bool
	// ackCursor counts how many ranges (from the newest/top of
	// recvPacketNumbers) an earlier partial ACK frame already covered in
	// the current acking cycle; buildAckFrame resumes from it so a range
	// set too big for one packet gets split across Send calls.
	ackCursor int
	// acksRequireEncryption latches true the first time a protected packet
	// needs acking, and never clears: once the peer has protected keys, acks
	// must travel only over protected packets (see Connection.Send).
	acksRequireEncryption bool

	book ackBook
	rto  time.Duration

	idleTimeout  time.Duration
	lastActivity time.Time

	onStreamOpen  func(*Stream)
	onStreamClose func(*Stream)
	onLogEvent    func(LogEvent)

	touchedStreams []uint32

	err error
}

// TouchedStreams returns the ids of streams that received new data or a
// state change during the most recent Receive call, and clears the list.
func (c *Connection) TouchedStreams() []uint32 {
	ids := c.touchedStreams
	c.touchedStreams = nil
	return ids
}

func newConnection(isClient bool, connectionID uint64, engine Handshake, local TransportParameters) *Connection {
	c := &Connection{
		isClient:     isClient,
		connectionID: connectionID,
		cryptoSend:   newSendBuffer(),
		cryptoRecv:   newRecvBuffer(),
		localParams:  local,
		streams:      make(map[uint32]*Stream),
		localMaxData: uint64(local.InitialMaxDataKB) * 1024,
		rto:          defaultRTO,
		idleTimeout:  time.Duration(local.IdleTimeoutSeconds) * time.Second,
		lastActivity: time.Time{},
	}
	if c.idleTimeout == 0 {
		c.idleTimeout = defaultIdleTimeout
	}
	c.handshake = newHandshakeDriver(engine, local)
	if isClient {
		c.nextLocalStreamID = 1
		c.nextPeerStreamID = 2
		// The client has no packet to respond to yet; prime the crypto
		// stream with its first flight (ClientHello) immediately.
		c.err = c.driveHandshake()
	} else {
		c.nextLocalStreamID = 2
		c.nextPeerStreamID = 1
	}
	return c
}

// Connect creates the client side of a new connection.
func Connect(connectionID uint64, engine Handshake, local TransportParameters) *Connection {
	return newConnection(true, connectionID, engine, local)
}

// Accept creates the server side of a new connection, in response to a
// peer's CLIENT_INITIAL.
func Accept(connectionID uint64, engine Handshake, local TransportParameters) *Connection {
	return newConnection(false, connectionID, engine, local)
}

// OnStreamOpen registers a callback fired whenever the peer opens a new
// stream (including implicitly, by referencing a higher stream id than
// previously seen).
func (c *Connection) OnStreamOpen(fn func(*Stream)) { c.onStreamOpen = fn }

// OnStreamClose registers a callback fired whenever a stream is released
// after both the host called Stream.Close and both directions reached a
// terminal state.
func (c *Connection) OnStreamClose(fn func(*Stream)) { c.onStreamClose = fn }

// OnLogEvent registers a qlog-style event sink.
func (c *Connection) OnLogEvent(fn func(LogEvent)) { c.onLogEvent = fn }

// reapStreams releases every stream the host closed and that has fully
// drained both directions, mirroring the destroy_stream_if_unneeded
// lifecycle check.
func (c *Connection) reapStreams() {
	for id, s := range c.streams {
		if s.closeIfDone() {
			if c.onStreamClose != nil {
				c.onStreamClose(s)
			}
			delete(c.streams, id)
		}
	}
}

func (c *Connection) logEvent(e LogEvent) {
	if c.onLogEvent != nil {
		c.onLogEvent(e)
	}
}

// OpenStream allocates a new host-initiated stream.
func (c *Connection) OpenStream() (*Stream, error) {
	id := c.nextLocalStreamID
	if id == 0 {
		return nil, newError(KindTooManyOpenStreams, "local stream id space exhausted")
	}
	s := newStream(id, c, uint64(c.peerParams.InitialMaxStreamData), defaultRecvWindow)
	c.streams[id] = s
	next := id + 2
	if next < id {
		next = 0
	}
	c.nextLocalStreamID = next
	return s, nil
}

// Stream returns the stream for id, opening any lower-numbered
// peer-initiated streams implied by referencing it for the first time
// (mirroring get_stream_or_open_if_new).
func (c *Connection) Stream(id uint32) (*Stream, error) {
	if s, ok := c.streams[id]; ok {
		return s, nil
	}
	if id == 0 {
		return nil, newError(KindInternal, "stream 0 is reserved for the handshake")
	}
	localInitiated := IsClientInitiated(id) == c.isClient
	if localInitiated {
		return nil, newError(KindInvalidStreamData, "reference to a local stream id never opened")
	}
	for next := c.nextPeerStreamID; next <= id; next += 2 {
		s := newStream(next, c, uint64(c.peerParams.InitialMaxStreamData), defaultRecvWindow)
		c.streams[next] = s
		if c.onStreamOpen != nil {
			c.onStreamOpen(s)
		}
		if next > id-2 {
			break
		}
	}
	c.nextPeerStreamID = id + 2
	s, ok := c.streams[id]
	if !ok {
		return nil, newError(KindInternal, "stream open bookkeeping failed")
	}
	return s, nil
}

// Receive processes one datagram. now is used for idle-timeout and RTO
// bookkeeping.
func (c *Connection) Receive(now time.Time, packet []byte) error {
	h, body, err := parseHeader(packet, c.localParams.TruncateConnectionID)
	if err != nil {
		return err
	}
	if !isInScopeType(h.typ) {
		return newError(KindPacketIgnored, "out-of-scope packet type")
	}
	if h.typ == packetTypeClientInitial && c.state != stateHandshake {
		// Matches the reference implementation's own handling: a second
		// CLIENT_INITIAL after the handshake has moved on is ignored.
		return nil
	}

	var payload []byte
	switch h.typ {
	case packetTypeClientInitial, packetTypeClientCleartext, packetTypeServerCleartext:
		// The tag covers header+payload, so it is checked over the whole
		// packet and the header is then cut off the verified bytes.
		verified, ok := verifyCleartextTag(packet)
		if !ok || len(body) < 8 {
			return newError(KindDecryptionFailure, "cleartext FNV-1a-64 check failed")
		}
		payload = verified[len(packet)-len(body):]
	case packetType1RTTKeyPhase0, packetType1RTTKeyPhase1:
		if c.oneRTTRead == nil {
			return newError(KindDecryptionFailure, "no 1-RTT read key installed yet")
		}
		header := packet[:len(packet)-len(body)]
		var err error
		payload, err = c.oneRTTRead.open(nil, header, body, h.packetNumber)
		if err != nil {
			return err
		}
	}

	c.lastActivity = now
	c.recvPacketNumbers.add(h.packetNumber, h.packetNumber+1)
	if h.packetNumber > c.largestRecvPN {
		c.largestRecvPN = h.packetNumber
	}
	protected := h.typ == packetType1RTTKeyPhase0 || h.typ == packetType1RTTKeyPhase1

	c.logEvent(newLogEventPacket(now, logEventPacketReceived, h, len(payload)))

	if err := c.receiveFrames(now, payload, protected); err != nil {
		return err
	}
	c.reapStreams()
	return nil
}

// receiveFrames parses and applies every frame in a decrypted packet
// payload. Only a non-PADDING frame schedules the packet number for
// acknowledgement; PADDING alone must not. Once a protected packet needs
// acking, acksRequireEncryption latches on and stays on, so future ACKs
// only go out over protected packets.
func (c *Connection) receiveFrames(now time.Time, b []byte, protected bool) error {
	scheduleAck := func() {
		c.ackQueued = true
		if protected {
			c.acksRequireEncryption = true
		}
	}
	for len(b) > 0 {
		typ := b[0]
		switch {
		case typ == frameTypePadding:
			b = b[1:]
		case typ == frameTypeRstStream:
			f, rest, ok := decodeRstStream(b[1:])
			if !ok {
				return newError(KindInvalidFrameData, "truncated RST_STREAM")
			}
			if err := c.handleRstStream(f); err != nil {
				return err
			}
			scheduleAck()
			b = rest
		case typ == frameTypeStopSending:
			f, rest, ok := decodeStopSending(b[1:])
			if !ok {
				return newError(KindInvalidFrameData, "truncated STOP_SENDING")
			}
			c.handleStopSending(f)
			scheduleAck()
			b = rest
		case typ == frameTypeMaxData:
			f, rest, ok := decodeMaxData(b[1:])
			if !ok {
				return newError(KindInvalidFrameData, "truncated MAX_DATA")
			}
			if err := c.handleMaxData(f); err != nil {
				return err
			}
			scheduleAck()
			b = rest
		case typ == frameTypeMaxStreamData:
			f, rest, ok := decodeMaxStreamData(b[1:])
			if !ok {
				return newError(KindInvalidFrameData, "truncated MAX_STREAM_DATA")
			}
			if err := c.handleMaxStreamData(f); err != nil {
				return err
			}
			scheduleAck()
			b = rest
		case typ == frameTypeAck:
			f, rest, ok := decodeAck(b[1:])
			if !ok {
				return newError(KindInvalidFrameData, "truncated ACK")
			}
			c.handleAck(now, f)
			scheduleAck()
			b = rest
		case typ&frameTypeStreamBase == frameTypeStreamBase:
			f, rest, ok := decodeStream(typ, b[1:])
			if !ok {
				return newError(KindInvalidFrameData, "truncated STREAM")
			}
			if err := c.handleStream(f); err != nil {
				return err
			}
			scheduleAck()
			b = rest
		default:
			return newError(KindInvalidFrameData, "unknown frame type")
		}
	}
	return nil
}

func (c *Connection) handleStream(f streamFrame) error {
	if f.streamID == 0 {
		if err := c.cryptoRecv.write(f.offset, f.data); err != nil {
			return err
		}
		if f.fin {
			if err := c.cryptoRecv.markEOS(f.offset + uint64(len(f.data))); err != nil {
				return err
			}
		}
		return c.driveHandshake()
	}
	s, err := c.Stream(f.streamID)
	if err != nil {
		return err
	}
	if err := s.recv.write(f.offset, f.data); err != nil {
		return err
	}
	if f.fin {
		if err := s.recv.markEOS(f.offset + uint64(len(f.data))); err != nil {
			return err
		}
	}
	c.bytesReceived += uint64(len(f.data))
	c.touchedStreams = append(c.touchedStreams, f.streamID)
	return nil
}

func (c *Connection) driveHandshake() error {
	in := c.cryptoRecv.get()
	c.cryptoRecv.shift(uint64(len(in)))
	out, peerParams, justCompleted, err := c.handshake.advance(in)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		c.cryptoSend.write(out)
	}
	if justCompleted {
		c.peerParams = *peerParams
		c.peerParamsOK = true
		c.peerMaxData = uint64(peerParams.InitialMaxDataKB) * 1024
		read, write, err := c.handshake.engine.Export1RTTKeys()
		if err != nil {
			return err
		}
		c.oneRTTRead = read
		c.oneRTTWrite = write
		c.state = stateActive
		for _, s := range c.streams {
			s.maxStreamData = uint64(c.peerParams.InitialMaxStreamData)
		}
	}
	return nil
}

func (c *Connection) handleRstStream(f rstStreamFrame) error {
	s, err := c.Stream(f.streamID)
	if err != nil {
		return err
	}
	if s.rstReceived && s.rstReceivedReason != f.errorCode {
		return newError(KindInvalidStreamData, "RST_STREAM error code conflicts with an earlier RST_STREAM")
	}
	if err := s.recv.markEOS(f.finalOffset); err != nil {
		return err
	}
	s.rstReceived = true
	s.rstReceivedReason = f.errorCode
	return nil
}

func (c *Connection) handleStopSending(f stopSendingFrame) {
	s, err := c.Stream(f.streamID)
	if err != nil {
		return
	}
	s.Reset(f.errorCode)
}

func (c *Connection) handleMaxData(f maxDataFrame) error {
	limit := uint64(f.maximumDataKB) * 1024
	if limit < c.peerMaxData {
		return newError(KindFlowControlError, "MAX_DATA regressed")
	}
	c.peerMaxData = limit
	return nil
}

func (c *Connection) handleMaxStreamData(f maxStreamDataFrame) error {
	s, err := c.Stream(f.streamID)
	if err != nil {
		return err
	}
	if uint64(f.maximumStreamData) < s.maxStreamData {
		return newError(KindFlowControlError, "MAX_STREAM_DATA regressed")
	}
	s.maxStreamData = uint64(f.maximumStreamData)
	return nil
}

func (c *Connection) handleAck(now time.Time, f ackFrame) {
	ack := func(pn uint64) {
		entry, ok := c.book.release(pn)
		if !ok {
			return
		}
		for _, a := range entry.actions {
			c.applyAck(a)
		}
	}

	if f.firstBlockLen > f.largestAck {
		return
	}
	low := f.largestAck - f.firstBlockLen
	for pn := low; pn <= f.largestAck; pn++ {
		ack(pn)
	}
	// f.blocks is ordered nearest-to-top first (buildAckFrame appends each
	// new block for a range further below the previous one), so this walk
	// must go forward, not backward, or gap/length accumulate against the
	// wrong reference point. gap is measured against the block's exclusive
	// range end (buildAckFrame's r.End), so recovering the inclusive high
	// end of the block needs the extra -1.
	hi := low
	for _, blk := range f.blocks {
		if hi < blk.gap+blk.length+1 {
			break
		}
		hi = hi - blk.gap - 1
		lo := hi - blk.length
		for pn := lo; pn <= hi; pn++ {
			ack(pn)
		}
		hi = lo
	}
}

func (c *Connection) applyAck(a ackAction) {
	switch a.kind {
	case actionStreamData:
		if a.streamID == 0 {
			c.cryptoSend.acked(a.start, a.end)
			return
		}
		if s, ok := c.streams[a.streamID]; ok {
			s.send.acked(a.start, a.end)
		}
	case actionMaxData:
		c.localMaxDataSender.acked(a.limit)
	case actionMaxStreamData:
		if s, ok := c.streams[a.streamID]; ok {
			s.maxStreamDataSender.acked(a.limit)
		}
	case actionStreamStateSender:
		if s, ok := c.streams[a.streamID]; ok {
			if a.senderKind == senderStopSending {
				s.stopSendingState = senderAcked
			} else {
				s.rstState = senderAcked
			}
		}
	}
}

func (c *Connection) applyLoss(a ackAction) {
	switch a.kind {
	case actionStreamData:
		if a.streamID == 0 {
			c.cryptoSend.lost(a.start, a.end)
			return
		}
		if s, ok := c.streams[a.streamID]; ok {
			s.send.lost(a.start, a.end)
		}
	case actionMaxData:
		c.localMaxDataSender.lost(a.limit)
	case actionMaxStreamData:
		if s, ok := c.streams[a.streamID]; ok {
			s.maxStreamDataSender.lost(a.limit)
		}
	case actionStreamStateSender:
		if s, ok := c.streams[a.streamID]; ok {
			if a.senderKind == senderStopSending {
				s.stopSendingState = senderSend
			} else {
				s.rstState = senderSend
			}
		}
	}
}

// CheckTimeout runs RTO-based loss detection and the idle timeout. It
// returns ErrFreeConnection once the connection is done and its resources
// should be released.
func (c *Connection) CheckTimeout(now time.Time) error {
	if !c.lastActivity.IsZero() && now.Sub(c.lastActivity) >= c.idleTimeout {
		c.state = stateClosed
		return ErrFreeConnection
	}
	for _, entry := range c.book.expired(now, c.rto) {
		for _, a := range entry.actions {
			c.applyLoss(a)
		}
	}
	c.reapStreams()
	return nil
}

// NextTimeout reports when CheckTimeout should next be called.
func (c *Connection) NextTimeout() time.Time {
	deadline := c.lastActivity.Add(c.idleTimeout)
	if oldest, ok := c.book.oldest(); ok {
		if rto := oldest.Add(c.rto); rto.Before(deadline) {
			deadline = rto
		}
	}
	return deadline
}

// IsActive reports whether the 1-RTT keys are installed and in use.
func (c *Connection) IsActive() bool { return c.state == stateActive }
