package transport

// senderState mirrors the small state machine a RST_STREAM/STOP_SENDING
// announcement goes through: nothing pending, queued to send, sent and
// awaiting ack, or acked.
type senderState int

const (
	senderNone senderState = iota
	senderSend
	senderUnacked
	senderAcked
)

// Stream is one bidirectional stream multiplexed over a Connection.
// Stream id 0 is reserved for the handshake/crypto stream; all other ids
// encode their initiator's parity in bit 0 (odd = client-initiated).
type Stream struct {
	id   uint32
	conn *Connection

	send *sendBuffer
	recv *recvBuffer

	// Egress flow control.
	maxStreamData uint64 // limit advertised by the peer
	maxSent       uint64 // not updated by Send; outgoing data is not limited by maxStreamData

	stopSendingState  senderState
	stopSendingReason uint32
	rstState          senderState
	rstReason         uint32

	maxStreamDataSender maxSender

	// Ingress flow control.
	recvWindow uint64 // local per-stream receive window
	rstReceivedReason uint32
	rstReceived       bool

	closeCalled bool
}

func newStream(id uint32, conn *Connection, initialMaxStreamData, recvWindow uint64) *Stream {
	return &Stream{
		id:            id,
		conn:          conn,
		send:          newSendBuffer(),
		recv:          newRecvBuffer(),
		maxStreamData: initialMaxStreamData,
		recvWindow:    recvWindow,
	}
}

// ID returns the stream identifier.
func (s *Stream) ID() uint32 { return s.id }

// IsClientInitiated reports whether the stream's id parity marks the
// client as its initiator. Stream 0 (the crypto/handshake stream) is
// shared by both sides and parity does not apply to it.
func IsClientInitiated(id uint32) bool {
	return id%2 == 1
}

// Write queues bytes for transmission on the stream.
func (s *Stream) Write(b []byte) (int, error) {
	if err := s.send.write(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// CloseWrite signals no more bytes will be written (schedules a FIN).
func (s *Stream) CloseWrite() {
	s.send.shutdown()
}

// Read consumes bytes the peer has sent, in order, and returns the number
// of bytes copied into dst. It returns 0 both when nothing new has arrived
// and once every byte up to the peer's FIN has been delivered; callers
// check Stream.ReceivedFin() if they need to distinguish "nothing new yet"
// from "stream finished".
func (s *Stream) Read(dst []byte) int {
	avail := s.recv.get()
	n := copy(dst, avail)
	s.recv.shift(uint64(n))
	return n
}

// ReceivedFin reports whether the peer's FIN has been fully consumed.
func (s *Stream) ReceivedFin() bool {
	return s.recv.eosReached()
}

// SendComplete reports whether every byte this side wrote, including its
// own FIN, has been acked.
func (s *Stream) SendComplete() bool {
	return s.send.transferComplete()
}

// Close marks the stream as no longer needed by the host. Once both
// directions have reached a terminal state (send side fully transferred
// or reset-and-acked, receive side fully consumed or reset), the
// Connection releases it.
func (s *Stream) Close() {
	s.closeCalled = true
}

// RequestStopSending asks the peer to stop sending on this stream.
func (s *Stream) RequestStopSending(reason uint32) {
	if s.stopSendingState != senderNone {
		return
	}
	s.stopSendingState = senderSend
	s.stopSendingReason = reason
}

// Reset abandons the send side of the stream with an error code, as
// RST_STREAM. The FIN offset collapses to whatever was written so far.
// Bytes already queued are not discarded: they stay pending and Send keeps
// transmitting them.
func (s *Stream) Reset(reason uint32) {
	if s.rstState != senderNone {
		return
	}
	if s.send.eos == noOffset {
		s.send.shutdown()
	}
	s.rstState = senderSend
	s.rstReason = reason
}

// closeIfDone reports whether both directions of the stream have reached
// a terminal state and its resources can be released, mirroring the
// destroy_stream_if_unneeded lifecycle: close requested locally, the send
// side fully transferred (or reset and acked), and the receive side fully
// consumed (or reset by the peer).
func (s *Stream) closeIfDone() bool {
	if !s.closeCalled {
		return false
	}
	sendDone := s.send.transferComplete() || s.rstState == senderAcked
	recvDone := s.recv.eosReached() || s.rstReceived
	return sendDone && recvDone
}
