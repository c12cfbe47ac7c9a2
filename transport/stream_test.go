package transport

import "testing"

func TestIsClientInitiated(t *testing.T) {
	if !IsClientInitiated(1) {
		t.Fatal("odd stream ids are client-initiated")
	}
	if IsClientInitiated(2) {
		t.Fatal("even stream ids are not client-initiated")
	}
}

func TestStreamWriteReadRoundTrip(t *testing.T) {
	s := newStream(1, nil, 4096, 4096)
	n, err := s.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	// Simulate the sender taking and acking the bytes, then the peer
	// delivering them into the receive buffer.
	s.send.acked(0, 5)
	if err := s.recv.write(0, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 5)
	got := s.Read(dst)
	if got != 5 || string(dst) != "hello" {
		t.Fatalf("read got %q (%d)", dst[:got], got)
	}
}

func TestStreamCloseWriteMarksSendComplete(t *testing.T) {
	s := newStream(1, nil, 4096, 4096)
	s.Write([]byte("ab"))
	s.CloseWrite()
	if s.SendComplete() {
		t.Fatal("should not be complete before the FIN byte is acked")
	}
	s.send.acked(0, 3) // 2 data bytes + the virtual FIN byte
	if !s.SendComplete() {
		t.Fatal("expected send complete once data and FIN are acked")
	}
}

func TestStreamReceivedFin(t *testing.T) {
	s := newStream(1, nil, 4096, 4096)
	if err := s.recv.write(0, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.recv.markEOS(1); err != nil {
		t.Fatal(err)
	}
	if s.ReceivedFin() {
		t.Fatal("should not be reached before the byte is consumed")
	}
	s.Read(make([]byte, 1))
	if !s.ReceivedFin() {
		t.Fatal("expected fin reached once the last byte is consumed")
	}
}

func TestStreamRequestStopSendingIsIdempotent(t *testing.T) {
	s := newStream(1, nil, 4096, 4096)
	s.RequestStopSending(7)
	if s.stopSendingState != senderSend || s.stopSendingReason != 7 {
		t.Fatalf("unexpected state %v reason %v", s.stopSendingState, s.stopSendingReason)
	}
	s.RequestStopSending(99)
	if s.stopSendingReason != 7 {
		t.Fatal("a second request should not overwrite the first")
	}
}

func TestStreamResetBeforeShutdown(t *testing.T) {
	s := newStream(1, nil, 4096, 4096)
	s.Write([]byte("abc"))
	s.Reset(3)
	if s.rstState != senderSend || s.rstReason != 3 {
		t.Fatalf("unexpected reset state %v reason %v", s.rstState, s.rstReason)
	}
	if s.send.eos == noOffset {
		t.Fatal("expected reset to shut down the send buffer if not already done")
	}
}

func TestStreamCloseIfDone(t *testing.T) {
	s := newStream(1, nil, 4096, 4096)
	s.closeCalled = true
	if s.closeIfDone() {
		t.Fatal("not done: nothing sent or received yet")
	}
	s.CloseWrite()
	s.send.acked(0, 1)
	if err := s.recv.markEOS(0); err != nil {
		t.Fatal(err)
	}
	if !s.closeIfDone() {
		t.Fatal("expected done once both directions reached a terminal state")
	}
}
