package transport

import (
	"bytes"
	"testing"
)

func TestRstStreamRoundTrip(t *testing.T) {
	want := rstStreamFrame{streamID: 7, errorCode: 2, finalOffset: 1000}
	b := encodeRstStream(nil, want)
	if len(b) != rstStreamSize() {
		t.Fatalf("size mismatch: %d vs %d", len(b), rstStreamSize())
	}
	got, rest, ok := decodeRstStream(b[1:])
	if !ok || len(rest) != 0 || got != want {
		t.Fatalf("got %+v rest %d ok %v", got, len(rest), ok)
	}
}

func TestStopSendingRoundTrip(t *testing.T) {
	want := stopSendingFrame{streamID: 3, errorCode: 9}
	b := encodeStopSending(nil, want)
	got, rest, ok := decodeStopSending(b[1:])
	if !ok || len(rest) != 0 || got != want {
		t.Fatalf("got %+v", got)
	}
}

func TestMaxDataRoundTrip(t *testing.T) {
	want := maxDataFrame{maximumDataKB: 1234}
	b := encodeMaxData(nil, want)
	got, rest, ok := decodeMaxData(b[1:])
	if !ok || len(rest) != 0 || got != want {
		t.Fatalf("got %+v", got)
	}
}

func TestMaxStreamDataRoundTrip(t *testing.T) {
	want := maxStreamDataFrame{streamID: 5, maximumStreamData: 777}
	b := encodeMaxStreamData(nil, want)
	got, rest, ok := decodeMaxStreamData(b[1:])
	if !ok || len(rest) != 0 || got != want {
		t.Fatalf("got %+v", got)
	}
}

func TestAckRoundTrip(t *testing.T) {
	want := ackFrame{
		largestAck:    100,
		ackDelay:      5,
		firstBlockLen: 10,
		blocks:        []ackBlock{{gap: 2, length: 3}, {gap: 1, length: 1}},
	}
	b := encodeAck(nil, want)
	if len(b) != ackSize(want) {
		t.Fatalf("size mismatch %d vs %d", len(b), ackSize(want))
	}
	got, rest, ok := decodeAck(b[1:])
	if !ok || len(rest) != 0 {
		t.Fatalf("decode failed, rest=%d ok=%v", len(rest), ok)
	}
	if got.largestAck != want.largestAck || got.ackDelay != want.ackDelay || got.firstBlockLen != want.firstBlockLen {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if len(got.blocks) != len(want.blocks) {
		t.Fatalf("block count mismatch: %d vs %d", len(got.blocks), len(want.blocks))
	}
	for i := range want.blocks {
		if got.blocks[i] != want.blocks[i] {
			t.Fatalf("block %d: got %+v want %+v", i, got.blocks[i], want.blocks[i])
		}
	}
}

func TestStreamRoundTrip(t *testing.T) {
	want := streamFrame{streamID: 9, offset: 300, fin: true, data: []byte("payload")}
	b := encodeStream(nil, want)
	typ := b[0]
	got, rest, ok := decodeStream(typ, b[1:])
	if !ok || len(rest) != 0 {
		t.Fatalf("decode failed")
	}
	if got.streamID != want.streamID || got.offset != want.offset || got.fin != want.fin || !bytes.Equal(got.data, want.data) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestStreamWidthSelection(t *testing.T) {
	small := streamFrame{streamID: 1, offset: 1, data: []byte("x")}
	b := encodeStream(nil, small)
	// type + 1-byte id + 1-byte offset + 2-byte length + 1 byte payload
	if len(b) != 1+1+1+2+1 {
		t.Fatalf("expected minimal width encoding, got %d bytes", len(b))
	}

	large := streamFrame{streamID: 1 << 20, offset: 1 << 40, data: []byte("x")}
	b = encodeStream(nil, large)
	if len(b) != 1+4+8+2+1 {
		t.Fatalf("expected 4/8-byte width encoding, got %d bytes", len(b))
	}
}
