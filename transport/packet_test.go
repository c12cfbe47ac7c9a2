package transport

import "testing"

func TestHeaderRoundTripLong(t *testing.T) {
	h := packetHeader{typ: packetTypeClientInitial, version: protocolVersion, connectionID: 0x0102030405060708, packetNumber: 42}
	b := appendHeader(nil, h, false)
	if len(b) != headerSize(packetTypeClientInitial, false) {
		t.Fatalf("size mismatch: %d vs %d", len(b), headerSize(packetTypeClientInitial, false))
	}
	got, rest, err := parseHeader(b, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 || got != h {
		t.Fatalf("got %+v want %+v (rest=%d)", got, h, len(rest))
	}
}

func TestHeaderRoundTripShortWithConnID(t *testing.T) {
	h := packetHeader{typ: packetType1RTTKeyPhase0, connectionID: 7, packetNumber: 3}
	b := appendHeader(nil, h, false)
	got, rest, err := parseHeader(b, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 || got.typ != h.typ || got.connectionID != h.connectionID || got.packetNumber != h.packetNumber {
		t.Fatalf("got %+v want %+v", got, h)
	}
}

func TestHeaderRoundTripShortTruncated(t *testing.T) {
	h := packetHeader{typ: packetType1RTTKeyPhase1, packetNumber: 99}
	b := appendHeader(nil, h, true)
	if len(b) != headerSize(packetType1RTTKeyPhase1, true) {
		t.Fatalf("size mismatch: %d vs %d", len(b), headerSize(packetType1RTTKeyPhase1, true))
	}
	got, rest, err := parseHeader(b, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 || got.connectionID != 0 || got.packetNumber != h.packetNumber {
		t.Fatalf("got %+v", got)
	}
}

func TestParseHeaderTruncated(t *testing.T) {
	if _, _, err := parseHeader(nil, false); err == nil {
		t.Fatal("expected an error for an empty packet")
	}
	h := packetHeader{typ: packetTypeClientInitial, version: protocolVersion, connectionID: 1, packetNumber: 1}
	b := appendHeader(nil, h, false)
	if _, _, err := parseHeader(b[:len(b)-2], false); err == nil {
		t.Fatal("expected an error for a truncated long header")
	}
}

func TestIsInScopeType(t *testing.T) {
	for _, typ := range []uint8{packetTypeClientInitial, packetTypeClientCleartext, packetTypeServerCleartext, packetType1RTTKeyPhase0, packetType1RTTKeyPhase1} {
		if !isInScopeType(typ) {
			t.Errorf("expected type %d to be in scope", typ)
		}
	}
	for _, typ := range []uint8{packetTypeVersionNegotiation, packetTypeServerStatelessRetry, packetType0RTTProtected} {
		if isInScopeType(typ) {
			t.Errorf("expected type %d to be out of scope", typ)
		}
	}
}
