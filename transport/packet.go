package transport

// protocolVersion is the single QUIC draft version this implementation
// speaks; a value carried in both the long-header version field and the
// negotiated/offered version pair the handshake exchanges.
const protocolVersion uint32 = 0xff000005

// Packet type values, kept at the same wire values as the original
// implementation even though several (version negotiation, stateless
// retry, 0-RTT) are out of scope here and never produced or accepted.
const (
	packetTypeVersionNegotiation = 1
	packetTypeClientInitial      = 2
	packetTypeServerStatelessRetry = 3
	packetTypeServerCleartext    = 4
	packetTypeClientCleartext    = 5
	packetType0RTTProtected      = 6
	packetType1RTTKeyPhase0      = 7
	packetType1RTTKeyPhase1      = 8

	longHeaderFlag = 0x80
)

func isLongHeaderType(typ uint8) bool {
	switch typ {
	case packetTypeClientInitial, packetTypeServerCleartext, packetTypeClientCleartext:
		return true
	default:
		return false
	}
}

func isInScopeType(typ uint8) bool {
	switch typ {
	case packetTypeClientInitial, packetTypeServerCleartext, packetTypeClientCleartext,
		packetType1RTTKeyPhase0, packetType1RTTKeyPhase1:
		return true
	default:
		return false
	}
}

// packetHeader is the decoded form of either header shape: long header
// (CLIENT_INITIAL / CLIENT_CLEARTEXT / SERVER_CLEARTEXT) carries a version
// and connection id; short header (1RTT_KEY_PHASE_{0,1}) carries the
// connection id only when TruncateConnectionID was not negotiated.
type packetHeader struct {
	typ          uint8
	version      uint32
	connectionID uint64
	packetNumber uint64
}

// appendHeader writes a packet header, returning the grown buffer. For
// long-header types, version and connectionID are always present; for
// short-header types, connectionID is omitted when truncateConnID is set.
func appendHeader(dst []byte, h packetHeader, truncateConnID bool) []byte {
	dst = append(dst, h.typ|func() uint8 {
		if isLongHeaderType(h.typ) {
			return longHeaderFlag
		}
		return 0
	}())
	if isLongHeaderType(h.typ) {
		dst = appendUintN(dst, uint64(h.version), 4)
		dst = appendUintN(dst, h.connectionID, 8)
	} else if !truncateConnID {
		dst = appendUintN(dst, h.connectionID, 8)
	}
	dst = appendUintN(dst, h.packetNumber, 4)
	return dst
}

// parseHeader decodes a packet header from the front of b, returning the
// header and the remaining bytes (the payload, still protected).
func parseHeader(b []byte, truncateConnID bool) (packetHeader, []byte, error) {
	if len(b) < 1 {
		return packetHeader{}, nil, newError(KindInvalidPacketHeader, "empty packet")
	}
	first := b[0]
	typ := first &^ longHeaderFlag
	long := first&longHeaderFlag != 0
	b = b[1:]

	var h packetHeader
	h.typ = typ

	if long {
		if len(b) < 12 {
			return packetHeader{}, nil, newError(KindInvalidPacketHeader, "truncated long header")
		}
		v, rest, _ := getUintN(b, 4)
		h.version = uint32(v)
		cid, rest2, _ := getUintN(rest, 8)
		h.connectionID = cid
		b = rest2
	} else if !truncateConnID {
		if len(b) < 8 {
			return packetHeader{}, nil, newError(KindInvalidPacketHeader, "truncated connection id")
		}
		cid, rest, _ := getUintN(b, 8)
		h.connectionID = cid
		b = rest
	}

	if len(b) < 4 {
		return packetHeader{}, nil, newError(KindInvalidPacketHeader, "truncated packet number")
	}
	pn, rest, _ := getUintN(b, 4)
	h.packetNumber = pn
	b = rest

	if long != isLongHeaderType(h.typ) {
		return packetHeader{}, nil, newError(KindInvalidPacketHeader, "header form does not match packet type")
	}
	return h, b, nil
}

func headerSize(typ uint8, truncateConnID bool) int {
	n := 1 + 4 // type + packet number
	if isLongHeaderType(typ) {
		n += 4 + 8 // version + connection id
	} else if !truncateConnID {
		n += 8
	}
	return n
}
