package transport

// Transport-parameter IDs carried in TLS extension type 26. IDs 0-3 are
// mandatory; a decoded list missing any of them is rejected.
const (
	paramInitialMaxStreamData = 0
	paramInitialMaxData       = 1
	paramInitialMaxStreamID   = 2
	paramIdleTimeout          = 3
	paramTruncateConnectionID = 4

	transportParametersExtensionType = 26

	mandatoryParamBits = 1<<paramInitialMaxStreamData |
		1<<paramInitialMaxData |
		1<<paramInitialMaxStreamID |
		1<<paramIdleTimeout
)

// TransportParameters is this connection's advertised limits, exchanged
// via the TLS transport-parameters extension during the handshake.
type TransportParameters struct {
	InitialMaxStreamData uint32
	InitialMaxDataKB     uint32
	InitialMaxStreamID   uint32
	IdleTimeoutSeconds   uint16
	TruncateConnectionID bool
}

// encodeTransportParameterList writes the (id uint16, length uint16,
// value) list for tp. TruncateConnectionID, if set, is encoded as a
// zero-length parameter whose mere presence is the flag.
func encodeTransportParameterList(tp TransportParameters) []byte {
	var b []byte
	b = appendParam(b, paramInitialMaxStreamData, func(v []byte) []byte {
		return appendUintN(v, uint64(tp.InitialMaxStreamData), 4)
	})
	b = appendParam(b, paramInitialMaxData, func(v []byte) []byte {
		return appendUintN(v, uint64(tp.InitialMaxDataKB), 4)
	})
	b = appendParam(b, paramInitialMaxStreamID, func(v []byte) []byte {
		return appendUintN(v, uint64(tp.InitialMaxStreamID), 4)
	})
	b = appendParam(b, paramIdleTimeout, func(v []byte) []byte {
		return appendUintN(v, uint64(tp.IdleTimeoutSeconds), 2)
	})
	if tp.TruncateConnectionID {
		b = appendParam(b, paramTruncateConnectionID, func(v []byte) []byte { return v })
	}
	return b
}

func appendParam(dst []byte, id uint16, writeValue func([]byte) []byte) []byte {
	dst = appendUintN(dst, uint64(id), 2)
	lenOff := len(dst)
	dst = appendUintN(dst, 0, 2)
	before := len(dst)
	dst = writeValue(dst)
	putUintN(dst[lenOff:lenOff+2], uint64(len(dst)-before), 2)
	return dst
}

// encodeTransportParameters wraps encodeTransportParameterList with the
// negotiated/offered version pair the peer must echo back, grounded on
// quicly's client/server transport-parameters extension layout (both
// sides send the version(s) ahead of the parameter list; quicly_connect
// pushes QUICLY_PROTOCOL_VERSION twice, server_collected_extensions
// reads negotiated_version then initial_version).
func encodeTransportParameters(tp TransportParameters) []byte {
	b := appendUintN(nil, uint64(protocolVersion), 4)
	b = appendUintN(b, uint64(protocolVersion), 4)
	return append(b, encodeTransportParameterList(tp)...)
}

// decodeTransportParameters reads the negotiated/offered version pair and
// validates both equal this implementation's single supported version
// before decoding the parameter list, per spec.md §4.11's
// version-negotiation-mismatch sub-protocol.
func decodeTransportParameters(b []byte) (TransportParameters, error) {
	var tp TransportParameters
	negotiated, rest, ok := getUintN(b, 4)
	if !ok {
		return tp, newError(KindInvalidStreamData, "truncated negotiated version")
	}
	offered, rest, ok := getUintN(rest, 4)
	if !ok {
		return tp, newError(KindInvalidStreamData, "truncated offered version")
	}
	if uint32(negotiated) != protocolVersion || uint32(offered) != protocolVersion {
		return tp, newError(KindVersionNegotiationMismatch, "negotiated/offered version does not match the protocol version")
	}
	return decodeTransportParameterList(rest)
}

// decodeTransportParameterList parses the TLV list, rejecting duplicate
// ids and failing if any mandatory id (0-3) is missing.
func decodeTransportParameterList(b []byte) (TransportParameters, error) {
	var tp TransportParameters
	var seenBits uint32

	for len(b) > 0 {
		id, rest, ok := getUintN(b, 2)
		if !ok {
			return tp, newError(KindInvalidStreamData, "truncated transport parameter id")
		}
		length, rest, ok := getUintN(rest, 2)
		if !ok || uint64(len(rest)) < length {
			return tp, newError(KindInvalidStreamData, "truncated transport parameter value")
		}
		value := rest[:length]
		b = rest[length:]

		if id < 32 && seenBits&(1<<id) != 0 {
			return tp, newError(KindInvalidStreamData, "duplicate transport parameter id")
		}
		if id < 32 {
			seenBits |= 1 << id
		}

		switch id {
		case paramInitialMaxStreamData:
			v, _, ok := getUintN(value, 4)
			if !ok {
				return tp, newError(KindInvalidStreamData, "bad initial_max_stream_data")
			}
			tp.InitialMaxStreamData = uint32(v)
		case paramInitialMaxData:
			v, _, ok := getUintN(value, 4)
			if !ok {
				return tp, newError(KindInvalidStreamData, "bad initial_max_data")
			}
			tp.InitialMaxDataKB = uint32(v)
		case paramInitialMaxStreamID:
			v, _, ok := getUintN(value, 4)
			if !ok {
				return tp, newError(KindInvalidStreamData, "bad initial_max_stream_id")
			}
			tp.InitialMaxStreamID = uint32(v)
		case paramIdleTimeout:
			v, _, ok := getUintN(value, 2)
			if !ok {
				return tp, newError(KindInvalidStreamData, "bad idle_timeout")
			}
			tp.IdleTimeoutSeconds = uint16(v)
		case paramTruncateConnectionID:
			tp.TruncateConnectionID = true
		}
		// Unknown ids are ignored, as the format allows.
	}

	if seenBits&mandatoryParamBits != mandatoryParamBits {
		return tp, newError(KindInvalidStreamData, "missing mandatory transport parameter")
	}
	return tp, nil
}

// handshakeState tracks the driver's progress, named after quicly's own
// before-ServerHello / before-Finished / 1-RTT-encrypted states.
type handshakeState int

const (
	handshakeBeforeServerHello handshakeState = iota
	handshakeBeforeFinished
	handshakeOneRTTEncrypted
)

// handshakeDriver feeds the crypto stream (stream id 0) into the
// host-supplied Handshake engine and installs 1-RTT keys once it reports
// completion.
type handshakeDriver struct {
	engine Handshake
	state  handshakeState
}

func newHandshakeDriver(engine Handshake, local TransportParameters) *handshakeDriver {
	engine.SetLocalTransportParameters(encodeTransportParameters(local))
	return &handshakeDriver{engine: engine}
}

// advance feeds newly-received crypto-stream bytes in and returns bytes to
// queue back onto the crypto stream, the peer's transport parameters once
// available, and whether the handshake just completed on this call.
func (h *handshakeDriver) advance(in []byte) (out []byte, peerParams *TransportParameters, justCompleted bool, err error) {
	out, done, err := h.engine.Handle(in)
	if err != nil {
		return nil, nil, false, err
	}
	if !done {
		return out, nil, false, nil
	}
	if h.state == handshakeOneRTTEncrypted {
		return out, nil, false, nil
	}
	raw, ok := h.engine.PeerTransportParameters()
	if !ok {
		return nil, nil, false, newError(KindInvalidStreamData, "handshake completed without transport parameters")
	}
	tp, err := decodeTransportParameters(raw)
	if err != nil {
		return nil, nil, false, err
	}
	h.state = handshakeOneRTTEncrypted
	return out, &tp, true, nil
}

func (h *handshakeDriver) done() bool {
	return h.state == handshakeOneRTTEncrypted
}
