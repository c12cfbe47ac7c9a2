package transport

import (
	"errors"
	"testing"
)

func TestTransportParameterListRoundTrip(t *testing.T) {
	want := TransportParameters{
		InitialMaxStreamData: 16384,
		InitialMaxDataKB:     1024,
		InitialMaxStreamID:   17,
		IdleTimeoutSeconds:   30,
		TruncateConnectionID: true,
	}
	b := encodeTransportParameterList(want)
	got, err := decodeTransportParameterList(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestTransportParameterListMissingMandatory(t *testing.T) {
	var b []byte
	b = appendParam(b, paramInitialMaxStreamData, func(v []byte) []byte {
		return appendUintN(v, 4096, 4)
	})
	// paramInitialMaxData, paramInitialMaxStreamID and paramIdleTimeout omitted.
	if _, err := decodeTransportParameterList(b); err == nil {
		t.Fatal("expected an error for missing mandatory parameters")
	}
}

func TestTransportParameterListDuplicateID(t *testing.T) {
	var b []byte
	b = appendParam(b, paramInitialMaxStreamData, func(v []byte) []byte {
		return appendUintN(v, 1, 4)
	})
	b = appendParam(b, paramInitialMaxStreamData, func(v []byte) []byte {
		return appendUintN(v, 2, 4)
	})
	if _, err := decodeTransportParameterList(b); err == nil {
		t.Fatal("expected an error for a duplicate parameter id")
	}
}

func TestTransportParameterListUnknownIDIgnored(t *testing.T) {
	full := TransportParameters{InitialMaxStreamData: 1, InitialMaxDataKB: 2, InitialMaxStreamID: 3, IdleTimeoutSeconds: 4}
	b := encodeTransportParameterList(full)
	b = appendParam(b, 200, func(v []byte) []byte { return appendUintN(v, 0xabcd, 2) })
	got, err := decodeTransportParameterList(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != full {
		t.Fatalf("unknown parameter should not perturb known fields: got %+v", got)
	}
}

// fakeHandshake is a minimal Handshake double: completes as soon as it
// sees any input, echoing a canned peer transport-parameter payload.
type fakeHandshake struct {
	localParams []byte
	peerParams  []byte
	reply       []byte
}

func (f *fakeHandshake) Handle(in []byte) ([]byte, bool, error) {
	if len(in) == 0 {
		return nil, false, nil
	}
	return f.reply, true, nil
}

func (f *fakeHandshake) SetLocalTransportParameters(data []byte) { f.localParams = data }

func (f *fakeHandshake) PeerTransportParameters() ([]byte, bool) {
	if f.peerParams == nil {
		return nil, false
	}
	return f.peerParams, true
}

func (f *fakeHandshake) Export1RTTKeys() (read, write *OneRTTKeys, err error) {
	return nil, nil, nil
}

func TestHandshakeDriverAdvanceCompletes(t *testing.T) {
	peer := TransportParameters{InitialMaxStreamData: 1, InitialMaxDataKB: 2, InitialMaxStreamID: 3, IdleTimeoutSeconds: 4}
	engine := &fakeHandshake{peerParams: encodeTransportParameters(peer), reply: []byte("serverhello")}
	local := TransportParameters{InitialMaxStreamData: 9, InitialMaxDataKB: 9, InitialMaxStreamID: 9, IdleTimeoutSeconds: 9}

	driver := newHandshakeDriver(engine, local)
	if engine.localParams == nil {
		t.Fatal("expected local transport parameters to be installed on construction")
	}
	if driver.done() {
		t.Fatal("should not be done before advancing")
	}

	out, got, justCompleted, err := driver.advance([]byte("clienthello"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "serverhello" {
		t.Fatalf("unexpected output %q", out)
	}
	if !justCompleted || got == nil || *got != peer {
		t.Fatalf("expected completion with peer params %+v, got %+v (justCompleted=%v)", peer, got, justCompleted)
	}
	if !driver.done() {
		t.Fatal("expected done() after completion")
	}
}

func TestHandshakeDriverAdvanceNotDoneYet(t *testing.T) {
	engine := &fakeHandshake{}
	driver := newHandshakeDriver(engine, TransportParameters{})
	out, got, justCompleted, err := driver.advance(nil)
	if err != nil || out != nil || got != nil || justCompleted {
		t.Fatalf("expected a no-op advance, got out=%v params=%v completed=%v err=%v", out, got, justCompleted, err)
	}
}

func TestDecodeTransportParametersVersionMismatch(t *testing.T) {
	tp := TransportParameters{InitialMaxStreamData: 1, InitialMaxDataKB: 2, InitialMaxStreamID: 3, IdleTimeoutSeconds: 4}
	b := appendUintN(nil, uint64(protocolVersion)+1, 4)
	b = appendUintN(b, uint64(protocolVersion), 4)
	b = append(b, encodeTransportParameterList(tp)...)

	_, err := decodeTransportParameters(b)
	if err == nil {
		t.Fatal("expected a version-negotiation-mismatch error")
	}
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindVersionNegotiationMismatch {
		t.Fatalf("expected KindVersionNegotiationMismatch, got %v", err)
	}
}

func TestHandshakeDriverMissingPeerParamsErrors(t *testing.T) {
	engine := &fakeHandshake{reply: []byte("done")}
	driver := newHandshakeDriver(engine, TransportParameters{})
	if _, _, _, err := driver.advance([]byte("go")); err == nil {
		t.Fatal("expected an error when the engine completes without peer transport parameters")
	}
}
