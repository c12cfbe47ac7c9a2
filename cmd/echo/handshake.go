package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"

	"github.com/bhesmans/quince/transport"
)

// demoHandshake is a minimal stand-in for a real TLS 1.3 engine: it
// exchanges a single fixed "hello" message each way over the crypto
// stream, then derives 1-RTT keys from a shared passphrase with SHA-256
// instead of a genuine key-exchange transcript. Wiring an actual TLS 1.3
// state machine onto a non-net.Conn transport is out of scope for this
// example client; a production embedder supplies a real transport.
// Handshake backed by a certified TLS stack.
type demoHandshake struct {
	isClient bool
	passphrase string

	sentHello     bool
	receivedHello bool

	localParams []byte
	peerParams  []byte
}

func newDemoHandshake(isClient bool, passphrase string) *demoHandshake {
	return &demoHandshake{isClient: isClient, passphrase: passphrase}
}

const demoHelloMagic = "quince-demo-hello"

func (h *demoHandshake) Handle(in []byte) ([]byte, bool, error) {
	if len(in) > 0 {
		h.receivedHello = true
	}
	var out []byte
	if !h.sentHello {
		out = append(out, []byte(demoHelloMagic)...)
		out = append(out, h.localParams...)
		h.sentHello = true
	}
	done := h.sentHello && h.receivedHello
	if done && len(in) > len(demoHelloMagic) {
		h.peerParams = in[len(demoHelloMagic):]
	}
	return out, done, nil
}

func (h *demoHandshake) SetLocalTransportParameters(data []byte) {
	h.localParams = data
}

func (h *demoHandshake) PeerTransportParameters() ([]byte, bool) {
	return h.peerParams, h.peerParams != nil
}

func (h *demoHandshake) Export1RTTKeys() (read, write *transport.OneRTTKeys, err error) {
	clientSecret := sha256.Sum256([]byte(h.passphrase + "|client"))
	serverSecret := sha256.Sum256([]byte(h.passphrase + "|server"))

	clientAEAD, err := newAEAD(clientSecret[:])
	if err != nil {
		return nil, nil, err
	}
	serverAEAD, err := newAEAD(serverSecret[:])
	if err != nil {
		return nil, nil, err
	}
	clientIV := clientSecret[16:28]
	serverIV := serverSecret[16:28]

	clientKeys := transport.NewOneRTTKeys(clientAEAD, clientIV)
	serverKeys := transport.NewOneRTTKeys(serverAEAD, serverIV)

	if h.isClient {
		return serverKeys, clientKeys, nil
	}
	return clientKeys, serverKeys, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
