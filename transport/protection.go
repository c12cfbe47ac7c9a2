package transport

import (
	"crypto/cipher"
	"encoding/binary"
)

// fnv1aOffsetBasis and fnv1aPrime are FNV-1a-64's standard constants; used
// as the integrity check over CLIENT_INITIAL/CLIENT_CLEARTEXT/
// SERVER_CLEARTEXT packets, which carry the handshake before any AEAD keys
// exist.
const (
	fnv1aOffsetBasis uint64 = 14695981039346656037
	fnv1aPrime       uint64 = 1099511628211
)

// fnv1a64 hashes data with FNV-1a-64.
func fnv1a64(data []byte) uint64 {
	h := fnv1aOffsetBasis
	for _, b := range data {
		h ^= uint64(b)
		h *= fnv1aPrime
	}
	return h
}

// appendCleartextTag appends the 8-byte FNV-1a-64 tag covering header+payload.
func appendCleartextTag(packet []byte) []byte {
	tag := fnv1a64(packet)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], tag)
	return append(packet, buf[:]...)
}

// verifyCleartextTag checks the trailing 8-byte FNV-1a-64 tag, returning
// the packet with the tag stripped.
func verifyCleartextTag(packet []byte) ([]byte, bool) {
	if len(packet) < 8 {
		return nil, false
	}
	body := packet[:len(packet)-8]
	want := binary.BigEndian.Uint64(packet[len(packet)-8:])
	return body, fnv1a64(body) == want
}

// OneRTTKeys are the AEAD and static IV pair exported once the handshake
// completes, one direction each way. The static IV is XORed with the
// packet number to build the per-packet nonce, as the protocol's
// 1-RTT-protected packet types require. Host Handshake implementations
// build these with NewOneRTTKeys once they have derived the exporter
// secret and the concrete cipher.AEAD for it.
type OneRTTKeys struct {
	aead cipher.AEAD
	iv   []byte
}

// NewOneRTTKeys pairs an AEAD with the static IV its nonces are derived
// from.
func NewOneRTTKeys(aead cipher.AEAD, iv []byte) *OneRTTKeys {
	return &OneRTTKeys{aead: aead, iv: iv}
}

func (k *OneRTTKeys) nonce(packetNumber uint64) []byte {
	nonce := make([]byte, len(k.iv))
	copy(nonce, k.iv)
	var pnBytes [8]byte
	binary.BigEndian.PutUint64(pnBytes[:], packetNumber)
	off := len(nonce) - 8
	for i := 0; i < 8 && off+i >= 0; i++ {
		nonce[off+i] ^= pnBytes[i]
	}
	return nonce
}

// seal AEAD-protects payload in place for packetNumber, with header as
// associated data, appending the authentication tag.
func (k *OneRTTKeys) seal(dst, header, payload []byte, packetNumber uint64) []byte {
	return k.aead.Seal(dst, k.nonce(packetNumber), payload, header)
}

// open authenticates and decrypts an AEAD-protected payload.
func (k *OneRTTKeys) open(dst, header, ciphertext []byte, packetNumber uint64) ([]byte, error) {
	plain, err := k.aead.Open(dst, k.nonce(packetNumber), ciphertext, header)
	if err != nil {
		return nil, newError(KindDecryptionFailure, "1-RTT AEAD open failed")
	}
	return plain, nil
}

// Handshake is the host-injected TLS engine that drives the handshake
// riding on stream 0 and, once done, exports the 1-RTT secrets. The core
// package never selects a cipher suite or TLS library itself; a concrete
// implementation wraps whatever TLS stack the host embeds and derives its
// AEADs using the exporter labels "EXPORTER-QUIC client 1-RTT Secret" and
// "EXPORTER-QUIC server 1-RTT Secret", indexed by which side is the client.
type Handshake interface {
	// Handle feeds bytes received on the crypto stream and returns bytes
	// to write back to it, if any. done reports the handshake completed
	// on this call (keys are exportable from this point on).
	Handle(in []byte) (out []byte, done bool, err error)

	// SetLocalTransportParameters supplies the encoded transport-parameters
	// extension payload (type 26) for the engine to embed in its own
	// handshake flight.
	SetLocalTransportParameters(data []byte)

	// PeerTransportParameters returns the peer's transport-parameters
	// extension payload once the engine has received it.
	PeerTransportParameters() (data []byte, ok bool)

	// Export1RTTKeys returns the read/write AEAD+IV pairs. Valid only
	// after Handle has reported done.
	Export1RTTKeys() (read, write *OneRTTKeys, err error)
}
