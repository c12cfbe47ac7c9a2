package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"testing"
)

func TestFNV1a64KnownVector(t *testing.T) {
	// "" hashes to the FNV-1a-64 offset basis itself.
	if got := fnv1a64(nil); got != fnv1aOffsetBasis {
		t.Fatalf("got %d want %d", got, fnv1aOffsetBasis)
	}
}

func TestCleartextTagRoundTrip(t *testing.T) {
	packet := []byte("header+payload")
	tagged := appendCleartextTag(packet)
	if len(tagged) != len(packet)+8 {
		t.Fatalf("expected 8 extra bytes, got %d", len(tagged)-len(packet))
	}
	body, ok := verifyCleartextTag(tagged)
	if !ok || string(body) != string(packet) {
		t.Fatalf("verify failed: ok=%v body=%q", ok, body)
	}
}

func TestCleartextTagDetectsCorruption(t *testing.T) {
	tagged := appendCleartextTag([]byte("hello"))
	tagged[0] ^= 0xff
	if _, ok := verifyCleartextTag(tagged); ok {
		t.Fatal("expected corrupted packet to fail verification")
	}
}

func newTestAEAD(t *testing.T, key byte) cipher.AEAD {
	t.Helper()
	k := make([]byte, 16)
	for i := range k {
		k[i] = key
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		t.Fatal(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	return aead
}

func TestOneRTTKeysSealOpenRoundTrip(t *testing.T) {
	aead := newTestAEAD(t, 0x42)
	iv := make([]byte, aead.NonceSize())
	for i := range iv {
		iv[i] = byte(i)
	}
	keys := NewOneRTTKeys(aead, iv)

	header := []byte("header")
	payload := []byte("the quick brown fox")
	sealed := keys.seal(nil, header, payload, 7)

	opened, err := keys.open(nil, header, sealed, 7)
	if err != nil {
		t.Fatal(err)
	}
	if string(opened) != string(payload) {
		t.Fatalf("got %q want %q", opened, payload)
	}
}

func TestOneRTTKeysOpenWrongPacketNumberFails(t *testing.T) {
	aead := newTestAEAD(t, 0x11)
	iv := make([]byte, aead.NonceSize())
	keys := NewOneRTTKeys(aead, iv)

	sealed := keys.seal(nil, []byte("hdr"), []byte("payload"), 1)
	if _, err := keys.open(nil, []byte("hdr"), sealed, 2); err == nil {
		t.Fatal("expected open with the wrong packet number to fail")
	}
}
