package wire

import (
	"fmt"
)

// SignatureSize is the Ed25519 signature length.
const SignatureSize = 64

// NonceSize is the nacl box/secretbox nonce length.
const NonceSize = 24

// TagSize is the Poly1305 authentication tag appended by nacl's
// authenticated encryption primitives.
const TagSize = 16

// SignedEnvelope is "length-prefixed payload || 8-byte timestamp ||
// 64-byte signature" from spec.md §6. Used for broadcast/discoverable
// messages (announce, sync) where only authenticity, not secrecy, is
// required.
type SignedEnvelope struct {
	Payload   []byte
	Timestamp int64 // unix-millis
	Signature [SignatureSize]byte
}

func EncodeSigned(e *SignedEnvelope) []byte {
	buf := make([]byte, 0, 4+len(e.Payload)+8+SignatureSize)
	buf = appendU32(buf, uint32(len(e.Payload)))
	buf = append(buf, e.Payload...)
	buf = appendU64(buf, uint64(e.Timestamp))
	buf = append(buf, e.Signature[:]...)
	return buf
}

func DecodeSigned(raw []byte) (*SignedEnvelope, error) {
	r := &reader{buf: raw}
	payload, err := r.u32Prefixed()
	if err != nil {
		return nil, malformed(err)
	}
	millis, err := r.u64()
	if err != nil {
		return nil, malformed(err)
	}
	sigBytes, err := r.take(SignatureSize)
	if err != nil {
		return nil, malformed(err)
	}
	if !r.exhausted() {
		return nil, malformed(fmt.Errorf("trailing bytes after signed envelope"))
	}
	var sig [SignatureSize]byte
	copy(sig[:], sigBytes)
	return &SignedEnvelope{Payload: payload, Timestamp: int64(millis), Signature: sig}, nil
}

// EncryptedEnvelope additionally carries a 24-byte nonce and the
// authenticated ciphertext (which already includes its 16-byte tag,
// produced by nacl/box.Seal).
type EncryptedEnvelope struct {
	Nonce      [NonceSize]byte
	Ciphertext []byte // includes the 16-byte Poly1305 tag
	Timestamp  int64
	Signature  [SignatureSize]byte
}

func EncodeEncrypted(e *EncryptedEnvelope) []byte {
	buf := make([]byte, 0, NonceSize+4+len(e.Ciphertext)+8+SignatureSize)
	buf = append(buf, e.Nonce[:]...)
	buf = appendU32(buf, uint32(len(e.Ciphertext)))
	buf = append(buf, e.Ciphertext...)
	buf = appendU64(buf, uint64(e.Timestamp))
	buf = append(buf, e.Signature[:]...)
	return buf
}

func DecodeEncrypted(raw []byte) (*EncryptedEnvelope, error) {
	r := &reader{buf: raw}
	nonceBytes, err := r.take(NonceSize)
	if err != nil {
		return nil, malformed(err)
	}
	ciphertext, err := r.u32Prefixed()
	if err != nil {
		return nil, malformed(err)
	}
	millis, err := r.u64()
	if err != nil {
		return nil, malformed(err)
	}
	sigBytes, err := r.take(SignatureSize)
	if err != nil {
		return nil, malformed(err)
	}
	if !r.exhausted() {
		return nil, malformed(fmt.Errorf("trailing bytes after encrypted envelope"))
	}
	var nonce [NonceSize]byte
	copy(nonce[:], nonceBytes)
	var sig [SignatureSize]byte
	copy(sig[:], sigBytes)
	return &EncryptedEnvelope{Nonce: nonce, Ciphertext: ciphertext, Timestamp: int64(millis), Signature: sig}, nil
}
