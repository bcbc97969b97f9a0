// Package crypto implements sign, verify, box, and unbox, plus a
// passphrase key-derivation function. Signing uses Go's
// standard-library Ed25519 (idiomatic and stable since Go 1.13 — no
// third-party Ed25519 implementation is warranted here). Authenticated
// directed encryption uses golang.org/x/crypto/nacl/box. Key
// derivation uses golang.org/x/crypto/scrypt for its tunable work
// factor.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
)

// SigningKeyPair is an Ed25519 keypair used for sign/verify.
type SigningKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateSigningKeyPair creates a fresh Ed25519 keypair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, "keygen-failed", err)
	}
	return &SigningKeyPair{Public: pub, Private: priv}, nil
}

// Sign is deterministic per (key, message): Ed25519 has no
// randomized-nonce failure mode, so the same key and bytes always
// produce the same signature.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify checks a signature against a message and public key.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// BoxKeyPair is an X25519 keypair used for box/unbox.
type BoxKeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateBoxKeyPair creates a fresh X25519 keypair.
func GenerateBoxKeyPair() (*BoxKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, "keygen-failed", err)
	}
	return &BoxKeyPair{Public: pub, Private: priv}, nil
}

// Box authenticates and encrypts plaintext for recipientPublicKey
// using senderPrivateKey, returning a fresh random nonce and the
// sealed ciphertext (tag included). Any bit flip in the returned
// ciphertext fails authentication on Unbox — box.Seal's
// XSalsa20-Poly1305 construction is non-malleable.
func Box(recipientPublicKey, senderPrivateKey *[32]byte, plaintext []byte) (nonce [24]byte, ciphertext []byte, err error) {
	if _, rerr := rand.Read(nonce[:]); rerr != nil {
		return nonce, nil, meshcoreerr.New(meshcoreerr.KindCrypto, "nonce-failed", rerr)
	}
	ciphertext = box.Seal(nil, plaintext, &nonce, recipientPublicKey, senderPrivateKey)
	return nonce, ciphertext, nil
}

// Unbox decrypts and authenticates a box produced by Box. It returns a
// cryptographic-kind error (not the plaintext) when authentication
// fails, so callers cannot accidentally consume unauthenticated bytes.
func Unbox(senderPublicKey, recipientPrivateKey *[32]byte, nonce [24]byte, ciphertext []byte) ([]byte, error) {
	plaintext, ok := box.Open(nil, ciphertext, &nonce, senderPublicKey, recipientPrivateKey)
	if !ok {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeBadSignature, fmt.Errorf("box authentication failed"))
	}
	return plaintext, nil
}

// KDFParams controls scrypt's work factor. Defaults match scrypt's own
// interactive-use recommendation; identity.Seal uses whatever params
// its caller passes.
type KDFParams struct {
	N, R, P, KeyLen int
}

// DefaultKDFParams is a reasonable interactive-use default (scrypt's
// documented recommendation for N as of 2017).
var DefaultKDFParams = KDFParams{N: 1 << 15, R: 8, P: 1, KeyLen: 32}

// DeriveKey turns a passphrase and random salt into a symmetric key
// using scrypt. The salt must be stored alongside the derived
// ciphertext so decryption can repeat the derivation.
func DeriveKey(passphrase []byte, salt []byte, params KDFParams) ([]byte, error) {
	key, err := scrypt.Key(passphrase, salt, params.N, params.R, params.P, params.KeyLen)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, "kdf-failed", err)
	}
	return key, nil
}

// SealSymmetric authenticates and encrypts plaintext with a 32-byte
// symmetric key derived from DeriveKey, used to seal data at rest
// (the identity blob; see pkg/identity).
func SealSymmetric(key *[32]byte, plaintext []byte) (nonce [24]byte, ciphertext []byte, err error) {
	if _, rerr := rand.Read(nonce[:]); rerr != nil {
		return nonce, nil, meshcoreerr.New(meshcoreerr.KindCrypto, "nonce-failed", rerr)
	}
	ciphertext = secretbox.Seal(nil, plaintext, &nonce, key)
	return nonce, ciphertext, nil
}

// OpenSymmetric is the inverse of SealSymmetric. A wrong key and a
// corrupted ciphertext both fail identically: "secretbox: message
// authentication failed" never reveals which.
func OpenSymmetric(key *[32]byte, nonce [24]byte, ciphertext []byte) ([]byte, error) {
	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, key)
	if !ok {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeBadPassphrase, fmt.Errorf("secretbox authentication failed"))
	}
	return plaintext, nil
}

// ConstantTimeEqual compares two byte slices without leaking timing
// information about where they first differ. Nothing in this module
// calls it; identity.Open relies on secretbox authentication instead.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
