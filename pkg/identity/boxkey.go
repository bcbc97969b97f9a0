package identity

import "golang.org/x/crypto/curve25519"

// derivedBoxPublic recomputes an X25519 public key from its private
// scalar — box key pairs are stored sealed as private-key-only, so
// reopening an identity recovers the public half this way instead of
// persisting it twice.
func derivedBoxPublic(priv *[32]byte) *[32]byte {
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, priv)
	return &pub
}
