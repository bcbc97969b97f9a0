// Package identity implements C2: a keypair plus a self-certifying
// identifier, and the passphrase-sealed at-rest blob that protects the
// private key. The private key never leaves this package — callers
// get back an identifier and a Sign method, never the raw bytes
// (Design Notes: "the private key never leaves this component").
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/aidcollective/meshcore/pkg/crypto"
	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/types"
)

// MethodTag prefixes every identifier this package mints, per spec.md
// §6 ("<method-tag>:<base58-encoded-public-key>").
const MethodTag = "meshcore"

// Identity wraps a signing keypair and the identifier derived from it.
// It also carries a box keypair so the secure session layer (C7) can
// encrypt directed payloads without a second identity object.
type Identity struct {
	id         types.PeerID
	signing    *crypto.SigningKeyPair
	box        *crypto.BoxKeyPair
	Profile    Profile
}

// Profile is the small amount of user-facing metadata an identity
// carries. It is not a record — it is never merged by the CRDT store,
// only exported/imported with the identity blob.
type Profile struct {
	DisplayName string `json:"display_name"`
}

// New creates a fresh keypair and derives its identifier.
func New(profile Profile) (*Identity, error) {
	signing, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return nil, err
	}
	boxKeys, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		return nil, err
	}
	return &Identity{
		id:      deriveID(signing.Public),
		signing: signing,
		box:     boxKeys,
		Profile: profile,
	}, nil
}

// ID returns the self-certifying peer identifier.
func (i *Identity) ID() types.PeerID { return i.id }

// PublicSigningKey returns the Ed25519 public key, safe to publish.
func (i *Identity) PublicSigningKey() ed25519.PublicKey { return i.signing.Public }

// PublicBoxKey returns the X25519 public key, safe to publish.
func (i *Identity) PublicBoxKey() *[32]byte { return i.box.Public }

// Sign signs bytes with the private signing key. This, not the key
// itself, is the only way outside code touches the private key.
func (i *Identity) Sign(msg []byte) []byte { return crypto.Sign(i.signing.Private, msg) }

// BoxTo encrypts plaintext for recipientPublicKey using this
// identity's box private key.
func (i *Identity) BoxTo(recipientPublicKey *[32]byte, plaintext []byte) (nonce [24]byte, ciphertext []byte, err error) {
	return crypto.Box(recipientPublicKey, i.box.Private, plaintext)
}

// UnboxFrom decrypts a box addressed to this identity from senderPublicKey.
func (i *Identity) UnboxFrom(senderPublicKey *[32]byte, nonce [24]byte, ciphertext []byte) ([]byte, error) {
	return crypto.Unbox(senderPublicKey, i.box.Private, nonce, ciphertext)
}

// deriveID computes the self-certifying identifier: a method tag plus
// the base58 encoding of the public signing key.
func deriveID(pub ed25519.PublicKey) types.PeerID {
	return types.PeerID(fmt.Sprintf("%s:%s", MethodTag, base58.Encode(pub)))
}

// VerifyIdentifier reports whether id is the derivation of pub — the
// check the mesh manager performs on every announce (spec.md §4.5 step 2).
func VerifyIdentifier(id types.PeerID, pub ed25519.PublicKey) bool {
	return id == deriveID(pub)
}

// keyMaterial is the portion of the identity that must stay secret;
// it is what gets passphrase-sealed.
type keyMaterial struct {
	SigningPrivate []byte  `json:"signing_private"`
	BoxPrivate     [32]byte `json:"box_private"`
	Profile        Profile  `json:"profile"`
}

// sealedBlob is the on-disk / exported shape of identity.sealed:
// scrypt parameters and salt, the secretbox nonce, and the ciphertext.
type sealedBlob struct {
	Salt       []byte          `json:"salt"`
	KDFParams  crypto.KDFParams `json:"kdf_params"`
	Nonce      [24]byte        `json:"nonce"`
	Ciphertext []byte          `json:"ciphertext"`
}

// Seal encrypts the identity's key material under a key derived from
// passphrase, for writing to identity.sealed or for a portable export.
// There is no plaintext export path (Open Question #2 in spec.md §9):
// every caller that wants the bytes off this identity must supply a
// passphrase.
func (i *Identity) Seal(passphrase []byte, params crypto.KDFParams) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, "salt-failed", err)
	}
	key, err := crypto.DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	var keyArr [32]byte
	copy(keyArr[:], key)

	km := keyMaterial{
		SigningPrivate: i.signing.Private,
		BoxPrivate:     *i.box.Private,
		Profile:        i.Profile,
	}
	plaintext, err := json.Marshal(km)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindStorage, "marshal-failed", err)
	}

	nonce, ciphertext, err := crypto.SealSymmetric(&keyArr, plaintext)
	if err != nil {
		return nil, err
	}

	blob := sealedBlob{Salt: salt, KDFParams: params, Nonce: nonce, Ciphertext: ciphertext}
	return json.Marshal(&blob)
}

// Open decrypts a blob produced by Seal. A wrong passphrase and a
// corrupted blob both return the same bad-passphrase error. A blob
// that does not parse still runs one key derivation at
// crypto.DefaultKDFParams before failing, so it takes about as long as
// a wrong passphrase under default parameters (testable property 8).
func Open(sealed []byte, passphrase []byte) (*Identity, error) {
	var blob sealedBlob
	if err := json.Unmarshal(sealed, &blob); err != nil {
		_, _ = crypto.DeriveKey(passphrase, make([]byte, 16), crypto.DefaultKDFParams)
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeBadPassphrase, err)
	}

	key, err := crypto.DeriveKey(passphrase, blob.Salt, blob.KDFParams)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeBadPassphrase, err)
	}
	var keyArr [32]byte
	copy(keyArr[:], key)

	plaintext, err := crypto.OpenSymmetric(&keyArr, blob.Nonce, blob.Ciphertext)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeBadPassphrase, err)
	}

	var km keyMaterial
	if err := json.Unmarshal(plaintext, &km); err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeBadPassphrase, err)
	}

	signingPriv := ed25519.PrivateKey(km.SigningPrivate)
	signingPub, ok := signingPriv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeBadPassphrase, fmt.Errorf("malformed signing key"))
	}
	boxPrivate := km.BoxPrivate

	return &Identity{
		id: deriveID(signingPub),
		signing: &crypto.SigningKeyPair{
			Public:  signingPub,
			Private: signingPriv,
		},
		box: &crypto.BoxKeyPair{
			Public:  derivedBoxPublic(&boxPrivate),
			Private: &boxPrivate,
		},
		Profile: km.Profile,
	}, nil
}
