package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/crypto"
)

var fastKDF = crypto.KDFParams{N: 1 << 10, R: 8, P: 1, KeyLen: 32}

func TestIdentifierDerivationIsVerifiable(t *testing.T) {
	id, err := New(Profile{DisplayName: "river"})
	require.NoError(t, err)
	require.Contains(t, string(id.ID()), MethodTag+":")
	require.True(t, VerifyIdentifier(id.ID(), id.PublicSigningKey()))
}

func TestSealOpenRoundTrip(t *testing.T) {
	id, err := New(Profile{DisplayName: "river"})
	require.NoError(t, err)

	blob, err := id.Seal([]byte("correct horse battery staple"), fastKDF)
	require.NoError(t, err)

	reopened, err := Open(blob, []byte("correct horse battery staple"))
	require.NoError(t, err)
	require.Equal(t, id.ID(), reopened.ID())
	require.Equal(t, id.Profile, reopened.Profile)

	msg := []byte("ping")
	require.True(t, crypto.Verify(reopened.PublicSigningKey(), msg, reopened.Sign(msg)))
}

func TestOpenRejectsWrongPassphrase(t *testing.T) {
	id, err := New(Profile{})
	require.NoError(t, err)

	blob, err := id.Seal([]byte("right"), fastKDF)
	require.NoError(t, err)

	_, err = Open(blob, []byte("wrong"))
	require.Error(t, err)
}

func TestOpenRejectsCorruptBlobIndistinguishablyFromBadPassphrase(t *testing.T) {
	id, err := New(Profile{})
	require.NoError(t, err)
	blob, err := id.Seal([]byte("right"), fastKDF)
	require.NoError(t, err)

	corrupt := append([]byte(nil), blob...)
	corrupt[len(corrupt)-1] ^= 0xff

	_, errWrongPass := Open(blob, []byte("wrong"))
	_, errCorrupt := Open(corrupt, []byte("right"))
	require.Error(t, errWrongPass)
	require.Error(t, errCorrupt)
	require.ErrorContains(t, errWrongPass, "bad-passphrase")
	require.ErrorContains(t, errCorrupt, "bad-passphrase")
}

func TestBoxRoundTripAfterReopen(t *testing.T) {
	alice, err := New(Profile{})
	require.NoError(t, err)
	bob, err := New(Profile{})
	require.NoError(t, err)

	blob, err := alice.Seal([]byte("pw"), fastKDF)
	require.NoError(t, err)
	reopenedAlice, err := Open(blob, []byte("pw"))
	require.NoError(t, err)

	nonce, ciphertext, err := reopenedAlice.BoxTo(bob.PublicBoxKey(), []byte("need a drill"))
	require.NoError(t, err)

	plaintext, err := bob.UnboxFrom(reopenedAlice.PublicBoxKey(), nonce, ciphertext)
	require.NoError(t, err)
	require.Equal(t, "need a drill", string(plaintext))
}
