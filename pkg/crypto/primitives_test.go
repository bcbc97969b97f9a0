package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	require.NoError(t, err)

	msg := []byte("resource offer: drill available")
	sig := Sign(kp.Private, msg)
	require.True(t, Verify(kp.Public, msg, sig))
}

func TestSignIsDeterministic(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	require.NoError(t, err)

	msg := []byte("deterministic")
	require.Equal(t, Sign(kp.Private, msg), Sign(kp.Private, msg))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	require.NoError(t, err)

	msg := []byte("original")
	sig := Sign(kp.Private, msg)
	require.False(t, Verify(kp.Public, []byte("tampered"), sig))
}

func TestBoxUnboxRoundTrip(t *testing.T) {
	sender, err := GenerateBoxKeyPair()
	require.NoError(t, err)
	recipient, err := GenerateBoxKeyPair()
	require.NoError(t, err)

	plaintext := []byte("need: saw, urgency casual")
	nonce, ciphertext, err := Box(recipient.Public, sender.Private, plaintext)
	require.NoError(t, err)

	decrypted, err := Unbox(sender.Public, recipient.Private, nonce, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestUnboxRejectsBitFlip(t *testing.T) {
	sender, err := GenerateBoxKeyPair()
	require.NoError(t, err)
	recipient, err := GenerateBoxKeyPair()
	require.NoError(t, err)

	nonce, ciphertext, err := Box(recipient.Public, sender.Private, []byte("payload"))
	require.NoError(t, err)

	ciphertext[0] ^= 0x01
	_, err = Unbox(sender.Public, recipient.Private, nonce, ciphertext)
	require.Error(t, err)
}

func TestDeriveKeyDeterministicForSameSalt(t *testing.T) {
	params := KDFParams{N: 1 << 10, R: 8, P: 1, KeyLen: 32} // low N: test speed only
	salt := []byte("fixed-salt-0123456789ab")

	k1, err := DeriveKey([]byte("correct horse"), salt, params)
	require.NoError(t, err)
	k2, err := DeriveKey([]byte("correct horse"), salt, params)
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	k3, err := DeriveKey([]byte("wrong horse"), salt, params)
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}
