package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/identity"
)

func newTestSession(t *testing.T, mode TrustMode) (*Session, *identity.Identity) {
	t.Helper()
	id, err := identity.New(identity.Profile{DisplayName: "alice"})
	require.NoError(t, err)
	trust, err := OpenTrustTable(t.TempDir(), mode)
	require.NoError(t, err)
	t.Cleanup(func() { trust.Close() })
	return New(id, trust, 0), id
}

func TestDirectedWrapUnwrapRoundTrip(t *testing.T) {
	aliceSession, alice := newTestSession(t, TrustTOFU)
	bobSession, bob := newTestSession(t, TrustTOFU)

	envelope, err := aliceSession.WrapDirected(PeerKeys{Signing: bob.PublicSigningKey(), Box: bob.PublicBoxKey()}, []byte("need a drill"))
	require.NoError(t, err)

	plaintext, err := bobSession.UnwrapDirected(alice.ID(), PeerKeys{Signing: alice.PublicSigningKey(), Box: alice.PublicBoxKey()}, envelope)
	require.NoError(t, err)
	require.Equal(t, "need a drill", string(plaintext))
}

func TestBroadcastWrapUnwrapRoundTrip(t *testing.T) {
	aliceSession, alice := newTestSession(t, TrustTOFU)
	bobSession, _ := newTestSession(t, TrustTOFU)

	envelope, err := aliceSession.WrapBroadcast([]byte("bulletin: meeting tonight"))
	require.NoError(t, err)

	plaintext, err := bobSession.UnwrapBroadcast(alice.ID(), alice.PublicSigningKey(), envelope)
	require.NoError(t, err)
	require.Equal(t, "bulletin: meeting tonight", string(plaintext))
}

func TestUnwrapRejectsStaleTimestamp(t *testing.T) {
	aliceSession, alice := newTestSession(t, TrustTOFU)
	bobSession, _ := newTestSession(t, TrustTOFU)
	bobSession.maxSkew = time.Millisecond

	envelope, err := aliceSession.WrapBroadcast([]byte("x"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = bobSession.UnwrapBroadcast(alice.ID(), alice.PublicSigningKey(), envelope)
	require.Error(t, err)
}

func TestTrustTableQuarantinesOnKeyConflict(t *testing.T) {
	trust, err := OpenTrustTable(t.TempDir(), TrustTOFU)
	require.NoError(t, err)
	defer trust.Close()

	firstID, err := identity.New(identity.Profile{})
	require.NoError(t, err)
	secondID, err := identity.New(identity.Profile{})
	require.NoError(t, err)

	require.NoError(t, trust.Verify("peer-x", firstID.PublicSigningKey()))
	err = trust.Verify("peer-x", secondID.PublicSigningKey())
	require.Error(t, err)
	require.True(t, trust.Quarantined("peer-x"))

	// even the original key is rejected once quarantined
	err = trust.Verify("peer-x", firstID.PublicSigningKey())
	require.Error(t, err)
}

func TestStrictModeRejectsUnapprovedPeer(t *testing.T) {
	trust, err := OpenTrustTable(t.TempDir(), TrustStrict)
	require.NoError(t, err)
	defer trust.Close()

	id, err := identity.New(identity.Profile{})
	require.NoError(t, err)

	err = trust.Verify("peer-x", id.PublicSigningKey())
	require.Error(t, err)

	require.NoError(t, trust.Trust("peer-x", id.PublicSigningKey()))
	require.NoError(t, trust.Verify("peer-x", id.PublicSigningKey()))
}
