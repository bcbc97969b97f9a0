package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/types"
)

func TestPeerTableUpsertMergesTransports(t *testing.T) {
	table := NewPeerTable()
	table.Upsert("peer-a", types.TransportBLE, time.Now())
	table.Upsert("peer-a", types.TransportLocalNet, time.Now())

	p, ok := table.Get("peer-a")
	require.True(t, ok)
	require.Len(t, p.Transports, 2)
}

func TestPeerTableEvictsOnlyIdlePeers(t *testing.T) {
	table := NewPeerTable()
	now := time.Now()
	table.Upsert("stale", types.TransportBLE, now.Add(-time.Hour))
	table.Upsert("fresh", types.TransportBLE, now)

	evicted := table.EvictIdle(now, 10*time.Minute)
	require.Equal(t, []types.PeerID{"stale"}, evicted)

	_, ok := table.Get("stale")
	require.False(t, ok)
	_, ok = table.Get("fresh")
	require.True(t, ok)
}
