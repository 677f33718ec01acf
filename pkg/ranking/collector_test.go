package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
)

type fakeSource struct {
	items []gossip.Item
	stop  map[string]struct{}
	ranks []gossip.LocalRank
}

func (f *fakeSource) DrainGossip() []gossip.Item {
	out := f.items
	f.items = nil
	return out
}

func (f *fakeSource) DrainStopRequests() map[string]struct{} {
	out := f.stop
	f.stop = map[string]struct{}{}
	return out
}

func (f *fakeSource) DrainNeighborRanks() []gossip.LocalRank {
	out := f.ranks
	f.ranks = nil
	return out
}

func TestCollectorDrainsEveryCycle(t *testing.T) {
	src := &fakeSource{
		items: []gossip.Item{{Origin: "p1", Payload: []byte("g")}},
		stop:  map[string]struct{}{"p3": {}, "p2": {}},
		ranks: []gossip.LocalRank{
			{Neighbor: "p1", Subject: "s", Rank: 0.2},
			{Neighbor: "p1", Subject: "s", Rank: 0.4},
			{Neighbor: "p2", Subject: "s", Rank: 0.9},
		},
	}
	c := New(src, nil)
	t0 := time.Unix(100, 0)

	c.SyncNetwork(t0)
	r := c.Last()
	require.Len(t, r.Gossip, 1)
	assert.Equal(t, []string{"p2", "p3"}, r.StopRequests)
	assert.Equal(t, map[string]float64{"p1": 0.4, "p2": 0.9}, c.Opinions("s"))
	since, ok := c.StoppedSince("p2")
	assert.True(t, ok)
	assert.Equal(t, t0, since)

	c.SyncNetwork(t0.Add(time.Second))
	assert.True(t, c.Last().Empty())
	assert.Equal(t, 2, c.Rounds())
	assert.Len(t, c.Opinions("s"), 2, "opinions outlive the round")
}
