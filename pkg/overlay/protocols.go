package overlay

import (
	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// broadcastDegree tells every live peer how many live peers we have.
func (m *Manager) broadcastDegree() {
	peers := m.dir.Peers()
	n := len(peers)
	for _, rec := range peers {
		rec.Session.SendDegree(n)
	}
	telemetry.Degree.Set(float64(n))
}

// SendGossip delivers payload to each target that is currently live.
// Unknown targets are skipped; there is no retry and no acknowledgement.
func (m *Manager) SendGossip(payload session.GossipPayload, targets []string) {
	for _, id := range targets {
		if s, ok := m.dir.Lookup(id); ok {
			s.SendGossip(payload)
		}
	}
}

// ReceiveGossip buffers an inbound gossip item for the ranking subsystem.
func (m *Manager) ReceiveGossip(it gossip.Item) { m.gossip.Push(it) }

// DrainGossip returns and clears the gossip buffer. Only the ranking role
// may call it.
func (m *Manager) DrainGossip() []gossip.Item { return m.gossip.Drain() }

// BroadcastStopGossip asks every live peer to stop gossiping with us.
func (m *Manager) BroadcastStopGossip() {
	for _, rec := range m.dir.Peers() {
		rec.Session.SendStopGossip()
	}
}

func (m *Manager) RecordStopRequest(id string) { m.stopGossip.Add(id) }

// DrainStopRequests returns and clears the identities that asked us to stop
// gossiping.
func (m *Manager) DrainStopRequests() map[string]struct{} { return m.stopGossip.Drain() }

// PushLocalRank sends our opinion about subject to every live peer. Whether
// they pass it on is their call.
func (m *Manager) PushLocalRank(subject string, rank float64) {
	for _, rec := range m.dir.Peers() {
		rec.Session.SendLocRank(subject, rank)
	}
}

// RecordNeighborRank buffers neighbor's opinion about subject.
func (m *Manager) RecordNeighborRank(neighbor, subject string, rank float64) {
	m.neighborRanks.Push(gossip.LocalRank{Neighbor: neighbor, Subject: subject, Rank: rank})
}

func (m *Manager) DrainNeighborRanks() []gossip.LocalRank { return m.neighborRanks.Drain() }
