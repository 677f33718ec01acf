package overlay

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/msglog"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// Handle processes one event. Events other than connection bookkeeping are
// only honoured from sessions that completed their handshake.
func (m *Manager) Handle(ev session.Event) {
	m.loop.Lock()
	defer m.loop.Unlock()

	s := ev.Source()
	switch e := ev.(type) {
	case connectResult:
		m.handleConnectResult(e)
		return
	case session.Accepted:
		m.NewSession(s)
		return
	case session.Closed:
		m.RemovePeer(s)
		return
	case session.Message:
		m.recordMessage(s, e)
		return
	case session.Hello:
		m.handleHello(e)
		return
	}

	id := s.ID()
	if live, ok := m.dir.Lookup(id); !ok || live != s {
		m.logger.Debug("Dropping event from unverified session",
			zap.String("peer", id), zap.String("event", fmt.Sprintf("%T", ev)))
		return
	}
	m.dir.Touch(id, m.now())

	switch e := ev.(type) {
	case session.Pong:
		m.PongReceived(id, s.Addr(), s.Port())
	case session.PeersAdvert:
		for _, p := range e.Peers {
			m.TryToAddPeer(p)
		}
	case session.GetPeers:
		s.SendPeers(m.peerInfos(id))
	case session.Degree:
		m.dir.SetDegree(id, e.N)
	case session.Gossip:
		m.ReceiveGossip(gossip.Item{Origin: id, Payload: e.Payload})
	case session.StopGossip:
		m.RecordStopRequest(id)
	case session.LocRank:
		m.RecordNeighborRank(id, e.Subject, e.Rank)
	case session.GetTasks:
		if m.taskServer() != nil {
			s.SendTasks(m.TaskHeaders())
		}
	case session.TaskHeaders:
		for _, h := range e.Headers {
			if err := m.AddTaskHeader(m.withPeerAddress(h)); err != nil {
				m.logger.Warn("Wrong task header", zap.String("peer", id), zap.Error(err))
			}
		}
	case session.RemoveTask:
		m.RemoveTaskHeader(e.TaskID)
	case session.GetResourcePeers:
		s.SendResourcePeers(m.ListDirectory())
	case session.ResourcePeers:
		m.ApplyDirectoryUpdate(e.Entries)
	case session.PutResource:
		m.PutResource(e.Placement)
	default:
		m.logger.Warn("Unhandled event", zap.String("event", fmt.Sprintf("%T", ev)))
	}
}

func (m *Manager) handleHello(e session.Hello) {
	s := e.Source()
	switch {
	case e.ID == "":
		m.logger.Warn("Handshake without identity", zap.String("addr", e.Addr))
		s.Disconnect(session.ReasonProtocol)
		m.dir.RemoveBySession(s)
		return
	case e.ID == m.config().ClientID:
		m.logger.Debug("Connected to self, dropping", zap.String("addr", e.Addr))
		s.Disconnect(session.ReasonSelf)
		m.dir.RemoveBySession(s)
		return
	}
	if live, ok := m.dir.Lookup(e.ID); ok && live != s {
		self := m.config().ClientID
		if !preferred(self, e.ID, s) || preferred(self, e.ID, live) {
			m.logger.Debug("Duplicate session, dropping", zap.String("peer", e.ID))
			s.Disconnect(session.ReasonDuplicate)
			m.dir.RemoveBySession(s)
			return
		}
		m.logger.Debug("Duplicate session, replacing live one", zap.String("peer", e.ID))
		live.Disconnect(session.ReasonDuplicate)
		m.dir.RemoveBySession(live)
	}
	m.AddPeer(e.ID, s)
}

// preferred reports whether s is the session to keep when self and remote
// hold more than one connection between them. Both ends pick the one dialled
// by the lower identity.
func preferred(self, remote string, s session.Session) bool {
	return s.Outbound() == (self < remote)
}

func (m *Manager) recordMessage(s session.Session, e session.Message) {
	telemetry.ObserveMessage("in", e.Type.String())
	m.messages.Add(msglog.Entry{
		Type:    e.Type,
		At:      e.At,
		Addr:    s.Addr(),
		Port:    s.Port(),
		Payload: e.Payload,
	})
	if id := s.ID(); id != "" {
		if live, ok := m.dir.Lookup(id); ok && live == s {
			m.dir.Touch(id, m.now())
		}
	}
}

// peerInfos advertises our live peers, leaving out the requester.
func (m *Manager) peerInfos(exclude string) []session.PeerInfo {
	var out []session.PeerInfo
	for _, rec := range m.dir.Peers() {
		if rec.ID == exclude {
			continue
		}
		out = append(out, session.PeerInfo{ID: rec.ID, Addr: rec.Addr, Port: rec.Port})
	}
	return out
}
