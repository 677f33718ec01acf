package overlay

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
	"github.com/ryandielhenn/zephyrmesh/pkg/directory"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// acquirePeers dials candidates while we are below the target peer count.
// A dialled candidate leaves the pool whatever the outcome. With nothing
// left to dial, neighbours are asked for more peers instead.
func (m *Manager) acquirePeers(now time.Time) {
	target := m.config().OptNumPeers
	for m.dir.Len() < target {
		c, ok := m.dir.TakeCandidate(func(n int) int { return m.pick(now, n) })
		if !ok {
			if m.getPeers.AllowN(now, 1) {
				for _, rec := range m.dir.Peers() {
					rec.Session.SendGetPeers()
				}
			}
			return
		}
		m.logger.Info("Connecting to peer",
			zap.String("peer", c.ID),
			zap.String("addr", c.Addr),
			zap.Int("port", c.Port),
			zap.Int("attempt", c.Attempts))
		m.connect(c.Addr, c.Port)
	}
}

func (m *Manager) requestTasks(now time.Time) {
	if m.taskServer() == nil || !m.getTasks.AllowN(now, 1) {
		return
	}
	for _, rec := range m.dir.Peers() {
		rec.Session.SendGetTasks()
	}
}

// evictStale drops every live peer silent for longer than the session
// timeout. Activity is the later of the directory record and the session's
// own transport-level timestamp.
func (m *Manager) evictStale(now time.Time) {
	evicted := 0
	for _, rec := range m.dir.Peers() {
		last := rec.LastSeen
		if a := rec.Session.LastActivity(); a.After(last) {
			last = a
		}
		if !m.detector.Expired(last, now) {
			continue
		}
		m.logger.Info("Evicting silent peer",
			zap.String("peer", rec.ID),
			zap.Duration("silence", now.Sub(last)))
		rec.Session.Disconnect(session.ReasonTimeout)
		if err := m.dir.Remove(rec.ID); err == nil {
			evicted++
			telemetry.Evictions.WithLabelValues("timeout").Inc()
		}
	}
	if evicted > 0 {
		m.broadcastDegree()
	}
}

func (m *Manager) handleConnectResult(r connectResult) {
	if r.err != nil {
		telemetry.ConnectAttempts.WithLabelValues("failure").Inc()
		m.logger.Error("Connection to peer failure",
			zap.String("addr", r.addr),
			zap.Int("port", r.port),
			zap.Error(fmt.Errorf("%w: %w", ErrTransport, r.err)))
		return
	}
	telemetry.ConnectAttempts.WithLabelValues("success").Inc()
	m.logger.Debug("Connection to peer established",
		zap.String("addr", r.addr), zap.Int("port", r.port))
	m.NewSession(r.s)
}

// NewSession attaches an established, not yet handshaken session and
// starts it.
func (m *Manager) NewSession(s session.Session) {
	m.dir.Attach(s)
	s.Start()
}

// AddPeer makes s the live session for id. If the routing table reports an
// older contact displaced by id, that contact is pinged at once so it gets
// the chance to keep its slot. Neighbours then learn our new degree.
func (m *Manager) AddPeer(id string, s session.Session) {
	now := m.now()
	if displaced, ok := m.dir.AddOrRefresh(id, s.Addr(), s.Port(), now); ok {
		if ps, live := m.dir.Lookup(displaced); live {
			ps.Ping(0)
		}
		m.logger.Debug("Pinging displaced contact", zap.String("peer", displaced))
	}
	m.dir.Activate(id, s, now)
	m.logger.Info("Peer added", zap.String("peer", id), zap.String("addr", s.Addr()), zap.Int("port", s.Port()))
	m.broadcastDegree()
}

// PongReceived records that id answered a ping.
func (m *Manager) PongReceived(id, addr string, port int) {
	m.dir.Acknowledge(id, addr, port, m.now())
}

// TryToAddPeer records an advertised peer as a candidate when it is novel.
func (m *Manager) TryToAddPeer(p session.PeerInfo) bool {
	if err := p.Validate(); err != nil {
		m.logger.Warn("Skipping advertised peer", zap.Error(fmt.Errorf("%w: %w", ErrMalformedMessage, err)))
		return false
	}
	if !m.dir.AddCandidate(p.ID, p.Addr, p.Port) {
		return false
	}
	m.logger.Info("Add peer to incoming", zap.String("peer", p.ID), zap.String("addr", p.Addr), zap.Int("port", p.Port))
	return true
}

// RemovePeer detaches s and every identity bound to it.
func (m *Manager) RemovePeer(s session.Session) {
	for _, id := range m.dir.RemoveBySession(s) {
		telemetry.Evictions.WithLabelValues("disconnected").Inc()
		m.logger.Info("Peer removed", zap.String("peer", id))
	}
	m.broadcastDegree()
}

// RemovePeerByID drops id from the directory and hangs up its session. An
// unknown id is logged and returned as ErrUnknownPeer; the degree broadcast
// happens either way.
func (m *Manager) RemovePeerByID(id string) error {
	var err error
	s, live := m.dir.Lookup(id)
	if rerr := m.dir.Remove(id); rerr != nil {
		err = fmt.Errorf("remove peer %s: %w", id, ErrUnknownPeer)
		m.logger.Error("Can't remove peer, unknown peer", zap.String("peer", id))
	} else {
		if live {
			s.Disconnect(session.ReasonRemoved)
		}
		telemetry.Evictions.WithLabelValues("removed").Inc()
	}
	m.broadcastDegree()
	return err
}

// FindPeer returns the live session for id.
func (m *Manager) FindPeer(id string) (session.Session, bool) {
	return m.dir.Lookup(id)
}

// Peers returns the live peer records ordered by identity.
func (m *Manager) Peers() []directory.Record { return m.dir.Peers() }

// PeersDegree maps each live peer to the degree it last announced.
func (m *Manager) PeersDegree() map[string]int {
	out := make(map[string]int)
	for _, rec := range m.dir.Peers() {
		out[rec.ID] = rec.Degree
	}
	return out
}

// PingPeers pings every live peer after interval.
func (m *Manager) PingPeers(interval time.Duration) {
	for _, rec := range m.dir.Peers() {
		rec.Session.Ping(interval)
	}
}

// ChangeConfig applies a new configuration at runtime. Timeouts and the
// broadcast interval take effect from the next tick. The seed is dialled
// unless we already hold a session to it.
func (m *Manager) ChangeConfig(cfg Config) {
	cfg = cfg.withDefaults()
	m.mu.Lock()
	m.cfg = cfg
	rs := m.resources
	m.mu.Unlock()

	m.detector.SetTimeout(cfg.SessionTimeout)
	m.dir.Table().SetPongTimeout(cfg.PongTimeout)
	m.getPeers.SetLimit(rate.Every(cfg.BroadcastInterval))
	m.getTasks.SetLimit(rate.Every(cfg.BroadcastInterval))

	if !m.connectedTo(cfg.SeedHost, cfg.SeedPort) {
		m.connectToNetwork(cfg)
	}
	if rs != nil {
		rs.ChangeConfig(cfg)
	}
}

func (m *Manager) connectedTo(host string, port int) bool {
	for _, rec := range m.dir.Peers() {
		if rec.Addr == host && rec.Port == port {
			return true
		}
	}
	return false
}
