package overlay

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// PublishLocalEndpoint records where this node serves resources.
func (m *Manager) PublishLocalEndpoint(addr string, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resourcePort = port
	m.resourcePeers[m.cfg.ClientID] = session.ResourceEntry{ClientID: m.cfg.ClientID, Addr: addr, Port: port}
}

// ResourcePort is the port last given to PublishLocalEndpoint.
func (m *Manager) ResourcePort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resourcePort
}

// ApplyDirectoryUpdate overwrites the entries named in an update. Entries
// about ourselves and malformed entries are skipped. The resource subsystem
// receives the resulting directory without our own entry.
func (m *Manager) ApplyDirectoryUpdate(entries []session.ResourceEntry) {
	m.mu.Lock()
	self := m.cfg.ClientID
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			m.logger.Warn("Wrong set peer message", zap.Error(fmt.Errorf("%w: %w", ErrMalformedMessage, err)))
			continue
		}
		if e.ClientID == self {
			continue
		}
		m.resourcePeers[e.ClientID] = e
	}
	forward := make(map[string]session.ResourceEntry, len(m.resourcePeers))
	for id, e := range m.resourcePeers {
		if id != self {
			forward[id] = e
		}
	}
	rs := m.resources
	m.mu.Unlock()

	if rs != nil {
		rs.SetResourcePeers(forward)
	}
}

// ListDirectory returns every known resource peer, ourselves included,
// ordered by identity.
func (m *Manager) ListDirectory() []session.ResourceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.ResourceEntry, 0, len(m.resourcePeers))
	for _, e := range m.resourcePeers {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func (m *Manager) BroadcastGetResourcePeers() {
	for _, rec := range m.dir.Peers() {
		rec.Session.SendGetResourcePeers()
	}
}

// RelayPutResource hands a placement to exactly one live peer, the first by
// identity. It reports false when there is nobody to relay to.
func (m *Manager) RelayPutResource(p session.Placement) bool {
	peers := m.dir.Peers()
	if len(peers) == 0 {
		return false
	}
	peers[0].Session.SendPutResource(p)
	return true
}

// PutResource passes an inbound placement to the resource subsystem.
func (m *Manager) PutResource(p session.Placement) {
	if rs := m.resourceServer(); rs != nil {
		rs.PutResource(p)
	}
}

// TaskHeaders lists the task subsystem's headers; nil without one.
func (m *Manager) TaskHeaders() []session.TaskHeader {
	if ts := m.taskServer(); ts != nil {
		return ts.TaskHeaders()
	}
	return nil
}

func (m *Manager) AddTaskHeader(h session.TaskHeader) error {
	ts := m.taskServer()
	if ts == nil {
		return nil
	}
	return ts.AddTaskHeader(h)
}

func (m *Manager) RemoveTaskHeader(taskID string) bool {
	ts := m.taskServer()
	if ts == nil {
		return false
	}
	return ts.RemoveTaskHeader(taskID)
}

// BroadcastRemoveTask tells every live peer that taskID is gone.
func (m *Manager) BroadcastRemoveTask(taskID string) {
	for _, rec := range m.dir.Peers() {
		rec.Session.SendRemoveTask(taskID)
	}
}

// withPeerAddress rewrites the header's endpoint to the owner's live session
// address when the owner is one of our peers.
func (m *Manager) withPeerAddress(h session.TaskHeader) session.TaskHeader {
	if rec, ok := m.dir.Get(h.ClientID); ok {
		h.Addr = rec.Addr
		h.Port = rec.Port
	}
	return h
}
