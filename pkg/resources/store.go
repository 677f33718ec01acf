// Package resources tracks where task resources can be fetched from and the
// placements peers asked this node to take.
package resources

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/overlay"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// Store is the in-memory resource subsystem used by the daemon.
type Store struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	peers      map[string]session.ResourceEntry
	placements []session.Placement
	cfg        overlay.Config
}

var _ overlay.ResourceServer = (*Store)(nil)

func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger, peers: make(map[string]session.ResourceEntry)}
}

// SetResourcePeers replaces the known resource directory.
func (s *Store) SetResourcePeers(peers map[string]session.ResourceEntry) {
	cp := make(map[string]session.ResourceEntry, len(peers))
	for id, e := range peers {
		cp[id] = e
	}
	s.mu.Lock()
	s.peers = cp
	s.mu.Unlock()
	s.logger.Debug("Resource peers updated", zap.Int("count", len(cp)))
}

// PutResource queues a placement request. Copies below one are ignored.
func (s *Store) PutResource(p session.Placement) {
	if p.Copies < 1 || p.Resource == "" {
		s.logger.Warn("Ignoring placement", zap.String("resource", p.Resource), zap.Int("copies", p.Copies))
		return
	}
	s.mu.Lock()
	s.placements = append(s.placements, p)
	s.mu.Unlock()
	s.logger.Info("Placement accepted",
		zap.String("resource", p.Resource),
		zap.String("addr", p.Addr),
		zap.Int("port", p.Port),
		zap.Int("copies", p.Copies))
}

func (s *Store) ChangeConfig(cfg overlay.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Peers lists the directory ordered by client id.
func (s *Store) Peers() []session.ResourceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.ResourceEntry, 0, len(s.peers))
	for _, e := range s.peers {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Placements returns the accepted placements in arrival order.
func (s *Store) Placements() []session.Placement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]session.Placement(nil), s.placements...)
}

func (s *Store) Config() overlay.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}
