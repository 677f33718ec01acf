// Package ranking collects what the overlay buffered for the reputation
// computation. The collector is the only consumer of the overlay's gossip,
// stop-gossip and neighbour-rank buffers; it drains all three once per sync
// cycle.
package ranking

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
)

// Source is the overlay side of the contract.
type Source interface {
	DrainGossip() []gossip.Item
	DrainStopRequests() map[string]struct{}
	DrainNeighborRanks() []gossip.LocalRank
}

// Round is everything drained in one cycle.
type Round struct {
	At            time.Time
	Gossip        []gossip.Item
	StopRequests  []string
	NeighborRanks []gossip.LocalRank
}

func (r Round) Empty() bool {
	return len(r.Gossip) == 0 && len(r.StopRequests) == 0 && len(r.NeighborRanks) == 0
}

type Collector struct {
	src    Source
	logger *zap.Logger

	mu       sync.RWMutex
	last     Round
	rounds   int
	opinions map[string]map[string]float64 // subject -> neighbour -> rank
	stopped  map[string]time.Time
}

func New(src Source, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		src:      src,
		logger:   logger,
		opinions: make(map[string]map[string]float64),
		stopped:  make(map[string]time.Time),
	}
}

// SyncNetwork drains the source. It is called from the overlay's tick.
func (c *Collector) SyncNetwork(now time.Time) {
	r := Round{
		At:            now,
		Gossip:        c.src.DrainGossip(),
		NeighborRanks: c.src.DrainNeighborRanks(),
	}
	for id := range c.src.DrainStopRequests() {
		r.StopRequests = append(r.StopRequests, id)
	}
	sort.Strings(r.StopRequests)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = r
	c.rounds++
	for _, lr := range r.NeighborRanks {
		m, ok := c.opinions[lr.Subject]
		if !ok {
			m = make(map[string]float64)
			c.opinions[lr.Subject] = m
		}
		m[lr.Neighbor] = lr.Rank
	}
	for _, id := range r.StopRequests {
		c.stopped[id] = now
	}
	if !r.Empty() {
		c.logger.Debug("Ranking round",
			zap.Int("gossip", len(r.Gossip)),
			zap.Int("ranks", len(r.NeighborRanks)),
			zap.Int("stop", len(r.StopRequests)))
	}
}

// Last returns the most recent round.
func (c *Collector) Last() Round {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) Rounds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rounds
}

// Opinions returns the latest rank each neighbour reported about subject.
func (c *Collector) Opinions(subject string) map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.opinions[subject]))
	for n, r := range c.opinions[subject] {
		out[n] = r
	}
	return out
}

// StoppedSince reports when id last asked us to stop gossiping.
func (c *Collector) StoppedSince(id string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.stopped[id]
	return t, ok
}
