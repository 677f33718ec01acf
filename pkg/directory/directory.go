// Package directory is the overlay's authoritative view of who we know:
// live peers keyed by identity, the full list of attached sessions (some of
// which have not finished their handshake yet), candidate peers learned from
// advertisements, and the k-bucket table that decides which peers are worth
// keeping.
package directory

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/routing"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// ErrNotFound is returned for identities the directory does not hold.
var ErrNotFound = errors.New("directory: peer not found")

// Record is a live peer.
type Record struct {
	ID       string
	Session  session.Session
	Addr     string
	Port     int
	LastSeen time.Time
	Degree   int
}

// Candidate is a peer known from an advertisement but not connected.
type Candidate struct {
	ID       string
	Addr     string
	Port     int
	Attempts int
}

type Directory struct {
	mu       sync.RWMutex
	self     string
	logger   *zap.Logger
	table    *routing.Table
	peers    map[string]*Record
	sessions []session.Session
	cands    map[string]*Candidate
	free     []string // candidates not yet dialled, in advertisement order
}

func New(self string, table *routing.Table, logger *zap.Logger) *Directory {
	if table == nil {
		table = routing.New(self, routing.DefaultBucketSize, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		self:   self,
		logger: logger,
		table:  table,
		peers:  make(map[string]*Record),
		cands:  make(map[string]*Candidate),
	}
}

// AddOrRefresh tells the routing table that id was seen. If that pushes out
// an older contact whose slot is now contested, the older identity is
// returned so the caller can re-validate it with a ping.
func (d *Directory) AddOrRefresh(id, addr string, port int, now time.Time) (string, bool) {
	head, ok := d.table.Add(routing.Contact{ID: id, Addr: addr, Port: port, LastSeen: now})
	if !ok {
		return "", false
	}
	return head.ID, true
}

// Acknowledge records a pong from id.
func (d *Directory) Acknowledge(id, addr string, port int, now time.Time) {
	d.table.Pong(routing.Contact{ID: id, Addr: addr, Port: port, LastSeen: now})
}

// IsNovel reports whether id is neither a candidate, a live peer, nor us.
func (d *Directory) IsNovel(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isNovelLocked(id)
}

func (d *Directory) isNovelLocked(id string) bool {
	if id == d.self {
		return false
	}
	if _, ok := d.cands[id]; ok {
		return false
	}
	_, ok := d.peers[id]
	return !ok
}

// Attach adds s to the list of all sessions, live or still handshaking.
func (d *Directory) Attach(s session.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.sessions, s) {
		d.sessions = append(d.sessions, s)
	}
}

// Activate makes s the live session for id. Any candidate entry for id is
// dropped so candidates and live peers never overlap.
func (d *Directory) Activate(id string, s session.Session, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropCandidateLocked(id)
	if !slices.Contains(d.sessions, s) {
		d.sessions = append(d.sessions, s)
	}
	d.peers[id] = &Record{
		ID:       id,
		Session:  s,
		Addr:     s.Addr(),
		Port:     s.Port(),
		LastSeen: now,
		Degree:   s.Degree(),
	}
}

// Touch refreshes the activity timestamp of a live peer.
func (d *Directory) Touch(id string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.peers[id]; ok && now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
}

func (d *Directory) SetDegree(id string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.peers[id]; ok {
		rec.Degree = n
	}
}

// Lookup returns the live session for id.
func (d *Directory) Lookup(id string) (session.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.peers[id]
	if !ok {
		return nil, false
	}
	return rec.Session, true
}

// Get returns a copy of the record for id.
func (d *Directory) Get(id string) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.peers[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Remove drops id from the live set and the routing table. Unknown
// identities are logged and reported as ErrNotFound.
func (d *Directory) Remove(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.peers[id]
	if !ok {
		d.logger.Debug("remove of unknown peer", zap.String("peer", id))
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	d.sessions = slices.DeleteFunc(d.sessions, func(s session.Session) bool { return s == rec.Session })
	delete(d.peers, id)
	d.table.Remove(id)
	return nil
}

// RemoveBySession detaches s and drops every live identity bound to it.
// It returns the identities that were removed.
func (d *Directory) RemoveBySession(s session.Session) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = slices.DeleteFunc(d.sessions, func(x session.Session) bool { return x == s })
	var removed []string
	for id, rec := range d.peers {
		if rec.Session == s {
			delete(d.peers, id)
			d.table.Remove(id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}

// AddCandidate records an advertised peer. It is a no-op, returning false,
// unless the identity is novel.
func (d *Directory) AddCandidate(id, addr string, port int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isNovelLocked(id) {
		return false
	}
	d.cands[id] = &Candidate{ID: id, Addr: addr, Port: port}
	d.free = append(d.free, id)
	return true
}

// TakeCandidate removes the free candidate chosen by pick (which receives
// the number of free candidates and returns an index) and returns it with
// its attempt counter incremented.
func (d *Directory) TakeCandidate(pick func(n int) int) (Candidate, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.free) == 0 {
		return Candidate{}, false
	}
	i := pick(len(d.free))
	if i < 0 || i >= len(d.free) {
		i = 0
	}
	id := d.free[i]
	c := d.cands[id]
	c.Attempts++
	out := *c
	d.dropCandidateLocked(id)
	return out, true
}

func (d *Directory) dropCandidateLocked(id string) {
	delete(d.cands, id)
	d.free = slices.DeleteFunc(d.free, func(x string) bool { return x == id })
}

func (d *Directory) FreeCandidates() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.free)
}

// Candidates returns a copy of the candidate pool in advertisement order.
func (d *Directory) Candidates() []Candidate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Candidate, 0, len(d.free))
	for _, id := range d.free {
		out = append(out, *d.cands[id])
	}
	return out
}

// Len is the number of live peers.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// Peers returns copies of every live record ordered by identity.
func (d *Directory) Peers() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Record, 0, len(d.peers))
	for _, rec := range d.peers {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sessions returns every attached session, including ones still handshaking.
func (d *Directory) Sessions() []session.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]session.Session(nil), d.sessions...)
}

// Sync runs routing table housekeeping: contacts that never answered their
// ping are replaced. The dropped identities are returned.
func (d *Directory) Sync(now time.Time) []string {
	return d.table.Sync(now)
}

// Closest returns up to n routing contacts nearest to id's key.
func (d *Directory) Closest(id string, n int) []routing.Contact {
	return d.table.Closest(d.table.KeyOf(id), n)
}

func (d *Directory) Table() *routing.Table { return d.table }
