// Package sessiontest provides a recording Session and a scriptable
// Connector for exercising the overlay without a network.
package sessiontest

import (
	"fmt"
	"sync"
	"time"

	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// Call is one recorded outbound operation.
type Call struct {
	Op   string
	Args []any
}

// Session records every call made on it.
type Session struct {
	mu      sync.Mutex
	id      string
	addr    string
	port    int
	last    time.Time
	degree  int
	dialed  bool
	started bool
	calls   []Call
}

var _ session.Session = (*Session)(nil)

func New(id, addr string, port int) *Session {
	return &Session{id: id, addr: addr, port: port}
}

func (s *Session) record(op string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: op, Args: args})
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Addr() string { return s.addr }
func (s *Session) Port() int    { return s.port }

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Session) Degree() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degree
}

func (s *Session) Outbound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialed
}

// SetOutbound marks the session as one we dialled.
func (s *Session) SetOutbound(v bool) {
	s.mu.Lock()
	s.dialed = v
	s.mu.Unlock()
}

// SetID simulates the handshake assigning the remote identity.
func (s *Session) SetID(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *Session) SetLastActivity(t time.Time) {
	s.mu.Lock()
	s.last = t
	s.mu.Unlock()
}

func (s *Session) SetDegree(n int) {
	s.mu.Lock()
	s.degree = n
	s.mu.Unlock()
}

func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Session) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.record("start")
}

func (s *Session) Ping(delay time.Duration)         { s.record("ping", delay) }
func (s *Session) SendGetPeers()                    { s.record("get_peers") }
func (s *Session) SendPeers(p []session.PeerInfo)   { s.record("peers", p) }
func (s *Session) SendGetTasks()                    { s.record("get_tasks") }
func (s *Session) SendTasks(h []session.TaskHeader) { s.record("tasks", h) }
func (s *Session) SendRemoveTask(id string)         { s.record("remove_task", id) }
func (s *Session) SendGossip(g session.GossipPayload) {
	s.record("gossip", g)
}
func (s *Session) SendStopGossip() { s.record("stop_gossip") }
func (s *Session) SendLocRank(subject string, rank float64) {
	s.record("loc_rank", subject, rank)
}
func (s *Session) SendDegree(n int)      { s.record("degree", n) }
func (s *Session) SendGetResourcePeers() { s.record("get_resource_peers") }
func (s *Session) SendResourcePeers(e []session.ResourceEntry) {
	s.record("resource_peers", e)
}
func (s *Session) SendPutResource(p session.Placement) { s.record("put_resource", p) }
func (s *Session) Disconnect(r session.DisconnectReason) {
	s.record("disconnect", r)
}

// Calls returns a copy of everything recorded so far.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the recorded calls named op.
func (s *Session) Ops(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *Session) Count(op string) int { return len(s.Ops(op)) }

// LastDegree returns the most recent degree sent, or -1 if none was.
func (s *Session) LastDegree() int {
	ds := s.Ops("degree")
	if len(ds) == 0 {
		return -1
	}
	return ds[len(ds)-1].Args[0].(int)
}

func (s *Session) Reset() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

func (s *Session) String() string {
	return fmt.Sprintf("mock(%s@%s:%d)", s.ID(), s.addr, s.port)
}

// Attempt is one Connect call captured by Connector.
type Attempt struct {
	Addr      string
	Port      int
	onSuccess func(session.Session)
	onFailure func(error)
}

// Connector captures Connect calls; tests decide their outcome.
type Connector struct {
	mu       sync.Mutex
	attempts []*Attempt
}

var _ session.Connector = (*Connector)(nil)

func (c *Connector) Connect(addr string, port int, onSuccess func(session.Session), onFailure func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, &Attempt{Addr: addr, Port: port, onSuccess: onSuccess, onFailure: onFailure})
}

func (c *Connector) Attempts() []*Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Attempt(nil), c.attempts...)
}

// Succeed completes attempt i with s.
func (c *Connector) Succeed(i int, s session.Session) {
	c.Attempts()[i].onSuccess(s)
}

// Fail completes attempt i with err.
func (c *Connector) Fail(i int, err error) {
	c.Attempts()[i].onFailure(err)
}
