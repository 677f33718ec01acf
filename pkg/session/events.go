package session

import (
	"time"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
)

// Event is something a session reports to the manager. From is the session
// that produced it; for Accepted it is the newly accepted session.
type Event interface {
	Source() Session
}

// Base carries the producing session; every event embeds it.
type Base struct{ From Session }

func (b Base) Source() Session { return b.From }

// From builds the embedded Base for event literals.
func From(s Session) Base { return Base{From: s} }

// Accepted is emitted by a listener for an inbound connection.
type Accepted struct{ Base }

// Hello completes the handshake; the session's ID, Addr and Port are valid
// from here on.
type Hello struct {
	Base
	ID   string
	Addr string
	Port int
}

// Pong answers one of our pings.
type Pong struct{ Base }

type PeersAdvert struct {
	Base
	Peers []PeerInfo
}

type GetPeers struct{ Base }

type GetTasks struct{ Base }

type TaskHeaders struct {
	Base
	Headers []TaskHeader
}

type RemoveTask struct {
	Base
	TaskID string
}

type Gossip struct {
	Base
	Payload GossipPayload
}

type StopGossip struct{ Base }

type LocRank struct {
	Base
	Subject string
	Rank    float64
}

type Degree struct {
	Base
	N int
}

type GetResourcePeers struct{ Base }

type ResourcePeers struct {
	Base
	Entries []ResourceEntry
}

type PutResource struct {
	Base
	Placement Placement
}

// Message mirrors every inbound frame for the diagnostic log.
type Message struct {
	Base
	Type    gossip.MsgType
	At      time.Time
	Payload string
}

// Closed is emitted once when the session goes away for any reason.
type Closed struct {
	Base
	Err error
}
