// Package session defines the contract between the overlay manager and a
// single established peer connection. Transports implement Session and
// Connector; the manager implements Sink and never touches a socket itself.
package session

import "time"

// DisconnectReason tells the remote side why we are hanging up.
type DisconnectReason uint8

const (
	ReasonUnknown DisconnectReason = iota
	ReasonTimeout
	ReasonDuplicate
	ReasonSelf
	ReasonShutdown
	ReasonProtocol
	ReasonRemoved
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonDuplicate:
		return "duplicate"
	case ReasonSelf:
		return "self"
	case ReasonShutdown:
		return "shutdown"
	case ReasonProtocol:
		return "protocol"
	case ReasonRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Session is one established, bidirectional peer connection. Every send
// operation is fire-and-forget: implementations queue the message and
// return immediately.
type Session interface {
	// ID is the remote stable identity. Empty until the handshake completes.
	ID() string
	Addr() string
	Port() int
	LastActivity() time.Time
	// Degree is the peer count the remote side last announced.
	Degree() int
	// Outbound reports whether we dialled this session.
	Outbound() bool

	Start()
	Ping(delay time.Duration)
	SendGetPeers()
	SendPeers(peers []PeerInfo)
	SendGetTasks()
	SendTasks(headers []TaskHeader)
	SendRemoveTask(taskID string)
	SendGossip(item GossipPayload)
	SendStopGossip()
	SendLocRank(subject string, rank float64)
	SendDegree(n int)
	SendGetResourcePeers()
	SendResourcePeers(entries []ResourceEntry)
	SendPutResource(p Placement)
	Disconnect(reason DisconnectReason)
}

// Connector opens outbound sessions. Connect must not block; exactly one of
// onSuccess or onFailure is invoked, exactly once, possibly from another
// goroutine.
type Connector interface {
	Connect(addr string, port int, onSuccess func(Session), onFailure func(error))
}

// Sink receives inbound events from sessions.
type Sink interface {
	Deliver(ev Event)
}
