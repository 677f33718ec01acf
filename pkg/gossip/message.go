package gossip

import "fmt"

// MsgType identifies a message kind on the overlay wire protocol.
type MsgType uint8

const (
	MsgUnknown MsgType = iota
	MsgHello
	MsgPing
	MsgPong
	MsgDisconnect
	MsgGetPeers
	MsgPeers
	MsgGetTasks
	MsgTasks
	MsgRemoveTask
	MsgGossip
	MsgStopGossip
	MsgLocRank
	MsgDegree
	MsgGetResourcePeers
	MsgResourcePeers
	MsgPutResource
)

var msgNames = map[MsgType]string{
	MsgUnknown:          "unknown",
	MsgHello:            "hello",
	MsgPing:             "ping",
	MsgPong:             "pong",
	MsgDisconnect:       "disconnect",
	MsgGetPeers:         "get_peers",
	MsgPeers:            "peers",
	MsgGetTasks:         "get_tasks",
	MsgTasks:            "tasks",
	MsgRemoveTask:       "remove_task",
	MsgGossip:           "gossip",
	MsgStopGossip:       "stop_gossip",
	MsgLocRank:          "loc_rank",
	MsgDegree:           "degree",
	MsgGetResourcePeers: "get_resource_peers",
	MsgResourcePeers:    "resource_peers",
	MsgPutResource:      "put_resource",
}

func (t MsgType) String() string {
	if s, ok := msgNames[t]; ok {
		return s
	}
	return fmt.Sprintf("msg(%d)", uint8(t))
}

// MarshalText encodes the type by name so JSON envelopes stay readable.
func (t MsgType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a name produced by MarshalText.
func (t *MsgType) UnmarshalText(b []byte) error {
	name := string(b)
	for k, v := range msgNames {
		if v == name {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("gossip: unknown message type %q", name)
}

// Item is an opaque reputation payload together with the peer that
// originated it.
type Item struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

// LocalRank is a neighbour's opinion about a third peer.
type LocalRank struct {
	Neighbor string  `json:"neighbor"`
	Subject  string  `json:"subject"`
	Rank     float64 `json:"rank"`
}
