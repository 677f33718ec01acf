package transport

import (
	"encoding/json"
	"fmt"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// Envelope is one websocket text frame.
type Envelope struct {
	Type    gossip.MsgType  `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type helloPayload struct {
	ID   string `json:"id"`
	Port int    `json:"port"`
}

type degreePayload struct {
	N int `json:"n"`
}

type locRankPayload struct {
	Subject string  `json:"subject"`
	Rank    float64 `json:"rank"`
}

type removeTaskPayload struct {
	TaskID string `json:"task_id"`
}

type disconnectPayload struct {
	Reason string `json:"reason"`
}

// encode marshals v as the payload of a t frame. A nil v yields an empty
// payload.
func encode(t gossip.MsgType, v any) ([]byte, error) {
	env := Envelope{Type: t}
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

func decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// toEvent maps an inbound envelope onto the manager's event types. Frames
// handled inside the session (hello, ping, disconnect) are not mapped.
func toEvent(s session.Session, env Envelope) (session.Event, error) {
	b := session.From(s)
	switch env.Type {
	case gossip.MsgPong:
		return session.Pong{Base: b}, nil
	case gossip.MsgGetPeers:
		return session.GetPeers{Base: b}, nil
	case gossip.MsgPeers:
		var p []session.PeerInfo
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		return session.PeersAdvert{Base: b, Peers: p}, nil
	case gossip.MsgGetTasks:
		return session.GetTasks{Base: b}, nil
	case gossip.MsgTasks:
		var h []session.TaskHeader
		if err := unmarshal(env, &h); err != nil {
			return nil, err
		}
		return session.TaskHeaders{Base: b, Headers: h}, nil
	case gossip.MsgRemoveTask:
		var p removeTaskPayload
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		return session.RemoveTask{Base: b, TaskID: p.TaskID}, nil
	case gossip.MsgGossip:
		var g []byte
		if err := unmarshal(env, &g); err != nil {
			return nil, err
		}
		return session.Gossip{Base: b, Payload: g}, nil
	case gossip.MsgStopGossip:
		return session.StopGossip{Base: b}, nil
	case gossip.MsgLocRank:
		var p locRankPayload
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		return session.LocRank{Base: b, Subject: p.Subject, Rank: p.Rank}, nil
	case gossip.MsgDegree:
		var p degreePayload
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		return session.Degree{Base: b, N: p.N}, nil
	case gossip.MsgGetResourcePeers:
		return session.GetResourcePeers{Base: b}, nil
	case gossip.MsgResourcePeers:
		var e []session.ResourceEntry
		if err := unmarshal(env, &e); err != nil {
			return nil, err
		}
		return session.ResourcePeers{Base: b, Entries: e}, nil
	case gossip.MsgPutResource:
		var p session.Placement
		if err := unmarshal(env, &p); err != nil {
			return nil, err
		}
		return session.PutResource{Base: b, Placement: p}, nil
	}
	return nil, fmt.Errorf("unexpected %s frame", env.Type)
}

func unmarshal(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s frame without payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%s payload: %w", env.Type, err)
	}
	return nil
}
