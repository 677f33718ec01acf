package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// ErrRemoteDisconnect is the Closed error when the remote side said goodbye.
var ErrRemoteDisconnect = errors.New("transport: remote disconnected")

type frame struct {
	typ  gossip.MsgType
	data []byte
}

// wsSession is a session.Session over one websocket connection.
type wsSession struct {
	t      *Transport
	conn   *websocket.Conn
	logger *zap.Logger

	mu     sync.Mutex
	id     string
	addr   string
	port   int
	last   time.Time
	degree int
	dialed bool

	outbound chan frame
	ctx      context.Context
	cancel   context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
}

var _ session.Session = (*wsSession)(nil)

func newSession(t *Transport, conn *websocket.Conn, addr string, port int, dialed bool) *wsSession {
	ctx, cancel := context.WithCancel(context.Background())
	uid := uuid.NewString()
	return &wsSession{
		t:        t,
		conn:     conn,
		logger:   t.logger.With(zap.String("session", uid)),
		addr:     addr,
		port:     port,
		dialed:   dialed,
		last:     time.Now(),
		outbound: make(chan frame, t.cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *wsSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *wsSession) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *wsSession) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *wsSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *wsSession) Degree() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degree
}

func (s *wsSession) Outbound() bool { return s.dialed }

// Start launches the read and write loops and sends our hello.
func (s *wsSession) Start() {
	s.startOnce.Do(func() {
		s.conn.SetReadLimit(s.t.cfg.MaxFrameBytes)
		go s.readLoop()
		go s.writeLoop()
		s.enqueue(gossip.MsgHello, helloPayload{ID: s.t.cfg.ID, Port: s.t.cfg.ListenPort})
	})
}

func (s *wsSession) Ping(delay time.Duration) {
	if delay <= 0 {
		s.enqueue(gossip.MsgPing, nil)
		return
	}
	time.AfterFunc(delay, func() { s.enqueue(gossip.MsgPing, nil) })
}

func (s *wsSession) SendGetPeers()                 { s.enqueue(gossip.MsgGetPeers, nil) }
func (s *wsSession) SendPeers(p []session.PeerInfo) { s.enqueue(gossip.MsgPeers, p) }
func (s *wsSession) SendGetTasks()                 { s.enqueue(gossip.MsgGetTasks, nil) }
func (s *wsSession) SendTasks(h []session.TaskHeader) {
	s.enqueue(gossip.MsgTasks, h)
}
func (s *wsSession) SendRemoveTask(id string) {
	s.enqueue(gossip.MsgRemoveTask, removeTaskPayload{TaskID: id})
}
func (s *wsSession) SendGossip(g session.GossipPayload) { s.enqueue(gossip.MsgGossip, []byte(g)) }
func (s *wsSession) SendStopGossip()                    { s.enqueue(gossip.MsgStopGossip, nil) }
func (s *wsSession) SendLocRank(subject string, rank float64) {
	s.enqueue(gossip.MsgLocRank, locRankPayload{Subject: subject, Rank: rank})
}
func (s *wsSession) SendDegree(n int)      { s.enqueue(gossip.MsgDegree, degreePayload{N: n}) }
func (s *wsSession) SendGetResourcePeers() { s.enqueue(gossip.MsgGetResourcePeers, nil) }
func (s *wsSession) SendResourcePeers(e []session.ResourceEntry) {
	s.enqueue(gossip.MsgResourcePeers, e)
}
func (s *wsSession) SendPutResource(p session.Placement) { s.enqueue(gossip.MsgPutResource, p) }

// Disconnect sends a goodbye frame and closes once it is written. The
// manager already knows, so no Closed event is emitted.
func (s *wsSession) Disconnect(reason session.DisconnectReason) {
	s.logger.Debug("Disconnecting", zap.String("peer", s.ID()), zap.Stringer("reason", reason))
	if !s.enqueue(gossip.MsgDisconnect, disconnectPayload{Reason: reason.String()}) {
		s.close(nil, false)
	}
}

// enqueue reports whether the frame was queued.
func (s *wsSession) enqueue(t gossip.MsgType, v any) bool {
	data, err := encode(t, v)
	if err != nil {
		s.logger.Error("Dropping outbound frame", zap.Error(err))
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.outbound <- frame{typ: t, data: data}:
		telemetry.ObserveMessage("out", t.String())
		return true
	case <-s.ctx.Done():
		return false
	default:
		s.logger.Warn("Outbound queue full, dropping frame", zap.Stringer("type", t))
		return false
	}
}

func (s *wsSession) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.t.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				s.close(fmt.Errorf("write %s: %w", f.typ, err), true)
				return
			}
			if f.typ == gossip.MsgDisconnect {
				s.close(nil, false)
				return
			}
		}
	}
}

func (s *wsSession) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.close(fmt.Errorf("read: %w", err), true)
			return
		}
		now := time.Now()
		s.mu.Lock()
		s.last = now
		s.mu.Unlock()

		env, err := decode(data)
		if err != nil {
			s.logger.Warn("Malformed frame", zap.Error(err))
			continue
		}
		telemetry.ObserveMessage("in", env.Type.String())
		sink := s.t.Sink()
		sink.Deliver(session.Message{Base: session.From(s), Type: env.Type, At: now, Payload: string(env.Payload)})

		switch env.Type {
		case gossip.MsgHello:
			var h helloPayload
			if err := unmarshal(env, &h); err != nil {
				s.logger.Warn("Malformed hello", zap.Error(err))
				continue
			}
			s.mu.Lock()
			s.id = h.ID
			if h.Port > 0 {
				s.port = h.Port
			}
			addr, port := s.addr, s.port
			s.mu.Unlock()
			sink.Deliver(session.Hello{Base: session.From(s), ID: h.ID, Addr: addr, Port: port})
		case gossip.MsgPing:
			s.enqueue(gossip.MsgPong, nil)
		case gossip.MsgDisconnect:
			var d disconnectPayload
			_ = unmarshal(env, &d)
			s.close(fmt.Errorf("%w: %s", ErrRemoteDisconnect, d.Reason), true)
			return
		default:
			ev, err := toEvent(s, env)
			if err != nil {
				s.logger.Warn("Malformed frame", zap.Error(err))
				continue
			}
			if d, ok := ev.(session.Degree); ok {
				s.mu.Lock()
				s.degree = d.N
				s.mu.Unlock()
			}
			sink.Deliver(ev)
		}
	}
}

func (s *wsSession) close(err error, notify bool) {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close()
		if notify {
			s.logger.Debug("Session closed", zap.String("peer", s.ID()), zap.Error(err))
			s.t.Sink().Deliver(session.Closed{Base: session.From(s), Err: err})
		}
	})
}

func (s *wsSession) String() string {
	return fmt.Sprintf("ws(%s@%s:%d)", s.ID(), s.Addr(), s.Port())
}
