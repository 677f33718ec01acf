// Package transport carries overlay sessions over websockets. Each frame is
// a JSON Envelope; the first frame either side sends is a hello carrying its
// identity and listen port.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

const (
	DefaultPath          = "/p2p"
	DefaultDialTimeout   = 5 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultMaxFrameBytes = 1 << 20
	DefaultQueueSize     = 256
)

type Config struct {
	ID         string // identity announced in our hello
	ListenPort int    // port announced in our hello
	Path       string

	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxFrameBytes int64
	QueueSize     int
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Transport dials and accepts websocket sessions. It implements
// session.Connector; inbound sessions are announced to the sink as
// session.Accepted.
type Transport struct {
	cfg      Config
	logger   *zap.Logger
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	sink session.Sink
}

var _ session.Connector = (*Transport)(nil)

func New(cfg Config, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Transport{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sink: discard{},
	}
}

// SetSink routes inbound events. It must be called before the first session
// starts.
func (t *Transport) SetSink(s session.Sink) {
	t.mu.Lock()
	t.sink = s
	t.mu.Unlock()
}

func (t *Transport) Sink() session.Sink {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sink
}

// Connect dials addr:port in the background.
func (t *Transport) Connect(addr string, port int, onSuccess func(session.Session), onFailure func(error)) {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(addr, strconv.Itoa(port)), Path: t.cfg.Path}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.DialTimeout)
		defer cancel()
		conn, resp, err := t.dialer.DialContext(ctx, u.String(), nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			onFailure(fmt.Errorf("dial %s: %w", u.String(), err))
			return
		}
		onSuccess(newSession(t, conn, addr, port, true))
	}()
}

// Handler upgrades inbound requests to sessions.
func (t *Transport) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.logger.Warn("Websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		host, portStr, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		port, _ := strconv.Atoi(portStr)
		s := newSession(t, conn, host, port, false)
		t.logger.Debug("Accepted session", zap.String("remote", r.RemoteAddr))
		t.Sink().Deliver(session.Accepted{Base: session.From(s)})
	})
}

// Path is where Handler expects to be mounted.
func (t *Transport) Path() string { return t.cfg.Path }

type discard struct{}

func (discard) Deliver(session.Event) {}
