package node

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
	"github.com/ryandielhenn/zephyrmesh/pkg/directory"
	"github.com/ryandielhenn/zephyrmesh/pkg/msglog"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// Overlay is what the admin surface reads from the peer manager.
type Overlay interface {
	Peers() []directory.Record
	PeersDegree() map[string]int
	LastMessages() []msglog.Entry
	ListenParams() (int, string)
	ListDirectory() []session.ResourceEntry
	RemovePeerByID(id string) error
	Directory() *directory.Directory
}

type Node struct {
	ov      Overlay
	addr    string
	logger  *zap.Logger
	started time.Time
	p2pPath string
	p2p     http.Handler
}

func NewNode(ov Overlay, addr string, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Node{ov: ov, addr: addr, logger: logger, started: time.Now()}
}

// MountP2P serves the peer transport from the admin listener at path.
func (n *Node) MountP2P(path string, h http.Handler) {
	n.p2pPath = path
	n.p2p = h
}

func (n *Node) Addr() string {
	return n.addr
}

// Router wires the admin endpoints.
func (n *Node) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", telemetry.Instrument("healthz", http.HandlerFunc(n.Healthz)))
	r.Method(http.MethodGet, "/info", telemetry.Instrument("info", http.HandlerFunc(n.Info)))
	r.Method(http.MethodGet, "/peers", telemetry.Instrument("peers", http.HandlerFunc(n.ListPeers)))
	r.Method(http.MethodDelete, "/peers/{id}", telemetry.Instrument("remove_peer", http.HandlerFunc(n.RemovePeer)))
	r.Method(http.MethodGet, "/routing/closest/{id}", telemetry.Instrument("closest", http.HandlerFunc(n.Closest)))
	r.Method(http.MethodGet, "/messages", telemetry.Instrument("messages", http.HandlerFunc(n.Messages)))
	r.Method(http.MethodGet, "/resources", telemetry.Instrument("resources", http.HandlerFunc(n.Resources)))
	r.Handle("/metrics", telemetry.MetricsHandler())
	if n.p2p != nil {
		r.Handle(n.p2pPath, n.p2p)
	}
	return r
}
