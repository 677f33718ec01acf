package node

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/overlay"
	"github.com/ryandielhenn/zephyrmesh/pkg/routing"
)

// Healthz returns 200 OK to indicate the Node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes the process ID, identity, uptime and peer counts.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		PID        int       `json:"pid"`
		Now        time.Time `json:"now"`
		ID         string    `json:"id"`
		ListenPort int       `json:"listen_port"`
		Uptime     string    `json:"uptime"`
		Peers      int       `json:"peers"`
		Candidates int       `json:"candidates"`
	}
	port, id := n.ov.ListenParams()
	dir := n.ov.Directory()
	n.writeJSON(w, http.StatusOK, resp{
		PID:        os.Getpid(),
		Now:        time.Now(),
		ID:         id,
		ListenPort: port,
		Uptime:     time.Since(n.started).Round(time.Second).String(),
		Peers:      dir.Len(),
		Candidates: dir.FreeCandidates(),
	})
}

type peerView struct {
	ID       string    `json:"id"`
	Addr     string    `json:"address"`
	Port     int       `json:"port"`
	LastSeen time.Time `json:"last_seen"`
	Degree   int       `json:"degree"`
}

// ListPeers writes the live peers ordered by identity.
func (n *Node) ListPeers(w http.ResponseWriter, _ *http.Request) {
	degrees := n.ov.PeersDegree()
	recs := n.ov.Peers()
	out := make([]peerView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, peerView{ID: rec.ID, Addr: rec.Addr, Port: rec.Port, LastSeen: rec.LastSeen, Degree: degrees[rec.ID]})
	}
	n.writeJSON(w, http.StatusOK, out)
}

// RemovePeer drops one peer by identity.
func (n *Node) RemovePeer(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if err := n.ov.RemovePeerByID(id); err != nil {
		if errors.Is(err, overlay.ErrUnknownPeer) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Closest writes the routing contacts nearest to an identity. The count
// comes from ?n= and defaults to one bucket.
func (n *Node) Closest(w http.ResponseWriter, req *http.Request) {
	count := routing.DefaultBucketSize
	if raw := req.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		count = v
	}
	contacts := n.ov.Directory().Closest(chi.URLParam(req, "id"), count)
	out := make([]peerView, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, peerView{ID: c.ID, Addr: c.Addr, Port: c.Port, LastSeen: c.LastSeen})
	}
	n.writeJSON(w, http.StatusOK, out)
}

// Messages writes the recent inbound message log, oldest first.
func (n *Node) Messages(w http.ResponseWriter, _ *http.Request) {
	n.writeJSON(w, http.StatusOK, n.ov.LastMessages())
}

// Resources writes the resource peer directory.
func (n *Node) Resources(w http.ResponseWriter, _ *http.Request) {
	n.writeJSON(w, http.StatusOK, n.ov.ListDirectory())
}

func (n *Node) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		n.logger.Error("Encoding response failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
