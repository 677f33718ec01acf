package overlay

import (
	"net"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrmesh/pkg/session"
	"github.com/ryandielhenn/zephyrmesh/pkg/transport"
)

// helloGate holds handshakes back until released so a test can choose the
// order in which the manager sees them. Other events pass straight through.
type helloGate struct {
	m    *Manager
	mu   sync.Mutex
	open bool
	held []session.Hello
}

func (g *helloGate) Deliver(ev session.Event) {
	if h, ok := ev.(session.Hello); ok {
		g.mu.Lock()
		if !g.open {
			g.held = append(g.held, h)
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()
	}
	g.m.Deliver(ev)
}

func (g *helloGate) heldCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

// release queues the held handshakes, dialled sessions first.
func (g *helloGate) release() {
	g.mu.Lock()
	held := g.held
	g.held, g.open = nil, true
	g.mu.Unlock()
	sort.SliceStable(held, func(i, j int) bool {
		return held[i].Source().Outbound() && !held[j].Source().Outbound()
	})
	for _, h := range held {
		g.m.Deliver(h)
	}
}

type wsNode struct {
	m    *Manager
	gate *helloGate
	host string
	port int
}

func newWSNode(t *testing.T, id string) *wsNode {
	t.Helper()
	tr := transport.New(transport.Config{ID: id}, nil)
	m := New(Config{ClientID: id, SessionTimeout: time.Minute}, tr)
	g := &helloGate{m: m}
	tr.SetSink(g)

	srv := httptest.NewServer(tr.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(m.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, p, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return &wsNode{m: m, gate: g, host: host, port: port}
}

func pumpBoth(a, b *wsNode) {
	a.m.Pump()
	b.m.Pump()
}

func TestCrossDialKeepsOneConnection(t *testing.T) {
	a, b := newWSNode(t, "a"), newWSNode(t, "b")
	require.True(t, a.m.TryToAddPeer(session.PeerInfo{ID: "b", Addr: b.host, Port: b.port}))
	require.True(t, b.m.TryToAddPeer(session.PeerInfo{ID: "a", Addr: a.host, Port: a.port}))
	a.m.Tick()
	b.m.Tick()

	require.Eventually(t, func() bool {
		pumpBoth(a, b)
		return a.gate.heldCount() == 2 && b.gate.heldCount() == 2
	}, 3*time.Second, 5*time.Millisecond, "both connections complete their handshake")

	// Each side handles the handshake on its own dial first, so each starts
	// out holding a different connection.
	a.gate.release()
	b.gate.release()

	require.Eventually(t, func() bool {
		pumpBoth(a, b)
		return a.m.PeersDegree()["b"] == 1 && b.m.PeersDegree()["a"] == 1 &&
			len(a.m.Directory().Sessions()) == 1 && len(b.m.Directory().Sessions()) == 1
	}, 3*time.Second, 5*time.Millisecond, "one connection survives on both sides")

	// Let the goodbye for the dropped connection play out on both sides.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		pumpBoth(a, b)
		time.Sleep(5 * time.Millisecond)
	}

	sa, ok := a.m.FindPeer("b")
	require.True(t, ok, "a lost b")
	sb, ok := b.m.FindPeer("a")
	require.True(t, ok, "b lost a")
	assert.True(t, sa.Outbound(), "a has the lower identity, so its dial is kept")
	assert.False(t, sb.Outbound())
	assert.Equal(t, 1, a.m.Directory().Len())
	assert.Equal(t, 1, b.m.Directory().Len())

	a.m.Tick()
	b.m.Tick()
	pumpBoth(a, b)
	assert.Equal(t, 1, a.m.Directory().Len())
	assert.Equal(t, 1, b.m.Directory().Len())
}
