// Package overlay is the peer overlay manager of a compute-sharing node. It
// keeps a bounded set of live peer sessions, drives the periodic sync cycle
// (peer acquisition, task metadata refresh, stale peer eviction), and hosts
// the protocols layered on those sessions: degree exchange, gossip, local
// rank propagation, and relay of resource and task metadata.
//
// The manager never performs network I/O itself. Connect attempts and sends
// go through a session.Connector and session.Session, and everything that
// comes back is delivered as a session.Event. Tick and Handle must be driven
// from one goroutine; Run does exactly that.
package overlay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ryandielhenn/zephyrmesh/internal/telemetry"
	"github.com/ryandielhenn/zephyrmesh/pkg/directory"
	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
	"github.com/ryandielhenn/zephyrmesh/pkg/msglog"
	"github.com/ryandielhenn/zephyrmesh/pkg/routing"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

const eventQueueSize = 1024

// TaskServer is the compute-task subsystem as seen by the overlay.
type TaskServer interface {
	TaskHeaders() []session.TaskHeader
	AddTaskHeader(h session.TaskHeader) error
	RemoveTaskHeader(taskID string) bool
}

// ResourceServer is the resource-distribution subsystem as seen by the
// overlay.
type ResourceServer interface {
	SetResourcePeers(peers map[string]session.ResourceEntry)
	PutResource(p session.Placement)
	ChangeConfig(cfg Config)
}

// Ranker receives the reputation housekeeping slot at the end of each tick.
type Ranker interface {
	SyncNetwork(now time.Time)
}

// Selector picks the index of the next candidate to dial out of n.
type Selector func(now time.Time, n int) int

// TimeModulo picks by wall-clock seconds modulo n. It is cheap and not fair.
func TimeModulo(now time.Time, n int) int {
	return int(now.Unix() % int64(n))
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func WithSelector(s Selector) Option { return func(m *Manager) { m.pick = s } }

func WithTaskServer(t TaskServer) Option { return func(m *Manager) { m.tasks = t } }

func WithResourceServer(r ResourceServer) Option { return func(m *Manager) { m.resources = r } }

func WithRanker(r Ranker) Option { return func(m *Manager) { m.ranker = r } }

// WithKeyFunc overrides how identities map onto the routing key space.
func WithKeyFunc(kf routing.KeyFunc) Option { return func(m *Manager) { m.keyFunc = kf } }

type Manager struct {
	mu            sync.Mutex // guards cfg, collaborators and the resource directory
	cfg           Config
	tasks         TaskServer
	resources     ResourceServer
	ranker        Ranker
	resourcePort  int
	resourcePeers map[string]session.ResourceEntry

	loop sync.Mutex // serialises Tick and Handle

	logger    *zap.Logger
	now       func() time.Time
	pick      Selector
	keyFunc   routing.KeyFunc
	connector session.Connector
	dir       *directory.Directory
	detector  gossip.FailureDetector
	getPeers  *rate.Limiter
	getTasks  *rate.Limiter

	gossip        gossip.Buffer[gossip.Item]
	stopGossip    gossip.Set
	neighborRanks gossip.Buffer[gossip.LocalRank]
	messages      *msglog.Log

	events    chan session.Event
	closed    chan struct{}
	closeOnce sync.Once
}

// New builds a manager and, when the configured seed is usable, issues the
// bootstrap connect.
func New(cfg Config, connector session.Connector, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:           cfg,
		resourcePeers: make(map[string]session.ResourceEntry),
		logger:        zap.NewNop(),
		now:           time.Now,
		pick:          TimeModulo,
		connector:     connector,
		detector:      gossip.NewTimeoutDetector(cfg.SessionTimeout),
		getPeers:      rate.NewLimiter(rate.Every(cfg.BroadcastInterval), 1),
		getTasks:      rate.NewLimiter(rate.Every(cfg.BroadcastInterval), 1),
		messages:      msglog.New(cfg.MessageLogSize),
		events:        make(chan session.Event, eventQueueSize),
		closed:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	table := routing.New(cfg.ClientID, cfg.BucketSize, m.keyFunc)
	table.SetPongTimeout(cfg.PongTimeout)
	m.dir = directory.New(cfg.ClientID, table, m.logger.Named("directory"))

	m.connectToNetwork(cfg)
	return m
}

func (m *Manager) connectToNetwork(cfg Config) {
	if err := ValidateSeed(cfg.SeedHost, cfg.SeedPort); err != nil {
		m.logger.Warn("Skipping bootstrap", zap.Error(err))
		return
	}
	m.connect(cfg.SeedHost, cfg.SeedPort)
}

func (m *Manager) config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Manager) SetTaskServer(t TaskServer) {
	m.mu.Lock()
	m.tasks = t
	m.mu.Unlock()
}

func (m *Manager) SetResourceServer(r ResourceServer) {
	m.mu.Lock()
	m.resources = r
	m.mu.Unlock()
}

func (m *Manager) SetRanker(r Ranker) {
	m.mu.Lock()
	m.ranker = r
	m.mu.Unlock()
}

func (m *Manager) taskServer() TaskServer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks
}

func (m *Manager) resourceServer() ResourceServer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resources
}

// Directory exposes the peer directory for read-only inspection.
func (m *Manager) Directory() *directory.Directory { return m.dir }

// connectResult is the completion of one Connector.Connect call.
type connectResult struct {
	s    session.Session
	addr string
	port int
	err  error
}

func (r connectResult) Source() session.Session { return r.s }

func (m *Manager) connect(addr string, port int) {
	m.connector.Connect(addr, port,
		func(s session.Session) { m.Deliver(connectResult{s: s, addr: addr, port: port}) },
		func(err error) { m.Deliver(connectResult{addr: addr, port: port, err: err}) },
	)
}

// Deliver queues ev for the manager's loop. While the queue is full it
// blocks, so events from one session keep their order; after Close it
// drops ev.
func (m *Manager) Deliver(ev session.Event) {
	select {
	case m.events <- ev:
	case <-m.closed:
	}
}

// Pump handles every event queued so far and returns how many it handled.
func (m *Manager) Pump() int {
	n := 0
	for {
		select {
		case ev := <-m.events:
			m.Handle(ev)
			n++
		default:
			return n
		}
	}
}

// Run is the manager's single logical thread: it ticks every interval and
// handles queued events in between until ctx is done or Close is called.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return nil
		case <-ticker.C:
			m.Tick()
		case ev := <-m.events:
			m.Handle(ev)
		}
	}
}

// Tick runs one sync cycle. Phases run in a fixed order and a failing phase
// does not stop the ones after it.
func (m *Manager) Tick() {
	m.loop.Lock()
	defer m.loop.Unlock()
	now := m.now()

	m.phase("acquire", func() { m.acquirePeers(now) })
	m.phase("tasks", func() { m.requestTasks(now) })
	m.phase("evict", func() { m.evictStale(now) })
	m.phase("routing", func() {
		if dropped := m.dir.Sync(now); len(dropped) > 0 {
			m.logger.Debug("Routing contacts replaced", zap.Strings("peers", dropped))
		}
	})
	m.phase("ranking", func() {
		m.mu.Lock()
		r := m.ranker
		m.mu.Unlock()
		if r != nil {
			r.SyncNetwork(now)
		}
	})

	telemetry.PeersActive.Set(float64(m.dir.Len()))
	telemetry.PeerCandidates.Set(float64(m.dir.FreeCandidates()))
}

func (m *Manager) phase(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Sync phase failed", zap.String("phase", name), zap.Any("panic", r))
		}
	}()
	fn()
}

// Close disconnects every session and stops Run.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
		for _, s := range m.dir.Sessions() {
			s.Disconnect(session.ReasonShutdown)
		}
	})
}

// LastMessages returns the recent inbound message log, oldest first.
func (m *Manager) LastMessages() []msglog.Entry { return m.messages.Entries() }

// ListenParams returns the advertised listen port and local identity.
func (m *Manager) ListenParams() (int, string) {
	cfg := m.config()
	return cfg.ListenPort, cfg.ClientID
}
