package overlay

import (
	"fmt"
	"strings"
	"time"

	"github.com/ryandielhenn/zephyrmesh/pkg/routing"
)

const (
	DefaultOptNumPeers       = 2
	DefaultSessionTimeout    = 240 * time.Second
	DefaultBroadcastInterval = 2 * time.Second
)

// Config is the part of the node configuration the overlay consumes.
type Config struct {
	ClientID   string // local stable identity
	ListenPort int

	SeedHost string
	SeedPort int

	OptNumPeers       int           // target number of live peers
	SessionTimeout    time.Duration // silence after which a peer is evicted
	BroadcastInterval time.Duration // minimum gap between get-peers / get-tasks bursts

	BucketSize     int
	PongTimeout    time.Duration
	MessageLogSize int
}

func (c Config) withDefaults() Config {
	if c.OptNumPeers <= 0 {
		c.OptNumPeers = DefaultOptNumPeers
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = DefaultBroadcastInterval
	}
	if c.BucketSize <= 0 {
		c.BucketSize = routing.DefaultBucketSize
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = routing.DefaultPongTimeout
	}
	return c
}

// ValidateSeed checks that host:port can be dialled.
func ValidateSeed(host string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("seed port %d out of range [1, 65535]: %w", port, ErrConfiguration)
	}
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("empty seed host: %w", ErrConfiguration)
	}
	return nil
}
