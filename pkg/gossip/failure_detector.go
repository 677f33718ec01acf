package gossip

import (
	"sync"
	"time"
)

// FailureDetector decides whether a peer that was last heard from at last
// should be considered dead at now.
type FailureDetector interface {
	Expired(last, now time.Time) bool
	SetTimeout(d time.Duration)
}

// TimeoutDetector is the plain heartbeat-timeout detector: a peer is dead
// once it has been silent for strictly longer than the timeout.
type TimeoutDetector struct {
	mu      sync.RWMutex
	timeout time.Duration
}

func NewTimeoutDetector(timeout time.Duration) *TimeoutDetector {
	return &TimeoutDetector{timeout: timeout}
}

func (d *TimeoutDetector) Expired(last, now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.timeout <= 0 {
		return false
	}
	return now.Sub(last) > d.timeout
}

// SetTimeout replaces the silence threshold; non-positive disables eviction.
func (d *TimeoutDetector) SetTimeout(timeout time.Duration) {
	d.mu.Lock()
	d.timeout = timeout
	d.mu.Unlock()
}

func (d *TimeoutDetector) Timeout() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.timeout
}
