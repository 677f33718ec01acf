// Package msglog keeps the last few inbound messages for diagnostics.
package msglog

import (
	"container/list"
	"sync"
	"time"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
)

const DefaultCapacity = 5

type Entry struct {
	Type    gossip.MsgType `json:"type"`
	At      time.Time      `json:"at"`
	Addr    string         `json:"address"`
	Port    int            `json:"port"`
	Payload string         `json:"payload"`
}

// Log is a bounded FIFO of entries; once full, each Add drops the oldest.
type Log struct {
	mu  sync.RWMutex
	ll  *list.List // front = newest
	cap int
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{ll: list.New(), cap: capacity}
}

func (l *Log) Add(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ll.PushFront(e)
	for l.ll.Len() > l.cap {
		l.ll.Remove(l.ll.Back())
	}
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, l.ll.Len())
	for el := l.ll.Back(); el != nil; el = el.Prev() {
		out = append(out, el.Value.(Entry))
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ll.Len()
}
