package msglog

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ryandielhenn/zephyrmesh/pkg/gossip"
)

func entry(i int) Entry {
	return Entry{
		Type:    gossip.MsgPing,
		At:      time.Unix(int64(i), 0),
		Addr:    "10.0.0.1",
		Port:    40102,
		Payload: fmt.Sprintf("m%d", i),
	}
}

func TestAddBelowCapacity(t *testing.T) {
	l := New(5)
	for i := range 3 {
		l.Add(entry(i))
	}
	if got := l.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
	for i, e := range l.Entries() {
		if e.Payload != fmt.Sprintf("m%d", i) {
			t.Fatalf("entry %d = %q, want m%d", i, e.Payload, i)
		}
	}
}

func TestSixthEntryDropsOldest(t *testing.T) {
	l := New(DefaultCapacity)
	for i := range 6 {
		l.Add(entry(i))
	}

	got := l.Entries()
	if len(got) != 5 {
		t.Fatalf("Len = %d, want 5", len(got))
	}
	for i, e := range got {
		if want := fmt.Sprintf("m%d", i+1); e.Payload != want {
			t.Fatalf("entry %d = %q, want %q", i, e.Payload, want)
		}
	}
}

func TestNeverExceedsCapacity(t *testing.T) {
	l := New(5)
	for i := range 100 {
		l.Add(entry(i))
		if l.Len() > 5 {
			t.Fatalf("Len = %d after %d adds", l.Len(), i+1)
		}
	}
}

func TestZeroCapacityUsesDefault(t *testing.T) {
	l := New(0)
	for i := range 10 {
		l.Add(entry(i))
	}
	if l.Len() != DefaultCapacity {
		t.Fatalf("Len = %d, want %d", l.Len(), DefaultCapacity)
	}
}

func TestEntriesIsCopy(t *testing.T) {
	l := New(5)
	l.Add(entry(1))
	es := l.Entries()
	es[0].Payload = "changed"
	if l.Entries()[0].Payload != "m1" {
		t.Fatal("Entries() returned a reference, not a copy")
	}
}

func TestConcurrentAdd_NoRaces(t *testing.T) {
	l := New(5)
	var wg sync.WaitGroup
	const G = 16
	for g := range G {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 200 {
				l.Add(entry(g*1000 + i))
				_ = l.Entries()
			}
		}(g)
	}
	wg.Wait()
	if l.Len() != 5 {
		t.Fatalf("Len = %d, want 5", l.Len())
	}
	// Tip: run with race detector:
	//   go test -race ./pkg/msglog -v
}
