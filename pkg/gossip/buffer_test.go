package gossip

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBufferDrainThenEmpty(t *testing.T) {
	var b Buffer[Item]
	g := Item{Origin: "n1", Payload: []byte("trust:0.7")}
	b.Push(g)

	got := b.Drain()
	if len(got) != 1 || got[0].Origin != "n1" || string(got[0].Payload) != "trust:0.7" {
		t.Fatalf("Drain = %+v, want [%+v]", got, g)
	}
	again := b.Drain()
	if again == nil || len(again) != 0 {
		t.Fatalf("second Drain = %#v, want empty non-nil slice", again)
	}
}

func TestBufferKeepsArrivalOrder(t *testing.T) {
	var b Buffer[LocalRank]
	for i := range 4 {
		b.Push(LocalRank{Neighbor: "n", Subject: fmt.Sprintf("s%d", i), Rank: float64(i)})
	}
	got := b.Drain()
	for i, r := range got {
		if r.Subject != fmt.Sprintf("s%d", i) {
			t.Fatalf("entry %d = %s, out of order", i, r.Subject)
		}
	}
}

func TestBufferConcurrentPushDrainLosesNothing(t *testing.T) {
	var b Buffer[int]
	const writers, per = 8, 500

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range per {
				b.Push(w*per + i)
			}
		}(w)
	}

	seen := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			seen += len(b.Drain())
			if seen != writers*per {
				t.Fatalf("drained %d items, want %d", seen, writers*per)
			}
			return
		default:
			seen += len(b.Drain())
		}
	}
}

func TestSetDrain(t *testing.T) {
	var s Set
	s.Add("a")
	s.Add("b")
	s.Add("a")
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	got := s.Drain()
	if _, ok := got["a"]; !ok || len(got) != 2 {
		t.Fatalf("Drain = %v", got)
	}
	if len(s.Drain()) != 0 {
		t.Fatal("second Drain should be empty")
	}
}

func TestTimeoutDetectorBoundary(t *testing.T) {
	d := NewTimeoutDetector(10 * time.Second)
	last := time.Unix(1000, 0)

	if d.Expired(last, last.Add(10*time.Second)) {
		t.Fatal("age equal to timeout must not expire")
	}
	if !d.Expired(last, last.Add(10*time.Second+time.Nanosecond)) {
		t.Fatal("age beyond timeout must expire")
	}

	d.SetTimeout(0)
	if d.Expired(last, last.Add(time.Hour)) {
		t.Fatal("zero timeout disables expiry")
	}
}

func TestMsgTypeText(t *testing.T) {
	b, err := MsgLocRank.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var got MsgType
	if err := got.UnmarshalText(b); err != nil || got != MsgLocRank {
		t.Fatalf("UnmarshalText(%q) = %v, %v", b, got, err)
	}
	if err := got.UnmarshalText([]byte("bogus")); err == nil {
		t.Fatal("expected error for unknown name")
	}
}
