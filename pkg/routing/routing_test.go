package routing

import (
	"fmt"
	"testing"
	"time"
)

// test keys: the first byte of the key is chosen per identity, everything
// else is zero. "self" is the all-zero key.
func firstByte(m map[string]byte) KeyFunc {
	return func(id string) Key {
		var k Key
		k[0] = m[id]
		return k
	}
}

func TestAddGetContacts(t *testing.T) {
	tb := New("self", 4, nil)

	tb.Add(Contact{ID: "n1", Addr: "127.0.0.1", Port: 8080})
	tb.Add(Contact{ID: "n2", Addr: "127.0.0.1", Port: 8081})
	tb.Add(Contact{ID: "n3", Addr: "127.0.0.1", Port: 8082})

	for id, want := range map[string]int{"n1": 8080, "n2": 8081, "n3": 8082} {
		got, ok := tb.Get(id)
		if !ok || got.Port != want {
			t.Fatalf("Get(%s) = (%+v,%v), want port %d", id, got, ok, want)
		}
	}
	if tb.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tb.Len())
	}
}

func TestSelfIsNeverAdded(t *testing.T) {
	tb := New("self", 4, nil)
	if _, ok := tb.Add(Contact{ID: "self", Addr: "a", Port: 1}); ok {
		t.Fatal("adding self must not ask for a ping")
	}
	if tb.Len() != 0 {
		t.Fatalf("Len = %d, want 0", tb.Len())
	}
}

func TestRefreshMovesToTail(t *testing.T) {
	kf := firstByte(map[string]byte{"a": 0x80, "b": 0x81, "c": 0x82})
	tb := New("self", 2, kf)
	tb.Add(Contact{ID: "a"})
	tb.Add(Contact{ID: "b"})
	tb.Add(Contact{ID: "a", Port: 9}) // a is now newest, b is head

	head, ok := tb.Add(Contact{ID: "c"})
	if !ok || head.ID != "b" {
		t.Fatalf("full bucket head = (%s,%v), want (b,true)", head.ID, ok)
	}
	if got, _ := tb.Get("a"); got.Port != 9 {
		t.Fatalf("refresh did not update contact: %+v", got)
	}
}

func TestFullBucketParksReplacement(t *testing.T) {
	kf := firstByte(map[string]byte{"old": 0x80, "new": 0x81})
	tb := New("self", 1, kf)
	tb.SetPongTimeout(5 * time.Second)
	t0 := time.Unix(1000, 0)

	tb.Add(Contact{ID: "old", LastSeen: t0})
	head, ok := tb.Add(Contact{ID: "new", LastSeen: t0})
	if !ok || head.ID != "old" {
		t.Fatalf("Add into full bucket = (%s,%v), want (old,true)", head.ID, ok)
	}
	if tb.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", tb.Pending())
	}

	// pong timeout not yet passed
	if dropped := tb.Sync(t0.Add(5 * time.Second)); len(dropped) != 0 {
		t.Fatalf("Sync dropped %v before timeout", dropped)
	}

	dropped := tb.Sync(t0.Add(6 * time.Second))
	if len(dropped) != 1 || dropped[0] != "old" {
		t.Fatalf("Sync dropped %v, want [old]", dropped)
	}
	if _, ok := tb.Get("old"); ok {
		t.Fatal("old should have been replaced")
	}
	if _, ok := tb.Get("new"); !ok {
		t.Fatal("new should have taken the slot")
	}
}

func TestPongKeepsIncumbent(t *testing.T) {
	kf := firstByte(map[string]byte{"old": 0x80, "new": 0x81})
	tb := New("self", 1, kf)
	t0 := time.Unix(1000, 0)

	tb.Add(Contact{ID: "old", LastSeen: t0})
	tb.Add(Contact{ID: "new", LastSeen: t0})
	tb.Pong(Contact{ID: "old", LastSeen: t0.Add(time.Second)})

	if tb.Pending() != 0 {
		t.Fatalf("Pending = %d after pong, want 0", tb.Pending())
	}
	if dropped := tb.Sync(t0.Add(time.Hour)); len(dropped) != 0 {
		t.Fatalf("Sync dropped %v after pong", dropped)
	}
	if _, ok := tb.Get("new"); ok {
		t.Fatal("replacement should have been discarded")
	}
}

func TestIdempotentRemove(t *testing.T) {
	tb := New("self", 4, nil)
	tb.Add(Contact{ID: "n1"})
	tb.Remove("n1")
	// Removing again should not panic
	tb.Remove("n1")
	if tb.Len() != 0 {
		t.Fatalf("Len = %d, want 0", tb.Len())
	}
}

func TestRemoveNonExistentContact(t *testing.T) {
	tb := New("self", 4, nil)
	tb.Add(Contact{ID: "n1"})
	tb.Add(Contact{ID: "n2"})

	before := tb.Len()
	tb.Remove("non-existent")
	if after := tb.Len(); before != after {
		t.Fatalf("removing non-existent contact changed count: before=%d, after=%d", before, after)
	}
	if _, ok := tb.Get("n1"); !ok {
		t.Fatal("n1 should still exist")
	}
}

func TestContactsIsCopy(t *testing.T) {
	tb := New("self", 4, nil)
	tb.Add(Contact{ID: "n1", Port: 1})

	cs := tb.Contacts()
	cs[0].Port = 99
	if got, _ := tb.Get("n1"); got.Port != 1 {
		t.Fatal("Contacts() returned a reference, not a copy")
	}
}

func TestClosestOrdersByDistance(t *testing.T) {
	kf := firstByte(map[string]byte{"far": 0xF0, "mid": 0x30, "near": 0x01})
	tb := New("self", 4, kf)
	for _, id := range []string{"far", "mid", "near"} {
		tb.Add(Contact{ID: id})
	}

	got := tb.Closest(Key{}, 2)
	if len(got) != 2 || got[0].ID != "near" || got[1].ID != "mid" {
		t.Fatalf("Closest = %v", got)
	}
}

func TestNoDuplicateIdentities(t *testing.T) {
	tb := New("self", 8, nil)
	for i := range 200 {
		id := fmt.Sprintf("n%d", i%20)
		tb.Add(Contact{ID: id})
		if i%7 == 0 {
			tb.Remove(fmt.Sprintf("n%d", i%5))
		}
	}
	seen := map[string]bool{}
	for _, c := range tb.Contacts() {
		if seen[c.ID] {
			t.Fatalf("duplicate contact %s", c.ID)
		}
		seen[c.ID] = true
	}
}
