// Package routing is the overlay's keyed routing structure: a Kademlia style
// table of k-buckets over 256-bit keys. It decides which newly seen peers are
// worth keeping and which stale contact must be pinged before it can be
// replaced.
package routing

import (
	"encoding/hex"
	"math/bits"
	"slices"
	"sort"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

const (
	KeyBits            = 256
	DefaultBucketSize  = 16
	DefaultPongTimeout = 5 * time.Second
)

type Key [32]byte

// KeyFunc maps a peer identity onto the routing key space.
type KeyFunc func(id string) Key

func Blake3(id string) Key { return blake3.Sum256([]byte(id)) }

func (k Key) String() string { return hex.EncodeToString(k[:]) }

func (k Key) xor(o Key) Key {
	var d Key
	for i := range k {
		d[i] = k[i] ^ o[i]
	}
	return d
}

// prefixLen counts the leading bits a and b share.
func prefixLen(a, b Key) int {
	for i := range a {
		if x := a[i] ^ b[i]; x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return KeyBits
}

type Contact struct {
	ID       string
	Addr     string
	Port     int
	LastSeen time.Time
}

// pending is a newcomer parked behind a full bucket until the head answers
// its ping or the pong timeout passes.
type pending struct {
	replacement Contact
	since       time.Time
}

type Table struct {
	mu          sync.RWMutex
	self        string
	selfKey     Key
	k           int
	key         KeyFunc
	pongTimeout time.Duration
	buckets     [KeyBits][]Contact // index = shared prefix length with self
	pending     map[string]pending // head awaiting pong -> its replacement
}

func New(self string, k int, kf KeyFunc) *Table {
	if k <= 0 {
		k = DefaultBucketSize
	}
	if kf == nil {
		kf = Blake3
	}
	return &Table{
		self:        self,
		selfKey:     kf(self),
		k:           k,
		key:         kf,
		pongTimeout: DefaultPongTimeout,
		pending:     make(map[string]pending),
	}
}

func (t *Table) SetPongTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d > 0 {
		t.pongTimeout = d
	}
}

func (t *Table) bucketFor(id string) int {
	b := prefixLen(t.selfKey, t.key(id))
	if b >= KeyBits {
		b = KeyBits - 1
	}
	return b
}

// Add records that c was seen. When c lands in a full bucket the oldest
// contact of that bucket is returned with ok=true: the caller should ping it,
// and unless it answers within the pong timeout c takes its slot on Sync.
func (t *Table) Add(c Contact) (toPing Contact, ok bool) {
	if c.ID == "" || c.ID == t.self {
		return Contact{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(c)
}

func (t *Table) addLocked(c Contact) (Contact, bool) {
	b := t.bucketFor(c.ID)
	bucket := t.buckets[b]
	if i := indexOf(bucket, c.ID); i >= 0 {
		bucket = slices.Delete(bucket, i, i+1)
		t.buckets[b] = append(bucket, c)
		return Contact{}, false
	}
	if len(bucket) < t.k {
		t.buckets[b] = append(bucket, c)
		return Contact{}, false
	}
	head := bucket[0]
	t.pending[head.ID] = pending{replacement: c, since: c.LastSeen}
	return head, true
}

// Pong records that c answered. A pending replacement waiting on c is
// dropped and c becomes the most recently seen contact of its bucket.
func (t *Table) Pong(c Contact) {
	if c.ID == "" || c.ID == t.self {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, c.ID)
	t.addLocked(c)
}

// Sync replaces every contact whose pong is overdue with its parked
// replacement and returns the identities that were dropped.
func (t *Table) Sync(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var dropped []string
	for id, p := range t.pending {
		if now.Sub(p.since) <= t.pongTimeout {
			continue
		}
		delete(t.pending, id)
		t.removeLocked(id)
		dropped = append(dropped, id)
		if p.replacement.ID != "" {
			t.addLocked(p.replacement)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// Remove is idempotent.
func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
	t.removeLocked(id)
}

func (t *Table) removeLocked(id string) {
	b := t.bucketFor(id)
	if i := indexOf(t.buckets[b], id); i >= 0 {
		t.buckets[b] = slices.Delete(t.buckets[b], i, i+1)
	}
}

func (t *Table) Get(id string) (Contact, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bucket := t.buckets[t.bucketFor(id)]
	if i := indexOf(bucket, id); i >= 0 {
		return bucket[i], true
	}
	return Contact{}, false
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, b := range t.buckets {
		n += len(b)
	}
	return n
}

// Pending reports how many contacts are waiting on a pong.
func (t *Table) Pending() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

// Contacts returns a copy of every contact, nearest buckets first.
func (t *Table) Contacts() []Contact {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Contact
	for b := KeyBits - 1; b >= 0; b-- {
		out = append(out, t.buckets[b]...)
	}
	return out
}

// KeyOf maps id onto the table's key space.
func (t *Table) KeyOf(id string) Key { return t.key(id) }

// Closest returns up to n contacts ordered by XOR distance to target.
func (t *Table) Closest(target Key, n int) []Contact {
	if n <= 0 {
		return nil
	}
	all := t.Contacts()
	sort.Slice(all, func(i, j int) bool {
		di, dj := t.key(all[i].ID).xor(target), t.key(all[j].ID).xor(target)
		return slices.Compare(di[:], dj[:]) < 0
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func indexOf(bucket []Contact, id string) int {
	return slices.IndexFunc(bucket, func(c Contact) bool { return c.ID == id })
}
