package directory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrmesh/pkg/routing"
	"github.com/ryandielhenn/zephyrmesh/pkg/session/sessiontest"
)

var t0 = time.Unix(1_700_000_000, 0)

func TestIsNovel(t *testing.T) {
	d := New("me", nil, nil)
	assert.False(t, d.IsNovel("me"), "own identity is never novel")
	assert.True(t, d.IsNovel("p1"))

	require.True(t, d.AddCandidate("p1", "10.0.0.1", 40102))
	assert.False(t, d.IsNovel("p1"), "candidate is not novel")

	s := sessiontest.New("p2", "10.0.0.2", 40102)
	d.Activate("p2", s, t0)
	assert.False(t, d.IsNovel("p2"), "live peer is not novel")
}

func TestAddCandidateRejectsKnown(t *testing.T) {
	d := New("me", nil, nil)
	assert.False(t, d.AddCandidate("me", "h", 1))
	assert.True(t, d.AddCandidate("p1", "h", 1))
	assert.False(t, d.AddCandidate("p1", "h", 2))
	assert.Equal(t, 1, d.FreeCandidates())
}

func TestActivateDropsCandidate(t *testing.T) {
	d := New("me", nil, nil)
	d.AddCandidate("p1", "h", 1)
	d.Activate("p1", sessiontest.New("p1", "h", 1), t0)

	assert.Empty(t, d.Candidates())
	assert.Equal(t, 1, d.Len())
}

func TestTakeCandidateIncrementsAndRemoves(t *testing.T) {
	d := New("me", nil, nil)
	d.AddCandidate("p1", "h1", 1)
	d.AddCandidate("p2", "h2", 2)

	c, ok := d.TakeCandidate(func(n int) int { return 1 })
	require.True(t, ok)
	assert.Equal(t, "p2", c.ID)
	assert.Equal(t, 1, c.Attempts)
	assert.Equal(t, 1, d.FreeCandidates())
	assert.True(t, d.IsNovel("p2"), "a taken candidate only returns if re-advertised")

	c, ok = d.TakeCandidate(func(n int) int { return 99 })
	require.True(t, ok, "out of range pick falls back to the first candidate")
	assert.Equal(t, "p1", c.ID)

	_, ok = d.TakeCandidate(func(n int) int { return 0 })
	assert.False(t, ok)
}

func TestRemoveUnknownIsNotFound(t *testing.T) {
	d := New("me", nil, nil)
	err := d.Remove("ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveBySession(t *testing.T) {
	d := New("me", nil, nil)
	s1 := sessiontest.New("p1", "h", 1)
	s2 := sessiontest.New("p2", "h", 2)
	d.Attach(s1)
	d.Activate("p1", s1, t0)
	d.Activate("p2", s2, t0)

	removed := d.RemoveBySession(s1)
	assert.Equal(t, []string{"p1"}, removed)
	assert.Len(t, d.Sessions(), 1)
	_, ok := d.Lookup("p1")
	assert.False(t, ok)

	assert.Empty(t, d.RemoveBySession(s1), "second removal is a no-op")
}

func TestTouchOnlyMovesForward(t *testing.T) {
	d := New("me", nil, nil)
	d.Activate("p1", sessiontest.New("p1", "h", 1), t0)
	d.Touch("p1", t0.Add(time.Minute))
	d.Touch("p1", t0)

	rec, ok := d.Get("p1")
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), rec.LastSeen)
}

func TestAddOrRefreshReturnsDisplaced(t *testing.T) {
	kf := func(id string) routing.Key {
		var k routing.Key
		k[0] = map[string]byte{"old": 0x80, "new": 0x81}[id]
		return k
	}
	d := New("me", routing.New("me", 1, kf), nil)

	_, ok := d.AddOrRefresh("old", "h", 1, t0)
	assert.False(t, ok)
	id, ok := d.AddOrRefresh("new", "h", 2, t0)
	require.True(t, ok)
	assert.Equal(t, "old", id)

	d.Acknowledge("old", "h", 1, t0.Add(time.Second))
	assert.Empty(t, d.Sync(t0.Add(time.Hour)), "acknowledged contact must survive sync")
}

func TestDirectoryNeverHoldsDuplicates(t *testing.T) {
	d := New("me", nil, nil)
	for i := range 100 {
		id := fmt.Sprintf("p%d", i%10)
		d.Activate(id, sessiontest.New(id, "h", 1), t0)
		if i%3 == 0 {
			_ = d.Remove(fmt.Sprintf("p%d", i%4))
		}
	}
	seen := map[string]bool{}
	for _, rec := range d.Peers() {
		assert.False(t, seen[rec.ID], "duplicate %s", rec.ID)
		seen[rec.ID] = true
		assert.False(t, d.IsNovel(rec.ID))
	}
}

func TestClosestUsesTableKeys(t *testing.T) {
	kf := func(id string) routing.Key {
		var k routing.Key
		k[0] = map[string]byte{"me": 0x80, "far": 0x70, "near": 0x01, "origin": 0x00}[id]
		return k
	}
	d := New("me", routing.New("me", 4, kf), nil)
	d.AddOrRefresh("far", "h1", 1, t0)
	d.AddOrRefresh("near", "h2", 2, t0)

	got := d.Closest("origin", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].ID)
	assert.Len(t, d.Closest("origin", 5), 2)
}
