package resources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ryandielhenn/zephyrmesh/pkg/overlay"
	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

func TestSetResourcePeersCopies(t *testing.T) {
	s := NewStore(nil)
	in := map[string]session.ResourceEntry{
		"b": {ClientID: "b", Addr: "10.0.0.2", Port: 2},
		"a": {ClientID: "a", Addr: "10.0.0.1", Port: 1},
	}
	s.SetResourcePeers(in)
	delete(in, "a")

	peers := s.Peers()
	assert.Len(t, peers, 2)
	assert.Equal(t, "a", peers[0].ClientID)
}

func TestPutResource(t *testing.T) {
	s := NewStore(nil)
	s.PutResource(session.Placement{Resource: "r", Copies: 0})
	s.PutResource(session.Placement{Resource: "r", Addr: "10.0.0.1", Port: 1, Copies: 2})
	assert.Len(t, s.Placements(), 1)
}

func TestChangeConfig(t *testing.T) {
	s := NewStore(nil)
	s.ChangeConfig(overlay.Config{ClientID: "me", SessionTimeout: time.Minute})
	assert.Equal(t, time.Minute, s.Config().SessionTimeout)
}
