package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeerInfoValidate(t *testing.T) {
	cases := []struct {
		name string
		in   PeerInfo
		ok   bool
	}{
		{"valid", PeerInfo{ID: "ab", Addr: "10.0.0.1", Port: 40102}, true},
		{"no id", PeerInfo{Addr: "10.0.0.1", Port: 40102}, false},
		{"no addr", PeerInfo{ID: "ab", Port: 40102}, false},
		{"port zero", PeerInfo{ID: "ab", Addr: "10.0.0.1"}, false},
		{"port too big", PeerInfo{ID: "ab", Addr: "10.0.0.1", Port: 70000}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestResourceEntryValidate(t *testing.T) {
	assert.NoError(t, ResourceEntry{ClientID: "c", Addr: "h", Port: 1}.Validate())
	assert.Error(t, ResourceEntry{Addr: "h", Port: 1}.Validate())
	assert.Error(t, ResourceEntry{ClientID: "c", Port: 1}.Validate())
	assert.Error(t, ResourceEntry{ClientID: "c", Addr: "h"}.Validate())
}

func TestDisconnectReasonString(t *testing.T) {
	assert.Equal(t, "timeout", ReasonTimeout.String())
	assert.Equal(t, "unknown", DisconnectReason(200).String())
}
