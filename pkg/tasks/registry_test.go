package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

func TestRegistryAddListRemove(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.AddTaskHeader(session.TaskHeader{TaskID: "t2", ClientID: "p1", Addr: "10.0.0.1", Port: 40102}))
	require.NoError(t, r.AddTaskHeader(session.TaskHeader{TaskID: "t1", ClientID: "p2", Addr: "10.0.0.2", Port: 40102}))
	require.NoError(t, r.AddTaskHeader(session.TaskHeader{TaskID: "t2", ClientID: "p1", Addr: "10.0.0.9", Port: 40102}))

	hs := r.TaskHeaders()
	require.Len(t, hs, 2)
	assert.Equal(t, "t1", hs[0].TaskID)
	assert.Equal(t, "10.0.0.9", hs[1].Addr, "re-adding replaces")

	assert.True(t, r.RemoveTaskHeader("t1"))
	assert.False(t, r.RemoveTaskHeader("t1"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry(nil)
	for _, h := range []session.TaskHeader{
		{ClientID: "p1"},
		{TaskID: "t1"},
		{TaskID: "t1", ClientID: "p1", Port: 70000},
	} {
		assert.ErrorIs(t, r.AddTaskHeader(h), ErrInvalidHeader)
	}
	assert.Zero(t, r.Len())
}
