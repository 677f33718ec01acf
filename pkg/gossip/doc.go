// Package gossip holds the pieces of the overlay's gossip layer that do not
// depend on a live connection: the wire message kinds exchanged between
// peers, the drain-and-clear buffers that hand gossip and neighbour rank
// observations to the ranking subsystem, and a timeout based failure
// detector used to evict silent peers.
//
// Typical usage:
//
//	var inbox gossip.Buffer[gossip.Item]
//	inbox.Push(gossip.Item{Origin: "a1", Payload: raw})
//	for _, it := range inbox.Drain() {
//		// hand over to ranking
//	}
//
// Buffers are safe for concurrent writers but are meant to be drained by a
// single consumer; Drain reads and clears under one lock so no write is lost.
package gossip
