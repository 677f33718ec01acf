package session

import (
	"fmt"
	"strings"
)

// PeerInfo is one entry of a peer-list advertisement.
type PeerInfo struct {
	ID   string `json:"id"`
	Addr string `json:"address"`
	Port int    `json:"port"`
}

// Validate reports the first missing or malformed field.
func (p PeerInfo) Validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("peer info: empty id")
	case strings.TrimSpace(p.Addr) == "":
		return fmt.Errorf("peer info %s: empty address", p.ID)
	case p.Port < 1 || p.Port > 65535:
		return fmt.Errorf("peer info %s: port %d out of range", p.ID, p.Port)
	}
	return nil
}

// TaskHeader is the metadata a node advertises about a compute task.
type TaskHeader struct {
	TaskID      string `json:"task_id"`
	ClientID    string `json:"client_id"`
	Addr        string `json:"address"`
	Port        int    `json:"port"`
	Environment string `json:"environment,omitempty"`
}

// ResourceEntry locates a peer that hosts task resources.
type ResourceEntry struct {
	ClientID string `json:"client_id"`
	Addr     string `json:"addr"`
	Port     int    `json:"port"`
}

func (e ResourceEntry) Validate() error {
	switch {
	case strings.TrimSpace(e.ClientID) == "":
		return fmt.Errorf("resource entry: empty client id")
	case strings.TrimSpace(e.Addr) == "":
		return fmt.Errorf("resource entry %s: empty addr", e.ClientID)
	case e.Port < 1 || e.Port > 65535:
		return fmt.Errorf("resource entry %s: port %d out of range", e.ClientID, e.Port)
	}
	return nil
}

// Placement asks the receiving node to store copies of a resource that can
// be fetched from Addr:Port.
type Placement struct {
	Resource string `json:"resource"`
	Addr     string `json:"addr"`
	Port     int    `json:"port"`
	Copies   int    `json:"copies"`
}

// GossipPayload is the opaque body carried by a gossip message.
type GossipPayload []byte
