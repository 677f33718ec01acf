// Package discovery finds seed peers outside the overlay: an etcd lease
// registry shared by a deployment, and DNS TXT records.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const DefaultPrefix = "/zephyr/nodes/"

func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
}

// RegisterNode publishes prefix+id -> addr under a lease kept alive until
// the returned cancel is called.
func RegisterNode(ctx context.Context, cli *clientv3.Client, prefix, id, addr string, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := cli.Put(ctx, prefix+id, addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, fmt.Errorf("register %s: %w", id, err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		// drain responses so the client does not log a full channel
		for range ch {
		}
	}()
	return lease.ID, cancel, nil
}

// GetPeers returns every registered node as id -> addr.
func GetPeers(ctx context.Context, cli *clientv3.Client, prefix string) (map[string]string, error) {
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	peers := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		peers[strings.TrimPrefix(string(kv.Key), prefix)] = string(kv.Value)
	}
	return peers, nil
}

// WatchPeers calls fn with the full membership after the initial listing
// and after every change, until ctx is done.
func WatchPeers(ctx context.Context, cli *clientv3.Client, prefix string, fn func(map[string]string)) error {
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}
	peers := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		peers[strings.TrimPrefix(string(kv.Key), prefix)] = string(kv.Value)
	}
	fn(snapshot(peers))

	wch := cli.Watch(ctx, prefix, clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
	go func() {
		for wr := range wch {
			if wr.Err() != nil {
				continue
			}
			changed := false
			for _, ev := range wr.Events {
				changed = apply(peers, prefix, ev) || changed
			}
			if changed {
				fn(snapshot(peers))
			}
		}
	}()
	return nil
}

// apply folds one watch event into peers and reports whether it changed.
func apply(peers map[string]string, prefix string, ev *clientv3.Event) bool {
	if ev == nil || ev.Kv == nil {
		return false
	}
	id := strings.TrimPrefix(string(ev.Kv.Key), prefix)
	switch ev.Type {
	case mvccpb.PUT:
		if peers[id] == string(ev.Kv.Value) {
			return false
		}
		peers[id] = string(ev.Kv.Value)
		return true
	case mvccpb.DELETE:
		if _, ok := peers[id]; !ok {
			return false
		}
		delete(peers, id)
		return true
	}
	return false
}

func snapshot(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
