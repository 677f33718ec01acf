package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrmesh/pkg/overlay"
	"github.com/ryandielhenn/zephyrmesh/pkg/transport"
)

type benchNode struct {
	m    *overlay.Manager
	srv  *http.Server
	port int
}

func main() {
	n := flag.Int("n", 8, "nodes")
	peers := flag.Int("peers", 3, "target peers per node")
	interval := flag.Duration("interval", 100*time.Millisecond, "sync interval")
	timeout := flag.Duration("timeout", 30*time.Second, "give up after")
	verbose := flag.Bool("v", false, "log overlay activity")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// each node bootstraps from the one started before it
	nodes := make([]*benchNode, 0, *n)
	start := time.Now()
	for i := 0; i < *n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		id := fmt.Sprintf("bench-%d", i)

		cfg := overlay.Config{
			ClientID:          id,
			ListenPort:        port,
			OptNumPeers:       *peers,
			BroadcastInterval: *interval * 2,
		}
		if i > 0 {
			cfg.SeedHost = "127.0.0.1"
			cfg.SeedPort = nodes[i-1].port
		}

		tr := transport.New(transport.Config{ID: id, ListenPort: port}, logger.Named(id))
		m := overlay.New(cfg, tr, overlay.WithLogger(logger.Named(id)))
		tr.SetSink(m)

		mux := http.NewServeMux()
		mux.Handle(tr.Path(), tr.Handler())
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go srv.Serve(ln)
		go m.Run(ctx, *interval)

		nodes = append(nodes, &benchNode{m: m, srv: srv, port: port})
	}

	want := *peers
	if want > *n-1 {
		want = *n - 1
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	converged := false
	for !converged {
		select {
		case <-ctx.Done():
			report(nodes, time.Since(start), false)
			shutdown(nodes)
			os.Exit(1)
		case <-ticker.C:
			converged = true
			for _, bn := range nodes {
				if bn.m.Directory().Len() < want {
					converged = false
					break
				}
			}
		}
	}
	report(nodes, time.Since(start), true)
	shutdown(nodes)
}

func report(nodes []*benchNode, d time.Duration, ok bool) {
	total := 0
	for _, bn := range nodes {
		total += bn.m.Directory().Len()
	}
	status := "converged"
	if !ok {
		status = "did not converge"
	}
	fmt.Printf("%d nodes %s in %s (avg degree %.2f)\n", len(nodes), status, d.Round(time.Millisecond), float64(total)/float64(len(nodes)))
}

func shutdown(nodes []*benchNode) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, bn := range nodes {
		bn.m.Close()
		_ = bn.srv.Shutdown(ctx)
	}
}
