package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g. "p2p.seed"
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate aggregates every problem so they can be reported at once.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateP2P()...)
	errs = append(errs, c.validateDiscovery()...)
	errs = append(errs, c.validateLogging()...)
	if c.HTTP.Addr != "" {
		if _, err := checkHostPort(c.HTTP.Addr); err != nil {
			errs = append(errs, ValidationError{Path: "http.addr", Message: err.Error(), Hint: "expected host:port, e.g. :8080"})
		}
	}
	return errs
}

func (c *Config) validateNode() []error {
	var errs []error
	if strings.TrimSpace(c.Node.ID) == "" {
		errs = append(errs, ValidationError{
			Path:    "node.id",
			Message: "must not be empty",
			Hint:    "set SELF_ID or node.id",
		})
	}
	if _, err := checkHostPort(c.Node.Listen); err != nil {
		errs = append(errs, ValidationError{Path: "node.listen", Message: err.Error(), Hint: "expected host:port, e.g. :40102"})
	}
	return errs
}

// An empty seed is fine: the node waits to be dialled.
func (c *Config) validateP2P() []error {
	var errs []error
	p := c.P2P
	if p.Seed != "" {
		if _, err := checkHostPort(p.Seed); err != nil {
			errs = append(errs, ValidationError{Path: "p2p.seed", Message: err.Error(), Hint: "expected host:port"})
		}
	}
	if p.OptNumPeers < 1 {
		errs = append(errs, ValidationError{Path: "p2p.opt_num_peers", Message: fmt.Sprintf("must be >= 1; got %d", p.OptNumPeers)})
	}
	if p.SessionTimeout <= 0 {
		errs = append(errs, ValidationError{Path: "p2p.session_timeout", Message: "must be positive"})
	}
	if p.SyncInterval <= 0 {
		errs = append(errs, ValidationError{Path: "p2p.sync_interval", Message: "must be positive"})
	} else if p.SessionTimeout > 0 && p.SyncInterval >= p.SessionTimeout {
		errs = append(errs, ValidationError{
			Path:    "p2p.sync_interval",
			Message: "must be shorter than p2p.session_timeout",
			Hint:    "eviction runs once per sync interval",
		})
	}
	if p.BucketSize < 1 {
		errs = append(errs, ValidationError{Path: "p2p.bucket_size", Message: fmt.Sprintf("must be >= 1; got %d", p.BucketSize)})
	}
	return errs
}

func (c *Config) validateDiscovery() []error {
	var errs []error
	e := c.Discovery.Etcd
	if len(e.Endpoints) > 0 {
		if e.LeaseTTL < 1 {
			errs = append(errs, ValidationError{Path: "discovery.etcd.lease_ttl", Message: "must be >= 1 second"})
		}
		if !strings.HasSuffix(e.Prefix, "/") {
			errs = append(errs, ValidationError{Path: "discovery.etcd.prefix", Message: "must end with /", Hint: "e.g. /zephyr/nodes/"})
		}
	}
	if d := c.Discovery.DNS; d.Name != "" && d.Server != "" {
		if _, err := checkHostPort(d.Server); err != nil {
			errs = append(errs, ValidationError{Path: "discovery.dns.server", Message: err.Error(), Hint: "e.g. 1.1.1.1:53"})
		}
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid value %q", c.Logging.Level),
			Hint:    "expected one of debug, info, warn, error",
		})
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("invalid value %q", c.Logging.Format),
			Hint:    "expected json or console",
		})
	}
	return errs
}

func checkHostPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", p)
	}
	return port, nil
}
