// Package config loads the node configuration from YAML or TOML, applies
// defaults and environment overrides, and validates the result.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/ryandielhenn/zephyrmesh/pkg/overlay"
)

type Config struct {
	Node      NodeConfig      `yaml:"node" toml:"node"`
	P2P       P2PConfig       `yaml:"p2p" toml:"p2p"`
	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
}

type NodeConfig struct {
	ID            string `yaml:"id" toml:"id"`
	Listen        string `yaml:"listen" toml:"listen"`                 // peer transport, host:port
	AdvertiseAddr string `yaml:"advertise_addr" toml:"advertise_addr"` // address other nodes dial
}

type P2PConfig struct {
	Seed              string        `yaml:"seed" toml:"seed"` // host:port, empty disables bootstrap
	OptNumPeers       int           `yaml:"opt_num_peers" toml:"opt_num_peers"`
	SessionTimeout    time.Duration `yaml:"session_timeout" toml:"session_timeout"`
	SyncInterval      time.Duration `yaml:"sync_interval" toml:"sync_interval"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval" toml:"broadcast_interval"`
	BucketSize        int           `yaml:"bucket_size" toml:"bucket_size"`
	PongTimeout       time.Duration `yaml:"pong_timeout" toml:"pong_timeout"`
	MessageLogSize    int           `yaml:"message_log_size" toml:"message_log_size"`
}

type DiscoveryConfig struct {
	Etcd EtcdConfig `yaml:"etcd" toml:"etcd"`
	DNS  DNSConfig  `yaml:"dns" toml:"dns"`
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints" toml:"endpoints"`
	Prefix      string        `yaml:"prefix" toml:"prefix"`
	LeaseTTL    int64         `yaml:"lease_ttl" toml:"lease_ttl"` // seconds
	DialTimeout time.Duration `yaml:"dial_timeout" toml:"dial_timeout"`
}

type DNSConfig struct {
	Name   string `yaml:"name" toml:"name"`     // TXT record holding seeds
	Server string `yaml:"server" toml:"server"` // resolver host:port
}

type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format     string `yaml:"format" toml:"format"` // json, console
	File       string `yaml:"file" toml:"file"`     // empty for stderr
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Node: NodeConfig{Listen: ":40102"},
		P2P: P2PConfig{
			OptNumPeers:       overlay.DefaultOptNumPeers,
			SessionTimeout:    overlay.DefaultSessionTimeout,
			SyncInterval:      time.Second,
			BroadcastInterval: overlay.DefaultBroadcastInterval,
			BucketSize:        16,
			PongTimeout:       5 * time.Second,
			MessageLogSize:    5,
		},
		Discovery: DiscoveryConfig{
			Etcd: EtcdConfig{Prefix: "/zephyr/nodes/", LeaseTTL: 10, DialTimeout: 5 * time.Second},
		},
		Logging: LoggingConfig{Level: "info", Format: "console", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		HTTP:    HTTPConfig{Addr: ":8080"},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and fills in a random node id when none is configured.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if cfg.Node.ID == "" {
		cfg.Node.ID = uuid.NewString()
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeStrict(f, cfg)
	case ".toml":
		md, err := toml.NewDecoder(f).Decode(cfg)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("invalid config: unknown keys %v", undecoded)
		}
		return nil
	default:
		return fmt.Errorf("config %s: unsupported extension", path)
	}
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("SELF_ID"); ok && v != "" {
		c.Node.ID = v
	}
	if v, ok := lookup("SELF_ADDR"); ok && v != "" {
		c.Node.AdvertiseAddr = v
	}
	if v, ok := lookup("SEED_ADDR"); ok {
		c.P2P.Seed = v
	}
	if v, ok := lookup("OPT_NUM_PEERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPT_NUM_PEERS: %w", err)
		}
		c.P2P.OptNumPeers = n
	}
	if v, ok := lookup("ETCD_ENDPOINTS"); ok && v != "" {
		c.Discovery.Etcd.Endpoints = strings.Split(v, ",")
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}

// ListenPort is the numeric port of Node.Listen.
func (c Config) ListenPort() (int, error) {
	_, p, err := net.SplitHostPort(c.Node.Listen)
	if err != nil {
		return 0, fmt.Errorf("node.listen: %w", err)
	}
	return strconv.Atoi(p)
}

// Overlay converts the p2p section into the manager's configuration. A
// malformed seed is passed through; the manager logs and skips it.
func (c Config) Overlay() overlay.Config {
	port, _ := c.ListenPort()
	host, seedPort := splitSeed(c.P2P.Seed)
	return overlay.Config{
		ClientID:          c.Node.ID,
		ListenPort:        port,
		SeedHost:          host,
		SeedPort:          seedPort,
		OptNumPeers:       c.P2P.OptNumPeers,
		SessionTimeout:    c.P2P.SessionTimeout,
		BroadcastInterval: c.P2P.BroadcastInterval,
		BucketSize:        c.P2P.BucketSize,
		PongTimeout:       c.P2P.PongTimeout,
		MessageLogSize:    c.P2P.MessageLogSize,
	}
}

func splitSeed(seed string) (string, int) {
	host, p, err := net.SplitHostPort(strings.TrimSpace(seed))
	if err != nil {
		return "", 0
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return host, 0
	}
	return host, port
}
