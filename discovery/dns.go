package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/ryandielhenn/zephyrmesh/pkg/session"
)

// ParseSeed parses "id@host:port".
func ParseSeed(s string) (session.PeerInfo, error) {
	id, hp, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok {
		return session.PeerInfo{}, fmt.Errorf("seed %q: missing id@", s)
	}
	host, p, err := net.SplitHostPort(hp)
	if err != nil {
		return session.PeerInfo{}, fmt.Errorf("seed %q: %w", s, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return session.PeerInfo{}, fmt.Errorf("seed %q: port: %w", s, err)
	}
	info := session.PeerInfo{ID: id, Addr: host, Port: port}
	if err := info.Validate(); err != nil {
		return session.PeerInfo{}, err
	}
	return info, nil
}

// DNSSeeds resolves seeds published as TXT records. Each TXT string holds
// one or more seeds separated by spaces or commas.
type DNSSeeds struct {
	Server string // resolver, host:port
	Client *dns.Client
}

func NewDNSSeeds(server string) *DNSSeeds {
	return &DNSSeeds{Server: server, Client: &dns.Client{Net: "udp", Timeout: 3 * time.Second}}
}

// Lookup returns the seeds under name. Malformed entries are returned as
// errors alongside the seeds that parsed.
func (d *DNSSeeds) Lookup(ctx context.Context, name string) ([]session.PeerInfo, []error, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	resp, _, err := d.Client.ExchangeContext(ctx, msg, d.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, nil, fmt.Errorf("query %s: %s", name, dns.RcodeToString[resp.Rcode])
	}

	var seeds []session.PeerInfo
	var bad []error
	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		for _, field := range strings.FieldsFunc(strings.Join(txt.Txt, " "), func(r rune) bool {
			return r == ' ' || r == ','
		}) {
			info, err := ParseSeed(field)
			if err != nil {
				bad = append(bad, err)
				continue
			}
			seeds = append(seeds, info)
		}
	}
	return seeds, bad, nil
}
