package node

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NormalizeHostPort cuts the http:// https:// ws:// prefixes from the input
// address and adds a default port
func NormalizeHostPort(addr, defPort string) string {
	for _, scheme := range []string{"http://", "https://", "ws://"} {
		if rest, ok := strings.CutPrefix(addr, scheme); ok {
			addr = rest
			break
		}
	}
	addr = strings.TrimSuffix(addr, "/")

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	return addr + ":" + defPort
}

// SplitHostPort normalizes addr and returns its host and numeric port.
func SplitHostPort(addr, defPort string) (string, int, error) {
	host, p, err := net.SplitHostPort(NormalizeHostPort(addr, defPort))
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("port %q: %w", p, err)
	}
	return host, port, nil
}
