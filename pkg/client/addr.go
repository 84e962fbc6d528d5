package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrAddr is returned by ParseAddr for unusable server addresses.
var ErrAddr = errors.New("client: invalid server address")

// Addr is an aggregator host and port.
type Addr struct {
	Host string
	Port int
}

// String returns host:port, suitable for dialing.
func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseAddr parses "http://name.domain:port", "http://name:port" or
// "name:port". A trailing slash is ignored. The port is required.
func ParseAddr(s string) (Addr, error) {
	rest := strings.TrimSpace(s)
	rest = strings.TrimPrefix(rest, "http://")
	rest = strings.TrimSuffix(rest, "/")

	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return Addr{}, fmt.Errorf("%w %q: expected [http://]host:port", ErrAddr, s)
	}
	if host == "" || strings.ContainsAny(host, ":/ \t") {
		return Addr{}, fmt.Errorf("%w %q: bad host", ErrAddr, s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Addr{}, fmt.Errorf("%w %q: port must be 1-65535", ErrAddr, s)
	}
	return Addr{Host: host, Port: port}, nil
}
